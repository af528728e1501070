package textmerge

import "testing"

func intp(n int) *int { return &n }

func TestFormatCount(t *testing.T) {
	cases := map[int]string{
		0:       "0",
		999:     "999",
		1234:    "1,234",
		61732:   "61,732",
		1000000: "1,000,000",
	}
	for n, want := range cases {
		if got := FormatCount(n); got != want {
			t.Fatalf("FormatCount(%d) 期望 %q，实际 %q", n, want, got)
		}
	}
}

func TestBuildLine(t *testing.T) {
	if got := BuildLine(intp(1234)); got != "Backloggd Ratings: 1,234" {
		t.Fatalf("BuildLine 不符：%q", got)
	}
	if got := BuildLine(nil); got != "" {
		t.Fatalf("无人数时应为空，实际 %q", got)
	}
}

func TestUpsertLineAtTop(t *testing.T) {
	line := "Backloggd Ratings: 1,234"
	cases := []struct {
		name     string
		existing string
		want     string
	}{
		{"empty", "", line + "\n"},
		{"whitespace_only", "  \n ", line + "\n"},
		{"plain_text", "A great game.", line + "\n\nA great game."},
		{"html", "<p>A great game.</p>", line + "<br/><br/><p>A great game.</p>"},
		{"replaces_old_plain", "Backloggd Ratings: 99\n\nA great game.", line + "\n\nA great game."},
		{"replaces_old_html", "Backloggd Ratings: 1,000<br/><br/><p>Hi</p>", line + "<br/><br/><p>Hi</p>"},
		{"old_line_only", "backloggd ratings: 5\n", line + "\n"},
		{"keeps_mid_text_mention", "Intro\nBackloggd Ratings: 5", line + "\n\nIntro\nBackloggd Ratings: 5"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := UpsertLineAtTop(tc.existing, line); got != tc.want {
				t.Fatalf("期望 %q，实际 %q", tc.want, got)
			}
		})
	}
}

func TestUpsertLineAtTop_Idempotent(t *testing.T) {
	line := BuildLine(intp(61732))
	inputs := []string{
		"",
		"Short blurb.",
		"<div>Some <b>html</b></div>",
		"Backloggd Ratings: 12\r\n\r\nOld notes",
		"\n\n  leading breaks",
	}
	for _, in := range inputs {
		once := UpsertLineAtTop(in, line)
		twice := UpsertLineAtTop(once, line)
		if once != twice {
			t.Fatalf("重复执行不幂等：\ninput=%q\nonce=%q\ntwice=%q", in, once, twice)
		}
	}
}

func TestUpsertLineAtTop_BlankLineKeepsText(t *testing.T) {
	if got := UpsertLineAtTop("keep me", "  "); got != "keep me" {
		t.Fatalf("空注记行应原样返回，实际 %q", got)
	}
}
