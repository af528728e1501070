package score

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"

	"github.com/John-Robertt/BLCS/internal/domain"
)

type stubResolver struct {
	url domain.SourceURL
	ok  bool
}

func (r stubResolver) Resolve(context.Context, domain.GameIdentity) (domain.SourceURL, bool) {
	return r.url, r.ok
}

type stubFetcher struct {
	rating domain.AggregateRating
	err    error
	calls  int
}

func (f *stubFetcher) Fetch(context.Context, domain.SourceURL) (domain.AggregateRating, error) {
	f.calls++
	return f.rating, f.err
}

func bufLogger() (*slog.Logger, *bytes.Buffer) {
	var buf bytes.Buffer
	return slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})), &buf
}

func TestLookup_Success(t *testing.T) {
	n := 10
	f := &stubFetcher{rating: domain.NewAggregateRating(3.9, &n)}
	s := &Service{Resolver: stubResolver{url: "https://www.backloggd.com/games/celeste/", ok: true}, Fetcher: f}

	r, u, err := s.Lookup(context.Background(), domain.GameIdentity{Name: "Celeste"})
	if err != nil {
		t.Fatalf("Lookup 失败：%v", err)
	}
	if u != "https://www.backloggd.com/games/celeste/" || r.Value != 3.9 || r.Count == nil || *r.Count != 10 {
		t.Fatalf("结果不符：url=%q rating=%+v", u, r)
	}
}

func TestLookup_ResolutionFailedIsQuiet(t *testing.T) {
	logger, buf := bufLogger()
	f := &stubFetcher{}
	s := &Service{Resolver: stubResolver{}, Fetcher: f, Logger: logger}

	_, _, err := s.Lookup(context.Background(), domain.GameIdentity{Name: "???"})
	if !errors.Is(err, domain.ErrResolutionFailed) {
		t.Fatalf("期望 ErrResolutionFailed，实际 %v", err)
	}
	if f.calls != 0 {
		t.Fatalf("无 URL 时不应抓取")
	}
	if strings.Contains(buf.String(), "level=WARN") {
		t.Fatalf("解析失败不应打 warning：%s", buf.String())
	}
}

func TestLookup_FetchFailureWarns(t *testing.T) {
	logger, buf := bufLogger()
	f := &stubFetcher{err: &domain.ParseError{Reason: domain.ParseNotFound}}
	s := &Service{Resolver: stubResolver{url: "https://www.backloggd.com/games/x/", ok: true}, Fetcher: f, Logger: logger}

	_, u, err := s.Lookup(context.Background(), domain.GameIdentity{Name: "X"})
	if !errors.Is(err, domain.ErrParse) {
		t.Fatalf("期望 ErrParse，实际 %v", err)
	}
	if u == "" {
		t.Fatalf("抓取失败时仍应返回已解析的 URL")
	}
	out := buf.String()
	if !strings.Contains(out, "level=WARN") || !strings.Contains(out, "game=X") {
		t.Fatalf("期望带 game 的 warning，实际：%s", out)
	}
}

func TestCommunityScore(t *testing.T) {
	cases := []struct {
		in   float64
		want int
	}{
		{0, 0},
		{4.5, 90},
		{4.55, 91},
		{2.125, 43},
		{5, 100},
		{5.3, 100},
		{-1, 0},
	}
	for _, c := range cases {
		if got := CommunityScore(c.in); got != c.want {
			t.Fatalf("CommunityScore(%v) 期望 %d，实际 %d", c.in, c.want, got)
		}
	}
}

func TestLinkLabel(t *testing.T) {
	if got := LinkLabel(nil); got != "Backloggd" {
		t.Fatalf("无人数标签不符：%q", got)
	}
	n := 61732
	if got := LinkLabel(&n); got != "Backloggd (61,732 ratings)" {
		t.Fatalf("标签不符：%q", got)
	}
}
