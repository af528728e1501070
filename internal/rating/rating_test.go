package rating

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/John-Robertt/BLCS/internal/domain"
)

func intPtr(n int) *int { return &n }

func TestParse_Fixture(t *testing.T) {
	page, err := os.ReadFile(filepath.Join("testdata", "game_page.html"))
	if err != nil {
		t.Fatalf("读取 fixture 失败：%v", err)
	}

	got, used, err := ParseWith(page, Strategies)
	if err != nil {
		t.Fatalf("Parse 失败：%v", err)
	}
	if used != "structured_data" {
		t.Fatalf("期望命中 structured_data，实际 %q", used)
	}
	want := domain.AggregateRating{Value: 4.4, Count: intPtr(61732)}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("解析结果不符合预期（-want +got）：\n%s", diff)
	}
}

func TestParse_Cases(t *testing.T) {
	cases := []struct {
		name string
		html string
		want domain.AggregateRating
	}{
		{
			name: "数值型 ratingValue 与 ratingCount",
			html: `<script type="application/ld+json">{"@type":"AggregateRating","ratingValue":3.5,"ratingCount":1234}</script>`,
			want: domain.AggregateRating{Value: 3.5, Count: intPtr(1234)},
		},
		{
			name: "千分位人数",
			html: `<script type="application/ld+json">{"@type":"AggregateRating","ratingValue":"2.125","ratingCount":"1,234"}</script>`,
			want: domain.AggregateRating{Value: 2.125, Count: intPtr(1234)},
		},
		{
			name: "无人数",
			html: `<script type="application/ld+json">{"@type":"AggregateRating","ratingValue":"4.5"}</script>`,
			want: domain.AggregateRating{Value: 4.5},
		},
		{
			name: "HTML 实体编码的 payload",
			html: `<script type="application/ld+json">{&quot;@type&quot;:&quot;AggregateRating&quot;,&quot;ratingValue&quot;:&quot;4&quot;}</script>`,
			want: domain.AggregateRating{Value: 4},
		},
		{
			name: "第一个块 ratingValue 畸形时继续扫描后续块",
			html: `<script type="application/ld+json">{"@type":"AggregateRating","ratingValue":"n/a","ratingCount":"9"}</script>` +
				`<script type="application/ld+json">{"@type":"AggregateRating","ratingValue":"3.0","ratingCount":"10"}</script>`,
			want: domain.AggregateRating{Value: 3.0, Count: intPtr(10)},
		},
		{
			name: "跳过非 AggregateRating 块",
			html: `<script type="application/ld+json">{"@type":"Organization","ratingValue":"1.0"}</script>` +
				`<script type="application/ld+json">{"@type":"AggregateRating","ratingValue":"2.5"}</script>`,
			want: domain.AggregateRating{Value: 2.5},
		},
		{
			name: "无 JSON-LD 时回退到可见元素",
			html: `<html><body><div id="game-rating"><h1>4</h1></div></body></html>`,
			want: domain.AggregateRating{Value: 4.0},
		},
		{
			name: "结构化数据畸形时回退到可见元素",
			html: `<script type="application/ld+json">{"@type":"AggregateRating","ratingValue":"?"}</script>` +
				`<div id="game-rating"><span>Avg</span><h1> 3.8 </h1></div>`,
			want: domain.AggregateRating{Value: 3.8},
		},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			got, err := Parse([]byte(c.html))
			if err != nil {
				t.Fatalf("不期望错误：%v", err)
			}
			if diff := cmp.Diff(c.want, got); diff != "" {
				t.Fatalf("解析结果不符合预期（-want +got）：\n%s", diff)
			}
		})
	}
}

func TestParse_Failures(t *testing.T) {
	_, err := Parse([]byte("  \n\t "))
	var pe *domain.ParseError
	if !errors.As(err, &pe) || pe.Reason != domain.ParseEmpty {
		t.Fatalf("空白输入应返回 ParseEmpty，实际：%v", err)
	}

	_, err = Parse([]byte(`<html><body><div id="game-rating"><h1>N/A</h1></div></body></html>`))
	if !errors.As(err, &pe) || pe.Reason != domain.ParseNotFound {
		t.Fatalf("找不到评分应返回 ParseNotFound，实际：%v", err)
	}
	if !errors.Is(err, domain.ErrParse) {
		t.Fatalf("期望 errors.Is(err, ErrParse)")
	}

	_, err = Parse([]byte(`<h1>4.5</h1>`))
	if !errors.Is(err, domain.ErrParse) {
		t.Fatalf("不在 #game-rating 内的 h1 不应被采纳，实际：%v", err)
	}
}

func TestParseCount(t *testing.T) {
	n, err := ParseCount("1,234")
	if err != nil || n != 1234 {
		t.Fatalf("期望 1234，实际 n=%d err=%v", n, err)
	}
	if _, err := ParseCount("1.234"); err == nil {
		t.Fatalf("人数不接受小数点写法")
	}
	if _, err := ParseCount(""); err == nil {
		t.Fatalf("空字符串应报错")
	}
}
