package rating

import (
	"bytes"
	"html"
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/John-Robertt/BLCS/internal/domain"
)

// Strategy 是一种独立的评分提取方式：成功返回 (rating, true)。
//
// 约束：必须是纯函数；相同输入 => 相同输出。
type Strategy struct {
	Name    string
	Extract func(doc *goquery.Document) (domain.AggregateRating, bool)
}

// Strategies 是默认的提取链：结构化数据优先，其次页面可见元素。
var Strategies = []Strategy{
	{Name: "structured_data", Extract: structuredData},
	{Name: "visible_fallback", Extract: visibleFallback},
}

// Parse 把 Backloggd 游戏页 HTML 解析为聚合评分。
func Parse(page []byte) (domain.AggregateRating, error) {
	r, _, err := ParseWith(page, Strategies)
	return r, err
}

// ParseWith 按顺序尝试 strategies，返回第一个成功的结果与其名称。
func ParseWith(page []byte, strategies []Strategy) (domain.AggregateRating, string, error) {
	if len(bytes.TrimSpace(page)) == 0 {
		return domain.AggregateRating{}, "", &domain.ParseError{Reason: domain.ParseEmpty}
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(page))
	if err != nil {
		return domain.AggregateRating{}, "", err
	}

	for _, s := range strategies {
		if s.Extract == nil {
			continue
		}
		if r, ok := s.Extract(doc); ok {
			return r, s.Name, nil
		}
	}
	return domain.AggregateRating{}, "", &domain.ParseError{Reason: domain.ParseNotFound}
}

var (
	aggregateTypeRE = regexp.MustCompile(`(?i)"@type"\s*:\s*"AggregateRating"`)
	ratingValueRE   = regexp.MustCompile(`(?i)"ratingValue"\s*:\s*"?([0-9]+(?:\.[0-9]+)?)"?`)
	ratingCountRE   = regexp.MustCompile(`(?i)"ratingCount"\s*:\s*"?([0-9][0-9,]*)"?`)
	bareDecimalRE   = regexp.MustCompile(`^[0-9]+(?:\.[0-9]+)?$`)
)

// structuredData 扫描 JSON-LD 数据块（按文档顺序），取第一个声明 AggregateRating 且 ratingValue 可用的块。
//
// 只做模式匹配，不做 JSON 反序列化：AggregateRating 通常嵌在 VideoGame 等实体里，
// 且站点偶尔输出不严格的 JSON。
func structuredData(doc *goquery.Document) (domain.AggregateRating, bool) {
	var (
		out   domain.AggregateRating
		found bool
	)
	doc.Find(`script[type="application/ld+json"]`).EachWithBreak(func(_ int, s *goquery.Selection) bool {
		payload := html.UnescapeString(s.Text())
		if !aggregateTypeRE.MatchString(payload) {
			return true
		}
		value, ok := parseRatingValue(payload)
		if !ok {
			// ratingValue 缺失/畸形：继续看后面的块，而不是直接失败。
			return true
		}
		out = domain.NewAggregateRating(value, parseRatingCount(payload))
		found = true
		return false
	})
	return out, found
}

// visibleFallback 读取页面上 #game-rating 内的 <h1>（裸小数），没有人数信息。
func visibleFallback(doc *goquery.Document) (domain.AggregateRating, bool) {
	var (
		out   domain.AggregateRating
		found bool
	)
	doc.Find("#game-rating h1").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		text := strings.TrimSpace(s.Text())
		if !bareDecimalRE.MatchString(text) {
			return true
		}
		v, err := strconv.ParseFloat(text, 64)
		if err != nil {
			return true
		}
		out = domain.NewAggregateRating(v, nil)
		found = true
		return false
	})
	return out, found
}

// parseRatingValue 固定使用 '.' 作为小数点（与 locale 无关）。
func parseRatingValue(payload string) (float64, bool) {
	m := ratingValueRE.FindStringSubmatch(payload)
	if m == nil {
		return 0, false
	}
	v, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

// parseRatingCount 把 ',' 视为千分位分隔符；解析失败返回 nil（人数是可选的）。
func parseRatingCount(payload string) *int {
	m := ratingCountRE.FindStringSubmatch(payload)
	if m == nil {
		return nil
	}
	n, err := ParseCount(m[1])
	if err != nil {
		return nil
	}
	return &n
}

// ParseCount 解析带千分位逗号的非负整数，例如 "1,234" => 1234。
func ParseCount(s string) (int, error) {
	s = strings.ReplaceAll(strings.TrimSpace(s), ",", "")
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, err
	}
	if n < 0 {
		return 0, strconv.ErrRange
	}
	return n, nil
}
