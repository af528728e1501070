// Package textmerge 维护宿主文本字段（描述/备注）顶部的 "Backloggd Ratings: N" 注记行。
package textmerge

import (
	"regexp"
	"strings"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// Prefix 是注记行的固定前缀。
const Prefix = "Backloggd Ratings: "

var (
	leadingLineRE  = regexp.MustCompile(`(?i)^\s*Backloggd Ratings:\s*[\d,]+(?:\s*(?:<br\s*/?>|\r?\n))*`)
	leadingBreakRE = regexp.MustCompile(`(?i)^(?:\s|<br\s*/?>)+`)

	// 千分位固定用 ','，与运行环境的 locale 无关。
	printer = message.NewPrinter(language.English)
)

// FormatCount 返回带千分位的人数，例如 61732 => "61,732"。
func FormatCount(n int) string {
	return printer.Sprintf("%d", n)
}

// BuildLine 返回注记行；count 为 nil 时返回 ""（没有人数就不写注记）。
func BuildLine(count *int) string {
	if count == nil {
		return ""
	}
	return Prefix + FormatCount(*count)
}

// UpsertLineAtTop 把 line 放到 existing 的第一行。
//
// 约束：
// - existing 顶部已有的注记行（任意人数）会先被移除，因此重复执行结果不变
// - existing 看起来是 HTML 时用 "<br/><br/>" 分隔，否则用空行分隔
// - line 为空白时原样返回 existing
func UpsertLineAtTop(existing, line string) string {
	if strings.TrimSpace(line) == "" {
		return existing
	}

	text := leadingLineRE.ReplaceAllString(existing, "")
	text = leadingBreakRE.ReplaceAllString(text, "")
	if strings.TrimSpace(text) == "" {
		return line + "\n"
	}

	sep := "\n\n"
	if looksLikeHTML(text) {
		sep = "<br/><br/>"
	}
	return line + sep + text
}

func looksLikeHTML(s string) bool {
	s = strings.ToLower(s)
	return strings.Contains(s, "<br") || strings.Contains(s, "<p") || strings.Contains(s, "</")
}
