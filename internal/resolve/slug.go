package resolve

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var stripMarks = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// Slug 把显示名称确定性地转换为 Backloggd 风格的 slug。
//
// 规则：
// - 小写 + NFD 分解后去掉变音符号（é => e）
// - 保留 ASCII 字母/数字；其它连续字符折叠为单个 '-'
// - '&' 替换为 "and"，前后用 '-' 连接
// - 分解后仍是非 ASCII 的字母/数字直接丢弃（slug 只允许 ASCII）
// - 去掉首尾 '-'；结果可能为空
func Slug(name string) string {
	s := strings.ToLower(strings.TrimSpace(name))
	if s == "" {
		return ""
	}
	if t, _, err := transform.String(stripMarks, s); err == nil {
		s = t
	}

	var b strings.Builder
	b.Grow(len(s))
	sep := false // 末尾已是 '-'
	hyphen := func() {
		if !sep && b.Len() > 0 {
			b.WriteByte('-')
			sep = true
		}
	}

	for _, r := range s {
		switch {
		case r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r)):
			b.WriteRune(r)
			sep = false
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			// 非 ASCII 字母：丢弃，不当作分隔符。
		case r == '&':
			hyphen()
			b.WriteString("and")
			sep = false
			hyphen()
		default:
			hyphen()
		}
	}
	return strings.Trim(b.String(), "-")
}
