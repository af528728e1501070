package domain

import (
	"fmt"
	"regexp"
	"strings"
)

// SourceHost 是评分来源站点的规范 host。
const SourceHost = "www.backloggd.com"

// SourceURL 是规范化后的 Backloggd 游戏页 URL：https://www.backloggd.com/games/<slug>/
//
// 约束：slug 小写，只含 ASCII 字母/数字/连字符，且必须以 '/' 结尾。
type SourceURL string

var slugRE = regexp.MustCompile(`^[a-z0-9]+(?:-+[a-z0-9]+)*$`)

// NewSourceURL 由 slug 构造 SourceURL（slug 会先 trim + 小写）。
func NewSourceURL(slug string) (SourceURL, error) {
	slug = strings.ToLower(strings.TrimSpace(slug))
	if slug == "" {
		return "", fmt.Errorf("slug 不能为空")
	}
	if !slugRE.MatchString(slug) {
		return "", fmt.Errorf("非法 slug：%q", slug)
	}
	return SourceURL("https://" + SourceHost + "/games/" + slug + "/"), nil
}

func (u SourceURL) String() string { return string(u) }

// Key 是缓存 key：两个 SourceURL 只要大小写不敏感相等就视为同一条目。
func (u SourceURL) Key() string {
	return strings.ToLower(strings.TrimSpace(string(u)))
}

// IsBlank 判断是否为空白 URL。
func (u SourceURL) IsBlank() bool { return strings.TrimSpace(string(u)) == "" }
