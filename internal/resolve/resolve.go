package resolve

import (
	"context"
	"log/slog"
	"net/url"
	"strings"

	"github.com/John-Robertt/BLCS/internal/domain"
)

const (
	StageDirect         = "direct"
	StageIGDBLink       = "igdb_link"
	StageIdentityLookup = "identity_lookup"
	StageNameSlug       = "name_slug"
)

// IdentityMatcher 把游戏身份映射为 IGDB 游戏页 URL（由 identity.Client 实现）。
type IdentityMatcher interface {
	Lookup(ctx context.Context, g domain.GameIdentity) (string, error)
}

// Attempt 记录解析链上的一步（用于解释最终 URL 的来源）。
type Attempt struct {
	Stage string
	URL   string // 该步得到的 URL；失败时为空
	Err   error  // 仅 identity_lookup 可能非空
}

// Resolver 按固定优先级推导 Backloggd URL：
//  1. 现有链接中的 Backloggd 游戏页
//  2. 现有链接中的 IGDB 游戏页（换成 Backloggd URL）
//  3. 身份匹配服务返回的 IGDB 游戏页（仅当 1、2 都没有可用链接）
//  4. 由游戏名生成的 slug
//
// “找不到”是常见情况，不是错误，也不打 warning 日志。
type Resolver struct {
	Matcher IdentityMatcher // 可为 nil：跳过第 3 步
	Logger  *slog.Logger
}

func (r Resolver) logger() *slog.Logger {
	if r.Logger != nil {
		return r.Logger
	}
	return slog.Default()
}

// Resolve 返回规范化后的 SourceURL；ok=false 表示无法解析。
func (r Resolver) Resolve(ctx context.Context, g domain.GameIdentity) (domain.SourceURL, bool) {
	u, _, ok := r.ResolveTrace(ctx, g)
	return u, ok
}

// ResolveTrace 与 Resolve 相同，但额外返回每一步的尝试记录。
func (r Resolver) ResolveTrace(ctx context.Context, g domain.GameIdentity) (domain.SourceURL, []Attempt, bool) {
	var attempts []Attempt

	for _, l := range g.Links {
		if u, ok := NormalizeBackloggdURL(l.URL); ok {
			attempts = append(attempts, Attempt{Stage: StageDirect, URL: string(u)})
			return u, attempts, true
		}
	}
	attempts = append(attempts, Attempt{Stage: StageDirect})

	for _, l := range g.Links {
		if !IsIGDBURL(l.URL) {
			continue
		}
		// 只看第一个 IGDB 链接；它不是游戏页则本步失败。
		if u, ok := ConvertIGDBURL(l.URL); ok {
			attempts = append(attempts, Attempt{Stage: StageIGDBLink, URL: string(u)})
			return u, attempts, true
		}
		break
	}
	attempts = append(attempts, Attempt{Stage: StageIGDBLink})

	if r.Matcher != nil && strings.TrimSpace(g.Name) != "" {
		igdbURL, err := r.Matcher.Lookup(ctx, g)
		if err == nil {
			if u, ok := ConvertIGDBURL(igdbURL); ok {
				attempts = append(attempts, Attempt{Stage: StageIdentityLookup, URL: string(u)})
				return u, attempts, true
			}
		} else {
			r.logger().Debug("身份匹配未命中", "game", g.DisplayName(), "error", err)
		}
		attempts = append(attempts, Attempt{Stage: StageIdentityLookup, Err: err})
	}

	if slug := Slug(g.Name); slug != "" {
		if u, err := domain.NewSourceURL(slug); err == nil {
			attempts = append(attempts, Attempt{Stage: StageNameSlug, URL: string(u)})
			return u, attempts, true
		}
	}
	attempts = append(attempts, Attempt{Stage: StageNameSlug})
	return "", attempts, false
}

// NormalizeBackloggdURL 识别 *.backloggd.com/games/<slug>/... 并规范化为 SourceURL。
func NormalizeBackloggdURL(raw string) (domain.SourceURL, bool) {
	u, ok := parseAbs(raw)
	if !ok || !hostIs(u.Hostname(), "backloggd.com", true) {
		return "", false
	}
	return fromGamesPath(u)
}

// IsIGDBURL 判断是否为 igdb.com / www.igdb.com 的链接。
func IsIGDBURL(raw string) bool {
	u, ok := parseAbs(raw)
	if !ok {
		return false
	}
	h := strings.ToLower(u.Hostname())
	return h == "igdb.com" || h == "www.igdb.com"
}

// ConvertIGDBURL 把 https://www.igdb.com/games/<slug> 转为同 slug 的 Backloggd URL。
func ConvertIGDBURL(raw string) (domain.SourceURL, bool) {
	if !IsIGDBURL(raw) {
		return "", false
	}
	u, _ := parseAbs(raw)
	return fromGamesPath(u)
}

func parseAbs(raw string) (*url.URL, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, false
	}
	u, err := url.Parse(raw)
	if err != nil || !u.IsAbs() || u.Host == "" {
		return nil, false
	}
	return u, true
}

// hostIs：host 等于 domain，或（allowSub 时）是其子域名。
func hostIs(host, domainName string, allowSub bool) bool {
	host = strings.ToLower(strings.TrimSuffix(host, "."))
	if host == domainName {
		return true
	}
	return allowSub && strings.HasSuffix(host, "."+domainName)
}

func fromGamesPath(u *url.URL) (domain.SourceURL, bool) {
	segs := strings.Split(strings.Trim(u.Path, "/"), "/")
	if len(segs) < 2 || !strings.EqualFold(segs[0], "games") {
		return "", false
	}
	su, err := domain.NewSourceURL(segs[1])
	if err != nil {
		return "", false
	}
	return su, true
}
