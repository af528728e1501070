package score

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/John-Robertt/BLCS/internal/domain"
	"github.com/John-Robertt/BLCS/internal/textmerge"
)

// URLResolver 推导游戏的 Backloggd URL（由 resolve.Resolver 实现）。
type URLResolver interface {
	Resolve(ctx context.Context, g domain.GameIdentity) (domain.SourceURL, bool)
}

// Fetcher 抓取并解析评分页（由 fetch.Client 实现）。
type Fetcher interface {
	Fetch(ctx context.Context, url domain.SourceURL) (domain.AggregateRating, error)
}

// Service 把“解析 URL + 抓取评分”组合成一次查询。
//
// 约束：
// - 解析不到 URL 返回 domain.ErrResolutionFailed，不打 warning（这是常见情况）
// - 抓取/解析失败打 warning（带 game 与 url），错误原样向上返回
type Service struct {
	Resolver URLResolver
	Fetcher  Fetcher
	Logger   *slog.Logger
}

func (s *Service) logger() *slog.Logger {
	if s.Logger != nil {
		return s.Logger
	}
	return slog.Default()
}

// Lookup 返回游戏的评分与评分页 URL。
func (s *Service) Lookup(ctx context.Context, g domain.GameIdentity) (domain.AggregateRating, domain.SourceURL, error) {
	if s == nil || s.Resolver == nil || s.Fetcher == nil {
		return domain.AggregateRating{}, "", errors.New("score service 未初始化")
	}

	u, ok := s.Resolver.Resolve(ctx, g)
	if !ok {
		return domain.AggregateRating{}, "", fmt.Errorf("%w：%s", domain.ErrResolutionFailed, g.DisplayName())
	}

	r, err := s.Fetcher.Fetch(ctx, u)
	if err != nil {
		if !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
			s.logger().Warn("获取 Backloggd 评分失败", "game", g.DisplayName(), "url", u.String(), "error", err)
		}
		return domain.AggregateRating{}, u, err
	}
	return r, u, nil
}

// CommunityScore 把 0.0–5.0 的评分映射为 0–100 的整数分。
func CommunityScore(value float64) int {
	return domain.AggregateRating{Value: value}.CommunityScore()
}

// LinkLabel 返回链接名："Backloggd" 或 "Backloggd (1,234 ratings)"。
func LinkLabel(count *int) string {
	if count == nil {
		return "Backloggd"
	}
	return fmt.Sprintf("Backloggd (%s ratings)", textmerge.FormatCount(*count))
}
