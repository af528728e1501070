package provider

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/John-Robertt/BLCS/internal/domain"
	"github.com/John-Robertt/BLCS/internal/score"
	"github.com/John-Robertt/BLCS/internal/textmerge"
)

// Lookuper 查询单个游戏的评分（由 score.Service 实现）。
type Lookuper interface {
	Lookup(ctx context.Context, g domain.GameIdentity) (domain.AggregateRating, domain.SourceURL, error)
}

// Settings 控制注记行写到哪些文本字段。
type Settings struct {
	WriteDescription bool
	WriteNotes       bool
}

// Request 是宿主对单个游戏的一次元数据请求。
type Request struct {
	Game domain.GameIdentity
	// Description/Notes 是宿主当前的文本，用于合并注记行。
	Description string
	Notes       string
}

// Provider 按宿主的字段粒度提供评分相关元数据。
//
// 约束：
// - 每个 Provider 最多查询一次（无论成功与否），后续字段复用同一结果
// - 查询失败时所有字段都“不可用”，宿主保留原值
// - 并发安全
type Provider struct {
	svc      Lookuper
	req      Request
	settings Settings
	logger   *slog.Logger

	once   sync.Once
	rating domain.AggregateRating
	url    domain.SourceURL
	ok     bool
	err    error
}

func New(svc Lookuper, req Request, settings Settings, logger *slog.Logger) *Provider {
	if logger == nil {
		logger = slog.Default()
	}
	return &Provider{svc: svc, req: req, settings: settings, logger: logger}
}

func (p *Provider) load(ctx context.Context) bool {
	p.once.Do(func() {
		if p.svc == nil {
			p.err = errors.New("provider 未配置评分服务")
			return
		}
		r, u, err := p.svc.Lookup(ctx, p.req.Game)
		p.url = u
		if err != nil {
			p.err = err
			p.logger.Debug("未获取到 Backloggd 评分", "game", p.req.Game.DisplayName(), "error", err)
			return
		}
		p.rating, p.ok = r, true
		p.logger.Info("已导入 Backloggd 社区评分",
			"game", p.req.Game.DisplayName(),
			"value", r.Value,
			"score", r.CommunityScore())
	})
	return p.ok
}

// Err 返回查询失败的原因；成功时为 nil。
func (p *Provider) Err(ctx context.Context) error {
	p.load(ctx)
	return p.err
}

// URL 返回已解析出的评分页 URL（抓取失败时也可能非空）。
func (p *Provider) URL(ctx context.Context) domain.SourceURL {
	p.load(ctx)
	return p.url
}

// Rating 返回原始评分与评分页 URL。
func (p *Provider) Rating(ctx context.Context) (domain.AggregateRating, domain.SourceURL, bool) {
	if !p.load(ctx) {
		return domain.AggregateRating{}, "", false
	}
	return p.rating, p.url, true
}

// CommunityScore 返回 0–100 的社区分。
func (p *Provider) CommunityScore(ctx context.Context) (int, bool) {
	if !p.load(ctx) {
		return 0, false
	}
	return score.CommunityScore(p.rating.Value), true
}

// Links 返回指向评分页的单个链接；不可用时返回 nil。
func (p *Provider) Links(ctx context.Context) []domain.Link {
	if !p.load(ctx) {
		return nil
	}
	return []domain.Link{{Name: score.LinkLabel(p.rating.Count), URL: p.url.String()}}
}

// Description 返回合并注记行后的描述；未开启、查询失败或页面没有评分人数时 ok=false。
func (p *Provider) Description(ctx context.Context) (string, bool) {
	if !p.settings.WriteDescription {
		return "", false
	}
	return p.merged(ctx, p.req.Description)
}

// Notes 与 Description 相同，但作用于备注字段。
func (p *Provider) Notes(ctx context.Context) (string, bool) {
	if !p.settings.WriteNotes {
		return "", false
	}
	return p.merged(ctx, p.req.Notes)
}

func (p *Provider) merged(ctx context.Context, existing string) (string, bool) {
	if !p.load(ctx) {
		return "", false
	}
	line := textmerge.BuildLine(p.rating.Count)
	if line == "" {
		return "", false
	}
	return textmerge.UpsertLineAtTop(existing, line), true
}
