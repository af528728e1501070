package fetch

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/sync/semaphore"

	"github.com/John-Robertt/BLCS/internal/domain"
	"github.com/John-Robertt/BLCS/internal/infra/cache"
	"github.com/John-Robertt/BLCS/internal/infra/httpx"
	"github.com/John-Robertt/BLCS/internal/rating"
)

// maxPageBytes 是单个评分页允许读取的上限。
const maxPageBytes = 8 << 20

var tracer = otel.Tracer("blcs/fetch")

// Doer 是发出 HTTP 请求的最小接口（*http.Client 满足）。
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Client 抓取并解析 Backloggd 评分页。
//
// 约束：
// - 整个进程同一时刻最多一个对外页面请求（全局闸门，不区分 URL）
// - 缓存只写入解析成功的结果；失败不缓存，下次调用会重新请求
// - 同一 URL 的并发调用：闸门内二次查缓存，保证只打一次网络
// - ctx 只约束“等待闸门”；拿到闸门后请求不会被中途取消
type Client struct {
	doer   Doer
	cache  *cache.Store[domain.AggregateRating]
	gate   *semaphore.Weighted
	logger *slog.Logger
	base   string
}

type Options struct {
	// Doer 为空时使用 httpx.NewSourceClient("", 0)。
	Doer Doer
	// Cache 为空时新建（进程内，随 Client 存活）。
	Cache  *cache.Store[domain.AggregateRating]
	Logger *slog.Logger

	// BaseURL 非空时替换请求 URL 的 scheme+host（镜像/测试用）；缓存 key 仍是规范 URL。
	BaseURL string
}

func New(opts Options) (*Client, error) {
	doer := opts.Doer
	if doer == nil {
		hc, err := httpx.NewSourceClient("", 0)
		if err != nil {
			return nil, err
		}
		doer = hc
	}
	store := opts.Cache
	if store == nil {
		store = cache.New[domain.AggregateRating]()
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		doer:   doer,
		cache:  store,
		gate:   semaphore.NewWeighted(1),
		logger: logger,
		base:   strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/"),
	}, nil
}

func (c *Client) requestURL(u domain.SourceURL) string {
	s := u.String()
	if c.base == "" {
		return s
	}
	return c.base + strings.TrimPrefix(s, "https://"+domain.SourceHost)
}

// Fetch 返回 url 对应页面上的评分。
//
// 错误：
// - url 为空：domain.ErrEmptyInput
// - 非 2xx：*domain.HTTPStatusError
// - 网络失败：*domain.TransportError
// - 页面无评分：*domain.ParseError
// - ctx 在等待闸门期间结束：ctx.Err()
func (c *Client) Fetch(ctx context.Context, url domain.SourceURL) (domain.AggregateRating, error) {
	if url.IsBlank() {
		return domain.AggregateRating{}, fmt.Errorf("%w：评分页 URL 为空", domain.ErrEmptyInput)
	}
	key := url.Key()
	if r, ok := c.cache.Get(key); ok {
		return r, nil
	}

	if err := c.gate.Acquire(ctx, 1); err != nil {
		return domain.AggregateRating{}, err
	}
	defer c.gate.Release(1)

	// 等闸门期间可能已有其他调用写入了同一 URL。
	if r, ok := c.cache.Get(key); ok {
		return r, nil
	}

	r, err := c.fetchAndParse(context.WithoutCancel(ctx), url)
	if err != nil {
		return domain.AggregateRating{}, err
	}
	c.cache.Set(key, r)
	c.logger.Debug("评分已缓存", "url", url.String(), "cached", c.cache.Len())
	return r, nil
}

func (c *Client) fetchAndParse(ctx context.Context, url domain.SourceURL) (domain.AggregateRating, error) {
	ctx, span := tracer.Start(ctx, "fetch:RatingPage")
	defer span.End()
	span.SetAttributes(attribute.String("blcs.url", url.String()))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.requestURL(url), nil)
	if err != nil {
		return domain.AggregateRating{}, &domain.TransportError{URL: url.String(), Cause: err}
	}
	req.Header.Set("Accept", "text/html,application/xhtml+xml")

	resp, err := c.doer.Do(req)
	if err != nil {
		c.logger.Warn("评分页请求失败", "url", url.String(), "error", err)
		span.RecordError(err)
		span.SetStatus(codes.Error, "request failed")
		return domain.AggregateRating{}, &domain.TransportError{URL: url.String(), Cause: err}
	}
	defer resp.Body.Close()

	span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
		span.SetStatus(codes.Error, "non-2xx")
		return domain.AggregateRating{}, &domain.HTTPStatusError{
			URL:        url.String(),
			StatusCode: resp.StatusCode,
			Location:   resp.Header.Get("Location"),
		}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxPageBytes))
	if err != nil {
		span.RecordError(err)
		return domain.AggregateRating{}, &domain.TransportError{URL: url.String(), Cause: err}
	}

	r, strategy, err := rating.ParseWith(body, rating.Strategies)
	if err != nil {
		span.SetStatus(codes.Error, "parse failed")
		return domain.AggregateRating{}, err
	}
	span.SetAttributes(attribute.String("blcs.strategy", strategy))
	return r, nil
}
