package identity

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-resty/resty/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/John-Robertt/BLCS/internal/domain"
	"github.com/John-Robertt/BLCS/internal/infra/cache"
	"github.com/John-Robertt/BLCS/internal/infra/httpx"
)

const (
	DefaultBaseURL = "https://api2.playnite.link/api/"
	DefaultPath    = "identity/metadata"

	// NoURL 是“已查询过但没有结果”的缓存哨兵，避免重复打网络。
	NoURL = "<none>"
)

var tracer = otel.Tracer("blcs/identity")

// Client 调用第三方身份匹配服务，把游戏名/年份/库 ID 映射为 IGDB 游戏页 URL。
//
// 约束：
// - 任何网络访问前都先查缓存；失败（非 2xx/无 URL/网络错误）同样缓存为 NoURL
// - 不做重试、不做串行化：不同 key 可以并发请求；同 key 竞争只是重复劳动
// - 请求发出后不会被调用方 ctx 中途取消
// - releaseYear 未知时发送 0（与缓存 key 一致）
type Client struct {
	http     *resty.Client
	path     string
	endpoint string
	cache    *cache.Store[string]
	logger   *slog.Logger
}

type Options struct {
	BaseURL string // 为空时使用 DefaultBaseURL
	Path    string // 为空时使用 DefaultPath

	// HTTPClient 为空时使用 httpx.NewAPIClient("", 0)。
	HTTPClient *http.Client
	// Cache 为空时新建（进程内，随 Client 存活）。
	Cache  *cache.Store[string]
	Logger *slog.Logger
}

func New(opts Options) (*Client, error) {
	base := strings.TrimSpace(opts.BaseURL)
	if base == "" {
		base = DefaultBaseURL
	}
	if !strings.HasSuffix(base, "/") {
		base += "/"
	}
	path := strings.TrimLeft(strings.TrimSpace(opts.Path), "/")
	if path == "" {
		path = DefaultPath
	}

	hc := opts.HTTPClient
	if hc == nil {
		c, err := httpx.NewAPIClient("", 0)
		if err != nil {
			return nil, err
		}
		hc = c
	}
	store := opts.Cache
	if store == nil {
		store = cache.New[string]()
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	rc := resty.NewWithClient(hc).
		SetBaseURL(base).
		SetHeader("User-Agent", httpx.UserAgent).
		SetHeader("Accept", "application/json")

	return &Client{
		http:     rc,
		path:     path,
		endpoint: base + path,
		cache:    store,
		logger:   logger,
	}, nil
}

type metadataRequest struct {
	LibraryID   *string `json:"libraryId"`
	GameID      *string `json:"gameId"`
	Name        string  `json:"name"`
	ReleaseYear int     `json:"releaseYear"`
}

type metadataResponse struct {
	Data *struct {
		URL string `json:"url"`
	} `json:"data"`
}

// CacheKey 返回身份缓存 key：name(trim)|releaseYear|libraryId|gameId（比较时大小写不敏感）。
func CacheKey(g domain.GameIdentity) string {
	return strings.Join([]string{
		strings.TrimSpace(g.Name),
		strconv.Itoa(g.Year()),
		strings.TrimSpace(g.LibraryID),
		strings.TrimSpace(g.GameID),
	}, "|")
}

// Lookup 返回匹配到的 IGDB 游戏页 URL。
//
// 错误：
// - 名称为空：domain.ErrEmptyInput（不查缓存、不打网络）
// - 服务无结果（含缓存的 NoURL）：domain.ErrNoMatch
// - 非 2xx：*domain.HTTPStatusError
// - 网络失败：*domain.TransportError
func (c *Client) Lookup(ctx context.Context, g domain.GameIdentity) (string, error) {
	name := strings.TrimSpace(g.Name)
	if name == "" {
		return "", fmt.Errorf("%w：游戏名为空", domain.ErrEmptyInput)
	}

	key := CacheKey(g)
	if v, ok := c.cache.Get(key); ok {
		if v == NoURL {
			return "", domain.ErrNoMatch
		}
		return v, nil
	}

	ctx, span := tracer.Start(ctx, "identity:Lookup")
	defer span.End()
	span.SetAttributes(attribute.String("blcs.cache_key", key))

	body := metadataRequest{
		LibraryID:   optional(g.LibraryID),
		GameID:      optional(g.GameID),
		Name:        g.Name,
		ReleaseYear: g.Year(),
	}
	// 请求发出后不随调用方 ctx 取消。
	res, err := c.http.R().
		SetContext(context.WithoutCancel(ctx)).
		SetBody(body).
		Post(c.path)
	if err != nil {
		c.cache.Set(key, NoURL)
		c.logger.Warn("身份匹配请求失败", "game", name, "url", c.endpoint, "error", err)
		span.RecordError(err)
		span.SetStatus(codes.Error, "request failed")
		return "", &domain.TransportError{URL: c.endpoint, Cause: err}
	}

	if !res.IsSuccess() {
		c.cache.Set(key, NoURL)
		c.logger.Warn("身份匹配返回非 2xx", "game", name, "url", c.endpoint, "status", res.StatusCode())
		span.SetStatus(codes.Error, "non-2xx")
		return "", &domain.HTTPStatusError{URL: c.endpoint, StatusCode: res.StatusCode()}
	}

	var parsed metadataResponse
	if err := json.Unmarshal(res.Body(), &parsed); err != nil || parsed.Data == nil || strings.TrimSpace(parsed.Data.URL) == "" {
		c.cache.Set(key, NoURL)
		return "", domain.ErrNoMatch
	}

	u := strings.TrimSpace(parsed.Data.URL)
	c.cache.Set(key, u)
	c.logger.Debug("身份匹配命中", "game", name, "url", u, "cached", c.cache.Len())
	return u, nil
}

func optional(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}
