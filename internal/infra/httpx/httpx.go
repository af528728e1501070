package httpx

import (
	"bufio"
	"compress/flate"
	"compress/gzip"
	"compress/zlib"
	"errors"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const (
	// DefaultTimeout 是单次请求（含重试）的总上限。
	DefaultTimeout  = 20 * time.Second
	defaultRetryMax = 1

	// UserAgent 是对外请求统一使用的描述性 UA。
	UserAgent = "BLCS/0.1 (+https://github.com/John-Robertt/BLCS)"
)

// Transport 把“固定 UA + gzip/deflate 协商 + 代理 + 有界重试”固化为统一策略。
//
// 设计目标：fetch/identity 只负责“发什么请求、怎么解读结果”，不关心网络策略细节。
type Transport struct {
	Base *http.Transport

	// UserAgent 为空时使用包级 UserAgent。
	UserAgent string

	// RetryMax 表示最大重试次数（不含首次尝试）。只对可重放请求生效。
	RetryMax int

	// Decompress 为 true 时主动声明 Accept-Encoding: gzip, deflate 并在返回前解码 body。
	Decompress bool

	// DisableKeepAlives 决定是否对 Request 设置 Close=true。
	DisableKeepAlives bool
}

func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	if req == nil {
		return nil, errors.New("nil request")
	}
	if t.Base == nil {
		return nil, errors.New("nil base transport")
	}

	// 只对“可重放”的请求做重试：GET/HEAD 且无 body。
	canRetry := (req.Method == http.MethodGet || req.Method == http.MethodHead) && req.Body == nil
	max := t.RetryMax
	if max < 0 || !canRetry {
		max = 0
	}

	var lastErr error
	for attempt := 0; attempt <= max; attempt++ {
		r := req.Clone(req.Context())
		if r.Header.Get("User-Agent") == "" {
			r.Header.Set("User-Agent", t.userAgent())
		}
		negotiated := false
		if t.Decompress && r.Header.Get("Accept-Encoding") == "" {
			r.Header.Set("Accept-Encoding", "gzip, deflate")
			negotiated = true
		}
		if t.DisableKeepAlives {
			r.Close = true
		}

		resp, err := t.Base.RoundTrip(r)
		if err == nil {
			if negotiated {
				if derr := decodeBody(resp); derr != nil {
					resp.Body.Close()
					return nil, derr
				}
			}
			return resp, nil
		}
		lastErr = err
		if req.Context().Err() != nil {
			return nil, lastErr
		}
	}
	return nil, lastErr
}

func (t *Transport) userAgent() string {
	if ua := strings.TrimSpace(t.UserAgent); ua != "" {
		return ua
	}
	return UserAgent
}

// decodeBody 按 Content-Encoding 原地替换 resp.Body。
// deflate 同时兼容 zlib 包装与裸 deflate 流（两种实现都常见）。
func decodeBody(resp *http.Response) error {
	enc := strings.ToLower(strings.TrimSpace(resp.Header.Get("Content-Encoding")))
	if enc == "" || enc == "identity" {
		return nil
	}
	if resp.Body == nil || resp.Body == http.NoBody {
		return nil
	}

	var rc io.ReadCloser
	switch enc {
	case "gzip", "x-gzip":
		zr, err := gzip.NewReader(resp.Body)
		if err != nil {
			return err
		}
		rc = zr
	case "deflate":
		br := bufio.NewReader(resp.Body)
		if looksLikeZlib(br) {
			zr, err := zlib.NewReader(br)
			if err != nil {
				return err
			}
			rc = zr
		} else {
			rc = flate.NewReader(br)
		}
	default:
		// 未协商的编码：原样返回，让上层解析失败更可解释。
		return nil
	}

	resp.Body = &decodedBody{r: rc, orig: resp.Body}
	resp.Header.Del("Content-Encoding")
	resp.Header.Del("Content-Length")
	resp.ContentLength = -1
	resp.Uncompressed = true
	return nil
}

func looksLikeZlib(br *bufio.Reader) bool {
	h, err := br.Peek(2)
	if err != nil || len(h) < 2 {
		return false
	}
	return h[0]&0x0f == 8 && (uint16(h[0])<<8|uint16(h[1]))%31 == 0
}

type decodedBody struct {
	r    io.ReadCloser
	orig io.ReadCloser
}

func (b *decodedBody) Read(p []byte) (int, error) { return b.r.Read(p) }

func (b *decodedBody) Close() error {
	err := b.r.Close()
	if cerr := b.orig.Close(); err == nil {
		err = cerr
	}
	return err
}

// NewSourceClient 构造抓取评分页面的 HTTP client。
//
// 规则：
// - 固定描述性 UA；主动协商 gzip/deflate
// - GET 有界重试（1 次）；总超时 timeout（<=0 时用 DefaultTimeout）
// - proxyURL 非空：必须走代理，且禁用 keep-alive
func NewSourceClient(proxyURL string, timeout time.Duration) (*http.Client, error) {
	return newClient(strings.TrimSpace(proxyURL), timeout, defaultRetryMax, true)
}

// NewAPIClient 构造调用 JSON API（身份匹配服务）的 HTTP client。
// POST 不会被重试；压缩交给 net/http 默认行为。
func NewAPIClient(proxyURL string, timeout time.Duration) (*http.Client, error) {
	return newClient(strings.TrimSpace(proxyURL), timeout, 0, false)
}

func newClient(proxyURL string, timeout time.Duration, retryMax int, decompress bool) (*http.Client, error) {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	base := &http.Transport{
		Proxy:                 nil,
		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: 15 * time.Second,
	}

	disableKeepAlives := false
	if proxyURL != "" {
		u, err := url.Parse(proxyURL)
		if err != nil {
			return nil, err
		}
		base.Proxy = http.ProxyURL(u)
		base.DisableKeepAlives = true
		disableKeepAlives = true
	}

	tr := &Transport{
		Base:              base,
		RetryMax:          retryMax,
		Decompress:        decompress,
		DisableKeepAlives: disableKeepAlives,
	}
	return &http.Client{
		Transport: tr,
		Timeout:   timeout,
	}, nil
}
