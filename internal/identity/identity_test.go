package identity

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/John-Robertt/BLCS/internal/domain"
	"github.com/John-Robertt/BLCS/internal/infra/cache"
)

func newTestClient(t *testing.T, srv *httptest.Server, store *cache.Store[string]) *Client {
	t.Helper()
	c, err := New(Options{BaseURL: srv.URL, HTTPClient: srv.Client(), Cache: store})
	if err != nil {
		t.Fatalf("New 失败：%v", err)
	}
	return c
}

func year(y int) *int { return &y }

func TestLookup_PostsIdentityAndCachesURL(t *testing.T) {
	var hits atomic.Int32
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		if r.Method != http.MethodPost || r.URL.Path != "/identity/metadata" {
			t.Errorf("期望 POST /identity/metadata，实际 %s %s", r.Method, r.URL.Path)
		}
		b, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(b, &got)
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"data":{"url":"https://www.igdb.com/games/hollow-knight"}}`)
	}))
	defer srv.Close()

	c := newTestClient(t, srv, nil)
	id := domain.GameIdentity{Name: "Hollow Knight", ReleaseYear: year(2017), GameID: "hk"}

	for i := 0; i < 2; i++ {
		u, err := c.Lookup(context.Background(), id)
		if err != nil {
			t.Fatalf("第 %d 次 Lookup 失败：%v", i+1, err)
		}
		if u != "https://www.igdb.com/games/hollow-knight" {
			t.Fatalf("URL 不符：%q", u)
		}
	}
	if hits.Load() != 1 {
		t.Fatalf("期望只请求一次，实际 %d", hits.Load())
	}

	want := map[string]any{
		"name":        "Hollow Knight",
		"releaseYear": float64(2017),
		"libraryId":   nil,
		"gameId":      "hk",
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("请求体不符 (-want +got):\n%s", diff)
	}

	// 名称大小写不同的同一游戏走缓存。
	if _, err := c.Lookup(context.Background(), domain.GameIdentity{Name: "  hollow knight ", ReleaseYear: year(2017), GameID: "hk"}); err != nil {
		t.Fatalf("缓存命中失败：%v", err)
	}
	if hits.Load() != 1 {
		t.Fatalf("期望缓存命中，实际请求 %d 次", hits.Load())
	}
}

func TestLookup_UnknownYearSentAsZero(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(b, &got)
		_, _ = io.WriteString(w, `{"data":{"url":"https://www.igdb.com/games/celeste"}}`)
	}))
	defer srv.Close()

	c := newTestClient(t, srv, nil)
	if _, err := c.Lookup(context.Background(), domain.GameIdentity{Name: "Celeste", LibraryID: "lib"}); err != nil {
		t.Fatalf("Lookup 失败：%v", err)
	}
	want := map[string]any{
		"name":        "Celeste",
		"releaseYear": float64(0),
		"libraryId":   "lib",
		"gameId":      nil,
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("请求体不符 (-want +got):\n%s", diff)
	}
}

func TestLookup_RequestNotCanceledMidFlight(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		cancel()
		time.Sleep(100 * time.Millisecond)
		_, _ = io.WriteString(w, `{"data":{"url":"https://www.igdb.com/games/hades"}}`)
	}))
	defer srv.Close()

	c := newTestClient(t, srv, nil)
	id := domain.GameIdentity{Name: "Hades"}
	u, err := c.Lookup(ctx, id)
	if err != nil || u != "https://www.igdb.com/games/hades" {
		t.Fatalf("请求开始后取消 ctx 不应中断请求：u=%q err=%v", u, err)
	}

	// 结果应已缓存为真实 URL，而不是哨兵。
	u, err = c.Lookup(context.Background(), id)
	if err != nil || u != "https://www.igdb.com/games/hades" {
		t.Fatalf("第二次应命中缓存的 URL：u=%q err=%v", u, err)
	}
	if hits.Load() != 1 {
		t.Fatalf("期望只请求一次，实际 %d", hits.Load())
	}
}

func TestLookup_EmptyNameSkipsNetwork(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
	}))
	defer srv.Close()

	store := cache.New[string]()
	c := newTestClient(t, srv, store)
	_, err := c.Lookup(context.Background(), domain.GameIdentity{Name: "   "})
	if !errors.Is(err, domain.ErrEmptyInput) {
		t.Fatalf("期望 ErrEmptyInput，实际 %v", err)
	}
	if hits.Load() != 0 || store.Len() != 0 {
		t.Fatalf("空名称不应访问网络或缓存：hits=%d cache=%d", hits.Load(), store.Len())
	}
}

func TestLookup_FailuresCacheSentinel(t *testing.T) {
	cases := []struct {
		name    string
		handler http.HandlerFunc
		check   func(t *testing.T, err error)
	}{
		{
			name: "non_2xx",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusServiceUnavailable)
			},
			check: func(t *testing.T, err error) {
				var se *domain.HTTPStatusError
				if !errors.As(err, &se) || se.StatusCode != http.StatusServiceUnavailable {
					t.Fatalf("期望 HTTPStatusError(503)，实际 %v", err)
				}
			},
		},
		{
			name: "missing_url",
			handler: func(w http.ResponseWriter, r *http.Request) {
				_, _ = io.WriteString(w, `{"data":{}}`)
			},
			check: func(t *testing.T, err error) {
				if !errors.Is(err, domain.ErrNoMatch) {
					t.Fatalf("期望 ErrNoMatch，实际 %v", err)
				}
			},
		},
		{
			name: "not_json",
			handler: func(w http.ResponseWriter, r *http.Request) {
				_, _ = io.WriteString(w, `<html>oops</html>`)
			},
			check: func(t *testing.T, err error) {
				if !errors.Is(err, domain.ErrNoMatch) {
					t.Fatalf("期望 ErrNoMatch，实际 %v", err)
				}
			},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var hits atomic.Int32
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				hits.Add(1)
				tc.handler(w, r)
			}))
			defer srv.Close()

			store := cache.New[string]()
			c := newTestClient(t, srv, store)
			id := domain.GameIdentity{Name: "Obscure Game"}

			_, err := c.Lookup(context.Background(), id)
			tc.check(t, err)

			if v, ok := store.Get(CacheKey(id)); !ok || v != NoURL {
				t.Fatalf("期望缓存哨兵 %q，实际 %q ok=%v", NoURL, v, ok)
			}
			_, err = c.Lookup(context.Background(), id)
			if !errors.Is(err, domain.ErrNoMatch) {
				t.Fatalf("第二次应命中哨兵返回 ErrNoMatch，实际 %v", err)
			}
			if hits.Load() != 1 {
				t.Fatalf("期望只请求一次，实际 %d", hits.Load())
			}
		})
	}
}

func TestLookup_TransportFailureCachesSentinel(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	base := srv.URL
	hc := srv.Client()
	srv.Close()

	store := cache.New[string]()
	c, err := New(Options{BaseURL: base, HTTPClient: hc, Cache: store})
	if err != nil {
		t.Fatalf("New 失败：%v", err)
	}
	id := domain.GameIdentity{Name: "Offline"}
	_, err = c.Lookup(context.Background(), id)
	var te *domain.TransportError
	if !errors.As(err, &te) {
		t.Fatalf("期望 TransportError，实际 %v", err)
	}
	if v, _ := store.Get(CacheKey(id)); v != NoURL {
		t.Fatalf("期望缓存哨兵，实际 %q", v)
	}
}

func TestNew_CustomPath(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/igdb/metadata" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		_, _ = io.WriteString(w, `{"data":{"url":"https://www.igdb.com/games/celeste"}}`)
	}))
	defer srv.Close()

	c, err := New(Options{BaseURL: srv.URL + "/api", Path: "/igdb/metadata", HTTPClient: srv.Client()})
	if err != nil {
		t.Fatalf("New 失败：%v", err)
	}
	u, err := c.Lookup(context.Background(), domain.GameIdentity{Name: "Celeste"})
	if err != nil || u != "https://www.igdb.com/games/celeste" {
		t.Fatalf("自定义路径失败：u=%q err=%v", u, err)
	}
}

func TestCacheKey(t *testing.T) {
	got := CacheKey(domain.GameIdentity{Name: " Celeste ", ReleaseYear: year(2018), LibraryID: "lib", GameID: "g1"})
	if got != "Celeste|2018|lib|g1" {
		t.Fatalf("key 不符：%q", got)
	}
	if got := CacheKey(domain.GameIdentity{Name: "Celeste"}); got != "Celeste|0||" {
		t.Fatalf("无年份 key 不符：%q", got)
	}
}
