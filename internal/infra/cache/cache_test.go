package cache

import (
	"strconv"
	"sync"
	"testing"
)

func TestStore_CaseInsensitiveKeys(t *testing.T) {
	s := New[int]()
	s.Set("https://www.backloggd.com/games/Hades/", 1)

	v, ok := s.Get("HTTPS://WWW.BACKLOGGD.COM/games/hades/")
	if !ok {
		t.Fatalf("期望命中缓存，但 ok=false")
	}
	if v != 1 {
		t.Fatalf("期望 1，实际 %d", v)
	}

	s.Set(" https://www.backloggd.com/games/hades/ ", 2)
	if v, _ := s.Get("https://www.backloggd.com/games/hades/"); v != 2 {
		t.Fatalf("同 key 后写应覆盖先写，实际 %d", v)
	}
	if s.Len() != 1 {
		t.Fatalf("期望 1 个条目，实际 %d", s.Len())
	}
}

func TestStore_Miss(t *testing.T) {
	var s Store[string]
	if _, ok := s.Get("nope"); ok {
		t.Fatalf("空缓存不应命中")
	}
	s.Set("k", "v")
	if v, ok := s.Get("K"); !ok || v != "v" {
		t.Fatalf("零值 Store 也应可写：v=%q ok=%v", v, ok)
	}
}

func TestStore_ConcurrentAccess(t *testing.T) {
	s := New[int]()
	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			k := "k" + strconv.Itoa(i%4)
			s.Set(k, i)
			_, _ = s.Get(k)
		}(i)
	}
	wg.Wait()
	if s.Len() != 4 {
		t.Fatalf("期望 4 个 key，实际 %d", s.Len())
	}
}
