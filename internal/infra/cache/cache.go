package cache

import (
	"strings"
	"sync"
)

// Store 是进程内的并发安全缓存（key 大小写不敏感）。
//
// 约束：
// - 生命周期与持有者相同；不落盘、不过期、无容量上限
// - Get 只取读锁，不与写入方的“抓取闸门”互斥（闸门由调用方自行持有）
// - 同一 key 重复 Set 时后写覆盖先写
type Store[V any] struct {
	mu sync.RWMutex
	m  map[string]V
}

func New[V any]() *Store[V] {
	return &Store[V]{m: make(map[string]V)}
}

func normKey(key string) string {
	return strings.ToLower(strings.TrimSpace(key))
}

func (s *Store[V]) Get(key string) (V, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.m[normKey(key)]
	return v, ok
}

func (s *Store[V]) Set(key string, v V) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.m == nil {
		s.m = make(map[string]V)
	}
	s.m[normKey(key)] = v
}

func (s *Store[V]) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.m)
}
