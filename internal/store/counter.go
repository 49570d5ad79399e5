package store

import (
	"context"
	"sync"
	"time"
)

// ==================== 计数存储 ====================

// CounterStore 带过期的计数/标记存储
// 熔断器的日频计数与冷却标记都走这里；生产用 Redis，测试用内存实现
type CounterStore interface {
	// Incr 自增并返回新值；key 不存在时创建并设置 ttl，已存在时不刷新 ttl
	Incr(ctx context.Context, key string, ttl time.Duration) (int64, error)
	GetCount(ctx context.Context, key string) (int64, error)

	// SetWithTTL 写入带过期的标记值
	SetWithTTL(ctx context.Context, key, value string, ttl time.Duration) error
	Get(ctx context.Context, key string) (string, bool, error)
	Delete(ctx context.Context, key string) error
}

// ==================== 内存实现 ====================

type memoryEntry struct {
	value     string
	count     int64
	expiresAt time.Time
}

// MemoryCounterStore 进程内实现，sync.Map + 懒删除
type MemoryCounterStore struct {
	entries sync.Map // key -> *memoryEntry
	mu      sync.Mutex
}

// NewMemoryCounterStore 创建内存计数存储
func NewMemoryCounterStore() *MemoryCounterStore {
	return &MemoryCounterStore{}
}

func (s *MemoryCounterStore) load(key string) (*memoryEntry, bool) {
	val, ok := s.entries.Load(key)
	if !ok {
		return nil, false
	}
	entry := val.(*memoryEntry)
	if time.Now().After(entry.expiresAt) {
		s.entries.Delete(key) // 懒删除
		return nil, false
	}
	return entry, true
}

func (s *MemoryCounterStore) Incr(_ context.Context, key string, ttl time.Duration) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.load(key)
	if !ok {
		entry = &memoryEntry{expiresAt: time.Now().Add(ttl)}
		s.entries.Store(key, entry)
	}
	entry.count++
	return entry.count, nil
}

func (s *MemoryCounterStore) GetCount(_ context.Context, key string) (int64, error) {
	entry, ok := s.load(key)
	if !ok {
		return 0, nil
	}
	return entry.count, nil
}

func (s *MemoryCounterStore) SetWithTTL(_ context.Context, key, value string, ttl time.Duration) error {
	s.entries.Store(key, &memoryEntry{
		value:     value,
		expiresAt: time.Now().Add(ttl),
	})
	return nil
}

func (s *MemoryCounterStore) Get(_ context.Context, key string) (string, bool, error) {
	entry, ok := s.load(key)
	if !ok {
		return "", false, nil
	}
	return entry.value, true, nil
}

func (s *MemoryCounterStore) Delete(_ context.Context, key string) error {
	s.entries.Delete(key)
	return nil
}
