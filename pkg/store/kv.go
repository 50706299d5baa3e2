package store

import (
	"context"
	"sync"
)

// KV is the persistence seam behind every protocol store. Iterate visits
// entries in first-insertion order; overwriting an id keeps its position.
type KV[T any] interface {
	Get(ctx context.Context, id string) (T, bool, error)
	Put(ctx context.Context, id string, v T) error
	Iterate(ctx context.Context, fn func(id string, v T) bool) error
	Len(ctx context.Context) (int, error)
}

type Memory[T any] struct {
	mu    sync.RWMutex
	order []string
	items map[string]T
}

func NewMemory[T any]() *Memory[T] {
	return &Memory[T]{items: make(map[string]T)}
}

func (m *Memory[T]) Get(_ context.Context, id string) (T, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.items[id]
	return v, ok, nil
}

func (m *Memory[T]) Put(_ context.Context, id string, v T) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.items[id]; !ok {
		m.order = append(m.order, id)
	}
	m.items[id] = v
	return nil
}

func (m *Memory[T]) Iterate(ctx context.Context, fn func(id string, v T) bool) error {
	m.mu.RLock()
	ids := make([]string, len(m.order))
	copy(ids, m.order)
	m.mu.RUnlock()

	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return err
		}
		m.mu.RLock()
		v, ok := m.items[id]
		m.mu.RUnlock()
		if !ok {
			continue
		}
		if !fn(id, v) {
			return nil
		}
	}
	return nil
}

func (m *Memory[T]) Len(_ context.Context) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.items), nil
}

// Collect drains a KV into a slice in iteration order.
func Collect[T any](ctx context.Context, kv KV[T]) ([]T, error) {
	var out []T
	err := kv.Iterate(ctx, func(_ string, v T) bool {
		out = append(out, v)
		return true
	})
	return out, err
}
