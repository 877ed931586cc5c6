// Package store provides in-process KVStore implementations.
package store

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/warp/settlement-engine/generic"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

type Memory struct {
	mu      sync.RWMutex
	records map[string][]byte

	subMu       sync.Mutex
	subscribers map[int]chan string
	nextSub     int
}

func NewMemory() *Memory {
	return &Memory{
		records:     make(map[string][]byte),
		subscribers: make(map[int]chan string),
	}
}

var (
	_ generic.KVStore    = (*Memory)(nil)
	_ generic.ChangeFeed = (*Memory)(nil)
)

func (m *Memory) Get(_ context.Context, key string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	v, ok := m.records[key]
	if !ok {
		return nil, generic.ErrNotFound
	}
	out := make([]byte, len(v))
	copy(out, v)
	return out, nil
}

func (m *Memory) Put(_ context.Context, key string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	v := make([]byte, len(value))
	copy(v, value)
	m.records[key] = v
	return nil
}

func (m *Memory) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.records, key)
	return nil
}

func (m *Memory) List(_ context.Context, prefix string) (map[string][]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make(map[string][]byte)
	for k, v := range m.records {
		if strings.HasPrefix(k, prefix) {
			c := make([]byte, len(v))
			copy(c, v)
			out[k] = c
		}
	}
	return out, nil
}

// Keys returns all keys in sorted order.
func (m *Memory) Keys() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	keys := make([]string, 0, len(m.records))
	for k := range m.records {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// =============================================================================
// CHANGE FEED
// =============================================================================

// Publish fans the key out to every open subscription. Slow subscribers
// drop notifications rather than block the publisher.
func (m *Memory) Publish(_ context.Context, key string) error {
	m.subMu.Lock()
	defer m.subMu.Unlock()

	for _, ch := range m.subscribers {
		select {
		case ch <- key:
		default:
		}
	}
	return nil
}

func (m *Memory) Changes(ctx context.Context) (<-chan string, error) {
	m.subMu.Lock()
	id := m.nextSub
	m.nextSub++
	ch := make(chan string, 16)
	m.subscribers[id] = ch
	m.subMu.Unlock()

	go func() {
		<-ctx.Done()
		m.subMu.Lock()
		delete(m.subscribers, id)
		close(ch)
		m.subMu.Unlock()
	}()
	return ch, nil
}
