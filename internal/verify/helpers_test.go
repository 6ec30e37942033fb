// ABOUTME: Shared fixtures for verify tests: an in-memory document store, a fake clock and a test key.
// ABOUTME: The memory store can be told to fail writes to exercise rollback paths.

package verify

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/2389/lizi-tools/internal/seal"
	"github.com/2389/lizi-tools/internal/store"
)

var errDiskFull = errors.New("disk full")

type memStore struct {
	mu       sync.Mutex
	docs     map[string][]byte
	failSave bool
	lock     chan struct{}
}

func newMemStore() *memStore {
	return &memStore{docs: make(map[string][]byte), lock: make(chan struct{}, 1)}
}

func (m *memStore) Load(_ context.Context, name string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.docs[name]
	if !ok {
		return nil, store.ErrNotFound
	}
	return append([]byte(nil), data...), nil
}

func (m *memStore) Save(_ context.Context, name string, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failSave {
		return errDiskFull
	}
	m.docs[name] = append([]byte(nil), data...)
	return nil
}

// Lock is one lock for every document, which is enough for these tests.
func (m *memStore) Lock(ctx context.Context, _ string) (func(), error) {
	select {
	case m.lock <- struct{}{}:
		return func() { <-m.lock }, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (m *memStore) Close() error { return nil }

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)}
}

func (f *fakeClock) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *fakeClock) Advance(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.now = f.now.Add(d)
}

func testKey() seal.MasterKey {
	key := make(seal.MasterKey, seal.MasterKeySize)
	for i := range key {
		key[i] = byte(i + 1)
	}
	return key
}

func newTestBank(t *testing.T, ds store.DocumentStore) *Bank {
	t.Helper()
	b, err := OpenBank(context.Background(), ds, testKey(), nil)
	require.NoError(t, err)
	return b
}

func testSeed(b byte) [32]byte {
	var seed [32]byte
	seed[0] = b
	return seed
}
