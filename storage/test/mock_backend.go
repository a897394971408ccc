package test

import (
	"context"
	"sort"
	"sync"

	"weft/outbound-queue/storage"
)

// MockBackend is an in-memory storage backend for unit tests, with toggles
// to simulate the failure modes the persistence layer must classify.
type MockBackend struct {
	sync.RWMutex
	kv                map[string][]byte
	blobs             map[string][]byte
	returnErrors      bool
	returnQuotaErrors bool
	unavailable       bool
	blobsUnavailable  bool
	compactCallCount  int
}

func NewMockBackend() *MockBackend {
	return &MockBackend{
		kv:    map[string][]byte{},
		blobs: map[string][]byte{},
	}
}

func (m *MockBackend) KV() storage.KeyValueStore {
	return mockSpace{backend: m, data: m.kv}
}

func (m *MockBackend) Blobs() storage.BlobStore {
	return mockSpace{backend: m, data: m.blobs, blobSpace: true}
}

func (m *MockBackend) Ping() error {
	m.RLock()
	defer m.RUnlock()
	if m.unavailable {
		return storage.ErrUnavailable
	}
	if m.returnErrors {
		return errOops
	}
	return nil
}

func (m *MockBackend) Compact(ctx context.Context) error {
	m.Lock()
	defer m.Unlock()
	m.compactCallCount++
	if m.returnErrors {
		return errOops
	}
	return nil
}

func (m *MockBackend) Close() error {
	return nil
}

func (m *MockBackend) ReturnErrors() {
	m.Lock()
	defer m.Unlock()
	m.returnErrors = true
}

func (m *MockBackend) ReturnQuotaErrors() {
	m.Lock()
	defer m.Unlock()
	m.returnQuotaErrors = true
}

func (m *MockBackend) Unavailable() {
	m.Lock()
	defer m.Unlock()
	m.unavailable = true
}

// BlobsUnavailable makes only the blob space fail, leaving the key-value
// space writable, so tests can force the inline fallback path.
func (m *MockBackend) BlobsUnavailable() {
	m.Lock()
	defer m.Unlock()
	m.blobsUnavailable = true
}

func (m *MockBackend) CompactCallCount() int {
	m.RLock()
	defer m.RUnlock()
	return m.compactCallCount
}

func (m *MockBackend) KVValue(key string) ([]byte, bool) {
	m.RLock()
	defer m.RUnlock()
	v, ok := m.kv[key]
	return v, ok
}

func (m *MockBackend) SetKVValue(key string, value []byte) {
	m.Lock()
	defer m.Unlock()
	m.kv[key] = append([]byte(nil), value...)
}

func (m *MockBackend) BlobValue(key string) ([]byte, bool) {
	m.RLock()
	defer m.RUnlock()
	v, ok := m.blobs[key]
	return v, ok
}

func (m *MockBackend) SetBlobValue(key string, value []byte) {
	m.Lock()
	defer m.Unlock()
	m.blobs[key] = append([]byte(nil), value...)
}

func (m *MockBackend) BlobKeys() []string {
	m.RLock()
	defer m.RUnlock()
	keys := make([]string, 0, len(m.blobs))
	for k := range m.blobs {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

type mockSpace struct {
	backend   *MockBackend
	data      map[string][]byte
	blobSpace bool
}

func (s mockSpace) failure() error {
	if s.backend.unavailable {
		return storage.ErrUnavailable
	}
	if s.blobSpace && s.backend.blobsUnavailable {
		return storage.ErrUnavailable
	}
	if s.backend.returnErrors {
		return errOops
	}
	return nil
}

func (s mockSpace) Get(ctx context.Context, key string) ([]byte, error) {
	s.backend.RLock()
	defer s.backend.RUnlock()
	if err := s.failure(); err != nil {
		return nil, err
	}

	v, ok := s.data[key]
	if !ok {
		return nil, storage.ErrNotFound
	}

	return append([]byte(nil), v...), nil
}

func (s mockSpace) Set(ctx context.Context, key string, value []byte) error {
	return s.Put(ctx, key, value)
}

func (s mockSpace) Put(ctx context.Context, key string, value []byte) error {
	s.backend.Lock()
	defer s.backend.Unlock()
	if err := s.failure(); err != nil {
		return err
	}
	if s.backend.returnQuotaErrors {
		return storage.ErrQuotaExceeded
	}

	s.data[key] = append([]byte(nil), value...)

	return nil
}

func (s mockSpace) Delete(ctx context.Context, key string) error {
	s.backend.Lock()
	defer s.backend.Unlock()
	if err := s.failure(); err != nil {
		return err
	}

	delete(s.data, key)

	return nil
}

func (s mockSpace) Keys(ctx context.Context) ([]string, error) {
	s.backend.RLock()
	defer s.backend.RUnlock()
	if err := s.failure(); err != nil {
		return nil, err
	}

	keys := make([]string, 0, len(s.data))
	for k := range s.data {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	return keys, nil
}
