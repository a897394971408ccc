// Package blob implements durable storage for outbound attachment payloads
// that are too large to keep inline in the serialized queue document.
// Records are key-addressed, accounted against a global byte budget, and
// evicted least-recently-accessed first when a write would exceed it.
package blob

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/binary"
	"encoding/json"
	"sync"
	"time"

	"weft/outbound-queue/log"
	"weft/outbound-queue/queue"
	"weft/outbound-queue/storage"
)

// BudgetBytes is the global payload budget. Eviction runs synchronously in
// the same operation that would exceed it, so the invariant holds
// immediately after every Put.
const BudgetBytes = 64 << 20

const defaultMime = "application/octet-stream"

// Record is a hydrated blob store entry.
type Record struct {
	Key         string
	Mime        string
	SizeBytes   int64
	UpdatedAtMs int64
	Data        []byte
}

type recordMeta struct {
	Mime         string `json:"mime,omitempty"`
	SizeBytes    int64  `json:"sizeBytes"`
	UpdatedAtMs  int64  `json:"updatedAtMs"`
	LastAccessMs int64  `json:"lastAccessMs"`
}

// legacyRecord is the retired at-rest encoding: the whole record as one JSON
// envelope with base64 payload. Still readable, rewritten on read.
type legacyRecord struct {
	Mime        string `json:"mime,omitempty"`
	SizeBytes   int64  `json:"sizeBytes"`
	UpdatedAtMs int64  `json:"updatedAtMs"`
	DataBase64  string `json:"dataBase64"`
}

type indexEntry struct {
	sizeBytes    int64
	lastAccessMs int64
}

// Store is the attachment blob store. Safe for use from multiple
// goroutines; all operations on one Store are serialized.
type Store struct {
	mu      sync.Mutex
	backend storage.BlobStore
	index   map[string]indexEntry
	nowFn   func() int64
}

func New(backend storage.BlobStore) *Store {
	return &Store{
		backend: backend,
		nowFn:   func() int64 { return time.Now().UnixMilli() },
	}
}

// NewWithNow injects the clock, for deterministic eviction order in tests.
func NewWithNow(backend storage.BlobStore, nowFn func() int64) *Store {
	return &Store{
		backend: backend,
		nowFn:   nowFn,
	}
}

// Supported reports whether a durable backend is present at all. When it is
// not, every operation degrades to a no-op and callers keep payloads inline.
func (s *Store) Supported() bool {
	return s != nil && s.backend != nil
}

// PutAttachment stores a draft attachment's inline payload under the given
// key. It returns false, never an error, when the payload cannot be decoded
// or the backend refuses the write; the caller falls back to inline storage.
func (s *Store) PutAttachment(ctx context.Context, key string, att queue.Attachment) bool {
	data, ok := att.InlineBytes()
	if !ok {
		return false
	}

	mime := att.Mime
	if mime == "" {
		mime = defaultMime
	}

	return s.Put(ctx, key, data, mime)
}

// Put stores a raw payload under the given key, then evicts
// least-recently-accessed records until the store is back within budget.
func (s *Store) Put(ctx context.Context, key string, data []byte, mime string) bool {
	if !s.Supported() || key == "" {
		return false
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.ensureIndex(ctx); err != nil {
		return false
	}

	now := s.nowFn()
	meta := recordMeta{
		Mime:         mime,
		SizeBytes:    int64(len(data)),
		UpdatedAtMs:  now,
		LastAccessMs: now,
	}

	if err := s.backend.Put(ctx, key, encodeRecord(meta, data)); err != nil {
		log.Logger.WithError(err).Warnf("blob store write failed for key %s", key)
		return false
	}

	s.index[key] = indexEntry{sizeBytes: meta.SizeBytes, lastAccessMs: now}
	s.evictOverBudget(ctx)

	return true
}

// Get loads a record, bumping its access time. Records found in the legacy
// encoding are rewritten canonically in place; the rewrite is best-effort
// and never fails the read. A missing or corrupt record yields (nil, nil).
func (s *Store) Get(ctx context.Context, key string) (*Record, error) {
	if !s.Supported() {
		return nil, storage.ErrUnavailable
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.ensureIndex(ctx); err != nil {
		return nil, err
	}

	raw, err := s.backend.Get(ctx, key)
	if err == storage.ErrNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	meta, data, ok := decodeRecord(raw)
	if !ok {
		log.Logger.Warnf("dropping undecodable blob record for key %s", key)
		return nil, nil
	}

	// bump access time; a failed rewrite only costs LRU accuracy
	meta.LastAccessMs = s.nowFn()
	if err := s.backend.Put(ctx, key, encodeRecord(meta, data)); err != nil {
		log.Logger.WithError(err).Debugf("unable to rewrite blob record for key %s", key)
	} else {
		s.index[key] = indexEntry{sizeBytes: meta.SizeBytes, lastAccessMs: meta.LastAccessMs}
	}

	return &Record{
		Key:         key,
		Mime:        meta.Mime,
		SizeBytes:   meta.SizeBytes,
		UpdatedAtMs: meta.UpdatedAtMs,
		Data:        data,
	}, nil
}

// GetPortable loads a record as a draft-shaped attachment with an inline
// base64 payload, for callers that need the wire representation.
func (s *Store) GetPortable(ctx context.Context, key string) (*queue.Attachment, error) {
	rec, err := s.Get(ctx, key)
	if err != nil || rec == nil {
		return nil, err
	}

	return &queue.Attachment{
		Mime:       rec.Mime,
		SizeBytes:  rec.SizeBytes,
		DataBase64: base64.StdEncoding.EncodeToString(rec.Data),
	}, nil
}

// Prune deletes every record whose key is not in activeKeys. Called after
// every queue persistence write so orphaned payloads never accumulate.
func (s *Store) Prune(ctx context.Context, activeKeys map[string]bool) error {
	if !s.Supported() {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	keys, err := s.backend.Keys(ctx)
	if err != nil {
		return err
	}

	var pruned int
	for _, k := range keys {
		if activeKeys[k] {
			continue
		}
		if err := s.backend.Delete(ctx, k); err != nil {
			log.Logger.WithError(err).Warnf("unable to prune orphaned blob %s", k)
			continue
		}
		delete(s.index, k)
		pruned++
	}

	if pruned > 0 {
		log.Logger.Debugf("pruned %d orphaned blob(s)", pruned)
	}

	return nil
}

// UsedBytes reports the payload bytes currently held, for the metrics gauge.
func (s *Store) UsedBytes(ctx context.Context) (int64, error) {
	if !s.Supported() {
		return 0, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.ensureIndex(ctx); err != nil {
		return 0, err
	}

	return s.totalBytes(), nil
}

// ensureIndex lazily scans the backend to learn each record's payload size
// and last access time. Callers must hold s.mu.
func (s *Store) ensureIndex(ctx context.Context) error {
	if s.index != nil {
		return nil
	}

	keys, err := s.backend.Keys(ctx)
	if err != nil {
		return err
	}

	idx := make(map[string]indexEntry, len(keys))
	for _, k := range keys {
		raw, err := s.backend.Get(ctx, k)
		if err != nil {
			continue
		}
		meta, _, ok := decodeRecord(raw)
		if !ok {
			continue
		}
		idx[k] = indexEntry{sizeBytes: meta.SizeBytes, lastAccessMs: meta.LastAccessMs}
	}

	s.index = idx

	return nil
}

func (s *Store) totalBytes() int64 {
	var total int64
	for _, e := range s.index {
		total += e.sizeBytes
	}

	return total
}

func (s *Store) evictOverBudget(ctx context.Context) {
	for s.totalBytes() > BudgetBytes {
		victim := ""
		oldest := int64(0)
		for k, e := range s.index {
			if victim == "" || e.lastAccessMs < oldest {
				victim = k
				oldest = e.lastAccessMs
			}
		}
		if victim == "" {
			return
		}

		if err := s.backend.Delete(ctx, victim); err != nil {
			log.Logger.WithError(err).Warnf("unable to evict blob %s", victim)
			return
		}

		log.Logger.Debugf("evicted blob %s (%d bytes) to stay within budget", victim, s.index[victim].sizeBytes)
		delete(s.index, victim)
	}
}

// encodeRecord frames a record as a big-endian length-prefixed JSON meta
// header followed by the raw payload.
func encodeRecord(meta recordMeta, data []byte) []byte {
	header, _ := json.Marshal(meta)

	out := make([]byte, 0, 4+len(header)+len(data))
	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(header)))
	out = append(out, lenBuf[:]...)
	out = append(out, header...)
	out = append(out, data...)

	return out
}

func decodeRecord(raw []byte) (recordMeta, []byte, bool) {
	// legacy records are a bare JSON envelope with base64 payload
	if len(raw) > 0 && raw[0] == '{' {
		return decodeLegacyRecord(raw)
	}

	if len(raw) < 4 {
		return recordMeta{}, nil, false
	}

	headerLen := binary.BigEndian.Uint32(raw[:4])
	if int(headerLen) > len(raw)-4 {
		return recordMeta{}, nil, false
	}

	var meta recordMeta
	dec := json.NewDecoder(bytes.NewReader(raw[4 : 4+headerLen]))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&meta); err != nil {
		return recordMeta{}, nil, false
	}

	return meta, raw[4+headerLen:], true
}

func decodeLegacyRecord(raw []byte) (recordMeta, []byte, bool) {
	var rec legacyRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		return recordMeta{}, nil, false
	}

	data, err := base64.StdEncoding.DecodeString(rec.DataBase64)
	if err != nil {
		return recordMeta{}, nil, false
	}

	return recordMeta{
		Mime:        rec.Mime,
		SizeBytes:   int64(len(data)),
		UpdatedAtMs: rec.UpdatedAtMs,
	}, data, true
}
