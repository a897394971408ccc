// Package data is the persistence layer for the outbound queue: it owns the
// durable queue document, spills large attachment payloads to the blob
// store, migrates the retired v1 format, and exposes the stateful
// repository the scheduler and reconciler mutate through.
package data

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/pkg/errors"

	"weft/outbound-queue/blob"
	"weft/outbound-queue/log"
	"weft/outbound-queue/queue"
	"weft/outbound-queue/storage"
)

// InlineThresholdBytes is the preferred ceiling for inline attachment
// payloads. Larger payloads are spilled to the blob store; if that fails
// they are still kept inline rather than dropped, so the message survives
// even at the cost of document size.
const InlineThresholdBytes = 16 * 1024

const (
	WriteErrQuota         WriteErrorCode = "quota"
	WriteErrSerialization WriteErrorCode = "serialization"
	WriteErrUnavailable   WriteErrorCode = "storage-unavailable"
	WriteErrUnknown       WriteErrorCode = "unknown"
)

type WriteErrorCode string

// WriteResult classifies a durable write outcome so the UI can surface a
// specific remediation instead of a generic failure.
type WriteResult struct {
	OK   bool
	Code WriteErrorCode
	Err  error
}

func writeOK() WriteResult {
	return WriteResult{OK: true}
}

func writeFailed(err error) WriteResult {
	code := WriteErrUnknown
	switch {
	case err == nil:
		return writeOK()
	case errors.Is(err, storage.ErrQuotaExceeded):
		code = WriteErrQuota
	case errors.Is(err, storage.ErrUnavailable):
		code = WriteErrUnavailable
	}

	return WriteResult{Code: code, Err: err}
}

// Store reads and writes the durable queue representation. It is the only
// component allowed to do so.
type Store struct {
	kv    storage.KeyValueStore
	blobs *blob.Store
}

func NewStore(kv storage.KeyValueStore, blobs *blob.Store) *Store {
	return &Store{
		kv:    kv,
		blobs: blobs,
	}
}

// Load reads the current queue document, falling back to a one-time
// migration of the legacy v1 format. Every attachment is hydrated; an entry
// whose blob reference cannot be resolved is dropped entirely, since a
// message missing part of its payload must not be silently resent
// incomplete. Entries persisted as sending belong to an attempt that was
// interrupted by a crash; they go back to queued so they are retried.
func (s *Store) Load(ctx context.Context) ([]queue.Entry, error) {
	entries, err := s.loadDocument(ctx)
	if err != nil {
		return nil, err
	}

	hydrated := s.hydrateEntries(ctx, entries)

	return queue.Limit(queue.RequeueInterrupted(hydrated)), nil
}

func (s *Store) loadDocument(ctx context.Context) ([]queue.Entry, error) {
	raw, err := s.kv.Get(ctx, queueKeyV2)
	if err == nil {
		entries, ok := decodeQueueDocument(raw)
		if !ok {
			log.Logger.Error("the durable queue document is corrupt and cannot be read; starting with an empty queue")
			return nil, nil
		}
		return entries, nil
	}
	if err == storage.ErrUnavailable {
		return nil, nil
	}
	if err != storage.ErrNotFound {
		return nil, err
	}

	return s.migrateLegacyDocument(ctx)
}

func (s *Store) migrateLegacyDocument(ctx context.Context) ([]queue.Entry, error) {
	raw, err := s.kv.Get(ctx, queueKeyV1)
	if err == storage.ErrNotFound || err == storage.ErrUnavailable {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	entries, ok := decodeLegacyQueueDocument(raw)
	if !ok {
		log.Logger.Error("the legacy queue document is corrupt and cannot be migrated")
		entries = nil
	}

	log.Logger.Infof("migrating %d queue entr(ies) from the legacy document format", len(entries))

	// rewrite as v2 and retire the legacy record; a failed rewrite keeps the
	// legacy record in place for the next startup
	if res := s.Save(ctx, entries); res.OK {
		if err := s.kv.Delete(ctx, queueKeyV1); err != nil {
			log.Logger.WithError(err).Warn("unable to delete the legacy queue document after migration")
		}
	}

	return entries, nil
}

// hydrateEntries resolves blob references concurrently, one goroutine per
// entry. Entries with unresolvable payloads come back invalidated and are
// filtered out.
func (s *Store) hydrateEntries(ctx context.Context, entries []queue.Entry) []queue.Entry {
	type result struct {
		entry queue.Entry
		ok    bool
	}

	results := make([]result, len(entries))

	var wg sync.WaitGroup
	for i := range entries {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			e, ok := s.hydrateEntry(ctx, entries[i])
			results[i] = result{entry: e, ok: ok}
		}(i)
	}
	wg.Wait()

	out := make([]queue.Entry, 0, len(entries))
	for _, r := range results {
		if r.ok {
			out = append(out, r.entry)
		}
	}

	return out
}

func (s *Store) hydrateEntry(ctx context.Context, e queue.Entry) (queue.Entry, bool) {
	if len(e.Draft.Attachments) == 0 {
		return e, true
	}

	atts := make([]queue.Attachment, len(e.Draft.Attachments))
	copy(atts, e.Draft.Attachments)

	for i, a := range atts {
		if a.DataBase64 != "" {
			continue
		}

		key, ok := a.Stored()
		if !ok {
			log.Logger.Warnf("dropping queue entry %s: attachment %q has no payload", e.ID, a.Name)
			return queue.Entry{}, false
		}

		portable, err := s.blobs.GetPortable(ctx, key)
		if err != nil || portable == nil {
			log.Logger.Warnf("dropping queue entry %s: blob %s could not be resolved", e.ID, key)
			return queue.Entry{}, false
		}

		atts[i].DataBase64 = portable.DataBase64
		if atts[i].Mime == "" {
			atts[i].Mime = portable.Mime
		}
		if atts[i].SizeBytes == 0 {
			atts[i].SizeBytes = portable.SizeBytes
		}
	}

	e.Draft.Attachments = atts

	return e, true
}

// Save writes the queue document, spilling attachment payloads above the
// inline threshold to the blob store first. Attachment spills for one entry
// run concurrently and fail independently; a failed spill falls back to
// inline storage. After a successful write the blob store is pruned against
// the keys still referenced.
func (s *Store) Save(ctx context.Context, entries []queue.Entry) WriteResult {
	persisted := make([]queue.Entry, len(entries))
	copy(persisted, entries)

	activeKeys := map[string]bool{}
	var mu sync.Mutex
	var wg sync.WaitGroup

	for i := range persisted {
		if len(persisted[i].Draft.Attachments) == 0 {
			continue
		}

		atts := make([]queue.Attachment, len(persisted[i].Draft.Attachments))
		copy(atts, persisted[i].Draft.Attachments)
		persisted[i].Draft.Attachments = atts

		for j := range atts {
			wg.Add(1)
			go func(entryID string, att *queue.Attachment, idx int) {
				defer wg.Done()
				*att = s.persistAttachment(ctx, entryID, *att, idx)
				if key, ok := att.Stored(); ok {
					mu.Lock()
					activeKeys[key] = true
					mu.Unlock()
				}
			}(persisted[i].ID, &atts[j], j)
		}
	}
	wg.Wait()

	doc, err := encodeQueueDocument(persisted)
	if err != nil {
		return WriteResult{Code: WriteErrSerialization, Err: err}
	}

	if err := s.kv.Set(ctx, queueKeyV2, doc); err != nil {
		return writeFailed(err)
	}

	if err := s.blobs.Prune(ctx, activeKeys); err != nil {
		log.Logger.WithError(err).Warn("unable to prune the blob store after saving the queue")
	}

	return writeOK()
}

// persistAttachment decides the at-rest representation of one attachment:
// blob-store reference when the payload is big and the store accepts it,
// inline base64 otherwise.
func (s *Store) persistAttachment(ctx context.Context, entryID string, a queue.Attachment, idx int) queue.Attachment {
	data, ok := a.InlineBytes()
	if !ok {
		// nothing inline to spill; keep whatever reference it already has
		return a
	}

	if a.SizeBytes == 0 {
		a.SizeBytes = int64(len(data))
	}

	if int64(len(data)) <= InlineThresholdBytes {
		a.BlobKey = ""
		return a
	}

	key := blobKeyFor(entryID, idx)
	if s.blobs.PutAttachment(ctx, key, a) {
		a.BlobKey = key
		a.DataBase64 = ""
		return a
	}

	// preserved fallback: large payloads stay inline when the blob store
	// refuses them, trading document size for durability
	log.Logger.Warnf("blob store rejected attachment %q (%d bytes) for entry %s, keeping it inline", a.Name, len(data), entryID)
	a.BlobKey = ""

	return a
}

func blobKeyFor(entryID string, idx int) string {
	return fmt.Sprintf("queue:%s:attachment:%d", entryID, idx)
}

// LoadIgnoredIDs reads the dismissed message id set.
func (s *Store) LoadIgnoredIDs(ctx context.Context) (*queue.IgnoredIDs, error) {
	raw, err := s.kv.Get(ctx, ignoredKey)
	if err == storage.ErrNotFound || err == storage.ErrUnavailable {
		return queue.NewIgnoredIDs(), nil
	}
	if err != nil {
		return nil, err
	}

	var ids []string
	if err := json.Unmarshal(raw, &ids); err != nil {
		log.Logger.Warn("the ignored message id document is corrupt, resetting it")
		return queue.NewIgnoredIDs(), nil
	}

	return queue.NewIgnoredIDs(ids...), nil
}

// SaveIgnoredIDs writes the dismissed message id set.
func (s *Store) SaveIgnoredIDs(ctx context.Context, ids *queue.IgnoredIDs) WriteResult {
	doc, err := json.Marshal(ids.IDs())
	if err != nil {
		return WriteResult{Code: WriteErrSerialization, Err: err}
	}

	if err := s.kv.Set(ctx, ignoredKey, doc); err != nil {
		return writeFailed(err)
	}

	return writeOK()
}
