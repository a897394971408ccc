package data

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"weft/outbound-queue/log"
	"weft/outbound-queue/queue"
)

// ErrNoDueEntries is the special value returned by ClaimNextDue when no
// queued entry is ready to send yet.
var ErrNoDueEntries = errors.New("no queue entries are due")

// Repository holds the live queue state and is the single mutation path to
// it. Every structural change goes through the pure transition functions
// and is persisted before the call returns; mutations are serialized by an
// internal mutex since there is no merge logic underneath.
type Repository struct {
	mu      sync.Mutex
	store   *Store
	entries []queue.Entry
	ignored *queue.IgnoredIDs
	nowFn   func() int64
}

func NewRepository(store *Store) *Repository {
	return &Repository{
		store:   store,
		ignored: queue.NewIgnoredIDs(),
		nowFn:   func() int64 { return time.Now().UnixMilli() },
	}
}

// NewRepositoryWithNow injects the clock for deterministic tests.
func NewRepositoryWithNow(store *Store, nowFn func() int64) *Repository {
	r := NewRepository(store)
	r.nowFn = nowFn

	return r
}

// Load hydrates the queue and the ignored id set from durable storage.
func (r *Repository) Load(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	entries, err := r.store.Load(ctx)
	if err != nil {
		return err
	}

	ignored, err := r.store.LoadIgnoredIDs(ctx)
	if err != nil {
		return err
	}

	r.entries = entries
	r.ignored = ignored

	log.Logger.WithFields(logrus.Fields{
		"entries":     len(entries),
		"ignored_ids": ignored.Len(),
	}).Info("outbound queue loaded from durable storage")

	return nil
}

// Entries returns a copy of the current queue, for display.
func (r *Repository) Entries() []queue.Entry {
	r.mu.Lock()
	defer r.mu.Unlock()

	return append([]queue.Entry(nil), r.entries...)
}

// GetQueueSize reports how many entries are still awaiting delivery.
func (r *Repository) GetQueueSize() (uint, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	return uint(len(r.entries)), nil
}

// GetPausedSize reports how many entries need manual attention.
func (r *Repository) GetPausedSize() (uint, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var n uint
	for _, e := range r.entries {
		if e.Status == queue.StatusPaused {
			n++
		}
	}

	return n, nil
}

// ClaimNextDue returns the first due entry and marks it sending, so no
// other poll can pick it up while the attempt is in flight. Returns
// ErrNoDueEntries when nothing is ready.
func (r *Repository) ClaimNextDue(ctx context.Context) (*queue.Entry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.nowFn()

	e, ok := queue.NextDue(r.entries, now)
	if !ok {
		return nil, ErrNoDueEntries
	}

	res := r.apply(ctx, queue.MarkSending(r.entries, e.ID, now))
	if !res.OK {
		return nil, errors.Errorf("data: unable to claim queue entry %s: %s", e.ID, res.Err)
	}

	claimed := e
	claimed.Status = queue.StatusSending
	claimed.UpdatedAtMs = now

	return &claimed, nil
}

// CommitDelivered removes an entry after the runtime confirmed delivery.
func (r *Repository) CommitDelivered(ctx context.Context, id string) WriteResult {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.apply(ctx, queue.MarkDelivered(r.entries, id))
}

// CommitAttemptFailed records a failed attempt, pausing the entry once the
// retry budget is spent.
func (r *Repository) CommitAttemptFailed(ctx context.Context, id, errMsg string) WriteResult {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.apply(ctx, queue.MarkAttemptFailed(r.entries, id, errMsg, r.nowFn()))
}

// EnqueueSendError captures a failed send straight from the composer.
func (r *Repository) EnqueueSendError(ctx context.Context, in queue.SendErrorInput) WriteResult {
	r.mu.Lock()
	defer r.mu.Unlock()

	if in.NowMs == 0 {
		in.NowMs = r.nowFn()
	}

	return r.apply(ctx, queue.EnqueueSendError(r.entries, in))
}

func (r *Repository) Pause(ctx context.Context, id string) WriteResult {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.apply(ctx, queue.Pause(r.entries, id, r.nowFn()))
}

func (r *Repository) Resume(ctx context.Context, id string) WriteResult {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.apply(ctx, queue.Resume(r.entries, id, r.nowFn()))
}

func (r *Repository) RetryNow(ctx context.Context, id string) WriteResult {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.apply(ctx, queue.RetryNow(r.entries, id, r.nowFn()))
}

// Remove drops an entry on explicit user request. When the entry mirrors a
// runtime failed message, the message id is also recorded as dismissed so
// reconciliation does not resurrect it.
func (r *Repository) Remove(ctx context.Context, id string) WriteResult {
	r.mu.Lock()
	defer r.mu.Unlock()

	idx := -1
	for i := range r.entries {
		if r.entries[i].ID == id {
			idx = i
			break
		}
	}

	if idx >= 0 && r.entries[idx].SourceMessageID != "" {
		r.ignored.Add(r.entries[idx].SourceMessageID)
		if res := r.store.SaveIgnoredIDs(ctx, r.ignored); !res.OK {
			return res
		}
	}

	return r.apply(ctx, queue.Remove(r.entries, id))
}

// ApplyThreads reconciles the queue against a runtime thread snapshot,
// deriving entries for newly failed messages. Idempotent: a snapshot with
// no new failures leaves the queue untouched and skips the durable write.
func (r *Repository) ApplyThreads(ctx context.Context, threads []queue.Thread) WriteResult {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.apply(ctx, queue.SyncFromThreads(r.entries, threads, r.ignored, r.nowFn()))
}

// apply installs a new entries list and persists it. Transition functions
// return their input unchanged for no-op mutations, in which case the
// durable write is skipped.
func (r *Repository) apply(ctx context.Context, next []queue.Entry) WriteResult {
	if sameEntries(r.entries, next) {
		return writeOK()
	}

	res := r.store.Save(ctx, next)
	if !res.OK {
		log.Logger.WithFields(logrus.Fields{
			"code": res.Code,
		}).WithError(res.Err).Error("unable to persist the outbound queue")
		return res
	}

	r.entries = next

	return res
}

func sameEntries(a, b []queue.Entry) bool {
	if len(a) != len(b) {
		return false
	}
	if len(a) == 0 {
		return true
	}

	return &a[0] == &b[0]
}
