package queue

import (
	"fmt"
	"sort"
	"strings"

	"github.com/google/uuid"
)

// SendErrorInput describes a failed send captured directly from the
// composer, before the runtime ever saw the message.
type SendErrorInput struct {
	ThreadID    string
	Destination string
	Draft       Draft
	Reason      string
	ReasonCode  string
	NowMs       int64
}

// EnqueueSendError appends a fresh entry for a failed send. Blank addressing
// fields or an empty draft make the call a no-op.
func EnqueueSendError(entries []Entry, in SendErrorInput) []Entry {
	threadID := strings.TrimSpace(in.ThreadID)
	destination := strings.TrimSpace(in.Destination)
	if threadID == "" || destination == "" || in.Draft.Empty() {
		return entries
	}

	e := Entry{
		ID:            fmt.Sprintf("draft:%s:%d:%s", threadID, in.NowMs, uuid.NewString()),
		Source:        SourceSendError,
		ThreadID:      threadID,
		Destination:   destination,
		Draft:         in.Draft,
		Reason:        in.Reason,
		ReasonCode:    in.ReasonCode,
		NextRetryAtMs: in.NowMs + RetryDelayMs(0),
		CreatedAtMs:   in.NowMs,
		UpdatedAtMs:   in.NowMs,
		Status:        StatusQueued,
	}

	return Limit(append(cloneEntries(entries), e))
}

// MarkSending flags an entry as having an attempt in flight.
func MarkSending(entries []Entry, id string, nowMs int64) []Entry {
	return update(entries, id, func(e *Entry) {
		e.Status = StatusSending
		e.UpdatedAtMs = nowMs
	})
}

// MarkDelivered removes the entry: delivery confirmed, nothing left to do.
func MarkDelivered(entries []Entry, id string) []Entry {
	idx := indexOf(entries, id)
	if idx < 0 {
		return entries
	}

	out := make([]Entry, 0, len(entries)-1)
	out = append(out, entries[:idx]...)
	out = append(out, entries[idx+1:]...)

	return out
}

// MarkAttemptFailed records a failed attempt. The entry goes back to queued
// with the next backoff rung, or to paused once the attempt budget is spent.
func MarkAttemptFailed(entries []Entry, id string, errMsg string, nowMs int64) []Entry {
	if indexOf(entries, id) < 0 {
		return entries
	}

	out := update(entries, id, func(e *Entry) {
		e.Attempts++
		e.UpdatedAtMs = nowMs
		e.NextRetryAtMs = nowMs + RetryDelayMs(e.Attempts)
		e.LastError = errMsg

		if e.Attempts >= MaxAutoRetryAttempts {
			e.Status = StatusPaused
			e.LastError = autoPauseError(e.Attempts, errMsg)
		} else {
			e.Status = StatusQueued
		}
	})

	return Limit(out)
}

// Pause takes an entry out of automatic retry until explicitly resumed.
func Pause(entries []Entry, id string, nowMs int64) []Entry {
	return update(entries, id, func(e *Entry) {
		e.Status = StatusPaused
		e.UpdatedAtMs = nowMs
	})
}

// Resume unpauses an entry, rescheduling it to run within a second.
func Resume(entries []Entry, id string, nowMs int64) []Entry {
	if indexOf(entries, id) < 0 {
		return entries
	}

	out := update(entries, id, func(e *Entry) {
		e.Status = StatusQueued
		e.NextRetryAtMs = nowMs + 1000
		e.UpdatedAtMs = nowMs
	})

	return Limit(out)
}

// RetryNow forces an entry to be immediately eligible, unpausing it if
// necessary. Manual retries are always allowed, even past the budget.
func RetryNow(entries []Entry, id string, nowMs int64) []Entry {
	if indexOf(entries, id) < 0 {
		return entries
	}

	out := update(entries, id, func(e *Entry) {
		e.Status = StatusQueued
		e.NextRetryAtMs = nowMs
		e.UpdatedAtMs = nowMs
	})

	return Limit(out)
}

// Remove drops an entry on explicit user request.
func Remove(entries []Entry, id string) []Entry {
	return MarkDelivered(entries, id)
}

// RequeueInterrupted returns in-flight entries to queued. An attempt that
// was live when the process died has an unknown outcome, so the entry must
// be offered to the scheduler again rather than stay stuck in sending.
func RequeueInterrupted(entries []Entry) []Entry {
	interrupted := false
	for i := range entries {
		if entries[i].Status == StatusSending {
			interrupted = true
			break
		}
	}
	if !interrupted {
		return entries
	}

	out := cloneEntries(entries)
	for i := range out {
		if out[i].Status == StatusSending {
			out[i].Status = StatusQueued
		}
	}

	return out
}

// NextDue returns the first queued entry whose retry time has passed.
// Entries are kept sorted by due time by every structural mutation, so list
// order is the scheduling order; no re-sort happens here.
func NextDue(entries []Entry, nowMs int64) (Entry, bool) {
	for _, e := range entries {
		if e.Status == StatusQueued && e.NextRetryAtMs <= nowMs {
			return e, true
		}
	}

	return Entry{}, false
}

// Limit re-establishes the queue invariant: sorted ascending by next retry
// time, truncated to the cap. Applied after every structural mutation.
func Limit(entries []Entry) []Entry {
	out := cloneEntries(entries)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].NextRetryAtMs < out[j].NextRetryAtMs
	})

	if len(out) > MaxEntries {
		out = out[:MaxEntries]
	}

	return out
}

func autoPauseError(attempts int, errMsg string) string {
	msg := fmt.Sprintf("Auto-paused after %d retries", attempts)
	if errMsg != "" {
		msg = fmt.Sprintf("%s: %s", msg, errMsg)
	}

	return msg
}

func indexOf(entries []Entry, id string) int {
	for i := range entries {
		if entries[i].ID == id {
			return i
		}
	}

	return -1
}

func update(entries []Entry, id string, fn func(*Entry)) []Entry {
	idx := indexOf(entries, id)
	if idx < 0 {
		return entries
	}

	out := cloneEntries(entries)
	fn(&out[idx])

	return out
}
