package queue

import (
	"fmt"
	"strings"
	"testing"

	"github.com/go-test/deep"
)

func TestEnqueueSendError(t *testing.T) {
	t.Run("it appends a queued entry with the first backoff rung", func(t *testing.T) {
		got := EnqueueSendError(nil, SendErrorInput{
			ThreadID:    "t1",
			Destination: "dest1",
			Draft:       Draft{Text: "hello"},
			Reason:      "link timeout",
			ReasonCode:  "timeout",
			NowMs:       1000,
		})

		if len(got) != 1 {
			t.Fatalf("expected 1 entry, got %d", len(got))
		}

		e := got[0]
		if !strings.HasPrefix(e.ID, "draft:t1:1000:") {
			t.Errorf("unexpected entry id %q", e.ID)
		}

		exp := Entry{
			ID:            e.ID,
			Source:        SourceSendError,
			ThreadID:      "t1",
			Destination:   "dest1",
			Draft:         Draft{Text: "hello"},
			Reason:        "link timeout",
			ReasonCode:    "timeout",
			NextRetryAtMs: 16_000,
			CreatedAtMs:   1000,
			UpdatedAtMs:   1000,
			Status:        StatusQueued,
		}
		if diff := deep.Equal(exp, e); diff != nil {
			t.Error(diff)
		}
	})

	t.Run("it trims addressing fields", func(t *testing.T) {
		got := EnqueueSendError(nil, SendErrorInput{
			ThreadID:    "  t1  ",
			Destination: " dest1 ",
			Draft:       Draft{Text: "hello"},
			NowMs:       1000,
		})

		if len(got) != 1 || got[0].ThreadID != "t1" || got[0].Destination != "dest1" {
			t.Errorf("addressing fields were not trimmed: %+v", got)
		}
	})

	t.Run("it rejects blank addressing or empty drafts", func(t *testing.T) {
		existing := []Entry{{ID: "a", NextRetryAtMs: 5}}

		tests := []struct {
			name string
			in   SendErrorInput
		}{
			{name: "blank thread", in: SendErrorInput{Destination: "d", Draft: Draft{Text: "x"}}},
			{name: "blank destination", in: SendErrorInput{ThreadID: "t", Draft: Draft{Text: "x"}}},
			{name: "empty draft", in: SendErrorInput{ThreadID: "t", Destination: "d", Draft: Draft{Text: "   "}}},
		}

		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				got := EnqueueSendError(existing, tt.in)
				if len(got) != 1 || &got[0] != &existing[0] {
					t.Error("expected the input slice back unchanged")
				}
			})
		}
	})

	t.Run("it drops the latest-due entry when the queue is full", func(t *testing.T) {
		entries := make([]Entry, 0, MaxEntries)
		for i := 0; i < MaxEntries; i++ {
			entries = append(entries, Entry{
				ID:            fmt.Sprintf("e%d", i),
				NextRetryAtMs: int64(i) * 1000,
				Status:        StatusQueued,
			})
		}

		got := EnqueueSendError(entries, SendErrorInput{
			ThreadID:    "t1",
			Destination: "d1",
			Draft:       Draft{Text: "urgent"},
			NowMs:       0,
		})

		if len(got) != MaxEntries {
			t.Fatalf("expected the queue to stay at %d entries, got %d", MaxEntries, len(got))
		}

		for _, e := range got {
			if e.ID == fmt.Sprintf("e%d", MaxEntries-1) {
				t.Error("the entry due last should have been dropped")
			}
		}

		var found bool
		for _, e := range got {
			if strings.HasPrefix(e.ID, "draft:t1:") {
				found = true
			}
		}
		if !found {
			t.Error("the new entry should have survived, it is due sooner than the tail")
		}
	})
}

func TestMarkSending(t *testing.T) {
	entries := []Entry{{ID: "a", Status: StatusQueued, UpdatedAtMs: 1}}

	got := MarkSending(entries, "a", 50)
	if got[0].Status != StatusSending || got[0].UpdatedAtMs != 50 {
		t.Errorf("entry was not marked sending: %+v", got[0])
	}

	if entries[0].Status != StatusQueued {
		t.Error("the input slice was mutated")
	}

	missing := MarkSending(entries, "nope", 50)
	if &missing[0] != &entries[0] {
		t.Error("expected the input slice back unchanged for an unknown id")
	}
}

func TestMarkDelivered(t *testing.T) {
	entries := []Entry{
		{ID: "a", NextRetryAtMs: 1},
		{ID: "b", NextRetryAtMs: 2},
		{ID: "c", NextRetryAtMs: 3},
	}

	got := MarkDelivered(entries, "b")
	if len(got) != 2 || got[0].ID != "a" || got[1].ID != "c" {
		t.Errorf("unexpected queue after delivery: %+v", got)
	}

	missing := MarkDelivered(entries, "nope")
	if &missing[0] != &entries[0] {
		t.Error("expected the input slice back unchanged for an unknown id")
	}
}

func TestMarkAttemptFailed(t *testing.T) {
	t.Run("it reschedules with the next backoff rung", func(t *testing.T) {
		entries := []Entry{{ID: "a", Status: StatusSending, Attempts: 0}}

		got := MarkAttemptFailed(entries, "a", "boom", 10_000)

		e := got[0]
		if e.Attempts != 1 {
			t.Errorf("expected 1 attempt, got %d", e.Attempts)
		}
		if e.Status != StatusQueued {
			t.Errorf("expected the entry back in queued, got %s", e.Status)
		}
		if e.NextRetryAtMs != 10_000+30_000 {
			t.Errorf("expected the second backoff rung, got next retry at %d", e.NextRetryAtMs)
		}
		if e.LastError != "boom" {
			t.Errorf("unexpected last error %q", e.LastError)
		}
	})

	t.Run("it pauses the entry once the attempt budget is spent", func(t *testing.T) {
		entries := []Entry{{ID: "a", Status: StatusSending, Attempts: MaxAutoRetryAttempts - 1}}

		got := MarkAttemptFailed(entries, "a", "boom", 10_000)

		e := got[0]
		if e.Status != StatusPaused {
			t.Errorf("expected the entry paused, got %s", e.Status)
		}
		if e.LastError != "Auto-paused after 4 retries: boom" {
			t.Errorf("unexpected last error %q", e.LastError)
		}
	})

	t.Run("it omits the error suffix when the attempt failed without a message", func(t *testing.T) {
		entries := []Entry{{ID: "a", Status: StatusSending, Attempts: MaxAutoRetryAttempts - 1}}

		got := MarkAttemptFailed(entries, "a", "", 10_000)

		if got[0].LastError != "Auto-paused after 4 retries" {
			t.Errorf("unexpected last error %q", got[0].LastError)
		}
	})

	t.Run("it returns the input slice back unchanged for an unknown id", func(t *testing.T) {
		entries := []Entry{{ID: "a", Status: StatusQueued}}

		missing := MarkAttemptFailed(entries, "nope", "boom", 10_000)
		if &missing[0] != &entries[0] {
			t.Error("expected the input slice back unchanged for an unknown id")
		}
	})
}

func TestPauseAndResume(t *testing.T) {
	entries := []Entry{{ID: "a", Status: StatusQueued, NextRetryAtMs: 99_000}}

	paused := Pause(entries, "a", 1000)
	if paused[0].Status != StatusPaused {
		t.Errorf("expected the entry paused, got %s", paused[0].Status)
	}

	resumed := Resume(paused, "a", 5000)
	if resumed[0].Status != StatusQueued {
		t.Errorf("expected the entry queued, got %s", resumed[0].Status)
	}
	if resumed[0].NextRetryAtMs != 6000 {
		t.Errorf("expected the resumed entry due within a second, got %d", resumed[0].NextRetryAtMs)
	}

	missing := Resume(entries, "nope", 5000)
	if &missing[0] != &entries[0] {
		t.Error("expected the input slice back unchanged for an unknown id")
	}
}

func TestRetryNow(t *testing.T) {
	// manual retries are allowed even when the auto retry budget is spent
	entries := []Entry{{ID: "a", Status: StatusPaused, Attempts: 10, NextRetryAtMs: 99_000}}

	got := RetryNow(entries, "a", 5000)
	if got[0].Status != StatusQueued || got[0].NextRetryAtMs != 5000 {
		t.Errorf("expected the entry immediately due, got %+v", got[0])
	}

	missing := RetryNow(entries, "nope", 5000)
	if &missing[0] != &entries[0] {
		t.Error("expected the input slice back unchanged for an unknown id")
	}
}

func TestRequeueInterrupted(t *testing.T) {
	t.Run("it returns in-flight entries to queued", func(t *testing.T) {
		entries := []Entry{
			{ID: "a", Status: StatusSending, NextRetryAtMs: 1},
			{ID: "b", Status: StatusPaused, NextRetryAtMs: 2},
			{ID: "c", Status: StatusQueued, NextRetryAtMs: 3},
		}

		got := RequeueInterrupted(entries)
		if got[0].Status != StatusQueued {
			t.Errorf("expected the interrupted entry back in queued, got %s", got[0].Status)
		}
		if got[1].Status != StatusPaused || got[2].Status != StatusQueued {
			t.Errorf("other entries must be left alone: %+v", got)
		}

		if entries[0].Status != StatusSending {
			t.Error("the input slice was mutated")
		}
	})

	t.Run("it returns the input slice back unchanged when nothing was in flight", func(t *testing.T) {
		entries := []Entry{{ID: "a", Status: StatusQueued}}

		got := RequeueInterrupted(entries)
		if &got[0] != &entries[0] {
			t.Error("expected the input slice back unchanged")
		}
	})
}

func TestNextDue(t *testing.T) {
	entries := []Entry{
		{ID: "paused", Status: StatusPaused, NextRetryAtMs: 1},
		{ID: "sending", Status: StatusSending, NextRetryAtMs: 2},
		{ID: "due", Status: StatusQueued, NextRetryAtMs: 3},
		{ID: "later", Status: StatusQueued, NextRetryAtMs: 9000},
	}

	t.Run("it skips paused and in-flight entries", func(t *testing.T) {
		e, ok := NextDue(entries, 5000)
		if !ok || e.ID != "due" {
			t.Errorf("expected entry 'due', got %+v (ok=%t)", e, ok)
		}
	})

	t.Run("it reports nothing due before the earliest retry time", func(t *testing.T) {
		if _, ok := NextDue(entries, 2); ok {
			t.Error("no entry should be due yet")
		}
	})
}

func TestLimit(t *testing.T) {
	t.Run("it sorts ascending by next retry time", func(t *testing.T) {
		got := Limit([]Entry{
			{ID: "c", NextRetryAtMs: 30},
			{ID: "a", NextRetryAtMs: 10},
			{ID: "b", NextRetryAtMs: 20},
		})

		ids := []string{got[0].ID, got[1].ID, got[2].ID}
		if diff := deep.Equal([]string{"a", "b", "c"}, ids); diff != nil {
			t.Error(diff)
		}
	})

	t.Run("the sort is stable for equal retry times", func(t *testing.T) {
		got := Limit([]Entry{
			{ID: "first", NextRetryAtMs: 10},
			{ID: "second", NextRetryAtMs: 10},
		})

		if got[0].ID != "first" || got[1].ID != "second" {
			t.Errorf("insertion order was not preserved: %+v", got)
		}
	})

	t.Run("it truncates to the cap", func(t *testing.T) {
		entries := make([]Entry, MaxEntries+5)
		for i := range entries {
			entries[i] = Entry{ID: fmt.Sprintf("e%d", i), NextRetryAtMs: int64(i)}
		}

		got := Limit(entries)
		if len(got) != MaxEntries {
			t.Errorf("expected %d entries, got %d", MaxEntries, len(got))
		}
		if got[len(got)-1].ID != fmt.Sprintf("e%d", MaxEntries-1) {
			t.Error("the entries due latest should have been dropped")
		}
	})
}
