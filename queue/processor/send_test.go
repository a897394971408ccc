package processor

import (
	"context"
	"testing"
	"time"

	"github.com/go-test/deep"

	"weft/outbound-queue/queue"
	"weft/outbound-queue/queue/data/test"
	rtest "weft/outbound-queue/runtime/test"
)

func TestNewSendProcessor(t *testing.T) {
	deep.CompareUnexportedFields = true
	defer func() {
		deep.CompareUnexportedFields = false
	}()

	repo := test.NewMockRepository()
	snd := rtest.NewMockSender()

	exp := SendProcessor{
		repo:   repo,
		sender: snd,
	}

	if diff := deep.Equal(exp, NewSendProcessor(repo, snd)); diff != nil {
		t.Error(diff)
	}
}

func TestSendProcessor_ListenAndProcess(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	repo := test.NewMockRepository()
	snd := rtest.NewMockSender()
	ch := make(chan *queue.Entry)

	proc := NewSendProcessor(repo, snd)
	go proc.ListenAndProcess(ctx, ch)

	e1 := &queue.Entry{ID: "e1", Destination: "dest1", Draft: queue.Draft{Text: "first"}}
	e2 := &queue.Entry{ID: "e2", Destination: "dest2", Draft: queue.Draft{Text: "second"}}

	ch <- e1
	ch <- e2

	time.Sleep(time.Millisecond * 1)

	if !snd.DraftWasSent("dest1") || !snd.DraftWasSent("dest2") {
		t.Error("both entries should have been handed to the sender")
	}

	if !repo.EntryWasDelivered("e1") {
		t.Error("the first entry was not committed as delivered")
	}

	if !repo.EntryWasDelivered("e2") {
		t.Error("the second entry was not committed as delivered")
	}
}

func TestSendProcessor_ListenAndProcessWithSendError(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	repo := test.NewMockRepository()
	snd := rtest.NewMockSender()
	ch := make(chan *queue.Entry)

	snd.FailFor("dest1", "no known path to destination")

	proc := NewSendProcessor(repo, snd)
	go proc.ListenAndProcess(ctx, ch)

	ch <- &queue.Entry{ID: "e1", Destination: "dest1", Draft: queue.Draft{Text: "doomed"}}
	ch <- &queue.Entry{ID: "e2", Destination: "dest2", Draft: queue.Draft{Text: "fine"}}

	time.Sleep(time.Millisecond * 1)

	if repo.EntryWasDelivered("e1") {
		t.Error("a failed send must not be committed as delivered")
	}

	msg, ok := repo.EntryAttemptError("e1")
	if !ok {
		t.Fatal("the failed attempt was not committed")
	}
	if msg != "no known path to destination" {
		t.Errorf("unexpected attempt error %q", msg)
	}

	if !repo.EntryWasDelivered("e2") {
		t.Error("the second entry should still have been delivered")
	}
}

func TestSendProcessor_ListenAndProcessWithNilEntry(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	repo := test.NewMockRepository()
	snd := rtest.NewMockSender()
	ch := make(chan *queue.Entry)

	proc := NewSendProcessor(repo, snd)
	go proc.ListenAndProcess(ctx, ch)

	ch <- nil

	time.Sleep(time.Millisecond * 1)
}

func TestSendProcessor_ListenAndProcessTerminatesWhenContextIsCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	repo := test.NewMockRepository()
	snd := rtest.NewMockSender()
	ch := make(chan *queue.Entry)

	proc := NewSendProcessor(repo, snd)
	go proc.ListenAndProcess(ctx, ch)

	cancel()

	select {
	case ch <- &queue.Entry{ID: "e1", Destination: "dest1"}:
		// the processor may still drain one entry racing the cancel
	case <-time.After(time.Millisecond * 50):
	}

	time.Sleep(time.Millisecond * 10)

	if snd.SendCallCount() > 1 {
		t.Error("the processor kept consuming entries after the context was cancelled")
	}
}
