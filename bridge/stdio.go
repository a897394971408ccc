// Package bridge connects the relay to the client shell that owns the
// actual messaging runtime. The shell spawns this process as a sidecar and
// speaks newline-delimited JSON over the process pipes: requests flow out,
// responses and runtime events flow back in.
package bridge

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"sync"
	"time"

	"github.com/pkg/errors"

	"weft/outbound-queue/log"
	"weft/outbound-queue/queue"
	"weft/outbound-queue/runtime"
)

const sendTimeout = 2 * time.Minute

type request struct {
	Op          string      `json:"op"`
	ID          int64       `json:"id"`
	Destination string      `json:"destination,omitempty"`
	Draft       *queue.Draft `json:"draft,omitempty"`
}

type frame struct {
	ID        *int64          `json:"id,omitempty"`
	OK        bool            `json:"ok,omitempty"`
	Error     string          `json:"error,omitempty"`
	MessageID string          `json:"messageId,omitempty"`
	Threads   []queue.Thread  `json:"threads,omitempty"`
	Event     *eventFrame     `json:"event,omitempty"`
}

type eventFrame struct {
	Kind      string `json:"kind"`
	MessageID string `json:"messageId,omitempty"`
	ThreadID  string `json:"threadId,omitempty"`
}

// Stdio implements the runtime Sender, Subscription and ThreadProvider
// contracts over a pipe pair.
type Stdio struct {
	mu      sync.Mutex
	enc     *json.Encoder
	in      io.Reader
	nextID  int64
	pending map[int64]chan frame

	hmu      sync.RWMutex
	handlers map[int]func(runtime.Event)
	nextHID  int
}

func NewStdio(in io.Reader, out io.Writer) *Stdio {
	return &Stdio{
		enc:      json.NewEncoder(out),
		in:       in,
		pending:  map[int64]chan frame{},
		handlers: map[int]func(runtime.Event){},
	}
}

// Run reads frames from the shell until the pipe closes or the context is
// cancelled. Event frames fan out to subscribers; response frames complete
// their pending request. The reader grows per line, since thread snapshots
// carry attachment payloads inline and a frame can outgrow any fixed cap.
func (b *Stdio) Run(ctx context.Context) error {
	r := bufio.NewReaderSize(b.in, 64*1024)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		line, err := r.ReadBytes('\n')
		if raw := bytes.TrimSpace(line); len(raw) > 0 {
			b.handleFrame(raw)
		}
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
	}
}

func (b *Stdio) handleFrame(raw []byte) {
	var f frame
	if err := json.Unmarshal(raw, &f); err != nil {
		log.Logger.WithError(err).Warn("discarding malformed frame from the client shell")
		return
	}

	switch {
	case f.Event != nil:
		b.dispatch(runtime.Event{
			Kind:      runtime.EventKind(f.Event.Kind),
			MessageID: f.Event.MessageID,
			ThreadID:  f.Event.ThreadID,
		})
	case f.ID != nil:
		b.complete(*f.ID, f)
	}
}

// Send asks the shell to transmit a draft. The shell owns timeout policy; a
// local ceiling only guards against a wedged pipe.
func (b *Stdio) Send(ctx context.Context, destination string, draft queue.Draft) (string, error) {
	f, err := b.roundTrip(ctx, request{Op: "send", Destination: destination, Draft: &draft})
	if err != nil {
		return "", err
	}
	if !f.OK {
		return "", errors.Errorf("bridge: send rejected by runtime: %s", f.Error)
	}

	return f.MessageID, nil
}

// Threads fetches a full conversation snapshot from the shell.
func (b *Stdio) Threads(ctx context.Context) ([]queue.Thread, error) {
	f, err := b.roundTrip(ctx, request{Op: "threads"})
	if err != nil {
		return nil, err
	}
	if !f.OK {
		return nil, errors.Errorf("bridge: thread snapshot rejected by runtime: %s", f.Error)
	}

	return f.Threads, nil
}

// Subscribe registers a runtime event handler, returning the unsubscribe
// function.
func (b *Stdio) Subscribe(handler func(runtime.Event)) func() {
	b.hmu.Lock()
	defer b.hmu.Unlock()

	id := b.nextHID
	b.nextHID++
	b.handlers[id] = handler

	return func() {
		b.hmu.Lock()
		defer b.hmu.Unlock()
		delete(b.handlers, id)
	}
}

func (b *Stdio) roundTrip(ctx context.Context, req request) (frame, error) {
	ch := make(chan frame, 1)

	b.mu.Lock()
	b.nextID++
	req.ID = b.nextID
	b.pending[req.ID] = ch
	err := b.enc.Encode(req)
	b.mu.Unlock()

	if err != nil {
		b.forget(req.ID)
		return frame{}, errors.Wrap(err, "bridge: unable to write request to the client shell")
	}

	select {
	case f := <-ch:
		return f, nil
	case <-time.After(sendTimeout):
		b.forget(req.ID)
		return frame{}, errors.Errorf("bridge: request %d timed out", req.ID)
	case <-ctx.Done():
		b.forget(req.ID)
		return frame{}, ctx.Err()
	}
}

func (b *Stdio) complete(id int64, f frame) {
	b.mu.Lock()
	ch, ok := b.pending[id]
	delete(b.pending, id)
	b.mu.Unlock()

	if !ok {
		log.Logger.Warnf("received a response for unknown request %d", id)
		return
	}

	ch <- f
}

func (b *Stdio) forget(id int64) {
	b.mu.Lock()
	delete(b.pending, id)
	b.mu.Unlock()
}

func (b *Stdio) dispatch(ev runtime.Event) {
	b.hmu.RLock()
	handlers := make([]func(runtime.Event), 0, len(b.handlers))
	for _, h := range b.handlers {
		handlers = append(handlers, h)
	}
	b.hmu.RUnlock()

	for _, h := range handlers {
		h(ev)
	}
}
