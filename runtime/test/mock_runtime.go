package test

import (
	"context"
	"errors"
	"sync"

	"weft/outbound-queue/queue"
	"weft/outbound-queue/runtime"
)

// MockSender records sent drafts and can be told to fail for specific
// destinations.
type MockSender struct {
	sync.RWMutex
	sendCallCount int
	sent          []SentDraft
	failFor       map[string]error
	nextMessageID string
}

type SentDraft struct {
	Destination string
	Draft       queue.Draft
}

func NewMockSender() *MockSender {
	return &MockSender{
		failFor:       map[string]error{},
		nextMessageID: "msg-1",
	}
}

func (m *MockSender) Send(ctx context.Context, destination string, draft queue.Draft) (string, error) {
	m.Lock()
	defer m.Unlock()
	m.sendCallCount++

	if err, ok := m.failFor[destination]; ok {
		return "", err
	}

	m.sent = append(m.sent, SentDraft{Destination: destination, Draft: draft})

	return m.nextMessageID, nil
}

func (m *MockSender) FailFor(destination, msg string) {
	m.Lock()
	defer m.Unlock()
	m.failFor[destination] = errors.New(msg)
}

func (m *MockSender) DraftWasSent(destination string) bool {
	m.RLock()
	defer m.RUnlock()
	for _, s := range m.sent {
		if s.Destination == destination {
			return true
		}
	}
	return false
}

func (m *MockSender) SendCallCount() int {
	m.RLock()
	defer m.RUnlock()
	return m.sendCallCount
}

func (m *MockSender) SentCount() int {
	m.RLock()
	defer m.RUnlock()
	return len(m.sent)
}

func (m *MockSender) Sent() []SentDraft {
	m.RLock()
	defer m.RUnlock()
	return append([]SentDraft(nil), m.sent...)
}

// MockThreadProvider serves a canned snapshot.
type MockThreadProvider struct {
	sync.RWMutex
	threads     []queue.Thread
	returnError bool
	callCount   int
}

func NewMockThreadProvider() *MockThreadProvider {
	return &MockThreadProvider{}
}

func (m *MockThreadProvider) Threads(ctx context.Context) ([]queue.Thread, error) {
	m.Lock()
	defer m.Unlock()
	m.callCount++

	if m.returnError {
		return nil, errors.New("oops")
	}

	return append([]queue.Thread(nil), m.threads...), nil
}

func (m *MockThreadProvider) SetThreads(threads []queue.Thread) {
	m.Lock()
	defer m.Unlock()
	m.threads = threads
}

func (m *MockThreadProvider) ReturnErrors() {
	m.Lock()
	defer m.Unlock()
	m.returnError = true
}

func (m *MockThreadProvider) CallCount() int {
	m.RLock()
	defer m.RUnlock()
	return m.callCount
}

// MockSubscription lets tests emit events synchronously.
type MockSubscription struct {
	sync.RWMutex
	handlers     []func(ev runtime.Event)
	unsubscribed int
}

func NewMockSubscription() *MockSubscription {
	return &MockSubscription{}
}

func (m *MockSubscription) Subscribe(handler func(ev runtime.Event)) func() {
	m.Lock()
	defer m.Unlock()
	m.handlers = append(m.handlers, handler)

	return func() {
		m.Lock()
		defer m.Unlock()
		m.unsubscribed++
	}
}

func (m *MockSubscription) Emit(ev runtime.Event) {
	m.RLock()
	handlers := append(([]func(ev runtime.Event))(nil), m.handlers...)
	m.RUnlock()

	for _, h := range handlers {
		h(ev)
	}
}

func (m *MockSubscription) UnsubscribeCount() int {
	m.RLock()
	defer m.RUnlock()
	return m.unsubscribed
}
