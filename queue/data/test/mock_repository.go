package test

import (
	"context"
	"errors"
	"sync"

	"weft/outbound-queue/queue"
	"weft/outbound-queue/queue/data"
)

type MockRepository struct {
	sync.RWMutex
	claimCallCount     int
	mockQueueSize      uint
	mockPausedSize     uint
	entriesToReturn    []*queue.Entry
	delivered          map[string]bool
	failed             map[string]string
	returnError        bool
	returnNoDueEntries bool
	returnWriteErrors  bool
}

func NewMockRepository() *MockRepository {
	return &MockRepository{
		entriesToReturn: []*queue.Entry{},
		delivered:       map[string]bool{},
		failed:          map[string]string{},
	}
}

func (mr *MockRepository) ClaimNextDue(ctx context.Context) (*queue.Entry, error) {
	mr.Lock()
	defer mr.Unlock()
	mr.claimCallCount++

	if mr.returnNoDueEntries {
		return nil, data.ErrNoDueEntries
	}

	if mr.returnError {
		return nil, errors.New("oops")
	}

	e := mr.popEntry()
	if e == nil {
		return nil, data.ErrNoDueEntries
	}

	return e, nil
}

func (mr *MockRepository) CommitDelivered(ctx context.Context, id string) data.WriteResult {
	mr.Lock()
	defer mr.Unlock()

	if mr.returnWriteErrors {
		return data.WriteResult{Code: data.WriteErrUnknown, Err: errors.New("oops")}
	}

	mr.delivered[id] = true

	return data.WriteResult{OK: true}
}

func (mr *MockRepository) CommitAttemptFailed(ctx context.Context, id, errMsg string) data.WriteResult {
	mr.Lock()
	defer mr.Unlock()

	if mr.returnWriteErrors {
		return data.WriteResult{Code: data.WriteErrUnknown, Err: errors.New("oops")}
	}

	mr.failed[id] = errMsg

	return data.WriteResult{OK: true}
}

func (mr *MockRepository) GetQueueSize() (uint, error) {
	if mr.returnError {
		return 0, errors.New("oops")
	}

	return mr.mockQueueSize, nil
}

func (mr *MockRepository) GetPausedSize() (uint, error) {
	if mr.returnError {
		return 0, errors.New("oops")
	}

	return mr.mockPausedSize, nil
}

func (mr *MockRepository) AddEntry(e *queue.Entry) {
	mr.Lock()
	defer mr.Unlock()
	mr.entriesToReturn = append(mr.entriesToReturn, e)
}

func (mr *MockRepository) EntryWasDelivered(id string) bool {
	mr.RLock()
	defer mr.RUnlock()

	return mr.delivered[id]
}

func (mr *MockRepository) EntryAttemptError(id string) (string, bool) {
	mr.RLock()
	defer mr.RUnlock()
	msg, ok := mr.failed[id]

	return msg, ok
}

func (mr *MockRepository) ClaimCallCount() int {
	mr.RLock()
	defer mr.RUnlock()

	return mr.claimCallCount
}

func (mr *MockRepository) ReturnErrors() {
	mr.returnError = true
}

func (mr *MockRepository) ReturnNoDueEntriesError() {
	mr.returnNoDueEntries = true
}

func (mr *MockRepository) ReturnWriteErrors() {
	mr.returnWriteErrors = true
}

func (mr *MockRepository) SetQueueSize(size uint) {
	mr.mockQueueSize = size
}

func (mr *MockRepository) SetPausedSize(size uint) {
	mr.mockPausedSize = size
}

func (mr *MockRepository) popEntry() *queue.Entry {
	if len(mr.entriesToReturn) == 0 {
		return nil
	}

	var e *queue.Entry
	e, mr.entriesToReturn = mr.entriesToReturn[0], mr.entriesToReturn[1:]

	return e
}
