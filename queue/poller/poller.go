package poller

import (
	"context"
	"time"

	"weft/outbound-queue/log"
	"weft/outbound-queue/queue"
	"weft/outbound-queue/queue/data"
)

type Poller interface {
	Poll(ctx context.Context, interval time.Duration)
}

type repository interface {
	ClaimNextDue(ctx context.Context) (*queue.Entry, error)
}

func New(r repository, ch chan<- *queue.Entry) Poller {
	return &queuePoller{
		ch:   ch,
		repo: r,
	}
}

type queuePoller struct {
	ch   chan<- *queue.Entry
	repo repository
}

func (p queuePoller) Poll(ctx context.Context, interval time.Duration) {
	for {
		entry, err := p.repo.ClaimNextDue(ctx)
		if err != nil {
			if err != data.ErrNoDueEntries {
				log.Logger.WithError(err).Errorf("an unexpected error occurred when polling the queue: %s", err)
			}
			if !sleep(ctx, interval) {
				return
			}
			continue
		}

		select {
		case p.ch <- entry:
		case <-ctx.Done():
			return
		}

		if !sleep(ctx, interval) {
			return
		}
	}
}

func sleep(ctx context.Context, interval time.Duration) bool {
	select {
	case <-time.After(interval):
		return true
	case <-ctx.Done():
		return false
	}
}
