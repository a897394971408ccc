package processor

import (
	"context"

	"github.com/sirupsen/logrus"

	"weft/outbound-queue/log"
	"weft/outbound-queue/queue"
	"weft/outbound-queue/queue/data"
)

type repository interface {
	CommitDelivered(ctx context.Context, id string) data.WriteResult
	CommitAttemptFailed(ctx context.Context, id, errMsg string) data.WriteResult
}

type sender interface {
	Send(ctx context.Context, destination string, draft queue.Draft) (string, error)
}

// SendProcessor consumes claimed queue entries and drives one delivery
// attempt each through the runtime send collaborator. There is no
// cancellation of an in-flight attempt: it either completes or fails, and
// the resolved outcome is committed back to the repository.
type SendProcessor struct {
	repo   repository
	sender sender
}

func NewSendProcessor(r repository, s sender) SendProcessor {
	return SendProcessor{
		repo:   r,
		sender: s,
	}
}

func (p SendProcessor) ListenAndProcess(ctx context.Context, entries <-chan *queue.Entry) {
	for {
		select {
		case e := <-entries:
			if e == nil {
				break
			}
			p.process(ctx, e)
		case <-ctx.Done():
			return
		}
	}
}

func (p SendProcessor) process(ctx context.Context, e *queue.Entry) {
	log.Logger.WithFields(logrus.Fields{
		"entry_id": e.ID,
		"attempts": e.Attempts,
	}).Debug("attempting to resend queue entry")

	msgID, err := p.sender.Send(ctx, e.Destination, e.Draft)
	if err != nil {
		log.Logger.WithError(err).WithFields(logrus.Fields{
			"entry_id": e.ID,
		}).Debug("error encountered whilst resending a queue entry")

		if res := p.repo.CommitAttemptFailed(ctx, e.ID, err.Error()); !res.OK {
			log.Logger.WithError(res.Err).Errorf("unable to record the failed attempt for queue entry %s", e.ID)
		}
		return
	}

	log.Logger.WithFields(logrus.Fields{
		"entry_id":   e.ID,
		"message_id": msgID,
	}).Info("queue entry delivered")

	if res := p.repo.CommitDelivered(ctx, e.ID); !res.OK {
		log.Logger.WithError(res.Err).Errorf("unable to remove the delivered queue entry %s", e.ID)
	}
}
