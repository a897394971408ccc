package runtime

import (
	"context"

	"weft/outbound-queue/log"
	"weft/outbound-queue/queue"
	"weft/outbound-queue/queue/data"
)

type repository interface {
	ApplyThreads(ctx context.Context, threads []queue.Thread) data.WriteResult
	CommitDelivered(ctx context.Context, id string) data.WriteResult
}

// Reconciler consumes runtime events and re-derives queue membership from
// thread snapshots. It never sends anything itself; resend attempts are
// driven by the scheduler polling the repository. Every handler is
// idempotent, so duplicate events are harmless.
type Reconciler struct {
	repo     repository
	provider ThreadProvider
}

func NewReconciler(repo repository, provider ThreadProvider) *Reconciler {
	return &Reconciler{
		repo:     repo,
		provider: provider,
	}
}

// Start subscribes to the runtime event stream and runs an initial sync so
// failures reported while this process was down are picked up. Returns the
// unsubscribe function.
func (r *Reconciler) Start(ctx context.Context, sub Subscription) func() {
	if res := r.Resync(ctx); !res.OK {
		log.Logger.WithError(res.Err).Error("initial queue reconciliation failed")
	}

	return sub.Subscribe(func(ev Event) {
		r.handle(ctx, ev)
	})
}

func (r *Reconciler) handle(ctx context.Context, ev Event) {
	switch ev.Kind {
	case EventMessageDelivered, EventDeliveryReceipt:
		if ev.MessageID == "" {
			return
		}
		// the runtime confirmed delivery on its own; drop the mirrored
		// entry if one exists
		if res := r.repo.CommitDelivered(ctx, "failed:"+ev.MessageID); !res.OK {
			log.Logger.WithError(res.Err).Errorf("unable to drop queue entry for delivered message %s", ev.MessageID)
		}
	case EventMessageFailed, EventMessageInbound, EventMessageOutbound:
		if res := r.Resync(ctx); !res.OK {
			log.Logger.WithError(res.Err).Error("queue reconciliation after runtime event failed")
		}
	}
}

// Resync pulls a fresh thread snapshot and reconciles the queue against it.
func (r *Reconciler) Resync(ctx context.Context) data.WriteResult {
	threads, err := r.provider.Threads(ctx)
	if err != nil {
		return data.WriteResult{Code: data.WriteErrUnknown, Err: err}
	}

	return r.repo.ApplyThreads(ctx, threads)
}
