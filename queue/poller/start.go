package poller

import (
	"context"

	"weft/outbound-queue/config"
	"weft/outbound-queue/log"
	"weft/outbound-queue/queue"
	"weft/outbound-queue/queue/data"
	"weft/outbound-queue/queue/processor"
)

type senderFunc interface {
	Send(ctx context.Context, destination string, draft queue.Draft) (string, error)
}

// Start wires the due-entry poller to the send processor. Entries are
// claimed one at a time: the repository is the single logical mutator, so
// there is exactly one processing goroutine.
func Start(ctx context.Context, cfg *config.Config, repo *data.Repository, snd senderFunc) {
	logger := log.Logger.WithField("config", cfg)

	if cfg.PollingDisabled {
		logger.Info("queue polling is disabled, entries will only move on manual retry")
		return
	}

	logger.Info("starting outbound queue polling")

	entryCh := make(chan *queue.Entry, 1)
	go New(repo, entryCh).Poll(ctx, cfg.GetPollIntervalDurationInMs())

	proc := processor.NewSendProcessor(repo, snd)
	go proc.ListenAndProcess(ctx, entryCh)
}
