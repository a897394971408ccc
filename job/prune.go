package job

import (
	"context"

	"weft/outbound-queue/log"
	"weft/outbound-queue/queue"
)

type blobPruner interface {
	Prune(ctx context.Context, activeKeys map[string]bool) error
}

type entryLister interface {
	Entries() []queue.Entry
}

type prune struct {
	entries entryLister
	blobs   blobPruner
}

// RunPrune sweeps the blob store for payloads no longer referenced by any
// live queue entry. The persistence layer prunes after every write, so this
// job only matters after crashes that interrupted a save.
func RunPrune(ctx context.Context, entries entryLister, blobs blobPruner) int {
	j := &prune{
		entries: entries,
		blobs:   blobs,
	}

	if err := j.Execute(ctx); err != nil {
		return 1
	}

	return 0
}

func (p *prune) Execute(ctx context.Context) error {
	active := map[string]bool{}
	for _, e := range p.entries.Entries() {
		for _, a := range e.Draft.Attachments {
			if key, ok := a.Stored(); ok {
				active[key] = true
			}
		}
	}

	if err := p.blobs.Prune(ctx, active); err != nil {
		log.Logger.WithError(err).Error("an error occurred whilst pruning orphaned attachment blobs")
		return err
	}

	log.Logger.Infof("pruned the blob store against %d live attachment reference(s)", len(active))

	return nil
}
