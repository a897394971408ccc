package job

import (
	"context"

	"weft/outbound-queue/log"
)

type compacter interface {
	Compact(ctx context.Context) error
}

// RunCompact reclaims storage space freed by delivered entries and evicted
// blobs: a full keyspace compaction on pebble, VACUUM on sqlite.
func RunCompact(ctx context.Context, store compacter) int {
	if err := store.Compact(ctx); err != nil {
		log.Logger.WithError(err).Error("an error occurred whilst compacting durable storage")
		return 1
	}

	log.Logger.Info("durable storage compacted")

	return 0
}
