package prometheus

import (
	"context"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"weft/outbound-queue/log"
)

var blobStoreUsedBytes prom.Gauge

type blobSizer interface {
	UsedBytes(ctx context.Context) (int64, error)
}

func init() {
	blobStoreUsedBytes = promauto.NewGauge(prom.GaugeOpts{
		Name: "outbound_queue_blob_store_bytes",
		Help: "Payload bytes currently held by the attachment blob store",
	})
}

func ObserveBlobUsage(ctx context.Context, sizer blobSizer) {
	for {
		used, err := sizer.UsedBytes(ctx)
		if err != nil {
			log.Logger.WithError(err).Error("an error occurred determining blob store usage")
			time.Sleep(time.Second * 1)
			continue
		}

		select {
		case <-ctx.Done():
			return
		default:
			blobStoreUsedBytes.Set(float64(used))

			time.Sleep(time.Second * 1)
		}
	}
}
