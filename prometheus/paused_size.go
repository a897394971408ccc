package prometheus

import (
	"context"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"weft/outbound-queue/log"
)

var outboundQueuePaused prom.Gauge

type pausedSizer interface {
	GetPausedSize() (uint, error)
}

func init() {
	outboundQueuePaused = promauto.NewGauge(prom.GaugeOpts{
		Name: "outbound_queue_paused_entries",
		Help: "The number of queue entries paused and needing manual attention",
	})
}

func ObservePausedSize(ctx context.Context, sizer pausedSizer) {
	for {
		size, err := sizer.GetPausedSize()
		if err != nil {
			log.Logger.WithError(err).Error("an error occurred determining the number of paused entries")
			time.Sleep(time.Second * 1)
			continue
		}

		select {
		case <-ctx.Done():
			return
		default:
			outboundQueuePaused.Set(float64(size))

			time.Sleep(time.Second * 1)
		}
	}
}
