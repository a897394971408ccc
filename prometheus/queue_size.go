package prometheus

import (
	"context"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"weft/outbound-queue/log"
)

var outboundQueueSize prom.Gauge

type queueSizer interface {
	GetQueueSize() (uint, error)
}

func init() {
	outboundQueueSize = promauto.NewGauge(prom.GaugeOpts{
		Name: "outbound_queue_size",
		Help: "The current number of messages awaiting successful delivery",
	})
}

func ObserveQueueSize(ctx context.Context, sizer queueSizer) {
	for {
		size, err := sizer.GetQueueSize()
		if err != nil {
			log.Logger.WithError(err).Error("an error occurred determining the size of the queue")
			time.Sleep(time.Second * 1)
			continue
		}

		select {
		case <-ctx.Done():
			return
		default:
			outboundQueueSize.Set(float64(size))

			time.Sleep(time.Second * 1)
		}
	}
}
