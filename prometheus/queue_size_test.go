package prometheus

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"weft/outbound-queue/queue/data/test"
)

func TestObserveQueueSize(t *testing.T) {
	repo := test.NewMockRepository()
	repo.SetQueueSize(32)

	ctx, cancel := context.WithCancel(context.Background())
	go ObserveQueueSize(ctx, repo)
	time.Sleep(time.Millisecond * 100)
	cancel()

	actual := testutil.ToFloat64(outboundQueueSize)
	if actual != 32.00 {
		t.Errorf("expected outboundQueueSize to be 32.000000, but got %f", actual)
	}
}

func TestObserveQueueSize_WithRepositoryError(t *testing.T) {
	outboundQueueSize.Set(0.0)
	repo := test.NewMockRepository()
	repo.ReturnErrors()

	ctx, cancel := context.WithCancel(context.Background())
	go ObserveQueueSize(ctx, repo)
	time.Sleep(time.Millisecond * 100)
	cancel()

	actual := testutil.ToFloat64(outboundQueueSize)
	if actual != 0.00 {
		t.Errorf("expected outboundQueueSize to be 0.000000, but got %f", actual)
	}
}
