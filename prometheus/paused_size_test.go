package prometheus

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"weft/outbound-queue/queue/data/test"
)

func TestObservePausedSize(t *testing.T) {
	repo := test.NewMockRepository()
	repo.SetPausedSize(3)

	ctx, cancel := context.WithCancel(context.Background())
	go ObservePausedSize(ctx, repo)
	time.Sleep(time.Millisecond * 100)
	cancel()

	actual := testutil.ToFloat64(outboundQueuePaused)
	if actual != 3.00 {
		t.Errorf("expected outboundQueuePaused to be 3.000000, but got %f", actual)
	}
}

func TestObservePausedSize_WithRepositoryError(t *testing.T) {
	outboundQueuePaused.Set(0.0)
	repo := test.NewMockRepository()
	repo.ReturnErrors()

	ctx, cancel := context.WithCancel(context.Background())
	go ObservePausedSize(ctx, repo)
	time.Sleep(time.Millisecond * 100)
	cancel()

	actual := testutil.ToFloat64(outboundQueuePaused)
	if actual != 0.00 {
		t.Errorf("expected outboundQueuePaused to be 0.000000, but got %f", actual)
	}
}
