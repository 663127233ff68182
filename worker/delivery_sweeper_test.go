package worker

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type countingDeliverer struct {
	calls atomic.Int32
}

func (d *countingDeliverer) DeliverDueLetters(ctx context.Context) (int, error) {
	d.calls.Add(1)
	return 1, nil
}

func TestDeliverySweeper_SweepsImmediatelyAndOnTick(t *testing.T) {
	deliverer := &countingDeliverer{}
	sweeper := NewDeliverySweeper(deliverer, 20*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		sweeper.Run(ctx)
		close(done)
	}()

	assert.Eventually(t, func() bool { return deliverer.calls.Load() >= 3 }, 2*time.Second, 5*time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("sweeper did not stop")
	}
}
