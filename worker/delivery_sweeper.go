package worker

import (
	"context"
	"time"

	"github.com/zlnvch/letterbox/logging"
)

type DueLetterDeliverer interface {
	DeliverDueLetters(ctx context.Context) (int, error)
}

// DeliverySweeper periodically delivers every letter whose condition has
// fired. Queue jobs give short delays precision; the sweeper covers the rest
// and anything a lost job missed.
type DeliverySweeper struct {
	deliverer DueLetterDeliverer
	interval  time.Duration
}

func NewDeliverySweeper(deliverer DueLetterDeliverer, interval time.Duration) *DeliverySweeper {
	return &DeliverySweeper{
		deliverer: deliverer,
		interval:  interval,
	}
}

func (s *DeliverySweeper) Run(shutdownCtx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.sweep(shutdownCtx)
	for {
		select {
		case <-ticker.C:
			s.sweep(shutdownCtx)
		case <-shutdownCtx.Done():
			return
		}
	}
}

func (s *DeliverySweeper) sweep(shutdownCtx context.Context) {
	ctx, cancel := context.WithTimeout(shutdownCtx, s.interval)
	defer cancel()

	delivered, err := s.deliverer.DeliverDueLetters(ctx)
	if err != nil {
		logging.Log.WithError(err).Error("Delivery sweep failed")
	}
	if delivered > 0 {
		logging.Log.Infof("Delivered %d letters", delivered)
	}
}
