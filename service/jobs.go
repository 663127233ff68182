package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/zlnvch/letterbox/blob"
	"github.com/zlnvch/letterbox/logging"
	"github.com/zlnvch/letterbox/models"
	"github.com/zlnvch/letterbox/mq"
	"github.com/zlnvch/letterbox/store"
	"github.com/zlnvch/letterbox/worker"
)

// HandleJob runs one queued job. Every job is safe to repeat.
func (s *Service) HandleJob(ctx context.Context, job worker.Job) error {
	switch job.Type {
	case worker.JobCheckDelivery:
		return s.CheckLetterDelivery(ctx, job.LetterId)
	case worker.JobCleanupLetter:
		return s.CleanupLetter(ctx, job.LetterId)
	case worker.JobPushKey:
		return s.PushPublicKey(ctx, job.IdentityId)
	}
	return fmt.Errorf("unknown job type %q", job.Type)
}

// CleanupLetter removes the sealed attachments of a letter that was opened
// or deleted. Attachments of a letter that is still waiting are left alone.
func (s *Service) CleanupLetter(ctx context.Context, letterId string) error {
	letter, err := s.Store.GetLetter(ctx, letterId)
	if err != nil && !errors.Is(err, store.ErrItemNotFound) {
		return err
	}
	if err == nil && letter.Status != models.LetterOpened {
		return nil
	}

	n, err := s.Blobs.DeletePrefix(ctx, blob.LetterPrefix(letterId))
	if err != nil {
		return err
	}
	if n > 0 {
		logging.Log.WithField("letterId", letterId).Debugf("Removed %d attachments", n)
	}
	return nil
}

// enqueue sends a job in the background. Jobs that never arrive are picked
// up by the delivery sweeper or are only housekeeping.
func (s *Service) enqueue(job worker.Job, delay time.Duration) {
	go func() {
		body, err := job.Encode()
		if err != nil {
			return
		}

		seconds := int32(delay / time.Second)
		if seconds > 0 {
			err = s.MQ.SendDelayed(context.Background(), body, seconds)
		} else {
			err = s.MQ.Send(context.Background(), body)
		}
		if err != nil {
			logging.Log.WithError(err).Warnf("Failed to enqueue %s job", job.Type)
		}
	}()
}

// scheduleDeliveryCheck queues a delivery check when the letter is due
// within the queue's delay limit. Later letters are left to the sweeper.
func (s *Service) scheduleDeliveryCheck(letter models.Letter, now time.Time) {
	if letter.Status != models.LetterScheduled {
		return
	}
	delay := letter.DeliverAt.Sub(now)
	if delay > mq.MaxDelaySeconds*time.Second {
		return
	}
	// Round up so the job never arrives before the letter is due
	delay = delay.Truncate(time.Second) + time.Second
	s.enqueue(worker.Job{Type: worker.JobCheckDelivery, LetterId: letter.Id}, delay)
}
