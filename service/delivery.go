package service

import (
	"context"
	"errors"
	"time"

	"github.com/zlnvch/letterbox/logging"
	"github.com/zlnvch/letterbox/models"
	"github.com/zlnvch/letterbox/store"
)

// DeliverDueLetters delivers every scheduled letter whose instant has passed
// and every inactivity letter whose sender has stayed silent long enough.
// Inactivity letters whose sender was seen since are pushed back instead.
// It returns how many letters were delivered.
func (s *Service) DeliverDueLetters(ctx context.Context) (int, error) {
	now := s.now()
	delivered := 0

	scheduled, err := s.Store.ListDueLetters(ctx, models.LetterScheduled, now)
	if err != nil {
		return 0, err
	}
	for _, letter := range scheduled {
		ok, err := s.deliver(ctx, letter.Id, now)
		if err != nil {
			logging.Log.WithError(err).WithField("letterId", letter.Id).Error("Failed to deliver letter")
			continue
		}
		if ok {
			delivered++
		}
	}

	pending, err := s.Store.ListDueLetters(ctx, models.LetterPending, now)
	if err != nil {
		return delivered, err
	}
	for _, letter := range pending {
		ok, err := s.checkInactivityLetter(ctx, letter, now)
		if err != nil {
			logging.Log.WithError(err).WithField("letterId", letter.Id).Error("Failed to check inactivity letter")
			continue
		}
		if ok {
			delivered++
		}
	}

	return delivered, nil
}

// CheckLetterDelivery delivers one letter if it is due. A letter that is not
// due yet gets another check queued when that is close enough.
func (s *Service) CheckLetterDelivery(ctx context.Context, letterId string) error {
	letter, err := s.Store.GetLetter(ctx, letterId)
	if errors.Is(err, store.ErrItemNotFound) {
		return nil
	}
	if err != nil {
		return err
	}

	now := s.now()
	switch letter.Status {
	case models.LetterScheduled:
		if letter.DeliverAt.After(now) {
			s.scheduleDeliveryCheck(letter, now)
			return nil
		}
		_, err := s.deliver(ctx, letter.Id, now)
		return err
	case models.LetterPending:
		_, err := s.checkInactivityLetter(ctx, letter, now)
		return err
	}
	return nil
}

func (s *Service) checkInactivityLetter(ctx context.Context, letter models.Letter, now time.Time) (bool, error) {
	cond, ok := letter.Condition.(models.SenderInactivity)
	if !ok {
		return false, nil
	}

	lastActive, err := s.LastActive(ctx, letter.SenderId)
	if err != nil {
		return false, err
	}

	deadline := models.InactivityDeadline(cond, letter.CreatedAt, lastActive)
	if deadline.After(now) {
		if deadline.After(letter.DeliverAt) {
			return false, s.Store.RescheduleLetter(ctx, letter.Id, deadline)
		}
		return false, nil
	}

	return s.deliver(ctx, letter.Id, now)
}

// deliver reports false without error when another worker got there first.
func (s *Service) deliver(ctx context.Context, letterId string, now time.Time) (bool, error) {
	letter, err := s.Store.MarkLetterDelivered(ctx, letterId, now)
	if errors.Is(err, store.ErrConditionFailed) || errors.Is(err, store.ErrItemNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	logging.Log.WithField("letterId", letterId).Debug("Letter delivered")
	s.notify(letter.RecipientId, Notification{Type: NotificationLetterDelivered, PeerId: letter.SenderId, LetterId: letter.Id})
	return true, nil
}
