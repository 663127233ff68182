package service

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/gofrs/uuid/v5"
	"github.com/zlnvch/letterbox/logging"
	"github.com/zlnvch/letterbox/models"
	"github.com/zlnvch/letterbox/store"
	"github.com/zlnvch/letterbox/worker"
)

type CreateLetterParams struct {
	// Id is optional. Clients that upload attachments first pick the id
	// themselves; retrying with the same id never sends twice.
	Id             string
	RecipientId    string
	SealedContent  string
	AttachmentRefs []string
	Condition      models.DeliveryCondition
	Ephemeral      bool
}

func (s *Service) CreateLetter(ctx context.Context, sender models.Identity, params CreateLetterParams) (models.Letter, error) {
	if params.RecipientId == sender.Id {
		return models.Letter{}, ErrNotPaired
	}

	letterId, err := s.letterId(params.Id)
	if err != nil {
		return models.Letter{}, err
	}
	if err := ValidateSealedContent(params.SealedContent); err != nil {
		return models.Letter{}, err
	}
	if err := ValidateAttachmentRefs(letterId, params.AttachmentRefs); err != nil {
		return models.Letter{}, err
	}

	now := s.now()
	condition, err := models.ResolveCondition(params.Condition, now, s.Rng)
	if err != nil {
		return models.Letter{}, err
	}

	letter := models.Letter{
		Id:             letterId,
		SenderId:       sender.Id,
		RecipientId:    params.RecipientId,
		SealedContent:  params.SealedContent,
		AttachmentRefs: params.AttachmentRefs,
		Condition:      condition,
		Ephemeral:      params.Ephemeral,
		CreatedAt:      now,
	}

	switch c := condition.(type) {
	case models.FixedDate:
		letter.DeliverAt = c.At
		letter.Status = models.LetterScheduled
		if !c.At.After(now) {
			letter.Status = models.LetterDelivered
			letter.DeliveredAt = now
		}
	case models.SenderInactivity:
		letter.DeliverAt = models.InactivityDeadline(c, now, now)
		letter.Status = models.LetterPending
	}

	created, err := s.Store.CreateLetter(ctx, letter, MaxPendingLetters)
	switch {
	case errors.Is(err, store.ErrItemNotFound):
		return models.Letter{}, ErrNotPaired
	case errors.Is(err, store.ErrConditionFailed):
		return models.Letter{}, ErrTooManyPendingLetters
	case errors.Is(err, store.ErrItemExists):
		if created.SenderId != sender.Id {
			return models.Letter{}, fmt.Errorf("%w: letter id already used", ErrInvalidInput)
		}
		logging.Log.WithField("letterId", created.Id).Debug("Letter resent, returning the stored copy")
		return created, nil
	case err != nil:
		return models.Letter{}, err
	}

	if created.Status == models.LetterDelivered {
		s.notify(created.RecipientId, Notification{Type: NotificationLetterDelivered, PeerId: created.SenderId, LetterId: created.Id})
	} else {
		s.scheduleDeliveryCheck(created, now)
	}

	return created, nil
}

// NewLetterId returns a time ordered id for a letter the caller is about to
// create.
func NewLetterId() (string, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return "", err
	}
	return id.String(), nil
}

func (s *Service) letterId(requested string) (string, error) {
	if requested == "" {
		return NewLetterId()
	}
	if err := ValidateLetterId(requested); err != nil {
		return "", err
	}
	// Braced, urn and unhyphenated forms are stored as the hyphenated one
	return uuid.FromStringOrNil(requested).String(), nil
}

// GetLetter returns a letter to its sender at any time and to its recipient
// once delivered. Everyone else, and the recipient before delivery, gets
// ErrLetterNotFound.
func (s *Service) GetLetter(ctx context.Context, identity models.Identity, id string) (models.Letter, error) {
	letter, err := s.Store.GetLetter(ctx, id)
	if errors.Is(err, store.ErrItemNotFound) {
		return models.Letter{}, ErrLetterNotFound
	}
	if err != nil {
		return models.Letter{}, err
	}
	if !letter.VisibleTo(identity.Id) {
		return models.Letter{}, ErrLetterNotFound
	}
	return letter, nil
}

func (s *Service) ListInbox(ctx context.Context, recipient models.Identity) ([]models.Letter, error) {
	letters, err := s.Store.ListLettersByRecipient(ctx, recipient.Id)
	if err != nil {
		return nil, err
	}
	return slices.DeleteFunc(letters, func(l models.Letter) bool { return !l.Status.Readable() }), nil
}

func (s *Service) ListOutbox(ctx context.Context, sender models.Identity) ([]models.Letter, error) {
	return s.Store.ListLettersBySender(ctx, sender.Id)
}

// MarkOpened records that the recipient has read the letter. The sealed
// copy is dropped from the record and its attachments are queued for
// removal; ephemeral letters are removed entirely. Opening twice returns the
// opened letter.
func (s *Service) MarkOpened(ctx context.Context, recipient models.Identity, id string) (models.Letter, error) {
	letter, err := s.recipientLetter(ctx, recipient, id)
	if err != nil {
		return models.Letter{}, err
	}
	if letter.Status == models.LetterOpened {
		return letter, nil
	}

	opened, err := s.Store.MarkLetterOpened(ctx, letter, s.now())
	if errors.Is(err, store.ErrConditionFailed) {
		// Opened concurrently
		return s.recipientLetter(ctx, recipient, id)
	}
	if err != nil {
		return models.Letter{}, err
	}

	if opened.Ephemeral {
		if err := s.Store.DeleteLetter(ctx, opened); err != nil && !errors.Is(err, store.ErrConditionFailed) {
			logging.Log.WithError(err).WithField("letterId", id).Error("Failed to remove ephemeral letter")
		}
	}
	if len(letter.AttachmentRefs) > 0 {
		s.enqueue(worker.Job{Type: worker.JobCleanupLetter, LetterId: id}, 0)
	}

	return opened, nil
}

func (s *Service) recipientLetter(ctx context.Context, recipient models.Identity, id string) (models.Letter, error) {
	letter, err := s.GetLetter(ctx, recipient, id)
	if err != nil {
		return models.Letter{}, err
	}
	if letter.RecipientId != recipient.Id {
		return models.Letter{}, ErrLetterNotFound
	}
	return letter, nil
}

// DeleteLetter lets the recipient discard a delivered or opened letter and
// the sender withdraw one that has not been delivered yet.
func (s *Service) DeleteLetter(ctx context.Context, identity models.Identity, id string) error {
	letter, err := s.Store.GetLetter(ctx, id)
	if errors.Is(err, store.ErrItemNotFound) {
		return ErrLetterNotFound
	}
	if err != nil {
		return err
	}

	var allowed bool
	switch identity.Id {
	case letter.RecipientId:
		allowed = letter.Status.Readable()
	case letter.SenderId:
		allowed = letter.Status == models.LetterPending || letter.Status == models.LetterScheduled
	}
	if !allowed {
		return ErrLetterNotFound
	}

	if err := s.Store.DeleteLetter(ctx, letter); err != nil {
		if errors.Is(err, store.ErrConditionFailed) {
			// The status moved on since it was read
			return ErrLetterNotFound
		}
		return err
	}

	if len(letter.AttachmentRefs) > 0 {
		s.enqueue(worker.Job{Type: worker.JobCleanupLetter, LetterId: id}, 0)
	}
	return nil
}
