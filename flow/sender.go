package flow

import (
	"context"
	"errors"
	"fmt"

	"github.com/zlnvch/letterbox/blob"
	"github.com/zlnvch/letterbox/e2ee"
	"github.com/zlnvch/letterbox/logging"
	"github.com/zlnvch/letterbox/models"
	"github.com/zlnvch/letterbox/service"
)

type SendRequest struct {
	// LetterId resumes an earlier send. Leave empty for a new letter.
	LetterId    string
	RecipientId string
	Body        []byte
	Attachments [][]byte
	Condition   models.DeliveryCondition
	Ephemeral   bool
}

type Sender struct {
	relay Relay
}

func NewSender(relay Relay) *Sender {
	return &Sender{relay: relay}
}

// Send seals the body and every attachment to the recipient's key and
// writes the letter. If anything fails before the letter is written, the
// attachments uploaded so far are removed again. Once written, the letter
// is returned even if ctx is cancelled afterwards.
func (s *Sender) Send(ctx context.Context, me models.Identity, req SendRequest) (models.Letter, error) {
	if err := validateSendRequest(req); err != nil {
		return models.Letter{}, err
	}

	if req.LetterId != "" {
		letter, err := s.relay.GetLetter(ctx, me, req.LetterId)
		if err == nil && letter.SenderId == me.Id {
			// Already written by an earlier attempt, never seal twice
			return letter, nil
		}
		if err != nil && !errors.Is(err, service.ErrLetterNotFound) {
			return models.Letter{}, err
		}
	}

	pairing, err := s.relay.GetPairing(ctx, me, req.RecipientId)
	if err != nil {
		return models.Letter{}, err
	}
	if pairing.PendingLetterCount >= service.MaxPendingLetters {
		return models.Letter{}, service.ErrTooManyPendingLetters
	}

	letterId := req.LetterId
	if letterId == "" {
		if letterId, err = service.NewLetterId(); err != nil {
			return models.Letter{}, err
		}
	}

	sealedBody, err := e2ee.SealToString(req.Body, pairing.PeerPublicKey)
	if err != nil {
		return models.Letter{}, fmt.Errorf("seal body: %w", err)
	}

	refs := make([]string, 0, len(req.Attachments))
	fail := func(err error) (models.Letter, error) {
		s.removeUploads(ctx, me, refs)
		return models.Letter{}, err
	}

	for i, attachment := range req.Attachments {
		if err := ctx.Err(); err != nil {
			return fail(err)
		}

		sealed, err := e2ee.SealToString(attachment, pairing.PeerPublicKey)
		if err != nil {
			return fail(fmt.Errorf("seal attachment %d: %w", i, err))
		}
		path, err := blob.NewAttachmentPath(letterId)
		if err != nil {
			return fail(err)
		}
		if err := s.relay.UploadAttachment(ctx, me, path, []byte(sealed)); err != nil {
			return fail(fmt.Errorf("upload attachment %d: %w", i, err))
		}
		refs = append(refs, path)
	}

	if err := ctx.Err(); err != nil {
		return fail(err)
	}

	letter, err := s.relay.CreateLetter(ctx, me, service.CreateLetterParams{
		Id:             letterId,
		RecipientId:    req.RecipientId,
		SealedContent:  sealedBody,
		AttachmentRefs: refs,
		Condition:      req.Condition,
		Ephemeral:      req.Ephemeral,
	})
	if err != nil {
		return fail(err)
	}

	return letter, nil
}

// removeUploads runs detached from ctx so a cancelled send still cleans up.
// The relay refuses to delete attachments of a letter that was written.
func (s *Sender) removeUploads(ctx context.Context, me models.Identity, refs []string) {
	cleanupCtx := context.WithoutCancel(ctx)
	for _, ref := range refs {
		if err := s.relay.DeleteAttachment(cleanupCtx, me, ref); err != nil {
			logging.Log.WithError(err).WithField("ref", ref).Warn("Failed to remove uploaded attachment")
		}
	}
}

func validateSendRequest(req SendRequest) error {
	if len(req.Body) == 0 || len(req.Body) > service.MaxBodySize {
		return fmt.Errorf("%w: body must be 1 to %d bytes", service.ErrInvalidInput, service.MaxBodySize)
	}
	if len(req.Attachments) > service.MaxAttachments {
		return fmt.Errorf("%w: at most %d attachments", service.ErrInvalidInput, service.MaxAttachments)
	}
	for i, a := range req.Attachments {
		if len(a) == 0 || len(a) > service.MaxAttachmentSize {
			return fmt.Errorf("%w: attachment %d must be 1 to %d bytes", service.ErrInvalidInput, i, service.MaxAttachmentSize)
		}
	}
	if req.Condition == nil {
		return fmt.Errorf("%w: missing", models.ErrInvalidCondition)
	}
	return nil
}
