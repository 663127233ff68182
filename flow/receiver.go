package flow

import (
	"context"
	"errors"
	"fmt"

	"github.com/zlnvch/letterbox/e2ee"
	"github.com/zlnvch/letterbox/logging"
	"github.com/zlnvch/letterbox/models"
	"github.com/zlnvch/letterbox/service"
)

type Attachment struct {
	Index int
	Data  []byte
}

type OpenedLetter struct {
	Letter      models.Letter
	Body        []byte
	Attachments []Attachment
	// Dropped lists attachments that could not be recovered.
	Dropped []*AttachmentError
}

type Receiver struct {
	relay Relay
	keys  e2ee.KeyAgreer
}

func NewReceiver(relay Relay, keys e2ee.KeyAgreer) *Receiver {
	return &Receiver{relay: relay, keys: keys}
}

func (r *Receiver) Inbox(ctx context.Context, me models.Identity) ([]models.Letter, error) {
	return r.relay.ListInbox(ctx, me)
}

// Open decrypts a delivered letter and then marks it opened. If the body
// cannot be decrypted, or ctx ends before everything is read, the letter is
// left delivered on the relay.
func (r *Receiver) Open(ctx context.Context, me models.Identity, letterId string) (OpenedLetter, error) {
	letter, err := r.relay.GetLetter(ctx, me, letterId)
	if err != nil {
		return OpenedLetter{}, err
	}
	if letter.RecipientId != me.Id {
		return OpenedLetter{}, service.ErrLetterNotFound
	}
	if letter.Status == models.LetterOpened || letter.SealedContent == "" {
		return OpenedLetter{Letter: letter}, ErrAlreadyOpened
	}

	body, err := e2ee.OpenString(ctx, letter.SealedContent, r.keys)
	if errors.Is(err, e2ee.ErrInvalidData) {
		return OpenedLetter{}, fmt.Errorf("%w: %w", e2ee.ErrDecryptionFailed, err)
	}
	if err != nil {
		return OpenedLetter{}, err
	}

	opened := OpenedLetter{Body: body}
	for i, ref := range letter.AttachmentRefs {
		if err := ctx.Err(); err != nil {
			return OpenedLetter{}, err
		}

		data, err := r.openAttachment(ctx, me, ref)
		if err != nil {
			attErr := &AttachmentError{Index: i, Ref: ref, Err: err}
			logging.Log.WithError(err).WithField("letterId", letterId).Warnf("Dropping attachment %d", i)
			opened.Dropped = append(opened.Dropped, attErr)
			continue
		}
		opened.Attachments = append(opened.Attachments, Attachment{Index: i, Data: data})
	}

	if err := ctx.Err(); err != nil {
		return OpenedLetter{}, err
	}

	opened.Letter, err = r.relay.MarkOpened(ctx, me, letterId)
	if err != nil {
		return OpenedLetter{}, err
	}
	return opened, nil
}

func (r *Receiver) openAttachment(ctx context.Context, me models.Identity, ref string) ([]byte, error) {
	sealed, err := r.relay.DownloadAttachment(ctx, me, ref)
	if err != nil {
		return nil, err
	}
	return e2ee.OpenString(ctx, string(sealed), r.keys)
}
