// Package flow coordinates the device side of a letter exchange: sealing
// and uploading on send, downloading and opening on receive. Keys never
// leave the device; the relay only ever sees sealed envelopes.
package flow

import (
	"context"
	"errors"
	"fmt"

	"github.com/zlnvch/letterbox/models"
	"github.com/zlnvch/letterbox/service"
)

// Relay is the part of the letterbox service the flows talk to.
// *service.Service satisfies it in-process.
type Relay interface {
	GetPairing(ctx context.Context, me models.Identity, peerId string) (models.Pairing, error)
	UploadAttachment(ctx context.Context, me models.Identity, path string, sealed []byte) error
	DeleteAttachment(ctx context.Context, me models.Identity, path string) error
	CreateLetter(ctx context.Context, me models.Identity, params service.CreateLetterParams) (models.Letter, error)
	GetLetter(ctx context.Context, me models.Identity, id string) (models.Letter, error)
	ListInbox(ctx context.Context, me models.Identity) ([]models.Letter, error)
	DownloadAttachment(ctx context.Context, me models.Identity, path string) ([]byte, error)
	MarkOpened(ctx context.Context, me models.Identity, id string) (models.Letter, error)
}

var (
	// ErrAttachmentFailure marks a single attachment that could not be
	// downloaded or opened. It never fails the letter as a whole.
	ErrAttachmentFailure = errors.New("attachment could not be opened")

	// ErrAlreadyOpened is returned when the sealed copy is gone because the
	// letter was opened before.
	ErrAlreadyOpened = errors.New("letter already opened")
)

type AttachmentError struct {
	Index int
	Ref   string
	Err   error
}

func (e *AttachmentError) Error() string {
	return fmt.Sprintf("attachment %d: %v", e.Index, e.Err)
}

func (e *AttachmentError) Unwrap() []error {
	return []error{ErrAttachmentFailure, e.Err}
}
