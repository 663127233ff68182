package service

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/zlnvch/letterbox/blob"
	"github.com/zlnvch/letterbox/models"
	"github.com/zlnvch/letterbox/store"
)

// UploadAttachment stores one sealed attachment before its letter exists.
// Paths are bound to a letter id; once that letter is written, only its
// sender may still add to it.
func (s *Service) UploadAttachment(ctx context.Context, identity models.Identity, path string, sealed []byte) error {
	letterId, err := blob.ParseAttachmentPath(path)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	if len(sealed) == 0 || len(sealed) > MaxSealedAttachmentSize {
		return fmt.Errorf("%w: attachment must be 1 to %d bytes", ErrInvalidInput, MaxSealedAttachmentSize)
	}

	letter, err := s.Store.GetLetter(ctx, letterId)
	if err == nil && letter.SenderId != identity.Id {
		return ErrUnauthorized
	}
	if err != nil && !errors.Is(err, store.ErrItemNotFound) {
		return err
	}

	err = s.Blobs.Put(ctx, blob.Blob{
		Path:      path,
		OwnerId:   identity.Id,
		Data:      sealed,
		CreatedAt: s.now(),
	})
	if errors.Is(err, blob.ErrBlobExists) {
		return fmt.Errorf("%w: attachment path taken", ErrInvalidInput)
	}
	return err
}

// DownloadAttachment returns a sealed attachment to its uploader, or to the
// recipient of the delivered letter that references it.
func (s *Service) DownloadAttachment(ctx context.Context, identity models.Identity, path string) ([]byte, error) {
	letterId, err := blob.ParseAttachmentPath(path)
	if err != nil {
		return nil, ErrLetterNotFound
	}

	b, err := s.Blobs.Get(ctx, path)
	if errors.Is(err, blob.ErrBlobNotFound) {
		return nil, ErrLetterNotFound
	}
	if err != nil {
		return nil, err
	}
	if b.OwnerId == identity.Id {
		return b.Data, nil
	}

	letter, err := s.Store.GetLetter(ctx, letterId)
	if errors.Is(err, store.ErrItemNotFound) {
		return nil, ErrLetterNotFound
	}
	if err != nil {
		return nil, err
	}
	if letter.RecipientId != identity.Id || letter.Status != models.LetterDelivered || !slices.Contains(letter.AttachmentRefs, path) {
		return nil, ErrLetterNotFound
	}
	return b.Data, nil
}

// DeleteAttachment lets the uploader remove an attachment whose letter was
// never written, so a failed send leaves nothing behind.
func (s *Service) DeleteAttachment(ctx context.Context, identity models.Identity, path string) error {
	letterId, err := blob.ParseAttachmentPath(path)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}

	b, err := s.Blobs.Get(ctx, path)
	if errors.Is(err, blob.ErrBlobNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if b.OwnerId != identity.Id {
		return ErrUnauthorized
	}

	_, err = s.Store.GetLetter(ctx, letterId)
	if err == nil {
		return fmt.Errorf("%w: attachment belongs to a sent letter", ErrInvalidInput)
	}
	if !errors.Is(err, store.ErrItemNotFound) {
		return err
	}

	return s.Blobs.Delete(ctx, path)
}
