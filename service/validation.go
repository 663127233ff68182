package service

import (
	"fmt"
	"unicode/utf8"

	"github.com/gofrs/uuid/v5"
	"github.com/zlnvch/letterbox/blob"
	"github.com/zlnvch/letterbox/e2ee"
)

const (
	MaxPendingLetters = 5
	MaxInvitesPerHour = 10

	maxDisplayNameLength  = 64
	maxDisplayEmojiLength = 8

	// MaxBodySize and MaxAttachmentSize bound plaintext on the device.
	MaxBodySize       = 64 << 10
	MaxAttachments    = 10
	MaxAttachmentSize = 10 << 20

	// Sealed sizes allow for the envelope's JSON and two base64 layers.
	MaxSealedContentSize    = 128 << 10
	MaxSealedAttachmentSize = 18 << 20
)

func ValidateDisplayName(name string) error {
	n := utf8.RuneCountInString(name)
	if !utf8.ValidString(name) || n < 1 || n > maxDisplayNameLength {
		return fmt.Errorf("%w: display name must be 1 to %d characters", ErrInvalidInput, maxDisplayNameLength)
	}
	return nil
}

func ValidateDisplayEmoji(emoji string) error {
	n := utf8.RuneCountInString(emoji)
	if !utf8.ValidString(emoji) || n < 1 || n > maxDisplayEmojiLength {
		return fmt.Errorf("%w: display emoji must be 1 to %d characters", ErrInvalidInput, maxDisplayEmojiLength)
	}
	return nil
}

func ValidatePublicKey(publicKey []byte) error {
	if len(publicKey) != e2ee.KeySize {
		return fmt.Errorf("%w: public key must be %d bytes, got %d", ErrInvalidInput, e2ee.KeySize, len(publicKey))
	}
	return nil
}

func ValidateLetterId(id string) error {
	if _, err := uuid.FromString(id); err != nil {
		return fmt.Errorf("%w: letter id must be a uuid", ErrInvalidInput)
	}
	return nil
}

func ValidateSealedContent(sealed string) error {
	if len(sealed) == 0 {
		return fmt.Errorf("%w: sealed content missing", ErrInvalidInput)
	}
	if len(sealed) > MaxSealedContentSize {
		return fmt.Errorf("%w: sealed content too large", ErrInvalidInput)
	}
	return nil
}

// ValidateAttachmentRefs checks that every ref is an attachment path of
// letterId and that none repeats.
func ValidateAttachmentRefs(letterId string, refs []string) error {
	if len(refs) > MaxAttachments {
		return fmt.Errorf("%w: at most %d attachments", ErrInvalidInput, MaxAttachments)
	}
	seen := make(map[string]struct{}, len(refs))
	for _, ref := range refs {
		owner, err := blob.ParseAttachmentPath(ref)
		if err != nil || owner != letterId {
			return fmt.Errorf("%w: attachment %q does not belong to letter", ErrInvalidInput, ref)
		}
		if _, ok := seen[ref]; ok {
			return fmt.Errorf("%w: duplicate attachment %q", ErrInvalidInput, ref)
		}
		seen[ref] = struct{}{}
	}
	return nil
}
