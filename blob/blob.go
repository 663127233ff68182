package blob

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/gofrs/uuid/v5"
)

// Blob is an opaque sealed attachment. The store never sees plaintext.
type Blob struct {
	Path      string
	OwnerId   string
	Data      []byte
	CreatedAt time.Time
}

type BlobStore interface {
	// Put fails with ErrBlobExists if the path is taken.
	Put(ctx context.Context, blob Blob) error
	Get(ctx context.Context, path string) (Blob, error)
	// Delete ignores missing blobs.
	Delete(ctx context.Context, path string) error
	// DeletePrefix removes every blob under prefix and returns how many went.
	DeletePrefix(ctx context.Context, prefix string) (int, error)
}

var (
	ErrBlobNotFound = errors.New("blob not found")
	ErrBlobExists   = errors.New("blob already exists")
	ErrInvalidPath  = errors.New("invalid blob path")
)

const letterPathPrefix = "letters/"

// LetterPrefix is the path prefix shared by all attachments of a letter.
func LetterPrefix(letterId string) string {
	return letterPathPrefix + letterId + "/"
}

// NewAttachmentPath returns a fresh path for one attachment of letterId.
func NewAttachmentPath(letterId string) (string, error) {
	id, err := uuid.NewV4()
	if err != nil {
		return "", err
	}
	return LetterPrefix(letterId) + id.String(), nil
}

// ParseAttachmentPath returns the letter id an attachment path belongs to.
func ParseAttachmentPath(path string) (string, error) {
	rest, ok := strings.CutPrefix(path, letterPathPrefix)
	if !ok {
		return "", ErrInvalidPath
	}
	letterId, name, ok := strings.Cut(rest, "/")
	if !ok || letterId == "" || name == "" || strings.Contains(name, "/") {
		return "", ErrInvalidPath
	}
	if !isCanonicalUUID(letterId) || !isCanonicalUUID(name) {
		return "", ErrInvalidPath
	}
	return letterId, nil
}

func isCanonicalUUID(s string) bool {
	id, err := uuid.FromString(s)
	return err == nil && id.String() == s
}
