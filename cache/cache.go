package cache

import (
	"context"
	"time"
)

type LetterCache interface {
	Publish(ctx context.Context, channel string, message []byte) error
	Subscribe(ctx context.Context, channel string, handler func(message []byte)) error

	// GetLastActive returns the zero time when nothing is cached.
	SetLastActive(ctx context.Context, identityId string, at time.Time) error
	GetLastActive(ctx context.Context, identityId string) (time.Time, error)

	// IncrementActionCount counts an action within a fixed window that starts
	// at the first increment.
	IncrementActionCount(ctx context.Context, identityId string, action string, window time.Duration) (int64, error)
}

// IdentityChannel is the pub/sub channel carrying notifications for one identity.
func IdentityChannel(identityId string) string {
	return "identity:" + identityId
}
