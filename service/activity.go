package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/zlnvch/letterbox/logging"
	"github.com/zlnvch/letterbox/store"
	"github.com/zlnvch/letterbox/worker"
)

// RecordHeartbeat marks the identity as active now. The cache is updated
// right away; the store catches up through the heartbeat batcher.
func (s *Service) RecordHeartbeat(ctx context.Context, identityId string) error {
	now := s.now()

	if err := s.Cache.SetLastActive(ctx, identityId, now); err != nil {
		logging.Log.WithError(err).Warn("Failed to cache last active")
	}

	if s.HeartbeatBatcher == nil {
		return s.Store.UpdateLastActive(ctx, identityId, now)
	}

	select {
	case s.HeartbeatBatcher.UpdateCh <- worker.Heartbeat{IdentityId: identityId, At: now}:
		return nil
	default:
		// Batcher is backed up, write through
		return s.Store.UpdateLastActive(ctx, identityId, now)
	}
}

// LastActive is the later of the cached heartbeat and the persisted one.
// While a batcher is running the store may lag behind the cache, so a cache
// failure is reported as ErrLastActiveUnavailable instead of trusting the
// store alone.
func (s *Service) LastActive(ctx context.Context, identityId string) (time.Time, error) {
	cached, err := s.Cache.GetLastActive(ctx, identityId)
	if err != nil {
		if s.HeartbeatBatcher != nil {
			return time.Time{}, fmt.Errorf("%w: %v", ErrLastActiveUnavailable, err)
		}
		logging.Log.WithError(err).Warn("Failed to read cached last active")
	}

	identity, err := s.Store.GetIdentity(ctx, identityId)
	if errors.Is(err, store.ErrItemNotFound) {
		return cached, nil
	}
	if err != nil {
		return time.Time{}, err
	}

	if cached.After(identity.LastActiveAt) {
		return cached, nil
	}
	return identity.LastActiveAt, nil
}
