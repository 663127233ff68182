package worker

import (
	"context"
	"time"

	"github.com/zlnvch/letterbox/logging"
	"github.com/zlnvch/letterbox/store"
)

type Heartbeat struct {
	IdentityId string
	At         time.Time
}

// HeartbeatBatcher collapses heartbeats per identity and persists only the
// latest one, so a chatty client costs one write per flush.
type HeartbeatBatcher struct {
	UpdateCh           chan Heartbeat
	letterStore        store.LetterStore
	tickerMilliseconds int
}

func NewHeartbeatBatcher(letterStore store.LetterStore, tickerMilliseconds int) *HeartbeatBatcher {
	return &HeartbeatBatcher{
		UpdateCh:           make(chan Heartbeat, 1024),
		letterStore:        letterStore,
		tickerMilliseconds: tickerMilliseconds,
	}
}

func (b *HeartbeatBatcher) Run(shutdownCtx context.Context) {
	ticker := time.NewTicker(time.Duration(b.tickerMilliseconds) * time.Millisecond)
	defer ticker.Stop()

	latest := make(map[string]time.Time)
	record := func(hb Heartbeat) {
		if hb.IdentityId != "" && hb.At.After(latest[hb.IdentityId]) {
			latest[hb.IdentityId] = hb.At
		}
	}

	flush := func(wait bool) {
		done := make(chan struct{}, len(latest))
		for id, at := range latest {
			go func(id string, at time.Time) {
				defer func() { done <- struct{}{} }()
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				if err := b.letterStore.UpdateLastActive(ctx, id, at); err != nil {
					logging.Log.Printf("Failed to persist last active for identity %s: %v", id, err)
				}
			}(id, at)
		}
		if wait {
			for range latest {
				<-done
			}
		}
		latest = make(map[string]time.Time)
	}

	for {
		select {
		case hb := <-b.UpdateCh:
			record(hb)

			if len(latest) >= 100 {
				flush(false)
			}

		case <-ticker.C:
			flush(false)

		case <-shutdownCtx.Done():
			// Drain what is already queued so a clean shutdown loses nothing
		drain:
			for {
				select {
				case hb := <-b.UpdateCh:
					record(hb)
				default:
					break drain
				}
			}
			flush(true)
			return
		}
	}
}
