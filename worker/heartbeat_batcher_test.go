package worker

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/zlnvch/letterbox/store/mocks"
)

func TestHeartbeatBatcher_PersistsLatestPerIdentity(t *testing.T) {
	mockStore := new(mocks.MockStore)
	batcher := NewHeartbeatBatcher(mockStore, 60_000)

	base := time.Unix(1_700_000_000, 0)
	mockStore.On("UpdateLastActive", mock.Anything, "alice", base.Add(2*time.Minute)).Return(nil).Once()
	mockStore.On("UpdateLastActive", mock.Anything, "bob", base).Return(nil).Once()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		batcher.Run(ctx)
		close(done)
	}()

	batcher.UpdateCh <- Heartbeat{IdentityId: "alice", At: base}
	batcher.UpdateCh <- Heartbeat{IdentityId: "alice", At: base.Add(2 * time.Minute)}
	batcher.UpdateCh <- Heartbeat{IdentityId: "alice", At: base.Add(time.Minute)}
	batcher.UpdateCh <- Heartbeat{IdentityId: "bob", At: base}
	batcher.UpdateCh <- Heartbeat{At: base}

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("batcher did not stop")
	}

	mockStore.AssertExpectations(t)
	mockStore.AssertNumberOfCalls(t, "UpdateLastActive", 2)
}

func TestHeartbeatBatcher_FlushesOnTick(t *testing.T) {
	mockStore := new(mocks.MockStore)
	batcher := NewHeartbeatBatcher(mockStore, 10)

	at := time.Unix(1_700_000_000, 0)
	flushed := make(chan struct{})
	mockStore.On("UpdateLastActive", mock.Anything, "alice", at).Return(nil).Once().Run(func(args mock.Arguments) {
		close(flushed)
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go batcher.Run(ctx)

	batcher.UpdateCh <- Heartbeat{IdentityId: "alice", At: at}

	select {
	case <-flushed:
	case <-time.After(2 * time.Second):
		t.Fatal("heartbeat was not flushed")
	}
}
