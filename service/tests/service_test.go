package service_test

import (
	"math/rand/v2"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	blobmocks "github.com/zlnvch/letterbox/blob/mocks"
	cachemocks "github.com/zlnvch/letterbox/cache/mocks"
	"github.com/zlnvch/letterbox/models"
	mqmocks "github.com/zlnvch/letterbox/mq/mocks"
	"github.com/zlnvch/letterbox/service"
	storemocks "github.com/zlnvch/letterbox/store/mocks"
)

type mocks struct {
	store *storemocks.MockStore
	cache *cachemocks.MockCache
	mq    *mqmocks.MockMQ
	blobs *blobmocks.MockBlobStore
}

// testNow is pinned to a whole second so stored and compared times match.
var testNow = time.Now().Truncate(time.Second)

func setupService(t *testing.T) (*service.Service, mocks) {
	m := mocks{
		store: new(storemocks.MockStore),
		cache: new(cachemocks.MockCache),
		mq:    new(mqmocks.MockMQ),
		blobs: new(blobmocks.MockBlobStore),
	}

	svc, err := service.NewService(m.store, m.cache, m.mq, m.blobs, nil, nil, []byte("secret"))
	assert.NoError(t, err)
	svc.Now = func() time.Time { return testNow }
	svc.Rng = rand.New(rand.NewPCG(1, 2))

	return svc, m
}

// Helper that creates a channel and wraps a mock call to signal when it's called
func wrapMockWithSignal(call *mock.Call) chan struct{} {
	done := make(chan struct{})
	call.Run(func(args mock.Arguments) {
		close(done)
	})
	return done
}

func waitFor(t *testing.T, done chan struct{}, what string) {
	t.Helper()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("timed out waiting for %s", what)
	}
}

func testKey(b byte) []byte {
	key := make([]byte, 32)
	for i := range key {
		key[i] = b
	}
	return key
}

var (
	alice = models.Identity{Id: "alice", DisplayName: "Alice", DisplayEmoji: "🦊", PublicKey: testKey(1)}
	bob   = models.Identity{Id: "bob", DisplayName: "Bob", PublicKey: testKey(2)}
)
