package memory

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zlnvch/letterbox/models"
	"github.com/zlnvch/letterbox/store"
)

func pairedStore(t *testing.T, a, b string) *MemoryLetterStore {
	t.Helper()
	s := NewMemoryLetterStore()
	ctx := context.Background()

	req := models.PairingRequest{Id: "req", FromId: b, ToId: a, Status: models.RequestPending}
	require.NoError(t, s.CreatePairingRequest(ctx, req))
	require.NoError(t, s.AcceptPairingRequest(ctx, req, [2]models.Pairing{
		{ViewerId: a, PeerId: b},
		{ViewerId: b, PeerId: a},
	}))
	return s
}

func letterFor(id, from, to string) models.Letter {
	now := time.Now()
	return models.Letter{
		Id:          id,
		SenderId:    from,
		RecipientId: to,
		Condition:   models.FixedDate{At: now.Add(time.Hour)},
		Status:      models.LetterScheduled,
		CreatedAt:   now,
		DeliverAt:   now.Add(time.Hour),
	}
}

func TestCreateLetter_ConcurrentSendsRespectCap(t *testing.T) {
	s := pairedStore(t, "alice", "bob")
	ctx := context.Background()

	var created, rejected atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := s.CreateLetter(ctx, letterFor(fmt.Sprintf("l%d", i), "alice", "bob"), 5)
			switch {
			case err == nil:
				created.Add(1)
			case assert.ErrorIs(t, err, store.ErrConditionFailed):
				rejected.Add(1)
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, int32(5), created.Load())
	assert.Equal(t, int32(15), rejected.Load())

	edge, err := s.GetPairing(ctx, "alice", "bob")
	require.NoError(t, err)
	assert.Equal(t, 5, edge.PendingLetterCount)
}

func TestCreateLetter_NoEdgeAndDuplicate(t *testing.T) {
	s := pairedStore(t, "alice", "bob")
	ctx := context.Background()

	_, err := s.CreateLetter(ctx, letterFor("x", "alice", "carol"), 5)
	assert.ErrorIs(t, err, store.ErrItemNotFound)

	first, err := s.CreateLetter(ctx, letterFor("dup", "alice", "bob"), 5)
	require.NoError(t, err)

	again, err := s.CreateLetter(ctx, letterFor("dup", "alice", "bob"), 5)
	assert.ErrorIs(t, err, store.ErrItemExists)
	assert.Equal(t, first.Id, again.Id)

	edge, _ := s.GetPairing(ctx, "alice", "bob")
	assert.Equal(t, 1, edge.PendingLetterCount)
}

func TestSlotReleasedOnOpenAndDelete(t *testing.T) {
	s := pairedStore(t, "alice", "bob")
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		_, err := s.CreateLetter(ctx, letterFor(fmt.Sprintf("l%d", i), "alice", "bob"), 5)
		require.NoError(t, err)
	}

	delivered, err := s.MarkLetterDelivered(ctx, "l0", time.Now())
	require.NoError(t, err)

	_, err = s.MarkLetterDelivered(ctx, "l0", time.Now())
	assert.ErrorIs(t, err, store.ErrConditionFailed)

	opened, err := s.MarkLetterOpened(ctx, delivered, time.Now())
	require.NoError(t, err)
	assert.Equal(t, models.LetterOpened, opened.Status)

	_, err = s.MarkLetterOpened(ctx, delivered, time.Now())
	assert.ErrorIs(t, err, store.ErrConditionFailed)

	edge, _ := s.GetPairing(ctx, "alice", "bob")
	assert.Equal(t, 1, edge.PendingLetterCount)

	// Opened letters no longer hold a slot
	require.NoError(t, s.DeleteLetter(ctx, opened))
	edge, _ = s.GetPairing(ctx, "alice", "bob")
	assert.Equal(t, 1, edge.PendingLetterCount)

	pending, err := s.GetLetter(ctx, "l1")
	require.NoError(t, err)
	require.NoError(t, s.DeleteLetter(ctx, pending))
	edge, _ = s.GetPairing(ctx, "alice", "bob")
	assert.Equal(t, 0, edge.PendingLetterCount)

	// Deleting again is a no-op
	assert.NoError(t, s.DeleteLetter(ctx, pending))
}

func TestPendingCountSurvivesUnpairing(t *testing.T) {
	s := pairedStore(t, "alice", "bob")
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		_, err := s.CreateLetter(ctx, letterFor(fmt.Sprintf("l%d", i), "alice", "bob"), 5)
		require.NoError(t, err)
	}
	require.NoError(t, s.DeletePairing(ctx, "alice", "bob"))

	req := models.PairingRequest{Id: "again", FromId: "bob", ToId: "alice", Status: models.RequestPending}
	require.NoError(t, s.CreatePairingRequest(ctx, req))
	require.NoError(t, s.AcceptPairingRequest(ctx, req, [2]models.Pairing{
		{ViewerId: "alice", PeerId: "bob"},
		{ViewerId: "bob", PeerId: "alice"},
	}))

	edge, err := s.GetPairing(ctx, "alice", "bob")
	require.NoError(t, err)
	assert.Equal(t, 5, edge.PendingLetterCount)

	_, err = s.CreateLetter(ctx, letterFor("l5", "alice", "bob"), 5)
	assert.ErrorIs(t, err, store.ErrConditionFailed)
}

func TestAcceptPairingRequest_KeepsExistingEdges(t *testing.T) {
	s := pairedStore(t, "alice", "bob")
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		_, err := s.CreateLetter(ctx, letterFor(fmt.Sprintf("l%d", i), "alice", "bob"), 5)
		require.NoError(t, err)
	}

	crossed := models.PairingRequest{Id: "crossed", FromId: "alice", ToId: "bob", Status: models.RequestPending}
	require.NoError(t, s.CreatePairingRequest(ctx, crossed))
	err := s.AcceptPairingRequest(ctx, crossed, [2]models.Pairing{
		{ViewerId: "bob", PeerId: "alice"},
		{ViewerId: "alice", PeerId: "bob"},
	})
	assert.ErrorIs(t, err, store.ErrItemExists)

	// The request stays pending and nothing about the pair changed
	stored, err := s.GetPairingRequest(ctx, "bob", "alice")
	require.NoError(t, err)
	assert.Equal(t, models.RequestPending, stored.Status)

	_, err = s.CreateLetter(ctx, letterFor("l5", "alice", "bob"), 5)
	assert.ErrorIs(t, err, store.ErrConditionFailed)
}

func TestPairingRequests(t *testing.T) {
	s := NewMemoryLetterStore()
	ctx := context.Background()
	req := models.PairingRequest{Id: "r1", FromId: "bob", ToId: "alice", Status: models.RequestPending}

	require.NoError(t, s.CreatePairingRequest(ctx, req))
	assert.ErrorIs(t, s.CreatePairingRequest(ctx, req), store.ErrConditionFailed)

	require.NoError(t, s.RejectPairingRequest(ctx, req))
	assert.ErrorIs(t, s.AcceptPairingRequest(ctx, req, [2]models.Pairing{}), store.ErrConditionFailed)

	// A rejected request can be replaced by a new one
	require.NoError(t, s.CreatePairingRequest(ctx, req))
	requests, err := s.ListPairingRequests(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, requests, 1)
	assert.Equal(t, models.RequestPending, requests[0].Status)
}

func TestDeletePairing_Idempotent(t *testing.T) {
	s := pairedStore(t, "alice", "bob")
	ctx := context.Background()

	require.NoError(t, s.DeletePairing(ctx, "bob", "alice"))
	require.NoError(t, s.DeletePairing(ctx, "alice", "bob"))

	_, err := s.GetPairing(ctx, "alice", "bob")
	assert.ErrorIs(t, err, store.ErrItemNotFound)
	_, err = s.GetPairing(ctx, "bob", "alice")
	assert.ErrorIs(t, err, store.ErrItemNotFound)
}

func TestCreateIdentity_ReturnsExistingForLogin(t *testing.T) {
	s := NewMemoryLetterStore()
	ctx := context.Background()

	first, err := s.CreateIdentity(ctx, models.Identity{Id: "id-1", DisplayName: "Alice"}, "github", "42")
	require.NoError(t, err)

	second, err := s.CreateIdentity(ctx, models.Identity{Id: "id-2", DisplayName: "Other"}, "github", "42")
	require.NoError(t, err)
	assert.Equal(t, first.Id, second.Id)
	assert.Equal(t, "Alice", second.DisplayName)
}

func TestUpdateLastActive_OnlyMovesForward(t *testing.T) {
	s := NewMemoryLetterStore()
	ctx := context.Background()
	_, err := s.CreateIdentity(ctx, models.Identity{Id: "a"}, "github", "1")
	require.NoError(t, err)

	later := time.Now()
	require.NoError(t, s.UpdateLastActive(ctx, "a", later))
	require.NoError(t, s.UpdateLastActive(ctx, "a", later.Add(-time.Hour)))

	identity, err := s.GetIdentity(ctx, "a")
	require.NoError(t, err)
	assert.True(t, identity.LastActiveAt.Equal(later))
}
