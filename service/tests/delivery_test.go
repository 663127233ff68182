package service_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/zlnvch/letterbox/cache"
	"github.com/zlnvch/letterbox/models"
	"github.com/zlnvch/letterbox/service"
	"github.com/zlnvch/letterbox/store"
	"github.com/zlnvch/letterbox/worker"
)

func TestDeliverDueLetters_Scheduled(t *testing.T) {
	svc, m := setupService(t)
	ctx := context.Background()

	due := models.Letter{Id: "l1", SenderId: alice.Id, RecipientId: bob.Id, Status: models.LetterScheduled, DeliverAt: testNow.Add(-time.Minute)}
	raced := models.Letter{Id: "l2", SenderId: alice.Id, RecipientId: bob.Id, Status: models.LetterScheduled, DeliverAt: testNow.Add(-time.Minute)}
	delivered := due
	delivered.Status = models.LetterDelivered

	m.store.On("ListDueLetters", ctx, models.LetterScheduled, testNow).Return([]models.Letter{due, raced}, nil)
	m.store.On("ListDueLetters", ctx, models.LetterPending, testNow).Return([]models.Letter{}, nil)
	m.store.On("MarkLetterDelivered", ctx, "l1", testNow).Return(delivered, nil)
	m.store.On("MarkLetterDelivered", ctx, "l2", testNow).Return(models.Letter{}, store.ErrConditionFailed)
	published := wrapMockWithSignal(m.cache.On("Publish", mock.Anything, cache.IdentityChannel(bob.Id), mock.Anything).Return(nil).Once())

	n, err := svc.DeliverDueLetters(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	waitFor(t, published, "delivered notification")
}

func TestDeliverDueLetters_Inactivity(t *testing.T) {
	cond := models.SenderInactivity{Days: 7}
	created := testNow.Add(-30 * 24 * time.Hour)
	letter := models.Letter{
		Id:          "l1",
		SenderId:    alice.Id,
		RecipientId: bob.Id,
		Condition:   cond,
		Status:      models.LetterPending,
		CreatedAt:   created,
		DeliverAt:   created.Add(7 * 24 * time.Hour),
	}
	ctx := context.Background()

	t.Run("silent sender is delivered", func(t *testing.T) {
		svc, m := setupService(t)
		silent := alice
		silent.LastActiveAt = testNow.Add(-8 * 24 * time.Hour)

		m.store.On("ListDueLetters", ctx, models.LetterScheduled, testNow).Return([]models.Letter{}, nil)
		m.store.On("ListDueLetters", ctx, models.LetterPending, testNow).Return([]models.Letter{letter}, nil)
		m.cache.On("GetLastActive", ctx, alice.Id).Return(time.Time{}, nil)
		m.store.On("GetIdentity", ctx, alice.Id).Return(silent, nil)
		m.store.On("MarkLetterDelivered", ctx, "l1", testNow).Return(letter, nil)
		published := wrapMockWithSignal(m.cache.On("Publish", mock.Anything, cache.IdentityChannel(bob.Id), mock.Anything).Return(nil))

		n, err := svc.DeliverDueLetters(ctx)
		require.NoError(t, err)
		assert.Equal(t, 1, n)
		waitFor(t, published, "delivered notification")
	})

	t.Run("recent heartbeat pushes the deadline back", func(t *testing.T) {
		svc, m := setupService(t)
		seen := testNow.Add(-time.Hour)

		m.store.On("ListDueLetters", ctx, models.LetterScheduled, testNow).Return([]models.Letter{}, nil)
		m.store.On("ListDueLetters", ctx, models.LetterPending, testNow).Return([]models.Letter{letter}, nil)
		m.cache.On("GetLastActive", ctx, alice.Id).Return(seen, nil)
		m.store.On("GetIdentity", ctx, alice.Id).Return(alice, nil)
		m.store.On("RescheduleLetter", ctx, "l1", seen.Add(7*24*time.Hour)).Return(nil)

		n, err := svc.DeliverDueLetters(ctx)
		require.NoError(t, err)
		assert.Equal(t, 0, n)
		m.store.AssertNotCalled(t, "MarkLetterDelivered", mock.Anything, mock.Anything, mock.Anything)
	})
}

func TestCheckLetterDelivery(t *testing.T) {
	ctx := context.Background()

	t.Run("due letter is delivered", func(t *testing.T) {
		svc, m := setupService(t)
		letter := models.Letter{Id: "l1", RecipientId: bob.Id, Status: models.LetterScheduled, DeliverAt: testNow}
		m.store.On("GetLetter", ctx, "l1").Return(letter, nil)
		m.store.On("MarkLetterDelivered", ctx, "l1", testNow).Return(letter, nil)
		published := wrapMockWithSignal(m.cache.On("Publish", mock.Anything, cache.IdentityChannel(bob.Id), mock.Anything).Return(nil))

		require.NoError(t, svc.CheckLetterDelivery(ctx, "l1"))
		waitFor(t, published, "delivered notification")
	})

	t.Run("early job is queued again", func(t *testing.T) {
		svc, m := setupService(t)
		letter := models.Letter{Id: "l1", Status: models.LetterScheduled, DeliverAt: testNow.Add(30 * time.Second)}
		m.store.On("GetLetter", ctx, "l1").Return(letter, nil)
		queued := wrapMockWithSignal(m.mq.On("SendDelayed", mock.Anything, mock.Anything, int32(31)).Return(nil))

		require.NoError(t, svc.CheckLetterDelivery(ctx, "l1"))
		waitFor(t, queued, "delivery check job")
	})

	t.Run("deleted or opened letters are ignored", func(t *testing.T) {
		svc, m := setupService(t)
		m.store.On("GetLetter", ctx, "gone").Return(models.Letter{}, store.ErrItemNotFound)
		m.store.On("GetLetter", ctx, "read").Return(models.Letter{Id: "read", Status: models.LetterOpened}, nil)

		assert.NoError(t, svc.CheckLetterDelivery(ctx, "gone"))
		assert.NoError(t, svc.CheckLetterDelivery(ctx, "read"))
		m.store.AssertNotCalled(t, "MarkLetterDelivered", mock.Anything, mock.Anything, mock.Anything)
	})
}

func TestRecordHeartbeat_WritesThroughWithoutBatcher(t *testing.T) {
	svc, m := setupService(t)
	ctx := context.Background()

	m.cache.On("SetLastActive", ctx, alice.Id, testNow).Return(nil)
	m.store.On("UpdateLastActive", ctx, alice.Id, testNow).Return(nil)

	require.NoError(t, svc.RecordHeartbeat(ctx, alice.Id))
	m.store.AssertExpectations(t)
}

func TestLastActive_PrefersLaterSource(t *testing.T) {
	svc, m := setupService(t)
	ctx := context.Background()

	persisted := alice
	persisted.LastActiveAt = testNow.Add(-time.Hour)
	m.store.On("GetIdentity", ctx, alice.Id).Return(persisted, nil)
	m.cache.On("GetLastActive", ctx, alice.Id).Return(testNow.Add(-time.Minute), nil).Once()

	got, err := svc.LastActive(ctx, alice.Id)
	require.NoError(t, err)
	assert.True(t, got.Equal(testNow.Add(-time.Minute)))

	m.cache.On("GetLastActive", ctx, alice.Id).Return(time.Time{}, assert.AnError).Once()
	got, err = svc.LastActive(ctx, alice.Id)
	require.NoError(t, err)
	assert.True(t, got.Equal(persisted.LastActiveAt))
}

func TestLastActive_CacheDownWithBatcherSkipsInactivity(t *testing.T) {
	svc, m := setupService(t)
	svc.HeartbeatBatcher = worker.NewHeartbeatBatcher(m.store, 30000)
	ctx := context.Background()

	silent := alice
	silent.LastActiveAt = testNow.Add(-8 * 24 * time.Hour)
	m.store.On("GetIdentity", ctx, alice.Id).Return(silent, nil)
	m.cache.On("GetLastActive", ctx, alice.Id).Return(time.Time{}, assert.AnError)

	_, err := svc.LastActive(ctx, alice.Id)
	assert.ErrorIs(t, err, service.ErrLastActiveUnavailable)

	// Heartbeats may still sit in the batcher, so the letter waits
	letter := models.Letter{
		Id:          "l1",
		SenderId:    alice.Id,
		RecipientId: bob.Id,
		Condition:   models.SenderInactivity{Days: 7},
		Status:      models.LetterPending,
		CreatedAt:   testNow.Add(-10 * 24 * time.Hour),
		DeliverAt:   testNow.Add(-3 * 24 * time.Hour),
	}
	m.store.On("ListDueLetters", ctx, models.LetterScheduled, testNow).Return([]models.Letter{}, nil)
	m.store.On("ListDueLetters", ctx, models.LetterPending, testNow).Return([]models.Letter{letter}, nil)

	n, err := svc.DeliverDueLetters(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
	m.store.AssertNotCalled(t, "MarkLetterDelivered", mock.Anything, mock.Anything, mock.Anything)
}
