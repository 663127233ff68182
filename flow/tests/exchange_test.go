package flow_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zlnvch/letterbox/flow"
	"github.com/zlnvch/letterbox/keyvault"
	"github.com/zlnvch/letterbox/models"
	"github.com/zlnvch/letterbox/service"
)

func TestFullExchange(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	alice := e.newDevice(t, "alice")
	bob := e.newDevice(t, "bob")

	link, err := e.svc.CreateInviteLink(ctx, alice.identity)
	require.NoError(t, err)
	_, err = e.svc.ConsumeInviteLink(ctx, bob.identity, link.Id)
	require.NoError(t, err)

	requests, err := e.svc.ListPairingRequests(ctx, alice.identity)
	require.NoError(t, err)
	require.Len(t, requests, 1)
	_, err = e.svc.AcceptPairingRequest(ctx, alice.identity, requests[0].FromId)
	require.NoError(t, err)

	photos := [][]byte{[]byte("photo one"), []byte("photo two")}
	letter, err := alice.sender.Send(ctx, alice.identity, flow.SendRequest{
		RecipientId: bob.identity.Id,
		Body:        []byte("see you in an hour"),
		Attachments: photos,
		Condition:   models.FixedDate{At: e.clock.Now().Add(time.Hour)},
	})
	require.NoError(t, err)
	assert.Equal(t, models.LetterScheduled, letter.Status)
	assert.Equal(t, 2, e.blobs.Len())

	// Not readable before its time
	inbox, err := bob.receiver.Inbox(ctx, bob.identity)
	require.NoError(t, err)
	assert.Empty(t, inbox)
	_, err = bob.receiver.Open(ctx, bob.identity, letter.Id)
	assert.ErrorIs(t, err, service.ErrLetterNotFound)

	e.clock.Advance(time.Hour)
	delivered, err := e.svc.DeliverDueLetters(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, delivered)

	inbox, err = bob.receiver.Inbox(ctx, bob.identity)
	require.NoError(t, err)
	require.Len(t, inbox, 1)
	assert.Equal(t, models.LetterDelivered, inbox[0].Status)

	opened, err := bob.receiver.Open(ctx, bob.identity, letter.Id)
	require.NoError(t, err)
	assert.Equal(t, []byte("see you in an hour"), opened.Body)
	require.Len(t, opened.Attachments, 2)
	assert.Equal(t, photos[0], opened.Attachments[0].Data)
	assert.Equal(t, photos[1], opened.Attachments[1].Data)
	assert.Empty(t, opened.Dropped)
	assert.Equal(t, models.LetterOpened, opened.Letter.Status)

	stored, err := e.store.GetLetter(ctx, letter.Id)
	require.NoError(t, err)
	assert.Equal(t, models.LetterOpened, stored.Status)
	assert.Empty(t, stored.SealedContent)
	assert.Empty(t, stored.AttachmentRefs)
	assert.Eventually(t, func() bool { return e.blobs.Len() == 0 }, 3*time.Second, 20*time.Millisecond)

	edge, err := e.store.GetPairing(ctx, alice.identity.Id, bob.identity.Id)
	require.NoError(t, err)
	assert.Equal(t, 0, edge.PendingLetterCount)

	_, err = bob.receiver.Open(ctx, bob.identity, letter.Id)
	assert.ErrorIs(t, err, flow.ErrAlreadyOpened)
}

func TestPendingCap(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	alice := e.newDevice(t, "alice")
	bob := e.newDevice(t, "bob")
	carol := e.newDevice(t, "carol")
	e.pair(t, alice, bob)
	e.pair(t, alice, carol)

	send := func(to *device) error {
		_, err := alice.sender.Send(ctx, alice.identity, flow.SendRequest{
			RecipientId: to.identity.Id,
			Body:        []byte("later"),
			Condition:   models.FixedDate{At: e.clock.Now().Add(48 * time.Hour)},
		})
		return err
	}

	for i := 0; i < service.MaxPendingLetters; i++ {
		require.NoError(t, send(bob))
	}
	assert.ErrorIs(t, send(bob), service.ErrTooManyPendingLetters)

	// The relay enforces the cap even without the device side check
	_, err := e.svc.CreateLetter(ctx, alice.identity, service.CreateLetterParams{
		RecipientId:   bob.identity.Id,
		SealedContent: "sealed",
		Condition:     models.FixedDate{At: e.clock.Now().Add(time.Hour)},
	})
	assert.ErrorIs(t, err, service.ErrTooManyPendingLetters)

	// The cap is per recipient
	assert.NoError(t, send(carol))
}

func sendLater(t *testing.T, e *env, from, to *device) error {
	t.Helper()
	_, err := from.sender.Send(context.Background(), from.identity, flow.SendRequest{
		RecipientId: to.identity.Id,
		Body:        []byte("later"),
		Condition:   models.FixedDate{At: e.clock.Now().Add(48 * time.Hour)},
	})
	return err
}

func TestPendingCap_SurvivesUnfriendAndRepair(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	alice := e.newDevice(t, "alice")
	bob := e.newDevice(t, "bob")
	e.pair(t, bob, alice)

	for i := 0; i < service.MaxPendingLetters; i++ {
		require.NoError(t, sendLater(t, e, alice, bob))
	}

	require.NoError(t, e.svc.RemoveFriend(ctx, alice.identity, bob.identity.Id))
	e.pair(t, bob, alice)

	edge, err := e.svc.GetPairing(ctx, alice.identity, bob.identity.Id)
	require.NoError(t, err)
	assert.Equal(t, service.MaxPendingLetters, edge.PendingLetterCount)
	assert.ErrorIs(t, sendLater(t, e, alice, bob), service.ErrTooManyPendingLetters)

	outbox, err := e.svc.ListOutbox(ctx, alice.identity)
	require.NoError(t, err)
	assert.Len(t, outbox, service.MaxPendingLetters)
}

func TestPendingCap_CrossedRequests(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	alice := e.newDevice(t, "alice")
	bob := e.newDevice(t, "bob")

	aliceLink, err := e.svc.CreateInviteLink(ctx, alice.identity)
	require.NoError(t, err)
	bobLink, err := e.svc.CreateInviteLink(ctx, bob.identity)
	require.NoError(t, err)
	_, err = e.svc.ConsumeInviteLink(ctx, alice.identity, bobLink.Id)
	require.NoError(t, err)
	_, err = e.svc.ConsumeInviteLink(ctx, bob.identity, aliceLink.Id)
	require.NoError(t, err)

	_, err = e.svc.AcceptPairingRequest(ctx, bob.identity, alice.identity.Id)
	require.NoError(t, err)
	for i := 0; i < service.MaxPendingLetters; i++ {
		require.NoError(t, sendLater(t, e, alice, bob))
	}

	_, err = e.svc.AcceptPairingRequest(ctx, alice.identity, bob.identity.Id)
	assert.ErrorIs(t, err, service.ErrAlreadyPaired)

	requests, err := e.svc.ListPairingRequests(ctx, alice.identity)
	require.NoError(t, err)
	assert.Empty(t, requests)

	assert.ErrorIs(t, sendLater(t, e, alice, bob), service.ErrTooManyPendingLetters)
}

func TestHandshakeIsIdempotent(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	alice := e.newDevice(t, "alice")
	bob := e.newDevice(t, "bob")

	link, err := e.svc.CreateInviteLink(ctx, alice.identity)
	require.NoError(t, err)

	_, err = e.svc.ConsumeInviteLink(ctx, bob.identity, link.Id)
	require.NoError(t, err)
	_, err = e.svc.ConsumeInviteLink(ctx, bob.identity, link.Id)
	assert.ErrorIs(t, err, service.ErrRequestAlreadySent)

	requests, err := e.svc.ListPairingRequests(ctx, alice.identity)
	require.NoError(t, err)
	assert.Len(t, requests, 1)

	_, err = e.svc.AcceptPairingRequest(ctx, alice.identity, bob.identity.Id)
	require.NoError(t, err)
	_, err = e.svc.ConsumeInviteLink(ctx, bob.identity, link.Id)
	assert.ErrorIs(t, err, service.ErrAlreadyPaired)
}

func TestExpiredInviteCreatesNothing(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	alice := e.newDevice(t, "alice")
	bob := e.newDevice(t, "bob")

	link, err := e.svc.CreateInviteLink(ctx, alice.identity)
	require.NoError(t, err)

	e.clock.Advance(models.InviteLinkLifetime + time.Second)
	_, err = e.svc.ConsumeInviteLink(ctx, bob.identity, link.Id)
	assert.ErrorIs(t, err, service.ErrLinkExpired)

	requests, err := e.svc.ListPairingRequests(ctx, alice.identity)
	require.NoError(t, err)
	assert.Empty(t, requests)

	// Still readable
	got, err := e.svc.GetInviteLink(ctx, link.Id)
	require.NoError(t, err)
	assert.Equal(t, link.Id, got.Id)
}

func TestOpen_MissingKeyLeavesLetterDelivered(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	alice := e.newDevice(t, "alice")
	bob := e.newDevice(t, "bob")
	e.pair(t, alice, bob)

	letter, err := alice.sender.Send(ctx, alice.identity, flow.SendRequest{
		RecipientId: bob.identity.Id,
		Body:        []byte("now"),
		Condition:   models.FixedDate{At: e.clock.Now()},
	})
	require.NoError(t, err)
	assert.Equal(t, models.LetterDelivered, letter.Status)

	require.NoError(t, bob.vault.DeletePrivateKey(ctx))
	_, err = bob.receiver.Open(ctx, bob.identity, letter.Id)
	assert.ErrorIs(t, err, keyvault.ErrKeyNotFound)

	stored, err := e.store.GetLetter(ctx, letter.Id)
	require.NoError(t, err)
	assert.Equal(t, models.LetterDelivered, stored.Status)
	assert.NotEmpty(t, stored.SealedContent)
}

func TestOpen_BrokenAttachmentIsDropped(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	alice := e.newDevice(t, "alice")
	bob := e.newDevice(t, "bob")
	e.pair(t, alice, bob)

	letter, err := alice.sender.Send(ctx, alice.identity, flow.SendRequest{
		RecipientId: bob.identity.Id,
		Body:        []byte("two photos"),
		Attachments: [][]byte{[]byte("first"), []byte("second")},
		Condition:   models.FixedDate{At: e.clock.Now()},
	})
	require.NoError(t, err)
	require.Len(t, letter.AttachmentRefs, 2)

	// Lose the first attachment on the relay
	require.NoError(t, e.blobs.Delete(ctx, letter.AttachmentRefs[0]))

	opened, err := bob.receiver.Open(ctx, bob.identity, letter.Id)
	require.NoError(t, err)
	assert.Equal(t, []byte("two photos"), opened.Body)
	require.Len(t, opened.Attachments, 1)
	assert.Equal(t, 1, opened.Attachments[0].Index)
	assert.Equal(t, []byte("second"), opened.Attachments[0].Data)

	require.Len(t, opened.Dropped, 1)
	assert.True(t, errors.Is(opened.Dropped[0], flow.ErrAttachmentFailure))
	assert.Equal(t, models.LetterOpened, opened.Letter.Status)
}

func TestSend_FailureRemovesUploads(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	alice := e.newDevice(t, "alice")
	bob := e.newDevice(t, "bob")
	e.pair(t, alice, bob)

	_, err := alice.sender.Send(ctx, alice.identity, flow.SendRequest{
		RecipientId: bob.identity.Id,
		Body:        []byte("too far"),
		Attachments: [][]byte{[]byte("photo")},
		Condition:   models.FixedDate{At: e.clock.Now().Add(20 * 365 * 24 * time.Hour)},
	})
	assert.ErrorIs(t, err, models.ErrInvalidCondition)
	assert.Equal(t, 0, e.blobs.Len())

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	_, err = alice.sender.Send(cancelled, alice.identity, flow.SendRequest{
		RecipientId: bob.identity.Id,
		Body:        []byte("never"),
		Attachments: [][]byte{[]byte("photo")},
		Condition:   models.FixedDate{At: e.clock.Now().Add(time.Hour)},
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, e.blobs.Len())

	outbox, err := e.svc.ListOutbox(ctx, alice.identity)
	require.NoError(t, err)
	assert.Empty(t, outbox)
}

func TestSend_ResumeDoesNotSendTwice(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	alice := e.newDevice(t, "alice")
	bob := e.newDevice(t, "bob")
	e.pair(t, alice, bob)

	letterId, err := service.NewLetterId()
	require.NoError(t, err)
	req := flow.SendRequest{
		LetterId:    letterId,
		RecipientId: bob.identity.Id,
		Body:        []byte("once"),
		Attachments: [][]byte{[]byte("photo")},
		Condition:   models.FixedDate{At: e.clock.Now().Add(time.Hour)},
	}

	first, err := alice.sender.Send(ctx, alice.identity, req)
	require.NoError(t, err)
	again, err := alice.sender.Send(ctx, alice.identity, req)
	require.NoError(t, err)

	assert.Equal(t, first.Id, again.Id)
	assert.Equal(t, first.SealedContent, again.SealedContent)
	assert.Equal(t, 1, e.blobs.Len())

	edge, err := e.store.GetPairing(ctx, alice.identity.Id, bob.identity.Id)
	require.NoError(t, err)
	assert.Equal(t, 1, edge.PendingLetterCount)
}

func TestSenderInactivity(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	alice := e.newDevice(t, "alice")
	bob := e.newDevice(t, "bob")
	e.pair(t, alice, bob)

	letter, err := alice.sender.Send(ctx, alice.identity, flow.SendRequest{
		RecipientId: bob.identity.Id,
		Body:        []byte("if I go quiet"),
		Condition:   models.SenderInactivity{Days: 1},
	})
	require.NoError(t, err)
	assert.Equal(t, models.LetterPending, letter.Status)

	// Alice checks in halfway, which restarts the countdown
	e.clock.Advance(12 * time.Hour)
	require.NoError(t, e.svc.RecordHeartbeat(ctx, alice.identity.Id))

	e.clock.Advance(20 * time.Hour)
	delivered, err := e.svc.DeliverDueLetters(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, delivered)

	e.clock.Advance(5 * time.Hour)
	delivered, err = e.svc.DeliverDueLetters(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, delivered)

	opened, err := bob.receiver.Open(ctx, bob.identity, letter.Id)
	require.NoError(t, err)
	assert.Equal(t, []byte("if I go quiet"), opened.Body)
}
