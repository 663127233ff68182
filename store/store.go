package store

import (
	"context"
	"errors"
	"time"

	"github.com/zlnvch/letterbox/models"
)

type LetterStore interface {
	// CreateIdentity returns the identity already linked to the login if there is one.
	CreateIdentity(ctx context.Context, identity models.Identity, provider string, providerId string) (models.Identity, error)
	GetIdentity(ctx context.Context, id string) (models.Identity, error)
	UpdateIdentityProfile(ctx context.Context, id string, displayName string, displayEmoji string) error
	SetIdentityPublicKey(ctx context.Context, id string, publicKey []byte) error
	AddBlockedId(ctx context.Context, id string, blockedId string) error
	RemoveBlockedId(ctx context.Context, id string, blockedId string) error
	UpdateLastActive(ctx context.Context, id string, at time.Time) error
	DeleteIdentity(ctx context.Context, id string) error

	CreateInviteLink(ctx context.Context, link models.InviteLink) error
	GetInviteLink(ctx context.Context, id string) (models.InviteLink, error)

	// CreatePairingRequest fails with ErrConditionFailed while a pending
	// request from the same sender to the same target exists.
	CreatePairingRequest(ctx context.Context, req models.PairingRequest) error
	GetPairingRequest(ctx context.Context, toId string, fromId string) (models.PairingRequest, error)
	ListPairingRequests(ctx context.Context, toId string) ([]models.PairingRequest, error)
	// AcceptPairingRequest flips a pending request to accepted and writes both
	// edges in one transaction. ErrConditionFailed if it is no longer pending,
	// ErrItemExists if either edge is already there.
	AcceptPairingRequest(ctx context.Context, req models.PairingRequest, edges [2]models.Pairing) error
	RejectPairingRequest(ctx context.Context, req models.PairingRequest) error

	GetPairing(ctx context.Context, viewerId string, peerId string) (models.Pairing, error)
	ListPairings(ctx context.Context, viewerId string) ([]models.Pairing, error)
	// DeletePairing removes both directions and ignores missing edges. The
	// pending letter counts of the pair are kept, since their letters are.
	DeletePairing(ctx context.Context, viewerId string, peerId string) error
	UpdatePairingPeerKey(ctx context.Context, viewerId string, peerId string, publicKey []byte) error

	// CreateLetter takes one of the sender's pending slots towards the
	// recipient and writes the letter atomically. Slots are counted per
	// (sender, recipient) and survive the pairing being removed and re-made. It returns ErrItemNotFound
	// if the sender has no edge to the recipient, ErrConditionFailed if all
	// maxPending slots are taken, and the stored letter with ErrItemExists if
	// a letter with the same id was already written.
	CreateLetter(ctx context.Context, letter models.Letter, maxPending int) (models.Letter, error)
	GetLetter(ctx context.Context, id string) (models.Letter, error)
	ListLettersByRecipient(ctx context.Context, recipientId string) ([]models.Letter, error)
	ListLettersBySender(ctx context.Context, senderId string) ([]models.Letter, error)
	// ListDueLetters returns letters in status whose DeliverAt is not after before.
	ListDueLetters(ctx context.Context, status models.LetterStatus, before time.Time) ([]models.Letter, error)
	RescheduleLetter(ctx context.Context, id string, deliverAt time.Time) error
	// MarkLetterDelivered fails with ErrConditionFailed unless the letter is
	// pending or scheduled.
	MarkLetterDelivered(ctx context.Context, id string, at time.Time) (models.Letter, error)
	// MarkLetterOpened moves a delivered letter to opened, drops its sealed
	// content and releases the sender's pending slot.
	MarkLetterOpened(ctx context.Context, letter models.Letter, at time.Time) (models.Letter, error)
	// DeleteLetter removes the letter if it is still in letter.Status and
	// releases the pending slot it held.
	DeleteLetter(ctx context.Context, letter models.Letter) error
}

var (
	ErrItemNotFound    = errors.New("item does not exist")
	ErrConditionFailed = errors.New("condition not met")
	ErrItemExists      = errors.New("item already exists")
)
