package models

import (
	"slices"
	"time"
)

type Identity struct {
	Id           string
	DisplayEmoji string
	DisplayName  string
	PublicKey    []byte
	BlockedIds   []string
	CreatedAt    time.Time
	LastActiveAt time.Time
}

func (i Identity) HasBlocked(id string) bool {
	return slices.Contains(i.BlockedIds, id)
}

// Display is the name shown to peers, prefixed with the emoji when set.
func (i Identity) Display() string {
	if i.DisplayEmoji == "" {
		return i.DisplayName
	}
	return i.DisplayEmoji + " " + i.DisplayName
}

const InviteLinkLifetime = 24 * time.Hour

type InviteLink struct {
	Id              string
	IssuerId        string
	IssuerDisplay   string
	IssuerPublicKey []byte
	CreatedAt       time.Time
	ExpiresAt       time.Time
}

func (l InviteLink) Expired(now time.Time) bool {
	return now.After(l.ExpiresAt)
}

type RequestStatus string

const (
	RequestPending  RequestStatus = "pending"
	RequestAccepted RequestStatus = "accepted"
	RequestRejected RequestStatus = "rejected"
)

type PairingRequest struct {
	Id            string
	FromId        string
	FromDisplay   string
	FromPublicKey []byte
	ToId          string
	Status        RequestStatus
	CreatedAt     time.Time
}

// Pairing is one direction of a trust relationship, as seen by ViewerId.
// PeerPublicKey is the peer's key at the time the pairing was accepted.
type Pairing struct {
	ViewerId           string
	PeerId             string
	PeerDisplay        string
	PeerPublicKey      []byte
	PendingLetterCount int
	CreatedAt          time.Time
}

type LetterStatus string

const (
	LetterPending   LetterStatus = "pending"
	LetterScheduled LetterStatus = "scheduled"
	LetterDelivered LetterStatus = "delivered"
	LetterOpened    LetterStatus = "opened"
)

// CountsTowardCap reports whether a letter in this status occupies one of
// the sender's pending slots towards the recipient.
func (s LetterStatus) CountsTowardCap() bool {
	switch s {
	case LetterPending, LetterScheduled, LetterDelivered:
		return true
	}
	return false
}

func (s LetterStatus) Readable() bool {
	return s == LetterDelivered || s == LetterOpened
}

type Letter struct {
	Id             string
	SenderId       string
	RecipientId    string
	SealedContent  string
	AttachmentRefs []string
	Condition      DeliveryCondition
	Status         LetterStatus
	Ephemeral      bool
	CreatedAt      time.Time
	// DeliverAt is the earliest instant the letter may be delivered. For
	// SenderInactivity it moves forward whenever the sender is seen active.
	DeliverAt   time.Time
	DeliveredAt time.Time
	OpenedAt    time.Time
}

// VisibleTo reports whether id may read the letter's metadata.
func (l Letter) VisibleTo(id string) bool {
	return l.SenderId == id || (l.RecipientId == id && l.Status.Readable())
}
