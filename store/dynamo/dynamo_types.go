package dynamo

import (
	"time"

	"github.com/zlnvch/letterbox/models"
)

const (
	identityPrefix = "IDENTITY#"
	loginPrefix    = "LOGIN#"
	invitePrefix   = "INVITE#"
	requestPrefix  = "REQUEST#"
	fromPrefix     = "FROM#"
	pairingPrefix  = "PAIRING#"
	peerPrefix     = "PEER#"
	letterPrefix   = "LETTER#"
	pendingPrefix  = "PENDING#"

	profileSK = "PROFILE"
	loginSK   = "LOGIN"
	inviteSK  = "INVITE"
	letterSK  = "LETTER"
)

func unixOrZero(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.Unix()
}

func timeOrZero(sec int64) time.Time {
	if sec == 0 {
		return time.Time{}
	}
	return time.Unix(sec, 0).UTC()
}

type dynamoLogin struct {
	PK         string `dynamodbav:"PK"`
	SK         string `dynamodbav:"SK"`
	IdentityId string `dynamodbav:"IdentityId"`
}

type dynamoIdentity struct {
	PK           string   `dynamodbav:"PK"`
	SK           string   `dynamodbav:"SK"`
	Id           string   `dynamodbav:"Id"`
	Provider     string   `dynamodbav:"Provider"`
	ProviderId   string   `dynamodbav:"ProviderId"`
	DisplayEmoji string   `dynamodbav:"DisplayEmoji"`
	DisplayName  string   `dynamodbav:"DisplayName"`
	PublicKey    []byte   `dynamodbav:"PublicKey,omitempty"`
	BlockedIds   []string `dynamodbav:"BlockedIds,stringset,omitempty"`
	Created      int64    `dynamodbav:"Created"`
	LastActiveAt int64    `dynamodbav:"LastActiveAt,omitempty"`
}

func identityToDynamo(i models.Identity, provider string, providerId string) dynamoIdentity {
	return dynamoIdentity{
		PK:           identityPrefix + i.Id,
		SK:           profileSK,
		Id:           i.Id,
		Provider:     provider,
		ProviderId:   providerId,
		DisplayEmoji: i.DisplayEmoji,
		DisplayName:  i.DisplayName,
		PublicKey:    i.PublicKey,
		BlockedIds:   i.BlockedIds,
		Created:      unixOrZero(i.CreatedAt),
		LastActiveAt: unixOrZero(i.LastActiveAt),
	}
}

func identityFromDynamo(di dynamoIdentity) models.Identity {
	return models.Identity{
		Id:           di.Id,
		DisplayEmoji: di.DisplayEmoji,
		DisplayName:  di.DisplayName,
		PublicKey:    di.PublicKey,
		BlockedIds:   di.BlockedIds,
		CreatedAt:    timeOrZero(di.Created),
		LastActiveAt: timeOrZero(di.LastActiveAt),
	}
}

type dynamoInvite struct {
	PK              string `dynamodbav:"PK"`
	SK              string `dynamodbav:"SK"`
	Id              string `dynamodbav:"Id"`
	IssuerId        string `dynamodbav:"IssuerId"`
	IssuerDisplay   string `dynamodbav:"IssuerDisplay"`
	IssuerPublicKey []byte `dynamodbav:"IssuerPublicKey"`
	Created         int64  `dynamodbav:"Created"`
	// Also the table's TTL attribute; expired links are removed lazily by DynamoDB
	ExpiresAt int64 `dynamodbav:"ExpiresAt"`
}

func inviteToDynamo(l models.InviteLink) dynamoInvite {
	return dynamoInvite{
		PK:              invitePrefix + l.Id,
		SK:              inviteSK,
		Id:              l.Id,
		IssuerId:        l.IssuerId,
		IssuerDisplay:   l.IssuerDisplay,
		IssuerPublicKey: l.IssuerPublicKey,
		Created:         unixOrZero(l.CreatedAt),
		ExpiresAt:       unixOrZero(l.ExpiresAt),
	}
}

func inviteFromDynamo(di dynamoInvite) models.InviteLink {
	return models.InviteLink{
		Id:              di.Id,
		IssuerId:        di.IssuerId,
		IssuerDisplay:   di.IssuerDisplay,
		IssuerPublicKey: di.IssuerPublicKey,
		CreatedAt:       timeOrZero(di.Created),
		ExpiresAt:       timeOrZero(di.ExpiresAt),
	}
}

type dynamoRequest struct {
	PK            string `dynamodbav:"PK"`
	SK            string `dynamodbav:"SK"`
	Id            string `dynamodbav:"Id"`
	FromId        string `dynamodbav:"FromId"`
	FromDisplay   string `dynamodbav:"FromDisplay"`
	FromPublicKey []byte `dynamodbav:"FromPublicKey"`
	ToId          string `dynamodbav:"ToId"`
	Status        string `dynamodbav:"Status"`
	Created       int64  `dynamodbav:"Created"`
}

func requestKey(toId string, fromId string) (string, string) {
	return requestPrefix + toId, fromPrefix + fromId
}

func requestToDynamo(r models.PairingRequest) dynamoRequest {
	pk, sk := requestKey(r.ToId, r.FromId)
	return dynamoRequest{
		PK:            pk,
		SK:            sk,
		Id:            r.Id,
		FromId:        r.FromId,
		FromDisplay:   r.FromDisplay,
		FromPublicKey: r.FromPublicKey,
		ToId:          r.ToId,
		Status:        string(r.Status),
		Created:       unixOrZero(r.CreatedAt),
	}
}

func requestFromDynamo(dr dynamoRequest) models.PairingRequest {
	return models.PairingRequest{
		Id:            dr.Id,
		FromId:        dr.FromId,
		FromDisplay:   dr.FromDisplay,
		FromPublicKey: dr.FromPublicKey,
		ToId:          dr.ToId,
		Status:        models.RequestStatus(dr.Status),
		CreatedAt:     timeOrZero(dr.Created),
	}
}

type dynamoPairing struct {
	PK            string `dynamodbav:"PK"`
	SK            string `dynamodbav:"SK"`
	ViewerId      string `dynamodbav:"ViewerId"`
	PeerId        string `dynamodbav:"PeerId"`
	PeerDisplay   string `dynamodbav:"PeerDisplay"`
	PeerPublicKey []byte `dynamodbav:"PeerPublicKey"`
	Created       int64  `dynamodbav:"Created"`
}

// dynamoPending counts a sender's undelivered letters to one recipient. It
// lives next to the pairing edge but is not removed with it.
type dynamoPending struct {
	PK    string `dynamodbav:"PK"`
	SK    string `dynamodbav:"SK"`
	Count int    `dynamodbav:"Count"`
}

func pendingKey(senderId string, recipientId string) (string, string) {
	return pendingPrefix + senderId, peerPrefix + recipientId
}

func pairingKey(viewerId string, peerId string) (string, string) {
	return pairingPrefix + viewerId, peerPrefix + peerId
}

func pairingToDynamo(p models.Pairing) dynamoPairing {
	pk, sk := pairingKey(p.ViewerId, p.PeerId)
	return dynamoPairing{
		PK:            pk,
		SK:            sk,
		ViewerId:      p.ViewerId,
		PeerId:        p.PeerId,
		PeerDisplay:   p.PeerDisplay,
		PeerPublicKey: p.PeerPublicKey,
		Created:       unixOrZero(p.CreatedAt),
	}
}

func pairingFromDynamo(dp dynamoPairing, pending int) models.Pairing {
	return models.Pairing{
		ViewerId:           dp.ViewerId,
		PeerId:             dp.PeerId,
		PeerDisplay:        dp.PeerDisplay,
		PeerPublicKey:      dp.PeerPublicKey,
		PendingLetterCount: pending,
		CreatedAt:          timeOrZero(dp.Created),
	}
}

// dynamoLetter carries the indexed attributes for GSI_Recipient
// (RecipientId, Created), GSI_Sender (SenderId, Created) and GSI_Status
// (Status, DeliverAt).
type dynamoLetter struct {
	PK             string   `dynamodbav:"PK"`
	SK             string   `dynamodbav:"SK"`
	Id             string   `dynamodbav:"Id"`
	SenderId       string   `dynamodbav:"SenderId"`
	RecipientId    string   `dynamodbav:"RecipientId"`
	SealedContent  string   `dynamodbav:"SealedContent,omitempty"`
	AttachmentRefs []string `dynamodbav:"AttachmentRefs,omitempty"`
	ConditionKind  string   `dynamodbav:"ConditionKind"`
	ConditionAt    int64    `dynamodbav:"ConditionAt,omitempty"`
	InactivityDays int      `dynamodbav:"InactivityDays,omitempty"`
	Status         string   `dynamodbav:"Status"`
	Ephemeral      bool     `dynamodbav:"Ephemeral"`
	Created        int64    `dynamodbav:"Created"`
	DeliverAt      int64    `dynamodbav:"DeliverAt"`
	DeliveredAt    int64    `dynamodbav:"DeliveredAt,omitempty"`
	OpenedAt       int64    `dynamodbav:"OpenedAt,omitempty"`
}

func letterToDynamo(l models.Letter) dynamoLetter {
	dl := dynamoLetter{
		PK:             letterPrefix + l.Id,
		SK:             letterSK,
		Id:             l.Id,
		SenderId:       l.SenderId,
		RecipientId:    l.RecipientId,
		SealedContent:  l.SealedContent,
		AttachmentRefs: l.AttachmentRefs,
		Status:         string(l.Status),
		Ephemeral:      l.Ephemeral,
		Created:        unixOrZero(l.CreatedAt),
		DeliverAt:      unixOrZero(l.DeliverAt),
		DeliveredAt:    unixOrZero(l.DeliveredAt),
		OpenedAt:       unixOrZero(l.OpenedAt),
	}

	switch c := l.Condition.(type) {
	case models.FixedDate:
		dl.ConditionKind = string(models.ConditionFixedDate)
		dl.ConditionAt = unixOrZero(c.At)
	case models.SenderInactivity:
		dl.ConditionKind = string(models.ConditionSenderInactivity)
		dl.InactivityDays = c.Days
	}

	return dl
}

func letterFromDynamo(dl dynamoLetter) models.Letter {
	var cond models.DeliveryCondition
	switch models.ConditionKind(dl.ConditionKind) {
	case models.ConditionFixedDate:
		cond = models.FixedDate{At: timeOrZero(dl.ConditionAt)}
	case models.ConditionSenderInactivity:
		cond = models.SenderInactivity{Days: dl.InactivityDays}
	}

	return models.Letter{
		Id:             dl.Id,
		SenderId:       dl.SenderId,
		RecipientId:    dl.RecipientId,
		SealedContent:  dl.SealedContent,
		AttachmentRefs: dl.AttachmentRefs,
		Condition:      cond,
		Status:         models.LetterStatus(dl.Status),
		Ephemeral:      dl.Ephemeral,
		CreatedAt:      timeOrZero(dl.Created),
		DeliverAt:      timeOrZero(dl.DeliverAt),
		DeliveredAt:    timeOrZero(dl.DeliveredAt),
		OpenedAt:       timeOrZero(dl.OpenedAt),
	}
}
