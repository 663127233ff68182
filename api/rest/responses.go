package rest

import (
	"time"

	"github.com/zlnvch/letterbox/models"
)

type identityResponse struct {
	Id           string    `json:"id"`
	DisplayName  string    `json:"displayName"`
	DisplayEmoji string    `json:"displayEmoji,omitempty"`
	PublicKey    []byte    `json:"publicKey,omitempty"`
	BlockedIds   []string  `json:"blockedIds,omitempty"`
	CreatedAt    time.Time `json:"createdAt"`
}

func newIdentityResponse(i models.Identity) identityResponse {
	return identityResponse{
		Id:           i.Id,
		DisplayName:  i.DisplayName,
		DisplayEmoji: i.DisplayEmoji,
		PublicKey:    i.PublicKey,
		BlockedIds:   i.BlockedIds,
		CreatedAt:    i.CreatedAt,
	}
}

type inviteResponse struct {
	Id              string    `json:"id"`
	IssuerId        string    `json:"issuerId"`
	IssuerDisplay   string    `json:"issuerDisplay"`
	IssuerPublicKey []byte    `json:"issuerPublicKey"`
	CreatedAt       time.Time `json:"createdAt"`
	ExpiresAt       time.Time `json:"expiresAt"`
}

func newInviteResponse(l models.InviteLink) inviteResponse {
	return inviteResponse{
		Id:              l.Id,
		IssuerId:        l.IssuerId,
		IssuerDisplay:   l.IssuerDisplay,
		IssuerPublicKey: l.IssuerPublicKey,
		CreatedAt:       l.CreatedAt,
		ExpiresAt:       l.ExpiresAt,
	}
}

type requestResponse struct {
	Id            string               `json:"id"`
	FromId        string               `json:"fromId"`
	FromDisplay   string               `json:"fromDisplay"`
	FromPublicKey []byte               `json:"fromPublicKey"`
	ToId          string               `json:"toId"`
	Status        models.RequestStatus `json:"status"`
	CreatedAt     time.Time            `json:"createdAt"`
}

func newRequestResponse(r models.PairingRequest) requestResponse {
	return requestResponse{
		Id:            r.Id,
		FromId:        r.FromId,
		FromDisplay:   r.FromDisplay,
		FromPublicKey: r.FromPublicKey,
		ToId:          r.ToId,
		Status:        r.Status,
		CreatedAt:     r.CreatedAt,
	}
}

type pairingResponse struct {
	PeerId             string    `json:"peerId"`
	PeerDisplay        string    `json:"peerDisplay"`
	PeerPublicKey      []byte    `json:"peerPublicKey"`
	PendingLetterCount int       `json:"pendingLetterCount"`
	CreatedAt          time.Time `json:"createdAt"`
}

func newPairingResponse(p models.Pairing) pairingResponse {
	return pairingResponse{
		PeerId:             p.PeerId,
		PeerDisplay:        p.PeerDisplay,
		PeerPublicKey:      p.PeerPublicKey,
		PendingLetterCount: p.PendingLetterCount,
		CreatedAt:          p.CreatedAt,
	}
}

type letterResponse struct {
	Id             string               `json:"id"`
	SenderId       string               `json:"senderId"`
	RecipientId    string               `json:"recipientId"`
	SealedContent  string               `json:"sealedContent,omitempty"`
	AttachmentRefs []string             `json:"attachmentRefs,omitempty"`
	Condition      models.ConditionSpec `json:"condition"`
	Status         models.LetterStatus  `json:"status"`
	Ephemeral      bool                 `json:"ephemeral,omitempty"`
	CreatedAt      time.Time            `json:"createdAt"`
	DeliverAt      *time.Time           `json:"deliverAt,omitempty"`
	DeliveredAt    *time.Time           `json:"deliveredAt,omitempty"`
	OpenedAt       *time.Time           `json:"openedAt,omitempty"`
}

// newLetterResponse hides the delivery instant from the recipient so a
// random window stays a surprise.
func newLetterResponse(l models.Letter, viewerId string) letterResponse {
	resp := letterResponse{
		Id:             l.Id,
		SenderId:       l.SenderId,
		RecipientId:    l.RecipientId,
		SealedContent:  l.SealedContent,
		AttachmentRefs: l.AttachmentRefs,
		Condition:      models.SpecFromCondition(l.Condition),
		Status:         l.Status,
		Ephemeral:      l.Ephemeral,
		CreatedAt:      l.CreatedAt,
		DeliveredAt:    optionalTime(l.DeliveredAt),
		OpenedAt:       optionalTime(l.OpenedAt),
	}
	if viewerId == l.SenderId {
		resp.DeliverAt = optionalTime(l.DeliverAt)
	}
	return resp
}

func newLetterResponses(letters []models.Letter, viewerId string) []letterResponse {
	resp := make([]letterResponse, 0, len(letters))
	for _, l := range letters {
		resp = append(resp, newLetterResponse(l, viewerId))
	}
	return resp
}

func optionalTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
