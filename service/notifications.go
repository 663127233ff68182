package service

import (
	"context"
	"encoding/json"

	"github.com/zlnvch/letterbox/cache"
	"github.com/zlnvch/letterbox/logging"
)

type NotificationType string

const (
	NotificationLetterDelivered NotificationType = "letter_delivered"
	NotificationPairingRequest  NotificationType = "pairing_request"
	NotificationPairingAccepted NotificationType = "pairing_accepted"
	NotificationPeerKeyUpdated  NotificationType = "peer_key_updated"
)

// Notification is published on the recipient's identity channel. It never
// carries letter content.
type Notification struct {
	Type     NotificationType `json:"type"`
	PeerId   string           `json:"peerId,omitempty"`
	Display  string           `json:"display,omitempty"`
	LetterId string           `json:"letterId,omitempty"`
}

// notify publishes in the background; a missed notification only delays
// when the client notices, the state is already stored.
func (s *Service) notify(identityId string, n Notification) {
	go func() {
		b, err := json.Marshal(n)
		if err != nil {
			return
		}
		if err := s.Cache.Publish(context.Background(), cache.IdentityChannel(identityId), b); err != nil {
			logging.Log.WithError(err).WithField("identityId", identityId).Warnf("Failed to publish %s notification", n.Type)
		}
	}()
}
