package service

import (
	"context"
	"errors"
	"time"

	"github.com/gofrs/uuid/v5"
	"github.com/zlnvch/letterbox/logging"
	"github.com/zlnvch/letterbox/models"
	"github.com/zlnvch/letterbox/store"
	"github.com/zlnvch/letterbox/worker"
)

const inviteRateWindow = time.Hour

func (s *Service) CreateInviteLink(ctx context.Context, issuer models.Identity) (models.InviteLink, error) {
	if len(issuer.PublicKey) == 0 {
		return models.InviteLink{}, ErrMissingPublicKey
	}

	count, err := s.Cache.IncrementActionCount(ctx, issuer.Id, "invite", inviteRateWindow)
	if err != nil {
		// Fail open, the limit only protects against spam
		logging.Log.WithError(err).Warn("Invite rate counter unavailable")
	} else if count > MaxInvitesPerHour {
		return models.InviteLink{}, ErrRateLimited
	}

	id, err := uuid.NewV4()
	if err != nil {
		return models.InviteLink{}, err
	}

	now := s.now()
	link := models.InviteLink{
		Id:              id.String(),
		IssuerId:        issuer.Id,
		IssuerDisplay:   issuer.Display(),
		IssuerPublicKey: issuer.PublicKey,
		CreatedAt:       now,
		ExpiresAt:       now.Add(models.InviteLinkLifetime),
	}
	if err := s.Store.CreateInviteLink(ctx, link); err != nil {
		return models.InviteLink{}, err
	}

	return link, nil
}

// GetInviteLink also returns expired links so clients can explain why
// they cannot be used.
func (s *Service) GetInviteLink(ctx context.Context, id string) (models.InviteLink, error) {
	link, err := s.Store.GetInviteLink(ctx, id)
	if errors.Is(err, store.ErrItemNotFound) {
		return models.InviteLink{}, ErrInviteNotFound
	}
	return link, err
}

// ConsumeInviteLink turns an invite into a pending request from requester to
// the link's issuer. Nothing is written when any check fails.
func (s *Service) ConsumeInviteLink(ctx context.Context, requester models.Identity, linkId string) (models.PairingRequest, error) {
	link, err := s.GetInviteLink(ctx, linkId)
	if err != nil {
		return models.PairingRequest{}, err
	}

	now := s.now()
	if link.Expired(now) {
		return models.PairingRequest{}, ErrLinkExpired
	}
	if link.IssuerId == requester.Id {
		return models.PairingRequest{}, ErrCannotAddSelf
	}

	paired, err := s.pairedEitherWay(ctx, requester.Id, link.IssuerId)
	if err != nil {
		return models.PairingRequest{}, err
	}
	if paired {
		return models.PairingRequest{}, ErrAlreadyPaired
	}

	if len(requester.PublicKey) == 0 {
		return models.PairingRequest{}, ErrMissingPublicKey
	}

	issuer, err := s.Store.GetIdentity(ctx, link.IssuerId)
	if errors.Is(err, store.ErrItemNotFound) {
		return models.PairingRequest{}, ErrInviteNotFound
	}
	if err != nil {
		return models.PairingRequest{}, err
	}
	// Blocked requesters see the same answer as for a deleted link
	if issuer.HasBlocked(requester.Id) {
		return models.PairingRequest{}, ErrInviteNotFound
	}

	id, err := uuid.NewV4()
	if err != nil {
		return models.PairingRequest{}, err
	}

	req := models.PairingRequest{
		Id:            id.String(),
		FromId:        requester.Id,
		FromDisplay:   requester.Display(),
		FromPublicKey: requester.PublicKey,
		ToId:          link.IssuerId,
		Status:        models.RequestPending,
		CreatedAt:     now,
	}
	if err := s.Store.CreatePairingRequest(ctx, req); err != nil {
		if errors.Is(err, store.ErrConditionFailed) {
			return models.PairingRequest{}, ErrRequestAlreadySent
		}
		return models.PairingRequest{}, err
	}

	s.notify(req.ToId, Notification{Type: NotificationPairingRequest, PeerId: req.FromId, Display: req.FromDisplay})

	return req, nil
}

func (s *Service) pairedEitherWay(ctx context.Context, a, b string) (bool, error) {
	for _, pair := range [][2]string{{a, b}, {b, a}} {
		_, err := s.Store.GetPairing(ctx, pair[0], pair[1])
		if err == nil {
			return true, nil
		}
		if !errors.Is(err, store.ErrItemNotFound) {
			return false, err
		}
	}
	return false, nil
}

// ListPairingRequests returns the pending requests addressed to identity.
func (s *Service) ListPairingRequests(ctx context.Context, identity models.Identity) ([]models.PairingRequest, error) {
	requests, err := s.Store.ListPairingRequests(ctx, identity.Id)
	if err != nil {
		return nil, err
	}

	pending := make([]models.PairingRequest, 0, len(requests))
	for _, req := range requests {
		if req.Status == models.RequestPending && !identity.HasBlocked(req.FromId) {
			pending = append(pending, req)
		}
	}
	return pending, nil
}

func (s *Service) pendingRequest(ctx context.Context, issuer models.Identity, fromId string) (models.PairingRequest, error) {
	req, err := s.Store.GetPairingRequest(ctx, issuer.Id, fromId)
	if errors.Is(err, store.ErrItemNotFound) {
		return models.PairingRequest{}, ErrRequestNotFound
	}
	if err != nil {
		return models.PairingRequest{}, err
	}
	if req.Status != models.RequestPending {
		return models.PairingRequest{}, ErrRequestNotFound
	}
	return req, nil
}

// AcceptPairingRequest creates both directed edges, each holding the other
// side's public key, in the same transaction that closes the request.
func (s *Service) AcceptPairingRequest(ctx context.Context, issuer models.Identity, fromId string) (models.Pairing, error) {
	req, err := s.pendingRequest(ctx, issuer, fromId)
	if err != nil {
		return models.Pairing{}, err
	}
	if len(issuer.PublicKey) == 0 {
		return models.Pairing{}, ErrMissingPublicKey
	}

	now := s.now()
	edges := [2]models.Pairing{
		{
			ViewerId:      issuer.Id,
			PeerId:        req.FromId,
			PeerDisplay:   req.FromDisplay,
			PeerPublicKey: req.FromPublicKey,
			CreatedAt:     now,
		},
		{
			ViewerId:      req.FromId,
			PeerId:        issuer.Id,
			PeerDisplay:   issuer.Display(),
			PeerPublicKey: issuer.PublicKey,
			CreatedAt:     now,
		},
	}

	err = s.Store.AcceptPairingRequest(ctx, req, edges)
	switch {
	case errors.Is(err, store.ErrConditionFailed):
		return models.Pairing{}, ErrRequestNotFound
	case errors.Is(err, store.ErrItemExists):
		// Crossed requests: the other one was accepted first
		if err := s.Store.RejectPairingRequest(ctx, req); err != nil {
			logging.Log.WithError(err).Warnf("Could not close request from %s to %s", req.FromId, req.ToId)
		}
		return models.Pairing{}, ErrAlreadyPaired
	case err != nil:
		return models.Pairing{}, err
	}

	s.notify(req.FromId, Notification{Type: NotificationPairingAccepted, PeerId: issuer.Id, Display: issuer.Display()})

	return edges[0], nil
}

func (s *Service) RejectPairingRequest(ctx context.Context, issuer models.Identity, fromId string) error {
	req, err := s.pendingRequest(ctx, issuer, fromId)
	if err != nil {
		return err
	}

	if err := s.Store.RejectPairingRequest(ctx, req); err != nil {
		if errors.Is(err, store.ErrConditionFailed) {
			return ErrRequestNotFound
		}
		return err
	}
	return nil
}

func (s *Service) ListPairings(ctx context.Context, identity models.Identity) ([]models.Pairing, error) {
	return s.Store.ListPairings(ctx, identity.Id)
}

func (s *Service) GetPairing(ctx context.Context, identity models.Identity, peerId string) (models.Pairing, error) {
	pairing, err := s.Store.GetPairing(ctx, identity.Id, peerId)
	if errors.Is(err, store.ErrItemNotFound) {
		return models.Pairing{}, ErrNotPaired
	}
	return pairing, err
}

// RemoveFriend deletes the pairing in both directions. Removing a peer that
// is not paired succeeds.
func (s *Service) RemoveFriend(ctx context.Context, identity models.Identity, peerId string) error {
	return s.Store.DeletePairing(ctx, identity.Id, peerId)
}

func (s *Service) BlockIdentity(ctx context.Context, identity models.Identity, blockedId string) error {
	if blockedId == identity.Id {
		return ErrCannotAddSelf
	}

	if err := s.Store.AddBlockedId(ctx, identity.Id, blockedId); err != nil {
		return err
	}
	if err := s.Store.DeletePairing(ctx, identity.Id, blockedId); err != nil {
		return err
	}

	req, err := s.Store.GetPairingRequest(ctx, identity.Id, blockedId)
	if errors.Is(err, store.ErrItemNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if req.Status == models.RequestPending {
		if err := s.Store.RejectPairingRequest(ctx, req); err != nil && !errors.Is(err, store.ErrConditionFailed) {
			return err
		}
	}
	return nil
}

func (s *Service) UnblockIdentity(ctx context.Context, identity models.Identity, blockedId string) error {
	return s.Store.RemoveBlockedId(ctx, identity.Id, blockedId)
}

func (s *Service) UpdateProfile(ctx context.Context, identity models.Identity, displayName string, displayEmoji string) (models.Identity, error) {
	if err := ValidateDisplayName(displayName); err != nil {
		return models.Identity{}, err
	}
	if displayEmoji != "" {
		if err := ValidateDisplayEmoji(displayEmoji); err != nil {
			return models.Identity{}, err
		}
	}

	if err := s.Store.UpdateIdentityProfile(ctx, identity.Id, displayName, displayEmoji); err != nil {
		return models.Identity{}, err
	}

	identity.DisplayName = displayName
	identity.DisplayEmoji = displayEmoji
	return identity, nil
}

// PublishPublicKey stores the identity's key and, when it replaces an older
// one, queues a job that refreshes the copy every peer holds.
func (s *Service) PublishPublicKey(ctx context.Context, identity models.Identity, publicKey []byte) (models.Identity, error) {
	if err := ValidatePublicKey(publicKey); err != nil {
		return models.Identity{}, err
	}

	if err := s.Store.SetIdentityPublicKey(ctx, identity.Id, publicKey); err != nil {
		return models.Identity{}, err
	}

	replaced := len(identity.PublicKey) > 0 && string(identity.PublicKey) != string(publicKey)
	identity.PublicKey = publicKey
	if replaced {
		s.enqueue(worker.Job{Type: worker.JobPushKey, IdentityId: identity.Id}, 0)
	}

	return identity, nil
}

// PushPublicKey copies identityId's current key onto the edge each peer
// holds towards it. Letters sealed to the old key stay sealed to it.
func (s *Service) PushPublicKey(ctx context.Context, identityId string) error {
	identity, err := s.Store.GetIdentity(ctx, identityId)
	if errors.Is(err, store.ErrItemNotFound) {
		return nil
	}
	if err != nil {
		return err
	}

	pairings, err := s.Store.ListPairings(ctx, identityId)
	if err != nil {
		return err
	}

	for _, p := range pairings {
		err := s.Store.UpdatePairingPeerKey(ctx, p.PeerId, identityId, identity.PublicKey)
		if errors.Is(err, store.ErrItemNotFound) {
			continue
		}
		if err != nil {
			return err
		}
		s.notify(p.PeerId, Notification{Type: NotificationPeerKeyUpdated, PeerId: identityId, Display: identity.Display()})
	}
	return nil
}
