// Package memory is an in-process LetterStore used by the device CLI's
// offline mode and by flow tests. It honours the same conditional and
// transactional semantics as the DynamoDB store.
package memory

import (
	"context"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/zlnvch/letterbox/models"
	"github.com/zlnvch/letterbox/store"
)

type pairKey struct {
	a string
	b string
}

type MemoryLetterStore struct {
	mu sync.Mutex

	logins     map[string]string
	identities map[string]models.Identity
	invites    map[string]models.InviteLink
	requests   map[pairKey]models.PairingRequest // keyed by (toId, fromId)
	pairings   map[pairKey]models.Pairing        // keyed by (viewerId, peerId)
	pending    map[pairKey]int                   // keyed by (senderId, recipientId), outlives the pairing
	letters    map[string]models.Letter
}

func NewMemoryLetterStore() *MemoryLetterStore {
	return &MemoryLetterStore{
		logins:     make(map[string]string),
		identities: make(map[string]models.Identity),
		invites:    make(map[string]models.InviteLink),
		requests:   make(map[pairKey]models.PairingRequest),
		pairings:   make(map[pairKey]models.Pairing),
		pending:    make(map[pairKey]int),
		letters:    make(map[string]models.Letter),
	}
}

func cloneIdentity(i models.Identity) models.Identity {
	i.PublicKey = slices.Clone(i.PublicKey)
	i.BlockedIds = slices.Clone(i.BlockedIds)
	return i
}

func cloneLetter(l models.Letter) models.Letter {
	l.AttachmentRefs = slices.Clone(l.AttachmentRefs)
	return l
}

func (m *MemoryLetterStore) CreateIdentity(ctx context.Context, identity models.Identity, provider string, providerId string) (models.Identity, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	loginKey := provider + "#" + providerId
	if id, ok := m.logins[loginKey]; ok {
		identity.Id = id
	} else {
		m.logins[loginKey] = identity.Id
	}

	if existing, ok := m.identities[identity.Id]; ok {
		return cloneIdentity(existing), nil
	}
	m.identities[identity.Id] = cloneIdentity(identity)
	return cloneIdentity(identity), nil
}

func (m *MemoryLetterStore) GetIdentity(ctx context.Context, id string) (models.Identity, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	identity, ok := m.identities[id]
	if !ok {
		return models.Identity{}, store.ErrItemNotFound
	}
	return cloneIdentity(identity), nil
}

func (m *MemoryLetterStore) updateIdentity(id string, fn func(*models.Identity)) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	identity, ok := m.identities[id]
	if !ok {
		return store.ErrItemNotFound
	}
	fn(&identity)
	m.identities[id] = identity
	return nil
}

func (m *MemoryLetterStore) UpdateIdentityProfile(ctx context.Context, id string, displayName string, displayEmoji string) error {
	return m.updateIdentity(id, func(i *models.Identity) {
		i.DisplayName = displayName
		i.DisplayEmoji = displayEmoji
	})
}

func (m *MemoryLetterStore) SetIdentityPublicKey(ctx context.Context, id string, publicKey []byte) error {
	return m.updateIdentity(id, func(i *models.Identity) {
		i.PublicKey = slices.Clone(publicKey)
	})
}

func (m *MemoryLetterStore) AddBlockedId(ctx context.Context, id string, blockedId string) error {
	return m.updateIdentity(id, func(i *models.Identity) {
		if !slices.Contains(i.BlockedIds, blockedId) {
			i.BlockedIds = append(slices.Clone(i.BlockedIds), blockedId)
		}
	})
}

func (m *MemoryLetterStore) RemoveBlockedId(ctx context.Context, id string, blockedId string) error {
	return m.updateIdentity(id, func(i *models.Identity) {
		i.BlockedIds = slices.DeleteFunc(slices.Clone(i.BlockedIds), func(b string) bool { return b == blockedId })
	})
}

func (m *MemoryLetterStore) UpdateLastActive(ctx context.Context, id string, at time.Time) error {
	return m.updateIdentity(id, func(i *models.Identity) {
		if at.After(i.LastActiveAt) {
			i.LastActiveAt = at
		}
	})
}

func (m *MemoryLetterStore) DeleteIdentity(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.identities[id]; !ok {
		return store.ErrItemNotFound
	}
	delete(m.identities, id)
	for login, identityId := range m.logins {
		if identityId == id {
			delete(m.logins, login)
		}
	}
	return nil
}

func (m *MemoryLetterStore) CreateInviteLink(ctx context.Context, link models.InviteLink) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.invites[link.Id]; ok {
		return store.ErrItemExists
	}
	link.IssuerPublicKey = slices.Clone(link.IssuerPublicKey)
	m.invites[link.Id] = link
	return nil
}

func (m *MemoryLetterStore) GetInviteLink(ctx context.Context, id string) (models.InviteLink, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	link, ok := m.invites[id]
	if !ok {
		return models.InviteLink{}, store.ErrItemNotFound
	}
	return link, nil
}

func (m *MemoryLetterStore) CreatePairingRequest(ctx context.Context, req models.PairingRequest) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := pairKey{req.ToId, req.FromId}
	if existing, ok := m.requests[key]; ok && existing.Status == models.RequestPending {
		return store.ErrConditionFailed
	}
	m.requests[key] = req
	return nil
}

func (m *MemoryLetterStore) GetPairingRequest(ctx context.Context, toId string, fromId string) (models.PairingRequest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	req, ok := m.requests[pairKey{toId, fromId}]
	if !ok {
		return models.PairingRequest{}, store.ErrItemNotFound
	}
	return req, nil
}

func (m *MemoryLetterStore) ListPairingRequests(ctx context.Context, toId string) ([]models.PairingRequest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	requests := []models.PairingRequest{}
	for key, req := range m.requests {
		if key.a == toId {
			requests = append(requests, req)
		}
	}
	sort.Slice(requests, func(i, j int) bool { return requests[i].FromId < requests[j].FromId })
	return requests, nil
}

func (m *MemoryLetterStore) AcceptPairingRequest(ctx context.Context, req models.PairingRequest, edges [2]models.Pairing) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := pairKey{req.ToId, req.FromId}
	existing, ok := m.requests[key]
	if !ok {
		return store.ErrItemNotFound
	}
	if existing.Status != models.RequestPending {
		return store.ErrConditionFailed
	}

	for _, edge := range edges {
		if _, ok := m.pairings[pairKey{edge.ViewerId, edge.PeerId}]; ok {
			return store.ErrItemExists
		}
	}

	existing.Status = models.RequestAccepted
	m.requests[key] = existing
	for _, edge := range edges {
		edge.PendingLetterCount = 0
		edge.PeerPublicKey = slices.Clone(edge.PeerPublicKey)
		m.pairings[pairKey{edge.ViewerId, edge.PeerId}] = edge
	}
	return nil
}

func (m *MemoryLetterStore) RejectPairingRequest(ctx context.Context, req models.PairingRequest) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := pairKey{req.ToId, req.FromId}
	existing, ok := m.requests[key]
	if !ok {
		return store.ErrItemNotFound
	}
	if existing.Status != models.RequestPending {
		return store.ErrConditionFailed
	}
	existing.Status = models.RequestRejected
	m.requests[key] = existing
	return nil
}

func (m *MemoryLetterStore) GetPairing(ctx context.Context, viewerId string, peerId string) (models.Pairing, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	pairing, ok := m.pairings[pairKey{viewerId, peerId}]
	if !ok {
		return models.Pairing{}, store.ErrItemNotFound
	}
	return m.withPending(pairing), nil
}

func (m *MemoryLetterStore) ListPairings(ctx context.Context, viewerId string) ([]models.Pairing, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	pairings := []models.Pairing{}
	for key, pairing := range m.pairings {
		if key.a == viewerId {
			pairings = append(pairings, m.withPending(pairing))
		}
	}
	sort.Slice(pairings, func(i, j int) bool { return pairings[i].PeerId < pairings[j].PeerId })
	return pairings, nil
}

// withPending must be called with mu held.
func (m *MemoryLetterStore) withPending(p models.Pairing) models.Pairing {
	p.PendingLetterCount = m.pending[pairKey{p.ViewerId, p.PeerId}]
	return p
}

func (m *MemoryLetterStore) DeletePairing(ctx context.Context, viewerId string, peerId string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.pairings, pairKey{viewerId, peerId})
	delete(m.pairings, pairKey{peerId, viewerId})
	return nil
}

func (m *MemoryLetterStore) UpdatePairingPeerKey(ctx context.Context, viewerId string, peerId string, publicKey []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := pairKey{viewerId, peerId}
	pairing, ok := m.pairings[key]
	if !ok {
		return store.ErrItemNotFound
	}
	pairing.PeerPublicKey = slices.Clone(publicKey)
	m.pairings[key] = pairing
	return nil
}

func (m *MemoryLetterStore) CreateLetter(ctx context.Context, letter models.Letter, maxPending int) (models.Letter, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if existing, ok := m.letters[letter.Id]; ok {
		return cloneLetter(existing), store.ErrItemExists
	}

	key := pairKey{letter.SenderId, letter.RecipientId}
	if _, ok := m.pairings[key]; !ok {
		return models.Letter{}, store.ErrItemNotFound
	}
	if m.pending[key] >= maxPending {
		return models.Letter{}, store.ErrConditionFailed
	}

	m.pending[key]++
	m.letters[letter.Id] = cloneLetter(letter)
	return cloneLetter(letter), nil
}

func (m *MemoryLetterStore) GetLetter(ctx context.Context, id string) (models.Letter, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	letter, ok := m.letters[id]
	if !ok {
		return models.Letter{}, store.ErrItemNotFound
	}
	return cloneLetter(letter), nil
}

func (m *MemoryLetterStore) listLetters(match func(models.Letter) bool, newestFirst bool) []models.Letter {
	letters := []models.Letter{}
	for _, letter := range m.letters {
		if match(letter) {
			letters = append(letters, cloneLetter(letter))
		}
	}
	sort.Slice(letters, func(i, j int) bool {
		if letters[i].CreatedAt.Equal(letters[j].CreatedAt) {
			return letters[i].Id < letters[j].Id
		}
		if newestFirst {
			return letters[i].CreatedAt.After(letters[j].CreatedAt)
		}
		return letters[i].CreatedAt.Before(letters[j].CreatedAt)
	})
	return letters
}

func (m *MemoryLetterStore) ListLettersByRecipient(ctx context.Context, recipientId string) ([]models.Letter, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.listLetters(func(l models.Letter) bool { return l.RecipientId == recipientId }, true), nil
}

func (m *MemoryLetterStore) ListLettersBySender(ctx context.Context, senderId string) ([]models.Letter, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.listLetters(func(l models.Letter) bool { return l.SenderId == senderId }, true), nil
}

func (m *MemoryLetterStore) ListDueLetters(ctx context.Context, status models.LetterStatus, before time.Time) ([]models.Letter, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	letters := m.listLetters(func(l models.Letter) bool {
		return l.Status == status && !l.DeliverAt.After(before)
	}, false)
	sort.SliceStable(letters, func(i, j int) bool { return letters[i].DeliverAt.Before(letters[j].DeliverAt) })
	return letters, nil
}

func (m *MemoryLetterStore) RescheduleLetter(ctx context.Context, id string, deliverAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	letter, ok := m.letters[id]
	if !ok {
		return store.ErrItemNotFound
	}
	if letter.Status != models.LetterPending {
		return store.ErrConditionFailed
	}
	letter.DeliverAt = deliverAt
	m.letters[id] = letter
	return nil
}

func (m *MemoryLetterStore) MarkLetterDelivered(ctx context.Context, id string, at time.Time) (models.Letter, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	letter, ok := m.letters[id]
	if !ok {
		return models.Letter{}, store.ErrItemNotFound
	}
	if letter.Status != models.LetterPending && letter.Status != models.LetterScheduled {
		return models.Letter{}, store.ErrConditionFailed
	}

	letter.Status = models.LetterDelivered
	letter.DeliveredAt = at
	m.letters[id] = letter
	return cloneLetter(letter), nil
}

// releaseSlot must be called with mu held.
func (m *MemoryLetterStore) releaseSlot(letter models.Letter) {
	key := pairKey{letter.SenderId, letter.RecipientId}
	if m.pending[key] > 1 {
		m.pending[key]--
	} else {
		delete(m.pending, key)
	}
}

func (m *MemoryLetterStore) MarkLetterOpened(ctx context.Context, letter models.Letter, at time.Time) (models.Letter, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	stored, ok := m.letters[letter.Id]
	if !ok {
		return models.Letter{}, store.ErrItemNotFound
	}
	if stored.Status != models.LetterDelivered {
		return models.Letter{}, store.ErrConditionFailed
	}

	stored.Status = models.LetterOpened
	stored.OpenedAt = at
	stored.SealedContent = ""
	stored.AttachmentRefs = nil
	m.letters[letter.Id] = stored
	m.releaseSlot(stored)
	return cloneLetter(stored), nil
}

func (m *MemoryLetterStore) DeleteLetter(ctx context.Context, letter models.Letter) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	stored, ok := m.letters[letter.Id]
	if !ok {
		return nil
	}
	if stored.Status != letter.Status {
		return store.ErrConditionFailed
	}

	delete(m.letters, letter.Id)
	if stored.Status.CountsTowardCap() {
		m.releaseSlot(stored)
	}
	return nil
}
