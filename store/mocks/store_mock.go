package mocks

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"
	"github.com/zlnvch/letterbox/models"
)

type MockStore struct {
	mock.Mock
}

func (m *MockStore) CreateIdentity(ctx context.Context, identity models.Identity, provider string, providerId string) (models.Identity, error) {
	args := m.Called(ctx, identity, provider, providerId)
	return args.Get(0).(models.Identity), args.Error(1)
}

func (m *MockStore) GetIdentity(ctx context.Context, id string) (models.Identity, error) {
	args := m.Called(ctx, id)
	return args.Get(0).(models.Identity), args.Error(1)
}

func (m *MockStore) UpdateIdentityProfile(ctx context.Context, id string, displayName string, displayEmoji string) error {
	args := m.Called(ctx, id, displayName, displayEmoji)
	return args.Error(0)
}

func (m *MockStore) SetIdentityPublicKey(ctx context.Context, id string, publicKey []byte) error {
	args := m.Called(ctx, id, publicKey)
	return args.Error(0)
}

func (m *MockStore) AddBlockedId(ctx context.Context, id string, blockedId string) error {
	args := m.Called(ctx, id, blockedId)
	return args.Error(0)
}

func (m *MockStore) RemoveBlockedId(ctx context.Context, id string, blockedId string) error {
	args := m.Called(ctx, id, blockedId)
	return args.Error(0)
}

func (m *MockStore) UpdateLastActive(ctx context.Context, id string, at time.Time) error {
	args := m.Called(ctx, id, at)
	return args.Error(0)
}

func (m *MockStore) DeleteIdentity(ctx context.Context, id string) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *MockStore) CreateInviteLink(ctx context.Context, link models.InviteLink) error {
	args := m.Called(ctx, link)
	return args.Error(0)
}

func (m *MockStore) GetInviteLink(ctx context.Context, id string) (models.InviteLink, error) {
	args := m.Called(ctx, id)
	return args.Get(0).(models.InviteLink), args.Error(1)
}

func (m *MockStore) CreatePairingRequest(ctx context.Context, req models.PairingRequest) error {
	args := m.Called(ctx, req)
	return args.Error(0)
}

func (m *MockStore) GetPairingRequest(ctx context.Context, toId string, fromId string) (models.PairingRequest, error) {
	args := m.Called(ctx, toId, fromId)
	return args.Get(0).(models.PairingRequest), args.Error(1)
}

func (m *MockStore) ListPairingRequests(ctx context.Context, toId string) ([]models.PairingRequest, error) {
	args := m.Called(ctx, toId)
	return args.Get(0).([]models.PairingRequest), args.Error(1)
}

func (m *MockStore) AcceptPairingRequest(ctx context.Context, req models.PairingRequest, edges [2]models.Pairing) error {
	args := m.Called(ctx, req, edges)
	return args.Error(0)
}

func (m *MockStore) RejectPairingRequest(ctx context.Context, req models.PairingRequest) error {
	args := m.Called(ctx, req)
	return args.Error(0)
}

func (m *MockStore) GetPairing(ctx context.Context, viewerId string, peerId string) (models.Pairing, error) {
	args := m.Called(ctx, viewerId, peerId)
	return args.Get(0).(models.Pairing), args.Error(1)
}

func (m *MockStore) ListPairings(ctx context.Context, viewerId string) ([]models.Pairing, error) {
	args := m.Called(ctx, viewerId)
	return args.Get(0).([]models.Pairing), args.Error(1)
}

func (m *MockStore) DeletePairing(ctx context.Context, viewerId string, peerId string) error {
	args := m.Called(ctx, viewerId, peerId)
	return args.Error(0)
}

func (m *MockStore) UpdatePairingPeerKey(ctx context.Context, viewerId string, peerId string, publicKey []byte) error {
	args := m.Called(ctx, viewerId, peerId, publicKey)
	return args.Error(0)
}

func (m *MockStore) CreateLetter(ctx context.Context, letter models.Letter, maxPending int) (models.Letter, error) {
	args := m.Called(ctx, letter, maxPending)
	if fn, ok := args.Get(0).(func(context.Context, models.Letter, int) models.Letter); ok {
		return fn(ctx, letter, maxPending), args.Error(1)
	}
	return args.Get(0).(models.Letter), args.Error(1)
}

func (m *MockStore) GetLetter(ctx context.Context, id string) (models.Letter, error) {
	args := m.Called(ctx, id)
	return args.Get(0).(models.Letter), args.Error(1)
}

func (m *MockStore) ListLettersByRecipient(ctx context.Context, recipientId string) ([]models.Letter, error) {
	args := m.Called(ctx, recipientId)
	return args.Get(0).([]models.Letter), args.Error(1)
}

func (m *MockStore) ListLettersBySender(ctx context.Context, senderId string) ([]models.Letter, error) {
	args := m.Called(ctx, senderId)
	return args.Get(0).([]models.Letter), args.Error(1)
}

func (m *MockStore) ListDueLetters(ctx context.Context, status models.LetterStatus, before time.Time) ([]models.Letter, error) {
	args := m.Called(ctx, status, before)
	return args.Get(0).([]models.Letter), args.Error(1)
}

func (m *MockStore) RescheduleLetter(ctx context.Context, id string, deliverAt time.Time) error {
	args := m.Called(ctx, id, deliverAt)
	return args.Error(0)
}

func (m *MockStore) MarkLetterDelivered(ctx context.Context, id string, at time.Time) (models.Letter, error) {
	args := m.Called(ctx, id, at)
	return args.Get(0).(models.Letter), args.Error(1)
}

func (m *MockStore) MarkLetterOpened(ctx context.Context, letter models.Letter, at time.Time) (models.Letter, error) {
	args := m.Called(ctx, letter, at)
	return args.Get(0).(models.Letter), args.Error(1)
}

func (m *MockStore) DeleteLetter(ctx context.Context, letter models.Letter) error {
	args := m.Called(ctx, letter)
	return args.Error(0)
}
