package mocks

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"
)

type MockCache struct {
	mock.Mock
}

func (m *MockCache) Publish(ctx context.Context, channel string, message []byte) error {
	args := m.Called(ctx, channel, message)
	return args.Error(0)
}

func (m *MockCache) Subscribe(ctx context.Context, channel string, handler func(message []byte)) error {
	args := m.Called(ctx, channel, handler)
	return args.Error(0)
}

func (m *MockCache) SetLastActive(ctx context.Context, identityId string, at time.Time) error {
	args := m.Called(ctx, identityId, at)
	return args.Error(0)
}

func (m *MockCache) GetLastActive(ctx context.Context, identityId string) (time.Time, error) {
	args := m.Called(ctx, identityId)
	return args.Get(0).(time.Time), args.Error(1)
}

func (m *MockCache) IncrementActionCount(ctx context.Context, identityId string, action string, window time.Duration) (int64, error) {
	args := m.Called(ctx, identityId, action, window)
	return args.Get(0).(int64), args.Error(1)
}
