package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"
	"github.com/zlnvch/letterbox/blob"
)

type MockBlobStore struct {
	mock.Mock
}

func (m *MockBlobStore) Put(ctx context.Context, b blob.Blob) error {
	args := m.Called(ctx, b)
	return args.Error(0)
}

func (m *MockBlobStore) Get(ctx context.Context, path string) (blob.Blob, error) {
	args := m.Called(ctx, path)
	return args.Get(0).(blob.Blob), args.Error(1)
}

func (m *MockBlobStore) Delete(ctx context.Context, path string) error {
	args := m.Called(ctx, path)
	return args.Error(0)
}

func (m *MockBlobStore) DeletePrefix(ctx context.Context, prefix string) (int, error) {
	args := m.Called(ctx, prefix)
	return args.Int(0), args.Error(1)
}
