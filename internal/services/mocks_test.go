package services_test

import (
	"context"

	"github.com/storysync/storysync-api/internal/models"
	"github.com/stretchr/testify/mock"
)

// MockStoryStore is a mock implementation of StoryStoreInterface
type MockStoryStore struct {
	mock.Mock
}

func (m *MockStoryStore) Upsert(ctx context.Context, post *models.Post) (int64, error) {
	args := m.Called(ctx, post)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockStoryStore) Exists(ctx context.Context, id int64) (bool, error) {
	args := m.Called(ctx, id)
	return args.Bool(0), args.Error(1)
}

func (m *MockStoryStore) Delete(ctx context.Context, id int64) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *MockStoryStore) Permalink(ctx context.Context, id int64) (string, error) {
	args := m.Called(ctx, id)
	return args.String(0), args.Error(1)
}

func (m *MockStoryStore) InvalidateCache(id int64) {
	m.Called(id)
}

// MockSettingsStore is a mock implementation of SettingsStoreInterface
type MockSettingsStore struct {
	mock.Mock
}

func (m *MockSettingsStore) GetBool(ctx context.Context, key string) bool {
	args := m.Called(ctx, key)
	return args.Bool(0)
}

func (m *MockSettingsStore) GetString(ctx context.Context, key string) string {
	args := m.Called(ctx, key)
	return args.String(0)
}

func (m *MockSettingsStore) Set(ctx context.Context, key string, value any) error {
	args := m.Called(ctx, key, value)
	return args.Error(0)
}
