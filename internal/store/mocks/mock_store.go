// Package mocks provides test doubles for the store interfaces.
package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/420247jake/the-mind/internal/domain"
	"github.com/420247jake/the-mind/internal/store"
)

// MockStore is a testify mock of store.Repository.
type MockStore struct {
	mock.Mock
}

var _ store.Repository = (*MockStore)(nil)

func (m *MockStore) GetVersion(ctx context.Context) (domain.VersionToken, error) {
	args := m.Called(ctx)
	return args.Get(0).(domain.VersionToken), args.Error(1)
}

func (m *MockStore) GetThoughtCount(ctx context.Context) (int, error) {
	args := m.Called(ctx)
	return args.Int(0), args.Error(1)
}

func (m *MockStore) GetAllThoughts(ctx context.Context) ([]domain.Thought, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.Thought), args.Error(1)
}

func (m *MockStore) GetAllConnections(ctx context.Context) ([]domain.Connection, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.Connection), args.Error(1)
}

func (m *MockStore) GetAllClusters(ctx context.Context) ([]domain.Cluster, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.Cluster), args.Error(1)
}

func (m *MockStore) GetThoughtsNear(ctx context.Context, center domain.Position, radius float64, limit int) ([]domain.Thought, error) {
	args := m.Called(ctx, center, radius, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.Thought), args.Error(1)
}

func (m *MockStore) GetConnectionsForThoughts(ctx context.Context, ids []string) ([]domain.Connection, error) {
	args := m.Called(ctx, ids)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.Connection), args.Error(1)
}

func (m *MockStore) AddThought(ctx context.Context, t domain.Thought) error {
	return m.Called(ctx, t).Error(0)
}

func (m *MockStore) AddConnection(ctx context.Context, c domain.Connection) error {
	return m.Called(ctx, c).Error(0)
}

func (m *MockStore) SearchThoughts(ctx context.Context, query string) ([]domain.Thought, error) {
	args := m.Called(ctx, query)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.Thought), args.Error(1)
}

func (m *MockStore) RecomputeClusters(ctx context.Context) ([]domain.Cluster, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.Cluster), args.Error(1)
}

func (m *MockStore) AddSession(ctx context.Context, s domain.Session) error {
	return m.Called(ctx, s).Error(0)
}

func (m *MockStore) GetAllSessions(ctx context.Context) ([]domain.Session, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.Session), args.Error(1)
}

func (m *MockStore) Close() error {
	return m.Called().Error(0)
}
