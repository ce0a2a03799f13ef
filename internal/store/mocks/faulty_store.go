package mocks

import (
	"context"
	"sync"

	"github.com/420247jake/the-mind/internal/domain"
	"github.com/420247jake/the-mind/internal/store"
)

// FaultyStore wraps a real repository and fails selected operations on
// demand. Useful for exercising fallback paths against real data.
type FaultyStore struct {
	store.Repository

	mu           sync.RWMutex
	shouldFailOn map[string]error
	calls        map[string]int
}

// NewFaultyStore wraps inner.
func NewFaultyStore(inner store.Repository) *FaultyStore {
	return &FaultyStore{
		Repository:   inner,
		shouldFailOn: make(map[string]error),
		calls:        make(map[string]int),
	}
}

// SetError configures op (one of the store.Op* names) to fail with err.
func (f *FaultyStore) SetError(op string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.shouldFailOn[op] = err
}

// ClearErrors removes all configured errors.
func (f *FaultyStore) ClearErrors() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.shouldFailOn = make(map[string]error)
}

// Calls returns how many times op was invoked.
func (f *FaultyStore) Calls(op string) int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.calls[op]
}

func (f *FaultyStore) check(op string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[op]++
	return f.shouldFailOn[op]
}

func (f *FaultyStore) GetVersion(ctx context.Context) (domain.VersionToken, error) {
	if err := f.check(store.OpGetVersion); err != nil {
		return domain.VersionToken{}, err
	}
	return f.Repository.GetVersion(ctx)
}

func (f *FaultyStore) GetThoughtCount(ctx context.Context) (int, error) {
	if err := f.check(store.OpGetThoughtCount); err != nil {
		return 0, err
	}
	return f.Repository.GetThoughtCount(ctx)
}

func (f *FaultyStore) GetAllThoughts(ctx context.Context) ([]domain.Thought, error) {
	if err := f.check(store.OpGetAllThoughts); err != nil {
		return nil, err
	}
	return f.Repository.GetAllThoughts(ctx)
}

func (f *FaultyStore) GetAllConnections(ctx context.Context) ([]domain.Connection, error) {
	if err := f.check(store.OpGetAllConnections); err != nil {
		return nil, err
	}
	return f.Repository.GetAllConnections(ctx)
}

func (f *FaultyStore) GetAllClusters(ctx context.Context) ([]domain.Cluster, error) {
	if err := f.check(store.OpGetAllClusters); err != nil {
		return nil, err
	}
	return f.Repository.GetAllClusters(ctx)
}

func (f *FaultyStore) GetThoughtsNear(ctx context.Context, center domain.Position, radius float64, limit int) ([]domain.Thought, error) {
	if err := f.check(store.OpGetThoughtsNear); err != nil {
		return nil, err
	}
	return f.Repository.GetThoughtsNear(ctx, center, radius, limit)
}

func (f *FaultyStore) GetConnectionsForThoughts(ctx context.Context, ids []string) ([]domain.Connection, error) {
	if err := f.check(store.OpGetConnectionsForThoughts); err != nil {
		return nil, err
	}
	return f.Repository.GetConnectionsForThoughts(ctx, ids)
}
