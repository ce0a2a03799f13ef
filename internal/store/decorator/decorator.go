// Package decorator wraps a store.BackingStore with cross-cutting behaviour:
// circuit breaking, metrics, tracing and logging. Each concern is a
// Middleware; Chain applies them in a fixed order around the base store.
package decorator

import (
	"context"

	"github.com/420247jake/the-mind/internal/domain"
	"github.com/420247jake/the-mind/internal/store"
)

// Middleware runs around a single store operation. It must call next at most
// once and return its error, possibly transformed.
type Middleware func(ctx context.Context, op string, next func(context.Context) error) error

// Store applies a middleware to every call of the wrapped store.
type Store struct {
	inner store.BackingStore
	mw    Middleware
}

var _ store.BackingStore = (*Store)(nil)

// Wrap decorates inner with mw.
func Wrap(inner store.BackingStore, mw Middleware) *Store {
	return &Store{inner: inner, mw: mw}
}

// Unwrap returns the decorated store.
func (s *Store) Unwrap() store.BackingStore {
	return s.inner
}

func (s *Store) GetVersion(ctx context.Context) (domain.VersionToken, error) {
	var out domain.VersionToken
	err := s.mw(ctx, store.OpGetVersion, func(ctx context.Context) (err error) {
		out, err = s.inner.GetVersion(ctx)
		return err
	})
	return out, err
}

func (s *Store) GetThoughtCount(ctx context.Context) (int, error) {
	var out int
	err := s.mw(ctx, store.OpGetThoughtCount, func(ctx context.Context) (err error) {
		out, err = s.inner.GetThoughtCount(ctx)
		return err
	})
	return out, err
}

func (s *Store) GetAllThoughts(ctx context.Context) ([]domain.Thought, error) {
	var out []domain.Thought
	err := s.mw(ctx, store.OpGetAllThoughts, func(ctx context.Context) (err error) {
		out, err = s.inner.GetAllThoughts(ctx)
		return err
	})
	return out, err
}

func (s *Store) GetAllConnections(ctx context.Context) ([]domain.Connection, error) {
	var out []domain.Connection
	err := s.mw(ctx, store.OpGetAllConnections, func(ctx context.Context) (err error) {
		out, err = s.inner.GetAllConnections(ctx)
		return err
	})
	return out, err
}

func (s *Store) GetAllClusters(ctx context.Context) ([]domain.Cluster, error) {
	var out []domain.Cluster
	err := s.mw(ctx, store.OpGetAllClusters, func(ctx context.Context) (err error) {
		out, err = s.inner.GetAllClusters(ctx)
		return err
	})
	return out, err
}

func (s *Store) GetThoughtsNear(ctx context.Context, center domain.Position, radius float64, limit int) ([]domain.Thought, error) {
	var out []domain.Thought
	err := s.mw(ctx, store.OpGetThoughtsNear, func(ctx context.Context) (err error) {
		out, err = s.inner.GetThoughtsNear(ctx, center, radius, limit)
		return err
	})
	return out, err
}

func (s *Store) GetConnectionsForThoughts(ctx context.Context, ids []string) ([]domain.Connection, error) {
	var out []domain.Connection
	err := s.mw(ctx, store.OpGetConnectionsForThoughts, func(ctx context.Context) (err error) {
		out, err = s.inner.GetConnectionsForThoughts(ctx, ids)
		return err
	})
	return out, err
}

func (s *Store) AddThought(ctx context.Context, t domain.Thought) error {
	return s.mw(ctx, store.OpAddThought, func(ctx context.Context) error {
		return s.inner.AddThought(ctx, t)
	})
}

func (s *Store) AddConnection(ctx context.Context, c domain.Connection) error {
	return s.mw(ctx, store.OpAddConnection, func(ctx context.Context) error {
		return s.inner.AddConnection(ctx, c)
	})
}
