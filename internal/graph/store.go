package graph

import (
	"sync/atomic"

	"github.com/420247jake/the-mind/internal/domain"
)

// Store publishes the current snapshot. Replace is the only writer.
type Store struct {
	current atomic.Pointer[Snapshot]
}

// NewStore creates a store holding an empty snapshot.
func NewStore() *Store {
	s := &Store{}
	s.current.Store(Empty())
	return s
}

// Replace builds a snapshot from in, publishes it and returns the previous
// and new snapshots.
func (s *Store) Replace(in Input) (prev, next *Snapshot) {
	next = NewSnapshot(in)
	prev = s.current.Swap(next)
	return prev, next
}

// Current returns the published snapshot.
func (s *Store) Current() *Snapshot {
	return s.current.Load()
}

// GetThought looks up a thought in the current snapshot.
func (s *Store) GetThought(id string) (domain.Thought, bool) {
	return s.Current().Thought(id)
}

// GetConnectionsFor returns the connections touching id in the current snapshot.
func (s *Store) GetConnectionsFor(id string) []domain.Connection {
	return s.Current().ConnectionsFor(id)
}

// GetClusterForCategory returns the cluster of a category in the current snapshot.
func (s *Store) GetClusterForCategory(c domain.Category) (domain.Cluster, bool) {
	return s.Current().ClusterFor(c)
}
