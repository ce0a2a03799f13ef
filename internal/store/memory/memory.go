// Package memory is an in-process backing store. It mirrors the SQLite
// store's semantics, including insert-or-replace identifiers, and can be
// configured to behave like an older store without the version or spatial
// queries.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/420247jake/the-mind/internal/domain"
	"github.com/420247jake/the-mind/internal/store"
	pkgerrors "github.com/420247jake/the-mind/pkg/errors"
)

type thoughtRow struct {
	seq     int64
	thought domain.Thought
}

type connectionRow struct {
	seq        int64
	connection domain.Connection
}

// Store keeps the whole graph in maps guarded by a RWMutex.
type Store struct {
	mu          sync.RWMutex
	thoughts    map[string]thoughtRow
	connections map[string]connectionRow
	clusters    []domain.Cluster
	sessions    map[string]domain.Session

	thoughtSeq    int64
	connectionSeq int64

	noVersion bool
	noSpatial bool
	now       func() time.Time
}

var _ store.Repository = (*Store)(nil)

// Option configures a Store.
type Option func(*Store)

// WithoutVersion makes GetVersion report a schema mismatch.
func WithoutVersion() Option {
	return func(s *Store) { s.noVersion = true }
}

// WithoutSpatial makes the windowed queries report a schema mismatch.
func WithoutSpatial() Option {
	return func(s *Store) { s.noSpatial = true }
}

// WithClock overrides the clock used for cluster timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// New creates an empty store.
func New(opts ...Option) *Store {
	s := &Store{
		thoughts:    make(map[string]thoughtRow),
		connections: make(map[string]connectionRow),
		sessions:    make(map[string]domain.Session),
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Store) GetVersion(ctx context.Context) (domain.VersionToken, error) {
	if s.noVersion {
		return domain.VersionToken{}, pkgerrors.NewSchemaMismatchError(store.OpGetVersion, nil)
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return domain.VersionToken{MaxThoughtID: s.thoughtSeq, MaxConnectionID: s.connectionSeq}, nil
}

func (s *Store) GetThoughtCount(ctx context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.thoughts), nil
}

func (s *Store) GetAllThoughts(ctx context.Context) ([]domain.Thought, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.sortedThoughts(), nil
}

func (s *Store) GetAllConnections(ctx context.Context) ([]domain.Connection, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.sortedConnections(func(domain.Connection) bool { return true }), nil
}

func (s *Store) GetAllClusters(ctx context.Context) ([]domain.Cluster, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.Cluster, len(s.clusters))
	copy(out, s.clusters)
	return out, nil
}

func (s *Store) GetThoughtsNear(ctx context.Context, center domain.Position, radius float64, limit int) ([]domain.Thought, error) {
	if s.noSpatial {
		return nil, pkgerrors.NewSchemaMismatchError(store.OpGetThoughtsNear, nil)
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	type candidate struct {
		thought domain.Thought
		distSq  float64
	}
	radiusSq := radius * radius
	var candidates []candidate
	for _, row := range s.thoughts {
		d := row.thought.Position.DistanceSquaredTo(center)
		if d <= radiusSq {
			candidates = append(candidates, candidate{thought: row.thought, distSq: d})
		}
	}
	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].distSq != candidates[j].distSq {
			return candidates[i].distSq < candidates[j].distSq
		}
		return candidates[i].thought.ID < candidates[j].thought.ID
	})
	if limit >= 0 && len(candidates) > limit {
		candidates = candidates[:limit]
	}

	out := make([]domain.Thought, len(candidates))
	for i, c := range candidates {
		out[i] = c.thought
	}
	return out, nil
}

func (s *Store) GetConnectionsForThoughts(ctx context.Context, ids []string) ([]domain.Connection, error) {
	if s.noSpatial {
		return nil, pkgerrors.NewSchemaMismatchError(store.OpGetConnectionsForThoughts, nil)
	}
	if len(ids) == 0 {
		return nil, nil
	}
	set := store.IDSet(ids)

	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.sortedConnections(func(c domain.Connection) bool {
		_, from := set[c.From]
		_, to := set[c.To]
		return from && to
	}), nil
}

func (s *Store) AddThought(ctx context.Context, t domain.Thought) error {
	if t.ID == "" {
		return pkgerrors.NewValidationError("thought id is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.thoughtSeq++
	s.thoughts[t.ID] = thoughtRow{seq: s.thoughtSeq, thought: t}
	return nil
}

func (s *Store) AddConnection(ctx context.Context, c domain.Connection) error {
	if c.ID == "" {
		return pkgerrors.NewValidationError("connection id is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.connectionSeq++
	s.connections[c.ID] = connectionRow{seq: s.connectionSeq, connection: c}
	return nil
}

func (s *Store) SearchThoughts(ctx context.Context, query string) ([]domain.Thought, error) {
	needle := strings.ToLower(query)

	s.mu.RLock()
	var matches []domain.Thought
	for _, row := range s.thoughts {
		if strings.Contains(strings.ToLower(row.thought.Content), needle) {
			matches = append(matches, row.thought)
		}
	}
	s.mu.RUnlock()

	sort.SliceStable(matches, func(i, j int) bool {
		if matches[i].Importance != matches[j].Importance {
			return matches[i].Importance > matches[j].Importance
		}
		return matches[i].LastReferenced.After(matches[j].LastReferenced)
	})
	if len(matches) > store.SearchLimit {
		matches = matches[:store.SearchLimit]
	}
	return matches, nil
}

func (s *Store) RecomputeClusters(ctx context.Context) ([]domain.Cluster, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clusters = store.ComputeClusters(s.sortedThoughts(), s.now().UTC())
	out := make([]domain.Cluster, len(s.clusters))
	copy(out, s.clusters)
	return out, nil
}

func (s *Store) AddSession(ctx context.Context, session domain.Session) error {
	if session.ID == "" {
		return pkgerrors.NewValidationError("session id is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[session.ID] = session
	return nil
}

func (s *Store) GetAllSessions(ctx context.Context) ([]domain.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.Session, 0, len(s.sessions))
	for _, session := range s.sessions {
		out = append(out, session)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartedAt.After(out[j].StartedAt) })
	return out, nil
}

// Close is a no-op.
func (s *Store) Close() error { return nil }

// sortedThoughts returns thoughts in insertion order. Callers hold the lock.
func (s *Store) sortedThoughts() []domain.Thought {
	rows := make([]thoughtRow, 0, len(s.thoughts))
	for _, row := range s.thoughts {
		rows = append(rows, row)
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].seq < rows[j].seq })

	out := make([]domain.Thought, len(rows))
	for i, row := range rows {
		out[i] = row.thought
	}
	return out
}

func (s *Store) sortedConnections(keep func(domain.Connection) bool) []domain.Connection {
	rows := make([]connectionRow, 0, len(s.connections))
	for _, row := range s.connections {
		if keep(row.connection) {
			rows = append(rows, row)
		}
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].seq < rows[j].seq })

	out := make([]domain.Connection, len(rows))
	for i, row := range rows {
		out[i] = row.connection
	}
	return out
}
