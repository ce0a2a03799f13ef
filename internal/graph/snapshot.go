// Package graph holds the materialized view of the mind graph. A Snapshot is
// immutable once built; the Store swaps whole snapshots atomically so readers
// never observe a partial reload.
package graph

import (
	"time"

	"github.com/tidwall/btree"

	"github.com/420247jake/the-mind/internal/domain"
)

// Mode tells how a snapshot was loaded.
type Mode string

const (
	ModeFull     Mode = "full"
	ModeWindowed Mode = "windowed"
)

// Window describes the region a windowed snapshot covers.
type Window struct {
	Center domain.Position `json:"center"`
	Radius float64         `json:"radius"`
	Limit  int             `json:"limit"`
}

// Input is everything a reload produced.
type Input struct {
	Thoughts    []domain.Thought
	Connections []domain.Connection
	Clusters    []domain.Cluster
	Mode        Mode
	Window      *Window
	// TotalCount is the thought count of the whole store, not just the window.
	TotalCount int
	Version    domain.VersionToken
	LoadedAt   time.Time
}

// BuildStats reports what ingestion had to correct.
type BuildStats struct {
	Normalized           int `json:"normalized"`
	DuplicateThoughts    int `json:"duplicate_thoughts"`
	DanglingDropped      int `json:"dangling_dropped"`
	DuplicateConnections int `json:"duplicate_connections"`
}

type createdKey struct {
	at time.Time
	id string
}

// Snapshot is one immutable materialized graph.
type Snapshot struct {
	thoughts    []domain.Thought
	connections []domain.Connection
	clusters    []domain.Cluster

	byID        map[string]int
	adjacency   map[string][]int
	byCategory  map[domain.Category]int
	connByID    map[string]struct{}
	createdTree *btree.BTreeG[createdKey]

	mode       Mode
	window     *Window
	totalCount int
	version    domain.VersionToken
	loadedAt   time.Time
	stats      BuildStats
}

func lessCreated(a, b createdKey) bool {
	if !a.at.Equal(b.at) {
		return a.at.Before(b.at)
	}
	return a.id < b.id
}

// NewSnapshot validates in and builds the lookup indexes. Out-of-range fields
// are clamped, duplicate ids keep their first occurrence and connections with
// an endpoint outside the snapshot are dropped.
func NewSnapshot(in Input) *Snapshot {
	s := &Snapshot{
		byID:        make(map[string]int, len(in.Thoughts)),
		adjacency:   make(map[string][]int),
		byCategory:  make(map[domain.Category]int, len(in.Clusters)),
		connByID:    make(map[string]struct{}, len(in.Connections)),
		createdTree: btree.NewBTreeGOptions(lessCreated, btree.Options{NoLocks: true}),
		mode:        in.Mode,
		window:      in.Window,
		totalCount:  in.TotalCount,
		version:     in.Version,
		loadedAt:    in.LoadedAt,
	}
	if s.mode == "" {
		s.mode = ModeFull
	}

	s.thoughts = make([]domain.Thought, 0, len(in.Thoughts))
	for _, raw := range in.Thoughts {
		if raw.ID == "" {
			continue
		}
		if _, dup := s.byID[raw.ID]; dup {
			s.stats.DuplicateThoughts++
			continue
		}
		t, changed := raw.Normalize()
		if changed {
			s.stats.Normalized++
		}
		s.byID[t.ID] = len(s.thoughts)
		s.thoughts = append(s.thoughts, t)
		s.createdTree.Set(createdKey{at: t.CreatedAt, id: t.ID})
	}

	s.connections = make([]domain.Connection, 0, len(in.Connections))
	for _, raw := range in.Connections {
		_, from := s.byID[raw.From]
		_, to := s.byID[raw.To]
		if !from || !to {
			s.stats.DanglingDropped++
			continue
		}
		if _, dup := s.connByID[raw.ID]; dup {
			s.stats.DuplicateConnections++
			continue
		}
		c, changed := raw.Normalize()
		if changed {
			s.stats.Normalized++
		}
		idx := len(s.connections)
		s.connections = append(s.connections, c)
		s.connByID[c.ID] = struct{}{}
		s.adjacency[c.From] = append(s.adjacency[c.From], idx)
		if c.To != c.From {
			s.adjacency[c.To] = append(s.adjacency[c.To], idx)
		}
	}

	s.clusters = make([]domain.Cluster, 0, len(in.Clusters))
	for _, c := range in.Clusters {
		if !c.Category.Valid() {
			c.Category = domain.CategoryOther
		}
		if _, dup := s.byCategory[c.Category]; dup {
			continue
		}
		c.Center = c.Center.Sanitized()
		s.byCategory[c.Category] = len(s.clusters)
		s.clusters = append(s.clusters, c)
	}

	if s.totalCount < len(s.thoughts) {
		s.totalCount = len(s.thoughts)
	}
	return s
}

// Empty returns a snapshot with no content.
func Empty() *Snapshot {
	return NewSnapshot(Input{})
}

// Thoughts returns the thoughts in load order. The slice must not be modified.
func (s *Snapshot) Thoughts() []domain.Thought { return s.thoughts }

// Connections returns the renderable connections. The slice must not be modified.
func (s *Snapshot) Connections() []domain.Connection { return s.connections }

// Clusters returns the clusters. The slice must not be modified.
func (s *Snapshot) Clusters() []domain.Cluster { return s.clusters }

// Mode reports how the snapshot was loaded.
func (s *Snapshot) Mode() Mode { return s.mode }

// Window returns the spatial window, nil for a full load.
func (s *Snapshot) Window() *Window { return s.window }

// TotalCount is the store-wide thought count at load time.
func (s *Snapshot) TotalCount() int { return s.totalCount }

// Version is the token the snapshot was loaded at.
func (s *Snapshot) Version() domain.VersionToken { return s.version }

// LoadedAt is when the snapshot was built.
func (s *Snapshot) LoadedAt() time.Time { return s.loadedAt }

// Stats reports what the build dropped or corrected.
func (s *Snapshot) Stats() BuildStats { return s.stats }

// Windowed reports whether the snapshot covers only part of the graph.
func (s *Snapshot) Windowed() bool { return s.mode == ModeWindowed }

// Thought looks up a thought by id.
func (s *Snapshot) Thought(id string) (domain.Thought, bool) {
	idx, ok := s.byID[id]
	if !ok {
		return domain.Thought{}, false
	}
	return s.thoughts[idx], true
}

// HasConnection reports whether a connection id is present.
func (s *Snapshot) HasConnection(id string) bool {
	_, ok := s.connByID[id]
	return ok
}

// ConnectionsFor returns the connections touching id.
func (s *Snapshot) ConnectionsFor(id string) []domain.Connection {
	idxs := s.adjacency[id]
	out := make([]domain.Connection, len(idxs))
	for i, idx := range idxs {
		out[i] = s.connections[idx]
	}
	return out
}

// ClusterFor returns the cluster of a category.
func (s *Snapshot) ClusterFor(c domain.Category) (domain.Cluster, bool) {
	idx, ok := s.byCategory[c]
	if !ok {
		return domain.Cluster{}, false
	}
	return s.clusters[idx], true
}

// Bounds returns the earliest and latest creation times. ok is false for an
// empty snapshot.
func (s *Snapshot) Bounds() (earliest, latest time.Time, ok bool) {
	first, ok := s.createdTree.Min()
	if !ok {
		return time.Time{}, time.Time{}, false
	}
	last, _ := s.createdTree.Max()
	return first.at, last.at, true
}

// CreatedBetween returns the ids created in [from, to], oldest first.
func (s *Snapshot) CreatedBetween(from, to time.Time) []string {
	var ids []string
	s.createdTree.Ascend(createdKey{at: from}, func(k createdKey) bool {
		if k.at.After(to) {
			return false
		}
		ids = append(ids, k.id)
		return true
	})
	return ids
}

// Newest returns the most recently created thought.
func (s *Snapshot) Newest() (domain.Thought, bool) {
	last, ok := s.createdTree.Max()
	if !ok {
		return domain.Thought{}, false
	}
	return s.Thought(last.id)
}
