// Package store defines the contract between the mind graph and whatever
// persists it. The external writer appends thoughts and connections; the
// viewer side only reads.
//
// A store that predates the version or spatial queries reports the missing
// capability by returning a SCHEMA_MISMATCH error from pkg/errors, and the
// loader degrades to full reloads.
package store

import (
	"context"

	"github.com/420247jake/the-mind/internal/domain"
)

// Reader is the read side used by the loader.
type Reader interface {
	// GetVersion returns the current version token.
	GetVersion(ctx context.Context) (domain.VersionToken, error)

	// GetThoughtCount returns the total number of stored thoughts.
	GetThoughtCount(ctx context.Context) (int, error)

	GetAllThoughts(ctx context.Context) ([]domain.Thought, error)
	GetAllConnections(ctx context.Context) ([]domain.Connection, error)
	GetAllClusters(ctx context.Context) ([]domain.Cluster, error)

	// GetThoughtsNear returns at most limit thoughts within radius of center,
	// nearest first.
	GetThoughtsNear(ctx context.Context, center domain.Position, radius float64, limit int) ([]domain.Thought, error)

	// GetConnectionsForThoughts returns the connections whose endpoints are
	// both in ids.
	GetConnectionsForThoughts(ctx context.Context, ids []string) ([]domain.Connection, error)
}

// Writer is the append side used by the external writer. Adding a thought
// with an existing id replaces it.
type Writer interface {
	AddThought(ctx context.Context, t domain.Thought) error
	AddConnection(ctx context.Context, c domain.Connection) error
}

// BackingStore is the full read and write contract.
type BackingStore interface {
	Reader
	Writer
}

// Repository extends BackingStore with the queries of the write path.
type Repository interface {
	BackingStore

	// SearchThoughts returns thoughts whose content contains query, most
	// important and most recently referenced first, capped at SearchLimit.
	SearchThoughts(ctx context.Context, query string) ([]domain.Thought, error)

	// RecomputeClusters replaces every cluster with one per category holding
	// at least domain.MinClusterSize thoughts.
	RecomputeClusters(ctx context.Context) ([]domain.Cluster, error)

	AddSession(ctx context.Context, s domain.Session) error
	GetAllSessions(ctx context.Context) ([]domain.Session, error)

	Close() error
}

// SearchLimit caps the number of SearchThoughts results.
const SearchLimit = 20

// Operation names used in errors, logs and metrics.
const (
	OpGetVersion                = "get_version"
	OpGetThoughtCount           = "get_thought_count"
	OpGetAllThoughts            = "get_all_thoughts"
	OpGetAllConnections         = "get_all_connections"
	OpGetAllClusters            = "get_all_clusters"
	OpGetThoughtsNear           = "get_thoughts_near"
	OpGetConnectionsForThoughts = "get_connections_for_thoughts"
	OpAddThought                = "add_thought"
	OpAddConnection             = "add_connection"
	OpSearchThoughts            = "search_thoughts"
	OpRecomputeClusters         = "recompute_clusters"
	OpAddSession                = "add_session"
	OpGetAllSessions            = "get_all_sessions"
)
