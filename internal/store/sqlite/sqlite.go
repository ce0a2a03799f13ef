// Package sqlite implements the backing store on a SQLite file shared with the
// external writer. Version tokens are the largest rowids of the thoughts and
// connections tables; INSERT OR REPLACE allocates a fresh rowid, so updates
// advance the token too.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"github.com/420247jake/the-mind/internal/domain"
	"github.com/420247jake/the-mind/internal/store"
	pkgerrors "github.com/420247jake/the-mind/pkg/errors"
)

// Config configures the SQLite store.
type Config struct {
	// Path is the database file, or ":memory:".
	Path string

	// Migrate creates missing tables. The viewer can open a writer-owned file
	// with Migrate disabled.
	Migrate bool

	BusyTimeout time.Duration
}

// Store is a store.Repository backed by database/sql.
type Store struct {
	db     *sql.DB
	logger *zap.Logger
	now    func() time.Time
}

var _ store.Repository = (*Store)(nil)

const schema = `
CREATE TABLE IF NOT EXISTS thoughts (
	id TEXT PRIMARY KEY,
	content TEXT NOT NULL,
	role TEXT,
	category TEXT DEFAULT 'other',
	importance REAL DEFAULT 0.5,
	position_x REAL DEFAULT 0.0,
	position_y REAL DEFAULT 0.0,
	position_z REAL DEFAULT 0.0,
	created_at TEXT NOT NULL,
	last_referenced TEXT NOT NULL,
	metadata TEXT
);

CREATE TABLE IF NOT EXISTS connections (
	id TEXT PRIMARY KEY,
	from_thought TEXT NOT NULL,
	to_thought TEXT NOT NULL,
	strength REAL DEFAULT 0.5,
	reason TEXT,
	created_at TEXT NOT NULL,
	FOREIGN KEY (from_thought) REFERENCES thoughts(id),
	FOREIGN KEY (to_thought) REFERENCES thoughts(id)
);

CREATE TABLE IF NOT EXISTS sessions (
	id TEXT PRIMARY KEY,
	title TEXT,
	started_at TEXT NOT NULL,
	ended_at TEXT,
	summary TEXT,
	metadata TEXT
);

CREATE TABLE IF NOT EXISTS clusters (
	id TEXT PRIMARY KEY,
	name TEXT NOT NULL,
	category TEXT NOT NULL,
	center_x REAL DEFAULT 0.0,
	center_y REAL DEFAULT 0.0,
	center_z REAL DEFAULT 0.0,
	thought_count INTEGER DEFAULT 0,
	created_at TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_thoughts_category ON thoughts(category);
CREATE INDEX IF NOT EXISTS idx_thoughts_content ON thoughts(content);
CREATE INDEX IF NOT EXISTS idx_connections_from ON connections(from_thought);
CREATE INDEX IF NOT EXISTS idx_connections_to ON connections(to_thought);
`

const thoughtColumns = `id, content, role, category, importance, position_x, position_y, position_z, created_at, last_referenced`

const connectionColumns = `id, from_thought, to_thought, strength, reason, created_at`

// Open opens (and optionally migrates) the database at cfg.Path.
func Open(cfg Config, logger *zap.Logger) (*Store, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Path == "" {
		return nil, pkgerrors.NewValidationError("sqlite path is required")
	}
	if cfg.BusyTimeout <= 0 {
		cfg.BusyTimeout = 5 * time.Second
	}

	inMemory := cfg.Path == ":memory:"
	if !inMemory {
		if err := os.MkdirAll(filepath.Dir(cfg.Path), 0o755); err != nil {
			return nil, fmt.Errorf("sqlite: create data dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite", cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("sqlite: open database: %w", err)
	}
	// A single connection keeps ":memory:" databases coherent and serializes
	// writers on the file.
	db.SetMaxOpenConns(1)

	pragmas := []string{
		fmt.Sprintf("PRAGMA busy_timeout = %d", cfg.BusyTimeout.Milliseconds()),
		"PRAGMA synchronous = NORMAL",
	}
	if !inMemory {
		pragmas = append(pragmas, "PRAGMA journal_mode = WAL")
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, fmt.Errorf("sqlite: pragma %q: %w", p, err)
		}
	}

	s := &Store{db: db, logger: logger, now: time.Now}
	if cfg.Migrate {
		if _, err := db.Exec(schema); err != nil {
			db.Close()
			return nil, fmt.Errorf("sqlite: migration: %w", err)
		}
	}

	logger.Info("SQLite store opened",
		zap.String("path", cfg.Path),
		zap.Bool("migrate", cfg.Migrate),
	)
	return s, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) GetVersion(ctx context.Context) (domain.VersionToken, error) {
	var v domain.VersionToken
	err := s.db.QueryRowContext(ctx,
		`SELECT (SELECT COALESCE(MAX(rowid), 0) FROM thoughts),
		        (SELECT COALESCE(MAX(rowid), 0) FROM connections)`,
	).Scan(&v.MaxThoughtID, &v.MaxConnectionID)
	if err != nil {
		return domain.VersionToken{}, classify(store.OpGetVersion, err)
	}
	return v, nil
}

func (s *Store) GetThoughtCount(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM thoughts`).Scan(&n); err != nil {
		return 0, classify(store.OpGetThoughtCount, err)
	}
	return n, nil
}

func (s *Store) GetAllThoughts(ctx context.Context) ([]domain.Thought, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+thoughtColumns+` FROM thoughts ORDER BY rowid`)
	if err != nil {
		return nil, classify(store.OpGetAllThoughts, err)
	}
	return scanThoughts(store.OpGetAllThoughts, rows)
}

func (s *Store) GetAllConnections(ctx context.Context) ([]domain.Connection, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+connectionColumns+` FROM connections ORDER BY rowid`)
	if err != nil {
		return nil, classify(store.OpGetAllConnections, err)
	}
	return scanConnections(store.OpGetAllConnections, rows)
}

func (s *Store) GetAllClusters(ctx context.Context) ([]domain.Cluster, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, category, center_x, center_y, center_z, thought_count, created_at
		 FROM clusters ORDER BY category`)
	if err != nil {
		return nil, classify(store.OpGetAllClusters, err)
	}
	defer rows.Close()

	var clusters []domain.Cluster
	for rows.Next() {
		var (
			c        domain.Cluster
			category string
			created  string
		)
		if err := rows.Scan(&c.ID, &c.Name, &category, &c.Center.X, &c.Center.Y, &c.Center.Z, &c.ThoughtCount, &created); err != nil {
			return nil, classify(store.OpGetAllClusters, err)
		}
		c.Category = domain.Category(category)
		c.CreatedAt = parseTime(created)
		clusters = append(clusters, c)
	}
	if err := rows.Err(); err != nil {
		return nil, classify(store.OpGetAllClusters, err)
	}
	return clusters, nil
}

func (s *Store) GetThoughtsNear(ctx context.Context, center domain.Position, radius float64, limit int) ([]domain.Thought, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+thoughtColumns+` FROM (
			SELECT `+thoughtColumns+`,
			       ((position_x - ?1) * (position_x - ?1) +
			        (position_y - ?2) * (position_y - ?2) +
			        (position_z - ?3) * (position_z - ?3)) AS dist_sq
			FROM thoughts
		)
		WHERE dist_sq <= (?4 * ?4)
		ORDER BY dist_sq ASC, id ASC
		LIMIT ?5`,
		center.X, center.Y, center.Z, radius, limit,
	)
	if err != nil {
		return nil, classify(store.OpGetThoughtsNear, err)
	}
	return scanThoughts(store.OpGetThoughtsNear, rows)
}

func (s *Store) GetConnectionsForThoughts(ctx context.Context, ids []string) ([]domain.Connection, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
	query := fmt.Sprintf(
		`SELECT %s FROM connections WHERE from_thought IN (%s) AND to_thought IN (%s) ORDER BY rowid`,
		connectionColumns, placeholders, placeholders,
	)
	args := make([]any, 0, 2*len(ids))
	for _, id := range ids {
		args = append(args, id)
	}
	for _, id := range ids {
		args = append(args, id)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, classify(store.OpGetConnectionsForThoughts, err)
	}
	return scanConnections(store.OpGetConnectionsForThoughts, rows)
}

func (s *Store) AddThought(ctx context.Context, t domain.Thought) error {
	if t.ID == "" {
		return pkgerrors.NewValidationError("thought id is required")
	}
	if t.LastReferenced.IsZero() {
		t.LastReferenced = t.CreatedAt
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO thoughts (`+thoughtColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ID, t.Content, nullString(t.Role), string(t.Category), t.Importance,
		t.Position.X, t.Position.Y, t.Position.Z,
		formatTime(t.CreatedAt), formatTime(t.LastReferenced),
	)
	if err != nil {
		return classify(store.OpAddThought, err)
	}
	return nil
}

func (s *Store) AddConnection(ctx context.Context, c domain.Connection) error {
	if c.ID == "" {
		return pkgerrors.NewValidationError("connection id is required")
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO connections (`+connectionColumns+`) VALUES (?, ?, ?, ?, ?, ?)`,
		c.ID, c.From, c.To, c.Strength, nullString(c.Reason), formatTime(c.CreatedAt),
	)
	if err != nil {
		return classify(store.OpAddConnection, err)
	}
	return nil
}

func (s *Store) SearchThoughts(ctx context.Context, query string) ([]domain.Thought, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+thoughtColumns+` FROM thoughts
		 WHERE content LIKE ?
		 ORDER BY importance DESC, last_referenced DESC
		 LIMIT ?`,
		"%"+query+"%", store.SearchLimit,
	)
	if err != nil {
		return nil, classify(store.OpSearchThoughts, err)
	}
	return scanThoughts(store.OpSearchThoughts, rows)
}

// RecomputeClusters replaces the clusters table inside one transaction.
func (s *Store) RecomputeClusters(ctx context.Context) ([]domain.Cluster, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, classify(store.OpRecomputeClusters, err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM clusters`); err != nil {
		return nil, classify(store.OpRecomputeClusters, err)
	}

	rows, err := tx.QueryContext(ctx,
		`SELECT category, AVG(position_x), AVG(position_y), AVG(position_z), COUNT(*)
		 FROM thoughts
		 GROUP BY category
		 HAVING COUNT(*) >= ?
		 ORDER BY category`,
		domain.MinClusterSize,
	)
	if err != nil {
		return nil, classify(store.OpRecomputeClusters, err)
	}

	now := s.now().UTC()
	var clusters []domain.Cluster
	for rows.Next() {
		var (
			c        domain.Cluster
			category string
		)
		if err := rows.Scan(&category, &c.Center.X, &c.Center.Y, &c.Center.Z, &c.ThoughtCount); err != nil {
			rows.Close()
			return nil, classify(store.OpRecomputeClusters, err)
		}
		c.ID = uuid.NewString()
		c.Category = domain.Category(category)
		c.Name = domain.ClusterName(c.Category)
		c.CreatedAt = now
		clusters = append(clusters, c)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, classify(store.OpRecomputeClusters, err)
	}

	for _, c := range clusters {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO clusters (id, name, category, center_x, center_y, center_z, thought_count, created_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			c.ID, c.Name, string(c.Category), c.Center.X, c.Center.Y, c.Center.Z, c.ThoughtCount, formatTime(c.CreatedAt),
		)
		if err != nil {
			return nil, classify(store.OpRecomputeClusters, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, classify(store.OpRecomputeClusters, err)
	}
	return clusters, nil
}

func (s *Store) AddSession(ctx context.Context, session domain.Session) error {
	if session.ID == "" {
		return pkgerrors.NewValidationError("session id is required")
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO sessions (id, title, summary, started_at, ended_at) VALUES (?, ?, ?, ?, ?)`,
		session.ID, session.Title, session.Summary, formatTime(session.StartedAt), formatTime(session.EndedAt),
	)
	if err != nil {
		return classify(store.OpAddSession, err)
	}
	return nil
}

func (s *Store) GetAllSessions(ctx context.Context) ([]domain.Session, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, title, summary, started_at, ended_at FROM sessions ORDER BY started_at DESC`)
	if err != nil {
		return nil, classify(store.OpGetAllSessions, err)
	}
	defer rows.Close()

	var sessions []domain.Session
	for rows.Next() {
		var (
			session        domain.Session
			title, summary sql.NullString
			started        string
			ended          sql.NullString
		)
		if err := rows.Scan(&session.ID, &title, &summary, &started, &ended); err != nil {
			return nil, classify(store.OpGetAllSessions, err)
		}
		session.Title = title.String
		session.Summary = summary.String
		session.StartedAt = parseTime(started)
		session.EndedAt = parseTime(ended.String)
		sessions = append(sessions, session)
	}
	if err := rows.Err(); err != nil {
		return nil, classify(store.OpGetAllSessions, err)
	}
	return sessions, nil
}

func scanThoughts(op string, rows *sql.Rows) ([]domain.Thought, error) {
	defer rows.Close()

	var thoughts []domain.Thought
	for rows.Next() {
		var (
			t                 domain.Thought
			role              sql.NullString
			category          sql.NullString
			importance        sql.NullFloat64
			created, lastSeen string
		)
		if err := rows.Scan(&t.ID, &t.Content, &role, &category, &importance,
			&t.Position.X, &t.Position.Y, &t.Position.Z, &created, &lastSeen); err != nil {
			return nil, classify(op, err)
		}
		t.Role = role.String
		t.Category = domain.Category(category.String)
		t.Importance = importance.Float64
		t.CreatedAt = parseTime(created)
		t.LastReferenced = parseTime(lastSeen)
		thoughts = append(thoughts, t)
	}
	if err := rows.Err(); err != nil {
		return nil, classify(op, err)
	}
	return thoughts, nil
}

func scanConnections(op string, rows *sql.Rows) ([]domain.Connection, error) {
	defer rows.Close()

	var conns []domain.Connection
	for rows.Next() {
		var (
			c       domain.Connection
			reason  sql.NullString
			created string
		)
		if err := rows.Scan(&c.ID, &c.From, &c.To, &c.Strength, &reason, &created); err != nil {
			return nil, classify(op, err)
		}
		c.Reason = reason.String
		c.CreatedAt = parseTime(created)
		conns = append(conns, c)
	}
	if err := rows.Err(); err != nil {
		return nil, classify(op, err)
	}
	return conns, nil
}

// classify maps driver errors onto the store error taxonomy. Missing tables or
// columns mean the file was written by an older schema.
func classify(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return pkgerrors.NewTransientQueryError(op, err)
	}
	msg := err.Error()
	if strings.Contains(msg, "no such table") || strings.Contains(msg, "no such column") {
		return pkgerrors.NewSchemaMismatchError(op, err)
	}
	return pkgerrors.NewTransientQueryError(op, err)
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

var timeLayouts = []string{time.RFC3339Nano, time.RFC3339, "2006-01-02 15:04:05"}

// parseTime accepts the layouts the external writer is known to produce.
// Unparseable values become the zero time.
func parseTime(s string) time.Time {
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return time.Time{}
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
