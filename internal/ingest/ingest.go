// Package ingest is the write side of the mind: logging thoughts with keyword
// auto-connection, linking thoughts by content, recall and session summaries.
package ingest

import (
	"context"
	"fmt"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/420247jake/the-mind/internal/domain"
	"github.com/420247jake/the-mind/internal/store"
	"github.com/420247jake/the-mind/internal/validation"
	pkgerrors "github.com/420247jake/the-mind/pkg/errors"
)

// Placement and linking constants.
const (
	MinPlacementRadius = 10.0
	MaxPlacementRadius = 40.0

	// MinSharedKeywords is how many keywords two thoughts must share to be
	// connected automatically.
	MinSharedKeywords  = 2
	StrengthPerKeyword = 0.15
	ManualStrength     = 0.7
	DefaultRecallLimit = 10
	DefaultThoughtRole = "assistant"
)

// LogThoughtInput is a new thought.
type LogThoughtInput struct {
	Content    string  `json:"content" validate:"notblank,max=10000"`
	Category   string  `json:"category" validate:"omitempty,category"`
	Importance float64 `json:"importance" validate:"gte=0,lte=1"`
	Role       string  `json:"role" validate:"max=64"`
}

// LogThoughtResult reports what logging a thought changed.
type LogThoughtResult struct {
	Thought     domain.Thought      `json:"thought"`
	Connections []domain.Connection `json:"connections"`
	Clusters    []domain.Cluster    `json:"clusters"`
}

// ConnectInput links the best match of From to the best match of To.
type ConnectInput struct {
	From   string `json:"from" validate:"notblank"`
	To     string `json:"to" validate:"notblank"`
	Reason string `json:"reason" validate:"max=500"`
}

// RecallInput searches thought content.
type RecallInput struct {
	Query string `json:"query" validate:"notblank"`
	Limit int    `json:"limit" validate:"gte=0"`
}

// SummarizeInput records a session summary.
type SummarizeInput struct {
	Title   string `json:"title" validate:"notblank,max=200"`
	Summary string `json:"summary" validate:"notblank"`
}

// Service runs write-path operations against a repository.
type Service struct {
	repo     store.Repository
	validate *validation.Validator
	logger   *zap.Logger
	now      func() time.Time
	newID    func() string

	rngMu sync.Mutex
	rng   *rand.Rand
}

// Option configures a Service.
type Option func(*Service)

// WithClock overrides the clock.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithRand overrides the placement random source.
func WithRand(rng *rand.Rand) Option {
	return func(s *Service) { s.rng = rng }
}

// WithIDs overrides id generation.
func WithIDs(newID func() string) Option {
	return func(s *Service) { s.newID = newID }
}

// NewService creates a write-path service.
func NewService(repo store.Repository, logger *zap.Logger, opts ...Option) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Service{
		repo:     repo,
		validate: validation.Get(),
		logger:   logger.Named("ingest"),
		now:      time.Now,
		newID:    uuid.NewString,
		rng:      rand.New(rand.NewPCG(uint64(time.Now().UnixNano()), 0)),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// LogThought stores a thought at a random spot on a shell around the origin,
// connects it to every existing thought sharing enough keywords and
// recomputes clusters.
func (s *Service) LogThought(ctx context.Context, in LogThoughtInput) (*LogThoughtResult, error) {
	if err := s.validate.Struct(in); err != nil {
		return nil, err
	}

	existing, err := s.repo.GetAllThoughts(ctx)
	if err != nil {
		return nil, pkgerrors.Wrap(err, "load thoughts")
	}

	now := s.now().UTC()
	role := in.Role
	if role == "" {
		role = DefaultThoughtRole
	}
	t := domain.Thought{
		ID:             s.newID(),
		Content:        in.Content,
		Role:           role,
		Category:       domain.ParseCategory(in.Category),
		Importance:     in.Importance,
		Position:       s.placement(),
		CreatedAt:      now,
		LastReferenced: now,
	}
	if err := s.repo.AddThought(ctx, t); err != nil {
		return nil, pkgerrors.Wrap(err, "add thought")
	}

	result := &LogThoughtResult{Thought: t}
	keywords := domain.ExtractKeywords(t.Content)
	for _, other := range existing {
		if other.ID == t.ID {
			continue
		}
		shared := domain.SharedKeywords(keywords, domain.ExtractKeywords(other.Content))
		if shared < MinSharedKeywords {
			continue
		}
		c := domain.Connection{
			ID:        s.newID(),
			From:      t.ID,
			To:        other.ID,
			Strength:  min(float64(shared)*StrengthPerKeyword, 1),
			Reason:    fmt.Sprintf("Auto-connected: %d shared keywords", shared),
			CreatedAt: now,
		}
		if err := s.repo.AddConnection(ctx, c); err != nil {
			s.logger.Warn("Auto-connection failed",
				zap.String("from", c.From),
				zap.String("to", c.To),
				zap.Error(err),
			)
			continue
		}
		result.Connections = append(result.Connections, c)
	}

	clusters, err := s.repo.RecomputeClusters(ctx)
	if err != nil {
		s.logger.Warn("Cluster recompute failed", zap.Error(err))
	} else {
		result.Clusters = clusters
	}

	s.logger.Info("Thought logged",
		zap.String("id", t.ID),
		zap.String("category", string(t.Category)),
		zap.Int("auto_connections", len(result.Connections)),
	)
	return result, nil
}

// Connect links the best content match of in.From to that of in.To.
func (s *Service) Connect(ctx context.Context, in ConnectInput) (domain.Connection, error) {
	if err := s.validate.Struct(in); err != nil {
		return domain.Connection{}, err
	}

	from, err := s.bestMatch(ctx, in.From)
	if err != nil {
		return domain.Connection{}, err
	}
	to, err := s.bestMatch(ctx, in.To)
	if err != nil {
		return domain.Connection{}, err
	}

	c := domain.Connection{
		ID:        s.newID(),
		From:      from.ID,
		To:        to.ID,
		Strength:  ManualStrength,
		Reason:    in.Reason,
		CreatedAt: s.now().UTC(),
	}
	if err := s.repo.AddConnection(ctx, c); err != nil {
		return domain.Connection{}, pkgerrors.Wrap(err, "add connection")
	}
	s.logger.Info("Thoughts connected", zap.String("from", from.ID), zap.String("to", to.ID))
	return c, nil
}

func (s *Service) bestMatch(ctx context.Context, query string) (domain.Thought, error) {
	matches, err := s.repo.SearchThoughts(ctx, query)
	if err != nil {
		return domain.Thought{}, pkgerrors.Wrap(err, "search thoughts")
	}
	if len(matches) == 0 {
		return domain.Thought{}, pkgerrors.NewNotFoundError(fmt.Sprintf("thought matching %q", query))
	}
	return matches[0], nil
}

// Recall returns up to in.Limit thoughts whose content contains the query.
func (s *Service) Recall(ctx context.Context, in RecallInput) ([]domain.Thought, error) {
	if err := s.validate.Struct(in); err != nil {
		return nil, err
	}
	limit := in.Limit
	if limit == 0 {
		limit = DefaultRecallLimit
	}
	matches, err := s.repo.SearchThoughts(ctx, in.Query)
	if err != nil {
		return nil, pkgerrors.Wrap(err, "search thoughts")
	}
	if len(matches) > limit {
		matches = matches[:limit]
	}
	return matches, nil
}

// SummarizeSession stores a session summary.
func (s *Service) SummarizeSession(ctx context.Context, in SummarizeInput) (domain.Session, error) {
	if err := s.validate.Struct(in); err != nil {
		return domain.Session{}, err
	}
	now := s.now().UTC()
	session := domain.Session{
		ID:        s.newID(),
		Title:     in.Title,
		Summary:   in.Summary,
		StartedAt: now,
		EndedAt:   now,
	}
	if err := s.repo.AddSession(ctx, session); err != nil {
		return domain.Session{}, pkgerrors.Wrap(err, "add session")
	}
	return session, nil
}

// Sessions lists stored sessions.
func (s *Service) Sessions(ctx context.Context) ([]domain.Session, error) {
	return s.repo.GetAllSessions(ctx)
}

// Clusters lists the current clusters.
func (s *Service) Clusters(ctx context.Context) ([]domain.Cluster, error) {
	return s.repo.GetAllClusters(ctx)
}

func (s *Service) placement() domain.Position {
	s.rngMu.Lock()
	defer s.rngMu.Unlock()
	return domain.RandomShellPosition(s.rng, MinPlacementRadius, MaxPlacementRadius)
}
