// Package storetest holds the behavioural checks every store.Repository
// implementation must pass.
package storetest

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/420247jake/the-mind/internal/domain"
	"github.com/420247jake/the-mind/internal/fixtures"
	"github.com/420247jake/the-mind/internal/store"
)

// Factory returns an empty repository. It is called once per subtest.
type Factory func(t *testing.T) store.Repository

// RunRepositoryContract runs the shared repository checks against factory.
func RunRepositoryContract(t *testing.T, factory Factory) {
	t.Run("version grows on every write", func(t *testing.T) {
		ctx := context.Background()
		s := factory(t)

		v0, err := s.GetVersion(ctx)
		require.NoError(t, err)
		assert.Equal(t, domain.VersionToken{}, v0)

		a := fixtures.NewThoughtBuilder().WithID("a").Build()
		b := fixtures.NewThoughtBuilder().WithID("b").Build()
		require.NoError(t, s.AddThought(ctx, a))
		require.NoError(t, s.AddThought(ctx, b))

		v1, err := s.GetVersion(ctx)
		require.NoError(t, err)
		assert.True(t, v1.NewerThan(v0))
		assert.Equal(t, v0.MaxConnectionID, v1.MaxConnectionID)

		require.NoError(t, s.AddConnection(ctx, fixtures.NewConnectionBuilder("a", "b").WithID("c1").Build()))
		v2, err := s.GetVersion(ctx)
		require.NoError(t, err)
		assert.Greater(t, v2.MaxConnectionID, v1.MaxConnectionID)
		assert.Equal(t, v1.MaxThoughtID, v2.MaxThoughtID)

		// Replacing a thought still counts as a change.
		a.Content = "rewritten"
		require.NoError(t, s.AddThought(ctx, a))
		v3, err := s.GetVersion(ctx)
		require.NoError(t, err)
		assert.Greater(t, v3.MaxThoughtID, v2.MaxThoughtID)

		count, err := s.GetThoughtCount(ctx)
		require.NoError(t, err)
		assert.Equal(t, 2, count)
	})

	t.Run("round trips thoughts and connections", func(t *testing.T) {
		ctx := context.Background()
		s := factory(t)

		created := time.Date(2026, 2, 3, 4, 5, 6, 0, time.UTC)
		want := fixtures.NewThoughtBuilder().
			WithID("t1").
			WithContent("sqlite keeps the mind").
			WithCategory(domain.CategoryCreative).
			WithImportance(0.8).
			WithPosition(1.5, -2, 3.25).
			CreatedAt(created).
			Build()
		require.NoError(t, s.AddThought(ctx, want))
		require.NoError(t, s.AddThought(ctx, fixtures.NewThoughtBuilder().WithID("t2").Build()))
		conn := fixtures.NewConnectionBuilder("t1", "t2").WithID("c1").WithStrength(0.9).CreatedAt(created).Build()
		require.NoError(t, s.AddConnection(ctx, conn))

		thoughts, err := s.GetAllThoughts(ctx)
		require.NoError(t, err)
		require.Len(t, thoughts, 2)
		got := byID(thoughts)["t1"]
		assert.Equal(t, want.Content, got.Content)
		assert.Equal(t, want.Category, got.Category)
		assert.Equal(t, want.Importance, got.Importance)
		assert.True(t, want.Position.Equals(got.Position))
		assert.True(t, want.CreatedAt.Equal(got.CreatedAt))

		conns, err := s.GetAllConnections(ctx)
		require.NoError(t, err)
		require.Len(t, conns, 1)
		assert.Equal(t, "t1", conns[0].From)
		assert.Equal(t, "t2", conns[0].To)
		assert.Equal(t, 0.9, conns[0].Strength)
	})

	t.Run("thoughts near are bounded and ordered", func(t *testing.T) {
		ctx := context.Background()
		s := factory(t)
		for _, th := range fixtures.Grid(10, 10) {
			require.NoError(t, s.AddThought(ctx, th))
		}

		near, err := s.GetThoughtsNear(ctx, domain.Position{X: 42}, 25, 100)
		require.NoError(t, err)
		assert.Equal(t, []string{"t4", "t5", "t3", "t6", "t2"}, ids(near))

		limited, err := s.GetThoughtsNear(ctx, domain.Position{X: 42}, 25, 2)
		require.NoError(t, err)
		assert.Equal(t, []string{"t4", "t5"}, ids(limited))
	})

	t.Run("connections for thoughts require both endpoints", func(t *testing.T) {
		ctx := context.Background()
		s := factory(t)
		for _, th := range fixtures.Grid(4, 1) {
			require.NoError(t, s.AddThought(ctx, th))
		}
		for i, pair := range [][2]string{{"t0", "t1"}, {"t1", "t2"}, {"t2", "t3"}} {
			c := fixtures.NewConnectionBuilder(pair[0], pair[1]).WithID(fmt.Sprintf("c%d", i)).Build()
			require.NoError(t, s.AddConnection(ctx, c))
		}

		conns, err := s.GetConnectionsForThoughts(ctx, []string{"t0", "t1", "t2"})
		require.NoError(t, err)
		var got []string
		for _, c := range conns {
			got = append(got, c.ID)
		}
		assert.ElementsMatch(t, []string{"c0", "c1"}, got)

		empty, err := s.GetConnectionsForThoughts(ctx, nil)
		require.NoError(t, err)
		assert.Empty(t, empty)
	})

	t.Run("clusters group categories with two or more members", func(t *testing.T) {
		ctx := context.Background()
		s := factory(t)
		require.NoError(t, s.AddThought(ctx, fixtures.NewThoughtBuilder().WithID("w1").WithCategory(domain.CategoryWork).WithPosition(0, 0, 0).Build()))
		require.NoError(t, s.AddThought(ctx, fixtures.NewThoughtBuilder().WithID("w2").WithCategory(domain.CategoryWork).WithPosition(10, 20, 30).Build()))
		require.NoError(t, s.AddThought(ctx, fixtures.NewThoughtBuilder().WithID("p1").WithCategory(domain.CategoryPersonal).Build()))

		clusters, err := s.RecomputeClusters(ctx)
		require.NoError(t, err)
		require.Len(t, clusters, 1)
		assert.Equal(t, "work cluster", clusters[0].Name)
		assert.Equal(t, 2, clusters[0].ThoughtCount)
		assert.True(t, clusters[0].Center.Equals(domain.Position{X: 5, Y: 10, Z: 15}))

		stored, err := s.GetAllClusters(ctx)
		require.NoError(t, err)
		require.Len(t, stored, 1)
		assert.Equal(t, clusters[0].ID, stored[0].ID)
	})

	t.Run("search orders by importance", func(t *testing.T) {
		ctx := context.Background()
		s := factory(t)
		require.NoError(t, s.AddThought(ctx, fixtures.NewThoughtBuilder().WithID("low").WithContent("Graph rendering notes").WithImportance(0.2).Build()))
		require.NoError(t, s.AddThought(ctx, fixtures.NewThoughtBuilder().WithID("high").WithContent("graph layout idea").WithImportance(0.9).Build()))
		require.NoError(t, s.AddThought(ctx, fixtures.NewThoughtBuilder().WithID("none").WithContent("unrelated").Build()))

		found, err := s.SearchThoughts(ctx, "graph")
		require.NoError(t, err)
		assert.Equal(t, []string{"high", "low"}, ids(found))
	})

	t.Run("sessions are listed newest first", func(t *testing.T) {
		ctx := context.Background()
		s := factory(t)
		older := domain.Session{ID: "s1", Title: "first", Summary: "a", StartedAt: fixtures.Epoch, EndedAt: fixtures.Epoch}
		newer := domain.Session{ID: "s2", Title: "second", Summary: "b", StartedAt: fixtures.Epoch.Add(time.Hour), EndedAt: fixtures.Epoch.Add(time.Hour)}
		require.NoError(t, s.AddSession(ctx, older))
		require.NoError(t, s.AddSession(ctx, newer))

		sessions, err := s.GetAllSessions(ctx)
		require.NoError(t, err)
		require.Len(t, sessions, 2)
		assert.Equal(t, "s2", sessions[0].ID)
		assert.Equal(t, "first", sessions[1].Title)
	})
}

func byID(thoughts []domain.Thought) map[string]domain.Thought {
	out := make(map[string]domain.Thought, len(thoughts))
	for _, t := range thoughts {
		out[t.ID] = t
	}
	return out
}

func ids(thoughts []domain.Thought) []string {
	out := make([]string, len(thoughts))
	for i, t := range thoughts {
		out[i] = t.ID
	}
	return out
}
