package reasoning

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/420247jake/the-mind/internal/domain"
	"github.com/420247jake/the-mind/internal/fixtures"
	"github.com/420247jake/the-mind/internal/graph"
)

var t0 = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func ms(n int) time.Time { return t0.Add(time.Duration(n) * time.Millisecond) }

func conn(from, to string, strength float64) domain.Connection {
	return fixtures.NewConnectionBuilder(from, to).WithStrength(strength).Build()
}

func scenarioGraph() *graph.Snapshot {
	return graph.NewSnapshot(graph.Input{
		Thoughts: []domain.Thought{
			fixtures.NewThoughtBuilder().WithID("t1").Build(),
			fixtures.NewThoughtBuilder().WithID("t2").Build(),
			fixtures.NewThoughtBuilder().WithID("t9").Build(),
		},
		Connections: []domain.Connection{
			conn("t9", "t2", 0.3),
			conn("t1", "t9", 0.9),
		},
	})
}

func TestDerivePath(t *testing.T) {
	tests := []struct {
		name        string
		connections []domain.Connection
		maxLen      int
		want        []string
	}{
		{
			name:        "strongest first",
			connections: []domain.Connection{conn("x", "t2", 0.3), conn("t1", "x", 0.9)},
			maxLen:      4,
			want:        []string{"t1", "t2", "x"},
		},
		{
			name:   "capped at max length",
			maxLen: 4,
			connections: []domain.Connection{
				conn("x", "a", 0.1), conn("x", "b", 0.5), conn("c", "x", 0.9),
				conn("x", "d", 0.7), conn("x", "e", 0.2),
			},
			want: []string{"c", "d", "b", "x"},
		},
		{
			name:        "duplicate neighbours collapse",
			maxLen:      4,
			connections: []domain.Connection{conn("x", "a", 0.9), conn("a", "x", 0.8), conn("x", "b", 0.1)},
			want:        []string{"a", "b", "x"},
		},
		{
			name:        "ties keep input order",
			maxLen:      4,
			connections: []domain.Connection{conn("x", "b", 0.5), conn("x", "a", 0.5)},
			want:        []string{"b", "a", "x"},
		},
		{
			name:        "self loops and foreign edges ignored",
			maxLen:      4,
			connections: []domain.Connection{conn("x", "x", 1), conn("p", "q", 1)},
			want:        []string{"x"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, DerivePath("x", tt.connections, tt.maxLen))
		})
	}
}

func TestDerivePathScenario(t *testing.T) {
	path := DerivePath("t9", []domain.Connection{conn("t9", "t2", 0.3), conn("t1", "t9", 0.9)}, 4)
	assert.Equal(t, []string{"t1", "t2", "t9"}, path)
}

func TestDerivePathLengthProperty(t *testing.T) {
	for neighbours := 0; neighbours <= 6; neighbours++ {
		for maxLen := 1; maxLen <= 5; maxLen++ {
			var conns []domain.Connection
			for i := 0; i < neighbours; i++ {
				conns = append(conns, conn("x", fmt.Sprintf("n%d", i), float64(i)/10))
			}
			path := DerivePath("x", conns, maxLen)

			assert.Len(t, path, min(neighbours+1, maxLen))
			assert.Equal(t, "x", path[len(path)-1])
			seen := map[string]bool{}
			for _, id := range path {
				assert.False(t, seen[id], "duplicate %s", id)
				seen[id] = true
			}
		}
	}
}

func TestTraversal(t *testing.T) {
	e := NewEngine(DefaultConfig())
	require.True(t, e.Start("t9", scenarioGraph(), t0))

	tests := []struct {
		at             int
		t1, t2, t9     float64
		cursor         int
		thinking, gone bool
	}{
		{at: 0, t1: 1, t2: 0.15, t9: 0.15, cursor: 0, thinking: true},
		{at: 499, t1: 1, t2: 0.15, t9: 0.15, cursor: 0, thinking: true},
		{at: 500, t1: 0.85, t2: 1, t9: 0.15, cursor: 1, thinking: true},
		{at: 1000, t1: 0.7, t2: 0.85, t9: 1, cursor: 2},
		{at: 2999, t1: 0.7, t2: 0.85, t9: 1, cursor: 2},
		{at: 3000, gone: true},
	}

	for _, tt := range tests {
		now := ms(tt.at)
		assert.InDelta(t, tt.t1, e.ActivationOf("t1", now), 1e-9, "t1 at %d", tt.at)
		assert.InDelta(t, tt.t2, e.ActivationOf("t2", now), 1e-9, "t2 at %d", tt.at)
		assert.InDelta(t, tt.t9, e.ActivationOf("t9", now), 1e-9, "t9 at %d", tt.at)

		state := e.State(now)
		if tt.gone {
			assert.Empty(t, state.Path)
			continue
		}
		assert.Equal(t, "t9", state.Synthesis)
		assert.Equal(t, tt.cursor, state.Cursor)
		assert.Equal(t, tt.thinking, state.Thinking)
	}
	assert.Zero(t, e.ActivationOf("unrelated", ms(0)))
}

func TestActivationFloor(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxPathLength = 7
	var conns []domain.Connection
	var thoughts []domain.Thought
	for i := 0; i < 6; i++ {
		id := fmt.Sprintf("n%d", i)
		thoughts = append(thoughts, fixtures.NewThoughtBuilder().WithID(id).Build())
		conns = append(conns, conn("x", id, 1-float64(i)/10))
	}
	thoughts = append(thoughts, fixtures.NewThoughtBuilder().WithID("x").Build())
	snap := graph.NewSnapshot(graph.Input{Thoughts: thoughts, Connections: conns})

	e := NewEngine(cfg)
	require.True(t, e.Start("x", snap, t0))
	// Cursor at 5: n0 is five steps behind.
	assert.InDelta(t, 0.4, e.ActivationOf("n0", ms(2500)), 1e-9)
	assert.InDelta(t, 0.85, e.ActivationOf("n4", ms(2500)), 1e-9)
}

func TestSingleElementPathSkipsTraversal(t *testing.T) {
	snap := graph.NewSnapshot(graph.Input{Thoughts: []domain.Thought{fixtures.NewThoughtBuilder().WithID("lonely").Build()}})
	e := NewEngine(DefaultConfig())

	assert.False(t, e.Start("lonely", snap, t0))
	assert.Empty(t, e.State(t0).Path)
	assert.Zero(t, e.ActivationOf("lonely", t0))
}

func TestStartSupersedesPathInProgress(t *testing.T) {
	snap := graph.NewSnapshot(graph.Input{
		Thoughts: []domain.Thought{
			fixtures.NewThoughtBuilder().WithID("a").Build(),
			fixtures.NewThoughtBuilder().WithID("b").Build(),
			fixtures.NewThoughtBuilder().WithID("c").Build(),
		},
		Connections: []domain.Connection{conn("a", "b", 0.5), conn("b", "c", 0.5)},
	})
	e := NewEngine(DefaultConfig())
	require.True(t, e.Start("a", snap, t0))
	require.True(t, e.Start("c", snap, ms(300)))

	state := e.State(ms(300))
	assert.Equal(t, []string{"b", "c"}, state.Path)
	assert.Equal(t, 0, state.Cursor)
	assert.Zero(t, e.ActivationOf("a", ms(300)))
}

func TestSetSpeed(t *testing.T) {
	e := NewEngine(DefaultConfig())
	require.True(t, e.Start("t9", scenarioGraph(), t0))

	e.SetSpeed(0.5, ms(500))
	assert.Equal(t, 1, e.State(ms(2000)).Cursor)
	assert.Equal(t, 2, e.State(ms(2500)).Cursor)

	e.SetSpeed(100, ms(2500))
	assert.Equal(t, MaxSpeed, e.State(ms(2500)).Speed)
	e.SetSpeed(0, ms(2500))
	assert.Equal(t, MinSpeed, e.State(ms(2500)).Speed)
}

func TestCancel(t *testing.T) {
	e := NewEngine(DefaultConfig())
	require.True(t, e.Start("t9", scenarioGraph(), t0))
	e.Cancel()
	assert.Nil(t, e.Activations(t0))
	assert.False(t, e.State(t0).Thinking)
}
