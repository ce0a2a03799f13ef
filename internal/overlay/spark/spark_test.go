package spark

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/420247jake/the-mind/internal/fixtures"
	"github.com/420247jake/the-mind/internal/graph"
	"github.com/420247jake/the-mind/internal/overlay/activation"
	pkgerrors "github.com/420247jake/the-mind/pkg/errors"
)

type mockActivator struct {
	mock.Mock
}

func (m *mockActivator) ActivateBatch(ids []string, intensity float64, now time.Time) {
	m.Called(ids, intensity, now)
}

var t0 = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func TestPresets(t *testing.T) {
	tests := []struct {
		name     string
		interval time.Duration
		batch    int
		glitch   bool
	}{
		{name: Calm, interval: 8 * time.Second, batch: 2},
		{name: Vivid, interval: 4 * time.Second, batch: 4},
		{name: Nightmare, interval: 1500 * time.Millisecond, batch: 8, glitch: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, ok := Lookup(tt.name)
			require.True(t, ok)
			assert.Equal(t, tt.interval, p.Interval)
			assert.Equal(t, tt.batch, p.Batch)
			assert.Equal(t, tt.glitch, p.Glitch)
			assert.Less(t, p.MinIntensity, p.MaxIntensity)
		})
	}
	assert.Equal(t, []string{Calm, Vivid, Nightmare}, Names())
}

func TestUnknownPreset(t *testing.T) {
	_, err := NewEngine("frantic", &mockActivator{}, 1)
	assert.True(t, pkgerrors.IsValidation(err))

	e, err := NewEngine(Calm, &mockActivator{}, 1)
	require.NoError(t, err)
	assert.True(t, pkgerrors.IsValidation(e.SetPreset("frantic")))
	assert.Equal(t, Calm, e.Preset().Name)
}

func TestTickSamplesWithoutReplacement(t *testing.T) {
	snap := graph.NewSnapshot(graph.Input{Thoughts: fixtures.Grid(20, 1)})
	act := &mockActivator{}
	act.On("ActivateBatch", mock.Anything, mock.Anything, mock.Anything).Return()

	e, err := NewEngine(Nightmare, act, 42)
	require.NoError(t, err)

	assert.Nil(t, e.Tick(t0, snap), "first tick anchors the interval")
	assert.Nil(t, e.Tick(t0.Add(time.Second), snap))

	ids := e.Tick(t0.Add(1500*time.Millisecond), snap)
	require.Len(t, ids, 8)
	seen := map[string]bool{}
	for _, id := range ids {
		_, ok := snap.Thought(id)
		assert.True(t, ok, "sampled id must exist")
		assert.False(t, seen[id], "duplicate %s", id)
		seen[id] = true
	}

	act.AssertNumberOfCalls(t, "ActivateBatch", 1)
	intensity := act.Calls[0].Arguments.Get(1).(float64)
	assert.GreaterOrEqual(t, intensity, 0.7)
	assert.LessOrEqual(t, intensity, 1.0)
	assert.Equal(t, 1, e.State().Sparks)
}

func TestTickIsDeterministicForSeed(t *testing.T) {
	snap := graph.NewSnapshot(graph.Input{Thoughts: fixtures.Grid(50, 1)})
	run := func() []string {
		e, err := NewEngine(Vivid, activation.NewEngine(activation.DefaultConfig()), 7)
		require.NoError(t, err)
		e.Tick(t0, snap)
		return e.Tick(t0.Add(4*time.Second), snap)
	}
	assert.Equal(t, run(), run())
}

func TestTickSmallGraphAndDisabled(t *testing.T) {
	act := &mockActivator{}
	act.On("ActivateBatch", mock.Anything, mock.Anything, mock.Anything).Return()
	e, err := NewEngine(Vivid, act, 3)
	require.NoError(t, err)

	small := graph.NewSnapshot(graph.Input{Thoughts: fixtures.Grid(2, 1)})
	e.Tick(t0, small)
	assert.Len(t, e.Tick(t0.Add(4*time.Second), small), 2, "batch capped at graph size")

	assert.Nil(t, e.Tick(t0.Add(8*time.Second), graph.Empty()))

	e.Disable()
	assert.Nil(t, e.Tick(t0.Add(time.Minute), small))
	act.AssertNumberOfCalls(t, "ActivateBatch", 1)
}

func TestSparksFeedActivationEngine(t *testing.T) {
	snap := graph.NewSnapshot(graph.Input{Thoughts: fixtures.Grid(4, 1)})
	act := activation.NewEngine(activation.DefaultConfig())
	e, err := NewEngine(Calm, act, 9)
	require.NoError(t, err)

	e.Tick(t0, snap)
	now := t0.Add(8 * time.Second)
	ids := e.Tick(now, snap)
	require.Len(t, ids, 2)

	assert.Greater(t, act.LevelOf(ids[0], now), 0.0)
	act.Tick(now.Add(200 * time.Millisecond))
	assert.Greater(t, act.LevelOf(ids[1], now.Add(200*time.Millisecond)), 0.0)
}
