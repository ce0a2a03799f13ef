package timeline

import (
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

type bounds struct {
	earliest, latest time.Time
	ok               bool
}

func (b bounds) Bounds() (time.Time, time.Time, bool) { return b.earliest, b.latest, b.ok }

func scenario(t *testing.T) *Engine {
	t.Helper()
	e := NewEngine(DefaultConfig())
	e.Refresh(bounds{earliest: ms(1000), latest: ms(5000), ok: true}, ms(5000))
	e.Enable()
	return e
}

func TestProgressScenario(t *testing.T) {
	e := scenario(t)
	e.Seek(ms(3000))
	assert.InDelta(t, 0.5, e.Progress(), 1e-9)

	e.SetProgress(0.25)
	assert.Equal(t, ms(2000), e.Current())
}

func TestSetProgressClamps(t *testing.T) {
	e := scenario(t)
	e.SetProgress(-3)
	assert.Equal(t, ms(1000), e.Current())
	e.SetProgress(7)
	assert.Equal(t, ms(5000), e.Current())
}

func TestRefreshExtendsEndToNow(t *testing.T) {
	e := NewEngine(DefaultConfig())
	e.Refresh(bounds{earliest: ms(1000), latest: ms(5000), ok: true}, ms(9000))

	state := e.State()
	assert.Equal(t, ms(1000), state.Start)
	assert.Equal(t, ms(9000), state.End)
	assert.Equal(t, ms(9000), state.Current, "first refresh starts live")

	e.Refresh(bounds{}, ms(9500))
	state = e.State()
	assert.Equal(t, ms(9500), state.Start)
	assert.Equal(t, ms(9500), state.End)
	assert.Equal(t, 1.0, state.Progress)
}

func TestRefreshFollowsLive(t *testing.T) {
	newest := ms(600000)

	t.Run("disabled then enabled", func(t *testing.T) {
		e := NewEngine(DefaultConfig())
		e.Refresh(bounds{earliest: ms(0), latest: ms(0), ok: true}, ms(0))
		e.Refresh(bounds{earliest: ms(0), latest: newest, ok: true}, newest)
		e.Enable()

		assert.Equal(t, newest, e.Current())
		assert.Equal(t, 1.0, e.Progress())
		assert.True(t, e.IsVisible(newest))
	})

	t.Run("parked at the end", func(t *testing.T) {
		e := scenario(t)
		e.Refresh(bounds{earliest: ms(1000), latest: ms(8000), ok: true}, ms(8000))
		assert.Equal(t, ms(8000), e.Current())
	})

	t.Run("scrubbed back stays put", func(t *testing.T) {
		e := scenario(t)
		e.Seek(ms(3000))
		e.Refresh(bounds{earliest: ms(1000), latest: ms(8000), ok: true}, ms(8000))
		assert.Equal(t, ms(3000), e.Current())
	})

	t.Run("playing stays put", func(t *testing.T) {
		e := scenario(t)
		e.SetProgress(0.5)
		e.Play()
		e.Refresh(bounds{earliest: ms(1000), latest: ms(8000), ok: true}, ms(8000))
		assert.Equal(t, ms(3000), e.Current())
	})
}

func TestRefreshFromSnapshot(t *testing.T) {
	snap := graph.NewSnapshot(graph.Input{Thoughts: fixtures.Grid(5, 1)})
	e := NewEngine(DefaultConfig())
	e.Refresh(snap, fixtures.Epoch)

	state := e.State()
	assert.Equal(t, fixtures.Epoch, state.Start)
	assert.Equal(t, fixtures.Epoch.Add(4*time.Second), state.End)
}

func TestVisibility(t *testing.T) {
	e := scenario(t)
	e.Seek(ms(3000))

	tests := []struct {
		name    string
		created time.Time
		visible bool
		want    float64
	}{
		{name: "future", created: ms(3001), visible: false, want: 0},
		{name: "just appeared", created: ms(3000), visible: true, want: 0},
		{name: "half faded", created: ms(2000), visible: true, want: 0.5},
		{name: "fully visible", created: ms(1000), visible: true, want: 1},
		{name: "long ago", created: ms(-100000), visible: true, want: 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.visible, e.IsVisible(tt.created))
			assert.InDelta(t, tt.want, e.Visibility(tt.created), 1e-9)
		})
	}
}

func TestVisibilityWhenDisabled(t *testing.T) {
	e := scenario(t)
	e.Seek(ms(1000))
	e.Disable()
	assert.True(t, e.IsVisible(ms(4000)))
	assert.Equal(t, 1.0, e.Visibility(ms(4000)))
	assert.Equal(t, ms(5000), e.Current())
}

func TestConnectionVisibility(t *testing.T) {
	e := scenario(t)
	e.Seek(ms(3000))

	assert.InDelta(t, 0.5, e.ConnectionVisibility(ms(1000), ms(2000), ms(1500)), 1e-9)
	assert.Zero(t, e.ConnectionVisibility(ms(1000), ms(3500), ms(1000)))

	c := domain.Connection{CreatedAt: ms(2500)}
	assert.InDelta(t, 0.25, e.ConnectionVisibility(c.CreatedAt, ms(1000), ms(1000)), 1e-9)
}

func TestPlayback(t *testing.T) {
	e := scenario(t)
	e.SetSpeed(1000)
	e.SetProgress(0)

	e.Advance(time.Second)
	assert.Equal(t, ms(1000), e.Current(), "paused clock does not move")

	e.Play()
	e.Advance(time.Millisecond)
	assert.Equal(t, ms(2000), e.Current())

	e.SetProgress(0.5)
	assert.True(t, e.State().Playing, "scrubbing keeps playing")
	e.Advance(time.Millisecond)
	assert.Equal(t, ms(4000), e.Current())

	e.Advance(time.Second)
	state := e.State()
	assert.Equal(t, ms(5000), state.Current)
	assert.False(t, state.Playing, "auto stop at end")

	e.Play()
	assert.Equal(t, ms(1000), e.Current(), "play from the end restarts")
}

func TestSpeedClamp(t *testing.T) {
	e := NewEngine(Config{Speed: 0})
	require.Equal(t, MinSpeed, e.State().Speed)
	e.SetSpeed(1e9)
	assert.Equal(t, MaxSpeed, e.State().Speed)
}
