// Package timeline replays the growth of the graph. A virtual clock moves
// between the first and last creation times; thoughts appear when the clock
// passes their creation time and fade in over a short window.
package timeline

import (
	"math"
	"sync"
	"time"

	"github.com/420247jake/the-mind/internal/domain"
)

// Speed bounds and defaults.
const (
	MinSpeed     = 0.1
	MaxSpeed     = 10000.0
	DefaultSpeed = 3600.0
	DefaultFade  = 2000 * time.Millisecond
)

// Config tunes playback.
type Config struct {
	Fade  time.Duration
	Speed float64
}

// DefaultConfig returns the stock playback values.
func DefaultConfig() Config {
	return Config{Fade: DefaultFade, Speed: DefaultSpeed}
}

// Bounder reports the creation-time range of a snapshot.
type Bounder interface {
	Bounds() (earliest, latest time.Time, ok bool)
}

// State is a point-in-time view of the timeline.
type State struct {
	Enabled  bool      `json:"enabled"`
	Playing  bool      `json:"playing"`
	Speed    float64   `json:"speed"`
	Start    time.Time `json:"start"`
	End      time.Time `json:"end"`
	Current  time.Time `json:"current"`
	Progress float64   `json:"progress"`
}

// Engine is safe for concurrent use.
type Engine struct {
	mu      sync.Mutex
	fade    time.Duration
	speed   float64
	enabled bool
	playing bool
	start   time.Time
	end     time.Time
	current time.Time
	seeded  bool
}

// NewEngine creates a disabled timeline.
func NewEngine(cfg Config) *Engine {
	if cfg.Fade <= 0 {
		cfg.Fade = DefaultFade
	}
	return &Engine{fade: cfg.Fade, speed: clampSpeed(cfg.Speed)}
}

func clampSpeed(s float64) float64 {
	return domain.Clamp(s, MinSpeed, MaxSpeed)
}

// SetConfig replaces the fade window and speed.
func (e *Engine) SetConfig(cfg Config) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if cfg.Fade > 0 {
		e.fade = cfg.Fade
	}
	e.speed = clampSpeed(cfg.Speed)
}

// Refresh recomputes the bounds from b. The end is never earlier than now.
// A clock following live (disabled, or parked at the end and not playing)
// moves to the new end.
func (e *Engine) Refresh(b Bounder, now time.Time) {
	e.mu.Lock()
	defer e.mu.Unlock()
	live := !e.seeded || !e.enabled || (!e.playing && !e.current.Before(e.end))
	earliest, latest, ok := b.Bounds()
	if !ok {
		earliest, latest = now, now
	}
	if now.After(latest) {
		latest = now
	}
	if earliest.After(latest) {
		earliest = latest
	}
	e.start, e.end = earliest, latest
	e.seeded = true
	if live {
		e.current = e.end
	}
	e.current = e.clamp(e.current)
}

// IsVisible reports whether something created at createdAt exists at the
// current virtual time. Everything is visible while the timeline is off.
func (e *Engine) IsVisible(createdAt time.Time) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return !e.enabled || !createdAt.After(e.current)
}

// Visibility returns the fade-in factor of something created at createdAt.
func (e *Engine) Visibility(createdAt time.Time) float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.visibility(createdAt)
}

func (e *Engine) visibility(createdAt time.Time) float64 {
	if !e.enabled {
		return 1
	}
	if createdAt.After(e.current) {
		return 0
	}
	return math.Min(1, float64(e.current.Sub(createdAt))/float64(e.fade))
}

// ConnectionVisibility is the smallest of the connection's own visibility
// and that of its endpoints.
func (e *Engine) ConnectionVisibility(conn, from, to time.Time) float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return math.Min(e.visibility(conn), math.Min(e.visibility(from), e.visibility(to)))
}

// Advance moves the clock by realDelta times the speed while playing. At the
// end the clock stops and playback ends.
func (e *Engine) Advance(realDelta time.Duration) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.playing || realDelta <= 0 {
		return
	}
	step := time.Duration(float64(realDelta) * e.speed)
	e.current = e.current.Add(step)
	if !e.current.Before(e.end) {
		e.current = e.end
		e.playing = false
	}
}

// Progress returns the clock position as a fraction of the bounds.
func (e *Engine) Progress() float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.progress()
}

func (e *Engine) progress() float64 {
	span := e.end.Sub(e.start)
	if span <= 0 {
		return 1
	}
	return domain.Clamp01(float64(e.current.Sub(e.start)) / float64(span))
}

// SetProgress moves the clock to fraction of the bounds. It works while
// playing.
func (e *Engine) SetProgress(fraction float64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	fraction = domain.Clamp01(fraction)
	span := e.end.Sub(e.start)
	e.current = e.start.Add(time.Duration(fraction * float64(span)))
}

// Seek moves the clock to t, clamped into the bounds.
func (e *Engine) Seek(t time.Time) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.current = e.clamp(t)
}

// Current returns the virtual time.
func (e *Engine) Current() time.Time {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.current
}

// Play starts playback. Playing from the end restarts at the beginning.
func (e *Engine) Play() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.current.Before(e.end) {
		e.current = e.start
	}
	e.playing = true
}

// Pause stops playback.
func (e *Engine) Pause() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.playing = false
}

// SetSpeed sets the playback multiplier.
func (e *Engine) SetSpeed(speed float64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.speed = clampSpeed(speed)
}

// Enable turns the timeline view on.
func (e *Engine) Enable() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.enabled = true
}

// Disable returns to the live view and stops playback.
func (e *Engine) Disable() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.enabled = false
	e.playing = false
	e.current = e.end
}

// Enabled reports whether the timeline view is on.
func (e *Engine) Enabled() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.enabled
}

// State reports the timeline.
func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return State{
		Enabled:  e.enabled,
		Playing:  e.playing,
		Speed:    e.speed,
		Start:    e.start,
		End:      e.end,
		Current:  e.current,
		Progress: e.progress(),
	}
}

func (e *Engine) clamp(t time.Time) time.Time {
	if t.Before(e.start) {
		return e.start
	}
	if t.After(e.end) {
		return e.end
	}
	return t
}
