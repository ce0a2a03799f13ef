// Package reasoning animates a walk through the strongest neighbours of a new
// thought, ending on the thought itself.
package reasoning

import (
	"math"
	"sort"
	"sync"
	"time"

	"github.com/420247jake/the-mind/internal/domain"
)

// Config tunes path traversal.
type Config struct {
	MaxPathLength int
	// Speed is in path positions per second.
	Speed      float64
	SettleTime time.Duration
	Floor      float64
	Falloff    float64
	Foreshadow float64
}

// DefaultConfig returns the stock traversal values.
func DefaultConfig() Config {
	return Config{
		MaxPathLength: 4,
		Speed:         2,
		SettleTime:    2 * time.Second,
		Floor:         0.4,
		Falloff:       0.15,
		Foreshadow:    0.15,
	}
}

// Speed bounds.
const (
	MinSpeed = 0.5
	MaxSpeed = 10.0
)

// ClampSpeed clamps s into [MinSpeed, MaxSpeed].
func ClampSpeed(s float64) float64 {
	return domain.Clamp(s, MinSpeed, MaxSpeed)
}

// ConnectionSource looks up the connections of a thought.
type ConnectionSource interface {
	ConnectionsFor(id string) []domain.Connection
}

// DerivePath returns up to maxLen-1 distinct neighbours of id, strongest
// connection first, followed by id itself.
func DerivePath(id string, connections []domain.Connection, maxLen int) []string {
	touching := make([]domain.Connection, 0, len(connections))
	for _, c := range connections {
		if c.Touches(id) {
			touching = append(touching, c)
		}
	}
	sort.SliceStable(touching, func(i, j int) bool {
		return touching[i].Strength > touching[j].Strength
	})

	path := make([]string, 0, maxLen)
	seen := map[string]struct{}{id: {}}
	for _, c := range touching {
		if len(path) >= maxLen-1 {
			break
		}
		other := c.Other(id)
		if _, dup := seen[other]; dup {
			continue
		}
		seen[other] = struct{}{}
		path = append(path, other)
	}
	return append(path, id)
}

// State is a point-in-time view of the current path.
type State struct {
	Path      []string `json:"path"`
	Synthesis string   `json:"synthesis,omitempty"`
	Cursor    int      `json:"cursor"`
	Speed     float64  `json:"speed"`
	Thinking  bool     `json:"thinking"`
	Settling  bool     `json:"settling"`
}

// Engine holds at most one path. It is safe for concurrent use.
type Engine struct {
	mu  sync.Mutex
	cfg Config

	path  []string
	index map[string]int
	// Cursor position is base + (now - baseAt) * speed.
	base   float64
	baseAt time.Time
}

// NewEngine creates an idle engine.
func NewEngine(cfg Config) *Engine {
	cfg.Speed = ClampSpeed(cfg.Speed)
	if cfg.MaxPathLength < 1 {
		cfg.MaxPathLength = 1
	}
	return &Engine{cfg: cfg}
}

// SetConfig replaces the tuning. A path in progress keeps its position.
func (e *Engine) SetConfig(cfg Config, now time.Time) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.rebase(now)
	cfg.Speed = ClampSpeed(cfg.Speed)
	if cfg.MaxPathLength < 1 {
		cfg.MaxPathLength = 1
	}
	e.cfg = cfg
}

// Config returns the tuning.
func (e *Engine) Config() Config {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.cfg
}

// Start replaces any path in progress with one ending on id. It returns false
// when id has no neighbours, in which case nothing is traversed.
func (e *Engine) Start(id string, src ConnectionSource, now time.Time) bool {
	path := DerivePath(id, src.ConnectionsFor(id), e.Config().MaxPathLength)

	e.mu.Lock()
	defer e.mu.Unlock()
	if len(path) < 2 {
		e.clear()
		return false
	}
	e.path = path
	e.index = make(map[string]int, len(path))
	for i, pid := range path {
		e.index[pid] = i
	}
	e.base = 0
	e.baseAt = now
	return true
}

// SetSpeed changes the traversal speed without moving the cursor.
func (e *Engine) SetSpeed(speed float64, now time.Time) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.rebase(now)
	e.cfg.Speed = ClampSpeed(speed)
}

// Cancel clears the path.
func (e *Engine) Cancel() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.clear()
}

// Tick clears the path once it has settled.
func (e *Engine) Tick(now time.Time) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.expire(now)
}

// ActivationOf returns the brightness the path lends id at now.
func (e *Engine) ActivationOf(id string, now time.Time) float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.expire(now)
	idx, ok := e.index[id]
	if !ok {
		return 0
	}
	return e.activation(idx, e.cursor(now))
}

// Activations returns the brightness of every thought on the path.
func (e *Engine) Activations(now time.Time) map[string]float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.expire(now)
	if e.path == nil {
		return nil
	}
	cursor := e.cursor(now)
	out := make(map[string]float64, len(e.path))
	for i, id := range e.path {
		out[id] = e.activation(i, cursor)
	}
	return out
}

// State reports the path at now.
func (e *Engine) State(now time.Time) State {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.expire(now)
	s := State{Speed: e.cfg.Speed}
	if e.path == nil {
		return s
	}
	s.Path = append([]string(nil), e.path...)
	s.Synthesis = e.path[len(e.path)-1]
	s.Cursor = e.cursor(now)
	s.Settling = s.Cursor == len(e.path)-1
	s.Thinking = !s.Settling
	return s
}

func (e *Engine) activation(idx, cursor int) float64 {
	last := len(e.path) - 1
	switch {
	case idx == last && cursor == last:
		return 1
	case idx <= cursor:
		return math.Max(e.cfg.Floor, 1-float64(cursor-idx)*e.cfg.Falloff)
	default:
		return e.cfg.Foreshadow
	}
}

func (e *Engine) position(now time.Time) float64 {
	p := e.base + now.Sub(e.baseAt).Seconds()*e.cfg.Speed
	return math.Max(0, p)
}

func (e *Engine) cursor(now time.Time) int {
	c := int(math.Floor(e.position(now)))
	return min(c, len(e.path)-1)
}

// reachedAt is when the cursor lands on the last position.
func (e *Engine) reachedAt() time.Time {
	remaining := float64(len(e.path)-1) - e.base
	if remaining <= 0 {
		return e.baseAt
	}
	return e.baseAt.Add(time.Duration(remaining / e.cfg.Speed * float64(time.Second)))
}

func (e *Engine) expire(now time.Time) {
	if e.path == nil {
		return
	}
	if !now.Before(e.reachedAt().Add(e.cfg.SettleTime)) {
		e.clear()
	}
}

func (e *Engine) rebase(now time.Time) {
	if e.path == nil {
		return
	}
	e.base = math.Min(e.position(now), float64(len(e.path)-1))
	e.baseAt = now
}

func (e *Engine) clear() {
	e.path = nil
	e.index = nil
	e.base = 0
}
