// Package activation tracks how brightly each thought glows. A record holds
// its level for a glow window, then fades quadratically to zero over a decay
// window. Every method takes the evaluation time explicitly.
package activation

import (
	"sync"
	"time"

	"github.com/tidwall/btree"

	"github.com/420247jake/the-mind/internal/domain"
)

// Config tunes the engine.
type Config struct {
	GlowDuration    time.Duration
	DecayDuration   time.Duration
	Stagger         time.Duration
	ProximityRadius float64
	ProximityWeight float64
	ProximityDecay  time.Duration
	SweepInterval   time.Duration
}

// DefaultConfig returns the stock activation values.
func DefaultConfig() Config {
	return Config{
		GlowDuration:    30 * time.Second,
		DecayDuration:   60 * time.Second,
		Stagger:         200 * time.Millisecond,
		ProximityRadius: 20,
		ProximityWeight: 0.3,
		ProximityDecay:  2 * time.Second,
		SweepInterval:   5 * time.Second,
	}
}

// Record is the activation state of one thought.
type Record struct {
	Level       float64
	ActivatedAt time.Time
	Glow        time.Duration
	Decay       time.Duration
}

// LevelAt evaluates the record at now.
func (r Record) LevelAt(now time.Time) float64 {
	e := now.Sub(r.ActivatedAt)
	if e < 0 {
		return 0
	}
	if e < r.Glow {
		return r.Level
	}
	e -= r.Glow
	if r.Decay <= 0 || e >= r.Decay {
		return 0
	}
	f := float64(e) / float64(r.Decay)
	return r.Level * (1 - f*f)
}

// Dormant reports whether the record has fully decayed at now.
func (r Record) Dormant(now time.Time) bool {
	return now.Sub(r.ActivatedAt) >= r.Glow+r.Decay
}

type pending struct {
	fireAt    time.Time
	seq       uint64
	id        string
	intensity float64
}

func lessPending(a, b pending) bool {
	if !a.fireAt.Equal(b.fireAt) {
		return a.fireAt.Before(b.fireAt)
	}
	return a.seq < b.seq
}

// Engine is safe for concurrent use.
type Engine struct {
	mu        sync.Mutex
	cfg       Config
	records   map[string]Record
	boosts    map[string]Record
	pending   *btree.BTreeG[pending]
	seq       uint64
	lastSweep time.Time
}

// NewEngine creates an empty engine.
func NewEngine(cfg Config) *Engine {
	return &Engine{
		cfg:     cfg,
		records: make(map[string]Record),
		boosts:  make(map[string]Record),
		pending: btree.NewBTreeGOptions(lessPending, btree.Options{NoLocks: true}),
	}
}

// SetConfig replaces the tuning. Existing records keep their windows.
func (e *Engine) SetConfig(cfg Config) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.cfg = cfg
}

// Config returns the tuning.
func (e *Engine) Config() Config {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.cfg
}

// Activate creates or resets the record of id. Repeating a call with the same
// arguments has no further effect.
func (e *Engine) Activate(id string, intensity float64, now time.Time) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.activate(id, intensity, now)
}

func (e *Engine) activate(id string, intensity float64, now time.Time) {
	e.records[id] = Record{
		Level:       domain.Clamp01(intensity),
		ActivatedAt: now,
		Glow:        e.cfg.GlowDuration,
		Decay:       e.cfg.DecayDuration,
	}
}

// ActivateBatch schedules ids to fire one stagger apart starting at now. The
// first entry fires immediately; the rest wait for Tick.
func (e *Engine) ActivateBatch(ids []string, intensity float64, now time.Time) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for i, id := range ids {
		e.seq++
		e.pending.Set(pending{
			fireAt:    now.Add(time.Duration(i) * e.cfg.Stagger),
			seq:       e.seq,
			id:        id,
			intensity: intensity,
		})
	}
	e.drain(now)
}

// ActivateConnection lights both endpoints of a new connection. Weak
// connections still glow at half intensity. An endpoint already brighter
// than that keeps its record.
func (e *Engine) ActivateConnection(c domain.Connection, now time.Time) {
	intensity := domain.Clamp(c.Strength, 0.5, 1)
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, id := range []string{c.From, c.To} {
		if e.levelOf(id, now) < intensity {
			e.activate(id, intensity, now)
		}
	}
}

// ApplyProximity brightens id when the viewer is within the proximity
// radius. The boost is held beside the activation record and the level is the
// larger of the two, so it only ever raises a level.
func (e *Engine) ApplyProximity(id string, distance float64, now time.Time) {
	e.mu.Lock()
	defer e.mu.Unlock()
	r := e.cfg.ProximityRadius
	if r <= 0 || distance < 0 || distance >= r {
		return
	}
	boost := (1 - distance/r) * e.cfg.ProximityWeight
	if boost <= e.levelOf(id, now) {
		return
	}
	e.boosts[id] = Record{
		Level:       domain.Clamp01(boost),
		ActivatedAt: now,
		Decay:       e.cfg.ProximityDecay,
	}
}

// LevelOf returns the level of id at now, 0 for unknown ids.
func (e *Engine) LevelOf(id string, now time.Time) float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.levelOf(id, now)
}

func (e *Engine) levelOf(id string, now time.Time) float64 {
	var level float64
	if r, ok := e.records[id]; ok {
		level = r.LevelAt(now)
	}
	if b, ok := e.boosts[id]; ok {
		level = max(level, b.LevelAt(now))
	}
	return level
}

// Levels returns every non-zero level at now.
func (e *Engine) Levels(now time.Time) map[string]float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make(map[string]float64, len(e.records))
	for _, m := range []map[string]Record{e.records, e.boosts} {
		for id := range m {
			if l := e.levelOf(id, now); l > 0 {
				out[id] = l
			}
		}
	}
	return out
}

// Tick fires due batch entries and periodically drops dormant records. It
// returns the number of entries fired.
func (e *Engine) Tick(now time.Time) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	fired := e.drain(now)
	if now.Sub(e.lastSweep) >= e.cfg.SweepInterval {
		e.sweep(now)
		e.lastSweep = now
	}
	return fired
}

// Each entry activates at its own fire time, so the cascade does not depend
// on how often Tick runs.
func (e *Engine) drain(now time.Time) int {
	var due []pending
	e.pending.Scan(func(p pending) bool {
		if p.fireAt.After(now) {
			return false
		}
		due = append(due, p)
		return true
	})
	for _, p := range due {
		e.pending.Delete(p)
		e.activate(p.id, p.intensity, p.fireAt)
	}
	return len(due)
}

func (e *Engine) sweep(now time.Time) {
	for _, m := range []map[string]Record{e.records, e.boosts} {
		for id, r := range m {
			if r.Dormant(now) {
				delete(m, id)
			}
		}
	}
}

// Sweep drops dormant records immediately.
func (e *Engine) Sweep(now time.Time) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.sweep(now)
	e.lastSweep = now
}

// ActiveCount returns the number of thoughts holding a record or a boost,
// dormant or not.
func (e *Engine) ActiveCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	n := len(e.records)
	for id := range e.boosts {
		if _, ok := e.records[id]; !ok {
			n++
		}
	}
	return n
}

// PendingCount returns the number of scheduled batch entries.
func (e *Engine) PendingCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.pending.Len()
}

// Reset clears all records and pending entries.
func (e *Engine) Reset() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.records = make(map[string]Record)
	e.boosts = make(map[string]Record)
	e.pending.Clear()
}
