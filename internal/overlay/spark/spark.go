// Package spark fires random ambient activations so an idle graph keeps
// flickering. It only schedules activations; it never invents thoughts.
package spark

import (
	"math/rand/v2"
	"sort"
	"sync"
	"time"

	"github.com/420247jake/the-mind/internal/domain"
	pkgerrors "github.com/420247jake/the-mind/pkg/errors"
)

// Preset fixes the character of the ambient activity.
type Preset struct {
	Name         string        `json:"name"`
	Interval     time.Duration `json:"interval"`
	Batch        int           `json:"batch"`
	Drift        float64       `json:"drift"`
	Pulse        float64       `json:"pulse"`
	Glitch       bool          `json:"glitch"`
	MinIntensity float64       `json:"min_intensity"`
	MaxIntensity float64       `json:"max_intensity"`
}

// Preset names.
const (
	Calm      = "calm"
	Vivid     = "vivid"
	Nightmare = "nightmare"
)

var presets = map[string]Preset{
	Calm: {
		Name: Calm, Interval: 8 * time.Second, Batch: 2,
		Drift: 0.5, Pulse: 0.6, MinIntensity: 0.3, MaxIntensity: 0.5,
	},
	Vivid: {
		Name: Vivid, Interval: 4 * time.Second, Batch: 4,
		Drift: 1.0, Pulse: 1.0, MinIntensity: 0.5, MaxIntensity: 0.8,
	},
	Nightmare: {
		Name: Nightmare, Interval: 1500 * time.Millisecond, Batch: 8,
		Drift: 2.5, Pulse: 2.2, Glitch: true, MinIntensity: 0.7, MaxIntensity: 1.0,
	},
}

// Lookup returns the preset called name.
func Lookup(name string) (Preset, bool) {
	p, ok := presets[name]
	return p, ok
}

// Names lists the presets in a stable order.
func Names() []string {
	names := make([]string, 0, len(presets))
	for n := range presets {
		names = append(names, n)
	}
	sort.Slice(names, func(i, j int) bool {
		return presets[names[i]].Interval > presets[names[j]].Interval
	})
	return names
}

// Activator receives the sampled ids.
type Activator interface {
	ActivateBatch(ids []string, intensity float64, now time.Time)
}

// ThoughtSource lists the thoughts that may spark.
type ThoughtSource interface {
	Thoughts() []domain.Thought
}

// State is a point-in-time view of the engine.
type State struct {
	Preset      Preset    `json:"preset"`
	Enabled     bool      `json:"enabled"`
	LastSparkAt time.Time `json:"last_spark_at"`
	Sparks      int       `json:"sparks"`
}

// Engine is safe for concurrent use.
type Engine struct {
	mu        sync.Mutex
	preset    Preset
	enabled   bool
	activator Activator
	rng       *rand.Rand
	lastSpark time.Time
	anchored  bool
	sparks    int
}

// NewEngine creates an enabled engine using preset, seeded with seed.
func NewEngine(preset string, activator Activator, seed uint64) (*Engine, error) {
	p, ok := Lookup(preset)
	if !ok {
		return nil, unknownPreset(preset)
	}
	return &Engine{
		preset:    p,
		enabled:   true,
		activator: activator,
		rng:       rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)),
	}, nil
}

func unknownPreset(name string) error {
	return pkgerrors.NewValidationError("unknown spark preset").
		WithDetails(map[string]any{"preset": name, "valid": Names()})
}

// SetPreset switches presets. The interval restarts from the last spark.
func (e *Engine) SetPreset(name string) error {
	p, ok := Lookup(name)
	if !ok {
		return unknownPreset(name)
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.preset = p
	return nil
}

// Preset returns the active preset.
func (e *Engine) Preset() Preset {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.preset
}

// Enable resumes sparking.
func (e *Engine) Enable() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.enabled = true
}

// Disable stops sparking.
func (e *Engine) Disable() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.enabled = false
}

// State reports the engine.
func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return State{
		Preset:      e.preset,
		Enabled:     e.enabled,
		LastSparkAt: e.lastSpark,
		Sparks:      e.sparks,
	}
}

// Tick sparks when the preset interval has passed since the last spark. The
// first call only starts the interval. It returns the ids sent to the
// activator.
func (e *Engine) Tick(now time.Time, src ThoughtSource) []string {
	e.mu.Lock()
	if !e.anchored {
		e.anchored = true
		e.lastSpark = now
		e.mu.Unlock()
		return nil
	}
	if !e.enabled || now.Sub(e.lastSpark) < e.preset.Interval {
		e.mu.Unlock()
		return nil
	}
	e.lastSpark = now

	thoughts := src.Thoughts()
	ids := e.sample(thoughts, e.preset.Batch)
	if len(ids) == 0 {
		e.mu.Unlock()
		return nil
	}
	intensity := e.preset.MinIntensity + e.rng.Float64()*(e.preset.MaxIntensity-e.preset.MinIntensity)
	e.sparks++
	e.mu.Unlock()

	e.activator.ActivateBatch(ids, intensity, now)
	return ids
}

// sample picks k distinct ids with a partial Fisher-Yates shuffle.
func (e *Engine) sample(thoughts []domain.Thought, k int) []string {
	n := len(thoughts)
	k = min(k, n)
	if k <= 0 {
		return nil
	}
	idx := make([]int, n)
	for i := range idx {
		idx[i] = i
	}
	ids := make([]string, k)
	for i := 0; i < k; i++ {
		j := i + e.rng.IntN(n-i)
		idx[i], idx[j] = idx[j], idx[i]
		ids[i] = thoughts[idx[i]].ID
	}
	return ids
}
