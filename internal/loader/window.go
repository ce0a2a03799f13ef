package loader

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/420247jake/the-mind/internal/domain"
	"github.com/420247jake/the-mind/internal/graph"
)

// WindowConfig tunes spatial windowing.
type WindowConfig struct {
	// Threshold is the largest thought count loaded in full.
	Threshold     int
	Radius        float64
	Limit         int
	MoveThreshold float64
	Cooldown      time.Duration
}

// DefaultWindowConfig returns the stock windowing values.
func DefaultWindowConfig() WindowConfig {
	return WindowConfig{
		Threshold:     500,
		Radius:        80,
		Limit:         300,
		MoveThreshold: 20,
		Cooldown:      time.Second,
	}
}

// LoadMode is the outcome of Decide.
type LoadMode struct {
	Mode   graph.Mode
	Window graph.Window
}

// Windowed reports whether only a region should be loaded.
func (m LoadMode) Windowed() bool { return m.Mode == graph.ModeWindowed }

// WindowManager chooses between full and windowed loads and decides when
// camera movement warrants a new windowed load.
type WindowManager struct {
	mu             sync.Mutex
	cfg            WindowConfig
	viewpoint      domain.Position
	lastCenter     domain.Position
	lastLoadAt     time.Time
	lastWindowed   bool
	spatialMissing bool

	inFlight atomic.Bool
}

// NewWindowManager creates a manager with the viewpoint at the origin.
func NewWindowManager(cfg WindowConfig) *WindowManager {
	return &WindowManager{cfg: cfg}
}

// SetConfig replaces the windowing values.
func (w *WindowManager) SetConfig(cfg WindowConfig) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.cfg = cfg
}

// Config returns the windowing values.
func (w *WindowManager) Config() WindowConfig {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.cfg
}

// Decide picks a full load for small graphs and a window around the current
// viewpoint otherwise. Stores without spatial queries always load in full.
func (w *WindowManager) Decide(total int) LoadMode {
	w.mu.Lock()
	defer w.mu.Unlock()
	if total <= w.cfg.Threshold || w.spatialMissing {
		return LoadMode{Mode: graph.ModeFull}
	}
	return LoadMode{
		Mode: graph.ModeWindowed,
		Window: graph.Window{
			Center: w.viewpoint,
			Radius: w.cfg.Radius,
			Limit:  w.cfg.Limit,
		},
	}
}

// SetViewpoint records the camera position.
func (w *WindowManager) SetViewpoint(p domain.Position) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.viewpoint = p.Sanitized()
}

// Viewpoint returns the camera position.
func (w *WindowManager) Viewpoint() domain.Position {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.viewpoint
}

// ShouldReload reports whether movement since the last windowed load calls
// for a new one. It never reports true while a load is running.
func (w *WindowManager) ShouldReload(now time.Time) bool {
	if w.inFlight.Load() {
		return false
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.lastWindowed {
		return false
	}
	if now.Sub(w.lastLoadAt) < w.cfg.Cooldown {
		return false
	}
	return w.viewpoint.DistanceTo(w.lastCenter) > w.cfg.MoveThreshold
}

// TryBegin marks a load as running. It returns false if one already is.
func (w *WindowManager) TryBegin() bool {
	return w.inFlight.CompareAndSwap(false, true)
}

// End clears the running flag.
func (w *WindowManager) End() {
	w.inFlight.Store(false)
}

// InFlight reports whether a load is running.
func (w *WindowManager) InFlight() bool {
	return w.inFlight.Load()
}

// MarkLoaded records a finished load. The cooldown runs from at.
func (w *WindowManager) MarkLoaded(mode LoadMode, at time.Time) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.lastWindowed = mode.Windowed()
	w.lastLoadAt = at
	if mode.Windowed() {
		w.lastCenter = mode.Window.Center
	} else {
		w.lastCenter = w.viewpoint
	}
}

// DisableSpatial makes every later decision a full load.
func (w *WindowManager) DisableSpatial() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.spatialMissing = true
}

// SpatialDisabled reports whether DisableSpatial was called.
func (w *WindowManager) SpatialDisabled() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.spatialMissing
}
