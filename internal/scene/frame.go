package scene

import (
	"math"
	"time"

	"github.com/420247jake/the-mind/internal/domain"
	"github.com/420247jake/the-mind/internal/graph"
	"github.com/420247jake/the-mind/internal/overlay/reasoning"
	"github.com/420247jake/the-mind/internal/overlay/spark"
	"github.com/420247jake/the-mind/internal/overlay/timeline"
)

// ThoughtFrame is the render state of one thought.
type ThoughtFrame struct {
	ID         string          `json:"id"`
	Category   domain.Category `json:"category"`
	Importance float64         `json:"importance"`
	Position   domain.Position `json:"position"`
	Brightness float64         `json:"brightness"`
	Visibility float64         `json:"visibility"`
}

// ConnectionFrame is the render state of one connection.
type ConnectionFrame struct {
	ID         string  `json:"id"`
	From       string  `json:"from"`
	To         string  `json:"to"`
	Strength   float64 `json:"strength"`
	Visibility float64 `json:"visibility"`
}

// Frame is everything a renderer needs to draw one moment.
type Frame struct {
	At          time.Time           `json:"at"`
	Version     domain.VersionToken `json:"version"`
	Mode        graph.Mode          `json:"mode"`
	TotalCount  int                 `json:"total_count"`
	Viewpoint   domain.Position     `json:"viewpoint"`
	Thoughts    []ThoughtFrame      `json:"thoughts"`
	Connections []ConnectionFrame   `json:"connections"`
	Path        reasoning.State     `json:"path"`
	Timeline    timeline.State      `json:"timeline"`
	Spark       spark.State         `json:"spark"`
	Active      int                 `json:"active"`
}

// Frame renders the scene at now. Thoughts hidden by the timeline are left
// out, as are connections with a hidden endpoint.
func (s *Scene) Frame(now time.Time) Frame {
	snap := s.graph.Current()
	levels := s.engines.Activation.Levels(now)
	path := s.engines.Reasoning.Activations(now)
	tl := s.engines.Timeline

	f := Frame{
		At:          now,
		Version:     snap.Version(),
		Mode:        snap.Mode(),
		TotalCount:  snap.TotalCount(),
		Viewpoint:   s.window.Viewpoint(),
		Thoughts:    make([]ThoughtFrame, 0, len(snap.Thoughts())),
		Connections: make([]ConnectionFrame, 0, len(snap.Connections())),
		Path:        s.engines.Reasoning.State(now),
		Timeline:    tl.State(),
		Spark:       s.engines.Spark.State(),
		Active:      len(levels),
	}

	for _, t := range snap.Thoughts() {
		if !tl.IsVisible(t.CreatedAt) {
			continue
		}
		f.Thoughts = append(f.Thoughts, ThoughtFrame{
			ID:         t.ID,
			Category:   t.Category,
			Importance: t.Importance,
			Position:   t.Position,
			Brightness: math.Max(levels[t.ID], path[t.ID]),
			Visibility: tl.Visibility(t.CreatedAt),
		})
	}

	for _, c := range snap.Connections() {
		from, _ := snap.Thought(c.From)
		to, _ := snap.Thought(c.To)
		if !tl.IsVisible(c.CreatedAt) || !tl.IsVisible(from.CreatedAt) || !tl.IsVisible(to.CreatedAt) {
			continue
		}
		f.Connections = append(f.Connections, ConnectionFrame{
			ID:         c.ID,
			From:       c.From,
			To:         c.To,
			Strength:   c.Strength,
			Visibility: tl.ConnectionVisibility(c.CreatedAt, from.CreatedAt, to.CreatedAt),
		})
	}
	return f
}

// BrightnessOf returns the combined activation and path brightness of id.
func (s *Scene) BrightnessOf(id string, now time.Time) float64 {
	return math.Max(
		s.engines.Activation.LevelOf(id, now),
		s.engines.Reasoning.ActivationOf(id, now),
	)
}
