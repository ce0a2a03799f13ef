// Package domain holds the graph entities shared by the store, loader and
// overlay packages.
package domain

import (
	"math"
	"strings"
	"time"
)

// Category is the closed set of thought categories.
type Category string

const (
	CategoryWork      Category = "work"
	CategoryPersonal  Category = "personal"
	CategoryTechnical Category = "technical"
	CategoryCreative  Category = "creative"
	CategoryOther     Category = "other"
)

// Categories lists every valid category in display order.
var Categories = []Category{
	CategoryWork,
	CategoryPersonal,
	CategoryTechnical,
	CategoryCreative,
	CategoryOther,
}

// ParseCategory maps free-form input onto the closed set. Unknown values
// become CategoryOther.
func ParseCategory(s string) Category {
	c := Category(strings.ToLower(strings.TrimSpace(s)))
	if c.Valid() {
		return c
	}
	return CategoryOther
}

// Valid reports whether c belongs to the closed set.
func (c Category) Valid() bool {
	switch c {
	case CategoryWork, CategoryPersonal, CategoryTechnical, CategoryCreative, CategoryOther:
		return true
	}
	return false
}

// Thought is a single node of the mind graph.
type Thought struct {
	ID             string    `json:"id"`
	Content        string    `json:"content"`
	Role           string    `json:"role,omitempty"`
	Category       Category  `json:"category"`
	Importance     float64   `json:"importance"`
	Position       Position  `json:"position"`
	CreatedAt      time.Time `json:"created_at"`
	LastReferenced time.Time `json:"last_referenced"`
}

// Normalize clamps and defaults the fields a writer may have left out of
// range. It returns the corrected copy and whether anything changed.
func (t Thought) Normalize() (Thought, bool) {
	changed := false

	if imp := Clamp01(t.Importance); imp != t.Importance {
		t.Importance = imp
		changed = true
	}
	if c := ParseCategory(string(t.Category)); c != t.Category {
		t.Category = c
		changed = true
	}
	if !t.Position.IsFinite() {
		t.Position = t.Position.Sanitized()
		changed = true
	}
	if t.LastReferenced.IsZero() {
		t.LastReferenced = t.CreatedAt
	}

	return t, changed
}

// Connection is a directed edge between two thoughts.
type Connection struct {
	ID        string    `json:"id"`
	From      string    `json:"from"`
	To        string    `json:"to"`
	Strength  float64   `json:"strength"`
	Reason    string    `json:"reason,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Touches reports whether id is one of the connection's endpoints.
func (c Connection) Touches(id string) bool {
	return c.From == id || c.To == id
}

// Other returns the endpoint opposite to id.
func (c Connection) Other(id string) string {
	if c.From == id {
		return c.To
	}
	return c.From
}

// Normalize clamps strength into [0,1].
func (c Connection) Normalize() (Connection, bool) {
	s := Clamp01(c.Strength)
	if s == c.Strength {
		return c, false
	}
	c.Strength = s
	return c, true
}

// Cluster is a category group computed by the backing store.
type Cluster struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Category     Category  `json:"category"`
	Center       Position  `json:"center"`
	ThoughtCount int       `json:"thought_count"`
	CreatedAt    time.Time `json:"created_at"`
}

// ClusterName is the display name given to a category cluster.
func ClusterName(c Category) string {
	return string(c) + " cluster"
}

// MinClusterSize is the smallest category group that forms a cluster.
const MinClusterSize = 2

// Session records a summarized conversation.
type Session struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Summary   string    `json:"summary"`
	StartedAt time.Time `json:"started_at"`
	EndedAt   time.Time `json:"ended_at"`
}

// Clamp01 clamps v into [0,1]. NaN becomes 0.
func Clamp01(v float64) float64 {
	return Clamp(v, 0, 1)
}

// Clamp clamps v into [lo,hi]. NaN becomes lo.
func Clamp(v, lo, hi float64) float64 {
	if math.IsNaN(v) || v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
