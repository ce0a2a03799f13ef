package domain

import (
	"math"
	"math/rand/v2"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewPosition(t *testing.T) {
	tests := []struct {
		name    string
		x, y, z float64
		wantErr bool
	}{
		{name: "origin", x: 0, y: 0, z: 0},
		{name: "negative", x: -100.5, y: -200.75, z: -50.25},
		{name: "NaN x", x: math.NaN(), wantErr: true},
		{name: "Inf z", z: math.Inf(-1), wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := NewPosition(tt.x, tt.y, tt.z)
			if tt.wantErr {
				require.Error(t, err)
				assert.Contains(t, err.Error(), "invalid coordinates")
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.x, p.X)
		})
	}
}

func TestPositionDistance(t *testing.T) {
	a := Position{X: 0, Y: 0, Z: 0}
	b := Position{X: 3, Y: 4, Z: 12}

	assert.InDelta(t, 13.0, a.DistanceTo(b), 1e-9)
	assert.InDelta(t, 169.0, a.DistanceSquaredTo(b), 1e-9)
	assert.True(t, b.Equals(Position{X: 3, Y: 4, Z: 12}))
}

func TestCentroid(t *testing.T) {
	c := Centroid([]Position{{X: 0, Y: 0, Z: 0}, {X: 2, Y: 4, Z: -6}})
	assert.True(t, c.Equals(Position{X: 1, Y: 2, Z: -3}))
	assert.Equal(t, Position{}, Centroid(nil))
}

func TestRandomShellPositionWithinShell(t *testing.T) {
	rng := rand.New(rand.NewPCG(7, 11))
	for i := 0; i < 200; i++ {
		d := RandomShellPosition(rng, 10, 40).DistanceTo(Position{})
		assert.GreaterOrEqual(t, d, 10.0-1e-9)
		assert.Less(t, d, 40.0)
	}
}

func TestThoughtNormalize(t *testing.T) {
	created := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	raw := Thought{
		ID:         "t1",
		Category:   "dreams",
		Importance: 1.7,
		Position:   Position{X: math.NaN(), Y: 2, Z: math.Inf(1)},
		CreatedAt:  created,
	}

	got, changed := raw.Normalize()

	assert.True(t, changed)
	assert.Equal(t, CategoryOther, got.Category)
	assert.Equal(t, 1.0, got.Importance)
	assert.Equal(t, Position{X: 0, Y: 2, Z: 0}, got.Position)
	assert.Equal(t, created, got.LastReferenced)

	mixed, changed := Thought{ID: "t3", Category: "Technical", CreatedAt: created, LastReferenced: created}.Normalize()
	assert.True(t, changed)
	assert.Equal(t, CategoryTechnical, mixed.Category)

	clean := Thought{ID: "t2", Category: CategoryWork, Importance: 0.4, CreatedAt: created, LastReferenced: created}
	_, changed = clean.Normalize()
	assert.False(t, changed)
}

func TestConnectionHelpers(t *testing.T) {
	c := Connection{ID: "c1", From: "a", To: "b", Strength: -0.2}

	assert.True(t, c.Touches("a"))
	assert.False(t, c.Touches("z"))
	assert.Equal(t, "b", c.Other("a"))
	assert.Equal(t, "a", c.Other("b"))

	n, changed := c.Normalize()
	assert.True(t, changed)
	assert.Equal(t, 0.0, n.Strength)
}

func TestParseCategory(t *testing.T) {
	assert.Equal(t, CategoryTechnical, ParseCategory(" Technical "))
	assert.Equal(t, CategoryOther, ParseCategory("misc"))
	assert.Equal(t, "creative cluster", ClusterName(CategoryCreative))
}

func TestVersionTokenNewerThan(t *testing.T) {
	tests := []struct {
		name string
		cur  VersionToken
		prev VersionToken
		want bool
	}{
		{name: "equal", cur: VersionToken{5, 3}, prev: VersionToken{5, 3}, want: false},
		{name: "thought grew", cur: VersionToken{6, 3}, prev: VersionToken{5, 3}, want: true},
		{name: "connection grew", cur: VersionToken{5, 4}, prev: VersionToken{5, 3}, want: true},
		{name: "both grew", cur: VersionToken{9, 9}, prev: VersionToken{5, 3}, want: true},
		{name: "older token", cur: VersionToken{4, 3}, prev: VersionToken{5, 3}, want: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.cur.NewerThan(tt.prev))
		})
	}
}

func TestExtractKeywords(t *testing.T) {
	got := ExtractKeywords("The graph of a mind: graph nodes, GRAPH edges and 3D rendering!")
	assert.Equal(t, []string{"graph", "mind", "nodes", "edges", "rendering"}, got)
	assert.Empty(t, ExtractKeywords("it is an ox"))
}

func TestSharedKeywords(t *testing.T) {
	a := ExtractKeywords("rust sqlite database migration")
	b := ExtractKeywords("sqlite database backup")
	assert.Equal(t, 2, SharedKeywords(a, b))
	assert.Equal(t, 0, SharedKeywords(a, nil))
}
