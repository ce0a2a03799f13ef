// Package fixtures provides builders for test graph data.
package fixtures

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/420247jake/the-mind/internal/domain"
)

// Epoch is the default creation time of built entities.
var Epoch = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

// ThoughtBuilder helps create test thoughts with default values
type ThoughtBuilder struct {
	t domain.Thought
}

func NewThoughtBuilder() *ThoughtBuilder {
	return &ThoughtBuilder{t: domain.Thought{
		ID:             uuid.NewString(),
		Content:        "Test thought",
		Role:           "assistant",
		Category:       domain.CategoryTechnical,
		Importance:     0.5,
		CreatedAt:      Epoch,
		LastReferenced: Epoch,
	}}
}

func (b *ThoughtBuilder) WithID(id string) *ThoughtBuilder {
	b.t.ID = id
	return b
}

func (b *ThoughtBuilder) WithContent(content string) *ThoughtBuilder {
	b.t.Content = content
	return b
}

func (b *ThoughtBuilder) WithCategory(c domain.Category) *ThoughtBuilder {
	b.t.Category = c
	return b
}

func (b *ThoughtBuilder) WithImportance(v float64) *ThoughtBuilder {
	b.t.Importance = v
	return b
}

func (b *ThoughtBuilder) WithPosition(x, y, z float64) *ThoughtBuilder {
	b.t.Position = domain.Position{X: x, Y: y, Z: z}
	return b
}

// CreatedAt sets both creation and last reference time.
func (b *ThoughtBuilder) CreatedAt(at time.Time) *ThoughtBuilder {
	b.t.CreatedAt = at
	b.t.LastReferenced = at
	return b
}

func (b *ThoughtBuilder) Build() domain.Thought {
	return b.t
}

// ConnectionBuilder helps create test connections with default values
type ConnectionBuilder struct {
	c domain.Connection
}

func NewConnectionBuilder(from, to string) *ConnectionBuilder {
	return &ConnectionBuilder{c: domain.Connection{
		ID:        uuid.NewString(),
		From:      from,
		To:        to,
		Strength:  0.5,
		Reason:    "test",
		CreatedAt: Epoch,
	}}
}

func (b *ConnectionBuilder) WithID(id string) *ConnectionBuilder {
	b.c.ID = id
	return b
}

func (b *ConnectionBuilder) WithStrength(s float64) *ConnectionBuilder {
	b.c.Strength = s
	return b
}

func (b *ConnectionBuilder) CreatedAt(at time.Time) *ConnectionBuilder {
	b.c.CreatedAt = at
	return b
}

func (b *ConnectionBuilder) Build() domain.Connection {
	return b.c
}

// Grid returns n thoughts with ids "t0".."t{n-1}" laid out on a line along
// the X axis, spacing units apart, created one second apart.
func Grid(n int, spacing float64) []domain.Thought {
	out := make([]domain.Thought, n)
	for i := 0; i < n; i++ {
		out[i] = NewThoughtBuilder().
			WithID(fmt.Sprintf("t%d", i)).
			WithContent(fmt.Sprintf("thought number %d", i)).
			WithPosition(float64(i)*spacing, 0, 0).
			CreatedAt(Epoch.Add(time.Duration(i) * time.Second)).
			Build()
	}
	return out
}
