package domain

import (
	"math"
	"math/rand/v2"

	"gonum.org/v1/gonum/spatial/r3"

	pkgerrors "github.com/420247jake/the-mind/pkg/errors"
)

// Position is a point in the 3-D scene space.
type Position struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// NewPosition creates a position with validation
func NewPosition(x, y, z float64) (Position, error) {
	if !isValidCoordinate(x) || !isValidCoordinate(y) || !isValidCoordinate(z) {
		return Position{}, pkgerrors.NewValidationError("invalid coordinates: must be finite numbers")
	}
	return Position{X: x, Y: y, Z: z}, nil
}

// FromVec converts a gonum vector into a Position.
func FromVec(v r3.Vec) Position {
	return Position{X: v.X, Y: v.Y, Z: v.Z}
}

// Vec returns the position as a gonum vector.
func (p Position) Vec() r3.Vec {
	return r3.Vec{X: p.X, Y: p.Y, Z: p.Z}
}

// DistanceTo calculates the Euclidean distance to another position
func (p Position) DistanceTo(other Position) float64 {
	return r3.Norm(r3.Sub(p.Vec(), other.Vec()))
}

// DistanceSquaredTo avoids the square root for radius comparisons.
func (p Position) DistanceSquaredTo(other Position) float64 {
	return r3.Norm2(r3.Sub(p.Vec(), other.Vec()))
}

// Equals checks if two positions are equal
func (p Position) Equals(other Position) bool {
	const epsilon = 1e-9
	return math.Abs(p.X-other.X) < epsilon &&
		math.Abs(p.Y-other.Y) < epsilon &&
		math.Abs(p.Z-other.Z) < epsilon
}

// IsFinite reports whether every coordinate is a finite number.
func (p Position) IsFinite() bool {
	return isValidCoordinate(p.X) && isValidCoordinate(p.Y) && isValidCoordinate(p.Z)
}

// Sanitized replaces NaN and infinite coordinates with 0.
func (p Position) Sanitized() Position {
	fix := func(v float64) float64 {
		if isValidCoordinate(v) {
			return v
		}
		return 0
	}
	return Position{X: fix(p.X), Y: fix(p.Y), Z: fix(p.Z)}
}

// Centroid returns the mean of the given positions, or the origin when empty.
func Centroid(points []Position) Position {
	if len(points) == 0 {
		return Position{}
	}
	var sum r3.Vec
	for _, p := range points {
		sum = r3.Add(sum, p.Vec())
	}
	return FromVec(r3.Scale(1/float64(len(points)), sum))
}

// RandomShellPosition picks a point at a random direction and a distance in
// [minRadius, maxRadius) from the origin. New thoughts are placed this way.
func RandomShellPosition(rng *rand.Rand, minRadius, maxRadius float64) Position {
	radius := minRadius + rng.Float64()*(maxRadius-minRadius)
	theta := rng.Float64() * 2 * math.Pi
	phi := rng.Float64() * math.Pi

	return Position{
		X: radius * math.Sin(phi) * math.Cos(theta),
		Y: radius * math.Sin(phi) * math.Sin(theta),
		Z: radius * math.Cos(phi),
	}
}

// isValidCoordinate checks if a coordinate is a valid finite number
func isValidCoordinate(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
