// Package screen holds the pixel-space geometry shared by calibration,
// cursor mapping, dwell selection and evaluation.
package screen

import (
	"errors"
	"fmt"
	"math"
)

// ErrInvalidSize is returned when a screen has a non-positive dimension.
var ErrInvalidSize = errors.New("screen: width and height must be positive")

// Size is the display size in pixels.
type Size struct {
	Width  int `json:"width" mapstructure:"width"`
	Height int `json:"height" mapstructure:"height"`
}

// Validate reports whether both dimensions are usable.
func (s Size) Validate() error {
	if s.Width <= 0 || s.Height <= 0 {
		return fmt.Errorf("%w: got %dx%d", ErrInvalidSize, s.Width, s.Height)
	}
	return nil
}

// Center returns the geometric center of the screen.
func (s Size) Center() Point {
	return Point{X: float64(s.Width) / 2, Y: float64(s.Height) / 2}
}

// Clamp limits p to the addressable pixel range [0, W-1] x [0, H-1].
func (s Size) Clamp(p Point) Point {
	return Point{
		X: clamp(p.X, 0, float64(s.Width-1)),
		Y: clamp(p.Y, 0, float64(s.Height-1)),
	}
}

// At converts a normalized position in [0,1]² to pixels.
func (s Size) At(xFrac, yFrac float64) Point {
	return Point{X: xFrac * float64(s.Width), Y: yFrac * float64(s.Height)}
}

// Point is a position in screen pixels.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Distance returns the Euclidean distance between p and q.
func (p Point) Distance(q Point) float64 {
	return math.Hypot(p.X-q.X, p.Y-q.Y)
}

// Pixel truncates to integer pixel coordinates, the way an OS pointer
// would be positioned.
func (p Point) Pixel() (int, int) {
	return int(p.X), int(p.Y)
}

// Rect is an axis-aligned rectangle in absolute screen pixels.
type Rect struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	W float64 `json:"w"`
	H float64 `json:"h"`
}

// Contains reports whether p lies inside the rectangle. The right and
// bottom edges are exclusive so adjacent rects never both match.
func (r Rect) Contains(p Point) bool {
	return p.X >= r.X && p.X < r.X+r.W &&
		p.Y >= r.Y && p.Y < r.Y+r.H
}

// clamp limits a value to a range
func clamp(value, min, max float64) float64 {
	if value < min {
		return min
	}
	if value > max {
		return max
	}
	return value
}
