// Package calibration turns per-anchor gaze fixations into a mapping from
// raw gaze offsets to absolute screen coordinates.
package calibration

import "github.com/teslashibe/gazepoint/pkg/screen"

// AnchorID identifies one of the nine fixed calibration targets.
type AnchorID int

// The anchors in calibration order: row by row, left to right.
const (
	TopLeft AnchorID = iota
	Top
	TopRight
	FarLeft
	Center
	FarRight
	BottomLeft
	Bottom
	BottomRight

	// NumAnchors is the size of the anchor grid.
	NumAnchors = 9
)

// CenterName is the record name the mapping origin is taken from.
const CenterName = "Center"

// Anchor is a fixed calibration target shown on screen during setup.
type Anchor struct {
	ID      AnchorID `json:"-"`
	Name    string   `json:"name"`
	XFrac   float64  `json:"x_frac"`
	YFrac   float64  `json:"y_frac"`
	Trigger Trigger  `json:"trigger"`
}

// Trigger is the key an operator presses to calibrate an anchor.
type Trigger rune

// MarshalText encodes the trigger as its character.
func (t Trigger) MarshalText() ([]byte, error) {
	return []byte(string(t)), nil
}

var anchors = [NumAnchors]Anchor{
	{TopLeft, "Top-Left", 0.0, 0.0, 'q'},
	{Top, "Top", 0.5, 0.0, 'w'},
	{TopRight, "Top-Right", 1.0, 0.0, 'e'},
	{FarLeft, "Far-Left", 0.0, 0.5, 'a'},
	{Center, CenterName, 0.5, 0.5, 'c'},
	{FarRight, "Far-Right", 1.0, 0.5, 'd'},
	{BottomLeft, "Bottom-Left", 0.0, 1.0, 'z'},
	{Bottom, "Bottom", 0.5, 1.0, 's'},
	{BottomRight, "Bottom-Right", 1.0, 1.0, 'x'},
}

// Anchor returns the table entry for id.
func (id AnchorID) Anchor() Anchor {
	return anchors[id]
}

// String returns the anchor's display name.
func (id AnchorID) String() string {
	if id < 0 || id >= NumAnchors {
		return "Unknown"
	}
	return anchors[id].Name
}

// Anchors returns all anchors in calibration order.
func Anchors() []Anchor {
	out := make([]Anchor, NumAnchors)
	copy(out, anchors[:])
	return out
}

// AnchorByName looks up an anchor by its record name.
func AnchorByName(name string) (Anchor, bool) {
	for _, a := range anchors {
		if a.Name == name {
			return a, true
		}
	}
	return Anchor{}, false
}

// AnchorByTrigger looks up an anchor by its trigger symbol.
func AnchorByTrigger(r rune) (Anchor, bool) {
	for _, a := range anchors {
		if a.Trigger == Trigger(r) {
			return a, true
		}
	}
	return Anchor{}, false
}

// Position returns the anchor's ground-truth location on a screen.
func (a Anchor) Position(size screen.Size) screen.Point {
	return size.At(a.XFrac, a.YFrac)
}
