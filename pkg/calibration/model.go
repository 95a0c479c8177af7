package calibration

import (
	"fmt"
	"math"
	"strings"

	"github.com/teslashibe/gazepoint/pkg/screen"
)

const (
	// ScaleCap bounds the per-axis gain when the operator's gaze barely
	// moved on one axis during calibration.
	ScaleCap = 40000.0

	// MinRange floors the observed offset range before dividing by it.
	MinRange = 0.01

	// RangeFill is the share of the screen the calibrated range spans, so
	// the corners stay reachable without looking past the anchors.
	RangeFill = 0.8
)

// Model maps raw gaze offsets to absolute screen coordinates. It is derived
// from a Set and holds no state beyond its parameters.
type Model struct {
	Screen screen.Size

	OriginDX float64 // Center record's mean dx
	OriginDY float64 // Center record's mean dy
	ScaleX   float64 // pixels per sensor unit
	ScaleY   float64

	InvertX bool // sensor dx grows opposite to screen x
	InvertY bool
}

// NewModel builds a Model from a complete calibration set: every anchor
// sealed with at least one sample.
func NewModel(set Set, size screen.Size) (*Model, error) {
	if err := size.Validate(); err != nil {
		return nil, err
	}
	center, ok := set[CenterName]
	if !ok {
		return nil, ErrMissingCenterAnchor
	}
	if missing := set.Missing(); len(missing) > 0 {
		return nil, fmt.Errorf("%w: missing %s", ErrCalibrationIncomplete, strings.Join(missing, ", "))
	}

	// Records outside the anchor table take no part in the mapping.
	minDX, maxDX := center.MeanDX, center.MeanDX
	minDY, maxDY := center.MeanDY, center.MeanDY
	for _, a := range anchors {
		rec := set[a.Name]
		if err := rec.validate(); err != nil {
			return nil, err
		}
		minDX, maxDX = math.Min(minDX, rec.MeanDX), math.Max(maxDX, rec.MeanDX)
		minDY, maxDY = math.Min(minDY, rec.MeanDY), math.Max(maxDY, rec.MeanDY)
	}
	dxRange := math.Max(maxDX-minDX, MinRange)
	dyRange := math.Max(maxDY-minDY, MinRange)

	return &Model{
		Screen:   size,
		OriginDX: center.MeanDX,
		OriginDY: center.MeanDY,
		ScaleX:   math.Min(float64(size.Width)/(dxRange*RangeFill), ScaleCap),
		ScaleY:   math.Min(float64(size.Height)/(dyRange*RangeFill), ScaleCap),
		InvertX:  true,
		InvertY:  false,
	}, nil
}

// Project maps a raw sample to a clamped screen point. The sample's Width
// is not used here.
func (m *Model) Project(s RawSample) screen.Point {
	c := m.Screen.Center()
	p := screen.Point{
		X: c.X + direction(m.InvertX)*(s.DX-m.OriginDX)*m.ScaleX,
		Y: c.Y + direction(m.InvertY)*(s.DY-m.OriginDY)*m.ScaleY,
	}
	return m.Screen.Clamp(p)
}

// String summarizes the model for logs.
func (m *Model) String() string {
	return fmt.Sprintf("origin=(%.4f, %.4f) scale=(%.1f, %.1f) screen=%dx%d",
		m.OriginDX, m.OriginDY, m.ScaleX, m.ScaleY, m.Screen.Width, m.Screen.Height)
}

func direction(invert bool) float64 {
	if invert {
		return -1
	}
	return 1
}
