// Package cursor turns live gaze samples into a smoothed pointer position.
package cursor

import (
	"github.com/teslashibe/gazepoint/pkg/calibration"
	"github.com/teslashibe/gazepoint/pkg/screen"
)

// DefaultAlpha is the exponential smoothing factor: the share of the
// distance to the new target covered each tick.
const DefaultAlpha = 0.2

// Projector maps a raw sample to screen pixels. *calibration.Model
// satisfies it.
type Projector interface {
	Project(s calibration.RawSample) screen.Point
}

// State is the live pointer position and the position one tick earlier.
type State struct {
	Position screen.Point `json:"position"`
	Previous screen.Point `json:"previous"`
	Target   screen.Point `json:"target"` // unsmoothed projection of the last sample
}

// Engine applies the calibration mapping and first-order smoothing once
// per tick. It is owned by a single polling loop and is not safe for
// concurrent use.
type Engine struct {
	projector Projector
	alpha     float64
	state     State
	seeded    bool
}

// NewEngine creates an engine starting at start. Alpha outside (0, 1] falls
// back to DefaultAlpha.
func NewEngine(p Projector, alpha float64, start screen.Point) *Engine {
	if alpha <= 0 || alpha > 1 {
		alpha = DefaultAlpha
	}
	return &Engine{
		projector: p,
		alpha:     alpha,
		state:     State{Position: start, Previous: start, Target: start},
	}
}

// Tick advances the cursor. When fresh is false no new sample has arrived
// since the last tick and the position is held as-is.
func (e *Engine) Tick(s calibration.RawSample, fresh bool) State {
	if !fresh {
		e.state.Previous = e.state.Position
		return e.state
	}

	target := e.projector.Project(s)
	prev := e.state.Position
	e.state = State{
		Position: screen.Point{
			X: prev.X + e.alpha*(target.X-prev.X),
			Y: prev.Y + e.alpha*(target.Y-prev.Y),
		},
		Previous: prev,
		Target:   target,
	}
	e.seeded = true
	return e.state
}

// State returns the current cursor state.
func (e *Engine) State() State {
	return e.state
}

// Seeded reports whether a sample has moved the cursor since the current
// projector was installed.
func (e *Engine) Seeded() bool {
	return e.seeded
}

// Alpha returns the smoothing factor in use.
func (e *Engine) Alpha() float64 {
	return e.alpha
}

// SetProjector swaps the mapping, e.g. after recalibration, keeping the
// cursor where it is until the next sample.
func (e *Engine) SetProjector(p Projector) {
	e.projector = p
	e.seeded = false
}

// Reset moves the cursor to p without smoothing.
func (e *Engine) Reset(p screen.Point) {
	e.state = State{Position: p, Previous: p, Target: p}
	e.seeded = false
}
