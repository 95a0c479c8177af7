// Package dwell decides when a sustained hover over a target counts as a
// selection.
package dwell

import (
	"time"

	"github.com/google/uuid"

	"github.com/teslashibe/gazepoint/pkg/screen"
)

// DefaultThreshold is how long the cursor must stay on one target to
// activate it.
const DefaultThreshold = 2000 * time.Millisecond

// Target is a selectable region supplied by the presentation layer.
type Target struct {
	ID   string      `json:"id"`
	Rect screen.Rect `json:"rect"`
}

// Phase is the machine's state.
type Phase int

const (
	// Idle means no target is hovered.
	Idle Phase = iota
	// Hovering means a target is hovered and its dwell timer is running.
	Hovering
	// Fired means the hovered target already activated; the cursor must
	// leave it before it can activate again.
	Fired
)

// String returns the phase name.
func (p Phase) String() string {
	switch p {
	case Hovering:
		return "hovering"
	case Fired:
		return "fired"
	default:
		return "idle"
	}
}

// MarshalText encodes the phase by name.
func (p Phase) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

// State is the current dwell state.
type State struct {
	Phase  Phase     `json:"phase"`
	Target string    `json:"target,omitempty"`
	Since  time.Time `json:"since,omitempty"`
}

// Activation is emitted once per uninterrupted dwell.
type Activation struct {
	ID       string        `json:"id"`
	TargetID string        `json:"target_id"`
	At       time.Time     `json:"at"`
	Dwell    time.Duration `json:"dwell"`
}

// Machine is the dwell selection state machine. It is deterministic given
// the cursor, targets and clock passed to Step, and is owned by a single
// polling loop.
type Machine struct {
	threshold time.Duration
	state     State
}

// New creates a machine. A non-positive threshold falls back to
// DefaultThreshold.
func New(threshold time.Duration) *Machine {
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	return &Machine{threshold: threshold}
}

// Threshold returns the dwell time required to activate.
func (m *Machine) Threshold() time.Duration {
	return m.threshold
}

// State returns the current state.
func (m *Machine) State() State {
	return m.state
}

// Progress returns how far the current hover is toward activation, in
// [0, 1].
func (m *Machine) Progress(now time.Time) float64 {
	if m.state.Phase != Hovering {
		return 0
	}
	p := float64(now.Sub(m.state.Since)) / float64(m.threshold)
	if p < 0 {
		return 0
	}
	if p > 1 {
		return 1
	}
	return p
}

// Step advances the machine by one tick. Targets are checked in order and
// the first containing the cursor wins; callers order them by priority.
func (m *Machine) Step(cursor screen.Point, targets []Target, now time.Time) (Activation, bool) {
	hit, ok := hitTest(cursor, targets)
	if !ok {
		m.state = State{Phase: Idle}
		return Activation{}, false
	}

	if m.state.Phase == Idle || m.state.Target != hit.ID {
		m.state = State{Phase: Hovering, Target: hit.ID, Since: now}
		return Activation{}, false
	}

	if m.state.Phase == Hovering {
		if elapsed := now.Sub(m.state.Since); elapsed >= m.threshold {
			m.state = State{Phase: Fired, Target: hit.ID}
			return Activation{
				ID:       uuid.New().String(),
				TargetID: hit.ID,
				At:       now,
				Dwell:    elapsed,
			}, true
		}
	}
	return Activation{}, false
}

// Reset returns the machine to Idle, e.g. when the screen changes.
func (m *Machine) Reset() {
	m.state = State{Phase: Idle}
}

func hitTest(p screen.Point, targets []Target) (Target, bool) {
	for _, t := range targets {
		if t.Rect.Contains(p) {
			return t, true
		}
	}
	return Target{}, false
}
