// Package pointer runs the gaze pointer: each tick maps the latest sensor
// sample through the calibration model, smooths it, and feeds the dwell
// machine.
package pointer

import (
	"time"

	"github.com/teslashibe/gazepoint/pkg/calibration"
	"github.com/teslashibe/gazepoint/pkg/cursor"
	"github.com/teslashibe/gazepoint/pkg/dwell"
	"github.com/teslashibe/gazepoint/pkg/screen"
)

// TickInput is everything one tick depends on.
type TickInput struct {
	Sample  calibration.RawSample
	Fresh   bool // a new sample arrived since the previous tick
	Lost    bool // the sensor is unavailable; hold the cursor and select nothing
	Targets []dwell.Target
	Now     time.Time
}

// TickResult is the pointer state after one tick.
type TickResult struct {
	Sample     calibration.RawSample
	Cursor     cursor.State
	Dwell      dwell.State
	Progress   float64
	Activation *dwell.Activation
	Fresh      bool
	Armed      bool // dwell selection was live on this tick
	Seq        uint64
}

// Pipeline is the deterministic core of the pointer loop. Given the same
// inputs it produces the same cursor and dwell sequence; activation IDs
// are the only exception.
type Pipeline struct {
	engine  *cursor.Engine
	machine *dwell.Machine
	seq     uint64

	calibrated bool // a real model is installed
}

// NewPipeline creates a pipeline with the cursor at the screen center.
func NewPipeline(p cursor.Projector, size screen.Size, cfg Config) *Pipeline {
	return &Pipeline{
		engine:     cursor.NewEngine(p, cfg.SmoothingAlpha, size.Center()),
		machine:    dwell.New(cfg.DwellThreshold),
		calibrated: isCalibrated(p),
	}
}

// Tick runs one step. It never blocks and never fails.
//
// Dwell selection only runs while a calibration model is installed, a
// fresh sample has placed the cursor since then, and the sensor is not
// lost. Otherwise the machine is held Idle.
func (p *Pipeline) Tick(in TickInput) TickResult {
	p.seq++
	fresh := in.Fresh && !in.Lost
	cur := p.engine.Tick(in.Sample, fresh)

	armed := p.Armed() && !in.Lost
	res := TickResult{Sample: in.Sample, Cursor: cur, Fresh: fresh, Armed: armed, Seq: p.seq}
	if !armed {
		p.machine.Reset()
	} else if a, ok := p.machine.Step(cur.Position, in.Targets, in.Now); ok {
		res.Activation = &a
	}
	res.Dwell = p.machine.State()
	res.Progress = p.machine.Progress(in.Now)
	return res
}

// SetProjector swaps the calibration model and drops any dwell in
// progress.
func (p *Pipeline) SetProjector(proj cursor.Projector) {
	p.engine.SetProjector(proj)
	p.machine.Reset()
	p.calibrated = isCalibrated(proj)
}

// Armed reports whether the next tick may select targets, given fresh
// samples keep arriving.
func (p *Pipeline) Armed() bool {
	return p.calibrated && p.engine.Seeded()
}

// Cursor returns the current cursor state.
func (p *Pipeline) Cursor() cursor.State {
	return p.engine.State()
}

// Uncalibrated is a placeholder projector that pins the cursor to the
// screen center until a calibration model is installed.
type Uncalibrated struct {
	Screen screen.Size
}

// Project returns the screen center.
func (u Uncalibrated) Project(calibration.RawSample) screen.Point {
	return u.Screen.Center()
}

func isCalibrated(p cursor.Projector) bool {
	switch p.(type) {
	case nil, Uncalibrated, *Uncalibrated:
		return false
	}
	return true
}
