package protocol

import (
	"fmt"
	"time"

	"github.com/teslashibe/gazepoint/pkg/calibration"
	"github.com/teslashibe/gazepoint/pkg/dwell"
	"github.com/teslashibe/gazepoint/pkg/screen"
)

// =============================================================================
// Helper functions for creating messages
// =============================================================================

// NewSampleMessage creates a sample message
func NewSampleMessage(s calibration.RawSample) (*Message, error) {
	return NewMessage(TypeSample, SampleData{DX: s.DX, DY: s.DY, Width: s.Width})
}

// NewTargetsMessage creates a targets message
func NewTargetsMessage(targets []dwell.Target) (*Message, error) {
	data := TargetsData{Targets: make([]TargetData, 0, len(targets))}
	for _, t := range targets {
		data.Targets = append(data.Targets, TargetData{
			ID: t.ID, X: t.Rect.X, Y: t.Rect.Y, W: t.Rect.W, H: t.Rect.H,
		})
	}
	return NewMessage(TypeTargets, data)
}

// NewActivationMessage creates an activation message
func NewActivationMessage(a dwell.Activation) (*Message, error) {
	return NewMessage(TypeActivation, ActivationData{
		ID:       a.ID,
		TargetID: a.TargetID,
		At:       a.At.UnixMilli(),
		DwellMs:  a.Dwell.Milliseconds(),
	})
}

// NewCursorMessage creates a cursor message
func NewCursorMessage(c CursorData) (*Message, error) {
	return NewMessage(TypeCursor, c)
}

// NewCalibrationMessage creates a calibration progress message
func NewCalibrationMessage(c CalibrationData) (*Message, error) {
	return NewMessage(TypeCalibration, c)
}

// NewPingMessage creates a ping message
func NewPingMessage(id string) (*Message, error) {
	return NewMessage(TypePing, PingData{ID: id, Timestamp: time.Now().UnixMilli()})
}

// NewPongMessage creates a pong message in response to a ping
func NewPongMessage(ping PingData) (*Message, error) {
	now := time.Now().UnixMilli()
	return NewMessage(TypePong, PongData{
		ID:        ping.ID,
		PingTS:    ping.Timestamp,
		PongTS:    now,
		LatencyMs: now - ping.Timestamp,
	})
}

// =============================================================================
// Helper functions for extracting data
// =============================================================================

// GetSampleData extracts sample data from a message
func (m *Message) GetSampleData() (*SampleData, error) {
	if m.Type != TypeSample {
		return nil, fmt.Errorf("message type is %s, not %s", m.Type, TypeSample)
	}
	var data SampleData
	if err := m.ParseData(&data); err != nil {
		return nil, err
	}
	return &data, nil
}

// GetTargetsData extracts targets data from a message
func (m *Message) GetTargetsData() (*TargetsData, error) {
	if m.Type != TypeTargets {
		return nil, fmt.Errorf("message type is %s, not %s", m.Type, TypeTargets)
	}
	var data TargetsData
	if err := m.ParseData(&data); err != nil {
		return nil, err
	}
	return &data, nil
}

// GetActivationData extracts activation data from a message
func (m *Message) GetActivationData() (*ActivationData, error) {
	if m.Type != TypeActivation {
		return nil, fmt.Errorf("message type is %s, not %s", m.Type, TypeActivation)
	}
	var data ActivationData
	if err := m.ParseData(&data); err != nil {
		return nil, err
	}
	return &data, nil
}

// GetPingData extracts ping data from a message
func (m *Message) GetPingData() (*PingData, error) {
	if m.Type != TypePing {
		return nil, fmt.Errorf("message type is %s, not %s", m.Type, TypePing)
	}
	var data PingData
	if err := m.ParseData(&data); err != nil {
		return nil, err
	}
	return &data, nil
}

// RawSample converts wire data to a calibration sample
func (d SampleData) RawSample() calibration.RawSample {
	return calibration.RawSample{DX: d.DX, DY: d.DY, Width: d.Width}
}

// DwellTargets converts wire data to dwell targets, preserving order
func (d TargetsData) DwellTargets() []dwell.Target {
	out := make([]dwell.Target, 0, len(d.Targets))
	for _, t := range d.Targets {
		out = append(out, dwell.Target{
			ID:   t.ID,
			Rect: screen.Rect{X: t.X, Y: t.Y, W: t.W, H: t.H},
		})
	}
	return out
}
