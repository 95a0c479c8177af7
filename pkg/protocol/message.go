// Package protocol defines the WebSocket and MQTT message types exchanged
// between the gaze sensor, the pointer core and the presentation layer.
package protocol

import (
	"encoding/json"
	"fmt"
	"time"
)

// MessageType identifies the type of message
type MessageType string

const (
	// Sensor → Core messages
	TypeSample MessageType = "sample" // Raw gaze offset

	// Presentation → Core messages
	TypeTargets MessageType = "targets" // Replace the selectable regions

	// Core → Presentation messages
	TypeCursor      MessageType = "cursor"      // Smoothed pointer + dwell state
	TypeActivation  MessageType = "activation"  // Dwell selection fired
	TypeCalibration MessageType = "calibration" // Calibration step progress

	// Bidirectional
	TypePing MessageType = "ping" // Health check
	TypePong MessageType = "pong" // Health check response
)

// Message is the base wrapper for all messages
type Message struct {
	Type      MessageType     `json:"type"`
	Timestamp int64           `json:"ts,omitempty"` // Unix milliseconds
	Data      json.RawMessage `json:"data,omitempty"`
}

// NewMessage creates a new message with the current timestamp
func NewMessage(msgType MessageType, data interface{}) (*Message, error) {
	var rawData json.RawMessage
	if data != nil {
		var err error
		rawData, err = json.Marshal(data)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal message data: %w", err)
		}
	}

	return &Message{
		Type:      msgType,
		Timestamp: time.Now().UnixMilli(),
		Data:      rawData,
	}, nil
}

// ParseData unmarshals the message data into the provided struct
func (m *Message) ParseData(v interface{}) error {
	if m.Data == nil {
		return nil
	}
	return json.Unmarshal(m.Data, v)
}

// Bytes returns the JSON-encoded message
func (m *Message) Bytes() ([]byte, error) {
	return json.Marshal(m)
}

// ParseMessage parses a JSON message from bytes
func ParseMessage(data []byte) (*Message, error) {
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("failed to parse message: %w", err)
	}
	return &msg, nil
}

// =============================================================================
// Sensor → Core Message Types
// =============================================================================

// SampleData is one gaze-offset reading
type SampleData struct {
	DX    float64 `json:"dx"`
	DY    float64 `json:"dy"`
	Width float64 `json:"width"`
}

// =============================================================================
// Presentation → Core Message Types
// =============================================================================

// TargetData is one selectable region in absolute screen pixels
type TargetData struct {
	ID string  `json:"id"`
	X  float64 `json:"x"`
	Y  float64 `json:"y"`
	W  float64 `json:"w"`
	H  float64 `json:"h"`
}

// TargetsData replaces the full target list, highest priority first
type TargetsData struct {
	Targets []TargetData `json:"targets"`
}

// =============================================================================
// Core → Presentation Message Types
// =============================================================================

// CursorData is the pointer state after one tick
type CursorData struct {
	X       float64 `json:"x"`
	Y       float64 `json:"y"`
	RawX    float64 `json:"raw_x"`
	RawY    float64 `json:"raw_y"`
	PixelX  int     `json:"px"` // truncated position for OS pointer placement
	PixelY  int     `json:"py"`
	Phase   string  `json:"phase"`            // idle, hovering, fired
	Target  string  `json:"target,omitempty"` // hovered target ID
	Dwell   float64 `json:"dwell"`            // 0-1 progress toward activation
	Stale   bool    `json:"stale,omitempty"`  // no new sample this tick
	TickSeq uint64  `json:"tick"`
}

// ActivationData reports a dwell selection
type ActivationData struct {
	ID       string `json:"id"`
	TargetID string `json:"target_id"`
	At       int64  `json:"at"`       // Unix milliseconds
	DwellMs  int64  `json:"dwell_ms"` // how long the hover lasted
}

// CalibrationData reports calibration progress
type CalibrationData struct {
	Session    string `json:"session"`
	Anchor     string `json:"anchor,omitempty"`
	Trigger    string `json:"trigger,omitempty"`
	Step       int    `json:"step"`
	Total      int    `json:"total"`
	Collecting bool   `json:"collecting"`
	Frames     int    `json:"frames,omitempty"`
	Done       bool   `json:"done"`
}

// =============================================================================
// Bidirectional Message Types
// =============================================================================

// PingData contains ping information
type PingData struct {
	ID        string `json:"id"`
	Timestamp int64  `json:"ts"`
}

// PongData contains pong response
type PongData struct {
	ID        string `json:"id"`
	PingTS    int64  `json:"ping_ts"`
	PongTS    int64  `json:"pong_ts"`
	LatencyMs int64  `json:"latency_ms"`
}
