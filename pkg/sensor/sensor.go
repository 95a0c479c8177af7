// Package sensor adapts gaze sensors to a non-blocking latest-value source
// that the pointer loop polls once per tick.
package sensor

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/teslashibe/gazepoint/pkg/calibration"
	"github.com/teslashibe/gazepoint/pkg/protocol"
)

var (
	// ErrSensorUnavailable reports that no sample has arrived recently.
	ErrSensorUnavailable = errors.New("sensor: no sample available")
	// ErrInvalidSample is returned for payloads that do not carry a sample.
	ErrInvalidSample = errors.New("sensor: invalid sample")
)

// Reading is one sample as seen by a consumer. Seq increases by one per
// published sample, so a consumer can tell a fresh reading from a repeat.
type Reading struct {
	Sample calibration.RawSample
	Seq    uint64
	At     time.Time
}

// Source yields the most recent reading without blocking. Calling Latest
// twice with no new sample in between returns the same reading.
type Source interface {
	Latest() (Reading, bool)
}

// Slot is a mutex-guarded single-value slot. Producers Publish into it
// from their own goroutines; the pointer loop reads it.
type Slot struct {
	mu  sync.RWMutex
	cur Reading
	ok  bool
	now func() time.Time
}

// NewSlot creates an empty slot.
func NewSlot() *Slot {
	return &Slot{now: time.Now}
}

// Publish stores s as the newest reading and returns it.
func (l *Slot) Publish(s calibration.RawSample) Reading {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.cur = Reading{Sample: s, Seq: l.cur.Seq + 1, At: l.now()}
	l.ok = true
	return l.cur
}

// Latest returns the newest reading, or false if nothing was published.
func (l *Slot) Latest() (Reading, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.cur, l.ok
}

// DecodeSample parses a sensor payload. Both a protocol envelope of type
// "sample" and a bare {"dx","dy","width"} object are accepted.
func DecodeSample(payload []byte) (calibration.RawSample, error) {
	msg, err := protocol.ParseMessage(payload)
	if err != nil {
		return calibration.RawSample{}, fmt.Errorf("%w: %v", ErrInvalidSample, err)
	}

	var data protocol.SampleData
	switch msg.Type {
	case protocol.TypeSample:
		d, err := msg.GetSampleData()
		if err != nil {
			return calibration.RawSample{}, fmt.Errorf("%w: %v", ErrInvalidSample, err)
		}
		data = *d
	case "":
		if err := json.Unmarshal(payload, &data); err != nil {
			return calibration.RawSample{}, fmt.Errorf("%w: %v", ErrInvalidSample, err)
		}
	default:
		return calibration.RawSample{}, fmt.Errorf("%w: unexpected message type %q", ErrInvalidSample, msg.Type)
	}

	return data.RawSample(), nil
}
