package sensor

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"github.com/teslashibe/gazepoint/pkg/calibration"
)

// Mock is a synthetic sensor that emits samples jittered around a gaze
// point. It stands in for hardware during development and tests.
type Mock struct {
	*Slot

	mu     sync.Mutex
	gaze   calibration.RawSample
	jitter float64
	rng    *rand.Rand
}

// NewMock creates a mock sensor looking at gaze with uniform jitter of
// +/- jitter on both axes.
func NewMock(gaze calibration.RawSample, jitter float64, seed int64) *Mock {
	return &Mock{
		Slot:   NewSlot(),
		gaze:   gaze,
		jitter: jitter,
		rng:    rand.New(rand.NewSource(seed)),
	}
}

// LookAt moves the simulated gaze.
func (m *Mock) LookAt(gaze calibration.RawSample) {
	m.mu.Lock()
	m.gaze = gaze
	m.mu.Unlock()
}

// Emit publishes one jittered sample.
func (m *Mock) Emit() Reading {
	m.mu.Lock()
	s := m.gaze
	if m.jitter > 0 {
		s.DX += (m.rng.Float64()*2 - 1) * m.jitter
		s.DY += (m.rng.Float64()*2 - 1) * m.jitter
	}
	m.mu.Unlock()
	return m.Publish(s)
}

// Run emits a sample every interval until ctx is done.
func (m *Mock) Run(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			m.Emit()
		}
	}
}

// MockGaze is the sample the mock reports while looking at a: offsets grow
// linearly from the center, with x mirrored like a front-facing camera.
func MockGaze(a calibration.Anchor) calibration.RawSample {
	return calibration.RawSample{
		DX:    (0.5 - a.XFrac) * 0.2,
		DY:    (a.YFrac - 0.5) * 0.2,
		Width: 50,
	}
}
