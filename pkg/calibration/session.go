package calibration

import (
	"fmt"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Session walks an operator through the nine anchors in order. Each step
// is opened by the anchor's trigger, fed samples while the operator holds
// the fixation, then finished.
//
// Session is safe for concurrent use: the web layer calls it from request
// handlers while the sensor pushes samples.
type Session struct {
	ID string

	mu        sync.Mutex
	collector *Collector
	step      int
	logger    *zap.Logger
}

// NewSession starts a calibration at the first anchor.
func NewSession(logger *zap.Logger) *Session {
	if logger == nil {
		logger = zap.NewNop()
	}
	id := uuid.New().String()
	return &Session{
		ID:        id,
		collector: NewCollector(),
		logger:    logger.With(zap.String("session", id)),
	}
}

// Current returns the anchor awaiting calibration. ok is false once every
// anchor has been sealed.
func (s *Session) Current() (Anchor, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.currentLocked()
}

func (s *Session) currentLocked() (Anchor, bool) {
	if s.step >= NumAnchors {
		return Anchor{}, false
	}
	return anchors[s.step], true
}

// Progress returns the 1-based step being calibrated and the total. Once
// done, step equals total.
func (s *Session) Progress() (int, int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return min(s.step+1, NumAnchors), NumAnchors
}

// Done reports whether every anchor has been sealed.
func (s *Session) Done() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.step >= NumAnchors
}

// Collecting reports whether an anchor is open and accepting samples.
func (s *Session) Collecting() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.collector.Active()
	return ok
}

// Trigger opens the current anchor if key is its trigger. Keys outside the
// anchor table fail with ErrUnknownAnchor; another anchor's key fails with
// ErrUnexpectedTrigger. Triggering the open anchor again restarts its
// collection.
func (s *Session) Trigger(key rune) (Anchor, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	want, ok := s.currentLocked()
	if !ok {
		return Anchor{}, fmt.Errorf("%w: all anchors calibrated", ErrUnexpectedTrigger)
	}
	got, ok := AnchorByTrigger(key)
	if !ok {
		return Anchor{}, fmt.Errorf("%w: no anchor is triggered by %q", ErrUnknownAnchor, key)
	}
	if got.Name != want.Name {
		return Anchor{}, fmt.Errorf("%w: got %q for %s, want %q for %s",
			ErrUnexpectedTrigger, key, got.Name, rune(want.Trigger), want.Name)
	}

	s.collector.BeginAnchor(want)
	s.logger.Info("calibrating anchor",
		zap.String("anchor", want.Name),
		zap.Int("step", s.step+1),
		zap.Int("total", NumAnchors))
	return want, nil
}

// AddSample feeds one sensor reading into the open anchor.
func (s *Session) AddSample(sample RawSample) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.collector.AddSample(sample)
}

// Finish seals the open anchor. An anchor that collected nothing is
// rejected with ErrDegenerateCalibration and stays current so the operator
// can redo it.
func (s *Session) Finish() (Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.collector.EndAnchor(); err != nil {
		return Record{}, err
	}
	want := anchors[s.step]
	rec, _ := s.collector.Record(want.Name)
	if err := rec.validate(); err != nil {
		s.logger.Warn("anchor needs to be redone", zap.String("anchor", want.Name), zap.Error(err))
		return rec, err
	}

	s.logger.Info("anchor calibrated",
		zap.String("anchor", rec.Anchor),
		zap.Int("frames", rec.Count),
		zap.Float64("avg_dx", rec.MeanDX),
		zap.Float64("avg_dy", rec.MeanDY),
		zap.Float64("avg_width", rec.MeanWidth))
	s.step++
	if s.step >= NumAnchors {
		s.logger.Info("calibration complete")
	}
	return rec, nil
}

// Set returns the completed calibration set.
func (s *Session) Set() (Set, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.step < NumAnchors {
		return nil, fmt.Errorf("%w: %d of %d anchors calibrated", ErrCalibrationIncomplete, s.step, NumAnchors)
	}
	return s.collector.Set(), nil
}
