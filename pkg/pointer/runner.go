package pointer

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/teslashibe/gazepoint/pkg/cursor"
	"github.com/teslashibe/gazepoint/pkg/screen"
	"github.com/teslashibe/gazepoint/pkg/sensor"
)

// Runner drives a Pipeline from a sensor on a fixed tick.
type Runner struct {
	cfg     Config
	source  sensor.Source
	targets TargetProvider
	sink    ActivationSink
	logger  *zap.Logger
	onTick  func(TickResult)
	now     func() time.Time

	mu          sync.Mutex
	pipeline    *Pipeline
	lastSeq     uint64
	unavailable bool
	last        TickResult
}

// NewRunner creates a runner. A nil targets or sink is treated as empty.
func NewRunner(proj cursor.Projector, size screen.Size, src sensor.Source, targets TargetProvider, sink ActivationSink, cfg Config, logger *zap.Logger) *Runner {
	cfg = cfg.withDefaults()
	if targets == nil {
		targets = NewTargetList()
	}
	if sink == nil {
		sink = MultiSink{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	p := NewPipeline(proj, size, cfg)
	return &Runner{
		cfg:      cfg,
		source:   src,
		targets:  targets,
		sink:     sink,
		logger:   logger,
		now:      time.Now,
		pipeline: p,
		last:     TickResult{Cursor: p.Cursor()},
	}
}

// OnTick registers fn to receive every tick result. Call before Run.
func (r *Runner) OnTick(fn func(TickResult)) {
	r.onTick = fn
}

// Run ticks until ctx is done.
func (r *Runner) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.cfg.TickInterval)
	defer ticker.Stop()

	r.logger.Info("pointer loop started",
		zap.Duration("tick", r.cfg.TickInterval),
		zap.Float64("alpha", r.cfg.SmoothingAlpha),
		zap.Duration("dwell", r.cfg.DwellThreshold))

	for {
		select {
		case <-ctx.Done():
			r.logger.Info("pointer loop stopped")
			return nil
		case <-ticker.C:
			r.Step()
		}
	}
}

// Step runs a single tick against the current sensor reading.
func (r *Runner) Step() TickResult {
	now := r.now()

	r.mu.Lock()
	reading, ok := r.source.Latest()
	fresh := ok && reading.Seq != r.lastSeq
	if fresh {
		r.lastSeq = reading.Seq
	}
	r.checkAvailability(ok, reading, now)

	res := r.pipeline.Tick(TickInput{
		Sample:  reading.Sample,
		Fresh:   fresh,
		Lost:    r.unavailable,
		Targets: r.targets.Targets(),
		Now:     now,
	})
	r.last = res
	r.mu.Unlock()

	if res.Activation != nil {
		r.logger.Info("target activated",
			zap.String("target", res.Activation.TargetID),
			zap.Duration("dwell", res.Activation.Dwell))
		if err := r.sink.Publish(*res.Activation); err != nil {
			r.logger.Warn("activation delivery failed", zap.Error(err))
		}
	}
	if r.onTick != nil {
		r.onTick(res)
	}
	return res
}

// checkAvailability logs sensor loss once and recovery once.
func (r *Runner) checkAvailability(ok bool, reading sensor.Reading, now time.Time) {
	lost := !ok || now.Sub(reading.At) > r.cfg.StaleAfter
	switch {
	case lost && !r.unavailable:
		r.unavailable = true
		r.logger.Warn("holding cursor", zap.Error(sensor.ErrSensorUnavailable))
	case !lost && r.unavailable:
		r.unavailable = false
		r.logger.Info("sensor samples resumed")
	}
}

// SetProjector installs a new calibration model on the live loop.
func (r *Runner) SetProjector(p cursor.Projector) {
	r.mu.Lock()
	r.pipeline.SetProjector(p)
	r.mu.Unlock()
}

// Last returns the most recent tick result.
func (r *Runner) Last() TickResult {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.last
}

// SensorAvailable reports whether samples are currently arriving.
func (r *Runner) SensorAvailable() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return !r.unavailable
}
