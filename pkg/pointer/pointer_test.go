package pointer

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/teslashibe/gazepoint/pkg/calibration"
	"github.com/teslashibe/gazepoint/pkg/cursor"
	"github.com/teslashibe/gazepoint/pkg/dwell"
	"github.com/teslashibe/gazepoint/pkg/protocol"
	"github.com/teslashibe/gazepoint/pkg/screen"
	"github.com/teslashibe/gazepoint/pkg/sensor"
)

var (
	size = screen.Size{Width: 1920, Height: 1080}
	t0   = time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	tick = 100 * time.Millisecond

	button  = dwell.Target{ID: "button", Rect: screen.Rect{X: 0, Y: 0, W: 400, H: 300}}
	targets = []dwell.Target{button}
)

// offsetProjector maps a sample to (DX, DY) pixels directly.
type offsetProjector struct{}

func (offsetProjector) Project(s calibration.RawSample) screen.Point {
	return size.Clamp(screen.Point{X: s.DX, Y: s.DY})
}

type fakeSource struct {
	mu sync.Mutex
	r  sensor.Reading
	ok bool
}

func (f *fakeSource) Latest() (sensor.Reading, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.r, f.ok
}

func (f *fakeSource) publish(s calibration.RawSample, at time.Time) {
	f.mu.Lock()
	f.r = sensor.Reading{Sample: s, Seq: f.r.Seq + 1, At: at}
	f.ok = true
	f.mu.Unlock()
}

type clock struct{ t time.Time }

func (c *clock) now() time.Time { return c.t }

func TestPipeline_StartsAtCenter(t *testing.T) {
	p := NewPipeline(offsetProjector{}, size, DefaultConfig())
	assert.Equal(t, size.Center(), p.Cursor().Position)

	res := p.Tick(TickInput{Fresh: false, Now: t0})
	assert.Equal(t, size.Center(), res.Cursor.Position)
	assert.Equal(t, dwell.Idle, res.Dwell.Phase)
}

func TestPipeline_Deterministic(t *testing.T) {
	inputs := make([]TickInput, 60)
	for i := range inputs {
		inputs[i] = TickInput{
			Sample:  calibration.RawSample{DX: 100 + float64(i%3), DY: 120, Width: 1},
			Fresh:   i%4 != 3,
			Targets: targets,
			Now:     t0.Add(time.Duration(i) * tick),
		}
	}

	a := NewPipeline(offsetProjector{}, size, DefaultConfig())
	b := NewPipeline(offsetProjector{}, size, DefaultConfig())
	for i, in := range inputs {
		ra, rb := a.Tick(in), b.Tick(in)
		assert.Equal(t, ra.Cursor, rb.Cursor, "tick %d", i)
		assert.Equal(t, ra.Dwell, rb.Dwell, "tick %d", i)
		assert.Equal(t, ra.Activation == nil, rb.Activation == nil, "tick %d", i)
	}
}

func TestPipeline_SteadyGazeActivatesOnce(t *testing.T) {
	p := NewPipeline(offsetProjector{}, size, DefaultConfig())
	gaze := calibration.RawSample{DX: 100, DY: 100, Width: 1}

	var fired []dwell.Activation
	for i := 0; i < 200; i++ {
		res := p.Tick(TickInput{Sample: gaze, Fresh: true, Targets: targets, Now: t0.Add(time.Duration(i) * tick)})
		if res.Activation != nil {
			fired = append(fired, *res.Activation)
		}
	}

	require.Len(t, fired, 1)
	assert.Equal(t, "button", fired[0].TargetID)
	assert.GreaterOrEqual(t, fired[0].Dwell, dwell.DefaultThreshold)
}

func TestPipeline_StaleTickHoldsPosition(t *testing.T) {
	p := NewPipeline(offsetProjector{}, size, DefaultConfig())
	moved := p.Tick(TickInput{Sample: calibration.RawSample{DX: 0, DY: 0}, Fresh: true, Now: t0})

	held := p.Tick(TickInput{Sample: calibration.RawSample{DX: 1900, DY: 1000}, Fresh: false, Now: t0.Add(tick)})
	assert.Equal(t, moved.Cursor.Position, held.Cursor.Position)
}

func TestPipeline_SetProjectorResetsDwell(t *testing.T) {
	p := NewPipeline(offsetProjector{}, size, DefaultConfig())
	p.engine.Reset(screen.Point{X: 100, Y: 100})

	p.Tick(TickInput{Sample: calibration.RawSample{DX: 100, DY: 100}, Fresh: true, Targets: targets, Now: t0})
	require.Equal(t, dwell.Hovering, p.machine.State().Phase)

	p.SetProjector(offsetProjector{})
	assert.Equal(t, dwell.Idle, p.machine.State().Phase)
}

func TestPipeline_SetProjectorWaitsForSample(t *testing.T) {
	p := NewPipeline(offsetProjector{}, size, DefaultConfig())
	p.Tick(TickInput{Sample: calibration.RawSample{DX: 100, DY: 100}, Fresh: true, Targets: targets, Now: t0})
	require.True(t, p.Armed())

	p.SetProjector(offsetProjector{})
	assert.False(t, p.Armed())
	res := p.Tick(TickInput{Fresh: false, Targets: targets, Now: t0.Add(tick)})
	assert.False(t, res.Armed)
	assert.Equal(t, dwell.Idle, res.Dwell.Phase)

	res = p.Tick(TickInput{Sample: calibration.RawSample{DX: 100, DY: 100}, Fresh: true, Targets: targets, Now: t0.Add(2 * tick)})
	assert.True(t, res.Armed)
	assert.Equal(t, dwell.Hovering, res.Dwell.Phase)
}

func TestPipeline_UncalibratedIsNeverArmed(t *testing.T) {
	p := NewPipeline(Uncalibrated{Screen: size}, size, DefaultConfig())
	centerBtn := []dwell.Target{{ID: "center", Rect: screen.Rect{X: 860, Y: 440, W: 200, H: 200}}}

	for i := 0; i < 50; i++ {
		res := p.Tick(TickInput{Sample: calibration.RawSample{DX: 1}, Fresh: true, Targets: centerBtn, Now: t0.Add(time.Duration(i) * tick)})
		require.Nil(t, res.Activation, "tick %d", i)
		assert.False(t, res.Armed)
	}
}

func newTestRunner(src sensor.Source, sink ActivationSink) (*Runner, *clock) {
	return newRunnerWith(offsetProjector{}, src, sink, targets...)
}

func newRunnerWith(proj cursor.Projector, src sensor.Source, sink ActivationSink, ts ...dwell.Target) (*Runner, *clock) {
	c := &clock{t: t0}
	r := NewRunner(proj, size, src, NewTargetList(ts...), sink, DefaultConfig(), nil)
	r.now = c.now
	return r, c
}

func collectSink() (*[]dwell.Activation, ActivationSink) {
	var got []dwell.Activation
	return &got, SinkFunc(func(a dwell.Activation) error {
		got = append(got, a)
		return nil
	})
}

func TestRunner_NoSelectionWithoutCalibrationOrSamples(t *testing.T) {
	centerBtn := dwell.Target{ID: "center", Rect: screen.Rect{X: 860, Y: 440, W: 200, H: 200}}

	tests := []struct {
		name    string
		proj    cursor.Projector
		samples bool
	}{
		{"uncalibrated without samples", Uncalibrated{Screen: size}, false},
		{"uncalibrated with samples", Uncalibrated{Screen: size}, true},
		{"calibrated without samples", offsetProjector{}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			src := &fakeSource{}
			got, sink := collectSink()
			r, c := newRunnerWith(tt.proj, src, sink, centerBtn)

			for i := 0; i < 30; i++ {
				if tt.samples {
					src.publish(calibration.RawSample{DX: 960, DY: 540}, c.t)
				}
				res := r.Step()
				assert.Equal(t, dwell.Idle, res.Dwell.Phase, "tick %d", i)
				c.t = c.t.Add(tick)
			}
			assert.Empty(t, *got)
		})
	}
}

func TestRunner_SelectsOnceCalibrated(t *testing.T) {
	centerBtn := dwell.Target{ID: "center", Rect: screen.Rect{X: 860, Y: 440, W: 200, H: 200}}
	src := &fakeSource{}
	got, sink := collectSink()
	r, c := newRunnerWith(Uncalibrated{Screen: size}, src, sink, centerBtn)

	for i := 0; i < 30; i++ {
		src.publish(calibration.RawSample{DX: 960, DY: 540}, c.t)
		r.Step()
		c.t = c.t.Add(tick)
	}
	require.Empty(t, *got)

	r.SetProjector(offsetProjector{})
	for i := 0; i < 30; i++ {
		src.publish(calibration.RawSample{DX: 960, DY: 540}, c.t)
		r.Step()
		c.t = c.t.Add(tick)
	}
	require.Len(t, *got, 1)
	assert.Equal(t, "center", (*got)[0].TargetID)
}

func TestRunner_SensorOutageHoldsWithoutSelecting(t *testing.T) {
	src := &fakeSource{}
	got, sink := collectSink()
	r, c := newTestRunner(src, sink)

	// Smooth the cursor into the button, short of the dwell threshold.
	for i := 0; i < 8; i++ {
		src.publish(calibration.RawSample{DX: 50, DY: 50}, c.t)
		r.Step()
		c.t = c.t.Add(tick)
	}
	require.Equal(t, dwell.Hovering, r.Last().Dwell.Phase)
	held := r.Last().Cursor.Position

	for i := 0; i < 40; i++ {
		r.Step()
		c.t = c.t.Add(tick)
	}
	assert.False(t, r.SensorAvailable())
	assert.Empty(t, *got, "no selection during an outage")
	assert.Equal(t, dwell.Idle, r.Last().Dwell.Phase)
	assert.False(t, r.Last().Armed)
	assert.Equal(t, held, r.Last().Cursor.Position)

	for i := 0; i < 30; i++ {
		src.publish(calibration.RawSample{DX: 50, DY: 50}, c.t)
		r.Step()
		c.t = c.t.Add(tick)
	}
	assert.True(t, r.SensorAvailable())
	require.Len(t, *got, 1, "dwell resumes with the sensor")
	assert.Equal(t, "button", (*got)[0].TargetID)
}

func TestRunner_FreshnessBySeq(t *testing.T) {
	src := &fakeSource{}
	r, c := newTestRunner(src, nil)

	res := r.Step()
	assert.False(t, res.Fresh, "no sample yet")
	assert.False(t, r.SensorAvailable())

	src.publish(calibration.RawSample{DX: 0, DY: 0}, c.t)
	res = r.Step()
	assert.True(t, res.Fresh)
	assert.True(t, r.SensorAvailable())

	c.t = c.t.Add(tick)
	res = r.Step()
	assert.False(t, res.Fresh, "same seq is not fresh")
	assert.Equal(t, res.Cursor.Position, res.Cursor.Previous)
}

func TestRunner_SensorLossAndRecovery(t *testing.T) {
	src := &fakeSource{}
	r, c := newTestRunner(src, nil)

	src.publish(calibration.RawSample{DX: 10, DY: 10}, c.t)
	r.Step()
	require.True(t, r.SensorAvailable())

	c.t = c.t.Add(2 * time.Second)
	r.Step()
	assert.False(t, r.SensorAvailable())

	src.publish(calibration.RawSample{DX: 10, DY: 10}, c.t)
	r.Step()
	assert.True(t, r.SensorAvailable())
}

func TestRunner_DeliversActivations(t *testing.T) {
	src := &fakeSource{}
	var got []dwell.Activation
	sink := SinkFunc(func(a dwell.Activation) error {
		got = append(got, a)
		return nil
	})
	r, c := newTestRunner(src, sink)

	var ticks int
	r.OnTick(func(TickResult) { ticks++ })

	for i := 0; i < 60; i++ {
		src.publish(calibration.RawSample{DX: 50, DY: 50}, c.t)
		r.Step()
		c.t = c.t.Add(tick)
	}

	require.Len(t, got, 1)
	assert.Equal(t, "button", got[0].TargetID)
	assert.Equal(t, 60, ticks)
	assert.Equal(t, dwell.Fired, r.Last().Dwell.Phase)
}

func TestRunner_RunStopsOnCancel(t *testing.T) {
	defer goleak.VerifyNone(t)

	slot := sensor.NewSlot()
	slot.Publish(calibration.RawSample{DX: 10, DY: 10})

	cfg := DefaultConfig()
	cfg.TickInterval = time.Millisecond
	r := NewRunner(offsetProjector{}, size, slot, nil, nil, cfg, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.Run(ctx) }()

	require.Eventually(t, func() bool {
		return r.Last().Seq >= 3
	}, time.Second, time.Millisecond)

	cancel()
	assert.NoError(t, <-done)
}

func TestTargetList_SetCopies(t *testing.T) {
	l := NewTargetList()
	assert.Empty(t, l.Targets())

	in := []dwell.Target{button}
	l.Set(in)
	in[0].ID = "changed"
	assert.Equal(t, "button", l.Targets()[0].ID)
}

func TestMultiSink_DeliversToAll(t *testing.T) {
	var calls int
	ok := SinkFunc(func(dwell.Activation) error { calls++; return nil })
	boom := errors.New("boom")
	bad := SinkFunc(func(dwell.Activation) error { calls++; return boom })

	err := MultiSink{bad, ok, ok}.Publish(dwell.Activation{TargetID: "x"})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 3, calls)

	assert.NoError(t, MultiSink{}.Publish(dwell.Activation{}))
}

type fakeToken struct{ err error }

func (t fakeToken) Wait() bool                     { return true }
func (t fakeToken) WaitTimeout(time.Duration) bool { return true }
func (t fakeToken) Done() <-chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}
func (t fakeToken) Error() error { return t.err }

type fakePublisher struct {
	topic   string
	payload []byte
	err     error
}

func (p *fakePublisher) Publish(topic string, _ byte, _ bool, payload interface{}) mqtt.Token {
	p.topic = topic
	p.payload = payload.([]byte)
	return fakeToken{err: p.err}
}

func TestMQTTSink_PublishesActivationMessage(t *testing.T) {
	pub := &fakePublisher{}
	sink := &MQTTSink{client: pub, topic: "gaze/activations", timeout: time.Second}

	err := sink.Publish(dwell.Activation{ID: "a1", TargetID: "button", At: t0, Dwell: 2 * time.Second})
	require.NoError(t, err)
	assert.Equal(t, "gaze/activations", pub.topic)

	msg, err := protocol.ParseMessage(pub.payload)
	require.NoError(t, err)
	data, err := msg.GetActivationData()
	require.NoError(t, err)
	assert.Equal(t, "button", data.TargetID)
	assert.Equal(t, int64(2000), data.DwellMs)

	pub.err = errors.New("broker gone")
	assert.Error(t, sink.Publish(dwell.Activation{TargetID: "button"}))
}
