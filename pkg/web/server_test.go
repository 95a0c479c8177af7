package web

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"path/filepath"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teslashibe/gazepoint/pkg/calibration"
	"github.com/teslashibe/gazepoint/pkg/cursor"
	"github.com/teslashibe/gazepoint/pkg/dwell"
	"github.com/teslashibe/gazepoint/pkg/evaluation"
	"github.com/teslashibe/gazepoint/pkg/pointer"
	"github.com/teslashibe/gazepoint/pkg/protocol"
	"github.com/teslashibe/gazepoint/pkg/screen"
	"github.com/teslashibe/gazepoint/pkg/store"
)

var size = screen.Size{Width: 1920, Height: 1080}

type fakePointer struct {
	projector cursor.Projector
}

func (f *fakePointer) Last() pointer.TickResult {
	return pointer.TickResult{Cursor: cursor.State{Position: size.Center()}, Seq: 7}
}
func (f *fakePointer) SensorAvailable() bool           { return true }
func (f *fakePointer) SetProjector(p cursor.Projector) { f.projector = p }

func newTestServer(t *testing.T) (*Server, *fakePointer, store.Store) {
	t.Helper()
	st, err := store.NewJSONStore(filepath.Join(t.TempDir(), store.DefaultJSONFile), nil)
	require.NoError(t, err)
	fp := &fakePointer{}
	s := NewServer(Options{Port: "0", Screen: size, Store: st, Pointer: fp})
	return s, fp, st
}

func do(t *testing.T, s *Server, method, path string, body interface{}) (int, []byte) {
	t.Helper()
	var r io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		r = bytes.NewReader(data)
	}
	req, err := http.NewRequest(method, path, r)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.App().Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()
	out, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, out
}

func TestStatus(t *testing.T) {
	s, _, _ := newTestServer(t)

	code, body := do(t, s, http.MethodGet, "/api/status", nil)
	require.Equal(t, http.StatusOK, code)

	var status StatusResponse
	require.NoError(t, json.Unmarshal(body, &status))
	assert.Equal(t, size, status.Screen)
	assert.False(t, status.Calibrated)
	assert.True(t, status.SensorAvailable)
	require.NotNil(t, status.Cursor)
	assert.Equal(t, 960.0, status.Cursor.X)
	assert.Equal(t, 960, status.Cursor.PixelX)
	assert.Equal(t, 540, status.Cursor.PixelY)
	assert.Nil(t, status.Session)
}

func TestCursorDataPixels(t *testing.T) {
	res := pointer.TickResult{
		Cursor: cursor.State{Position: screen.Point{X: 12.9, Y: 7.2}, Target: screen.Point{X: 14, Y: 9}},
		Fresh:  true,
		Seq:    3,
	}
	data := cursorData(res)
	assert.Equal(t, 12.9, data.X)
	assert.Equal(t, 12, data.PixelX)
	assert.Equal(t, 7, data.PixelY)
	assert.False(t, data.Stale)
	assert.Equal(t, uint64(3), data.TickSeq)
}

func TestAnchors(t *testing.T) {
	s, _, _ := newTestServer(t)

	code, body := do(t, s, http.MethodGet, "/api/anchors", nil)
	require.Equal(t, http.StatusOK, code)

	var anchors []struct {
		Name     string       `json:"name"`
		Trigger  string       `json:"trigger"`
		Position screen.Point `json:"position"`
	}
	require.NoError(t, json.Unmarshal(body, &anchors))
	require.Len(t, anchors, calibration.NumAnchors)
	assert.Equal(t, "Center", anchors[4].Name)
	assert.Equal(t, "c", anchors[4].Trigger)
	assert.Equal(t, size.Center(), anchors[4].Position)
}

func TestTargets(t *testing.T) {
	s, _, _ := newTestServer(t)

	req := protocol.TargetsData{Targets: []protocol.TargetData{
		{ID: "yes", X: 0, Y: 0, W: 400, H: 300},
		{ID: "no", X: 500, Y: 0, W: 400, H: 300},
	}}
	code, _ := do(t, s, http.MethodPut, "/api/targets", req)
	require.Equal(t, http.StatusOK, code)

	got := s.targets.Targets()
	require.Len(t, got, 2)
	assert.Equal(t, "yes", got[0].ID)
	assert.Equal(t, screen.Rect{X: 500, W: 400, H: 300}, got[1].Rect)

	bad := protocol.TargetsData{Targets: []protocol.TargetData{{ID: "", W: 1, H: 1}}}
	code, _ = do(t, s, http.MethodPut, "/api/targets", bad)
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Len(t, s.targets.Targets(), 2, "rejected update must not apply")
}

func TestPostSamples(t *testing.T) {
	s, _, _ := newTestServer(t)

	code, _ := do(t, s, http.MethodPost, "/api/samples", SamplesRequest{
		Samples: []protocol.SampleData{{DX: 1, Width: 1}, {DX: 2, Width: 1}},
	})
	require.Equal(t, http.StatusOK, code)

	r, ok := s.ingest.Latest()
	require.True(t, ok)
	assert.Equal(t, uint64(2), r.Seq)
	assert.Equal(t, 2.0, r.Sample.DX)
}

func TestCalibrationFlow(t *testing.T) {
	s, fp, st := newTestServer(t)

	code, _ := do(t, s, http.MethodPost, "/api/calibration/session", nil)
	require.Equal(t, http.StatusCreated, code)

	for _, a := range calibration.Anchors() {
		code, body := do(t, s, http.MethodPost, "/api/calibration/session/trigger", TriggerRequest{Key: string(rune(a.Trigger))})
		require.Equal(t, http.StatusOK, code, string(body))

		samples := make([]protocol.SampleData, 5)
		for i := range samples {
			samples[i] = protocol.SampleData{DX: (0.5 - a.XFrac) * 0.2, DY: (a.YFrac - 0.5) * 0.2, Width: 50}
		}
		code, _ = do(t, s, http.MethodPost, "/api/samples", SamplesRequest{Samples: samples})
		require.Equal(t, http.StatusOK, code)

		code, body = do(t, s, http.MethodPost, "/api/calibration/session/finish", nil)
		require.Equal(t, http.StatusOK, code, string(body))
	}

	code, body := do(t, s, http.MethodPost, "/api/calibration/session/commit", nil)
	require.Equal(t, http.StatusOK, code, string(body))
	require.NotNil(t, fp.projector, "model must be installed on the pointer")

	center := fp.projector.Project(calibration.RawSample{DX: 0, DY: 0})
	assert.InDelta(t, 960, center.X, 1e-9)
	assert.InDelta(t, 540, center.Y, 1e-9)

	set, err := st.Load(context.Background())
	require.NoError(t, err)
	assert.True(t, set.Complete())
	assert.Equal(t, 5, set[calibration.CenterName].Count)

	code, _ = do(t, s, http.MethodGet, "/api/calibration", nil)
	assert.Equal(t, http.StatusOK, code)

	code, body = do(t, s, http.MethodGet, "/api/evaluation", nil)
	require.Equal(t, http.StatusOK, code)
	var sum evaluation.Summary
	require.NoError(t, json.Unmarshal(body, &sum))
	assert.Equal(t, evaluation.DefaultThresholds, sum.Thresholds)
	assert.Nil(t, sum.Points)

	code, body = do(t, s, http.MethodGet, "/api/status", nil)
	require.Equal(t, http.StatusOK, code)
	var status StatusResponse
	require.NoError(t, json.Unmarshal(body, &status))
	assert.True(t, status.Calibrated)
}

func TestCalibrationErrors(t *testing.T) {
	s, _, _ := newTestServer(t)

	code, _ := do(t, s, http.MethodPost, "/api/calibration/session/trigger", TriggerRequest{Key: "q"})
	assert.Equal(t, http.StatusNotFound, code, "no session yet")

	code, _ = do(t, s, http.MethodPost, "/api/calibration/session", nil)
	require.Equal(t, http.StatusCreated, code)

	code, _ = do(t, s, http.MethodPost, "/api/calibration/session/trigger", TriggerRequest{Key: "c"})
	assert.Equal(t, http.StatusConflict, code, "Center is not first")

	code, _ = do(t, s, http.MethodPost, "/api/calibration/session/trigger", TriggerRequest{Key: "qq"})
	assert.Equal(t, http.StatusBadRequest, code)

	code, _ = do(t, s, http.MethodPost, "/api/calibration/session/trigger", TriggerRequest{Key: "!"})
	assert.Equal(t, http.StatusBadRequest, code, "no anchor uses that key")

	code, _ = do(t, s, http.MethodPost, "/api/calibration/session/finish", nil)
	assert.Equal(t, http.StatusConflict, code, "nothing open")

	code, _ = do(t, s, http.MethodPost, "/api/calibration/session/trigger", TriggerRequest{Key: "q"})
	require.Equal(t, http.StatusOK, code)
	code, _ = do(t, s, http.MethodPost, "/api/calibration/session/finish", nil)
	assert.Equal(t, http.StatusUnprocessableEntity, code, "anchor with no samples")

	code, _ = do(t, s, http.MethodPost, "/api/calibration/session/commit", nil)
	assert.Equal(t, http.StatusConflict, code, "incomplete")

	code, _ = do(t, s, http.MethodGet, "/api/calibration", nil)
	assert.Equal(t, http.StatusNotFound, code)

	code, _ = do(t, s, http.MethodGet, "/api/evaluation", nil)
	assert.Equal(t, http.StatusNotFound, code)
}

func TestCursorMessages(t *testing.T) {
	s, _, _ := newTestServer(t)

	ping, _ := protocol.NewPingMessage("p1")
	data, _ := ping.Bytes()
	reply := s.handleCursorMessage(data)
	require.NotNil(t, reply)
	msg, err := protocol.ParseMessage(reply)
	require.NoError(t, err)
	assert.Equal(t, protocol.TypePong, msg.Type)

	targets, _ := protocol.NewTargetsMessage([]dwell.Target{{ID: "t", Rect: screen.Rect{W: 10, H: 10}}})
	data, _ = targets.Bytes()
	assert.Nil(t, s.handleCursorMessage(data))
	require.Len(t, s.targets.Targets(), 1)
	assert.Equal(t, "t", s.targets.Targets()[0].ID)

	assert.Nil(t, s.handleCursorMessage([]byte("junk")))
}

func listen(t *testing.T, s *Server) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	go s.Hub().Run(ctx)
	go s.App().Listener(ln)
	t.Cleanup(func() {
		s.App().Shutdown()
		cancel()
		<-s.Hub().Done()
	})
	return "ws://" + ln.Addr().String()
}

func TestSensorWebSocketIngest(t *testing.T) {
	s, _, _ := newTestServer(t)
	base := listen(t, s)

	conn, _, err := websocket.DefaultDialer.Dial(base+"/ws/sensor", nil)
	require.NoError(t, err)
	defer conn.Close()

	msg, _ := protocol.NewSampleMessage(calibration.RawSample{DX: 0.4, DY: 0.1, Width: 2})
	data, _ := msg.Bytes()
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, data))
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"dx":0.5,"dy":0.2,"width":2}`)))

	require.Eventually(t, func() bool {
		r, ok := s.ingest.Latest()
		return ok && r.Seq == 2
	}, 2*time.Second, 5*time.Millisecond)

	r, _ := s.ingest.Latest()
	assert.Equal(t, 0.5, r.Sample.DX)
}

func TestCursorWebSocketActivation(t *testing.T) {
	s, _, _ := newTestServer(t)
	base := listen(t, s)

	conn, _, err := websocket.DefaultDialer.Dial(base+"/ws/cursor", nil)
	require.NoError(t, err)
	defer conn.Close()

	require.Eventually(t, func() bool {
		return s.Hub().ClientCount() == 1
	}, 2*time.Second, 5*time.Millisecond)

	require.NoError(t, s.Publish(dwell.Activation{ID: "a1", TargetID: "yes", At: time.Now(), Dwell: 2 * time.Second}))

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)

	msg, err := protocol.ParseMessage(data)
	require.NoError(t, err)
	act, err := msg.GetActivationData()
	require.NoError(t, err)
	assert.Equal(t, "yes", act.TargetID)
}

func TestPublishTickThrottled(t *testing.T) {
	s := NewServer(Options{Screen: size, CursorRate: 1})

	// Burst of one: only the first tick in a window is broadcast.
	assert.True(t, s.cursorLimiter.Allow())
	assert.False(t, s.cursorLimiter.Allow())

	// A throttled tick is dropped without touching the hub.
	s.PublishTick(pointer.TickResult{})
}
