package web

import (
	"errors"
	"unicode/utf8"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
	"go.uber.org/zap"

	"github.com/teslashibe/gazepoint/pkg/calibration"
	"github.com/teslashibe/gazepoint/pkg/evaluation"
	"github.com/teslashibe/gazepoint/pkg/hub"
	"github.com/teslashibe/gazepoint/pkg/protocol"
	"github.com/teslashibe/gazepoint/pkg/screen"
	"github.com/teslashibe/gazepoint/pkg/sensor"
	"github.com/teslashibe/gazepoint/pkg/store"
)

// StatusResponse is the body of GET /api/status
type StatusResponse struct {
	Screen          screen.Size               `json:"screen"`
	Calibrated      bool                      `json:"calibrated"`
	Model           string                    `json:"model,omitempty"`
	SensorAvailable bool                      `json:"sensor_available"`
	Cursor          *protocol.CursorData      `json:"cursor,omitempty"`
	Targets         int                       `json:"targets"`
	Clients         int                       `json:"clients"`
	Session         *protocol.CalibrationData `json:"session,omitempty"`
}

// handleStatus returns the pointer and calibration state
func (s *Server) handleStatus(c *fiber.Ctx) error {
	s.mu.Lock()
	model, sess := s.model, s.session
	s.mu.Unlock()

	resp := StatusResponse{
		Screen:  s.screen,
		Targets: len(s.targets.Targets()),
		Clients: s.cursorHub.ClientCount(),
	}
	if model != nil {
		resp.Calibrated = true
		resp.Model = model.String()
	}
	if s.pointer != nil {
		cur := cursorData(s.pointer.Last())
		resp.Cursor = &cur
		resp.SensorAvailable = s.pointer.SensorAvailable()
	}
	if sess != nil {
		data := sessionData(sess, nil)
		resp.Session = &data
	}
	return c.JSON(resp)
}

// handleAnchors lists the calibration anchors with their pixel positions
func (s *Server) handleAnchors(c *fiber.Ctx) error {
	type anchorInfo struct {
		calibration.Anchor
		Position screen.Point `json:"position"`
	}
	out := make([]anchorInfo, 0, calibration.NumAnchors)
	for _, a := range calibration.Anchors() {
		out = append(out, anchorInfo{Anchor: a, Position: a.Position(s.screen)})
	}
	return c.JSON(out)
}

// handleGetTargets returns the current targets
func (s *Server) handleGetTargets(c *fiber.Ctx) error {
	return c.JSON(s.targets.Targets())
}

// handlePutTargets replaces the target list
func (s *Server) handlePutTargets(c *fiber.Ctx) error {
	var req protocol.TargetsData
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid targets: "+err.Error())
	}
	for _, t := range req.Targets {
		if t.ID == "" || t.W <= 0 || t.H <= 0 {
			return fiber.NewError(fiber.StatusBadRequest, "targets need an id and a positive size")
		}
	}
	s.targets.Set(req.DwellTargets())
	return c.JSON(s.targets.Targets())
}

// SamplesRequest is the body of POST /api/samples
type SamplesRequest struct {
	Samples []protocol.SampleData `json:"samples"`
}

// handlePostSamples ingests samples from sensors that cannot hold a socket
func (s *Server) handlePostSamples(c *fiber.Ctx) error {
	var req SamplesRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid samples: "+err.Error())
	}
	var last sensor.Reading
	for _, d := range req.Samples {
		sample := d.RawSample()
		last = s.ingest.Publish(sample)
		s.FeedSample(sample)
	}
	return c.JSON(fiber.Map{"accepted": len(req.Samples), "seq": last.Seq})
}

// handleGetCalibration returns the stored calibration set
func (s *Server) handleGetCalibration(c *fiber.Ctx) error {
	set, err := s.loadSet(c)
	if err != nil {
		return err
	}
	return c.JSON(set)
}

// handleStartSession begins a new calibration, discarding any in progress
func (s *Server) handleStartSession(c *fiber.Ctx) error {
	sess := calibration.NewSession(s.logger)
	s.mu.Lock()
	s.session = sess
	s.mu.Unlock()
	return c.Status(fiber.StatusCreated).JSON(sessionData(sess, nil))
}

// handleGetSession returns the calibration progress
func (s *Server) handleGetSession(c *fiber.Ctx) error {
	sess, err := s.currentSession()
	if err != nil {
		return err
	}
	return c.JSON(sessionData(sess, nil))
}

// TriggerRequest is the body of POST /api/calibration/session/trigger
type TriggerRequest struct {
	Key string `json:"key"`
}

// handleTrigger opens the current anchor when the operator's key matches
func (s *Server) handleTrigger(c *fiber.Ctx) error {
	sess, err := s.currentSession()
	if err != nil {
		return err
	}
	var req TriggerRequest
	if err := c.BodyParser(&req); err != nil || utf8.RuneCountInString(req.Key) != 1 {
		return fiber.NewError(fiber.StatusBadRequest, "key must be a single character")
	}
	key, _ := utf8.DecodeRuneInString(req.Key)
	if _, err := sess.Trigger(key); err != nil {
		return err
	}
	s.broadcastSession(sess, nil)
	return c.JSON(sessionData(sess, nil))
}

// handleFinish seals the open anchor
func (s *Server) handleFinish(c *fiber.Ctx) error {
	sess, err := s.currentSession()
	if err != nil {
		return err
	}
	rec, err := sess.Finish()
	if err != nil {
		return err
	}
	s.broadcastSession(sess, &rec)
	return c.JSON(fiber.Map{
		"record":  rec,
		"session": sessionData(sess, &rec),
	})
}

// handleCommit saves the completed set and installs the new model
func (s *Server) handleCommit(c *fiber.Ctx) error {
	sess, err := s.currentSession()
	if err != nil {
		return err
	}
	set, err := sess.Set()
	if err != nil {
		return err
	}
	model, err := calibration.NewModel(set, s.screen)
	if err != nil {
		return err
	}
	if s.store != nil {
		if err := s.store.Save(c.UserContext(), set); err != nil {
			return err
		}
	}

	s.mu.Lock()
	s.model = model
	s.session = nil
	s.mu.Unlock()
	if s.pointer != nil {
		s.pointer.SetProjector(model)
	}

	s.logger.Info("calibration committed", zap.Stringer("model", model))
	return c.JSON(fiber.Map{"model": model, "calibration": set})
}

// handleEvaluation scores the stored calibration
func (s *Server) handleEvaluation(c *fiber.Ctx) error {
	set, err := s.loadSet(c)
	if err != nil {
		return err
	}
	sum, err := evaluation.New(s.screen, s.logger).Evaluate(set)
	if err != nil {
		return err
	}
	if c.Query("points") != "true" {
		sum.Points = nil
	}
	return c.JSON(sum.Rounded())
}

// handleCursorWS streams cursor and activation messages. Clients may send
// ping and targets messages.
func (s *Server) handleCursorWS(c *websocket.Conn) {
	client := hub.NewClient(s.cursorHub, c, s.handleCursorMessage)
	client.Run()
}

func (s *Server) handleCursorMessage(data []byte) []byte {
	msg, err := protocol.ParseMessage(data)
	if err != nil {
		return nil
	}
	switch msg.Type {
	case protocol.TypePing:
		ping, err := msg.GetPingData()
		if err != nil {
			return nil
		}
		pong, err := protocol.NewPongMessage(*ping)
		if err != nil {
			return nil
		}
		out, _ := pong.Bytes()
		return out
	case protocol.TypeTargets:
		targets, err := msg.GetTargetsData()
		if err != nil {
			s.logger.Debug("bad targets message", zap.Error(err))
			return nil
		}
		s.targets.Set(targets.DwellTargets())
	}
	return nil
}

// handleSensorWS ingests a sample stream from a sensor bridge
func (s *Server) handleSensorWS(c *websocket.Conn) {
	s.logger.Info("sensor connected", zap.String("remote", c.RemoteAddr().String()))
	defer s.logger.Info("sensor disconnected")

	for {
		_, data, err := c.ReadMessage()
		if err != nil {
			return
		}
		sample, err := sensor.DecodeSample(data)
		if err != nil {
			s.logger.Debug("dropping sample", zap.Error(err))
			continue
		}
		s.ingest.Publish(sample)
		s.FeedSample(sample)
	}
}

func (s *Server) currentSession() (*calibration.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.session == nil {
		return nil, fiber.NewError(fiber.StatusNotFound, "no calibration session in progress")
	}
	return s.session, nil
}

func (s *Server) loadSet(c *fiber.Ctx) (calibration.Set, error) {
	if s.store == nil {
		return nil, fiber.NewError(fiber.StatusServiceUnavailable, "no calibration store configured")
	}
	return s.store.Load(c.UserContext())
}

func (s *Server) broadcastSession(sess *calibration.Session, rec *calibration.Record) {
	msg, err := protocol.NewCalibrationMessage(sessionData(sess, rec))
	if err != nil {
		return
	}
	s.cursorHub.BroadcastMessage(msg)
}

func sessionData(sess *calibration.Session, rec *calibration.Record) protocol.CalibrationData {
	step, total := sess.Progress()
	data := protocol.CalibrationData{
		Session:    sess.ID,
		Step:       step,
		Total:      total,
		Collecting: sess.Collecting(),
		Done:       sess.Done(),
	}
	if a, ok := sess.Current(); ok {
		data.Anchor = a.Name
		data.Trigger = string(rune(a.Trigger))
	}
	if rec != nil {
		data.Frames = rec.Count
	}
	return data
}

// handleError maps domain errors to HTTP status codes
func (s *Server) handleError(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError

	var fe *fiber.Error
	switch {
	case errors.As(err, &fe):
		code = fe.Code
	case errors.Is(err, store.ErrNotFound):
		code = fiber.StatusNotFound
	case errors.Is(err, calibration.ErrUnknownAnchor):
		code = fiber.StatusBadRequest
	case errors.Is(err, calibration.ErrUnexpectedTrigger),
		errors.Is(err, calibration.ErrNoActiveAnchor),
		errors.Is(err, calibration.ErrCalibrationIncomplete):
		code = fiber.StatusConflict
	case errors.Is(err, calibration.ErrDegenerateCalibration),
		errors.Is(err, calibration.ErrMissingCenterAnchor),
		errors.Is(err, evaluation.ErrNothingToEvaluate):
		code = fiber.StatusUnprocessableEntity
	}

	if code >= fiber.StatusInternalServerError {
		s.logger.Error("request failed", zap.String("path", c.Path()), zap.Error(err))
	}
	return c.Status(code).JSON(fiber.Map{"error": err.Error()})
}
