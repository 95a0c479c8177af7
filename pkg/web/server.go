// Package web provides the HTTP API and live WebSocket feeds for the gaze
// pointer: calibration, target layout, evaluation and cursor streaming.
package web

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/websocket/v2"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/teslashibe/gazepoint/pkg/calibration"
	"github.com/teslashibe/gazepoint/pkg/cursor"
	"github.com/teslashibe/gazepoint/pkg/dwell"
	"github.com/teslashibe/gazepoint/pkg/hub"
	"github.com/teslashibe/gazepoint/pkg/pointer"
	"github.com/teslashibe/gazepoint/pkg/protocol"
	"github.com/teslashibe/gazepoint/pkg/screen"
	"github.com/teslashibe/gazepoint/pkg/sensor"
	"github.com/teslashibe/gazepoint/pkg/store"
)

// Pointer is the live pointer loop as seen by the API.
type Pointer interface {
	Last() pointer.TickResult
	SensorAvailable() bool
	SetProjector(p cursor.Projector)
}

// Options wires the server to the rest of the process.
type Options struct {
	Port   string
	Screen screen.Size

	Store   store.Store
	Targets *pointer.TargetList
	Ingest  *sensor.Slot // receives samples from /ws/sensor and POST /api/samples
	Pointer Pointer      // may be nil when only calibrating

	// CursorRate caps cursor broadcasts per second. Activations are never
	// throttled.
	CursorRate float64

	Logger *zap.Logger
}

// Server is the web API server
type Server struct {
	app    *fiber.App
	port   string
	screen screen.Size
	logger *zap.Logger

	store   store.Store
	targets *pointer.TargetList
	ingest  *sensor.Slot
	pointer Pointer

	// Hub for websocket broadcast (thread-safe!)
	cursorHub     *hub.Hub
	cursorLimiter *rate.Limiter

	// Calibration state
	mu      sync.Mutex
	session *calibration.Session
	model   *calibration.Model
}

// NewServer creates a new web API server
func NewServer(opts Options) *Server {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Targets == nil {
		opts.Targets = pointer.NewTargetList()
	}
	if opts.Ingest == nil {
		opts.Ingest = sensor.NewSlot()
	}
	if opts.CursorRate <= 0 {
		opts.CursorRate = 30
	}

	s := &Server{
		port:          opts.Port,
		screen:        opts.Screen,
		logger:        opts.Logger,
		store:         opts.Store,
		targets:       opts.Targets,
		ingest:        opts.Ingest,
		pointer:       opts.Pointer,
		cursorHub:     hub.New("cursor", opts.Logger),
		cursorLimiter: rate.NewLimiter(rate.Limit(opts.CursorRate), 1),
	}

	app := fiber.New(fiber.Config{
		AppName:               "gazepoint",
		DisableStartupMessage: true,
		ErrorHandler:          s.handleError,
	})

	// CORS for local development
	app.Use(cors.New())

	// API routes
	api := app.Group("/api")
	api.Get("/status", s.handleStatus)
	api.Get("/anchors", s.handleAnchors)
	api.Get("/targets", s.handleGetTargets)
	api.Put("/targets", s.handlePutTargets)
	api.Post("/samples", s.handlePostSamples)
	api.Get("/calibration", s.handleGetCalibration)
	api.Post("/calibration/session", s.handleStartSession)
	api.Get("/calibration/session", s.handleGetSession)
	api.Post("/calibration/session/trigger", s.handleTrigger)
	api.Post("/calibration/session/finish", s.handleFinish)
	api.Post("/calibration/session/commit", s.handleCommit)
	api.Get("/evaluation", s.handleEvaluation)

	// WebSocket upgrade middleware
	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})

	// WebSocket routes
	app.Get("/ws/cursor", websocket.New(s.handleCursorWS))
	app.Get("/ws/sensor", websocket.New(s.handleSensorWS))

	s.app = app
	return s
}

// Run serves until ctx is done, then shuts the server down.
func (s *Server) Run(ctx context.Context) error {
	hubCtx, stopHub := context.WithCancel(context.Background())
	defer func() {
		stopHub()
		<-s.cursorHub.Done()
	}()
	go s.cursorHub.Run(hubCtx)

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("web api listening", zap.String("addr", "http://localhost:"+s.port))
		errCh <- s.app.Listen(":" + s.port)
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("web server: %w", err)
	case <-ctx.Done():
	}

	if err := s.app.ShutdownWithTimeout(5 * time.Second); err != nil {
		return fmt.Errorf("web shutdown: %w", err)
	}
	return nil
}

// App exposes the fiber app for tests and embedding.
func (s *Server) App() *fiber.App {
	return s.app
}

// Hub returns the cursor hub; the caller runs it when not using Run.
func (s *Server) Hub() *hub.Hub {
	return s.cursorHub
}

// SetModel installs a model loaded at startup.
func (s *Server) SetModel(m *calibration.Model) {
	s.mu.Lock()
	s.model = m
	s.mu.Unlock()
}

// PublishTick streams a tick to cursor clients, throttled to CursorRate.
func (s *Server) PublishTick(res pointer.TickResult) {
	if !s.cursorLimiter.Allow() {
		return
	}
	msg, err := protocol.NewCursorMessage(cursorData(res))
	if err != nil {
		s.logger.Warn("encode cursor", zap.Error(err))
		return
	}
	s.cursorHub.BroadcastMessage(msg)
}

// Publish implements pointer.ActivationSink by broadcasting to cursor
// clients.
func (s *Server) Publish(a dwell.Activation) error {
	msg, err := protocol.NewActivationMessage(a)
	if err != nil {
		return err
	}
	return s.cursorHub.BroadcastMessage(msg)
}

// FeedSample routes a sample into an open calibration step, if any.
func (s *Server) FeedSample(sample calibration.RawSample) {
	s.mu.Lock()
	sess := s.session
	s.mu.Unlock()
	if sess == nil || !sess.Collecting() {
		return
	}
	if err := sess.AddSample(sample); err != nil && !errors.Is(err, calibration.ErrNoActiveAnchor) {
		s.logger.Warn("calibration sample rejected", zap.Error(err))
	}
}

func cursorData(res pointer.TickResult) protocol.CursorData {
	px, py := res.Cursor.Position.Pixel()
	return protocol.CursorData{
		X:       res.Cursor.Position.X,
		Y:       res.Cursor.Position.Y,
		RawX:    res.Cursor.Target.X,
		RawY:    res.Cursor.Target.Y,
		PixelX:  px,
		PixelY:  py,
		Phase:   res.Dwell.Phase.String(),
		Target:  res.Dwell.Target,
		Dwell:   res.Progress,
		Stale:   !res.Fresh,
		TickSeq: res.Seq,
	}
}
