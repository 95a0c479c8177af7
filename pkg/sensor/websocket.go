package sensor

import (
	"context"
	"fmt"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	minBackoff = 250 * time.Millisecond
	maxBackoff = 10 * time.Second
)

// WebSocketSource dials a sensor that streams samples over a WebSocket and
// reconnects with exponential backoff when the stream drops.
type WebSocketSource struct {
	*Slot

	url    string
	dialer *websocket.Dialer
	logger *zap.Logger
}

// NewWebSocketSource creates a source for url.
func NewWebSocketSource(url string, logger *zap.Logger) *WebSocketSource {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &WebSocketSource{
		Slot:   NewSlot(),
		url:    url,
		dialer: &websocket.Dialer{HandshakeTimeout: 10 * time.Second},
		logger: logger.With(zap.String("url", url)),
	}
}

// Run reads samples until ctx is done.
func (s *WebSocketSource) Run(ctx context.Context) error {
	backoff := minBackoff
	for {
		err := s.stream(ctx)
		if ctx.Err() != nil {
			return nil
		}
		if err == nil {
			backoff = minBackoff
		}
		s.logger.Warn("sensor stream ended, reconnecting", zap.Error(err), zap.Duration("backoff", backoff))

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(backoff):
		}
		backoff *= 2
		if backoff > maxBackoff {
			backoff = maxBackoff
		}
	}
}

// stream runs one connection. It returns nil if at least one sample was
// received before the connection dropped.
func (s *WebSocketSource) stream(ctx context.Context) error {
	conn, _, err := s.dialer.DialContext(ctx, s.url, nil)
	if err != nil {
		return fmt.Errorf("dial sensor: %w", err)
	}
	defer conn.Close()
	s.logger.Info("sensor stream connected")

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-done:
		}
	}()

	received := false
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if received {
				return nil
			}
			return fmt.Errorf("read sensor: %w", err)
		}
		sample, err := DecodeSample(data)
		if err != nil {
			s.logger.Debug("dropping sample", zap.Error(err))
			continue
		}
		s.Publish(sample)
		received = true
	}
}
