package pointer

import (
	"errors"
	"fmt"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"

	"github.com/teslashibe/gazepoint/pkg/dwell"
	"github.com/teslashibe/gazepoint/pkg/protocol"
)

// TargetProvider supplies the current selectable regions, highest
// priority first. It is called once per tick and must not block.
type TargetProvider interface {
	Targets() []dwell.Target
}

// TargetList is a replaceable target set shared between the pointer loop
// and whatever lays out the screen.
type TargetList struct {
	mu      sync.RWMutex
	targets []dwell.Target
}

// NewTargetList creates a list holding targets.
func NewTargetList(targets ...dwell.Target) *TargetList {
	return &TargetList{targets: targets}
}

// Targets returns the current list.
func (l *TargetList) Targets() []dwell.Target {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.targets
}

// Set replaces the list.
func (l *TargetList) Set(targets []dwell.Target) {
	cp := append([]dwell.Target(nil), targets...)
	l.mu.Lock()
	l.targets = cp
	l.mu.Unlock()
}

// ActivationSink receives dwell selections.
type ActivationSink interface {
	Publish(a dwell.Activation) error
}

// SinkFunc adapts a function to ActivationSink.
type SinkFunc func(a dwell.Activation) error

// Publish calls f.
func (f SinkFunc) Publish(a dwell.Activation) error {
	return f(a)
}

// MultiSink fans an activation out to every sink, collecting failures.
type MultiSink []ActivationSink

// Publish delivers to every sink even if some fail.
func (m MultiSink) Publish(a dwell.Activation) error {
	var errs []error
	for _, s := range m {
		if err := s.Publish(a); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// LogSink records activations in the log.
type LogSink struct {
	Logger *zap.Logger
}

// Publish logs a.
func (s LogSink) Publish(a dwell.Activation) error {
	s.Logger.Info("activation",
		zap.String("id", a.ID),
		zap.String("target", a.TargetID),
		zap.Time("at", a.At),
		zap.Duration("dwell", a.Dwell))
	return nil
}

// publisher is the subset of mqtt.Client used by MQTTSink.
type publisher interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
}

// MQTTSink publishes activations as protocol messages on a topic.
type MQTTSink struct {
	client  publisher
	topic   string
	timeout time.Duration
}

// NewMQTTSink creates a sink on an already connected client.
func NewMQTTSink(client mqtt.Client, topic string) *MQTTSink {
	return &MQTTSink{client: client, topic: topic, timeout: 2 * time.Second}
}

// Publish sends a without blocking the loop longer than the sink timeout.
func (s *MQTTSink) Publish(a dwell.Activation) error {
	msg, err := protocol.NewActivationMessage(a)
	if err != nil {
		return err
	}
	payload, err := msg.Bytes()
	if err != nil {
		return err
	}

	token := s.client.Publish(s.topic, 1, false, payload)
	if !token.WaitTimeout(s.timeout) {
		return fmt.Errorf("mqtt publish %s: timed out", s.topic)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("mqtt publish %s: %w", s.topic, err)
	}
	return nil
}
