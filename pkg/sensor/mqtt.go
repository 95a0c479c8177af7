package sensor

import (
	"context"
	"fmt"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"
)

// MQTTConfig locates the topic a sensor bridge publishes samples to.
type MQTTConfig struct {
	Broker   string `mapstructure:"broker"`
	Topic    string `mapstructure:"topic"`
	ClientID string `mapstructure:"client_id"`
	QoS      byte   `mapstructure:"qos"`
}

// MQTTSource subscribes to a sample topic and keeps the newest payload.
type MQTTSource struct {
	*Slot

	cfg    MQTTConfig
	client mqtt.Client
	logger *zap.Logger
}

// NewMQTTSource creates a source; call Run or Connect to start receiving.
func NewMQTTSource(cfg MQTTConfig, logger *zap.Logger) *MQTTSource {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MQTTSource{
		Slot:   NewSlot(),
		cfg:    cfg,
		logger: logger.With(zap.String("broker", cfg.Broker), zap.String("topic", cfg.Topic)),
	}
}

// Connect connects to the broker and subscribes to the sample topic.
func (s *MQTTSource) Connect() error {
	opts := mqtt.NewClientOptions().
		AddBroker(s.cfg.Broker).
		SetClientID(s.cfg.ClientID).
		SetAutoReconnect(true).
		SetOnConnectHandler(func(c mqtt.Client) {
			// Subscriptions are not kept across reconnects.
			if token := c.Subscribe(s.cfg.Topic, s.cfg.QoS, s.handle); token.Wait() && token.Error() != nil {
				s.logger.Error("resubscribe failed", zap.Error(token.Error()))
			}
		}).
		SetConnectionLostHandler(func(_ mqtt.Client, err error) {
			s.logger.Warn("sensor connection lost", zap.Error(err))
		})

	s.client = mqtt.NewClient(opts)
	if token := s.client.Connect(); token.Wait() && token.Error() != nil {
		return fmt.Errorf("mqtt connect %s: %w", s.cfg.Broker, token.Error())
	}
	s.logger.Info("subscribed to sensor samples")
	return nil
}

// Run connects, then blocks until ctx is done and disconnects.
func (s *MQTTSource) Run(ctx context.Context) error {
	if err := s.Connect(); err != nil {
		return err
	}
	<-ctx.Done()
	s.Close()
	return nil
}

// Close disconnects from the broker.
func (s *MQTTSource) Close() {
	if s.client != nil && s.client.IsConnected() {
		s.client.Unsubscribe(s.cfg.Topic).Wait()
		s.client.Disconnect(250)
	}
}

func (s *MQTTSource) handle(_ mqtt.Client, msg mqtt.Message) {
	sample, err := DecodeSample(msg.Payload())
	if err != nil {
		s.logger.Debug("dropping sample", zap.Error(err))
		return
	}
	s.Publish(sample)
}
