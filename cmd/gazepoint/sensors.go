package main

import (
	"context"
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/teslashibe/gazepoint/internal/config"
	"github.com/teslashibe/gazepoint/internal/log"
	"github.com/teslashibe/gazepoint/pkg/calibration"
	"github.com/teslashibe/gazepoint/pkg/sensor"
	"github.com/teslashibe/gazepoint/pkg/store"
)

const defaultMockInterval = 33 * time.Millisecond

// sourceRunner keeps a sensor source fed until ctx is done.
type sourceRunner func(ctx context.Context) error

// buildSource creates the configured sensor. mock is non-nil for the mock
// source; run is nil when samples are pushed into ingest by the web API.
func (a *app) buildSource(ingest *sensor.Slot) (src sensor.Source, mock *sensor.Mock, run sourceRunner) {
	sc := a.cfg.Sensor
	logger := log.Named("sensor")

	switch sc.Source {
	case config.SourceMQTT:
		s := sensor.NewMQTTSource(sc.MQTT, logger)
		return s, nil, s.Run
	case config.SourceWebSocket:
		s := sensor.NewWebSocketSource(sc.WebSocketURL, logger)
		return s, nil, s.Run
	case config.SourceIngest:
		return ingest, nil, nil
	default:
		m := sensor.NewMock(sensor.MockGaze(calibration.Center.Anchor()), sc.Mock.Jitter, sc.Mock.Seed)
		interval := sc.Mock.Interval
		if interval <= 0 {
			interval = defaultMockInterval
		}
		return m, m, func(ctx context.Context) error { return m.Run(ctx, interval) }
	}
}

func (a *app) openStore() (store.Store, error) {
	return store.Open(a.cfg.Calibration.Driver, a.cfg.Calibration.Path, log.Named("store"))
}

// connectMQTT opens a client used only for publishing.
func connectMQTT(broker, clientID string) (mqtt.Client, error) {
	opts := mqtt.NewClientOptions().
		AddBroker(broker).
		SetClientID(clientID).
		SetAutoReconnect(true)

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("mqtt connect %s: %w", broker, token.Error())
	}
	return client, nil
}
