// Package config loads gazepoint settings from a YAML file, GAZE_*
// environment variables and built-in defaults.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/teslashibe/gazepoint/internal/log"
	"github.com/teslashibe/gazepoint/pkg/pointer"
	"github.com/teslashibe/gazepoint/pkg/screen"
	"github.com/teslashibe/gazepoint/pkg/sensor"
	"github.com/teslashibe/gazepoint/pkg/store"
)

// EnvPrefix is prepended to every environment override, e.g.
// GAZE_WEB_PORT=9000.
const EnvPrefix = "GAZE"

// Sensor sources.
const (
	SourceMock      = "mock"
	SourceMQTT      = "mqtt"
	SourceWebSocket = "websocket"
	SourceIngest    = "ingest" // samples pushed to /ws/sensor or POST /api/samples
)

// Config is the full process configuration.
type Config struct {
	Screen      screen.Size       `mapstructure:"screen"`
	Pointer     pointer.Config    `mapstructure:"pointer"`
	Calibration CalibrationConfig `mapstructure:"calibration"`
	Sensor      SensorConfig      `mapstructure:"sensor"`
	Activations ActivationsConfig `mapstructure:"activations"`
	Web         WebConfig         `mapstructure:"web"`
	Log         LogConfig         `mapstructure:"log"`
}

// CalibrationConfig selects where calibration sets are persisted.
type CalibrationConfig struct {
	Driver string `mapstructure:"driver"` // json or sqlite
	Path   string `mapstructure:"path"`
}

// SensorConfig selects and configures the gaze sensor.
type SensorConfig struct {
	Source       string            `mapstructure:"source"`
	MQTT         sensor.MQTTConfig `mapstructure:"mqtt"`
	WebSocketURL string            `mapstructure:"websocket_url"`
	Mock         MockSensorConfig  `mapstructure:"mock"`
}

// MockSensorConfig drives the synthetic sensor used for demos.
type MockSensorConfig struct {
	Interval time.Duration `mapstructure:"interval"`
	Jitter   float64       `mapstructure:"jitter"`
	Seed     int64         `mapstructure:"seed"`
}

// ActivationsConfig publishes activations to MQTT when Topic is set. The
// broker defaults to the sensor broker.
type ActivationsConfig struct {
	Broker   string `mapstructure:"broker"`
	Topic    string `mapstructure:"topic"`
	ClientID string `mapstructure:"client_id"`
}

// WebConfig configures the HTTP API.
type WebConfig struct {
	Enabled    bool    `mapstructure:"enabled"`
	Port       string  `mapstructure:"port"`
	CursorRate float64 `mapstructure:"cursor_rate"`
}

// LogConfig mirrors log.Options.
type LogConfig struct {
	Level      string `mapstructure:"level"`
	File       string `mapstructure:"file"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
	Compress   bool   `mapstructure:"compress"`
}

// Options converts the section to logger options.
func (c LogConfig) Options() log.Options {
	return log.Options{
		Level:      c.Level,
		File:       c.File,
		MaxSizeMB:  c.MaxSizeMB,
		MaxBackups: c.MaxBackups,
		MaxAgeDays: c.MaxAgeDays,
		Compress:   c.Compress,
	}
}

// DefaultConfig returns the built-in configuration.
func DefaultConfig() *Config {
	v := viper.New()
	SetDefaults(v)
	cfg, err := fromViper(v)
	if err != nil {
		// Defaults are static; failing to decode them is a programming error.
		panic(fmt.Sprintf("config: decode defaults: %v", err))
	}
	return cfg
}

// SetDefaults registers every default on v.
func SetDefaults(v *viper.Viper) {
	pc := pointer.DefaultConfig()

	// Screen
	v.SetDefault("screen.width", 1920)
	v.SetDefault("screen.height", 1080)

	// Pointer loop
	v.SetDefault("pointer.tick_interval", pc.TickInterval.String())
	v.SetDefault("pointer.stale_after", pc.StaleAfter.String())
	v.SetDefault("pointer.smoothing_alpha", pc.SmoothingAlpha)
	v.SetDefault("pointer.dwell_threshold", pc.DwellThreshold.String())

	// Calibration store
	v.SetDefault("calibration.driver", store.DriverJSON)
	v.SetDefault("calibration.path", store.DefaultJSONFile)

	// Sensor
	v.SetDefault("sensor.source", SourceMock)
	v.SetDefault("sensor.mqtt.broker", "tcp://localhost:1883")
	v.SetDefault("sensor.mqtt.topic", "gaze/samples")
	v.SetDefault("sensor.mqtt.client_id", "gazepoint")
	v.SetDefault("sensor.mqtt.qos", 0)
	v.SetDefault("sensor.websocket_url", "ws://localhost:8765/gaze")
	v.SetDefault("sensor.mock.interval", "33ms")
	v.SetDefault("sensor.mock.jitter", 0.002)
	v.SetDefault("sensor.mock.seed", 1)

	// Activations
	v.SetDefault("activations.broker", "")
	v.SetDefault("activations.topic", "")
	v.SetDefault("activations.client_id", "gazepoint-activations")

	// Web
	v.SetDefault("web.enabled", true)
	v.SetDefault("web.port", "8080")
	v.SetDefault("web.cursor_rate", 30)

	// Logging
	v.SetDefault("log.level", "info")
	v.SetDefault("log.file", "")
	v.SetDefault("log.max_size_mb", 50)
	v.SetDefault("log.max_backups", 3)
	v.SetDefault("log.max_age_days", 28)
	v.SetDefault("log.compress", true)
}

// Load reads path (or ./gazepoint.yaml when empty) on top of the defaults
// and GAZE_* environment overrides. A missing default file is not an
// error.
func Load(path string) (*Config, error) {
	v := viper.New()
	SetDefaults(v)
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.AddConfigPath(".")
		v.SetConfigName("gazepoint")
		v.SetConfigType("yaml")
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("config: read %s: %w", v.ConfigFileUsed(), err)
		}
	}
	return fromViper(v)
}

func fromViper(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: decode: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks cross-field constraints.
func (c *Config) Validate() error {
	if c.Screen.Width <= 0 || c.Screen.Height <= 0 {
		return fmt.Errorf("config: screen must be positive, got %dx%d", c.Screen.Width, c.Screen.Height)
	}
	if a := c.Pointer.SmoothingAlpha; a <= 0 || a > 1 {
		return fmt.Errorf("config: pointer.smoothing_alpha must be in (0, 1], got %v", a)
	}
	switch c.Calibration.Driver {
	case store.DriverJSON, store.DriverSQLite:
	default:
		return fmt.Errorf("config: unknown calibration.driver %q", c.Calibration.Driver)
	}
	switch c.Sensor.Source {
	case SourceMock, SourceMQTT, SourceWebSocket, SourceIngest:
	default:
		return fmt.Errorf("config: unknown sensor.source %q", c.Sensor.Source)
	}
	return nil
}

// ActivationBroker returns the broker activations are published to.
func (c *Config) ActivationBroker() string {
	if c.Activations.Broker != "" {
		return c.Activations.Broker
	}
	return c.Sensor.MQTT.Broker
}
