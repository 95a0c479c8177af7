package pointer

import (
	"time"

	"github.com/teslashibe/gazepoint/pkg/cursor"
	"github.com/teslashibe/gazepoint/pkg/dwell"
)

// Config holds the pointer loop parameters
type Config struct {
	// Timing
	TickInterval time.Duration `mapstructure:"tick_interval"` // How often the loop polls the sensor
	StaleAfter   time.Duration `mapstructure:"stale_after"`   // No sample for this long = sensor unavailable

	// Behavior
	SmoothingAlpha float64       `mapstructure:"smoothing_alpha"` // Share of the gap closed per tick
	DwellThreshold time.Duration `mapstructure:"dwell_threshold"` // Hover time needed to activate
}

// DefaultConfig returns the standard pointer configuration
func DefaultConfig() Config {
	return Config{
		TickInterval:   100 * time.Millisecond,
		StaleAfter:     time.Second,
		SmoothingAlpha: cursor.DefaultAlpha,
		DwellThreshold: dwell.DefaultThreshold,
	}
}

// withDefaults fills zero fields from DefaultConfig
func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.TickInterval <= 0 {
		c.TickInterval = d.TickInterval
	}
	if c.StaleAfter <= 0 {
		c.StaleAfter = d.StaleAfter
	}
	if c.SmoothingAlpha <= 0 || c.SmoothingAlpha > 1 {
		c.SmoothingAlpha = d.SmoothingAlpha
	}
	if c.DwellThreshold <= 0 {
		c.DwellThreshold = d.DwellThreshold
	}
	return c
}
