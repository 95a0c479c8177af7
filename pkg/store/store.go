// Package store persists calibration sets between runs.
package store

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/teslashibe/gazepoint/pkg/calibration"
)

// ErrNotFound is returned by Load when nothing has been saved yet.
var ErrNotFound = errors.New("store: calibration not found")

// Store defines the interface for calibration persistence.
type Store interface {
	// Save replaces the stored set with set
	Save(ctx context.Context, set calibration.Set) error

	// Load returns the stored set, or ErrNotFound
	Load(ctx context.Context) (calibration.Set, error)

	// Close releases any resources held by the store
	Close() error
}

// Driver names accepted by Open.
const (
	DriverJSON   = "json"
	DriverSQLite = "sqlite"
)

// Open returns a store for driver at path.
func Open(driver, path string, logger *zap.Logger) (Store, error) {
	switch driver {
	case DriverJSON, "":
		return NewJSONStore(path, logger)
	case DriverSQLite:
		return NewSQLiteStore(path)
	default:
		return nil, fmt.Errorf("store: unknown driver %q", driver)
	}
}
