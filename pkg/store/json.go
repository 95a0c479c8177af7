package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"go.uber.org/zap"

	"github.com/teslashibe/gazepoint/pkg/calibration"
)

// DefaultJSONFile is the conventional calibration file name.
const DefaultJSONFile = "calibration_data.json"

// JSONStore keeps the set in a single JSON file of the form
// {"Center": [count, reserved, dx, dy, width], ...}.
type JSONStore struct {
	path   string
	mu     sync.Mutex
	logger *zap.Logger
}

// NewJSONStore creates a store at path, creating its directory.
// The file itself is written on first Save.
func NewJSONStore(path string, logger *zap.Logger) (*JSONStore, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if path == "" {
		path = DefaultJSONFile
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}
	return &JSONStore{path: path, logger: logger}, nil
}

// Path returns the file location.
func (s *JSONStore) Path() string {
	return s.path
}

// Save writes set atomically via a temp file and rename.
func (s *JSONStore) Save(_ context.Context, set calibration.Set) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := json.MarshalIndent(set, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal calibration: %w", err)
	}

	tmpPath := s.path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := os.Rename(tmpPath, s.path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to rename temp file: %w", err)
	}
	return nil
}

// Load reads the file. Malformed records are skipped with a warning.
func (s *JSONStore) Load(_ context.Context) (calibration.Set, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}

	set, skipped, err := calibration.ParseSet(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", s.path, err)
	}
	for name, err := range skipped {
		s.logger.Warn("skipping malformed calibration record", zap.String("anchor", name), zap.Error(err))
	}
	return set, nil
}

// Close is a no-op.
func (s *JSONStore) Close() error {
	return nil
}
