package robot

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

// DefaultCalibrationFile is where calibration records are persisted.
const DefaultCalibrationFile = "config/calibration.json"

// CalibrationStore persists calibration record sets. Failures are
// nonfatal to the session: a failed load means no calibration, a failed
// save leaves calibration valid in memory and on the bus.
type CalibrationStore interface {
	// Load returns the persisted set, or (nil, nil) when none exists.
	Load() (Calibration, error)
	Save(Calibration) error
}

// FileStore persists calibration as an indented JSON file keyed by
// motor name.
type FileStore struct {
	Path string
}

// NewFileStore creates a store at path, or the default location when
// path is empty.
func NewFileStore(path string) *FileStore {
	if path == "" {
		path = DefaultCalibrationFile
	}
	return &FileStore{Path: path}
}

// Load reads and validates the persisted record set.
func (s *FileStore) Load() (Calibration, error) {
	data, err := os.ReadFile(s.Path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read calibration file: %w", err)
	}

	var raw map[string]MotorCalibration
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse calibration file: %w", err)
	}

	cal := make(Calibration, len(raw))
	for name, mc := range raw {
		cal[MotorName(name)] = mc
	}
	if err := cal.Validate(); err != nil {
		return nil, fmt.Errorf("calibration file %s: %w", s.Path, err)
	}

	return cal, nil
}

// Save writes the record set, creating parent directories as needed.
func (s *FileStore) Save(cal Calibration) error {
	if err := os.MkdirAll(filepath.Dir(s.Path), 0755); err != nil {
		return fmt.Errorf("create calibration dir: %w", err)
	}

	data, err := json.MarshalIndent(cal, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal calibration: %w", err)
	}

	if err := os.WriteFile(s.Path, data, 0644); err != nil {
		return fmt.Errorf("write calibration file: %w", err)
	}
	return nil
}
