// Package checkpoint persists batch progress so an interrupted run can resume.
package checkpoint

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Progress is the on-disk checkpoint document.
type Progress struct {
	// LastIndex is the 0-based index of the first domain not yet completed.
	LastIndex int       `json:"last_index"`
	Timestamp Timestamp `json:"timestamp"`
	// Results maps domain to its extracted addresses.
	Results map[string][]string `json:"results"`
	// Outcomes maps domain to its outcome name.
	Outcomes map[string]string `json:"outcomes,omitempty"`
}

// Store reads and writes one checkpoint file.
type Store struct {
	path   string
	logger *slog.Logger
	now    func() time.Time
}

// NewStore creates a Store for path.
func NewStore(path string, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{path: path, logger: logger, now: time.Now}
}

// DefaultPath derives the checkpoint path from the input workbook path.
func DefaultPath(input string) string {
	return strings.TrimSuffix(input, filepath.Ext(input)) + "_progress.json"
}

// Path returns the checkpoint file location.
func (s *Store) Path() string { return s.path }

// Save writes p atomically. A zero Timestamp is filled with the current time.
func (s *Store) Save(p Progress) error {
	if p.Timestamp.IsZero() {
		p.Timestamp = At(s.now())
	}
	if p.Results == nil {
		p.Results = map[string][]string{}
	}
	for d, addrs := range p.Results {
		if addrs == nil {
			p.Results[d] = []string{}
		}
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(p); err != nil {
		return fmt.Errorf("checkpoint: encode: %w", err)
	}

	dir := filepath.Dir(s.path)
	tmp, err := os.CreateTemp(dir, filepath.Base(s.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("checkpoint: create temp: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(buf.Bytes()); err != nil {
		tmp.Close()
		return fmt.Errorf("checkpoint: write: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("checkpoint: sync: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("checkpoint: close: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return fmt.Errorf("checkpoint: rename: %w", err)
	}

	s.logger.Info("progress saved", "path", s.path, "last_index", p.LastIndex, "results", len(p.Results))
	return nil
}

// Load reads the checkpoint. found is false when no usable checkpoint
// exists; a corrupt file is logged and reported as not found.
func (s *Store) Load() (p Progress, found bool, err error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return Progress{}, false, nil
	}
	if err != nil {
		return Progress{}, false, fmt.Errorf("checkpoint: read: %w", err)
	}

	if err := json.Unmarshal(data, &p); err != nil {
		s.logger.Warn("ignoring unreadable progress file", "path", s.path, "err", err)
		return Progress{}, false, nil
	}
	if p.LastIndex < 0 {
		s.logger.Warn("ignoring progress file with negative index", "path", s.path, "last_index", p.LastIndex)
		return Progress{}, false, nil
	}
	if p.Results == nil {
		p.Results = map[string][]string{}
	}

	s.logger.Info("found progress file", "path", s.path, "last_index", p.LastIndex, "timestamp", p.Timestamp.Time)
	return p, true, nil
}

// Remove deletes the checkpoint file if present.
func (s *Store) Remove() error {
	if err := os.Remove(s.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("checkpoint: remove: %w", err)
	}
	return nil
}
