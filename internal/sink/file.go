// Package sink delivers finished fatigue records to a local log file, the
// result store, or both.
package sink

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"onnoon-care/eye-monitor/internal/fatigue"
)

// FileSink keeps every record in one JSON array file. Each delivery reads
// the array, appends and rewrites the file.
type FileSink struct {
	path string
	mu   sync.Mutex
}

func NewFileSink(path string) (*FileSink, error) {
	if path == "" {
		return nil, errors.New("file sink path is empty")
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("could not create log directory: %w", err)
		}
	}
	return &FileSink{path: path}, nil
}

func (s *FileSink) Path() string {
	return s.path
}

// Deliver appends rec to the array.
func (s *FileSink) Deliver(ctx context.Context, rec fatigue.Record) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	records, err := s.load()
	if err != nil {
		return err
	}
	records = append(records, rec)

	data, err := json.MarshalIndent(records, "", "    ")
	if err != nil {
		return fmt.Errorf("could not encode fatigue log: %w", err)
	}

	// write to a temp file first so a crash never leaves half an array
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("could not write fatigue log: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("could not replace fatigue log: %w", err)
	}
	return nil
}

// Records returns the records currently in the file.
func (s *FileSink) Records() ([]fatigue.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.load()
}

func (s *FileSink) load() ([]fatigue.Record, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("could not read fatigue log: %w", err)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, nil
	}

	var records []fatigue.Record
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("fatigue log %s is not a JSON array: %w", s.path, err)
	}
	return records, nil
}
