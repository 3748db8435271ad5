package alert

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/dwsmith1983/tfgate/pkg/types"
)

// FileSink appends alerts as JSON lines to a log file. The handle stays
// open for the life of the sink; deploys can emit bursts of alerts and
// reopening per line loses ordering under concurrency.
type FileSink struct {
	mu sync.Mutex
	f  *os.File
}

// fileAlertRecord is the on-disk line format. The emit timestamp is added
// here so the file is useful without correlating against server logs.
type fileAlertRecord struct {
	EmittedAt time.Time   `json:"emittedAt"`
	Alert     types.Alert `json:"alert"`
}

// NewFileSink creates a file alert sink, creating parent directories as
// needed.
func NewFileSink(path string) (*FileSink, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating alert log directory: %w", err)
		}
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("opening alert file: %w", err)
	}
	return &FileSink{f: f}, nil
}

// Name returns the sink identifier.
func (s *FileSink) Name() string { return "file" }

// Send appends the alert as one JSON line.
func (s *FileSink) Send(_ context.Context, alert types.Alert) error {
	data, err := json.Marshal(fileAlertRecord{EmittedAt: time.Now().UTC(), Alert: alert})
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	_, err = s.f.Write(append(data, '\n'))
	return err
}

// Close releases the underlying file handle.
func (s *FileSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.f.Close()
}
