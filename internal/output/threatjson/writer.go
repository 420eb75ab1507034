package threatjson

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"threatrelay/internal/logger"
	"threatrelay/pkg/models"
)

// Writer journals handled threats to a JSON lines file.
type Writer struct {
	file    *os.File
	encoder *json.Encoder
	mu      sync.Mutex
}

// NewWriter creates a JSONL journal for threats. The file is appended
// to, never truncated, matching the append-only record semantics.
func NewWriter(path string) (*Writer, error) {
	dir := filepath.Dir(path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create journal directory: %w", err)
		}
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open journal file: %w", err)
	}

	logger.Infof("Threat journal initialized: %s", path)
	return &Writer{
		file:    f,
		encoder: json.NewEncoder(f),
	}, nil
}

// WriteThreat appends one threat record.
func (w *Writer) WriteThreat(rec *models.ThreatRecord) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if err := w.encoder.Encode(rec); err != nil {
		return fmt.Errorf("failed to encode threat record: %w", err)
	}
	return nil
}

// Close closes the journal file.
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.file != nil {
		return w.file.Close()
	}
	return nil
}
