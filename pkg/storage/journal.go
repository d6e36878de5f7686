package storage

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"

	"github.com/uhyunpark/orderswap/pkg/app/core/engine"
)

// NopJournal discards settlements.
type NopJournal struct{}

func NewNopJournal() *NopJournal                                  { return &NopJournal{} }
func (j *NopJournal) RecordSettlement(_ *engine.Settlement) error { return nil }

// FileJournal appends one JSON line per settlement, for audit and offline replay.
type FileJournal struct {
	mu sync.Mutex
	f  *os.File
}

func NewFileJournal(path string) (*FileJournal, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, err
	}
	return &FileJournal{f: f}, nil
}

func (j *FileJournal) RecordSettlement(s *engine.Settlement) error {
	line, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("failed to marshal settlement: %w", err)
	}

	j.mu.Lock()
	defer j.mu.Unlock()
	if _, err := fmt.Fprintln(j.f, string(line)); err != nil {
		return fmt.Errorf("failed to append settlement: %w", err)
	}
	return nil
}

func (j *FileJournal) Close() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.f.Close()
}

// Recorders fans a settlement out to several recorders, stopping at the first error.
type Recorders []engine.Recorder

func (rs Recorders) RecordSettlement(s *engine.Settlement) error {
	for _, r := range rs {
		if err := r.RecordSettlement(s); err != nil {
			return err
		}
	}
	return nil
}

var (
	_ engine.Recorder = (*NopJournal)(nil)
	_ engine.Recorder = (*FileJournal)(nil)
	_ engine.Recorder = Recorders(nil)
)
