package storage

import (
	"encoding/json"
	"os"
	"sync"
	"time"
)

// Journal is an append-only audit trail of boundary events. Entries carry
// identifiers and counts only, never prices or amounts.
type Journal interface {
	Append(event string, fields map[string]any) error
}

type NopJournal struct{}

func NewNopJournal() *NopJournal                            { return &NopJournal{} }
func (NopJournal) Append(_ string, _ map[string]any) error { return nil }

// FileJournal writes one JSON object per line.
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

func (j *FileJournal) Append(event string, fields map[string]any) error {
	entry := make(map[string]any, len(fields)+2)
	for k, v := range fields {
		entry[k] = v
	}
	entry["event"] = event
	entry["ts"] = time.Now().UTC().Format(time.RFC3339Nano)

	line, err := json.Marshal(entry)
	if err != nil {
		return err
	}
	j.mu.Lock()
	defer j.mu.Unlock()
	_, err = j.f.Write(append(line, '\n'))
	return err
}

func (j *FileJournal) Close() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.f.Close()
}

var _ Journal = (*NopJournal)(nil)
var _ Journal = (*FileJournal)(nil)
