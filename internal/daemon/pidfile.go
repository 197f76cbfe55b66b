// Package daemon tracks the background timer process: a PID file for the
// CLI and a store-backed lease that makes it the only ticker.
package daemon

import (
	"encoding/json"
	"fmt"
	"os"
	"time"
)

// Record is the content of the PID file.
type Record struct {
	PID       int       `json:"pid"`
	Owner     string    `json:"owner,omitempty"`
	Port      int       `json:"port,omitempty"`
	StartedAt time.Time `json:"started_at"`
}

// PIDFile manages a PID file for daemon process tracking.
type PIDFile struct {
	Path string
}

// NewPIDFile creates a PIDFile manager for the given path.
func NewPIDFile(path string) *PIDFile {
	return &PIDFile{Path: path}
}

// Write records the current process with its lease owner id and API port.
func (p *PIDFile) Write(owner string, port int) error {
	return p.WriteRecord(Record{
		PID:       os.Getpid(),
		Owner:     owner,
		Port:      port,
		StartedAt: time.Now().UTC(),
	})
}

// WriteRecord writes r to the file.
func (p *PIDFile) WriteRecord(r Record) error {
	data, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("encode PID file: %w", err)
	}
	return os.WriteFile(p.Path, append(data, '\n'), 0o644)
}

// Read reads the record from the file.
func (p *PIDFile) Read() (Record, error) {
	data, err := os.ReadFile(p.Path)
	if err != nil {
		return Record{}, err
	}
	var r Record
	if err := json.Unmarshal(data, &r); err != nil || r.PID <= 0 {
		if err == nil {
			err = fmt.Errorf("pid %d", r.PID)
		}
		return Record{}, fmt.Errorf("invalid PID file content: %w", err)
	}
	return r, nil
}

// Remove deletes the PID file.
func (p *PIDFile) Remove() error {
	return os.Remove(p.Path)
}
