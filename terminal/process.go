package terminal

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// ProcessRecord is the persisted description of one background process.
// Log and status files are leaked by design; cleanup is out of scope.
type ProcessRecord struct {
	ProcessID  string  `json:"process_id"`
	PID        int     `json:"pid"`
	Command    string  `json:"command"`
	Cwd        string  `json:"cwd,omitempty"`
	LogPath    string  `json:"log_path"`
	StatusPath string  `json:"status_path"`
	StartedAt  float64 `json:"started_at"`
}

// ProcessStatus is a point-in-time view of a background process.
type ProcessStatus struct {
	ProcessID string `json:"process_id"`
	PID       int    `json:"pid"`
	Running   bool   `json:"running"`
	ExitCode  *int   `json:"exit_code"`
	Output    string `json:"output"`
}

// indexAll reads the whole index, treating a missing or corrupt file as
// empty.
func (m *Manager) indexAll() []ProcessRecord {
	data, err := os.ReadFile(m.indexPath)
	if err != nil {
		return []ProcessRecord{}
	}
	var records []ProcessRecord
	if err := json.Unmarshal(data, &records); err != nil {
		return []ProcessRecord{}
	}
	return records
}

// indexGet finds one record by process id.
func (m *Manager) indexGet(processID string) *ProcessRecord {
	for _, r := range m.indexAll() {
		if r.ProcessID == processID {
			return &r
		}
	}
	return nil
}

// indexPut appends a record by rewriting the whole index. Not safe against
// concurrent writers; single-writer use is assumed.
func (m *Manager) indexPut(record ProcessRecord) error {
	records := append(m.indexAll(), record)

	if err := os.MkdirAll(filepath.Dir(m.indexPath), 0o755); err != nil {
		return fmt.Errorf("create index directory: %w", err)
	}
	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return fmt.Errorf("encode process index: %w", err)
	}
	if err := os.WriteFile(m.indexPath, data, 0o644); err != nil {
		return fmt.Errorf("write process index: %w", err)
	}
	return nil
}
