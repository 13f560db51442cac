// Package history persists an append-only, line-delimited JSON event log.
package history

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Store appends JSON events to a single file, one object per line. Each
// record gets an injected "ts" timestamp (unix seconds) alongside the
// caller-supplied fields.
type Store struct {
	Path string
}

// Append writes one event record. The event map is not mutated.
func (s *Store) Append(event map[string]any) error {
	record := make(map[string]any, len(event)+1)
	record["ts"] = float64(time.Now().UnixNano()) / float64(time.Second)
	for k, v := range event {
		record[k] = v
	}

	dir := filepath.Dir(s.Path)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create history directory: %w", err)
		}
	}

	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("encode history event: %w", err)
	}

	f, err := os.OpenFile(s.Path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open history file: %w", err)
	}
	defer f.Close()

	if _, err := f.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("append history event: %w", err)
	}
	return nil
}

// Tail returns the last n raw lines of the log, newlines included.
func (s *Store) Tail(n int) string {
	if n <= 0 {
		return ""
	}
	data, err := os.ReadFile(s.Path)
	if err != nil {
		return "(no history yet)"
	}

	lines := strings.SplitAfter(string(data), "\n")
	if len(lines) > 0 && lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return strings.Join(lines, "")
}
