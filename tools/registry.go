// Package tools declares the callable tool surface offered to the model and
// dispatches named calls against the filesystem, the patch engine, and the
// terminal manager. Every outcome is normalized to a uniform envelope:
// {"ok": true, ...} on success, {"ok": false, "error": ...} on any failure.
package tools

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/loopkit/loopkit/diffs"
	"github.com/loopkit/loopkit/llm"
	"github.com/loopkit/loopkit/patch"
	"github.com/loopkit/loopkit/terminal"
)

// Registry owns the tool palette and the lazily created terminal manager.
type Registry struct {
	Workdir  string
	StateDir string
	Shell    string // optional shell path override for the terminal manager

	mu   sync.Mutex
	term *terminal.Manager
}

// NewRegistry creates a Registry rooted at workdir with state under
// stateDir (resolved against workdir when relative).
func NewRegistry(workdir, stateDir string) *Registry {
	if workdir == "" {
		workdir = "."
	}
	if stateDir == "" {
		stateDir = ".agent"
	}
	return &Registry{Workdir: workdir, StateDir: stateDir}
}

// Terminal returns the shared terminal manager, creating it on first use.
func (r *Registry) Terminal() *terminal.Manager {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.term == nil {
		r.term = terminal.NewManager(terminal.Options{
			Workdir:   r.Workdir,
			StateDir:  r.StateDir,
			ShellPath: r.Shell,
		})
	}
	return r.term
}

// Close shuts down the terminal manager if one was created.
func (r *Registry) Close() {
	r.mu.Lock()
	term := r.term
	r.mu.Unlock()
	if term != nil {
		term.Close()
	}
}

// Execute dispatches a named tool call. It never propagates a failure to
// the caller: errors and panics alike become {"ok": false, "error": ...}.
func (r *Registry) Execute(name string, args map[string]any) (result map[string]any) {
	defer func() {
		if p := recover(); p != nil {
			result = fail(fmt.Sprint(p))
		}
	}()

	switch name {
	case "read_file":
		return r.readFile(args)
	case "list_dir":
		return r.listDir(args)
	case "grep_search":
		return r.grepSearch(args)
	case "write_file":
		return r.writeFile(args)
	case "apply_patch":
		return r.applyPatch(args)
	case "create_diff":
		return r.createDiff(args)
	case "execute_command":
		return r.executeCommand(args)
	case "get_process_output":
		return r.getProcessOutput(args)
	case "list_processes":
		return r.listProcesses(args)
	}
	return fail("Unknown tool: " + name)
}

func (r *Registry) applyPatch(args map[string]any) map[string]any {
	patchText, ok := stringArg(args, "patch")
	if !ok {
		return fail("patch is required")
	}
	res, err := patch.Apply(patchText)
	if err != nil {
		return fail(err.Error())
	}
	return map[string]any{"ok": true, "applied": res.Applied}
}

func (r *Registry) createDiff(args map[string]any) map[string]any {
	path, ok := stringArg(args, "path")
	if !ok {
		return fail("path is required")
	}
	newContent, ok := stringArg(args, "new_content")
	if !ok {
		return fail("new_content is required")
	}
	old := readFileOrEmpty(path)
	d, err := diffs.Unified(path, old, newContent)
	if err != nil {
		return fail(err.Error())
	}
	return map[string]any{"ok": true, "path": path, "diff": d}
}

func (r *Registry) executeCommand(args map[string]any) map[string]any {
	command, ok := stringArg(args, "command")
	if !ok {
		return fail("command is required")
	}
	cwd, _ := stringArg(args, "cwd")
	timeoutS, ok := intArg(args, "timeout_s")
	if !ok || timeoutS <= 0 {
		timeoutS = 120
	}
	isBackground, _ := boolArg(args, "is_background")

	term := r.Terminal()
	if isBackground {
		record, err := term.StartBackground(command, cwd)
		if err != nil {
			return fail(err.Error())
		}
		return map[string]any{
			"ok":          true,
			"background":  true,
			"process_id":  record.ProcessID,
			"pid":         record.PID,
			"log_path":    record.LogPath,
			"status_path": record.StatusPath,
		}
	}

	res, err := term.Execute(command, cwd, time.Duration(timeoutS)*time.Second)
	if err != nil {
		return fail(err.Error())
	}
	return map[string]any{
		"ok":         true,
		"background": false,
		"exit_code":  res.ExitCode,
		"stdout":     res.Output,
		"stderr":     "", // stderr is merged into stdout
	}
}

func (r *Registry) getProcessOutput(args map[string]any) map[string]any {
	processID, ok := stringArg(args, "process_id")
	if !ok {
		return fail("process_id is required")
	}
	tailLines, ok := intArg(args, "tail_lines")
	if !ok {
		tailLines = 200
	}

	status, err := r.Terminal().GetProcessOutput(processID, tailLines)
	if err != nil {
		return fail(err.Error())
	}
	return map[string]any{
		"ok":         true,
		"process_id": status.ProcessID,
		"pid":        status.PID,
		"running":    status.Running,
		"exit_code":  status.ExitCode,
		"output":     status.Output,
	}
}

func (r *Registry) listProcesses(_ map[string]any) map[string]any {
	return map[string]any{"ok": true, "processes": r.Terminal().ListProcesses()}
}

func fail(message string) map[string]any {
	return map[string]any{"ok": false, "error": message}
}

// Argument extraction helpers. Tool arguments arrive as generic JSON maps,
// so numbers are usually float64.

func stringArg(args map[string]any, key string) (string, bool) {
	v, ok := args[key]
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

func intArg(args map[string]any, key string) (int, bool) {
	v, ok := args[key]
	if !ok {
		return 0, false
	}
	switch n := v.(type) {
	case float64:
		return int(n), true
	case int:
		return n, true
	case json.Number:
		i, err := n.Int64()
		if err != nil {
			return 0, false
		}
		return int(i), true
	}
	return 0, false
}

func boolArg(args map[string]any, key string) (bool, bool) {
	v, ok := args[key]
	if !ok {
		return false, false
	}
	b, ok := v.(bool)
	return b, ok
}

// Schemas returns the tool schema set, both for model requests and for
// human-readable listing.
func (r *Registry) Schemas() []llm.ToolSchema {
	return toolSchemas()
}
