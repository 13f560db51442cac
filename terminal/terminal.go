// Package terminal owns one persistent shell subprocess per Manager.
//
// Foreground commands run inside the shell's own context, so state
// mutations (cd, export) persist across calls. Background commands are
// launched as detached jobs of the same shell with file-based output and
// status tracking, so they cannot mutate the shared foreground state.
package terminal

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/google/uuid"
)

// Error is a terminal-level failure: a command timeout, a dead shell, or a
// lookup miss in the background-process index.
type Error struct {
	Message string
}

func (e *Error) Error() string { return e.Message }

func errorf(format string, args ...any) *Error {
	return &Error{Message: fmt.Sprintf(format, args...)}
}

// ExecResult is the outcome of a foreground command. Output carries the
// merged stdout+stderr stream; stderr is never captured separately.
type ExecResult struct {
	ExitCode int
	Output   string
}

// Options configures a Manager.
type Options struct {
	Workdir   string // defaults to "."
	StateDir  string // defaults to ".agent", resolved against Workdir if relative
	ShellPath string // defaults to /bin/zsh
}

// Manager maintains a single persistent shell process plus the background
// process index. It is safe for use by one conversation at a time; the
// index file is read-modified-written without locking, so two managers
// pointed at the same state directory can lose updates.
type Manager struct {
	workdir   string
	stateDir  string
	shellPath string
	indexPath string

	mu     sync.Mutex
	proc   *exec.Cmd
	stdin  io.WriteCloser
	output *os.File
	lines  chan string
	exited chan struct{}
}

// NewManager creates a Manager. Paths are normalized early so background
// log/status paths stay stable even after the shell changes its cwd.
func NewManager(opts Options) *Manager {
	workdir := opts.Workdir
	if workdir == "" {
		workdir = "."
	}
	workdir, _ = filepath.Abs(workdir)

	stateDir := opts.StateDir
	if stateDir == "" {
		stateDir = ".agent"
	}
	if !filepath.IsAbs(stateDir) {
		stateDir = filepath.Join(workdir, stateDir)
	}

	shellPath := opts.ShellPath
	if shellPath == "" {
		shellPath = "/bin/zsh"
	}

	return &Manager{
		workdir:   workdir,
		stateDir:  stateDir,
		shellPath: shellPath,
		indexPath: filepath.Join(stateDir, "proc", "index.json"),
	}
}

// Workdir returns the manager's normalized working directory.
func (m *Manager) Workdir() string { return m.workdir }

// StateDir returns the manager's normalized state directory.
func (m *Manager) StateDir() string { return m.stateDir }

// Close terminates the shell process, best-effort: terminate, short wait,
// then kill. All errors are swallowed. Safe to call repeatedly.
func (m *Manager) Close() {
	m.mu.Lock()
	proc := m.proc
	stdin := m.stdin
	output := m.output
	exited := m.exited
	m.proc = nil
	m.stdin = nil
	m.output = nil
	m.lines = nil
	m.exited = nil
	m.mu.Unlock()

	if stdin != nil {
		_ = stdin.Close()
	}
	if output != nil {
		_ = output.Close()
	}
	if proc == nil || proc.Process == nil {
		return
	}

	_ = proc.Process.Signal(syscall.SIGTERM)
	if exited != nil {
		select {
		case <-exited:
			return
		case <-time.After(time.Second):
		}
	}
	_ = proc.Process.Kill()
	if exited != nil {
		select {
		case <-exited:
		case <-time.After(time.Second):
		}
	}
}

// ensureShell lazily spawns the persistent shell, or respawns it if the
// previous one died. Callers must hold m.mu.
func (m *Manager) ensureShell() error {
	if m.proc != nil {
		select {
		case <-m.exited:
			// Shell died; fall through and respawn.
		default:
			return nil
		}
	}

	if err := os.MkdirAll(filepath.Join(m.stateDir, "proc"), 0o755); err != nil {
		return fmt.Errorf("create state directory: %w", err)
	}

	cmd := exec.Command(m.shellPath)

	readEnd, writeEnd, err := os.Pipe()
	if err != nil {
		return fmt.Errorf("create output pipe: %w", err)
	}
	// One shared pipe merges stdout and stderr.
	cmd.Stdout = writeEnd
	cmd.Stderr = writeEnd

	stdin, err := cmd.StdinPipe()
	if err != nil {
		readEnd.Close()
		writeEnd.Close()
		return fmt.Errorf("open shell stdin: %w", err)
	}

	if err := cmd.Start(); err != nil {
		readEnd.Close()
		writeEnd.Close()
		return fmt.Errorf("start shell %s: %w", m.shellPath, err)
	}
	// The child holds its own copy of the write end.
	writeEnd.Close()

	lines := make(chan string, 4096)
	exited := make(chan struct{})

	// A single reader goroutine owns the output pipe for the life of the
	// shell. Foreground reads select on the channel with a deadline, so a
	// timed-out command leaves the stream intact for the next call.
	go func() {
		r := bufio.NewReader(readEnd)
		for {
			line, err := r.ReadString('\n')
			if len(line) > 0 {
				lines <- strings.TrimRight(line, "\r\n")
			}
			if err != nil {
				close(lines)
				return
			}
		}
	}()

	go func() {
		_ = cmd.Wait()
		close(exited)
	}()

	m.proc = cmd
	m.stdin = stdin
	m.output = readEnd
	m.lines = lines
	m.exited = exited

	// Set the initial working directory and drain any startup banner.
	if err := m.writeLine(fmt.Sprintf(`cd "%s"`, m.workdir)); err != nil {
		return err
	}
	m.drain(50 * time.Millisecond)
	return nil
}

// Execute runs a foreground command in the persistent shell and returns the
// merged output plus exit code. A non-empty cwd issues a cd that persists
// for later calls. On timeout the shell is left running; its pending output
// may be misattributed to the next command.
func (m *Manager) Execute(command, cwd string, timeout time.Duration) (*ExecResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.ensureShell(); err != nil {
		return nil, err
	}

	id := newID()
	start := "__AGENT_CMD_START__" + id + "__"
	end := "__AGENT_CMD_END__" + id + "__"

	prefix := ""
	if cwd != "" {
		prefix = fmt.Sprintf(`cd "%s"; `, cwd)
	}
	// Brace-group so the command runs in the current shell context with
	// stderr merged, followed by the end marker carrying $?.
	wrapped := fmt.Sprintf(`echo "%s"; %s{ %s; } 2>&1; echo "%s:$?"`, start, prefix, command, end)

	if err := m.writeLine(wrapped); err != nil {
		return nil, err
	}

	var out []string
	deadline := time.Now().Add(timeout)
	for {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return nil, errorf("Timeout waiting for command to finish (%ds)", int(timeout/time.Second))
		}

		select {
		case line, ok := <-m.lines:
			if !ok {
				return nil, &Error{Message: "Shell terminated unexpectedly"}
			}
			if strings.HasPrefix(line, end+":") {
				code, err := strconv.Atoi(line[len(end)+1:])
				if err != nil {
					code = 0
				}
				return &ExecResult{
					ExitCode: code,
					Output:   strings.TrimRight(strings.Join(out, "\n"), "\n"),
				}, nil
			}
			if strings.HasPrefix(line, "__AGENT_CMD_START__") {
				continue
			}
			out = append(out, line)
		case <-time.After(remaining):
			return nil, errorf("Timeout waiting for command to finish (%ds)", int(timeout/time.Second))
		}
	}
}

// StartBackground launches a command as a detached background job of the
// persistent shell. Output is redirected to a per-process log file and the
// exit code is captured to a status file once the job finishes; the record
// is appended to the index for cross-call lookup.
func (m *Manager) StartBackground(command, cwd string) (*ProcessRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.ensureShell(); err != nil {
		return nil, err
	}

	id := newID()
	logPath := filepath.Join(m.stateDir, "proc", id+".log")
	statusPath := filepath.Join(m.stateDir, "proc", id+".status")
	marker := "__AGENT_BG__" + id + "__"

	prefix := ""
	if cwd != "" {
		prefix = fmt.Sprintf(`cd "%s"; `, cwd)
	}
	// The outer brace-group runs as a background job, so it cannot affect
	// the shell's own state.
	launch := fmt.Sprintf(`%s{ { %s; } > "%s" 2>&1; echo $? > "%s"; } & echo "%s:PID:$!"`,
		prefix, command, logPath, statusPath, marker)

	if err := m.writeLine(launch); err != nil {
		return nil, err
	}

	pid, err := m.readBackgroundPID(marker, 5*time.Second)
	if err != nil {
		return nil, err
	}

	record := &ProcessRecord{
		ProcessID:  id,
		PID:        pid,
		Command:    command,
		Cwd:        cwd,
		LogPath:    logPath,
		StatusPath: statusPath,
		StartedAt:  float64(time.Now().UnixNano()) / float64(time.Second),
	}
	if err := m.indexPut(*record); err != nil {
		return nil, err
	}
	return record, nil
}

// readBackgroundPID reads shell output until the PID marker line appears.
func (m *Manager) readBackgroundPID(marker string, timeout time.Duration) (int, error) {
	deadline := time.Now().Add(timeout)
	for {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return 0, &Error{Message: "Timeout waiting for background PID"}
		}
		select {
		case line, ok := <-m.lines:
			if !ok {
				return 0, &Error{Message: "Shell terminated unexpectedly"}
			}
			line = strings.TrimSpace(line)
			if rest, found := strings.CutPrefix(line, marker+":PID:"); found {
				pid, err := strconv.Atoi(rest)
				if err != nil {
					return 0, errorf("malformed PID marker: %s", line)
				}
				return pid, nil
			}
		case <-time.After(remaining):
			return 0, &Error{Message: "Timeout waiting for background PID"}
		}
	}
}

// GetProcessOutput reports a background process's tail output, exit code
// when finished, and a poll-based liveness verdict. An unknown process id
// is an *Error, not a panic; callers surface it as a structured result.
func (m *Manager) GetProcessOutput(processID string, tailLines int) (*ProcessStatus, error) {
	record := m.indexGet(processID)
	if record == nil {
		return nil, errorf("Unknown process_id: %s", processID)
	}

	output := ""
	if data, err := os.ReadFile(record.LogPath); err == nil {
		lines := splitLogLines(string(data))
		if tailLines > 0 && len(lines) > tailLines {
			lines = lines[len(lines)-tailLines:]
		}
		output = strings.Join(lines, "\n")
	}

	var exitCode *int
	if data, err := os.ReadFile(record.StatusPath); err == nil {
		if code, err := strconv.Atoi(strings.TrimSpace(string(data))); err == nil {
			exitCode = &code
		}
	}

	// Zero-signal probe; a failed probe means the process is gone.
	alive := syscall.Kill(record.PID, 0) == nil

	return &ProcessStatus{
		ProcessID: processID,
		PID:       record.PID,
		Running:   alive && exitCode == nil,
		ExitCode:  exitCode,
		Output:    output,
	}, nil
}

// ListProcesses returns the raw index contents.
func (m *Manager) ListProcesses() []ProcessRecord {
	return m.indexAll()
}

func (m *Manager) writeLine(s string) error {
	if m.stdin == nil {
		return &Error{Message: "Shell terminated unexpectedly"}
	}
	if _, err := io.WriteString(m.stdin, s+"\n"); err != nil {
		return errorf("write to shell: %v", err)
	}
	return nil
}

// drain discards whatever output is already buffered, without blocking
// longer than maxWait. Used once after spawn to skip startup noise.
func (m *Manager) drain(maxWait time.Duration) {
	deadline := time.Now().Add(maxWait)
	for {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return
		}
		select {
		case _, ok := <-m.lines:
			if !ok {
				return
			}
		case <-time.After(remaining):
			return
		}
	}
}

func splitLogLines(s string) []string {
	if s == "" {
		return nil
	}
	lines := strings.Split(s, "\n")
	if lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}
	return lines
}

func newID() string {
	return strings.ReplaceAll(uuid.New().String(), "-", "")
}
