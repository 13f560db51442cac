package terminal

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

// newTestManager uses /bin/sh; the marker protocol only needs a POSIX shell.
func newTestManager(t *testing.T) *Manager {
	t.Helper()
	if _, err := os.Stat("/bin/sh"); err != nil {
		t.Skip("/bin/sh not available")
	}
	dir := t.TempDir()
	m := NewManager(Options{
		Workdir:   dir,
		StateDir:  filepath.Join(dir, ".agent"),
		ShellPath: "/bin/sh",
	})
	t.Cleanup(m.Close)
	return m
}

func TestExecuteCapturesOutputAndExitCode(t *testing.T) {
	m := newTestManager(t)

	res, err := m.Execute("echo hello", "", 10*time.Second)
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if res.ExitCode != 0 {
		t.Errorf("exit code: got %d", res.ExitCode)
	}
	if !strings.Contains(res.Output, "hello") {
		t.Errorf("output: %q", res.Output)
	}
}

func TestExecuteNonZeroExit(t *testing.T) {
	m := newTestManager(t)

	res, err := m.Execute("exit 3", "", 10*time.Second)
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if res.ExitCode != 3 {
		t.Errorf("exit code: got %d, want 3", res.ExitCode)
	}
}

func TestExecuteMergesStderr(t *testing.T) {
	m := newTestManager(t)

	res, err := m.Execute("echo oops 1>&2", "", 10*time.Second)
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if !strings.Contains(res.Output, "oops") {
		t.Errorf("stderr not merged: %q", res.Output)
	}
}

func TestExecuteCwdPersistsAcrossCalls(t *testing.T) {
	m := newTestManager(t)
	sub := filepath.Join(m.Workdir(), "subdir")
	if err := os.Mkdir(sub, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}

	res, err := m.Execute("pwd", sub, 10*time.Second)
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if !strings.Contains(res.Output, "subdir") {
		t.Fatalf("cd did not take effect: %q", res.Output)
	}

	// No cwd this time; the session must still be in subdir.
	res, err = m.Execute("pwd", "", 10*time.Second)
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if !strings.Contains(res.Output, "subdir") {
		t.Errorf("cwd did not persist: %q", res.Output)
	}
}

func TestExecuteTimeout(t *testing.T) {
	m := newTestManager(t)

	_, err := m.Execute("sleep 5", "", 500*time.Millisecond)
	var terr *Error
	if err == nil {
		t.Fatal("expected timeout error")
	}
	if !errors.As(err, &terr) {
		t.Fatalf("expected *Error, got %T: %v", err, err)
	}
	if !strings.Contains(terr.Message, "Timeout") {
		t.Errorf("unexpected message: %q", terr.Message)
	}
}

func TestBackgroundProcessLifecycle(t *testing.T) {
	m := newTestManager(t)

	record, err := m.StartBackground("sleep 0.2; echo done-token", "")
	if err != nil {
		t.Fatalf("start background: %v", err)
	}
	if record.ProcessID == "" || record.PID <= 0 {
		t.Fatalf("bad record: %+v", record)
	}

	deadline := time.Now().Add(10 * time.Second)
	var status *ProcessStatus
	for time.Now().Before(deadline) {
		status, err = m.GetProcessOutput(record.ProcessID, 50)
		if err != nil {
			t.Fatalf("get output: %v", err)
		}
		if status.ExitCode != nil {
			break
		}
		time.Sleep(50 * time.Millisecond)
	}
	if status == nil || status.ExitCode == nil {
		t.Fatal("process never finished")
	}
	if *status.ExitCode != 0 {
		t.Errorf("exit code: got %d", *status.ExitCode)
	}
	if !strings.Contains(status.Output, "done-token") {
		t.Errorf("output: %q", status.Output)
	}
	if status.Running {
		t.Error("finished process reported running")
	}
}

func TestGetProcessOutputUnknownID(t *testing.T) {
	m := newTestManager(t)

	_, err := m.GetProcessOutput("nope", 10)
	var terr *Error
	if !errors.As(err, &terr) {
		t.Fatalf("expected *Error, got %v", err)
	}
	if !strings.Contains(terr.Message, "Unknown process_id") {
		t.Errorf("unexpected message: %q", terr.Message)
	}
}

func TestListProcesses(t *testing.T) {
	m := newTestManager(t)

	if got := m.ListProcesses(); len(got) != 0 {
		t.Fatalf("expected empty list, got %d", len(got))
	}

	record, err := m.StartBackground("true", "")
	if err != nil {
		t.Fatalf("start background: %v", err)
	}
	list := m.ListProcesses()
	if len(list) != 1 || list[0].ProcessID != record.ProcessID {
		t.Errorf("unexpected list: %+v", list)
	}
}
