package task_test

import (
	"bytes"
	"io"
	"os/exec"
	"strings"
	"sync"
	"syscall"
	"testing"
	"time"

	"github.com/adamgreloch/taskshell/dispatchlock"
	"github.com/adamgreloch/taskshell/task"
)

// mockCommand is a test double implementing task.Command, modeled on the
// teacher's engine_test.go MockCommand.
type mockCommand struct {
	mu sync.Mutex

	stdoutLines []string
	stderrLines []string
	startErr    error
	waitErr     error
	pgid        int

	stdoutW *io.PipeWriter
	stderrW *io.PipeWriter
	stdoutR *io.PipeReader
	stderrR *io.PipeReader

	signals []syscall.Signal
}

func newMockCommand(pgid int) *mockCommand {
	sr, sw := io.Pipe()
	er, ew := io.Pipe()
	return &mockCommand{
		pgid:    pgid,
		stdoutR: sr, stdoutW: sw,
		stderrR: er, stderrW: ew,
	}
}

func (m *mockCommand) StdoutPipe() (io.ReadCloser, error) { return m.stdoutR, nil }
func (m *mockCommand) StderrPipe() (io.ReadCloser, error) { return m.stderrR, nil }

func (m *mockCommand) Start() error {
	if m.startErr != nil {
		return m.startErr
	}
	go func() {
		for _, l := range m.stdoutLines {
			_, _ = io.WriteString(m.stdoutW, l+"\n")
		}
		_ = m.stdoutW.Close()
	}()
	go func() {
		for _, l := range m.stderrLines {
			_, _ = io.WriteString(m.stderrW, l+"\n")
		}
		_ = m.stderrW.Close()
	}()
	return nil
}

func (m *mockCommand) Wait() error { return m.waitErr }
func (m *mockCommand) Pgid() int   { return m.pgid }

func (m *mockCommand) Signal(sig syscall.Signal) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.signals = append(m.signals, sig)
	return nil
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatal("condition never became true")
}

func TestRunnerReportsStartedThenEnded(t *testing.T) {
	lock := dispatchlock.New()
	var out bytes.Buffer
	mock := newMockCommand(4242)

	r := &task.Runner{
		Lock:    lock,
		Out:     &out,
		Factory: func(args []string) task.Command { return mock },
	}

	rec := &task.Record{Args: []string{"mock"}}

	lock.BeforeDispatch()
	lock.BeforeRun()
	lock.AfterDispatch()

	done := make(chan struct{})
	go func() {
		r.Run(0, rec)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return")
	}

	output := out.String()
	lines := strings.Split(strings.TrimRight(output, "\n"), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected exactly 2 lines, got %d: %q", len(lines), output)
	}
	if lines[0] != "Task 0 started: pid 4242." {
		t.Fatalf("unexpected started line: %q", lines[0])
	}
	if lines[1] != "Task 0 ended: status 0." {
		t.Fatalf("unexpected ended line: %q", lines[1])
	}
}

func TestRunnerLatchesLastLinePerStream(t *testing.T) {
	lock := dispatchlock.New()
	var out bytes.Buffer
	mock := newMockCommand(99)
	mock.stdoutLines = []string{"first", "second", "third"}
	mock.stderrLines = []string{"oops"}

	r := &task.Runner{
		Lock:    lock,
		Out:     &out,
		Factory: func(args []string) task.Command { return mock },
	}
	rec := &task.Record{Args: []string{"mock"}}

	lock.BeforeDispatch()
	lock.BeforeRun()
	lock.AfterDispatch()

	r.Run(0, rec)

	if got := rec.Latches[task.Stdout].Read(); got != "third" {
		t.Fatalf("stdout latch = %q, want %q", got, "third")
	}
	if got := rec.Latches[task.Stderr].Read(); got != "oops" {
		t.Fatalf("stderr latch = %q, want %q", got, "oops")
	}
}

func TestRunnerReportsSignalled(t *testing.T) {
	lock := dispatchlock.New()
	var out bytes.Buffer
	mock := newMockCommand(7)
	mock.waitErr = realSignalledExitError(t)

	r := &task.Runner{
		Lock:    lock,
		Out:     &out,
		Factory: func(args []string) task.Command { return mock },
	}
	rec := &task.Record{Args: []string{"mock"}}

	lock.BeforeDispatch()
	lock.BeforeRun()
	lock.AfterDispatch()

	r.Run(0, rec)

	if !strings.Contains(out.String(), "Task 0 ended: signalled.") {
		t.Fatalf("expected signalled ended line, got %q", out.String())
	}
}

// realSignalledExitError spawns and SIGKILLs a real child process to
// obtain a genuine *exec.ExitError whose Sys() reports Signaled()==true.
// exec.ExitError.ProcessState is a concrete *os.ProcessState that can only
// be constructed by actually waiting on a process, so this cannot be
// synthesized without spawning one.
func realSignalledExitError(t *testing.T) error {
	t.Helper()
	cmd := exec.Command("sleep", "5")
	if err := cmd.Start(); err != nil {
		t.Skipf("cannot spawn real process for signalled-exit fixture: %v", err)
	}
	if err := cmd.Process.Kill(); err != nil {
		t.Fatalf("Kill() error = %v", err)
	}
	err := cmd.Wait()
	if err == nil {
		t.Fatal("expected a non-nil Wait error for a killed process")
	}
	return err
}

func TestMockCommandReceivesSignal(t *testing.T) {
	mock := newMockCommand(1)
	if err := mock.Signal(syscall.SIGINT); err != nil {
		t.Fatalf("Signal() error = %v", err)
	}
	waitFor(t, func() bool {
		mock.mu.Lock()
		defer mock.mu.Unlock()
		return len(mock.signals) == 1 && mock.signals[0] == syscall.SIGINT
	})
}
