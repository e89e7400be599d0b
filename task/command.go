package task

import (
	"errors"
	"io"
	"os/exec"
	"syscall"

	"golang.org/x/sys/unix"
)

// Command is the Child-Process Adapter's abstraction over os/exec.Cmd. It
// exposes exactly what the Runner needs: pipes for the two output streams,
// start/wait, and the spawned process's group-leader pid for reporting and
// for group-wide signalling.
//
// A production Command always places its child in its own new process
// group (group leader = the child itself), so that Signal can reach the
// whole group — the child and any descendants it spawns — in one call.
// This mirrors the teacher's Command/ProcessHandle split (engine/types.go)
// but folds process-group placement into the interface's single
// responsibility: group-wide signalling.
type Command interface {
	// StdoutPipe returns a reader for the command's standard output. Must
	// be called before Start.
	StdoutPipe() (io.ReadCloser, error)

	// StderrPipe returns a reader for the command's standard error. Must
	// be called before Start.
	StderrPipe() (io.ReadCloser, error)

	// Start begins execution, placing the child in a new process group.
	// After Start returns successfully, Pgid reports that group's id.
	Start() error

	// Wait blocks until the child exits and returns its termination
	// error: nil on exit status 0, *exec.ExitError otherwise.
	Wait() error

	// Pgid returns the child's process-group leader id. Valid only after
	// a successful Start.
	Pgid() int

	// Signal sends sig to the child's entire process group.
	Signal(sig syscall.Signal) error
}

// NewCommand constructs the production Command for the given argument
// vector (args[0] is the program, the rest are its arguments).
func NewCommand(args []string) Command {
	cmd := exec.Command(args[0], args[1:]...)
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	return &execCommand{cmd: cmd}
}

// execCommand is the real os/exec-backed Command.
type execCommand struct {
	cmd *exec.Cmd
}

func (e *execCommand) StdoutPipe() (io.ReadCloser, error) { return e.cmd.StdoutPipe() }
func (e *execCommand) StderrPipe() (io.ReadCloser, error) { return e.cmd.StderrPipe() }

func (e *execCommand) Start() error {
	return e.cmd.Start()
}

func (e *execCommand) Wait() error {
	if e.cmd.Process == nil {
		return errors.New("task: command not started")
	}
	return e.cmd.Wait()
}

func (e *execCommand) Pgid() int {
	if e.cmd.Process == nil {
		return 0
	}
	return e.cmd.Process.Pid
}

// Signal sends sig to the negative of the group-leader pid, the POSIX
// convention for "this process's entire group" (kill(2)/killpg(3)).
func (e *execCommand) Signal(sig syscall.Signal) error {
	pgid := e.Pgid()
	if pgid == 0 {
		return errors.New("task: command not started")
	}
	return unix.Kill(-pgid, sig)
}
