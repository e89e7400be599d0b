package task

import (
	"errors"
	"fmt"
	"io"
	"os/exec"
	"sync"
	"syscall"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/adamgreloch/taskshell/dispatchlock"
)

// startNotFoundExitCode is the conventional shell exit status for "command
// not found", used to synthesize an ended line when Start itself fails to
// launch the child (see Runner.Run doc comment on child-launch failure).
const startNotFoundExitCode = 127

// Factory creates a Command for the given argument vector. Production
// code uses NewCommand; tests substitute a factory that returns a mock.
type Factory func(args []string) Command

// Runner spawns one task's child process, serializes its two output
// listeners into the task's Latches, and reports the task's lifecycle
// ("started"/"ended" lines) through a dispatchlock.Lock so that the
// executor's own output stays well-ordered.
//
// A Runner is stateless and safe to reuse across tasks; all per-task state
// lives in the Record passed to Run.
type Runner struct {
	// Factory constructs the Command for a task. If nil, NewCommand is
	// used.
	Factory Factory

	// Lock serializes this runner's "started"/"ended" lines against the
	// dispatcher and other runners, per the protocol in package
	// dispatchlock.
	Lock *dispatchlock.Lock

	// Out receives the executor's own output lines (not the child's
	// output). Each call writes exactly one line in a single Write, so
	// concurrent writers never interleave a line's bytes.
	Out io.Writer

	// outMu serializes the (rare) concurrent writes Out itself must
	// tolerate: multiple completion reporters may hold BeforeStatus at
	// once (dispatchlock only excludes them from the dispatcher, not from
	// each other).
	outMu sync.Mutex

	// Log receives structured diagnostics for fatal adapter failures
	// (pipe creation and Wait errors; a failed Start is reported as a
	// launch failure instead, see Run). May be nil, in which
	// case logrus.StandardLogger() is used.
	Log *logrus.Entry
}

func (r *Runner) factory() Factory {
	if r.Factory != nil {
		return r.Factory
	}
	return NewCommand
}

func (r *Runner) logger() *logrus.Entry {
	if r.Log != nil {
		return r.Log
	}
	return logrus.NewEntry(logrus.StandardLogger())
}

func (r *Runner) printf(format string, args ...any) {
	r.outMu.Lock()
	defer r.outMu.Unlock()
	fmt.Fprintf(r.Out, format, args...)
}

// Run spawns rec's task, reports its lifecycle, and blocks until the child
// has exited and both of its output streams have been fully drained. The
// caller (the Dispatcher, via BeforeRun) must have already registered the
// RUN promise that Run's "started" report will retire.
//
// Run always emits exactly one "started" line (see child-launch-failure
// note below) and exactly one "ended" line, in that order, before
// returning. The "started" line is printed before AfterRun retires the RUN
// promise: AfterRun can unblock the dispatcher's next step, so calling it
// first could let that next step's output race ahead of "started".
//
// Child-launch failure: if the underlying Command fails to even start
// (e.g. the program does not exist), no process group is ever created.
// Rather than drop the started/ended invariant for this task, Run
// synthesizes pid 0 for the started line and immediately reports an ended
// line with the conventional "command not found" exit status. This is an
// explicit, documented choice (see DESIGN.md) for a case the source
// specification leaves to the host OS's fork/exec semantics, which Go's
// os/exec does not expose identically (a failed exec in a forked child is
// surfaced as a single synchronous Start error, not as a reapable exit
// status of a real process).
func (r *Runner) Run(id int, rec *Record) {
	log := r.logger().WithField("task_id", id)

	cmd := r.factory()(rec.Args)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		log.WithField("step", "stdout_pipe").WithError(err).Fatal("task: fatal adapter failure")
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		log.WithField("step", "stderr_pipe").WithError(err).Fatal("task: fatal adapter failure")
	}

	if startErr := cmd.Start(); startErr != nil {
		log.WithError(startErr).Debug("task: failed to launch child, reporting as a normal non-zero exit")
		r.printf("Task %d started: pid %d.\n", id, 0)
		r.Lock.AfterRun()
		r.reportEnded(id, &exec.ExitError{ProcessState: nil})
		return
	}

	rec.Pgid = cmd.Pgid()
	r.printf("Task %d started: pid %d.\n", id, rec.Pgid)
	r.Lock.AfterRun()

	var streams errgroup.Group
	streams.Go(func() error {
		listen(stdout, &rec.Latches[Stdout])
		return nil
	})
	streams.Go(func() error {
		listen(stderr, &rec.Latches[Stderr])
		return nil
	})
	_ = streams.Wait()

	waitErr := cmd.Wait()
	var exitErr *exec.ExitError
	if waitErr != nil && !errors.As(waitErr, &exitErr) {
		log.WithField("step", "wait").WithError(waitErr).Fatal("task: fatal adapter failure")
	}
	r.reportEnded(id, waitErr)
}

// reportEnded prints this task's single "ended" line under the
// dispatchlock protocol, choosing between the "signalled" and "status N"
// forms based on waitErr.
func (r *Runner) reportEnded(id int, waitErr error) {
	r.Lock.BeforeStatus()
	if signalled, _ := signalledBy(waitErr); signalled {
		r.printf("Task %d ended: signalled.\n", id)
	} else {
		r.printf("Task %d ended: status %d.\n", id, exitStatus(waitErr))
	}
	r.Lock.AfterStatus()
}

// signalledBy reports whether err represents a process terminated by a
// signal, and if so, which one.
func signalledBy(err error) (bool, syscall.Signal) {
	if err == nil {
		return false, 0
	}
	var exitErr *exec.ExitError
	if !errors.As(err, &exitErr) || exitErr.ProcessState == nil {
		return false, 0
	}
	status, ok := exitErr.Sys().(syscall.WaitStatus)
	if !ok || !status.Signaled() {
		return false, 0
	}
	return true, status.Signal()
}

// exitStatus extracts the numeric exit status from a Wait error, treating
// a nil error as status 0.
func exitStatus(err error) int {
	if err == nil {
		return 0
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		if exitErr.ProcessState == nil {
			return startNotFoundExitCode
		}
		return exitErr.ExitCode()
	}
	return startNotFoundExitCode
}
