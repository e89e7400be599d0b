// Package shell implements the Command Dispatcher and Executor assembly:
// the single-reader front end that parses one line-oriented command at a
// time from standard input and drives task creation, status queries, and
// shutdown, all serialized through a dispatchlock.Lock.
package shell

import (
	"syscall"

	"github.com/sirupsen/logrus"

	"github.com/adamgreloch/taskshell/task"
)

// maxInputLineLength is the maximum number of bytes accepted for one input
// line, per the command grammar's field width.
const maxInputLineLength = 511

// Config holds the executor's capacities and signal policy. All fields are
// optional; DefaultConfig populates sensible defaults, mirroring the
// teacher's runner.DefaultConfig/engine.New shape.
type Config struct {
	// MaxTasks bounds the number of tasks one executor run may create. If
	// zero or negative, defaults to task.MaxTasks.
	MaxTasks int

	// KillSignal is sent to a single task's process group by the kill
	// verb. Defaults to SIGINT, matching the "interrupt signal" in
	// spec.md and the original implementation's interrupt_task.
	KillSignal syscall.Signal

	// ShutdownSignal is sent to every task's process group on end-of-input
	// or quit. Defaults to SIGKILL (non-catchable), matching the original
	// implementation's kill_all.
	ShutdownSignal syscall.Signal

	// Log receives structured diagnostics. If nil, logrus.StandardLogger()
	// is used.
	Log *logrus.Logger
}

// DefaultConfig returns a Config with the executor's standard capacities
// and signal policy.
func DefaultConfig() Config {
	return Config{
		MaxTasks:       task.MaxTasks,
		KillSignal:     syscall.SIGINT,
		ShutdownSignal: syscall.SIGKILL,
		Log:            logrus.StandardLogger(),
	}
}

func (c Config) withDefaults() Config {
	base := DefaultConfig()
	if c.MaxTasks <= 0 {
		c.MaxTasks = base.MaxTasks
	}
	if c.KillSignal == 0 {
		c.KillSignal = base.KillSignal
	}
	if c.ShutdownSignal == 0 {
		c.ShutdownSignal = base.ShutdownSignal
	}
	if c.Log == nil {
		c.Log = base.Log
	}
	return c
}
