package shell

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sys/unix"

	"github.com/adamgreloch/taskshell/dispatchlock"
	"github.com/adamgreloch/taskshell/task"
)

// verbs recognized in the command grammar (spec.md §6).
const (
	verbRun   = "run"
	verbOut   = "out"
	verbErr   = "err"
	verbKill  = "kill"
	verbSleep = "sleep"
	verbQuit  = "quit"
)

// Executor is the assembly described by spec.md §2 item 6: it owns the
// Task Table, the Dispatcher Lock, and the Dispatcher loop, and performs
// orderly shutdown. It plays the role the teacher's runner.Run played,
// delegating per-task execution to a task.Runner (the teacher's
// engine.runProcess role).
//
// Construct with New; the zero value is not ready to use.
type Executor struct {
	cfg    Config
	table  *task.Table
	lock   *dispatchlock.Lock
	runner *task.Runner
	out    io.Writer
	log    *logrus.Entry

	// completion holds one channel per created task, indexed by TaskId,
	// closed once that task's runner has returned (i.e. after its "ended"
	// line has been printed). Only the dispatcher goroutine appends to
	// it, so no separate lock is needed for the slice itself.
	completion []chan struct{}
}

// New constructs an Executor that writes its own output lines to out. cfg
// is completed with DefaultConfig's values for any zero fields.
func New(cfg Config, out io.Writer) *Executor {
	cfg = cfg.withDefaults()
	lock := dispatchlock.New()
	logEntry := logrus.NewEntry(cfg.Log)

	return &Executor{
		cfg:   cfg,
		table: task.NewTable(cfg.MaxTasks),
		lock:  lock,
		runner: &task.Runner{
			Lock: lock,
			Out:  out,
			Log:  logEntry,
		},
		out: out,
		log: logEntry,
	}
}

// inputLine is one line read from the command stream, or the terminal
// error (io.EOF on clean end-of-input) that ended the stream.
type inputLine struct {
	text string
	err  error
}

// readLines feeds complete input lines to out, truncated to
// maxInputLineLength bytes, until r is exhausted. The final value sent
// always carries a non-nil err (io.EOF for clean end-of-input).
func readLines(r io.Reader, out chan<- inputLine) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 4096), 64*1024)

	for scanner.Scan() {
		line := scanner.Text()
		if len(line) > maxInputLineLength {
			line = line[:maxInputLineLength]
		}
		out <- inputLine{text: line}
	}
	if err := scanner.Err(); err != nil {
		out <- inputLine{err: err}
		return
	}
	out <- inputLine{err: io.EOF}
}

// Run is the Dispatcher loop: it reads one command at a time from in and
// drives task creation, status queries, and shutdown until end-of-input,
// a quit command, or ctx is cancelled. It returns a process exit code (0
// on clean shutdown).
//
// ctx cancellation is an ambient convenience, not part of the core
// protocol: the core's own shutdown path is driven by end-of-input/quit
// (spec.md §9, "the executor itself installs no signal handlers in the
// core"). A cancelled ctx is treated identically to end-of-input.
func (e *Executor) Run(ctx context.Context, in io.Reader) int {
	lines := make(chan inputLine)
	go readLines(in, lines)

	prevWasKill := false

	for {
		select {
		case <-ctx.Done():
			e.shutdown()
			return 0

		case il := <-lines:
			if il.err != nil {
				e.shutdown()
				return 0
			}

			// AfterKill must close the previous step's priority window
			// before this step calls BeforeDispatch: BeforeDispatch itself
			// blocks while the priority window is open, so closing it only
			// after BeforeDispatch returns would deadlock forever.
			if prevWasKill {
				e.lock.AfterKill()
				prevWasKill = false
			}
			e.lock.BeforeDispatch()
			quit := e.dispatch(il.text, &prevWasKill)
			e.lock.AfterDispatch()

			if quit {
				e.shutdown()
				return 0
			}
		}
	}
}

// dispatch executes one command line's verb. It reports whether the
// dispatcher loop should begin shutdown, and, via prevWasKill, whether
// this step executed a kill command (so the next step's prelude knows to
// close the kill-priority window).
func (e *Executor) dispatch(line string, prevWasKill *bool) (quit bool) {
	tokens := strings.Fields(line)
	if len(tokens) == 0 {
		return false
	}

	switch tokens[0] {
	case verbRun:
		e.handleRun(tokens[1:])
	case verbOut:
		e.handlePrint(tokens[1:], task.Stdout, "stdout")
	case verbErr:
		e.handlePrint(tokens[1:], task.Stderr, "stderr")
	case verbKill:
		e.handleKill(tokens[1:])
		*prevWasKill = true
	case verbSleep:
		e.handleSleep(tokens[1:])
	case verbQuit:
		return true
	default:
		// Unknown verb is treated as quit (spec.md §7).
		return true
	}
	return false
}

// handleRun assigns the next TaskId to args, registers its RUN promise,
// and spawns its runner. A malformed run (no program given) is silently
// ignored; a full task table logs a warning and is otherwise a no-op.
func (e *Executor) handleRun(args []string) {
	if len(args) == 0 {
		return
	}

	id, err := e.table.Create(args)
	if err != nil {
		e.log.WithError(err).Warn("shell: cannot start task, table is full")
		return
	}

	e.lock.BeforeRun()

	done := make(chan struct{})
	e.completion = append(e.completion, done)

	rec := e.table.Record(id)
	go func() {
		defer close(done)
		e.runner.Run(id, rec)
	}()
}

// handlePrint snapshots the latch for the named stream and prints it.
// An out-of-range or not-yet-created task id is silently ignored
// (spec.md §9 resolves this Open Question toward validate-and-ignore).
func (e *Executor) handlePrint(argv []string, stream task.Stream, label string) {
	id, ok := parseTaskID(argv)
	if !ok || !e.table.Valid(id) {
		return
	}
	line := e.table.Record(id).Latches[stream].Read()
	fmt.Fprintf(e.out, "Task %d %s: '%s'.\n", id, label, line)
}

// handleKill opens the kill-priority window and signals the named task's
// entire process group. A not-yet-started or out-of-range task id is
// silently ignored (matching handlePrint's Open Question resolution).
func (e *Executor) handleKill(argv []string) {
	id, ok := parseTaskID(argv)
	if !ok || !e.table.Valid(id) {
		return
	}

	e.lock.BeforeKill()

	pgid := e.table.Record(id).Pgid
	if pgid == 0 {
		return
	}
	if err := unix.Kill(-pgid, e.cfg.KillSignal); err != nil {
		e.log.WithError(err).WithField("task_id", id).Debug("shell: kill signal delivery failed")
	}
}

// handleSleep pauses the dispatcher loop for the given number of
// milliseconds. Per spec.md §9, sleep is part of the dispatcher step and
// therefore holds the Dispatcher Lock open for its duration.
func (e *Executor) handleSleep(argv []string) {
	if len(argv) != 1 {
		return
	}
	millis, err := strconv.Atoi(argv[0])
	if err != nil || millis < 0 {
		return
	}
	time.Sleep(time.Duration(millis) * time.Millisecond)
}

// parseTaskID parses a single-argument task id, as used by out/err/kill.
func parseTaskID(argv []string) (int, bool) {
	if len(argv) != 1 {
		return 0, false
	}
	id, err := strconv.Atoi(argv[0])
	if err != nil || id < 0 {
		return 0, false
	}
	return id, true
}

// shutdown sends cfg.ShutdownSignal to every task's process group and
// awaits each task's runner in task-id order (spec.md §4.5 Shutdown). A
// runner's internal errgroup already joins its two listeners before
// returning, so joining the runner alone is sufficient (spec.md §9's
// structured-completion design note).
func (e *Executor) shutdown() {
	for id := 0; id < e.table.Len(); id++ {
		pgid := e.table.Record(id).Pgid
		if pgid == 0 {
			continue
		}
		if err := unix.Kill(-pgid, e.cfg.ShutdownSignal); err != nil {
			e.log.WithError(err).WithField("task_id", id).Debug("shell: shutdown signal delivery failed")
		}
	}
	for _, done := range e.completion {
		<-done
	}
}
