// Package dispatchlock implements the ordering protocol that serializes the
// task executor's own textual output.
//
// Three kinds of goroutine produce lines on the executor's stdout: the
// single command dispatcher (handling run/out/err/kill/sleep/quit), and one
// completion reporter per spawned task (the "Task N ended: ..." line). The
// Lock guarantees:
//
//  1. Dispatcher atomicity: a dispatcher step never has an "ended" line
//     interleaved into it.
//  2. The RUN promise: a run step does not complete until the spawned
//     task's "started" line has been emitted.
//  3. Kill priority: a kill step opens a priority window that the next
//     step's prelude closes; the next step's BeforeDispatch then waits for
//     every completion reporter already waiting in or emitting from
//     BeforeStatus. A reporter that has not reached BeforeStatus by then
//     is not waited for.
//  4. Fairness: a completion reporter that becomes ready while the
//     dispatcher is idle may emit immediately, without waiting for another
//     input line.
//
// This is deliberately not decomposed into independent locks: the five
// fields form one joint invariant, all held under a single mutex with two
// condition variables. See the Lock doc comment for the field-level
// contract.
package dispatchlock

import "sync"

// Lock is a small state machine, not a general-purpose mutex. All of its
// methods acquire l.mu for their entire body; condition waits are guarded
// by while-loops so spurious wakeups are harmless.
//
// Fields (all protected by mu):
//
//   - dispatcherRunning: true while a dispatcher step is in progress.
//   - taskRunSteps: number of outstanding RUN promises (a run step has
//     started but the spawned task's "started" line has not yet been
//     reported via AfterRun).
//   - endedTasksWaiting: number of completion reporters blocked in
//     BeforeStatus.
//   - endedTasksOutputting: number of completion reporters currently
//     between BeforeStatus and AfterStatus (i.e. emitting their line).
//   - endedTasksPriority: true from a kill step's BeforeKill until the
//     following dispatcher step's AfterKill, during which completion
//     reporters bypass the usual "dispatcher is active" guard.
//
// The zero value is not ready to use; construct with New.
type Lock struct {
	mu         sync.Mutex
	dispatcher *sync.Cond // signaled to wake the dispatcher
	endedTasks *sync.Cond // signaled to wake one completion reporter

	dispatcherRunning    bool
	taskRunSteps         int
	endedTasksWaiting    int
	endedTasksOutputting int
	endedTasksPriority   bool
}

// New returns a Lock ready to guard a dispatcher loop that has not yet
// entered its first step.
func New() *Lock {
	l := &Lock{}
	l.dispatcher = sync.NewCond(&l.mu)
	l.endedTasks = sync.NewCond(&l.mu)
	return l
}

// BeforeDispatch blocks until no completion reporter is waiting, emitting,
// or mid-RUN-promise, and until any kill-priority window has closed, then
// marks a dispatcher step as started.
//
// Call this once at the top of every dispatcher step, before parsing or
// acting on the command.
func (l *Lock) BeforeDispatch() {
	l.mu.Lock()
	defer l.mu.Unlock()

	for l.endedTasksPriority || (l.endedTasksWaiting+l.endedTasksOutputting+l.taskRunSteps) > 0 {
		l.dispatcher.Wait()
	}
	l.dispatcherRunning = true
}

// AfterDispatch marks the current dispatcher step as finished and wakes at
// most one blocked completion reporter.
//
// Call this once at the end of every dispatcher step.
func (l *Lock) AfterDispatch() {
	l.mu.Lock()
	l.dispatcherRunning = false
	l.endedTasks.Signal()
	l.mu.Unlock()
}

// BeforeRun registers one outstanding RUN promise. It never blocks; it is
// called synchronously inside the dispatcher step that handles a run
// command, before the task's runner goroutine is spawned.
func (l *Lock) BeforeRun() {
	l.mu.Lock()
	l.taskRunSteps++
	l.mu.Unlock()
}

// AfterRun retires one outstanding RUN promise, called by a task's runner
// once it has reported the task's "started" line. If this was the last
// outstanding promise, it wakes a waiting completion reporter if one
// exists, and otherwise wakes the dispatcher if nothing is currently
// outputting and no kill-priority window is open.
func (l *Lock) AfterRun() {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.taskRunSteps--
	if l.taskRunSteps != 0 {
		return
	}
	if l.endedTasksWaiting > 0 {
		l.endedTasks.Signal()
	} else if l.endedTasksOutputting == 0 && !l.endedTasksPriority {
		l.dispatcher.Signal()
	}
}

// BeforeKill opens a kill-priority window. It never blocks; it is called
// synchronously inside the dispatcher step that handles a kill command,
// before the signal is sent to the task's process group.
func (l *Lock) BeforeKill() {
	l.mu.Lock()
	l.endedTasksPriority = true
	l.mu.Unlock()
}

// AfterKill closes the kill-priority window opened by the preceding kill
// step's BeforeKill. It is called once, at the prelude of the next
// dispatcher step, after any "ended" lines caused by that kill have had a
// chance to drain.
//
// Callers must invoke this before the next BeforeDispatch, not after:
// BeforeDispatch blocks while the priority window is open, so nothing
// would ever call AfterKill to clear it if AfterKill were reached only
// once BeforeDispatch had already returned.
func (l *Lock) AfterKill() {
	l.mu.Lock()
	l.endedTasksPriority = false
	l.mu.Unlock()
}

// BeforeStatus blocks a completion reporter until it is safe to emit its
// "Task N ended: ..." line: either no dispatcher step is in progress, or a
// kill-priority window lets it preempt the dispatcher's idle wait. Once
// unblocked it registers itself as outputting.
//
// Call this immediately before printing an "ended" line.
func (l *Lock) BeforeStatus() {
	l.mu.Lock()
	defer l.mu.Unlock()

	for !l.endedTasksPriority && l.dispatcherRunning {
		l.endedTasksWaiting++
		l.endedTasks.Wait()
		l.endedTasksWaiting--
	}
	l.endedTasksOutputting++
}

// AfterStatus retires a completion reporter's outputting registration. It
// wakes another waiting reporter if one exists, and otherwise wakes the
// dispatcher if no reporter is outputting and no RUN promise is
// outstanding.
//
// Call this immediately after printing an "ended" line.
func (l *Lock) AfterStatus() {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.endedTasksOutputting--
	if l.endedTasksWaiting > 0 {
		l.endedTasks.Signal()
	} else if l.endedTasksOutputting+l.taskRunSteps == 0 {
		l.dispatcher.Signal()
	}
}
