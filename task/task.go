// Package task owns the per-task state of the executor: the argument
// vector, the spawned child's process group, the two line latches, and the
// goroutines that keep them current.
package task

import (
	"github.com/adamgreloch/taskshell/latch"
)

// MaxTasks is the maximum number of tasks one executor run may create.
const MaxTasks = 4096

// Stream identifies one of a task's two output streams.
type Stream int

const (
	// Stdout is the task's standard output stream.
	Stdout Stream = 0
	// Stderr is the task's standard error stream.
	Stderr Stream = 1
)

// Record holds everything the executor tracks for one spawned task, for
// the full lifetime of the executor process. Entries are never removed
// from a Table, so a Record's identity (its index) is stable and reusable
// as a map key or log field.
//
// The argument vector is owned by the Record until the runner assigned to
// this task takes ownership of it (see Runner.Run); Latches are owned by
// the Record for its entire lifetime and are safe for concurrent Set/Read.
type Record struct {
	// Args is the tokenized command: Args[0] is the program, the rest are
	// its arguments. Table.Create stores it; ownership transfers to the
	// runner once spawned.
	Args []string

	// Latches holds the most recent line seen on Stdout and Stderr.
	Latches [2]latch.Line

	// Pgid is the process-group leader id of the spawned child, set
	// exactly once by the runner after the child starts. Zero means the
	// child has not been created yet.
	Pgid int
}

// Table is a fixed-capacity, append-only collection of task Records,
// indexed by TaskId (the Record's position). It exists for the entire
// executor process lifetime.
//
// The zero value is not ready to use; construct with NewTable.
type Table struct {
	records  []Record
	capacity int
	next     int
}

// NewTable returns an empty Table that can hold up to capacity tasks. A
// capacity of 0 or less defaults to MaxTasks.
func NewTable(capacity int) *Table {
	if capacity <= 0 {
		capacity = MaxTasks
	}
	return &Table{
		records:  make([]Record, capacity),
		capacity: capacity,
	}
}

// ErrTableFull is returned by Create when the table has reached its
// capacity.
type ErrTableFull struct{}

func (ErrTableFull) Error() string { return "task table is full" }

// Create assigns the next TaskId to args and returns it. The returned id
// is dense, starts at 0, and is never reused across the life of the
// Table. It is the Dispatcher's sole responsibility to call Create, and
// only the Dispatcher ever mutates Table.next.
func (t *Table) Create(args []string) (int, error) {
	if t.next >= t.capacity {
		return 0, ErrTableFull{}
	}
	id := t.next
	t.records[id].Args = args
	t.next = id + 1
	return id, nil
}

// Len reports the number of tasks created so far.
func (t *Table) Len() int {
	return t.next
}

// Valid reports whether id names a task that has been created.
func (t *Table) Valid(id int) bool {
	return id >= 0 && id < t.next
}

// Record returns a pointer to the Record for id. The caller must have
// already verified id with Valid; Record does not bounds-check beyond
// array indexing.
func (t *Table) Record(id int) *Record {
	return &t.records[id]
}
