package task_test

import (
	"testing"

	"github.com/adamgreloch/taskshell/task"
)

func TestTableCreateAssignsDenseIds(t *testing.T) {
	tbl := task.NewTable(4)

	for want := 0; want < 4; want++ {
		got, err := tbl.Create([]string{"echo", "hi"})
		if err != nil {
			t.Fatalf("Create() error = %v", err)
		}
		if got != want {
			t.Fatalf("Create() id = %d, want %d", got, want)
		}
	}

	if _, err := tbl.Create([]string{"echo"}); err == nil {
		t.Fatal("expected ErrTableFull once capacity is exhausted")
	}
}

func TestTableValid(t *testing.T) {
	tbl := task.NewTable(2)
	if tbl.Valid(0) {
		t.Fatal("Valid(0) = true before any task was created")
	}
	if _, err := tbl.Create([]string{"echo"}); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if !tbl.Valid(0) {
		t.Fatal("Valid(0) = false after creating task 0")
	}
	if tbl.Valid(1) {
		t.Fatal("Valid(1) = true before task 1 was created")
	}
	if tbl.Valid(-1) {
		t.Fatal("Valid(-1) = true")
	}
}

func TestTableRecordHoldsArgsUntilRunnerTakesOver(t *testing.T) {
	tbl := task.NewTable(1)
	id, err := tbl.Create([]string{"sleep", "1"})
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	rec := tbl.Record(id)
	if len(rec.Args) != 2 || rec.Args[0] != "sleep" || rec.Args[1] != "1" {
		t.Fatalf("Record(%d).Args = %v, want [sleep 1]", id, rec.Args)
	}
	if rec.Pgid != 0 {
		t.Fatalf("Record(%d).Pgid = %d before the runner started it, want 0", id, rec.Pgid)
	}
}
