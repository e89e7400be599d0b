package latch_test

import (
	"strings"
	"sync"
	"testing"

	"github.com/adamgreloch/taskshell/latch"
)

func TestLineZeroValueReadsEmpty(t *testing.T) {
	var l latch.Line
	if got := l.Read(); got != "" {
		t.Fatalf("Read() on zero value = %q, want empty", got)
	}
}

func TestLineSetThenRead(t *testing.T) {
	var l latch.Line
	l.Set("hello")
	if got := l.Read(); got != "hello" {
		t.Fatalf("Read() = %q, want %q", got, "hello")
	}
	l.Set("world")
	if got := l.Read(); got != "world" {
		t.Fatalf("Read() = %q, want %q", got, "world")
	}
}

func TestLineTruncatesLongLines(t *testing.T) {
	var l latch.Line
	long := strings.Repeat("x", latch.MaxLineLength+100)
	l.Set(long)
	got := l.Read()
	if len(got) != latch.MaxLineLength {
		t.Fatalf("len(Read()) = %d, want %d", len(got), latch.MaxLineLength)
	}
	if got != long[:latch.MaxLineLength] {
		t.Fatalf("Read() did not preserve the prefix of the original line")
	}
}

func TestLineConcurrentSetRead(t *testing.T) {
	var l latch.Line
	var wg sync.WaitGroup

	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			l.Set("line")
		}()
	}
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = l.Read()
		}()
	}
	wg.Wait()

	if got := l.Read(); got != "line" {
		t.Fatalf("Read() after concurrent writers = %q, want %q", got, "line")
	}
}
