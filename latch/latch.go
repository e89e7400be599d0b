// Package latch provides a single-cell, mutex-guarded holder for the most
// recent line of output a subprocess has written to one stream.
//
// A Line never buffers history: it is overwritten on every call to Set, and
// Read always returns whatever is currently stored. This matches the
// executor's contract of surfacing only the latest line per stream on
// demand, rather than accumulating scrollback.
package latch

import "sync"

// MaxLineLength is the maximum number of bytes a Line will retain for a
// single stored line. Lines longer than this are truncated at the boundary.
const MaxLineLength = 1022

// Line is a mutex-guarded cell holding the most recently observed complete
// line from one output stream. The zero value is ready to use and reads as
// the empty string.
//
// Set and Read are safe to call concurrently from any number of goroutines.
// In practice a Line has exactly one writer (the stream's listener
// goroutine) and any number of readers (the dispatcher handling out/err
// commands).
type Line struct {
	mu   sync.Mutex
	line string
}

// Set stores line as the latest observed line, truncating it to
// MaxLineLength bytes first. It is atomic with respect to Read: a
// concurrent Read either sees the old value in full or the new value in
// full, never a mix.
func (l *Line) Set(line string) {
	if len(line) > MaxLineLength {
		line = line[:MaxLineLength]
	}
	l.mu.Lock()
	l.line = line
	l.mu.Unlock()
}

// Read returns a copy of the currently stored line. It returns the empty
// string if Set has never been called.
func (l *Line) Read() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.line
}
