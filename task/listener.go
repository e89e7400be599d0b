package task

import (
	"bufio"
	"io"
	"strings"

	"github.com/adamgreloch/taskshell/latch"
)

// scannerInitialBufferSize and scannerMaxBufferSize size the line scanner's
// internal buffer. A latched line is truncated to latch.MaxLineLength, but
// the scanner must still be able to read a single producer line of up to
// scannerMaxBufferSize bytes before it is truncated.
const (
	scannerInitialBufferSize = 64 * 1024
	scannerMaxBufferSize     = 1024 * 1024
)

// listen reads r line by line until EOF, storing each complete line
// (trailing newline stripped, truncated to latch.MaxLineLength) into l. It
// returns when r is exhausted, which happens once the child has closed
// that stream or has exited.
//
// listen owns r for as long as it runs; closing r is the caller's
// responsibility once listen returns.
func listen(r io.Reader, l *latch.Line) {
	scanner := bufio.NewScanner(r)
	buf := make([]byte, 0, scannerInitialBufferSize)
	scanner.Buffer(buf, scannerMaxBufferSize)

	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), "\r\n")
		l.Set(line)
	}
	// A scanner error (e.g. a single line exceeding scannerMaxBufferSize)
	// is not actionable here: the stream simply stops producing latched
	// lines, which is indistinguishable to a caller of out/err from the
	// child having gone quiet.
}
