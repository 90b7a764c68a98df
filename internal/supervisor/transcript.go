package supervisor

import (
	"bytes"
	"io"
	"strings"
	"sync"
)

// transcript accumulates the combined diagnostic output of one attempt.
type transcript struct {
	mu  sync.Mutex
	buf strings.Builder
}

func (t *transcript) Write(p []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.buf.Write(p)
}

func (t *transcript) WriteString(s string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.buf.WriteString(s)
}

func (t *transcript) String() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.buf.String()
}

// lineEcho copies output to the operator stream one line at a time while
// appending each line to the transcript. Lines of any length are accepted;
// a trailing partial line is held until Flush.
type lineEcho struct {
	echo    io.Writer
	record  *transcript
	pending []byte
}

func (w *lineEcho) Write(p []byte) (int, error) {
	w.pending = append(w.pending, p...)
	for {
		i := bytes.IndexByte(w.pending, '\n')
		if i < 0 {
			break
		}
		w.emit(string(w.pending[:i+1]))
		w.pending = w.pending[i+1:]
	}
	return len(p), nil
}

// Flush terminates and emits any partial line.
func (w *lineEcho) Flush() {
	if len(w.pending) == 0 {
		return
	}
	w.emit(string(w.pending) + "\n")
	w.pending = nil
}

func (w *lineEcho) emit(line string) {
	_, _ = io.WriteString(w.echo, line)
	w.record.WriteString(line)
}
