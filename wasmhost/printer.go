package wasmhost

import (
	"bytes"
	"sync"
)

// lineWriter splits program output into lines and hands each one, without
// its newline, to print. A trailing partial line is held until Flush.
type lineWriter struct {
	print func(string)
	buf   bytes.Buffer
	mu    sync.Mutex
}

func newLineWriter(print func(string)) *lineWriter {
	if print == nil {
		print = func(string) {}
	}
	return &lineWriter{print: print}
}

func (w *lineWriter) Write(data []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.buf.Write(data)

	for {
		content := w.buf.Bytes()
		idx := bytes.IndexByte(content, '\n')
		if idx == -1 {
			break
		}
		line := string(content[:idx])
		w.buf.Next(idx + 1)
		w.print(line)
	}

	return len(data), nil
}

// Flush emits any buffered partial line.
func (w *lineWriter) Flush() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.buf.Len() == 0 {
		return
	}
	line := w.buf.String()
	w.buf.Reset()
	w.print(line)
}
