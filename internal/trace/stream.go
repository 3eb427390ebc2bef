package trace

import (
	"bufio"
	"errors"
	"io"
	"os"
	"sync"
)

// StreamTracer writes each event as it arrives. File output is buffered;
// stderr and caller-supplied writers are written through.
type StreamTracer struct {
	mu     sync.Mutex
	dst    io.Writer
	buf    *bufio.Writer
	level  Level
	format Format
	count  int
	closed bool
}

func NewStreamTracer(w io.Writer, level Level, format Format) *StreamTracer {
	t := &StreamTracer{dst: w, level: level, format: format}
	if f, ok := w.(*os.File); ok && f != os.Stderr && f != os.Stdout {
		t.buf = bufio.NewWriter(f)
	}
	if format == FormatChrome {
		t.write([]byte("{\"traceEvents\":[\n"))
	}
	return t
}

func (t *StreamTracer) out() io.Writer {
	if t.buf != nil {
		return t.buf
	}
	return t.dst
}

// write ignores errors: a broken trace output must not fail a build.
func (t *StreamTracer) write(p []byte) {
	_, _ = t.out().Write(p)
}

func (t *StreamTracer) Emit(ev *Event) {
	if ev.Kind != KindHeartbeat && !t.level.ShouldEmit(ev.Scope) {
		return
	}
	ev.Seq = NextSeq()
	data := FormatEvent(ev, t.format)

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return
	}
	if t.format == FormatChrome && t.count > 0 {
		t.write([]byte(",\n"))
	}
	t.write(data)
	t.count++
}

func (t *StreamTracer) Flush() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.flushLocked()
}

func (t *StreamTracer) flushLocked() error {
	if t.buf != nil {
		return t.buf.Flush()
	}
	if f, ok := t.dst.(interface{ Flush() error }); ok {
		return f.Flush()
	}
	return nil
}

// Close writes the Chrome footer, flushes and closes the destination when
// it is a file the tracer opened.
func (t *StreamTracer) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return nil
	}
	t.closed = true
	if t.format == FormatChrome {
		t.write([]byte("\n]}\n"))
	}
	err := t.flushLocked()
	if t.buf != nil {
		if c, ok := t.dst.(io.Closer); ok {
			err = errors.Join(err, c.Close())
		}
	}
	return err
}

func (t *StreamTracer) Level() Level  { return t.level }
func (t *StreamTracer) Enabled() bool { return t.level > LevelOff }

// Written is the number of events written so far.
func (t *StreamTracer) Written() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.count
}
