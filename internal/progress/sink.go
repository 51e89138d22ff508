// Package progress defines the live line channel a generation streams
// human-readable updates through. Sinks tolerate consumers that have already
// disconnected: writes after close are dropped, and close is idempotent.
package progress

import (
	"io"
	"sync"
)

// Flusher is the optional push-after-write capability of a transport,
// satisfied by http.Flusher.
type Flusher interface {
	Flush()
}

// Sink is an ordered text-line channel. Emit and Close are both safe to call
// after Close.
type Sink interface {
	Emit(line string)
	Close()
}

// WriterSink streams lines to an io.Writer, flushing after every line when
// the writer supports it.
type WriterSink struct {
	mu      sync.Mutex
	writer  io.Writer
	flusher Flusher
	closed  bool
}

func NewWriterSink(w io.Writer) *WriterSink {
	sink := &WriterSink{writer: w}
	if f, ok := w.(Flusher); ok {
		sink.flusher = f
	}
	return sink
}

func (s *WriterSink) Emit(line string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}

	if _, err := io.WriteString(s.writer, line+"\n"); err != nil {
		// A broken consumer behaves like a closed sink.
		s.closed = true
		return
	}

	if s.flusher != nil {
		s.flusher.Flush()
	}
}

func (s *WriterSink) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
}

// BufferSink collects lines in memory. Used in tests and by callers that
// want the full transcript after the run.
type BufferSink struct {
	mu         sync.Mutex
	lines      []string
	closed     bool
	closeCalls int
}

func NewBufferSink() *BufferSink {
	return &BufferSink{}
}

func (s *BufferSink) Emit(line string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}
	s.lines = append(s.lines, line)
}

func (s *BufferSink) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	s.closeCalls++
}

func (s *BufferSink) Lines() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.lines...)
}

func (s *BufferSink) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// CloseCalls reports how many times Close ran, for asserting single-close
// guarantees.
func (s *BufferSink) CloseCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closeCalls
}
