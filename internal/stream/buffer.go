// Package stream implements the readiness protocol used by the
// streaming output files (scene stdout and STDERR, terminal stdout and
// output, CONTEXT). A producer accumulates chunks with Post and signals
// the end of a logical batch with MarkReady; readers block on the ready
// event, drain the accumulated bytes, and rearm the buffer by reading
// at offset zero once the previous batch was fully delivered. The ready
// event latches: MarkReady may fire before any reader is waiting.
package stream

import "sync"

// Mode selects what a read observes while no batch is ready.
type Mode int

const (
	// StateAware buffers return empty immediately while idle, so
	// stat-like probes (ls, tab completion) never hang. A read blocks
	// only once a producer has started posting.
	StateAware Mode = iota

	// Blocking buffers block every read until the next MarkReady,
	// even if no producer is active. Suitable as the source of a
	// route: `while true; do cat X; done` is well defined.
	Blocking
)

// ErrCanceled is returned by Read when the waiting fid was clunked.
type errCanceled struct{}

func (errCanceled) Error() string { return "read canceled" }

var ErrCanceled error = errCanceled{}

// Buffer is a streaming output buffer.
type Buffer struct {
	mode Mode

	mu       sync.Mutex
	chunks   [][]byte
	ready    chan struct{}
	readySet bool
	consumed bool
	active   bool
}

func NewBuffer(mode Mode) *Buffer {
	return &Buffer{mode: mode, ready: make(chan struct{})}
}

// Post appends a chunk. It never signals readiness; that is MarkReady's
// job, called by the producer when the logical batch is complete.
func (b *Buffer) Post(p []byte) {
	if len(p) == 0 {
		return
	}
	b.mu.Lock()
	b.chunks = append(b.chunks, append([]byte(nil), p...))
	b.active = true
	b.mu.Unlock()
}

// MarkReady latches the ready event and wakes all waiting readers. It
// is a no-op if nothing was posted since the last rearm; otherwise a
// spurious wake would deliver an empty batch and tail loops would spin.
func (b *Buffer) MarkReady() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.chunks) == 0 || b.readySet {
		return
	}
	b.readySet = true
	close(b.ready)
}

// Reset discards any accumulated chunks and rearms the buffer. Used by
// producers that want to start a fresh capture (the scene surface
// clearing STDERR before each execution).
func (b *Buffer) Reset() {
	b.mu.Lock()
	b.rearmLocked()
	b.mu.Unlock()
}

// Arm is Reset plus marking the buffer active, so that state-aware
// readers start blocking for the batch being produced.
func (b *Buffer) Arm() {
	b.mu.Lock()
	b.rearmLocked()
	b.active = true
	b.mu.Unlock()
}

// Set replaces the buffered content with a single chunk and marks it
// ready. Used by producers whose batches supersede one another (the
// compacted context file).
func (b *Buffer) Set(p []byte) {
	b.mu.Lock()
	b.rearmLocked()
	if len(p) > 0 {
		b.chunks = append(b.chunks, append([]byte(nil), p...))
		b.active = true
		b.readySet = true
		close(b.ready)
	}
	b.mu.Unlock()
}

func (b *Buffer) rearmLocked() {
	b.chunks = nil
	b.consumed = false
	b.active = false
	if b.readySet {
		b.readySet = false
		b.ready = make(chan struct{})
	}
}

// Len reports the number of buffered bytes. Meant for size hints; the
// value is stale by the time the caller looks at it.
func (b *Buffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	n := 0
	for _, c := range b.chunks {
		n += len(c)
	}
	return n
}

// Read implements the readiness protocol. A read at offset zero after
// the previous batch was fully delivered rearms the buffer and waits
// for the next batch. cancel aborts the wait (fid clunk); Read then
// returns ErrCanceled.
func (b *Buffer) Read(offset int64, count int, cancel <-chan struct{}) ([]byte, error) {
	b.mu.Lock()
	if offset == 0 && b.consumed {
		b.rearmLocked()
	}
	for !b.readySet {
		if b.mode == StateAware && !b.active {
			b.mu.Unlock()
			return nil, nil
		}
		ready := b.ready
		b.mu.Unlock()
		select {
		case <-ready:
		case <-cancel:
			return nil, ErrCanceled
		}
		b.mu.Lock()
	}
	var content []byte
	for _, c := range b.chunks {
		content = append(content, c...)
	}
	if offset >= int64(len(content)) {
		b.consumed = true
		b.mu.Unlock()
		return nil, nil
	}
	end := offset + int64(count)
	if end >= int64(len(content)) {
		end = int64(len(content))
		b.consumed = true
	}
	p := append([]byte(nil), content[offset:end]...)
	b.mu.Unlock()
	return p, nil
}
