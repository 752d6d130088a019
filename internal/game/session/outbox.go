// Package session provides the player registry and the per-player outbound
// frame queues the coordinator writes to.
package session

import (
	"errors"
	"fmt"
	"sync"
)

// ErrOutboxClosed is returned by Push after Close.
var ErrOutboxClosed = errors.New("outbox closed")

// ErrOutboxFull is returned by Push when the buffer has no free slot.
var ErrOutboxFull = errors.New("outbox full")

// Outbox routes frames for one player to a buffered channel drained by the
// transport's write pump.
type Outbox struct {
	id     string
	frames chan []byte
	mu     sync.Mutex
	closed bool
}

// NewOutbox creates an Outbox for the given connection ID.
//
// Precondition: id must be non-empty.
// Postcondition: Returns an Outbox with an open frames channel of at least one slot.
func NewOutbox(id string, bufferSize int) *Outbox {
	if bufferSize <= 0 {
		bufferSize = 64
	}
	return &Outbox{
		id:     id,
		frames: make(chan []byte, bufferSize),
	}
}

// ID returns the connection ID the outbox belongs to.
func (o *Outbox) ID() string {
	return o.id
}

// Push enqueues a frame without blocking.
//
// Precondition: frame must be non-nil.
// Postcondition: The frame is queued, or an error wrapping ErrOutboxClosed or ErrOutboxFull is returned.
func (o *Outbox) Push(frame []byte) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.closed {
		return fmt.Errorf("outbox %s: %w", o.id, ErrOutboxClosed)
	}
	select {
	case o.frames <- frame:
		return nil
	default:
		return fmt.Errorf("outbox %s: %w", o.id, ErrOutboxFull)
	}
}

// Frames returns the read-only frame channel. It is closed by Close.
func (o *Outbox) Frames() <-chan []byte {
	return o.frames
}

// Close marks the outbox closed and closes the frame channel. Safe to call
// multiple times.
//
// Postcondition: Further Push calls return ErrOutboxClosed.
func (o *Outbox) Close() {
	o.mu.Lock()
	defer o.mu.Unlock()

	if !o.closed {
		o.closed = true
		close(o.frames)
	}
}

// IsClosed reports whether the outbox has been closed.
func (o *Outbox) IsClosed() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.closed
}
