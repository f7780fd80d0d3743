package usecase

import (
	"sync"

	"SignalCoord/internal/domain/models"
	domrepo "SignalCoord/internal/domain/repository"
)

// DefaultBufferCapacity is the number of pending signals kept before the
// oldest ones are dropped.
const DefaultBufferCapacity = 100

// SignalBuffer is a bounded FIFO of signals awaiting a decision cycle.
// Overflow silently evicts the oldest entry.
type SignalBuffer struct {
	mu      sync.Mutex
	buf     []models.AgentSignal
	head    int // index of the oldest entry
	size    int
	metrics domrepo.Metrics
}

// NewSignalBuffer creates a buffer holding at most capacity signals.
// Non-positive capacity falls back to DefaultBufferCapacity.
func NewSignalBuffer(capacity int, metrics domrepo.Metrics) *SignalBuffer {
	if capacity <= 0 {
		capacity = DefaultBufferCapacity
	}
	return &SignalBuffer{buf: make([]models.AgentSignal, capacity), metrics: metrics}
}

// Add appends s, evicting the oldest signal when the buffer is full.
func (b *SignalBuffer) Add(s models.AgentSignal) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.size == len(b.buf) {
		b.buf[b.head] = s
		b.head = (b.head + 1) % len(b.buf)
		if b.metrics != nil {
			b.metrics.RecordBufferEviction()
		}
		return
	}
	b.buf[(b.head+b.size)%len(b.buf)] = s
	b.size++
}

// Drain returns all buffered signals in arrival order and empties the buffer.
func (b *SignalBuffer) Drain() []models.AgentSignal {
	b.mu.Lock()
	defer b.mu.Unlock()

	out := b.snapshotLocked()
	for i := range b.buf {
		b.buf[i] = models.AgentSignal{}
	}
	b.head, b.size = 0, 0
	return out
}

// Snapshot returns a copy of the buffered signals without consuming them.
func (b *SignalBuffer) Snapshot() []models.AgentSignal {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.snapshotLocked()
}

func (b *SignalBuffer) snapshotLocked() []models.AgentSignal {
	out := make([]models.AgentSignal, 0, b.size)
	for i := 0; i < b.size; i++ {
		out = append(out, b.buf[(b.head+i)%len(b.buf)])
	}
	return out
}

// Len returns the number of buffered signals.
func (b *SignalBuffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.size
}

// Cap returns the buffer capacity.
func (b *SignalBuffer) Cap() int { return len(b.buf) }
