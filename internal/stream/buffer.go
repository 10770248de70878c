package stream

import "sync"

// HistoricBuffer records every chunk a broadcaster has ever sent so that
// late subscribers can be replayed the full output. Chunks are append-only
// and never mutated after Write; callers must not modify a slice they have
// handed in.
type HistoricBuffer struct {
	mu     sync.RWMutex
	chunks [][]byte
	size   int
}

// NewHistoricBuffer creates an empty buffer.
func NewHistoricBuffer() *HistoricBuffer {
	return &HistoricBuffer{}
}

// Write appends a chunk to the buffer.
func (b *HistoricBuffer) Write(chunk []byte) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.chunks = append(b.chunks, chunk)
	b.size += len(chunk)
}

// Len returns the number of chunks recorded so far.
func (b *HistoricBuffer) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.chunks)
}

// Size returns the total number of bytes recorded so far.
func (b *HistoricBuffer) Size() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.size
}

// Chunks returns a snapshot of the recorded chunks in append order. The
// returned slice is a copy; the chunks themselves are shared and must be
// treated as read-only.
func (b *HistoricBuffer) Chunks() [][]byte {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([][]byte, len(b.chunks))
	copy(out, b.chunks)
	return out
}

// ReadAll concatenates every recorded chunk in append order.
func (b *HistoricBuffer) ReadAll() []byte {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]byte, 0, b.size)
	for _, c := range b.chunks {
		out = append(out, c...)
	}
	return out
}

// Reset drops all recorded chunks.
func (b *HistoricBuffer) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.chunks = nil
	b.size = 0
}
