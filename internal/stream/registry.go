package stream

import (
	"log/slog"
	"sync"
)

// subscriberSlack is the extra channel capacity granted to each subscriber
// beyond the historic chunk count at subscribe time. Replay can never block,
// and a consumer has this much headroom before live sends start dropping.
const subscriberSlack = 1024

// Handle identifies one subscription. It must be presented back to Remove.
type Handle uint64

// SubscriberRegistry fans chunks out to a dynamic set of subscriber channels
// and keeps the full history for replay. A single mutex spans both the
// history and the subscriber set: a subscriber added mid-broadcast either
// sees a chunk in its replay or as its first live delivery, never both and
// never neither.
type SubscriberRegistry struct {
	mu      sync.Mutex
	history *HistoricBuffer
	subs    map[Handle]chan []byte
	next    Handle
	closed  bool
	logger  *slog.Logger
}

// NewSubscriberRegistry creates an empty registry.
func NewSubscriberRegistry(logger *slog.Logger) *SubscriberRegistry {
	return &SubscriberRegistry{
		history: NewHistoricBuffer(),
		subs:    make(map[Handle]chan []byte),
		logger:  logger.With("component", "stream-registry"),
	}
}

// Add registers a new subscriber. The returned channel first yields every
// chunk broadcast so far, in order, then live chunks. On a closed registry
// the channel is returned already closed.
func (r *SubscriberRegistry) Add() (Handle, <-chan []byte) {
	r.mu.Lock()
	defer r.mu.Unlock()

	chunks := r.history.Chunks()
	ch := make(chan []byte, len(chunks)+subscriberSlack)

	if r.closed {
		close(ch)
		return 0, ch
	}

	// Replay before registration: capacity covers the full history, so
	// these sends cannot block while the lock is held.
	for _, c := range chunks {
		ch <- c
	}

	r.next++
	h := r.next
	r.subs[h] = ch
	return h, ch
}

// Broadcast appends the chunk to the history and delivers it to every
// registered subscriber. A subscriber whose channel is full has the chunk
// dropped with a log line; it never blocks the broadcast or affects other
// subscribers.
func (r *SubscriberRegistry) Broadcast(chunk []byte) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return
	}

	r.history.Write(chunk)
	for h, ch := range r.subs {
		select {
		case ch <- chunk:
		default:
			r.logger.Warn("subscriber too slow, dropping chunk", "handle", uint64(h), "bytes", len(chunk))
		}
	}
}

// Remove unregisters a subscriber and closes its channel. Unknown handles
// are a no-op. History and other subscribers are unaffected.
func (r *SubscriberRegistry) Remove(h Handle) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if ch, ok := r.subs[h]; ok {
		delete(r.subs, h)
		close(ch)
	}
}

// Len returns the number of active subscribers.
func (r *SubscriberRegistry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.subs)
}

// History returns the accumulated output so far.
func (r *SubscriberRegistry) History() []byte {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.history.ReadAll()
}

// Close drops every subscriber (each observes a closed channel) and clears
// the history. Further Broadcast calls are ignored and further Add calls
// yield closed channels.
func (r *SubscriberRegistry) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return
	}
	r.closed = true
	for h, ch := range r.subs {
		delete(r.subs, h)
		close(ch)
	}
	r.history.Reset()
}
