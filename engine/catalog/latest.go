package catalog

import "sync"

// Latest hands out tickets per consumer so only the most recent query of
// each consumer may deliver its result.
type Latest struct {
	mu  sync.Mutex
	seq map[string]uint64
}

// Ticket identifies one query of one consumer.
type Ticket struct {
	consumer string
	n        uint64
}

// NewLatest creates an empty Latest.
func NewLatest() *Latest {
	return &Latest{seq: make(map[string]uint64)}
}

// Begin issues a ticket that supersedes every earlier ticket of consumer.
func (l *Latest) Begin(consumer string) Ticket {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.seq[consumer]++
	return Ticket{consumer: consumer, n: l.seq[consumer]}
}

// Current reports whether t is still the consumer's newest ticket.
func (l *Latest) Current(t Ticket) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.seq[t.consumer] == t.n
}

// Forget drops a consumer's history, e.g. when its view goes away.
func (l *Latest) Forget(consumer string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.seq, consumer)
}
