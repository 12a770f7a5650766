// Package coord lets the sessions on one page (or across processes)
// exclude each other's playback. Whoever starts last broadcasts a
// StartMsg; every other session stops itself.
package coord

import (
	"sort"
	"sync"
)

// StartMsg announces that the session with the given ID started
// playback.
type StartMsg struct {
	SessionID string `json:"sessionId"`
}

// Bus is the coordination channel between sessions. Publish delivers
// to every subscriber, the publisher's own subscription included;
// filtering out self-notifications is the receiver's job.
type Bus interface {
	Publish(StartMsg)
	Subscribe(func(StartMsg)) (unsubscribe func())
}

// MemoryBus is the in-process Bus used when all sessions live in one
// program (and by tests).
type MemoryBus struct {
	mu     sync.Mutex
	nextID int
	subs   map[int]func(StartMsg)
}

func NewMemoryBus() *MemoryBus {
	return &MemoryBus{subs: make(map[int]func(StartMsg))}
}

func (b *MemoryBus) Subscribe(fn func(StartMsg)) func() {
	b.mu.Lock()
	id := b.nextID
	b.nextID++
	b.subs[id] = fn
	b.mu.Unlock()

	return func() {
		b.mu.Lock()
		delete(b.subs, id)
		b.mu.Unlock()
	}
}

func (b *MemoryBus) Publish(msg StartMsg) {
	// Snapshot under the lock so a handler may unsubscribe itself or
	// siblings without deadlocking. Subscription ids ascend, so sorting
	// them delivers in subscribe order.
	b.mu.Lock()
	ids := make([]int, 0, len(b.subs))
	for id := range b.subs {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	fns := make([]func(StartMsg), len(ids))
	for i, id := range ids {
		fns[i] = b.subs[id]
	}
	b.mu.Unlock()

	for i, fn := range fns {
		b.mu.Lock()
		_, live := b.subs[ids[i]]
		b.mu.Unlock()
		if live {
			fn(msg)
		}
	}
}

// SubscriberCount reports live subscriptions. Teardown tests use it to
// prove listeners don't leak.
func (b *MemoryBus) SubscriberCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}
