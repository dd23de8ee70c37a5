// Package realtime is the change-notification side of the document store.
//
// Writers publish a topic after every successful mutation; observers listen
// on that topic and reload a full snapshot each time it fires. Notifications
// carry no payload and may be coalesced: "something under this topic
// changed" is the only guarantee.
package realtime

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// Bus publishes and subscribes to change topics.
type Bus interface {
	Publish(ctx context.Context, topic string) error
	Subscribe(ctx context.Context, topic string) (Listener, error)
	Close() error
}

// Listener receives a tick per observed change. C is closed when the
// listener is closed or its transport goes away.
type Listener interface {
	C() <-chan struct{}
	Close() error
}

var ErrBusClosed = errors.New("realtime bus closed")

// notifier is the coalescing tick channel shared by every Listener
// implementation. notify after close is a no-op.
type notifier struct {
	mu     sync.Mutex
	ch     chan struct{}
	closed bool
}

func newNotifier() *notifier {
	return &notifier{ch: make(chan struct{}, 1)}
}

func (n *notifier) notify() {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.closed {
		return
	}
	select {
	case n.ch <- struct{}{}:
	default:
	}
}

func (n *notifier) close() {
	n.mu.Lock()
	defer n.mu.Unlock()
	if !n.closed {
		n.closed = true
		close(n.ch)
	}
}

// MemoryBus delivers notifications in-process. Used in tests and in
// single-node development setups.
type MemoryBus struct {
	mu        sync.Mutex
	listeners map[string]map[*memoryListener]struct{}
	closed    bool
}

func NewMemoryBus() *MemoryBus {
	return &MemoryBus{listeners: make(map[string]map[*memoryListener]struct{})}
}

type memoryListener struct {
	*notifier
	bus   *MemoryBus
	topic string
}

func (l *memoryListener) C() <-chan struct{} { return l.ch }

func (l *memoryListener) Close() error {
	l.bus.remove(l)
	return nil
}

func (b *MemoryBus) Publish(_ context.Context, topic string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return ErrBusClosed
	}
	for l := range b.listeners[topic] {
		l.notify()
	}
	return nil
}

func (b *MemoryBus) Subscribe(_ context.Context, topic string) (Listener, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil, ErrBusClosed
	}
	l := &memoryListener{notifier: newNotifier(), bus: b, topic: topic}
	if b.listeners[topic] == nil {
		b.listeners[topic] = make(map[*memoryListener]struct{})
	}
	b.listeners[topic][l] = struct{}{}
	return l, nil
}

func (b *MemoryBus) remove(l *memoryListener) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if set := b.listeners[l.topic]; set != nil {
		delete(set, l)
		if len(set) == 0 {
			delete(b.listeners, l.topic)
		}
	}
	l.close()
}

// ListenerCount returns the number of open listeners on topic.
func (b *MemoryBus) ListenerCount(topic string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.listeners[topic])
}

func (b *MemoryBus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	b.closed = true
	for topic, set := range b.listeners {
		for l := range set {
			l.close()
		}
		delete(b.listeners, topic)
	}
	return nil
}

// Backend names accepted by New.
const (
	BackendMemory = "memory"
	BackendRedis  = "redis"
	BackendNATS   = "nats"
)

func unknownBackend(name string) error {
	return fmt.Errorf("unknown realtime backend: %s", name)
}
