// Package subscription provides the cancellable, latest-value stream every
// long-lived observation in huddle is delivered through.
//
// A Subscription has exactly one producer. The producer calls Send for each
// new snapshot and End (or Fail) once it stops. Consumers range over
// Updates() and call Close when the owning scope goes away; after the range
// loop ends, Err reports why the stream stopped.
//
// Delivery keeps only the newest undelivered value: snapshots replace each
// other, so a slow consumer skips intermediate ones rather than blocking the
// producer.
package subscription

import (
	"sync"
)

type Subscription[T any] struct {
	updates chan T
	done    chan struct{}

	closeOnce sync.Once
	endOnce   sync.Once
	stop      func()

	err error
}

// New creates a subscription. stop runs once when the consumer closes it and
// should make the producer exit.
func New[T any](stop func()) *Subscription[T] {
	return &Subscription[T]{
		updates: make(chan T, 1),
		done:    make(chan struct{}),
		stop:    stop,
	}
}

// Updates is closed by the producer when the stream ends.
func (s *Subscription[T]) Updates() <-chan T {
	return s.updates
}

// Done is closed when the consumer calls Close.
func (s *Subscription[T]) Done() <-chan struct{} {
	return s.done
}

// Err is the terminal error. Only meaningful once Updates is closed.
func (s *Subscription[T]) Err() error {
	return s.err
}

// Close releases the subscription. Safe to call more than once.
func (s *Subscription[T]) Close() {
	s.closeOnce.Do(func() {
		close(s.done)
		if s.stop != nil {
			s.stop()
		}
	})
}

// Send delivers v, replacing any value the consumer has not read yet.
// It returns false once the subscription is closed.
func (s *Subscription[T]) Send(v T) bool {
	select {
	case <-s.done:
		return false
	default:
	}
	for {
		select {
		case s.updates <- v:
			return true
		case <-s.done:
			return false
		default:
			// Drop the stale value and retry.
			select {
			case <-s.updates:
			default:
			}
		}
	}
}

// End closes Updates. Producer only.
func (s *Subscription[T]) End() {
	s.endOnce.Do(func() {
		close(s.updates)
	})
}

// Fail records err as the terminal error and ends the stream.
func (s *Subscription[T]) Fail(err error) {
	s.endOnce.Do(func() {
		s.err = err
		close(s.updates)
	})
}

// Drain reads every remaining value until the producer ends the stream and
// returns the values it saw in delivery order. Intermediate values may have
// been coalesced away; the last value sent before End is always included.
func (s *Subscription[T]) Drain() ([]T, error) {
	var out []T
	for v := range s.updates {
		out = append(out, v)
	}
	return out, s.err
}
