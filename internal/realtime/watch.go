package realtime

import (
	"context"
	"errors"

	"github.com/lalith-99/huddle/internal/errs"
	"github.com/lalith-99/huddle/internal/subscription"
)

var errListenerClosed = errors.New("change listener closed")

// Watch is observeCollection: it delivers load's result once, then again
// after every notification on topic, until the subscription is closed.
//
// The listener is registered before the first load, so a write that lands
// between the load and the first wait still triggers a reload. A failed
// load ends the subscription with an *errs.LoadError naming what; it is not
// retried.
func Watch[T any](ctx context.Context, bus Bus, topic, what string, load func(context.Context) (T, error)) *subscription.Subscription[T] {
	ctx, cancel := context.WithCancel(ctx)
	sub := subscription.New[T](cancel)

	go func() {
		defer cancel()

		l, err := bus.Subscribe(ctx, topic)
		if err != nil {
			sub.Fail(&errs.LoadError{What: what, Err: err})
			return
		}
		defer l.Close()

		for {
			snapshot, err := load(ctx)
			if err != nil {
				if ctx.Err() != nil {
					sub.End()
					return
				}
				sub.Fail(&errs.LoadError{What: what, Err: err})
				return
			}
			if !sub.Send(snapshot) {
				sub.End()
				return
			}

			select {
			case <-ctx.Done():
				sub.End()
				return
			case _, ok := <-l.C():
				if !ok {
					sub.Fail(&errs.LoadError{What: what, Err: errListenerClosed})
					return
				}
			}
		}
	}()

	return sub
}
