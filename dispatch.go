package amqp

import (
	"context"
	"sync"

	"golang.org/x/sync/semaphore"

	"github.com/szarykott/goamqp/internal/errs"
	"github.com/szarykott/goamqp/xlog"
)

// dispatcher fans deliveries from one consumer's channel out to handler,
// bounding how many invocations of handler may run at once; at the default
// bound of one, per-channel delivery order is preserved.
// A handler panic is recovered and reported as a
// CallbackException instead of taking down the dispatch goroutine.
type dispatcher struct {
	sem     *semaphore.Weighted
	log     xlog.Logger
	onPanic func(error)
}

// newDispatcher builds a dispatcher allowing at most concurrency
// in-flight handler invocations. concurrency <= 0 is treated as 1.
func newDispatcher(concurrency int64, log xlog.Logger, onPanic func(error)) *dispatcher {
	if concurrency <= 0 {
		concurrency = 1
	}
	return &dispatcher{sem: semaphore.NewWeighted(concurrency), log: log, onPanic: onPanic}
}

// run consumes deliveries until the channel closes (consumer cancelled,
// channel closed, or connection lost), invoking handler for each. It
// blocks the caller until the channel has closed and every handler
// invocation it started has returned; run it in its own goroutine per
// consumer.
func (d *dispatcher) run(ctx context.Context, deliveries <-chan Delivery, handler DeliveryHandler) {
	var wg sync.WaitGroup
	defer wg.Wait()
	for delivery := range deliveries {
		if err := d.sem.Acquire(ctx, 1); err != nil {
			// Context cancelled: drain without further processing so the
			// underlying channel doesn't back up the broker's TCP window.
			continue
		}
		delivery := delivery
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer d.sem.Release(1)
			defer errs.Recover(func(err error) {
				d.log.WithField("error", err.Error()).Error("consumer callback panicked")
				if d.onPanic != nil {
					d.onPanic(err)
				}
			})
			handler(delivery)
		}()
	}
}
