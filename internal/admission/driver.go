package admission

import (
	"context"
	"log"
	"time"

	"vandalwatch/internal/models"
)

// Dispatch hands one matured item to the worker pool. It may block until
// a worker is free.
type Dispatch func(ctx context.Context, ref models.EditRef)

// Driver is the single polling loop that moves matured items from the
// queue into the worker pool. Poll-and-sleep rather than a blocking wait
// keeps it responsive to shutdown.
type Driver struct {
	queue    *Queue
	dispatch Dispatch
	interval time.Duration
}

// NewDriver creates a driver polling queue every interval.
func NewDriver(queue *Queue, interval time.Duration, dispatch Dispatch) *Driver {
	return &Driver{queue: queue, dispatch: dispatch, interval: interval}
}

// Run polls until ctx is cancelled. Items still immature at shutdown are
// abandoned; in-flight dispatches complete.
func (d *Driver) Run(ctx context.Context) {
	log.Printf("Admission driver started (poll interval: %v)", d.interval)

	timer := time.NewTimer(d.interval)
	defer timer.Stop()

	for {
		for {
			ref, ok := d.queue.Poll()
			if !ok {
				break
			}
			d.dispatch(ctx, ref)
			if ctx.Err() != nil {
				return
			}
		}

		timer.Reset(d.interval)
		select {
		case <-ctx.Done():
			log.Println("Admission driver stopped")
			return
		case <-timer.C:
		}
	}
}
