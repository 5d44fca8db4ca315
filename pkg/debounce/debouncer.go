// Package debounce coalesces bursts of triggers into a single delivery.
package debounce

import (
	"context"
	"time"

	"github.com/ritzau/tag-flow/pkg/logging"
)

// DefaultQuietPeriod is how long the input must stay silent before a flush
const DefaultQuietPeriod = 500 * time.Millisecond

// Debouncer delivers the newest value once triggers stop arriving for the
// quiet period, or once maxWait has passed since the first pending trigger.
type Debouncer[T any] struct {
	input       chan T
	output      chan T
	done        chan struct{} // closed when run returns
	quietPeriod time.Duration
	maxWait     time.Duration
}

// New creates a debouncer. A maxWait of zero disables the upper bound.
func New[T any](quietPeriod, maxWait time.Duration) *Debouncer[T] {
	return &Debouncer[T]{
		input:       make(chan T, 64),
		output:      make(chan T, 1),
		done:        make(chan struct{}),
		quietPeriod: quietPeriod,
		maxWait:     maxWait,
	}
}

// Trigger submits a value without blocking. Once the debouncer has stopped
// the value is dropped. A full buffer gives up its oldest value; only the
// newest is ever delivered.
func (d *Debouncer[T]) Trigger(v T) {
	for {
		select {
		case <-d.done:
			return
		case d.input <- v:
			return
		default:
		}

		select {
		case <-d.input:
		default:
		}
	}
}

// Output returns the channel of debounced values. It is closed when the
// debouncer stops.
func (d *Debouncer[T]) Output() <-chan T {
	return d.output
}

// Start begins processing triggers until ctx is cancelled
func (d *Debouncer[T]) Start(ctx context.Context) {
	go d.run(ctx)
}

func (d *Debouncer[T]) run(ctx context.Context) {
	var (
		quiet   = stoppedTimer()
		maxWait = stoppedTimer()
		latest  T
		pending int
	)

	flush := func() {
		if pending == 0 {
			return
		}
		logging.Trace("flushing debounced triggers", "count", pending)
		d.deliver(latest)

		var zero T
		latest = zero
		pending = 0
		quiet.Stop()
		maxWait.Stop()
	}

	defer close(d.done)
	defer close(d.output)

	for {
		select {
		case <-ctx.Done():
			quiet.Stop()
			maxWait.Stop()
			return

		case v := <-d.input:
			latest = v
			pending++

			resetTimer(quiet, d.quietPeriod)
			if pending == 1 && d.maxWait > 0 {
				resetTimer(maxWait, d.maxWait)
			}

		case <-quiet.C:
			flush()

		case <-maxWait.C:
			flush()
		}
	}
}

// deliver hands v to the consumer, replacing an undelivered older value
func (d *Debouncer[T]) deliver(v T) {
	select {
	case d.output <- v:
		return
	default:
	}
	select {
	case <-d.output:
	default:
	}
	d.output <- v
}

func stoppedTimer() *time.Timer {
	t := time.NewTimer(time.Hour)
	t.Stop()
	return t
}

func resetTimer(t *time.Timer, d time.Duration) {
	if !t.Stop() {
		select {
		case <-t.C:
		default:
		}
	}
	t.Reset(d)
}
