package album

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"
)

// ErrStopped is returned when work is handed to a stopped Dispatcher
var ErrStopped = errors.New("dispatcher stopped")

// Dispatcher runs posted functions one at a time, in order, on a single
// goroutine. Everything that touches sinks or the image cache on behalf of a
// Binder runs here.
type Dispatcher struct {
	queue  chan func()
	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
	logger zerolog.Logger
}

// NewDispatcher starts a dispatcher whose queue holds up to size pending functions
func NewDispatcher(ctx context.Context, size int, logger zerolog.Logger) *Dispatcher {
	if size <= 0 {
		size = 100
	}

	dispatchCtx, cancel := context.WithCancel(ctx)
	d := &Dispatcher{
		queue:  make(chan func(), size),
		ctx:    dispatchCtx,
		cancel: cancel,
		done:   make(chan struct{}),
		logger: logger,
	}

	go d.run()
	return d
}

func (d *Dispatcher) run() {
	defer close(d.done)

	for {
		select {
		case fn := <-d.queue:
			d.invoke(fn)
		case <-d.ctx.Done():
			return
		}
	}
}

func (d *Dispatcher) invoke(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error().Err(fmt.Errorf("%v", r)).Msg("dispatched function panicked")
		}
	}()
	fn()
}

// Post queues fn and returns immediately. It reports false if the
// dispatcher was stopped, in which case fn never runs.
func (d *Dispatcher) Post(fn func()) bool {
	select {
	case <-d.ctx.Done():
		return false
	default:
	}

	select {
	case d.queue <- fn:
		return true
	case <-d.ctx.Done():
		return false
	}
}

// Do runs fn on the dispatcher and waits for it to return. Calling Do from a
// function that is itself running on the dispatcher deadlocks.
func (d *Dispatcher) Do(ctx context.Context, fn func()) error {
	finished := make(chan struct{})
	if !d.Post(func() {
		defer close(finished)
		fn()
	}) {
		return ErrStopped
	}

	select {
	case <-finished:
		return nil
	case <-d.done:
		select {
		case <-finished:
			return nil
		default:
			return ErrStopped
		}
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Stop ends the dispatch loop and waits for the running function to return.
// Functions still queued are dropped.
func (d *Dispatcher) Stop() {
	d.cancel()
	<-d.done
}
