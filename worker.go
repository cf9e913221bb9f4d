package main

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
)

// Dispatcher serializes command execution on a single consumer
// goroutine. Commands submitted from any goroutine run one at a time in
// submission order, so handlers can touch shared state without locks.
type Dispatcher struct {
	tasks   chan func()
	stop    chan struct{}
	stopped sync.Once
	wg      sync.WaitGroup
}

// NewDispatcher starts the consumer goroutine.
func NewDispatcher(queueSize int) *Dispatcher {
	if queueSize <= 0 {
		queueSize = 64
	}
	d := &Dispatcher{
		tasks: make(chan func(), queueSize),
		stop:  make(chan struct{}),
	}
	d.wg.Add(1)
	go d.run()
	return d
}

func (d *Dispatcher) run() {
	defer d.wg.Done()
	for {
		select {
		case task := <-d.tasks:
			runProtected("dispatcher", task)
		case <-d.stop:
			// Drain what's already queued before exiting
			for {
				select {
				case task := <-d.tasks:
					runProtected("dispatcher", task)
				default:
					return
				}
			}
		}
	}
}

// Submit queues a command. Blocks when the queue is full; fails once
// the dispatcher is shut down.
func (d *Dispatcher) Submit(ctx context.Context, task func()) error {
	select {
	case <-d.stop:
		return fmt.Errorf("dispatcher stopped")
	case d.tasks <- task:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Shutdown stops the consumer after draining queued commands.
func (d *Dispatcher) Shutdown() {
	d.stopped.Do(func() { close(d.stop) })
	d.wg.Wait()
}

// Go runs fn on its own goroutine with panic protection. A panicking
// task logs at Error level and surfaces on the update stream instead of
// crashing the process.
func Go(name string, fn func()) {
	go runProtected(name, fn)
}

func runProtected(name string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("background task panicked",
				"task", name,
				"panic", r,
				"stack", string(debug.Stack()))
			publishUpdate(UpdateError, fmt.Sprintf("task %s failed: %v", name, r))
		}
	}()
	fn()
}
