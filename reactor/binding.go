// Package reactor binds timer registries and tracked executors to an
// asynchronous dispatcher: single-shot delayed waits plus task submission.
//
// The interfaces in this file are everything the timer and tracker packages
// consume. Reactor is the concrete implementation used by this module; tests
// may substitute their own.
package reactor

import (
	"time"

	"github.com/fixkme/gotimer/errs"
)

var (
	// ErrCanceled is delivered to a wait handler whose arm was cancelled or
	// superseded by a newer arm.
	ErrCanceled   = errs.Canceled
	ErrClosed     = errs.ReactorClosed
	ErrNotStarted = errs.ReactorClosed.Print("reactor not started")
	ErrOverload   = errs.Overload
)

// Waiter is a single-shot delayed wait. Arming a waiter that is still pending
// cancels the previous arm first.
type Waiter interface {
	// Arm calls h once: with nil when d elapses, with ErrCanceled when the arm
	// is cancelled or superseded, or with ErrClosed when the reactor shuts
	// down first. h is not called when Arm returns an error.
	Arm(d time.Duration, h func(err error)) error
	// Cancel cancels the pending arm, if any. Its handler still runs with
	// ErrCanceled.
	Cancel() error
}

// Executor submits tasks. Post and Defer queue the task; Dispatch may run it
// in the calling goroutine.
type Executor interface {
	Post(fn func()) error
	Defer(fn func()) error
	Dispatch(fn func()) error
}

type Binding interface {
	Executor
	NewWaiter() Waiter
	// NewStrand returns an executor whose tasks never run concurrently with
	// each other.
	NewStrand() Executor
	Stopped() bool
}
