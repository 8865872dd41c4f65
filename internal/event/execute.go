package event

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
)

// Params is the contract a unit of work runs against.
type Params interface {
	Get(key string) (any, error)
	Set(key string, v any) error
	Log(message string)
}

// Task is one unit of work.
type Task interface {
	Run(ctx context.Context, p Params) error
}

// TaskFunc adapts a function to Task.
type TaskFunc func(ctx context.Context, p Params) error

// Run calls f.
func (f TaskFunc) Run(ctx context.Context, p Params) error { return f(ctx, p) }

// PanicError is the failure recorded when a unit of work panics.
type PanicError struct {
	Value any
	Stack []byte
}

func (p *PanicError) Error() string {
	return fmt.Sprintf("panic: %v", p.Value)
}

// Result is the outcome of one invocation. Response is always populated.
// Err is the failure that was reported in-band, or nil.
type Result struct {
	Response Response
	Err      error
	Logs     []string
}

// Failed reports whether the unit of work failed.
func (r Result) Failed() bool { return r.Err != nil }

// Execute builds an Event from p, runs task against it, and returns the
// response. A returned error or a panic is recorded under ExceptionKey; it
// never escapes as a Go error.
func Execute(ctx context.Context, p Payload, task Task) Result {
	e := New(p)
	err := run(ctx, e, task)
	if err != nil {
		e.SetError(err)
	}
	return Result{Response: e.Response(), Err: err, Logs: e.Logs()}
}

func run(ctx context.Context, e *Event, task Task) (err error) {
	defer func() {
		if v := recover(); v != nil {
			err = &PanicError{Value: v, Stack: debug.Stack()}
		}
	}()
	if task == nil {
		return errors.New("event: no task configured")
	}
	return task.Run(ctx, e)
}

// Reject returns the in-band failure response for a request whose body could
// not be read. The event scope is empty apart from the error.
func Reject(err error) Result {
	e := New(Payload{})
	e.SetError(err)
	return Result{Response: e.Response(), Err: err}
}
