// Package event wraps the parameter scopes of one function invocation with
// error and log sidebands, and runs the invocation's unit of work.
package event

import (
	"fmt"
	"strings"

	"github.com/ashita-ai/tsunagi/internal/param"
)

// Reserved event-scope keys.
const (
	// ExceptionKey carries the text of a failed unit of work.
	ExceptionKey = "CloudFunctionException"

	// LoggingKey carries the messages logged during the unit of work.
	LoggingKey = "CloudFunctionLogging"
)

// Payload is the inbound request body. Either scope may be absent.
type Payload struct {
	TaskParameters  *param.List `json:"taskParameters,omitempty"`
	EventParameters *param.List `json:"eventParameters,omitempty"`
}

// Response is the outbound body. Only the event scope is echoed back.
type Response struct {
	EventParameters *param.List `json:"eventParameters"`
}

// Event is the per-invocation parameter store. It is not safe for concurrent
// use and must not outlive the request that created it.
type Event struct {
	scopes *param.Scopes
	logs   []string
}

// New builds an Event over the scopes of p.
func New(p Payload) *Event {
	return &Event{scopes: param.NewScopes(p.TaskParameters, p.EventParameters)}
}

// Get resolves key across the task and event scopes.
func (e *Event) Get(key string) (any, error) {
	return e.scopes.Get(key)
}

// Set encodes v and writes it to the event scope.
func (e *Event) Set(key string, v any) error {
	return e.scopes.Set(key, v)
}

// Log appends a message to the log sideband.
func (e *Event) Log(message string) {
	e.logs = append(e.logs, message)
}

// Logf formats and appends a message to the log sideband.
func (e *Event) Logf(format string, args ...any) {
	e.Log(fmt.Sprintf(format, args...))
}

// Logs returns the messages logged so far.
func (e *Event) Logs() []string {
	out := make([]string, len(e.logs))
	copy(out, e.logs)
	return out
}

// Scopes exposes the underlying scopes.
func (e *Event) Scopes() *param.Scopes {
	return e.scopes
}

// SetError records err under ExceptionKey. Panics recovered by Execute carry
// their stack trace.
func (e *Event) SetError(err error) {
	if err == nil {
		return
	}
	_ = e.scopes.Set(ExceptionKey, errorText(err))
}

func errorText(err error) string {
	var b strings.Builder
	b.WriteString(err.Error())
	if p, ok := err.(*PanicError); ok && len(p.Stack) > 0 {
		b.WriteString("\n\n")
		b.Write(p.Stack)
	}
	return b.String()
}

// Response flushes the log sideband into LoggingKey, when anything was
// logged, and returns the event scope.
func (e *Event) Response() Response {
	if len(e.logs) > 0 {
		_ = e.scopes.Set(LoggingKey, e.Logs())
	}
	return Response{EventParameters: e.scopes.Event}
}
