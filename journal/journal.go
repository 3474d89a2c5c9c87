// Package journal keeps an append-only log of kitchen status transitions.
// Each row carries the trace and span ids of the call that produced it.
package journal

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/trace"
)

type Outcome string

const (
	OutcomeApplied            Outcome = "APPLIED"
	OutcomeRolledBack         Outcome = "ROLLED_BACK"
	OutcomeCompensationFailed Outcome = "COMPENSATION_FAILED"
)

type Entry struct {
	OrderID    string
	ItemID     string
	Outcome    Outcome
	FromStatus string
	ToStatus   string
	// OrderCompleted is set when the transition completed the order.
	OrderCompleted bool
	EmployeeID     string
	Errors         []string
	TraceID        string
	SpanID         string
	At             time.Time
}

// Recorder persists entries. Implementations must be safe for concurrent use.
type Recorder interface {
	Record(ctx context.Context, e Entry) error
}

// NewEntry stamps e with the time and the span ids found in ctx.
func NewEntry(ctx context.Context, e Entry) Entry {
	sc := trace.SpanFromContext(ctx).SpanContext()
	if sc.IsValid() {
		e.TraceID = sc.TraceID().String()
		e.SpanID = sc.SpanID().String()
	}
	if e.At.IsZero() {
		e.At = time.Now().UTC()
	}
	return e
}

type employeeKey struct{}

// WithEmployee attributes writes made under ctx to an employee id.
func WithEmployee(ctx context.Context, employeeID string) context.Context {
	return context.WithValue(ctx, employeeKey{}, employeeID)
}

func EmployeeFrom(ctx context.Context) string {
	id, _ := ctx.Value(employeeKey{}).(string)
	return id
}

// Discard drops every entry.
type Discard struct{}

func (Discard) Record(context.Context, Entry) error { return nil }
