// Package optimistic applies local changes ahead of an authoritative write
// and undoes them when the write fails.
//
// A Tx records two kinds of undo work: local reverts registered with Apply,
// and compensations for remote steps that already succeeded, registered by
// Do. Rollback runs the compensations first (newest first) and then the
// local reverts (newest first), so that the caller observes the pre-call
// state once Rollback returns.
package optimistic

import (
	"context"
	"fmt"
	"log/slog"
)

// Step is one authoritative write. Compensate may be nil when the write
// has nothing to undo remotely.
type Step struct {
	Name       string
	Execute    func(ctx context.Context) error
	Compensate func(ctx context.Context) error
}

type Tx struct {
	name     string
	reverts  []func()
	executed []Step
	done     bool
}

func Begin(name string) *Tx {
	return &Tx{name: name}
}

// Apply runs apply immediately and keeps revert for Rollback.
func (tx *Tx) Apply(apply, revert func()) {
	apply()
	if revert != nil {
		tx.reverts = append(tx.reverts, revert)
	}
}

// Do executes the step. A successful step with a Compensate is kept so a
// later failure can undo it.
func (tx *Tx) Do(ctx context.Context, step Step) error {
	if err := step.Execute(ctx); err != nil {
		return fmt.Errorf("%s: %w", step.Name, err)
	}
	if step.Compensate != nil {
		tx.executed = append(tx.executed, step)
	}
	return nil
}

// Commit drops all undo work.
func (tx *Tx) Commit() {
	tx.done = true
	tx.reverts = nil
	tx.executed = nil
}

// Rollback compensates executed steps and reverts local changes. It returns
// the compensation errors; local reverts cannot fail. Calling Rollback after
// Commit or a previous Rollback is a no-op.
func (tx *Tx) Rollback(ctx context.Context) []error {
	if tx.done {
		return nil
	}
	tx.done = true

	var errs []error
	for i := len(tx.executed) - 1; i >= 0; i-- {
		step := tx.executed[i]
		slog.InfoContext(ctx, "compensating step", "tx", tx.name, "step", step.Name)
		if err := step.Compensate(ctx); err != nil {
			slog.ErrorContext(ctx, "CRITICAL: failed to compensate step", "tx", tx.name, "step", step.Name, "error", err)
			errs = append(errs, fmt.Errorf("compensate %s: %w", step.Name, err))
		}
	}
	for i := len(tx.reverts) - 1; i >= 0; i-- {
		tx.reverts[i]()
	}
	tx.reverts = nil
	tx.executed = nil
	return errs
}
