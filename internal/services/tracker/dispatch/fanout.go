// Package dispatch composes tracker notification dispatchers.
package dispatch

import (
	"context"
	"errors"
	"fmt"

	"github.com/louisbranch/applytrack/internal/services/tracker/domain"
)

// Fanout delivers every dispatch to each target in order.
type Fanout struct {
	targets []domain.Dispatcher
}

// NewFanout ignores nil targets.
func NewFanout(targets ...domain.Dispatcher) *Fanout {
	kept := make([]domain.Dispatcher, 0, len(targets))
	for _, target := range targets {
		if target != nil {
			kept = append(kept, target)
		}
	}
	return &Fanout{targets: kept}
}

// Len returns the number of configured targets.
func (f *Fanout) Len() int {
	return len(f.targets)
}

// Dispatch calls every target even when an earlier one fails and joins the
// failures.
func (f *Fanout) Dispatch(ctx context.Context, userID string, kind domain.DispatchKind, payload map[string]string) error {
	var errs []error
	for i, target := range f.targets {
		if err := target.Dispatch(ctx, userID, kind, payload); err != nil {
			errs = append(errs, fmt.Errorf("dispatch target %d: %w", i, err))
		}
	}
	return errors.Join(errs...)
}

var _ domain.Dispatcher = (*Fanout)(nil)
