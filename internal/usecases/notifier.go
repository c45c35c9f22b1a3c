package usecases

import (
	"context"

	"smart_agenda/internal/models"
)

type ChangeKind string

const (
	ChangeCreated      ChangeKind = "created"
	ChangeBatchCreated ChangeKind = "batch_created"
	ChangeUpdated      ChangeKind = "updated"
	ChangeDeleted      ChangeKind = "deleted"
	ChangeCompleted    ChangeKind = "completed"
)

// Change is what the scheduler tells the outside world after a committed mutation.
type Change struct {
	Kind   ChangeKind
	Events []models.Event
}

// Notifier delivers changes somewhere (Telegram, Google Calendar, ...).
// Failures are logged by the caller and never undo the change.
type Notifier interface {
	Notify(ctx context.Context, change Change) error
}

// Notifiers fans a change out to every notifier and returns the first error.
type Notifiers []Notifier

func (ns Notifiers) Notify(ctx context.Context, change Change) error {
	var firstErr error
	for _, n := range ns {
		if n == nil {
			continue
		}
		if err := n.Notify(ctx, change); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
