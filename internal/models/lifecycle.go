package models

import (
	"encoding/json"
	"fmt"
	"time"
)

// TrashRetention is how long a soft-deleted event stays restorable.
const TrashRetention = 30 * 24 * time.Hour

const (
	lifecycleActive  = "active"
	lifecycleDeleted = "deleted"
)

// Lifecycle is either active or deleted at a given moment.
// The zero value is active.
type Lifecycle struct {
	deletedAt *time.Time
}

func Active() Lifecycle {
	return Lifecycle{}
}

func Deleted(at time.Time) Lifecycle {
	return Lifecycle{deletedAt: &at}
}

// LifecycleFromNullable builds a lifecycle from a nullable deleted_at column.
func LifecycleFromNullable(deletedAt *time.Time) Lifecycle {
	if deletedAt == nil {
		return Active()
	}
	return Deleted(*deletedAt)
}

func (l Lifecycle) IsDeleted() bool {
	return l.deletedAt != nil
}

func (l Lifecycle) DeletedAt() (time.Time, bool) {
	if l.deletedAt == nil {
		return time.Time{}, false
	}
	return *l.deletedAt, true
}

// Nullable is the inverse of LifecycleFromNullable.
func (l Lifecycle) Nullable() *time.Time {
	if l.deletedAt == nil {
		return nil
	}
	t := *l.deletedAt
	return &t
}

// PurgeAt is the moment a deleted event becomes eligible for permanent removal.
func (l Lifecycle) PurgeAt() (time.Time, bool) {
	at, ok := l.DeletedAt()
	if !ok {
		return time.Time{}, false
	}
	return at.Add(TrashRetention), true
}

func (l Lifecycle) Expired(now time.Time) bool {
	purgeAt, ok := l.PurgeAt()
	return ok && !now.Before(purgeAt)
}

type lifecycleJSON struct {
	State     string     `json:"state"`
	DeletedAt *time.Time `json:"deleted_at,omitempty"`
}

func (l Lifecycle) MarshalJSON() ([]byte, error) {
	if l.deletedAt == nil {
		return json.Marshal(lifecycleJSON{State: lifecycleActive})
	}
	return json.Marshal(lifecycleJSON{State: lifecycleDeleted, DeletedAt: l.deletedAt})
}

func (l *Lifecycle) UnmarshalJSON(data []byte) error {
	var raw lifecycleJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	switch raw.State {
	case "", lifecycleActive:
		*l = Active()
	case lifecycleDeleted:
		if raw.DeletedAt == nil {
			return fmt.Errorf("lifecycle: deleted state without deleted_at")
		}
		*l = Deleted(*raw.DeletedAt)
	default:
		return fmt.Errorf("lifecycle: unknown state %q", raw.State)
	}
	return nil
}
