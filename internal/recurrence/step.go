package recurrence

import (
	"time"

	"smart_agenda/internal/models"
)

// NormalizeInterval coerces zero and negative intervals to 1.
func NormalizeInterval(n int) int {
	if n < 1 {
		return 1
	}
	return n
}

// Advance moves t forward by steps recurrence units of the given kind.
// Month and year steps use plain date-field arithmetic, so Jan 31 + 1 month
// rolls over into March. Kind none returns t unchanged.
func Advance(t time.Time, kind models.RecurrenceKind, steps int) time.Time {
	switch kind {
	case models.RecurrenceDaily:
		return t.AddDate(0, 0, steps)
	case models.RecurrenceWeekly:
		return t.AddDate(0, 0, 7*steps)
	case models.RecurrenceMonthly:
		return t.AddDate(0, steps, 0)
	case models.RecurrenceYearly:
		return t.AddDate(steps, 0, 0)
	default:
		return t
	}
}

// InstanceCount is how many instances a freshly created definition expands to,
// chosen so every kind covers a similar stretch of real time.
func InstanceCount(kind models.RecurrenceKind) int {
	switch kind {
	case models.RecurrenceDaily:
		return 90
	case models.RecurrenceWeekly:
		return 24
	case models.RecurrenceMonthly, models.RecurrenceYearly:
		return 12
	default:
		return 1
	}
}
