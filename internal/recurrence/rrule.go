package recurrence

import (
	"fmt"
	"strings"

	"github.com/teambition/rrule-go"

	"smart_agenda/internal/models"
)

var kindToFreq = map[models.RecurrenceKind]rrule.Frequency{
	models.RecurrenceDaily:   rrule.DAILY,
	models.RecurrenceWeekly:  rrule.WEEKLY,
	models.RecurrenceMonthly: rrule.MONTHLY,
	models.RecurrenceYearly:  rrule.YEARLY,
}

// RRule renders kind and interval as an RFC 5545 RRULE value, without the
// "RRULE:" prefix. count <= 0 leaves the rule open-ended. Kind none has no rule.
func RRule(kind models.RecurrenceKind, interval, count int) (string, bool) {
	freq, ok := kindToFreq[kind]
	if !ok {
		return "", false
	}

	opt := rrule.ROption{Freq: freq, Interval: NormalizeInterval(interval)}
	if count > 0 {
		opt.Count = count
	}
	return opt.RRuleString(), true
}

// ParseRRule maps an RRULE value onto a recurrence kind and interval.
// Frequencies finer than daily are rejected.
func ParseRRule(value string) (models.RecurrenceKind, int, error) {
	value = strings.TrimSpace(value)
	value = strings.TrimPrefix(value, "RRULE:")

	opt, err := rrule.StrToROption(value)
	if err != nil {
		return models.RecurrenceNone, 0, fmt.Errorf("parse rrule %q: %w", value, err)
	}

	for kind, freq := range kindToFreq {
		if opt.Freq == freq {
			return kind, NormalizeInterval(opt.Interval), nil
		}
	}
	return models.RecurrenceNone, 0, fmt.Errorf("unsupported rrule frequency %v", opt.Freq)
}
