package models

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

type RecurrenceKind string

const (
	RecurrenceNone    RecurrenceKind = "none"
	RecurrenceDaily   RecurrenceKind = "daily"
	RecurrenceWeekly  RecurrenceKind = "weekly"
	RecurrenceMonthly RecurrenceKind = "monthly"
	RecurrenceYearly  RecurrenceKind = "yearly"
)

// DefaultEventDuration is used whenever an event has no end time.
const DefaultEventDuration = time.Hour

// ParseRecurrenceKind maps free text onto a known kind. Anything unknown is none.
func ParseRecurrenceKind(s string) RecurrenceKind {
	switch RecurrenceKind(strings.ToLower(strings.TrimSpace(s))) {
	case RecurrenceDaily:
		return RecurrenceDaily
	case RecurrenceWeekly:
		return RecurrenceWeekly
	case RecurrenceMonthly:
		return RecurrenceMonthly
	case RecurrenceYearly:
		return RecurrenceYearly
	default:
		return RecurrenceNone
	}
}

func (k RecurrenceKind) IsRecurring() bool {
	return k != "" && k != RecurrenceNone
}

// EventDefinition is an event before it has been stored.
type EventDefinition struct {
	Title              string         `json:"title" db:"title"`
	StartTime          time.Time      `json:"start_time" db:"start_time"`
	EndTime            *time.Time     `json:"end_time,omitempty" db:"end_time"`
	Description        string         `json:"description,omitempty" db:"description"`
	ReminderMinutes    *int           `json:"reminder_minutes,omitempty" db:"reminder_minutes"`
	Recurrence         RecurrenceKind `json:"recurrence,omitempty" db:"recurrence"`
	RecurrenceInterval int            `json:"recurrence_interval,omitempty" db:"recurrence_interval"`
	IsAllDay           bool           `json:"is_all_day" db:"is_all_day"`
	Category           string         `json:"category,omitempty" db:"category"`
	Color              string         `json:"color,omitempty" db:"color"`
	SeriesID           string         `json:"series_id,omitempty" db:"series_id"`
	Subtasks           []Subtask      `json:"subtasks,omitempty" db:"subtasks"`
}

// Duration is end - start, or DefaultEventDuration when there is no end.
func (d EventDefinition) Duration() time.Duration {
	if d.EndTime == nil {
		return DefaultEventDuration
	}
	return d.EndTime.Sub(d.StartTime)
}

// EffectiveEnd fills a missing end with start + 1h.
func (d EventDefinition) EffectiveEnd() time.Time {
	if d.EndTime == nil {
		return d.StartTime.Add(DefaultEventDuration)
	}
	return *d.EndTime
}

// Validate reports the fields that make a definition unusable for generation.
func (d EventDefinition) Validate() []FieldError {
	var errs []FieldError
	if strings.TrimSpace(d.Title) == "" {
		errs = append(errs, FieldError{Field: "title", Message: "is required"})
	}
	if d.StartTime.IsZero() {
		errs = append(errs, FieldError{Field: "start_time", Message: "is required"})
	}
	if d.ReminderMinutes != nil && *d.ReminderMinutes < 0 {
		errs = append(errs, FieldError{Field: "reminder_minutes", Message: "must be >= 0"})
	}
	for i, st := range d.Subtasks {
		if strings.TrimSpace(st.Text) == "" {
			errs = append(errs, FieldError{Field: fmt.Sprintf("subtasks[%d].text", i), Message: "is required"})
		}
	}
	return errs
}

// Event is a stored instance.
type Event struct {
	ID int64 `json:"id" db:"id"`
	EventDefinition
	Completed bool      `json:"completed" db:"completed"`
	Lifecycle Lifecycle `json:"lifecycle" db:"deleted_at"`
}

func (e Event) IsDeleted() bool {
	return e.Lifecycle.IsDeleted()
}

// Overlaps reports whether [start, end) of both events intersect.
func (e Event) Overlaps(start, end time.Time) bool {
	return start.Before(e.EffectiveEnd()) && end.After(e.StartTime)
}

// SortByStart orders events ascending by start time, ties broken by id.
func SortByStart(events []Event) {
	sort.SliceStable(events, func(i, j int) bool {
		if events[i].StartTime.Equal(events[j].StartTime) {
			return events[i].ID < events[j].ID
		}
		return events[i].StartTime.Before(events[j].StartTime)
	})
}

// FieldError describes one invalid input field.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}
