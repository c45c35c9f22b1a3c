package models

import "time"

// EventPatch is a partial update of one stored instance. Nil fields are left alone.
type EventPatch struct {
	Title           *string    `json:"title,omitempty"`
	StartTime       *time.Time `json:"start_time,omitempty"`
	EndTime         *time.Time `json:"end_time,omitempty"`
	Description     *string    `json:"description,omitempty"`
	ReminderMinutes *int       `json:"reminder_minutes,omitempty"`
	IsAllDay        *bool      `json:"is_all_day,omitempty"`
	Category        *string    `json:"category,omitempty"`
	Color           *string    `json:"color,omitempty"`
	Completed       *bool      `json:"completed,omitempty"`
	Subtasks        *[]Subtask `json:"subtasks,omitempty"`
	Lifecycle       *Lifecycle `json:"-"`
}

func (p EventPatch) IsEmpty() bool {
	return p.Title == nil && p.StartTime == nil && p.EndTime == nil &&
		p.Description == nil && p.ReminderMinutes == nil && p.IsAllDay == nil &&
		p.Category == nil && p.Color == nil && p.Completed == nil && p.Subtasks == nil && p.Lifecycle == nil
}

// Apply copies every set field onto e.
func (p EventPatch) Apply(e *Event) {
	if p.Title != nil {
		e.Title = *p.Title
	}
	if p.StartTime != nil {
		e.StartTime = *p.StartTime
	}
	if p.EndTime != nil {
		end := *p.EndTime
		e.EndTime = &end
	}
	if p.Description != nil {
		e.Description = *p.Description
	}
	if p.ReminderMinutes != nil {
		minutes := *p.ReminderMinutes
		e.ReminderMinutes = &minutes
	}
	if p.IsAllDay != nil {
		e.IsAllDay = *p.IsAllDay
	}
	if p.Category != nil {
		e.Category = *p.Category
	}
	if p.Color != nil {
		e.Color = *p.Color
	}
	if p.Completed != nil {
		e.Completed = *p.Completed
	}
	if p.Subtasks != nil {
		e.Subtasks = CloneSubtasks(*p.Subtasks)
	}
	if p.Lifecycle != nil {
		e.Lifecycle = *p.Lifecycle
	}
}
