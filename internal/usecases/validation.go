package usecases

import (
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"smart_agenda/internal/models"
)

var (
	ErrInvalidDefinition = errors.New("invalid event definition")
	ErrEventNotFound     = errors.New("event not found")
)

// ValidationError lists every bad field of a rejected definition.
type ValidationError struct {
	Fields []models.FieldError
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		parts = append(parts, f.Field+" "+f.Message)
	}
	return fmt.Sprintf("%s: %s", ErrInvalidDefinition, strings.Join(parts, ", "))
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrInvalidDefinition
}

func validateDefinition(def models.EventDefinition) error {
	if fields := def.Validate(); len(fields) > 0 {
		return &ValidationError{Fields: fields}
	}
	return nil
}

// normalizeDefinition makes the recurrence fields consistent before generation:
// unknown kinds become none and non-recurring events drop any series id.
func normalizeDefinition(def models.EventDefinition) models.EventDefinition {
	def.Title = strings.TrimSpace(def.Title)
	def.Subtasks = normalizeSubtasks(def.Subtasks)
	def.Recurrence = models.ParseRecurrenceKind(string(def.Recurrence))
	if !def.Recurrence.IsRecurring() {
		def.SeriesID = ""
		def.RecurrenceInterval = 0
	}
	return def
}

// normalizeSubtasks trims texts and gives every item without an id a new one.
func normalizeSubtasks(subtasks []models.Subtask) []models.Subtask {
	out := models.CloneSubtasks(subtasks)
	for i := range out {
		out[i].Text = strings.TrimSpace(out[i].Text)
		if out[i].ID == "" {
			out[i].ID = uuid.NewString()
		}
	}
	return out
}
