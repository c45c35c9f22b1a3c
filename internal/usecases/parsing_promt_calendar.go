package usecases

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"smart_agenda/internal/models"
)

// Форматы времени, которые модель реально присылает
var intentTimeLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
}

type rawIntentEvent struct {
	Title       *string `json:"title"`
	StartTime   *string `json:"start_time"`
	EndTime     *string `json:"end_time"`
	Description *string `json:"description"`
	Recurrence  *string `json:"recurrence"`
	Category    *string `json:"category"`
	Color       *string `json:"color"`

	ReminderMinutes      json.RawMessage `json:"reminder_minutes"`
	ReminderMinutesCamel json.RawMessage `json:"reminderMinutes"`
	Interval             json.RawMessage `json:"recurrence_interval"`
	IntervalCamel        json.RawMessage `json:"recurrenceInterval"`
	IsAllDay             *bool           `json:"is_all_day"`
	IsAllDayCamel        *bool           `json:"isAllDay"`
}

type rawIntent struct {
	rawIntentEvent
	Action              string           `json:"action"`
	Events              []rawIntentEvent `json:"events"`
	TargetID            json.RawMessage  `json:"target_id"`
	ConfirmationMessage string           `json:"confirmation_message"`
}

// ParseIntentResponse decodes the model's JSON answer. Text without any JSON
// object is treated as a plain reply with action unknown.
func ParseIntentResponse(response string, loc *time.Location) (models.Intent, error) {
	if loc == nil {
		loc = time.Local
	}

	jsonText, ok := extractJSONObject(response)
	if !ok {
		return models.Intent{
			Action:              models.ActionUnknown,
			ConfirmationMessage: strings.TrimSpace(response),
		}, nil
	}

	var raw rawIntent
	if err := json.Unmarshal([]byte(jsonText), &raw); err != nil {
		return models.Intent{}, fmt.Errorf("неверный JSON объект: %w", err)
	}

	intent := models.Intent{
		Action:              parseAction(raw.Action),
		ConfirmationMessage: strings.TrimSpace(raw.ConfirmationMessage),
		TargetID:            parseInt64(raw.TargetID),
	}

	switch intent.Action {
	case models.ActionCreate:
		def, err := raw.rawIntentEvent.definition(loc)
		if err != nil {
			return models.Intent{}, err
		}
		intent.Event = &def

	case models.ActionBatchCreate:
		for _, e := range raw.Events {
			def, err := e.definition(loc)
			if err != nil {
				return models.Intent{}, err
			}
			intent.Events = append(intent.Events, def)
		}

	case models.ActionUpdate, models.ActionDelete:
		if raw.Title != nil {
			intent.TargetTitle = strings.TrimSpace(*raw.Title)
		}
		if intent.Action == models.ActionUpdate {
			patch, err := raw.rawIntentEvent.patch(loc)
			if err != nil {
				return models.Intent{}, err
			}
			intent.Patch = patch
		}
	}

	return intent, nil
}

// extractJSONObject strips code fences and any chatter around the outermost object.
func extractJSONObject(response string) (string, bool) {
	text := strings.TrimSpace(response)
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSuffix(text, "```")

	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end <= start {
		return "", false
	}
	return text[start : end+1], true
}

func parseAction(s string) models.IntentAction {
	switch a := models.IntentAction(strings.ToLower(strings.TrimSpace(s))); a {
	case models.ActionCreate, models.ActionBatchCreate, models.ActionUpdate,
		models.ActionDelete, models.ActionRead:
		return a
	default:
		return models.ActionUnknown
	}
}

func (r rawIntentEvent) definition(loc *time.Location) (models.EventDefinition, error) {
	var def models.EventDefinition

	if r.Title != nil {
		def.Title = strings.TrimSpace(*r.Title)
	}
	if r.Description != nil {
		def.Description = *r.Description
	}
	if r.Category != nil {
		def.Category = *r.Category
	}
	if r.Color != nil {
		def.Color = *r.Color
	}
	def.IsAllDay = r.allDay() != nil && *r.allDay()

	start, err := parseIntentTime(r.StartTime, loc)
	if err != nil {
		return def, err
	}
	if start != nil {
		def.StartTime = *start
	}
	if def.EndTime, err = parseIntentTime(r.EndTime, loc); err != nil {
		return def, err
	}

	if r.Recurrence != nil {
		def.Recurrence = models.ParseRecurrenceKind(*r.Recurrence)
	} else {
		def.Recurrence = models.RecurrenceNone
	}
	if def.Recurrence.IsRecurring() {
		def.RecurrenceInterval = parseInterval(firstRaw(r.Interval, r.IntervalCamel))
	}
	def.ReminderMinutes = parseOptionalInt(firstRaw(r.ReminderMinutes, r.ReminderMinutesCamel))

	return def, nil
}

// patch keeps only the fields the model actually sent.
func (r rawIntentEvent) patch(loc *time.Location) (models.EventPatch, error) {
	var p models.EventPatch

	start, err := parseIntentTime(r.StartTime, loc)
	if err != nil {
		return p, err
	}
	end, err := parseIntentTime(r.EndTime, loc)
	if err != nil {
		return p, err
	}
	p.StartTime = start
	p.EndTime = end
	p.Description = r.Description
	p.Category = r.Category
	p.Color = r.Color
	p.IsAllDay = r.allDay()
	p.ReminderMinutes = parseOptionalInt(firstRaw(r.ReminderMinutes, r.ReminderMinutesCamel))

	return p, nil
}

func (r rawIntentEvent) allDay() *bool {
	if r.IsAllDay != nil {
		return r.IsAllDay
	}
	return r.IsAllDayCamel
}

func parseIntentTime(value *string, loc *time.Location) (*time.Time, error) {
	if value == nil || strings.TrimSpace(*value) == "" {
		return nil, nil
	}
	s := strings.TrimSpace(*value)

	for _, layout := range intentTimeLayouts {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return &t, nil
		}
	}
	return nil, fmt.Errorf("неверный формат времени: %s", s)
}

func firstRaw(values ...json.RawMessage) json.RawMessage {
	for _, v := range values {
		if len(v) > 0 && string(v) != "null" {
			return v
		}
	}
	return nil
}

// parseInterval accepts 2, 2.0 and "2". Anything else, including 1.5, is 1.
func parseInterval(raw json.RawMessage) int {
	n := parseOptionalInt(raw)
	if n == nil || *n < 1 {
		return 1
	}
	return *n
}

func parseOptionalInt(raw json.RawMessage) *int {
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}

	var f float64
	if err := json.Unmarshal(raw, &f); err != nil {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return nil
		}
		if f, err = strconv.ParseFloat(strings.TrimSpace(s), 64); err != nil {
			return nil
		}
	}

	if f != math.Trunc(f) || math.IsInf(f, 0) || math.IsNaN(f) {
		return nil
	}
	n := int(f)
	return &n
}

func parseInt64(raw json.RawMessage) int64 {
	n := parseOptionalInt(raw)
	if n == nil {
		return 0
	}
	return int64(*n)
}
