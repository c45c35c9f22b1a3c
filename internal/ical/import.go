package ical

import (
	"fmt"
	"io"
	"strings"
	"time"

	ics "github.com/arran4/golang-ical"

	"smart_agenda/internal/models"
	"smart_agenda/internal/recurrence"
)

const localLayout = "20060102T150405"

// Import reads VEVENTs into definitions. Floating times and dates are read in
// loc. Events without a summary or a start are skipped. An unsupported RRULE
// leaves the definition non-recurring.
func Import(r io.Reader, loc *time.Location) ([]models.EventDefinition, error) {
	if loc == nil {
		loc = time.Local
	}

	cal, err := ics.ParseCalendar(r)
	if err != nil {
		return nil, fmt.Errorf("ical.Import: parse: %w", err)
	}

	defs := make([]models.EventDefinition, 0, len(cal.Events()))
	for _, vevent := range cal.Events() {
		def, ok := definitionFrom(vevent, loc)
		if ok {
			defs = append(defs, def)
		}
	}
	return defs, nil
}

func definitionFrom(vevent *ics.VEvent, loc *time.Location) (models.EventDefinition, bool) {
	var def models.EventDefinition

	def.Title = strings.TrimSpace(propertyValue(vevent, ics.ComponentPropertySummary))
	if def.Title == "" {
		return def, false
	}

	startProp := vevent.GetProperty(ics.ComponentPropertyDtStart)
	if startProp == nil {
		return def, false
	}
	start, allDay, err := parseTime(startProp, loc)
	if err != nil {
		return def, false
	}
	def.StartTime = start
	def.IsAllDay = allDay

	if endProp := vevent.GetProperty(ics.ComponentPropertyDtEnd); endProp != nil && !allDay {
		if end, _, err := parseTime(endProp, loc); err == nil && end.After(start) {
			def.EndTime = &end
		}
	}

	def.Description = propertyValue(vevent, ics.ComponentPropertyDescription)
	def.Category = propertyValue(vevent, ics.ComponentPropertyCategories)
	def.Color = propertyValue(vevent, ics.ComponentPropertyColor)

	def.Recurrence = models.RecurrenceNone
	if rule := propertyValue(vevent, ics.ComponentPropertyRrule); rule != "" {
		if kind, interval, err := recurrence.ParseRRule(rule); err == nil {
			def.Recurrence = kind
			def.RecurrenceInterval = interval
		}
	}

	for _, alarm := range vevent.Alarms() {
		if m, ok := parseTrigger(propertyValue(&alarm.ComponentBase, ics.ComponentPropertyTrigger)); ok {
			def.ReminderMinutes = &m
			break
		}
	}

	return def, true
}

type propertyGetter interface {
	GetProperty(ics.ComponentProperty) *ics.IANAProperty
}

func propertyValue(c propertyGetter, p ics.ComponentProperty) string {
	prop := c.GetProperty(p)
	if prop == nil {
		return ""
	}
	return prop.Value
}

// parseTime handles DATE values, UTC stamps, TZID stamps and floating stamps.
func parseTime(prop *ics.IANAProperty, loc *time.Location) (time.Time, bool, error) {
	value := strings.TrimSpace(prop.Value)

	if isDateValue(prop) {
		t, err := time.ParseInLocation(dateLayout, value[:min(len(value), len(dateLayout))], loc)
		return t, true, err
	}

	if strings.HasSuffix(value, "Z") {
		t, err := time.Parse(utcLayout, value)
		return t, false, err
	}

	propLoc := loc
	if tzid, ok := prop.ICalParameters[string(ics.ParameterTzid)]; ok && len(tzid) == 1 {
		if l, err := time.LoadLocation(tzid[0]); err == nil {
			propLoc = l
		}
	}
	t, err := time.ParseInLocation(localLayout, value, propLoc)
	return t, false, err
}

func isDateValue(prop *ics.IANAProperty) bool {
	if v, ok := prop.ICalParameters[string(ics.ParameterValue)]; ok && len(v) == 1 {
		return v[0] == string(ics.ValueDataTypeDate)
	}
	return len(strings.TrimSpace(prop.Value)) == len(dateLayout)
}

// parseTrigger understands the "-PT15M" / "-PT1H" / "-P1D" forms only.
func parseTrigger(value string) (int, bool) {
	value = strings.TrimSpace(value)
	if !strings.HasPrefix(value, "-P") {
		return 0, false
	}

	var n int
	switch {
	case strings.HasPrefix(value, "-PT") && strings.HasSuffix(value, "M"):
		if _, err := fmt.Sscanf(value, "-PT%dM", &n); err != nil {
			return 0, false
		}
	case strings.HasPrefix(value, "-PT") && strings.HasSuffix(value, "H"):
		if _, err := fmt.Sscanf(value, "-PT%dH", &n); err != nil {
			return 0, false
		}
		n *= 60
	case strings.HasSuffix(value, "D"):
		if _, err := fmt.Sscanf(value, "-P%dD", &n); err != nil {
			return 0, false
		}
		n *= 24 * 60
	default:
		return 0, false
	}
	return n, n >= 0
}
