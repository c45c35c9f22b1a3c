package ical

import (
	"fmt"
	"io"
	"sort"
	"time"

	ics "github.com/arran4/golang-ical"

	"smart_agenda/internal/models"
	"smart_agenda/internal/recurrence"
)

const (
	productID  = "smart-agenda"
	uidDomain  = "smart-agenda"
	utcLayout  = "20060102T150405Z"
	dateLayout = "20060102"
)

type ExportOptions struct {
	// CollapseSeries writes one VEVENT with an RRULE per recurring series
	// instead of one VEVENT per stored instance. The result is an
	// approximation, see addSeries; leave it off when the importer must see
	// exactly the stored dates.
	CollapseSeries bool
	// Location decides the calendar day of all-day events.
	Location *time.Location
	// Now is used for DTSTAMP.
	Now time.Time
}

// Export builds a calendar from the active events. Trash is never exported.
func Export(events []models.Event, opts ExportOptions) *ics.Calendar {
	if opts.Location == nil {
		opts.Location = time.Local
	}
	if opts.Now.IsZero() {
		opts.Now = time.Now()
	}

	cal := ics.NewCalendarFor(productID)
	cal.SetMethod(ics.MethodPublish)
	cal.SetXWRCalName("Smart Agenda")
	cal.SetXWRTimezone(opts.Location.String())

	if !opts.CollapseSeries {
		for _, e := range events {
			if e.IsDeleted() {
				continue
			}
			addEvent(cal, fmt.Sprintf("%d@%s", e.ID, uidDomain), e, opts)
		}
		return cal
	}

	series := make(map[string][]models.Event)
	for _, e := range events {
		if e.SeriesID == "" || !e.Recurrence.IsRecurring() {
			if !e.IsDeleted() {
				addEvent(cal, fmt.Sprintf("%d@%s", e.ID, uidDomain), e, opts)
			}
			continue
		}
		series[e.SeriesID] = append(series[e.SeriesID], e)
	}

	ids := make([]string, 0, len(series))
	for id := range series {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	for _, id := range ids {
		addSeries(cal, id, series[id], opts)
	}
	return cal
}

// WriteTo serializes the export into w.
func WriteTo(w io.Writer, events []models.Event, opts ExportOptions) error {
	return Export(events, opts).SerializeTo(w)
}

// addSeries writes the first active instance with an RRULE whose COUNT spans
// up to the last active one; trashed instances inside that span become EXDATEs.
//
// The rule is expanded by the reader with RFC 5545 semantics, which can differ
// from the stored instances:
//   - monthly and yearly series started on a day missing in some month
//     (31st, Feb 29) are stored rolled over into the next month, while RFC 5545
//     skips those months;
//   - an instance moved or edited on its own is exported at the rule's date
//     with the head's title and duration.
//
// Per-instance export has neither problem.
func addSeries(cal *ics.Calendar, seriesID string, instances []models.Event, opts ExportOptions) {
	models.SortByStart(instances)

	first, last := -1, -1
	for i, e := range instances {
		if e.IsDeleted() {
			continue
		}
		if first < 0 {
			first = i
		}
		last = i
	}
	if first < 0 {
		return
	}

	head := instances[first]
	vevent := addEvent(cal, fmt.Sprintf("%s@%s", seriesID, uidDomain), head, opts)

	if rule, ok := recurrence.RRule(head.Recurrence, head.RecurrenceInterval, last-first+1); ok {
		vevent.AddRrule(rule)
	}
	for _, e := range instances[first : last+1] {
		if !e.IsDeleted() {
			continue
		}
		if e.IsAllDay {
			vevent.AddExdate(e.StartTime.In(opts.Location).Format(dateLayout), ics.WithValue(string(ics.ValueDataTypeDate)))
		} else {
			vevent.AddExdate(e.StartTime.UTC().Format(utcLayout))
		}
	}
}

func addEvent(cal *ics.Calendar, uid string, e models.Event, opts ExportOptions) *ics.VEvent {
	vevent := cal.AddEvent(uid)
	vevent.SetDtStampTime(opts.Now)
	vevent.SetSummary(e.Title)

	if e.IsAllDay {
		day := e.StartTime.In(opts.Location)
		vevent.SetAllDayStartAt(day)
		vevent.SetAllDayEndAt(day.AddDate(0, 0, 1))
	} else {
		vevent.SetStartAt(e.StartTime)
		vevent.SetEndAt(e.EffectiveEnd())
	}

	if e.Description != "" {
		vevent.SetDescription(e.Description)
	}
	if e.Category != "" {
		vevent.AddCategory(e.Category)
	}
	if e.Color != "" {
		vevent.SetColor(e.Color)
	}
	if e.ReminderMinutes != nil && *e.ReminderMinutes > 0 {
		alarm := vevent.AddAlarm()
		alarm.SetAction(ics.ActionDisplay)
		alarm.SetTrigger(fmt.Sprintf("-PT%dM", *e.ReminderMinutes))
		alarm.SetProperty(ics.ComponentPropertyDescription, e.Title)
	}

	return vevent
}
