// Package analytics computes productivity statistics over events.
package analytics

import (
	"math"
	"sort"
	"time"

	"smart_agenda/internal/models"
)

const (
	// DefaultCategory collects events without a category.
	DefaultCategory = "other"
	defaultColor    = "#8B5CF6"
	activityDays    = 7
)

var categoryColors = map[string]string{
	"work":     "#4F46E5",
	"personal": "#10B981",
	"health":   "#EF4444",
	"edu":      "#F59E0B",
	"other":    "#8B5CF6",
}

var ruShortWeekdays = [...]string{"вс", "пн", "вт", "ср", "чт", "пт", "сб"}

type CategoryStats struct {
	Category string  `json:"category"`
	Count    int     `json:"count"`
	Hours    float64 `json:"hours"`
	Color    string  `json:"color"`
}

type DayActivity struct {
	Date      string `json:"date"`
	Day       string `json:"day"`
	Count     int    `json:"count"`
	Completed int    `json:"completed"`
	// Rate is the completion percentage of the day, 0 when the day is empty.
	Rate int `json:"rate"`
}

type Summary struct {
	Total          int             `json:"total"`
	Completed      int             `json:"completed"`
	CompletionRate int             `json:"completion_rate"`
	TotalHours     float64         `json:"total_hours"`
	Categories     []CategoryStats `json:"categories"`
	Week           []DayActivity   `json:"week"`
}

// Build summarizes events. now decides the week window and its location the
// calendar days.
func Build(events []models.Event, now time.Time) Summary {
	completed := countCompleted(events)

	hours := 0.0
	for _, e := range events {
		hours += explicitHours(e)
	}

	return Summary{
		Total:          len(events),
		Completed:      completed,
		CompletionRate: percent(completed, len(events)),
		TotalHours:     math.Round(hours*10) / 10,
		Categories:     CategoryDistribution(events),
		Week:           WeeklyActivity(events, now),
	}
}

// CategoryDistribution groups events by category, most frequent first.
// Only events with an explicit end contribute hours.
func CategoryDistribution(events []models.Event) []CategoryStats {
	byCategory := make(map[string]*CategoryStats)
	for _, e := range events {
		category := e.Category
		if category == "" {
			category = DefaultCategory
		}

		stats, ok := byCategory[category]
		if !ok {
			color, known := categoryColors[category]
			if !known {
				color = defaultColor
			}
			stats = &CategoryStats{Category: category, Color: color}
			byCategory[category] = stats
		}
		stats.Count++
		stats.Hours += explicitHours(e)
	}

	out := make([]CategoryStats, 0, len(byCategory))
	for _, stats := range byCategory {
		stats.Hours = math.Round(stats.Hours*10) / 10
		out = append(out, *stats)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Category < out[j].Category
	})
	return out
}

// WeeklyActivity covers the seven calendar days ending with now's day, oldest first.
func WeeklyActivity(events []models.Event, now time.Time) []DayActivity {
	loc := now.Location()
	y, m, d := now.Date()
	today := time.Date(y, m, d, 0, 0, 0, 0, loc)

	days := make([]DayActivity, 0, activityDays)
	for i := activityDays - 1; i >= 0; i-- {
		dayStart := today.AddDate(0, 0, -i)
		dayEnd := dayStart.AddDate(0, 0, 1)

		day := DayActivity{
			Date: dayStart.Format(time.DateOnly),
			Day:  ruShortWeekdays[dayStart.Weekday()],
		}
		for _, e := range events {
			start := e.StartTime.In(loc)
			if start.Before(dayStart) || !start.Before(dayEnd) {
				continue
			}
			day.Count++
			if e.Completed {
				day.Completed++
			}
		}
		day.Rate = percent(day.Completed, day.Count)
		days = append(days, day)
	}
	return days
}

// CompletionRate is the rounded share of completed events, in percent.
func CompletionRate(events []models.Event) int {
	return percent(countCompleted(events), len(events))
}

func countCompleted(events []models.Event) int {
	n := 0
	for _, e := range events {
		if e.Completed {
			n++
		}
	}
	return n
}

func explicitHours(e models.Event) float64 {
	if e.EndTime == nil {
		return 0
	}
	return e.EndTime.Sub(e.StartTime).Hours()
}

func percent(part, total int) int {
	if total == 0 {
		return 0
	}
	return int(math.Round(float64(part) * 100 / float64(total)))
}
