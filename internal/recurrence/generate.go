package recurrence

import (
	"time"

	"smart_agenda/internal/models"
)

// MaxInstances bounds a single Generate call.
const MaxInstances = 365

// Options bound a Generate call. Count <= 0 means no count limit and a nil
// Until means no date ceiling; MaxInstances applies either way.
type Options struct {
	Count int
	Until *time.Time
}

type Generator struct {
	series SeriesAllocator
}

func NewGenerator(series SeriesAllocator) *Generator {
	if series == nil {
		series = UUIDAllocator{}
	}
	return &Generator{series: series}
}

// Generate expands def into concrete dated instances.
//
// A non-recurring definition comes back as a single unmodified element.
// Recurring definitions keep their series id when they already have one,
// which is how an existing series gets continued.
// The caller must validate def first.
func (g *Generator) Generate(def models.EventDefinition, opts Options) []models.EventDefinition {
	if !def.Recurrence.IsRecurring() {
		return []models.EventDefinition{def}
	}

	seriesID := def.SeriesID
	if seriesID == "" {
		seriesID = g.series.NewSeriesID()
	}

	interval := NormalizeInterval(def.RecurrenceInterval)
	duration := def.Duration()

	limit := MaxInstances
	if opts.Count > 0 && opts.Count < limit {
		limit = opts.Count
	}

	instances := make([]models.EventDefinition, 0, limit)
	for i := 0; i < limit; i++ {
		start := Advance(def.StartTime, def.Recurrence, i*interval)
		if opts.Until != nil && start.After(*opts.Until) {
			break
		}
		end := start.Add(duration)

		instance := def
		instance.SeriesID = seriesID
		instance.RecurrenceInterval = interval
		instance.StartTime = start
		instance.EndTime = &end
		if def.ReminderMinutes != nil {
			minutes := *def.ReminderMinutes
			instance.ReminderMinutes = &minutes
		}
		instance.Subtasks = models.CloneSubtasks(def.Subtasks)
		instances = append(instances, instance)
	}

	return instances
}
