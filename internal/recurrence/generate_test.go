package recurrence

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"smart_agenda/internal/models"
)

// sequentialSeries returns series-1, series-2, ...
func sequentialSeries() SeriesAllocator {
	n := 0
	return SeriesAllocatorFunc(func() string {
		n++
		return fmt.Sprintf("series-%d", n)
	})
}

func at(s string) time.Time {
	t, err := time.Parse("2006-01-02T15:04", s)
	if err != nil {
		panic(err)
	}
	return t
}

func ptr[T any](v T) *T {
	return &v
}

func TestGenerate_NonRecurringReturnsInputUnmodified(t *testing.T) {
	g := NewGenerator(sequentialSeries())

	for _, kind := range []models.RecurrenceKind{"", models.RecurrenceNone} {
		def := models.EventDefinition{Title: "Врач", StartTime: at("2024-03-01T09:00"), Recurrence: kind}

		got := g.Generate(def, Options{Count: 10})

		require.Len(t, got, 1)
		assert.Equal(t, def, got[0])
		assert.Empty(t, got[0].SeriesID)
	}
}

func TestGenerate_CountProducesSharedSeriesAndIncreasingStarts(t *testing.T) {
	g := NewGenerator(sequentialSeries())
	kinds := []models.RecurrenceKind{
		models.RecurrenceDaily, models.RecurrenceWeekly, models.RecurrenceMonthly, models.RecurrenceYearly,
	}

	for _, kind := range kinds {
		t.Run(string(kind), func(t *testing.T) {
			def := models.EventDefinition{Title: "x", StartTime: at("2024-03-01T09:00"), Recurrence: kind, RecurrenceInterval: 1}

			got := g.Generate(def, Options{Count: 5})

			require.Len(t, got, 5)
			for i, inst := range got {
				assert.Equal(t, got[0].SeriesID, inst.SeriesID)
				assert.Equal(t, kind, inst.Recurrence)
				if i > 0 {
					assert.True(t, inst.StartTime.After(got[i-1].StartTime))
				}
			}
		})
	}
}

func TestGenerate_DurationInvariant(t *testing.T) {
	g := NewGenerator(sequentialSeries())
	start := at("2024-01-31T22:30")

	tests := []struct {
		name string
		end  *time.Time
		want time.Duration
	}{
		{"explicit end", ptr(start.Add(150 * time.Minute)), 150 * time.Minute},
		{"missing end defaults to one hour", nil, time.Hour},
	}

	for _, tt := range tests {
		for _, kind := range []models.RecurrenceKind{models.RecurrenceDaily, models.RecurrenceWeekly, models.RecurrenceMonthly, models.RecurrenceYearly} {
			t.Run(tt.name+"/"+string(kind), func(t *testing.T) {
				def := models.EventDefinition{Title: "x", StartTime: start, EndTime: tt.end, Recurrence: kind}
				for _, inst := range g.Generate(def, Options{Count: 6}) {
					require.NotNil(t, inst.EndTime)
					assert.Equal(t, tt.want, inst.EndTime.Sub(inst.StartTime))
				}
			})
		}
	}
}

func TestGenerate_OvernightSpanCrossesMidnight(t *testing.T) {
	g := NewGenerator(sequentialSeries())
	def := models.EventDefinition{
		Title: "Ночная смена", StartTime: at("2024-03-01T22:00"), EndTime: ptr(at("2024-03-02T06:00")),
		Recurrence: models.RecurrenceDaily,
	}

	got := g.Generate(def, Options{Count: 2})

	require.Len(t, got, 2)
	assert.Equal(t, at("2024-03-03T06:00"), *got[1].EndTime)
}

func TestGenerate_MonthlyRollover(t *testing.T) {
	g := NewGenerator(sequentialSeries())

	tests := []struct {
		name  string
		start string
		want  []string
	}{
		{"non-leap year", "2023-01-31T10:00", []string{"2023-01-31T10:00", "2023-03-03T10:00", "2023-03-31T10:00"}},
		{"leap year", "2024-01-31T10:00", []string{"2024-01-31T10:00", "2024-03-02T10:00", "2024-03-31T10:00"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			def := models.EventDefinition{Title: "Аренда", StartTime: at(tt.start), Recurrence: models.RecurrenceMonthly}
			got := g.Generate(def, Options{Count: 3})

			require.Len(t, got, 3)
			for i, want := range tt.want {
				assert.Equal(t, at(want), got[i].StartTime)
			}
		})
	}
}

func TestGenerate_YearlyFromLeapDay(t *testing.T) {
	g := NewGenerator(sequentialSeries())
	def := models.EventDefinition{Title: "День рождения", StartTime: at("2024-02-29T00:00"), Recurrence: models.RecurrenceYearly}

	got := g.Generate(def, Options{Count: 5})

	require.Len(t, got, 5)
	assert.Equal(t, at("2025-03-01T00:00"), got[1].StartTime)
	assert.Equal(t, at("2028-02-29T00:00"), got[4].StartTime)
}

func TestGenerate_WeeklyIntervalTwo(t *testing.T) {
	g := NewGenerator(sequentialSeries())
	def := models.EventDefinition{Title: "Бассейн", StartTime: at("2024-03-02T10:00"), Recurrence: models.RecurrenceWeekly, RecurrenceInterval: 2}

	got := g.Generate(def, Options{Count: 3})

	require.Len(t, got, 3)
	assert.Equal(t, 14*24*time.Hour, got[1].StartTime.Sub(got[0].StartTime))
	assert.Equal(t, 14*24*time.Hour, got[2].StartTime.Sub(got[1].StartTime))
	assert.Equal(t, 2, got[2].RecurrenceInterval)
}

func TestGenerate_NonPositiveIntervalIsOne(t *testing.T) {
	g := NewGenerator(sequentialSeries())

	for _, interval := range []int{0, -3} {
		def := models.EventDefinition{Title: "x", StartTime: at("2024-03-01T09:00"), Recurrence: models.RecurrenceDaily, RecurrenceInterval: interval}
		got := g.Generate(def, Options{Count: 3})

		require.Len(t, got, 3)
		assert.Equal(t, at("2024-03-03T09:00"), got[2].StartTime)
		assert.Equal(t, 1, got[2].RecurrenceInterval)
	}
}

func TestGenerate_SafetyCeiling(t *testing.T) {
	g := NewGenerator(sequentialSeries())
	def := models.EventDefinition{Title: "x", StartTime: at("2024-03-01T09:00"), Recurrence: models.RecurrenceDaily, RecurrenceInterval: 1}

	assert.Len(t, g.Generate(def, Options{}), MaxInstances)
	assert.Len(t, g.Generate(def, Options{Count: 1000}), MaxInstances)
}

func TestGenerate_UntilCutsCountShort(t *testing.T) {
	g := NewGenerator(sequentialSeries())
	def := models.EventDefinition{Title: "x", StartTime: at("2024-03-01T09:00"), Recurrence: models.RecurrenceDaily}

	got := g.Generate(def, Options{Count: 10, Until: ptr(at("2024-03-04T09:00"))})

	require.Len(t, got, 4)
	assert.Equal(t, at("2024-03-04T09:00"), got[3].StartTime)
}

func TestGenerate_UntilBeforeStartYieldsNothing(t *testing.T) {
	g := NewGenerator(sequentialSeries())
	def := models.EventDefinition{Title: "x", StartTime: at("2024-03-01T09:00"), Recurrence: models.RecurrenceDaily}

	assert.Empty(t, g.Generate(def, Options{Until: ptr(at("2024-02-01T09:00"))}))
}

func TestGenerate_SeriesID(t *testing.T) {
	g := NewGenerator(sequentialSeries())
	def := models.EventDefinition{Title: "x", StartTime: at("2024-03-01T09:00"), Recurrence: models.RecurrenceWeekly}

	first := g.Generate(def, Options{Count: 2})
	second := g.Generate(def, Options{Count: 2})
	assert.Equal(t, "series-1", first[0].SeriesID)
	assert.Equal(t, "series-2", second[0].SeriesID)

	def.SeriesID = "existing"
	continued := g.Generate(def, Options{Count: 2})
	assert.Equal(t, "existing", continued[1].SeriesID)
}

func TestGenerate_UUIDAllocatorDoesNotCollide(t *testing.T) {
	g := NewGenerator(nil)
	def := models.EventDefinition{Title: "x", StartTime: at("2024-03-01T09:00"), Recurrence: models.RecurrenceDaily}

	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		id := g.Generate(def, Options{Count: 1})[0].SeriesID
		require.NotEmpty(t, id)
		require.False(t, seen[id])
		seen[id] = true
	}
}

func TestGenerate_CopiesDefinitionFields(t *testing.T) {
	g := NewGenerator(sequentialSeries())
	def := models.EventDefinition{
		Title: "Йога", StartTime: at("2024-03-01T07:00"), Description: "коврик",
		ReminderMinutes: ptr(15), Recurrence: models.RecurrenceDaily, IsAllDay: false,
		Category: "health", Color: "#22c55e",
	}

	got := g.Generate(def, Options{Count: 2})

	for _, inst := range got {
		assert.Equal(t, "Йога", inst.Title)
		assert.Equal(t, "коврик", inst.Description)
		assert.Equal(t, 15, *inst.ReminderMinutes)
		assert.Equal(t, "health", inst.Category)
		assert.Equal(t, "#22c55e", inst.Color)
	}
	assert.NotSame(t, got[0].ReminderMinutes, got[1].ReminderMinutes)
}

func TestGenerate_WeeklyStandupScenario(t *testing.T) {
	g := NewGenerator(sequentialSeries())
	def := models.EventDefinition{
		Title: "Стоя", StartTime: at("2024-03-01T09:00"), EndTime: ptr(at("2024-03-01T10:00")),
		Recurrence: models.RecurrenceWeekly, RecurrenceInterval: 1,
	}

	got := g.Generate(def, Options{Count: 3})

	require.Len(t, got, 3)
	for i, want := range []string{"2024-03-01T09:00", "2024-03-08T09:00", "2024-03-15T09:00"} {
		assert.Equal(t, at(want), got[i].StartTime)
		assert.Equal(t, time.Hour, got[i].EndTime.Sub(got[i].StartTime))
		assert.Equal(t, got[0].SeriesID, got[i].SeriesID)
	}
}

func TestInstanceCount(t *testing.T) {
	assert.Equal(t, 1, InstanceCount(models.RecurrenceNone))
	assert.Equal(t, 1, InstanceCount(""))
	assert.Equal(t, 90, InstanceCount(models.RecurrenceDaily))
	assert.Equal(t, 24, InstanceCount(models.RecurrenceWeekly))
	assert.Equal(t, 12, InstanceCount(models.RecurrenceMonthly))
	assert.Equal(t, 12, InstanceCount(models.RecurrenceYearly))
}

func TestGenerate_SubtasksCopiedPerInstance(t *testing.T) {
	g := NewGenerator(sequentialSeries())
	def := models.EventDefinition{
		Title: "Уборка", StartTime: at("2024-03-01T09:00"), Recurrence: models.RecurrenceWeekly,
		Subtasks: []models.Subtask{{ID: "a", Text: "пылесос"}, {ID: "b", Text: "окна"}},
	}

	got := g.Generate(def, Options{Count: 2})

	require.Len(t, got, 2)
	assert.Equal(t, def.Subtasks, got[0].Subtasks)
	assert.Equal(t, def.Subtasks, got[1].Subtasks)

	got[0].Subtasks[0].Completed = true
	assert.False(t, got[1].Subtasks[0].Completed)
	assert.False(t, def.Subtasks[0].Completed)
}
