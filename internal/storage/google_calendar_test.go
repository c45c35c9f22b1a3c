package storage

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/calendar/v3"
	"google.golang.org/api/option"

	"smart_agenda/internal/models"
	"smart_agenda/internal/usecases"
)

type fakeGoogle struct {
	mu       sync.Mutex
	inserted []calendar.Event
}

func (f *fakeGoogle) handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodPost && r.URL.Path == "/calendars/primary/events":
			var ev calendar.Event
			if err := json.NewDecoder(r.Body).Decode(&ev); err != nil {
				w.WriteHeader(http.StatusBadRequest)
				return
			}
			f.mu.Lock()
			f.inserted = append(f.inserted, ev)
			f.mu.Unlock()
			ev.Id = "g1"
			w.Header().Set("Content-Type", "application/json")
			_ = json.NewEncoder(w).Encode(ev)
		case r.Method == http.MethodGet && r.URL.Path == "/calendars/primary/events":
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"items":[{"summary":"Стоматолог","start":{"dateTime":"2024-03-02T10:00:00+03:00"}},{"summary":"Отпуск","start":{"date":"2024-03-05"}}]}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	})
}

func newTestGoogleStorage(t *testing.T, fake *fakeGoogle, loc *time.Location) *GoogleCalendarStorage {
	srv := httptest.NewServer(fake.handler())
	t.Cleanup(srv.Close)

	svc, err := calendar.NewService(context.Background(),
		option.WithEndpoint(srv.URL+"/"),
		option.WithHTTPClient(srv.Client()),
		option.WithoutAuthentication(),
	)
	require.NoError(t, err)
	return NewGoogleCalendarStorageWithService(svc, loc, nil)
}

// --- Тесты GoogleCalendarStorage ---

func TestGoogleCalendarStorage_NotifyMirrorsSeriesOnce(t *testing.T) {
	moscow := time.FixedZone("MSK", 3*60*60)
	fake := &fakeGoogle{}
	gcs := newTestGoogleStorage(t, fake, moscow)

	start := time.Date(2024, 3, 1, 6, 0, 0, 0, time.UTC)
	events := []models.Event{
		{ID: 1, EventDefinition: models.EventDefinition{Title: "Бег", StartTime: start, Recurrence: models.RecurrenceWeekly, RecurrenceInterval: 2, SeriesID: "s1"}},
		{ID: 2, EventDefinition: models.EventDefinition{Title: "Бег", StartTime: start.AddDate(0, 0, 14), Recurrence: models.RecurrenceWeekly, RecurrenceInterval: 2, SeriesID: "s1"}},
	}

	err := gcs.Notify(context.Background(), usecases.Change{Kind: usecases.ChangeBatchCreated, Events: events})
	require.NoError(t, err)

	require.Len(t, fake.inserted, 1)
	got := fake.inserted[0]
	assert.Equal(t, "Бег", got.Summary)
	assert.Equal(t, "2024-03-01T09:00:00+03:00", got.Start.DateTime)
	assert.Equal(t, "2024-03-01T10:00:00+03:00", got.End.DateTime)
	assert.Equal(t, []string{"RRULE:FREQ=WEEKLY;INTERVAL=2"}, got.Recurrence)
}

func TestGoogleCalendarStorage_AllDayUsesDates(t *testing.T) {
	fake := &fakeGoogle{}
	gcs := newTestGoogleStorage(t, fake, time.UTC)

	event := models.Event{ID: 3, EventDefinition: models.EventDefinition{
		Title:     "Отпуск",
		StartTime: time.Date(2024, 3, 5, 0, 0, 0, 0, time.UTC),
		IsAllDay:  true,
	}}

	_, err := gcs.CreateEvent(context.Background(), event)
	require.NoError(t, err)

	require.Len(t, fake.inserted, 1)
	assert.Equal(t, "2024-03-05", fake.inserted[0].Start.Date)
	assert.Equal(t, "2024-03-06", fake.inserted[0].End.Date)
	assert.Empty(t, fake.inserted[0].Recurrence)
}

func TestGoogleCalendarStorage_IgnoresOtherChanges(t *testing.T) {
	fake := &fakeGoogle{}
	gcs := newTestGoogleStorage(t, fake, time.UTC)

	err := gcs.Notify(context.Background(), usecases.Change{
		Kind:   usecases.ChangeDeleted,
		Events: []models.Event{{ID: 1, EventDefinition: models.EventDefinition{Title: "x", StartTime: time.Now()}}},
	})
	require.NoError(t, err)
	assert.Empty(t, fake.inserted)
}

func TestGoogleCalendarStorage_NotAuthorized(t *testing.T) {
	gcs := NewGoogleCalendarStorageWithService(nil, time.UTC, nil)

	assert.False(t, gcs.IsAuthorized())
	assert.NoError(t, gcs.Notify(context.Background(), usecases.Change{Kind: usecases.ChangeCreated}))

	_, err := gcs.ListEvents(context.Background(), 7)
	assert.ErrorIs(t, err, ErrCalendarNotAuthorized)
}

func TestGoogleCalendarStorage_GetCalendarPreview(t *testing.T) {
	gcs := newTestGoogleStorage(t, &fakeGoogle{}, time.UTC)

	preview := gcs.GetCalendarPreview(context.Background(), 7)
	assert.Equal(t, "Ближайшие события:\n- 2024-03-02T10:00:00+03:00: Стоматолог\n- 2024-03-05: Отпуск\n", preview)
}
