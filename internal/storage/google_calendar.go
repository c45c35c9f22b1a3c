package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/calendar/v3"
	"google.golang.org/api/option"

	"smart_agenda/internal/models"
	"smart_agenda/internal/recurrence"
	"smart_agenda/internal/usecases"
)

const googleCalendarID = "primary"

// ErrCalendarNotAuthorized is returned when the Google token is missing.
var ErrCalendarNotAuthorized = errors.New("Календарь не подключен. Перейдите по /auth/google для авторизации.")

// GoogleCalendarStorage mirrors created events into a Google calendar.
// One Google event is inserted per recurring series, carrying an RRULE.
type GoogleCalendarStorage struct {
	mu        sync.RWMutex
	service   *calendar.Service
	config    *oauth2.Config
	tokenFile string
	loc       *time.Location
	logger    *zap.Logger
	now       func() time.Time
}

// NewGoogleCalendarStorage инициализирует клиент.
// Если token.json есть - использует его.
// Если нет - сервис остаётся пустым до Auth Flow.
func NewGoogleCalendarStorage(ctx context.Context, credentialsFile, tokenFile string, loc *time.Location, logger *zap.Logger) (*GoogleCalendarStorage, error) {
	data, err := os.ReadFile(credentialsFile)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", credentialsFile, err)
	}

	config, err := google.ConfigFromJSON(data, calendar.CalendarScope)
	if err != nil {
		return nil, fmt.Errorf("failed to create config: %w", err)
	}

	gcs := newGoogleCalendarStorage(nil, loc, logger)
	gcs.config = config
	gcs.tokenFile = tokenFile

	// Пытаемся загрузить сохраненный токен
	tok, err := tokenFromFile(tokenFile)
	if err != nil {
		gcs.logger.Info("google calendar token not found, waiting for auth flow", zap.String("file", tokenFile))
		return gcs, nil
	}

	service, err := calendar.NewService(ctx, option.WithHTTPClient(config.Client(ctx, tok)))
	if err != nil {
		return nil, fmt.Errorf("failed to create Calendar service: %w", err)
	}
	gcs.service = service

	return gcs, nil
}

// NewGoogleCalendarStorageWithService wraps an already authorized service.
func NewGoogleCalendarStorageWithService(service *calendar.Service, loc *time.Location, logger *zap.Logger) *GoogleCalendarStorage {
	return newGoogleCalendarStorage(service, loc, logger)
}

func newGoogleCalendarStorage(service *calendar.Service, loc *time.Location, logger *zap.Logger) *GoogleCalendarStorage {
	if loc == nil {
		loc = time.Local
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &GoogleCalendarStorage{
		service: service,
		loc:     loc,
		logger:  logger,
		now:     time.Now,
	}
}

// IsAuthorized проверяет, есть ли валидный сервис
func (gcs *GoogleCalendarStorage) IsAuthorized() bool {
	gcs.mu.RLock()
	defer gcs.mu.RUnlock()
	return gcs.service != nil
}

// GetAuthURL возвращает ссылку для логина
func (gcs *GoogleCalendarStorage) GetAuthURL(state string) string {
	if gcs.config == nil {
		return ""
	}
	return gcs.config.AuthCodeURL(state, oauth2.AccessTypeOffline)
}

// ExchangeCode меняет код от Google на токен и сохраняет его
func (gcs *GoogleCalendarStorage) ExchangeCode(ctx context.Context, code string) error {
	if gcs.config == nil {
		return errors.New("google oauth is not configured")
	}

	tok, err := gcs.config.Exchange(ctx, code)
	if err != nil {
		return fmt.Errorf("unable to retrieve token from web: %w", err)
	}
	if err := saveToken(gcs.tokenFile, tok); err != nil {
		gcs.logger.Warn("unable to cache oauth token", zap.String("file", gcs.tokenFile), zap.Error(err))
	}

	service, err := calendar.NewService(ctx, option.WithHTTPClient(gcs.config.Client(context.Background(), tok)))
	if err != nil {
		return fmt.Errorf("failed to create service: %w", err)
	}

	gcs.mu.Lock()
	gcs.service = service
	gcs.mu.Unlock()
	return nil
}

func (gcs *GoogleCalendarStorage) calendarService() *calendar.Service {
	gcs.mu.RLock()
	defer gcs.mu.RUnlock()
	return gcs.service
}

// Notify mirrors created events. Other change kinds stay local.
// Without a token the mirror is silently skipped.
func (gcs *GoogleCalendarStorage) Notify(ctx context.Context, change usecases.Change) error {
	if change.Kind != usecases.ChangeCreated && change.Kind != usecases.ChangeBatchCreated {
		return nil
	}
	if !gcs.IsAuthorized() {
		return nil
	}

	seen := make(map[string]bool)
	for _, e := range change.Events {
		if e.SeriesID != "" {
			if seen[e.SeriesID] {
				continue
			}
			seen[e.SeriesID] = true
		}
		if _, err := gcs.CreateEvent(ctx, e); err != nil {
			return err
		}
	}
	return nil
}

func (gcs *GoogleCalendarStorage) CreateEvent(ctx context.Context, event models.Event) (*calendar.Event, error) {
	op := "internal/storage/google_calendar.go CreateEvent"

	service := gcs.calendarService()
	if service == nil {
		return nil, fmt.Errorf("%s: %w", op, ErrCalendarNotAuthorized)
	}

	created, err := service.Events.Insert(googleCalendarID, gcs.toGoogleEvent(event)).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("%s: insert %q: %w", op, event.Title, err)
	}

	gcs.logger.Info("event mirrored to google calendar",
		zap.Int64("id", event.ID),
		zap.String("google_id", created.Id),
	)
	return created, nil
}

func (gcs *GoogleCalendarStorage) toGoogleEvent(event models.Event) *calendar.Event {
	googleEvent := &calendar.Event{
		Summary:     event.Title,
		Description: event.Description,
	}

	start := event.StartTime.In(gcs.loc)
	if event.IsAllDay {
		googleEvent.Start = &calendar.EventDateTime{Date: start.Format(time.DateOnly)}
		googleEvent.End = &calendar.EventDateTime{Date: start.AddDate(0, 0, 1).Format(time.DateOnly)}
	} else {
		end := event.EffectiveEnd().In(gcs.loc)
		googleEvent.Start = &calendar.EventDateTime{
			DateTime: start.Format(time.RFC3339),
			TimeZone: gcs.loc.String(),
		}
		googleEvent.End = &calendar.EventDateTime{
			DateTime: end.Format(time.RFC3339),
			TimeZone: gcs.loc.String(),
		}
	}

	if rule, ok := recurrence.RRule(event.Recurrence, event.RecurrenceInterval, 0); ok {
		googleEvent.Recurrence = []string{"RRULE:" + rule}
	}

	if event.ReminderMinutes != nil {
		googleEvent.Reminders = &calendar.EventReminders{
			Overrides: []*calendar.EventReminder{
				{Method: "popup", Minutes: int64(*event.ReminderMinutes)},
			},
			ForceSendFields: []string{"UseDefault"},
		}
	}

	return googleEvent
}

func (gcs *GoogleCalendarStorage) ListEvents(ctx context.Context, days int) ([]*calendar.Event, error) {
	service := gcs.calendarService()
	if service == nil {
		return nil, ErrCalendarNotAuthorized
	}

	now := gcs.now()
	events, err := service.Events.List(googleCalendarID).
		TimeMin(now.Format(time.RFC3339)).
		TimeMax(now.AddDate(0, 0, days).Format(time.RFC3339)).
		SingleEvents(true).
		OrderBy("startTime").
		Context(ctx).
		Do()
	if err != nil {
		return nil, fmt.Errorf("failed to list events: %w", err)
	}

	return events.Items, nil
}

// GetCalendarPreview renders upcoming Google events for the assistant prompt.
func (gcs *GoogleCalendarStorage) GetCalendarPreview(ctx context.Context, days int) string {
	events, err := gcs.ListEvents(ctx, days)
	if err != nil {
		return fmt.Sprintf("Ошибка загрузки календаря: %v", err)
	}

	if len(events) == 0 {
		return "Нет запланированных событий"
	}

	var preview strings.Builder
	preview.WriteString("Ближайшие события:\n")

	for _, event := range events {
		if event.Start == nil {
			continue
		}
		start := event.Start.DateTime
		if start == "" {
			start = event.Start.Date
		}
		fmt.Fprintf(&preview, "- %s: %s\n", start, event.Summary)
	}

	return preview.String()
}

// Внутренние утилиты ==========================================

func tokenFromFile(file string) (*oauth2.Token, error) {
	f, err := os.Open(file)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	tok := &oauth2.Token{}
	err = json.NewDecoder(f).Decode(tok)
	return tok, err
}

func saveToken(path string, token *oauth2.Token) error {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return err
	}
	defer f.Close()
	return json.NewEncoder(f).Encode(token)
}
