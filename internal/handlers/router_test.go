package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"smart_agenda/internal/analytics"
	"smart_agenda/internal/models"
	"smart_agenda/internal/notify"
	"smart_agenda/internal/storage"
	"smart_agenda/internal/usecases"
)

var moscow = time.FixedZone("MSK", 3*60*60)

func testNow() time.Time {
	return time.Date(2024, 3, 1, 9, 0, 0, 0, moscow)
}

// MockAgendaSender - мок AgendaSender для тестов
type MockAgendaSender struct {
	mock.Mock
}

func (m *MockAgendaSender) SendAgenda(ctx context.Context, events []models.Event) error {
	args := m.Called(ctx, events)
	return args.Error(0)
}

// MockOAuthFlow - мок OAuthFlow для тестов
type MockOAuthFlow struct {
	mock.Mock
}

func (m *MockOAuthFlow) GetAuthURL(state string) string {
	args := m.Called(state)
	return args.String(0)
}

func (m *MockOAuthFlow) ExchangeCode(ctx context.Context, code string) error {
	args := m.Called(ctx, code)
	return args.Error(0)
}

type stubParser struct {
	intent models.Intent
}

func (p stubParser) Parse(ctx context.Context, text, eventsContext string) (models.Intent, error) {
	return p.intent, nil
}

type testServer struct {
	router    *gin.Engine
	scheduler *usecases.Scheduler
	agenda    *MockAgendaSender
	oauth     *MockOAuthFlow
}

func newTestServer(t *testing.T) testServer {
	t.Helper()

	scheduler := usecases.NewScheduler(usecases.SchedulerDeps{
		Store:    storage.NewMemoryEventStorage(),
		Clock:    testNow,
		Location: moscow,
	})
	assistant := usecases.NewAssistant(scheduler, stubParser{intent: models.Intent{
		Action:              models.ActionUnknown,
		ConfirmationMessage: "Привет!",
	}}, storage.NewMemoryMessageStorage(), nil)

	ts := testServer{
		scheduler: scheduler,
		agenda:    &MockAgendaSender{},
		oauth:     &MockOAuthFlow{},
	}

	router, err := NewRouter(RouterDeps{
		Environment: "test",
		Scheduler:   scheduler,
		Assistant:   assistant,
		Agenda:      ts.agenda,
		OAuth:       ts.oauth,
		Location:    moscow,
		Clock:       testNow,
	})
	require.NoError(t, err)
	ts.router = router
	return ts
}

func (ts testServer) do(method, target, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	ts.router.ServeHTTP(rec, req)
	return rec
}

func (ts testServer) createEvent(t *testing.T, body string) []models.Event {
	t.Helper()

	rec := ts.do(http.MethodPost, "/api/events", body)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var res usecases.AddResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	return res.Events
}

const standupBody = `{"event":{"title":"Standup","start_time":"2024-03-01T10:00:00+03:00","is_all_day":false}}`

// --- Тесты NewRouter ---

func TestNewRouter_RequiresScheduler(t *testing.T) {
	_, err := NewRouter(RouterDeps{Environment: "test"})
	assert.Error(t, err)
}

func TestHealth(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(http.MethodGet, "/health", "")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestGinMode(t *testing.T) {
	assert.Equal(t, gin.DebugMode, ginMode("development"))
	assert.Equal(t, gin.TestMode, ginMode("test"))
	assert.Equal(t, gin.ReleaseMode, ginMode("production"))
}

// --- Тесты Events ---

func TestCreateEvent(t *testing.T) {
	ts := newTestServer(t)

	events := ts.createEvent(t, standupBody)

	require.Len(t, events, 1)
	assert.Equal(t, "Standup", events[0].Title)
	assert.NotZero(t, events[0].ID)
	assert.Len(t, ts.scheduler.Events(), 1)
}

func TestCreateEvent_WithInstances(t *testing.T) {
	ts := newTestServer(t)

	events := ts.createEvent(t, `{"event":{"title":"Gym","start_time":"2024-03-01T19:00:00+03:00","recurrence":"weekly"},"instances":3}`)

	require.Len(t, events, 3)
	assert.Equal(t, events[0].SeriesID, events[2].SeriesID)
	assert.Equal(t, time.Date(2024, 3, 15, 19, 0, 0, 0, moscow), events[2].StartTime.In(moscow))
}

func TestCreateEvent_ReportsConflict(t *testing.T) {
	ts := newTestServer(t)
	ts.createEvent(t, standupBody)

	rec := ts.do(http.MethodPost, "/api/events", `{"event":{"title":"Call","start_time":"2024-03-01T10:30:00+03:00"}}`)

	require.Equal(t, http.StatusCreated, rec.Code)
	var res usecases.AddResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	require.NotNil(t, res.Conflict)
	assert.Equal(t, "Standup", res.Conflict.Title)
}

func TestCreateEvent_ValidationError(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(http.MethodPost, "/api/events", `{"event":{"title":"  "}}`)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	var body struct {
		Error  string              `json:"error"`
		Fields []models.FieldError `json:"fields"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, usecases.ErrInvalidDefinition.Error(), body.Error)
	assert.Contains(t, body.Fields, models.FieldError{Field: "title", Message: "is required"})
	assert.Contains(t, body.Fields, models.FieldError{Field: "start_time", Message: "is required"})
	assert.Empty(t, ts.scheduler.Events())
}

func TestCreateEvent_RejectsUnknownFields(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(http.MethodPost, "/api/events", `{"event":{"title":"x"},"surprise":true}`)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.JSONEq(t, `{"error":"invalid request body"}`, rec.Body.String())
}

func TestListEvents_ByDate(t *testing.T) {
	ts := newTestServer(t)
	ts.createEvent(t, standupBody)
	ts.createEvent(t, `{"event":{"title":"Tomorrow","start_time":"2024-03-02T10:00:00+03:00"}}`)

	rec := ts.do(http.MethodGet, "/api/events?date=2024-03-02", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var events []models.Event
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &events))
	require.Len(t, events, 1)
	assert.Equal(t, "Tomorrow", events[0].Title)

	rec = ts.do(http.MethodGet, "/api/events", "")
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &events))
	assert.Len(t, events, 2)

	rec = ts.do(http.MethodGet, "/api/events?date=02.03.2024", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestUpdateEvent(t *testing.T) {
	ts := newTestServer(t)
	created := ts.createEvent(t, standupBody)

	rec := ts.do(http.MethodPatch, "/api/events/"+itoa(created[0].ID), `{"title":"Daily"}`)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var updated models.Event
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &updated))
	assert.Equal(t, "Daily", updated.Title)
	assert.True(t, updated.StartTime.Equal(created[0].StartTime))
}

func TestUpdateEvent_Errors(t *testing.T) {
	ts := newTestServer(t)

	tests := []struct {
		name   string
		target string
		want   int
	}{
		{name: "unknown id", target: "/api/events/42", want: http.StatusNotFound},
		{name: "bad id", target: "/api/events/abc", want: http.StatusBadRequest},
		{name: "zero id", target: "/api/events/0", want: http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := ts.do(http.MethodPatch, tt.target, `{"title":"x"}`)
			assert.Equal(t, tt.want, rec.Code)
		})
	}
}

func TestDeleteRestoreAndPurge(t *testing.T) {
	ts := newTestServer(t)
	created := ts.createEvent(t, standupBody)
	id := itoa(created[0].ID)

	rec := ts.do(http.MethodDelete, "/api/events/"+id, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, ts.scheduler.Events())

	rec = ts.do(http.MethodGet, "/api/trash", "")
	var trash []models.Event
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &trash))
	require.Len(t, trash, 1)
	assert.True(t, trash[0].IsDeleted())

	rec = ts.do(http.MethodPost, "/api/events/"+id+"/restore", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, ts.scheduler.Events(), 1)

	ts.do(http.MethodDelete, "/api/events/"+id, "")
	rec = ts.do(http.MethodDelete, "/api/trash/"+id, "")
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Empty(t, ts.scheduler.Trash())

	rec = ts.do(http.MethodDelete, "/api/trash/"+id, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestEmptyTrash(t *testing.T) {
	ts := newTestServer(t)
	first := ts.createEvent(t, standupBody)
	second := ts.createEvent(t, `{"event":{"title":"Lunch","start_time":"2024-03-01T13:00:00+03:00"}}`)
	ts.do(http.MethodDelete, "/api/events/"+itoa(first[0].ID), "")
	ts.do(http.MethodDelete, "/api/events/"+itoa(second[0].ID), "")

	rec := ts.do(http.MethodDelete, "/api/trash", "")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"purged":2}`, rec.Body.String())
	assert.Empty(t, ts.scheduler.Trash())
}

func TestCompleteEvent(t *testing.T) {
	ts := newTestServer(t)
	created := ts.createEvent(t, standupBody)
	id := itoa(created[0].ID)

	rec := ts.do(http.MethodPost, "/api/events/"+id+"/complete", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var event models.Event
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &event))
	assert.True(t, event.Completed)

	rec = ts.do(http.MethodPost, "/api/events/"+id+"/complete", `{"completed":false}`)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &event))
	assert.False(t, event.Completed)
}

func TestCreateEvent_AssignsSubtaskIDs(t *testing.T) {
	ts := newTestServer(t)

	events := ts.createEvent(t, `{"event":{"title":"Yoga","start_time":"2024-03-01T08:00:00+03:00","recurrence":"daily","subtasks":[{"text":" коврик "},{"id":"mat-2","text":"вода"}]},"instances":2}`)

	require.Len(t, events, 2)
	for _, e := range events {
		require.Len(t, e.Subtasks, 2)
		assert.NotEmpty(t, e.Subtasks[0].ID)
		assert.Equal(t, "коврик", e.Subtasks[0].Text)
		assert.Equal(t, "mat-2", e.Subtasks[1].ID)
	}
	assert.Equal(t, events[0].Subtasks[0].ID, events[1].Subtasks[0].ID)
}

func TestUpdateEvent_Subtasks(t *testing.T) {
	ts := newTestServer(t)
	created := ts.createEvent(t, standupBody)

	rec := ts.do(http.MethodPatch, "/api/events/"+itoa(created[0].ID), `{"subtasks":[{"id":"a","text":"agenda","completed":true}]}`)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var updated models.Event
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &updated))
	assert.Equal(t, []models.Subtask{{ID: "a", Text: "agenda", Completed: true}}, updated.Subtasks)

	rec = ts.do(http.MethodPatch, "/api/events/"+itoa(created[0].ID), `{"subtasks":[{"id":"a","text":" "}]}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

// --- Тесты Analytics ---

func TestAnalytics(t *testing.T) {
	ts := newTestServer(t)
	ts.createEvent(t, standupBody)
	lunch := ts.createEvent(t, `{"event":{"title":"Lunch","start_time":"2024-03-01T13:00:00+03:00","end_time":"2024-03-01T14:30:00+03:00","category":"personal"}}`)
	ts.do(http.MethodPost, "/api/events/"+itoa(lunch[0].ID)+"/complete", "")

	rec := ts.do(http.MethodGet, "/api/analytics", "")

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var summary analytics.Summary
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &summary))
	assert.Equal(t, 2, summary.Total)
	assert.Equal(t, 1, summary.Completed)
	assert.Equal(t, 50, summary.CompletionRate)
	assert.Equal(t, 1.5, summary.TotalHours)
	require.Len(t, summary.Week, 7)
	assert.Equal(t, analytics.DayActivity{Date: "2024-03-01", Day: "пт", Count: 2, Completed: 1, Rate: 50}, summary.Week[6])
}

// --- Тесты iCalendar ---

func TestExportICS(t *testing.T) {
	ts := newTestServer(t)
	ts.createEvent(t, standupBody)

	rec := ts.do(http.MethodGet, "/api/export.ics", "")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/calendar; charset=utf-8", rec.Header().Get("Content-Type"))
	body := rec.Body.String()
	assert.Contains(t, body, "BEGIN:VCALENDAR")
	assert.Contains(t, body, "SUMMARY:Standup")
	assert.Contains(t, body, "DTSTART:20240301T070000Z")
}

func TestImportICS(t *testing.T) {
	ts := newTestServer(t)

	calendar := strings.Join([]string{
		"BEGIN:VCALENDAR",
		"VERSION:2.0",
		"PRODID:-//test//EN",
		"BEGIN:VEVENT",
		"UID:dentist@test",
		"DTSTAMP:20240301T000000Z",
		"SUMMARY:Dentist",
		"DTSTART:20240305T070000Z",
		"DTEND:20240305T080000Z",
		"END:VEVENT",
		"END:VCALENDAR",
		"",
	}, "\r\n")
	req := httptest.NewRequest(http.MethodPost, "/api/import", strings.NewReader(calendar))
	req.Header.Set("Content-Type", "text/calendar")
	rec := httptest.NewRecorder()
	ts.router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var body struct {
		Imported int `json:"imported"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, 1, body.Imported)

	events := ts.scheduler.Events()
	require.Len(t, events, 1)
	assert.Equal(t, "Dentist", events[0].Title)
	assert.Equal(t, time.Hour, events[0].Duration())
}

// --- Тесты Agenda ---

func TestSendAgenda(t *testing.T) {
	ts := newTestServer(t)
	ts.createEvent(t, standupBody)
	ts.agenda.On("SendAgenda", mock.Anything, mock.MatchedBy(func(events []models.Event) bool {
		return len(events) == 1 && events[0].Title == "Standup"
	})).Return(nil).Once()

	rec := ts.do(http.MethodPost, "/api/agenda/send", "")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"message":"Я отправил план на сегодня в ваш Telegram."}`, rec.Body.String())
	ts.agenda.AssertExpectations(t)
}

func TestSendAgenda_Errors(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{name: "telegram not configured", err: notify.ErrNotConfigured, want: http.StatusConflict},
		{name: "telegram down", err: errors.New("connection refused"), want: http.StatusBadGateway},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := newTestServer(t)
			ts.agenda.On("SendAgenda", mock.Anything, mock.Anything).Return(tt.err)

			rec := ts.do(http.MethodPost, "/api/agenda/send", "")

			assert.Equal(t, tt.want, rec.Code)
		})
	}
}

// --- Тесты Chat ---

func TestChat(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(http.MethodPost, "/api/chat", `{"text":"Привет"}`)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var reply usecases.Reply
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &reply))
	assert.Equal(t, models.ActionUnknown, reply.Action)
	assert.Equal(t, "Привет!", reply.Message.Content)
	assert.Equal(t, models.RoleAssistant, reply.Message.Role)

	rec = ts.do(http.MethodGet, "/api/chat/messages?limit=10", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var history []models.ChatMessage
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &history))
	require.Len(t, history, 2)
	assert.Equal(t, models.RoleUser, history[0].Role)
	assert.Equal(t, "Привет", history[0].Content)
}

func TestChat_BadRequests(t *testing.T) {
	ts := newTestServer(t)

	assert.Equal(t, http.StatusBadRequest, ts.do(http.MethodPost, "/api/chat", `{}`).Code)
	assert.Equal(t, http.StatusBadRequest, ts.do(http.MethodPost, "/api/chat", `{"text":"   "}`).Code)
	assert.Equal(t, http.StatusBadRequest, ts.do(http.MethodGet, "/api/chat/messages?limit=-1", "").Code)
}

// --- Тесты Auth ---

func TestGoogleLogin_SetsStateCookie(t *testing.T) {
	ts := newTestServer(t)
	ts.oauth.On("GetAuthURL", mock.AnythingOfType("string")).Return("https://accounts.example/auth").Once()

	rec := ts.do(http.MethodGet, "/auth/google", "")

	assert.Equal(t, http.StatusTemporaryRedirect, rec.Code)
	assert.Equal(t, "https://accounts.example/auth", rec.Header().Get("Location"))
	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, oauthStateCookie, cookies[0].Name)
	assert.NotEmpty(t, cookies[0].Value)
	ts.oauth.AssertCalled(t, "GetAuthURL", cookies[0].Value)
}

func TestGoogleLogin_NotConfigured(t *testing.T) {
	ts := newTestServer(t)
	ts.oauth.On("GetAuthURL", mock.Anything).Return("")

	rec := ts.do(http.MethodGet, "/auth/google", "")

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestGoogleCallback(t *testing.T) {
	callback := func(ts testServer, query, state string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, "/auth/callback"+query, nil)
		if state != "" {
			req.AddCookie(&http.Cookie{Name: oauthStateCookie, Value: state})
		}
		rec := httptest.NewRecorder()
		ts.router.ServeHTTP(rec, req)
		return rec
	}

	t.Run("exchanges code", func(t *testing.T) {
		ts := newTestServer(t)
		ts.oauth.On("ExchangeCode", mock.Anything, "abc").Return(nil).Once()

		rec := callback(ts, "?code=abc&state=s1", "s1")

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), "Авторизация успешна")
		ts.oauth.AssertExpectations(t)
	})

	t.Run("state mismatch", func(t *testing.T) {
		ts := newTestServer(t)

		rec := callback(ts, "?code=abc&state=s2", "s1")

		assert.Equal(t, http.StatusBadRequest, rec.Code)
		ts.oauth.AssertNotCalled(t, "ExchangeCode", mock.Anything, mock.Anything)
	})

	t.Run("missing code", func(t *testing.T) {
		ts := newTestServer(t)

		rec := callback(ts, "?state=s1", "s1")

		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("exchange fails", func(t *testing.T) {
		ts := newTestServer(t)
		ts.oauth.On("ExchangeCode", mock.Anything, "abc").Return(errors.New("denied"))

		rec := callback(ts, "?code=abc&state=s1", "s1")

		assert.Equal(t, http.StatusInternalServerError, rec.Code)
	})
}

func itoa(id int64) string {
	return strconv.FormatInt(id, 10)
}
