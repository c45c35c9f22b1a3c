package usecases

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"smart_agenda/internal/models"
	"smart_agenda/internal/recurrence"
)

const (
	msgMissingDetails  = "Я понял, что вы хотите создать событие, но не хватает деталей."
	msgDeleteNotFound  = "Не удалось найти событие с таким названием для удаления."
	msgUpdateNotFound  = "Не удалось найти событие для изменения."
	msgProcessingError = "Ошибка обработки запроса."
	msgDone            = "Готово."
	msgNothingToday    = "На сегодня задач нет."
)

// IntentParser turns one user message into a structured intent.
// eventsContext is a plain-text listing of the current events.
type IntentParser interface {
	Parse(ctx context.Context, text, eventsContext string) (models.Intent, error)
}

// MessageStore keeps the chat history.
type MessageStore interface {
	Append(ctx context.Context, msg models.ChatMessage) (models.ChatMessage, error)
	List(ctx context.Context, limit int) ([]models.ChatMessage, error)
}

// Reply is the assistant's answer to one message.
type Reply struct {
	Message   models.ChatMessage  `json:"message"`
	Action    models.IntentAction `json:"action"`
	Events    []models.Event      `json:"events,omitempty"`
	Conflicts []models.Event      `json:"conflicts,omitempty"`
}

type Assistant struct {
	scheduler *Scheduler
	parser    IntentParser
	messages  MessageStore
	logger    *zap.Logger
	clock     func() time.Time
	loc       *time.Location
}

type AssistantOption func(*Assistant)

func WithAssistantClock(clock func() time.Time) AssistantOption {
	return func(a *Assistant) { a.clock = clock }
}

// WithAssistantLocation sets the zone "today" and listed times are in.
// Without it the scheduler's location is used.
func WithAssistantLocation(loc *time.Location) AssistantOption {
	return func(a *Assistant) { a.loc = loc }
}

func NewAssistant(scheduler *Scheduler, parser IntentParser, messages MessageStore, logger *zap.Logger, opts ...AssistantOption) *Assistant {
	if logger == nil {
		logger = zap.NewNop()
	}
	a := &Assistant{
		scheduler: scheduler,
		parser:    parser,
		messages:  messages,
		logger:    logger,
		clock:     time.Now,
		loc:       scheduler.loc,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// History returns the latest chat messages, oldest first.
func (a *Assistant) History(ctx context.Context, limit int) ([]models.ChatMessage, error) {
	return a.messages.List(ctx, limit)
}

// HandleMessage runs one conversational turn. Failures of the parser or the
// store end up as an error reply, not as a returned error.
func (a *Assistant) HandleMessage(ctx context.Context, text string) (Reply, error) {
	op := "usecases.Assistant.HandleMessage"

	text = strings.TrimSpace(text)
	if text == "" {
		return Reply{}, fmt.Errorf("%s: empty message", op)
	}

	a.record(ctx, models.ChatMessage{Role: models.RoleUser, Content: text})

	reply, err := a.dispatch(ctx, text)
	if err != nil {
		a.logger.Error("assistant turn failed", zap.String("op", op), zap.Error(err))
		reply = Reply{Action: models.ActionUnknown}
		reply.Message = models.ChatMessage{Content: msgProcessingError, IsError: true}
	}
	if strings.TrimSpace(reply.Message.Content) == "" {
		reply.Message.Content = msgDone
	}

	reply.Message.Role = models.RoleAssistant
	reply.Message = a.record(ctx, reply.Message)
	return reply, nil
}

func (a *Assistant) dispatch(ctx context.Context, text string) (Reply, error) {
	intent, err := a.parser.Parse(ctx, text, BuildEventsContext(a.scheduler.Events()))
	if err != nil {
		return Reply{}, err
	}

	reply := Reply{Action: intent.Action}
	reply.Message.Content = intent.ConfirmationMessage

	switch intent.Action {
	case models.ActionCreate:
		return a.create(ctx, intent, reply)
	case models.ActionBatchCreate:
		return a.batchCreate(ctx, intent, reply)
	case models.ActionUpdate:
		return a.update(ctx, intent, reply)
	case models.ActionDelete:
		return a.delete(ctx, intent, reply)
	case models.ActionRead:
		reply.Events = a.scheduler.EventsOn(a.clock().In(a.loc))
		if reply.Message.Content == "" {
			reply.Message.Content = formatDayList(reply.Events, a.loc)
		}
	}
	return reply, nil
}

func (a *Assistant) create(ctx context.Context, intent models.Intent, reply Reply) (Reply, error) {
	if intent.Event == nil || len(intent.Event.Validate()) > 0 {
		reply.Message.Content = msgMissingDetails
		return reply, nil
	}

	res, err := a.scheduler.AddEvent(ctx, *intent.Event, recurrence.InstanceCount(intent.Event.Recurrence))
	if err != nil {
		return Reply{}, err
	}

	reply.Events = res.Events
	if res.Conflict != nil {
		reply.Conflicts = append(reply.Conflicts, *res.Conflict)
		reply.Message.Content += ConflictAdvisory(*res.Conflict)
	}
	return reply, nil
}

func (a *Assistant) batchCreate(ctx context.Context, intent models.Intent, reply Reply) (Reply, error) {
	valid := make([]models.EventDefinition, 0, len(intent.Events))
	for _, def := range intent.Events {
		if fields := def.Validate(); len(fields) > 0 {
			a.logger.Warn("skipping incomplete batch event", zap.String("title", def.Title), zap.Any("fields", fields))
			continue
		}
		valid = append(valid, def)
	}
	if len(valid) == 0 {
		reply.Message.Content = msgMissingDetails
		return reply, nil
	}

	results, err := a.scheduler.AddBatch(ctx, valid)
	if err != nil {
		return Reply{}, err
	}

	for _, res := range results {
		reply.Events = append(reply.Events, res.Events...)
		if res.Conflict != nil {
			reply.Conflicts = append(reply.Conflicts, *res.Conflict)
			reply.Message.Content += ConflictAdvisory(*res.Conflict)
		}
	}
	return reply, nil
}

func (a *Assistant) update(ctx context.Context, intent models.Intent, reply Reply) (Reply, error) {
	target, ok := a.findTarget(intent)
	if !ok {
		reply.Message.Content = msgUpdateNotFound
		return reply, nil
	}

	updated, err := a.scheduler.UpdateEvent(ctx, target.ID, intent.Patch)
	if err != nil {
		if errors.Is(err, ErrInvalidDefinition) {
			reply.Message.Content = msgMissingDetails
			return reply, nil
		}
		return Reply{}, err
	}

	reply.Events = []models.Event{updated}
	if reply.Message.Content == "" {
		reply.Message.Content = fmt.Sprintf("Событие \"%s\" обновлено.", updated.Title)
	}
	return reply, nil
}

func (a *Assistant) delete(ctx context.Context, intent models.Intent, reply Reply) (Reply, error) {
	target, ok := a.findTarget(intent)
	if !ok {
		reply.Message.Content = msgDeleteNotFound
		return reply, nil
	}

	deleted, err := a.scheduler.DeleteEvent(ctx, target.ID)
	if err != nil {
		return Reply{}, err
	}

	reply.Events = []models.Event{deleted}
	reply.Message.Content = fmt.Sprintf("Событие \"%s\" удалено из расписания.", deleted.Title)
	return reply, nil
}

// findTarget prefers an explicit id and falls back to the first active event
// whose title contains the requested one, case-insensitively.
func (a *Assistant) findTarget(intent models.Intent) (models.Event, bool) {
	events := a.scheduler.Events()

	if intent.TargetID != 0 {
		for _, e := range events {
			if e.ID == intent.TargetID {
				return e, true
			}
		}
	}

	needle := strings.ToLower(strings.TrimSpace(intent.TargetTitle))
	if needle == "" {
		return models.Event{}, false
	}
	for _, e := range events {
		if strings.Contains(strings.ToLower(e.Title), needle) {
			return e, true
		}
	}
	return models.Event{}, false
}

func (a *Assistant) record(ctx context.Context, msg models.ChatMessage) models.ChatMessage {
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = a.clock()
	}
	if a.messages == nil {
		return msg
	}

	saved, err := a.messages.Append(ctx, msg)
	if err != nil {
		a.logger.Warn("failed to save chat message", zap.String("role", msg.Role), zap.Error(err))
		return msg
	}
	return saved
}

// ConflictAdvisory is appended to a reply when a new event overlaps an existing one.
func ConflictAdvisory(conflict models.Event) string {
	return fmt.Sprintf("\n⚠️ Внимание: это время пересекается с событием \"%s\".", conflict.Title)
}

// BuildEventsContext lists events for the intent parser prompt.
func BuildEventsContext(events []models.Event) string {
	var b strings.Builder
	for _, e := range events {
		fmt.Fprintf(&b, "- %s at %s (ID: %d)", e.Title, e.StartTime.Format(time.RFC3339), e.ID)
		if e.Completed {
			b.WriteString(" [COMPLETED]")
		}
		if e.IsAllDay {
			b.WriteString(" [ALL DAY]")
		}
		b.WriteString("\n")
	}
	return b.String()
}

func formatDayList(events []models.Event, loc *time.Location) string {
	if len(events) == 0 {
		return msgNothingToday
	}

	var b strings.Builder
	b.WriteString("План на сегодня:\n")
	for _, e := range events {
		if e.IsAllDay {
			fmt.Fprintf(&b, "• Весь день: %s\n", e.Title)
			continue
		}
		fmt.Fprintf(&b, "• %s: %s\n", e.StartTime.In(loc).Format("15:04"), e.Title)
	}
	return strings.TrimRight(b.String(), "\n")
}
