package ai

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"smart_agenda/internal/models"
	"smart_agenda/internal/usecases"
)

const (
	msgNoAPIKey = "Ошибка: API ключ не настроен. Пожалуйста, проверьте конфигурацию."
	previewDays = 7
)

// Generator is a text completion backend.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// CalendarPreviewer gives extra context about an external calendar.
type CalendarPreviewer interface {
	IsAuthorized() bool
	GetCalendarPreview(ctx context.Context, days int) string
}

type IntentParserDeps struct {
	Client   Generator
	Preview  CalendarPreviewer
	Location *time.Location
	Logger   *zap.Logger
	Clock    func() time.Time
}

// IntentParser implements usecases.IntentParser on top of GigaChat.
type IntentParser struct {
	client  Generator
	preview CalendarPreviewer
	loc     *time.Location
	logger  *zap.Logger
	clock   func() time.Time
}

func NewIntentParser(deps IntentParserDeps) *IntentParser {
	p := &IntentParser{
		client:  deps.Client,
		preview: deps.Preview,
		loc:     deps.Location,
		logger:  deps.Logger,
		clock:   deps.Clock,
	}
	if p.loc == nil {
		p.loc = time.Local
	}
	if p.logger == nil {
		p.logger = zap.NewNop()
	}
	if p.clock == nil {
		p.clock = time.Now
	}
	return p
}

// Parse never fails on transport problems: the user gets an unknown intent
// with the error text instead. Only a malformed model answer is an error.
func (p *IntentParser) Parse(ctx context.Context, text, eventsContext string) (models.Intent, error) {
	op := "ai.IntentParser.Parse"

	if c, ok := p.client.(interface{ Configured() bool }); p.client == nil || (ok && !c.Configured()) {
		p.logger.Error("gigachat auth key is missing", zap.String("op", op))
		return models.Intent{Action: models.ActionUnknown, ConfirmationMessage: msgNoAPIKey}, nil
	}

	var preview string
	if p.preview != nil && p.preview.IsAuthorized() {
		preview = p.preview.GetCalendarPreview(ctx, previewDays)
	}

	prompt := BuildIntentPrompt(p.clock().In(p.loc), eventsContext, preview, text)

	response, err := p.client.Generate(ctx, prompt)
	if err != nil {
		p.logger.Error("AI service error", zap.String("op", op), zap.Error(err))
		return models.Intent{
			Action:              models.ActionUnknown,
			ConfirmationMessage: fmt.Sprintf("Извините, возникла ошибка: %s.", err.Error()),
		}, nil
	}

	intent, err := usecases.ParseIntentResponse(response, p.loc)
	if err != nil {
		return models.Intent{}, fmt.Errorf("%s: %w", op, err)
	}

	p.logger.Debug("intent parsed",
		zap.String("action", string(intent.Action)),
		zap.Int("events", len(intent.Events)),
	)
	return intent, nil
}
