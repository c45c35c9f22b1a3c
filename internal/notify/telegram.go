package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"smart_agenda/internal/models"
	"smart_agenda/internal/usecases"
)

const DefaultTelegramAPI = "https://api.telegram.org"

// TelegramNotifier sends schedule changes to one Telegram chat through the Bot API.
type TelegramNotifier struct {
	token      string
	chatID     string
	baseURL    string
	httpClient *http.Client
	loc        *time.Location
	logger     *zap.Logger
	clock      func() time.Time
}

// SendMessageRequest Bot API sendMessage body
type SendMessageRequest struct {
	ChatID    string `json:"chat_id"`
	Text      string `json:"text"`
	ParseMode string `json:"parse_mode,omitempty"`
}

type apiResponse struct {
	OK          bool   `json:"ok"`
	Description string `json:"description"`
}

type Option func(*TelegramNotifier)

func WithHTTPClient(c *http.Client) Option {
	return func(tn *TelegramNotifier) { tn.httpClient = c }
}

func WithBaseURL(url string) Option {
	return func(tn *TelegramNotifier) { tn.baseURL = strings.TrimRight(url, "/") }
}

func WithClock(clock func() time.Time) Option {
	return func(tn *TelegramNotifier) { tn.clock = clock }
}

func WithLogger(logger *zap.Logger) Option {
	return func(tn *TelegramNotifier) { tn.logger = logger }
}

func NewTelegramNotifier(token, chatID string, loc *time.Location, opts ...Option) *TelegramNotifier {
	tn := &TelegramNotifier{
		token:   token,
		chatID:  chatID,
		baseURL: DefaultTelegramAPI,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		loc:    loc,
		logger: zap.NewNop(),
		clock:  time.Now,
	}
	for _, opt := range opts {
		opt(tn)
	}
	if tn.loc == nil {
		tn.loc = time.Local
	}
	return tn
}

// Enabled reports whether both the bot token and the chat id are set.
func (tn *TelegramNotifier) Enabled() bool {
	return tn.token != "" && tn.chatID != ""
}

// Notify implements usecases.Notifier.
func (tn *TelegramNotifier) Notify(ctx context.Context, change usecases.Change) error {
	if !tn.Enabled() {
		tn.logger.Debug("telegram settings not configured, skipping", zap.String("kind", string(change.Kind)))
		return nil
	}
	if len(change.Events) == 0 {
		return nil
	}

	if change.Kind == usecases.ChangeBatchCreated {
		return tn.send(ctx, FormatBatchSummary(len(change.Events)))
	}

	events := change.Events
	if change.Kind == usecases.ChangeCreated {
		events = events[:1]
	}
	for _, e := range events {
		if err := tn.send(ctx, FormatEvent(e, change.Kind, tn.loc)); err != nil {
			return err
		}
	}
	return nil
}

// SendAgenda pushes today's plan: active, not completed events starting today.
func (tn *TelegramNotifier) SendAgenda(ctx context.Context, events []models.Event) error {
	if !tn.Enabled() {
		return ErrNotConfigured
	}
	return tn.send(ctx, BuildAgenda(events, tn.clock().In(tn.loc)))
}

// SendReminder announces that an event starts in e.ReminderMinutes.
func (tn *TelegramNotifier) SendReminder(ctx context.Context, e models.Event) error {
	if !tn.Enabled() {
		return nil
	}
	minutes := 0
	if e.ReminderMinutes != nil {
		minutes = *e.ReminderMinutes
	}
	text := fmt.Sprintf("🔔 *Напоминание:* %s\nСобытие начнется через %d мин.", EscapeMarkdown(e.Title), minutes)
	return tn.send(ctx, text)
}

func (tn *TelegramNotifier) send(ctx context.Context, text string) error {
	op := "notify.TelegramNotifier.send"

	body, err := json.Marshal(SendMessageRequest{
		ChatID:    tn.chatID,
		Text:      text,
		ParseMode: "Markdown",
	})
	if err != nil {
		return fmt.Errorf("%s: marshal: %w", op, err)
	}

	url := fmt.Sprintf("%s/bot%s/sendMessage", tn.baseURL, tn.token)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("%s: create request: %w", op, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := tn.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s: request: %w", op, err)
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(resp.Body)
	var apiResp apiResponse
	_ = json.Unmarshal(raw, &apiResp)

	if resp.StatusCode != http.StatusOK || !apiResp.OK {
		desc := apiResp.Description
		if desc == "" {
			desc = strings.TrimSpace(string(raw))
		}
		return fmt.Errorf("%s: telegram http %d: %s", op, resp.StatusCode, desc)
	}

	return nil
}
