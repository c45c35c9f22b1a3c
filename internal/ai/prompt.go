package ai

import (
	"fmt"
	"strings"
	"time"
)

// intentInstructions is the fixed part of the prompt. The model must answer
// with one JSON object.
const intentInstructions = `Инструкции:
1. Проанализируй запрос пользователя.
2. Определи действие (поле "action"):
   - "create": создание ОДНОГО события.
   - "batch_create": если пользователь предоставляет СПИСОК событий или расписание.
   - "update": изменение существующего.
   - "delete": удаление.
   - "read": запрос расписания.
   - "unknown": непонятно.

3. Для "create" или "batch_create":
   - start_time: ISO 8601.
   - recurrence: "daily", "weekly", "monthly", "yearly", "none".
   - recurrence_interval: целое число (по умолчанию 1). Если пользователь пишет "каждые 2 дня", то recurrence="daily", recurrence_interval=2.
   - is_all_day: boolean.

4. ЧЕРЕДОВАНИЕ ЗАДАЧ:
   Если пользователь просит чередовать задачи (например: "В одну субботу бассейн, в следующую зал" или "Четная неделя - А, нечетная - Б"):
   - Используй action "batch_create".
   - Создай ДВА события в массиве "events".
   - Оба события должны иметь recurrence="weekly" и recurrence_interval=2.
   - start_time ПЕРВОГО события: ближайшая подходящая дата.
   - start_time ВТОРОГО события: дата первого события + 7 дней.

5. Для "update" и "delete" укажи target_id из контекста (ID: N), а в title название события.
   Для "update" передай только изменяемые поля.

6. Отвечай всегда на РУССКОМ языке в поле "confirmation_message".

Ответь ТОЛЬКО JSON объектом без пояснений:
{
  "action": "create|batch_create|update|delete|read|unknown",
  "title": "строка или null",
  "start_time": "ISO 8601 или null",
  "end_time": "ISO 8601 или null",
  "description": "строка или null",
  "reminder_minutes": "целое число или null",
  "recurrence": "daily|weekly|monthly|yearly|none",
  "recurrence_interval": 1,
  "is_all_day": false,
  "events": [ { "title": "...", "start_time": "...", "end_time": null, "recurrence": "none", "recurrence_interval": 1, "is_all_day": false, "reminder_minutes": null } ],
  "target_id": "строка или null",
  "confirmation_message": "строка"
}`

// BuildIntentPrompt assembles the full prompt for one user message.
func BuildIntentPrompt(now time.Time, eventsContext, calendarPreview, text string) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Текущая дата и время: %s (%s)\n\n", now.Format(time.RFC3339), now.Format("02.01.2006"))

	b.WriteString("Контекст (Существующие события):\n")
	if strings.TrimSpace(eventsContext) == "" {
		b.WriteString("Нет событий\n")
	} else {
		b.WriteString(eventsContext)
	}
	b.WriteString("\n")

	if calendarPreview != "" {
		fmt.Fprintf(&b, "Google Календарь:\n%s\n", calendarPreview)
	}

	b.WriteString(intentInstructions)
	fmt.Fprintf(&b, "\n\nЗапрос пользователя:\n%s", text)

	return b.String()
}
