package notify

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"smart_agenda/internal/models"
	"smart_agenda/internal/usecases"
)

var ErrNotConfigured = errors.New("telegram is not configured")

var ruWeekdays = [...]string{
	time.Sunday:    "воскресенье",
	time.Monday:    "понедельник",
	time.Tuesday:   "вторник",
	time.Wednesday: "среда",
	time.Thursday:  "четверг",
	time.Friday:    "пятница",
	time.Saturday:  "суббота",
}

// родительный падеж
var ruMonths = [...]string{
	time.January:   "января",
	time.February:  "февраля",
	time.March:     "марта",
	time.April:     "апреля",
	time.May:       "мая",
	time.June:      "июня",
	time.July:      "июля",
	time.August:    "августа",
	time.September: "сентября",
	time.October:   "октября",
	time.November:  "ноября",
	time.December:  "декабря",
}

// FormatWhen renders "пятница, 1 марта, 09:00" or "пятница, 1 марта (Весь день)".
func FormatWhen(e models.Event, loc *time.Location) string {
	t := e.StartTime.In(loc)
	day := fmt.Sprintf("%s, %d %s", ruWeekdays[t.Weekday()], t.Day(), ruMonths[t.Month()])
	if e.IsAllDay {
		return day + " (Весь день)"
	}
	return day + ", " + t.Format("15:04")
}

// FormatEvent builds the chat message for a single changed event.
func FormatEvent(e models.Event, kind usecases.ChangeKind, loc *time.Location) string {
	switch kind {
	case usecases.ChangeCreated:
		return fmt.Sprintf("✅ *Создано событие:*\n\"%s\"\n🕒 %s", e.Title, FormatWhen(e, loc))
	case usecases.ChangeDeleted:
		return fmt.Sprintf("🗑 *Удалено событие:*\n\"%s\"\n🕒 %s", e.Title, FormatWhen(e, loc))
	case usecases.ChangeCompleted:
		return fmt.Sprintf("🎉 *Задача выполнена:*\n\"%s\"\n✅ Отмечено как завершенное", e.Title)
	default:
		return fmt.Sprintf("📝 *Обновлено событие:*\n\"%s\"\n🕒 %s", e.Title, FormatWhen(e, loc))
	}
}

func FormatBatchSummary(count int) string {
	return fmt.Sprintf("📚 *Массовое добавление!*\nДобавлено событий: %d", count)
}

// BuildAgenda lists today's open events; now decides both "today" and the location.
func BuildAgenda(events []models.Event, now time.Time) string {
	loc := now.Location()
	y, m, d := now.Date()

	today := make([]models.Event, 0, len(events))
	for _, e := range events {
		if e.Completed || e.IsDeleted() {
			continue
		}
		ey, em, ed := e.StartTime.In(loc).Date()
		if ey == y && em == m && ed == d {
			today = append(today, e)
		}
	}
	models.SortByStart(today)

	date := now.Format("02.01.2006")
	if len(today) == 0 {
		return fmt.Sprintf("🎉 *На сегодня (%s) задач нет!*\nНаслаждайтесь отдыхом.", date)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "📅 *План на сегодня (%s):*\n\n", date)
	for _, e := range today {
		when := "Весь день"
		if !e.IsAllDay {
			when = e.StartTime.In(loc).Format("15:04")
		}
		fmt.Fprintf(&b, "• *%s* — %s\n", when, EscapeMarkdown(e.Title))
	}
	return b.String()
}

var markdownEscaper = strings.NewReplacer(
	`_`, `\_`, `*`, `\*`, `[`, `\[`, `]`, `\]`, `(`, `\(`, `)`, `\)`,
	`~`, `\~`, "`", "\\`", `>`, `\>`, `#`, `\#`, `+`, `\+`, `-`, `\-`,
	`=`, `\=`, `|`, `\|`, `{`, `\{`, `}`, `\}`, `.`, `\.`, `!`, `\!`,
)

// EscapeMarkdown backslash-escapes Telegram markup characters in s.
func EscapeMarkdown(s string) string {
	return markdownEscaper.Replace(s)
}
