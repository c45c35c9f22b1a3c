package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"smart_agenda/internal/models"
)

// EventStorage keeps event instances in Postgres.
type EventStorage struct {
	pool *pgxpool.Pool
}

func NewEventStorage(pool *pgxpool.Pool) *EventStorage {
	return &EventStorage{
		pool: pool,
	}
}

const eventColumns = `id, title, start_time, end_time, description, reminder_minutes,
	recurrence, recurrence_interval, is_all_day, category, color, series_id, completed, deleted_at, subtasks`

func (db_ev *EventStorage) GetAll(ctx context.Context) ([]models.Event, error) {
	op := "internal/storage/calendar.go GetAll"

	sql_query := `SELECT ` + eventColumns + ` FROM events ORDER BY start_time, id`

	rows, err := db_ev.pool.Query(ctx, sql_query)
	if err != nil {
		return nil, fmt.Errorf("%s: query: %w", op, err)
	}
	defer rows.Close()

	events := []models.Event{}
	for rows.Next() {
		event, err := scanEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("%s: scan: %w", op, err)
		}
		events = append(events, event)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: rows: %w", op, err)
	}

	return events, nil
}

func scanEvent(row pgx.Row) (models.Event, error) {
	var (
		e          models.Event
		recurrence string
		seriesID   *string
		deletedAt  *time.Time
		subtasks   []byte
	)

	err := row.Scan(
		&e.ID,
		&e.Title,
		&e.StartTime,
		&e.EndTime,
		&e.Description,
		&e.ReminderMinutes,
		&recurrence,
		&e.RecurrenceInterval,
		&e.IsAllDay,
		&e.Category,
		&e.Color,
		&seriesID,
		&e.Completed,
		&deletedAt,
		&subtasks,
	)
	if err != nil {
		return models.Event{}, err
	}
	if len(subtasks) > 0 {
		if err := json.Unmarshal(subtasks, &e.Subtasks); err != nil {
			return models.Event{}, fmt.Errorf("subtasks of event %d: %w", e.ID, err)
		}
	}

	e.Recurrence = models.ParseRecurrenceKind(recurrence)
	if seriesID != nil {
		e.SeriesID = *seriesID
	}
	e.Lifecycle = models.LifecycleFromNullable(deletedAt)
	return e, nil
}

// AddMany inserts all definitions in one transaction and returns them with
// their new ids, in input order.
func (db_ev *EventStorage) AddMany(ctx context.Context, defs []models.EventDefinition) ([]models.Event, error) {
	op := "internal/storage/calendar.go AddMany"

	if len(defs) == 0 {
		return []models.Event{}, nil
	}

	sql_query := `
	INSERT INTO events
	(title, start_time, end_time, description, reminder_minutes,
	 recurrence, recurrence_interval, is_all_day, category, color, series_id, subtasks)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	RETURNING id
	`

	tx, err := db_ev.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("%s: begin: %w", op, err)
	}
	defer tx.Rollback(ctx)

	batch := &pgx.Batch{}
	for _, d := range defs {
		subtasks, err := subtasksJSON(d.Subtasks)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		batch.Queue(sql_query,
			d.Title,
			d.StartTime,
			d.EndTime,
			d.Description,
			d.ReminderMinutes,
			string(recurrenceOrNone(d.Recurrence)),
			d.RecurrenceInterval,
			d.IsAllDay,
			d.Category,
			d.Color,
			nullableString(d.SeriesID),
			subtasks,
		)
	}

	results := tx.SendBatch(ctx, batch)
	events := make([]models.Event, 0, len(defs))
	for _, d := range defs {
		var id int64
		if err := results.QueryRow().Scan(&id); err != nil {
			results.Close()
			return nil, fmt.Errorf("%s: insert %q: %w", op, d.Title, err)
		}
		events = append(events, models.Event{ID: id, EventDefinition: d})
	}
	if err := results.Close(); err != nil {
		return nil, fmt.Errorf("%s: close batch: %w", op, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("%s: commit: %w", op, err)
	}

	return events, nil
}

func (db_ev *EventStorage) Update(ctx context.Context, id int64, patch models.EventPatch) error {
	op := "internal/storage/calendar.go Update"

	sets, args, err := patchAssignments(patch)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if len(sets) == 0 {
		return nil
	}
	args = append(args, id)

	sql_query := fmt.Sprintf(`UPDATE events SET %s WHERE id = $%d`, strings.Join(sets, ", "), len(args))

	tag, err := db_ev.pool.Exec(ctx, sql_query, args...)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%s: event %d: %w", op, id, ErrNotFound)
	}

	return nil
}

func (db_ev *EventStorage) Delete(ctx context.Context, id int64) error {
	op := "internal/storage/calendar.go Delete"

	tag, err := db_ev.pool.Exec(ctx, `DELETE FROM events WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%s: event %d: %w", op, id, ErrNotFound)
	}

	return nil
}

// patchAssignments turns the set fields of patch into "col = $n" pairs.
func patchAssignments(p models.EventPatch) ([]string, []any, error) {
	var (
		sets []string
		args []any
	)
	add := func(col string, v any) {
		args = append(args, v)
		sets = append(sets, fmt.Sprintf("%s = $%d", col, len(args)))
	}

	if p.Title != nil {
		add("title", *p.Title)
	}
	if p.StartTime != nil {
		add("start_time", *p.StartTime)
	}
	if p.EndTime != nil {
		add("end_time", *p.EndTime)
	}
	if p.Description != nil {
		add("description", *p.Description)
	}
	if p.ReminderMinutes != nil {
		add("reminder_minutes", *p.ReminderMinutes)
	}
	if p.IsAllDay != nil {
		add("is_all_day", *p.IsAllDay)
	}
	if p.Category != nil {
		add("category", *p.Category)
	}
	if p.Color != nil {
		add("color", *p.Color)
	}
	if p.Completed != nil {
		add("completed", *p.Completed)
	}
	if p.Subtasks != nil {
		subtasks, err := subtasksJSON(*p.Subtasks)
		if err != nil {
			return nil, nil, err
		}
		add("subtasks", subtasks)
	}
	if p.Lifecycle != nil {
		add("deleted_at", p.Lifecycle.Nullable())
	}

	return sets, args, nil
}

// subtasksJSON is the jsonb text of the column; nil becomes an empty list.
func subtasksJSON(subtasks []models.Subtask) (string, error) {
	if subtasks == nil {
		subtasks = []models.Subtask{}
	}
	data, err := json.Marshal(subtasks)
	if err != nil {
		return "", fmt.Errorf("marshal subtasks: %w", err)
	}
	return string(data), nil
}

func nullableString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func recurrenceOrNone(k models.RecurrenceKind) models.RecurrenceKind {
	if k == "" {
		return models.RecurrenceNone
	}
	return k
}
