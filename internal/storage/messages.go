package storage

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"smart_agenda/internal/models"
)

// MessageStorage keeps the assistant chat history in Postgres.
type MessageStorage struct {
	pool *pgxpool.Pool
}

func NewMessageStorage(pool *pgxpool.Pool) *MessageStorage {
	return &MessageStorage{
		pool: pool,
	}
}

func (db_ms *MessageStorage) Append(ctx context.Context, msg models.ChatMessage) (models.ChatMessage, error) {
	op := "internal/storage/messages.go Append"

	sql_query := `
	INSERT INTO chat_messages (role, content, is_error, created_at)
	VALUES ($1, $2, $3, $4)
	RETURNING id
	`

	err := db_ms.pool.QueryRow(ctx, sql_query,
		msg.Role,
		msg.Content,
		msg.IsError,
		msg.CreatedAt,
	).Scan(&msg.ID)
	if err != nil {
		return models.ChatMessage{}, fmt.Errorf("%s: failed to save message: %w", op, err)
	}

	return msg, nil
}

// List returns the last limit messages, oldest first. limit <= 0 returns all.
func (db_ms *MessageStorage) List(ctx context.Context, limit int) ([]models.ChatMessage, error) {
	op := "internal/storage/messages.go List"

	sql_query := `
	SELECT id, role, content, is_error, created_at FROM (
		SELECT id, role, content, is_error, created_at FROM chat_messages
		ORDER BY id DESC
		LIMIT $1
	) recent
	ORDER BY id
	`

	var limitArg *int
	if limit > 0 {
		limitArg = &limit
	}

	rows, err := db_ms.pool.Query(ctx, sql_query, limitArg)
	if err != nil {
		return nil, fmt.Errorf("%s: query: %w", op, err)
	}
	defer rows.Close()

	messages := []models.ChatMessage{}
	for rows.Next() {
		var msg models.ChatMessage
		if err := rows.Scan(&msg.ID, &msg.Role, &msg.Content, &msg.IsError, &msg.CreatedAt); err != nil {
			return nil, fmt.Errorf("%s: scan: %w", op, err)
		}
		messages = append(messages, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: rows: %w", op, err)
	}

	return messages, nil
}
