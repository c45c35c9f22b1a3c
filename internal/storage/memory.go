package storage

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"smart_agenda/internal/models"
)

// MemoryEventStorage is an EventStore that lives in process memory.
// Used with STORAGE=memory and in tests.
type MemoryEventStorage struct {
	mu     sync.RWMutex
	nextID int64
	events map[int64]models.Event
}

func NewMemoryEventStorage() *MemoryEventStorage {
	return &MemoryEventStorage{
		nextID: 1,
		events: make(map[int64]models.Event),
	}
}

func (m *MemoryEventStorage) GetAll(ctx context.Context) ([]models.Event, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]models.Event, 0, len(m.events))
	for _, e := range m.events {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *MemoryEventStorage) AddMany(ctx context.Context, defs []models.EventDefinition) ([]models.Event, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]models.Event, 0, len(defs))
	for _, d := range defs {
		if d.Recurrence == "" {
			d.Recurrence = models.RecurrenceNone
		}
		d.Subtasks = models.CloneSubtasks(d.Subtasks)
		e := models.Event{ID: m.nextID, EventDefinition: d}
		m.events[e.ID] = e
		out = append(out, e)
		m.nextID++
	}
	return out, nil
}

func (m *MemoryEventStorage) Update(ctx context.Context, id int64, patch models.EventPatch) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.events[id]
	if !ok {
		return fmt.Errorf("event %d: %w", id, ErrNotFound)
	}
	patch.Apply(&e)
	m.events[id] = e
	return nil
}

func (m *MemoryEventStorage) Delete(ctx context.Context, id int64) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.events[id]; !ok {
		return fmt.Errorf("event %d: %w", id, ErrNotFound)
	}
	delete(m.events, id)
	return nil
}

// MemoryMessageStorage keeps chat history in memory.
type MemoryMessageStorage struct {
	mu       sync.RWMutex
	messages []models.ChatMessage
}

func NewMemoryMessageStorage() *MemoryMessageStorage {
	return &MemoryMessageStorage{}
}

func (m *MemoryMessageStorage) Append(ctx context.Context, msg models.ChatMessage) (models.ChatMessage, error) {
	if err := ctx.Err(); err != nil {
		return models.ChatMessage{}, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	msg.ID = int64(len(m.messages) + 1)
	m.messages = append(m.messages, msg)
	return msg, nil
}

// List returns the last limit messages, oldest first. limit <= 0 returns all.
func (m *MemoryMessageStorage) List(ctx context.Context, limit int) ([]models.ChatMessage, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	start := 0
	if limit > 0 && limit < len(m.messages) {
		start = len(m.messages) - limit
	}
	return append([]models.ChatMessage(nil), m.messages[start:]...), nil
}
