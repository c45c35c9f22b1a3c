package handlers

import (
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"smart_agenda/internal/models"
	"smart_agenda/internal/usecases"
)

const maxJSONBodyBytes int64 = 1 << 20

type EventHandler struct {
	scheduler *usecases.Scheduler
	loc       *time.Location
	logger    *zap.Logger
}

type createEventRequest struct {
	Event     models.EventDefinition `json:"event"`
	Instances int                    `json:"instances"`
}

type completeRequest struct {
	Completed *bool `json:"completed"`
}

func NewEventHandler(scheduler *usecases.Scheduler, loc *time.Location, logger *zap.Logger) *EventHandler {
	return &EventHandler{
		scheduler: scheduler,
		loc:       loc,
		logger:    logger,
	}
}

// GET /api/events[?date=YYYY-MM-DD]
func (h *EventHandler) HandleList(c *gin.Context) {
	date := c.Query("date")
	if date == "" {
		c.JSON(http.StatusOK, h.scheduler.Events())
		return
	}

	day, err := time.ParseInLocation(time.DateOnly, date, h.loc)
	if err != nil {
		writeError(c, http.StatusBadRequest, "date must be YYYY-MM-DD")
		return
	}
	c.JSON(http.StatusOK, h.scheduler.EventsOn(day))
}

// POST /api/events
func (h *EventHandler) HandleCreate(c *gin.Context) {
	op := "internal/handlers/events.go HandleCreate"

	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxJSONBodyBytes)

	var req createEventRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeBindError(c, err)
		return
	}

	res, err := h.scheduler.AddEvent(c.Request.Context(), req.Event, req.Instances)
	if err != nil {
		writeServiceError(c, h.logger, op, err)
		return
	}

	c.JSON(http.StatusCreated, res)
}

// PATCH /api/events/:id
func (h *EventHandler) HandleUpdate(c *gin.Context) {
	op := "internal/handlers/events.go HandleUpdate"

	id, ok := eventID(c)
	if !ok {
		return
	}

	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxJSONBodyBytes)

	var patch models.EventPatch
	if err := c.ShouldBindJSON(&patch); err != nil {
		writeBindError(c, err)
		return
	}

	updated, err := h.scheduler.UpdateEvent(c.Request.Context(), id, patch)
	if err != nil {
		writeServiceError(c, h.logger, op, err)
		return
	}

	c.JSON(http.StatusOK, updated)
}

// DELETE /api/events/:id moves the event to the trash.
func (h *EventHandler) HandleDelete(c *gin.Context) {
	op := "internal/handlers/events.go HandleDelete"

	id, ok := eventID(c)
	if !ok {
		return
	}

	deleted, err := h.scheduler.DeleteEvent(c.Request.Context(), id)
	if err != nil {
		writeServiceError(c, h.logger, op, err)
		return
	}

	c.JSON(http.StatusOK, deleted)
}

// POST /api/events/:id/complete, empty body means completed=true
func (h *EventHandler) HandleComplete(c *gin.Context) {
	op := "internal/handlers/events.go HandleComplete"

	id, ok := eventID(c)
	if !ok {
		return
	}

	var req completeRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		writeBindError(c, err)
		return
	}
	completed := true
	if req.Completed != nil {
		completed = *req.Completed
	}

	event, err := h.scheduler.ToggleComplete(c.Request.Context(), id, completed)
	if err != nil {
		writeServiceError(c, h.logger, op, err)
		return
	}

	c.JSON(http.StatusOK, event)
}

// POST /api/events/:id/restore
func (h *EventHandler) HandleRestore(c *gin.Context) {
	op := "internal/handlers/events.go HandleRestore"

	id, ok := eventID(c)
	if !ok {
		return
	}

	restored, err := h.scheduler.RestoreEvent(c.Request.Context(), id)
	if err != nil {
		writeServiceError(c, h.logger, op, err)
		return
	}

	c.JSON(http.StatusOK, restored)
}

// GET /api/trash
func (h *EventHandler) HandleTrash(c *gin.Context) {
	c.JSON(http.StatusOK, h.scheduler.Trash())
}

// DELETE /api/trash
func (h *EventHandler) HandleEmptyTrash(c *gin.Context) {
	op := "internal/handlers/events.go HandleEmptyTrash"

	purged, err := h.scheduler.EmptyTrash(c.Request.Context())
	if err != nil {
		writeServiceError(c, h.logger, op, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"purged": purged})
}

// DELETE /api/trash/:id
func (h *EventHandler) HandlePurge(c *gin.Context) {
	op := "internal/handlers/events.go HandlePurge"

	id, ok := eventID(c)
	if !ok {
		return
	}

	if err := h.scheduler.PurgeEvent(c.Request.Context(), id); err != nil {
		writeServiceError(c, h.logger, op, err)
		return
	}

	c.Status(http.StatusNoContent)
}

func eventID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		writeError(c, http.StatusBadRequest, "invalid event id")
		return 0, false
	}
	return id, true
}

func writeBindError(c *gin.Context, err error) {
	var maxBytesErr *http.MaxBytesError
	if errors.As(err, &maxBytesErr) {
		writeError(c, http.StatusRequestEntityTooLarge, "request body too large")
		return
	}
	writeError(c, http.StatusBadRequest, "invalid request body")
}
