package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"smart_agenda/internal/models"
	"smart_agenda/internal/notify"
	"smart_agenda/internal/usecases"
)

const msgAgendaSent = "Я отправил план на сегодня в ваш Telegram."

type AgendaSender interface {
	SendAgenda(ctx context.Context, events []models.Event) error
}

type AgendaHandler struct {
	scheduler *usecases.Scheduler
	sender    AgendaSender
	logger    *zap.Logger
}

func NewAgendaHandler(scheduler *usecases.Scheduler, sender AgendaSender, logger *zap.Logger) *AgendaHandler {
	return &AgendaHandler{scheduler: scheduler, sender: sender, logger: logger}
}

// POST /api/agenda/send
func (h *AgendaHandler) HandleSend(c *gin.Context) {
	op := "internal/handlers/agenda.go HandleSend"

	if h.sender == nil {
		writeError(c, http.StatusConflict, notify.ErrNotConfigured.Error())
		return
	}

	err := h.sender.SendAgenda(c.Request.Context(), h.scheduler.Events())
	if errors.Is(err, notify.ErrNotConfigured) {
		writeError(c, http.StatusConflict, err.Error())
		return
	}
	if err != nil {
		h.logger.Error("agenda not sent", zap.String("op", op), zap.Error(err))
		writeError(c, http.StatusBadGateway, "failed to send agenda")
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": msgAgendaSent})
}
