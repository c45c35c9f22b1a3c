package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"smart_agenda/internal/usecases"
)

const defaultHistoryLimit = 50

type ChatHandler struct {
	assistant *usecases.Assistant
	logger    *zap.Logger
}

type chatRequest struct {
	Text string `json:"text" binding:"required"`
}

func NewChatHandler(assistant *usecases.Assistant, logger *zap.Logger) *ChatHandler {
	return &ChatHandler{
		assistant: assistant,
		logger:    logger,
	}
}

// POST /api/chat
func (ch *ChatHandler) HandleChat(c *gin.Context) {
	op := "handlers.HandleChat"

	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxJSONBodyBytes)

	//text from user
	var input chatRequest
	if err := c.ShouldBindJSON(&input); err != nil {
		writeBindError(c, err)
		return
	}

	reply, err := ch.assistant.HandleMessage(c.Request.Context(), input.Text)
	if err != nil {
		ch.logger.Warn("chat rejected", zap.String("op", op), zap.Error(err))
		writeError(c, http.StatusBadRequest, "text is required")
		return
	}

	c.JSON(http.StatusOK, reply)
}

// GET /api/chat/messages[?limit=N]
func (ch *ChatHandler) HandleHistory(c *gin.Context) {
	op := "handlers.HandleHistory"

	limit := defaultHistoryLimit
	if limitStr := c.Query("limit"); limitStr != "" {
		l, err := strconv.Atoi(limitStr)
		if err != nil || l < 0 {
			writeError(c, http.StatusBadRequest, "limit must be a non-negative integer")
			return
		}
		limit = l
	}

	messages, err := ch.assistant.History(c.Request.Context(), limit)
	if err != nil {
		writeServiceError(c, ch.logger, op, err)
		return
	}

	c.JSON(http.StatusOK, messages)
}
