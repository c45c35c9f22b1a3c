package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"smart_agenda/internal/usecases"
)

type RouterDeps struct {
	Environment string
	Scheduler   *usecases.Scheduler
	Assistant   *usecases.Assistant
	Agenda      AgendaSender
	OAuth       OAuthFlow
	Location    *time.Location
	Logger      *zap.Logger
	Clock       func() time.Time
}

func NewRouter(deps RouterDeps) (*gin.Engine, error) {
	if deps.Scheduler == nil {
		return nil, errors.New("scheduler is required")
	}
	if deps.Location == nil {
		deps.Location = time.Local
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if deps.Clock == nil {
		deps.Clock = time.Now
	}

	gin.EnableJsonDecoderDisallowUnknownFields()
	gin.SetMode(ginMode(deps.Environment))

	router := gin.New()
	router.Use(gin.Recovery())
	if err := router.SetTrustedProxies(nil); err != nil {
		return nil, fmt.Errorf("set trusted proxies: %w", err)
	}
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	events := NewEventHandler(deps.Scheduler, deps.Location, deps.Logger)
	calendar := NewICSHandler(deps.Scheduler, deps.Location, deps.Logger, deps.Clock)
	agenda := NewAgendaHandler(deps.Scheduler, deps.Agenda, deps.Logger)
	stats := NewAnalyticsHandler(deps.Scheduler, deps.Location, deps.Clock)

	api := router.Group("/api")
	api.GET("/events", events.HandleList)
	api.POST("/events", events.HandleCreate)
	api.PATCH("/events/:id", events.HandleUpdate)
	api.DELETE("/events/:id", events.HandleDelete)
	api.POST("/events/:id/complete", events.HandleComplete)
	api.POST("/events/:id/restore", events.HandleRestore)
	api.GET("/trash", events.HandleTrash)
	api.DELETE("/trash", events.HandleEmptyTrash)
	api.DELETE("/trash/:id", events.HandlePurge)
	api.GET("/export.ics", calendar.HandleExport)
	api.POST("/import", calendar.HandleImport)
	api.POST("/agenda/send", agenda.HandleSend)
	api.GET("/analytics", stats.HandleSummary)

	if deps.Assistant != nil {
		chat := NewChatHandler(deps.Assistant, deps.Logger)
		api.POST("/chat", chat.HandleChat)
		api.GET("/chat/messages", chat.HandleHistory)
	}

	if deps.OAuth != nil {
		auth := NewAuthHandler(deps.OAuth, deps.Logger)
		router.GET("/auth/google", auth.HandleGoogleLogin)
		router.GET("/auth/callback", auth.HandleGoogleCallback)
	}

	return router, nil
}

func ginMode(environment string) string {
	switch environment {
	case "development":
		return gin.DebugMode
	case "test":
		return gin.TestMode
	default:
		return gin.ReleaseMode
	}
}

func writeError(c *gin.Context, status int, message string) {
	c.JSON(status, gin.H{"error": message})
}

// writeServiceError maps usecase errors onto HTTP statuses.
func writeServiceError(c *gin.Context, logger *zap.Logger, op string, err error) {
	var validation *usecases.ValidationError
	switch {
	case errors.As(err, &validation):
		c.JSON(http.StatusBadRequest, gin.H{"error": usecases.ErrInvalidDefinition.Error(), "fields": validation.Fields})
	case errors.Is(err, usecases.ErrEventNotFound):
		writeError(c, http.StatusNotFound, usecases.ErrEventNotFound.Error())
	default:
		logger.Error("request failed", zap.String("op", op), zap.Error(err))
		writeError(c, http.StatusInternalServerError, "internal error")
	}
}
