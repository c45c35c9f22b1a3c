package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"smart_agenda/internal/analytics"
	"smart_agenda/internal/usecases"
)

type AnalyticsHandler struct {
	scheduler *usecases.Scheduler
	loc       *time.Location
	clock     func() time.Time
}

func NewAnalyticsHandler(scheduler *usecases.Scheduler, loc *time.Location, clock func() time.Time) *AnalyticsHandler {
	return &AnalyticsHandler{
		scheduler: scheduler,
		loc:       loc,
		clock:     clock,
	}
}

// GET /api/analytics
func (h *AnalyticsHandler) HandleSummary(c *gin.Context) {
	c.JSON(http.StatusOK, analytics.Build(h.scheduler.Events(), h.clock().In(h.loc)))
}
