package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"smart_agenda/internal/ical"
	"smart_agenda/internal/usecases"
)

const maxICSBodyBytes int64 = 5 << 20

type ICSHandler struct {
	scheduler *usecases.Scheduler
	loc       *time.Location
	logger    *zap.Logger
	clock     func() time.Time
}

func NewICSHandler(scheduler *usecases.Scheduler, loc *time.Location, logger *zap.Logger, clock func() time.Time) *ICSHandler {
	return &ICSHandler{
		scheduler: scheduler,
		loc:       loc,
		logger:    logger,
		clock:     clock,
	}
}

// GET /api/export.ics[?collapse=1]
func (h *ICSHandler) HandleExport(c *gin.Context) {
	op := "internal/handlers/ical.go HandleExport"

	opts := ical.ExportOptions{
		CollapseSeries: c.Query("collapse") == "1" || c.Query("collapse") == "true",
		Location:       h.loc,
		Now:            h.clock(),
	}

	c.Header("Content-Type", "text/calendar; charset=utf-8")
	c.Header("Content-Disposition", `attachment; filename="smart-agenda.ics"`)
	c.Status(http.StatusOK)
	if err := ical.WriteTo(c.Writer, h.scheduler.Events(), opts); err != nil {
		h.logger.Error("export failed", zap.String("op", op), zap.Error(err))
	}
}

// POST /api/import with a text/calendar body
func (h *ICSHandler) HandleImport(c *gin.Context) {
	op := "internal/handlers/ical.go HandleImport"

	body := http.MaxBytesReader(c.Writer, c.Request.Body, maxICSBodyBytes)
	defs, err := ical.Import(body, h.loc)
	if err != nil {
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			writeError(c, http.StatusRequestEntityTooLarge, "request body too large")
			return
		}
		writeError(c, http.StatusBadRequest, "invalid calendar")
		return
	}

	results, err := h.scheduler.AddBatch(c.Request.Context(), defs)
	if err != nil {
		writeServiceError(c, h.logger, op, err)
		return
	}

	imported := 0
	for _, res := range results {
		imported += len(res.Events)
	}
	h.logger.Info("calendar imported", zap.Int("definitions", len(defs)), zap.Int("events", imported))

	c.JSON(http.StatusOK, gin.H{"imported": imported, "results": results})
}
