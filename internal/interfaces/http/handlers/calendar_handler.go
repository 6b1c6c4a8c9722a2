package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	appcalendar "github.com/dealdeskhq/dealdesk/internal/application/calendar"
	"github.com/dealdeskhq/dealdesk/internal/infrastructure/monitoring/logging"
	"github.com/dealdeskhq/dealdesk/pkg/types/common"
)

// CalendarHandler serves the iCalendar export.
type CalendarHandler struct {
	calendar appcalendar.Service
	logger   logging.Logger
}

func NewCalendarHandler(calendar appcalendar.Service, log logging.Logger) *CalendarHandler {
	return &CalendarHandler{calendar: calendar, logger: log}
}

func (h *CalendarHandler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/calendar/events", h.ListEvents)
	rg.GET("/calendar/export.ics", h.ExportICS)
}

// ListEvents returns projected deadline events, optionally filtered to a
// day horizon and capped.
func (h *CalendarHandler) ListEvents(c *gin.Context) {
	identity, ok := callerIdentity(c)
	if !ok {
		return
	}
	withinDays, _ := strconv.Atoi(c.Query("within_days"))
	limit, _ := strconv.Atoi(c.Query("limit"))

	list, err := h.calendar.ListEvents(c.Request.Context(), common.UserID(identity.UserID), withinDays, limit)
	if err != nil {
		respondError(c, err)
		return
	}
	respondJSON(c, http.StatusOK, list)
}

// ExportICS streams the agent's deadline calendar. The payload is stable
// for unchanged data so calendar clients can poll it on a schedule.
func (h *CalendarHandler) ExportICS(c *gin.Context) {
	identity, ok := callerIdentity(c)
	if !ok {
		return
	}
	data, err := h.calendar.ExportICS(c.Request.Context(), common.UserID(identity.UserID))
	if err != nil {
		respondError(c, err)
		return
	}
	c.Header("Content-Disposition", `attachment; filename="dealdesk.ics"`)
	c.Data(http.StatusOK, "text/calendar; charset=utf-8", data)
}
