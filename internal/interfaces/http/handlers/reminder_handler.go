package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	appreminder "github.com/dealdeskhq/dealdesk/internal/application/reminder"
	domaincontract "github.com/dealdeskhq/dealdesk/internal/domain/contract"
	"github.com/dealdeskhq/dealdesk/internal/infrastructure/monitoring/logging"
	"github.com/dealdeskhq/dealdesk/pkg/errors"
	"github.com/dealdeskhq/dealdesk/pkg/types/common"
)

// ReminderHandler serves reminder settings and the manual scan trigger.
type ReminderHandler struct {
	reminders appreminder.Service
	logger    logging.Logger
}

func NewReminderHandler(reminders appreminder.Service, log logging.Logger) *ReminderHandler {
	return &ReminderHandler{reminders: reminders, logger: log}
}

func (h *ReminderHandler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/reminders/settings", h.GetSettings)
	rg.PUT("/reminders/settings", h.UpdateSettings)
	rg.POST("/reminders/scan", h.Scan)
	rg.POST("/reminders/send", h.SendTimelines)
}

func (h *ReminderHandler) GetSettings(c *gin.Context) {
	identity, ok := callerIdentity(c)
	if !ok {
		return
	}
	settings, err := h.reminders.GetSettings(c.Request.Context(), common.UserID(identity.UserID))
	if err != nil {
		respondError(c, err)
		return
	}
	respondJSON(c, http.StatusOK, settings)
}

type updateSettingsRequest struct {
	Offsets map[string][]int `json:"offsets"`
}

func (h *ReminderHandler) UpdateSettings(c *gin.Context) {
	identity, ok := callerIdentity(c)
	if !ok {
		return
	}
	var req updateSettingsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, errors.InvalidParam("invalid request body").WithCause(err))
		return
	}

	settings := &domaincontract.ReminderSettings{
		UserID:  common.UserID(identity.UserID),
		Offsets: make(map[domaincontract.Milestone][]int, len(req.Offsets)),
	}
	for name, offsets := range req.Offsets {
		m, err := domaincontract.ParseMilestone(name)
		if err != nil {
			respondError(c, err)
			return
		}
		settings.Offsets[m] = offsets
	}

	if err := h.reminders.UpdateSettings(c.Request.Context(), settings); err != nil {
		respondError(c, err)
		return
	}
	respondJSON(c, http.StatusOK, settings)
}

// SendTimelines composes a deadline-timeline email for the client of every
// emailable active record the caller owns and delivers them, returning one
// result per recipient so partial failures stay visible.
func (h *ReminderHandler) SendTimelines(c *gin.Context) {
	identity, ok := callerIdentity(c)
	if !ok {
		return
	}
	results, err := h.reminders.SendClientTimelines(c.Request.Context(), common.UserID(identity.UserID))
	if err != nil {
		respondError(c, err)
		return
	}
	sent := 0
	for _, r := range results {
		if r.Sent {
			sent++
		}
	}
	respondJSON(c, http.StatusOK, gin.H{"results": results, "sent": sent, "failed": len(results) - sent})
}

// Scan runs the reminder sweep on demand. With dry_run=true it reports
// what would be sent without publishing anything.
func (h *ReminderHandler) Scan(c *gin.Context) {
	if _, ok := callerIdentity(c); !ok {
		return
	}
	dryRun := c.Query("dry_run") == "true"
	report, err := h.reminders.Scan(c.Request.Context(), dryRun)
	if err != nil {
		respondError(c, err)
		return
	}
	respondJSON(c, http.StatusOK, report)
}
