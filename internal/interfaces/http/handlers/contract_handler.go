package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	appcontract "github.com/dealdeskhq/dealdesk/internal/application/contract"
	domaincontract "github.com/dealdeskhq/dealdesk/internal/domain/contract"
	"github.com/dealdeskhq/dealdesk/internal/infrastructure/monitoring/logging"
	"github.com/dealdeskhq/dealdesk/pkg/errors"
	"github.com/dealdeskhq/dealdesk/pkg/types/common"
)

// ContractHandler serves the contract CRUD, lineage, and dashboard routes.
type ContractHandler struct {
	contracts appcontract.Service
	logger    logging.Logger
}

func NewContractHandler(contracts appcontract.Service, log logging.Logger) *ContractHandler {
	return &ContractHandler{contracts: contracts, logger: log}
}

// RegisterRoutes mounts the contract routes on the given group.
func (h *ContractHandler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("/contracts", h.Create)
	rg.GET("/contracts", h.List)
	rg.GET("/contracts/active", h.ActiveRecords)
	rg.GET("/contracts/:id", h.Get)
	rg.PUT("/contracts/:id", h.Update)
	rg.DELETE("/contracts/:id", h.Delete)
	rg.POST("/contracts/:id/counter-offers", h.CreateCounterOffer)
	rg.POST("/contracts/:id/sign", h.MarkSigned)
	rg.PUT("/contracts/:id/milestones/:milestone", h.CompleteMilestone)
	rg.POST("/contracts/:id/cancel", h.Cancel)
	rg.GET("/contracts/:id/transaction", h.GetTransaction)
	rg.GET("/dashboard", h.GetDashboard)
}

func (h *ContractHandler) Create(c *gin.Context) {
	identity, ok := callerIdentity(c)
	if !ok {
		return
	}
	var input appcontract.ContractInput
	if err := c.ShouldBindJSON(&input); err != nil {
		respondError(c, errors.InvalidParam("invalid request body").WithCause(err))
		return
	}
	created, err := h.contracts.Create(c.Request.Context(), common.UserID(identity.UserID), &input)
	if err != nil {
		respondError(c, err)
		return
	}
	respondJSON(c, http.StatusCreated, created)
}

func (h *ContractHandler) List(c *gin.Context) {
	identity, ok := callerIdentity(c)
	if !ok {
		return
	}
	filter := domaincontract.ListFilter{
		IncludeArchived: c.Query("include_archived") == "true",
		Pagination:      parsePagination(c),
	}
	if raw := c.Query("status"); raw != "" {
		for _, s := range strings.Split(raw, ",") {
			filter.Statuses = append(filter.Statuses, domaincontract.Status(strings.TrimSpace(s)))
		}
	}
	list, err := h.contracts.List(c.Request.Context(), common.UserID(identity.UserID), filter)
	if err != nil {
		respondError(c, err)
		return
	}
	respondJSON(c, http.StatusOK, gin.H{"contracts": list, "count": len(list)})
}

// ActiveRecords returns the record that currently governs each of the
// caller's transactions, with resolution provenance and any lineage issues.
func (h *ContractHandler) ActiveRecords(c *gin.Context) {
	identity, ok := callerIdentity(c)
	if !ok {
		return
	}
	actives, issues, err := h.contracts.ActiveRecords(c.Request.Context(), common.UserID(identity.UserID))
	if err != nil {
		respondError(c, err)
		return
	}
	respondJSON(c, http.StatusOK, gin.H{"active": actives, "issues": issues, "count": len(actives)})
}

func (h *ContractHandler) Get(c *gin.Context) {
	identity, ok := callerIdentity(c)
	if !ok {
		return
	}
	contract, err := h.contracts.Get(c.Request.Context(), common.UserID(identity.UserID), common.ID(c.Param("id")))
	if err != nil {
		respondError(c, err)
		return
	}
	respondJSON(c, http.StatusOK, contract)
}

func (h *ContractHandler) Update(c *gin.Context) {
	identity, ok := callerIdentity(c)
	if !ok {
		return
	}
	var input appcontract.ContractInput
	if err := c.ShouldBindJSON(&input); err != nil {
		respondError(c, errors.InvalidParam("invalid request body").WithCause(err))
		return
	}
	updated, err := h.contracts.Update(c.Request.Context(), common.UserID(identity.UserID), common.ID(c.Param("id")), &input)
	if err != nil {
		respondError(c, err)
		return
	}
	respondJSON(c, http.StatusOK, updated)
}

func (h *ContractHandler) Delete(c *gin.Context) {
	identity, ok := callerIdentity(c)
	if !ok {
		return
	}
	if err := h.contracts.Delete(c.Request.Context(), common.UserID(identity.UserID), common.ID(c.Param("id"))); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *ContractHandler) CreateCounterOffer(c *gin.Context) {
	identity, ok := callerIdentity(c)
	if !ok {
		return
	}
	var input appcontract.ContractInput
	if err := c.ShouldBindJSON(&input); err != nil {
		respondError(c, errors.InvalidParam("invalid request body").WithCause(err))
		return
	}
	created, err := h.contracts.CreateCounterOffer(c.Request.Context(), common.UserID(identity.UserID), common.ID(c.Param("id")), &input)
	if err != nil {
		respondError(c, err)
		return
	}
	respondJSON(c, http.StatusCreated, created)
}

type markSignedRequest struct {
	SignatureDate common.Date `json:"signature_date"`
}

func (h *ContractHandler) MarkSigned(c *gin.Context) {
	identity, ok := callerIdentity(c)
	if !ok {
		return
	}
	var req markSignedRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, errors.InvalidParam("invalid request body").WithCause(err))
		return
	}
	signed, err := h.contracts.MarkSigned(c.Request.Context(), common.UserID(identity.UserID), common.ID(c.Param("id")), req.SignatureDate)
	if err != nil {
		respondError(c, err)
		return
	}
	respondJSON(c, http.StatusOK, signed)
}

type completeMilestoneRequest struct {
	Completed bool `json:"completed"`
}

func (h *ContractHandler) CompleteMilestone(c *gin.Context) {
	identity, ok := callerIdentity(c)
	if !ok {
		return
	}
	milestone, err := domaincontract.ParseMilestone(c.Param("milestone"))
	if err != nil {
		respondError(c, err)
		return
	}
	var req completeMilestoneRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, errors.InvalidParam("invalid request body").WithCause(err))
		return
	}
	updated, err := h.contracts.CompleteMilestone(c.Request.Context(), common.UserID(identity.UserID), common.ID(c.Param("id")), milestone, req.Completed)
	if err != nil {
		respondError(c, err)
		return
	}
	respondJSON(c, http.StatusOK, updated)
}

func (h *ContractHandler) Cancel(c *gin.Context) {
	identity, ok := callerIdentity(c)
	if !ok {
		return
	}
	cancelled, err := h.contracts.Cancel(c.Request.Context(), common.UserID(identity.UserID), common.ID(c.Param("id")))
	if err != nil {
		respondError(c, err)
		return
	}
	respondJSON(c, http.StatusOK, cancelled)
}

func (h *ContractHandler) GetTransaction(c *gin.Context) {
	identity, ok := callerIdentity(c)
	if !ok {
		return
	}
	view, err := h.contracts.GetTransaction(c.Request.Context(), common.UserID(identity.UserID), common.ID(c.Param("id")))
	if err != nil {
		respondError(c, err)
		return
	}
	respondJSON(c, http.StatusOK, view)
}

func (h *ContractHandler) GetDashboard(c *gin.Context) {
	identity, ok := callerIdentity(c)
	if !ok {
		return
	}
	dashboard, err := h.contracts.GetDashboard(c.Request.Context(), common.UserID(identity.UserID))
	if err != nil {
		respondError(c, err)
		return
	}
	respondJSON(c, http.StatusOK, dashboard)
}
