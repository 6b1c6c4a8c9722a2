package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	appuser "github.com/dealdeskhq/dealdesk/internal/application/user"
	domainorg "github.com/dealdeskhq/dealdesk/internal/domain/organization"
	"github.com/dealdeskhq/dealdesk/internal/infrastructure/monitoring/logging"
	"github.com/dealdeskhq/dealdesk/pkg/errors"
	"github.com/dealdeskhq/dealdesk/pkg/types/common"
)

// UserHandler serves profile, organization, and referral routes.
type UserHandler struct {
	users  appuser.Service
	logger logging.Logger
}

func NewUserHandler(users appuser.Service, log logging.Logger) *UserHandler {
	return &UserHandler{users: users, logger: log}
}

func (h *UserHandler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/me", h.GetProfile)
	rg.PUT("/me", h.UpdateProfile)
	rg.POST("/organizations", h.CreateOrganization)
	rg.GET("/organizations/:id/members", h.ListMembers)
	rg.POST("/organizations/:id/members", h.AddMember)
	rg.DELETE("/organizations/:id/members/:userID", h.RemoveMember)
	rg.POST("/referrals", h.CreateReferral)
	rg.GET("/referrals", h.ListReferrals)
}

func (h *UserHandler) GetProfile(c *gin.Context) {
	identity, ok := callerIdentity(c)
	if !ok {
		return
	}
	u, err := h.users.GetProfile(c.Request.Context(), common.UserID(identity.UserID))
	if err != nil {
		respondError(c, err)
		return
	}
	respondJSON(c, http.StatusOK, u)
}

func (h *UserHandler) UpdateProfile(c *gin.Context) {
	identity, ok := callerIdentity(c)
	if !ok {
		return
	}
	var input appuser.ProfileInput
	if err := c.ShouldBindJSON(&input); err != nil {
		respondError(c, errors.InvalidParam("invalid request body").WithCause(err))
		return
	}
	u, err := h.users.UpdateProfile(c.Request.Context(), common.UserID(identity.UserID), &input)
	if err != nil {
		respondError(c, err)
		return
	}
	respondJSON(c, http.StatusOK, u)
}

type createOrganizationRequest struct {
	Name string `json:"name" binding:"required"`
}

func (h *UserHandler) CreateOrganization(c *gin.Context) {
	identity, ok := callerIdentity(c)
	if !ok {
		return
	}
	var req createOrganizationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, errors.InvalidParam("organization name is required").WithCause(err))
		return
	}
	org, err := h.users.CreateOrganization(c.Request.Context(), common.UserID(identity.UserID), req.Name)
	if err != nil {
		respondError(c, err)
		return
	}
	respondJSON(c, http.StatusCreated, org)
}

func (h *UserHandler) ListMembers(c *gin.Context) {
	identity, ok := callerIdentity(c)
	if !ok {
		return
	}
	members, err := h.users.ListMembers(c.Request.Context(), common.UserID(identity.UserID), common.OrgID(c.Param("id")))
	if err != nil {
		respondError(c, err)
		return
	}
	respondJSON(c, http.StatusOK, gin.H{"members": members, "count": len(members)})
}

type addMemberRequest struct {
	UserID common.UserID `json:"user_id" binding:"required"`
	Role   string        `json:"role" binding:"required"`
}

func (h *UserHandler) AddMember(c *gin.Context) {
	identity, ok := callerIdentity(c)
	if !ok {
		return
	}
	var req addMemberRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, errors.InvalidParam("user_id and role are required").WithCause(err))
		return
	}
	err := h.users.AddMember(c.Request.Context(), common.UserID(identity.UserID), common.OrgID(c.Param("id")), req.UserID, domainorg.Role(req.Role))
	if err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *UserHandler) RemoveMember(c *gin.Context) {
	identity, ok := callerIdentity(c)
	if !ok {
		return
	}
	err := h.users.RemoveMember(c.Request.Context(), common.UserID(identity.UserID), common.OrgID(c.Param("id")), common.UserID(c.Param("userID")))
	if err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *UserHandler) CreateReferral(c *gin.Context) {
	identity, ok := callerIdentity(c)
	if !ok {
		return
	}
	var input appuser.ReferralInput
	if err := c.ShouldBindJSON(&input); err != nil {
		respondError(c, errors.InvalidParam("invalid request body").WithCause(err))
		return
	}
	referral, err := h.users.CreateReferral(c.Request.Context(), common.UserID(identity.UserID), &input)
	if err != nil {
		respondError(c, err)
		return
	}
	respondJSON(c, http.StatusCreated, referral)
}

func (h *UserHandler) ListReferrals(c *gin.Context) {
	identity, ok := callerIdentity(c)
	if !ok {
		return
	}
	referrals, err := h.users.ListReferrals(c.Request.Context(), common.UserID(identity.UserID))
	if err != nil {
		respondError(c, err)
		return
	}
	respondJSON(c, http.StatusOK, gin.H{"referrals": referrals, "count": len(referrals)})
}
