// Package handlers contains the HTTP handlers for the REST API.
package handlers

import (
	stderrors "errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/dealdeskhq/dealdesk/internal/infrastructure/auth"
	"github.com/dealdeskhq/dealdesk/internal/interfaces/http/middleware"
	"github.com/dealdeskhq/dealdesk/pkg/errors"
	"github.com/dealdeskhq/dealdesk/pkg/types/common"
)

// errorResponse is the JSON body returned for every failed request.
type errorResponse struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	Detail    string `json:"detail,omitempty"`
	RequestID string `json:"request_id,omitempty"`
}

func respondJSON(c *gin.Context, status int, body interface{}) {
	c.JSON(status, body)
}

// respondError maps application error codes onto HTTP statuses. Unknown
// and internal errors are masked so storage details never leak to clients.
func respondError(c *gin.Context, err error) {
	code := errors.GetCode(err)
	status := statusForCode(code)

	msg := err.Error()
	detail := ""
	var appErr *errors.AppError
	if stderrors.As(err, &appErr) {
		msg = appErr.Message
		detail = appErr.Detail
	}
	if status == http.StatusInternalServerError {
		msg = "internal server error"
		detail = ""
	}

	c.AbortWithStatusJSON(status, errorResponse{
		Code:      string(code),
		Message:   msg,
		Detail:    detail,
		RequestID: c.GetString(middleware.ContextRequestID),
	})
}

func statusForCode(code errors.ErrorCode) int {
	switch code {
	case errors.ErrCodeNotFound,
		errors.ErrCodeContractNotFound,
		errors.ErrCodeDocumentNotFound,
		errors.ErrCodeUserNotFound,
		errors.ErrCodeOrgNotFound:
		return http.StatusNotFound
	case errors.ErrCodeBadRequest,
		errors.ErrCodeValidation,
		errors.ErrCodeMilestoneUnknown,
		errors.ErrCodeMilestoneDateMissing,
		errors.ErrCodeDocumentTypeInvalid,
		errors.ErrCodeReminderConfigInvalid,
		errors.ErrCodeEmailAddressInvalid,
		errors.ErrCodeNotACounterOffer:
		return http.StatusBadRequest
	case errors.ErrCodeConflict,
		errors.ErrCodeContractCancelled,
		errors.ErrCodeContractStatusInvalid,
		errors.ErrCodeDuplicateOfferNumber,
		errors.ErrCodeCounterOfferOnAmendment,
		errors.ErrCodeMemberAlreadyExists:
		return http.StatusConflict
	case errors.ErrCodeUnauthorized:
		return http.StatusUnauthorized
	case errors.ErrCodeForbidden,
		errors.ErrCodeNotOrgMember:
		return http.StatusForbidden
	case errors.ErrCodeTooManyRequests:
		return http.StatusTooManyRequests
	case errors.ErrCodeServiceUnavailable:
		return http.StatusServiceUnavailable
	case errors.ErrCodeTimeout,
		errors.ErrCodeExtractionTimeout:
		return http.StatusGatewayTimeout
	case errors.ErrCodeExternalService,
		errors.ErrCodeExtractionFailed,
		errors.ErrCodeEmailSendFailed:
		return http.StatusBadGateway
	case errors.ErrCodeVerificationFailed,
		errors.ErrCodeNoEmailableContracts:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

// callerIdentity returns the authenticated identity or writes a 401.
func callerIdentity(c *gin.Context) (auth.Identity, bool) {
	id, ok := middleware.IdentityFrom(c)
	if !ok {
		respondError(c, errors.Unauthorized("authentication required"))
		return auth.Identity{}, false
	}
	return id, true
}

func parsePagination(c *gin.Context) common.Pagination {
	p := common.Pagination{}
	if n, err := strconv.Atoi(c.Query("page")); err == nil {
		p.Page = n
	}
	if n, err := strconv.Atoi(c.Query("page_size")); err == nil {
		p.PageSize = n
	}
	p.Normalize()
	return p
}
