package handlers

import (
	"net/http"
	"path/filepath"
	"strings"

	"github.com/gin-gonic/gin"

	appextraction "github.com/dealdeskhq/dealdesk/internal/application/extraction"
	"github.com/dealdeskhq/dealdesk/internal/infrastructure/monitoring/logging"
	"github.com/dealdeskhq/dealdesk/pkg/errors"
	"github.com/dealdeskhq/dealdesk/pkg/types/common"
)

// maxUploadBytes caps contract documents at 25 MB.
const maxUploadBytes = 25 << 20

var allowedDocumentTypes = map[string]bool{
	".pdf":  true,
	".png":  true,
	".jpg":  true,
	".jpeg": true,
}

// UploadHandler accepts contract documents and returns extraction drafts.
type UploadHandler struct {
	extraction appextraction.Service
	logger     logging.Logger
}

func NewUploadHandler(extraction appextraction.Service, log logging.Logger) *UploadHandler {
	return &UploadHandler{extraction: extraction, logger: log}
}

func (h *UploadHandler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("/documents", h.Upload)
	// Document keys contain slashes, so the key travels in the body rather
	// than the path.
	rg.POST("/documents/extract", h.ReExtract)
}

// Upload stores the document and runs extraction, returning a draft the
// client reviews before confirming as a contract.
func (h *UploadHandler) Upload(c *gin.Context) {
	identity, ok := callerIdentity(c)
	if !ok {
		return
	}

	file, header, err := c.Request.FormFile("document")
	if err != nil {
		respondError(c, errors.InvalidParam("document file is required").WithCause(err))
		return
	}
	defer file.Close()

	if header.Size > maxUploadBytes {
		respondError(c, errors.InvalidParam("document exceeds the 25 MB limit"))
		return
	}
	ext := strings.ToLower(filepath.Ext(header.Filename))
	if !allowedDocumentTypes[ext] {
		respondError(c, errors.New(errors.ErrCodeDocumentTypeInvalid, "unsupported document type").
			WithDetail(ext))
		return
	}

	contentType := header.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	draft, err := h.extraction.UploadAndExtract(c.Request.Context(),
		common.UserID(identity.UserID), header.Filename, contentType, file, header.Size)
	if err != nil {
		respondError(c, err)
		return
	}
	respondJSON(c, http.StatusOK, draft)
}

type reExtractRequest struct {
	DocumentKey string `json:"document_key" binding:"required"`
}

// ReExtract runs extraction again for an already stored document. The key
// must belong to the caller.
func (h *UploadHandler) ReExtract(c *gin.Context) {
	identity, ok := callerIdentity(c)
	if !ok {
		return
	}
	var req reExtractRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, errors.InvalidParam("document_key is required").WithCause(err))
		return
	}
	draft, err := h.extraction.ExtractFromDocument(c.Request.Context(),
		common.UserID(identity.UserID), req.DocumentKey)
	if err != nil {
		respondError(c, err)
		return
	}
	respondJSON(c, http.StatusOK, draft)
}
