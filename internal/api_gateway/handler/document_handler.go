package handler

import (
	"log/slog"

	"github.com/gin-gonic/gin"

	"github.com/doculedger-governance/internal/api_gateway/middleware"
	"github.com/doculedger-governance/internal/api_gateway/service"
	"github.com/doculedger-governance/internal/domain/shared"
)

const idempotencyKeyHeader = "Idempotency-Key"

// DocumentHandler handles document upload and journal submission endpoints
type DocumentHandler struct {
	documentService service.DocumentService
	logger          *slog.Logger
}

// NewDocumentHandler creates a new document handler
func NewDocumentHandler(documentService service.DocumentService, logger *slog.Logger) *DocumentHandler {
	return &DocumentHandler{
		documentService: documentService,
		logger:          logger,
	}
}

// UploadDocument handles POST /api/v1/documents
func (h *DocumentHandler) UploadDocument(c *gin.Context) {
	var req UploadDocumentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondBadRequest(c, "Invalid request body", err.Error())
		return
	}

	outcome, err := h.documentService.Upload(c.Request.Context(), &service.UploadRequest{
		TenantID:       req.TenantID,
		Bucket:         req.Bucket,
		ObjectKey:      req.ObjectKey,
		Checksum:       req.Checksum,
		IdempotencyKey: c.GetHeader(idempotencyKeyHeader),
	})
	if err != nil {
		// An in-flight idempotency key means another request is still
		// working on this upload. Tell the client to retry shortly.
		if shared.Classify(err) == shared.ClassConflict {
			RespondConflict(c, "Upload already in progress, retry later")
			return
		}
		h.logger.Error("Failed to register document",
			"error", err,
			"tenant_id", req.TenantID,
			"checksum", req.Checksum,
			"correlation_id", middleware.GetCorrelationID(c))
		RespondInternalError(c, "Failed to register document")
		return
	}

	response := UploadResponse{
		Job:       mapJobToResponse(outcome.Job),
		Duplicate: outcome.Duplicate,
		Replayed:  outcome.Replayed,
	}
	if outcome.Duplicate || outcome.Replayed {
		RespondOK(c, response)
		return
	}
	RespondCreated(c, response)
}

// SubmitJournal handles POST /api/v1/journals
func (h *DocumentHandler) SubmitJournal(c *gin.Context) {
	var msg shared.ProposedJournal
	if err := c.ShouldBindJSON(&msg); err != nil {
		RespondBadRequest(c, "Invalid request body", err.Error())
		return
	}
	if err := msg.Validate(); err != nil {
		RespondBadRequest(c, "Invalid proposed journal", err.Error())
		return
	}
	if msg.CorrelationID == "" {
		msg.CorrelationID = middleware.GetCorrelationID(c)
	}

	if err := h.documentService.SubmitJournal(c.Request.Context(), &msg); err != nil {
		if shared.Classify(err) == shared.ClassTerminal {
			RespondBadRequest(c, "Invalid proposed journal", err.Error())
			return
		}
		h.logger.Error("Failed to submit journal",
			"error", err,
			"job_id", msg.JobID,
			"correlation_id", middleware.GetCorrelationID(c))
		RespondInternalError(c, "Failed to submit journal")
		return
	}

	RespondAccepted(c, gin.H{"job_id": msg.JobID.String(), "status": "accepted"})
}
