package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/doculedger-governance/internal/api_gateway/middleware"
	"github.com/doculedger-governance/internal/api_gateway/service"
	"github.com/doculedger-governance/internal/domain/approval"
)

// ApprovalHandler handles the review inbox endpoints
type ApprovalHandler struct {
	approvalService service.ApprovalService
	logger          *slog.Logger
}

// NewApprovalHandler creates a new approval handler
func NewApprovalHandler(approvalService service.ApprovalService, logger *slog.Logger) *ApprovalHandler {
	return &ApprovalHandler{
		approvalService: approvalService,
		logger:          logger,
	}
}

// ListPending handles GET /api/v1/approvals
func (h *ApprovalHandler) ListPending(c *gin.Context) {
	var pagination PaginationParams
	if err := c.ShouldBindQuery(&pagination); err != nil {
		RespondBadRequest(c, "Invalid pagination parameters", err.Error())
		return
	}

	approvals, total, err := h.approvalService.ListPending(c.Request.Context(), pagination.Page, pagination.PerPage)
	if err != nil {
		h.logger.Error("Failed to list pending approvals",
			"error", err,
			"correlation_id", middleware.GetCorrelationID(c))
		RespondInternalError(c, "Failed to retrieve approvals")
		return
	}

	responses := make([]ApprovalResponse, 0, len(approvals))
	for _, a := range approvals {
		responses = append(responses, mapApprovalToResponse(a))
	}
	RespondWithPaginatedData(c, http.StatusOK, responses, pagination.Page, pagination.PerPage, int(total))
}

// DecideApproval handles POST /api/v1/approvals/:id/decision
func (h *ApprovalHandler) DecideApproval(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		RespondBadRequest(c, "Invalid approval ID", "Approval ID must be a valid UUID")
		return
	}

	var req DecideApprovalRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondBadRequest(c, "Invalid request body", err.Error())
		return
	}

	decided, err := h.approvalService.Decide(c.Request.Context(), id,
		req.Decision == "approve", req.Approver, req.Comment, middleware.GetCorrelationID(c))
	if err != nil {
		switch {
		case errors.Is(err, approval.ErrApprovalNotFound{}):
			RespondNotFound(c, "Approval not found")
		case errors.Is(err, approval.ErrAlreadyDecided{}):
			RespondConflict(c, "Approval already decided")
		default:
			h.logger.Error("Failed to decide approval",
				"error", err,
				"approval_id", id,
				"correlation_id", middleware.GetCorrelationID(c))
			RespondInternalError(c, "Failed to apply decision")
		}
		return
	}

	RespondOK(c, mapApprovalToResponse(decided))
}

func mapApprovalToResponse(a *approval.Approval) ApprovalResponse {
	response := ApprovalResponse{
		ID:         a.ID.String(),
		ProposalID: a.ProposalID.String(),
		JobID:      a.JobID.String(),
		Status:     string(a.Status),
		Approver:   a.Approver,
		Comment:    a.Comment,
		CreatedAt:  a.CreatedAt.Format(time.RFC3339),
	}
	if a.DecidedAt != nil {
		response.DecidedAt = a.DecidedAt.Format(time.RFC3339)
	}
	return response
}
