package handler

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/doculedger-governance/internal/api_gateway/middleware"
	"github.com/doculedger-governance/internal/api_gateway/service"
	"github.com/doculedger-governance/internal/domain/audit"
	"github.com/doculedger-governance/internal/domain/outbox"
)

// JobHandler handles job query endpoints
type JobHandler struct {
	jobService service.JobService
	logger     *slog.Logger
}

// NewJobHandler creates a new job handler
func NewJobHandler(jobService service.JobService, logger *slog.Logger) *JobHandler {
	return &JobHandler{
		jobService: jobService,
		logger:     logger,
	}
}

// GetJob handles GET /api/v1/jobs/:id
func (h *JobHandler) GetJob(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		RespondBadRequest(c, "Invalid job ID", "Job ID must be a valid UUID")
		return
	}

	j, err := h.jobService.GetJob(c.Request.Context(), id)
	if err != nil {
		h.logger.Error("Failed to get job",
			"error", err,
			"job_id", id,
			"correlation_id", middleware.GetCorrelationID(c))
		RespondInternalError(c, "Failed to retrieve job")
		return
	}
	if j == nil {
		RespondNotFound(c, "Job not found")
		return
	}

	RespondOK(c, mapJobToResponse(j))
}

// ListJobs handles GET /api/v1/jobs
func (h *JobHandler) ListJobs(c *gin.Context) {
	tenantID := c.Query("tenant_id")
	if tenantID == "" {
		RespondBadRequest(c, "Missing tenant_id", "Query parameter tenant_id is required")
		return
	}

	var pagination PaginationParams
	if err := c.ShouldBindQuery(&pagination); err != nil {
		RespondBadRequest(c, "Invalid pagination parameters", err.Error())
		return
	}

	jobs, total, err := h.jobService.ListJobs(c.Request.Context(), tenantID, pagination.Page, pagination.PerPage)
	if err != nil {
		h.logger.Error("Failed to list jobs",
			"error", err,
			"tenant_id", tenantID,
			"correlation_id", middleware.GetCorrelationID(c))
		RespondInternalError(c, "Failed to retrieve jobs")
		return
	}

	responses := make([]JobResponse, 0, len(jobs))
	for _, j := range jobs {
		responses = append(responses, mapJobToResponse(j))
	}
	RespondWithPaginatedData(c, http.StatusOK, responses, pagination.Page, pagination.PerPage, int(total))
}

// GetAuditTrail handles GET /api/v1/jobs/:id/audit
func (h *JobHandler) GetAuditTrail(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		RespondBadRequest(c, "Invalid job ID", "Job ID must be a valid UUID")
		return
	}

	var pagination PaginationParams
	if err := c.ShouldBindQuery(&pagination); err != nil {
		RespondBadRequest(c, "Invalid pagination parameters", err.Error())
		return
	}

	events, err := h.jobService.GetAuditTrail(c.Request.Context(), "job", id.String(), pagination.Page, pagination.PerPage)
	if err != nil {
		h.logger.Error("Failed to get audit trail",
			"error", err,
			"job_id", id,
			"correlation_id", middleware.GetCorrelationID(c))
		RespondInternalError(c, "Failed to retrieve audit trail")
		return
	}

	responses := make([]AuditEventResponse, 0, len(events))
	for _, e := range events {
		responses = append(responses, mapAuditEventToResponse(e))
	}
	RespondOK(c, responses)
}

// GetEvents handles GET /api/v1/jobs/:id/events
func (h *JobHandler) GetEvents(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		RespondBadRequest(c, "Invalid job ID", "Job ID must be a valid UUID")
		return
	}

	events, err := h.jobService.GetEvents(c.Request.Context(), "job", id.String())
	if err != nil {
		h.logger.Error("Failed to get outbox events",
			"error", err,
			"job_id", id,
			"correlation_id", middleware.GetCorrelationID(c))
		RespondInternalError(c, "Failed to retrieve events")
		return
	}

	responses := make([]gin.H, 0, len(events))
	for _, e := range events {
		responses = append(responses, mapOutboxEventToResponse(e))
	}
	RespondOK(c, responses)
}

func mapAuditEventToResponse(e *audit.Event) AuditEventResponse {
	return AuditEventResponse{
		ID:         e.ID,
		Action:     e.Action,
		EntityType: e.EntityType,
		EntityID:   e.EntityID,
		Actor:      e.Actor,
		OldState:   e.OldState,
		NewState:   e.NewState,
		TraceID:    e.TraceID,
		CreatedAt:  e.CreatedAt.Format(time.RFC3339),
	}
}

func mapOutboxEventToResponse(e *outbox.Event) gin.H {
	return gin.H{
		"event_id":     e.EventID.String(),
		"event_type":   e.EventType,
		"status":       string(e.Status),
		"attempts":     e.Attempts,
		"scheduled_at": e.ScheduledAt.Format(time.RFC3339),
		"created_at":   e.CreatedAt.Format(time.RFC3339),
	}
}
