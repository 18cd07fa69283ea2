package handler

import (
	"errors"
	"log/slog"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/doculedger-governance/internal/api_gateway/middleware"
	"github.com/doculedger-governance/internal/api_gateway/service"
	"github.com/doculedger-governance/internal/domain/ledger"
)

// LedgerHandler handles proposal and ledger query endpoints
type LedgerHandler struct {
	ledgerService service.LedgerService
	logger        *slog.Logger
}

// NewLedgerHandler creates a new ledger handler
func NewLedgerHandler(ledgerService service.LedgerService, logger *slog.Logger) *LedgerHandler {
	return &LedgerHandler{
		ledgerService: ledgerService,
		logger:        logger,
	}
}

// GetCurrentProposal handles GET /api/v1/jobs/:id/proposal
func (h *LedgerHandler) GetCurrentProposal(c *gin.Context) {
	jobID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		RespondBadRequest(c, "Invalid job ID", "Job ID must be a valid UUID")
		return
	}

	p, err := h.ledgerService.GetCurrentProposal(c.Request.Context(), jobID)
	if err != nil {
		h.logger.Error("Failed to get current proposal",
			"error", err,
			"job_id", jobID,
			"correlation_id", middleware.GetCorrelationID(c))
		RespondInternalError(c, "Failed to retrieve proposal")
		return
	}
	if p == nil {
		RespondNotFound(c, "No current proposal for job")
		return
	}

	RespondOK(c, mapProposalToResponse(p))
}

// GetLedgerEntries handles GET /api/v1/jobs/:id/ledger
func (h *LedgerHandler) GetLedgerEntries(c *gin.Context) {
	jobID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		RespondBadRequest(c, "Invalid job ID", "Job ID must be a valid UUID")
		return
	}

	entries, err := h.ledgerService.GetEntriesByJob(c.Request.Context(), jobID)
	if err != nil {
		h.logger.Error("Failed to get ledger entries",
			"error", err,
			"job_id", jobID,
			"correlation_id", middleware.GetCorrelationID(c))
		RespondInternalError(c, "Failed to retrieve ledger entries")
		return
	}

	responses := make([]LedgerEntryResponse, 0, len(entries))
	for _, e := range entries {
		responses = append(responses, mapLedgerEntryToResponse(e))
	}
	RespondOK(c, responses)
}

// ReverseEntry handles POST /api/v1/ledger/:id/reverse
func (h *LedgerHandler) ReverseEntry(c *gin.Context) {
	entryID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		RespondBadRequest(c, "Invalid entry ID", "Entry ID must be a valid UUID")
		return
	}

	var req ReverseEntryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondBadRequest(c, "Invalid request body", err.Error())
		return
	}

	reversal, err := h.ledgerService.Reverse(c.Request.Context(), entryID, req.Actor, middleware.GetCorrelationID(c))
	if err != nil {
		switch {
		case errors.Is(err, ledger.ErrEntryNotFound{}):
			RespondNotFound(c, "Ledger entry not found")
		case errors.Is(err, service.ErrAlreadyReversed):
			RespondConflict(c, "Ledger entry already reversed")
		default:
			h.logger.Error("Failed to reverse ledger entry",
				"error", err,
				"entry_id", entryID,
				"correlation_id", middleware.GetCorrelationID(c))
			RespondInternalError(c, "Failed to reverse ledger entry")
		}
		return
	}

	RespondCreated(c, mapLedgerEntryToResponse(reversal))
}
