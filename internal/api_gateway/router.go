package api_gateway

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/doculedger-governance/internal/api_gateway/handler"
	"github.com/doculedger-governance/internal/api_gateway/middleware"
)

// setupRouter configures API routes and middleware for the application
func setupRouter(
	logger *slog.Logger,
	r *gin.Engine,
	documentHandler *handler.DocumentHandler,
	jobHandler *handler.JobHandler,
	approvalHandler *handler.ApprovalHandler,
	ledgerHandler *handler.LedgerHandler,
) {
	r.Use(middleware.Recovery(logger))
	r.Use(middleware.Logger(logger))
	r.Use(middleware.CorrelationID())

	// API v1 endpoints
	v1 := r.Group("/api/v1")
	{
		// Document intake
		documents := v1.Group("/documents")
		{
			documents.POST("", documentHandler.UploadDocument)
		}
		v1.POST("/journals", documentHandler.SubmitJournal)

		// Job queries
		jobs := v1.Group("/jobs")
		{
			jobs.GET("/:id", jobHandler.GetJob)
			jobs.GET("", jobHandler.ListJobs)
			jobs.GET("/:id/audit", jobHandler.GetAuditTrail)
			jobs.GET("/:id/events", jobHandler.GetEvents)
			jobs.GET("/:id/proposal", ledgerHandler.GetCurrentProposal)
			jobs.GET("/:id/ledger", ledgerHandler.GetLedgerEntries)
		}

		// Review inbox
		approvals := v1.Group("/approvals")
		{
			approvals.GET("", approvalHandler.ListPending)
			approvals.POST("/:id/decision", approvalHandler.DecideApproval)
		}

		// Posted ledger
		ledger := v1.Group("/ledger")
		{
			ledger.POST("/:id/reverse", ledgerHandler.ReverseEntry)
		}
	}

	// Health check endpoint for monitoring
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "timestamp": time.Now().UTC()})
	})
}
