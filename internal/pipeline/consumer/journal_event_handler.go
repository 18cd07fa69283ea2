package consumer

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/doculedger-governance/internal/domain/shared"
	"github.com/doculedger-governance/internal/pipeline/service"
	"github.com/doculedger-governance/internal/platform/messaging/producers"
)

// JournalEventHandler handles incoming proposed journal messages from Kafka
type JournalEventHandler struct {
	processingService service.ProcessingService
	producer          producers.DeadLetterPublisher
	logger            *slog.Logger
}

// NewJournalEventHandler creates a new handler
func NewJournalEventHandler(
	logger *slog.Logger,
	processingService service.ProcessingService,
	producer producers.DeadLetterPublisher,
) *JournalEventHandler {
	return &JournalEventHandler{
		processingService: processingService,
		producer:          producer,
		logger:            logger,
	}
}

// HandleMessage processes Kafka messages
func (h *JournalEventHandler) HandleMessage(ctx context.Context, key []byte, value []byte) error {
	var msg shared.ProposedJournal
	if err := json.Unmarshal(value, &msg); err != nil {
		unmarshalErrorMsg := "Failed to unmarshal proposed journal from Kafka message"
		h.logger.Error(unmarshalErrorMsg,
			"error", err,
			"message_key", string(key),
		)

		// Send to DLQ if available
		if h.producer != nil {
			dlqReason := fmt.Sprintf("%s: %s", unmarshalErrorMsg, err.Error())
			if dlqErr := h.producer.PublishToDLQ(ctx, string(key), value, dlqReason); dlqErr != nil {
				h.logger.Error("Failed to publish message to DLQ after unmarshal error",
					"dlq_error", dlqErr,
					"original_error", err,
					"message_key", string(key),
				)
			} else {
				// Message handled, commit offset
				return nil
			}
		}
		// Allow Kafka retries
		return fmt.Errorf("failed to unmarshal message value: %w", err)
	}

	logger := h.logger
	if msg.CorrelationID != "" {
		logger = h.logger.With("correlation_id", msg.CorrelationID)
	}

	logger.Info("Received proposed journal for processing",
		"job_id", msg.JobID.String(),
		"vendor", msg.Vendor.Name,
		"entries", len(msg.Entries),
	)

	if err := h.processingService.ProcessJournal(ctx, &msg); err != nil {
		logger.Error("Failed to process proposed journal",
			"job_id", msg.JobID.String(),
			"error", err,
		)
		return fmt.Errorf("processing journal for job %s failed: %w", msg.JobID.String(), err)
	}

	return nil // Success, commit offset
}
