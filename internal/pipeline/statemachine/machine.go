package statemachine

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/doculedger-governance/internal/domain/audit"
	"github.com/doculedger-governance/internal/domain/job"
	"github.com/doculedger-governance/internal/domain/shared"
	"github.com/doculedger-governance/internal/platform/persistence"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// SideEffect runs inside the advance transaction after the state change is
// written but before commit. The outbox publisher and the ledger poster hook
// in here, so their writes are atomic with the transition.
type SideEffect func(ctx context.Context, tx pgx.Tx, j *job.Job) error

// AdvanceOptions carries the optional baggage of one transition
type AdvanceOptions struct {
	Actor             string
	TraceID           string
	Checkpoint        json.RawMessage
	LastError         string
	IncrementAttempts bool
	SideEffect        SideEffect
}

// Machine advances jobs along the lifecycle graph. Every advance loads the job
// under a row lock, checks edge legality, writes the new state, records the
// audit event, and runs the caller's side effect, all in one transaction.
type Machine struct {
	db     *persistence.PostgresDB
	jobs   job.Repository
	audit  audit.Recorder
	logger *slog.Logger
}

func NewMachine(logger *slog.Logger, db *persistence.PostgresDB, jobs job.Repository, recorder audit.Recorder) *Machine {
	return &Machine{
		db:     db,
		jobs:   jobs,
		audit:  recorder,
		logger: logger,
	}
}

// Advance moves the job to the target state. Requesting the state the job is
// already in is a no-op success, which makes redelivered messages and sweeper
// races harmless. An illegal edge returns ErrInvalidTransition.
func (m *Machine) Advance(ctx context.Context, jobID uuid.UUID, to shared.JobState, opts AdvanceOptions) (*job.Job, error) {
	var advanced *job.Job

	err := m.db.ExecuteTx(ctx, func(tx pgx.Tx) error {
		jobs := m.jobs.WithTx(tx)

		j, err := jobs.LockForUpdate(ctx, jobID)
		if err != nil {
			return err
		}

		if j.CurrentState == to {
			m.logger.Debug("State transition is a no-op",
				"job_id", jobID.String(),
				"state", string(to),
			)
			advanced = j
			return nil
		}

		if !CanTransition(j.CurrentState, to) {
			return job.ErrInvalidTransition{From: j.CurrentState, To: to}
		}

		from := j.CurrentState
		j.PreviousState = from
		j.CurrentState = to
		j.UpdatedAt = time.Now().UTC()
		if opts.Checkpoint != nil {
			j.CheckpointData = opts.Checkpoint
		}
		if opts.LastError != "" {
			j.LastError = opts.LastError
		}
		if opts.IncrementAttempts {
			j.Attempts++
		}

		if err := jobs.UpdateState(ctx, j); err != nil {
			return err
		}

		actor := opts.Actor
		if actor == "" {
			actor = "system"
		}
		if err := m.audit.WithTx(tx).Record(ctx, &audit.Event{
			Action:     "job.state_changed",
			EntityType: "job",
			EntityID:   jobID.String(),
			Actor:      actor,
			OldState:   string(from),
			NewState:   string(to),
			TraceID:    opts.TraceID,
		}); err != nil {
			return err
		}

		if opts.SideEffect != nil {
			if err := opts.SideEffect(ctx, tx, j); err != nil {
				return err
			}
		}

		advanced = j
		return nil
	})
	if err != nil {
		return nil, err
	}

	m.logger.Info("Job state advanced",
		"job_id", jobID.String(),
		"from", string(advanced.PreviousState),
		"to", string(advanced.CurrentState),
	)
	return advanced, nil
}
