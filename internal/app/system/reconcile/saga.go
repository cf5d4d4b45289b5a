// internal/app/system/reconcile/saga.go
package reconcile

import (
	"context"
	"time"

	"github.com/dalemusser/projecttracker/internal/domain/models"
	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

// Run operations.
const (
	OpCreate       = "create"
	OpUpdate       = "update"
	OpCompleteTask = "complete_task"
	OpDelete       = "delete"
	OpRepair       = "repair"
)

// SagaStore persists one record per reconciliation run.
type SagaStore interface {
	Begin(ctx context.Context, rec models.Reconciliation) error
	Finish(ctx context.Context, rec models.Reconciliation) error
	ListPartial(ctx context.Context, limit int64) ([]models.Reconciliation, error)
	MarkRepaired(ctx context.Context, runID string, at time.Time) error
}

// Metrics receives run outcomes. The Prometheus collector implements it.
type Metrics interface {
	ObserveRun(op, state string, d time.Duration)
	AddUserWrites(op string, ok, failed int)
}

type nopSagas struct{}

func (nopSagas) Begin(context.Context, models.Reconciliation) error  { return nil }
func (nopSagas) Finish(context.Context, models.Reconciliation) error { return nil }
func (nopSagas) ListPartial(context.Context, int64) ([]models.Reconciliation, error) {
	return nil, nil
}
func (nopSagas) MarkRepaired(context.Context, string, time.Time) error { return nil }

type nopMetrics struct{}

func (nopMetrics) ObserveRun(string, string, time.Duration) {}
func (nopMetrics) AddUserWrites(string, int, int)           {}

// run tracks the steps of one reconciliation while it executes.
type run struct {
	rec        models.Reconciliation
	start      time.Time
	projectErr error
	goneErr    error
	failures   []UserFailure
	attempted  map[primitive.ObjectID]struct{}
	ok         int
}

func (r *Reconciler) begin(ctx context.Context, op string, projectID primitive.ObjectID) *run {
	now := r.now()
	s := &run{
		rec: models.Reconciliation{
			RunID:     uuid.NewString(),
			Operation: op,
			ProjectID: projectID,
			State:     models.RunPending,
			Steps:     []models.ReconcileStep{},
			StartedAt: now,
		},
		start:     now,
		attempted: map[primitive.ObjectID]struct{}{},
	}

	jctx, cancel := r.storeCtx(ctx, r.timeouts.write, "reconcile begin")
	defer cancel()
	if err := r.sagas.Begin(jctx, s.rec); err != nil {
		r.log.Warn("reconcile: could not journal run start",
			zap.String("run_id", s.rec.RunID),
			zap.String("operation", op),
			zap.Error(err))
	}
	return s
}

func (s *run) projectStep(action string, at time.Time, err error) {
	step := models.ReconcileStep{Kind: "project", Action: action, Outcome: models.StepOK, At: at}
	if err != nil {
		step.Outcome = models.StepFailed
		step.Error = err.Error()
		s.projectErr = err
	}
	s.rec.Steps = append(s.rec.Steps, step)
}

// projectGone records that the project vanished after its own write
// landed. The run still completes its user steps.
func (s *run) projectGone(at time.Time, err error) {
	s.rec.Steps = append(s.rec.Steps, models.ReconcileStep{
		Kind: "project", Action: "recheck", Outcome: models.StepFailed, Error: err.Error(), At: at,
	})
	s.goneErr = err
}

// userSteps records one step per id. A user that fails in any step counts
// once toward the failure total.
func (s *run) userSteps(action string, at time.Time, ids []primitive.ObjectID, failed map[primitive.ObjectID]error) {
	for _, id := range ids {
		uid := id
		s.attempted[uid] = struct{}{}
		step := models.ReconcileStep{Kind: "user", Action: action, UserID: &uid, Outcome: models.StepOK, At: at}
		if err, bad := failed[uid]; bad {
			step.Outcome = models.StepFailed
			step.Error = err.Error()
			if !s.hasFailure(uid) {
				s.failures = append(s.failures, UserFailure{UserID: uid, Err: err})
			}
		} else {
			s.ok++
		}
		s.rec.Steps = append(s.rec.Steps, step)
	}
}

func (s *run) hasFailure(id primitive.ObjectID) bool {
	for _, f := range s.failures {
		if f.UserID == id {
			return true
		}
	}
	return false
}

// failedSet is the set of users that already failed in this run; later
// steps skip them so a user is never released after a failed unassign.
func (s *run) failedSet() map[primitive.ObjectID]struct{} {
	m := make(map[primitive.ObjectID]struct{}, len(s.failures))
	for _, f := range s.failures {
		m[f.UserID] = struct{}{}
	}
	return m
}

// finish closes the run, journals it, and reports partial failure.
func (r *Reconciler) finish(ctx context.Context, s *run) error {
	end := r.now()
	s.rec.FinishedAt = &end

	switch {
	case s.projectErr != nil:
		s.rec.State = models.RunFailed
	case len(s.failures) > 0:
		s.rec.State = models.RunPartial
		s.rec.FailedIDs = make([]primitive.ObjectID, 0, len(s.failures))
		for _, f := range s.failures {
			s.rec.FailedIDs = append(s.rec.FailedIDs, f.UserID)
		}
	default:
		s.rec.State = models.RunCompleted
	}

	// The journal write must not be skipped just because the request
	// context ran out; that is exactly when the record matters most.
	jctx, cancel := r.storeCtx(context.WithoutCancel(ctx), r.timeouts.write, "reconcile finish")
	defer cancel()
	if err := r.sagas.Finish(jctx, s.rec); err != nil {
		r.log.Warn("reconcile: could not journal run result",
			zap.String("run_id", s.rec.RunID),
			zap.String("state", s.rec.State),
			zap.Error(err))
	}

	r.metrics.ObserveRun(s.rec.Operation, s.rec.State, end.Sub(s.start))
	r.metrics.AddUserWrites(s.rec.Operation, s.ok, len(s.failures))

	fields := []zap.Field{
		zap.String("run_id", s.rec.RunID),
		zap.String("operation", s.rec.Operation),
		zap.String("state", s.rec.State),
		zap.Int("users", len(s.attempted)),
		zap.Duration("took", end.Sub(s.start)),
	}
	if !s.rec.ProjectID.IsZero() {
		fields = append(fields, zap.String("project_id", s.rec.ProjectID.Hex()))
	}

	switch s.rec.State {
	case models.RunFailed:
		r.log.Error("reconcile run failed", append(fields, zap.Error(s.projectErr))...)
		return s.projectErr
	case models.RunPartial:
		pf := &PartialFailureError{
			RunID:     s.rec.RunID,
			ProjectID: s.rec.ProjectID,
			Attempted: len(s.attempted),
			Failures:  s.failures,
		}
		r.log.Warn("reconcile run partially failed", append(fields, zap.Int("failed", len(s.failures)), zap.Error(pf))...)
		return pf
	default:
		r.log.Info("reconcile run completed", fields...)
		return s.goneErr
	}
}
