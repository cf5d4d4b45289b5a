// internal/app/system/reconcile/repair.go
package reconcile

import (
	"context"
	"fmt"

	"github.com/dalemusser/projecttracker/internal/domain/models"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

// RepairReport summarizes one repair pass.
type RepairReport struct {
	RunID   string               `json:"run_id"`
	Checked int                  `json:"checked"`
	Fixed   int                  `json:"fixed"`
	Failed  []primitive.ObjectID `json:"failed_user_ids"`
}

// Repair re-derives assigned_projects and availability for userIDs from the
// projects collection and rewrites the users that drifted. An empty userIDs
// repairs every user. Running it twice in a row fixes nothing the second time.
func (r *Reconciler) Repair(ctx context.Context, userIDs []primitive.ObjectID) (RepairReport, error) {
	ids := uniqueIDs(userIDs)
	if len(userIDs) == 0 {
		rctx, cancel := r.storeCtx(ctx, r.timeouts.batch, "list user ids")
		all, err := r.users.AllIDs(rctx)
		cancel()
		if err != nil {
			return RepairReport{}, err
		}
		ids = all
	}

	s := r.begin(ctx, OpRepair, primitive.NilObjectID)
	rep := RepairReport{RunID: s.rec.RunID, Failed: []primitive.ObjectID{}}

	for start := 0; start < len(ids); start += r.repairBatch {
		end := start + r.repairBatch
		if end > len(ids) {
			end = len(ids)
		}
		batch := ids[start:end]
		if ctx.Err() != nil {
			s.userSteps("repair", r.now(), batch, batchFailed(batch, ctx.Err()))
			continue
		}
		checked, fixed := r.repairBatchOf(ctx, s, batch)
		rep.Checked += checked
		rep.Fixed += fixed
	}

	for _, f := range s.failures {
		rep.Failed = append(rep.Failed, f.UserID)
	}
	err := r.finish(ctx, s)
	return rep, err
}

func (r *Reconciler) repairBatchOf(ctx context.Context, s *run, batch []primitive.ObjectID) (checked, fixed int) {
	rctx, cancel := r.storeCtx(ctx, r.timeouts.batch, "repair load users")
	users, err := r.users.GetMany(rctx, batch)
	cancel()
	if err != nil {
		s.userSteps("repair", r.now(), batch, batchFailed(batch, err))
		return 0, 0
	}

	rctx, cancel = r.storeCtx(ctx, r.timeouts.batch, "repair load projects")
	refs, err := r.projects.Referencing(rctx, batch)
	cancel()
	if err != nil {
		s.userSteps("repair", r.now(), batch, batchFailed(batch, err))
		return 0, 0
	}

	want := expectedStates(batch, refs)
	var drifted []models.AssignmentState
	var driftedIDs []primitive.ObjectID
	for _, u := range users {
		checked++
		exp := want[u.ID]
		if u.Availability == exp.Availability && sameIDSet(u.AssignedProjects, exp.AssignedProjects) {
			continue
		}
		r.log.Info("repair: user drifted",
			zap.String("user_id", u.ID.Hex()),
			zap.String("availability", u.Availability),
			zap.String("expected_availability", exp.Availability),
			zap.Int("assigned", len(u.AssignedProjects)),
			zap.Int("expected_assigned", len(exp.AssignedProjects)))
		drifted = append(drifted, exp)
		driftedIDs = append(driftedIDs, u.ID)
	}
	if len(drifted) == 0 {
		return checked, 0
	}

	wctx, cancel := r.storeCtx(ctx, r.timeouts.batch, "repair write users")
	failed := r.users.SetAssignments(wctx, drifted)
	cancel()
	s.userSteps("repair", r.now(), driftedIDs, failed)
	return checked, len(drifted) - len(failed)
}

// expectedStates derives each user's assignment state from the projects that
// reference them.
func expectedStates(ids []primitive.ObjectID, projects []models.Project) map[primitive.ObjectID]models.AssignmentState {
	out := make(map[primitive.ObjectID]models.AssignmentState, len(ids))
	for _, id := range ids {
		out[id] = models.AssignmentState{
			UserID:           id,
			AssignedProjects: []primitive.ObjectID{},
			Availability:     models.Available,
		}
	}
	for i := range projects {
		p := &projects[i]
		for _, uid := range participants(p) {
			st, ok := out[uid]
			if !ok {
				continue
			}
			st.AssignedProjects = append(st.AssignedProjects, p.ID)
			if p.IsRunning() {
				st.Availability = models.Occupied
			}
			out[uid] = st
		}
	}
	return out
}

func sameIDSet(a, b []primitive.ObjectID) bool {
	sa, sb := toSet(a), toSet(b)
	if len(sa) != len(sb) {
		return false
	}
	for id := range sa {
		if _, ok := sb[id]; !ok {
			return false
		}
	}
	return true
}

// RepairPending repairs the failed users of up to limit partial runs and
// marks each fully healed run repaired. It returns how many runs it closed.
func (r *Reconciler) RepairPending(ctx context.Context, limit int64) (int, error) {
	rctx, cancel := r.storeCtx(ctx, r.timeouts.read, "list partial runs")
	runs, err := r.sagas.ListPartial(rctx, limit)
	cancel()
	if err != nil {
		return 0, fmt.Errorf("list partial runs: %w", err)
	}

	closed := 0
	for _, run := range runs {
		if ctx.Err() != nil {
			return closed, ctx.Err()
		}
		if len(run.FailedIDs) > 0 {
			rep, err := r.Repair(ctx, run.FailedIDs)
			if err != nil || len(rep.Failed) > 0 {
				r.log.Warn("repair: run still has unreconciled users",
					zap.String("run_id", run.RunID),
					zap.Int("failed", len(rep.Failed)),
					zap.Error(err))
				continue
			}
		}
		wctx, cancel := r.storeCtx(ctx, r.timeouts.write, "mark run repaired")
		err := r.sagas.MarkRepaired(wctx, run.RunID, r.now())
		cancel()
		if err != nil {
			r.log.Warn("repair: could not mark run repaired", zap.String("run_id", run.RunID), zap.Error(err))
			continue
		}
		closed++
	}
	return closed, nil
}
