// internal/app/system/reconcile/reconciler.go
//
// Package reconcile keeps User.availability and User.assigned_projects in
// step with the task assignments of projects. It is the only writer of those
// two user fields.
//
// MongoDB gives us no multi-document transaction here, so every operation is
// a short saga: load, validate, write the project (version guarded), then
// issue the participant writes as one unordered batch and journal the
// per-user outcome. Users whose writes fail are reported to the caller and
// left for the repair worker.
package reconcile

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/dalemusser/projecttracker/internal/app/system/timeouts"
	"github.com/dalemusser/projecttracker/internal/domain/models"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"
)

// ProjectRepo is the project side of the document store.
// Lookups of missing documents return mongo.ErrNoDocuments.
type ProjectRepo interface {
	GetByID(ctx context.Context, id primitive.ObjectID) (models.Project, error)
	Insert(ctx context.Context, p models.Project) error
	// ReplaceVersioned replaces the project only if its stored version still
	// equals version. It reports false when nothing matched.
	ReplaceVersioned(ctx context.Context, p models.Project, version int64) (bool, error)
	// DeleteVersioned deletes the project only if its stored version still
	// equals version. It reports false when nothing matched.
	DeleteVersioned(ctx context.Context, id primitive.ObjectID, version int64) (bool, error)
	// Referencing returns every project (any status) whose assignment sets
	// contain at least one of userIDs.
	Referencing(ctx context.Context, userIDs []primitive.ObjectID) ([]models.Project, error)
}

// UserDirectory is the user side of the document store. Batch writes return
// the users whose write failed; a failure of the whole batch is reported
// against every id in it.
type UserDirectory interface {
	Missing(ctx context.Context, ids []primitive.ObjectID) ([]primitive.ObjectID, error)
	GetMany(ctx context.Context, ids []primitive.ObjectID) ([]models.User, error)
	AllIDs(ctx context.Context) ([]primitive.ObjectID, error)

	AddProject(ctx context.Context, projectID primitive.ObjectID, userIDs []primitive.ObjectID) map[primitive.ObjectID]error
	RemoveProject(ctx context.Context, projectID primitive.ObjectID, userIDs []primitive.ObjectID) map[primitive.ObjectID]error
	SetAvailability(ctx context.Context, states map[primitive.ObjectID]string) map[primitive.ObjectID]error
	SetAssignments(ctx context.Context, states []models.AssignmentState) map[primitive.ObjectID]error
}

// maxVersionAttempts bounds the reload-and-retry loop of CompleteTask and
// Delete when another writer bumps the project version first.
const maxVersionAttempts = 3

type opTimeouts struct {
	read  time.Duration
	write time.Duration
	batch time.Duration
}

// Reconciler runs the create/update/complete/delete sagas.
type Reconciler struct {
	projects ProjectRepo
	users    UserDirectory
	sagas    SagaStore
	metrics  Metrics
	log      *zap.Logger
	now      func() time.Time

	timeouts    opTimeouts
	repairBatch int
}

// Option customizes a Reconciler.
type Option func(*Reconciler)

// WithMetrics sets the run metrics sink.
func WithMetrics(m Metrics) Option {
	return func(r *Reconciler) {
		if m != nil {
			r.metrics = m
		}
	}
}

// WithClock overrides time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(r *Reconciler) { r.now = now }
}

// WithRepairBatchSize sets how many users a repair pass loads at a time.
func WithRepairBatchSize(n int) Option {
	return func(r *Reconciler) {
		if n > 0 {
			r.repairBatch = n
		}
	}
}

// New builds a Reconciler. sagas may be nil, in which case runs are only logged.
func New(projects ProjectRepo, users UserDirectory, sagas SagaStore, logger *zap.Logger, opts ...Option) *Reconciler {
	if logger == nil {
		logger = zap.NewNop()
	}
	r := &Reconciler{
		projects: projects,
		users:    users,
		sagas:    sagas,
		metrics:  nopMetrics{},
		log:      logger,
		now:      func() time.Time { return time.Now().UTC() },
		timeouts: opTimeouts{
			read:  timeouts.Short(),
			write: timeouts.Medium(),
			batch: timeouts.Long(),
		},
		repairBatch: 200,
	}
	if sagas == nil {
		r.sagas = nopSagas{}
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

func (r *Reconciler) storeCtx(ctx context.Context, d time.Duration, op string) (context.Context, context.CancelFunc) {
	return timeouts.WithTimeout(ctx, d, r.log, op)
}

/* -------------------------------------------------------------------------- */
/* Create                                                                      */
/* -------------------------------------------------------------------------- */

// Create stores a new project and marks every assignee occupied.
func (r *Reconciler) Create(ctx context.Context, in ProjectInput) (*models.Project, error) {
	if err := validateProjectFields(in); err != nil {
		return nil, err
	}
	now := r.now()
	tasks, err := buildTasks(in.Tasks, nil, now)
	if err != nil {
		return nil, err
	}
	assignees := taskAssignees(tasks)
	if err := r.requireUsers(ctx, assignees); err != nil {
		return nil, err
	}

	vols, docs := deriveUnion(tasks)
	p := models.Project{
		ID:          primitive.NewObjectID(),
		Title:       strings.TrimSpace(in.Title),
		Description: strings.TrimSpace(in.Description),
		Location:    strings.TrimSpace(in.Location),
		EventDate:   in.EventDate.UTC(),
		Tasks:       tasks,
		Volunteers:  vols,
		Doctors:     docs,
		Status:      models.ProjectRunning,
		Version:     1,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if p.AllTasksCompleted() {
		p.Status = models.ProjectCompleted
	}

	s := r.begin(ctx, OpCreate, p.ID)
	wctx, cancel := r.storeCtx(ctx, r.timeouts.write, "project insert")
	err = r.projects.Insert(wctx, p)
	cancel()
	s.projectStep("insert", r.now(), err)
	if err != nil {
		return nil, r.finish(ctx, s)
	}

	r.assign(ctx, s, p.ID, assignees)
	r.recheck(ctx, s, p.ID, assignees)
	if !p.IsRunning() {
		r.release(ctx, s, assignees)
	}
	return finished(&p, r.finish(ctx, s))
}

/* -------------------------------------------------------------------------- */
/* Update                                                                      */
/* -------------------------------------------------------------------------- */

// Update replaces the project's fields and tasks, then reconciles the users
// that entered or left the assignment set. Users in both sets are untouched.
func (r *Reconciler) Update(ctx context.Context, id primitive.ObjectID, in ProjectInput) (*models.Project, error) {
	if err := validateProjectFields(in); err != nil {
		return nil, err
	}
	cur, err := r.loadProject(ctx, id)
	if err != nil {
		return nil, err
	}
	if in.ExpectedVersion != nil && *in.ExpectedVersion != cur.Version {
		return nil, ErrVersionConflict
	}
	if !cur.IsRunning() {
		return nil, ErrProjectCompleted
	}

	now := r.now()
	tasks, err := buildTasks(in.Tasks, cur.Tasks, now)
	if err != nil {
		return nil, err
	}

	// prev includes the stored top-level sets as well as the tasks, so users
	// that only survived in a stale denormalized list still get released.
	prev := participants(&cur)
	next := taskAssignees(tasks)
	added, removed := diffIDs(prev, next)
	if err := r.requireUsers(ctx, added); err != nil {
		return nil, err
	}

	updated := cloneProject(cur)
	updated.Title = strings.TrimSpace(in.Title)
	updated.Description = strings.TrimSpace(in.Description)
	updated.Location = strings.TrimSpace(in.Location)
	updated.EventDate = in.EventDate.UTC()
	updated.Tasks = tasks
	updated.Volunteers, updated.Doctors = deriveUnion(tasks)
	updated.Version = cur.Version + 1
	updated.UpdatedAt = now
	if updated.AllTasksCompleted() {
		updated.Status = models.ProjectCompleted
	}

	s := r.begin(ctx, OpUpdate, id)
	if err := r.replace(ctx, s, updated, cur.Version); err != nil {
		_ = r.finish(ctx, s)
		return nil, err
	}

	r.assign(ctx, s, id, added)
	r.recheck(ctx, s, id, added)
	r.unassign(ctx, s, id, removed)

	toRelease := removed
	if !updated.IsRunning() {
		toRelease = uniqueIDs(removed, next)
	}
	r.release(ctx, s, toRelease)

	return finished(&updated, r.finish(ctx, s))
}

/* -------------------------------------------------------------------------- */
/* CompleteTask                                                                */
/* -------------------------------------------------------------------------- */

// CompleteTask records userID as having finished taskName. When that leaves
// every task Completed the project is marked completed and its participants
// are released; assigned_projects is left as history. The returned bool
// reports whether the project is completed.
func (r *Reconciler) CompleteTask(ctx context.Context, id primitive.ObjectID, taskName string, userID primitive.ObjectID) (*models.Project, bool, error) {
	// One run covers every attempt; a lost version race is retried, not journalled.
	var s *run
	for attempt := 1; ; attempt++ {
		cur, updated, err := r.completion(ctx, id, taskName, userID)
		if err != nil {
			if s != nil {
				s.projectStep("replace", r.now(), err)
				_ = r.finish(ctx, s)
			}
			return nil, false, err
		}
		if updated == nil {
			if s != nil {
				_ = r.finish(ctx, s)
			}
			return &cur, cur.AllTasksCompleted(), nil
		}

		if s == nil {
			s = r.begin(ctx, OpCompleteTask, id)
		}
		wctx, cancel := r.storeCtx(ctx, r.timeouts.write, "project replace")
		ok, err := r.projects.ReplaceVersioned(wctx, *updated, cur.Version)
		cancel()
		if err == nil && !ok {
			if attempt < maxVersionAttempts {
				r.log.Debug("complete-task lost a version race, retrying",
					zap.String("project_id", id.Hex()),
					zap.Int("attempt", attempt))
				continue
			}
			err = ErrVersionConflict
		}
		s.projectStep("replace", r.now(), err)
		if err != nil {
			_ = r.finish(ctx, s)
			return nil, false, err
		}

		allDone := updated.AllTasksCompleted()
		if allDone && cur.IsRunning() {
			r.release(ctx, s, participants(updated))
		}
		return updated, allDone, r.finish(ctx, s)
	}
}

// completion loads the project and applies the completion in memory. A nil
// updated project means the call changes nothing.
func (r *Reconciler) completion(ctx context.Context, id primitive.ObjectID, taskName string, userID primitive.ObjectID) (models.Project, *models.Project, error) {
	cur, err := r.loadProject(ctx, id)
	if err != nil {
		return models.Project{}, nil, err
	}
	if cur.FindTask(taskName) == nil {
		return models.Project{}, nil, &NotFoundError{Kind: "task", ID: taskName}
	}
	if err := r.requireUsers(ctx, []primitive.ObjectID{userID}); err != nil {
		return models.Project{}, nil, err
	}

	updated := cloneProject(cur)
	t := updated.FindTask(taskName)

	changed := false
	if !containsID(t.CompletedBy, userID) {
		t.CompletedBy = append(t.CompletedBy, userID)
		changed = true
	}
	now := r.now()
	if t.Status != models.TaskCompleted {
		t.Status = models.TaskCompleted
		t.CompletedAt = &now
		changed = true
	}
	if !changed {
		return cur, nil, nil
	}
	if updated.AllTasksCompleted() {
		updated.Status = models.ProjectCompleted
	}
	updated.Version = cur.Version + 1
	updated.UpdatedAt = now
	return cur, &updated, nil
}

/* -------------------------------------------------------------------------- */
/* Delete                                                                      */
/* -------------------------------------------------------------------------- */

// Delete removes the project, drops it from every participant's
// assigned_projects and recomputes their availability. The delete is
// version guarded so the participants released are those of the version
// actually deleted.
func (r *Reconciler) Delete(ctx context.Context, id primitive.ObjectID) error {
	var s *run
	for attempt := 1; ; attempt++ {
		cur, err := r.loadProject(ctx, id)
		if err != nil {
			if s != nil {
				s.projectStep("delete", r.now(), err)
				return r.finish(ctx, s)
			}
			return err
		}

		if s == nil {
			s = r.begin(ctx, OpDelete, id)
		}
		wctx, cancel := r.storeCtx(ctx, r.timeouts.write, "project delete")
		ok, err := r.projects.DeleteVersioned(wctx, id, cur.Version)
		cancel()
		if err == nil && !ok {
			if attempt < maxVersionAttempts {
				r.log.Debug("delete lost a version race, retrying",
					zap.String("project_id", id.Hex()),
					zap.Int("attempt", attempt))
				continue
			}
			err = ErrVersionConflict
		}
		s.projectStep("delete", r.now(), err)
		if err != nil {
			return r.finish(ctx, s)
		}

		ids := participants(&cur)
		r.unassign(ctx, s, id, ids)
		r.release(ctx, s, ids)
		return r.finish(ctx, s)
	}
}

/* -------------------------------------------------------------------------- */
/* Steps                                                                       */
/* -------------------------------------------------------------------------- */

func (r *Reconciler) loadProject(ctx context.Context, id primitive.ObjectID) (models.Project, error) {
	rctx, cancel := r.storeCtx(ctx, r.timeouts.read, "project load")
	defer cancel()
	p, err := r.projects.GetByID(rctx, id)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return models.Project{}, projectNotFound(id)
	}
	return p, err
}

func (r *Reconciler) requireUsers(ctx context.Context, ids []primitive.ObjectID) error {
	if len(ids) == 0 {
		return nil
	}
	rctx, cancel := r.storeCtx(ctx, r.timeouts.read, "user existence check")
	defer cancel()
	missing, err := r.users.Missing(rctx, ids)
	if err != nil {
		return err
	}
	if len(missing) > 0 {
		hex := make([]string, 0, len(missing))
		for _, m := range missing {
			hex = append(hex, m.Hex())
		}
		return &NotFoundError{Kind: "user", ID: strings.Join(hex, ", ")}
	}
	return nil
}

func (r *Reconciler) replace(ctx context.Context, s *run, p models.Project, version int64) error {
	wctx, cancel := r.storeCtx(ctx, r.timeouts.write, "project replace")
	ok, err := r.projects.ReplaceVersioned(wctx, p, version)
	cancel()
	if err == nil && !ok {
		err = ErrVersionConflict
	}
	s.projectStep("replace", r.now(), err)
	return err
}

// recheck re-reads the project after ids were assigned to it. A Delete that
// ran in between only unassigned the participants it saw, so when the
// project is gone the assignment is undone here and the caller gets
// NotFound. A failed read leaves ids to the repair worker.
func (r *Reconciler) recheck(ctx context.Context, s *run, projectID primitive.ObjectID, ids []primitive.ObjectID) {
	if len(ids) == 0 {
		return
	}
	rctx, cancel := r.storeCtx(ctx, r.timeouts.read, "project recheck")
	_, err := r.projects.GetByID(rctx, projectID)
	cancel()
	switch {
	case err == nil:
	case errors.Is(err, mongo.ErrNoDocuments):
		r.log.Warn("project deleted while its participants were assigned",
			zap.String("project_id", projectID.Hex()),
			zap.Int("users", len(ids)))
		s.projectGone(r.now(), projectNotFound(projectID))
		r.unassign(ctx, s, projectID, ids)
		r.release(ctx, s, ids)
	default:
		s.userSteps("recheck", r.now(), ids, batchFailed(ids, err))
	}
}

// finished drops the project from a result whose run ended with the
// project gone.
func finished(p *models.Project, err error) (*models.Project, error) {
	if errors.Is(err, ErrNotFound) {
		return nil, err
	}
	return p, err
}

// batchFailed marks every id as failed with err.
func batchFailed(ids []primitive.ObjectID, err error) map[primitive.ObjectID]error {
	m := make(map[primitive.ObjectID]error, len(ids))
	for _, id := range ids {
		m[id] = err
	}
	return m
}

// pending drops users that already failed earlier in the run. When the
// caller's context is gone the remaining users are failed without a store
// round trip.
func (r *Reconciler) pending(ctx context.Context, s *run, action string, ids []primitive.ObjectID) []primitive.ObjectID {
	bad := s.failedSet()
	out := make([]primitive.ObjectID, 0, len(ids))
	for _, id := range ids {
		if _, skip := bad[id]; !skip {
			out = append(out, id)
		}
	}
	if len(out) > 0 && ctx.Err() != nil {
		s.userSteps(action, r.now(), out, batchFailed(out, ctx.Err()))
		return nil
	}
	return out
}

func (r *Reconciler) assign(ctx context.Context, s *run, projectID primitive.ObjectID, ids []primitive.ObjectID) {
	ids = r.pending(ctx, s, "assign", ids)
	if len(ids) == 0 {
		return
	}
	wctx, cancel := r.storeCtx(ctx, r.timeouts.batch, "assign users")
	failed := r.users.AddProject(wctx, projectID, ids)
	cancel()
	s.userSteps("assign", r.now(), ids, failed)
}

func (r *Reconciler) unassign(ctx context.Context, s *run, projectID primitive.ObjectID, ids []primitive.ObjectID) {
	ids = r.pending(ctx, s, "unassign", ids)
	if len(ids) == 0 {
		return
	}
	wctx, cancel := r.storeCtx(ctx, r.timeouts.batch, "unassign users")
	failed := r.users.RemoveProject(wctx, projectID, ids)
	cancel()
	s.userSteps("unassign", r.now(), ids, failed)
}

// release recomputes availability for ids: occupied while any running
// project still references the user, available otherwise. It never touches
// assigned_projects.
func (r *Reconciler) release(ctx context.Context, s *run, ids []primitive.ObjectID) {
	ids = r.pending(ctx, s, "release", ids)
	if len(ids) == 0 {
		return
	}

	rctx, cancel := r.storeCtx(ctx, r.timeouts.batch, "load referencing projects")
	refs, err := r.projects.Referencing(rctx, ids)
	cancel()
	if err != nil {
		s.userSteps("release", r.now(), ids, batchFailed(ids, err))
		return
	}

	busy := runningAssignees(refs)
	states := make(map[primitive.ObjectID]string, len(ids))
	for _, id := range ids {
		if _, ok := busy[id]; ok {
			states[id] = models.Occupied
		} else {
			states[id] = models.Available
		}
	}

	wctx, cancel := r.storeCtx(ctx, r.timeouts.batch, "release users")
	failed := r.users.SetAvailability(wctx, states)
	cancel()
	s.userSteps("release", r.now(), ids, failed)
}

// runningAssignees is the set of users referenced by any running project.
func runningAssignees(projects []models.Project) map[primitive.ObjectID]struct{} {
	busy := map[primitive.ObjectID]struct{}{}
	for i := range projects {
		if !projects[i].IsRunning() {
			continue
		}
		for _, u := range participants(&projects[i]) {
			busy[u] = struct{}{}
		}
	}
	return busy
}

// cloneProject deep-copies the slices a reconciliation mutates.
func cloneProject(p models.Project) models.Project {
	out := p
	out.Volunteers = append([]primitive.ObjectID{}, p.Volunteers...)
	out.Doctors = append([]primitive.ObjectID{}, p.Doctors...)
	out.Tasks = make([]models.Task, len(p.Tasks))
	for i, t := range p.Tasks {
		t.Volunteers = append([]primitive.ObjectID{}, t.Volunteers...)
		t.Doctors = append([]primitive.ObjectID{}, t.Doctors...)
		t.CompletedBy = append([]primitive.ObjectID{}, t.CompletedBy...)
		out.Tasks[i] = t
	}
	return out
}
