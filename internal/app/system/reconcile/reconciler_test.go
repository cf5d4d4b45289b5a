package reconcile

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/dalemusser/projecttracker/internal/domain/models"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

const (
	venue    = "Venue & Logistic Setup"
	doctorsT = "Doctors & Consultants"
	media    = "Media & Documentation"
)

func sameIDs(t *testing.T, what string, got, want []primitive.ObjectID) {
	t.Helper()
	if !sameIDSet(got, want) || len(got) != len(want) {
		t.Errorf("%s: got %v, want %v", what, got, want)
	}
}

func TestCreate_AssignsParticipants(t *testing.T) {
	e := newEnv(t)
	a, b := e.users.add("A"), e.users.add("B")

	p, err := e.rec.Create(context.Background(), input("Camp", task(venue, ids(a), ids(b))))
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	stored := e.projects.get(t, p.ID)
	sameIDs(t, "volunteers", stored.Volunteers, ids(a))
	sameIDs(t, "doctors", stored.Doctors, ids(b))
	if stored.Status != models.ProjectRunning {
		t.Errorf("status = %q, want running", stored.Status)
	}
	if stored.Version != 1 {
		t.Errorf("version = %d, want 1", stored.Version)
	}

	for _, id := range ids(a, b) {
		u := e.users.get(t, id)
		if u.Availability != models.Occupied {
			t.Errorf("%s availability = %q, want occupied", u.FirstName, u.Availability)
		}
		sameIDs(t, u.FirstName+" assigned", u.AssignedProjects, ids(p.ID))
	}
	e.checkInvariants(t)
}

func TestCreate_NoTasksUsesDefaults(t *testing.T) {
	e := newEnv(t)

	p, err := e.rec.Create(context.Background(), input("Camp"))
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if len(p.Tasks) != len(models.TaskNames) {
		t.Fatalf("got %d tasks, want %d", len(p.Tasks), len(models.TaskNames))
	}
	for i, tk := range p.Tasks {
		if tk.Name != models.TaskNames[i] {
			t.Errorf("task %d = %q, want %q", i, tk.Name, models.TaskNames[i])
		}
		if tk.Status != models.TaskPending {
			t.Errorf("task %q status = %q, want Pending", tk.Name, tk.Status)
		}
	}
	if len(p.Volunteers) != 0 || len(p.Doctors) != 0 {
		t.Errorf("expected no participants, got %v %v", p.Volunteers, p.Doctors)
	}
}

func TestCreate_AllTasksCompletedReleasesImmediately(t *testing.T) {
	e := newEnv(t)
	a := e.users.add("A")

	tk := task(venue, ids(a), nil)
	tk.Status = models.TaskCompleted
	p, err := e.rec.Create(context.Background(), input("Camp", tk))
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if p.Status != models.ProjectCompleted {
		t.Errorf("status = %q, want completed", p.Status)
	}
	if p.Tasks[0].CompletedAt == nil {
		t.Error("expected completed_at to be stamped")
	}
	u := e.users.get(t, a)
	if u.Availability != models.Available {
		t.Errorf("availability = %q, want available", u.Availability)
	}
	sameIDs(t, "assigned", u.AssignedProjects, ids(p.ID))
}

func TestCreate_ValidationRejectedBeforeWrites(t *testing.T) {
	a := primitive.NewObjectID()
	tests := []struct {
		name  string
		in    func() ProjectInput
		field string
	}{
		{"missing title", func() ProjectInput { in := input(""); return in }, "title"},
		{"missing location", func() ProjectInput { in := input("Camp"); in.Location = "  "; return in }, "location"},
		{"missing event date", func() ProjectInput { in := input("Camp"); in.EventDate = time.Time{}; return in }, "event_date"},
		{"unknown task", func() ProjectInput { return input("Camp", task("Catering", ids(a), nil)) }, "tasks[0].name"},
		{"duplicate task", func() ProjectInput { return input("Camp", task(venue, nil, nil), task(venue, nil, nil)) }, "tasks[1].name"},
		{"bad status", func() ProjectInput {
			tk := task(venue, nil, nil)
			tk.Status = "Done"
			return input("Camp", tk)
		}, "tasks[0].status"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			e := newEnv(t)
			_, err := e.rec.Create(context.Background(), tc.in())
			if !errors.Is(err, ErrValidation) {
				t.Fatalf("expected ErrValidation, got %v", err)
			}
			var ve *ValidationError
			if !errors.As(err, &ve) || ve.Field != tc.field {
				t.Errorf("field = %v, want %q", ve, tc.field)
			}
			if len(e.projects.m) != 0 {
				t.Error("project was written despite validation failure")
			}
		})
	}
}

func TestCreate_UnknownUserIsNotFound(t *testing.T) {
	e := newEnv(t)
	a := e.users.add("A")
	ghost := primitive.NewObjectID()

	_, err := e.rec.Create(context.Background(), input("Camp", task(venue, ids(a, ghost), nil)))
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	var nf *NotFoundError
	if !errors.As(err, &nf) || nf.Kind != "user" || nf.ID != ghost.Hex() {
		t.Errorf("unexpected error detail: %v", err)
	}
	if len(e.projects.m) != 0 || e.users.writeCount() != 0 {
		t.Error("store was mutated before the user check")
	}
}

func TestUpdate_RemovesUser(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	a, b := e.users.add("A"), e.users.add("B")

	p, err := e.rec.Create(ctx, input("Camp", task(venue, ids(a, b), nil)))
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	up, err := e.rec.Update(ctx, p.ID, input("Camp", task(venue, ids(a), nil)))
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if up.Version != 2 {
		t.Errorf("version = %d, want 2", up.Version)
	}
	sameIDs(t, "volunteers", up.Volunteers, ids(a))

	ua, ub := e.users.get(t, a), e.users.get(t, b)
	if ua.Availability != models.Occupied {
		t.Errorf("A availability = %q, want occupied", ua.Availability)
	}
	sameIDs(t, "A assigned", ua.AssignedProjects, ids(p.ID))
	if ub.Availability != models.Available {
		t.Errorf("B availability = %q, want available", ub.Availability)
	}
	sameIDs(t, "B assigned", ub.AssignedProjects, ids())
	e.checkInvariants(t)
}

func TestUpdate_RemovedUserStaysOccupiedByOtherProject(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	a, b := e.users.add("A"), e.users.add("B")

	p, err := e.rec.Create(ctx, input("Camp", task(venue, ids(a, b), nil)))
	if err != nil {
		t.Fatalf("Create P: %v", err)
	}
	q, err := e.rec.Create(ctx, input("Drive", task(media, ids(b), nil)))
	if err != nil {
		t.Fatalf("Create Q: %v", err)
	}

	if _, err := e.rec.Update(ctx, p.ID, input("Camp", task(venue, ids(a), nil))); err != nil {
		t.Fatalf("Update: %v", err)
	}
	ub := e.users.get(t, b)
	if ub.Availability != models.Occupied {
		t.Errorf("B availability = %q, want occupied", ub.Availability)
	}
	sameIDs(t, "B assigned", ub.AssignedProjects, ids(q.ID))
	e.checkInvariants(t)
}

func TestUpdate_SameTasksTwiceIsIdempotent(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	a, b, c := e.users.add("A"), e.users.add("B"), e.users.add("C")

	p, err := e.rec.Create(ctx, input("Camp", task(venue, ids(a), ids(b))))
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	next := input("Camp", task(venue, ids(a), nil), task(doctorsT, nil, ids(c)))
	if _, err := e.rec.Update(ctx, p.ID, next); err != nil {
		t.Fatalf("first Update: %v", err)
	}
	writes := e.users.writeCount()
	before := map[primitive.ObjectID]models.User{}
	for _, id := range ids(a, b, c) {
		before[id] = e.users.get(t, id)
	}

	if _, err := e.rec.Update(ctx, p.ID, next); err != nil {
		t.Fatalf("second Update: %v", err)
	}
	if got := e.users.writeCount(); got != writes {
		t.Errorf("second Update wrote %d user documents, want 0", got-writes)
	}
	for id, u := range before {
		if got := e.users.get(t, id); got.Availability != u.Availability {
			t.Errorf("%s availability changed: %q -> %q", u.FirstName, u.Availability, got.Availability)
		}
	}
}

func TestUpdate_HealsStaleTopLevelParticipant(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	a, b := e.users.add("A"), e.users.add("B")

	p, err := e.rec.Create(ctx, input("Camp", task(venue, ids(a), nil)))
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	// B is only in the denormalized list, as older writers left it.
	stored := e.projects.get(t, p.ID)
	stored.Volunteers = append(stored.Volunteers, b)
	e.projects.m[p.ID] = stored
	ub := e.users.get(t, b)
	ub.AssignedProjects = ids(p.ID)
	ub.Availability = models.Occupied
	e.users.set(ub)

	up, err := e.rec.Update(ctx, p.ID, input("Camp", task(venue, ids(a), nil)))
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	sameIDs(t, "volunteers", up.Volunteers, ids(a))
	ub = e.users.get(t, b)
	if ub.Availability != models.Available || len(ub.AssignedProjects) != 0 {
		t.Errorf("B not released: %q %v", ub.Availability, ub.AssignedProjects)
	}
}

func TestUpdate_Conflicts(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	a := e.users.add("A")

	p, err := e.rec.Create(ctx, input("Camp", task(venue, ids(a), nil)))
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	stale := int64(7)
	in := input("Camp", task(venue, ids(a), nil))
	in.ExpectedVersion = &stale
	if _, err := e.rec.Update(ctx, p.ID, in); !errors.Is(err, ErrVersionConflict) {
		t.Errorf("stale version: expected ErrVersionConflict, got %v", err)
	}

	if _, _, err := e.rec.CompleteTask(ctx, p.ID, venue, a); err != nil {
		t.Fatalf("CompleteTask: %v", err)
	}
	_, err = e.rec.Update(ctx, p.ID, input("Camp", task(venue, ids(a), nil)))
	if !errors.Is(err, ErrProjectCompleted) || !errors.Is(err, ErrConflict) {
		t.Errorf("completed project: expected ErrProjectCompleted, got %v", err)
	}

	if _, err := e.rec.Update(ctx, primitive.NewObjectID(), input("Camp")); !errors.Is(err, ErrNotFound) {
		t.Errorf("unknown project: expected ErrNotFound, got %v", err)
	}
}

func TestUpdate_CompletedTaskDoesNotRevert(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	a := e.users.add("A")

	p, err := e.rec.Create(ctx, input("Camp", task(venue, ids(a), nil), task(media, ids(a), nil)))
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	done, all, err := e.rec.CompleteTask(ctx, p.ID, venue, a)
	if err != nil || all {
		t.Fatalf("CompleteTask: all=%v err=%v", all, err)
	}
	stamp := done.FindTask(venue).CompletedAt

	reverted := task(venue, ids(a), nil)
	reverted.Status = models.TaskPending
	up, err := e.rec.Update(ctx, p.ID, input("Camp", reverted, task(media, ids(a), nil)))
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	tk := up.FindTask(venue)
	if tk.Status != models.TaskCompleted {
		t.Errorf("task status = %q, want Completed", tk.Status)
	}
	if tk.CompletedAt == nil || !tk.CompletedAt.Equal(*stamp) {
		t.Errorf("completed_at changed: %v -> %v", stamp, tk.CompletedAt)
	}
	sameIDs(t, "completed_by", tk.CompletedBy, ids(a))
}

func TestCompleteTask_AllTasksReleasesParticipants(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	a, b := e.users.add("A"), e.users.add("B")

	p, err := e.rec.Create(ctx, input("Camp", task(venue, ids(a), ids(b))))
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	if _, _, err := e.rec.CompleteTask(ctx, p.ID, venue, a); err != nil {
		t.Fatalf("CompleteTask A: %v", err)
	}
	got, all, err := e.rec.CompleteTask(ctx, p.ID, venue, b)
	if err != nil {
		t.Fatalf("CompleteTask B: %v", err)
	}
	if !all || got.Status != models.ProjectCompleted {
		t.Errorf("all=%v status=%q, want completed", all, got.Status)
	}
	sameIDs(t, "completed_by", got.FindTask(venue).CompletedBy, ids(a, b))

	for _, id := range ids(a, b) {
		u := e.users.get(t, id)
		if u.Availability != models.Available {
			t.Errorf("%s availability = %q, want available", u.FirstName, u.Availability)
		}
		sameIDs(t, u.FirstName+" assigned", u.AssignedProjects, ids(p.ID))
	}
	e.checkInvariants(t)
}

func TestCompleteTask_OtherRunningProjectKeepsUserOccupied(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	a, b := e.users.add("A"), e.users.add("B")

	p, err := e.rec.Create(ctx, input("Camp", task(venue, ids(a, b), nil)))
	if err != nil {
		t.Fatalf("Create P: %v", err)
	}
	if _, err := e.rec.Create(ctx, input("Drive", task(media, ids(a), nil))); err != nil {
		t.Fatalf("Create Q: %v", err)
	}

	if _, all, err := e.rec.CompleteTask(ctx, p.ID, venue, b); err != nil || !all {
		t.Fatalf("CompleteTask: all=%v err=%v", all, err)
	}
	if u := e.users.get(t, a); u.Availability != models.Occupied {
		t.Errorf("A availability = %q, want occupied", u.Availability)
	}
	if u := e.users.get(t, b); u.Availability != models.Available {
		t.Errorf("B availability = %q, want available", u.Availability)
	}
	e.checkInvariants(t)
}

func TestCompleteTask_PartialLeavesProjectRunning(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	a := e.users.add("A")

	p, err := e.rec.Create(ctx, input("Camp", task(venue, ids(a), nil), task(media, nil, nil)))
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	got, all, err := e.rec.CompleteTask(ctx, p.ID, venue, a)
	if err != nil {
		t.Fatalf("CompleteTask: %v", err)
	}
	if all || got.Status != models.ProjectRunning {
		t.Errorf("all=%v status=%q, want running", all, got.Status)
	}
	if u := e.users.get(t, a); u.Availability != models.Occupied {
		t.Errorf("A availability = %q, want occupied", u.Availability)
	}
}

func TestCompleteTask_RepeatIsNoOp(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	a := e.users.add("A")

	p, err := e.rec.Create(ctx, input("Camp", task(venue, ids(a), nil)))
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	first, _, err := e.rec.CompleteTask(ctx, p.ID, venue, a)
	if err != nil {
		t.Fatalf("first CompleteTask: %v", err)
	}
	replaces, writes := e.projects.replaces, e.users.writeCount()

	again, all, err := e.rec.CompleteTask(ctx, p.ID, venue, a)
	if err != nil {
		t.Fatalf("second CompleteTask: %v", err)
	}
	if !all || again.Status != models.ProjectCompleted {
		t.Errorf("all=%v status=%q, want completed", all, again.Status)
	}
	if again.Version != first.Version {
		t.Errorf("version moved %d -> %d", first.Version, again.Version)
	}
	if e.projects.replaces != replaces || e.users.writeCount() != writes {
		t.Error("repeat CompleteTask wrote to the store")
	}
}

func TestCompleteTask_NotFound(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	a := e.users.add("A")
	p, err := e.rec.Create(ctx, input("Camp", task(venue, ids(a), nil)))
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	tests := []struct {
		name    string
		project primitive.ObjectID
		task    string
		user    primitive.ObjectID
		kind    string
	}{
		{"project", primitive.NewObjectID(), venue, a, "project"},
		{"task", p.ID, media, a, "task"},
		{"user", p.ID, venue, primitive.NewObjectID(), "user"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, _, err := e.rec.CompleteTask(ctx, tc.project, tc.task, tc.user)
			var nf *NotFoundError
			if !errors.As(err, &nf) || nf.Kind != tc.kind {
				t.Errorf("expected %s NotFoundError, got %v", tc.kind, err)
			}
		})
	}
}

func TestCompleteTask_RetriesLostRace(t *testing.T) {
	runs := &recordedRuns{}
	e := newEnv(t, WithMetrics(runs))
	ctx := context.Background()
	a := e.users.add("A")
	p, err := e.rec.Create(ctx, input("Camp", task(venue, ids(a), nil)))
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	e.projects.conflicts = 1
	if _, all, err := e.rec.CompleteTask(ctx, p.ID, venue, a); err != nil || !all {
		t.Fatalf("CompleteTask after one conflict: all=%v err=%v", all, err)
	}
	if e.projects.replaces != 2 {
		t.Errorf("replaces = %d, want 2", e.projects.replaces)
	}

	// The lost race is retried inside one run rather than journalled as a failure.
	if n := e.sagas.count(); n != 2 {
		t.Errorf("journalled runs = %d, want 2 (create, complete)", n)
	}
	if got := e.sagas.run(e.sagas.last); got.Operation != OpCompleteTask || got.State != models.RunCompleted {
		t.Errorf("complete run = %s/%s, want %s/completed", got.Operation, got.State, OpCompleteTask)
	}
	for _, st := range runs.states {
		if st != models.RunCompleted {
			t.Errorf("observed run state %q, want only completed", st)
		}
	}
}

func TestCompleteTask_GivesUpAfterRepeatedConflicts(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	a := e.users.add("A")
	p, err := e.rec.Create(ctx, input("Camp", task(venue, ids(a), nil)))
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	e.projects.conflicts = 10
	if _, _, err := e.rec.CompleteTask(ctx, p.ID, venue, a); !errors.Is(err, ErrVersionConflict) {
		t.Fatalf("expected ErrVersionConflict, got %v", err)
	}
	if e.projects.replaces != maxVersionAttempts {
		t.Errorf("replaces = %d, want %d", e.projects.replaces, maxVersionAttempts)
	}
	if u := e.users.get(t, a); u.Availability != models.Occupied {
		t.Errorf("A released although the project write never landed")
	}
	if n := e.sagas.count(); n != 2 {
		t.Errorf("journalled runs = %d, want 2", n)
	}
	if got := e.sagas.run(e.sagas.last); got.State != models.RunFailed {
		t.Errorf("complete run state = %q, want failed", got.State)
	}
}

func TestDelete_ReleasesParticipants(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	a, b := e.users.add("A"), e.users.add("B")

	p, err := e.rec.Create(ctx, input("Camp", task(venue, ids(a), ids(b))))
	if err != nil {
		t.Fatalf("Create P: %v", err)
	}
	q, err := e.rec.Create(ctx, input("Drive", task(media, ids(a), nil)))
	if err != nil {
		t.Fatalf("Create Q: %v", err)
	}

	if err := e.rec.Delete(ctx, p.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, ok := e.projects.m[p.ID]; ok {
		t.Error("project still stored")
	}

	ua, ub := e.users.get(t, a), e.users.get(t, b)
	sameIDs(t, "A assigned", ua.AssignedProjects, ids(q.ID))
	if ua.Availability != models.Occupied {
		t.Errorf("A availability = %q, want occupied", ua.Availability)
	}
	sameIDs(t, "B assigned", ub.AssignedProjects, ids())
	if ub.Availability != models.Available {
		t.Errorf("B availability = %q, want available", ub.Availability)
	}
	e.checkInvariants(t)

	if err := e.rec.Delete(ctx, p.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("second Delete: expected ErrNotFound, got %v", err)
	}
}

func TestUpdate_ProjectDeletedBeforeAssignUndoesIt(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	a, c := e.users.add("A"), e.users.add("C")
	p, err := e.rec.Create(ctx, input("Camp", task(venue, ids(a), nil)))
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	h := e.withHooks()
	h.afterReplace = func() {
		if err := e.rec.Delete(ctx, p.ID); err != nil {
			t.Errorf("interleaved Delete: %v", err)
		}
	}

	got, err := e.rec.Update(ctx, p.ID, input("Camp", task(venue, ids(a, c), nil)))
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("Update on a project deleted midway: expected ErrNotFound, got %v", err)
	}
	if got != nil {
		t.Errorf("expected no project back, got %+v", got)
	}

	for _, id := range ids(a, c) {
		u := e.users.get(t, id)
		sameIDs(t, u.FirstName+" assigned", u.AssignedProjects, ids())
		if u.Availability != models.Available {
			t.Errorf("%s availability = %q, want available", u.FirstName, u.Availability)
		}
	}
	e.checkInvariants(t)

	if partial, _ := e.sagas.ListPartial(ctx, 10); len(partial) != 0 {
		t.Errorf("expected no partial runs, got %d", len(partial))
	}
}

func TestDelete_RetriesWhenUpdateLandsFirst(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	a, c := e.users.add("A"), e.users.add("C")
	p, err := e.rec.Create(ctx, input("Camp", task(venue, ids(a), nil)))
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	h := e.withHooks()
	h.beforeDelete = func() {
		if _, err := e.rec.Update(ctx, p.ID, input("Camp", task(venue, ids(a, c), nil))); err != nil {
			t.Errorf("interleaved Update: %v", err)
		}
	}

	if err := e.rec.Delete(ctx, p.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if e.projects.deletes != 2 {
		t.Errorf("deletes = %d, want 2 (stale version, then current)", e.projects.deletes)
	}
	if _, ok := e.projects.m[p.ID]; ok {
		t.Error("project still stored")
	}

	uc := e.users.get(t, c)
	sameIDs(t, "C assigned", uc.AssignedProjects, ids())
	if uc.Availability != models.Available {
		t.Errorf("C availability = %q, want available", uc.Availability)
	}
	e.checkInvariants(t)
}

func TestPartialFailure_ReportsAndJournals(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	a, b := e.users.add("A"), e.users.add("B")
	e.users.setFail(b, true)

	p, err := e.rec.Create(ctx, input("Camp", task(venue, ids(a, b), nil)))
	var pf *PartialFailureError
	if !errors.As(err, &pf) {
		t.Fatalf("expected PartialFailureError, got %v", err)
	}
	if p == nil {
		t.Fatal("expected the saved project alongside the partial failure")
	}
	if pf.Attempted != 2 {
		t.Errorf("attempted = %d, want 2", pf.Attempted)
	}
	sameIDs(t, "failed ids", pf.FailedIDs(), ids(b))
	if _, ok := e.projects.m[p.ID]; !ok {
		t.Error("project write should not be rolled back")
	}
	if u := e.users.get(t, a); u.Availability != models.Occupied {
		t.Errorf("A should still be reconciled, got %q", u.Availability)
	}

	run := e.sagas.run(pf.RunID)
	if run.State != models.RunPartial {
		t.Errorf("run state = %q, want partial", run.State)
	}
	sameIDs(t, "run failed ids", run.FailedIDs, ids(b))

	e.users.setFail(b, false)
	closed, err := e.rec.RepairPending(ctx, 10)
	if err != nil {
		t.Fatalf("RepairPending: %v", err)
	}
	if closed != 1 {
		t.Errorf("closed = %d, want 1", closed)
	}
	ub := e.users.get(t, b)
	if ub.Availability != models.Occupied {
		t.Errorf("B availability after repair = %q, want occupied", ub.Availability)
	}
	sameIDs(t, "B assigned after repair", ub.AssignedProjects, ids(p.ID))
	if got := e.sagas.run(pf.RunID); got.State != models.RunRepaired || got.RepairedAt == nil {
		t.Errorf("run not marked repaired: %+v", got)
	}
	e.checkInvariants(t)
}

func TestPartialFailure_FailedUnassignIsNotReleased(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	a, b := e.users.add("A"), e.users.add("B")

	p, err := e.rec.Create(ctx, input("Camp", task(venue, ids(a, b), nil)))
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	e.users.setFail(b, true)

	_, err = e.rec.Update(ctx, p.ID, input("Camp", task(venue, ids(a), nil)))
	var pf *PartialFailureError
	if !errors.As(err, &pf) {
		t.Fatalf("expected PartialFailureError, got %v", err)
	}
	sameIDs(t, "failed ids", pf.FailedIDs(), ids(b))
	// B keeps a consistent, if stale, state until repair runs.
	ub := e.users.get(t, b)
	if ub.Availability != models.Occupied || !containsID(ub.AssignedProjects, p.ID) {
		t.Errorf("B = %q %v, want untouched", ub.Availability, ub.AssignedProjects)
	}
	e.checkInvariants(t)
}

func TestCanceledContextFailsRemainingUsers(t *testing.T) {
	e := newEnv(t)
	a, b := e.users.add("A"), e.users.add("B")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := e.rec.Create(ctx, input("Camp", task(venue, ids(a), ids(b))))
	var pf *PartialFailureError
	if !errors.As(err, &pf) {
		t.Fatalf("expected PartialFailureError, got %v", err)
	}
	sameIDs(t, "failed ids", pf.FailedIDs(), ids(a, b))
	if e.users.writeCount() != 0 {
		t.Error("user writes issued after cancellation")
	}
}
