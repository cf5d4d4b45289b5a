package reconcile

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/dalemusser/projecttracker/internal/domain/models"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"
)

var errWriteFailed = errors.New("write failed")

// memProjects is an in-memory ProjectRepo.
type memProjects struct {
	mu sync.Mutex
	m  map[primitive.ObjectID]models.Project

	// conflicts makes the next n ReplaceVersioned calls report a lost race.
	conflicts int
	replaces  int
	deletes   int
}

// hookedProjects runs a hook once, right after the first ReplaceVersioned or
// before the first DeleteVersioned, to interleave a second operation.
type hookedProjects struct {
	*memProjects
	afterReplace func()
	beforeDelete func()
}

func (s *hookedProjects) ReplaceVersioned(ctx context.Context, p models.Project, version int64) (bool, error) {
	ok, err := s.memProjects.ReplaceVersioned(ctx, p, version)
	if fn := s.afterReplace; fn != nil {
		s.afterReplace = nil
		fn()
	}
	return ok, err
}

func (s *hookedProjects) DeleteVersioned(ctx context.Context, id primitive.ObjectID, version int64) (bool, error) {
	if fn := s.beforeDelete; fn != nil {
		s.beforeDelete = nil
		fn()
	}
	return s.memProjects.DeleteVersioned(ctx, id, version)
}

// recordedRuns is a Metrics sink that keeps every observed run state.
type recordedRuns struct {
	mu     sync.Mutex
	states []string
}

func (m *recordedRuns) ObserveRun(_, state string, _ time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.states = append(m.states, state)
}

func (m *recordedRuns) AddUserWrites(string, int, int) {}

func newMemProjects() *memProjects {
	return &memProjects{m: map[primitive.ObjectID]models.Project{}}
}

func (s *memProjects) GetByID(_ context.Context, id primitive.ObjectID) (models.Project, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.m[id]
	if !ok {
		return models.Project{}, mongo.ErrNoDocuments
	}
	return cloneProject(p), nil
}

func (s *memProjects) Insert(_ context.Context, p models.Project) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.m[p.ID] = cloneProject(p)
	return nil
}

func (s *memProjects) ReplaceVersioned(_ context.Context, p models.Project, version int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.replaces++
	if s.conflicts > 0 {
		s.conflicts--
		return false, nil
	}
	cur, ok := s.m[p.ID]
	if !ok || cur.Version != version {
		return false, nil
	}
	s.m[p.ID] = cloneProject(p)
	return true, nil
}

func (s *memProjects) DeleteVersioned(_ context.Context, id primitive.ObjectID, version int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deletes++
	cur, ok := s.m[id]
	if !ok || cur.Version != version {
		return false, nil
	}
	delete(s.m, id)
	return true, nil
}

func (s *memProjects) Referencing(_ context.Context, userIDs []primitive.ObjectID) ([]models.Project, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	want := toSet(userIDs)
	var out []models.Project
	for _, p := range s.m {
		for _, u := range participants(&p) {
			if _, ok := want[u]; ok {
				out = append(out, cloneProject(p))
				break
			}
		}
	}
	return out, nil
}

func (s *memProjects) get(t *testing.T, id primitive.ObjectID) models.Project {
	t.Helper()
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.m[id]
	if !ok {
		t.Fatalf("project %s not stored", id.Hex())
	}
	return p
}

// memUsers is an in-memory UserDirectory. Writes to ids in fail are rejected.
type memUsers struct {
	mu     sync.Mutex
	m      map[primitive.ObjectID]models.User
	fail   map[primitive.ObjectID]bool
	writes int
}

func newMemUsers() *memUsers {
	return &memUsers{m: map[primitive.ObjectID]models.User{}, fail: map[primitive.ObjectID]bool{}}
}

func (s *memUsers) add(name string) primitive.ObjectID {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := primitive.NewObjectID()
	s.m[id] = models.User{
		ID:               id,
		FirstName:        name,
		Role:             "volunteer",
		Availability:     models.Available,
		AssignedProjects: []primitive.ObjectID{},
	}
	return id
}

func (s *memUsers) get(t *testing.T, id primitive.ObjectID) models.User {
	t.Helper()
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.m[id]
	if !ok {
		t.Fatalf("user %s not stored", id.Hex())
	}
	return u
}

func (s *memUsers) set(u models.User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.m[u.ID] = u
}

func (s *memUsers) setFail(id primitive.ObjectID, v bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fail[id] = v
}

func (s *memUsers) writeCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writes
}

func (s *memUsers) Missing(_ context.Context, ids []primitive.ObjectID) ([]primitive.ObjectID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []primitive.ObjectID
	for _, id := range ids {
		if _, ok := s.m[id]; !ok {
			out = append(out, id)
		}
	}
	return out, nil
}

func (s *memUsers) GetMany(_ context.Context, ids []primitive.ObjectID) ([]models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.User
	for _, id := range ids {
		if u, ok := s.m[id]; ok {
			out = append(out, u)
		}
	}
	return out, nil
}

func (s *memUsers) AllIDs(context.Context) ([]primitive.ObjectID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]primitive.ObjectID, 0, len(s.m))
	for id := range s.m {
		out = append(out, id)
	}
	return out, nil
}

// apply runs fn for every id, collecting failures the way a bulk write does.
func (s *memUsers) apply(ids []primitive.ObjectID, fn func(u *models.User)) map[primitive.ObjectID]error {
	s.mu.Lock()
	defer s.mu.Unlock()
	failed := map[primitive.ObjectID]error{}
	for _, id := range ids {
		if s.fail[id] {
			failed[id] = errWriteFailed
			continue
		}
		u, ok := s.m[id]
		if !ok {
			continue
		}
		fn(&u)
		s.m[id] = u
		s.writes++
	}
	return failed
}

func (s *memUsers) AddProject(_ context.Context, projectID primitive.ObjectID, ids []primitive.ObjectID) map[primitive.ObjectID]error {
	return s.apply(ids, func(u *models.User) {
		if !containsID(u.AssignedProjects, projectID) {
			u.AssignedProjects = append(u.AssignedProjects, projectID)
		}
		u.Availability = models.Occupied
	})
}

func (s *memUsers) RemoveProject(_ context.Context, projectID primitive.ObjectID, ids []primitive.ObjectID) map[primitive.ObjectID]error {
	return s.apply(ids, func(u *models.User) {
		kept := []primitive.ObjectID{}
		for _, p := range u.AssignedProjects {
			if p != projectID {
				kept = append(kept, p)
			}
		}
		u.AssignedProjects = kept
	})
}

func (s *memUsers) SetAvailability(_ context.Context, states map[primitive.ObjectID]string) map[primitive.ObjectID]error {
	ids := make([]primitive.ObjectID, 0, len(states))
	for id := range states {
		ids = append(ids, id)
	}
	return s.apply(ids, func(u *models.User) { u.Availability = states[u.ID] })
}

func (s *memUsers) SetAssignments(_ context.Context, states []models.AssignmentState) map[primitive.ObjectID]error {
	byID := map[primitive.ObjectID]models.AssignmentState{}
	ids := make([]primitive.ObjectID, 0, len(states))
	for _, st := range states {
		byID[st.UserID] = st
		ids = append(ids, st.UserID)
	}
	return s.apply(ids, func(u *models.User) {
		st := byID[u.ID]
		u.AssignedProjects = append([]primitive.ObjectID{}, st.AssignedProjects...)
		u.Availability = st.Availability
	})
}

// memSagas is an in-memory SagaStore.
type memSagas struct {
	mu   sync.Mutex
	runs map[string]models.Reconciliation
	last string
}

func newMemSagas() *memSagas {
	return &memSagas{runs: map[string]models.Reconciliation{}}
}

func (s *memSagas) Begin(_ context.Context, rec models.Reconciliation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.runs[rec.RunID] = rec
	s.last = rec.RunID
	return nil
}

func (s *memSagas) Finish(_ context.Context, rec models.Reconciliation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.runs[rec.RunID] = rec
	return nil
}

func (s *memSagas) ListPartial(_ context.Context, limit int64) ([]models.Reconciliation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Reconciliation
	for _, r := range s.runs {
		if r.State == models.RunPartial && int64(len(out)) < limit {
			out = append(out, r)
		}
	}
	return out, nil
}

func (s *memSagas) MarkRepaired(_ context.Context, runID string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r := s.runs[runID]
	r.State = models.RunRepaired
	r.RepairedAt = &at
	s.runs[runID] = r
	return nil
}

func (s *memSagas) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.runs)
}

func (s *memSagas) run(id string) models.Reconciliation {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.runs[id]
}

type env struct {
	projects *memProjects
	users    *memUsers
	sagas    *memSagas
	rec      *Reconciler
	opts     []Option
}

func newEnv(t *testing.T, opts ...Option) *env {
	t.Helper()
	e := &env{projects: newMemProjects(), users: newMemUsers(), sagas: newMemSagas()}
	clock := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	opts = append([]Option{WithClock(func() time.Time {
		clock = clock.Add(time.Second)
		return clock
	})}, opts...)
	e.opts = opts
	e.rec = New(e.projects, e.users, e.sagas, zap.NewNop(), opts...)
	return e
}

// withHooks routes the reconciler's project writes through a hookedProjects.
func (e *env) withHooks() *hookedProjects {
	h := &hookedProjects{memProjects: e.projects}
	e.rec = New(h, e.users, e.sagas, zap.NewNop(), e.opts...)
	return h
}

// checkInvariants asserts the two availability invariants over every user.
func (e *env) checkInvariants(t *testing.T) {
	t.Helper()
	e.users.mu.Lock()
	users := make([]models.User, 0, len(e.users.m))
	for _, u := range e.users.m {
		users = append(users, u)
	}
	e.users.mu.Unlock()

	for _, u := range users {
		if len(u.AssignedProjects) == 0 && u.Availability != models.Available {
			t.Errorf("user %s: no assigned projects but %q", u.FirstName, u.Availability)
		}
		if u.Availability != models.Available {
			continue
		}
		for _, pid := range u.AssignedProjects {
			e.projects.mu.Lock()
			p, ok := e.projects.m[pid]
			e.projects.mu.Unlock()
			if ok && p.IsRunning() && containsID(participants(&p), u.ID) {
				t.Errorf("user %s: available while assigned to running project %q", u.FirstName, p.Title)
			}
		}
	}
}

func eventDate() time.Time { return time.Date(2026, 4, 18, 0, 0, 0, 0, time.UTC) }

func input(title string, tasks ...TaskInput) ProjectInput {
	return ProjectInput{
		Title:       title,
		Description: "Free health camp",
		Location:    "Community Hall",
		EventDate:   eventDate(),
		Tasks:       tasks,
	}
}

func task(name string, vols, docs []primitive.ObjectID) TaskInput {
	return TaskInput{Name: name, Volunteers: vols, Doctors: docs}
}

func ids(v ...primitive.ObjectID) []primitive.ObjectID { return v }
