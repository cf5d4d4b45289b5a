package testutil

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/dalemusser/projecttracker/internal/domain/models"
	"github.com/go-chi/chi/v5"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
)

// WithChiURLParam adds a chi URL parameter to the request context.
// Use this in handler tests that need to access chi.URLParam values.
func WithChiURLParam(r *http.Request, key, value string) *http.Request {
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add(key, value)
	return r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, rctx))
}

// Fixtures provides helper methods for creating test data.
type Fixtures struct {
	db *mongo.Database
	t  *testing.T
}

// NewFixtures creates a new Fixtures instance for the given test database.
func NewFixtures(t *testing.T, db *mongo.Database) *Fixtures {
	t.Helper()
	return &Fixtures{db: db, t: t}
}

// DB returns the underlying database for direct access in tests.
func (f *Fixtures) DB() *mongo.Database {
	return f.db
}

// CreateUser inserts an available user with the given role and no assignments.
func (f *Fixtures) CreateUser(ctx context.Context, firstName, role string) models.User {
	f.t.Helper()

	now := time.Now().UTC()
	u := models.User{
		ID:               primitive.NewObjectID(),
		FirstName:        firstName,
		LastName:         "Test",
		Email:            primitive.NewObjectID().Hex() + "@example.com",
		Phone:            "01700000000",
		Role:             role,
		Availability:     models.Available,
		AssignedProjects: []primitive.ObjectID{},
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if _, err := f.db.Collection("users").InsertOne(ctx, u); err != nil {
		f.t.Fatalf("failed to create test user: %v", err)
	}
	return u
}

// SetUserState overwrites a user's reconciler-owned fields, for drift tests.
func (f *Fixtures) SetUserState(ctx context.Context, id primitive.ObjectID, availability string, assigned []primitive.ObjectID) {
	f.t.Helper()
	if assigned == nil {
		assigned = []primitive.ObjectID{}
	}
	_, err := f.db.Collection("users").UpdateByID(ctx, id, bson.M{
		"$set": bson.M{"availability": availability, "assigned_projects": assigned},
	})
	if err != nil {
		f.t.Fatalf("failed to set user state: %v", err)
	}
}

// CreateProject inserts a running project with one task per name, each
// assigned to volunteers. Users are not touched.
func (f *Fixtures) CreateProject(ctx context.Context, title string, volunteers []primitive.ObjectID, taskNames ...string) models.Project {
	f.t.Helper()

	if len(taskNames) == 0 {
		taskNames = []string{models.TaskNames[0]}
	}
	if volunteers == nil {
		volunteers = []primitive.ObjectID{}
	}
	now := time.Now().UTC()
	p := models.Project{
		ID:          primitive.NewObjectID(),
		Title:       title,
		Description: "Test project",
		Location:    "Test Location",
		EventDate:   now.Add(14 * 24 * time.Hour).Truncate(time.Millisecond),
		Volunteers:  volunteers,
		Doctors:     []primitive.ObjectID{},
		Status:      models.ProjectRunning,
		Version:     1,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	for _, name := range taskNames {
		p.Tasks = append(p.Tasks, models.Task{
			Name:        name,
			Volunteers:  volunteers,
			Doctors:     []primitive.ObjectID{},
			Status:      models.TaskPending,
			CompletedBy: []primitive.ObjectID{},
		})
	}
	if _, err := f.db.Collection("projects").InsertOne(ctx, p); err != nil {
		f.t.Fatalf("failed to create test project: %v", err)
	}
	return p
}
