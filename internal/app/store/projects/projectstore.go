// internal/app/store/projects/projectstore.go
package projectstore

import (
	"context"

	"github.com/dalemusser/projecttracker/internal/domain/models"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type Store struct {
	c *mongo.Collection
}

func New(db *mongo.Database) *Store {
	return &Store{c: db.Collection("projects")}
}

// GetByID loads a project. Returns mongo.ErrNoDocuments if not found.
func (s *Store) GetByID(ctx context.Context, id primitive.ObjectID) (models.Project, error) {
	var p models.Project
	if err := s.c.FindOne(ctx, bson.M{"_id": id}).Decode(&p); err != nil {
		return models.Project{}, err
	}
	return p, nil
}

// Insert stores a fully built project. The caller sets ID, version and timestamps.
func (s *Store) Insert(ctx context.Context, p models.Project) error {
	_, err := s.c.InsertOne(ctx, p)
	return err
}

// ReplaceVersioned replaces the project only while its stored version is
// still version. It reports whether a document matched.
func (s *Store) ReplaceVersioned(ctx context.Context, p models.Project, version int64) (bool, error) {
	res, err := s.c.ReplaceOne(ctx, bson.M{"_id": p.ID, "version": version}, p)
	if err != nil {
		return false, err
	}
	return res.MatchedCount == 1, nil
}

// DeleteVersioned removes the project only while its stored version is
// still version. It reports whether a document was deleted.
func (s *Store) DeleteVersioned(ctx context.Context, id primitive.ObjectID, version int64) (bool, error) {
	res, err := s.c.DeleteOne(ctx, bson.M{"_id": id, "version": version})
	if err != nil {
		return false, err
	}
	return res.DeletedCount == 1, nil
}

// Referencing returns every project, running or completed, that names at
// least one of userIDs in its top-level or task-level assignment lists.
func (s *Store) Referencing(ctx context.Context, userIDs []primitive.ObjectID) ([]models.Project, error) {
	if len(userIDs) == 0 {
		return nil, nil
	}
	in := bson.M{"$in": userIDs}
	filter := bson.M{"$or": bson.A{
		bson.M{"volunteers": in},
		bson.M{"doctors": in},
		bson.M{"tasks.volunteers": in},
		bson.M{"tasks.doctors": in},
	}}
	return s.find(ctx, filter, options.Find())
}

// List returns projects ordered by event date, newest first. An empty status
// lists every project; a limit of 0 returns every match after offset.
func (s *Store) List(ctx context.Context, status string, limit, offset int64) ([]models.Project, error) {
	filter := bson.M{}
	if status != "" {
		filter["status"] = status
	}
	opts := options.Find().
		SetSort(bson.D{{Key: "event_date", Value: -1}, {Key: "_id", Value: 1}}).
		SetSkip(offset)
	if limit > 0 {
		opts.SetLimit(limit)
	}
	return s.find(ctx, filter, opts)
}

// ListRunning returns the projects that still block their assignees.
func (s *Store) ListRunning(ctx context.Context) ([]models.Project, error) {
	return s.List(ctx, models.ProjectRunning, 0, 0)
}

func (s *Store) find(ctx context.Context, filter bson.M, opts *options.FindOptions) ([]models.Project, error) {
	cur, err := s.c.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	out := []models.Project{}
	if err := cur.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}
