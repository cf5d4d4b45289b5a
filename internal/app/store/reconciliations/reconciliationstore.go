// internal/app/store/reconciliations/reconciliationstore.go
package reconciliationstore

import (
	"context"
	"time"

	"github.com/dalemusser/projecttracker/internal/domain/models"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// Store journals reconciliation runs, one document per run keyed by run_id.
type Store struct {
	c *mongo.Collection
}

func New(db *mongo.Database) *Store {
	return &Store{c: db.Collection("reconciliations")}
}

// Begin records a run that has just started.
func (s *Store) Begin(ctx context.Context, rec models.Reconciliation) error {
	_, err := s.c.InsertOne(ctx, rec)
	return err
}

// Finish stores the final state and steps of a run. It upserts so a run
// whose Begin was lost is still recorded.
func (s *Store) Finish(ctx context.Context, rec models.Reconciliation) error {
	set := bson.M{
		"operation":   rec.Operation,
		"state":       rec.State,
		"steps":       rec.Steps,
		"finished_at": rec.FinishedAt,
	}
	if len(rec.FailedIDs) > 0 {
		set["failed_user_ids"] = rec.FailedIDs
	}
	if !rec.ProjectID.IsZero() {
		set["project_id"] = rec.ProjectID
	}
	_, err := s.c.UpdateOne(ctx,
		bson.M{"run_id": rec.RunID},
		bson.M{
			"$set":         set,
			"$setOnInsert": bson.M{"started_at": rec.StartedAt},
		},
		options.Update().SetUpsert(true),
	)
	return err
}

// ListPartial returns up to limit partial runs, oldest first.
func (s *Store) ListPartial(ctx context.Context, limit int64) ([]models.Reconciliation, error) {
	opts := options.Find().SetSort(bson.D{{Key: "started_at", Value: 1}}).SetLimit(limit)
	return s.find(ctx, bson.M{"state": models.RunPartial}, opts)
}

// MarkRepaired moves a partial run to repaired. Runs in any other state are left alone.
func (s *Store) MarkRepaired(ctx context.Context, runID string, at time.Time) error {
	_, err := s.c.UpdateOne(ctx,
		bson.M{"run_id": runID, "state": models.RunPartial},
		bson.M{"$set": bson.M{"state": models.RunRepaired, "repaired_at": at}},
	)
	return err
}

// GetByRunID loads one run. Returns mongo.ErrNoDocuments if not found.
func (s *Store) GetByRunID(ctx context.Context, runID string) (models.Reconciliation, error) {
	var rec models.Reconciliation
	if err := s.c.FindOne(ctx, bson.M{"run_id": runID}).Decode(&rec); err != nil {
		return models.Reconciliation{}, err
	}
	return rec, nil
}

// Recent returns the most recent runs, newest first. A non-empty state
// narrows the list.
func (s *Store) Recent(ctx context.Context, state string, limit int64) ([]models.Reconciliation, error) {
	filter := bson.M{}
	if state != "" {
		filter["state"] = state
	}
	opts := options.Find().SetSort(bson.D{{Key: "started_at", Value: -1}}).SetLimit(limit)
	return s.find(ctx, filter, opts)
}

func (s *Store) find(ctx context.Context, filter bson.M, opts *options.FindOptions) ([]models.Reconciliation, error) {
	cur, err := s.c.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	out := []models.Reconciliation{}
	if err := cur.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}
