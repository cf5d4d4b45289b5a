// internal/app/store/users/assignments.go
package userstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dalemusser/projecttracker/internal/domain/models"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// The writes below are the only code that touches availability and
// assigned_projects. Each call is a single unordered bulk write; the
// returned map holds the users whose write failed.

// AddProject adds projectID to each user's assigned_projects and marks them occupied.
func (s *Store) AddProject(ctx context.Context, projectID primitive.ObjectID, ids []primitive.ObjectID) map[primitive.ObjectID]error {
	now := time.Now().UTC()
	return s.bulk(ctx, ids, func(id primitive.ObjectID) mongo.WriteModel {
		return mongo.NewUpdateOneModel().
			SetFilter(bson.M{"_id": id}).
			SetUpdate(bson.M{
				"$addToSet": bson.M{"assigned_projects": projectID},
				"$set":      bson.M{"availability": models.Occupied, "updated_at": now},
			})
	})
}

// RemoveProject pulls projectID from each user's assigned_projects.
// Availability is left to SetAvailability.
func (s *Store) RemoveProject(ctx context.Context, projectID primitive.ObjectID, ids []primitive.ObjectID) map[primitive.ObjectID]error {
	now := time.Now().UTC()
	return s.bulk(ctx, ids, func(id primitive.ObjectID) mongo.WriteModel {
		return mongo.NewUpdateOneModel().
			SetFilter(bson.M{"_id": id}).
			SetUpdate(bson.M{
				"$pull": bson.M{"assigned_projects": projectID},
				"$set":  bson.M{"updated_at": now},
			})
	})
}

// SetAvailability writes the given availability per user.
func (s *Store) SetAvailability(ctx context.Context, states map[primitive.ObjectID]string) map[primitive.ObjectID]error {
	ids := make([]primitive.ObjectID, 0, len(states))
	for id := range states {
		ids = append(ids, id)
	}
	now := time.Now().UTC()
	return s.bulk(ctx, ids, func(id primitive.ObjectID) mongo.WriteModel {
		return mongo.NewUpdateOneModel().
			SetFilter(bson.M{"_id": id}).
			SetUpdate(bson.M{"$set": bson.M{"availability": states[id], "updated_at": now}})
	})
}

// SetAssignments overwrites assigned_projects and availability. Used by repair.
func (s *Store) SetAssignments(ctx context.Context, states []models.AssignmentState) map[primitive.ObjectID]error {
	byID := make(map[primitive.ObjectID]models.AssignmentState, len(states))
	ids := make([]primitive.ObjectID, 0, len(states))
	for _, st := range states {
		byID[st.UserID] = st
		ids = append(ids, st.UserID)
	}
	now := time.Now().UTC()
	return s.bulk(ctx, ids, func(id primitive.ObjectID) mongo.WriteModel {
		st := byID[id]
		assigned := st.AssignedProjects
		if assigned == nil {
			assigned = []primitive.ObjectID{}
		}
		return mongo.NewUpdateOneModel().
			SetFilter(bson.M{"_id": id}).
			SetUpdate(bson.M{"$set": bson.M{
				"assigned_projects": assigned,
				"availability":      st.Availability,
				"updated_at":        now,
			}})
	})
}

// bulk issues one unordered BulkWrite with a model per id and maps write
// errors back to the ids. An error that is not a BulkWriteException fails
// every id in the batch.
func (s *Store) bulk(ctx context.Context, ids []primitive.ObjectID, model func(primitive.ObjectID) mongo.WriteModel) map[primitive.ObjectID]error {
	failed := map[primitive.ObjectID]error{}
	if len(ids) == 0 {
		return failed
	}

	writes := make([]mongo.WriteModel, 0, len(ids))
	for _, id := range ids {
		writes = append(writes, model(id))
	}

	_, err := s.c.BulkWrite(ctx, writes, options.BulkWrite().SetOrdered(false))
	if err == nil {
		return failed
	}

	var bulkErr mongo.BulkWriteException
	if errors.As(err, &bulkErr) && len(bulkErr.WriteErrors) > 0 {
		for _, we := range bulkErr.WriteErrors {
			if we.Index >= 0 && we.Index < len(ids) {
				failed[ids[we.Index]] = fmt.Errorf("user write: %s", we.Message)
			}
		}
		// A write concern error leaves every write unconfirmed.
		if bulkErr.WriteConcernError != nil {
			for _, id := range ids {
				if _, ok := failed[id]; !ok {
					failed[id] = bulkErr.WriteConcernError
				}
			}
		}
		return failed
	}

	for _, id := range ids {
		failed[id] = err
	}
	return failed
}
