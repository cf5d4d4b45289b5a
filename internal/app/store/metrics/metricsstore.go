package metricsstore

import (
	"context"

	"github.com/dalemusser/projecttracker/internal/domain/models"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
)

// Counts is the set of totals exported as gauges.
type Counts struct {
	RunningProjects   int64
	CompletedProjects int64
	AvailableUsers    int64
	OccupiedUsers     int64
	PartialRuns       int64
}

// FetchCounts returns tracker totals.
// Intentionally tolerant: on error it returns 0 for that counter.
func FetchCounts(ctx context.Context, db *mongo.Database) Counts {
	var out Counts

	count := func(coll string, filter bson.M) int64 {
		n, err := db.Collection(coll).CountDocuments(ctx, filter)
		if err != nil {
			return 0
		}
		return n
	}

	out.RunningProjects = count("projects", bson.M{"status": models.ProjectRunning})
	out.CompletedProjects = count("projects", bson.M{"status": models.ProjectCompleted})
	out.AvailableUsers = count("users", bson.M{"availability": models.Available})
	out.OccupiedUsers = count("users", bson.M{"availability": models.Occupied})
	out.PartialRuns = count("reconciliations", bson.M{"state": models.RunPartial})

	return out
}
