// internal/app/system/validators/validators.go
package validators

import (
	"context"
	"errors"
	"strings"

	"github.com/dalemusser/projecttracker/internal/domain/models"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"
)

// EnsureAll creates the collections (if missing) and attaches JSON-Schema
// validators. Servers that don't support collMod/validators (e.g. some
// DocumentDB versions) are logged and skipped.
func EnsureAll(ctx context.Context, db *mongo.Database) error {
	var problems []string

	ensure := func(coll string, schema bson.M) {
		if err := ensureCollection(ctx, db, coll); err != nil {
			problems = append(problems, coll+": "+err.Error())
			return
		}
		if schema == nil {
			return
		}
		if err := setValidator(ctx, db, coll, schema); err != nil {
			if isUnsupported(err) {
				zap.L().Info("validator skipped (unsupported)", zap.String("collection", coll))
				return
			}
			problems = append(problems, coll+": "+err.Error())
		}
	}

	ensure("users", usersSchema())
	ensure("projects", projectsSchema())
	ensure("reconciliations", reconciliationsSchema())

	if len(problems) > 0 {
		return errors.New(strings.Join(problems, "; "))
	}
	return nil
}

/* ---------------------- collection helpers ---------------------- */

func ensureCollection(ctx context.Context, db *mongo.Database, name string) error {
	names, err := db.ListCollectionNames(ctx, bson.M{"name": name})
	if err == nil && len(names) > 0 {
		zap.L().Debug("collection exists", zap.String("collection", name))
		return nil
	}
	// Listing failed or the collection is missing: create and tolerate a race.
	if err := db.CreateCollection(ctx, name); err != nil {
		if commandErrIs(err, 48, "already exists", "namespace exists") {
			return nil
		}
		zap.L().Warn("createCollection failed", zap.String("collection", name), zap.Error(err))
		return err
	}
	zap.L().Info("created collection", zap.String("collection", name))
	return nil
}

func setValidator(ctx context.Context, db *mongo.Database, name string, validator bson.M) error {
	cmd := bson.D{
		{Key: "collMod", Value: name},
		{Key: "validator", Value: validator},
		{Key: "validationLevel", Value: "moderate"},
		{Key: "validationAction", Value: "error"},
	}
	var out bson.M
	if err := db.RunCommand(ctx, cmd).Decode(&out); err != nil {
		return err
	}
	zap.L().Info("validator ensured", zap.String("collection", name))
	return nil
}

// isUnsupported matches "no such command" (59) and "not implemented" (115).
func isUnsupported(err error) bool {
	return commandErrIs(err, 59, "no such command") ||
		commandErrIs(err, 115, "not implemented", "not supported")
}

func commandErrIs(err error, code int32, phrases ...string) bool {
	if err == nil {
		return false
	}
	var ce mongo.CommandError
	if errors.As(err, &ce) && ce.Code == code {
		return true
	}
	s := strings.ToLower(err.Error())
	for _, p := range phrases {
		if strings.Contains(s, p) {
			return true
		}
	}
	return false
}

/* ------------------------- JSON-Schema docs ---------------------- */

var nonBlank = bson.M{"bsonType": "string", "minLength": 1, "pattern": ".*\\S.*"}

func enumOf(values []string) bson.A {
	out := bson.A{}
	for _, v := range values {
		out = append(out, v)
	}
	return out
}

func idArray() bson.M {
	return bson.M{"bsonType": "array", "items": bson.M{"bsonType": "objectId"}}
}

func usersSchema() bson.M {
	return bson.M{
		"$jsonSchema": bson.M{
			"bsonType": "object",
			"required": bson.A{"first_name", "email", "role", "availability", "assigned_projects"},
			"properties": bson.M{
				"first_name":        nonBlank,
				"last_name":         bson.M{"bsonType": "string"},
				"email":             nonBlank,
				"phone":             bson.M{"bsonType": "string"},
				"role":              bson.M{"enum": enumOf(models.Roles)},
				"availability":      bson.M{"enum": bson.A{models.Available, models.Occupied}},
				"assigned_projects": idArray(),
			},
		},
	}
}

func projectsSchema() bson.M {
	task := bson.M{
		"bsonType": "object",
		"required": bson.A{"name", "status", "volunteers", "doctors"},
		"properties": bson.M{
			"name":         bson.M{"enum": enumOf(models.TaskNames)},
			"status":       bson.M{"enum": enumOf(models.TaskStatuses)},
			"volunteers":   idArray(),
			"doctors":      idArray(),
			"completed_by": idArray(),
			"completed_at": bson.M{"bsonType": "date"},
		},
	}
	return bson.M{
		"$jsonSchema": bson.M{
			"bsonType": "object",
			"required": bson.A{"title", "description", "location", "event_date", "tasks", "status", "version"},
			"properties": bson.M{
				"title":       nonBlank,
				"description": nonBlank,
				"location":    nonBlank,
				"event_date":  bson.M{"bsonType": "date"},
				"tasks":       bson.M{"bsonType": "array", "items": task},
				"volunteers":  idArray(),
				"doctors":     idArray(),
				"status":      bson.M{"enum": bson.A{models.ProjectRunning, models.ProjectCompleted}},
				"version":     bson.M{"bsonType": "long", "minimum": 1},
			},
		},
	}
}

func reconciliationsSchema() bson.M {
	return bson.M{
		"$jsonSchema": bson.M{
			"bsonType": "object",
			"required": bson.A{"run_id", "operation", "state", "started_at"},
			"properties": bson.M{
				"run_id":    nonBlank,
				"operation": bson.M{"enum": bson.A{"create", "update", "complete_task", "delete", "repair"}},
				"state": bson.M{"enum": bson.A{
					models.RunPending, models.RunCompleted, models.RunPartial, models.RunFailed, models.RunRepaired,
				}},
				"failed_user_ids": idArray(),
				"started_at":      bson.M{"bsonType": "date"},
			},
		},
	}
}
