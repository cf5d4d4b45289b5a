// internal/domain/models/reconciliation.go
package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Reconciliation run states.
const (
	RunPending   = "pending"
	RunCompleted = "completed"
	RunPartial   = "partial"
	RunFailed    = "failed"
	RunRepaired  = "repaired"
)

// Reconciliation step outcomes.
const (
	StepOK     = "ok"
	StepFailed = "failed"
)

// Reconciliation is the persisted record of one reconciliation run: the
// project write followed by the per-user writes it triggered. Runs left in
// "partial" state are picked up by the repair worker.
type Reconciliation struct {
	ID         primitive.ObjectID   `bson:"_id,omitempty" json:"id"`
	RunID      string               `bson:"run_id" json:"run_id"`
	Operation  string               `bson:"operation" json:"operation"` // create | update | complete_task | delete | repair
	ProjectID  primitive.ObjectID   `bson:"project_id,omitempty" json:"project_id,omitempty"`
	State      string               `bson:"state" json:"state"`
	Steps      []ReconcileStep      `bson:"steps" json:"steps"`
	FailedIDs  []primitive.ObjectID `bson:"failed_user_ids,omitempty" json:"failed_user_ids,omitempty"`
	StartedAt  time.Time            `bson:"started_at" json:"started_at"`
	FinishedAt *time.Time           `bson:"finished_at,omitempty" json:"finished_at,omitempty"`
	RepairedAt *time.Time           `bson:"repaired_at,omitempty" json:"repaired_at,omitempty"`
}

// ReconcileStep records the outcome of a single write inside a run.
type ReconcileStep struct {
	Kind    string              `bson:"kind" json:"kind"` // project | user
	Action  string              `bson:"action" json:"action"`
	UserID  *primitive.ObjectID `bson:"user_id,omitempty" json:"user_id,omitempty"`
	Outcome string              `bson:"outcome" json:"outcome"`
	Error   string              `bson:"error,omitempty" json:"error,omitempty"`
	At      time.Time           `bson:"at" json:"at"`
}
