// internal/domain/models/project.go
package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Project status values.
const (
	ProjectRunning   = "running"
	ProjectCompleted = "completed"
)

// Task status values.
const (
	TaskPending    = "Pending"
	TaskInProgress = "In Progress"
	TaskCompleted  = "Completed"
)

// TaskNames is the closed set of task categories a project can carry.
// The order is the order used when a project is created without tasks.
var TaskNames = []string{
	"Venue & Logistic Setup",
	"Registration & Scheduling",
	"Doctors & Consultants",
	"Media & Documentation",
	"Community Awareness",
	"Miscellaneous",
}

// TaskStatuses lists every valid task status.
var TaskStatuses = []string{TaskPending, TaskInProgress, TaskCompleted}

// IsValidTaskName reports whether name is one of TaskNames.
func IsValidTaskName(name string) bool {
	for _, n := range TaskNames {
		if n == name {
			return true
		}
	}
	return false
}

// Project is a community event with per-task volunteer/doctor assignments.
//
// NOTE:
//   - Volunteers and Doctors are a derived view: the union of the task-level
//     lists. They are recomputed from Tasks on every write and are never
//     edited on their own.
//   - Version is bumped on every write and guards concurrent updates.
type Project struct {
	ID          primitive.ObjectID `bson:"_id" json:"id"`
	Title       string             `bson:"title" json:"title"`
	Description string             `bson:"description" json:"description"`
	Location    string             `bson:"location" json:"location"`
	EventDate   time.Time          `bson:"event_date" json:"event_date"`

	Tasks      []Task               `bson:"tasks" json:"tasks"`
	Volunteers []primitive.ObjectID `bson:"volunteers" json:"volunteers"`
	Doctors    []primitive.ObjectID `bson:"doctors" json:"doctors"`

	Status  string `bson:"status" json:"status"` // running | completed
	Version int64  `bson:"version" json:"version"`

	CreatedAt time.Time `bson:"created_at" json:"created_at"`
	UpdatedAt time.Time `bson:"updated_at" json:"updated_at"`
}

// Task is embedded in a Project and addressed by Name.
type Task struct {
	Name        string               `bson:"name" json:"name"`
	Volunteers  []primitive.ObjectID `bson:"volunteers" json:"volunteers"`
	Doctors     []primitive.ObjectID `bson:"doctors" json:"doctors"`
	Status      string               `bson:"status" json:"status"` // Pending | In Progress | Completed
	CompletedBy []primitive.ObjectID `bson:"completed_by" json:"completed_by"`
	CompletedAt *time.Time           `bson:"completed_at,omitempty" json:"completed_at,omitempty"`
}

// FindTask returns a pointer to the task with the given name, or nil.
func (p *Project) FindTask(name string) *Task {
	for i := range p.Tasks {
		if p.Tasks[i].Name == name {
			return &p.Tasks[i]
		}
	}
	return nil
}

// AllTasksCompleted reports whether every task is Completed.
// A project without tasks is never considered complete.
func (p *Project) AllTasksCompleted() bool {
	if len(p.Tasks) == 0 {
		return false
	}
	for _, t := range p.Tasks {
		if t.Status != TaskCompleted {
			return false
		}
	}
	return true
}

// IsRunning reports whether the project still blocks its assignees.
func (p *Project) IsRunning() bool {
	return p.Status != ProjectCompleted
}
