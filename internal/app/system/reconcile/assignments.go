// internal/app/system/reconcile/assignments.go
package reconcile

import (
	"strconv"
	"strings"
	"time"

	"github.com/dalemusser/projecttracker/internal/domain/models"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// ProjectInput is the desired state of a project as submitted by a caller.
type ProjectInput struct {
	Title       string
	Description string
	Location    string
	EventDate   time.Time
	Tasks       []TaskInput

	// ExpectedVersion, when set on Update, must match the stored version.
	ExpectedVersion *int64
}

// TaskInput is the desired assignment set of one task.
type TaskInput struct {
	Name       string
	Volunteers []primitive.ObjectID
	Doctors    []primitive.ObjectID
	Status     string
}

// validateProjectFields checks the scalar project fields.
func validateProjectFields(in ProjectInput) error {
	if strings.TrimSpace(in.Title) == "" {
		return invalid("title", "is required")
	}
	if strings.TrimSpace(in.Description) == "" {
		return invalid("description", "is required")
	}
	if strings.TrimSpace(in.Location) == "" {
		return invalid("location", "is required")
	}
	if in.EventDate.IsZero() {
		return invalid("event_date", "is required")
	}
	return nil
}

// buildTasks turns task inputs into stored tasks. An empty input yields the
// default task list. Completion recorded on prev carries over by task name,
// so a Completed task never reverts.
func buildTasks(inputs []TaskInput, prev []models.Task, now time.Time) ([]models.Task, error) {
	if len(inputs) == 0 {
		inputs = make([]TaskInput, 0, len(models.TaskNames))
		for _, name := range models.TaskNames {
			inputs = append(inputs, TaskInput{Name: name})
		}
	}

	prevByName := make(map[string]models.Task, len(prev))
	for _, t := range prev {
		prevByName[t.Name] = t
	}

	seen := make(map[string]bool, len(inputs))
	out := make([]models.Task, 0, len(inputs))
	for i, in := range inputs {
		name := strings.TrimSpace(in.Name)
		if !models.IsValidTaskName(name) {
			return nil, invalid(fieldf("tasks", i, "name"), "must be one of: "+strings.Join(models.TaskNames, ", "))
		}
		if seen[name] {
			return nil, invalid(fieldf("tasks", i, "name"), "duplicate task "+name)
		}
		seen[name] = true

		status := in.Status
		if status == "" {
			status = models.TaskPending
		}
		if !validTaskStatus(status) {
			return nil, invalid(fieldf("tasks", i, "status"), "must be one of: "+strings.Join(models.TaskStatuses, ", "))
		}

		t := models.Task{
			Name:        name,
			Volunteers:  uniqueIDs(in.Volunteers),
			Doctors:     uniqueIDs(in.Doctors),
			Status:      status,
			CompletedBy: []primitive.ObjectID{},
		}
		if p, ok := prevByName[name]; ok {
			t.CompletedBy = uniqueIDs(p.CompletedBy)
			if p.Status == models.TaskCompleted {
				t.Status = models.TaskCompleted
				t.CompletedAt = p.CompletedAt
			}
		}
		if t.Status == models.TaskCompleted && t.CompletedAt == nil {
			ts := now
			t.CompletedAt = &ts
		}
		out = append(out, t)
	}
	return out, nil
}

func validTaskStatus(s string) bool {
	for _, v := range models.TaskStatuses {
		if v == s {
			return true
		}
	}
	return false
}

func fieldf(list string, i int, field string) string {
	return list + "[" + strconv.Itoa(i) + "]." + field
}

// deriveUnion recomputes the top-level volunteer and doctor sets from tasks.
func deriveUnion(tasks []models.Task) (volunteers, doctors []primitive.ObjectID) {
	var vs, ds [][]primitive.ObjectID
	for _, t := range tasks {
		vs = append(vs, t.Volunteers)
		ds = append(ds, t.Doctors)
	}
	return uniqueIDs(vs...), uniqueIDs(ds...)
}

// taskAssignees is the flattened union of every task's volunteers and doctors.
func taskAssignees(tasks []models.Task) []primitive.ObjectID {
	lists := make([][]primitive.ObjectID, 0, 2*len(tasks))
	for _, t := range tasks {
		lists = append(lists, t.Volunteers, t.Doctors)
	}
	return uniqueIDs(lists...)
}

// participants is every user the project references, top-level or per task.
func participants(p *models.Project) []primitive.ObjectID {
	return uniqueIDs(p.Volunteers, p.Doctors, taskAssignees(p.Tasks))
}

// diffIDs returns next-prev and prev-next, each in first-seen order.
func diffIDs(prev, next []primitive.ObjectID) (added, removed []primitive.ObjectID) {
	inPrev := toSet(prev)
	inNext := toSet(next)
	for _, id := range next {
		if _, ok := inPrev[id]; !ok {
			added = append(added, id)
		}
	}
	for _, id := range prev {
		if _, ok := inNext[id]; !ok {
			removed = append(removed, id)
		}
	}
	return added, removed
}

// uniqueIDs concatenates the lists, dropping duplicates and zero ids.
// The result is never nil so it stores as an empty array.
func uniqueIDs(lists ...[]primitive.ObjectID) []primitive.ObjectID {
	seen := make(map[primitive.ObjectID]struct{})
	out := []primitive.ObjectID{}
	for _, l := range lists {
		for _, id := range l {
			if id.IsZero() {
				continue
			}
			if _, ok := seen[id]; ok {
				continue
			}
			seen[id] = struct{}{}
			out = append(out, id)
		}
	}
	return out
}

func toSet(ids []primitive.ObjectID) map[primitive.ObjectID]struct{} {
	m := make(map[primitive.ObjectID]struct{}, len(ids))
	for _, id := range ids {
		m[id] = struct{}{}
	}
	return m
}

func containsID(ids []primitive.ObjectID, id primitive.ObjectID) bool {
	for _, x := range ids {
		if x == id {
			return true
		}
	}
	return false
}
