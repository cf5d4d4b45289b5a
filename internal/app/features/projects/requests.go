// internal/app/features/projects/requests.go
package projects

import (
	"strings"

	"github.com/dalemusser/projecttracker/internal/app/system/htmlsanitize"
	"github.com/dalemusser/projecttracker/internal/app/system/inputval"
	"github.com/dalemusser/projecttracker/internal/app/system/reconcile"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

type taskRequest struct {
	Name       string   `json:"name" validate:"required,taskname"`
	Volunteers []string `json:"volunteers" validate:"omitempty,max=500,dive,objectid"`
	Doctors    []string `json:"doctors" validate:"omitempty,max=500,dive,objectid"`
	Status     string   `json:"status" validate:"omitempty,taskstatus"`
}

// projectRequest is the body of create and update. Version is only read on
// update, where it enables the optimistic check.
type projectRequest struct {
	Title       string        `json:"title" validate:"notblank,max=200"`
	Description string        `json:"description" validate:"notblank,max=5000"`
	Location    string        `json:"location" validate:"notblank,max=200"`
	EventDate   string        `json:"event_date" validate:"required,eventdate"`
	Tasks       []taskRequest `json:"tasks" validate:"omitempty,max=6,dive"`
	Version     *int64        `json:"version" validate:"omitempty,min=1"`
}

type completeTaskRequest struct {
	TaskName string `json:"task_name" validate:"required,taskname"`
	UserID   string `json:"user_id" validate:"required,objectid"`
}

// toInput sanitizes free text and converts ids. The body has already been
// validated, so conversion errors are not expected.
func (p projectRequest) toInput() (reconcile.ProjectInput, error) {
	date, err := inputval.ParseDate(p.EventDate)
	if err != nil {
		return reconcile.ProjectInput{}, err
	}
	in := reconcile.ProjectInput{
		Title:           htmlsanitize.Text(p.Title),
		Description:     htmlsanitize.Sanitize(p.Description),
		Location:        htmlsanitize.Text(p.Location),
		EventDate:       date,
		ExpectedVersion: p.Version,
	}
	for _, t := range p.Tasks {
		vs, err := inputval.ObjectIDs(t.Volunteers)
		if err != nil {
			return reconcile.ProjectInput{}, err
		}
		ds, err := inputval.ObjectIDs(t.Doctors)
		if err != nil {
			return reconcile.ProjectInput{}, err
		}
		in.Tasks = append(in.Tasks, reconcile.TaskInput{
			Name:       strings.TrimSpace(t.Name),
			Volunteers: vs,
			Doctors:    ds,
			Status:     t.Status,
		})
	}
	return in, nil
}

func (c completeTaskRequest) userID() primitive.ObjectID {
	id, _ := primitive.ObjectIDFromHex(strings.TrimSpace(c.UserID))
	return id
}
