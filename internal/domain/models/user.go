// internal/domain/models/user.go
package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Availability values.
const (
	Available = "available"
	Occupied  = "occupied"
)

// Roles lists every valid user role.
var Roles = []string{"admin", "manager", "volunteer", "doctor"}

// User represents admins, managers, volunteers and doctors.
//
// NOTE:
//   - Availability and AssignedProjects are owned by the reconciler.
//     No other code path writes them.
//   - AssignedProjects keeps completed projects as history; only running
//     projects make a user occupied.
type User struct {
	ID        primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	FirstName string             `bson:"first_name" json:"first_name"`
	LastName  string             `bson:"last_name" json:"last_name"`
	Email     string             `bson:"email" json:"email"`
	Phone     string             `bson:"phone,omitempty" json:"phone,omitempty"`
	Role      string             `bson:"role" json:"role"` // admin | manager | volunteer | doctor

	Availability     string               `bson:"availability" json:"availability"` // available | occupied
	AssignedProjects []primitive.ObjectID `bson:"assigned_projects" json:"assigned_projects"`

	CreatedAt time.Time `bson:"created_at" json:"created_at"`
	UpdatedAt time.Time `bson:"updated_at" json:"updated_at"`
}

// FullName joins first and last name.
func (u User) FullName() string {
	if u.LastName == "" {
		return u.FirstName
	}
	return u.FirstName + " " + u.LastName
}

// AssignmentState is the reconciler-owned slice of a user document.
type AssignmentState struct {
	UserID           primitive.ObjectID
	AssignedProjects []primitive.ObjectID
	Availability     string
}
