// internal/app/features/users/users.go
package users

import (
	"errors"
	"net/http"
	"strings"

	uierrors "github.com/dalemusser/projecttracker/internal/app/features/errors"
	userstore "github.com/dalemusser/projecttracker/internal/app/store/users"
	"github.com/dalemusser/projecttracker/internal/app/system/inputval"
	"github.com/dalemusser/projecttracker/internal/app/system/paging"
	"github.com/dalemusser/projecttracker/internal/app/system/timeouts"
	"github.com/dalemusser/projecttracker/internal/domain/models"
	"github.com/dalemusser/waffle/pantry/query"
	"github.com/go-chi/chi/v5"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
)

type createRequest struct {
	FirstName string `json:"first_name" validate:"notblank,max=100"`
	LastName  string `json:"last_name" validate:"max=100"`
	Email     string `json:"email" validate:"required,email,max=254"`
	Phone     string `json:"phone" validate:"max=40"`
	Role      string `json:"role" validate:"required,role"`
}

type byIDsRequest struct {
	IDs []string `json:"ids" validate:"required,min=1,max=500,dive,objectid"`
}

// contact is the trimmed view returned by by-ids.
type contact struct {
	ID    primitive.ObjectID `json:"id"`
	Name  string             `json:"name"`
	Phone string             `json:"phone"`
}

// List serves GET /api/users with optional ?role= and ?availability=, paged
// by ?limit= and ?offset=.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	f := userstore.ListFilter{
		Role:         strings.TrimSpace(query.Get(r, "role")),
		Availability: strings.ToLower(strings.TrimSpace(query.Get(r, "availability"))),
		Offset:       paging.ParseOffset(r),
	}
	limit := paging.ParseLimit(r)
	f.Limit = paging.LimitPlusOne(limit)
	if f.Availability != "" && f.Availability != models.Available && f.Availability != models.Occupied {
		h.ErrLog.Respond(w, r, &inputval.Error{Fields: map[string]string{
			"availability": `availability must be "available" or "occupied"`,
		}})
		return
	}

	ctx, cancel := timeouts.WithTimeout(r.Context(), timeouts.Medium(), h.Log, "list users")
	defer cancel()

	users, err := h.Store.List(ctx, f)
	if err != nil {
		h.ErrLog.Respond(w, r, err)
		return
	}
	uierrors.JSON(w, http.StatusOK, paging.NewPage(users, limit, f.Offset))
}

// Get serves GET /api/users/{id}.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	raw := strings.TrimSpace(chi.URLParam(r, "id"))
	id, err := primitive.ObjectIDFromHex(raw)
	if err != nil {
		uierrors.Write(w, http.StatusNotFound, uierrors.CodeNotFound, "user not found: "+raw)
		return
	}

	ctx, cancel := timeouts.WithTimeout(r.Context(), timeouts.Short(), h.Log, "get user")
	defer cancel()

	u, err := h.Store.GetByID(ctx, id)
	if errors.Is(err, mongo.ErrNoDocuments) {
		uierrors.Write(w, http.StatusNotFound, uierrors.CodeNotFound, "user not found: "+raw)
		return
	}
	if err != nil {
		h.ErrLog.Respond(w, r, err)
		return
	}
	uierrors.JSON(w, http.StatusOK, u)
}

// Create serves POST /api/users.
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	var req createRequest
	if err := inputval.DecodeJSON(r, &req); err != nil {
		h.ErrLog.Respond(w, r, err)
		return
	}

	ctx, cancel := timeouts.WithTimeout(r.Context(), timeouts.Short(), h.Log, "create user")
	defer cancel()

	u, err := h.Store.Create(ctx, models.User{
		FirstName: req.FirstName,
		LastName:  req.LastName,
		Email:     req.Email,
		Phone:     req.Phone,
		Role:      req.Role,
	})
	if err != nil {
		h.ErrLog.Respond(w, r, err)
		return
	}
	h.Audit.UserCreated(r.Context(), r, &u)
	uierrors.JSON(w, http.StatusCreated, u)
}

// ByIDs serves POST /api/users/by-ids. Unknown ids are skipped.
func (h *Handler) ByIDs(w http.ResponseWriter, r *http.Request) {
	var req byIDsRequest
	if err := inputval.DecodeJSON(r, &req); err != nil {
		h.ErrLog.Respond(w, r, err)
		return
	}
	ids, err := inputval.ObjectIDs(req.IDs)
	if err != nil {
		h.ErrLog.Respond(w, r, &inputval.Error{Fields: map[string]string{"ids": err.Error()}})
		return
	}

	ctx, cancel := timeouts.WithTimeout(r.Context(), timeouts.Short(), h.Log, "users by ids")
	defer cancel()

	users, err := h.Store.GetMany(ctx, ids)
	if err != nil {
		h.ErrLog.Respond(w, r, err)
		return
	}
	out := make([]contact, 0, len(users))
	for _, u := range users {
		out = append(out, contact{ID: u.ID, Name: u.FullName(), Phone: u.Phone})
	}
	uierrors.JSON(w, http.StatusOK, out)
}
