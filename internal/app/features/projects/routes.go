// internal/app/features/projects/routes.go
package projects

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// Routes returns the project API router, mounted under /api/projects.
// Mutating routes pass through limit when it is non-nil.
func Routes(h *Handler, limit func(http.Handler) http.Handler) chi.Router {
	r := chi.NewRouter()
	r.Get("/", h.List)
	r.Get("/running", h.ListRunning)
	r.Get("/{id}", h.Get)

	r.Group(func(r chi.Router) {
		if limit != nil {
			r.Use(limit)
		}
		r.Post("/", h.Create)
		r.Put("/{id}", h.Update)
		r.Put("/{id}/complete-task", h.CompleteTask)
		r.Delete("/{id}", h.Delete)
	})
	return r
}
