// internal/app/features/auditlog/list.go
package auditlog

import (
	"net/http"
	"strings"
	"time"

	uierrors "github.com/dalemusser/projecttracker/internal/app/features/errors"
	"github.com/dalemusser/projecttracker/internal/app/store/audit"
	"github.com/dalemusser/projecttracker/internal/app/system/inputval"
	"github.com/dalemusser/projecttracker/internal/app/system/paging"
	"github.com/dalemusser/projecttracker/internal/app/system/timeouts"
	"github.com/dalemusser/waffle/pantry/query"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

type listResponse struct {
	Items   []audit.Event `json:"items"`
	Total   int64         `json:"total"`
	Limit   int64         `json:"limit"`
	Offset  int64         `json:"offset"`
	HasMore bool          `json:"has_more"`
}

var categories = map[string]bool{
	audit.CategoryProject:   true,
	audit.CategoryUser:      true,
	audit.CategoryReconcile: true,
}

// ServeList handles GET /api/audit. Filters: category, event_type,
// project_id, user_id, start_date, end_date, limit, offset.
func (h *Handler) ServeList(w http.ResponseWriter, r *http.Request) {
	filter, fields := parseFilter(r)
	if len(fields) > 0 {
		h.ErrLog.Respond(w, r, &inputval.Error{Fields: fields})
		return
	}

	ctx, cancel := timeouts.WithTimeout(r.Context(), timeouts.Long(), h.Log, "audit log list")
	defer cancel()

	limit := filter.Limit
	filter.Limit = paging.LimitPlusOne(limit)
	events, err := h.Store.Query(ctx, filter)
	if err != nil {
		h.ErrLog.Respond(w, r, err)
		return
	}
	events, more := paging.Trim(events, limit)

	total, err := h.Store.CountByFilter(ctx, filter)
	if err != nil {
		h.ErrLog.Respond(w, r, err)
		return
	}

	uierrors.JSON(w, http.StatusOK, listResponse{
		Items:   events,
		Total:   total,
		Limit:   limit,
		Offset:  filter.Offset,
		HasMore: more,
	})
}

// parseFilter reads the query string. Bad values are reported per field.
func parseFilter(r *http.Request) (audit.QueryFilter, map[string]string) {
	fields := map[string]string{}
	filter := audit.QueryFilter{
		Category:  strings.TrimSpace(query.Get(r, "category")),
		EventType: strings.TrimSpace(query.Get(r, "event_type")),
		Limit:     paging.ParseLimit(r),
		Offset:    paging.ParseOffset(r),
	}
	if filter.Category != "" && !categories[filter.Category] {
		fields["category"] = "category must be project, user or reconcile"
	}

	for name, dst := range map[string]**primitive.ObjectID{
		"project_id": &filter.ProjectID,
		"user_id":    &filter.UserID,
	} {
		raw := strings.TrimSpace(query.Get(r, name))
		if raw == "" {
			continue
		}
		id, err := primitive.ObjectIDFromHex(raw)
		if err != nil {
			fields[name] = name + " must be a valid id"
			continue
		}
		*dst = &id
	}

	if raw := strings.TrimSpace(query.Get(r, "start_date")); raw != "" {
		t, err := inputval.ParseDate(raw)
		if err != nil {
			fields["start_date"] = "start_date must be a date"
		} else {
			filter.StartTime = &t
		}
	}
	if raw := strings.TrimSpace(query.Get(r, "end_date")); raw != "" {
		t, err := inputval.ParseDate(raw)
		if err != nil {
			fields["end_date"] = "end_date must be a date"
		} else {
			// a bare date covers the whole day
			if len(raw) == len("2006-01-02") {
				t = t.Add(24*time.Hour - time.Nanosecond)
			}
			filter.EndTime = &t
		}
	}
	return filter, fields
}
