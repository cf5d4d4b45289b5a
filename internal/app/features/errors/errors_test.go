package errors

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	userstore "github.com/dalemusser/projecttracker/internal/app/store/users"
	"github.com/dalemusser/projecttracker/internal/app/system/inputval"
	"github.com/dalemusser/projecttracker/internal/app/system/reconcile"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
	}{
		{"request validation", &inputval.Error{Fields: map[string]string{"title": "title cannot be blank"}}, http.StatusBadRequest, CodeValidation},
		{"domain validation", &reconcile.ValidationError{Field: "tasks", Message: "duplicate task"}, http.StatusBadRequest, CodeValidation},
		{"bad role", userstore.ErrBadRole, http.StatusBadRequest, CodeValidation},
		{"not found", &reconcile.NotFoundError{Kind: "project", ID: "abc"}, http.StatusNotFound, CodeNotFound},
		{"wrapped not found", fmt.Errorf("load: %w", &reconcile.NotFoundError{Kind: "user", ID: "u1"}), http.StatusNotFound, CodeNotFound},
		{"version conflict", reconcile.ErrVersionConflict, http.StatusConflict, CodeVersionConflict},
		{"completed", reconcile.ErrProjectCompleted, http.StatusConflict, CodeProjectCompleted},
		{"duplicate email", userstore.ErrDuplicateEmail, http.StatusConflict, CodeDuplicateEmail},
		{"unknown", fmt.Errorf("socket closed"), http.StatusInternalServerError, CodeInternal},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			status, env := Classify(tc.err)
			if status != tc.wantStatus || env.Code != tc.wantCode {
				t.Errorf("Classify = %d/%s, want %d/%s", status, env.Code, tc.wantStatus, tc.wantCode)
			}
		})
	}
}

func TestRespond_HidesAndLogsInternalErrors(t *testing.T) {
	core, logs := observer.New(zapcore.ErrorLevel)
	l := NewErrorLogger(zap.New(core))

	rec := httptest.NewRecorder()
	l.Respond(rec, httptest.NewRequest("GET", "/api/projects", nil), fmt.Errorf("connection reset by peer"))

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", rec.Code)
	}
	var env Envelope
	if err := json.Unmarshal(rec.Body.Bytes(), &env); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if env.Message != "internal server error" {
		t.Errorf("message leaked: %q", env.Message)
	}
	if logs.Len() != 1 {
		t.Errorf("got %d error logs, want 1", logs.Len())
	}
}

func TestRespond_ValidationFields(t *testing.T) {
	l := NewErrorLogger(nil)
	rec := httptest.NewRecorder()
	l.Respond(rec, httptest.NewRequest("POST", "/", nil), &reconcile.ValidationError{Field: "title", Message: "is required"})

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q", ct)
	}
	var env Envelope
	_ = json.Unmarshal(rec.Body.Bytes(), &env)
	if env.Fields["title"] != "is required" {
		t.Errorf("fields = %v", env.Fields)
	}
}
