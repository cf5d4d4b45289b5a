// internal/app/features/errors/errors.go
package errors

import (
	"encoding/json"
	stderrors "errors"
	"net/http"

	userstore "github.com/dalemusser/projecttracker/internal/app/store/users"
	"github.com/dalemusser/projecttracker/internal/app/system/inputval"
	"github.com/dalemusser/projecttracker/internal/app/system/reconcile"
	"go.uber.org/zap"
)

// Error codes carried in the envelope.
const (
	CodeValidation       = "validation_failed"
	CodeNotFound         = "not_found"
	CodeVersionConflict  = "version_conflict"
	CodeProjectCompleted = "project_completed"
	CodeConflict         = "conflict"
	CodeDuplicateEmail   = "duplicate_email"
	CodePartialFailure   = "partial_failure"
	CodeInternal         = "internal_error"
)

// Envelope is the body of every error response.
type Envelope struct {
	Code    string            `json:"code"`
	Message string            `json:"message"`
	IDs     []string          `json:"ids,omitempty"`
	Fields  map[string]string `json:"fields,omitempty"`
}

// JSON writes v with the given status.
func JSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// Write sends an error envelope.
func Write(w http.ResponseWriter, status int, code, message string) {
	JSON(w, status, Envelope{Code: code, Message: message})
}

// ErrorLogger maps domain errors to responses and logs the unexpected ones.
type ErrorLogger struct {
	log *zap.Logger
}

// NewErrorLogger creates an ErrorLogger.
func NewErrorLogger(logger *zap.Logger) *ErrorLogger {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ErrorLogger{log: logger}
}

// Respond writes the response for err. Unrecognized errors become 500 and
// are logged with the request path; their text is not sent to the client.
func (l *ErrorLogger) Respond(w http.ResponseWriter, r *http.Request, err error) {
	status, env := Classify(err)
	if status == http.StatusInternalServerError {
		l.log.Error("request failed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Error(err))
	}
	JSON(w, status, env)
}

// Classify maps err to a status code and envelope.
func Classify(err error) (int, Envelope) {
	var (
		iv *inputval.Error
		ve *reconcile.ValidationError
		nf *reconcile.NotFoundError
	)
	switch {
	case stderrors.As(err, &iv):
		return http.StatusBadRequest, Envelope{Code: CodeValidation, Message: iv.Error(), Fields: iv.Fields}
	case stderrors.As(err, &ve):
		env := Envelope{Code: CodeValidation, Message: ve.Error()}
		if ve.Field != "" {
			env.Fields = map[string]string{ve.Field: ve.Message}
		}
		return http.StatusBadRequest, env
	case stderrors.Is(err, userstore.ErrBadRole):
		return http.StatusBadRequest, Envelope{Code: CodeValidation, Message: err.Error(), Fields: map[string]string{"role": err.Error()}}
	case stderrors.As(err, &nf):
		return http.StatusNotFound, Envelope{Code: CodeNotFound, Message: nf.Error()}
	case stderrors.Is(err, reconcile.ErrVersionConflict):
		return http.StatusConflict, Envelope{Code: CodeVersionConflict, Message: err.Error()}
	case stderrors.Is(err, reconcile.ErrProjectCompleted):
		return http.StatusConflict, Envelope{Code: CodeProjectCompleted, Message: err.Error()}
	case stderrors.Is(err, reconcile.ErrConflict):
		return http.StatusConflict, Envelope{Code: CodeConflict, Message: err.Error()}
	case stderrors.Is(err, userstore.ErrDuplicateEmail):
		return http.StatusConflict, Envelope{Code: CodeDuplicateEmail, Message: err.Error()}
	default:
		return http.StatusInternalServerError, Envelope{Code: CodeInternal, Message: "internal server error"}
	}
}
