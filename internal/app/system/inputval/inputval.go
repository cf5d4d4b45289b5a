// internal/app/system/inputval/inputval.go
package inputval

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"reflect"
	"sort"
	"strings"
	"time"

	"github.com/dalemusser/projecttracker/internal/domain/models"
	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	en_translations "github.com/go-playground/validator/v10/translations/en"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// MaxBodySize caps JSON request bodies.
const MaxBodySize = 1 << 20 // 1 MB

// DateLayouts are the accepted event date formats.
var DateLayouts = []string{time.RFC3339, "2006-01-02"}

var (
	validate   *validator.Validate
	translator ut.Translator
)

// custom tags and their messages
var customTags = map[string]struct {
	fn  validator.Func
	msg string
}{
	"notblank":   {notBlank, "{0} cannot be blank"},
	"objectid":   {objectID, "{0} must be a valid id"},
	"taskname":   {taskName, "{0} must be a known task name"},
	"taskstatus": {taskStatus, "{0} must be Pending, In Progress or Completed"},
	"role":       {role, "{0} must be admin, manager, volunteer or doctor"},
	"eventdate":  {eventDate, "{0} must be a date (YYYY-MM-DD or RFC 3339)"},
}

func init() {
	validate = validator.New()

	locale := en.New()
	uni := ut.New(locale, locale)
	translator, _ = uni.GetTranslator("en")
	_ = en_translations.RegisterDefaultTranslations(validate, translator)

	// Report JSON names instead of Go field names.
	validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})

	for tag, c := range customTags {
		tag, msg := tag, c.msg
		_ = validate.RegisterValidation(tag, c.fn)
		_ = validate.RegisterTranslation(tag, translator,
			func(t ut.Translator) error { return t.Add(tag, msg, true) },
			func(t ut.Translator, fe validator.FieldError) string {
				s, _ := t.T(tag, fe.Field())
				return s
			})
	}
}

// Error maps JSON field paths to messages.
type Error struct {
	Fields map[string]string
}

func (e *Error) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+": "+e.Fields[k])
	}
	return strings.Join(parts, "; ")
}

func bodyError(msg string) *Error {
	return &Error{Fields: map[string]string{"body": msg}}
}

// DecodeJSON reads one JSON object from r into dst, rejecting unknown
// fields, then validates dst.
func DecodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, MaxBodySize+1))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		switch {
		case errors.Is(err, io.EOF):
			return bodyError("request body is empty")
		case errors.Is(err, io.ErrUnexpectedEOF):
			return bodyError("request body is malformed or too large")
		default:
			return bodyError(fmt.Sprintf("invalid JSON: %v", err))
		}
	}
	if dec.More() {
		return bodyError("request body must hold a single JSON object")
	}
	return Struct(dst)
}

// Struct validates v against its validate tags.
func Struct(v any) error {
	err := validate.Struct(v)
	if err == nil {
		return nil
	}
	var ve validator.ValidationErrors
	if !errors.As(err, &ve) {
		return err
	}
	fields := make(map[string]string, len(ve))
	for _, fe := range ve {
		fields[fieldPath(fe.Namespace())] = fe.Translate(translator)
	}
	return &Error{Fields: fields}
}

// fieldPath drops the top-level struct name: "projectRequest.tasks[0].name"
// becomes "tasks[0].name".
func fieldPath(ns string) string {
	if i := strings.IndexByte(ns, '.'); i >= 0 {
		return ns[i+1:]
	}
	return ns
}

// ParseDate parses an event date in one of DateLayouts, as UTC.
func ParseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range DateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized date %q", s)
}

// ObjectIDs converts hex ids. Callers validate with the objectid tag first.
func ObjectIDs(hex []string) ([]primitive.ObjectID, error) {
	out := make([]primitive.ObjectID, 0, len(hex))
	for _, h := range hex {
		id, err := primitive.ObjectIDFromHex(strings.TrimSpace(h))
		if err != nil {
			return nil, fmt.Errorf("invalid id %q", h)
		}
		out = append(out, id)
	}
	return out, nil
}

// Custom Validators

func notBlank(fl validator.FieldLevel) bool {
	s, ok := fl.Field().Interface().(string)
	return ok && strings.TrimSpace(s) != ""
}

func objectID(fl validator.FieldLevel) bool {
	s, ok := fl.Field().Interface().(string)
	return ok && primitive.IsValidObjectID(strings.TrimSpace(s))
}

func taskName(fl validator.FieldLevel) bool {
	s, ok := fl.Field().Interface().(string)
	return ok && models.IsValidTaskName(s)
}

func taskStatus(fl validator.FieldLevel) bool {
	s, ok := fl.Field().Interface().(string)
	if !ok {
		return false
	}
	for _, st := range models.TaskStatuses {
		if s == st {
			return true
		}
	}
	return false
}

func role(fl validator.FieldLevel) bool {
	s, ok := fl.Field().Interface().(string)
	if !ok {
		return false
	}
	s = strings.ToLower(strings.TrimSpace(s))
	for _, r := range models.Roles {
		if s == r {
			return true
		}
	}
	return false
}

func eventDate(fl validator.FieldLevel) bool {
	s, ok := fl.Field().Interface().(string)
	if !ok {
		return false
	}
	_, err := ParseDate(s)
	return err == nil
}
