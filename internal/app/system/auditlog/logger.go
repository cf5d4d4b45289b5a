// internal/app/system/auditlog/logger.go
package auditlog

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/dalemusser/projecttracker/internal/app/store/audit"
	"github.com/dalemusser/projecttracker/internal/app/system/ratelimit"
	"github.com/dalemusser/projecttracker/internal/domain/models"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

// Config holds audit logging configuration. Each field takes one of
// "all" (MongoDB + zap), "db" (MongoDB only), "log" (zap only) or "off".
type Config struct {
	Projects  string
	Users     string
	Reconcile string
}

// Logger writes audit events to MongoDB (via audit.Store) and zap.
type Logger struct {
	store  *audit.Store
	zapLog *zap.Logger
	config Config
}

// New creates a new audit Logger.
func New(store *audit.Store, zapLog *zap.Logger, config Config) *Logger {
	return &Logger{
		store:  store,
		zapLog: zapLog,
		config: config,
	}
}

// ValidMode reports whether s is an accepted Config value.
func ValidMode(s string) bool {
	switch s {
	case "all", "db", "log", "off":
		return true
	}
	return false
}

func (l *Logger) logToZap(event audit.Event) {
	fields := []zap.Field{
		zap.Bool("audit", true),
		zap.String("category", event.Category),
		zap.String("event_type", event.EventType),
		zap.Bool("success", event.Success),
		zap.String("ip", event.IP),
	}
	if event.ProjectID != nil {
		fields = append(fields, zap.String("project_id", event.ProjectID.Hex()))
	}
	if event.UserID != nil {
		fields = append(fields, zap.String("user_id", event.UserID.Hex()))
	}
	if event.RunID != "" {
		fields = append(fields, zap.String("run_id", event.RunID))
	}
	if event.FailureReason != "" {
		fields = append(fields, zap.String("failure_reason", event.FailureReason))
	}
	for k, v := range event.Details {
		fields = append(fields, zap.String("detail_"+k, v))
	}

	if event.Success {
		l.zapLog.Info("audit event", fields...)
	} else {
		l.zapLog.Warn("audit event", fields...)
	}
}

// Log records an event according to the setting for its category.
// A nil Logger is a no-op.
func (l *Logger) Log(ctx context.Context, event audit.Event) {
	if l == nil {
		return
	}

	var setting string
	switch event.Category {
	case audit.CategoryProject:
		setting = l.config.Projects
	case audit.CategoryUser:
		setting = l.config.Users
	case audit.CategoryReconcile:
		setting = l.config.Reconcile
	default:
		setting = "all"
	}
	if setting == "" {
		setting = "all"
	}
	if setting == "off" {
		return
	}

	if setting == "all" || setting == "log" {
		l.logToZap(event)
	}
	if (setting == "all" || setting == "db") && l.store != nil {
		// The audit write outlives a request that was canceled after the change landed.
		if err := l.store.Log(context.WithoutCancel(ctx), event); err != nil {
			l.zapLog.Error("failed to store audit event",
				zap.Error(err),
				zap.String("event_type", event.EventType))
		}
	}
}

func requestEvent(r *http.Request, category, eventType string) audit.Event {
	return audit.Event{
		Category:  category,
		EventType: eventType,
		IP:        ratelimit.ClientIP(r),
		UserAgent: r.UserAgent(),
		Success:   true,
	}
}

// --- Project Events ---

// ProjectCreated logs a new project.
func (l *Logger) ProjectCreated(ctx context.Context, r *http.Request, p *models.Project) {
	e := requestEvent(r, audit.CategoryProject, audit.EventProjectCreated)
	e.ProjectID = &p.ID
	e.Details = map[string]string{
		"title":        p.Title,
		"status":       p.Status,
		"participants": strconv.Itoa(len(p.Volunteers) + len(p.Doctors)),
	}
	l.Log(ctx, e)
}

// ProjectUpdated logs an update with the project's new version.
func (l *Logger) ProjectUpdated(ctx context.Context, r *http.Request, p *models.Project) {
	e := requestEvent(r, audit.CategoryProject, audit.EventProjectUpdated)
	e.ProjectID = &p.ID
	e.Details = map[string]string{
		"title":   p.Title,
		"status":  p.Status,
		"version": strconv.FormatInt(p.Version, 10),
	}
	l.Log(ctx, e)
}

// TaskCompleted logs a user marking a task complete.
func (l *Logger) TaskCompleted(ctx context.Context, r *http.Request, projectID primitive.ObjectID, task string, userID primitive.ObjectID, allCompleted bool) {
	e := requestEvent(r, audit.CategoryProject, audit.EventTaskCompleted)
	e.ProjectID = &projectID
	e.UserID = &userID
	e.Details = map[string]string{
		"task":          task,
		"all_completed": strconv.FormatBool(allCompleted),
	}
	l.Log(ctx, e)
}

// ProjectDeleted logs a deleted project.
func (l *Logger) ProjectDeleted(ctx context.Context, r *http.Request, projectID primitive.ObjectID) {
	e := requestEvent(r, audit.CategoryProject, audit.EventProjectDeleted)
	e.ProjectID = &projectID
	l.Log(ctx, e)
}

// --- User Events ---

// UserCreated logs a new directory entry.
func (l *Logger) UserCreated(ctx context.Context, r *http.Request, u *models.User) {
	e := requestEvent(r, audit.CategoryUser, audit.EventUserCreated)
	e.UserID = &u.ID
	e.Details = map[string]string{"role": u.Role}
	l.Log(ctx, e)
}

// --- Reconcile Events ---

// ReconcilePartial logs a run whose project write landed but some user
// writes failed.
func (l *Logger) ReconcilePartial(ctx context.Context, r *http.Request, runID string, projectID primitive.ObjectID, failed []primitive.ObjectID) {
	e := requestEvent(r, audit.CategoryReconcile, audit.EventReconcilePartial)
	e.Success = false
	e.RunID = runID
	if !projectID.IsZero() {
		e.ProjectID = &projectID
	}
	hex := make([]string, len(failed))
	for i, id := range failed {
		hex[i] = id.Hex()
	}
	e.FailureReason = strconv.Itoa(len(failed)) + " participant updates failed"
	e.Details = map[string]string{"failed_user_ids": strings.Join(hex, ",")}
	l.Log(ctx, e)
}

// RepairRequested logs an operator-triggered repair and its outcome.
func (l *Logger) RepairRequested(ctx context.Context, r *http.Request, runID string, checked, fixed, failed int) {
	e := requestEvent(r, audit.CategoryReconcile, audit.EventRepairRequested)
	e.RunID = runID
	e.Success = failed == 0
	e.Details = map[string]string{
		"checked": strconv.Itoa(checked),
		"fixed":   strconv.Itoa(fixed),
		"failed":  strconv.Itoa(failed),
	}
	l.Log(ctx, e)
}
