// internal/app/bootstrap/config.go
package bootstrap

import (
	"fmt"
	"time"

	"github.com/dalemusser/projecttracker/internal/app/system/auditlog"
	"github.com/dalemusser/waffle/config"
	wafflemongo "github.com/dalemusser/waffle/pantry/mongo"
	"go.uber.org/zap"
)

// appConfigKeys defines the configuration keys for the tracker.
// These are loaded via WAFFLE's config system with support for:
//   - Config files: mongo_uri, repair_interval, etc.
//   - Environment variables: TRACKER_MONGO_URI, TRACKER_REPAIR_INTERVAL, etc.
//   - Command-line flags: --mongo_uri, --repair_interval, etc.
var appConfigKeys = []config.AppKey{
	{Name: "mongo_uri", Default: "mongodb://localhost:27017", Desc: "MongoDB connection URI"},
	{Name: "mongo_database", Default: "project_tracker", Desc: "MongoDB database name"},
	{Name: "mongo_max_pool_size", Default: 100, Desc: "MongoDB max connection pool size (default: 100)"},
	{Name: "mongo_min_pool_size", Default: 10, Desc: "MongoDB min connection pool size (default: 10)"},

	// Store timeouts
	{Name: "timeout_ping", Default: "2s", Desc: "Timeout for health pings"},
	{Name: "timeout_short", Default: "5s", Desc: "Timeout for single-document reads and writes"},
	{Name: "timeout_medium", Default: "10s", Desc: "Timeout for list queries"},
	{Name: "timeout_long", Default: "30s", Desc: "Timeout for bulk user writes"},
	{Name: "timeout_batch", Default: "60s", Desc: "Timeout for schema setup and large batches"},

	// Repair worker
	{Name: "repair_interval", Default: "1m", Desc: "How often partial runs are repaired (0 disables)"},
	{Name: "repair_batch", Default: 50, Desc: "Partial runs repaired per tick"},
	{Name: "repair_user_batch", Default: 200, Desc: "Users loaded per repair query"},
	{Name: "repair_timeout", Default: "2m", Desc: "Time budget for one repair tick"},

	// Rate limiting
	{Name: "rate_limit_per_minute", Default: 120, Desc: "Mutating requests allowed per client IP per minute"},
	{Name: "rate_limit_burst", Default: 20, Desc: "Burst size for the per-IP limiter"},

	// Audit logging settings
	{Name: "audit_log_projects", Default: "all", Desc: "Project event logging: 'all' (db+log), 'db', 'log', or 'off'"},
	{Name: "audit_log_users", Default: "all", Desc: "User event logging: 'all' (db+log), 'db', 'log', or 'off'"},
	{Name: "audit_log_reconcile", Default: "all", Desc: "Reconcile event logging: 'all' (db+log), 'db', 'log', or 'off'"},
}

// LoadConfig loads WAFFLE core config and app-specific config.
//
// WAFFLE's config.LoadWithAppConfig merges .env files, config files,
// environment variables (WAFFLE_* for core, TRACKER_* for app) and flags,
// with precedence flags > env > files > defaults.
func LoadConfig(logger *zap.Logger) (*config.CoreConfig, AppConfig, error) {
	coreCfg, appValues, err := config.LoadWithAppConfig(logger, "TRACKER", appConfigKeys)
	if err != nil {
		return nil, AppConfig{}, err
	}

	appCfg := AppConfig{
		MongoURI:         appValues.String("mongo_uri"),
		MongoDatabase:    appValues.String("mongo_database"),
		MongoMaxPoolSize: uint64(appValues.Int("mongo_max_pool_size")),
		MongoMinPoolSize: uint64(appValues.Int("mongo_min_pool_size")),

		TimeoutPing:   appValues.Duration("timeout_ping", 2*time.Second),
		TimeoutShort:  appValues.Duration("timeout_short", 5*time.Second),
		TimeoutMedium: appValues.Duration("timeout_medium", 10*time.Second),
		TimeoutLong:   appValues.Duration("timeout_long", 30*time.Second),
		TimeoutBatch:  appValues.Duration("timeout_batch", 60*time.Second),

		RepairInterval:  appValues.Duration("repair_interval", time.Minute),
		RepairBatch:     int64(appValues.Int("repair_batch")),
		RepairUserBatch: appValues.Int("repair_user_batch"),
		RepairTimeout:   appValues.Duration("repair_timeout", 2*time.Minute),

		RateLimitPerMinute: appValues.Int("rate_limit_per_minute"),
		RateLimitBurst:     appValues.Int("rate_limit_burst"),

		AuditLogProjects:  appValues.String("audit_log_projects"),
		AuditLogUsers:     appValues.String("audit_log_users"),
		AuditLogReconcile: appValues.String("audit_log_reconcile"),
	}

	return coreCfg, appCfg, nil
}

// ValidateConfig performs app-specific config validation.
//
// The MongoDB URI is checked before any connection attempt so that a typo
// fails fast with a clear message.
func ValidateConfig(coreCfg *config.CoreConfig, appCfg AppConfig, logger *zap.Logger) error {
	if err := wafflemongo.ValidateURI(appCfg.MongoURI); err != nil {
		logger.Error("invalid MongoDB URI", zap.Error(err))
		return fmt.Errorf("invalid MongoDB URI: %w", err)
	}
	if appCfg.MongoDatabase == "" {
		return fmt.Errorf("mongo_database must be set")
	}
	if appCfg.MongoMinPoolSize > appCfg.MongoMaxPoolSize {
		return fmt.Errorf("mongo_min_pool_size (%d) exceeds mongo_max_pool_size (%d)",
			appCfg.MongoMinPoolSize, appCfg.MongoMaxPoolSize)
	}
	if appCfg.RepairInterval < 0 {
		return fmt.Errorf("repair_interval must not be negative")
	}
	if appCfg.RepairInterval > 0 && appCfg.RepairBatch <= 0 {
		return fmt.Errorf("repair_batch must be positive when the repair worker is enabled")
	}
	if appCfg.RateLimitPerMinute <= 0 {
		return fmt.Errorf("rate_limit_per_minute must be positive")
	}
	for key, mode := range map[string]string{
		"audit_log_projects":  appCfg.AuditLogProjects,
		"audit_log_users":     appCfg.AuditLogUsers,
		"audit_log_reconcile": appCfg.AuditLogReconcile,
	} {
		if !auditlog.ValidMode(mode) {
			return fmt.Errorf("%s must be one of all, db, log, off (got %q)", key, mode)
		}
	}
	return nil
}
