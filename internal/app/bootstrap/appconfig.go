// internal/app/bootstrap/appconfig.go
package bootstrap

import "time"

// AppConfig holds service-specific configuration for this WAFFLE app.
//
// These values come from environment variables (TRACKER_*), configuration
// files, or command-line flags (loaded in LoadConfig). WAFFLE's CoreConfig
// covers ports, TLS, logging level and request limits; AppConfig carries
// everything specific to the tracker.
type AppConfig struct {
	// MongoDB connection configuration
	MongoURI         string // MongoDB connection string (e.g., mongodb://localhost:27017)
	MongoDatabase    string // Database name within MongoDB
	MongoMaxPoolSize uint64
	MongoMinPoolSize uint64

	// Store operation timeouts (see system/timeouts)
	TimeoutPing   time.Duration
	TimeoutShort  time.Duration
	TimeoutMedium time.Duration
	TimeoutLong   time.Duration
	TimeoutBatch  time.Duration

	// Repair worker
	RepairInterval  time.Duration // 0 disables the background worker
	RepairBatch     int64         // partial runs handled per tick
	RepairUserBatch int           // users loaded per repair query
	RepairTimeout   time.Duration // budget for one tick

	// Per-IP rate limit on mutating routes
	RateLimitPerMinute int
	RateLimitBurst     int

	// Audit logging: all | db | log | off
	AuditLogProjects  string
	AuditLogUsers     string
	AuditLogReconcile string
}
