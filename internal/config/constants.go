package config

import "time"

// Database connection pool settings
const (
	DBMaxOpenConns    = 25
	DBMaxIdleConns    = 5
	DBConnMaxLifetime = 5 * time.Minute
)

// HTTP server timeouts
const (
	ServerReadTimeout     = 15 * time.Second
	ServerIdleTimeout     = 120 * time.Second
	ServerShutdownTimeout = 30 * time.Second
)

// Database ping timeout for health checks
const DBPingTimeout = 5 * time.Second

// WebSocket connection tuning
const (
	WSWriteWait      = 10 * time.Second
	WSPongWait       = 60 * time.Second
	WSPingPeriod     = 54 * time.Second
	WSMaxMessageSize = 64 << 10 // inbound frames carry attachment descriptors, never blobs
	WSSendQueueSize  = 100
)

// Message constraints, enforced by the gateway and again by the persistence port
const MaxAttachmentsPerMessage = 4

// Attachment upload limits
const (
	MaxUploadSize     = 25 << 20
	MaxImageDimension = 1920
	JPEGQuality       = 80
)

// Interval for reconciling the redis presence mirror with the in-memory registry
const PresenceSyncInterval = time.Minute

// Default per-user message:send rate limit
const DefaultSendRatePerMin = 120
