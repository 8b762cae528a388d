package api

import (
	"log/slog"
	"time"
)

// HTTPServerConfig configures the recovery HTTP server.
type HTTPServerConfig struct {
	ListenAddr string

	// MetricsAddr is where /metrics is served. Empty disables the metrics listener,
	// the meters are still collected.
	MetricsAddr string

	EnablePprof bool
	Log         *slog.Logger

	// DrainDuration is how long /drain keeps reporting not-ready before returning,
	// so load balancers notice.
	DrainDuration            time.Duration
	GracefulShutdownDuration time.Duration
	ReadTimeout              time.Duration
	WriteTimeout             time.Duration

	// MaxBodyBytes caps request bodies. Zero means DefaultMaxBodyBytes.
	MaxBodyBytes int64
}

const DefaultMaxBodyBytes = 1 << 20
