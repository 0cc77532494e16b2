package server

import (
	"time"

	"github.com/hupe1980/kstep"
)

// Config holds the HTTP server settings.
type Config struct {
	// Addr is the TCP address to listen on.
	Addr string

	// Codec names the wire codec ("json" or "go-json").
	Codec string

	// RequestTimeout bounds a single clustering request. Runs exceeding it
	// are abandoned and answered with 504.
	RequestTimeout time.Duration

	// ShutdownTimeout bounds graceful shutdown.
	ShutdownTimeout time.Duration

	// MaxBodyBytes limits the request body size.
	MaxBodyBytes int64

	MaxConcurrentRuns int64
	MemoryLimitBytes  int64
	RequestsPerSecond float64
	Burst             int

	// Engine settings.
	MaxIterations      int
	Tolerance          float64
	EmptyClusterPolicy string
}

// DefaultConfig returns the settings used for zero fields.
func DefaultConfig() Config {
	return Config{
		Addr:               ":3000",
		Codec:              "go-json",
		RequestTimeout:     10 * time.Second,
		ShutdownTimeout:    15 * time.Second,
		MaxBodyBytes:       8 << 20,
		MaxConcurrentRuns:  8,
		MemoryLimitBytes:   512 << 20,
		MaxIterations:      kstep.DefaultMaxIterations,
		EmptyClusterPolicy: "keep",
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.Addr == "" {
		c.Addr = d.Addr
	}
	if c.Codec == "" {
		c.Codec = d.Codec
	}
	if c.RequestTimeout <= 0 {
		c.RequestTimeout = d.RequestTimeout
	}
	if c.ShutdownTimeout <= 0 {
		c.ShutdownTimeout = d.ShutdownTimeout
	}
	if c.MaxBodyBytes <= 0 {
		c.MaxBodyBytes = d.MaxBodyBytes
	}
	if c.MaxConcurrentRuns <= 0 {
		c.MaxConcurrentRuns = d.MaxConcurrentRuns
	}
	if c.MemoryLimitBytes <= 0 {
		c.MemoryLimitBytes = d.MemoryLimitBytes
	}
	if c.MaxIterations <= 0 {
		c.MaxIterations = d.MaxIterations
	}
	if c.EmptyClusterPolicy == "" {
		c.EmptyClusterPolicy = d.EmptyClusterPolicy
	}
	return c
}
