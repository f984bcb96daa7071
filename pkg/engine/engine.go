// Package engine provides the public API for embedding the intake engine.
// This is the stable API for external consumers.
package engine

import (
	"github.com/tjfontaine/intake-engine/internal/runtime"
)

// Engine serves tenant funnels, the intake API and the admin API.
// See internal/runtime.Engine for full documentation.
type Engine = runtime.Engine

// Option is a functional option for configuring an Engine.
type Option = runtime.Option

// ConfigSource loads configuration and reports later changes.
type ConfigSource = runtime.ConfigSource

// New creates a new Engine with the given options.
// Example:
//
//	e, err := engine.New(
//	    engine.WithFileConfig("config.yaml"),
//	    engine.WithSQLite("./data/intake.db"),
//	)
var New = runtime.New

// Configuration options
var (
	// Config sources
	WithFileConfig     = runtime.WithFileConfig
	WithConfig         = runtime.WithConfig
	WithConfigProvider = runtime.WithConfigProvider

	// Storage
	WithSQLite          = runtime.WithSQLite
	WithPostgres        = runtime.WithPostgres
	WithMemoryStorage   = runtime.WithMemoryStorage
	WithStorageProvider = runtime.WithStorageProvider

	// Advanced options
	WithFunnelTransport = runtime.WithFunnelTransport
	WithLogger          = runtime.WithLogger
)
