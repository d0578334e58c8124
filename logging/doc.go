// Package logging provides a minimal logging interface and adapters for RouteMesh.
//
// The Logger interface defines the standard logging methods (Debug, Info, Warn,
// Error) that the engine, router and workflows use for observability. This
// package includes:
//
//   - Logger interface for dependency injection
//   - SlogAdapter wrapping Go's structured logging
//   - RouteMeshLogger with thread/run scoping and turn, model and tool helpers
//   - NoOpLogger for silent operation (testing, minimal setups)
//
// Usage:
//
//	logger := logging.NewSlogLogger(logging.LogLevelInfo, "json", false)
//	eng, err := engine.New(r, workflows, func(o *engine.Options) { o.Logger = logger })
//
// The interface stays minimal to avoid vendor lock-in while supporting
// structured logging where available.
package logging
