// Package logging constructs the shared slog loggers used by the daemon and
// CLI. The daemon writes human-readable output to stderr and rotated JSON to
// the configured log directory; field-name constants keep structured keys
// consistent across components.
package logging
