// Package config loads, normalizes, and validates adowatch configuration data.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, and honours environment fallbacks such as
// ADOWATCH_PAT. The Config type centralizes every knob the daemon and CLI
// need: remote-service credentials, poll cadence, and the monitored event
// definitions with their jobs.
//
// Always obtain settings through this package so downstream code receives
// sanitized paths, defaulted job timeouts, and clear validation errors.
package config
