// Package daemon owns the lifetime of the long-running monitor process.
//
// It enforces single-instance execution with flock-based locking, writes a
// pid file for operators, and runs the poll loop until the process is
// signalled or a worker hits an unrecoverable error. Orchestration of the
// cycle itself lives in the monitor package; the daemon focuses on startup,
// shutdown, and system integration.
package daemon
