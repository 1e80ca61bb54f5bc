// Package event implements the monitored-event engine: the Event type that
// pairs a configured condition with the jobs it fires, the Job process
// protocol (payload on stdin, timeout kill, reap), and the pluggable
// comparison strategies that detect changes between the live service state
// and the snapshot from the previous poll cycle.
//
// A kind registry maps config kind names to comparer constructors; the
// registry is built once at startup and injected, never mutated afterwards.
package event
