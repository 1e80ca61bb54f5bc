// Package dispatch contains the work distribution layer of the monitor: a
// FIFO queue of events awaiting a poll and the workers that drain it. The
// queue tracks outstanding work so the orchestrator can wait for a cycle to
// drain without polling, and each worker exposes an idleness flag so the
// orchestrator can tell "queue empty" apart from "queue empty and everyone
// finished".
package dispatch
