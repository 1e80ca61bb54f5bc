// Package monitor runs the polling cycle: every interval it enqueues all
// configured events, waits for the worker pool to poll them and run any
// fired jobs, then persists each event's observed state as the next cycle's
// baseline. State writes always happen after the cycle's reads, so a crash
// mid-cycle never advances a baseline past an unreported change.
package monitor
