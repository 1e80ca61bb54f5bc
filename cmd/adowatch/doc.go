// Package main hosts the adowatch CLI entrypoint and command graph.
//
// The Cobra-based command tree covers configuration scaffolding, read-only
// inspection of the remote organization (projects, repositories, branches,
// pull requests, teams, work items), and a foreground monitor mode for
// running the poll loop without the daemon wrapper.
//
// Keep this package lean: add new functionality by extending the internal
// packages first, then surface it through dedicated commands or flags here.
package main
