// Package snapshot stores the last observed state of tracked entities
// between poll cycles. Records are opaque JSON blobs keyed by strings
// derived from the tracked entity's identity, partitioned per configuration
// file, with per-key in-process locking for concurrent workers.
package snapshot
