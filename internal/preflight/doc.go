// Package preflight runs the diagnostics behind "medrag doctor".
//
// Checks cover the host (free disk space and file descriptor limits), the
// data directory (write access), the configuration, and the wired
// components: the embedding provider, the vector index and the keyword
// index. Each check yields a CheckResult; a failed Required check is
// critical.
//
//	checker := preflight.New()
//	results := checker.RunAll(ctx, preflight.Target{DataDir: dir, Config: cfg})
//	if preflight.HasCriticalFailures(results) {
//	    // Handle failures
//	}
package preflight
