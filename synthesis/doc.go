// Package synthesis reduces ordered tier results into smaller synthesized
// sets: the mid tier groups worker results into contiguous clusters, the
// executive tier reduces everything to a single summary.
//
// When a WorkerExecutor is configured, semantic summarization is delegated
// to it; otherwise the stage produces a deterministic concatenation with
// attribution.
package synthesis
