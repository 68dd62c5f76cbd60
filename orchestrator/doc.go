// Package orchestrator coordinates the full session lifecycle: it accepts
// tasks, runs the worker tier and optional synthesis stages on a bounded
// pipeline pool, and exposes status, cancellation and results against the
// session store.
//
// Start returns immediately with a session ID; the pipeline runs in the
// background. Cancellation is cooperative: in-flight units run to
// completion, further dispatch stops, and landed partial results are kept.
package orchestrator
