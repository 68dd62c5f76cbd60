// Package store provides session persistence for the orchestrator.
//
// Two implementations ship: an in-memory store for development and testing,
// and a Redis-backed store for deployments that need sessions to survive a
// restart. All mutation goes through store methods so state transitions and
// their side effects (report attachment, completion timestamps) stay atomic
// with respect to concurrent readers.
package store
