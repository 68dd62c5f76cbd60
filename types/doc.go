// Package types defines the shared data model for the cascade orchestration
// engine: tasks, agent results, reports, sessions, and the unified error
// taxonomy used across packages.
package types
