// Package executor defines the WorkerExecutor boundary between the cascade
// engine and whatever actually performs unit work (an LLM provider in
// production), plus decorators for timeouts and rate limiting and a
// simulated executor for tests and demos.
package executor
