// Package handlers implements the HTTP handlers for the cascade API:
// session lifecycle endpoints plus health and readiness probes.
package handlers
