// Package sinks contains audit.Sink implementations: structured logs,
// Prometheus collectors, a prediction store and fraud alerts.
package sinks
