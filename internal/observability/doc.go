// Package observability provides structured logging, Prometheus metrics,
// and OpenTelemetry tracing for the agent runtime.
//
// The contract for logging is that every record emitted while a step is
// executing carries the agent_uuid, run_id, and step fields; they are
// propagated through context so deep call sites never thread them by
// hand.
package observability
