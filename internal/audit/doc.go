// Package audit records every prediction the model API serves. Handlers emit
// events into a non-blocking hub that batches them on a background goroutine
// and fans them out to pluggable sinks such as logs, Prometheus metrics,
// a Postgres table or a fraud alert topic.
package audit
