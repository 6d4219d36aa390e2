/*
Package observability provides emitters that export workflow runs to
monitoring systems.

	Metrics   counts lifecycle events and measures node durations with Prometheus.
	Tracer    turns every run and node execution into an OpenTelemetry span.
	LogEmitter writes lifecycle events as structured slog records.

All of them implement ports.Emitter and can be shared by concurrent runs.
*/
package observability
