// Package telemetry wires OpenTelemetry exporters and meters for the
// analytics client.
//
// SetupProvider installs an OTLP/gRPC trace pipeline so the per-flush
// analytics.flush spans reach a collector, and FlushRecorder turns flush
// outcomes into OpenTelemetry counters and a latency histogram.
package telemetry
