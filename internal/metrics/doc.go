// Package metrics records build and stage metrics.
//
// Components receive a Recorder; NoopRecorder is the default so callers never
// need nil checks. PrometheusRecorder backs the interface with a private
// registry that can be written to a node_exporter textfile after a run.
package metrics
