// Package metrics defines the Prometheus instruments shared by the capture
// pipeline, the feedback flow and the HTTP backend.
package metrics
