// Package metrics defines the Prometheus collectors of the transcription service.
package metrics
