// Package server implements the HTTP API of the transcription service.
// It exposes the upload, transcribe, speaker rename and export operations of a
// workflow session, plus health, configuration, statistics and Prometheus endpoints.
package server
