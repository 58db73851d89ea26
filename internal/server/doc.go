// Package server implements the HTTP backend used by the coach client:
// recording transcription, alternative phrasing suggestions, pronunciation
// advice and feedback collection, plus health, statistics and Prometheus
// metrics endpoints.
package server
