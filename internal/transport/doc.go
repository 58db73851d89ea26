// Package transport implements the HTTP client for the pronunciation backend.
// It uploads recordings as multipart form data and exchanges JSON for
// suggestions, correction advice and feedback reports. Concurrent requests
// are bounded by a semaphore and nothing is retried.
package transport
