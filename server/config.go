package server

import "time"

// Config is the HTTP server configuration.
type Config struct {
	// Address to listen on (e.g., ":8000")
	ListenAddr string

	// ServedModel is the model id listed by GET /v1/models.
	ServedModel string

	// StreamBuffer is the fragment channel capacity of each streamed
	// generation. Zero uses bridge.DefaultBuffer.
	StreamBuffer int

	// GenerationTimeout bounds every generation. Zero disables it.
	GenerationTimeout time.Duration
}
