// Package api provides the HTTP surface of the memory substrate: turn
// ingestion, retrieval, engine triggers, and workspace access.
package api

// DefaultListenAddr is used when no listen address is configured.
const DefaultListenAddr = ":8080"

// Config is the API server configuration.
type Config struct {
	// ListenAddr is the address to listen on (e.g., ":8080")
	ListenAddr string
}
