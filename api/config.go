// Package api provides the HTTP API server for querying and managing the
// medrag system.
package api

// Config is the API server configuration.
type Config struct {
	// ListenAddr is the address to listen on (e.g., ":8080")
	ListenAddr string
}

// ErrorResponse is the JSON shape of every error reply.
type ErrorResponse struct {
	Error string `json:"error"`
}
