// Package api provides the HTTP API server for writing and reading streams,
// managing tenants and inspecting derived state.
package api

import "net/http"

// Config is the API server configuration.
type Config struct {
	// ListenAddr is the address to listen on (e.g., ":8081")
	ListenAddr string

	// AdminKey, when set, must be sent as X-Admin-Key to register users and
	// companies.
	AdminKey string

	// BlobDir is served under /blobs when attachments are stored locally.
	BlobDir string

	// MCP is mounted at /mcp when set.
	MCP http.Handler

	// BodyLimit caps request bodies in bytes. Zero uses fiber's default.
	BodyLimit int
}
