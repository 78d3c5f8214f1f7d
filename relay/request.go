// Package relay coordinates between local callers and the Studio plugin.
//
// The plugin cannot accept inbound connections, so it long-polls the server
// for work. The relay holds a FIFO queue of outbound requests, wakes blocked
// pollers when work arrives, and matches plugin replies back to the caller
// that issued the request.
package relay

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Default wait windows. Poll is bounded by the plugin's own retry loop;
// commands and batches reflect expected Studio-side processing time.
const (
	DefaultPollTimeout    = 15 * time.Second
	DefaultCommandTimeout = 30 * time.Second
	DefaultBatchTimeout   = 300 * time.Second
)

// Request is a unit of work queued for the Studio plugin.
type Request struct {
	ID      uuid.UUID       `json:"id"`
	Command string          `json:"command"`
	Payload json.RawMessage `json:"payload"`
}

// Response is the plugin's reply to a previously delivered Request,
// matched by ID.
type Response struct {
	ID      uuid.UUID       `json:"id"`
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   string          `json:"error,omitempty"`
}
