// Package api defines the wire types of the local restoration server.
package api

import (
	"fmt"
	"net/http"
	"strings"
	"time"
)

// Error is the JSON error body. Code carries the HTTP status.
type Error struct {
	Code    int32  `json:"code"`
	Message string `json:"error"`
}

func (e Error) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("%d %v", e.Code, strings.ToLower(http.StatusText(int(e.Code))))
	}
	return e.Message
}

// RestoreRequest submits one degraded photograph for restoration.
type RestoreRequest struct {
	// Image is the base64-encoded source photograph (PNG or JPEG).
	Image string `json:"image"`

	// Steps is the reverse-diffusion step count. Zero uses the server
	// default.
	Steps int `json:"steps,omitempty"`

	// MaxDimension bounds the working resolution. Zero uses the server
	// default.
	MaxDimension int `json:"max_dimension,omitempty"`

	// Seed fixes the random source for reproducible output.
	Seed uint64 `json:"seed,omitempty"`

	// Stream controls progress streaming; it defaults to true.
	Stream *bool `json:"stream,omitempty"`
}

// ProgressResponse is one NDJSON progress event. Completed increases
// monotonically and reaches Total on the final step.
type ProgressResponse struct {
	Status    string `json:"status"`
	Completed int    `json:"completed,omitempty"`
	Total     int    `json:"total,omitempty"`
}

// RestoreResponse carries the restored photograph as a base64 PNG.
type RestoreResponse struct {
	Status        string        `json:"status"`
	Image         string        `json:"image,omitempty"`
	Seed          uint64        `json:"seed,omitempty"`
	TotalDuration time.Duration `json:"total_duration,omitempty"`
}

type VersionResponse struct {
	Version string `json:"version"`
}
