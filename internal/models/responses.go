package models

import "time"

// HealthResponse represents a basic health check response
type HealthResponse struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
	Version   string    `json:"version"`
}

// BackendHealthResponse reports reachability of the inference backend and
// the models it serves.
type BackendHealthResponse struct {
	Status    string        `json:"status"`
	Timestamp time.Time     `json:"timestamp"`
	Connected bool          `json:"connected"`
	Latency   time.Duration `json:"latency"`
	Models    []string      `json:"models,omitempty"`
	Error     string        `json:"error,omitempty"`
}

// IngestRequest submits message files to the processing pipeline.
type IngestRequest struct {
	Paths []string `json:"paths"`
}

// IngestResponse acknowledges pipeline submission.
type IngestResponse struct {
	Accepted int      `json:"accepted"`
	Rejected []string `json:"rejected,omitempty"`
}

// FileStatus is the per-file pipeline state exposed to the caller.
type FileStatus struct {
	ID        string `json:"id"`
	Path      string `json:"path"`
	MessageID string `json:"message_id,omitempty"`
	Stage     string `json:"stage"`
	Error     string `json:"error,omitempty"`
}

// MessageListResponse wraps a message query result.
type MessageListResponse struct {
	Messages []Message `json:"messages"`
	Total    int       `json:"total"`
}

// ErrorResponse is the uniform error payload.
type ErrorResponse struct {
	Error string `json:"error"`
}
