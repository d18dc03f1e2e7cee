package cliclient

import "time"

// ErrorResponse is the gateway's error body.
type ErrorResponse struct {
	Error string `json:"error"`
}

// UploadResponse is returned by POST /upload/app.
type UploadResponse struct {
	Message string `json:"message"`
	Warning string `json:"warning,omitempty"`
}

// ServerStatus is returned by the /server endpoints.
type ServerStatus struct {
	Running   bool       `json:"running"`
	PID       *int       `json:"pid"`
	Command   string     `json:"command,omitempty"`
	Args      []string   `json:"args,omitempty"`
	StartedAt *time.Time `json:"startedAt,omitempty"`
}

// StartServerRequest is the body of POST /server/start.
type StartServerRequest struct {
	Command string   `json:"command,omitempty"`
	Args    []string `json:"args,omitempty"`
}

// ExecuteRequest is the body of POST /execute.
type ExecuteRequest struct {
	Command string `json:"command"`
}

// ExecuteResponse is returned by POST /execute.
type ExecuteResponse struct {
	Output   string `json:"output"`
	ExitCode *int   `json:"exitCode,omitempty"`
	TimedOut bool   `json:"timedOut"`
}

// HealthResponse is returned by GET /health.
type HealthResponse struct {
	Status string `json:"status"`
}
