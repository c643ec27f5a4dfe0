package models

// ErrorResponse wraps an error for endpoints without their own envelope.
type ErrorResponse struct {
	Error *ErrorDetail `json:"error"`
}

// HealthResponse is the response for GET /api/v1/health.
type HealthResponse struct {
	Status       string       `json:"status"` // "healthy" or "degraded"
	Uptime       string       `json:"uptime"`
	Engines      []string     `json:"engines"`
	SessionStats SessionStats `json:"session_stats"`
	Jobs         JobStats     `json:"jobs"`
	Version      string       `json:"version"`
}

// SessionStats reports browser session usage.
type SessionStats struct {
	MaxSessions  int `json:"max_sessions"`
	OpenSessions int `json:"open_sessions"`
}

// JobStats reports crawl job counts.
type JobStats struct {
	Tracked int `json:"tracked"`
	Running int `json:"running"`
}
