package models

import "time"

// SyncResult summarizes one sync pass. Row state is authoritative: when token
// acquisition fails the selected rows are counted in Failed without being
// mutated, so the counter is informational only in that case.
type SyncResult struct {
	Attempted int    `json:"attempted"`
	Succeeded int    `json:"succeeded"`
	Failed    int    `json:"failed"`
	LastError string `json:"lastError,omitempty"`
}

// ClockRequest is the agent-local enqueue payload.
type ClockRequest struct {
	EmployeeID      string  `json:"employeeId"`
	Mode            Mode    `json:"mode"`
	ClientTime      string  `json:"clientTime"`
	DeviceTimezone  string  `json:"deviceTimezone"`
	TzOffsetMinutes *int    `json:"tzOffsetMinutes,omitempty"`
	Latitude        float64 `json:"latitude"`
	Longitude       float64 `json:"longitude"`
	Notes           string  `json:"notes,omitempty"`
	PhotoLocalPath  string  `json:"photoLocalPath"`
}

// ClockResponse acknowledges a queued event.
type ClockResponse struct {
	EventID   string    `json:"eventId"`
	Status    Status    `json:"status"`
	CreatedAt time.Time `json:"createdAt"`
}

// QueueStatusResponse reports queue depth by status.
type QueueStatusResponse struct {
	Counts map[Status]int `json:"counts"`
	Total  int            `json:"total"`
}

// HealthResponse is the agent health check body.
type HealthResponse struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
}

// ErrorResponse is the generic error body for the agent API.
type ErrorResponse struct {
	Error string `json:"error"`
}
