package api

import "time"

// HealthResponse represents the health check response
type HealthResponse struct {
	Status    string            `json:"status"`
	Timestamp time.Time         `json:"timestamp"`
	Scheduler SchedulerHealth   `json:"scheduler"`
	Database  *DatabaseHealth   `json:"database,omitempty"`
	Checks    map[string]string `json:"checks,omitempty"`
}

// SchedulerHealth reports trigger counts
type SchedulerHealth struct {
	Registered int `json:"registered"`
	Recurring  int `json:"recurring"`
	Paused     int `json:"paused"`
	ManualOnly int `json:"manual_only"`
	InFlight   int `json:"in_flight"`
}

// DatabaseHealth reports connection pool usage
type DatabaseHealth struct {
	AcquiredConns int32 `json:"acquired_conns"`
	IdleConns     int32 `json:"idle_conns"`
	TotalConns    int32 `json:"total_conns"`
	MaxConns      int32 `json:"max_conns"`
}

// ErrorResponse is the body of a failed ops request
type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
