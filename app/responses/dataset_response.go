package responses

import (
	"github.com/shaymcgreal/datatransformer/app/config"
	"github.com/shaymcgreal/datatransformer/app/models"
)

// CheckResponse is the JSON result of a synchronous check. Rows are
// omitted for format=summary.
type CheckResponse struct {
	RunID            string             `json:"run_id"`
	ReportKey        string             `json:"report_key"`
	Profile          string             `json:"profile"`
	CacheHit         bool               `json:"cache_hit"`
	Summary          models.Summary     `json:"summary"`
	Header           []string           `json:"header,omitempty"`
	Rows             []models.OutputRow `json:"rows,omitempty"`
	ProcessingTimeMs int64              `json:"processing_time_ms"`
}

// JobSubmitResponse acknowledges a queued job.
type JobSubmitResponse struct {
	JobID   string `json:"job_id"`
	Status  string `json:"status"`
	Profile string `json:"profile"`
	Message string `json:"message"`
}

// ConfigResponse shows a profile's effective configuration.
type ConfigResponse struct {
	Profile     string             `json:"profile"`
	Fingerprint string             `json:"fingerprint"`
	Config      *config.LinkageCfg `json:"config"`
}

// ProfilesResponse lists the loaded profiles.
type ProfilesResponse struct {
	Profiles []string `json:"profiles"`
	Default  string   `json:"default"`
}

// InvalidateCacheResponse counts removed reports per profile.
type InvalidateCacheResponse struct {
	Removed map[string]int64 `json:"removed"`
}

// ErrorResponse is returned for every failed request.
type ErrorResponse struct {
	Error     string      `json:"error"`
	Message   string      `json:"message"`
	Details   interface{} `json:"details,omitempty"`
	Timestamp string      `json:"timestamp"`
}

// SuccessResponse wraps generic payloads.
type SuccessResponse struct {
	Success bool        `json:"success"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

// HealthCheckResponse reports liveness and dependency state.
type HealthCheckResponse struct {
	Status    string            `json:"status"`
	Timestamp string            `json:"timestamp"`
	Uptime    string            `json:"uptime"`
	Version   string            `json:"version"`
	Services  map[string]string `json:"services"`
}
