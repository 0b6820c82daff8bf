package http

import (
	"github.com/hsdfat8/fieldops/internal/domain/models"
	"github.com/hsdfat8/fieldops/internal/domain/ports"
	"github.com/hsdfat8/fieldops/internal/simulator"
)

// ProblemDetails represents an error response following RFC 7807
type ProblemDetails struct {
	Type     string `json:"type,omitempty"`
	Title    string `json:"title,omitempty"`
	Status   int    `json:"status"`
	Detail   string `json:"detail,omitempty"`
	Instance string `json:"instance,omitempty"`
}

// AssignRequest assigns a resource to an incident
type AssignRequest struct {
	IncidentID string `json:"incident_id"`
	AssignedTo string `json:"assigned_to" binding:"required"`
	Notes      string `json:"notes"`
}

// IncidentStatusRequest changes an incident's status
type IncidentStatusRequest struct {
	Status     string `json:"status" binding:"required"`
	ResolvedBy string `json:"resolved_by"`
}

// ModeRequest switches the connectivity mode
type ModeRequest struct {
	Mode simulator.Mode `json:"mode" binding:"required"`
}

// PowerModeRequest switches the power mode
type PowerModeRequest struct {
	PowerMode simulator.PowerMode `json:"power_mode" binding:"required"`
}

// StartSamplerRequest starts the background sampler; zero minutes runs until stopped
type StartSamplerRequest struct {
	DurationMinutes float64 `json:"duration_minutes"`
}

// HarnessRunRequest runs the fallback checks; a zero batch size uses the quick batch
type HarnessRunRequest struct {
	BatchSize int `json:"batch_size"`
}

// ConnectivityResponse reports a single connectivity draw
type ConnectivityResponse struct {
	Mode      simulator.Mode `json:"connectivity_mode"`
	Connected bool           `json:"connected"`
}

// HealthResponse reports service health
type HealthResponse struct {
	Status           string              `json:"status"`
	Service          string              `json:"service"`
	Backend          ports.BackendType   `json:"backend"`
	ConnectivityMode simulator.Mode      `json:"connectivity_mode"`
	PowerMode        simulator.PowerMode `json:"power_mode"`
}

// NearestFacilityResponse adds a degrees/minutes/seconds rendering of the facility position
type NearestFacilityResponse struct {
	models.LocationDistance
	Coordinates string `json:"coordinates_dms"`
}
