package services

import (
	"strings"

	"github.com/fieldclock/agent/internal/models"
)

const authSuffix = "/api/auth"

// ErrMissingAPIBase is returned when no remote API base URL is configured.
// This is a startup condition, not something a sync pass can recover from.
var ErrMissingAPIBase = models.QueueError{Message: "remote API base URL is not configured"}

// Endpoints derives the remote URLs from the configured API base. Deployments
// sometimes configure the base already pointing at the auth prefix, so a
// trailing "/api/auth" is tolerated and stripped where needed.
type Endpoints struct {
	base string
}

// NewEndpoints validates and normalizes the configured API base URL.
func NewEndpoints(apiBase string) (Endpoints, error) {
	base := strings.TrimRight(strings.TrimSpace(apiBase), "/")
	if base == "" {
		return Endpoints{}, ErrMissingAPIBase
	}
	return Endpoints{base: base}, nil
}

func (e Endpoints) root() string {
	return strings.TrimSuffix(e.base, authSuffix)
}

// AuthBase returns the base URL of the authentication endpoints.
func (e Endpoints) AuthBase() string {
	if strings.HasSuffix(e.base, authSuffix) {
		return e.base
	}
	return e.base + authSuffix
}

// RefreshURL returns the mobile token refresh endpoint.
func (e Endpoints) RefreshURL() string {
	return e.AuthBase() + "/mobile/refresh"
}

// ClockURL returns the attendance clock submission endpoint.
func (e Endpoints) ClockURL() string {
	return e.root() + "/api/dtc/attendance/clock"
}

// HealthURL returns the endpoint used by the connectivity probe.
func (e Endpoints) HealthURL() string {
	return e.root() + "/api/health"
}
