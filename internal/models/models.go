package models

import (
	"errors"
	"time"
)

// ErrTenantNotFound is returned when an API key does not resolve to a tenant.
var ErrTenantNotFound = errors.New("tenant not found")

type Tenant struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	APIKey    string    `json:"api_key"`
	CreatedAt time.Time `json:"created_at"`
}

type User struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`
	TenantID int64  `json:"tenant_id"`
}

// UsageEvent is one ledger entry, written once per admitted request.
type UsageEvent struct {
	ID             int64     `json:"id"`
	Timestamp      time.Time `json:"timestamp"`
	Endpoint       string    `json:"endpoint"`
	ResponseTimeMs int64     `json:"response_time_ms"`
	StatusCode     int       `json:"status_code"`
	TenantID       int64     `json:"tenant_id"`
}

// SeedTenant describes a tenant and its users created by a reset.
type SeedTenant struct {
	Name   string
	APIKey string
	Users  []string
}
