// Package events contains the event contracts published to the request-log
// and audit sinks.
package events

import (
	"time"
)

// Protocol version
const (
	ProtocolVersion = "1.0"
	ProtocolName    = "licensegate-events"
)

// Operation names the pipeline that produced a request log
type Operation string

const (
	OperationVerification Operation = "verification"
	OperationDownload     Operation = "download"
)

// RequestLog records one verification or distribution attempt
type RequestLog struct {
	Version          string        `json:"version"`
	ID               string        `json:"id"`
	RequestID        string        `json:"request_id,omitempty"`
	Operation        Operation     `json:"operation"`
	TeamID           string        `json:"team_id"`
	LicenseID        string        `json:"license_id,omitempty"`
	CustomerID       string        `json:"customer_id,omitempty"`
	ProductID        string        `json:"product_id,omitempty"`
	ReleaseID        string        `json:"release_id,omitempty"`
	ReleaseVersion   string        `json:"release_version,omitempty"`
	DeviceIdentifier string        `json:"device_identifier,omitempty"`
	IPAddress        string        `json:"ip_address,omitempty"`
	Country          string        `json:"country,omitempty"`
	Status           string        `json:"status"`
	HTTPStatus       int           `json:"http_status"`
	Duration         time.Duration `json:"duration_ns"`
	Timestamp        time.Time     `json:"timestamp"`
}

// AuditAction names a state change made by the pipelines
type AuditAction string

const (
	AuditExpirationActivated AuditAction = "license.expiration_activated"
	AuditDeviceRegistered    AuditAction = "license.device_registered"
	AuditBlacklistHit        AuditAction = "team.blacklist_hit"
)

// Audit records a side effect applied to persistent state
type Audit struct {
	Version   string            `json:"version"`
	ID        string            `json:"id"`
	RequestID string            `json:"request_id,omitempty"`
	Action    AuditAction       `json:"action"`
	TeamID    string            `json:"team_id"`
	LicenseID string            `json:"license_id,omitempty"`
	Metadata  map[string]string `json:"metadata,omitempty"`
	Timestamp time.Time         `json:"timestamp"`
}

// Key returns the partition key used by ordered sinks
func (r RequestLog) Key() string {
	if r.LicenseID != "" {
		return r.LicenseID
	}
	return r.TeamID
}

// Key returns the partition key used by ordered sinks
func (a Audit) Key() string {
	if a.LicenseID != "" {
		return a.LicenseID
	}
	return a.TeamID
}
