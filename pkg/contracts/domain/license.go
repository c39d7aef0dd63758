// Package domain contains the core domain models for the license gate.
// These types serve as the Single Source of Truth (SSOT) for all layers of the application.
package domain

import (
	"time"
)

// ExpirationType describes how a license expires
type ExpirationType string

const (
	ExpirationNever    ExpirationType = "NEVER"
	ExpirationDate     ExpirationType = "DATE"
	ExpirationDuration ExpirationType = "DURATION"
)

// ExpirationStart anchors a DURATION license
type ExpirationStart string

const (
	ExpirationStartCreation   ExpirationStart = "CREATION"
	ExpirationStartActivation ExpirationStart = "ACTIVATION"
)

// License is a license record scoped to a team by its lookup hash
type License struct {
	ID               string          `json:"id" db:"id" validate:"required,uuid"`
	TeamID           string          `json:"team_id" db:"team_id" validate:"required,uuid"`
	LicenseKeyLookup string          `json:"-" db:"license_key_lookup" validate:"required,len=64"`
	LicenseKey       string          `json:"-" db:"license_key"` // encrypted at rest
	IPLimit          *int            `json:"ip_limit,omitempty" db:"ip_limit" validate:"omitempty,min=0"`
	Seats            *int            `json:"seats,omitempty" db:"seats" validate:"omitempty,min=0"`
	Suspended        bool            `json:"suspended" db:"suspended"`
	ExpirationType   ExpirationType  `json:"expiration_type" db:"expiration_type" validate:"required,oneof=NEVER DATE DURATION"`
	ExpirationStart  ExpirationStart `json:"expiration_start" db:"expiration_start" validate:"omitempty,oneof=CREATION ACTIVATION"`
	ExpirationDate   *time.Time      `json:"expiration_date,omitempty" db:"expiration_date"`
	ExpirationDays   *int            `json:"expiration_days,omitempty" db:"expiration_days" validate:"omitempty,min=1"`
	LastActiveAt     *time.Time      `json:"last_active_at,omitempty" db:"last_active_at"`
	CreatedAt        time.Time       `json:"created_at" db:"created_at"`

	Customers   []Customer   `json:"customers,omitempty"`
	Products    []Product    `json:"products,omitempty"`
	Devices     []Device     `json:"devices,omitempty"`
	RequestLogs []RequestLog `json:"-"`
}

// Customer is a customer a license may be bound to
type Customer struct {
	ID   string `json:"id" db:"id" validate:"required,uuid"`
	Name string `json:"name" db:"name"`
}

// Product is a product a license may be bound to
type Product struct {
	ID       string    `json:"id" db:"id" validate:"required,uuid"`
	TeamID   string    `json:"team_id" db:"team_id"`
	Name     string    `json:"name" db:"name"`
	Releases []Release `json:"releases,omitempty"`
}

// ReleaseStatus represents the publication status of a release
type ReleaseStatus string

const (
	ReleaseDraft     ReleaseStatus = "DRAFT"
	ReleasePublished ReleaseStatus = "PUBLISHED"
	ReleaseArchived  ReleaseStatus = "ARCHIVED"
)

// Release is a versioned build of a product
type Release struct {
	ID                string        `json:"id" db:"id"`
	ProductID         string        `json:"product_id" db:"product_id"`
	Version           string        `json:"version" db:"version"`
	Status            ReleaseStatus `json:"status" db:"status"`
	Latest            bool          `json:"latest" db:"latest"`
	AllowedLicenseIDs []string      `json:"allowed_license_ids,omitempty"`
	File              *ReleaseFile  `json:"file,omitempty"`
	LastSeenAt        *time.Time    `json:"last_seen_at,omitempty" db:"last_seen_at"`
	CreatedAt         time.Time     `json:"created_at" db:"created_at"`
	UpdatedAt         time.Time     `json:"updated_at" db:"updated_at"`
}

// AllowsLicense reports whether the allow-list admits the license.
// An empty allow-list admits everyone.
func (r Release) AllowsLicense(licenseID string) bool {
	if len(r.AllowedLicenseIDs) == 0 {
		return true
	}
	for _, id := range r.AllowedLicenseIDs {
		if id == licenseID {
			return true
		}
	}
	return false
}

// ReleaseFile references the artifact stored for a release
type ReleaseFile struct {
	Key           string  `json:"key" db:"key"`
	Size          int64   `json:"size" db:"size"`
	MainClassName *string `json:"main_class_name,omitempty" db:"main_class_name"`
}

// Device is a seat heartbeat keyed by (license, device identifier)
type Device struct {
	LicenseID        string    `json:"license_id" db:"license_id"`
	DeviceIdentifier string    `json:"device_identifier" db:"device_identifier"`
	LastBeatAt       time.Time `json:"last_beat_at" db:"last_beat_at"`
	IPAddress        string    `json:"ip_address,omitempty" db:"ip_address"`
	Country          string    `json:"country,omitempty" db:"country"`
}

// RequestLog is one successful access used as IP-limit evidence
type RequestLog struct {
	LicenseID string    `json:"license_id" db:"license_id"`
	IPAddress string    `json:"ip_address" db:"ip_address"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}
