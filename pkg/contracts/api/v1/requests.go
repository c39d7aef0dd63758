// Package api contains the public HTTP contract of the license gate.
// Version v1 represents the current stable API version.
package api

// VerifyRequest is the body of POST /v1/teams/{teamId}/verification.
// The licensekey and nowhitespace tags are registered by Validator.
type VerifyRequest struct {
	LicenseKey       string `json:"licenseKey" validate:"required,licensekey"`
	CustomerID       string `json:"customerId,omitempty" validate:"omitempty,uuid"`
	ProductID        string `json:"productId,omitempty" validate:"omitempty,uuid"`
	Challenge        string `json:"challenge,omitempty" validate:"omitempty,max=1000,nowhitespace"`
	Version          string `json:"version,omitempty" validate:"omitempty,min=3,max=255,nowhitespace"`
	DeviceIdentifier string `json:"deviceIdentifier,omitempty" validate:"omitempty,min=10,max=1000,nowhitespace"`
}

// DownloadRequest is the body of POST /v1/teams/{teamId}/downloads
type DownloadRequest struct {
	LicenseKey       string `json:"licenseKey" validate:"required,licensekey"`
	CustomerID       string `json:"customerId,omitempty" validate:"omitempty,uuid"`
	ProductID        string `json:"productId" validate:"required,uuid"`
	Version          string `json:"version,omitempty" validate:"omitempty,min=3,max=255,nowhitespace"`
	DeviceIdentifier string `json:"deviceIdentifier,omitempty" validate:"omitempty,min=10,max=1000,nowhitespace"`
	SessionKey       string `json:"sessionKey" validate:"required,hexadecimal,max=4096"`
}

// VerifyRequest projects the verification fields shared by both endpoints
func (r DownloadRequest) VerifyRequest() VerifyRequest {
	return VerifyRequest{
		LicenseKey:       r.LicenseKey,
		CustomerID:       r.CustomerID,
		ProductID:        r.ProductID,
		Version:          r.Version,
		DeviceIdentifier: r.DeviceIdentifier,
	}
}
