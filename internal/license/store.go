package license

import (
	"context"
	"errors"
	"io"
	"time"

	"licensegate/pkg/contracts/domain"
	"licensegate/pkg/contracts/events"
)

// ErrNotFound is returned by Store lookups that match nothing
var ErrNotFound = errors.New("not found")

// ErrArtifactNotFound is returned by ArtifactStore for a missing object
var ErrArtifactNotFound = errors.New("artifact not found")

// AccessRecord is the set of side effects committed for an admitted request
type AccessRecord struct {
	LicenseID string
	// Device is upserted when the caller supplied a device identifier
	Device *domain.Device
	// ReleaseID gets its LastSeenAt bumped when set
	ReleaseID string
	IPAddress string
	At        time.Time
}

// Store is the persistence collaborator of both pipelines
type Store interface {
	// FindTeam returns the team with settings, limits, keypair and blacklist
	FindTeam(ctx context.Context, teamID string) (*domain.TeamPolicy, error)
	// FindLicense returns the license with customers, products with all
	// releases, devices and the request logs created at or after logsSince
	FindLicense(ctx context.Context, teamID, lookup string, logsSince time.Time) (*domain.License, error)
	// FindProduct returns a team product with all of its releases
	FindProduct(ctx context.Context, teamID, productID string) (*domain.Product, error)
	// IncrementBlacklistHits adds one hit to a blacklist entry
	IncrementBlacklistHits(ctx context.Context, teamID, entryID string) error
	// ActivateExpiration sets the expiration date if it is still unset. It
	// returns the stored date, which belongs to whichever caller won, and
	// whether this call was the one that set it.
	ActivateExpiration(ctx context.Context, licenseID string, date time.Time) (time.Time, bool, error)
	// CommitAccess applies an AccessRecord in one transaction
	CommitAccess(ctx context.Context, rec AccessRecord) error
	// PruneRequestLogs deletes request logs created before the cutoff
	PruneRequestLogs(ctx context.Context, before time.Time) (int64, error)
	// Ping checks connectivity
	Ping(ctx context.Context) error
}

// RateLimiter is the shared admission counter
type RateLimiter interface {
	IsLimited(ctx context.Context, key string, maxRequests int, window time.Duration) bool
}

// ArtifactStore serves release files by storage key
type ArtifactStore interface {
	Open(ctx context.Context, key string) (io.ReadCloser, int64, error)
}

// WatermarkRequest describes one embedding call
type WatermarkRequest struct {
	FileName      string
	MainClassName string
	Settings      domain.WatermarkSettings
	Tag           string
	Token         string
}

// Watermarker rewrites an artifact with an embedded watermark
type Watermarker interface {
	Embed(ctx context.Context, req WatermarkRequest, artifact []byte) ([]byte, error)
}

// AuditSink receives the audit trail of pipeline side effects
type AuditSink interface {
	Audit(ctx context.Context, event events.Audit)
}
