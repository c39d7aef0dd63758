package license

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/coder/quartz"
	"github.com/google/uuid"

	"licensegate/internal/config"
	"licensegate/internal/security"
	api "licensegate/pkg/contracts/api/v1"
	"licensegate/pkg/contracts/domain"
	"licensegate/pkg/contracts/events"
)

// Caller is what the transport knows about the requesting installation
type Caller struct {
	IP        string
	Country   string
	RequestID string
}

// Dependencies are the collaborators shared by both pipelines
type Dependencies struct {
	Store   Store
	Teams   *TeamCache
	Limiter RateLimiter
	Keyring *security.Keyring
	Audit   AuditSink
	Clock   quartz.Clock
	Metrics *Metrics
	Logger  *slog.Logger
	Limits  config.LimitsConfig
}

func (d *Dependencies) defaults() {
	if d.Clock == nil {
		d.Clock = quartz.NewReal()
	}
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	if d.Audit == nil {
		d.Audit = discardAudit{}
	}
	if d.Limits.StreamChunkSize <= 0 {
		d.Limits.StreamChunkSize = security.DefaultChunkSize
	}
}

type discardAudit struct{}

func (discardAudit) Audit(context.Context, events.Audit) {}

// evaluation is the state accumulated while one request moves through the
// checks. Later checks read what earlier ones resolved.
type evaluation struct {
	teamID           string
	licenseKey       string
	customerID       string
	productID        string
	version          string
	deviceIdentifier string
	sessionKeyHex    string
	request          any
	caller           Caller
	now              time.Time

	team     *Team
	license  *domain.License
	customer *domain.Customer
	product  *domain.Product
	release  *domain.Release

	// sessionKey is the unwrapped download session key
	sessionKey []byte

	err error
}

// check is one pipeline step. It returns the empty code to continue.
type check struct {
	name string
	run  func(ctx context.Context, ev *evaluation) Code
}

// fail records an infrastructure fault and stops the pipeline
func (ev *evaluation) fail(err error) Code {
	ev.err = err
	return CodeInternalError
}

func (ev *evaluation) verdict(code Code) Verdict {
	v := Verdict{
		Code:             code,
		TeamID:           ev.teamID,
		DeviceIdentifier: ev.deviceIdentifier,
		Err:              ev.err,
	}
	if ev.license != nil {
		v.LicenseID = ev.license.ID
	}
	if ev.customer != nil {
		v.CustomerID = ev.customer.ID
	}
	if ev.product != nil {
		v.ProductID = ev.product.ID
	} else {
		v.ProductID = ev.productID
	}
	if ev.release != nil {
		v.ReleaseID = ev.release.ID
		v.ReleaseVersion = ev.release.Version
	}
	return v
}

// runChecks evaluates checks in order and returns the first denial
func runChecks(ctx context.Context, ev *evaluation, checks []check) (Code, string) {
	for _, c := range checks {
		if code := c.run(ctx, ev); code != "" {
			return code, c.name
		}
	}
	return CodeValid, ""
}

// policy implements the steps shared by verification and distribution
type policy struct {
	deps  Dependencies
	seats SeatTracker
}

func validTeamID(ctx context.Context, ev *evaluation) Code {
	if _, err := uuid.Parse(ev.teamID); err != nil {
		return CodeBadRequest
	}
	return ""
}

func validRequest(ctx context.Context, ev *evaluation) Code {
	if errs := api.Validate(ev.request); len(errs) > 0 {
		return CodeBadRequest
	}
	return ""
}

func (p *policy) limitIP(key func(ip string) string, maxRequests int, window time.Duration) func(context.Context, *evaluation) Code {
	return func(ctx context.Context, ev *evaluation) Code {
		ip := ev.caller.IP
		if ip == "" {
			ip = "unknown"
		}
		if p.deps.Limiter.IsLimited(ctx, key(ip), maxRequests, window) {
			return CodeRateLimited
		}
		return ""
	}
}

func (p *policy) resolveTeam(ctx context.Context, ev *evaluation) Code {
	team, err := p.deps.Teams.Get(ctx, ev.teamID)
	if err != nil {
		if isNotFound(err) {
			return CodeTeamNotFound
		}
		return ev.fail(fmt.Errorf("resolve team: %w", err))
	}
	ev.team = team
	return ""
}

// ipWindowStart is where IP-limit evidence begins for the team
func (p *policy) ipWindowStart(ev *evaluation) time.Time {
	return ev.now.Add(-ev.team.Policy.Settings.IPLimitPeriod.Duration())
}

func (p *policy) resolveLicense(ctx context.Context, ev *evaluation) Code {
	lookup := p.deps.Keyring.LookupHash(ev.licenseKey, ev.teamID)
	license, err := p.deps.Store.FindLicense(ctx, ev.teamID, lookup, p.ipWindowStart(ev))
	if err != nil {
		if isNotFound(err) {
			return CodeLicenseNotFound
		}
		return ev.fail(fmt.Errorf("find license: %w", err))
	}
	ev.license = license
	return ""
}

func (p *policy) checkBlacklist(ctx context.Context, ev *evaluation) Code {
	entry, code := matchBlacklist(ev.team.Policy.Blacklist, ev.caller.IP, ev.caller.Country, ev.deviceIdentifier)
	if entry == nil {
		return ""
	}

	if err := p.deps.Store.IncrementBlacklistHits(ctx, ev.teamID, entry.ID); err != nil {
		p.deps.Logger.WarnContext(ctx, "failed to count blacklist hit",
			slog.String("team_id", ev.teamID),
			slog.String("entry_id", entry.ID),
			slog.String("error", err.Error()),
		)
	}
	p.deps.Metrics.recordBlacklistHit(ctx, code)
	p.audit(ctx, ev, events.AuditBlacklistHit, map[string]string{
		"entry_id": entry.ID,
		"type":     string(entry.Type),
		"code":     string(code),
	})
	return code
}

func (p *policy) checkCustomer(ctx context.Context, ev *evaluation) Code {
	customer, code, ok := resolveStrictAssociation(ev.license.Customers, ev.customerID,
		ev.team.Policy.Settings.StrictCustomers, func(c domain.Customer) string { return c.ID }, CodeCustomerNotFound)
	if !ok {
		return code
	}
	ev.customer = customer
	return ""
}

func (p *policy) checkProduct(ctx context.Context, ev *evaluation) Code {
	product, code, ok := resolveStrictAssociation(ev.license.Products, ev.productID,
		ev.team.Policy.Settings.StrictProducts, func(pr domain.Product) string { return pr.ID }, CodeProductNotFound)
	if !ok {
		return code
	}
	ev.product = product
	return ""
}

func checkSuspended(ctx context.Context, ev *evaluation) Code {
	if ev.license.Suspended {
		return CodeLicenseSuspended
	}
	return ""
}

func (p *policy) checkExpiration(ctx context.Context, ev *evaluation) Code {
	exp, err := ExpirationOf(ev.license)
	if err != nil {
		return ev.fail(err)
	}

	if exp.Pending() {
		activated, err := exp.Activate(ev.now)
		if err != nil {
			return ev.fail(err)
		}
		proposed, _ := activated.Date()

		stored, won, err := p.deps.Store.ActivateExpiration(ctx, ev.license.ID, proposed)
		if err != nil {
			return ev.fail(fmt.Errorf("activate expiration: %w", err))
		}
		ev.license.ExpirationDate = &stored
		exp = DurationActive(stored)

		if won {
			p.deps.Metrics.recordActivation(ctx)
			p.audit(ctx, ev, events.AuditExpirationActivated, map[string]string{
				"expiration_date": stored.UTC().Format(time.RFC3339),
			})
		}
	}

	if exp.Expired(ev.now) {
		return CodeLicenseExpired
	}
	return ""
}

func (p *policy) checkIPLimit(ctx context.Context, ev *evaluation) Code {
	if ipLimitReached(ev.license, ev.caller.IP, p.ipWindowStart(ev)) {
		return CodeIPLimitReached
	}
	return ""
}

func (p *policy) deviceTimeout(ev *evaluation) time.Duration {
	return time.Duration(ev.team.Policy.Settings.DeviceTimeout) * time.Minute
}

func (p *policy) checkSeats(ctx context.Context, ev *evaluation) Code {
	if !p.seats.Admit(ev.license, ev.deviceIdentifier, p.deviceTimeout(ev), ev.now) {
		return CodeMaxConcurrentSeats
	}
	return ""
}

// commit applies the side effects of an admitted request. The release whose
// LastSeenAt is bumped is ev.release, or else the product's latest.
func (p *policy) commit(ctx context.Context, ev *evaluation) Code {
	rec := AccessRecord{
		LicenseID: ev.license.ID,
		IPAddress: ev.caller.IP,
		At:        ev.now,
	}

	registered := false
	if ev.deviceIdentifier != "" {
		registered = !hasDevice(ev.license.Devices, ev.deviceIdentifier)
		rec.Device = &domain.Device{
			LicenseID:        ev.license.ID,
			DeviceIdentifier: ev.deviceIdentifier,
			LastBeatAt:       ev.now,
			IPAddress:        ev.caller.IP,
			Country:          ev.caller.Country,
		}
	}

	if release := ev.release; release != nil {
		rec.ReleaseID = release.ID
	} else if ev.product != nil {
		if latest := latestPublished(ev.product.Releases); latest != nil {
			rec.ReleaseID = latest.ID
		}
	}

	if err := p.deps.Store.CommitAccess(ctx, rec); err != nil {
		return ev.fail(fmt.Errorf("commit access: %w", err))
	}

	if registered {
		p.audit(ctx, ev, events.AuditDeviceRegistered, map[string]string{
			"device_identifier": ev.deviceIdentifier,
		})
	}
	return ""
}

func (p *policy) audit(ctx context.Context, ev *evaluation, action events.AuditAction, metadata map[string]string) {
	event := events.Audit{
		Version:   events.ProtocolVersion,
		ID:        uuid.NewString(),
		RequestID: ev.caller.RequestID,
		Action:    action,
		TeamID:    ev.teamID,
		Metadata:  metadata,
		Timestamp: ev.now,
	}
	if ev.license != nil {
		event.LicenseID = ev.license.ID
	}
	p.deps.Audit.Audit(ctx, event)
}

func hasDevice(devices []domain.Device, deviceIdentifier string) bool {
	for _, d := range devices {
		if d.DeviceIdentifier == deviceIdentifier {
			return true
		}
	}
	return false
}

// publishedReleases filters releases down to PUBLISHED ones
func publishedReleases(releases []domain.Release) []domain.Release {
	out := make([]domain.Release, 0, len(releases))
	for _, r := range releases {
		if r.Status == domain.ReleasePublished {
			out = append(out, r)
		}
	}
	return out
}

// latestPublished returns the latest-flagged published release, if any
func latestPublished(releases []domain.Release) *domain.Release {
	for i := range releases {
		if releases[i].Latest && releases[i].Status == domain.ReleasePublished {
			return &releases[i]
		}
	}
	return nil
}
