package license

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"licensegate/internal/ratelimit"
	"licensegate/internal/security"
	api "licensegate/pkg/contracts/api/v1"
	"licensegate/pkg/contracts/domain"
)

// Distributor runs the distribution pipeline
type Distributor struct {
	policy
	artifacts   ArtifactStore
	watermarker Watermarker
	checks      []check
	tracer      trace.Tracer
}

// NewDistributor creates a distributor. A nil watermarker disables
// watermarking regardless of team settings.
func NewDistributor(deps Dependencies, artifacts ArtifactStore, watermarker Watermarker) *Distributor {
	deps.defaults()
	d := &Distributor{
		policy:      policy{deps: deps},
		artifacts:   artifacts,
		watermarker: watermarker,
		tracer:      otel.Tracer(TracerName),
	}
	d.checks = []check{
		{"team_id", validTeamID},
		{"schema", validRequest},
		{"ip_rate_limit", d.limitIP(ratelimit.DownloadIPKey, deps.Limits.DownloadIPMax, deps.Limits.DownloadIPWindow)},
		{"team", d.resolveTeam},
		{"plan", checkClassloaderPlan},
		{"license", d.resolveLicense},
		{"blacklist", d.checkBlacklist},
		{"strict_customer", d.checkCustomer},
		{"strict_product", d.checkProduct},
		{"suspended", checkSuspended},
		{"expiration", d.checkExpiration},
		{"product", d.resolveProduct},
		{"release", resolveRelease},
		{"release_status", checkReleaseStatus},
		{"release_access", checkReleaseAccess},
		{"release_file", checkReleaseFile},
		{"session_key", unwrapSessionKey},
		{"session_rate_limit", d.limitSessionKey},
		{"ip_limit", d.checkIPLimit},
		{"seats", d.checkSeats},
		{"commit", d.commit},
	}
	return d
}

// Prepare admits a download and opens the encrypted stream. The Delivery is
// nil unless the verdict is valid.
func (d *Distributor) Prepare(ctx context.Context, teamID string, req api.DownloadRequest, caller Caller) (*Delivery, Verdict) {
	ctx, span := d.tracer.Start(ctx, "license.Prepare",
		trace.WithAttributes(attribute.String("team_id", teamID)))
	defer span.End()

	ev := &evaluation{
		teamID:           teamID,
		licenseKey:       req.LicenseKey,
		customerID:       req.CustomerID,
		productID:        req.ProductID,
		version:          req.Version,
		deviceIdentifier: req.DeviceIdentifier,
		sessionKeyHex:    req.SessionKey,
		request:          req,
		caller:           caller,
		now:              d.deps.Clock.Now(),
	}

	code, step := runChecks(ctx, ev, d.checks)
	if code != CodeValid {
		span.SetAttributes(attribute.String("code", string(code)), attribute.String("step", step))
		return nil, ev.verdict(code)
	}

	delivery, code := d.deliver(ctx, ev)
	span.SetAttributes(attribute.String("code", string(code)))
	if code != CodeValid {
		return nil, ev.verdict(code)
	}
	delivery.Verdict = ev.verdict(CodeValid)
	return delivery, delivery.Verdict
}

// deliver fetches the artifact and builds the stage chain
func (d *Distributor) deliver(ctx context.Context, ev *evaluation) (*Delivery, Code) {
	file := ev.release.File

	body, size, err := d.artifacts.Open(ctx, file.Key)
	if err != nil {
		if errors.Is(err, ErrArtifactNotFound) {
			d.deps.Logger.WarnContext(ctx, "release artifact missing from storage",
				slog.String("release_id", ev.release.ID),
				slog.String("key", file.Key),
			)
			return nil, CodeReleaseNotFound
		}
		return nil, ev.fail(fmt.Errorf("open artifact: %w", err))
	}

	stages := d.stages(ctx, ev)
	out, err := applyStages(ctx, Artifact{Body: body, Size: size}, stages)
	if err != nil {
		return nil, ev.fail(err)
	}

	delivery := &Delivery{
		Body:        out.Body,
		Size:        out.Size,
		PlainSize:   size,
		ChunkSize:   d.deps.Limits.StreamChunkSize,
		ProductName: ev.product.Name,
		Release:     *ev.release,
	}
	for _, s := range stages {
		if s.Buffered() {
			delivery.Watermarked = true
		}
	}
	if latest := latestPublished(ev.product.Releases); latest != nil {
		delivery.LatestVersion = latest.Version
	}
	if file.MainClassName != nil {
		delivery.MainClassName = *file.MainClassName
	}
	return delivery, CodeValid
}

func (d *Distributor) stages(ctx context.Context, ev *evaluation) []Stage {
	var stages []Stage
	if d.watermarkEligible(ctx, ev) {
		stages = append(stages, &watermarkStage{
			client: d.watermarker,
			request: WatermarkRequest{
				FileName:      path.Base(ev.release.File.Key),
				MainClassName: *ev.release.File.MainClassName,
				Settings:      ev.team.Policy.Settings.Watermarking,
				Tag:           d.deps.Keyring.WatermarkTag(ev.teamID, ev.license.LicenseKeyLookup),
				Token:         d.deps.Keyring.WatermarkToken(ev.teamID),
			},
			maxBuffer: d.deps.Limits.MaxWatermarkBuffer,
			metrics:   d.deps.Metrics,
		})
	}
	return append(stages, &encryptStage{
		sessionKey: ev.sessionKey,
		chunkSize:  d.deps.Limits.StreamChunkSize,
	})
}

// watermarkEligible requires team settings, plan, a method and a main class
func (d *Distributor) watermarkEligible(ctx context.Context, ev *evaluation) bool {
	settings := ev.team.Policy.Settings.Watermarking
	if !settings.Enabled || !ev.team.Policy.Limits.AllowWatermarking || !settings.HasMethod() {
		return false
	}
	mainClass := ev.release.File.MainClassName
	if mainClass == nil || *mainClass == "" {
		return false
	}
	if d.watermarker == nil {
		d.deps.Logger.WarnContext(ctx, "watermarking enabled but no watermark service configured",
			slog.String("team_id", ev.teamID))
		return false
	}
	return true
}

func checkClassloaderPlan(ctx context.Context, ev *evaluation) Code {
	if !ev.team.Policy.Limits.AllowClassloader {
		return CodeForbidden
	}
	return ""
}

// resolveProduct loads the requested product with all of its releases. A
// license bound to products may only download one of them.
func (d *Distributor) resolveProduct(ctx context.Context, ev *evaluation) Code {
	if len(ev.license.Products) > 0 {
		bound := false
		for _, p := range ev.license.Products {
			if p.ID == ev.productID {
				bound = true
				break
			}
		}
		if !bound {
			return CodeProductNotFound
		}
	}

	product, err := d.deps.Store.FindProduct(ctx, ev.teamID, ev.productID)
	if err != nil {
		if isNotFound(err) {
			return CodeProductNotFound
		}
		return ev.fail(fmt.Errorf("find product: %w", err))
	}
	ev.product = product
	return ""
}

// resolveRelease picks the requested version, or the latest-flagged release
func resolveRelease(ctx context.Context, ev *evaluation) Code {
	releases := ev.product.Releases
	for i := range releases {
		if ev.version != "" && releases[i].Version == ev.version {
			ev.release = &releases[i]
			return ""
		}
		if ev.version == "" && releases[i].Latest {
			ev.release = &releases[i]
			return ""
		}
	}
	return CodeReleaseNotFound
}

func checkReleaseStatus(ctx context.Context, ev *evaluation) Code {
	switch ev.release.Status {
	case domain.ReleaseDraft:
		return CodeReleaseDraft
	case domain.ReleaseArchived:
		return CodeReleaseArchived
	}
	return ""
}

func checkReleaseAccess(ctx context.Context, ev *evaluation) Code {
	if !ev.release.AllowsLicense(ev.license.ID) {
		return CodeNoAccessToRelease
	}
	return ""
}

func checkReleaseFile(ctx context.Context, ev *evaluation) Code {
	if ev.release.File == nil || ev.release.File.Key == "" {
		return CodeReleaseNotFound
	}
	return ""
}

func unwrapSessionKey(ctx context.Context, ev *evaluation) Code {
	if ev.team.PrivateKey == nil {
		return ev.fail(fmt.Errorf("team %s has no private key", ev.teamID))
	}
	key, err := security.UnwrapSessionKey(ev.sessionKeyHex, ev.team.PrivateKey)
	if err != nil {
		return CodeInvalidSessionKey
	}
	ev.sessionKey = key
	return ""
}

func (d *Distributor) limitSessionKey(ctx context.Context, ev *evaluation) Code {
	key := ratelimit.SessionKey(security.SessionKeyHash(ev.sessionKey))
	if d.deps.Limiter.IsLimited(ctx, key, d.deps.Limits.SessionKeyMax, d.deps.Limits.SessionKeyWindow) {
		return CodeRateLimited
	}
	return ""
}
