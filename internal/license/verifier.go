package license

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"licensegate/internal/ratelimit"
	"licensegate/internal/security"
	api "licensegate/pkg/contracts/api/v1"
	"licensegate/pkg/contracts/domain"
)

// Verifier runs the verification pipeline
type Verifier struct {
	policy
	checks []check
	tracer trace.Tracer
}

// NewVerifier creates a verifier
func NewVerifier(deps Dependencies) *Verifier {
	deps.defaults()
	v := &Verifier{
		policy: policy{deps: deps},
		tracer: otel.Tracer(TracerName),
	}
	v.checks = []check{
		{"team_id", validTeamID},
		{"schema", validRequest},
		{"ip_rate_limit", v.limitIP(ratelimit.VerifyIPKey, deps.Limits.VerifyIPMax, deps.Limits.VerifyIPWindow)},
		{"team", v.resolveTeam},
		{"license", v.resolveLicense},
		{"blacklist", v.checkBlacklist},
		{"strict_customer", v.checkCustomer},
		{"strict_product", v.checkProduct},
		{"strict_release", v.checkRelease},
		{"suspended", checkSuspended},
		{"expiration", v.checkExpiration},
		{"ip_limit", v.checkIPLimit},
		{"seats", v.checkSeats},
		{"commit", v.commit},
	}
	return v
}

// Verify decides whether the caller may run. It never returns a Go error;
// infrastructure faults come back as CodeInternalError with Verdict.Err set.
func (v *Verifier) Verify(ctx context.Context, teamID string, req api.VerifyRequest, caller Caller) Verdict {
	ctx, span := v.tracer.Start(ctx, "license.Verify",
		trace.WithAttributes(attribute.String("team_id", teamID)))
	defer span.End()

	ev := &evaluation{
		teamID:           teamID,
		licenseKey:       req.LicenseKey,
		customerID:       req.CustomerID,
		productID:        req.ProductID,
		version:          req.Version,
		deviceIdentifier: req.DeviceIdentifier,
		request:          req,
		caller:           caller,
		now:              v.deps.Clock.Now(),
	}

	code, step := runChecks(ctx, ev, v.checks)
	if code != CodeValid {
		span.SetAttributes(attribute.String("code", string(code)), attribute.String("step", step))
		return ev.verdict(code)
	}

	verdict := ev.verdict(CodeValid)
	if req.Challenge != "" {
		if ev.team.PrivateKey == nil {
			ev.err = fmt.Errorf("team %s has no private key to sign challenges", teamID)
			return ev.verdict(CodeInternalError)
		}
		signature, err := security.SignChallenge(req.Challenge, ev.team.PrivateKey)
		if err != nil {
			ev.err = err
			return ev.verdict(CodeInternalError)
		}
		verdict.ChallengeResponse = &signature
	}

	span.SetAttributes(attribute.String("code", string(CodeValid)))
	return verdict
}

// checkRelease applies strict release matching over the matched product's
// published releases
func (v *Verifier) checkRelease(ctx context.Context, ev *evaluation) Code {
	if ev.product == nil {
		return ""
	}
	published := publishedReleases(ev.product.Releases)
	release, code, ok := resolveStrictAssociation(published, ev.version,
		ev.team.Policy.Settings.StrictReleases, func(r domain.Release) string { return r.Version }, CodeReleaseNotFound)
	if !ok {
		return code
	}
	ev.release = release
	return ""
}
