package license_test

import (
	"bytes"
	"context"
	"crypto/rsa"
	"fmt"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/coder/quartz"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"licensegate/internal/config"
	"licensegate/internal/infrastructure"
	"licensegate/internal/license"
	"licensegate/internal/security"
	"licensegate/internal/store/memory"
	api "licensegate/pkg/contracts/api/v1"
	"licensegate/pkg/contracts/domain"
	"licensegate/pkg/contracts/events"
)

const (
	teamID     = "0b6c2a8e-5d3f-4c1e-9a7b-1f2e3d4c5b6a"
	licenseID  = "7f1e2d3c-4b5a-4968-8776-655443322110"
	customerID = "5b8f3f3e-3f7a-4b7a-9d55-2f1c3d9b8a11"
	productID  = "7c0d1a52-9a0e-4f8b-8a4e-6b7f2e9c1d22"
	licenseKey = "ABCDE-12345-FGHIJ-67890-KLMNO"
	artifactID = "releases/widget-1.2.0.jar"
)

var (
	testKeysOnce sync.Once
	testPrivPEM  string
	testPubPEM   string
)

func teamKeys(t *testing.T) (string, string) {
	t.Helper()
	testKeysOnce.Do(func() {
		var err error
		testPrivPEM, testPubPEM, err = security.GenerateKeyPair(2048)
		if err != nil {
			panic(err)
		}
	})
	return testPrivPEM, testPubPEM
}

// countingLimiter is a fixed-window limiter without expiry
type countingLimiter struct {
	mu     sync.Mutex
	counts map[string]int
}

func (l *countingLimiter) IsLimited(ctx context.Context, key string, maxRequests int, window time.Duration) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.counts == nil {
		l.counts = map[string]int{}
	}
	pre := l.counts[key]
	l.counts[key] = pre + 1
	return pre >= maxRequests
}

type auditRecorder struct {
	mu     sync.Mutex
	events []events.Audit
}

func (r *auditRecorder) Audit(ctx context.Context, e events.Audit) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *auditRecorder) actions() []events.AuditAction {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]events.AuditAction, 0, len(r.events))
	for _, e := range r.events {
		out = append(out, e.Action)
	}
	return out
}

type memArtifacts map[string][]byte

func (m memArtifacts) Open(ctx context.Context, key string) (io.ReadCloser, int64, error) {
	data, ok := m[key]
	if !ok {
		return nil, 0, license.ErrArtifactNotFound
	}
	return io.NopCloser(bytes.NewReader(data)), int64(len(data)), nil
}

type recordingWatermarker struct {
	requests []license.WatermarkRequest
}

func (w *recordingWatermarker) Embed(ctx context.Context, req license.WatermarkRequest, artifact []byte) ([]byte, error) {
	w.requests = append(w.requests, req)
	return append([]byte("WM:"), artifact...), nil
}

type world struct {
	t           *testing.T
	store       *memory.Store
	clock       *quartz.Mock
	keyring     *security.Keyring
	limiter     *countingLimiter
	audit       *auditRecorder
	artifacts   memArtifacts
	watermarker *recordingWatermarker
	verifier    *license.Verifier
	distributor *license.Distributor
	publicKey   *rsa.PublicKey
}

var start = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

func newWorld(t *testing.T) *world {
	t.Helper()

	keyring, err := security.NewKeyring("lookup-secret", "encryption-secret")
	require.NoError(t, err)
	privPEM, pubPEM := teamKeys(t)
	blob, err := keyring.EncryptAtRest(privPEM)
	require.NoError(t, err)
	pub, err := security.ParsePublicKey(pubPEM)
	require.NoError(t, err)

	clock := quartz.NewMock(t)
	clock.Set(start)

	w := &world{
		t:           t,
		store:       memory.New(),
		clock:       clock,
		keyring:     keyring,
		limiter:     &countingLimiter{},
		audit:       &auditRecorder{},
		artifacts:   memArtifacts{artifactID: bytes.Repeat([]byte{0xCA, 0xFE, 0xBA, 0xBE}, 5000)},
		watermarker: &recordingWatermarker{},
		publicKey:   pub,
	}

	w.store.PutTeam(domain.TeamPolicy{
		ID:   teamID,
		Name: "Acme",
		Settings: domain.TeamSettings{
			IPLimitPeriod: domain.IPLimitDay,
			DeviceTimeout: 60,
		},
		Limits:  domain.TeamLimits{AllowClassloader: true},
		KeyPair: &domain.KeyPair{PublicKey: pubPEM, PrivateKey: blob},
	})
	w.store.PutProduct(domain.Product{
		ID:     productID,
		TeamID: teamID,
		Name:   "Widget",
		Releases: []domain.Release{
			{ID: "r-110", ProductID: productID, Version: "1.1.0", Status: domain.ReleaseArchived,
				File: &domain.ReleaseFile{Key: artifactID}},
			{ID: "r-120", ProductID: productID, Version: "1.2.0", Status: domain.ReleasePublished, Latest: true,
				File: &domain.ReleaseFile{Key: artifactID, Size: 20000}, CreatedAt: start, UpdatedAt: start},
			{ID: "r-130", ProductID: productID, Version: "1.3.0-beta", Status: domain.ReleaseDraft},
		},
	})
	w.putLicense(func(l *domain.License) {})
	w.build()
	return w
}

func (w *world) build() {
	deps := license.Dependencies{
		Store:   w.store,
		Teams:   license.NewTeamCache(w.store, w.keyring, w.clock, 0, 0),
		Limiter: w.limiter,
		Keyring: w.keyring,
		Audit:   w.audit,
		Clock:   w.clock,
		Logger:  infrastructure.DiscardLogger(),
		Limits:  config.Default().Limits,
	}
	w.verifier = license.NewVerifier(deps)
	w.distributor = license.NewDistributor(deps, w.artifacts, w.watermarker)
}

func (w *world) putLicense(mutate func(l *domain.License)) {
	l := domain.License{
		ID:               licenseID,
		TeamID:           teamID,
		LicenseKeyLookup: w.keyring.LookupHash(licenseKey, teamID),
		ExpirationType:   domain.ExpirationNever,
		CreatedAt:        start.AddDate(0, -1, 0),
		Products:         []domain.Product{{ID: productID}},
	}
	mutate(&l)
	require.NoError(w.t, w.store.PutLicense(l))
}

func (w *world) updateTeam(mutate func(team *domain.TeamPolicy)) {
	team, err := w.store.FindTeam(context.Background(), teamID)
	require.NoError(w.t, err)
	mutate(team)
	w.store.PutTeam(*team)
}

func (w *world) advance(d time.Duration) {
	w.clock.Advance(d).MustWait(context.Background())
}

func (w *world) verify(req api.VerifyRequest, ip string) license.Verdict {
	if req.LicenseKey == "" {
		req.LicenseKey = licenseKey
	}
	return w.verifier.Verify(context.Background(), teamID, req, license.Caller{IP: ip, Country: "DE"})
}

func (w *world) sessionKey(secret string) string {
	wrapped, err := security.WrapSessionKey([]byte(secret), w.publicKey)
	require.NoError(w.t, err)
	return wrapped
}

func (w *world) download(req api.DownloadRequest, ip string) (*license.Delivery, license.Verdict) {
	if req.LicenseKey == "" {
		req.LicenseKey = licenseKey
	}
	if req.ProductID == "" {
		req.ProductID = productID
	}
	return w.distributor.Prepare(context.Background(), teamID, req, license.Caller{IP: ip})
}

func TestVerifyValidWithChallenge(t *testing.T) {
	w := newWorld(t)

	v := w.verify(api.VerifyRequest{ProductID: productID, Challenge: "nonce-42"}, "198.51.100.7")
	require.Equal(t, license.CodeValid, v.Code, v.Err)
	assert.True(t, v.Valid())
	assert.Equal(t, licenseID, v.LicenseID)
	assert.Equal(t, productID, v.ProductID)
	require.NotNil(t, v.ChallengeResponse)
	assert.NoError(t, security.VerifyChallenge("nonce-42", *v.ChallengeResponse, w.publicKey))

	stored, ok := w.store.License(licenseID)
	require.True(t, ok)
	require.NotNil(t, stored.LastActiveAt)
	assert.Equal(t, start, *stored.LastActiveAt)

	logs := w.store.RequestLogs(licenseID)
	require.Len(t, logs, 1)
	assert.Equal(t, "198.51.100.7", logs[0].IPAddress)

	product, err := w.store.FindProduct(context.Background(), teamID, productID)
	require.NoError(t, err)
	require.NotNil(t, product.Releases[1].LastSeenAt, "latest release seen")
}

func TestVerifyBadRequests(t *testing.T) {
	w := newWorld(t)

	v := w.verifier.Verify(context.Background(), "not-a-uuid", api.VerifyRequest{LicenseKey: licenseKey}, license.Caller{IP: "198.51.100.7"})
	assert.Equal(t, license.CodeBadRequest, v.Code)

	v = w.verify(api.VerifyRequest{LicenseKey: "abcde-12345-fghij-67890-klmno"}, "198.51.100.7")
	assert.Equal(t, license.CodeBadRequest, v.Code)

	v = w.verify(api.VerifyRequest{Challenge: "has space"}, "198.51.100.7")
	assert.Equal(t, license.CodeBadRequest, v.Code)

	assert.Empty(t, w.store.RequestLogs(licenseID), "denials leave no evidence")
}

func TestVerifyRateLimited(t *testing.T) {
	w := newWorld(t)
	limit := config.Default().Limits.VerifyIPMax

	for i := 0; i < limit; i++ {
		require.Equal(t, license.CodeValid, w.verify(api.VerifyRequest{}, "198.51.100.7").Code, "call %d", i+1)
	}
	assert.Equal(t, license.CodeRateLimited, w.verify(api.VerifyRequest{}, "198.51.100.7").Code)
	assert.Equal(t, license.CodeValid, w.verify(api.VerifyRequest{}, "198.51.100.8").Code, "other ips unaffected")
}

func TestVerifyTeamAndLicenseNotFound(t *testing.T) {
	w := newWorld(t)

	v := w.verifier.Verify(context.Background(), "11111111-2222-4333-8444-555555555555", api.VerifyRequest{LicenseKey: licenseKey}, license.Caller{IP: "198.51.100.7"})
	assert.Equal(t, license.CodeTeamNotFound, v.Code)

	deleted := start.Add(-time.Hour)
	w.updateTeam(func(team *domain.TeamPolicy) { team.DeletedAt = &deleted })
	assert.Equal(t, license.CodeTeamNotFound, w.verify(api.VerifyRequest{}, "198.51.100.7").Code)

	w = newWorld(t)
	v = w.verify(api.VerifyRequest{LicenseKey: "ZZZZZ-12345-FGHIJ-67890-KLMNO"}, "198.51.100.7")
	assert.Equal(t, license.CodeLicenseNotFound, v.Code)
}

func TestVerifyBlacklistCountsHits(t *testing.T) {
	w := newWorld(t)
	w.updateTeam(func(team *domain.TeamPolicy) {
		team.Blacklist = []domain.BlacklistEntry{
			{ID: "bl-ip", Type: domain.BlacklistIPAddress, Value: "203.0.113.9"},
			{ID: "bl-country", Type: domain.BlacklistCountry, Value: "de"},
		}
	})

	v := w.verify(api.VerifyRequest{}, "203.0.113.9")
	assert.Equal(t, license.CodeIPBlacklisted, v.Code)

	v = w.verify(api.VerifyRequest{}, "198.51.100.7")
	assert.Equal(t, license.CodeCountryBlacklisted, v.Code)

	team, err := w.store.FindTeam(context.Background(), teamID)
	require.NoError(t, err)
	assert.EqualValues(t, 1, team.Blacklist[0].Hits)
	assert.EqualValues(t, 1, team.Blacklist[1].Hits)
	assert.Equal(t, []events.AuditAction{events.AuditBlacklistHit, events.AuditBlacklistHit}, w.audit.actions())
}

func TestVerifyStrictAssociations(t *testing.T) {
	w := newWorld(t)
	w.putLicense(func(l *domain.License) {
		l.Customers = []domain.Customer{{ID: customerID}}
	})

	assert.Equal(t, license.CodeValid, w.verify(api.VerifyRequest{}, "198.51.100.7").Code, "lenient team")

	w.updateTeam(func(team *domain.TeamPolicy) {
		team.Settings.StrictCustomers = true
		team.Settings.StrictProducts = true
		team.Settings.StrictReleases = true
	})

	assert.Equal(t, license.CodeCustomerNotFound, w.verify(api.VerifyRequest{}, "198.51.100.7").Code)

	req := api.VerifyRequest{CustomerID: customerID}
	assert.Equal(t, license.CodeProductNotFound, w.verify(req, "198.51.100.7").Code)

	req.ProductID = productID
	assert.Equal(t, license.CodeReleaseNotFound, w.verify(req, "198.51.100.7").Code)

	req.Version = "1.1.0"
	assert.Equal(t, license.CodeReleaseNotFound, w.verify(req, "198.51.100.7").Code, "archived releases are not candidates")

	req.Version = "1.2.0"
	v := w.verify(req, "198.51.100.7")
	require.Equal(t, license.CodeValid, v.Code)
	assert.Equal(t, customerID, v.CustomerID)
	assert.Equal(t, "r-120", v.ReleaseID)
	assert.Equal(t, "1.2.0", v.ReleaseVersion)
}

func TestVerifySuspendedAndExpired(t *testing.T) {
	w := newWorld(t)
	w.putLicense(func(l *domain.License) { l.Suspended = true })
	assert.Equal(t, license.CodeLicenseSuspended, w.verify(api.VerifyRequest{}, "198.51.100.7").Code)

	expiry := start.Add(time.Hour)
	w.putLicense(func(l *domain.License) {
		l.ExpirationType = domain.ExpirationDate
		l.ExpirationDate = &expiry
	})
	assert.Equal(t, license.CodeValid, w.verify(api.VerifyRequest{}, "198.51.100.7").Code)
	w.advance(time.Hour)
	assert.Equal(t, license.CodeValid, w.verify(api.VerifyRequest{}, "198.51.100.7").Code, "expiry instant passes")
	w.advance(time.Second)
	assert.Equal(t, license.CodeLicenseExpired, w.verify(api.VerifyRequest{}, "198.51.100.7").Code)
}

func TestVerifyMalformedExpirationIsInternal(t *testing.T) {
	w := newWorld(t)
	w.putLicense(func(l *domain.License) { l.ExpirationType = domain.ExpirationDate })

	v := w.verify(api.VerifyRequest{}, "198.51.100.7")
	assert.Equal(t, license.CodeInternalError, v.Code)
	assert.Error(t, v.Err)
}

func TestVerifyDurationActivatesOnce(t *testing.T) {
	w := newWorld(t)
	days := 30
	w.putLicense(func(l *domain.License) {
		l.ExpirationType = domain.ExpirationDuration
		l.ExpirationStart = domain.ExpirationStartActivation
		l.ExpirationDays = &days
	})

	require.Equal(t, license.CodeValid, w.verify(api.VerifyRequest{}, "198.51.100.7").Code)
	stored, _ := w.store.License(licenseID)
	require.NotNil(t, stored.ExpirationDate)
	assert.Equal(t, start.AddDate(0, 0, 30), *stored.ExpirationDate)

	w.advance(29 * 24 * time.Hour)
	require.Equal(t, license.CodeValid, w.verify(api.VerifyRequest{}, "198.51.100.7").Code)
	stored, _ = w.store.License(licenseID)
	assert.Equal(t, start.AddDate(0, 0, 30), *stored.ExpirationDate, "date set exactly once")

	w.advance(2 * 24 * time.Hour)
	assert.Equal(t, license.CodeLicenseExpired, w.verify(api.VerifyRequest{}, "198.51.100.7").Code)

	assert.Equal(t, []events.AuditAction{events.AuditExpirationActivated}, w.audit.actions())
}

func TestVerifyConcurrentActivationAgrees(t *testing.T) {
	w := newWorld(t)
	days := 7
	w.putLicense(func(l *domain.License) {
		l.ExpirationType = domain.ExpirationDuration
		l.ExpirationDays = &days
	})

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			w.verify(api.VerifyRequest{}, fmt.Sprintf("198.51.100.%d", i+1))
		}(i)
	}
	wg.Wait()

	stored, _ := w.store.License(licenseID)
	require.NotNil(t, stored.ExpirationDate)
	assert.Equal(t, start.AddDate(0, 0, 7), *stored.ExpirationDate)
	assert.Len(t, w.audit.actions(), 1)
}

func TestVerifyIPLimit(t *testing.T) {
	w := newWorld(t)
	w.putLicense(func(l *domain.License) { l.IPLimit = intPtr(1) })

	assert.Equal(t, license.CodeValid, w.verify(api.VerifyRequest{}, "198.51.100.1").Code)
	assert.Equal(t, license.CodeIPLimitReached, w.verify(api.VerifyRequest{}, "198.51.100.2").Code)
	assert.Equal(t, license.CodeValid, w.verify(api.VerifyRequest{}, "198.51.100.1").Code)

	w.advance(25 * time.Hour)
	assert.Equal(t, license.CodeValid, w.verify(api.VerifyRequest{}, "198.51.100.2").Code, "old evidence left the window")
}

func TestVerifySeats(t *testing.T) {
	w := newWorld(t)
	w.putLicense(func(l *domain.License) { l.Seats = intPtr(2) })

	device := func(n int) api.VerifyRequest {
		return api.VerifyRequest{DeviceIdentifier: fmt.Sprintf("device-%010d", n)}
	}

	assert.Equal(t, license.CodeValid, w.verify(device(1), "198.51.100.1").Code)
	assert.Equal(t, license.CodeValid, w.verify(device(2), "198.51.100.1").Code)
	assert.Equal(t, license.CodeMaxConcurrentSeats, w.verify(device(3), "198.51.100.1").Code)
	assert.Equal(t, license.CodeValid, w.verify(device(1), "198.51.100.1").Code, "active seat refreshes")

	w.advance(61 * time.Minute)
	assert.Equal(t, license.CodeValid, w.verify(device(3), "198.51.100.1").Code, "seats freed by timeout")

	assert.Len(t, w.store.Devices(licenseID), 3)
	assert.Equal(t, []events.AuditAction{
		events.AuditDeviceRegistered, events.AuditDeviceRegistered, events.AuditDeviceRegistered,
	}, w.audit.actions())
}

func decode(t *testing.T, d *license.Delivery, sessionKey string) []byte {
	t.Helper()
	defer d.Body.Close()
	encoded, err := io.ReadAll(d.Body)
	require.NoError(t, err)
	require.EqualValues(t, d.Size, len(encoded))

	dec, err := security.NewStreamDecrypter(bytes.NewReader(encoded), []byte(sessionKey))
	require.NoError(t, err)
	plain, err := io.ReadAll(dec)
	require.NoError(t, err)
	return plain
}

func TestDownloadLatestRelease(t *testing.T) {
	w := newWorld(t)

	d, v := w.download(api.DownloadRequest{SessionKey: w.sessionKey("secret-1")}, "198.51.100.7")
	require.Equal(t, license.CodeValid, v.Code, v.Err)
	require.NotNil(t, d)

	assert.Equal(t, w.artifacts[artifactID], decode(t, d, "secret-1"))
	assert.Equal(t, "1.2.0", d.Release.Version)
	assert.Equal(t, "Widget", d.ProductName)
	assert.Equal(t, "1.2.0", d.LatestVersion)
	assert.False(t, d.Watermarked)
	assert.EqualValues(t, len(w.artifacts[artifactID]), d.PlainSize)
	assert.Equal(t, "r-120", v.ReleaseID)
	assert.Empty(t, w.watermarker.requests)

	assert.Len(t, w.store.RequestLogs(licenseID), 1)
}

func TestDownloadReleaseGates(t *testing.T) {
	w := newWorld(t)

	tests := []struct {
		version string
		code    license.Code
	}{
		{"1.3.0-beta", license.CodeReleaseDraft},
		{"1.1.0", license.CodeReleaseArchived},
		{"9.9.9", license.CodeReleaseNotFound},
	}
	for i, tt := range tests {
		_, v := w.download(api.DownloadRequest{Version: tt.version, SessionKey: w.sessionKey(fmt.Sprintf("key-%d", i))}, "198.51.100.7")
		assert.Equal(t, tt.code, v.Code, tt.version)
	}
}

func TestDownloadPlanAndAccess(t *testing.T) {
	w := newWorld(t)
	w.updateTeam(func(team *domain.TeamPolicy) { team.Limits.AllowClassloader = false })
	_, v := w.download(api.DownloadRequest{SessionKey: w.sessionKey("k1")}, "198.51.100.7")
	assert.Equal(t, license.CodeForbidden, v.Code)

	w = newWorld(t)
	product, err := w.store.FindProduct(context.Background(), teamID, productID)
	require.NoError(t, err)
	product.Releases[1].AllowedLicenseIDs = []string{"someone-else"}
	w.store.PutProduct(*product)

	_, v = w.download(api.DownloadRequest{SessionKey: w.sessionKey("k2")}, "198.51.100.7")
	assert.Equal(t, license.CodeNoAccessToRelease, v.Code)

	product.Releases[1].AllowedLicenseIDs = []string{licenseID}
	w.store.PutProduct(*product)
	_, v = w.download(api.DownloadRequest{SessionKey: w.sessionKey("k3")}, "198.51.100.7")
	assert.Equal(t, license.CodeValid, v.Code)
}

func TestDownloadProductMustBeBound(t *testing.T) {
	w := newWorld(t)
	other := "99999999-9a0e-4f8b-8a4e-6b7f2e9c1d22"
	w.store.PutProduct(domain.Product{ID: other, TeamID: teamID, Name: "Other"})

	_, v := w.download(api.DownloadRequest{ProductID: other, SessionKey: w.sessionKey("k1")}, "198.51.100.7")
	assert.Equal(t, license.CodeProductNotFound, v.Code)
}

func TestDownloadSessionKey(t *testing.T) {
	w := newWorld(t)

	_, v := w.download(api.DownloadRequest{SessionKey: "deadbeef"}, "198.51.100.7")
	assert.Equal(t, license.CodeInvalidSessionKey, v.Code)

	wrapped := w.sessionKey("replayed")
	d, v := w.download(api.DownloadRequest{SessionKey: wrapped}, "198.51.100.7")
	require.Equal(t, license.CodeValid, v.Code)
	d.Body.Close()

	_, v = w.download(api.DownloadRequest{SessionKey: wrapped}, "198.51.100.7")
	assert.Equal(t, license.CodeRateLimited, v.Code, "a session key is single use within its window")

	_, v = w.download(api.DownloadRequest{SessionKey: w.sessionKey("replayed")}, "198.51.100.7")
	assert.Equal(t, license.CodeRateLimited, v.Code, "limit keys on the unwrapped secret")
}

func TestDownloadMissingArtifact(t *testing.T) {
	w := newWorld(t)
	delete(w.artifacts, artifactID)

	_, v := w.download(api.DownloadRequest{SessionKey: w.sessionKey("k1")}, "198.51.100.7")
	assert.Equal(t, license.CodeReleaseNotFound, v.Code)
}

func TestDownloadWatermarked(t *testing.T) {
	w := newWorld(t)
	w.updateTeam(func(team *domain.TeamPolicy) {
		team.Limits.AllowWatermarking = true
		team.Settings.Watermarking = domain.WatermarkSettings{Enabled: true, DynamicBytecode: true, DynamicBytecodeDensity: 40}
	})

	_, v := w.download(api.DownloadRequest{SessionKey: w.sessionKey("k1")}, "198.51.100.7")
	require.Equal(t, license.CodeValid, v.Code)
	assert.Empty(t, w.watermarker.requests, "artifact without main class is not eligible")

	product, err := w.store.FindProduct(context.Background(), teamID, productID)
	require.NoError(t, err)
	mainClass := "com.acme.Main"
	product.Releases[1].File.MainClassName = &mainClass
	w.store.PutProduct(*product)

	d, v := w.download(api.DownloadRequest{SessionKey: w.sessionKey("k2")}, "198.51.100.7")
	require.Equal(t, license.CodeValid, v.Code)
	assert.True(t, d.Watermarked)
	assert.Equal(t, "com.acme.Main", d.MainClassName)

	plain := decode(t, d, "k2")
	assert.Equal(t, append([]byte("WM:"), w.artifacts[artifactID]...), plain)

	require.Len(t, w.watermarker.requests, 1)
	req := w.watermarker.requests[0]
	assert.Equal(t, w.keyring.WatermarkTag(teamID, w.keyring.LookupHash(licenseKey, teamID)), req.Tag)
	assert.NotContains(t, req.Tag, teamID)
	assert.Equal(t, w.keyring.WatermarkToken(teamID), req.Token)
	assert.Equal(t, "widget-1.2.0.jar", req.FileName)
	assert.Equal(t, 40, req.Settings.DynamicBytecodeDensity)
}

func TestDownloadSharesVerificationChecks(t *testing.T) {
	w := newWorld(t)
	w.putLicense(func(l *domain.License) { l.Suspended = true })

	_, v := w.download(api.DownloadRequest{SessionKey: w.sessionKey("k1")}, "198.51.100.7")
	assert.Equal(t, license.CodeLicenseSuspended, v.Code)

	_, v = w.download(api.DownloadRequest{}, "198.51.100.7")
	assert.Equal(t, license.CodeBadRequest, v.Code, "session key required")
}

func intPtr(v int) *int { return &v }
