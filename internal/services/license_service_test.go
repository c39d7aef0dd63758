package services

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/coder/quartz"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"licensegate/internal/infrastructure"
	"licensegate/internal/license"
	"licensegate/internal/shared/testutil"
	api "licensegate/pkg/contracts/api/v1"
	contract "licensegate/pkg/contracts/events"
)

type mockVerifier struct{ mock.Mock }

func (m *mockVerifier) Verify(ctx context.Context, teamID string, req api.VerifyRequest, caller license.Caller) license.Verdict {
	args := m.Called(ctx, teamID, req, caller)
	return args.Get(0).(license.Verdict)
}

type mockDistributor struct{ mock.Mock }

func (m *mockDistributor) Prepare(ctx context.Context, teamID string, req api.DownloadRequest, caller license.Caller) (*license.Delivery, license.Verdict) {
	args := m.Called(ctx, teamID, req, caller)
	delivery, _ := args.Get(0).(*license.Delivery)
	return delivery, args.Get(1).(license.Verdict)
}

type recordingSink struct {
	mu   sync.Mutex
	logs []contract.RequestLog
}

func (s *recordingSink) RequestLog(_ context.Context, e contract.RequestLog) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.logs = append(s.logs, e)
}

func (s *recordingSink) Audit(context.Context, contract.Audit) {}
func (s *recordingSink) Close() error                          { return nil }

const testTeamID = "7f3c2a9e-1d4b-4c8a-9e2f-5b6d7a8c9e01"

func newServiceUnderTest(t *testing.T) (*mockVerifier, *mockDistributor, *recordingSink, *quartz.Mock, LicenseService) {
	t.Helper()
	v := &mockVerifier{}
	d := &mockDistributor{}
	sink := &recordingSink{}
	clock := quartz.NewMock(t)
	clock.Set(time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC))
	svc := NewLicenseService(v, d, sink, nil, clock, infrastructure.DiscardLogger())
	return v, d, sink, clock, svc
}

func TestLicenseServiceVerifyPublishesRequestLog(t *testing.T) {
	v, _, sink, _, svc := newServiceUnderTest(t)
	req := api.VerifyRequest{LicenseKey: "AAAAA-BBBBB-CCCCC-DDDDD-EEEEE", DeviceIdentifier: "device-0001"}
	caller := license.Caller{IP: "203.0.113.7", Country: "DE", RequestID: "req-1"}
	v.On("Verify", mock.Anything, testTeamID, req, caller).Return(license.Verdict{
		Code:      license.CodeValid,
		TeamID:    testTeamID,
		LicenseID: "lic-1",
		ProductID: "prod-1",
	})

	verdict := svc.Verify(context.Background(), testTeamID, req, caller)
	assert.True(t, verdict.Valid())
	v.AssertExpectations(t)

	require.Len(t, sink.logs, 1)
	entry := sink.logs[0]
	assert.Equal(t, contract.OperationVerification, entry.Operation)
	assert.Equal(t, "VALID", entry.Status)
	assert.Equal(t, 200, entry.HTTPStatus)
	assert.Equal(t, "lic-1", entry.LicenseID)
	assert.Equal(t, "device-0001", entry.DeviceIdentifier)
	assert.Equal(t, "DE", entry.Country)
	assert.Equal(t, "req-1", entry.RequestID)
	assert.Equal(t, contract.ProtocolVersion, entry.Version)
	assert.NotEmpty(t, entry.ID)
	assert.Equal(t, time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC), entry.Timestamp)
}

func TestLicenseServiceLogsDenials(t *testing.T) {
	v, _, sink, _, svc := newServiceUnderTest(t)
	v.On("Verify", mock.Anything, testTeamID, mock.Anything, mock.Anything).Return(license.Verdict{
		Code:   license.CodeInternalError,
		TeamID: testTeamID,
		Err:    errors.New("db down"),
	})

	verdict := svc.Verify(context.Background(), testTeamID, api.VerifyRequest{}, license.Caller{})
	assert.Equal(t, license.CodeInternalError, verdict.Code)
	require.Len(t, sink.logs, 1)
	assert.Equal(t, 500, sink.logs[0].HTTPStatus)
}

func TestLicenseServiceLogLevels(t *testing.T) {
	v := &mockVerifier{}
	logger, logs := testutil.NewTestLogger(t)
	svc := NewLicenseService(v, &mockDistributor{}, &recordingSink{}, nil, quartz.NewMock(t), logger)

	suspended := api.VerifyRequest{LicenseKey: "AAAAA-BBBBB-CCCCC-DDDDD-EEEEE"}
	v.On("Verify", mock.Anything, testTeamID, suspended, mock.Anything).Return(license.Verdict{
		Code:   license.CodeLicenseSuspended,
		TeamID: testTeamID,
	})
	broken := api.VerifyRequest{LicenseKey: "FFFFF-GGGGG-HHHHH-IIIII-JJJJJ"}
	v.On("Verify", mock.Anything, testTeamID, broken, mock.Anything).Return(license.Verdict{
		Code:   license.CodeInternalError,
		TeamID: testTeamID,
		Err:    errors.New("db down"),
	})

	svc.Verify(context.Background(), testTeamID, suspended, license.Caller{IP: "203.0.113.7"})
	svc.Verify(context.Background(), testTeamID, broken, license.Caller{})

	warn := testutil.AssertLogged(t, logs, slog.LevelWarn, "license verification finished")
	assert.Equal(t, "AAAAA-*****-EEEEE", warn.Attrs["license_key"])
	assert.Equal(t, string(license.CodeLicenseSuspended), warn.Attrs["code"])
	assert.Equal(t, "license", warn.Attrs["service"])
	assert.Equal(t, "203.0.113.7", warn.Attrs["ip"])

	errRecord := testutil.AssertLogged(t, logs, slog.LevelError, "license verification finished")
	assert.Equal(t, "FFFFF-*****-JJJJJ", errRecord.Attrs["license_key"])
	for _, r := range logs.Records() {
		for _, value := range r.Attrs {
			assert.NotEqual(t, broken.LicenseKey, value)
		}
	}
}

func TestLicenseServiceSkipsRequestLogWithoutTeam(t *testing.T) {
	v, _, sink, _, svc := newServiceUnderTest(t)
	v.On("Verify", mock.Anything, "", mock.Anything, mock.Anything).Return(license.Verdict{Code: license.CodeBadRequest})

	svc.Verify(context.Background(), "", api.VerifyRequest{}, license.Caller{})
	assert.Empty(t, sink.logs)
}

func TestLicenseServiceDownload(t *testing.T) {
	_, d, sink, _, svc := newServiceUnderTest(t)
	req := api.DownloadRequest{LicenseKey: "AAAAA-BBBBB-CCCCC-DDDDD-EEEEE", ProductID: "prod-1"}
	d.On("Prepare", mock.Anything, testTeamID, req, mock.Anything).Return(&license.Delivery{Size: 42}, license.Verdict{
		Code:           license.CodeValid,
		TeamID:         testTeamID,
		ReleaseID:      "rel-1",
		ReleaseVersion: "1.2.0",
	})

	delivery, verdict := svc.Download(context.Background(), testTeamID, req, license.Caller{IP: "198.51.100.2"})
	require.NotNil(t, delivery)
	assert.True(t, verdict.Valid())
	require.Len(t, sink.logs, 1)
	assert.Equal(t, contract.OperationDownload, sink.logs[0].Operation)
	assert.Equal(t, "1.2.0", sink.logs[0].ReleaseVersion)
}

func TestLicenseServiceDownloadDenied(t *testing.T) {
	_, d, sink, _, svc := newServiceUnderTest(t)
	d.On("Prepare", mock.Anything, testTeamID, mock.Anything, mock.Anything).Return(nil, license.Verdict{
		Code:   license.CodeReleaseDraft,
		TeamID: testTeamID,
	})

	delivery, verdict := svc.Download(context.Background(), testTeamID, api.DownloadRequest{}, license.Caller{})
	assert.Nil(t, delivery)
	assert.Equal(t, license.CodeReleaseDraft, verdict.Code)
	require.Len(t, sink.logs, 1)
	assert.Equal(t, "RELEASE_DRAFT", sink.logs[0].Status)
}

func TestLicenseServiceRecordDeliveredWithoutMetrics(t *testing.T) {
	_, _, _, _, svc := newServiceUnderTest(t)
	assert.NotPanics(t, func() { svc.RecordDelivered(context.Background(), 1024) })
}

func TestLicenseServiceRejectPublishesRequestLog(t *testing.T) {
	v, d, sink, _, svc := newServiceUnderTest(t)
	caller := license.Caller{IP: "203.0.113.7", Country: "IQ", RequestID: "req-bad"}

	verdict := svc.Reject(context.Background(), contract.OperationVerification, "team-1", caller)

	assert.Equal(t, license.CodeBadRequest, verdict.Code)
	require.Len(t, sink.logs, 1)
	entry := sink.logs[0]
	assert.Equal(t, contract.OperationVerification, entry.Operation)
	assert.Equal(t, "BAD_REQUEST", entry.Status)
	assert.Equal(t, 400, entry.HTTPStatus)
	assert.Equal(t, "team-1", entry.TeamID)
	assert.Equal(t, "203.0.113.7", entry.IPAddress)
	assert.Equal(t, "req-bad", entry.RequestID)
	assert.Empty(t, entry.LicenseID)
	v.AssertNotCalled(t, "Verify", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	d.AssertNotCalled(t, "Prepare", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}
