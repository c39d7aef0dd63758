package license

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"licensegate/pkg/contracts/domain"
)

func TestIPLimitReached(t *testing.T) {
	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	since := now.Add(-24 * time.Hour)

	l := &domain.License{
		IPLimit: intPtr(2),
		RequestLogs: []domain.RequestLog{
			{IPAddress: "10.0.0.1", CreatedAt: now.Add(-time.Hour)},
			{IPAddress: "10.0.0.1", CreatedAt: now.Add(-2 * time.Hour)},
			{IPAddress: "", CreatedAt: now.Add(-time.Hour)},
			{IPAddress: "10.0.0.3", CreatedAt: now.Add(-48 * time.Hour)},
		},
	}

	assert.False(t, ipLimitReached(l, "10.0.0.2", since), "one distinct ip in window")

	l.RequestLogs = append(l.RequestLogs, domain.RequestLog{IPAddress: "10.0.0.2", CreatedAt: now})
	assert.True(t, ipLimitReached(l, "10.0.0.4", since))
	assert.False(t, ipLimitReached(l, "10.0.0.1", since), "known ip is always allowed")
	assert.True(t, ipLimitReached(l, "10.0.0.3", since), "evidence outside the window does not count as known")

	l.IPLimit = nil
	assert.False(t, ipLimitReached(l, "10.0.0.4", since))
}
