package postgres

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"licensegate/pkg/contracts/domain"
)

func strPtr(v string) *string { return &v }

func TestToDomainTeam(t *testing.T) {
	row := teamModel{
		ID:               "team-1",
		IPLimitPeriod:    "WEEK",
		DeviceTimeout:    15,
		AllowClassloader: true,
		Watermarking:     domain.WatermarkSettings{Enabled: true, TemporalAttribute: true, TemporalAttributeDensity: 10},
		PublicKey:        strPtr("pub"),
		PrivateKey:       strPtr("iv:ct:tag"),
	}
	team := toDomainTeam(row, []blacklistEntryModel{{ID: "b1", Type: "COUNTRY", Value: "KP", Hits: 3}})

	assert.Equal(t, domain.IPLimitWeek, team.Settings.IPLimitPeriod)
	assert.True(t, team.Settings.Watermarking.HasMethod())
	require.NotNil(t, team.KeyPair)
	assert.Equal(t, "iv:ct:tag", team.KeyPair.PrivateKey)
	require.Len(t, team.Blacklist, 1)
	assert.EqualValues(t, 3, team.Blacklist[0].Hits)

	row.PrivateKey = nil
	assert.Nil(t, toDomainTeam(row, nil).KeyPair)
}

func TestToDomainRelease(t *testing.T) {
	now := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	size := int64(42)
	row := releaseModel{
		ID:            "r1",
		ProductID:     "p1",
		Version:       "1.0.0",
		Status:        "PUBLISHED",
		FileKey:       strPtr("p1/1.0.0.jar"),
		FileSize:      &size,
		MainClassName: strPtr("  "),
		CreatedAt:     now,
	}
	r := toDomainRelease(row, []string{"lic-1"})
	require.NotNil(t, r.File)
	assert.EqualValues(t, 42, r.File.Size)
	assert.Nil(t, r.File.MainClassName, "blank main class is absent")
	assert.False(t, r.AllowsLicense("lic-2"))

	row.FileKey = nil
	assert.Nil(t, toDomainRelease(row, nil).File)
}

func TestGroupAllowed(t *testing.T) {
	grouped := groupAllowed([]releaseAllowedLicenseModel{
		{ReleaseID: "r1", LicenseID: "a"},
		{ReleaseID: "r1", LicenseID: "b"},
		{ReleaseID: "r2", LicenseID: "c"},
	})
	assert.Equal(t, []string{"a", "b"}, grouped["r1"])
	assert.Equal(t, []string{"c"}, grouped["r2"])
}

func TestMigrationsEmbedded(t *testing.T) {
	names, err := migrationNames()
	require.NoError(t, err)
	require.NotEmpty(t, names)
	assert.Equal(t, "0001_init.sql", names[0])

	raw, err := migrationFS.ReadFile("migrations/" + names[0])
	require.NoError(t, err)
	for _, table := range []string{"teams", "licenses", "devices", "request_logs", "release_allowed_licenses"} {
		assert.True(t, strings.Contains(string(raw), "CREATE TABLE IF NOT EXISTS "+table+" "), table)
	}
}
