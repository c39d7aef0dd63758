package license

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"licensegate/pkg/contracts/domain"
)

func TestMatchBlacklist(t *testing.T) {
	entries := []domain.BlacklistEntry{
		{ID: "dev", Type: domain.BlacklistDeviceIdentifier, Value: "device-0123456789"},
		{ID: "country", Type: domain.BlacklistCountry, Value: "kp"},
		{ID: "ip", Type: domain.BlacklistIPAddress, Value: "203.0.113.9"},
	}

	tests := []struct {
		name    string
		ip      string
		country string
		device  string
		wantID  string
		code    Code
	}{
		{"clean", "198.51.100.1", "DE", "device-9999999999", "", ""},
		{"ip", "203.0.113.9", "", "", "ip", CodeIPBlacklisted},
		{"country case insensitive", "198.51.100.1", "KP", "", "country", CodeCountryBlacklisted},
		{"device", "198.51.100.1", "DE", "device-0123456789", "dev", CodeDeviceBlacklisted},
		{"ip wins over device", "203.0.113.9", "KP", "device-0123456789", "ip", CodeIPBlacklisted},
		{"country wins over device", "198.51.100.1", "kp", "device-0123456789", "country", CodeCountryBlacklisted},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			entry, code := matchBlacklist(entries, tt.ip, tt.country, tt.device)
			assert.Equal(t, tt.code, code)
			if tt.wantID == "" {
				assert.Nil(t, entry)
				return
			}
			require.NotNil(t, entry)
			assert.Equal(t, tt.wantID, entry.ID)
		})
	}
}
