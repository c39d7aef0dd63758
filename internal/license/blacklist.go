package license

import (
	"strings"

	"licensegate/pkg/contracts/domain"
)

// matchBlacklist checks IP, then country, then device identifier. The first
// matching entry wins.
func matchBlacklist(entries []domain.BlacklistEntry, ip, country, deviceIdentifier string) (*domain.BlacklistEntry, Code) {
	checks := []struct {
		kind  domain.BlacklistType
		value string
		code  Code
	}{
		{domain.BlacklistIPAddress, ip, CodeIPBlacklisted},
		{domain.BlacklistCountry, country, CodeCountryBlacklisted},
		{domain.BlacklistDeviceIdentifier, deviceIdentifier, CodeDeviceBlacklisted},
	}

	for _, check := range checks {
		if check.value == "" {
			continue
		}
		for i := range entries {
			entry := &entries[i]
			if entry.Type != check.kind {
				continue
			}
			if blacklistValueMatches(check.kind, entry.Value, check.value) {
				return entry, check.code
			}
		}
	}
	return nil, ""
}

func blacklistValueMatches(kind domain.BlacklistType, listed, actual string) bool {
	if kind == domain.BlacklistCountry {
		return strings.EqualFold(strings.TrimSpace(listed), strings.TrimSpace(actual))
	}
	return listed == actual
}
