package license

import (
	"log/slog"
	"strings"
)

// MaskLicenseKey keeps the first and last group of a license key
func MaskLicenseKey(key string) string {
	if len(key) <= 10 {
		return strings.Repeat("*", len(key))
	}
	return key[:5] + "-*****-" + key[len(key)-5:]
}

// LogAttrs returns the verdict context as log attributes. Empty IDs are
// skipped.
func (v Verdict) LogAttrs() []slog.Attr {
	attrs := []slog.Attr{slog.String("code", string(v.Code))}
	add := func(key, value string) {
		if value != "" {
			attrs = append(attrs, slog.String(key, value))
		}
	}
	add("team_id", v.TeamID)
	add("license_id", v.LicenseID)
	add("customer_id", v.CustomerID)
	add("product_id", v.ProductID)
	add("release_id", v.ReleaseID)
	add("release_version", v.ReleaseVersion)
	if v.Err != nil {
		attrs = append(attrs, slog.String("error", v.Err.Error()))
	}
	return attrs
}
