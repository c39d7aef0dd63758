package postgres

import (
	"strings"

	"licensegate/pkg/contracts/domain"
)

func toDomainTeam(row teamModel, blacklist []blacklistEntryModel) domain.TeamPolicy {
	team := domain.TeamPolicy{
		ID:        row.ID,
		Name:      row.Name,
		DeletedAt: row.DeletedAt,
		Settings: domain.TeamSettings{
			StrictCustomers: row.StrictCustomers,
			StrictProducts:  row.StrictProducts,
			StrictReleases:  row.StrictReleases,
			IPLimitPeriod:   domain.IPLimitPeriod(row.IPLimitPeriod),
			DeviceTimeout:   row.DeviceTimeout,
			Watermarking:    row.Watermarking,
		},
		Limits: domain.TeamLimits{
			AllowClassloader:  row.AllowClassloader,
			AllowWatermarking: row.AllowWatermarking,
		},
	}
	if row.PrivateKey != nil && *row.PrivateKey != "" {
		team.KeyPair = &domain.KeyPair{
			PublicKey:  derefString(row.PublicKey),
			PrivateKey: *row.PrivateKey,
		}
	}
	for _, b := range blacklist {
		team.Blacklist = append(team.Blacklist, domain.BlacklistEntry{
			ID:    b.ID,
			Type:  domain.BlacklistType(b.Type),
			Value: b.Value,
			Hits:  b.Hits,
		})
	}
	return team
}

func toDomainRelease(row releaseModel, allowed []string) domain.Release {
	release := domain.Release{
		ID:                row.ID,
		ProductID:         row.ProductID,
		Version:           row.Version,
		Status:            domain.ReleaseStatus(row.Status),
		Latest:            row.Latest,
		AllowedLicenseIDs: allowed,
		LastSeenAt:        row.LastSeenAt,
		CreatedAt:         row.CreatedAt,
		UpdatedAt:         row.UpdatedAt,
	}
	if key := derefString(row.FileKey); key != "" {
		release.File = &domain.ReleaseFile{Key: key, MainClassName: nullableString(derefString(row.MainClassName))}
		if row.FileSize != nil {
			release.File.Size = *row.FileSize
		}
	}
	return release
}

func toDomainLicense(row licenseModel) domain.License {
	return domain.License{
		ID:               row.ID,
		TeamID:           row.TeamID,
		LicenseKeyLookup: row.LicenseKeyLookup,
		LicenseKey:       row.LicenseKey,
		IPLimit:          row.IPLimit,
		Seats:            row.Seats,
		Suspended:        row.Suspended,
		ExpirationType:   domain.ExpirationType(row.ExpirationType),
		ExpirationStart:  domain.ExpirationStart(row.ExpirationStart),
		ExpirationDate:   row.ExpirationDate,
		ExpirationDays:   row.ExpirationDays,
		LastActiveAt:     row.LastActiveAt,
		CreatedAt:        row.CreatedAt,
	}
}

func toDomainDevice(row deviceModel) domain.Device {
	return domain.Device{
		LicenseID:        row.LicenseID,
		DeviceIdentifier: row.DeviceIdentifier,
		LastBeatAt:       row.LastBeatAt,
		IPAddress:        derefString(row.IPAddress),
		Country:          derefString(row.Country),
	}
}

func toDomainRequestLog(row requestLogModel) domain.RequestLog {
	return domain.RequestLog{
		LicenseID: row.LicenseID,
		IPAddress: derefString(row.IPAddress),
		CreatedAt: row.CreatedAt,
	}
}

// groupAllowed indexes allow-list rows by release
func groupAllowed(rows []releaseAllowedLicenseModel) map[string][]string {
	out := make(map[string][]string, len(rows))
	for _, r := range rows {
		out[r.ReleaseID] = append(out[r.ReleaseID], r.LicenseID)
	}
	return out
}

func nullableString(v string) *string {
	trimmed := strings.TrimSpace(v)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}

func derefString(v *string) string {
	if v == nil {
		return ""
	}
	return *v
}
