package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"licensegate/internal/license"
	"licensegate/pkg/contracts/domain"
)

// Store implements license.Store on Postgres
type Store struct {
	db *gorm.DB
}

var _ license.Store = (*Store)(nil)

// NewStore wraps an open connection
func NewStore(db *gorm.DB) *Store {
	return &Store{db: db}
}

func notFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return license.ErrNotFound
	}
	return err
}

// FindTeam implements license.Store
func (s *Store) FindTeam(ctx context.Context, teamID string) (*domain.TeamPolicy, error) {
	db := s.db.WithContext(ctx)

	var row teamModel
	if err := db.Where("id = ?", teamID).Take(&row).Error; err != nil {
		return nil, notFound(err)
	}

	var blacklist []blacklistEntryModel
	if err := db.Where("team_id = ?", teamID).Order("id").Find(&blacklist).Error; err != nil {
		return nil, fmt.Errorf("load blacklist: %w", err)
	}

	team := toDomainTeam(row, blacklist)
	return &team, nil
}

// FindLicense implements license.Store
func (s *Store) FindLicense(ctx context.Context, teamID, lookup string, logsSince time.Time) (*domain.License, error) {
	db := s.db.WithContext(ctx)

	var row licenseModel
	if err := db.Where("team_id = ? AND license_key_lookup = ?", teamID, lookup).Take(&row).Error; err != nil {
		return nil, notFound(err)
	}
	l := toDomainLicense(row)

	var customers []customerModel
	if err := db.Joins("JOIN license_customers lc ON lc.customer_id = customers.id").
		Where("lc.license_id = ?", row.ID).Order("customers.id").Find(&customers).Error; err != nil {
		return nil, fmt.Errorf("load customers: %w", err)
	}
	for _, c := range customers {
		l.Customers = append(l.Customers, domain.Customer{ID: c.ID, Name: c.Name})
	}

	var products []productModel
	if err := db.Joins("JOIN license_products lp ON lp.product_id = products.id").
		Where("lp.license_id = ?", row.ID).Order("products.id").Find(&products).Error; err != nil {
		return nil, fmt.Errorf("load products: %w", err)
	}
	if len(products) > 0 {
		ids := make([]string, len(products))
		for i, p := range products {
			ids[i] = p.ID
		}
		releases, err := loadReleases(db, "product_id IN ? AND status = ?", ids, string(domain.ReleasePublished))
		if err != nil {
			return nil, err
		}
		for _, p := range products {
			l.Products = append(l.Products, domain.Product{
				ID:       p.ID,
				TeamID:   p.TeamID,
				Name:     p.Name,
				Releases: releases[p.ID],
			})
		}
	}

	var devices []deviceModel
	if err := db.Where("license_id = ?", row.ID).Order("device_identifier").Find(&devices).Error; err != nil {
		return nil, fmt.Errorf("load devices: %w", err)
	}
	for _, d := range devices {
		l.Devices = append(l.Devices, toDomainDevice(d))
	}

	var logs []requestLogModel
	if err := db.Where("license_id = ? AND created_at >= ?", row.ID, logsSince).Find(&logs).Error; err != nil {
		return nil, fmt.Errorf("load request logs: %w", err)
	}
	for _, r := range logs {
		l.RequestLogs = append(l.RequestLogs, toDomainRequestLog(r))
	}

	return &l, nil
}

// loadReleases selects releases matching the condition, with their
// allow-lists, grouped by product
func loadReleases(db *gorm.DB, condition string, args ...any) (map[string][]domain.Release, error) {
	var rows []releaseModel
	if err := db.Where(condition, args...).Order("created_at").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("load releases: %w", err)
	}
	if len(rows) == 0 {
		return map[string][]domain.Release{}, nil
	}

	ids := make([]string, len(rows))
	for i, r := range rows {
		ids[i] = r.ID
	}
	var allowed []releaseAllowedLicenseModel
	if err := db.Where("release_id IN ?", ids).Find(&allowed).Error; err != nil {
		return nil, fmt.Errorf("load release allow-lists: %w", err)
	}
	byRelease := groupAllowed(allowed)

	out := make(map[string][]domain.Release)
	for _, r := range rows {
		out[r.ProductID] = append(out[r.ProductID], toDomainRelease(r, byRelease[r.ID]))
	}
	return out, nil
}

// FindProduct implements license.Store
func (s *Store) FindProduct(ctx context.Context, teamID, productID string) (*domain.Product, error) {
	db := s.db.WithContext(ctx)

	var row productModel
	if err := db.Where("id = ? AND team_id = ?", productID, teamID).Take(&row).Error; err != nil {
		return nil, notFound(err)
	}

	releases, err := loadReleases(db, "product_id = ?", productID)
	if err != nil {
		return nil, err
	}
	return &domain.Product{ID: row.ID, TeamID: row.TeamID, Name: row.Name, Releases: releases[row.ID]}, nil
}

// IncrementBlacklistHits implements license.Store
func (s *Store) IncrementBlacklistHits(ctx context.Context, teamID, entryID string) error {
	res := s.db.WithContext(ctx).Model(&blacklistEntryModel{}).
		Where("id = ? AND team_id = ?", entryID, teamID).
		Update("hits", gorm.Expr("hits + 1"))
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return license.ErrNotFound
	}
	return nil
}

// ActivateExpiration implements license.Store. The license row is locked so
// concurrent first checks serialize and all observe the first date written.
func (s *Store) ActivateExpiration(ctx context.Context, licenseID string, date time.Time) (time.Time, bool, error) {
	var (
		stored time.Time
		won    bool
	)
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var row licenseModel
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("id = ?", licenseID).
			Take(&row).Error; err != nil {
			return notFound(err)
		}
		if row.ExpirationDate != nil {
			stored = *row.ExpirationDate
			return nil
		}

		res := tx.Model(&licenseModel{}).
			Where("id = ? AND expiration_date IS NULL", licenseID).
			Update("expiration_date", date)
		if res.Error != nil {
			return res.Error
		}
		stored, won = date, res.RowsAffected == 1
		return nil
	})
	if err != nil {
		return time.Time{}, false, err
	}
	return stored, won, nil
}

// CommitAccess implements license.Store
func (s *Store) CommitAccess(ctx context.Context, rec license.AccessRecord) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if rec.Device != nil {
			device := deviceModel{
				LicenseID:        rec.LicenseID,
				DeviceIdentifier: rec.Device.DeviceIdentifier,
				LastBeatAt:       rec.Device.LastBeatAt,
				IPAddress:        nullableString(rec.Device.IPAddress),
				Country:          nullableString(rec.Device.Country),
			}
			if err := tx.Clauses(clause.OnConflict{
				Columns:   []clause.Column{{Name: "license_id"}, {Name: "device_identifier"}},
				DoUpdates: clause.AssignmentColumns([]string{"last_beat_at", "ip_address", "country"}),
			}).Create(&device).Error; err != nil {
				return fmt.Errorf("upsert device: %w", err)
			}
		}

		if rec.ReleaseID != "" {
			if err := tx.Model(&releaseModel{}).
				Where("id = ?", rec.ReleaseID).
				Update("last_seen_at", rec.At).Error; err != nil {
				return fmt.Errorf("bump release last seen: %w", err)
			}
		}

		res := tx.Model(&licenseModel{}).Where("id = ?", rec.LicenseID).Update("last_active_at", rec.At)
		if res.Error != nil {
			return fmt.Errorf("bump license last active: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return license.ErrNotFound
		}

		log := requestLogModel{
			LicenseID: rec.LicenseID,
			IPAddress: nullableString(rec.IPAddress),
			CreatedAt: rec.At,
		}
		if err := tx.Create(&log).Error; err != nil {
			return fmt.Errorf("append request log: %w", err)
		}
		return nil
	})
}

// PruneRequestLogs implements license.Store
func (s *Store) PruneRequestLogs(ctx context.Context, before time.Time) (int64, error) {
	res := s.db.WithContext(ctx).Where("created_at < ?", before).Delete(&requestLogModel{})
	return res.RowsAffected, res.Error
}

// Ping implements license.Store
func (s *Store) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// Close releases the connection pool
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
