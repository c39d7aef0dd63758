// Package memory is an in-process policy store for development and tests.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"licensegate/internal/license"
	"licensegate/pkg/contracts/domain"
)

type licenseRecord struct {
	license    domain.License
	customers  []domain.Customer
	productIDs []string
	devices    map[string]domain.Device
	logs       []domain.RequestLog
}

// Store is an in-memory implementation of license.Store
type Store struct {
	mu       sync.RWMutex
	teams    map[string]*domain.TeamPolicy
	licenses map[string]*licenseRecord
	byLookup map[string]string
	products map[string]*domain.Product
}

var _ license.Store = (*Store)(nil)

// New creates an empty store
func New() *Store {
	return &Store{
		teams:    make(map[string]*domain.TeamPolicy),
		licenses: make(map[string]*licenseRecord),
		byLookup: make(map[string]string),
		products: make(map[string]*domain.Product),
	}
}

func lookupKey(teamID, lookup string) string {
	return teamID + ":" + lookup
}

// PutTeam inserts or replaces a team
func (s *Store) PutTeam(team domain.TeamPolicy) {
	s.mu.Lock()
	defer s.mu.Unlock()
	team.Blacklist = append([]domain.BlacklistEntry(nil), team.Blacklist...)
	s.teams[team.ID] = &team
}

// PutProduct inserts or replaces a product with its releases
func (s *Store) PutProduct(product domain.Product) {
	s.mu.Lock()
	defer s.mu.Unlock()
	product.Releases = copyReleases(product.Releases)
	s.products[product.ID] = &product
}

// PutLicense inserts or replaces a license. Only the IDs of l.Products are
// kept; product data comes from PutProduct.
func (s *Store) PutLicense(l domain.License) error {
	if l.ID == "" || l.TeamID == "" || l.LicenseKeyLookup == "" {
		return fmt.Errorf("license requires id, team id and lookup")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	rec := &licenseRecord{
		customers: append([]domain.Customer(nil), l.Customers...),
		devices:   make(map[string]domain.Device, len(l.Devices)),
		logs:      append([]domain.RequestLog(nil), l.RequestLogs...),
	}
	for _, p := range l.Products {
		rec.productIDs = append(rec.productIDs, p.ID)
	}
	for _, d := range l.Devices {
		d.LicenseID = l.ID
		rec.devices[d.DeviceIdentifier] = d
	}
	l.Customers, l.Products, l.Devices, l.RequestLogs = nil, nil, nil, nil
	rec.license = l

	if old, ok := s.licenses[l.ID]; ok {
		delete(s.byLookup, lookupKey(old.license.TeamID, old.license.LicenseKeyLookup))
	}
	s.licenses[l.ID] = rec
	s.byLookup[lookupKey(l.TeamID, l.LicenseKeyLookup)] = l.ID
	return nil
}

// FindTeam implements license.Store
func (s *Store) FindTeam(ctx context.Context, teamID string) (*domain.TeamPolicy, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	team, ok := s.teams[teamID]
	if !ok {
		return nil, license.ErrNotFound
	}
	out := *team
	out.Blacklist = append([]domain.BlacklistEntry(nil), team.Blacklist...)
	if team.KeyPair != nil {
		kp := *team.KeyPair
		out.KeyPair = &kp
	}
	return &out, nil
}

// FindLicense implements license.Store. Products carry only their published
// releases.
func (s *Store) FindLicense(ctx context.Context, teamID, lookup string, logsSince time.Time) (*domain.License, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.byLookup[lookupKey(teamID, lookup)]
	if !ok {
		return nil, license.ErrNotFound
	}
	rec := s.licenses[id]

	out := rec.license
	out.Customers = append([]domain.Customer(nil), rec.customers...)
	for _, pid := range rec.productIDs {
		p, ok := s.products[pid]
		if !ok {
			continue
		}
		product := *p
		product.Releases = nil
		for _, r := range p.Releases {
			if r.Status == domain.ReleasePublished {
				product.Releases = append(product.Releases, copyRelease(r))
			}
		}
		out.Products = append(out.Products, product)
	}
	for _, d := range rec.devices {
		out.Devices = append(out.Devices, d)
	}
	sort.Slice(out.Devices, func(i, j int) bool {
		return out.Devices[i].DeviceIdentifier < out.Devices[j].DeviceIdentifier
	})
	for _, log := range rec.logs {
		if !log.CreatedAt.Before(logsSince) {
			out.RequestLogs = append(out.RequestLogs, log)
		}
	}
	return &out, nil
}

// FindProduct implements license.Store
func (s *Store) FindProduct(ctx context.Context, teamID, productID string) (*domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.products[productID]
	if !ok || p.TeamID != teamID {
		return nil, license.ErrNotFound
	}
	out := *p
	out.Releases = copyReleases(p.Releases)
	return &out, nil
}

// IncrementBlacklistHits implements license.Store
func (s *Store) IncrementBlacklistHits(ctx context.Context, teamID, entryID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	team, ok := s.teams[teamID]
	if !ok {
		return license.ErrNotFound
	}
	for i := range team.Blacklist {
		if team.Blacklist[i].ID == entryID {
			team.Blacklist[i].Hits++
			return nil
		}
	}
	return license.ErrNotFound
}

// ActivateExpiration implements license.Store. The first caller sets the
// date; later callers get the stored one back.
func (s *Store) ActivateExpiration(ctx context.Context, licenseID string, date time.Time) (time.Time, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.licenses[licenseID]
	if !ok {
		return time.Time{}, false, license.ErrNotFound
	}
	if rec.license.ExpirationDate != nil {
		return *rec.license.ExpirationDate, false, nil
	}
	d := date
	rec.license.ExpirationDate = &d
	return d, true, nil
}

// CommitAccess implements license.Store
func (s *Store) CommitAccess(ctx context.Context, rec license.AccessRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	lr, ok := s.licenses[rec.LicenseID]
	if !ok {
		return license.ErrNotFound
	}

	if rec.Device != nil {
		d := *rec.Device
		d.LicenseID = rec.LicenseID
		lr.devices[d.DeviceIdentifier] = d
	}

	if rec.ReleaseID != "" {
		at := rec.At
	products:
		for _, p := range s.products {
			for i := range p.Releases {
				if p.Releases[i].ID == rec.ReleaseID {
					p.Releases[i].LastSeenAt = &at
					break products
				}
			}
		}
	}

	at := rec.At
	lr.license.LastActiveAt = &at
	lr.logs = append(lr.logs, domain.RequestLog{
		LicenseID: rec.LicenseID,
		IPAddress: rec.IPAddress,
		CreatedAt: rec.At,
	})
	return nil
}

// PruneRequestLogs implements license.Store
func (s *Store) PruneRequestLogs(ctx context.Context, before time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var removed int64
	for _, rec := range s.licenses {
		kept := rec.logs[:0]
		for _, log := range rec.logs {
			if log.CreatedAt.Before(before) {
				removed++
				continue
			}
			kept = append(kept, log)
		}
		rec.logs = kept
	}
	return removed, nil
}

// Ping implements license.Store
func (s *Store) Ping(ctx context.Context) error {
	return nil
}

// License returns the stored license without relations
func (s *Store) License(id string) (domain.License, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.licenses[id]
	if !ok {
		return domain.License{}, false
	}
	return rec.license, true
}

// Devices returns the devices of a license
func (s *Store) Devices(licenseID string) []domain.Device {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.licenses[licenseID]
	if !ok {
		return nil
	}
	out := make([]domain.Device, 0, len(rec.devices))
	for _, d := range rec.devices {
		out = append(out, d)
	}
	return out
}

// RequestLogs returns every retained request log of a license
func (s *Store) RequestLogs(licenseID string) []domain.RequestLog {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.licenses[licenseID]
	if !ok {
		return nil
	}
	return append([]domain.RequestLog(nil), rec.logs...)
}

func copyRelease(r domain.Release) domain.Release {
	r.AllowedLicenseIDs = append([]string(nil), r.AllowedLicenseIDs...)
	if r.File != nil {
		f := *r.File
		r.File = &f
	}
	return r
}

func copyReleases(releases []domain.Release) []domain.Release {
	if releases == nil {
		return nil
	}
	out := make([]domain.Release, len(releases))
	for i, r := range releases {
		out[i] = copyRelease(r)
	}
	return out
}
