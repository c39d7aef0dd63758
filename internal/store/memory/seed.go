package memory

import (
	"fmt"
	"time"

	"github.com/spf13/afero"
	"gopkg.in/yaml.v2"

	"licensegate/pkg/contracts/domain"
)

// Seed is the YAML fixture format loaded into a development store. License
// keys are given in plaintext and hashed on load; team private keys are
// expected already encrypted at rest (see licensectl keygen).
type Seed struct {
	Teams    []SeedTeam    `yaml:"teams"`
	Products []SeedProduct `yaml:"products"`
	Licenses []SeedLicense `yaml:"licenses"`
}

// SeedTeam describes a team fixture
type SeedTeam struct {
	ID                string `yaml:"id"`
	Name              string `yaml:"name"`
	StrictCustomers   bool   `yaml:"strict_customers"`
	StrictProducts    bool   `yaml:"strict_products"`
	StrictReleases    bool   `yaml:"strict_releases"`
	IPLimitPeriod     string `yaml:"ip_limit_period"`
	DeviceTimeout     int    `yaml:"device_timeout"`
	AllowClassloader  bool   `yaml:"allow_classloader"`
	AllowWatermarking bool   `yaml:"allow_watermarking"`
	PublicKey         string `yaml:"public_key"`
	PrivateKey        string `yaml:"private_key"`
	Watermarking      struct {
		Enabled                   bool `yaml:"enabled"`
		StaticConstantPool        bool `yaml:"static_constant_pool"`
		StaticConstantPoolDensity int  `yaml:"static_constant_pool_density"`
		DynamicBytecode           bool `yaml:"dynamic_bytecode"`
		DynamicBytecodeDensity    int  `yaml:"dynamic_bytecode_density"`
		TemporalAttribute         bool `yaml:"temporal_attribute"`
		TemporalAttributeDensity  int  `yaml:"temporal_attribute_density"`
	} `yaml:"watermarking"`
	Blacklist []struct {
		ID    string `yaml:"id"`
		Type  string `yaml:"type"`
		Value string `yaml:"value"`
	} `yaml:"blacklist"`
}

// SeedProduct describes a product fixture with its releases
type SeedProduct struct {
	ID       string `yaml:"id"`
	TeamID   string `yaml:"team_id"`
	Name     string `yaml:"name"`
	Releases []struct {
		ID                string   `yaml:"id"`
		Version           string   `yaml:"version"`
		Status            string   `yaml:"status"`
		Latest            bool     `yaml:"latest"`
		AllowedLicenseIDs []string `yaml:"allowed_license_ids"`
		FileKey           string   `yaml:"file_key"`
		FileSize          int64    `yaml:"file_size"`
		MainClassName     string   `yaml:"main_class_name"`
	} `yaml:"releases"`
}

// SeedLicense describes a license fixture
type SeedLicense struct {
	ID              string     `yaml:"id"`
	TeamID          string     `yaml:"team_id"`
	Key             string     `yaml:"key"`
	IPLimit         *int       `yaml:"ip_limit"`
	Seats           *int       `yaml:"seats"`
	Suspended       bool       `yaml:"suspended"`
	ExpirationType  string     `yaml:"expiration_type"`
	ExpirationStart string     `yaml:"expiration_start"`
	ExpirationDate  *time.Time `yaml:"expiration_date"`
	ExpirationDays  *int       `yaml:"expiration_days"`
	CustomerIDs     []string   `yaml:"customer_ids"`
	ProductIDs      []string   `yaml:"product_ids"`
}

// LookupHasher computes the license lookup hash
type LookupHasher interface {
	LookupHash(licenseKey, teamID string) string
}

// LoadSeedFile reads a YAML seed from fs and applies it to the store
func (s *Store) LoadSeedFile(fs afero.Fs, path string, hasher LookupHasher, now time.Time) error {
	data, err := afero.ReadFile(fs, path)
	if err != nil {
		return fmt.Errorf("failed to read seed file: %w", err)
	}

	var seed Seed
	if err := yaml.Unmarshal(data, &seed); err != nil {
		return fmt.Errorf("failed to parse seed file: %w", err)
	}
	return s.ApplySeed(seed, hasher, now)
}

// ApplySeed inserts every fixture of seed
func (s *Store) ApplySeed(seed Seed, hasher LookupHasher, now time.Time) error {
	for _, t := range seed.Teams {
		team := domain.TeamPolicy{
			ID:   t.ID,
			Name: t.Name,
			Settings: domain.TeamSettings{
				StrictCustomers: t.StrictCustomers,
				StrictProducts:  t.StrictProducts,
				StrictReleases:  t.StrictReleases,
				IPLimitPeriod:   domain.IPLimitPeriod(t.IPLimitPeriod),
				DeviceTimeout:   t.DeviceTimeout,
				Watermarking: domain.WatermarkSettings{
					Enabled:                   t.Watermarking.Enabled,
					StaticConstantPool:        t.Watermarking.StaticConstantPool,
					StaticConstantPoolDensity: t.Watermarking.StaticConstantPoolDensity,
					DynamicBytecode:           t.Watermarking.DynamicBytecode,
					DynamicBytecodeDensity:    t.Watermarking.DynamicBytecodeDensity,
					TemporalAttribute:         t.Watermarking.TemporalAttribute,
					TemporalAttributeDensity:  t.Watermarking.TemporalAttributeDensity,
				},
			},
			Limits: domain.TeamLimits{
				AllowClassloader:  t.AllowClassloader,
				AllowWatermarking: t.AllowWatermarking,
			},
		}
		if t.PrivateKey != "" {
			team.KeyPair = &domain.KeyPair{PublicKey: t.PublicKey, PrivateKey: t.PrivateKey}
		}
		for _, b := range t.Blacklist {
			team.Blacklist = append(team.Blacklist, domain.BlacklistEntry{
				ID:    b.ID,
				Type:  domain.BlacklistType(b.Type),
				Value: b.Value,
			})
		}
		s.PutTeam(team)
	}

	for _, p := range seed.Products {
		product := domain.Product{ID: p.ID, TeamID: p.TeamID, Name: p.Name}
		for _, r := range p.Releases {
			release := domain.Release{
				ID:                r.ID,
				ProductID:         p.ID,
				Version:           r.Version,
				Status:            domain.ReleaseStatus(r.Status),
				Latest:            r.Latest,
				AllowedLicenseIDs: r.AllowedLicenseIDs,
				CreatedAt:         now,
				UpdatedAt:         now,
			}
			if r.FileKey != "" {
				release.File = &domain.ReleaseFile{Key: r.FileKey, Size: r.FileSize}
				if r.MainClassName != "" {
					mainClass := r.MainClassName
					release.File.MainClassName = &mainClass
				}
			}
			product.Releases = append(product.Releases, release)
		}
		s.PutProduct(product)
	}

	for _, l := range seed.Licenses {
		lic := domain.License{
			ID:               l.ID,
			TeamID:           l.TeamID,
			LicenseKeyLookup: hasher.LookupHash(l.Key, l.TeamID),
			IPLimit:          l.IPLimit,
			Seats:            l.Seats,
			Suspended:        l.Suspended,
			ExpirationType:   domain.ExpirationType(l.ExpirationType),
			ExpirationStart:  domain.ExpirationStart(l.ExpirationStart),
			ExpirationDate:   l.ExpirationDate,
			ExpirationDays:   l.ExpirationDays,
			CreatedAt:        now,
		}
		for _, id := range l.CustomerIDs {
			lic.Customers = append(lic.Customers, domain.Customer{ID: id})
		}
		for _, id := range l.ProductIDs {
			lic.Products = append(lic.Products, domain.Product{ID: id})
		}
		if err := s.PutLicense(lic); err != nil {
			return fmt.Errorf("seed license %s: %w", l.ID, err)
		}
	}
	return nil
}
