package postgres

import (
	"time"

	"licensegate/pkg/contracts/domain"
)

type teamModel struct {
	ID                string                   `gorm:"column:id;type:uuid;primaryKey"`
	Name              string                   `gorm:"column:name"`
	DeletedAt         *time.Time               `gorm:"column:deleted_at"`
	StrictCustomers   bool                     `gorm:"column:strict_customers"`
	StrictProducts    bool                     `gorm:"column:strict_products"`
	StrictReleases    bool                     `gorm:"column:strict_releases"`
	IPLimitPeriod     string                   `gorm:"column:ip_limit_period"`
	DeviceTimeout     int                      `gorm:"column:device_timeout"`
	AllowClassloader  bool                     `gorm:"column:allow_classloader"`
	AllowWatermarking bool                     `gorm:"column:allow_watermarking"`
	Watermarking      domain.WatermarkSettings `gorm:"column:watermarking;serializer:json"`
	PublicKey         *string                  `gorm:"column:public_key"`
	PrivateKey        *string                  `gorm:"column:private_key"`
}

func (teamModel) TableName() string { return "teams" }

type blacklistEntryModel struct {
	ID     string `gorm:"column:id;type:uuid;primaryKey"`
	TeamID string `gorm:"column:team_id"`
	Type   string `gorm:"column:type"`
	Value  string `gorm:"column:value"`
	Hits   int64  `gorm:"column:hits"`
}

func (blacklistEntryModel) TableName() string { return "blacklist_entries" }

type customerModel struct {
	ID     string `gorm:"column:id;type:uuid;primaryKey"`
	TeamID string `gorm:"column:team_id"`
	Name   string `gorm:"column:name"`
}

func (customerModel) TableName() string { return "customers" }

type productModel struct {
	ID     string `gorm:"column:id;type:uuid;primaryKey"`
	TeamID string `gorm:"column:team_id"`
	Name   string `gorm:"column:name"`
}

func (productModel) TableName() string { return "products" }

type releaseModel struct {
	ID            string     `gorm:"column:id;type:uuid;primaryKey"`
	ProductID     string     `gorm:"column:product_id"`
	Version       string     `gorm:"column:version"`
	Status        string     `gorm:"column:status"`
	Latest        bool       `gorm:"column:latest"`
	FileKey       *string    `gorm:"column:file_key"`
	FileSize      *int64     `gorm:"column:file_size"`
	MainClassName *string    `gorm:"column:main_class_name"`
	LastSeenAt    *time.Time `gorm:"column:last_seen_at"`
	CreatedAt     time.Time  `gorm:"column:created_at"`
	UpdatedAt     time.Time  `gorm:"column:updated_at"`
}

func (releaseModel) TableName() string { return "releases" }

type releaseAllowedLicenseModel struct {
	ReleaseID string `gorm:"column:release_id;primaryKey"`
	LicenseID string `gorm:"column:license_id;primaryKey"`
}

func (releaseAllowedLicenseModel) TableName() string { return "release_allowed_licenses" }

type licenseModel struct {
	ID               string     `gorm:"column:id;type:uuid;primaryKey"`
	TeamID           string     `gorm:"column:team_id"`
	LicenseKeyLookup string     `gorm:"column:license_key_lookup"`
	LicenseKey       string     `gorm:"column:license_key"`
	IPLimit          *int       `gorm:"column:ip_limit"`
	Seats            *int       `gorm:"column:seats"`
	Suspended        bool       `gorm:"column:suspended"`
	ExpirationType   string     `gorm:"column:expiration_type"`
	ExpirationStart  string     `gorm:"column:expiration_start"`
	ExpirationDate   *time.Time `gorm:"column:expiration_date"`
	ExpirationDays   *int       `gorm:"column:expiration_days"`
	LastActiveAt     *time.Time `gorm:"column:last_active_at"`
	CreatedAt        time.Time  `gorm:"column:created_at"`
}

func (licenseModel) TableName() string { return "licenses" }

type deviceModel struct {
	LicenseID        string    `gorm:"column:license_id;primaryKey"`
	DeviceIdentifier string    `gorm:"column:device_identifier;primaryKey"`
	LastBeatAt       time.Time `gorm:"column:last_beat_at"`
	IPAddress        *string   `gorm:"column:ip_address"`
	Country          *string   `gorm:"column:country"`
}

func (deviceModel) TableName() string { return "devices" }

type requestLogModel struct {
	ID        int64     `gorm:"column:id;primaryKey"`
	LicenseID string    `gorm:"column:license_id"`
	IPAddress *string   `gorm:"column:ip_address"`
	CreatedAt time.Time `gorm:"column:created_at"`
}

func (requestLogModel) TableName() string { return "request_logs" }
