package domain

import "time"

// IPLimitPeriod is the retention window for IP-limit evidence
type IPLimitPeriod string

const (
	IPLimitDay   IPLimitPeriod = "DAY"
	IPLimitWeek  IPLimitPeriod = "WEEK"
	IPLimitMonth IPLimitPeriod = "MONTH"
)

// Duration returns the length of the window. Unknown periods fall back to a day.
func (p IPLimitPeriod) Duration() time.Duration {
	switch p {
	case IPLimitWeek:
		return 7 * 24 * time.Hour
	case IPLimitMonth:
		return 30 * 24 * time.Hour
	default:
		return 24 * time.Hour
	}
}

// BlacklistType identifies what a blacklist entry matches
type BlacklistType string

const (
	BlacklistIPAddress        BlacklistType = "IP_ADDRESS"
	BlacklistCountry          BlacklistType = "COUNTRY"
	BlacklistDeviceIdentifier BlacklistType = "DEVICE_IDENTIFIER"
)

// BlacklistEntry is a single team blacklist rule
type BlacklistEntry struct {
	ID    string        `json:"id" db:"id"`
	Type  BlacklistType `json:"type" db:"type" validate:"required,oneof=IP_ADDRESS COUNTRY DEVICE_IDENTIFIER"`
	Value string        `json:"value" db:"value" validate:"required"`
	Hits  int64         `json:"hits" db:"hits"`
}

// TeamSettings holds the policy switches of a team
type TeamSettings struct {
	StrictCustomers bool              `json:"strict_customers" db:"strict_customers"`
	StrictProducts  bool              `json:"strict_products" db:"strict_products"`
	StrictReleases  bool              `json:"strict_releases" db:"strict_releases"`
	IPLimitPeriod   IPLimitPeriod     `json:"ip_limit_period" db:"ip_limit_period"`
	DeviceTimeout   int               `json:"device_timeout" db:"device_timeout"` // minutes
	Watermarking    WatermarkSettings `json:"watermarking"`
}

// WatermarkSettings configures the embedding methods sent to the watermark service
type WatermarkSettings struct {
	Enabled                   bool `json:"enabled"`
	StaticConstantPool        bool `json:"static_constant_pool"`
	StaticConstantPoolDensity int  `json:"static_constant_pool_density" validate:"min=0,max=100"`
	DynamicBytecode           bool `json:"dynamic_bytecode"`
	DynamicBytecodeDensity    int  `json:"dynamic_bytecode_density" validate:"min=0,max=100"`
	TemporalAttribute         bool `json:"temporal_attribute"`
	TemporalAttributeDensity  int  `json:"temporal_attribute_density" validate:"min=0,max=100"`
}

// HasMethod reports whether at least one embedding method is enabled
func (w WatermarkSettings) HasMethod() bool {
	return w.StaticConstantPool || w.DynamicBytecode || w.TemporalAttribute
}

// TeamLimits are the plan gates of a team
type TeamLimits struct {
	AllowClassloader  bool `json:"allow_classloader" db:"allow_classloader"`
	AllowWatermarking bool `json:"allow_watermarking" db:"allow_watermarking"`
}

// KeyPair is the team RSA keypair. PrivateKey is an encrypted-at-rest PEM blob.
type KeyPair struct {
	PublicKey  string `json:"public_key" db:"public_key"`
	PrivateKey string `json:"-" db:"private_key"`
}

// TeamPolicy is everything the pipelines need to know about a team
type TeamPolicy struct {
	ID        string           `json:"id" db:"id"`
	Name      string           `json:"name" db:"name"`
	DeletedAt *time.Time       `json:"deleted_at,omitempty" db:"deleted_at"`
	Settings  TeamSettings     `json:"settings"`
	Limits    TeamLimits       `json:"limits"`
	KeyPair   *KeyPair         `json:"-"`
	Blacklist []BlacklistEntry `json:"blacklist,omitempty"`
}

// Deleted reports whether the team is soft-deleted
func (t TeamPolicy) Deleted() bool {
	return t.DeletedAt != nil
}
