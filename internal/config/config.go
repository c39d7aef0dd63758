package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v2"
)

// EnvPrefix namespaces every environment variable read by Load
const EnvPrefix = "LICENSEGATE"

// Config represents the complete application configuration
type Config struct {
	Server    ServerConfig    `yaml:"server" envconfig:"SERVER"`
	Security  SecurityConfig  `yaml:"security" envconfig:"SECURITY"`
	Limits    LimitsConfig    `yaml:"limits" envconfig:"LIMITS"`
	Logging   LoggingConfig   `yaml:"logging" envconfig:"LOGGING"`
	Redis     RedisConfig     `yaml:"redis" envconfig:"REDIS"`
	Database  DatabaseConfig  `yaml:"database" envconfig:"DATABASE"`
	Storage   StorageConfig   `yaml:"storage" envconfig:"STORAGE"`
	Watermark WatermarkConfig `yaml:"watermark" envconfig:"WATERMARK"`
	Events    EventsConfig    `yaml:"events" envconfig:"EVENTS"`
	Retention RetentionConfig `yaml:"retention" envconfig:"RETENTION"`
	Telemetry TelemetryConfig `yaml:"telemetry" envconfig:"TELEMETRY"`
}

// ServerConfig contains HTTP server configuration
type ServerConfig struct {
	Port            int           `yaml:"port" envconfig:"PORT"`
	ReadTimeout     time.Duration `yaml:"read_timeout" envconfig:"READ_TIMEOUT"`
	WriteTimeout    time.Duration `yaml:"write_timeout" envconfig:"WRITE_TIMEOUT"`
	IdleTimeout     time.Duration `yaml:"idle_timeout" envconfig:"IDLE_TIMEOUT"`
	MaxHeaderBytes  int           `yaml:"max_header_bytes" envconfig:"MAX_HEADER_BYTES"`
	MaxBodyBytes    int64         `yaml:"max_body_bytes" envconfig:"MAX_BODY_BYTES"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" envconfig:"SHUTDOWN_TIMEOUT"`
	RequestTimeout  time.Duration `yaml:"request_timeout" envconfig:"REQUEST_TIMEOUT"`
}

// SecurityConfig contains secrets and edge protection settings.
// TrustedProxies lists the CIDRs or addresses whose forwarding and country
// headers are honored; empty trusts no peer.
type SecurityConfig struct {
	LookupSecret     string          `yaml:"lookup_secret" envconfig:"LOOKUP_SECRET"`
	EncryptionSecret string          `yaml:"encryption_secret" envconfig:"ENCRYPTION_SECRET"`
	AllowedOrigins   []string        `yaml:"allowed_origins" envconfig:"ALLOWED_ORIGINS"`
	EnableCORS       bool            `yaml:"enable_cors" envconfig:"ENABLE_CORS"`
	CountryHeader    string          `yaml:"country_header" envconfig:"COUNTRY_HEADER"`
	TrustedProxies   []string        `yaml:"trusted_proxies" envconfig:"TRUSTED_PROXIES"`
	RateLimit        RateLimitConfig `yaml:"rate_limit" envconfig:"RATE_LIMIT"`
}

// RateLimitConfig contains the in-process global rate limiter configuration
type RateLimitConfig struct {
	Enabled bool    `yaml:"enabled" envconfig:"ENABLED"`
	RPS     float64 `yaml:"rps" envconfig:"RPS"`
	Burst   int     `yaml:"burst" envconfig:"BURST"`
}

// LimitsConfig contains the per-caller admission limits and codec settings
type LimitsConfig struct {
	VerifyIPMax        int           `yaml:"verify_ip_max" envconfig:"VERIFY_IP_MAX"`
	VerifyIPWindow     time.Duration `yaml:"verify_ip_window" envconfig:"VERIFY_IP_WINDOW"`
	DownloadIPMax      int           `yaml:"download_ip_max" envconfig:"DOWNLOAD_IP_MAX"`
	DownloadIPWindow   time.Duration `yaml:"download_ip_window" envconfig:"DOWNLOAD_IP_WINDOW"`
	SessionKeyMax      int           `yaml:"session_key_max" envconfig:"SESSION_KEY_MAX"`
	SessionKeyWindow   time.Duration `yaml:"session_key_window" envconfig:"SESSION_KEY_WINDOW"`
	StreamChunkSize    int           `yaml:"stream_chunk_size" envconfig:"STREAM_CHUNK_SIZE"`
	TeamCacheTTL       time.Duration `yaml:"team_cache_ttl" envconfig:"TEAM_CACHE_TTL"`
	TeamCacheSize      int           `yaml:"team_cache_size" envconfig:"TEAM_CACHE_SIZE"`
	MaxWatermarkBuffer int64         `yaml:"max_watermark_buffer" envconfig:"MAX_WATERMARK_BUFFER"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level       string `yaml:"level" envconfig:"LEVEL"`
	Format      string `yaml:"format" envconfig:"FORMAT"`
	Output      string `yaml:"output" envconfig:"OUTPUT"`
	FilePath    string `yaml:"file_path" envconfig:"FILE_PATH"`
	Development bool   `yaml:"development" envconfig:"DEVELOPMENT"`
}

// RedisConfig contains the rate limiter backend configuration
type RedisConfig struct {
	URL         string        `yaml:"url" envconfig:"URL"`
	Password    string        `yaml:"password" envconfig:"PASSWORD"`
	DB          int           `yaml:"db" envconfig:"DB"`
	DialTimeout time.Duration `yaml:"dial_timeout" envconfig:"DIAL_TIMEOUT"`
	KeyPrefix   string        `yaml:"key_prefix" envconfig:"KEY_PREFIX"`
}

// DatabaseConfig contains policy store configuration
type DatabaseConfig struct {
	Driver          string        `yaml:"driver" envconfig:"DRIVER"` // memory, postgres
	DSN             string        `yaml:"dsn" envconfig:"DSN"`
	MaxOpenConns    int           `yaml:"max_open_conns" envconfig:"MAX_OPEN_CONNS"`
	MaxIdleConns    int           `yaml:"max_idle_conns" envconfig:"MAX_IDLE_CONNS"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime" envconfig:"CONN_MAX_LIFETIME"`
	RunMigrations   bool          `yaml:"run_migrations" envconfig:"RUN_MIGRATIONS"`
	SeedFile        string        `yaml:"seed_file" envconfig:"SEED_FILE"` // memory driver only
}

// StorageConfig contains artifact storage configuration
type StorageConfig struct {
	Backend         string `yaml:"backend" envconfig:"BACKEND"` // fs, s3
	Root            string `yaml:"root" envconfig:"ROOT"`
	Bucket          string `yaml:"bucket" envconfig:"BUCKET"`
	Region          string `yaml:"region" envconfig:"REGION"`
	Endpoint        string `yaml:"endpoint" envconfig:"ENDPOINT"`
	ForcePathStyle  bool   `yaml:"force_path_style" envconfig:"FORCE_PATH_STYLE"`
	AccessKeyID     string `yaml:"access_key_id" envconfig:"ACCESS_KEY_ID"`
	SecretAccessKey string `yaml:"secret_access_key" envconfig:"SECRET_ACCESS_KEY"`
}

// WatermarkConfig contains the watermark service client configuration
type WatermarkConfig struct {
	URL        string        `yaml:"url" envconfig:"URL"`
	Timeout    time.Duration `yaml:"timeout" envconfig:"TIMEOUT"`
	MaxRetries uint64        `yaml:"max_retries" envconfig:"MAX_RETRIES"`
}

// EventsConfig contains request-log and audit sink configuration
type EventsConfig struct {
	Sink            string        `yaml:"sink" envconfig:"SINK"` // log, kafka, none
	Brokers         []string      `yaml:"brokers" envconfig:"BROKERS"`
	RequestLogTopic string        `yaml:"request_log_topic" envconfig:"REQUEST_LOG_TOPIC"`
	AuditTopic      string        `yaml:"audit_topic" envconfig:"AUDIT_TOPIC"`
	BatchTimeout    time.Duration `yaml:"batch_timeout" envconfig:"BATCH_TIMEOUT"`
}

// RetentionConfig schedules request-log pruning
type RetentionConfig struct {
	Enabled  bool          `yaml:"enabled" envconfig:"ENABLED"`
	Schedule string        `yaml:"schedule" envconfig:"SCHEDULE"`
	MaxAge   time.Duration `yaml:"max_age" envconfig:"MAX_AGE"`
}

// TelemetryConfig contains OpenTelemetry exporter selection
type TelemetryConfig struct {
	Environment    string  `yaml:"environment" envconfig:"ENVIRONMENT"`
	TraceExporter  string  `yaml:"trace_exporter" envconfig:"TRACE_EXPORTER"`   // stdout, none
	MetricExporter string  `yaml:"metric_exporter" envconfig:"METRIC_EXPORTER"` // prometheus, none
	SampleRatio    float64 `yaml:"sample_ratio" envconfig:"SAMPLE_RATIO"`
}

// Load loads configuration from defaults, an optional YAML file and
// environment variables, in increasing order of precedence.
func Load() (*Config, error) {
	cfg := Default()

	// Load from config file if exists
	if configFile := getConfigFilePath(); configFile != "" && fileExists(configFile) {
		if err := loadFromFile(configFile, cfg); err != nil {
			return nil, fmt.Errorf("failed to load config from file: %w", err)
		}
	}

	// Environment variables override the file
	if err := envconfig.Process(EnvPrefix, cfg); err != nil {
		return nil, fmt.Errorf("failed to load config from env: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// loadFromFile overlays a YAML file onto cfg
func loadFromFile(filePath string, cfg *Config) error {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return err
	}
	return yaml.Unmarshal(data, cfg)
}

// validate validates the configuration
func (c *Config) validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}

	if c.Server.ReadTimeout <= 0 {
		return fmt.Errorf("server read timeout must be positive")
	}

	if c.Security.LookupSecret == "" {
		return fmt.Errorf("security lookup secret is required")
	}

	if c.Security.EncryptionSecret == "" {
		return fmt.Errorf("security encryption secret is required")
	}

	if c.Limits.StreamChunkSize <= 0 {
		return fmt.Errorf("stream chunk size must be positive")
	}

	if c.Limits.VerifyIPMax <= 0 || c.Limits.SessionKeyMax <= 0 || c.Limits.DownloadIPMax <= 0 {
		return fmt.Errorf("rate limits must be positive")
	}

	switch c.Database.Driver {
	case "memory":
	case "postgres":
		if c.Database.DSN == "" {
			return fmt.Errorf("database dsn is required for the postgres driver")
		}
	default:
		return fmt.Errorf("unsupported database driver: %s", c.Database.Driver)
	}

	switch c.Storage.Backend {
	case "fs":
		if c.Storage.Root == "" {
			return fmt.Errorf("storage root is required for the fs backend")
		}
	case "s3":
		if c.Storage.Bucket == "" {
			return fmt.Errorf("storage bucket is required for the s3 backend")
		}
	default:
		return fmt.Errorf("unsupported storage backend: %s", c.Storage.Backend)
	}

	switch c.Events.Sink {
	case "log", "none":
	case "kafka":
		if len(c.Events.Brokers) == 0 {
			return fmt.Errorf("at least one kafka broker must be specified")
		}
	default:
		return fmt.Errorf("unsupported events sink: %s", c.Events.Sink)
	}

	// Logs are always JSON
	c.Logging.Format = "json"
	if c.Logging.FilePath == "" {
		c.Logging.FilePath = "logs/licensegate.log"
	}

	return nil
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// getConfigFilePath returns the path to the config file
func getConfigFilePath() string {
	if explicit := strings.TrimSpace(os.Getenv(EnvPrefix + "_CONFIG_FILE")); explicit != "" {
		return explicit
	}

	// Check for config file in common locations
	locations := []string{
		"licensegate.yaml",
		"configs/licensegate.yaml",
		"/etc/licensegate/licensegate.yaml",
	}

	for _, location := range locations {
		if fileExists(location) {
			return location
		}
	}

	return "" // No config file found, use env vars only
}

// Default returns default configuration
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            8080,
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    10 * time.Minute, // downloads stream large artifacts
			IdleTimeout:     60 * time.Second,
			MaxHeaderBytes:  1 << 20, // 1MB
			MaxBodyBytes:    64 << 10,
			ShutdownTimeout: 30 * time.Second,
			RequestTimeout:  15 * time.Second,
		},
		Security: SecurityConfig{
			AllowedOrigins: []string{"*"},
			EnableCORS:     false,
			CountryHeader:  "CF-IPCountry",
			RateLimit: RateLimitConfig{
				Enabled: true,
				RPS:     200,
				Burst:   100,
			},
		},
		Limits: LimitsConfig{
			VerifyIPMax:        25,
			VerifyIPWindow:     time.Minute,
			DownloadIPMax:      10,
			DownloadIPWindow:   time.Minute,
			SessionKeyMax:      1,
			SessionKeyWindow:   15 * time.Minute,
			StreamChunkSize:    64 << 10,
			TeamCacheTTL:       30 * time.Second,
			TeamCacheSize:      1000,
			MaxWatermarkBuffer: 256 << 20,
		},
		Logging: LoggingConfig{
			Level:    "info",
			Format:   "json",
			Output:   "console",
			FilePath: "logs/licensegate.log",
		},
		Redis: RedisConfig{
			URL:         "redis://localhost:6379/0",
			DialTimeout: 5 * time.Second,
			KeyPrefix:   "licensegate",
		},
		Database: DatabaseConfig{
			Driver:          "memory",
			MaxOpenConns:    25,
			MaxIdleConns:    5,
			ConnMaxLifetime: 30 * time.Minute,
			RunMigrations:   true,
		},
		Storage: StorageConfig{
			Backend: "fs",
			Root:    "data/artifacts",
			Region:  "us-east-1",
		},
		Watermark: WatermarkConfig{
			URL:        "http://localhost:9000",
			Timeout:    2 * time.Minute,
			MaxRetries: 3,
		},
		Events: EventsConfig{
			Sink:            "log",
			RequestLogTopic: "licensegate.request-logs",
			AuditTopic:      "licensegate.audit",
			BatchTimeout:    time.Second,
		},
		Retention: RetentionConfig{
			Enabled:  true,
			Schedule: "@hourly",
			MaxAge:   31 * 24 * time.Hour,
		},
		Telemetry: TelemetryConfig{
			Environment:    "development",
			TraceExporter:  "none",
			MetricExporter: "prometheus",
			SampleRatio:    1.0,
		},
	}
}
