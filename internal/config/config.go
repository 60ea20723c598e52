// Package config provides configuration loading and management for the sync
// and enrichment services.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/yagnadeepxo/avici-internal-dashboard/internal/ratelimit"
	"github.com/yagnadeepxo/avici-internal-dashboard/internal/telemetry"
)

const (
	// EnvPrefix is the prefix for environment variables read by the services
	EnvPrefix = "AVICI"

	// DatabasePasswordEnv holds the database password when no password file is configured
	DatabasePasswordEnv = EnvPrefix + "_DATABASE_PASSWORD"

	// GeoAPIKeyEnv holds the geolocation API key when no key file is configured
	GeoAPIKeyEnv = EnvPrefix + "_GEO_API_KEY"
)

// Defaults applied when a field is left empty
const (
	DefaultFeedTimeout        = 30 * time.Second
	DefaultGeoTimeout         = 10 * time.Second
	DefaultSyncInterval       = 5 * time.Minute
	DefaultEnrichmentInterval = 15 * time.Minute
	DefaultBatchSize          = 100
	DefaultRecordDelay        = time.Second
	DefaultBatchDelay         = 2 * time.Second
	DefaultCheckpointKey      = "last_synced_user_id"
	DefaultStatusDir          = "./data/status"
	DefaultOpsAddress         = ":9090"
)

// Option defines the interface for configuration options
type Option func(*loaderConfig) error

// loaderConfig defines the configuration for loading a configuration
type loaderConfig struct {
	path string
}

// WithConfigPath loads configuration from a YAML file
func WithConfigPath(path string) Option {
	return func(cfg *loaderConfig) error {
		if path == "" {
			return fmt.Errorf("path is required")
		}

		// Resolve symlinks; this also cleans the path.
		realPath, err := filepath.EvalSymlinks(path)
		if err != nil {
			return fmt.Errorf("failed to evaluate symlinks: %w", err)
		}

		if !filepath.IsAbs(realPath) {
			if !filepath.IsLocal(realPath) {
				return fmt.Errorf("path is not local or contains invalid traversal: %s", path)
			}
		}

		cfg.path = realPath
		return nil
	}
}

// Config represents the root configuration structure
type Config struct {
	Database   *DatabaseConfig   `yaml:"database" validate:"required"`
	Feed       *FeedConfig       `yaml:"feed,omitempty"`
	Geo        *GeoConfig        `yaml:"geo,omitempty"`
	Sync       *SyncConfig       `yaml:"sync,omitempty"`
	Enrichment *EnrichmentConfig `yaml:"enrichment,omitempty"`

	// StatusDir is where per-service run status files are written
	StatusDir string `yaml:"statusDir,omitempty"`

	Ops       *OpsConfig        `yaml:"ops,omitempty"`
	Telemetry *telemetry.Config `yaml:"telemetry,omitempty"`
}

// DatabaseConfig defines database connection settings
type DatabaseConfig struct {
	Host string `yaml:"host" validate:"required"`
	Port int    `yaml:"port" validate:"required,min=1,max=65535"`
	User string `yaml:"user" validate:"required"`

	// PasswordFile is the path to a file containing the database password.
	// The file should contain only the password with optional trailing whitespace.
	PasswordFile string `yaml:"passwordFile,omitempty"`

	Database string `yaml:"database" validate:"required"`

	// SSLMode is the SSL mode for the connection (disable, require, verify-ca, verify-full)
	SSLMode string `yaml:"sslMode,omitempty" validate:"omitempty,oneof=disable allow prefer require verify-ca verify-full"`

	MaxConns int32 `yaml:"maxConns,omitempty" validate:"omitempty,min=1"`

	// ConnectTimeout bounds the startup connection retries (e.g. "30s")
	ConnectTimeout string `yaml:"connectTimeout,omitempty"`
}

// RateLimitConfig configures a sliding-window limiter
type RateLimitConfig struct {
	MaxCalls int    `yaml:"maxCalls,omitempty" validate:"omitempty,min=1"`
	Window   string `yaml:"window,omitempty"`
	Buffer   string `yaml:"buffer,omitempty"`
}

// FeedConfig defines the upstream user feed
type FeedConfig struct {
	BaseURL   string           `yaml:"baseURL" validate:"required,url"`
	Timeout   string           `yaml:"timeout,omitempty"`
	RateLimit *RateLimitConfig `yaml:"rateLimit,omitempty"`
}

// GeoConfig defines the geolocation API
type GeoConfig struct {
	BaseURL string `yaml:"baseURL" validate:"required,url"`

	// APIKeyFile is the path to a file containing the API key
	APIKeyFile string `yaml:"apiKeyFile,omitempty"`

	Timeout   string           `yaml:"timeout,omitempty"`
	RateLimit *RateLimitConfig `yaml:"rateLimit,omitempty"`
}

// SyncConfig defines the sync service schedule
type SyncConfig struct {
	Interval      string `yaml:"interval,omitempty"`
	CheckpointKey string `yaml:"checkpointKey,omitempty"`

	// LockFile, when set, guards runs across processes
	LockFile string `yaml:"lockFile,omitempty"`
}

// EnrichmentConfig defines the enrichment service schedule and pacing
type EnrichmentConfig struct {
	Interval    string `yaml:"interval,omitempty"`
	BatchSize   int    `yaml:"batchSize,omitempty" validate:"omitempty,min=1,max=10000"`
	RecordDelay string `yaml:"recordDelay,omitempty"`
	BatchDelay  string `yaml:"batchDelay,omitempty"`
	LockFile    string `yaml:"lockFile,omitempty"`
}

// OpsConfig defines the operational HTTP server
type OpsConfig struct {
	Address string `yaml:"address,omitempty"`
}

// LoadConfig loads and parses configuration from a YAML file
func LoadConfig(opts ...Option) (*Config, error) {
	loaderCfg := &loaderConfig{}
	for _, opt := range opts {
		if err := opt(loaderCfg); err != nil {
			return nil, err
		}
	}

	if loaderCfg.path == "" {
		return nil, fmt.Errorf("path is required")
	}

	data, err := os.ReadFile(loaderCfg.path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse YAML config: %w", err)
	}

	if err := config.validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

var structValidator = validator.New(validator.WithRequiredStructEnabled())

// validate performs validation on the configuration
func (c *Config) validate() error {
	if c == nil {
		return fmt.Errorf("config cannot be nil")
	}

	if err := structValidator.Struct(c); err != nil {
		return formatValidationError(err)
	}

	var errs []error
	if c.Database != nil {
		errs = append(errs, validateDuration(c.Database.ConnectTimeout, "database.connectTimeout"))
	}
	if c.Feed != nil {
		errs = append(errs,
			validateHTTPURL(c.Feed.BaseURL, "feed.baseURL"),
			validateDuration(c.Feed.Timeout, "feed.timeout"),
			validateRateLimit(c.Feed.RateLimit, "feed.rateLimit"),
		)
	}
	if c.Geo != nil {
		errs = append(errs,
			validateHTTPURL(c.Geo.BaseURL, "geo.baseURL"),
			validateDuration(c.Geo.Timeout, "geo.timeout"),
			validateRateLimit(c.Geo.RateLimit, "geo.rateLimit"),
		)
	}
	if c.Sync != nil {
		errs = append(errs, validateDuration(c.Sync.Interval, "sync.interval"))
	}
	if c.Enrichment != nil {
		errs = append(errs,
			validateDuration(c.Enrichment.Interval, "enrichment.interval"),
			validateDuration(c.Enrichment.RecordDelay, "enrichment.recordDelay"),
			validateDuration(c.Enrichment.BatchDelay, "enrichment.batchDelay"),
		)
	}
	if err := c.Telemetry.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("telemetry: %w", err))
	}

	return errors.Join(errs...)
}

// formatValidationError turns validator field errors into yaml-path style messages
func formatValidationError(err error) error {
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return err
	}
	errs := make([]error, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		path := strings.TrimPrefix(fe.Namespace(), "Config.")
		if fe.Param() != "" {
			errs = append(errs, fmt.Errorf("%s: failed '%s=%s' validation", path, fe.Tag(), fe.Param()))
			continue
		}
		errs = append(errs, fmt.Errorf("%s: failed '%s' validation", path, fe.Tag()))
	}
	return errors.Join(errs...)
}

func validateDuration(value, field string) error {
	if value == "" {
		return nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return fmt.Errorf("%s must be a valid duration (e.g., '30s', '5m'): %w", field, err)
	}
	if d < 0 {
		return fmt.Errorf("%s must not be negative", field)
	}
	return nil
}

func validateHTTPURL(value, field string) error {
	u, err := url.Parse(value)
	if err != nil {
		return fmt.Errorf("%s: %w", field, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("%s must use http or https, got %q", field, u.Scheme)
	}
	return nil
}

func validateRateLimit(rl *RateLimitConfig, prefix string) error {
	if rl == nil {
		return nil
	}
	return errors.Join(
		validateDuration(rl.Window, prefix+".window"),
		validateDuration(rl.Buffer, prefix+".buffer"),
	)
}

// durationOr parses value, returning def when it is empty. Values are
// validated at load time so a parse failure here also yields def.
func durationOr(value string, def time.Duration) time.Duration {
	if value == "" {
		return def
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return def
	}
	return d
}

// RequireFeed returns the feed configuration or an error if it is missing
func (c *Config) RequireFeed() (*FeedConfig, error) {
	if c.Feed == nil {
		return nil, fmt.Errorf("feed configuration is required for the sync service")
	}
	return c.Feed, nil
}

// RequireGeo returns the geolocation configuration or an error if it is missing
func (c *Config) RequireGeo() (*GeoConfig, error) {
	if c.Geo == nil {
		return nil, fmt.Errorf("geo configuration is required for the enrichment service")
	}
	return c.Geo, nil
}

// GetStatusDir returns the status directory, using the default if not specified
func (c *Config) GetStatusDir() string {
	if c.StatusDir == "" {
		return DefaultStatusDir
	}
	return c.StatusDir
}

// GetOpsAddress returns the ops server listen address
func (c *Config) GetOpsAddress() string {
	if c.Ops == nil || c.Ops.Address == "" {
		return DefaultOpsAddress
	}
	return c.Ops.Address
}

// GetSync returns the sync configuration, never nil
func (c *Config) GetSync() *SyncConfig {
	if c.Sync == nil {
		return &SyncConfig{}
	}
	return c.Sync
}

// GetEnrichment returns the enrichment configuration, never nil
func (c *Config) GetEnrichment() *EnrichmentConfig {
	if c.Enrichment == nil {
		return &EnrichmentConfig{}
	}
	return c.Enrichment
}

// GetTimeout returns the feed request timeout
func (f *FeedConfig) GetTimeout() time.Duration {
	return durationOr(f.Timeout, DefaultFeedTimeout)
}

// GetTimeout returns the geolocation request timeout
func (g *GeoConfig) GetTimeout() time.Duration {
	return durationOr(g.Timeout, DefaultGeoTimeout)
}

// GetAPIKey returns the geolocation API key from APIKeyFile or the environment
func (g *GeoConfig) GetAPIKey() (string, error) {
	return readSecret(g.APIKeyFile, GeoAPIKeyEnv, "geolocation API key", "apiKeyFile")
}

// LimiterConfig converts the rate limit settings. A nil receiver yields the defaults.
func (r *RateLimitConfig) LimiterConfig() ratelimit.Config {
	cfg := ratelimit.DefaultConfig()
	if r == nil {
		return cfg
	}
	if r.MaxCalls > 0 {
		cfg.MaxCalls = r.MaxCalls
	}
	cfg.Window = durationOr(r.Window, cfg.Window)
	cfg.Buffer = durationOr(r.Buffer, cfg.Buffer)
	return cfg
}

// GetInterval returns the sync interval
func (s *SyncConfig) GetInterval() time.Duration {
	return durationOr(s.Interval, DefaultSyncInterval)
}

// GetCheckpointKey returns the checkpoint slot name
func (s *SyncConfig) GetCheckpointKey() string {
	if s.CheckpointKey == "" {
		return DefaultCheckpointKey
	}
	return s.CheckpointKey
}

// GetInterval returns the enrichment interval
func (e *EnrichmentConfig) GetInterval() time.Duration {
	return durationOr(e.Interval, DefaultEnrichmentInterval)
}

// GetBatchSize returns the enrichment batch size
func (e *EnrichmentConfig) GetBatchSize() int {
	if e.BatchSize == 0 {
		return DefaultBatchSize
	}
	return e.BatchSize
}

// GetRecordDelay returns the pause after each geolocation lookup
func (e *EnrichmentConfig) GetRecordDelay() time.Duration {
	return durationOr(e.RecordDelay, DefaultRecordDelay)
}

// GetBatchDelay returns the pause after each batch
func (e *EnrichmentConfig) GetBatchDelay() time.Duration {
	return durationOr(e.BatchDelay, DefaultBatchDelay)
}

// GetPassword returns the database password using the following priority:
// 1. Read from PasswordFile if specified
// 2. Read from AVICI_DATABASE_PASSWORD environment variable
func (d *DatabaseConfig) GetPassword() (string, error) {
	return readSecret(d.PasswordFile, DatabasePasswordEnv, "database password", "passwordFile")
}

// GetConnectTimeout returns how long startup keeps retrying the connection
func (d *DatabaseConfig) GetConnectTimeout() time.Duration {
	return durationOr(d.ConnectTimeout, 30*time.Second)
}

// GetConnectionString builds a PostgreSQL connection string with proper password handling.
// The password is URL-escaped to handle special characters safely.
func (d *DatabaseConfig) GetConnectionString() (string, error) {
	password, err := d.GetPassword()
	if err != nil {
		return "", err
	}

	sslMode := d.SSLMode
	if sslMode == "" {
		sslMode = "require"
	}

	connString := fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		url.QueryEscape(d.User),
		url.QueryEscape(password),
		d.Host,
		d.Port,
		d.Database,
		sslMode,
	)

	return connString, nil
}

// readSecret reads a secret from file, falling back to an environment variable.
// File content has leading and trailing whitespace trimmed.
func readSecret(file, env, what, fileField string) (string, error) {
	if file != "" {
		data, err := os.ReadFile(filepath.Clean(file))
		if err != nil {
			return "", fmt.Errorf("failed to read %s from file %s: %w", what, file, err)
		}
		return strings.TrimSpace(string(data)), nil
	}

	if v := os.Getenv(env); v != "" {
		return v, nil
	}

	return "", fmt.Errorf("no %s configured: set %s or %s environment variable", what, fileField, env)
}
