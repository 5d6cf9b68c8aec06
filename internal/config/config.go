package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

// Config is the complete noticerun configuration.
type Config struct {
	Upstream UpstreamConfig `yaml:"upstream"`
	Gateway  GatewayConfig  `yaml:"gateway"`
	Pipeline PipelineConfig `yaml:"pipeline"`
	Increase IncreaseConfig `yaml:"increase"`
	Handoff  HandoffConfig  `yaml:"handoff"`
	Accounts AccountsConfig `yaml:"accounts"`
	Secrets  SecretsConfig  `yaml:"secrets"`
	Redis    RedisConfig    `yaml:"redis"`
	Database DatabaseConfig `yaml:"database"`
	Server   ServerConfig   `yaml:"server"`
}

// UpstreamConfig points at the property-management API.
type UpstreamConfig struct {
	BaseURL        string `yaml:"base_url" validate:"required,url"`
	ClientID       string `yaml:"client_id"`
	ClientSecret   string `yaml:"client_secret"`
	ConnectTimeout int    `yaml:"connect_timeout_ms" validate:"gt=0"`
	ReadTimeout    int    `yaml:"read_timeout_ms" validate:"gt=0"`
	TotalTimeout   int    `yaml:"total_timeout_ms" validate:"gt=0"`
	PageSize       int    `yaml:"page_size" validate:"gt=0,lte=1000"`
}

// GatewayConfig bounds how hard the upstream is hit.
type GatewayConfig struct {
	MaxConcurrent     int           `yaml:"max_concurrent" validate:"gt=0"`
	RequestsPerSecond float64       `yaml:"requests_per_second" validate:"gt=0"`
	Burst             int           `yaml:"burst" validate:"gte=0"`
	ReadRetryMS       int           `yaml:"read_retry_ms" validate:"gt=0"`
	WriteMaxAttempts  int           `yaml:"write_max_attempts" validate:"gt=0"`
	BackoffMS         BackoffConfig `yaml:"backoff_ms"`
	Circuit           CircuitConfig `yaml:"circuit"`
}

// BackoffConfig represents exponential backoff configuration
type BackoffConfig struct {
	Base int `yaml:"base" validate:"gt=0"`
	Max  int `yaml:"max" validate:"gtfield=Base"`
}

// CircuitConfig configures the breaker around object-store uploads.
type CircuitConfig struct {
	FailureThreshold int `yaml:"failure_threshold" validate:"gt=0"`
	OpenTimeoutMS    int `yaml:"open_timeout_ms" validate:"gt=0"`
}

// PipelineConfig drives document production and the building loop.
type PipelineConfig struct {
	PartCeilingBytes int64  `yaml:"part_ceiling_bytes" validate:"gt=0"`
	BuildingPauseMS  int    `yaml:"building_pause_ms" validate:"gte=0"`
	ScratchDir       string `yaml:"scratch_dir" validate:"required"`
	AssigneeUserID   int64  `yaml:"assignee_user_id"`
	LandlordName     string `yaml:"landlord_name"`
	LandlordAddress  string `yaml:"landlord_address"`
	RenewLeases      bool   `yaml:"renew_leases"`
	RenewalAttempts  int    `yaml:"renewal_attempts" validate:"gt=0"`
	ExtendIgnored    bool   `yaml:"extend_ignored"`
	ExtensionMonths  int    `yaml:"extension_months" validate:"gt=0"`
}

// IncreaseConfig holds the increase parameters of a run.
type IncreaseConfig struct {
	GuidelinePct      string `yaml:"guideline_pct" validate:"required,numeric"`
	EffectiveDate     string `yaml:"effective_date" validate:"omitempty,datetime=2006-01-02"`
	AboveMarketMargin string `yaml:"above_market_margin" validate:"required,numeric"`
	LMRRatePct        string `yaml:"lmr_rate_pct" validate:"omitempty,numeric"`
}

// HandoffConfig holds the key used to seal the review bundle.
type HandoffConfig struct {
	Key string `yaml:"key"`
}

// AccountsConfig selects where account records come from.
type AccountsConfig struct {
	Source string          `yaml:"source" validate:"oneof=static postgres"`
	Static []StaticAccount `yaml:"static" validate:"dive"`
}

// StaticAccount is an account declared directly in the config file.
type StaticAccount struct {
	ID             int64  `yaml:"id" validate:"gt=0"`
	ClientID       string `yaml:"client_id" validate:"required"`
	SecretName     string `yaml:"secret_name" validate:"required"`
	GuidelinePct   string `yaml:"guideline_pct" validate:"omitempty,numeric"`
	AssigneeUserID int64  `yaml:"assignee_user_id"`
}

// SecretsConfig says where account client secrets are read from. The
// mount directory, when set, is tried before the environment.
type SecretsConfig struct {
	EnvPrefix string `yaml:"env_prefix"`
	MountDir  string `yaml:"mount_dir"`
	CacheSize int    `yaml:"account_cache_size" validate:"gt=0"`
	CacheTTLS int    `yaml:"account_cache_ttl_s" validate:"gt=0"`
}

// AccountCacheTTL returns how long a resolved account is reused.
func (s SecretsConfig) AccountCacheTTL() time.Duration {
	return time.Duration(s.CacheTTLS) * time.Second
}

// RedisConfig configures the run lock. An empty address disables it.
type RedisConfig struct {
	Addr      string `yaml:"addr"`
	Password  string `yaml:"password"`
	DB        int    `yaml:"db"`
	LockTTLMS int    `yaml:"lock_ttl_ms" validate:"gt=0"`
}

// DatabaseConfig configures the postgres account store.
type DatabaseConfig struct {
	DSN             string `yaml:"dsn"`
	MaxOpenConns    int    `yaml:"max_open_conns" validate:"gte=0"`
	MaxIdleConns    int    `yaml:"max_idle_conns" validate:"gte=0"`
	QueryTimeoutMS  int    `yaml:"query_timeout_ms" validate:"gt=0"`
	ConnMaxLifetime int    `yaml:"conn_max_lifetime_s" validate:"gte=0"`
}

// ServerConfig configures the trigger server.
type ServerConfig struct {
	Host          string `yaml:"host" validate:"required"`
	Port          int    `yaml:"port" validate:"gt=0,lt=65536"`
	WebhookSecret string `yaml:"webhook_secret"`
	ToleranceS    int    `yaml:"tolerance_s" validate:"gt=0"`
	QueueSize     int    `yaml:"queue_size" validate:"gt=0"`
}

// Default returns a configuration usable without a file.
func Default() *Config {
	return &Config{
		Upstream: UpstreamConfig{
			BaseURL:        "https://api.buildium.com/v1",
			ConnectTimeout: 10_000,
			ReadTimeout:    60_000,
			TotalTimeout:   120_000,
			PageSize:       1000,
		},
		Gateway: GatewayConfig{
			MaxConcurrent:     9,
			RequestsPerSecond: 9,
			ReadRetryMS:       201,
			WriteMaxAttempts:  5,
			BackoffMS:         BackoffConfig{Base: 500, Max: 30_000},
			Circuit:           CircuitConfig{FailureThreshold: 5, OpenTimeoutMS: 30_000},
		},
		Pipeline: PipelineConfig{
			PartCeilingBytes: 15 * 1024 * 1024,
			BuildingPauseMS:  2000,
			ScratchDir:       os.TempDir(),
			RenewalAttempts:  3,
			ExtendIgnored:    true,
			ExtensionMonths:  6,
		},
		Increase: IncreaseConfig{
			GuidelinePct:      "2.5",
			AboveMarketMargin: "50",
			LMRRatePct:        "2.5",
		},
		Accounts: AccountsConfig{Source: "static"},
		Secrets:  SecretsConfig{EnvPrefix: "NOTICERUN", CacheSize: 128, CacheTTLS: 300},
		Redis:    RedisConfig{LockTTLMS: 30 * 60 * 1000},
		Database: DatabaseConfig{
			MaxOpenConns:    10,
			MaxIdleConns:    5,
			QueryTimeoutMS:  5000,
			ConnMaxLifetime: 3600,
		},
		Server: ServerConfig{
			Host:       "0.0.0.0",
			Port:       8080,
			ToleranceS: 300,
			QueueSize:  64,
		},
	}
}

// Load reads an optional .env file, the YAML file at path (if non-empty),
// applies environment overrides and validates the result.
func Load(path string) (*Config, error) {
	// .env is optional; a missing file is not an error
	_ = godotenv.Load()

	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	}

	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	if v, ok := lookup("BUILDIUM_MAX_CONCURRENT_REQUESTS"); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("BUILDIUM_MAX_CONCURRENT_REQUESTS: %w", err)
		}
		c.Gateway.MaxConcurrent = n
	}
	if v, ok := lookup("BUILDIUM_REQS_PER_SEC"); ok {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("BUILDIUM_REQS_PER_SEC: %w", err)
		}
		c.Gateway.RequestsPerSecond = f
	}
	strs := map[string]*string{
		"BUILDIUM_BASE_URL":      &c.Upstream.BaseURL,
		"BUILDIUM_CLIENT_ID":     &c.Upstream.ClientID,
		"BUILDIUM_CLIENT_SECRET": &c.Upstream.ClientSecret,
		"PG_DSN":                 &c.Database.DSN,
		"REDIS_ADDR":             &c.Redis.Addr,
		"REDIS_PASSWORD":         &c.Redis.Password,
		"NOTICERUN_HANDOFF_KEY":  &c.Handoff.Key,
		"WEBHOOK_SECRET":         &c.Server.WebhookSecret,
		"NOTICERUN_SCRATCH_DIR":  &c.Pipeline.ScratchDir,
		"NOTICERUN_SECRETS_DIR":  &c.Secrets.MountDir,
	}
	for key, dst := range strs {
		if v, ok := lookup(key); ok {
			*dst = v
		}
	}
	return nil
}

// Validate ensures the configuration is valid and consistent
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return err
	}
	if c.Accounts.Source == "postgres" && c.Database.DSN == "" {
		return fmt.Errorf("accounts source postgres requires database dsn")
	}
	if _, err := c.Increase.Guideline(); err != nil {
		return err
	}
	if _, err := c.Increase.Effective(); err != nil {
		return err
	}
	return nil
}

// Guideline returns the guideline increase percentage.
func (i IncreaseConfig) Guideline() (decimal.Decimal, error) {
	d, err := decimal.NewFromString(i.GuidelinePct)
	if err != nil {
		return decimal.Zero, fmt.Errorf("guideline_pct: %w", err)
	}
	return d, nil
}

// Margin returns the above-market margin in currency units.
func (i IncreaseConfig) Margin() decimal.Decimal {
	d, err := decimal.NewFromString(i.AboveMarketMargin)
	if err != nil {
		return decimal.NewFromInt(50)
	}
	return d
}

// LMRRate returns the last-month-rent interest rate percentage.
func (i IncreaseConfig) LMRRate() decimal.Decimal {
	d, err := decimal.NewFromString(i.LMRRatePct)
	if err != nil {
		return decimal.Zero
	}
	return d
}

// Effective returns the configured effective date override, or the zero time.
func (i IncreaseConfig) Effective() (time.Time, error) {
	if i.EffectiveDate == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse("2006-01-02", i.EffectiveDate)
	if err != nil {
		return time.Time{}, fmt.Errorf("effective_date: %w", err)
	}
	return t, nil
}

// ReadRetry returns the fixed sleep after a throttled read.
func (g GatewayConfig) ReadRetry() time.Duration {
	return time.Duration(g.ReadRetryMS) * time.Millisecond
}

// BaseBackoff returns the base backoff as a time.Duration
func (g GatewayConfig) BaseBackoff() time.Duration {
	return time.Duration(g.BackoffMS.Base) * time.Millisecond
}

// MaxBackoff returns the maximum backoff as a time.Duration
func (g GatewayConfig) MaxBackoff() time.Duration {
	return time.Duration(g.BackoffMS.Max) * time.Millisecond
}

// BuildingPause returns the pause between buildings.
func (p PipelineConfig) BuildingPause() time.Duration {
	return time.Duration(p.BuildingPauseMS) * time.Millisecond
}

// LockTTL returns the run-lock TTL.
func (r RedisConfig) LockTTL() time.Duration {
	return time.Duration(r.LockTTLMS) * time.Millisecond
}

// QueryTimeout returns the per-query timeout for the account store.
func (d DatabaseConfig) QueryTimeout() time.Duration {
	return time.Duration(d.QueryTimeoutMS) * time.Millisecond
}

// Addr returns the host:port the trigger server listens on.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}
