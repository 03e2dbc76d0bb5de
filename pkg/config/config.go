package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/shopspring/decimal"
)

const (
	// EnvPrefix namespaces every environment variable the service reads.
	EnvPrefix = "VENDORPAY"

	AppEnvDev  = "development"
	AppEnvProd = "production"

	EnvDBDSN  = "VENDORPAY_DB_DSN"
	EnvDBHost = "VENDORPAY_DB_HOST"
	EnvDBUser = "VENDORPAY_DB_USER"
	EnvDBName = "VENDORPAY_DB_NAME"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}

type Config struct {
	App          AppConfig
	Service      ServiceConfig
	DB           DBConfig
	Redis        RedisConfig
	JWT          JWTConfig
	Platform     PlatformConfig
	Gateway      GatewayConfig
	RateLimit    RateLimitConfig
	Outbox       OutboxConfig
	PubSub       PubSubConfig
	GCP          GCPConfig
	FeatureFlags FeatureFlagsConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.DB.ensureDSN(); err != nil {
		return nil, err
	}
	if err := cfg.Platform.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"VENDORPAY_APP_ENV" required:"true"`
	Port         string `envconfig:"VENDORPAY_APP_PORT" required:"true"`
	LogLevel     string `envconfig:"VENDORPAY_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"VENDORPAY_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type ServiceConfig struct {
	Kind string `envconfig:"VENDORPAY_SERVICE_KIND" default:"api"`
}

type DBConfig struct {
	DSN    string `envconfig:"VENDORPAY_DB_DSN"`
	Driver string `envconfig:"VENDORPAY_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"VENDORPAY_DB_HOST"`
	LegacyPort     int    `envconfig:"VENDORPAY_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"VENDORPAY_DB_USER"`
	LegacyPassword string `envconfig:"VENDORPAY_DB_PASSWORD"`
	LegacyName     string `envconfig:"VENDORPAY_DB_NAME"`
	LegacySSLMode  string `envconfig:"VENDORPAY_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"VENDORPAY_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"VENDORPAY_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"VENDORPAY_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"VENDORPAY_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

type RedisConfig struct {
	URL          string        `envconfig:"VENDORPAY_REDIS_URL" required:"true"`
	Address      string        `envconfig:"VENDORPAY_REDIS_ADDR"`
	Password     string        `envconfig:"VENDORPAY_REDIS_PASSWORD"`
	DB           int           `envconfig:"VENDORPAY_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"VENDORPAY_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"VENDORPAY_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"VENDORPAY_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"VENDORPAY_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"VENDORPAY_REDIS_WRITE_TIMEOUT" default:"5s"`
}

type JWTConfig struct {
	Secret            string `envconfig:"VENDORPAY_JWT_SECRET" required:"true"`
	Issuer            string `envconfig:"VENDORPAY_JWT_ISSUER" required:"true"`
	ExpirationMinutes int    `envconfig:"VENDORPAY_JWT_EXPIRATION_MINUTES" default:"60"`
}

// PlatformConfig carries the payout policy knobs.
type PlatformConfig struct {
	CommissionPercent string        `envconfig:"VENDORPAY_PLATFORM_COMMISSION_PERCENT" default:"10.0"`
	MinPayout         string        `envconfig:"VENDORPAY_PLATFORM_MIN_PAYOUT" default:"50.00"`
	DefaultCurrency   string        `envconfig:"VENDORPAY_PLATFORM_DEFAULT_CURRENCY" default:"USD"`
	SweepInterval     time.Duration `envconfig:"VENDORPAY_PLATFORM_SWEEP_INTERVAL" default:"24h"`
	DisputeWindow     time.Duration `envconfig:"VENDORPAY_PLATFORM_DISPUTE_WINDOW" default:"168h"`
	ReconcileAfter    time.Duration `envconfig:"VENDORPAY_PLATFORM_RECONCILE_AFTER" default:"30m"`
}

func (p PlatformConfig) validate() error {
	if _, err := decimal.NewFromString(p.CommissionPercent); err != nil {
		return fmt.Errorf("invalid commission percent %q: %w", p.CommissionPercent, err)
	}
	if _, err := decimal.NewFromString(p.MinPayout); err != nil {
		return fmt.Errorf("invalid min payout %q: %w", p.MinPayout, err)
	}
	if p.SweepInterval <= 0 {
		return fmt.Errorf("sweep interval must be positive")
	}
	if p.DisputeWindow < 0 {
		return fmt.Errorf("dispute window must be non-negative")
	}
	return nil
}

// CommissionRate returns the platform commission as a decimal percentage.
func (p PlatformConfig) CommissionRate() decimal.Decimal {
	rate, err := decimal.NewFromString(p.CommissionPercent)
	if err != nil {
		return decimal.NewFromInt(10)
	}
	return rate
}

// MinPayoutAmount returns the minimum payout as a decimal.
func (p PlatformConfig) MinPayoutAmount() decimal.Decimal {
	minPayout, err := decimal.NewFromString(p.MinPayout)
	if err != nil {
		return decimal.NewFromInt(50)
	}
	return minPayout
}

type GatewayConfig struct {
	Provider      string        `envconfig:"VENDORPAY_GATEWAY_PROVIDER" default:"wiretransfer"`
	BaseURL       string        `envconfig:"VENDORPAY_GATEWAY_BASE_URL"`
	APIKey        string        `envconfig:"VENDORPAY_GATEWAY_API_KEY"`
	WebhookSecret string        `envconfig:"VENDORPAY_GATEWAY_WEBHOOK_SECRET"`
	Timeout       time.Duration `envconfig:"VENDORPAY_GATEWAY_TIMEOUT" default:"15s"`
}

type RateLimitConfig struct {
	WebhookWindow  time.Duration `envconfig:"VENDORPAY_WEBHOOK_RATE_WINDOW" default:"1m"`
	WebhookIPLimit int           `envconfig:"VENDORPAY_WEBHOOK_RATE_IP_LIMIT" default:"120"`
}

type OutboxConfig struct {
	BatchSize      int `envconfig:"VENDORPAY_OUTBOX_PUBLISH_BATCH_SIZE" default:"50"`
	PollIntervalMS int `envconfig:"VENDORPAY_OUTBOX_PUBLISH_POLL_MS" default:"500"`
	MaxAttempts    int `envconfig:"VENDORPAY_OUTBOX_MAX_ATTEMPTS" default:"10"`
}

type PubSubConfig struct {
	PayoutTopic        string `envconfig:"VENDORPAY_PUBSUB_PAYOUT_TOPIC" default:"vp-payout-events"`
	PayoutSubscription string `envconfig:"VENDORPAY_PUBSUB_PAYOUT_SUBSCRIPTION"`
}

type GCPConfig struct {
	ProjectID string `envconfig:"VENDORPAY_GCP_PROJECT_ID"`
}

type FeatureFlagsConfig struct {
	UseSQLite   bool `envconfig:"VENDORPAY_USE_SQLITE" default:"false"`
	AutoMigrate bool `envconfig:"VENDORPAY_AUTO_MIGRATE" default:"false"`
}

func (db *DBConfig) ensureDSN() error {
	if db.DSN != "" {
		return nil
	}

	missing := []string{}
	legacyValues := map[string]string{
		EnvDBHost: db.LegacyHost,
		EnvDBUser: db.LegacyUser,
		EnvDBName: db.LegacyName,
	}
	for _, env := range legacyDBEnvVars {
		if legacyValues[env] == "" {
			missing = append(missing, env)
		}
	}

	if len(missing) > 0 {
		return fmt.Errorf("either %s or %s are required", EnvDBDSN, strings.Join(missing, ", "))
	}

	userInfo := url.User(db.LegacyUser)
	if db.LegacyPassword != "" {
		userInfo = url.UserPassword(db.LegacyUser, db.LegacyPassword)
	}

	u := &url.URL{
		Scheme: "postgres",
		User:   userInfo,
		Host:   fmt.Sprintf("%s:%d", db.LegacyHost, db.LegacyPort),
		Path:   db.LegacyName,
	}

	if db.LegacySSLMode != "" {
		q := u.Query()
		q.Set("sslmode", db.LegacySSLMode)
		u.RawQuery = q.Encode()
	}

	db.DSN = u.String()
	return nil
}
