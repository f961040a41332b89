package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	App          AppConfig
	Service      ServiceConfig
	DB           DBConfig
	Redis        RedisConfig
	JWT          JWTConfig
	FeatureFlags FeatureFlagsConfig
	Eventing     EventingConfig
	Escrow       EscrowConfig
	RateLimit    RateLimitConfig
	CORS         CORSConfig
	Ledger       LedgerConfig
	GCP          GCPConfig
	PubSub       PubSubConfig
	BigQuery     BigQueryConfig
	Stripe       StripeConfig
	Square       SquareConfig
	Outbox       OutboxConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.DB.ensureDSN(); err != nil {
		return nil, err
	}
	if err := cfg.Ledger.validate(); err != nil {
		return nil, err
	}
	if cfg.App.IsProd() && cfg.FeatureFlags.AutoMigrate {
		return nil, fmt.Errorf("%s must be disabled in production", EnvAutoMigrate)
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"SURFACEMARKET_APP_ENV" required:"true"`
	Port         string `envconfig:"SURFACEMARKET_APP_PORT" required:"true"`
	LogLevel     string `envconfig:"SURFACEMARKET_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"SURFACEMARKET_LOG_WARN_STACK" default:"false"`
	LogFormat    string `envconfig:"SURFACEMARKET_LOG_FORMAT" default:"json"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type ServiceConfig struct {
	Kind string `envconfig:"SURFACEMARKET_SERVICE_KIND" default:"api"`
}

type DBConfig struct {
	DSN    string `envconfig:"SURFACEMARKET_DB_DSN"`
	Driver string `envconfig:"SURFACEMARKET_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"SURFACEMARKET_DB_HOST"`
	LegacyPort     int    `envconfig:"SURFACEMARKET_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"SURFACEMARKET_DB_USER"`
	LegacyPassword string `envconfig:"SURFACEMARKET_DB_PASSWORD"`
	LegacyName     string `envconfig:"SURFACEMARKET_DB_NAME"`
	LegacySSLMode  string `envconfig:"SURFACEMARKET_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"SURFACEMARKET_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"SURFACEMARKET_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"SURFACEMARKET_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"SURFACEMARKET_DB_CONN_MAX_IDLE_TIME" default:"10m"`
	SlowQuery       time.Duration `envconfig:"SURFACEMARKET_DB_SLOW_QUERY" default:"500ms"`
}

type RedisConfig struct {
	URL          string        `envconfig:"SURFACEMARKET_REDIS_URL" required:"true"`
	Address      string        `envconfig:"SURFACEMARKET_REDIS_ADDR"`
	Password     string        `envconfig:"SURFACEMARKET_REDIS_PASSWORD"`
	DB           int           `envconfig:"SURFACEMARKET_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"SURFACEMARKET_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"SURFACEMARKET_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"SURFACEMARKET_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"SURFACEMARKET_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"SURFACEMARKET_REDIS_WRITE_TIMEOUT" default:"5s"`
}

type JWTConfig struct {
	Secret            string        `envconfig:"SURFACEMARKET_JWT_SECRET" required:"true"`
	Issuer            string        `envconfig:"SURFACEMARKET_JWT_ISSUER" required:"true"`
	ExpirationMinutes int           `envconfig:"SURFACEMARKET_JWT_EXPIRATION_MINUTES" required:"true"`
	Leeway            time.Duration `envconfig:"SURFACEMARKET_JWT_LEEWAY" default:"30s"`
}

type FeatureFlagsConfig struct {
	UseSQLite   bool `envconfig:"SURFACEMARKET_USE_SQLITE" default:"false"`
	AutoMigrate bool `envconfig:"SURFACEMARKET_AUTO_MIGRATE" default:"false"`
}

type EventingConfig struct {
	OutboxIdempotencyTTL time.Duration `envconfig:"SURFACEMARKET_EVENTING_IDEMPOTENCY_TTL" default:"720h"`
	WebhookDedupeTTL     time.Duration `envconfig:"SURFACEMARKET_WEBHOOK_DEDUPE_TTL" default:"72h"`
	HTTPIdempotencyTTL   time.Duration `envconfig:"SURFACEMARKET_HTTP_IDEMPOTENCY_TTL" default:"24h"`
	// Money-moving routes keep their replay records longer.
	HTTPPaymentIdempotencyTTL time.Duration `envconfig:"SURFACEMARKET_HTTP_PAYMENT_IDEMPOTENCY_TTL" default:"168h"`
}

// EscrowConfig tunes the buyer decision window and payout recovery.
type EscrowConfig struct {
	AutoReleaseDays  int           `envconfig:"SURFACEMARKET_ESCROW_AUTO_RELEASE_DAYS" default:"3"`
	IntentStaleAfter time.Duration `envconfig:"SURFACEMARKET_ESCROW_INTENT_STALE_AFTER" default:"5m"`
	ReconcileBatch   int           `envconfig:"SURFACEMARKET_ESCROW_RECONCILE_BATCH" default:"50"`
	OutboxRetention  time.Duration `envconfig:"SURFACEMARKET_OUTBOX_RETENTION" default:"720h"`
	DLQRetention     time.Duration `envconfig:"SURFACEMARKET_OUTBOX_DLQ_RETENTION" default:"2160h"`
	CronInterval     time.Duration `envconfig:"SURFACEMARKET_CRON_INTERVAL" default:"1m"`
	CronLockTTL      time.Duration `envconfig:"SURFACEMARKET_CRON_LOCK_TTL" default:"55s"`
	FeedDefaultLimit int           `envconfig:"SURFACEMARKET_FEED_DEFAULT_LIMIT" default:"25"`
	FeedMaxLimit     int           `envconfig:"SURFACEMARKET_FEED_MAX_LIMIT" default:"100"`
}

// AutoReleaseWindow returns the configured default buyer window.
func (e EscrowConfig) AutoReleaseWindow() time.Duration {
	if e.AutoReleaseDays <= 0 {
		return 0
	}
	return time.Duration(e.AutoReleaseDays) * 24 * time.Hour
}

// CORSConfig lists the browser origins allowed to call the API.
type CORSConfig struct {
	AllowedOrigins []string      `envconfig:"SURFACEMARKET_CORS_ALLOWED_ORIGINS" default:"http://localhost:3000,https://app.surfacemarket.de,https://admin.surfacemarket.de"`
	MaxAge         time.Duration `envconfig:"SURFACEMARKET_CORS_MAX_AGE" default:"5m"`
}

// RateLimitConfig throttles the mutating order routes per client IP and per user.
type RateLimitConfig struct {
	Window    time.Duration `envconfig:"SURFACEMARKET_RATE_LIMIT_WINDOW" default:"1m"`
	IPLimit   int           `envconfig:"SURFACEMARKET_RATE_LIMIT_IP_LIMIT" default:"120"`
	UserLimit int           `envconfig:"SURFACEMARKET_RATE_LIMIT_USER_LIMIT" default:"30"`
}

type LedgerConfig struct {
	Provider string        `envconfig:"SURFACEMARKET_LEDGER_PROVIDER" default:"stripe"`
	Timeout  time.Duration `envconfig:"SURFACEMARKET_LEDGER_TIMEOUT" default:"10s"`
}

func (l LedgerConfig) validate() error {
	switch strings.ToLower(strings.TrimSpace(l.Provider)) {
	case LedgerProviderStripe, LedgerProviderSquare:
	default:
		return fmt.Errorf("%s must be %q or %q", EnvLedgerProvider, LedgerProviderStripe, LedgerProviderSquare)
	}
	if l.Timeout <= 0 {
		return fmt.Errorf("%s must be positive", EnvLedgerTimeout)
	}
	return nil
}

// ProviderName returns the normalized ledger provider.
func (l LedgerConfig) ProviderName() string {
	return strings.ToLower(strings.TrimSpace(l.Provider))
}

type GCPConfig struct {
	ProjectID              string `envconfig:"SURFACEMARKET_GCP_PROJECT_ID"`
	CredentialsJSON        string `envconfig:"SURFACEMARKET_GCP_CREDENTIALS_JSON"`
	ApplicationCredentials string `envconfig:"SURFACEMARKET_GOOGLE_APPLICATION_CREDENTIALS"`
}

type PubSubConfig struct {
	EscrowTopic           string `envconfig:"SURFACEMARKET_PUBSUB_ESCROW_TOPIC" required:"true"`
	AnalyticsTopic        string `envconfig:"SURFACEMARKET_PUBSUB_ANALYTICS_TOPIC" required:"true"`
	AnalyticsSubscription string `envconfig:"SURFACEMARKET_PUBSUB_ANALYTICS_SUBSCRIPTION" required:"true"`
}

type BigQueryConfig struct {
	Dataset           string `envconfig:"SURFACEMARKET_BIGQUERY_DATASET" default:"surfacemarket"`
	EscrowEventsTable string `envconfig:"SURFACEMARKET_BIGQUERY_ESCROW_TABLE" default:"escrow_events"`
	// CreateTable lets the analytics worker create a missing escrow table.
	CreateTable bool `envconfig:"SURFACEMARKET_BIGQUERY_CREATE_TABLE" default:"false"`
	// QueryCacheTTL keeps escrow KPI results in redis; zero disables caching.
	QueryCacheTTL time.Duration `envconfig:"SURFACEMARKET_BIGQUERY_QUERY_CACHE_TTL" default:"5m"`
}

type OutboxConfig struct {
	BatchSize      int `envconfig:"SURFACEMARKET_OUTBOX_PUBLISH_BATCH_SIZE" default:"50"`
	PollIntervalMS int `envconfig:"SURFACEMARKET_OUTBOX_PUBLISH_POLL_MS" default:"500"`
	MaxAttempts    int `envconfig:"SURFACEMARKET_OUTBOX_MAX_ATTEMPTS" default:"10"`
}

type StripeConfig struct {
	APIKey string `envconfig:"SURFACEMARKET_STRIPE_API_KEY"`
	Secret string `envconfig:"SURFACEMARKET_STRIPE_SECRET"`
	Env    string `envconfig:"SURFACEMARKET_STRIPE_ENV" default:"test"`
}

// Environment returns the normalized Stripe environment (test/live).
func (s StripeConfig) Environment() string {
	env := strings.TrimSpace(strings.ToLower(s.Env))
	if env == "" {
		return "test"
	}
	return env
}

type SquareConfig struct {
	AccessToken   string `envconfig:"SURFACEMARKET_SQUARE_ACCESS_TOKEN"`
	Env           string `envconfig:"SURFACEMARKET_SQUARE_ENV" default:"sandbox"`
	LocationID    string `envconfig:"SURFACEMARKET_SQUARE_LOCATION_ID"`
	WebhookSecret string `envconfig:"SURFACEMARKET_SQUARE_WEBHOOK_SIGNATURE_KEY"`
	WebhookURL    string `envconfig:"SURFACEMARKET_SQUARE_WEBHOOK_URL"`
}

// Environment returns the normalized Square environment (sandbox/production).
func (s SquareConfig) Environment() string {
	env := strings.TrimSpace(strings.ToLower(s.Env))
	if env == "" {
		return "sandbox"
	}
	return env
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
