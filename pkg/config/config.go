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
	FeatureFlags FeatureFlagsConfig
	Retry        RetryConfig
	Stripe       StripeConfig
	Square       SquareConfig
	GCP          GCPConfig
	PubSub       PubSubConfig
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
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"RENEWALS_APP_ENV" required:"true"`
	Port         string `envconfig:"RENEWALS_APP_PORT" required:"true"`
	LogLevel     string   `envconfig:"RENEWALS_LOG_LEVEL" default:"info"`
	LogWarnStack bool     `envconfig:"RENEWALS_LOG_WARN_STACK" default:"false"`
	CORSOrigins  []string `envconfig:"RENEWALS_CORS_ORIGINS"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type ServiceConfig struct {
	Kind        string `envconfig:"RENEWALS_SERVICE_KIND" default:"api"`
	AdminAPIKey string `envconfig:"RENEWALS_ADMIN_API_KEY"`
}

type DBConfig struct {
	DSN    string `envconfig:"RENEWALS_DB_DSN"`
	Driver string `envconfig:"RENEWALS_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"RENEWALS_DB_HOST"`
	LegacyPort     int    `envconfig:"RENEWALS_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"RENEWALS_DB_USER"`
	LegacyPassword string `envconfig:"RENEWALS_DB_PASSWORD"`
	LegacyName     string `envconfig:"RENEWALS_DB_NAME"`
	LegacySSLMode  string `envconfig:"RENEWALS_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"RENEWALS_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"RENEWALS_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"RENEWALS_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"RENEWALS_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

type RedisConfig struct {
	URL          string        `envconfig:"RENEWALS_REDIS_URL" required:"true"`
	Address      string        `envconfig:"RENEWALS_REDIS_ADDR"`
	Password     string        `envconfig:"RENEWALS_REDIS_PASSWORD"`
	DB           int           `envconfig:"RENEWALS_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"RENEWALS_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"RENEWALS_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"RENEWALS_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"RENEWALS_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"RENEWALS_REDIS_WRITE_TIMEOUT" default:"5s"`
}

type FeatureFlagsConfig struct {
	// RetryEnabled gates the whole retry subsystem. When false no inbound
	// event is wired and failed renewals are left alone.
	RetryEnabled bool `envconfig:"RENEWALS_FEATURE_RETRY_ENABLED" default:"true"`
	AutoMigrate  bool `envconfig:"RENEWALS_AUTO_MIGRATE" default:"false"`
}

type RetryConfig struct {
	WorkerInterval        time.Duration `envconfig:"RENEWALS_RETRY_WORKER_INTERVAL" default:"1m"`
	DueBatchSize          int           `envconfig:"RENEWALS_RETRY_DUE_BATCH_SIZE" default:"100"`
	WebhookIdempotencyTTL time.Duration `envconfig:"RENEWALS_RETRY_WEBHOOK_IDEMPOTENCY_TTL" default:"720h"`
}

type StripeConfig struct {
	APIKey string `envconfig:"RENEWALS_STRIPE_API_KEY"`
	Secret string `envconfig:"RENEWALS_STRIPE_SECRET"`
	Env    string `envconfig:"RENEWALS_STRIPE_ENV" default:"test"`
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
	AccessToken   string `envconfig:"RENEWALS_SQUARE_ACCESS_TOKEN"`
	WebhookSecret string `envconfig:"RENEWALS_SQUARE_WEBHOOK_SECRET"`
	LocationID    string `envconfig:"RENEWALS_SQUARE_LOCATION_ID"`
	Env           string `envconfig:"RENEWALS_SQUARE_ENV" default:"sandbox"`
}

// Environment returns the normalized Square environment (sandbox/production).
func (s SquareConfig) Environment() string {
	env := strings.TrimSpace(strings.ToLower(s.Env))
	if env == "" {
		return "sandbox"
	}
	return env
}

type GCPConfig struct {
	ProjectID              string `envconfig:"RENEWALS_GCP_PROJECT_ID"`
	CredentialsJSON        string `envconfig:"RENEWALS_GCP_CREDENTIALS_JSON"`
	ApplicationCredentials string `envconfig:"RENEWALS_GOOGLE_APPLICATION_CREDENTIALS"`
}

type PubSubConfig struct {
	BillingTopic        string `envconfig:"RENEWALS_PUBSUB_BILLING_TOPIC" default:"renewals-billing-events"`
	BillingSubscription string `envconfig:"RENEWALS_PUBSUB_BILLING_SUBSCRIPTION"`
	DomainTopic         string `envconfig:"RENEWALS_PUBSUB_DOMAIN_TOPIC" default:"renewals-domain-events"`
	DomainSubscription  string `envconfig:"RENEWALS_PUBSUB_DOMAIN_SUBSCRIPTION"`
}

type OutboxConfig struct {
	BatchSize      int `envconfig:"RENEWALS_OUTBOX_PUBLISH_BATCH_SIZE" default:"50"`
	PollIntervalMS int `envconfig:"RENEWALS_OUTBOX_PUBLISH_POLL_MS" default:"500"`
	MaxAttempts    int `envconfig:"RENEWALS_OUTBOX_MAX_ATTEMPTS" default:"10"`
	RetentionDays  int `envconfig:"RENEWALS_OUTBOX_RETENTION_DAYS" default:"30"`
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
