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
	DB           DBConfig
	Redis        RedisConfig
	JWT          JWTConfig
	Gateway      GatewayConfig
	Sweep        SweepConfig
	Tickets      TicketsConfig
	Operator     OperatorConfig
	FeatureFlags FeatureFlagsConfig
	GCP          GCPConfig
	PubSub       PubSubConfig
	Outbox       OutboxConfig
	RateLimit    RateLimitConfig
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
	Env          string `envconfig:"CAMPUSTIX_APP_ENV" required:"true"`
	Port         string `envconfig:"CAMPUSTIX_APP_PORT" required:"true"`
	LogLevel     string `envconfig:"CAMPUSTIX_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"CAMPUSTIX_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type DBConfig struct {
	DSN    string `envconfig:"CAMPUSTIX_DB_DSN"`
	Driver string `envconfig:"CAMPUSTIX_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"CAMPUSTIX_DB_HOST"`
	LegacyPort     int    `envconfig:"CAMPUSTIX_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"CAMPUSTIX_DB_USER"`
	LegacyPassword string `envconfig:"CAMPUSTIX_DB_PASSWORD"`
	LegacyName     string `envconfig:"CAMPUSTIX_DB_NAME"`
	LegacySSLMode  string `envconfig:"CAMPUSTIX_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"CAMPUSTIX_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"CAMPUSTIX_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"CAMPUSTIX_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"CAMPUSTIX_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

type RedisConfig struct {
	URL          string        `envconfig:"CAMPUSTIX_REDIS_URL" required:"true"`
	Address      string        `envconfig:"CAMPUSTIX_REDIS_ADDR"`
	Password     string        `envconfig:"CAMPUSTIX_REDIS_PASSWORD"`
	DB           int           `envconfig:"CAMPUSTIX_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"CAMPUSTIX_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"CAMPUSTIX_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"CAMPUSTIX_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"CAMPUSTIX_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"CAMPUSTIX_REDIS_WRITE_TIMEOUT" default:"5s"`
}

type JWTConfig struct {
	Secret            string `envconfig:"CAMPUSTIX_JWT_SECRET" required:"true"`
	Issuer            string `envconfig:"CAMPUSTIX_JWT_ISSUER" required:"true"`
	ExpirationMinutes int    `envconfig:"CAMPUSTIX_JWT_EXPIRATION_MINUTES" default:"60"`
}

// GatewayConfig points at the campus payment rail.
type GatewayConfig struct {
	BaseURL        string        `envconfig:"CAMPUSTIX_GATEWAY_BASE_URL" required:"true"`
	APIKey         string        `envconfig:"CAMPUSTIX_GATEWAY_API_KEY"`
	MerchantID     string        `envconfig:"CAMPUSTIX_GATEWAY_MERCHANT_ID"`
	Currency       string        `envconfig:"CAMPUSTIX_GATEWAY_CURRENCY" default:"USD"`
	RequestTimeout time.Duration `envconfig:"CAMPUSTIX_GATEWAY_TIMEOUT" default:"10s"`
	WebhookSecret  string        `envconfig:"CAMPUSTIX_GATEWAY_WEBHOOK_SECRET"`
}

// SweepConfig controls the pending-transaction reaper.
type SweepConfig struct {
	PendingTTL time.Duration `envconfig:"CAMPUSTIX_SWEEP_PENDING_TTL" default:"15m"`
	Interval   time.Duration `envconfig:"CAMPUSTIX_SWEEP_INTERVAL" default:"1m"`
	BatchSize  int           `envconfig:"CAMPUSTIX_SWEEP_BATCH_SIZE" default:"100"`
	LockTTL    time.Duration `envconfig:"CAMPUSTIX_SWEEP_LOCK_TTL" default:"5m"`
}

// TicketsConfig carries the signing secret for scannable ticket codes.
type TicketsConfig struct {
	CodeSecret string `envconfig:"CAMPUSTIX_TICKET_CODE_SECRET" required:"true"`
}

type OperatorConfig struct {
	ArgonMemoryKB    int `envconfig:"CAMPUSTIX_ARGON_MEMORY_KB" default:"65536"`
	ArgonTime        int `envconfig:"CAMPUSTIX_ARGON_TIME" default:"3"`
	ArgonParallelism int `envconfig:"CAMPUSTIX_ARGON_PARALLELISM" default:"2"`
	ArgonSaltLen     int `envconfig:"CAMPUSTIX_ARGON_SALT_LEN" default:"16"`
	ArgonKeyLen      int `envconfig:"CAMPUSTIX_ARGON_KEY_LEN" default:"32"`
}

type FeatureFlagsConfig struct {
	UseSQLite   bool `envconfig:"CAMPUSTIX_USE_SQLITE" default:"false"`
	AutoMigrate bool `envconfig:"CAMPUSTIX_AUTO_MIGRATE" default:"false"`
}

type GCPConfig struct {
	ProjectID string `envconfig:"CAMPUSTIX_GCP_PROJECT_ID"`
}

type PubSubConfig struct {
	TicketEventsTopic        string `envconfig:"CAMPUSTIX_PUBSUB_TICKET_TOPIC" default:"tix-ticket-events"`
	TicketEventsSubscription string `envconfig:"CAMPUSTIX_PUBSUB_TICKET_SUBSCRIPTION"`
}

// RateLimitConfig throttles the purchase and gate-scan surfaces.
type RateLimitConfig struct {
	PurchaseWindow    time.Duration `envconfig:"CAMPUSTIX_RL_PURCHASE_WINDOW" default:"1m"`
	PurchaseIPLimit   int           `envconfig:"CAMPUSTIX_RL_PURCHASE_IP_LIMIT" default:"60"`
	PurchaseUserLimit int           `envconfig:"CAMPUSTIX_RL_PURCHASE_USER_LIMIT" default:"20"`
	CheckInWindow     time.Duration `envconfig:"CAMPUSTIX_RL_CHECKIN_WINDOW" default:"1m"`
	CheckInIPLimit    int           `envconfig:"CAMPUSTIX_RL_CHECKIN_IP_LIMIT" default:"240"`
}

type OutboxConfig struct {
	BatchSize      int `envconfig:"CAMPUSTIX_OUTBOX_PUBLISH_BATCH_SIZE" default:"50"`
	PollIntervalMS int `envconfig:"CAMPUSTIX_OUTBOX_PUBLISH_POLL_MS" default:"500"`
	MaxAttempts    int `envconfig:"CAMPUSTIX_OUTBOX_MAX_ATTEMPTS" default:"10"`
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
