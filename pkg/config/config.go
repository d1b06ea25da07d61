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
	PayPal       PayPalConfig
	Offers       OffersConfig
	Sweeper      SweeperConfig
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
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"SPROUTSWAP_APP_ENV" required:"true"`
	Port         string `envconfig:"SPROUTSWAP_APP_PORT" required:"true"`
	LogLevel     string `envconfig:"SPROUTSWAP_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"SPROUTSWAP_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type ServiceConfig struct {
	Kind string `envconfig:"SPROUTSWAP_SERVICE_KIND" default:"api"`
}

type DBConfig struct {
	DSN    string `envconfig:"SPROUTSWAP_DB_DSN"`
	Driver string `envconfig:"SPROUTSWAP_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"SPROUTSWAP_DB_HOST"`
	LegacyPort     int    `envconfig:"SPROUTSWAP_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"SPROUTSWAP_DB_USER"`
	LegacyPassword string `envconfig:"SPROUTSWAP_DB_PASSWORD"`
	LegacyName     string `envconfig:"SPROUTSWAP_DB_NAME"`
	LegacySSLMode  string `envconfig:"SPROUTSWAP_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"SPROUTSWAP_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"SPROUTSWAP_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"SPROUTSWAP_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"SPROUTSWAP_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

type RedisConfig struct {
	URL          string        `envconfig:"SPROUTSWAP_REDIS_URL" required:"true"`
	Address      string        `envconfig:"SPROUTSWAP_REDIS_ADDR"`
	Password     string        `envconfig:"SPROUTSWAP_REDIS_PASSWORD"`
	DB           int           `envconfig:"SPROUTSWAP_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"SPROUTSWAP_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"SPROUTSWAP_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"SPROUTSWAP_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"SPROUTSWAP_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"SPROUTSWAP_REDIS_WRITE_TIMEOUT" default:"5s"`
}

type JWTConfig struct {
	Secret            string `envconfig:"SPROUTSWAP_JWT_SECRET" required:"true"`
	Issuer            string `envconfig:"SPROUTSWAP_JWT_ISSUER" required:"true"`
	ExpirationMinutes int    `envconfig:"SPROUTSWAP_JWT_EXPIRATION_MINUTES" required:"true"`
}

// Expiration returns the access token TTL configured in minutes.
func (j JWTConfig) Expiration() time.Duration {
	if j.ExpirationMinutes <= 0 {
		return 0
	}
	return time.Duration(j.ExpirationMinutes) * time.Minute
}

type PayPalConfig struct {
	ClientID     string        `envconfig:"SPROUTSWAP_PAYPAL_CLIENT_ID"`
	ClientSecret string        `envconfig:"SPROUTSWAP_PAYPAL_CLIENT_SECRET"`
	Env          string        `envconfig:"SPROUTSWAP_PAYPAL_ENV" default:"sandbox"`
	WebhookID    string        `envconfig:"SPROUTSWAP_PAYPAL_WEBHOOK_ID"`
	Currency     string        `envconfig:"SPROUTSWAP_PAYPAL_CURRENCY" default:"EUR"`
	HTTPTimeout  time.Duration `envconfig:"SPROUTSWAP_PAYPAL_HTTP_TIMEOUT" default:"15s"`
}

// Environment returns the normalized PayPal environment (sandbox/live).
func (p PayPalConfig) Environment() string {
	env := strings.TrimSpace(strings.ToLower(p.Env))
	if env == "" {
		return "sandbox"
	}
	return env
}

type OffersConfig struct {
	ExpirationFallbackDays int `envconfig:"SPROUTSWAP_OFFER_EXPIRATION_FALLBACK_DAYS" default:"7"`
}

type SweeperConfig struct {
	Interval  time.Duration `envconfig:"SPROUTSWAP_SWEEPER_INTERVAL" default:"5m"`
	BatchSize int           `envconfig:"SPROUTSWAP_SWEEPER_BATCH_SIZE" default:"200"`
	LockTTL   time.Duration `envconfig:"SPROUTSWAP_SWEEPER_LOCK_TTL" default:"4m"`
}

type FeatureFlagsConfig struct {
	UseSQLite   bool `envconfig:"SPROUTSWAP_USE_SQLITE" default:"false"`
	AutoMigrate bool `envconfig:"SPROUTSWAP_AUTO_MIGRATE" default:"false"`
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
