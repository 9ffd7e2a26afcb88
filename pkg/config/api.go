package config

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// DevJWTSecret is the signing secret used when JWT_SECRET is unset outside production.
const DevJWTSecret = "dev_secret_change_me"

// DefaultTokenTTL is the access token lifetime when JWT_EXPIRES_IN is unset.
const DefaultTokenTTL = 7 * 24 * time.Hour

// Store drivers.
const (
	StorePostgres = "postgres"
	StoreMongo    = "mongo"
	StoreMemory   = "memory"
)

// APIConfig holds runtime configuration for the API service.
type APIConfig struct {
	Environment        string        `env:"APP_ENV" envDefault:"development"`
	Addr               string        `env:"API_ADDR" envDefault:":3000"`
	LogLevel           string        `env:"LOG_LEVEL" envDefault:"info"`
	StoreDriver        string        `env:"STORE_DRIVER" envDefault:"postgres"`
	DatabaseURL        string        `env:"DATABASE_URL" envDefault:"postgres://bookreview:bookreview@db:5432/bookreview?sslmode=disable"`
	MigrationsDir      string        `env:"DB_MIGRATIONS_DIR"`
	MongoURI           string        `env:"MONGO_URI" envDefault:"mongodb://localhost:27017"`
	MongoDatabase      string        `env:"MONGO_DATABASE" envDefault:"bookreview"`
	JWTSecret          string        `env:"JWT_SECRET"`
	TokenTTL           Lifetime      `env:"JWT_EXPIRES_IN" envDefault:"7d"`
	BcryptCost         int           `env:"BCRYPT_COST" envDefault:"10"`
	CORSAllowedOrigins []string      `env:"CORS_ALLOWED_ORIGINS" envDefault:"http://localhost:5173" envSeparator:","`
	RateLimitRedisAddr string        `env:"RATE_LIMIT_REDIS_ADDR"`
	RateLimitRedisPass string        `env:"RATE_LIMIT_REDIS_PASSWORD"`
	RateLimitRedisDB   int           `env:"RATE_LIMIT_REDIS_DB" envDefault:"0"`
	MetricsEnabled     bool          `env:"METRICS_ENABLED" envDefault:"true"`
	StreamHeartbeat    time.Duration `env:"STREAM_HEARTBEAT" envDefault:"25s"`
	TrustedProxies     []string      `env:"TRUSTED_PROXIES" envSeparator:","`
}

// ErrInsecureSecret reports a production config without an explicit signing secret.
var ErrInsecureSecret = errors.New("config: JWT_SECRET must be set to a non-default value in production")

// LoadAPIConfig constructs an APIConfig from environment variables. The
// returned warnings describe development fallbacks that were applied.
func LoadAPIConfig() (APIConfig, []string, error) {
	var cfg APIConfig
	if err := ParseEnv(&cfg); err != nil {
		return APIConfig{}, nil, err
	}
	warnings, err := cfg.Validate()
	if err != nil {
		return APIConfig{}, warnings, err
	}
	return cfg, warnings, nil
}

// IsProduction reports whether APP_ENV names a production deployment.
func (c APIConfig) IsProduction() bool {
	env := strings.ToLower(strings.TrimSpace(c.Environment))
	return env == "production" || env == "prod"
}

// Validate checks invariants and applies development fallbacks. It refuses to
// fall back to the development signing secret in production.
func (c *APIConfig) Validate() ([]string, error) {
	var warnings []string
	secret := strings.TrimSpace(c.JWTSecret)
	if secret == "" || secret == DevJWTSecret {
		if c.IsProduction() {
			return nil, ErrInsecureSecret
		}
		c.JWTSecret = DevJWTSecret
		warnings = append(warnings, "JWT_SECRET not set; using insecure development secret")
	}
	if c.TokenTTL <= 0 {
		c.TokenTTL = Lifetime(DefaultTokenTTL)
		warnings = append(warnings, "JWT_EXPIRES_IN not positive; using 7d")
	}
	switch c.StoreDriver {
	case StorePostgres, StoreMongo:
	case StoreMemory:
		if c.IsProduction() {
			return warnings, fmt.Errorf("config: store driver %q is not allowed in production", c.StoreDriver)
		}
		warnings = append(warnings, "memory store selected; data is lost on restart")
	default:
		return warnings, fmt.Errorf("config: unknown store driver %q", c.StoreDriver)
	}
	return warnings, nil
}
