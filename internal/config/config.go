package config

import (
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config holds server configuration loaded from environment variables.
type Config struct {
	Port                int           `envconfig:"PORT" default:"8080"`
	LogLevel            string        `envconfig:"LOG_LEVEL" default:"info"`
	DatabaseURL         string        `envconfig:"DATABASE_URL" required:"true"`
	Version             string        `envconfig:"VERSION" default:"dev"`
	JWTSecret           string        `envconfig:"JWT_SECRET" required:"true"`
	TokenTTL            time.Duration `envconfig:"TOKEN_TTL" default:"1h"`
	SweepInterval       int           `envconfig:"SWEEP_INTERVAL" default:"30"`
	BcryptCost          int           `envconfig:"BCRYPT_COST" default:"12"`
	SignInRatePerSecond float64       `envconfig:"SIGNIN_RATE_PER_SECOND" default:"5"`
	SignInBurst         int           `envconfig:"SIGNIN_BURST" default:"10"`
	TrustProxy          bool          `envconfig:"TRUST_PROXY" default:"false"`
}

// ClientConfig configures the sessionwatch client. Variables share the PORTAL_ prefix.
type ClientConfig struct {
	URL            string        `envconfig:"URL" default:"http://localhost:8080"`
	LogLevel       string        `envconfig:"LOG_LEVEL" default:"info"`
	CacheDir       string        `envconfig:"CACHE_DIR" default:""`
	CacheNamespace string        `envconfig:"CACHE_NAMESPACE" default:""`
	ResolveTimeout time.Duration `envconfig:"RESOLVE_TIMEOUT" default:"10s"`
}

// Load reads configuration from environment variables into a Config struct.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// LoadClient reads PORTAL_* environment variables into a ClientConfig.
func LoadClient() (*ClientConfig, error) {
	var cfg ClientConfig
	if err := envconfig.Process("portal", &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}
