package ledgerapp

import (
	"os"
	"time"

	"github.com/cristalhq/aconfig"
	"github.com/cristalhq/aconfig/aconfigyaml"
	"github.com/go-faster/errors"
)

// Config holds the ledger service configuration, loadable from environment
// variables (LEDGER_ prefix), flags, or YAML config files.
type Config struct {
	Addr        string `default:"0.0.0.0:8081" usage:"ledger server listen address"`
	DatabaseURL string `usage:"PostgreSQL connection URL (LEDGER_DATABASE_URL or DATABASE_URL)" flag:"database-url"`

	// InitialBalance is the amount granted to a balance on first access,
	// as a decimal string.
	InitialBalance string `default:"1000.00" usage:"default balance for new users" flag:"initial-balance"`

	// AuthToken, when set, is the bearer credential required on payment
	// endpoints.
	AuthToken string `usage:"static bearer token for payment endpoints (LEDGER_AUTH_TOKEN)" flag:"auth-token"`

	RateLimit RateLimitConfig
	Graceful  GracefulConfig
}

// RateLimitConfig controls the per-client rate limiter.
type RateLimitConfig struct {
	Max    int           `default:"300" usage:"Max requests per window"`
	Window time.Duration `default:"1m"  usage:"Rate limit window duration"`
}

// GracefulConfig controls graceful shutdown timing.
type GracefulConfig struct {
	ReadinessDelay  time.Duration `default:"3s"  usage:"Delay after readiness=false before shutdown" flag:"readiness-delay"`
	ShutdownTimeout time.Duration `default:"15s" usage:"Maximum shutdown duration" flag:"shutdown-timeout"`
}

// LoadConfig loads configuration from environment variables, YAML config
// files, and applies platform defaults.
func LoadConfig() (*Config, error) {
	var cfg Config
	loader := aconfig.LoaderFor(&cfg, aconfig.Config{
		EnvPrefix: "LEDGER",
		Files:     []string{"ledger.yaml", "/etc/kart/ledger.yaml"},
		FileDecoders: map[string]aconfig.FileDecoder{
			".yaml": aconfigyaml.New(),
		},
	})
	if err := loader.Load(); err != nil {
		return nil, errors.Wrap(err, "load config")
	}

	if cfg.DatabaseURL == "" {
		cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	}
	if cfg.DatabaseURL == "" {
		return nil, errors.New("database URL is required: set LEDGER_DATABASE_URL or DATABASE_URL")
	}
	if port := os.Getenv("PORT"); port != "" && cfg.Addr == "0.0.0.0:8081" {
		cfg.Addr = "0.0.0.0:" + port
	}

	return &cfg, nil
}
