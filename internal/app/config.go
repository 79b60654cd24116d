package app

import (
	"errors"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config holds runtime configuration for the application.
type Config struct {
	AppEnv            string        `envconfig:"APP_ENV" default:"development"`
	AppAddr           string        `envconfig:"APP_ADDR" default:":8080"`
	AppReadTimeout    time.Duration `envconfig:"APP_READ_TIMEOUT" default:"15s"`
	AppWriteTimeout   time.Duration `envconfig:"APP_WRITE_TIMEOUT" default:"4m"`
	AppRequestTimeout time.Duration `envconfig:"APP_REQUEST_TIMEOUT" default:"4m"`

	LogFormat string `envconfig:"LOG_FORMAT" default:"pretty"`

	// Upstream ledger account and OAuth1 credentials.
	LedgerAccountID      string `envconfig:"LEDGER_ACCOUNT_ID" required:"true"`
	LedgerConsumerKey    string `envconfig:"LEDGER_CONSUMER_KEY" required:"true"`
	LedgerConsumerSecret string `envconfig:"LEDGER_CONSUMER_SECRET" required:"true"`
	LedgerTokenID        string `envconfig:"LEDGER_TOKEN_ID" required:"true"`
	LedgerTokenSecret    string `envconfig:"LEDGER_TOKEN_SECRET" required:"true"`
	LedgerBaseURL        string `envconfig:"LEDGER_BASE_URL"`

	// LedgerConcurrency is the account's connection ceiling, not a tuning
	// knob. The client keeps one permit of headroom below it.
	LedgerConcurrency  int           `envconfig:"LEDGER_CONCURRENCY" default:"5"`
	LedgerPacing       time.Duration `envconfig:"LEDGER_PACING" default:"200ms"`
	LedgerQueryTimeout time.Duration `envconfig:"LEDGER_QUERY_TIMEOUT" default:"30s"`
	LedgerScanTimeout  time.Duration `envconfig:"LEDGER_SCAN_TIMEOUT" default:"180s"`
	LedgerPageSize     int           `envconfig:"LEDGER_PAGE_SIZE" default:"1000"`
	LedgerMaxPages     int           `envconfig:"LEDGER_MAX_PAGES" default:"50"`

	// Empty REDIS_ADDR keeps the balance cache in process memory.
	RedisAddr   string        `envconfig:"REDIS_ADDR"`
	CachePrefix string        `envconfig:"CACHE_PREFIX" default:"ledgerlens"`
	CacheTTL    time.Duration `envconfig:"CACHE_TTL" default:"5m"`

	// Empty PG_DSN disables the persistent query log.
	PGDSN string `envconfig:"PG_DSN"`

	DefaultBook   int64 `envconfig:"DEFAULT_BOOK" default:"1"`
	DerivedStrict bool  `envconfig:"DERIVED_STRICT" default:"false"`
	Workers       int   `envconfig:"WORKERS" default:"3"`
}

// LoadConfig reads configuration from environment variables.
func LoadConfig() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, err
	}
	if cfg.LedgerConcurrency < 2 {
		return nil, errors.New("ledger concurrency must be at least 2")
	}
	if cfg.Workers < 1 {
		return nil, errors.New("worker count must be at least 1")
	}
	return &cfg, nil
}

// IsProduction returns true when the application runs in production.
func (c *Config) IsProduction() bool {
	return c != nil && c.AppEnv == "production"
}
