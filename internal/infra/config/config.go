package config

import (
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// AppConfig holds the settings of every binary in the repository.
type AppConfig struct {
	AppEnv string `envconfig:"APP_ENV" default:"dev"`
	Port   int    `envconfig:"PORT" default:"8080"`

	DBDriver   string `envconfig:"DB_DRIVER" default:"postgres"`
	PGDSN      string `envconfig:"PG_DSN"`
	PGMaxConns int32  `envconfig:"PG_MAX_CONNS" default:"5"`
	SQLitePath string `envconfig:"SQLITE_PATH" default:"reader.db"`

	Server struct {
		ReadTimeout     time.Duration `envconfig:"HTTP_READ_TIMEOUT" default:"15s"`
		WriteTimeout    time.Duration `envconfig:"HTTP_WRITE_TIMEOUT" default:"15s"`
		RequestTimeout  time.Duration `envconfig:"HTTP_REQUEST_TIMEOUT" default:"30s"`
		ShutdownTimeout time.Duration `envconfig:"HTTP_SHUTDOWN_TIMEOUT" default:"10s"`
	} `envconfig:""`

	Identity struct {
		ProjectID string        `envconfig:"IDENTITY_PROJECT_ID"`
		Issuer    string        `envconfig:"IDENTITY_ISSUER"`
		JWKSURL   string        `envconfig:"IDENTITY_JWKS_URL" default:"https://www.googleapis.com/service_accounts/v1/jwk/securetoken@system.gserviceaccount.com"`
		Timeout   time.Duration `envconfig:"IDENTITY_TIMEOUT" default:"5s"`
	} `envconfig:""`

	Cache struct {
		RedisAddr     string        `envconfig:"REDIS_ADDR"`
		RedisPassword string        `envconfig:"REDIS_PASSWORD"`
		RedisDB       int           `envconfig:"REDIS_DB" default:"0"`
		TTL           time.Duration `envconfig:"CACHE_TTL" default:"5m"`
	} `envconfig:""`

	Metrics struct {
		Enabled bool   `envconfig:"METRICS_ENABLED" default:"true"`
		Addr    string `envconfig:"METRICS_ADDR" default:":9090"`
	} `envconfig:""`

	Tracing struct {
		Endpoint    string `envconfig:"OTEL_EXPORTER_OTLP_ENDPOINT"`
		ServiceName string `envconfig:"OTEL_SERVICE_NAME" default:"ananse-reader"`
		Insecure    bool   `envconfig:"OTEL_EXPORTER_OTLP_INSECURE" default:"false"`
	} `envconfig:""`

	Reader struct {
		PageRunes int `envconfig:"READER_PAGE_RUNES" default:"4000"`
	} `envconfig:""`
}

// Load reads the configuration from the environment.
func Load() AppConfig {
	cfg, err := Parse()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	return cfg
}

// Parse reads the configuration from the environment without exiting.
func Parse() (AppConfig, error) {
	var cfg AppConfig
	if err := envconfig.Process("", &cfg); err != nil {
		return AppConfig{}, err
	}
	cfg.DBDriver = strings.ToLower(strings.TrimSpace(cfg.DBDriver))
	return cfg, nil
}

// IssuerOrDefault returns the expected token issuer.
func (c AppConfig) IssuerOrDefault() string {
	if c.Identity.Issuer != "" {
		return c.Identity.Issuer
	}
	return "https://securetoken.google.com/" + c.Identity.ProjectID
}

// ListenAddr is the address of the API server.
func (c AppConfig) ListenAddr() string {
	return fmt.Sprintf(":%d", c.Port)
}

// Validate checks the settings the API server cannot start without.
func (c AppConfig) Validate() error {
	var errs []error
	switch c.DBDriver {
	case DriverPostgres:
		if c.PGDSN == "" {
			errs = append(errs, errors.New("PG_DSN is required for the postgres driver"))
		}
	case DriverSQLite:
		if c.SQLitePath == "" {
			errs = append(errs, errors.New("SQLITE_PATH is required for the sqlite driver"))
		}
	default:
		errs = append(errs, fmt.Errorf("unsupported DB_DRIVER %q", c.DBDriver))
	}
	if c.Identity.ProjectID == "" {
		errs = append(errs, errors.New("IDENTITY_PROJECT_ID is required"))
	}
	if c.Reader.PageRunes < 200 {
		errs = append(errs, errors.New("READER_PAGE_RUNES must be at least 200"))
	}
	return errors.Join(errs...)
}
