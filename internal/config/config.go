package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

const (
	DriverPostgres = "postgres"
	DriverMemory   = "memory"
)

type Config struct {
	AppPort string `envconfig:"APP_PORT" default:"8080"`
	AppEnv  string `envconfig:"APP_ENV" default:"dev"`

	// Store
	StoreDriver string        `envconfig:"STORE_DRIVER" default:"postgres"`
	DBDSN       string        `envconfig:"DB_DSN"`
	TxTimeout   time.Duration `envconfig:"TX_TIMEOUT" default:"5s"`

	// JWT
	JWTSecret     string `envconfig:"JWT_SECRET" required:"true"`
	JWTExpiresMin int    `envconfig:"JWT_EXPIRES_MIN" default:"10080"`

	// Realtime
	RedisAddr     string `envconfig:"REDIS_ADDR"`
	RedisPassword string `envconfig:"REDIS_PASSWORD"`
	RedisDB       int    `envconfig:"REDIS_DB" default:"0"`

	// Event bus
	RabbitURL      string `envconfig:"RABBIT_URL"`
	RabbitExchange string `envconfig:"RABBIT_EXCHANGE" default:"gigflow.events"`

	// Tracing; empty disables the exporter.
	OTLPEndpoint string `envconfig:"OTEL_EXPORTER_OTLP_ENDPOINT"`

	CORSOrigins []string `envconfig:"CORS_ORIGINS" default:"http://localhost:3000,http://127.0.0.1:3000"`

	GoogleClientID  string `envconfig:"GOOGLE_CLIENT_ID"`
	GoogleSecret    string `envconfig:"GOOGLE_CLIENT_SECRET"`
	GoogleRedirect  string `envconfig:"GOOGLE_REDIRECT_URL"`
	FrontendBaseURL string `envconfig:"FRONTEND_BASE_URL" default:"http://localhost:3000"`
}

func Load() (Config, error) {
	var c Config
	if err := envconfig.Process("", &c); err != nil {
		return c, err
	}
	return c, c.validate()
}

func (c Config) validate() error {
	if strings.TrimSpace(c.JWTSecret) == "" {
		return errors.New("JWT_SECRET is required")
	}
	switch c.StoreDriver {
	case DriverPostgres:
		if c.DBDSN == "" {
			return errors.New("DB_DSN is required when STORE_DRIVER=postgres")
		}
	case DriverMemory:
	default:
		return fmt.Errorf("unknown STORE_DRIVER %q", c.StoreDriver)
	}
	if c.JWTExpiresMin <= 0 {
		return errors.New("JWT_EXPIRES_MIN must be positive")
	}
	return nil
}

// AllowOrigins renders CORSOrigins the way the fiber cors middleware expects.
func (c Config) AllowOrigins() string {
	return strings.Join(c.CORSOrigins, ", ")
}

func (c Config) GoogleEnabled() bool {
	return c.GoogleClientID != "" && c.GoogleSecret != ""
}
