package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

const (
	EnvPrefix = ""

	AppEnvDev  = "dev"
	AppEnvProd = "prod"
)

type Config struct {
	App          AppConfig
	DB           DBConfig
	Stripe       StripeConfig
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
	Env          string `envconfig:"MEMBERS_APP_ENV" default:"dev"`
	Port         string `envconfig:"MEMBERS_APP_PORT" default:"8080"`
	LogLevel     string `envconfig:"MEMBERS_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"MEMBERS_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type DBConfig struct {
	DSN    string `envconfig:"MEMBERS_DB_DSN"`
	Driver string `envconfig:"MEMBERS_DB_DRIVER" default:"postgres"`

	Host     string `envconfig:"MEMBERS_DB_HOST"`
	Port     int    `envconfig:"MEMBERS_DB_PORT" default:"5432"`
	User     string `envconfig:"MEMBERS_DB_USER"`
	Password string `envconfig:"MEMBERS_DB_PASSWORD"`
	Name     string `envconfig:"MEMBERS_DB_NAME"`
	SSLMode  string `envconfig:"MEMBERS_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"MEMBERS_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"MEMBERS_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"MEMBERS_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"MEMBERS_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

// ensureDSN builds a DSN from the discrete host/user fields when one was
// not supplied directly.
func (d *DBConfig) ensureDSN() error {
	if strings.TrimSpace(d.DSN) != "" {
		return nil
	}
	if d.Host == "" || d.User == "" || d.Name == "" {
		return fmt.Errorf("either MEMBERS_DB_DSN or MEMBERS_DB_HOST/USER/NAME must be set")
	}
	d.DSN = fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.Name, d.SSLMode,
	)
	return nil
}

// StripeConfig carries the payment gateway credentials. An empty APIKey is
// legal: the gateway client boots unconfigured and every dependent
// operation fails fast with a gateway-not-configured error.
type StripeConfig struct {
	APIKey string `envconfig:"MEMBERS_STRIPE_API_KEY"`
	Env    string `envconfig:"MEMBERS_STRIPE_ENV" default:"test"`
}

func (s StripeConfig) Environment() string {
	return strings.TrimSpace(strings.ToLower(s.Env))
}

type FeatureFlagsConfig struct {
	AutoMigrate bool `envconfig:"MEMBERS_AUTO_MIGRATE" default:"false"`
}
