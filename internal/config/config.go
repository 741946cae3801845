package config

import (
	"fmt"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/spf13/viper"
)

const (
	StoreMemory   = "memory"
	StorePostgres = "postgres"
	StoreSQLite   = "sqlite"
)

type Config struct {
	Port          string `mapstructure:"PORT"`
	Env           string `mapstructure:"ENV"`
	LogLevel      string `mapstructure:"LOG_LEVEL"`
	DatabaseURL   string `mapstructure:"DATABASE_URL"`
	DBMaxConns    int32  `mapstructure:"DB_MAX_CONNS"`
	DBMinConns    int32  `mapstructure:"DB_MIN_CONNS"`
	MigrationsDir string `mapstructure:"MIGRATIONS_DIR"`
	Timezone      string `mapstructure:"TIMEZONE"`

	AppointmentStore string `mapstructure:"APPOINTMENT_STORE"`
	PatientStore     string `mapstructure:"PATIENT_STORE"`
	SQLitePath       string `mapstructure:"SQLITE_PATH"`

	PlanningMaxCapacity      int    `mapstructure:"PLANNING_MAX_CAPACITY"`
	PlanningSearchAttempts   int    `mapstructure:"PLANNING_SEARCH_ATTEMPTS"`
	PlanningSafetyBufferDays int    `mapstructure:"PLANNING_SAFETY_BUFFER_DAYS"`
	RenewalSweepAt           string `mapstructure:"RENEWAL_SWEEP_AT"`

	AuthSecret     string   `mapstructure:"AUTH_SECRET"`
	AuthIssuer     string   `mapstructure:"AUTH_ISSUER"`
	CORSOrigins    []string `mapstructure:"CORS_ORIGINS"`
	BodyLimit      string   `mapstructure:"BODY_LIMIT"`
	RateLimitRPS   float64  `mapstructure:"RATE_LIMIT_RPS"`
	RateLimitBurst int64    `mapstructure:"RATE_LIMIT_BURST"`
}

var keys = []string{
	"PORT", "ENV", "LOG_LEVEL", "DATABASE_URL", "DB_MAX_CONNS", "DB_MIN_CONNS",
	"MIGRATIONS_DIR", "TIMEZONE", "APPOINTMENT_STORE", "PATIENT_STORE", "SQLITE_PATH",
	"PLANNING_MAX_CAPACITY", "PLANNING_SEARCH_ATTEMPTS", "PLANNING_SAFETY_BUFFER_DAYS",
	"RENEWAL_SWEEP_AT", "AUTH_SECRET", "AUTH_ISSUER", "CORS_ORIGINS", "BODY_LIMIT",
	"RATE_LIMIT_RPS", "RATE_LIMIT_BURST",
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("PORT", "8000")
	v.SetDefault("ENV", "development")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("DB_MAX_CONNS", 10)
	v.SetDefault("DB_MIN_CONNS", 2)
	v.SetDefault("MIGRATIONS_DIR", "migrations")
	v.SetDefault("TIMEZONE", "Africa/Algiers")
	v.SetDefault("APPOINTMENT_STORE", StorePostgres)
	v.SetDefault("PATIENT_STORE", StorePostgres)
	v.SetDefault("SQLITE_PATH", "galepedia.db")
	v.SetDefault("PLANNING_MAX_CAPACITY", 6)
	v.SetDefault("PLANNING_SEARCH_ATTEMPTS", 30)
	v.SetDefault("PLANNING_SAFETY_BUFFER_DAYS", 2)
	v.SetDefault("RENEWAL_SWEEP_AT", "06:00")
	v.SetDefault("CORS_ORIGINS", "http://localhost:3000")
	v.SetDefault("BODY_LIMIT", "1M")
	v.SetDefault("RATE_LIMIT_RPS", 20)
	v.SetDefault("RATE_LIMIT_BURST", 100)

	// Bind env vars explicitly so Unmarshal picks them up
	for _, k := range keys {
		v.BindEnv(k)
	}

	// Try reading .env file, but don't fail if missing
	_ = v.ReadInConfig()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if cfg.CORSOrigins == nil || (len(cfg.CORSOrigins) == 1 && strings.Contains(cfg.CORSOrigins[0], ",")) {
		if origins := v.GetString("CORS_ORIGINS"); origins != "" {
			cfg.CORSOrigins = strings.Split(origins, ",")
		}
	}

	if cfg.NeedsDatabase() && cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required when a store uses postgres")
	}

	return cfg, nil
}

func (c *Config) IsDev() bool {
	return c.Env == "development"
}

// IsProduction returns true when the server is configured for production mode.
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// NeedsDatabase reports whether any store is backed by Postgres.
func (c *Config) NeedsDatabase() bool {
	return c.AppointmentStore == StorePostgres || c.PatientStore == StorePostgres
}

// Location loads the facility time zone.
func (c *Config) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("TIMEZONE %q: %w", c.Timezone, err)
	}
	return loc, nil
}

// Validate checks that the configuration is safe to run. Outside development
// AUTH_SECRET must be set so that bearer tokens are enforced.
func (c *Config) Validate() error {
	switch c.AppointmentStore {
	case StoreMemory, StorePostgres, StoreSQLite:
	default:
		return fmt.Errorf("APPOINTMENT_STORE must be \"memory\", \"postgres\" or \"sqlite\", got %q", c.AppointmentStore)
	}
	switch c.PatientStore {
	case StoreMemory, StorePostgres:
	default:
		return fmt.Errorf("PATIENT_STORE must be \"memory\" or \"postgres\", got %q", c.PatientStore)
	}
	if c.AppointmentStore == StoreSQLite && c.SQLitePath == "" {
		return fmt.Errorf("SQLITE_PATH is required when APPOINTMENT_STORE is \"sqlite\"")
	}

	if c.PlanningMaxCapacity <= 0 {
		return fmt.Errorf("PLANNING_MAX_CAPACITY must be positive, got %d", c.PlanningMaxCapacity)
	}
	if c.PlanningSearchAttempts <= 0 {
		return fmt.Errorf("PLANNING_SEARCH_ATTEMPTS must be positive, got %d", c.PlanningSearchAttempts)
	}
	if c.PlanningSafetyBufferDays < 0 {
		return fmt.Errorf("PLANNING_SAFETY_BUFFER_DAYS must not be negative, got %d", c.PlanningSafetyBufferDays)
	}
	if _, err := time.Parse("15:04", c.RenewalSweepAt); err != nil {
		return fmt.Errorf("RENEWAL_SWEEP_AT must be HH:MM, got %q", c.RenewalSweepAt)
	}
	if _, err := c.Location(); err != nil {
		return err
	}

	if !c.IsDev() && c.AuthSecret == "" {
		return fmt.Errorf("AUTH_SECRET must be set when ENV=%q. "+
			"Refusing to start without authentication configuration", c.Env)
	}
	if c.AuthSecret != "" && len(c.AuthSecret) < 32 {
		return fmt.Errorf("AUTH_SECRET must be at least 32 bytes, got %d", len(c.AuthSecret))
	}
	return nil
}

// Warnings lists settings that are legal but unsafe, for logging at startup.
func (c *Config) Warnings() []string {
	var w []string
	if c.IsDev() {
		w = append(w, "server is running in DEVELOPMENT mode: every request gets admin access")
	}
	if c.AppointmentStore == StoreMemory {
		w = append(w, "appointments are kept in memory and lost on restart")
	}
	if c.PatientStore == StoreMemory {
		w = append(w, "patients are kept in memory and lost on restart")
	}
	return w
}
