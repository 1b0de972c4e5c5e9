package config

import (
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Port        string   `mapstructure:"PORT"`
	Env         string   `mapstructure:"ENV"`
	DatabaseURL string   `mapstructure:"DATABASE_URL"`
	DBMaxConns  int32    `mapstructure:"DB_MAX_CONNS"`
	DBMinConns  int32    `mapstructure:"DB_MIN_CONNS"`
	JWTSecret   string   `mapstructure:"JWT_SECRET"`
	CORSOrigins []string `mapstructure:"CORS_ORIGINS"`

	// Audit trail settings. Retention defaults to seven years; the purge
	// interval controls how often expired records are swept.
	AuditRetentionSeconds int64 `mapstructure:"AUDIT_RETENTION_SECONDS"`
	AuditPurgeIntervalMin int   `mapstructure:"AUDIT_PURGE_INTERVAL_MIN"`
	AuditDispatchBuffer   int   `mapstructure:"AUDIT_DISPATCH_BUFFER"`
}

// sevenYears is the default audit retention (HIPAA §164.316(b)(2)(i)).
const sevenYears = int64(220924800)

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("PORT", "8000")
	v.SetDefault("ENV", "development")
	v.SetDefault("DB_MAX_CONNS", 20)
	v.SetDefault("DB_MIN_CONNS", 5)
	v.SetDefault("CORS_ORIGINS", "http://localhost:3000")
	v.SetDefault("AUDIT_RETENTION_SECONDS", sevenYears)
	v.SetDefault("AUDIT_PURGE_INTERVAL_MIN", 60)
	v.SetDefault("AUDIT_DISPATCH_BUFFER", 256)

	// Bind env vars explicitly so Unmarshal picks them up
	v.BindEnv("PORT")
	v.BindEnv("ENV")
	v.BindEnv("DATABASE_URL")
	v.BindEnv("DB_MAX_CONNS")
	v.BindEnv("DB_MIN_CONNS")
	v.BindEnv("JWT_SECRET")
	v.BindEnv("CORS_ORIGINS")
	v.BindEnv("AUDIT_RETENTION_SECONDS")
	v.BindEnv("AUDIT_PURGE_INTERVAL_MIN")
	v.BindEnv("AUDIT_DISPATCH_BUFFER")

	// Try reading .env file, but don't fail if missing
	_ = v.ReadInConfig()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if cfg.CORSOrigins == nil {
		origins := v.GetString("CORS_ORIGINS")
		if origins != "" {
			cfg.CORSOrigins = strings.Split(origins, ",")
		}
	}

	if cfg.IsDev() {
		log.Println("WARNING: ============================================================")
		log.Println("WARNING: Server is running in DEVELOPMENT mode (ENV=development).")
		log.Println("WARNING: DevMiddleware is active — all requests get admin access.")
		log.Println("WARNING: Do NOT use this configuration in production.")
		log.Println("WARNING: Set ENV=production and configure JWT_SECRET for production.")
		log.Println("WARNING: ============================================================")
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

// AuditRetention returns the configured retention window as a duration.
func (c *Config) AuditRetention() time.Duration {
	return time.Duration(c.AuditRetentionSeconds) * time.Second
}

// AuditPurgeInterval returns the sweep interval for the retention purger.
func (c *Config) AuditPurgeInterval() time.Duration {
	return time.Duration(c.AuditPurgeIntervalMin) * time.Minute
}

// Validate checks that the configuration is safe to run. In production
// JWT_SECRET must be set so that real authentication is enforced, and the
// retention window may not be shortened below seven years.
func (c *Config) Validate() error {
	if c.IsProduction() && c.JWTSecret == "" {
		return fmt.Errorf(
			"JWT_SECRET is required in production (current ENV=%q); refusing to start without authentication", c.Env)
	}
	if c.AuditRetentionSeconds <= 0 {
		return fmt.Errorf("AUDIT_RETENTION_SECONDS must be positive, got %d", c.AuditRetentionSeconds)
	}
	if c.IsProduction() && c.AuditRetentionSeconds < sevenYears {
		return fmt.Errorf("AUDIT_RETENTION_SECONDS may not be below %d (seven years) in production", sevenYears)
	}
	return nil
}
