package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const defaultDSN = "host=localhost user=postgres password=postgres dbname=osp_stores port=5432 sslmode=disable"

type Config struct {
	AppEnv      string
	LogLevel    string
	HTTPPort    string
	DatabaseDSN string
	JWTSecret   string
	JWTTTL      time.Duration
	CORSOrigins []string

	// Optional item catalog cache. Empty RedisURL disables it.
	RedisURL        string
	CatalogCacheTTL time.Duration

	// Refuse approvals above the requested quantity.
	EnforceApprovalCeiling bool
}

func (c *Config) IsDevelopment() bool {
	return c.AppEnv == "development"
}

// Load reads .env (if present) and the environment. Problems a production
// deployment must not start with are returned as errors; soft ones are
// returned as warnings for the caller to log.
func Load() (*Config, []string, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetDefault("APP_ENV", "development")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("HTTP_PORT", "8080")
	v.SetDefault("DATABASE_DSN", defaultDSN)
	v.SetDefault("JWT_SECRET", "")
	v.SetDefault("JWT_TTL_HOURS", 24)
	v.SetDefault("CORS_ALLOWED_ORIGINS", "http://localhost:5173")
	v.SetDefault("REDIS_URL", "")
	v.SetDefault("CATALOG_CACHE_TTL_SECONDS", 300)
	v.SetDefault("WORKFLOW_ENFORCE_APPROVAL_CEILING", false)
	v.AutomaticEnv()

	return fromViper(v)
}

func fromViper(v *viper.Viper) (*Config, []string, error) {
	origins := make([]string, 0)
	for _, o := range strings.Split(v.GetString("CORS_ALLOWED_ORIGINS"), ",") {
		if o = strings.TrimSpace(o); o != "" {
			origins = append(origins, o)
		}
	}

	cfg := &Config{
		AppEnv:                 v.GetString("APP_ENV"),
		LogLevel:               v.GetString("LOG_LEVEL"),
		HTTPPort:               v.GetString("HTTP_PORT"),
		DatabaseDSN:            v.GetString("DATABASE_DSN"),
		JWTSecret:              v.GetString("JWT_SECRET"),
		JWTTTL:                 time.Duration(v.GetInt("JWT_TTL_HOURS")) * time.Hour,
		CORSOrigins:            origins,
		RedisURL:               v.GetString("REDIS_URL"),
		CatalogCacheTTL:        time.Duration(v.GetInt("CATALOG_CACHE_TTL_SECONDS")) * time.Second,
		EnforceApprovalCeiling: v.GetBool("WORKFLOW_ENFORCE_APPROVAL_CEILING"),
	}

	if cfg.JWTSecret == "" {
		return nil, nil, fmt.Errorf("JWT_SECRET is not set")
	}
	if len(cfg.JWTSecret) < 32 {
		return nil, nil, fmt.Errorf("JWT_SECRET must be at least 32 characters")
	}
	if cfg.JWTTTL <= 0 {
		return nil, nil, fmt.Errorf("JWT_TTL_HOURS must be positive")
	}

	var warnings []string
	if cfg.DatabaseDSN == defaultDSN {
		warnings = append(warnings, "DATABASE_DSN uses the default local value")
	}
	if len(cfg.CORSOrigins) == 1 && cfg.CORSOrigins[0] == "http://localhost:5173" {
		warnings = append(warnings, "CORS_ALLOWED_ORIGINS uses the default local value")
	}

	return cfg, warnings, nil
}
