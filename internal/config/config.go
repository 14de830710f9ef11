package config

import (
	"fmt"
	"log"
	"strings"

	"github.com/spf13/viper"
)

type Config struct {
	Port                 string   `mapstructure:"PORT"`
	Env                  string   `mapstructure:"ENV"`
	Storage              string   `mapstructure:"STORAGE"`
	DatabaseURL          string   `mapstructure:"DATABASE_URL"`
	DBMaxConns           int32    `mapstructure:"DB_MAX_CONNS"`
	DBMinConns           int32    `mapstructure:"DB_MIN_CONNS"`
	AuthSecret           string   `mapstructure:"AUTH_SECRET"`
	AuthIssuer           string   `mapstructure:"AUTH_ISSUER"`
	AuthJWKSURL          string   `mapstructure:"AUTH_JWKS_URL"`
	AuthAudience         string   `mapstructure:"AUTH_AUDIENCE"`
	CORSOrigins          []string `mapstructure:"CORS_ORIGINS"`
	ExpandSchemaPath     string   `mapstructure:"EXPAND_SCHEMA_PATH"`
	ExpandMaxFanOut      int      `mapstructure:"EXPAND_MAX_FANOUT"`
	ExpandResolveTimeout int      `mapstructure:"EXPAND_RESOLVE_TIMEOUT_MS"`
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("PORT", "8000")
	v.SetDefault("ENV", "development")
	v.SetDefault("STORAGE", "postgres")
	v.SetDefault("DB_MAX_CONNS", 20)
	v.SetDefault("DB_MIN_CONNS", 5)
	v.SetDefault("CORS_ORIGINS", "http://localhost:3000")
	v.SetDefault("EXPAND_SCHEMA_PATH", "configs/expansion-schema.json")
	v.SetDefault("EXPAND_MAX_FANOUT", 8)
	v.SetDefault("EXPAND_RESOLVE_TIMEOUT_MS", 5000)

	// Bind env vars explicitly so Unmarshal picks them up
	v.BindEnv("PORT")
	v.BindEnv("ENV")
	v.BindEnv("STORAGE")
	v.BindEnv("DATABASE_URL")
	v.BindEnv("DB_MAX_CONNS")
	v.BindEnv("DB_MIN_CONNS")
	v.BindEnv("AUTH_SECRET")
	v.BindEnv("AUTH_ISSUER")
	v.BindEnv("AUTH_JWKS_URL")
	v.BindEnv("AUTH_AUDIENCE")
	v.BindEnv("CORS_ORIGINS")
	v.BindEnv("EXPAND_SCHEMA_PATH")
	v.BindEnv("EXPAND_MAX_FANOUT")
	v.BindEnv("EXPAND_RESOLVE_TIMEOUT_MS")

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

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if cfg.IsDev() {
		log.Println("WARNING: Server is running in DEVELOPMENT mode (ENV=development).")
		log.Println("WARNING: All requests are granted admin access. Do NOT use in production.")
	}

	return cfg, nil
}

func (c *Config) IsDev() bool {
	return c.Env == "development"
}

// Validate checks that the configuration is safe to run. Non-development
// modes must have real authentication configured, since internal
// resolution calls re-run the same checks as external requests.
func (c *Config) Validate() error {
	switch c.Storage {
	case "postgres":
		if c.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL is required when STORAGE is \"postgres\"")
		}
	case "memory":
	default:
		return fmt.Errorf("STORAGE must be \"postgres\" or \"memory\", got %q", c.Storage)
	}

	if !c.IsDev() && c.AuthSecret == "" && c.AuthJWKSURL == "" && c.AuthIssuer == "" {
		return fmt.Errorf("one of AUTH_SECRET, AUTH_JWKS_URL or AUTH_ISSUER must be set when ENV is not development")
	}

	if c.ExpandMaxFanOut < 0 {
		return fmt.Errorf("EXPAND_MAX_FANOUT must not be negative")
	}
	if c.ExpandResolveTimeout < 0 {
		return fmt.Errorf("EXPAND_RESOLVE_TIMEOUT_MS must not be negative")
	}

	return nil
}
