package config

import (
	"fmt"
	"log"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	StoreFile     = "file"
	StoreR2       = "r2"
	StorePostgres = "postgres"
)

type Config struct {
	Port      string
	StaticDir string
	DataDir   string

	StoreDriver string
	DatabaseURL string

	R2AccountID       string
	R2AccessKeyID     string
	R2AccessKeySecret string
	R2Bucket          string
	R2Prefix          string

	APIToken       string
	AllowedOrigins string

	Retention     time.Duration
	SweepInterval time.Duration
}

// Load reads .env (if any) and then the process environment.
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Println("⚠️  No .env file found, reading environment variables directly")
	}
	return FromViper(newViper())
}

func newViper() *viper.Viper {
	v := viper.New()
	v.AutomaticEnv()

	v.SetDefault("PORT", "3000")
	v.SetDefault("STATIC_DIR", "./public")
	v.SetDefault("STORE_DRIVER", StoreFile)
	v.SetDefault("R2_PREFIX", "")
	v.SetDefault("ALLOWED_ORIGINS", "*")
	v.SetDefault("DUEL_RETENTION", "168h")
	v.SetDefault("DUEL_SWEEP_INTERVAL", "1h")
	return v
}

// FromViper builds a Config from an already populated viper instance.
func FromViper(v *viper.Viper) (Config, error) {
	cfg := Config{
		Port:              v.GetString("PORT"),
		StaticDir:         v.GetString("STATIC_DIR"),
		DataDir:           v.GetString("DATA_DIR"),
		StoreDriver:       strings.ToLower(strings.TrimSpace(v.GetString("STORE_DRIVER"))),
		DatabaseURL:       v.GetString("DATABASE_URL"),
		R2AccountID:       v.GetString("CLOUDFLARE_ACCOUNT_ID"),
		R2AccessKeyID:     v.GetString("R2_ACCESS_KEY_ID"),
		R2AccessKeySecret: v.GetString("R2_ACCESS_KEY_SECRET"),
		R2Bucket:          v.GetString("R2_BUCKET_NAME"),
		R2Prefix:          v.GetString("R2_PREFIX"),
		APIToken:          v.GetString("DUEL_API_TOKEN"),
		AllowedOrigins:    v.GetString("ALLOWED_ORIGINS"),
	}

	// serverless hosts only allow writes under /tmp
	if cfg.DataDir == "" {
		if v.GetString("VERCEL") != "" {
			cfg.DataDir = filepath.Join("/tmp", "data")
		} else {
			cfg.DataDir = "./.data"
		}
	}

	var err error
	if cfg.Retention, err = time.ParseDuration(v.GetString("DUEL_RETENTION")); err != nil {
		return Config{}, fmt.Errorf("invalid DUEL_RETENTION: %w", err)
	}
	if cfg.SweepInterval, err = time.ParseDuration(v.GetString("DUEL_SWEEP_INTERVAL")); err != nil {
		return Config{}, fmt.Errorf("invalid DUEL_SWEEP_INTERVAL: %w", err)
	}
	if cfg.SweepInterval <= 0 {
		return Config{}, fmt.Errorf("DUEL_SWEEP_INTERVAL must be positive")
	}

	switch cfg.StoreDriver {
	case StoreFile, StoreR2:
	case StorePostgres:
		if cfg.DatabaseURL == "" {
			return Config{}, fmt.Errorf("DATABASE_URL is required for the postgres store")
		}
	default:
		return Config{}, fmt.Errorf("unknown STORE_DRIVER %q", cfg.StoreDriver)
	}

	return cfg, nil
}
