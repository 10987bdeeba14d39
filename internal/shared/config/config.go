package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"filevault-backend/internal/shared/telemetry"
)

// Defaults mirror the cadences the reconcilers were designed around.
const (
	DefaultSignedURLValidity = 24 * time.Hour
	DefaultRefreshInterval   = time.Hour
	DefaultRefreshLookahead  = 2 * time.Hour
	DefaultRefreshPageSize   = 100
	DefaultOrphanInterval    = 10 * time.Minute
	DefaultLeadInterval      = 5 * time.Minute
	DefaultLeadTTL           = 6 * time.Minute
	DefaultBatchConcurrency  = 10
	DefaultShutdownTimeout   = 30 * time.Second
)

// Config holds application configuration.
type Config struct {
	Port               string
	DatabaseURL        string
	Env                string
	LogLevel           string
	ObjectStoreType    string
	LocalStoreDir      string
	LocalPublicBaseURL string
	LocalSigningKey    string
	AWSRegion          string
	S3Bucket           string
	S3Prefix           string
	S3Endpoint         string
	S3AccessKeyID      string
	S3SecretAccessKey  string
	SSEKMSKeyID        string
	SignedURLValidity  time.Duration
	BatchConcurrency   int
	ShutdownTimeout    time.Duration
	Jobs               JobsConfig
}

// JobsConfig groups the per-reconciler settings.
type JobsConfig struct {
	Refresh RefreshConfig
	Orphans OrphanConfig
	Leads   LeadConfig
}

// RefreshConfig configures the signed URL refresher.
type RefreshConfig struct {
	Interval  time.Duration
	Lookahead time.Duration
	PageSize  int
}

// OrphanConfig configures the orphan object reconciler.
type OrphanConfig struct {
	Interval    time.Duration
	GracePeriod time.Duration
}

// LeadConfig configures the lead expirer.
type LeadConfig struct {
	Interval time.Duration
	TTL      time.Duration
}

// Defaults returns a Config populated with development defaults.
func Defaults() Config {
	return Config{
		Port:               "8080",
		Env:                "dev",
		LogLevel:           "info",
		ObjectStoreType:    "local",
		LocalStoreDir:      "./data",
		LocalPublicBaseURL: "http://localhost:8080/objects",
		SignedURLValidity:  DefaultSignedURLValidity,
		BatchConcurrency:   DefaultBatchConcurrency,
		ShutdownTimeout:    DefaultShutdownTimeout,
		Jobs: JobsConfig{
			Refresh: RefreshConfig{
				Interval:  DefaultRefreshInterval,
				Lookahead: DefaultRefreshLookahead,
				PageSize:  DefaultRefreshPageSize,
			},
			Orphans: OrphanConfig{Interval: DefaultOrphanInterval},
			Leads: LeadConfig{
				Interval: DefaultLeadInterval,
				TTL:      DefaultLeadTTL,
			},
		},
	}
}

// Load builds the configuration from defaults, an optional YAML file named by
// CONFIG_FILE, and finally environment variables.
func Load() (Config, error) {
	// Best-effort load of local env files for dev convenience.
	loadEnvFiles(".env", "cmd/.env")

	cfg := Defaults()
	if path := strings.TrimSpace(os.Getenv("CONFIG_FILE")); path != "" {
		if err := applyFile(&cfg, path); err != nil {
			return Config{}, err
		}
	}
	applyEnv(&cfg)

	if cfg.Env == "production" && cfg.DatabaseURL == "" {
		return Config{}, fmt.Errorf("DATABASE_URL is required in production")
	}
	if cfg.Jobs.Refresh.Lookahead >= cfg.SignedURLValidity {
		return Config{}, fmt.Errorf("refresh lookahead %s must be shorter than signed url validity %s",
			cfg.Jobs.Refresh.Lookahead, cfg.SignedURLValidity)
	}
	return cfg, nil
}

func applyEnv(cfg *Config) {
	cfg.Port = getEnv("PORT", cfg.Port)
	cfg.DatabaseURL = getEnv("DATABASE_URL", cfg.DatabaseURL)
	cfg.Env = normalizeEnv(getEnv("ENV", cfg.Env))
	cfg.LogLevel = getEnv("LOG_LEVEL", cfg.LogLevel)
	cfg.ObjectStoreType = normalizeStoreType(getEnv("OBJECT_STORE", cfg.ObjectStoreType))
	cfg.LocalStoreDir = getEnv("LOCAL_STORE_DIR", cfg.LocalStoreDir)
	cfg.LocalPublicBaseURL = getEnv("LOCAL_PUBLIC_BASE_URL", cfg.LocalPublicBaseURL)
	cfg.LocalSigningKey = getEnv("LOCAL_SIGNING_KEY", cfg.LocalSigningKey)
	cfg.AWSRegion = getEnv("AWS_REGION", cfg.AWSRegion)
	cfg.S3Bucket = getEnv("S3_BUCKET", cfg.S3Bucket)
	cfg.S3Prefix = getEnv("S3_PREFIX", cfg.S3Prefix)
	cfg.S3Endpoint = getEnv("S3_ENDPOINT", cfg.S3Endpoint)
	cfg.S3AccessKeyID = getEnv("S3_ACCESS_KEY_ID", cfg.S3AccessKeyID)
	cfg.S3SecretAccessKey = getEnv("S3_SECRET_ACCESS_KEY", cfg.S3SecretAccessKey)
	cfg.SSEKMSKeyID = getEnv("SSE_KMS_KEY_ID", cfg.SSEKMSKeyID)
	cfg.SignedURLValidity = getDuration("SIGNED_URL_VALIDITY", cfg.SignedURLValidity)
	cfg.BatchConcurrency = getInt("BATCH_CONCURRENCY", cfg.BatchConcurrency)
	cfg.ShutdownTimeout = getDuration("SHUTDOWN_TIMEOUT", cfg.ShutdownTimeout)

	cfg.Jobs.Refresh.Interval = getDuration("REFRESH_INTERVAL", cfg.Jobs.Refresh.Interval)
	cfg.Jobs.Refresh.Lookahead = getDuration("REFRESH_LOOKAHEAD", cfg.Jobs.Refresh.Lookahead)
	cfg.Jobs.Refresh.PageSize = getInt("REFRESH_PAGE_SIZE", cfg.Jobs.Refresh.PageSize)
	cfg.Jobs.Orphans.Interval = getDuration("ORPHAN_INTERVAL", cfg.Jobs.Orphans.Interval)
	cfg.Jobs.Orphans.GracePeriod = getDuration("ORPHAN_GRACE_PERIOD", cfg.Jobs.Orphans.GracePeriod)
	cfg.Jobs.Leads.Interval = getDuration("LEAD_INTERVAL", cfg.Jobs.Leads.Interval)
	cfg.Jobs.Leads.TTL = getDuration("LEAD_TTL", cfg.Jobs.Leads.TTL)
}

func getEnv(key, def string) string {
	if val := strings.TrimSpace(os.Getenv(key)); val != "" {
		return val
	}
	return def
}

func getInt(key string, def int) int {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	val, err := strconv.Atoi(raw)
	if err != nil || val <= 0 {
		telemetry.Warn("config.invalid_int", map[string]any{"key": key, "value": raw})
		return def
	}
	return val
}

func getDuration(key string, def time.Duration) time.Duration {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	val, err := time.ParseDuration(raw)
	if err != nil || val < 0 {
		telemetry.Warn("config.invalid_duration", map[string]any{"key": key, "value": raw})
		return def
	}
	return val
}

func normalizeEnv(raw string) string {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "production", "prod":
		return "production"
	case "staging":
		return "staging"
	case "local":
		return "local"
	case "development", "dev":
		return "dev"
	default:
		return "dev"
	}
}

func normalizeStoreType(raw string) string {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "s3":
		return "s3"
	default:
		return "local"
	}
}
