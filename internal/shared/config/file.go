package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// fileConfig is the YAML shape of CONFIG_FILE. Durations are Go duration strings, e.g. "10m".
type fileConfig struct {
	DatabaseURL       string `yaml:"database_url"`
	ObjectStore       string `yaml:"object_store"`
	SignedURLValidity string `yaml:"signed_url_validity"`
	BatchConcurrency  int    `yaml:"batch_concurrency"`
	ShutdownTimeout   string `yaml:"shutdown_timeout"`
	LogLevel          string `yaml:"log_level"`
	S3                struct {
		Region   string `yaml:"region"`
		Bucket   string `yaml:"bucket"`
		Prefix   string `yaml:"prefix"`
		Endpoint string `yaml:"endpoint"`
	} `yaml:"s3"`
	Jobs struct {
		Refresh struct {
			Interval  string `yaml:"interval"`
			Lookahead string `yaml:"lookahead"`
			PageSize  int    `yaml:"page_size"`
		} `yaml:"refresh"`
		Orphans struct {
			Interval    string `yaml:"interval"`
			GracePeriod string `yaml:"grace_period"`
		} `yaml:"orphans"`
		Leads struct {
			Interval string `yaml:"interval"`
			TTL      string `yaml:"ttl"`
		} `yaml:"leads"`
	} `yaml:"jobs"`
}

func applyFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return fmt.Errorf("parse config file: %w", err)
	}

	setString(&cfg.DatabaseURL, fc.DatabaseURL)
	if fc.ObjectStore != "" {
		cfg.ObjectStoreType = normalizeStoreType(fc.ObjectStore)
	}
	setString(&cfg.LogLevel, fc.LogLevel)
	setString(&cfg.AWSRegion, fc.S3.Region)
	setString(&cfg.S3Bucket, fc.S3.Bucket)
	setString(&cfg.S3Prefix, fc.S3.Prefix)
	setString(&cfg.S3Endpoint, fc.S3.Endpoint)
	setInt(&cfg.BatchConcurrency, fc.BatchConcurrency)
	setInt(&cfg.Jobs.Refresh.PageSize, fc.Jobs.Refresh.PageSize)

	durations := []struct {
		name string
		raw  string
		dst  *time.Duration
	}{
		{"signed_url_validity", fc.SignedURLValidity, &cfg.SignedURLValidity},
		{"shutdown_timeout", fc.ShutdownTimeout, &cfg.ShutdownTimeout},
		{"jobs.refresh.interval", fc.Jobs.Refresh.Interval, &cfg.Jobs.Refresh.Interval},
		{"jobs.refresh.lookahead", fc.Jobs.Refresh.Lookahead, &cfg.Jobs.Refresh.Lookahead},
		{"jobs.orphans.interval", fc.Jobs.Orphans.Interval, &cfg.Jobs.Orphans.Interval},
		{"jobs.orphans.grace_period", fc.Jobs.Orphans.GracePeriod, &cfg.Jobs.Orphans.GracePeriod},
		{"jobs.leads.interval", fc.Jobs.Leads.Interval, &cfg.Jobs.Leads.Interval},
		{"jobs.leads.ttl", fc.Jobs.Leads.TTL, &cfg.Jobs.Leads.TTL},
	}
	for _, d := range durations {
		if d.raw == "" {
			continue
		}
		val, err := time.ParseDuration(d.raw)
		if err != nil {
			return fmt.Errorf("config file %s: %w", d.name, err)
		}
		*d.dst = val
	}
	return nil
}

func setString(dst *string, val string) {
	if val != "" {
		*dst = val
	}
}

func setInt(dst *int, val int) {
	if val > 0 {
		*dst = val
	}
}
