package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Config holds the application configuration loaded from files and environment variables.
type Config struct {
	AppName        string `mapstructure:"app_name"`
	Env            string `mapstructure:"app_env"`
	LogLevel       string `mapstructure:"log_level"`
	SourcesFile    string `mapstructure:"sources_file"`
	PublishersFile string `mapstructure:"publishers_file"`
	UserAgent      string `mapstructure:"user_agent"`
	Timezone       string `mapstructure:"timezone"`

	StorageType            string        `mapstructure:"storage_type"`
	BBoltPath              string        `mapstructure:"bbolt_path"`
	StorageTTLSeconds      int64         `mapstructure:"storage_ttl_seconds"`
	StorageCleanupSeconds  int64         `mapstructure:"storage_cleanup_interval_seconds"`
	StorageTTL             time.Duration `mapstructure:"-"`
	StorageCleanupInterval time.Duration `mapstructure:"-"`

	WorkerCount              int           `mapstructure:"worker_count"`
	PageConcurrency          int           `mapstructure:"page_concurrency"`
	NavigationTimeoutSeconds int64         `mapstructure:"navigation_timeout_seconds"`
	SettleTimeoutSeconds     int64         `mapstructure:"settle_timeout_seconds"`
	NavigationTimeout        time.Duration `mapstructure:"-"`
	SettleTimeout            time.Duration `mapstructure:"-"`
	MaxListingPages          int           `mapstructure:"max_listing_pages"`
	MaxListingItems          int           `mapstructure:"max_listing_items"`

	BreakerFailureThreshold   int           `mapstructure:"breaker_failure_threshold"`
	BreakerRecoverySeconds    int64         `mapstructure:"breaker_recovery_seconds"`
	BreakerMaxRecoverySeconds int64         `mapstructure:"breaker_max_recovery_seconds"`
	BreakerRecovery           time.Duration `mapstructure:"-"`
	BreakerMaxRecovery        time.Duration `mapstructure:"-"`
	DriftRatio                float64       `mapstructure:"drift_ratio"`

	MetricsIntervalSeconds int64         `mapstructure:"metrics_interval_seconds"`
	MetricsInterval        time.Duration `mapstructure:"-"`
}

// Load reads configuration from environment variables and config files.
func Load() (*Config, error) {
	return LoadFlags(nil)
}

// LoadFlags is Load with command-line overrides from fs. A flag only takes
// effect when it was set, in which case it wins over the environment.
func LoadFlags(fs *pflag.FlagSet) (*Config, error) {
	_ = godotenv.Load("configs/.env")

	v := viper.New()
	setDefaults(v)
	v.AutomaticEnv()
	if fs != nil {
		if err := bindFlags(v, fs); err != nil {
			return nil, err
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.finalize(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// BindFlags registers the override flags understood by LoadFlags.
func BindFlags(fs *pflag.FlagSet) {
	fs.String("sources-file", "", "source registry file (yaml or json)")
	fs.String("publishers-file", "", "publisher registry file (yaml or json)")
	fs.String("storage-type", "", "article history backend: bbolt, memory or none")
	fs.String("bbolt-path", "", "bbolt database path")
	fs.String("log-level", "", "debug, info, warn or error")
	fs.Int("worker-count", 0, "concurrent source cycles")
	fs.Int("page-concurrency", 0, "concurrent article pages per cycle")
}

// bindFlags maps each flag onto the config key of the same name with dashes
// replaced by underscores. Flags that name no config key are ignored.
func bindFlags(v *viper.Viper, fs *pflag.FlagSet) error {
	known := make(map[string]bool)
	for _, key := range v.AllKeys() {
		known[key] = true
	}
	var errs []error
	fs.VisitAll(func(f *pflag.Flag) {
		key := strings.ReplaceAll(f.Name, "-", "_")
		if !known[key] {
			return
		}
		if err := v.BindPFlag(key, f); err != nil {
			errs = append(errs, fmt.Errorf("bind flag %s: %w", f.Name, err))
		}
	})
	return errors.Join(errs...)
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app_name", "samvad-article-pipeline")
	v.SetDefault("app_env", "development")
	v.SetDefault("log_level", "info")
	v.SetDefault("sources_file", "./configs/sources.yaml")
	v.SetDefault("publishers_file", "./configs/publishers.yaml")
	v.SetDefault("user_agent", "samvad-article-pipeline/1.0 (+https://github.com/samvad-hq)")
	v.SetDefault("timezone", "UTC")
	v.SetDefault("storage_type", "bbolt")
	v.SetDefault("bbolt_path", "./data/pipeline.db")
	v.SetDefault("storage_ttl_seconds", int64((14*24*time.Hour)/time.Second))
	v.SetDefault("storage_cleanup_interval_seconds", int64((12*time.Hour)/time.Second))
	v.SetDefault("worker_count", 4)
	v.SetDefault("page_concurrency", 2)
	v.SetDefault("navigation_timeout_seconds", 30)
	v.SetDefault("settle_timeout_seconds", 10)
	v.SetDefault("max_listing_pages", 10)
	v.SetDefault("max_listing_items", 500)
	v.SetDefault("breaker_failure_threshold", 3)
	v.SetDefault("breaker_recovery_seconds", int64((15*time.Minute)/time.Second))
	v.SetDefault("breaker_max_recovery_seconds", int64((24*time.Hour)/time.Second))
	v.SetDefault("drift_ratio", 0.5)
	v.SetDefault("metrics_interval_seconds", 60)
}

func (cfg *Config) finalize() error {
	if cfg.StorageTTLSeconds <= 0 {
		return fmt.Errorf("invalid storage_ttl_seconds (must be positive seconds)")
	}
	if cfg.StorageCleanupSeconds <= 0 {
		return fmt.Errorf("invalid storage_cleanup_interval_seconds (must be positive seconds)")
	}
	cfg.StorageTTL = time.Duration(cfg.StorageTTLSeconds) * time.Second
	cfg.StorageCleanupInterval = time.Duration(cfg.StorageCleanupSeconds) * time.Second

	if cfg.WorkerCount <= 0 {
		return fmt.Errorf("invalid worker_count (must be positive)")
	}
	if cfg.PageConcurrency <= 0 {
		return fmt.Errorf("invalid page_concurrency (must be positive)")
	}
	if cfg.NavigationTimeoutSeconds <= 0 || cfg.SettleTimeoutSeconds <= 0 {
		return fmt.Errorf("invalid navigation/settle timeout (must be positive seconds)")
	}
	cfg.NavigationTimeout = time.Duration(cfg.NavigationTimeoutSeconds) * time.Second
	cfg.SettleTimeout = time.Duration(cfg.SettleTimeoutSeconds) * time.Second

	if cfg.MaxListingPages <= 0 {
		return fmt.Errorf("invalid max_listing_pages (must be positive)")
	}

	if cfg.BreakerFailureThreshold <= 0 {
		return fmt.Errorf("invalid breaker_failure_threshold (must be positive)")
	}
	if cfg.BreakerRecoverySeconds <= 0 {
		return fmt.Errorf("invalid breaker_recovery_seconds (must be positive seconds)")
	}
	if cfg.BreakerMaxRecoverySeconds < cfg.BreakerRecoverySeconds {
		return fmt.Errorf("breaker_max_recovery_seconds must be >= breaker_recovery_seconds")
	}
	cfg.BreakerRecovery = time.Duration(cfg.BreakerRecoverySeconds) * time.Second
	cfg.BreakerMaxRecovery = time.Duration(cfg.BreakerMaxRecoverySeconds) * time.Second

	if cfg.DriftRatio < 0 || cfg.DriftRatio > 1 {
		return fmt.Errorf("invalid drift_ratio (must be within [0,1])")
	}

	if cfg.MetricsIntervalSeconds <= 0 {
		return fmt.Errorf("invalid metrics_interval_seconds (must be positive seconds)")
	}
	cfg.MetricsInterval = time.Duration(cfg.MetricsIntervalSeconds) * time.Second

	if _, err := time.LoadLocation(cfg.Timezone); err != nil {
		return fmt.Errorf("invalid timezone %q: %w", cfg.Timezone, err)
	}
	return nil
}

// Location returns the configured scheduling timezone.
func (cfg *Config) Location() *time.Location {
	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}
