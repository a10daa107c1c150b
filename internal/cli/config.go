package cli

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"codeberg.org/snonux/virtualtourist/internal/image"
	"codeberg.org/snonux/virtualtourist/internal/store"
)

// EnvPrefix is prepended to every environment variable, e.g.
// VIRTUALTOURIST_FLICKR_API_KEY for flickr.api_key
const EnvPrefix = "VIRTUALTOURIST"

// Config is the complete application configuration
type Config struct {
	Flickr   FlickrConfig   `mapstructure:"flickr"`
	Download DownloadConfig `mapstructure:"download"`
	Store    store.Config   `mapstructure:"store"`
	Server   ServerConfig   `mapstructure:"server"`
	Log      LogConfig      `mapstructure:"log"`
}

// FlickrConfig holds the photo search settings
type FlickrConfig struct {
	APIKey            string        `mapstructure:"api_key"`
	BaseURL           string        `mapstructure:"base_url"`
	PerPage           int           `mapstructure:"per_page"`
	UpperPageLimit    int           `mapstructure:"upper_page_limit"`
	Accuracy          int           `mapstructure:"accuracy"`
	SafeSearch        string        `mapstructure:"safe_search"`
	HalfWidth         float64       `mapstructure:"half_width"`
	HalfHeight        float64       `mapstructure:"half_height"`
	RequestsPerSecond float64       `mapstructure:"requests_per_second"`
	Burst             int           `mapstructure:"burst"`
	Timeout           time.Duration `mapstructure:"timeout"`
	BreakerThreshold  uint32        `mapstructure:"breaker_threshold"`
	BreakerCooldown   time.Duration `mapstructure:"breaker_cooldown"`
}

// DownloadConfig holds the image download settings
type DownloadConfig struct {
	Timeout      time.Duration `mapstructure:"timeout"`
	MaxSizeBytes int64         `mapstructure:"max_size_bytes"`
	Concurrency  int           `mapstructure:"concurrency"`
}

// ServerConfig holds the HTTP server settings
type ServerConfig struct {
	Address string `mapstructure:"address"`
}

// LogConfig selects log level and format
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// SearchOptions converts the config into photo search options
func (c FlickrConfig) SearchOptions() *image.SearchOptions {
	opts := image.DefaultSearchOptions(c.APIKey)
	opts.PerPage = c.PerPage
	opts.UpperPageLimit = c.UpperPageLimit
	opts.Accuracy = c.Accuracy
	opts.SafeSearch = c.SafeSearch
	opts.HalfWidth = c.HalfWidth
	opts.HalfHeight = c.HalfHeight
	return opts
}

// DefaultStatePath returns the directory holding the database and exports
func DefaultStatePath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return filepath.Join(home, ".local", "state", "virtualtourist")
}

// SetDefaults registers every configuration key with its default value.
// Keys without a default are invisible to environment lookups on Unmarshal.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("flickr.api_key", "")
	v.SetDefault("flickr.base_url", "https://api.flickr.com/services/rest/")
	v.SetDefault("flickr.per_page", image.DefaultPerPage)
	v.SetDefault("flickr.upper_page_limit", image.DefaultUpperPageLimit)
	v.SetDefault("flickr.accuracy", 16)
	v.SetDefault("flickr.safe_search", "1")
	v.SetDefault("flickr.half_width", 1.0)
	v.SetDefault("flickr.half_height", 1.0)
	v.SetDefault("flickr.requests_per_second", 5.0)
	v.SetDefault("flickr.burst", 10)
	v.SetDefault("flickr.timeout", 30*time.Second)
	v.SetDefault("flickr.breaker_threshold", 5)
	v.SetDefault("flickr.breaker_cooldown", 30*time.Second)

	v.SetDefault("download.timeout", 30*time.Second)
	v.SetDefault("download.max_size_bytes", 10*1024*1024)
	v.SetDefault("download.concurrency", 8)

	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.path", filepath.Join(DefaultStatePath(), "virtualtourist.db"))
	v.SetDefault("store.mongo_uri", "mongodb://localhost:27017")
	v.SetDefault("store.mongo_database", "virtualtourist")

	v.SetDefault("server.address", ":8080")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")
}

// InitConfig loads .env, the config file and the environment into v. A
// missing default config file is fine, an explicitly named one is not.
func InitConfig(v *viper.Viper, cfgFile string) error {
	// .env is optional
	_ = godotenv.Load()

	SetDefaults(v)

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(home)
		}
		v.AddConfigPath(".")
		v.SetConfigType("yaml")
		v.SetConfigName(".virtualtourist")
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if cfgFile != "" || !errors.As(err, &notFound) {
			return fmt.Errorf("failed to read config: %w", err)
		}
	}
	return nil
}

// LoadConfig unmarshals v into a Config and checks it
func LoadConfig(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	switch cfg.Store.Driver {
	case "sqlite", "mongo", "memory":
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.Store.Driver)
	}
	if cfg.Flickr.PerPage <= 0 {
		return nil, fmt.Errorf("flickr.per_page must be positive")
	}
	if cfg.Flickr.UpperPageLimit <= 0 {
		return nil, fmt.Errorf("flickr.upper_page_limit must be positive")
	}
	if cfg.Download.Concurrency <= 0 {
		return nil, fmt.Errorf("download.concurrency must be positive")
	}
	return &cfg, nil
}
