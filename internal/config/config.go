// Package config defines the application configuration and its
// file/env/flag plumbing. Values come from config.yaml, environment
// variables with the GPHOTO prefix, and cobra flags, in ascending
// precedence.
package config

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	homedir "github.com/mitchellh/go-homedir"
	"github.com/spf13/viper"
)

// Config holds the entire application configuration.
type Config struct {
	Server  ServerConfig  `mapstructure:"server" yaml:"server"`
	Storage StorageConfig `mapstructure:"storage" yaml:"storage"`
	OAuth   OAuthConfig   `mapstructure:"oauth" yaml:"oauth"`
	Session SessionConfig `mapstructure:"session" yaml:"session"`
	Backup  BackupConfig  `mapstructure:"backup" yaml:"backup"`
	Gallery GalleryConfig `mapstructure:"gallery" yaml:"gallery"`
	Logger  LoggerConfig  `mapstructure:"logger" yaml:"logger"`
}

// ServerConfig configures the local web UI.
type ServerConfig struct {
	ListenAddr      string        `mapstructure:"listen_addr" yaml:"listen_addr"`
	ExternalURL     string        `mapstructure:"external_url" yaml:"external_url"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout"`
}

// StorageConfig configures where media files and the database live.
type StorageConfig struct {
	// Path is the archive root. A leading "~" expands to the user's
	// home directory.
	Path string `mapstructure:"path" yaml:"path"`
	// DatabaseFile is the sqlite file name inside Path.
	DatabaseFile string `mapstructure:"database_file" yaml:"database_file"`
	// ThumbnailsFolder is the per-user folder thumbnails land in.
	ThumbnailsFolder string `mapstructure:"thumbnails_folder" yaml:"thumbnails_folder"`
}

// DatabasePath is the absolute sqlite path under the storage root.
func (s StorageConfig) DatabasePath() string {
	return filepath.Join(s.Path, s.DatabaseFile)
}

// OAuthConfig configures the Google authorization flow.
type OAuthConfig struct {
	// ClientSecretFile is the client_secret.json downloaded from the
	// Google API console.
	ClientSecretFile string   `mapstructure:"client_secret_file" yaml:"client_secret_file"`
	Scopes           []string `mapstructure:"scopes" yaml:"scopes"`
}

// SessionConfig configures the signed login cookie.
type SessionConfig struct {
	// SigningKey signs the session JWT. Local single-user install;
	// when empty a random key is generated at startup and sessions do
	// not survive restarts.
	SigningKey string        `mapstructure:"signing_key" yaml:"signing_key"`
	TTL        time.Duration `mapstructure:"ttl" yaml:"ttl"`
}

// BackupConfig configures the crawler and downloader.
type BackupConfig struct {
	// PageSize is how many media items one library page fetches.
	PageSize int `mapstructure:"page_size" yaml:"page_size"`
	// Concurrency bounds the download worker pool.
	Concurrency int `mapstructure:"concurrency" yaml:"concurrency"`
	// WatchdogTimeout stops a crawl whose progress consumer is gone.
	WatchdogTimeout time.Duration `mapstructure:"watchdog_timeout" yaml:"watchdog_timeout"`
	// RequestsPerSecond throttles Photos API calls.
	RequestsPerSecond float64 `mapstructure:"requests_per_second" yaml:"requests_per_second"`
	// ThumbnailSize is the bounding box requested for thumbnails.
	ThumbnailSize int `mapstructure:"thumbnail_size" yaml:"thumbnail_size"`
}

// GalleryConfig configures gallery pages.
type GalleryConfig struct {
	ItemsPerPage int `mapstructure:"items_per_page" yaml:"items_per_page"`
	// ContainerWidth is the width initial display heights are
	// precomputed for; the browser reflows on its real width.
	ContainerWidth int `mapstructure:"container_width" yaml:"container_width"`
}

// LoggerConfig configures the zap logger.
type LoggerConfig struct {
	Level       string `mapstructure:"level" yaml:"level"`
	Format      string `mapstructure:"format" yaml:"format"`
	ServiceName string `mapstructure:"service_name" yaml:"service_name"`
	AddSource   bool   `mapstructure:"add_source" yaml:"add_source"`

	// File rotation. LogFile empty disables file output.
	LogFile    string `mapstructure:"log_file" yaml:"log_file"`
	MaxSize    int    `mapstructure:"max_size" yaml:"max_size"`
	MaxBackups int    `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAge     int    `mapstructure:"max_age" yaml:"max_age"`
	Compress   bool   `mapstructure:"compress" yaml:"compress"`
}

// SetDefaults registers every default on v. Called before reading the
// config file so partial files work.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("server.listen_addr", "localhost:8080")
	v.SetDefault("server.external_url", "http://localhost:8080")
	v.SetDefault("server.shutdown_timeout", 15*time.Second)

	v.SetDefault("storage.path", "~/gphoto-backup/archive")
	v.SetDefault("storage.database_file", "db.sqlite3")
	v.SetDefault("storage.thumbnails_folder", "thumbnails")

	v.SetDefault("oauth.client_secret_file", "client_secret.json")
	v.SetDefault("oauth.scopes", []string{
		"openid",
		"https://www.googleapis.com/auth/photoslibrary.readonly",
		"https://www.googleapis.com/auth/userinfo.email",
	})

	v.SetDefault("session.ttl", 24*time.Hour)

	v.SetDefault("backup.page_size", 10)
	v.SetDefault("backup.concurrency", 5)
	v.SetDefault("backup.watchdog_timeout", 10*time.Second)
	v.SetDefault("backup.requests_per_second", 2.0)
	v.SetDefault("backup.thumbnail_size", 512)

	v.SetDefault("gallery.items_per_page", 100)
	v.SetDefault("gallery.container_width", 1180)

	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.service_name", "gphoto-backup")
	v.SetDefault("logger.max_size", 10)
	v.SetDefault("logger.max_backups", 3)
	v.SetDefault("logger.max_age", 28)
}

// Load reads configuration from cfgFile (or ./config.yaml when empty)
// and the environment, then unmarshals and normalizes it.
func Load(cfgFile string) (*Config, error) {
	v := viper.GetViper()
	SetDefaults(v)

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.AddConfigPath(".")
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}

	v.SetEnvPrefix("GPHOTO")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		// No config file: defaults plus env vars are enough.
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := cfg.normalize(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// normalize expands paths and rejects values the rest of the program
// cannot work with.
func (c *Config) normalize() error {
	expanded, err := homedir.Expand(c.Storage.Path)
	if err != nil {
		return fmt.Errorf("failed to expand storage path %q: %w", c.Storage.Path, err)
	}
	abs, err := filepath.Abs(expanded)
	if err != nil {
		return fmt.Errorf("failed to resolve storage path %q: %w", expanded, err)
	}
	c.Storage.Path = abs

	if c.Backup.PageSize <= 0 {
		return fmt.Errorf("backup.page_size must be positive, got %d", c.Backup.PageSize)
	}
	if c.Backup.Concurrency <= 0 {
		return fmt.Errorf("backup.concurrency must be positive, got %d", c.Backup.Concurrency)
	}
	if c.Gallery.ItemsPerPage <= 0 {
		return fmt.Errorf("gallery.items_per_page must be positive, got %d", c.Gallery.ItemsPerPage)
	}
	return nil
}
