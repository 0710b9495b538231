package config

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

// EnvPrefix prefixes every environment override, e.g. TUNEDECK_SERVER_PORT.
const EnvPrefix = "TUNEDECK_"

// Config represents the application configuration
type Config struct {
	Server  ServerConfig  `toml:"server"`
	Storage StorageConfig `toml:"storage"`
	Music   MusicConfig   `toml:"music"`
	Logging LoggingConfig `toml:"logging"`
	Notices NoticesConfig `toml:"notices"`
	Tunnel  TunnelConfig  `toml:"tunnel"`
}

// ServerConfig contains server-related configuration
type ServerConfig struct {
	Port            string   `toml:"port"`
	Host            string   `toml:"host"`
	StaticDir       string   `toml:"static_dir"`
	EnableCORS      bool     `toml:"enable_cors"`
	AllowedOrigins  []string `toml:"allowed_origins"`
	ReadTimeout     int      `toml:"read_timeout_seconds"`
	ShutdownTimeout int      `toml:"shutdown_timeout_seconds"`
	EnableMetrics   bool     `toml:"enable_metrics"`
}

// StorageConfig contains catalog storage configuration
type StorageConfig struct {
	Path string `toml:"path"`
	// InMemory skips the database file entirely; nothing survives a restart.
	InMemory bool `toml:"in_memory"`
}

// MusicConfig contains music library configuration
type MusicConfig struct {
	LibraryPath        string   `toml:"library_path"`
	Provider           string   `toml:"provider"` // directory, files or unsupported
	Files              []string `toml:"files"`
	SupportedFormats   []string `toml:"supported_formats"`
	MinSizeKiB         int      `toml:"min_size_kib"`
	MinDurationSeconds int      `toml:"min_duration_seconds"`
	Workers            int      `toml:"workers"`
	WatchForChanges    bool     `toml:"watch_for_changes"`
	ScanOnStartup      bool     `toml:"scan_on_startup"`
	RescanSchedule     string   `toml:"rescan_schedule"` // cron spec, empty disables
	AllowUploads       bool     `toml:"allow_uploads"`
	MaxUploadSizeMB    int64    `toml:"max_upload_size_mb"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level          string `toml:"level"`
	Format         string `toml:"format"`
	File           string `toml:"file"`
	RequestLogging bool   `toml:"request_logging"`
}

// NoticesConfig sizes the in-memory notification feed
type NoticesConfig struct {
	Retain int `toml:"retain"`
}

// TunnelConfig contains ngrok tunnel configuration for reaching the library
// from outside the local network.
type TunnelConfig struct {
	Enabled   bool   `toml:"enabled"`
	AuthToken string `toml:"auth_token"`
	Domain    string `toml:"domain"`
	// OAuthProvider puts an ngrok OAuth gate in front of the tunnel when set,
	// e.g. "google" or "github".
	OAuthProvider string `toml:"oauth_provider"`
}

// DefaultConfig returns a configuration with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            "8080",
			Host:            "127.0.0.1",
			StaticDir:       "./static",
			EnableCORS:      true,
			AllowedOrigins:  []string{"*"},
			ReadTimeout:     30,
			ShutdownTimeout: 10,
			EnableMetrics:   true,
		},
		Storage: StorageConfig{
			Path: "./tunedeck.db",
		},
		Music: MusicConfig{
			LibraryPath:        "./music",
			Provider:           "directory",
			SupportedFormats:   []string{".flac", ".mp3", ".wav", ".m4a"},
			MinSizeKiB:         200,
			MinDurationSeconds: 10,
			Workers:            4,
			WatchForChanges:    true,
			ScanOnStartup:      true,
			MaxUploadSizeMB:    200,
		},
		Logging: LoggingConfig{
			Level:          "info",
			Format:         "text",
			RequestLogging: true,
		},
		Notices: NoticesConfig{
			Retain: 50,
		},
	}
}

// LoadConfig loads configuration from a TOML file, then applies a .env file
// and TUNEDECK_* environment overrides. A missing config file is created
// with defaults.
func LoadConfig(configPath string) (*Config, error) {
	cfg := DefaultConfig()

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		if err := cfg.SaveToFile(configPath); err != nil {
			return nil, fmt.Errorf("failed to create default config file: %w", err)
		}
		fmt.Printf("Created default configuration file at: %s\n", configPath)
	} else if _, err := toml.DecodeFile(configPath, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	// A missing .env is normal.
	_ = godotenv.Load(filepath.Join(filepath.Dir(configPath), ".env"))

	if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
		return nil, fmt.Errorf("invalid environment override: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// ApplyEnv overrides fields from TUNEDECK_* variables read through lookup.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(EnvPrefix + key); ok {
			*dst = v
		}
	}
	list := func(key string, dst *[]string) {
		if v, ok := lookup(EnvPrefix + key); ok {
			*dst = splitList(v)
		}
	}
	var errs []string
	integer := func(key string, dst *int) {
		if v, ok := lookup(EnvPrefix + key); ok {
			n, err := strconv.Atoi(strings.TrimSpace(v))
			if err != nil {
				errs = append(errs, fmt.Sprintf("%s%s: %v", EnvPrefix, key, err))
				return
			}
			*dst = n
		}
	}
	boolean := func(key string, dst *bool) {
		if v, ok := lookup(EnvPrefix + key); ok {
			b, err := strconv.ParseBool(strings.TrimSpace(v))
			if err != nil {
				errs = append(errs, fmt.Sprintf("%s%s: %v", EnvPrefix, key, err))
				return
			}
			*dst = b
		}
	}

	str("SERVER_PORT", &c.Server.Port)
	str("SERVER_HOST", &c.Server.Host)
	str("SERVER_STATIC_DIR", &c.Server.StaticDir)
	boolean("SERVER_ENABLE_CORS", &c.Server.EnableCORS)
	list("SERVER_ALLOWED_ORIGINS", &c.Server.AllowedOrigins)
	boolean("SERVER_ENABLE_METRICS", &c.Server.EnableMetrics)

	str("STORAGE_PATH", &c.Storage.Path)
	boolean("STORAGE_IN_MEMORY", &c.Storage.InMemory)

	str("MUSIC_LIBRARY_PATH", &c.Music.LibraryPath)
	str("MUSIC_PROVIDER", &c.Music.Provider)
	list("MUSIC_FILES", &c.Music.Files)
	list("MUSIC_SUPPORTED_FORMATS", &c.Music.SupportedFormats)
	integer("MUSIC_MIN_SIZE_KIB", &c.Music.MinSizeKiB)
	integer("MUSIC_MIN_DURATION_SECONDS", &c.Music.MinDurationSeconds)
	integer("MUSIC_WORKERS", &c.Music.Workers)
	boolean("MUSIC_WATCH_FOR_CHANGES", &c.Music.WatchForChanges)
	boolean("MUSIC_SCAN_ON_STARTUP", &c.Music.ScanOnStartup)
	str("MUSIC_RESCAN_SCHEDULE", &c.Music.RescanSchedule)
	boolean("MUSIC_ALLOW_UPLOADS", &c.Music.AllowUploads)

	str("LOG_LEVEL", &c.Logging.Level)
	str("LOG_FORMAT", &c.Logging.Format)
	str("LOG_FILE", &c.Logging.File)
	boolean("LOG_REQUESTS", &c.Logging.RequestLogging)

	boolean("TUNNEL_ENABLED", &c.Tunnel.Enabled)
	str("TUNNEL_AUTH_TOKEN", &c.Tunnel.AuthToken)
	str("TUNNEL_DOMAIN", &c.Tunnel.Domain)
	str("TUNNEL_OAUTH_PROVIDER", &c.Tunnel.OAuthProvider)

	if len(errs) > 0 {
		return fmt.Errorf("%s", strings.Join(errs, "; "))
	}
	return nil
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// SaveToFile saves the configuration to a TOML file
func (c *Config) SaveToFile(configPath string) error {
	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	file, err := os.Create(configPath)
	if err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}
	defer file.Close()

	header := `# TuneDeck Configuration
# Values here can be overridden with TUNEDECK_* environment variables or a .env
# file next to this one, e.g. TUNEDECK_MUSIC_LIBRARY_PATH=/srv/music.

`
	if _, err := file.WriteString(header); err != nil {
		return fmt.Errorf("failed to write config header: %w", err)
	}

	encoder := toml.NewEncoder(file)
	if err := encoder.Encode(c); err != nil {
		return fmt.Errorf("failed to encode config to TOML: %w", err)
	}

	return nil
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Server.Port == "" {
		return fmt.Errorf("server port cannot be empty")
	}
	if c.Server.Host == "" {
		return fmt.Errorf("server host cannot be empty")
	}
	if c.Server.ReadTimeout < 0 {
		return fmt.Errorf("server read timeout must be positive")
	}

	if c.Storage.Path == "" && !c.Storage.InMemory {
		return fmt.Errorf("storage path cannot be empty")
	}

	switch c.Music.Provider {
	case "directory":
		if c.Music.LibraryPath == "" {
			return fmt.Errorf("music library path cannot be empty")
		}
	case "files":
		if len(c.Music.Files) == 0 {
			return fmt.Errorf("the files provider needs at least one entry in music.files")
		}
	case "unsupported":
	default:
		return fmt.Errorf("invalid music provider: %s (must be directory, files, or unsupported)", c.Music.Provider)
	}
	if len(c.Music.SupportedFormats) == 0 {
		return fmt.Errorf("at least one supported audio format must be specified")
	}
	if c.Music.MinSizeKiB < 0 || c.Music.MinDurationSeconds < 0 {
		return fmt.Errorf("music minimum size and duration cannot be negative")
	}
	if c.Music.Workers < 0 {
		return fmt.Errorf("music workers cannot be negative")
	}
	if c.Music.AllowUploads && c.Music.Provider != "directory" {
		return fmt.Errorf("uploads need the directory provider")
	}
	if c.Music.MaxUploadSizeMB < 0 {
		return fmt.Errorf("max upload size cannot be negative")
	}
	if c.Music.RescanSchedule != "" {
		if _, err := cron.ParseStandard(c.Music.RescanSchedule); err != nil {
			return fmt.Errorf("invalid rescan schedule %q: %w", c.Music.RescanSchedule, err)
		}
	}

	if c.Tunnel.OAuthProvider != "" && !c.Tunnel.Enabled {
		return fmt.Errorf("tunnel oauth provider is set but the tunnel is disabled")
	}

	if _, err := logrus.ParseLevel(c.Logging.Level); err != nil {
		return fmt.Errorf("invalid log level: %s (must be debug, info, warn, or error)", c.Logging.Level)
	}
	validLogFormats := map[string]bool{
		"text": true, "json": true,
	}
	if !validLogFormats[c.Logging.Format] {
		return fmt.Errorf("invalid log format: %s (must be text or json)", c.Logging.Format)
	}

	return nil
}

// GetAddress returns the full server address
func (c *Config) GetAddress() string {
	return c.Server.Host + ":" + c.Server.Port
}

// MinSizeBytes returns the scanner's size threshold in bytes
func (c *Config) MinSizeBytes() int64 {
	return int64(c.Music.MinSizeKiB) * 1024
}

// NewLogger builds the application logger. The returned closer releases the
// log file, if one is configured.
func (c *Config) NewLogger() (*logrus.Logger, io.Closer, error) {
	logger := logrus.New()

	level, err := logrus.ParseLevel(c.Logging.Level)
	if err != nil {
		return nil, nil, err
	}
	logger.SetLevel(level)

	if c.Logging.Format == "json" {
		logger.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}

	if c.Logging.File == "" {
		return logger, io.NopCloser(nil), nil
	}
	f, err := os.OpenFile(c.Logging.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open log file: %w", err)
	}
	logger.SetOutput(io.MultiWriter(os.Stderr, f))
	return logger, f, nil
}
