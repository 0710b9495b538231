package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigCreatesDefaultFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "conf", "config.toml")

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig().Server.Port, cfg.Server.Port)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "# TuneDeck Configuration")
	assert.Contains(t, string(data), "library_path")

	// The written file loads back to the same values.
	again, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, cfg, again)
}

func TestLoadConfigParsesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	content := `
[server]
port = "9000"
host = "0.0.0.0"

[music]
provider = "files"
files = ["/a.mp3", "/b.flac"]
rescan_schedule = "0 3 * * *"

[logging]
level = "debug"
format = "json"
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "0.0.0.0:9000", cfg.GetAddress())
	assert.Equal(t, []string{"/a.mp3", "/b.flac"}, cfg.Music.Files)
	assert.Equal(t, "0 3 * * *", cfg.Music.RescanSchedule)
	assert.Equal(t, int64(200*1024), cfg.MinSizeBytes(), "unset keys keep defaults")
}

func TestLoadConfigRejectsBadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte("[server\nport ="), 0o644))

	_, err := LoadConfig(path)
	assert.Error(t, err)
}

func TestApplyEnv(t *testing.T) {
	env := map[string]string{
		"TUNEDECK_SERVER_PORT":             "7070",
		"TUNEDECK_MUSIC_LIBRARY_PATH":      "/srv/music",
		"TUNEDECK_MUSIC_SUPPORTED_FORMATS": ".mp3, .ogg ,",
		"TUNEDECK_MUSIC_WORKERS":           "8",
		"TUNEDECK_MUSIC_WATCH_FOR_CHANGES": "false",
		"TUNEDECK_STORAGE_IN_MEMORY":       "1",
		"TUNEDECK_TUNNEL_AUTH_TOKEN":       "tok",
	}
	lookup := func(k string) (string, bool) {
		v, ok := env[k]
		return v, ok
	}

	cfg := DefaultConfig()
	require.NoError(t, cfg.ApplyEnv(lookup))

	assert.Equal(t, "7070", cfg.Server.Port)
	assert.Equal(t, "/srv/music", cfg.Music.LibraryPath)
	assert.Equal(t, []string{".mp3", ".ogg"}, cfg.Music.SupportedFormats)
	assert.Equal(t, 8, cfg.Music.Workers)
	assert.False(t, cfg.Music.WatchForChanges)
	assert.True(t, cfg.Storage.InMemory)
	assert.Equal(t, "tok", cfg.Tunnel.AuthToken)
	assert.False(t, cfg.Tunnel.Enabled)
	assert.Equal(t, DefaultConfig().Logging, cfg.Logging)
}

func TestApplyEnvReportsBadValues(t *testing.T) {
	lookup := func(k string) (string, bool) {
		switch k {
		case "TUNEDECK_MUSIC_WORKERS":
			return "many", true
		case "TUNEDECK_SERVER_ENABLE_CORS":
			return "sometimes", true
		}
		return "", false
	}

	err := DefaultConfig().ApplyEnv(lookup)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "TUNEDECK_MUSIC_WORKERS")
	assert.Contains(t, err.Error(), "TUNEDECK_SERVER_ENABLE_CORS")
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"defaults", func(*Config) {}, false},
		{"empty port", func(c *Config) { c.Server.Port = "" }, true},
		{"in-memory storage needs no path", func(c *Config) { c.Storage.Path = ""; c.Storage.InMemory = true }, false},
		{"missing storage path", func(c *Config) { c.Storage.Path = "" }, true},
		{"unknown provider", func(c *Config) { c.Music.Provider = "cloud" }, true},
		{"files provider without files", func(c *Config) { c.Music.Provider = "files" }, true},
		{"unsupported provider", func(c *Config) { c.Music.Provider = "unsupported"; c.Music.LibraryPath = "" }, false},
		{"no formats", func(c *Config) { c.Music.SupportedFormats = nil }, true},
		{"negative size", func(c *Config) { c.Music.MinSizeKiB = -1 }, true},
		{"bad schedule", func(c *Config) { c.Music.RescanSchedule = "every tuesday" }, true},
		{"descriptor schedule", func(c *Config) { c.Music.RescanSchedule = "@daily" }, false},
		{"uploads with directory provider", func(c *Config) { c.Music.AllowUploads = true }, false},
		{"uploads with files provider", func(c *Config) {
			c.Music.AllowUploads = true
			c.Music.Provider = "files"
			c.Music.Files = []string{"/a.mp3"}
		}, true},
		{"oauth without tunnel", func(c *Config) { c.Tunnel.OAuthProvider = "github" }, true},
		{"tunnel with oauth", func(c *Config) { c.Tunnel.Enabled = true; c.Tunnel.OAuthProvider = "github" }, false},
		{"bad level", func(c *Config) { c.Logging.Level = "loud" }, true},
		{"bad format", func(c *Config) { c.Logging.Format = "xml" }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestNewLogger(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Logging.Level = "debug"
	cfg.Logging.Format = "json"
	cfg.Logging.File = filepath.Join(t.TempDir(), "tunedeck.log")

	logger, closer, err := cfg.NewLogger()
	require.NoError(t, err)
	assert.Equal(t, logrus.DebugLevel, logger.GetLevel())
	assert.IsType(t, &logrus.JSONFormatter{}, logger.Formatter)

	logger.Info("hello")
	require.NoError(t, closer.Close())

	data, err := os.ReadFile(cfg.Logging.File)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"msg":"hello"`)
}
