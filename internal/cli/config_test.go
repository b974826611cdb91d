package cli

import (
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/charmbracelet/log"

	"github.com/matzehuels/docsnap/pkg/errors"
)

func quietLogger() *log.Logger { return newLogger(io.Discard, log.InfoLevel) }

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "docsnap.toml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadConfig(t *testing.T) {
	t.Setenv(envMongoURI, "")
	path := writeConfig(t, `
[mongo]
uri = "mongodb://db:27017"
database = "app"
collection = "invoices"
timeout = "3s"

[codec]
force_unicode = false

[cache]
backend = "redis"
redis_addr = "cache:6379"
ttl = "15m"
`)

	cfg, err := loadConfig(path, quietLogger())
	if err != nil {
		t.Fatalf("loadConfig() error: %v", err)
	}
	if cfg.Mongo.URI != "mongodb://db:27017" || cfg.Mongo.Database != "app" || cfg.Mongo.Collection != "invoices" {
		t.Errorf("Mongo = %+v", cfg.Mongo)
	}
	if cfg.Mongo.Timeout != 3*time.Second {
		t.Errorf("Timeout = %v, want 3s", cfg.Mongo.Timeout)
	}
	if cfg.Codec.ForceUnicode {
		t.Error("ForceUnicode = true, want false")
	}
	if cfg.Cache.Backend != backendRedis || cfg.Cache.RedisAddr != "cache:6379" || cfg.Cache.TTL != 15*time.Minute {
		t.Errorf("Cache = %+v", cfg.Cache)
	}
}

func TestLoadConfigDefaultsAndEnv(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	t.Setenv("HOME", t.TempDir())
	t.Setenv(envMongoURI, "mongodb://env:27017")

	cfg, err := loadConfig("", quietLogger())
	if err != nil {
		t.Fatalf("loadConfig() error: %v", err)
	}
	if cfg.Mongo.URI != "mongodb://env:27017" {
		t.Errorf("URI = %q, want the environment override", cfg.Mongo.URI)
	}
	if cfg.Cache.Backend != backendFile || !cfg.Codec.ForceUnicode {
		t.Errorf("cfg = %+v, want defaults", cfg)
	}
}

func TestLoadConfigMissingExplicitFile(t *testing.T) {
	_, err := loadConfig(filepath.Join(t.TempDir(), "nope.toml"), quietLogger())
	if !errors.Is(err, errors.ErrCodeInvalidConfig) {
		t.Errorf("loadConfig() error = %v, want %s", err, errors.ErrCodeInvalidConfig)
	}
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"defaults", func(*Config) {}, false},
		{"zero timeout", func(c *Config) { c.Mongo.Timeout = 0 }, true},
		{"bad collection", func(c *Config) { c.Mongo.Collection = "a$b" }, true},
		{"bad database", func(c *Config) { c.Mongo.Database = "a/b" }, true},
		{"unknown backend", func(c *Config) { c.Cache.Backend = "memcached" }, true},
		{"redis without addr", func(c *Config) { c.Cache.Backend = backendRedis }, true},
		{"null backend", func(c *Config) { c.Cache.Backend = backendNull }, false},
		{"negative ttl", func(c *Config) { c.Cache.TTL = -time.Second }, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := defaultConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
