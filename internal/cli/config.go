package cli

import (
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/charmbracelet/log"

	"github.com/matzehuels/docsnap/pkg/errors"
)

// envMongoURI overrides [mongo] uri.
const envMongoURI = "DOCSNAP_MONGO_URI"

// Cache backends.
const (
	backendNull  = "null"
	backendFile  = "file"
	backendRedis = "redis"
)

// Config is the contents of docsnap.toml.
type Config struct {
	Mongo MongoConfig `toml:"mongo"`
	Codec CodecConfig `toml:"codec"`
	Cache CacheConfig `toml:"cache"`
}

// MongoConfig locates the collection read by --from-mongo.
type MongoConfig struct {
	URI        string        `toml:"uri"`
	Database   string        `toml:"database"`
	Collection string        `toml:"collection"`
	Timeout    time.Duration `toml:"timeout"`
}

// CodecConfig holds codec options.
type CodecConfig struct {
	ForceUnicode bool `toml:"force_unicode"`
}

// CacheConfig selects where fetched documents are cached.
type CacheConfig struct {
	Backend   string        `toml:"backend"`
	Dir       string        `toml:"dir"`
	RedisAddr string        `toml:"redis_addr"`
	TTL       time.Duration `toml:"ttl"`
}

// defaultConfig returns the configuration used when no file exists.
func defaultConfig() Config {
	return Config{
		Mongo: MongoConfig{
			URI:     "mongodb://localhost:27017",
			Timeout: 10 * time.Second,
		},
		Codec: CodecConfig{ForceUnicode: true},
		Cache: CacheConfig{
			Backend: backendFile,
			TTL:     time.Hour,
		},
	}
}

// loadConfig reads path over the defaults. An empty path reads the
// default location and tolerates its absence; an explicit path must exist.
func loadConfig(path string, logger *log.Logger) (Config, error) {
	cfg := defaultConfig()

	explicit := path != ""
	if !explicit {
		dir, err := configDir()
		if err == nil {
			path = filepath.Join(dir, appName+".toml")
		}
	}
	if path != "" {
		md, err := toml.DecodeFile(path, &cfg)
		switch {
		case os.IsNotExist(err) && !explicit:
			logger.Debug("no config file", "path", path)
		case err != nil:
			return Config{}, errors.Wrap(errors.ErrCodeInvalidConfig, err, "read %s", path)
		default:
			for _, key := range md.Undecoded() {
				logger.Warn("unknown config key", "key", key.String(), "path", path)
			}
			logger.Debug("loaded config", "path", path)
		}
	}

	if uri := os.Getenv(envMongoURI); uri != "" {
		cfg.Mongo.URI = uri
	}
	return cfg, cfg.Validate()
}

// Validate reports settings that cannot work.
func (c Config) Validate() error {
	if c.Mongo.Timeout <= 0 {
		return errors.New(errors.ErrCodeInvalidConfig, "mongo.timeout must be positive, got %s", c.Mongo.Timeout)
	}
	if c.Mongo.Database != "" {
		if err := errors.ValidateDatabaseName(c.Mongo.Database); err != nil {
			return err
		}
	}
	if c.Mongo.Collection != "" {
		if err := errors.ValidateCollectionName(c.Mongo.Collection); err != nil {
			return err
		}
	}
	switch c.Cache.Backend {
	case backendNull, backendFile:
	case backendRedis:
		if c.Cache.RedisAddr == "" {
			return errors.New(errors.ErrCodeInvalidConfig, "cache.redis_addr is required for the redis backend")
		}
	default:
		return errors.New(errors.ErrCodeInvalidConfig, "unknown cache.backend %q (want null, file or redis)", c.Cache.Backend)
	}
	if c.Cache.TTL < 0 {
		return errors.New(errors.ErrCodeInvalidConfig, "cache.ttl must not be negative")
	}
	return nil
}
