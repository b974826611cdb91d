package cli

import (
	"io"
	"os"
	"path/filepath"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/matzehuels/docsnap/pkg/buildinfo"
	"github.com/matzehuels/docsnap/pkg/cache"
	"github.com/matzehuels/docsnap/pkg/observability"
)

// appName is the application name used for directories and display.
const appName = "docsnap"

// Log levels exported for use in main.go.
const (
	LogDebug = log.DebugLevel
	LogInfo  = log.InfoLevel
)

// =============================================================================
// CLI - Central CLI State
// =============================================================================

// CLI holds shared state for all commands.
type CLI struct {
	Logger *log.Logger

	configPath string
	config     Config
}

// New creates a new CLI instance with a default logger.
func New(w io.Writer, level log.Level) *CLI {
	return &CLI{
		Logger: newLogger(w, level),
		config: defaultConfig(),
	}
}

// SetLogLevel updates the logger's level.
func (c *CLI) SetLogLevel(level log.Level) {
	c.Logger.SetLevel(level)
}

// RootCommand creates the root cobra command with all subcommands registered.
func (c *CLI) RootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:          appName,
		Short:        "docsnap inspects versioned object snapshots stored in MongoDB",
		Long:         `docsnap reads documents written by the docsnap codec, either from Extended JSON exports or straight from a collection, and shows their tagged structure and the schema versions they were written with.`,
		Version:      buildinfo.Version,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(c.configPath, c.Logger)
			if err != nil {
				return err
			}
			c.config = cfg
			if c.Logger.GetLevel() <= log.DebugLevel {
				hooks := logHooks{logger: c.Logger}
				observability.SetStoreHooks(hooks)
				observability.SetCodecHooks(hooks)
			}
			cmd.SetContext(withLogger(cmd.Context(), c.Logger))
			return nil
		},
	}

	root.SetVersionTemplate(buildinfo.Template())
	root.PersistentFlags().StringVar(&c.configPath, "config", "", "config file (default: "+appName+".toml in the user config directory)")

	root.AddCommand(c.inspectCommand())
	root.AddCommand(c.statsCommand())
	root.AddCommand(c.cacheCommand())
	root.AddCommand(c.completionCommand())

	return root
}

// =============================================================================
// Backends
// =============================================================================

// newCache opens the configured cache backend. noCache forces the null
// cache.
func (c *CLI) newCache(noCache bool) (cache.Cache, error) {
	cfg := c.config.Cache
	if noCache {
		return cache.NewNullCache(), nil
	}
	switch cfg.Backend {
	case backendRedis:
		return cache.NewRedisCache(cfg.RedisAddr), nil
	case backendFile:
		dir, err := c.cacheDir()
		if err != nil {
			c.Logger.Warn("no cache directory, caching disabled", "err", err)
			return cache.NewNullCache(), nil
		}
		return cache.NewFileCache(dir)
	}
	return cache.NewNullCache(), nil
}

// mongoSource builds a reader over the configured collection.
func (c *CLI) mongoSource(noCache bool) (*mongoSource, error) {
	backend, err := c.newCache(noCache)
	if err != nil {
		return nil, err
	}
	return &mongoSource{
		cfg:   c.config.Mongo,
		cache: backend,
		keyer: cache.NewScopedKeyer(cache.NewDefaultKeyer(), appName+":"),
		ttl:   c.config.Cache.TTL,
	}, nil
}

// =============================================================================
// Paths
// =============================================================================

// cacheDir returns cache.dir from the config, or the XDG cache directory
// (~/.cache/docsnap/).
func (c *CLI) cacheDir() (string, error) {
	if c.config.Cache.Dir != "" {
		return c.config.Cache.Dir, nil
	}
	if cacheHome := os.Getenv("XDG_CACHE_HOME"); cacheHome != "" {
		return filepath.Join(cacheHome, appName), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".cache", appName), nil
}

// configDir returns the directory docsnap.toml is looked up in.
func configDir() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, appName), nil
}
