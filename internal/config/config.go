package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/klubi/rstore/internal/backend"
)

// EnvPrefix prefixes every environment variable override, e.g.
// RSTORE_SERVER_PORT or RSTORE_REDIS_ADDRS.
const EnvPrefix = "RSTORE"

type Config struct {
	Server        ServerConfig          `mapstructure:"server"`
	Store         StoreConfig           `mapstructure:"store"`
	Redis         *backend.RedisOptions `mapstructure:"redis"`
	Log           LogConfig             `mapstructure:"log"`
	ResourceTypes []ResourceTypeConfig  `mapstructure:"resourceTypes"`
}

type ServerConfig struct {
	Port int    `mapstructure:"port"` // default 7117
	Host string `mapstructure:"host"` // default "127.0.0.1"
}

type StoreConfig struct {
	Backend     string `mapstructure:"backend"`     // "bolt", "memory" or "redis"
	DataDir     string `mapstructure:"dataDir"`     // default "~/.rstore/data"
	Root        string `mapstructure:"root"`        // key namespace, default "namespace:resource"
	IndexLayout string `mapstructure:"indexLayout"` // "hash" or "string"
	DialTimeout int    `mapstructure:"dialTimeout"` // seconds to wait for redis at startup
}

type LogConfig struct {
	Level  string `mapstructure:"level"`  // default "info"
	Format string `mapstructure:"format"` // "console" or "json"
}

// DefaultConfig returns a Config populated with all default values.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port: 7117,
			Host: "127.0.0.1",
		},
		Store: StoreConfig{
			Backend:     "bolt",
			DataDir:     defaultDataDir(),
			Root:        "namespace:resource",
			IndexLayout: "hash",
			DialTimeout: 30,
		},
		Redis: backend.NewRedisOptions(),
		Log: LogConfig{
			Level:  "info",
			Format: "console",
		},
	}
}

// Load reads configuration from, in increasing precedence: defaults, the
// config file, RSTORE_* environment variables and changed flags in fs.
// With an empty path, rstore.yaml is looked up in the working directory and
// in ~/.rstore; a missing file is not an error then.
func Load(path string, fs *pflag.FlagSet) (*Config, error) {
	v := viper.New()
	setDefaults(v, DefaultConfig())

	v.SetConfigType("yaml")
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("rstore")
		v.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".rstore"))
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	if fs != nil {
		if err := v.BindPFlags(fs); err != nil {
			return nil, fmt.Errorf("binding flags: %w", err)
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	cfg := DefaultConfig()
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decoding config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// setDefaults registers every scalar key so environment variables can
// override keys that appear in no config file.
func setDefaults(v *viper.Viper, d *Config) {
	v.SetDefault("server.port", d.Server.Port)
	v.SetDefault("server.host", d.Server.Host)
	v.SetDefault("store.backend", d.Store.Backend)
	v.SetDefault("store.dataDir", d.Store.DataDir)
	v.SetDefault("store.root", d.Store.Root)
	v.SetDefault("store.indexLayout", d.Store.IndexLayout)
	v.SetDefault("store.dialTimeout", d.Store.DialTimeout)
	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.format", d.Log.Format)

	r := d.Redis
	v.SetDefault("redis.host", r.Host)
	v.SetDefault("redis.port", r.Port)
	v.SetDefault("redis.addrs", r.Addrs)
	v.SetDefault("redis.username", r.Username)
	v.SetDefault("redis.password", r.Password)
	v.SetDefault("redis.database", r.Database)
	v.SetDefault("redis.master-name", r.MasterName)
	v.SetDefault("redis.max-active", r.MaxActive)
	v.SetDefault("redis.timeout", r.Timeout)
	v.SetDefault("redis.enable-cluster", r.EnableCluster)
	v.SetDefault("redis.use-ssl", r.UseSSL)
	v.SetDefault("redis.ssl-insecure-skip-verify", r.SSLInsecureSkipVerify)
	v.SetDefault("redis.commit-retries", r.CommitRetries)
}

// Validate checks the configuration for values the server cannot start
// with.
func (c *Config) Validate() error {
	var errs []error

	switch c.Store.Backend {
	case "bolt", "memory":
	case "redis":
		if c.Redis == nil {
			errs = append(errs, fmt.Errorf("store.backend is redis but no redis options are set"))
		} else {
			c.Redis.Complete()
			errs = append(errs, c.Redis.Validate()...)
		}
	default:
		errs = append(errs, fmt.Errorf("store.backend: unknown backend %q (want bolt, memory or redis)", c.Store.Backend))
	}

	switch c.Store.IndexLayout {
	case "", "hash", "string":
	default:
		errs = append(errs, fmt.Errorf("store.indexLayout: unknown layout %q (want hash or string)", c.Store.IndexLayout))
	}

	if _, err := zapcore.ParseLevel(c.Log.Level); err != nil {
		errs = append(errs, fmt.Errorf("log.level: %w", err))
	}
	if c.Log.Format != "console" && c.Log.Format != "json" {
		errs = append(errs, fmt.Errorf("log.format: unknown format %q (want console or json)", c.Log.Format))
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port: %d out of range", c.Server.Port))
	}

	return errors.Join(errs...)
}

// ServerAddress returns the listen address in "host:port" format.
func (c *Config) ServerAddress() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

// DBPath returns the full path to the BoltDB file (DataDir + "/rstore.db").
func (c *Config) DBPath() string {
	return filepath.Join(c.Store.DataDir, "rstore.db")
}

// NewLogger builds the process logger from the log section.
func (c *Config) NewLogger() (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(c.Log.Level)
	if err != nil {
		return nil, err
	}

	zc := zap.NewDevelopmentConfig()
	if c.Log.Format == "json" {
		zc = zap.NewProductionConfig()
	}
	zc.Level = zap.NewAtomicLevelAt(level)
	return zc.Build()
}

// defaultDataDir resolves the default data directory.
// It uses os.UserHomeDir() + "/.rstore/data", falling back to
// "/tmp/rstore/data" if the home directory cannot be determined.
func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join("/tmp", "rstore", "data")
	}
	return filepath.Join(home, ".rstore", "data")
}
