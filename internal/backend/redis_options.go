package backend

import (
	"context"
	"crypto/tls"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	redis "github.com/go-redis/redis/v8"
	"github.com/spf13/pflag"
	"go.uber.org/zap"
)

// RedisOptions describes how to reach a Redis deployment: a single node, a
// sentinel group (MasterName set) or a cluster (EnableCluster set).
type RedisOptions struct {
	Host                  string   `json:"host"                     mapstructure:"host"`
	Port                  int      `json:"port"                     mapstructure:"port"`
	Addrs                 []string `json:"addrs"                    mapstructure:"addrs"`
	Username              string   `json:"username"                 mapstructure:"username"`
	Password              string   `json:"password"                 mapstructure:"password"`
	Database              int      `json:"database"                 mapstructure:"database"`
	MasterName            string   `json:"master-name"              mapstructure:"master-name"`
	MaxActive             int      `json:"max-active"               mapstructure:"max-active"`
	Timeout               int      `json:"timeout"                  mapstructure:"timeout"`
	EnableCluster         bool     `json:"enable-cluster"           mapstructure:"enable-cluster"`
	UseSSL                bool     `json:"use-ssl"                  mapstructure:"use-ssl"`
	SSLInsecureSkipVerify bool     `json:"ssl-insecure-skip-verify" mapstructure:"ssl-insecure-skip-verify"`
	CommitRetries         uint64   `json:"commit-retries"           mapstructure:"commit-retries"`
}

// NewRedisOptions returns options for a local single-node Redis.
func NewRedisOptions() *RedisOptions {
	return &RedisOptions{
		Host:          "127.0.0.1",
		Port:          6379,
		MaxActive:     100,
		Timeout:       5,
		CommitRetries: defaultCommitRetries,
	}
}

// Complete fills in derived values: Addrs from Host/Port and pool defaults.
func (o *RedisOptions) Complete() {
	if len(o.Addrs) == 0 {
		host := o.Host
		if host == "" {
			host = "localhost"
		}
		port := o.Port
		if port == 0 {
			port = 6379
		}
		o.Addrs = []string{fmt.Sprintf("%s:%d", host, port)}
	}
	if o.MaxActive <= 0 {
		o.MaxActive = 100
	}
	if o.Timeout <= 0 {
		o.Timeout = 5
	}
	if o.CommitRetries == 0 {
		o.CommitRetries = defaultCommitRetries
	}
}

// Validate returns every problem found in the options.
func (o *RedisOptions) Validate() []error {
	var errs []error

	if len(o.Addrs) == 0 && o.Host == "" {
		errs = append(errs, fmt.Errorf("redis: no address configured, set addrs or host/port"))
	}
	if o.Database < 0 {
		errs = append(errs, fmt.Errorf("redis: database index must not be negative"))
	}
	if o.MaxActive < 0 {
		errs = append(errs, fmt.Errorf("redis: max-active must not be negative"))
	}
	if o.Timeout < 0 {
		errs = append(errs, fmt.Errorf("redis: timeout must not be negative"))
	}
	if o.EnableCluster && o.MasterName != "" {
		errs = append(errs, fmt.Errorf("redis: enable-cluster and master-name are mutually exclusive"))
	}
	if o.SSLInsecureSkipVerify && !o.UseSSL {
		errs = append(errs, fmt.Errorf("redis: ssl-insecure-skip-verify requires use-ssl"))
	}

	return errs
}

// AddFlags binds the options to command line flags.
func (o *RedisOptions) AddFlags(fs *pflag.FlagSet) {
	fs.StringVar(&o.Host, "redis.host", o.Host, "Redis host")
	fs.IntVar(&o.Port, "redis.port", o.Port, "Redis port")
	fs.StringSliceVar(&o.Addrs, "redis.addrs", o.Addrs, "Redis addresses (cluster or sentinel mode)")
	fs.StringVar(&o.Username, "redis.username", o.Username, "Username for Redis authentication")
	fs.StringVar(&o.Password, "redis.password", o.Password, "Password for Redis authentication")
	fs.IntVar(&o.Database, "redis.database", o.Database, "Redis database index")
	fs.StringVar(&o.MasterName, "redis.master-name", o.MasterName, "Sentinel master name")
	fs.BoolVar(&o.EnableCluster, "redis.enable-cluster", o.EnableCluster, "Enable Redis cluster mode")
	fs.IntVar(&o.MaxActive, "redis.max-active", o.MaxActive, "Maximum number of pooled connections")
	fs.IntVar(&o.Timeout, "redis.timeout", o.Timeout, "Dial/read/write timeout in seconds")
	fs.BoolVar(&o.UseSSL, "redis.use-ssl", o.UseSSL, "Use TLS for Redis connections")
	fs.BoolVar(&o.SSLInsecureSkipVerify, "redis.ssl-insecure-skip-verify", o.SSLInsecureSkipVerify, "Skip TLS certificate verification")
	fs.Uint64Var(&o.CommitRetries, "redis.commit-retries", o.CommitRetries, "Retries for conflicting optimistic commits")
}

// UniversalOptions converts the options to go-redis client options.
func (o *RedisOptions) UniversalOptions() *redis.UniversalOptions {
	timeout := time.Duration(o.Timeout) * time.Second

	var tlsConfig *tls.Config
	if o.UseSSL {
		tlsConfig = &tls.Config{InsecureSkipVerify: o.SSLInsecureSkipVerify} //nolint:gosec
	}

	return &redis.UniversalOptions{
		Addrs:        o.Addrs,
		MasterName:   o.MasterName,
		Username:     o.Username,
		Password:     o.Password,
		DB:           o.Database,
		PoolSize:     o.MaxActive,
		DialTimeout:  timeout,
		ReadTimeout:  timeout,
		WriteTimeout: timeout,
		TLSConfig:    tlsConfig,
	}
}

// DialRedis builds a client from opts and waits until the server answers a
// PING, retrying with exponential backoff for up to maxWait.
func DialRedis(ctx context.Context, opts *RedisOptions, maxWait time.Duration, logger *zap.Logger) (*Redis, error) {
	opts.Complete()
	if errs := opts.Validate(); len(errs) > 0 {
		return nil, errs[0]
	}

	var client redis.UniversalClient
	if uo := opts.UniversalOptions(); opts.EnableCluster {
		// NewUniversalClient only picks cluster mode for more than one address.
		client = redis.NewClusterClient(uo.Cluster())
	} else {
		client = redis.NewUniversalClient(uo)
	}

	policy := backoff.NewExponentialBackOff()
	policy.MaxElapsedTime = maxWait
	ping := func() error {
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		err := client.Ping(pingCtx).Err()
		if err != nil {
			logger.Debug("redis ping failed", zap.Strings("addrs", opts.Addrs), zap.Error(err))
		}
		return err
	}
	if err := backoff.Retry(ping, backoff.WithContext(policy, ctx)); err != nil {
		client.Close()
		return nil, fmt.Errorf("connecting to redis %v: %w", opts.Addrs, err)
	}

	return NewRedis(client, WithRedisLogger(logger), WithCommitRetries(opts.CommitRetries)), nil
}
