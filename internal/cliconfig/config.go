// Package cliconfig loads the settings shared by the command line tools.
//
// Values are layered, highest precedence first: explicit flags, environment
// variables prefixed with SIMPLEREDIS_, the optional config file, flag defaults.
package cliconfig

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/pior/simpleredis"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// EnvPrefix prefixes the environment variables, e.g. SIMPLEREDIS_ADDR.
const EnvPrefix = "SIMPLEREDIS"

// Options is the decoded tool configuration.
type Options struct {
	Addr            string        `mapstructure:"addr"`
	DialTimeout     time.Duration `mapstructure:"dial-timeout"`
	ReadTimeout     time.Duration `mapstructure:"read-timeout"`
	WriteTimeout    time.Duration `mapstructure:"write-timeout"`
	WriteBufferSize int           `mapstructure:"write-buffer-size"`

	CircuitBreaker     bool          `mapstructure:"circuit-breaker"`
	BreakerMaxRequests uint32        `mapstructure:"breaker-max-requests"`
	BreakerInterval    time.Duration `mapstructure:"breaker-interval"`
	BreakerTimeout     time.Duration `mapstructure:"breaker-timeout"`

	LogLevel       string `mapstructure:"log-level"`
	LogDevelopment bool   `mapstructure:"log-development"`
}

// Loader binds a flag set to a viper instance.
type Loader struct {
	flags *pflag.FlagSet
	v     *viper.Viper
}

// Register adds the shared flags to the flag set.
// Call Load after the flag set has been parsed.
func Register(flags *pflag.FlagSet) *Loader {
	flags.String("config", "", "path to a YAML config file")
	flags.String("addr", simpleredis.DefaultAddr, "server address (host:port)")
	flags.Duration("dial-timeout", 5*time.Second, "connection timeout")
	flags.Duration("read-timeout", 0, "per-command read timeout (0 disables)")
	flags.Duration("write-timeout", 0, "per-command write timeout (0 disables)")
	flags.Int("write-buffer-size", 0, "write buffer size in bytes (0 uses the default)")
	flags.Bool("circuit-breaker", false, "wrap commands in a circuit breaker")
	flags.Uint32("breaker-max-requests", 1, "requests allowed in half-open state")
	flags.Duration("breaker-interval", time.Minute, "interval to reset failure counts")
	flags.Duration("breaker-timeout", 10*time.Second, "open state duration before half-open")
	flags.String("log-level", "warn", "log level (debug, info, warn, error)")
	flags.Bool("log-development", false, "human readable logs")

	return &Loader{flags: flags, v: viper.New()}
}

// Load resolves the options from flags, environment and config file.
func (l *Loader) Load() (Options, error) {
	v := l.v

	if err := v.BindPFlags(l.flags); err != nil {
		return Options{}, fmt.Errorf("cliconfig: bind flags: %w", err)
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	if path := v.GetString("config"); path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return Options{}, fmt.Errorf("cliconfig: read %s: %w", path, err)
		}
	}

	var options Options
	if err := v.Unmarshal(&options); err != nil {
		return Options{}, fmt.Errorf("cliconfig: decode: %w", err)
	}
	if err := options.validate(); err != nil {
		return Options{}, err
	}
	return options, nil
}

func (o Options) validate() error {
	if o.Addr == "" {
		return errors.New("cliconfig: addr must not be empty")
	}
	if o.DialTimeout < 0 || o.ReadTimeout < 0 || o.WriteTimeout < 0 {
		return errors.New("cliconfig: timeouts must not be negative")
	}
	if o.WriteBufferSize < 0 {
		return errors.New("cliconfig: write-buffer-size must not be negative")
	}
	return nil
}

// Logger builds the zap logger described by the options.
func (o Options) Logger() (*zap.Logger, error) {
	level, err := zap.ParseAtomicLevel(o.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("cliconfig: log-level: %w", err)
	}

	config := zap.NewProductionConfig()
	if o.LogDevelopment {
		config = zap.NewDevelopmentConfig()
	}
	config.Level = level

	return config.Build()
}

// ClientConfig converts the options into a client configuration.
func (o Options) ClientConfig(logger *zap.Logger) simpleredis.Config {
	config := simpleredis.Config{
		Addr:            o.Addr,
		DialTimeout:     o.DialTimeout,
		ReadTimeout:     o.ReadTimeout,
		WriteTimeout:    o.WriteTimeout,
		WriteBufferSize: o.WriteBufferSize,
		Logger:          logger,
	}
	if o.CircuitBreaker {
		config.NewCircuitBreaker = simpleredis.NewCircuitBreakerConfig(
			o.BreakerMaxRequests, o.BreakerInterval, o.BreakerTimeout, logger)
	}
	return config
}
