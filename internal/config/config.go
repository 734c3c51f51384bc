package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Config wraps a viper instance and exposes typed accessors for every
// known key.
type Config struct {
	v *viper.Viper
}

// New creates a Config with compiled defaults, an optional config
// file, and environment variable overrides.
func New() (*Config, error) {
	v := viper.New()

	for _, opts := range [][]Option{GlobalOptions, ArgoCDOptions, ServerOptions, SyncOptions} {
		for _, o := range opts {
			v.SetDefault(o.Key, o.Default)
		}
	}

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("/etc/otterscale-tasks/")

	if err := v.ReadInConfig(); err != nil {
		var notFoundErr viper.ConfigFileNotFoundError
		if !errors.As(err, &notFoundErr) && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	v.SetEnvPrefix("OTTERSCALE_TASKS")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	return &Config{v: v}, nil
}

// BindFlags registers CLI flags for the given options and binds them
// to the corresponding viper keys.
func (c *Config) BindFlags(fs *pflag.FlagSet, options []Option) error {
	for _, o := range options {
		switch v := o.Default.(type) {
		case string:
			fs.String(o.Flag, v, o.Description)
		case int:
			fs.Int(o.Flag, v, o.Description)
		case bool:
			fs.Bool(o.Flag, v, o.Description)
		case []string:
			fs.StringSlice(o.Flag, v, o.Description)
		case time.Duration:
			fs.Duration(o.Flag, v, o.Description)
		default:
			return fmt.Errorf("unsupported flag type for key: %s", o.Key)
		}

		if err := c.v.BindPFlag(o.Key, fs.Lookup(o.Flag)); err != nil {
			return fmt.Errorf("failed to bind flag %s: %w", o.Flag, err)
		}
	}
	return nil
}

func (c *Config) LogDebug() bool {
	return c.v.GetBool(keyLogDebug) // OTTERSCALE_TASKS_LOG_DEBUG
}

func (c *Config) ArgoCDServerURL() string {
	return c.v.GetString(keyArgoCDServerURL) // OTTERSCALE_TASKS_ARGOCD_SERVER_URL
}

func (c *Config) ArgoCDToken() string {
	return c.v.GetString(keyArgoCDToken) // OTTERSCALE_TASKS_ARGOCD_TOKEN
}

func (c *Config) ArgoCDAuthClientID() string {
	return c.v.GetString(keyArgoCDAuthClientID)
}

// ArgoCDAuthAuthority defaults to the server url when unset.
func (c *Config) ArgoCDAuthAuthority() string {
	if a := c.v.GetString(keyArgoCDAuthAuthority); a != "" {
		return a
	}
	return c.ArgoCDServerURL()
}

func (c *Config) ArgoCDRequestTimeout() time.Duration {
	return c.v.GetDuration(keyArgoCDRequestTimeout)
}

func (c *Config) ArgoCDTokenTTL() time.Duration {
	return c.v.GetDuration(keyArgoCDTokenTTL)
}

func (c *Config) ArgoCDInsecure() bool {
	return c.v.GetBool(keyArgoCDInsecure)
}

func (c *Config) ServerAddress() string {
	return c.v.GetString(keyServerAddress) // OTTERSCALE_TASKS_SERVER_ADDRESS
}

func (c *Config) ServerAllowedOrigins() []string {
	return c.v.GetStringSlice(keyServerAllowedOrigins)
}

func (c *Config) ServerOIDCIssuerURL() string {
	return c.v.GetString(keyServerOIDCIssuerURL)
}

func (c *Config) ServerOIDCClientID() string {
	return c.v.GetString(keyServerOIDCClientID)
}

func (c *Config) ServerAPIKey() string {
	return c.v.GetString(keyServerAPIKey) // OTTERSCALE_TASKS_SERVER_API_KEY
}

func (c *Config) SyncRevision() string {
	return c.v.GetString(keySyncRevision)
}

func (c *Config) SyncDryRun() bool {
	return c.v.GetBool(keySyncDryRun)
}

func (c *Config) SyncPrune() bool {
	return c.v.GetBool(keySyncPrune)
}

func (c *Config) SyncResources() []string {
	return c.v.GetStringSlice(keySyncResources)
}

func (c *Config) SyncWait() bool {
	return c.v.GetBool(keySyncWait)
}

func (c *Config) SyncTimeout() time.Duration {
	return c.v.GetDuration(keySyncTimeout)
}

func (c *Config) SyncWatchHealth() bool {
	return c.v.GetBool(keySyncWatchHealth)
}

func (c *Config) SyncWatchSync() bool {
	return c.v.GetBool(keySyncWatchSync)
}

func (c *Config) SyncWatchSuspended() bool {
	return c.v.GetBool(keySyncWatchSuspended)
}

func (c *Config) SyncWatchOperation() bool {
	return c.v.GetBool(keySyncWatchOperation)
}

func (c *Config) SyncRetryAttempts() int {
	return c.v.GetInt(keySyncRetryAttempts)
}

func (c *Config) SyncRetryBackoff() time.Duration {
	return c.v.GetDuration(keySyncRetryBackoff)
}
