// Package config - operator configuration of a strongbox instance
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/alwitt/strongbox"
	"github.com/alwitt/strongbox/db"
	"github.com/alwitt/strongbox/encryption"
	"github.com/alwitt/strongbox/external"
	"github.com/go-playground/validator/v10"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
	"gorm.io/gorm/logger"
)

// EnvPrefix prefix of the environment variables overriding the configuration file,
// ex. STRONGBOX_CRYPTO_MASTER_SECRET
const EnvPrefix = "STRONGBOX"

// DatabaseConfig persistence settings
type DatabaseConfig struct {
	// File sqlite database file
	File string `mapstructure:"file" yaml:"file" validate:"required"`
	// LogLevel SQL log level
	LogLevel string `mapstructure:"log_level" yaml:"log_level" validate:"required,oneof=silent error warn info"`
}

// CryptoConfig key management settings
type CryptoConfig struct {
	// MasterSecret the master secret; prefer STRONGBOX_CRYPTO_MASTER_SECRET over the file
	MasterSecret string `mapstructure:"master_secret" yaml:"master_secret,omitempty" validate:"required,min=32"`
	// KDFIterations PBKDF2 iteration count used when the system is first initialized
	KDFIterations int `mapstructure:"kdf_iterations" yaml:"kdf_iterations" validate:"gte=300000"`
}

// HashicorpConfig HashiCorp Vault connection settings
type HashicorpConfig struct {
	// Enabled whether HASHICORP_VAULT credentials are served
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`
	// Address vault server address
	Address string `mapstructure:"address" yaml:"address" validate:"required_if=Enabled true"`
	// Token vault token; prefer STRONGBOX_EXTERNAL_HASHICORP_TOKEN over the file
	Token string `mapstructure:"token" yaml:"token,omitempty" validate:"required_if=Enabled true"`
	// Namespace optional vault enterprise namespace
	Namespace string `mapstructure:"namespace" yaml:"namespace,omitempty"`
}

// AWSConfig AWS Secrets Manager settings
type AWSConfig struct {
	// Enabled whether AWS_SECRETS_MANAGER credentials are served
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`
	// Region AWS region
	Region string `mapstructure:"region" yaml:"region,omitempty"`
	// Profile shared config profile
	Profile string `mapstructure:"profile" yaml:"profile,omitempty"`
}

// ExternalConfig external vault provider settings
type ExternalConfig struct {
	Hashicorp HashicorpConfig `mapstructure:"hashicorp" yaml:"hashicorp"`
	AWS       AWSConfig       `mapstructure:"aws" yaml:"aws"`
}

// MetricsConfig metrics settings
type MetricsConfig struct {
	// Enabled whether vault metrics are registered
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`
}

// LogConfig logging settings
type LogConfig struct {
	// Level apex/log level
	Level string `mapstructure:"level" yaml:"level" validate:"required,oneof=debug info warn error fatal"`
}

// Config strongbox operator configuration
type Config struct {
	Database DatabaseConfig `mapstructure:"database" yaml:"database" validate:"required"`
	Crypto   CryptoConfig   `mapstructure:"crypto" yaml:"crypto" validate:"required"`
	External ExternalConfig `mapstructure:"external" yaml:"external"`
	Metrics  MetricsConfig  `mapstructure:"metrics" yaml:"metrics"`
	Log      LogConfig      `mapstructure:"log" yaml:"log" validate:"required"`
}

// InstallDefaults install the default values into a viper instance
func InstallDefaults(v *viper.Viper) {
	v.SetDefault("database.file", "strongbox.db")
	v.SetDefault("database.log_level", "error")
	v.SetDefault("crypto.master_secret", "")
	v.SetDefault("crypto.kdf_iterations", encryption.DefaultKDFIterations)
	v.SetDefault("external.hashicorp.enabled", false)
	v.SetDefault("external.hashicorp.address", "")
	v.SetDefault("external.hashicorp.token", "")
	v.SetDefault("external.hashicorp.namespace", "")
	v.SetDefault("external.aws.enabled", false)
	v.SetDefault("external.aws.region", "")
	v.SetDefault("external.aws.profile", "")
	v.SetDefault("metrics.enabled", false)
	v.SetDefault("log.level", "info")
}

// DefaultConfig the default configuration, without a master secret
func DefaultConfig() Config {
	return Config{
		Database: DatabaseConfig{File: "strongbox.db", LogLevel: "error"},
		Crypto:   CryptoConfig{KDFIterations: encryption.DefaultKDFIterations},
		Log:      LogConfig{Level: "info"},
	}
}

/*
Load read the configuration from the optional config file and the STRONGBOX_* environment
variables, then validate it

	@param configFile string - config file path; empty to use defaults and environment only
	@returns the configuration
*/
func Load(configFile string) (Config, error) {
	v := viper.New()
	InstallDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configFile != "" {
		v.SetConfigFile(configFile)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("failed to read config file '%s' [%w]", configFile, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse config [%w]", err)
	}

	validate := validator.New()
	if err := validate.Struct(&cfg); err != nil {
		return Config{}, fmt.Errorf("invalid config [%w]", err)
	}
	return cfg, nil
}

/*
WriteDefault write the default configuration as YAML. The master secret is left out.

	@param path string - destination file
	@param overwrite bool - whether to replace an existing file
*/
func WriteDefault(path string, overwrite bool) error {
	if !overwrite {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("config file '%s' already exists", path)
		} else if !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("failed to check config file '%s' [%w]", path, err)
		}
	}
	content, err := yaml.Marshal(DefaultConfig())
	if err != nil {
		return fmt.Errorf("failed to encode default config [%w]", err)
	}
	if err := os.WriteFile(path, content, 0o600); err != nil {
		return fmt.Errorf("failed to write config file '%s' [%w]", path, err)
	}
	return nil
}

// SQLLogLevel the GORM log level of the configured database log level
func (c Config) SQLLogLevel() logger.LogLevel {
	switch c.Database.LogLevel {
	case "silent":
		return logger.Silent
	case "warn":
		return logger.Warn
	case "info":
		return logger.Info
	}
	return logger.Error
}

/*
InstanceParams the credential vault instance parameters of this configuration

	@param defineTables bool - whether to create the tables on startup
	@param registry prometheus.Registerer - metrics registry; used only when metrics are enabled
	@returns the instance parameters
*/
func (c Config) InstanceParams(
	defineTables bool, registry prometheus.Registerer,
) strongbox.Params {
	params := strongbox.Params{
		DBDialector:   db.GetSqliteDialector(c.Database.File),
		DBLogLevel:    c.SQLLogLevel(),
		DefineTables:  defineTables,
		MasterSecret:  c.Crypto.MasterSecret,
		KDFIterations: c.Crypto.KDFIterations,
	}
	if c.External.Hashicorp.Enabled {
		params.Hashicorp = &external.HashicorpParams{
			Address:   c.External.Hashicorp.Address,
			Token:     c.External.Hashicorp.Token,
			Namespace: c.External.Hashicorp.Namespace,
		}
	}
	if c.External.AWS.Enabled {
		params.AWS = &external.AWSParams{
			Region:  c.External.AWS.Region,
			Profile: c.External.AWS.Profile,
		}
	}
	if c.Metrics.Enabled {
		params.Metrics = registry
	}
	return params
}
