package config_test

import (
	"fmt"
	"os"
	"testing"

	"github.com/alwitt/strongbox/config"
	"github.com/alwitt/strongbox/encryption"
	"github.com/apex/log"
	"github.com/oklog/ulid/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"gorm.io/gorm/logger"
)

const testMasterSecret = "correct-horse-battery-staple-0123456789"

func TestConfigLoad(t *testing.T) {
	assert := assert.New(t)
	log.SetLevel(log.DebugLevel)

	// Case 0: no master secret anywhere
	{
		_, err := config.Load("")
		assert.NotNil(err)
	}

	// Case 1: defaults plus the secret from the environment
	t.Setenv("STRONGBOX_CRYPTO_MASTER_SECRET", testMasterSecret)
	{
		cfg, err := config.Load("")
		assert.Nil(err)
		assert.Equal("strongbox.db", cfg.Database.File)
		assert.Equal(logger.Error, cfg.SQLLogLevel())
		assert.Equal(testMasterSecret, cfg.Crypto.MasterSecret)
		assert.Equal(encryption.DefaultKDFIterations, cfg.Crypto.KDFIterations)
		assert.False(cfg.External.Hashicorp.Enabled)

		params := cfg.InstanceParams(true, prometheus.NewRegistry())
		assert.True(params.DefineTables)
		assert.Nil(params.Hashicorp)
		assert.Nil(params.AWS)
		assert.Nil(params.Metrics)
	}

	// Case 2: file with providers enabled
	configFile := fmt.Sprintf("/tmp/strongbox_ut_%s.yaml", ulid.Make().String())
	assert.Nil(os.WriteFile(configFile, []byte(`
database:
  file: /tmp/strongbox_cfg.db
  log_level: warn
external:
  hashicorp:
    enabled: true
    address: https://vault.example.com:8200
  aws:
    enabled: true
    region: us-west-2
metrics:
  enabled: true
log:
  level: debug
`), 0o600))
	t.Setenv("STRONGBOX_EXTERNAL_HASHICORP_TOKEN", "s.token")
	{
		cfg, err := config.Load(configFile)
		assert.Nil(err)
		assert.Equal("/tmp/strongbox_cfg.db", cfg.Database.File)
		assert.Equal(logger.Warn, cfg.SQLLogLevel())
		assert.Equal("debug", cfg.Log.Level)

		registry := prometheus.NewRegistry()
		params := cfg.InstanceParams(false, registry)
		assert.NotNil(params.Hashicorp)
		assert.Equal("https://vault.example.com:8200", params.Hashicorp.Address)
		assert.Equal("s.token", params.Hashicorp.Token)
		assert.NotNil(params.AWS)
		assert.Equal("us-west-2", params.AWS.Region)
		assert.Equal(registry, params.Metrics)
	}

	// Case 3: enabled provider missing its token
	t.Setenv("STRONGBOX_EXTERNAL_HASHICORP_TOKEN", "")
	{
		_, err := config.Load(configFile)
		assert.NotNil(err)
	}

	// Case 4: iteration count below the floor
	t.Setenv("STRONGBOX_CRYPTO_KDF_ITERATIONS", "1000")
	{
		_, err := config.Load("")
		assert.NotNil(err)
	}

	// Case 5: missing file
	{
		_, err := config.Load("/tmp/strongbox_no_such_config.yaml")
		assert.NotNil(err)
	}
}

func TestConfigWriteDefault(t *testing.T) {
	assert := assert.New(t)
	log.SetLevel(log.DebugLevel)

	configFile := fmt.Sprintf("/tmp/strongbox_ut_%s.yaml", ulid.Make().String())
	assert.Nil(config.WriteDefault(configFile, false))

	// Refuses to overwrite unless asked
	assert.NotNil(config.WriteDefault(configFile, false))
	assert.Nil(config.WriteDefault(configFile, true))

	content, err := os.ReadFile(configFile)
	assert.Nil(err)
	assert.NotContains(string(content), "master_secret")

	t.Setenv("STRONGBOX_CRYPTO_MASTER_SECRET", testMasterSecret)
	cfg, err := config.Load(configFile)
	assert.Nil(err)
	assert.Equal(config.DefaultConfig().Database, cfg.Database)
	assert.Equal(config.DefaultConfig().Log, cfg.Log)
}
