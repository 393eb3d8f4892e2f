package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadMergesFileOverDefaults(t *testing.T) {
	path := writeConfig(t, `
mode = "serve"

[engine]
owner = "0xOwner"
min_stake = 2000000

[indexer]
interval = "10s"

[server]
port = 9100
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "serve", cfg.Mode)
	assert.Equal(t, "0xOwner", cfg.Engine.Owner)
	assert.Equal(t, int64(2_000_000), cfg.Engine.MinStake)
	assert.Equal(t, 10*time.Second, cfg.Indexer.Interval.Duration)
	assert.Equal(t, 9100, cfg.Server.Port)

	// Untouched sections keep their defaults.
	assert.Equal(t, "localhost:6379", cfg.Redis.Addr)
	assert.Equal(t, uint64(2000), cfg.Indexer.ChunkSize)
}

func TestLoadAppliesEnvOverrides(t *testing.T) {
	path := writeConfig(t, `
[server]
port = 9100
`)

	t.Setenv("STAKEHOUSE_SERVER_PORT", "9200")
	t.Setenv("STAKEHOUSE_REDIS_ADDR", "redis.internal:6380")
	t.Setenv("STAKEHOUSE_WALLET_PRIVATE_KEY", "deadbeef")
	t.Setenv("STAKEHOUSE_INDEXER_START_BLOCK", "12345")
	t.Setenv("STAKEHOUSE_SERVER_CORS_ORIGINS", "https://a.example, https://b.example")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9200, cfg.Server.Port)
	assert.Equal(t, "redis.internal:6380", cfg.Redis.Addr)
	assert.Equal(t, "deadbeef", cfg.Wallet.PrivateKey)
	assert.Equal(t, uint64(12345), cfg.Indexer.StartBlock)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.Server.CORSOrigins)
}

func TestValidate(t *testing.T) {
	valid := func() Config {
		cfg := Defaults()
		cfg.Chain.MarketAddress = "0x1111111111111111111111111111111111111111"
		cfg.Engine.Owner = "0x2222222222222222222222222222222222222222"
		return cfg
	}

	t.Run("valid defaults pass", func(t *testing.T) {
		cfg := valid()
		assert.NoError(t, cfg.Validate())
	})

	t.Run("unknown mode", func(t *testing.T) {
		cfg := valid()
		cfg.Mode = "backtest"
		err := cfg.Validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "unknown mode")
	})

	t.Run("seeding requires wallet and token", func(t *testing.T) {
		cfg := valid()
		cfg.Seeding.Enabled = true
		cfg.Seeding.Funder = "0x3333333333333333333333333333333333333333"
		err := cfg.Validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "private_key or encrypted_key_path")
		assert.Contains(t, err.Error(), "token_address")
	})

	t.Run("encrypted key needs password", func(t *testing.T) {
		cfg := valid()
		cfg.Seeding.Enabled = true
		cfg.Seeding.Funder = "0x3333333333333333333333333333333333333333"
		cfg.Chain.TokenAddress = "0x4444444444444444444444444444444444444444"
		cfg.Wallet.EncryptedKeyPath = "/etc/stakehouse/key.json"
		err := cfg.Validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "key_password")
	})

	t.Run("errors accumulate", func(t *testing.T) {
		cfg := valid()
		cfg.Redis.Addr = ""
		cfg.Server.Port = 0
		err := cfg.Validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "redis: addr")
		assert.Contains(t, err.Error(), "server: port")
	})
}

func TestRedactedConfigMasksSecrets(t *testing.T) {
	cfg := Defaults()
	cfg.Wallet.PrivateKey = "deadbeef"
	cfg.Database.Password = "hunter2"
	cfg.S3.SecretKey = "s3secret"
	cfg.Server.APIKey = "api-key"

	out := RedactedConfig(&cfg)

	assert.Equal(t, "***", out.Wallet.PrivateKey)
	assert.Equal(t, "***", out.Database.Password)
	assert.Equal(t, "***", out.S3.SecretKey)
	assert.Equal(t, "***", out.Server.APIKey)

	// Originals untouched.
	assert.Equal(t, "deadbeef", cfg.Wallet.PrivateKey)

	// Empty secrets stay empty rather than gaining a placeholder.
	assert.Empty(t, out.Redis.Password)
}
