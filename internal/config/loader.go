package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads a TOML configuration file at path, merges it on top of the
// built-in defaults, applies STAKEHOUSE_* environment variable overrides, and
// returns the final Config. The returned Config has NOT been validated; the
// caller should invoke Config.Validate() after Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return nil, err
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads well-known STAKEHOUSE_* environment variables and
// overwrites the corresponding Config fields when a variable is set (i.e. not
// empty). This lets operators inject secrets at deploy time without touching
// the TOML file.
func applyEnvOverrides(cfg *Config) {
	// ── Wallet ──
	setStr(&cfg.Wallet.PrivateKey, "STAKEHOUSE_WALLET_PRIVATE_KEY")
	setStr(&cfg.Wallet.EncryptedKeyPath, "STAKEHOUSE_WALLET_ENCRYPTED_KEY_PATH")
	setStr(&cfg.Wallet.KeyPassword, "STAKEHOUSE_WALLET_KEY_PASSWORD")

	// ── Chain ──
	setStr(&cfg.Chain.RPCURL, "STAKEHOUSE_CHAIN_RPC_URL")
	setStr(&cfg.Chain.MarketAddress, "STAKEHOUSE_CHAIN_MARKET_ADDRESS")
	setStr(&cfg.Chain.TokenAddress, "STAKEHOUSE_CHAIN_TOKEN_ADDRESS")

	// ── Engine ──
	setStr(&cfg.Engine.Owner, "STAKEHOUSE_ENGINE_OWNER")
	setInt64(&cfg.Engine.MinStake, "STAKEHOUSE_ENGINE_MIN_STAKE")

	// ── Seeding ──
	setBool(&cfg.Seeding.Enabled, "STAKEHOUSE_SEEDING_ENABLED")
	setStr(&cfg.Seeding.Funder, "STAKEHOUSE_SEEDING_FUNDER")
	setInt64(&cfg.Seeding.Amount, "STAKEHOUSE_SEEDING_AMOUNT")

	// ── Indexer ──
	setBool(&cfg.Indexer.Enabled, "STAKEHOUSE_INDEXER_ENABLED")
	setUint64(&cfg.Indexer.StartBlock, "STAKEHOUSE_INDEXER_START_BLOCK")
	setUint64(&cfg.Indexer.ChunkSize, "STAKEHOUSE_INDEXER_CHUNK_SIZE")
	setDuration(&cfg.Indexer.Interval, "STAKEHOUSE_INDEXER_INTERVAL")

	// ── Database ──
	setStr(&cfg.Database.DSN, "STAKEHOUSE_DATABASE_DSN")
	setStr(&cfg.Database.DSN, "STAKEHOUSE_DATABASE_URL") // compatibility alias
	setStr(&cfg.Database.Host, "STAKEHOUSE_DATABASE_HOST")
	setInt(&cfg.Database.Port, "STAKEHOUSE_DATABASE_PORT")
	setStr(&cfg.Database.Database, "STAKEHOUSE_DATABASE_NAME")
	setStr(&cfg.Database.User, "STAKEHOUSE_DATABASE_USER")
	setStr(&cfg.Database.Password, "STAKEHOUSE_DATABASE_PASSWORD")
	setStr(&cfg.Database.SSLMode, "STAKEHOUSE_DATABASE_SSLMODE")
	setStr(&cfg.Database.SSLMode, "STAKEHOUSE_DATABASE_SSL_MODE") // compatibility alias
	setInt(&cfg.Database.PoolMaxConns, "STAKEHOUSE_DATABASE_POOL_MAX_CONNS")
	setInt(&cfg.Database.PoolMinConns, "STAKEHOUSE_DATABASE_POOL_MIN_CONNS")
	setBool(&cfg.Database.RunMigrations, "STAKEHOUSE_DATABASE_RUN_MIGRATIONS")

	// ── Redis ──
	setStr(&cfg.Redis.Addr, "STAKEHOUSE_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "STAKEHOUSE_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "STAKEHOUSE_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "STAKEHOUSE_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "STAKEHOUSE_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "STAKEHOUSE_REDIS_TLS_ENABLED")

	// ── S3 ──
	setBool(&cfg.S3.Enabled, "STAKEHOUSE_S3_ENABLED")
	setStr(&cfg.S3.Endpoint, "STAKEHOUSE_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "STAKEHOUSE_S3_REGION")
	setStr(&cfg.S3.Bucket, "STAKEHOUSE_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "STAKEHOUSE_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "STAKEHOUSE_S3_SECRET_KEY")
	setBool(&cfg.S3.UseSSL, "STAKEHOUSE_S3_USE_SSL")
	setBool(&cfg.S3.ForcePathStyle, "STAKEHOUSE_S3_FORCE_PATH_STYLE")
	setStr(&cfg.S3.ArchivePrefix, "STAKEHOUSE_S3_ARCHIVE_PREFIX")

	// ── Server ──
	setBool(&cfg.Server.Enabled, "STAKEHOUSE_SERVER_ENABLED")
	setInt(&cfg.Server.Port, "STAKEHOUSE_SERVER_PORT")
	setStringSlice(&cfg.Server.CORSOrigins, "STAKEHOUSE_SERVER_CORS_ORIGINS")
	setStr(&cfg.Server.APIKey, "STAKEHOUSE_SERVER_API_KEY")
	setInt(&cfg.Server.RateLimit, "STAKEHOUSE_SERVER_RATE_LIMIT")
	setDuration(&cfg.Server.RateWindow, "STAKEHOUSE_SERVER_RATE_WINDOW")

	// ── Notify ──
	setStr(&cfg.Notify.TelegramToken, "STAKEHOUSE_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "STAKEHOUSE_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "STAKEHOUSE_NOTIFY_DISCORD_WEBHOOK_URL")
	setStringSlice(&cfg.Notify.Events, "STAKEHOUSE_NOTIFY_EVENTS")

	// ── Top-level ──
	setStr(&cfg.Mode, "STAKEHOUSE_MODE")
	setStr(&cfg.LogLevel, "STAKEHOUSE_LOG_LEVEL")
}

// ---------------------------------------------------------------------------
// Typed env-var helpers. Each only mutates the target when the environment
// variable is present and non-empty.
// ---------------------------------------------------------------------------

func setStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setInt64(dst *int64, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			*dst = n
		}
	}
}

func setUint64(dst *uint64, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseUint(v, 10, 64); err == nil {
			*dst = n
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			dst.Duration = d
		}
	}
}

func setStringSlice(dst *[]string, key string) {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		cleaned := make([]string, 0, len(parts))
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p != "" {
				cleaned = append(cleaned, p)
			}
		}
		if len(cleaned) > 0 {
			*dst = cleaned
		}
	}
}
