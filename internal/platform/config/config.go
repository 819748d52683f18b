// Package config loads process configuration from the environment.
package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config is the full server configuration.
type Config struct {
	Addr        string `env:"ADDR" envDefault:":3000"`
	Environment string `env:"ENVIRONMENT" envDefault:"sandbox"`
	LogLevel    string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat   string `env:"LOG_FORMAT" envDefault:"json"`

	HTTPReadTimeout  time.Duration `env:"HTTP_READ_TIMEOUT" envDefault:"15s"`
	HTTPWriteTimeout time.Duration `env:"HTTP_WRITE_TIMEOUT" envDefault:"30s"`

	ChainName                     string `env:"CHAIN_NAME" envDefault:"imtbl-zkevm-testnet"`
	CollectionAddress             string `env:"COLLECTION_ADDRESS,required,notEmpty"`
	MaxTokenSupplyAcrossAllPhases int64  `env:"MAX_TOKEN_SUPPLY_ACROSS_ALL_PHASES"`
	PhasesFile                    string `env:"MINT_PHASES_FILE" envDefault:"config/phases.yaml"`
	EOAMintMessage                string `env:"EOA_MINT_MESSAGE" envDefault:"Sign this message to verify your wallet address"`

	CORSAllowedOrigins []string `env:"CORS_ALLOWED_ORIGINS" envSeparator:"," envDefault:"*"`

	Database  DatabaseConfig  `envPrefix:"DATABASE_"`
	Redis     RedisConfig     `envPrefix:"REDIS_"`
	Kafka     KafkaConfig     `envPrefix:"KAFKA_"`
	Provider  ProviderConfig  `envPrefix:"IMMUTABLE_"`
	Passport  PassportConfig  `envPrefix:"PASSPORT_"`
	Webhook   WebhookConfig   `envPrefix:"WEBHOOK_"`
	Metadata  MetadataConfig  `envPrefix:"METADATA_"`
	Reconcile ReconcileConfig `envPrefix:"RECONCILE_"`
	RateLimit RateLimitConfig `envPrefix:"RATE_LIMIT_"`
}

// DatabaseConfig configures the Postgres pool. An empty URL selects the
// in-memory store, which is only suitable for a single local instance.
type DatabaseConfig struct {
	URL             string        `env:"URL"`
	MaxOpenConns    int           `env:"MAX_OPEN_CONNS" envDefault:"25"`
	MaxIdleConns    int           `env:"MAX_IDLE_CONNS" envDefault:"5"`
	ConnMaxLifetime time.Duration `env:"CONN_MAX_LIFETIME" envDefault:"5m"`
	TxTimeout       time.Duration `env:"TX_TIMEOUT" envDefault:"5s"`
	// AutoMigrate applies the embedded schema when the pool opens.
	AutoMigrate bool `env:"AUTO_MIGRATE" envDefault:"false"`
}

// RedisConfig configures the optional Redis used for the reconciliation
// lease and webhook deduplication.
type RedisConfig struct {
	URL          string        `env:"URL"`
	PoolSize     int           `env:"POOL_SIZE" envDefault:"10"`
	MinIdleConns int           `env:"MIN_IDLE_CONNS" envDefault:"2"`
	DialTimeout  time.Duration `env:"DIAL_TIMEOUT" envDefault:"5s"`
	ReadTimeout  time.Duration `env:"READ_TIMEOUT" envDefault:"3s"`
	WriteTimeout time.Duration `env:"WRITE_TIMEOUT" envDefault:"3s"`
}

// KafkaConfig configures event publishing. Empty brokers disable it.
type KafkaConfig struct {
	Brokers         string        `env:"BROKERS"`
	ClientID        string        `env:"CLIENT_ID" envDefault:"mintgate"`
	Topic           string        `env:"TOPIC" envDefault:"mintgate.mints"`
	Acks            string        `env:"ACKS" envDefault:"all"`
	Retries         int           `env:"RETRIES" envDefault:"3"`
	DeliveryTimeout time.Duration `env:"DELIVERY_TIMEOUT" envDefault:"10s"`
	ProduceTimeout  time.Duration `env:"PRODUCE_TIMEOUT" envDefault:"5s"`
}

// ProviderConfig configures the minting API client.
type ProviderConfig struct {
	APIURL string `env:"API_URL" envDefault:"https://api.sandbox.immutable.com"`
	APIKey string `env:"API_KEY"`
	// APIKeySecret is a Secret Manager version name; when set it wins over APIKey.
	APIKeySecret     string        `env:"API_KEY_SECRET"`
	Timeout          time.Duration `env:"TIMEOUT" envDefault:"10s"`
	SubmitTimeout    time.Duration `env:"SUBMIT_TIMEOUT" envDefault:"10s"`
	BreakerThreshold int           `env:"BREAKER_THRESHOLD" envDefault:"5"`
	BreakerCooldown  time.Duration `env:"BREAKER_COOLDOWN" envDefault:"30s"`
}

type PassportConfig struct {
	JWKSURL  string `env:"JWKS_URL" envDefault:"https://auth.immutable.com/.well-known/jwks.json"`
	Issuer   string `env:"ISSUER"`
	Audience string `env:"AUDIENCE"`
}

type WebhookConfig struct {
	AllowedTopicARN string        `env:"ALLOWED_TOPIC_ARN" envDefault:"arn:aws:sns:us-east-2:783421985614:*"`
	DedupTTL        time.Duration `env:"DEDUP_TTL" envDefault:"24h"`
}

// MetadataConfig selects the metadata source: a GCS bucket when Bucket is
// set, otherwise a local directory.
type MetadataConfig struct {
	Dir    string `env:"DIR" envDefault:"tokens/metadata"`
	Bucket string `env:"BUCKET"`
	Prefix string `env:"PREFIX"`
}

type ReconcileConfig struct {
	Enabled     bool          `env:"ENABLED" envDefault:"true"`
	Interval    time.Duration `env:"INTERVAL" envDefault:"30s"`
	BatchSize   int           `env:"BATCH_SIZE" envDefault:"100"`
	Concurrency int           `env:"CONCURRENCY" envDefault:"4"`
	CallTimeout time.Duration `env:"CALL_TIMEOUT" envDefault:"5s"`
	MinAge      time.Duration `env:"MIN_AGE" envDefault:"1m"`
	// PendingExpiry marks rows unknown to the provider failed after this age. Zero disables it.
	PendingExpiry time.Duration `env:"PENDING_EXPIRY"`
	// Resubmit sends rows the provider has no record of again, under the same reference id.
	Resubmit bool `env:"RESUBMIT" envDefault:"true"`
}

// RateLimitConfig sets per-IP budgets. Limits are shared across instances
// when Redis is configured and per process otherwise.
type RateLimitConfig struct {
	Enabled      bool          `env:"ENABLED" envDefault:"true"`
	MintRequests int           `env:"MINT_REQUESTS" envDefault:"10"`
	ReadRequests int           `env:"READ_REQUESTS" envDefault:"120"`
	Window       time.Duration `env:"WINDOW" envDefault:"1m"`
}

// Load parses the environment into a Config.
func Load() (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	return &cfg, nil
}

// ToolConfig is the subset offline tools need; it does not require the
// collection or provider settings.
type ToolConfig struct {
	LogLevel  string         `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat string         `env:"LOG_FORMAT" envDefault:"text"`
	Database  DatabaseConfig `envPrefix:"DATABASE_"`
}

// LoadTool parses the environment into a ToolConfig.
func LoadTool() (*ToolConfig, error) {
	var cfg ToolConfig
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	return &cfg, nil
}
