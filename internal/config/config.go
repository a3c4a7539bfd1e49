// Package config centralizes how SongAuth reads environment variables and
// exposes them as strongly typed Go values.
package config

import (
	"fmt"
	"strings"

	"github.com/ilyakaznacheev/cleanenv"
)

// Key source kinds accepted in SONGAUTH_KEY_SOURCE.
const (
	KeySourceFile = "file"
	KeySourceEnv  = "env"
	KeySourceS3   = "s3"
)

// Config represents runtime configuration shared by the CLI and the worker.
// Every field maps to a SONGAUTH_* environment variable; defaults live in the
// struct tags so `songauth --help` and the code never disagree.
type Config struct {
	LogLevel  string `env:"SONGAUTH_LOG_LEVEL" env-default:"info" env-description:"Log level (debug, info, warn, error)"`
	LogFormat string `env:"SONGAUTH_LOG_FORMAT" env-default:"console" env-description:"Log encoding (console or json)"`

	Scheme  string `env:"SONGAUTH_SCHEME" env-default:"pkcs1v15-raw" env-description:"Signature scheme (pkcs1v15-raw, pkcs1v15-sha256, pss-sha256)"`
	KeyBits int    `env:"SONGAUTH_KEY_BITS" env-default:"2048" env-description:"Required RSA modulus size; 0 accepts any size of at least 2048 bits"`

	KeySource      string `env:"SONGAUTH_KEY_SOURCE" env-default:"file" env-description:"Where key material is read from (file, env, s3)"`
	PrivateKeyPath string `env:"SONGAUTH_PRIVATE_KEY_FILE" env-default:"songauth.pem" env-description:"PEM private key path for the file source"`
	PublicKeyPath  string `env:"SONGAUTH_PUBLIC_KEY_FILE" env-default:"songauth.pub.pem" env-description:"PEM public key path for the file source"`
	PrivateKeyEnv  string `env:"SONGAUTH_PRIVATE_KEY_ENV" env-default:"SONGAUTH_PRIVATE_KEY_PEM" env-description:"Variable holding the PEM private key for the env source"`
	PublicKeyEnv   string `env:"SONGAUTH_PUBLIC_KEY_ENV" env-default:"SONGAUTH_PUBLIC_KEY_PEM" env-description:"Variable holding the PEM public key for the env source"`

	S3Endpoint       string `env:"SONGAUTH_S3_ENDPOINT" env-default:"localhost:9000" env-description:"S3/MinIO endpoint for the s3 key source"`
	S3AccessKey      string `env:"SONGAUTH_S3_ACCESS_KEY" env-description:"S3 access key"`
	S3SecretKey      string `env:"SONGAUTH_S3_SECRET_KEY" env-description:"S3 secret key"`
	S3UseSSL         bool   `env:"SONGAUTH_S3_USE_SSL" env-default:"false" env-description:"Use TLS for S3"`
	S3Region         string `env:"SONGAUTH_S3_REGION" env-default:"us-east-1" env-description:"S3 region"`
	KeyBucket        string `env:"SONGAUTH_KEY_BUCKET" env-default:"songauth-keys" env-description:"Bucket holding key objects"`
	PrivateKeyObject string `env:"SONGAUTH_PRIVATE_KEY_OBJECT" env-default:"signing/private.pem" env-description:"Object key of the PEM private key"`
	PublicKeyObject  string `env:"SONGAUTH_PUBLIC_KEY_OBJECT" env-default:"signing/public.pem" env-description:"Object key of the PEM public key"`

	DatabaseURL string `env:"SONGAUTH_DATABASE_URL" env-description:"PostgreSQL DSN for the signature ledger; empty keeps records in memory"`

	RedisAddr         string `env:"SONGAUTH_REDIS_ADDR" env-default:"localhost:6379" env-description:"Redis address for signing jobs"`
	RedisPassword     string `env:"SONGAUTH_REDIS_PASSWORD" env-description:"Redis password"`
	RedisDB           int    `env:"SONGAUTH_REDIS_DB" env-default:"0" env-description:"Redis database number"`
	WorkerConcurrency int    `env:"SONGAUTH_WORKER_CONCURRENCY" env-default:"4" env-description:"Concurrent signing jobs per worker"`
	BatchWorkers      int    `env:"SONGAUTH_BATCH_WORKERS" env-default:"4" env-description:"Goroutines used by sign --lines"`
}

const (
	defaultWorkerConcurrency = 4
	defaultBatchWorkers      = 4
)

// Load reads configuration from environment variables falling back to the
// defaults declared on Config.
func Load() (*Config, error) {
	var cfg Config
	if err := cleanenv.ReadEnv(&cfg); err != nil {
		return nil, fmt.Errorf("read environment: %w", err)
	}
	cfg.normalize()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) normalize() {
	c.KeySource = strings.ToLower(strings.TrimSpace(c.KeySource))
	c.LogFormat = strings.ToLower(strings.TrimSpace(c.LogFormat))
	if c.WorkerConcurrency <= 0 {
		c.WorkerConcurrency = defaultWorkerConcurrency
	}
	if c.BatchWorkers <= 0 {
		c.BatchWorkers = defaultBatchWorkers
	}
}

// Validate rejects values that cannot be repaired with a default.
func (c *Config) Validate() error {
	switch c.KeySource {
	case KeySourceFile, KeySourceEnv, KeySourceS3:
	default:
		return fmt.Errorf("invalid key source %q: want %s, %s or %s", c.KeySource, KeySourceFile, KeySourceEnv, KeySourceS3)
	}
	if c.KeyBits < 0 {
		return fmt.Errorf("invalid key size %d", c.KeyBits)
	}
	if c.LogFormat != "console" && c.LogFormat != "json" {
		return fmt.Errorf("invalid log format %q: want console or json", c.LogFormat)
	}
	return nil
}

// Usage describes every supported environment variable.
func Usage() string {
	desc, err := cleanenv.GetDescription(&Config{}, nil)
	if err != nil {
		return ""
	}
	return desc
}
