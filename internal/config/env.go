// Package config provides application configuration.
package config

import (
	"path/filepath"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// EnvConfig holds all environment-based configuration.
type EnvConfig struct {
	// Host is the server host to bind to.
	// Env: HOST (default: 0.0.0.0)
	Host string `envconfig:"HOST" default:"0.0.0.0"`

	// Port is the server port to listen on.
	// Env: PORT (default: 8080)
	Port int `envconfig:"PORT" default:"8080"`

	// DataDir is the data directory path.
	// Env: DATA_DIR (default: data)
	DataDir string `envconfig:"DATA_DIR" default:"data"`

	// DBURL is the registry database connection URL.
	// Env: DB_URL
	// Default: sqlite:///{data_dir}/registry.db
	DBURL string `envconfig:"DB_URL"`

	// LogLevel is the log verbosity level.
	// Env: LOG_LEVEL (default: INFO)
	LogLevel string `envconfig:"LOG_LEVEL" default:"INFO"`

	// LogFormat is the log output format (pretty or json).
	// Env: LOG_FORMAT (default: pretty)
	LogFormat string `envconfig:"LOG_FORMAT" default:"pretty"`

	// EmbeddingBackend selects the embedding provider.
	// Env: EMBEDDING_BACKEND (default: neural)
	EmbeddingBackend string `envconfig:"EMBEDDING_BACKEND" default:"neural"`

	// EmbeddingDim is the vector dimension for the lexical backend.
	// The neural backend fixes its own dimension.
	// Env: EMBEDDING_DIM (default: 64)
	EmbeddingDim int `envconfig:"EMBEDDING_DIM" default:"64"`

	// IndexDir is the directory holding index snapshots.
	// Env: INDEX_DIR (default: {data_dir}/indexes)
	IndexDir string `envconfig:"INDEX_DIR"`

	// QueryLRUSize is the query embedding cache capacity.
	// Env: QUERY_LRU_SIZE (default: 1024)
	QueryLRUSize int `envconfig:"QUERY_LRU_SIZE" default:"1024"`

	// QueryTimeoutMS is the per-query deadline in milliseconds.
	// Env: QUERY_TIMEOUT_MS (default: 30000)
	QueryTimeoutMS int `envconfig:"QUERY_TIMEOUT_MS" default:"30000"`

	// EmbedQueueDepth bounds the embedding work queue.
	// Env: EMBED_QUEUE_DEPTH (default: 256)
	EmbedQueueDepth int `envconfig:"EMBED_QUEUE_DEPTH" default:"256"`

	// EmbedBatchSize is the number of texts per embedding batch on rebuild.
	// Env: EMBED_BATCH_SIZE (default: 64)
	EmbedBatchSize int `envconfig:"EMBED_BATCH_SIZE" default:"64"`

	// Remote configures the OpenAI-compatible remote embedding endpoint.
	Remote RemoteEnv `envconfig:"EMBEDDING_REMOTE"`

	// APIKeys is a comma-separated list of valid API keys.
	// Env: API_KEYS
	APIKeys string `envconfig:"API_KEYS"`

	// SeedFile is an optional YAML registry seed file loaded at startup.
	// Env: SEED_FILE
	SeedFile string `envconfig:"SEED_FILE"`
}

// RemoteEnv holds environment configuration for the remote embedding endpoint.
type RemoteEnv struct {
	// BaseURL is the endpoint base URL.
	// Env: EMBEDDING_REMOTE_BASE_URL
	BaseURL string `envconfig:"BASE_URL"`

	// Model is the embedding model identifier.
	// Env: EMBEDDING_REMOTE_MODEL
	Model string `envconfig:"MODEL"`

	// APIKey is the API key for authentication.
	// Env: EMBEDDING_REMOTE_API_KEY
	APIKey string `envconfig:"API_KEY"`
}

// LoadFromEnv loads configuration from environment variables.
func LoadFromEnv() (EnvConfig, error) {
	var cfg EnvConfig
	if err := envconfig.Process("", &cfg); err != nil {
		return EnvConfig{}, err
	}
	return cfg, nil
}

// Normalize fills in derived defaults that depend on other fields.
func (e EnvConfig) Normalize() EnvConfig {
	if e.IndexDir == "" {
		e.IndexDir = filepath.Join(e.DataDir, "indexes")
	}
	if e.DBURL == "" {
		e.DBURL = "sqlite:///" + filepath.Join(e.DataDir, "registry.db")
	}
	return e
}

// ToAppConfig converts the environment configuration to an AppConfig.
func (e EnvConfig) ToAppConfig() AppConfig {
	var keys []string
	for _, k := range strings.Split(e.APIKeys, ",") {
		k = strings.TrimSpace(k)
		if k != "" {
			keys = append(keys, k)
		}
	}

	return AppConfig{
		host:             e.Host,
		port:             e.Port,
		dataDir:          e.DataDir,
		dbURL:            e.DBURL,
		logLevel:         e.LogLevel,
		logFormat:        LogFormat(strings.ToLower(e.LogFormat)),
		embeddingBackend: EmbeddingBackend(strings.ToLower(e.EmbeddingBackend)),
		embeddingDim:     e.EmbeddingDim,
		indexDir:         e.IndexDir,
		modelDir:         filepath.Join(e.DataDir, "models"),
		queryLRUSize:     e.QueryLRUSize,
		queryTimeout:     time.Duration(e.QueryTimeoutMS) * time.Millisecond,
		embedQueueDepth:  e.EmbedQueueDepth,
		embedBatchSize:   e.EmbedBatchSize,
		remoteBaseURL:    e.Remote.BaseURL,
		remoteModel:      e.Remote.Model,
		remoteAPIKey:     e.Remote.APIKey,
		apiKeys:          keys,
		seedFile:         e.SeedFile,
	}
}
