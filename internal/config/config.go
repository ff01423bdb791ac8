// Package config provides application configuration.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// Default configuration values.
const (
	DefaultHost            = "0.0.0.0"
	DefaultPort            = 8080
	DefaultLogLevel        = "INFO"
	DefaultQueryLRUSize    = 1024
	DefaultQueryTimeout    = 30 * time.Second
	DefaultEmbedQueueDepth = 256
	DefaultEmbedBatchSize  = 64
	DefaultLexicalDim      = 64
	DefaultSearchLimit     = 10
	MaxSearchLimit         = 100
	MaxQueryBytes          = 1024
)

// EmbeddingBackend identifies the embedding provider implementation.
type EmbeddingBackend string

// EmbeddingBackend values.
const (
	BackendNeural  EmbeddingBackend = "neural"
	BackendLexical EmbeddingBackend = "lexical"
	BackendRemote  EmbeddingBackend = "remote"
)

// LogFormat represents the log output format.
type LogFormat string

// LogFormat values.
const (
	LogFormatPretty LogFormat = "pretty"
	LogFormatJSON   LogFormat = "json"
)

// AppConfig is the resolved application configuration.
type AppConfig struct {
	host             string
	port             int
	dataDir          string
	dbURL            string
	logLevel         string
	logFormat        LogFormat
	embeddingBackend EmbeddingBackend
	embeddingDim     int
	indexDir         string
	modelDir         string
	queryLRUSize     int
	queryTimeout     time.Duration
	embedQueueDepth  int
	embedBatchSize   int
	remoteBaseURL    string
	remoteModel      string
	remoteAPIKey     string
	apiKeys          []string
	seedFile         string
}

// Host returns the server host.
func (c AppConfig) Host() string { return c.host }

// Port returns the server port.
func (c AppConfig) Port() int { return c.port }

// Addr returns the host:port bind address.
func (c AppConfig) Addr() string { return fmt.Sprintf("%s:%d", c.host, c.port) }

// DataDir returns the data directory path.
func (c AppConfig) DataDir() string { return c.dataDir }

// DBURL returns the registry database URL.
func (c AppConfig) DBURL() string { return c.dbURL }

// LogLevel returns the log verbosity level.
func (c AppConfig) LogLevel() string { return c.logLevel }

// LogFormat returns the log output format.
func (c AppConfig) LogFormat() LogFormat { return c.logFormat }

// EmbeddingBackend returns the configured embedding backend.
func (c AppConfig) EmbeddingBackend() EmbeddingBackend { return c.embeddingBackend }

// EmbeddingDim returns the vector dimension for the lexical backend.
// The neural backend fixes its own dimension.
func (c AppConfig) EmbeddingDim() int { return c.embeddingDim }

// IndexDir returns the directory holding index snapshots.
func (c AppConfig) IndexDir() string { return c.indexDir }

// ModelDir returns the directory holding lexical model artifacts.
func (c AppConfig) ModelDir() string { return c.modelDir }

// QueryLRUSize returns the query embedding cache capacity.
func (c AppConfig) QueryLRUSize() int { return c.queryLRUSize }

// QueryTimeout returns the per-query deadline.
func (c AppConfig) QueryTimeout() time.Duration { return c.queryTimeout }

// EmbedQueueDepth returns the bounded embedding work queue depth.
func (c AppConfig) EmbedQueueDepth() int { return c.embedQueueDepth }

// EmbedBatchSize returns the number of texts embedded per batch during rebuilds.
func (c AppConfig) EmbedBatchSize() int { return c.embedBatchSize }

// RemoteBaseURL returns the base URL of the remote embedding endpoint.
func (c AppConfig) RemoteBaseURL() string { return c.remoteBaseURL }

// RemoteModel returns the remote embedding model identifier.
func (c AppConfig) RemoteModel() string { return c.remoteModel }

// RemoteAPIKey returns the remote embedding API key.
func (c AppConfig) RemoteAPIKey() string { return c.remoteAPIKey }

// APIKeys returns the accepted API keys for the HTTP surface.
func (c AppConfig) APIKeys() []string {
	keys := make([]string, len(c.apiKeys))
	copy(keys, c.apiKeys)
	return keys
}

// SeedFile returns the optional YAML registry seed file path.
func (c AppConfig) SeedFile() string { return c.seedFile }

// WithHost returns a copy with the server host replaced.
func (c AppConfig) WithHost(host string) AppConfig {
	c.host = host
	return c
}

// WithPort returns a copy with the server port replaced.
func (c AppConfig) WithPort(port int) AppConfig {
	c.port = port
	return c
}

// WithDBURL returns a copy with the registry database URL replaced.
func (c AppConfig) WithDBURL(url string) AppConfig {
	c.dbURL = url
	return c
}

// WithSeedFile returns a copy with the registry seed file replaced.
func (c AppConfig) WithSeedFile(path string) AppConfig {
	c.seedFile = path
	return c
}

// WithEmbeddingBackend returns a copy with the embedding backend replaced.
func (c AppConfig) WithEmbeddingBackend(backend EmbeddingBackend) AppConfig {
	c.embeddingBackend = backend
	return c
}

// WithAPIKeys returns a copy with the accepted API keys replaced.
func (c AppConfig) WithAPIKeys(keys ...string) AppConfig {
	c.apiKeys = append([]string{}, keys...)
	return c
}

// EnsureDataDir creates the data, index, and model directories if missing.
func (c AppConfig) EnsureDataDir() error {
	for _, dir := range []string{c.dataDir, c.indexDir, c.modelDir} {
		if dir == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %s: %w", dir, err)
		}
	}
	return nil
}

// Validate checks configuration invariants that cannot be expressed as
// envconfig defaults.
func (c AppConfig) Validate() error {
	switch c.embeddingBackend {
	case BackendNeural, BackendLexical, BackendRemote:
	default:
		return fmt.Errorf("invalid EMBEDDING_BACKEND %q: must be neural, lexical, or remote", c.embeddingBackend)
	}
	if c.embeddingDim <= 0 {
		return fmt.Errorf("EMBEDDING_DIM must be positive, got %d", c.embeddingDim)
	}
	if c.embeddingBackend == BackendRemote && c.remoteModel == "" {
		return fmt.Errorf("EMBEDDING_REMOTE_MODEL is required for the remote backend")
	}
	return nil
}

// SnapshotPath returns the snapshot base path for the named index,
// e.g. "services" -> data/indexes/services.
func (c AppConfig) SnapshotPath(name string) string {
	return filepath.Join(c.indexDir, name)
}
