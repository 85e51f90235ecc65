// Package config provides configuration loading for evidenced.
package config

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/fyrsmithlabs/evidenced/internal/vectorstore"
)

// Config is the full evidenced configuration tree.
type Config struct {
	Server      ServerConfig      `koanf:"server"`
	Data        DataConfig        `koanf:"data"`
	VectorStore VectorStoreConfig `koanf:"vectorstore"`
	Embeddings  EmbeddingsConfig  `koanf:"embeddings"`
	LLM         LLMConfig         `koanf:"llm"`
	Ingest      IngestConfig      `koanf:"ingest"`
	Logging     LoggingConfig     `koanf:"logging"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host            string        `koanf:"host"`
	Port            int           `koanf:"port"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
}

// DataConfig locates the corpus on disk.
type DataConfig struct {
	// Dir is the base data directory.
	Dir string `koanf:"dir"`
	// RawDir holds the source documents. Defaults to <dir>/raw.
	RawDir string `koanf:"raw_dir"`
	// StudiesMeta is the studies metadata JSON file.
	// Defaults to <dir>/studies_meta.json.
	StudiesMeta string `koanf:"studies_meta"`
}

// VectorStoreConfig holds chromem persistence settings.
type VectorStoreConfig struct {
	// Path is the vector store directory. Defaults to <data.dir>/vectorstore.
	Path       string `koanf:"path"`
	Collection string `koanf:"collection"`
	Compress   bool   `koanf:"compress"`
	VectorSize int    `koanf:"vector_size"`
}

// EmbeddingsConfig selects and configures the embedding provider.
type EmbeddingsConfig struct {
	// Provider is "fastembed" or "tei".
	Provider string `koanf:"provider"`
	Model    string `koanf:"model"`
	// BaseURL is the TEI server URL (tei provider only).
	BaseURL  string `koanf:"base_url"`
	CacheDir string `koanf:"cache_dir"`
}

// LLMConfig selects and configures the generation backend.
type LLMConfig struct {
	// Backend is "none" or "ollama".
	Backend     string  `koanf:"backend"`
	Model       string  `koanf:"model"`
	BaseURL     string  `koanf:"base_url"`
	Temperature float64 `koanf:"temperature"`
}

// IngestConfig holds chunking parameters.
type IngestConfig struct {
	ChunkSize    int `koanf:"chunk_size"`
	ChunkOverlap int `koanf:"chunk_overlap"`
}

// LoggingConfig holds logger settings.
type LoggingConfig struct {
	// Level is a zap level string: debug, info, warn, error.
	Level string `koanf:"level"`
	// Format is "json" or "console".
	Format string `koanf:"format"`
}

// Generation backends.
const (
	BackendNone   = "none"
	BackendOllama = "ollama"
)

// applyDefaults sets default values for missing configuration fields.
func applyDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8000
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = 10 * time.Second
	}

	if cfg.Data.Dir == "" {
		cfg.Data.Dir = "data"
	}
	if cfg.Data.RawDir == "" {
		cfg.Data.RawDir = filepath.Join(cfg.Data.Dir, "raw")
	}
	if cfg.Data.StudiesMeta == "" {
		cfg.Data.StudiesMeta = filepath.Join(cfg.Data.Dir, "studies_meta.json")
	}

	if cfg.VectorStore.Path == "" {
		cfg.VectorStore.Path = filepath.Join(cfg.Data.Dir, "vectorstore")
	}
	if cfg.VectorStore.Collection == "" {
		cfg.VectorStore.Collection = "clinical_evidence"
	}
	if cfg.VectorStore.VectorSize == 0 {
		cfg.VectorStore.VectorSize = 384 // all-MiniLM-L6-v2 dimensions
	}

	if cfg.Embeddings.Provider == "" {
		cfg.Embeddings.Provider = "fastembed"
	}
	if cfg.Embeddings.Model == "" {
		cfg.Embeddings.Model = "sentence-transformers/all-MiniLM-L6-v2"
	}
	if cfg.Embeddings.BaseURL == "" {
		cfg.Embeddings.BaseURL = "http://localhost:8080"
	}

	if cfg.LLM.Backend == "" {
		cfg.LLM.Backend = BackendNone
	}
	if cfg.LLM.Model == "" {
		cfg.LLM.Model = "llama3"
	}
	if cfg.LLM.BaseURL == "" {
		cfg.LLM.BaseURL = "http://localhost:11434"
	}
	if cfg.LLM.Temperature == 0 {
		cfg.LLM.Temperature = 0.1
	}

	if cfg.Ingest.ChunkSize == 0 {
		cfg.Ingest.ChunkSize = 1000
	}
	if cfg.Ingest.ChunkOverlap == 0 {
		cfg.Ingest.ChunkOverlap = 200
	}

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
}

// Validate checks the configuration. Invalid chunking parameters fail
// here, before anything can loop on a zero-length advance.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}

	if err := vectorstore.ValidateCollectionName(c.VectorStore.Collection); err != nil {
		return err
	}
	if c.VectorStore.VectorSize <= 0 {
		return fmt.Errorf("vector size must be positive: %d", c.VectorStore.VectorSize)
	}

	switch c.Embeddings.Provider {
	case "fastembed", "tei":
	default:
		return fmt.Errorf("unknown embeddings provider %q (expected fastembed or tei)", c.Embeddings.Provider)
	}

	switch c.LLM.Backend {
	case BackendNone, BackendOllama:
	default:
		return fmt.Errorf("unknown llm backend %q (expected none or ollama)", c.LLM.Backend)
	}

	if c.Ingest.ChunkSize <= 0 {
		return fmt.Errorf("chunk size must be positive: %d", c.Ingest.ChunkSize)
	}
	if c.Ingest.ChunkOverlap < 0 || c.Ingest.ChunkOverlap >= c.Ingest.ChunkSize {
		return fmt.Errorf("chunk overlap %d must be non-negative and less than chunk size %d",
			c.Ingest.ChunkOverlap, c.Ingest.ChunkSize)
	}

	switch c.Logging.Format {
	case "json", "console":
	default:
		return fmt.Errorf("unknown logging format %q (expected json or console)", c.Logging.Format)
	}

	return nil
}
