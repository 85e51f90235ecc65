package config

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/v2"
)

const maxConfigFileSize = 1024 * 1024 // 1MB

// LoadWithFile loads configuration from a YAML file, then overrides
// with environment variables.
//
// Configuration precedence (highest to lowest):
//  1. Environment variables (SERVER_PORT, LLM_BACKEND, etc.)
//  2. YAML config file (~/.config/evidenced/config.yaml)
//  3. Hardcoded defaults
//
// Environment variables use an underscore separator and are uppercased;
// the transformer splits on the first underscore:
//
//	SERVER_PORT        -> server.port
//	LLM_BACKEND        -> llm.backend
//	INGEST_CHUNK_SIZE  -> ingest.chunk_size
//
// OLLAMA_MODEL and OLLAMA_BASE_URL are honored as aliases for
// LLM_MODEL and LLM_BASE_URL.
func LoadWithFile(configPath string) (*Config, error) {
	k := koanf.New(".")

	if configPath == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get home directory: %w", err)
		}
		configPath = filepath.Join(home, ".config", "evidenced", "config.yaml")
	}

	// Load from YAML file if it exists.
	if _, err := os.Stat(configPath); err == nil {
		f, err := os.Open(configPath)
		if err != nil {
			return nil, fmt.Errorf("failed to open config file: %w", err)
		}
		defer f.Close()

		// Validate via the open file descriptor to avoid a TOCTOU race.
		info, err := f.Stat()
		if err != nil {
			return nil, fmt.Errorf("failed to stat config file: %w", err)
		}
		if err := validateConfigFileProperties(info); err != nil {
			return nil, fmt.Errorf("config file validation failed: %w", err)
		}

		content, err := io.ReadAll(f)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}

		if err := k.Load(rawbytes.Provider(content), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", configPath, err)
		}
	}

	// Override with environment variables. SECTION_FIELD_NAME maps to
	// section.field_name: split on the first underscore only.
	if err := k.Load(env.Provider("", ".", func(s string) string {
		lower := strings.ToLower(s)
		parts := strings.SplitN(lower, "_", 2)
		if len(parts) == 1 {
			return lower
		}
		return parts[0] + "." + parts[1]
	}), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	applyEnvAliases(&cfg)
	applyDefaults(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// applyEnvAliases honors the legacy environment names for the ollama
// backend settings. An alias is still an environment override, so it
// beats file values; only the section-derived name (LLM_MODEL,
// LLM_BASE_URL) takes precedence over it.
func applyEnvAliases(cfg *Config) {
	if v := os.Getenv("OLLAMA_MODEL"); v != "" && os.Getenv("LLM_MODEL") == "" {
		cfg.LLM.Model = v
	}
	if v := os.Getenv("OLLAMA_BASE_URL"); v != "" && os.Getenv("LLM_BASE_URL") == "" {
		cfg.LLM.BaseURL = v
	}
}

// validateConfigFileProperties checks file permissions and size.
func validateConfigFileProperties(info os.FileInfo) error {
	// Permission check is skipped on Windows (different permission model).
	if runtime.GOOS != "windows" {
		perm := info.Mode().Perm()
		if perm != 0600 && perm != 0400 {
			return fmt.Errorf("insecure config file permissions: %v (expected 0600 or 0400)", perm)
		}
	}

	if info.Size() > maxConfigFileSize {
		return fmt.Errorf("config file too large: %d bytes (max %d)", info.Size(), maxConfigFileSize)
	}

	return nil
}
