package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Config holds application configuration
type Config struct {
	OpenAI struct {
		APIKey            string  `yaml:"api_key"`
		BaseURL           string  `yaml:"base_url"`
		ChatModel         string  `yaml:"chat_model"`
		EmbeddingModel    string  `yaml:"embedding_model"`
		RequestsPerSecond float64 `yaml:"requests_per_second"`
	} `yaml:"openai"`
	VectorStore struct {
		Backend string `yaml:"backend"` // memory, qdrant or postgres
		Qdrant  struct {
			URL        string `yaml:"url"`
			APIKey     string `yaml:"api_key"`
			Collection string `yaml:"collection"`
		} `yaml:"qdrant"`
		Postgres struct {
			ConnectionString string `yaml:"connection_string"`
		} `yaml:"postgres"`
	} `yaml:"vector_store"`
	Processing struct {
		ChunkSize    int `yaml:"chunk_size"`
		ChunkOverlap int `yaml:"chunk_overlap"`
		Workers      int `yaml:"workers"`
	} `yaml:"processing"`
	Retrieval struct {
		TopK            int     `yaml:"top_k"`
		Threshold       float64 `yaml:"threshold"`
		MaxContextChars int     `yaml:"max_context_chars"`
	} `yaml:"retrieval"`
	Paths struct {
		DocumentsDir string `yaml:"documents_dir"`
	} `yaml:"paths"`
}

// DefaultPath is where the config lives unless a path is given.
func DefaultPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}
	return filepath.Join(home, ".unihelp", "config.yaml")
}

// Load reads configuration from path, or from DefaultPath when path is
// empty. A missing file yields defaults. Environment variables override
// the file for the secrets and endpoints they name.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		path = DefaultPath()
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			cfg.applyEnv()
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.applyEnv()
	return cfg, nil
}

// Save writes the configuration to path, or to DefaultPath when path is
// empty, creating directories as needed.
func (c *Config) Save(path string) error {
	if path == "" {
		path = DefaultPath()
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	return os.WriteFile(path, data, 0644)
}

// Validate checks the parts of the configuration that would otherwise fail
// deep inside the pipeline.
func (c *Config) Validate() error {
	switch c.VectorStore.Backend {
	case "memory", "qdrant", "postgres":
	default:
		return fmt.Errorf("unknown vector store backend %q", c.VectorStore.Backend)
	}
	if c.Processing.ChunkSize <= 0 {
		return fmt.Errorf("chunk size must be positive, got %d", c.Processing.ChunkSize)
	}
	if c.Processing.ChunkOverlap < 0 || c.Processing.ChunkOverlap >= c.Processing.ChunkSize {
		return fmt.Errorf("chunk overlap %d must be in [0, %d)", c.Processing.ChunkOverlap, c.Processing.ChunkSize)
	}
	return nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv("OPENAI_API_KEY"); v != "" {
		c.OpenAI.APIKey = v
	}
	if v := os.Getenv("OPENAI_BASE_URL"); v != "" {
		c.OpenAI.BaseURL = v
	}
	if v := os.Getenv("UNIHELP_DOCS_DIR"); v != "" {
		c.Paths.DocumentsDir = v
	}
	if v := os.Getenv("QDRANT_URL"); v != "" {
		c.VectorStore.Qdrant.URL = v
	}
	if v := os.Getenv("QDRANT_API_KEY"); v != "" {
		c.VectorStore.Qdrant.APIKey = v
	}
	if v := os.Getenv("DATABASE_URL"); v != "" {
		c.VectorStore.Postgres.ConnectionString = v
	}
}

// Default returns default configuration
func Default() *Config {
	cfg := &Config{}

	cfg.OpenAI.BaseURL = "https://api.openai.com"
	cfg.OpenAI.ChatModel = "gpt-4o-mini"
	cfg.OpenAI.EmbeddingModel = "text-embedding-3-small"
	cfg.OpenAI.RequestsPerSecond = 5

	cfg.VectorStore.Backend = "memory"
	cfg.VectorStore.Qdrant.URL = "http://localhost:6333"
	cfg.VectorStore.Qdrant.Collection = "unihelp_docs"
	cfg.VectorStore.Postgres.ConnectionString = "postgres://postgres@localhost/unihelp?sslmode=disable"

	cfg.Processing.ChunkSize = 512
	cfg.Processing.ChunkOverlap = 50
	cfg.Processing.Workers = 4

	cfg.Retrieval.TopK = 5
	cfg.Retrieval.Threshold = 0.5
	cfg.Retrieval.MaxContextChars = 8000

	cfg.Paths.DocumentsDir = "docs"

	return cfg
}
