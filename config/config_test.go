package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "memory", cfg.VectorStore.Backend)
	assert.Equal(t, 512, cfg.Processing.ChunkSize)
	assert.Equal(t, 50, cfg.Processing.ChunkOverlap)
	assert.Equal(t, 5, cfg.Retrieval.TopK)
	assert.InDelta(t, 0.5, cfg.Retrieval.Threshold, 1e-9)
	assert.Equal(t, "gpt-4o-mini", cfg.OpenAI.ChatModel)
}

func TestSaveLoadRoundTrip(t *testing.T) {
	t.Setenv("UNIHELP_DOCS_DIR", "")
	path := filepath.Join(t.TempDir(), "sub", "config.yaml")

	cfg := Default()
	cfg.VectorStore.Backend = "qdrant"
	cfg.VectorStore.Qdrant.URL = "http://qdrant:6333"
	cfg.Processing.ChunkSize = 256
	cfg.Paths.DocumentsDir = "/srv/docs"
	require.NoError(t, cfg.Save(path))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "qdrant", loaded.VectorStore.Backend)
	assert.Equal(t, "http://qdrant:6333", loaded.VectorStore.Qdrant.URL)
	assert.Equal(t, 256, loaded.Processing.ChunkSize)
	assert.Equal(t, "/srv/docs", loaded.Paths.DocumentsDir)
}

func TestLoadPartialFileKeepsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("processing:\n  chunk_size: 128\n"), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 128, cfg.Processing.ChunkSize)
	assert.Equal(t, 50, cfg.Processing.ChunkOverlap)
	assert.Equal(t, "memory", cfg.VectorStore.Backend)
}

func TestLoadMalformedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("openai: [not a mapping"), 0644))

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse config")
}

func TestEnvironmentOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	cfg := Default()
	cfg.OpenAI.APIKey = "from-file"
	require.NoError(t, cfg.Save(path))

	t.Setenv("OPENAI_API_KEY", "from-env")
	t.Setenv("UNIHELP_DOCS_DIR", "/tmp/other-docs")

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "from-env", loaded.OpenAI.APIKey)
	assert.Equal(t, "/tmp/other-docs", loaded.Paths.DocumentsDir)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"defaults are valid", func(c *Config) {}, ""},
		{"qdrant backend", func(c *Config) { c.VectorStore.Backend = "qdrant" }, ""},
		{"unknown backend", func(c *Config) { c.VectorStore.Backend = "redis" }, "unknown vector store backend"},
		{"zero chunk size", func(c *Config) { c.Processing.ChunkSize = 0 }, "chunk size must be positive"},
		{"overlap too large", func(c *Config) { c.Processing.ChunkOverlap = 512 }, "chunk overlap"},
		{"negative overlap", func(c *Config) { c.Processing.ChunkOverlap = -1 }, "chunk overlap"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
			} else {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
			}
		})
	}
}
