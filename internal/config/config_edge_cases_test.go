package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Edge case tests for scenarios that could cause silent failures or
// unexpected behavior, mirroring the teacher's edge-case suite for the
// parts of config.go that carried over.

func jsonMarshal(v interface{}) ([]byte, error) {
	return json.Marshal(v)
}

func jsonUnmarshal(data []byte, v interface{}) error {
	return json.Unmarshal(data, v)
}

// =============================================================================
// Config Merge Edge Cases
// =============================================================================

func TestLoad_ZeroValuesNotMerged(t *testing.T) {
	// Given: config with explicit zero values
	tmpDir := t.TempDir()
	configContent := `
version: 1
search:
  max_results: 0
  chunk_size: 0
performance:
  max_files: 0
embeddings:
  provider: ollama
`
	err := os.WriteFile(filepath.Join(tmpDir, ".kestrel.yaml"), []byte(configContent), 0o644)
	require.NoError(t, err)

	// When: loading configuration
	cfg, err := Load(tmpDir)

	// Then: defaults are kept (zero values don't override)
	require.NoError(t, err)
	assert.Equal(t, 20, cfg.Search.MaxResults, "Zero should not override default max_results")
	assert.Equal(t, 1500, cfg.Search.ChunkSize, "Zero should not override default chunk_size")
	assert.Equal(t, 100000, cfg.Performance.MaxFiles, "Zero should not override default max_files")
}

func TestLoad_NegativeMaxResults_Validated(t *testing.T) {
	// Given: config with negative max_results
	tmpDir := t.TempDir()
	configContent := `
version: 1
search:
  max_results: -10
`
	err := os.WriteFile(filepath.Join(tmpDir, ".kestrel.yaml"), []byte(configContent), 0o644)
	require.NoError(t, err)

	// When: loading configuration
	cfg, err := Load(tmpDir)

	// Then: validation error is returned
	require.Error(t, err)
	require.Nil(t, cfg)
	assert.Contains(t, err.Error(), "max_results")
}

func TestLoad_WeightsSumValidated(t *testing.T) {
	// Given: a config with weights that don't sum to 1.0
	cfg := New()
	cfg.Search.BM25Weight = 0.9
	cfg.Search.SemanticWeight = 0.9

	// When: validating the configuration
	err := cfg.Validate()

	// Then: validation error is returned
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bm25_weight")
}

// =============================================================================
// Config File Permission Edge Cases
// =============================================================================

func TestLoad_UnreadableConfigFile_ReturnsError(t *testing.T) {
	if os.Getuid() == 0 {
		t.Skip("test requires non-root user")
	}

	// Given: a config file with no read permissions
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, ".kestrel.yaml")
	err := os.WriteFile(configPath, []byte("version: 1"), 0o000)
	require.NoError(t, err)
	defer func() { _ = os.Chmod(configPath, 0o644) }()

	// When: loading configuration
	cfg, err := Load(tmpDir)

	// Then: error should be returned
	require.Error(t, err)
	assert.Nil(t, cfg)
}

// =============================================================================
// Config JSON Marshaling Edge Cases
// =============================================================================

func TestConfig_JSON_RoundTrip(t *testing.T) {
	// Given: a configuration with custom values
	cfg := New()
	cfg.Search.ChunkSize = 2000
	cfg.Search.BM25Weight = 0.4
	cfg.Search.SemanticWeight = 0.6
	cfg.Search.RRFConstant = 100
	cfg.Embeddings.Provider = "static"
	cfg.Collections = []CollectionConfig{{Name: "notes", Root: "/home/user/notes"}}

	// When: marshaling to JSON and back
	data, err := jsonMarshal(cfg)
	require.NoError(t, err)

	var parsed Config
	err = jsonUnmarshal(data, &parsed)
	require.NoError(t, err)

	// Then: all JSON-accessible values are preserved
	assert.Equal(t, 2000, parsed.Search.ChunkSize)
	assert.Equal(t, "static", parsed.Embeddings.Provider)
	assert.Equal(t, 0.4, parsed.Search.BM25Weight)
	assert.Equal(t, 0.6, parsed.Search.SemanticWeight)
	assert.Equal(t, 100, parsed.Search.RRFConstant)
	require.Len(t, parsed.Collections, 1)
	assert.Equal(t, "notes", parsed.Collections[0].Name)
}

func TestConfig_UnmarshalJSON_InvalidJSON_ReturnsError(t *testing.T) {
	// Given: invalid JSON
	invalidJSON := []byte("{invalid json")

	// When: unmarshaling
	var cfg Config
	err := jsonUnmarshal(invalidJSON, &cfg)

	// Then: error is returned
	require.Error(t, err)
}
