// Package config loads kestrel's two-tier YAML configuration: user
// defaults from the XDG config directory, overridden per corpus root
// by a project-local file, overridden again by KESTREL_* environment
// variables.
package config

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the complete kestrel configuration.
type Config struct {
	Version     int                `yaml:"version" json:"version"`
	Collections []CollectionConfig `yaml:"collections" json:"collections"`
	Search      SearchConfig       `yaml:"search" json:"search"`
	Embeddings  EmbeddingsConfig   `yaml:"embeddings" json:"embeddings"`
	Performance PerformanceConfig  `yaml:"performance" json:"performance"`
	Locking     LockingConfig      `yaml:"locking" json:"locking"`
	Jobs        JobsConfig         `yaml:"jobs" json:"jobs"`
	Server      ServerConfig       `yaml:"server" json:"server"`
}

// CollectionConfig is the on-disk shape of spec §3's Collection
// entity: a named root with include/exclude globs, an optional
// pre-sync command, and an optional VCS pull flag.
type CollectionConfig struct {
	Name           string   `yaml:"name" json:"name"`
	Root           string   `yaml:"root" json:"root"`
	Include        []string `yaml:"include" json:"include"`
	Exclude        []string `yaml:"exclude" json:"exclude"`
	PreSyncCommand string   `yaml:"pre_sync_command" json:"pre_sync_command"`
	VCSPull        bool     `yaml:"vcs_pull" json:"vcs_pull"`
}

// SearchConfig configures hybrid search parameters (spec §4.11).
type SearchConfig struct {
	// BM25Weight and SemanticWeight must sum to 1.0.
	BM25Weight     float64 `yaml:"bm25_weight" json:"bm25_weight"`
	SemanticWeight float64 `yaml:"semantic_weight" json:"semantic_weight"`
	// RRFConstant is the reciprocal-rank-fusion smoothing parameter (k).
	RRFConstant      int  `yaml:"rrf_constant" json:"rrf_constant"`
	ChunkSize        int  `yaml:"chunk_size" json:"chunk_size"`
	ChunkOverlap     int  `yaml:"chunk_overlap" json:"chunk_overlap"`
	MaxResults       int  `yaml:"max_results" json:"max_results"`
	ExpansionEnabled bool `yaml:"expansion_enabled" json:"expansion_enabled"`
	RerankEnabled    bool `yaml:"rerank_enabled" json:"rerank_enabled"`
}

// EmbeddingsConfig configures the EmbeddingPort adapter.
type EmbeddingsConfig struct {
	Provider   string `yaml:"provider" json:"provider"`
	Model      string `yaml:"model" json:"model"`
	Dimensions int    `yaml:"dimensions" json:"dimensions"`
	BatchSize  int    `yaml:"batch_size" json:"batch_size"`
	OllamaHost string `yaml:"ollama_host" json:"ollama_host"`
}

// PerformanceConfig configures ingest and index concurrency.
type PerformanceConfig struct {
	MaxFiles      int    `yaml:"max_files" json:"max_files"`
	IndexWorkers  int    `yaml:"index_workers" json:"index_workers"`
	WatchDebounce string `yaml:"watch_debounce" json:"watch_debounce"`
	SQLiteCacheMB int    `yaml:"sqlite_cache_mb" json:"sqlite_cache_mb"`
}

// LockingConfig configures FileLock's bounded-acquisition timeout.
type LockingConfig struct {
	TimeoutSeconds int `yaml:"timeout_seconds" json:"timeout_seconds"`
}

// Timeout returns the configured FileLock acquisition bound.
func (l LockingConfig) Timeout() time.Duration {
	return time.Duration(l.TimeoutSeconds) * time.Second
}

// JobsConfig configures JobManager's completed-job retention.
type JobsConfig struct {
	TTL          string `yaml:"ttl" json:"ttl"`
	MaxCompleted int    `yaml:"max_completed" json:"max_completed"`
}

// TTLDuration parses TTL, falling back to one hour on a bad value.
func (j JobsConfig) TTLDuration() time.Duration {
	d, err := time.ParseDuration(j.TTL)
	if err != nil {
		return 1 * time.Hour
	}
	return d
}

// ServerConfig configures the MCP adapter's transport.
type ServerConfig struct {
	Transport string `yaml:"transport" json:"transport"`
	LogLevel  string `yaml:"log_level" json:"log_level"`
}

// New returns a Config populated with sensible defaults.
func New() *Config {
	return &Config{
		Version:     1,
		Collections: nil,
		Search: SearchConfig{
			BM25Weight:       0.65,
			SemanticWeight:   0.35,
			RRFConstant:      60,
			ChunkSize:        1500,
			ChunkOverlap:     200,
			MaxResults:       20,
			ExpansionEnabled: false,
			RerankEnabled:    false,
		},
		Embeddings: EmbeddingsConfig{
			Model:      "qwen3-embedding:8b",
			BatchSize:  32,
			OllamaHost: "http://localhost:11434",
		},
		Performance: PerformanceConfig{
			MaxFiles:      100000,
			IndexWorkers:  runtime.NumCPU(),
			WatchDebounce: "500ms",
			SQLiteCacheMB: 64,
		},
		Locking: LockingConfig{
			TimeoutSeconds: 5,
		},
		Jobs: JobsConfig{
			TTL:          "1h",
			MaxCompleted: 50,
		},
		Server: ServerConfig{
			Transport: "stdio",
			LogLevel:  "info",
		},
	}
}

// UserConfigPath returns the XDG-compliant path to the user/global
// configuration file: $XDG_CONFIG_HOME/kestrel/config.yaml, or
// ~/.config/kestrel/config.yaml.
func UserConfigPath() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "kestrel", "config.yaml")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".config", "kestrel", "config.yaml")
	}
	return filepath.Join(home, ".config", "kestrel", "config.yaml")
}

// UserConfigDir returns the directory containing the user configuration.
func UserConfigDir() string {
	return filepath.Dir(UserConfigPath())
}

// UserConfigExists reports whether the user configuration file exists.
func UserConfigExists() bool {
	return fileExists(UserConfigPath())
}

func loadUserConfig() (*Config, error) {
	path := UserConfigPath()
	if !fileExists(path) {
		return nil, nil
	}
	cfg := New()
	if err := cfg.loadYAML(path); err != nil {
		return nil, fmt.Errorf("load user config from %s: %w", path, err)
	}
	return cfg, nil
}

// Load applies configuration in order of increasing precedence:
// hardcoded defaults, the user/global config, the project override
// (`.kestrel.yaml` in dir), then KESTREL_* environment variables.
// The result is validated before being returned.
func Load(dir string) (*Config, error) {
	cfg := New()

	if userCfg, err := loadUserConfig(); err != nil {
		return nil, fmt.Errorf("load user config: %w", err)
	} else if userCfg != nil {
		cfg.mergeWith(userCfg)
	}

	if err := cfg.loadProjectOverride(dir); err != nil {
		return nil, err
	}

	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

func (c *Config) loadProjectOverride(dir string) error {
	for _, name := range []string{".kestrel.yaml", ".kestrel.yml"} {
		path := filepath.Join(dir, name)
		if fileExists(path) {
			return c.loadYAML(path)
		}
	}
	return nil
}

func (c *Config) loadYAML(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file %s: %w", path, err)
	}

	var parsed Config
	if err := yaml.Unmarshal(data, &parsed); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}

	c.mergeWith(&parsed)
	return nil
}

// mergeWith overlays non-zero values from other onto c.
func (c *Config) mergeWith(other *Config) {
	if other.Version != 0 {
		c.Version = other.Version
	}
	if len(other.Collections) > 0 {
		c.Collections = other.Collections
	}

	if other.Search.BM25Weight != 0 {
		c.Search.BM25Weight = other.Search.BM25Weight
	}
	if other.Search.SemanticWeight != 0 {
		c.Search.SemanticWeight = other.Search.SemanticWeight
	}
	if other.Search.RRFConstant != 0 {
		c.Search.RRFConstant = other.Search.RRFConstant
	}
	if other.Search.ChunkSize != 0 {
		c.Search.ChunkSize = other.Search.ChunkSize
	}
	if other.Search.ChunkOverlap != 0 {
		c.Search.ChunkOverlap = other.Search.ChunkOverlap
	}
	if other.Search.MaxResults != 0 {
		c.Search.MaxResults = other.Search.MaxResults
	}
	if other.Search.ExpansionEnabled {
		c.Search.ExpansionEnabled = true
	}
	if other.Search.RerankEnabled {
		c.Search.RerankEnabled = true
	}

	if other.Embeddings.Provider != "" {
		c.Embeddings.Provider = other.Embeddings.Provider
	}
	if other.Embeddings.Model != "" {
		c.Embeddings.Model = other.Embeddings.Model
	}
	if other.Embeddings.Dimensions != 0 {
		c.Embeddings.Dimensions = other.Embeddings.Dimensions
	}
	if other.Embeddings.BatchSize != 0 {
		c.Embeddings.BatchSize = other.Embeddings.BatchSize
	}
	if other.Embeddings.OllamaHost != "" {
		c.Embeddings.OllamaHost = other.Embeddings.OllamaHost
	}

	if other.Performance.MaxFiles != 0 {
		c.Performance.MaxFiles = other.Performance.MaxFiles
	}
	if other.Performance.IndexWorkers != 0 {
		c.Performance.IndexWorkers = other.Performance.IndexWorkers
	}
	if other.Performance.WatchDebounce != "" {
		c.Performance.WatchDebounce = other.Performance.WatchDebounce
	}
	if other.Performance.SQLiteCacheMB != 0 {
		c.Performance.SQLiteCacheMB = other.Performance.SQLiteCacheMB
	}

	if other.Locking.TimeoutSeconds != 0 {
		c.Locking.TimeoutSeconds = other.Locking.TimeoutSeconds
	}

	if other.Jobs.TTL != "" {
		c.Jobs.TTL = other.Jobs.TTL
	}
	if other.Jobs.MaxCompleted != 0 {
		c.Jobs.MaxCompleted = other.Jobs.MaxCompleted
	}

	if other.Server.Transport != "" {
		c.Server.Transport = other.Server.Transport
	}
	if other.Server.LogLevel != "" {
		c.Server.LogLevel = other.Server.LogLevel
	}
}

// applyEnvOverrides applies KESTREL_* environment variable overrides,
// which take precedence over both config files.
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("KESTREL_BM25_WEIGHT"); v != "" {
		if w, err := parseFloat64(v); err == nil && w >= 0 && w <= 1 {
			c.Search.BM25Weight = w
		}
	}
	if v := os.Getenv("KESTREL_SEMANTIC_WEIGHT"); v != "" {
		if w, err := parseFloat64(v); err == nil && w >= 0 && w <= 1 {
			c.Search.SemanticWeight = w
		}
	}
	if v := os.Getenv("KESTREL_RRF_CONSTANT"); v != "" {
		if k, err := strconv.Atoi(v); err == nil && k > 0 {
			c.Search.RRFConstant = k
		}
	}
	if v := os.Getenv("KESTREL_EMBEDDINGS_PROVIDER"); v != "" {
		c.Embeddings.Provider = v
	}
	if v := os.Getenv("KESTREL_EMBEDDINGS_MODEL"); v != "" {
		c.Embeddings.Model = v
	}
	if v := os.Getenv("KESTREL_OLLAMA_HOST"); v != "" {
		c.Embeddings.OllamaHost = v
	}
	if v := os.Getenv("KESTREL_LOG_LEVEL"); v != "" {
		c.Server.LogLevel = v
	}
	if v := os.Getenv("KESTREL_TRANSPORT"); v != "" {
		c.Server.Transport = v
	}
	if v := os.Getenv("KESTREL_LOCK_TIMEOUT_SECONDS"); v != "" {
		if s, err := strconv.Atoi(v); err == nil && s > 0 {
			c.Locking.TimeoutSeconds = s
		}
	}
}

func parseFloat64(s string) (float64, error) {
	var f float64
	_, err := fmt.Sscanf(strings.TrimSpace(s), "%f", &f)
	return f, err
}

// Validate reports a descriptive error for an inconsistent config.
func (c *Config) Validate() error {
	if c.Search.BM25Weight < 0 || c.Search.BM25Weight > 1 {
		return fmt.Errorf("search.bm25_weight must be between 0 and 1, got %f", c.Search.BM25Weight)
	}
	if c.Search.SemanticWeight < 0 || c.Search.SemanticWeight > 1 {
		return fmt.Errorf("search.semantic_weight must be between 0 and 1, got %f", c.Search.SemanticWeight)
	}
	if sum := c.Search.BM25Weight + c.Search.SemanticWeight; math.Abs(sum-1.0) > 0.01 {
		return fmt.Errorf("search.bm25_weight + search.semantic_weight must equal 1.0, got %.2f", sum)
	}
	if c.Search.MaxResults < 0 {
		return fmt.Errorf("search.max_results must be non-negative, got %d", c.Search.MaxResults)
	}
	if c.Search.ChunkSize < 0 {
		return fmt.Errorf("search.chunk_size must be non-negative, got %d", c.Search.ChunkSize)
	}

	validTransports := map[string]bool{"stdio": true, "sse": true}
	if !validTransports[strings.ToLower(c.Server.Transport)] {
		return fmt.Errorf("server.transport must be 'stdio' or 'sse', got %s", c.Server.Transport)
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(c.Server.LogLevel)] {
		return fmt.Errorf("server.log_level must be 'debug', 'info', 'warn', or 'error', got %s", c.Server.LogLevel)
	}

	seen := make(map[string]bool, len(c.Collections))
	for _, col := range c.Collections {
		name := normalizeCollectionName(col.Name)
		if name == "" {
			return fmt.Errorf("collections: name must not be empty")
		}
		if seen[name] {
			return fmt.Errorf("collections: duplicate name %q", col.Name)
		}
		seen[name] = true
		if col.Root == "" {
			return fmt.Errorf("collection %q: root must not be empty", col.Name)
		}
	}

	return nil
}

// normalizeCollectionName applies the case-insensitive primary-key
// normalization spec §3 requires for Collection names.
func normalizeCollectionName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// WriteYAML writes the configuration to path.
func (c *Config) WriteYAML(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write config file: %w", err)
	}
	return nil
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return !info.IsDir()
}
