package embed

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

// ProviderType represents an embedding provider.
type ProviderType string

const (
	// ProviderOllama uses the Ollama HTTP API for embeddings (default).
	ProviderOllama ProviderType = "ollama"

	// ProviderStatic uses hash-based embeddings (an alternative when Ollama is unavailable).
	ProviderStatic ProviderType = "static"
)

// NewEmbedder creates an embedder based on provider type. It does not fall
// back to another provider: if the selected one cannot be built, it returns the error.
// The KESTREL_EMBEDDER environment variable can override the provider:
//   - "ollama": Use OllamaEmbedder (default, requires a running Ollama server)
//   - "static": Use StaticEmbedder768 (no network, deterministic, lower recall)
//
// Query embedding caching is enabled by default (saves 50-200ms per repeated
// query). Set KESTREL_EMBED_CACHE=false to disable it.
func NewEmbedder(ctx context.Context, provider ProviderType, model string) (Embedder, error) {
	var embedder Embedder
	var err error

	// Track whether the provider was selected explicitly through the
	// environment; KESTREL_EMBEDDER takes precedence over provider.
	envProvider := os.Getenv("KESTREL_EMBEDDER")
	explicitSelection := envProvider != ""
	if envProvider != "" {
		switch strings.ToLower(envProvider) {
		case "ollama":
			embedder, err = newOllamaWithFallback(ctx, model, explicitSelection)
		case "static":
			embedder, err = NewStaticEmbedder768(), nil
		}
	}

	if embedder == nil && err == nil {
		switch provider {
		case ProviderOllama:
			embedder, err = newOllamaWithFallback(ctx, model, false)

		case ProviderStatic:
			embedder, err = NewStaticEmbedder768(), nil

		default:
			embedder, err = newOllamaWithFallback(ctx, model, false)
		}
	}

	if err != nil {
		return nil, err
	}

	if !isCacheDisabled() {
		embedder = NewCachedEmbedderWithDefaults(embedder)
	}

	return embedder, nil
}

// isCacheDisabled checks if embedding cache is disabled via environment.
func isCacheDisabled() bool {
	v := strings.ToLower(os.Getenv("KESTREL_EMBED_CACHE"))
	return v == "false" || v == "0" || v == "off" || v == "disabled"
}

// newOllamaWithFallback creates an Ollama embedder. It returns a clear
// error rather than silently falling back to static embeddings, so a
// sync/search/capture operation that expects vector search doesn't
// degrade to BM25-only without the caller knowing why.
func newOllamaWithFallback(ctx context.Context, model string, _ bool) (Embedder, error) {
	cfg := DefaultOllamaConfig()
	if model != "" && isOllamaModelName(model) {
		cfg.Model = model
	}

	if host := os.Getenv("KESTREL_OLLAMA_HOST"); host != "" {
		cfg.Host = host
	}
	if modelOverride := os.Getenv("KESTREL_OLLAMA_MODEL"); modelOverride != "" {
		cfg.Model = modelOverride
	}
	if timeoutStr := os.Getenv("KESTREL_OLLAMA_TIMEOUT"); timeoutStr != "" {
		if timeout, err := time.ParseDuration(timeoutStr); err == nil {
			cfg.Timeout = timeout
		}
	}

	// Thermal management: config file settings first, env vars override.
	if globalThermalConfig.InterBatchDelay > 0 {
		delay := globalThermalConfig.InterBatchDelay
		if delay > MaxInterBatchDelay {
			delay = MaxInterBatchDelay
		}
		cfg.InterBatchDelay = delay
	}
	if globalThermalConfig.TimeoutProgression >= 1.0 {
		progression := globalThermalConfig.TimeoutProgression
		if progression > MaxTimeoutProgression {
			progression = MaxTimeoutProgression
		}
		cfg.TimeoutProgression = progression
	}
	if globalThermalConfig.RetryTimeoutMultiplier >= 1.0 {
		mult := globalThermalConfig.RetryTimeoutMultiplier
		if mult > MaxRetryTimeoutMultiplier {
			mult = MaxRetryTimeoutMultiplier
		}
		cfg.RetryTimeoutMultiplier = mult
	}

	if delayStr := os.Getenv("KESTREL_INTER_BATCH_DELAY"); delayStr != "" {
		if delay, err := time.ParseDuration(delayStr); err == nil && delay >= 0 {
			if delay > MaxInterBatchDelay {
				delay = MaxInterBatchDelay
			}
			cfg.InterBatchDelay = delay
		}
	}
	if progressionStr := os.Getenv("KESTREL_TIMEOUT_PROGRESSION"); progressionStr != "" {
		if progression, err := parseFloat64(progressionStr); err == nil && progression >= 1.0 {
			if progression > MaxTimeoutProgression {
				progression = MaxTimeoutProgression
			}
			cfg.TimeoutProgression = progression
		}
	}
	if retryMultStr := os.Getenv("KESTREL_RETRY_TIMEOUT_MULTIPLIER"); retryMultStr != "" {
		if mult, err := parseFloat64(retryMultStr); err == nil && mult >= 1.0 {
			if mult > MaxRetryTimeoutMultiplier {
				mult = MaxRetryTimeoutMultiplier
			}
			cfg.RetryTimeoutMultiplier = mult
		}
	}

	embedder, err := NewOllamaEmbedder(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("ollama unavailable: %w\n\nTo fix:\n  1. Start Ollama: ollama serve\n  2. Or use static embeddings: KESTREL_EMBEDDER=static", err)
	}
	return embedder, nil
}

// ThermalConfig holds thermal management settings loaded from config.
type ThermalConfig struct {
	InterBatchDelay        time.Duration // Pause between batches for GPU cooling
	TimeoutProgression     float64       // Timeout multiplier for later batches (1.0-3.0)
	RetryTimeoutMultiplier float64       // Timeout multiplier per retry (1.0-2.0)
}

// globalThermalConfig holds config file settings set via SetThermalConfig.
// Env vars take precedence over these values.
var globalThermalConfig ThermalConfig

// SetThermalConfig sets thermal management config from the user's
// config file. Call before NewEmbedder so config file settings apply;
// environment variables still take precedence over it.
func SetThermalConfig(cfg ThermalConfig) {
	globalThermalConfig = cfg
	if cfg.InterBatchDelay > 0 || cfg.TimeoutProgression != 0 || cfg.RetryTimeoutMultiplier != 0 {
		slog.Debug("thermal_config_set",
			slog.Duration("inter_batch_delay", cfg.InterBatchDelay),
			slog.Float64("timeout_progression", cfg.TimeoutProgression),
			slog.Float64("retry_timeout_multiplier", cfg.RetryTimeoutMultiplier))
	}
}

// NewDefaultEmbedder creates a static embedder (768 dimensions).
//
// Deprecated: this ignores user configuration and always returns
// StaticEmbedder768, which can cause dimension mismatches if the
// store was built with a different embedder (e.g. Ollama's own
// dimension). Use NewEmbedder with the configured provider instead.
func NewDefaultEmbedder(ctx context.Context) (Embedder, error) {
	return NewEmbedder(ctx, ProviderStatic, "")
}

// ParseProvider converts a string to ProviderType.
func ParseProvider(s string) ProviderType {
	switch strings.ToLower(s) {
	case "ollama":
		return ProviderOllama
	case "static":
		return ProviderStatic
	default:
		return ProviderOllama
	}
}

// String returns the string representation of ProviderType.
func (p ProviderType) String() string {
	return string(p)
}

// isOllamaModelName checks if a model name looks like an Ollama model.
// Ollama models carry a ":" tag (e.g. "qwen3-embedding:8b"); versioned
// GGUF-style names (e.g. "nomic-embed-text-v1.5") and ".gguf" files do
// not.
func isOllamaModelName(model string) bool {
	if strings.Contains(model, ":") {
		return true
	}
	if strings.Contains(model, "-v") && (strings.Contains(model, ".") || strings.HasSuffix(model, "-v1") || strings.HasSuffix(model, "-v2")) {
		return false
	}
	if strings.HasSuffix(strings.ToLower(model), ".gguf") {
		return false
	}
	return false
}

// ValidProviders returns all valid provider names.
func ValidProviders() []string {
	return []string{
		string(ProviderOllama),
		string(ProviderStatic),
	}
}

// IsValidProvider checks if a provider name is valid.
func IsValidProvider(s string) bool {
	lower := strings.ToLower(s)
	for _, p := range ValidProviders() {
		if lower == p {
			return true
		}
	}
	return false
}

// EmbedderInfo contains information about an embedder.
type EmbedderInfo struct {
	Provider   ProviderType
	Model      string
	Dimensions int
	Available  bool
}

// GetInfo returns information about an embedder.
func GetInfo(ctx context.Context, embedder Embedder) EmbedderInfo {
	info := EmbedderInfo{
		Model:      embedder.ModelName(),
		Dimensions: embedder.Dimensions(),
		Available:  embedder.Available(ctx),
	}

	inner := embedder
	if cached, ok := embedder.(*CachedEmbedder); ok {
		inner = cached.inner
	}

	switch inner.(type) {
	case *OllamaEmbedder:
		info.Provider = ProviderOllama
	default:
		info.Provider = ProviderStatic
	}

	return info
}

// MustNewEmbedder creates an embedder and panics on failure. Use only
// in tests or initialization code where failure is fatal.
func MustNewEmbedder(ctx context.Context, provider ProviderType, model string) Embedder {
	embedder, err := NewEmbedder(ctx, provider, model)
	if err != nil {
		panic(fmt.Sprintf("failed to create embedder: %v", err))
	}
	return embedder
}

func parseFloat64(s string) (float64, error) {
	return strconv.ParseFloat(strings.TrimSpace(s), 64)
}
