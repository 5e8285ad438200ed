package logging

import (
	"fmt"
	"os"
	"path/filepath"
)

// DefaultLogDir returns the default log directory (~/.kestrel/logs/).
// Falls back to temp directory if home directory is unavailable.
func DefaultLogDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".kestrel", "logs")
	}
	return filepath.Join(home, ".kestrel", "logs")
}

// DefaultLogPath returns the default engine log path.
func DefaultLogPath() string {
	return filepath.Join(DefaultLogDir(), "engine.log")
}

// LogSource represents the source of logs to view.
type LogSource string

const (
	// LogSourceEngine is the engine process logs (default).
	LogSourceEngine LogSource = "engine"
)

// FindLogFile attempts to find the log file for viewing.
// Priority:
// 1. Explicit path (if provided)
// 2. ~/.kestrel/logs/engine.log (global)
//
// Returns an error if no log file is found.
func FindLogFile(explicit string) (string, error) {
	if explicit != "" {
		if _, err := os.Stat(explicit); err == nil {
			return explicit, nil
		}
		return "", fmt.Errorf("log file not found: %s", explicit)
	}

	globalPath := DefaultLogPath()
	if _, err := os.Stat(globalPath); err == nil {
		return globalPath, nil
	}

	return "", fmt.Errorf("no log file found. Engine may not have run with --debug yet.\nExpected at: %s", globalPath)
}

// FindLogFileBySource finds log files for the given source. Kestrel
// runs as a single process, so the only source is LogSourceEngine, but
// the source indirection is kept so the MCP adapter's embedded logger
// and the CLI's own logger could diverge into separate files later
// without changing this signature.
func FindLogFileBySource(source LogSource, explicit string) ([]string, error) {
	if explicit != "" {
		if _, err := os.Stat(explicit); err == nil {
			return []string{explicit}, nil
		}
		return nil, fmt.Errorf("log file not found: %s", explicit)
	}

	if source != LogSourceEngine {
		return nil, fmt.Errorf("unknown log source: %s (use: engine)", source)
	}

	path := DefaultLogPath()
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("no log file found for source '%s'.\nChecked: %s\n\nTo generate logs:\n  kestrel --debug sync", source, path)
	}

	return []string{path}, nil
}

// ParseLogSource parses a string into a LogSource.
func ParseLogSource(s string) LogSource {
	return LogSourceEngine
}

// EnsureLogDir creates the log directory if it doesn't exist.
func EnsureLogDir() error {
	dir := DefaultLogDir()
	return os.MkdirAll(dir, 0o755)
}
