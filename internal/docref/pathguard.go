// Package docref implements the engine's §6 external-interface
// primitives: the document URI scheme, the relative-path guard shared
// by the ingestor, LinkEngine, and Capture, and the hierarchical tag
// grammar used by document tagging and search filters.
package docref

import (
	"path"
	"strings"

	kerrors "github.com/kestrelkb/kestrel/internal/errors"
)

// sensitiveDirs lists first-path-segments that must never be reachable
// through a document-relative path, even after normalization, per
// spec §4.4. ".kestrel" is added beyond the spec's literal list since
// it is this engine's own data directory.
var sensitiveDirs = map[string]bool{
	".ssh":         true,
	".gnupg":       true,
	".aws":         true,
	".config":      true,
	".git":         true,
	"node_modules": true,
	".kestrel":     true,
}

// ValidatePath applies the path guard of spec §6 to a candidate
// relative path: non-absolute, no NUL, no backslashes, no ".."
// segments after normalization, no leading ".." or "/", and a first
// segment that is not a sensitive directory.
func ValidatePath(relPath string) error {
	if relPath == "" {
		return kerrors.New(kerrors.KindInvalidPath, "relative path is empty")
	}
	if strings.ContainsRune(relPath, 0) {
		return kerrors.New(kerrors.KindInvalidPath, "relative path %q contains a NUL byte", relPath)
	}
	if strings.ContainsRune(relPath, '\\') {
		return kerrors.New(kerrors.KindInvalidPath, "relative path %q contains a backslash", relPath)
	}
	if strings.HasPrefix(relPath, "/") {
		return kerrors.New(kerrors.KindInvalidPath, "relative path %q is absolute", relPath)
	}

	cleaned := path.Clean(relPath)
	if cleaned == "." {
		return kerrors.New(kerrors.KindInvalidPath, "relative path %q is empty after normalization", relPath)
	}
	if cleaned == ".." || strings.HasPrefix(cleaned, "../") {
		return kerrors.New(kerrors.KindInvalidPath, "relative path %q escapes its root", relPath)
	}

	segments := strings.Split(cleaned, "/")
	for _, seg := range segments {
		if seg == ".." {
			return kerrors.New(kerrors.KindInvalidPath, "relative path %q escapes its root", relPath)
		}
	}

	first := segments[0]
	if sensitiveDirs[first] {
		return kerrors.New(kerrors.KindInvalidPath, "relative path %q touches a sensitive directory %q", relPath, first)
	}

	return nil
}

// NormalizePath cleans a relative path to its canonical POSIX form,
// after confirming it passes the path guard.
func NormalizePath(relPath string) (string, error) {
	if err := ValidatePath(relPath); err != nil {
		return "", err
	}
	return path.Clean(relPath), nil
}
