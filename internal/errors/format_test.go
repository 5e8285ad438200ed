package errors

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFormatForUser_BasicError(t *testing.T) {
	err := New(KindNotFound, "document 'config.yaml' not found")

	result := FormatForUser(err)

	assert.Contains(t, result, "document 'config.yaml' not found")
	assert.Contains(t, result, "[NOT_FOUND]")
}

func TestFormatForUser_WithSuggestion(t *testing.T) {
	err := New(KindModelNotFound, "embedding model is not cached").
		WithSuggestion("retry with --allow-download")

	result := FormatForUser(err)

	assert.Contains(t, result, "Suggestion:")
	assert.Contains(t, result, "--allow-download")
}

func TestFormatForUser_StandardError(t *testing.T) {
	err := errors.New("something went wrong")
	result := FormatForUser(err)
	assert.Contains(t, result, "something went wrong")
}

func TestFormatForUser_NilError(t *testing.T) {
	assert.Empty(t, FormatForUser(nil))
}

func TestFormatJSON_BasicError(t *testing.T) {
	err := New(KindInvalidPath, "path traversal rejected").
		WithDetail("path", "../etc/passwd").
		WithSuggestion("use a path relative to the collection root")

	data, jsonErr := FormatJSON(err)
	require.NoError(t, jsonErr)

	var result map[string]any
	require.NoError(t, json.Unmarshal(data, &result))

	assert.Equal(t, "INVALID_PATH", result["kind"])
	assert.Equal(t, "path traversal rejected", result["message"])
	assert.Equal(t, "use a path relative to the collection root", result["suggestion"])

	details, ok := result["details"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "../etc/passwd", details["path"])
}

func TestFormatJSON_StandardErrorWrapsAsRuntime(t *testing.T) {
	err := errors.New("generic error")

	data, jsonErr := FormatJSON(err)
	require.NoError(t, jsonErr)

	var result map[string]any
	require.NoError(t, json.Unmarshal(data, &result))

	assert.Equal(t, "RUNTIME", result["kind"])
	assert.Equal(t, "generic error", result["message"])
}

func TestFormatJSON_NilError(t *testing.T) {
	data, err := FormatJSON(nil)
	assert.NoError(t, err)
	assert.Equal(t, "null", strings.TrimSpace(string(data)))
}

func TestFormatJSON_WithCause(t *testing.T) {
	cause := errors.New("underlying failure")
	err := Wrap(KindRuntime, cause, "operation failed")

	data, jsonErr := FormatJSON(err)
	require.NoError(t, jsonErr)

	var result map[string]any
	require.NoError(t, json.Unmarshal(data, &result))
	assert.Equal(t, "underlying failure", result["cause"])
}

func TestFormatForCLI_IncludesKind(t *testing.T) {
	err := New(KindCorrupt, "blob store index is corrupted").
		WithSuggestion("run kestrel doctor --repair")

	result := FormatForCLI(err)

	assert.Contains(t, result, "blob store index is corrupted")
	assert.Contains(t, result, "CORRUPT")
}

func TestFormatForCLI_ShortFormat(t *testing.T) {
	err := New(KindNotFound, "chunk not found")

	result := FormatForCLI(err)
	lines := strings.Split(strings.TrimSpace(result), "\n")
	assert.LessOrEqual(t, len(lines), 5, "should be concise")
}
