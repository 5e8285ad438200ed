package convert

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	kerrors "github.com/kestrelkb/kestrel/internal/errors"
)

func TestMarkdownConverter_CanHandle(t *testing.T) {
	c := NewMarkdownConverter()

	assert.True(t, c.CanHandle("text/markdown", ".md"))
	assert.True(t, c.CanHandle("", ".MARKDOWN"))
	assert.True(t, c.CanHandle("", ".mdx"))
	assert.False(t, c.CanHandle("text/plain", ".txt"))
}

func TestMarkdownConverter_Convert_ExtractsTitle(t *testing.T) {
	c := NewMarkdownConverter()

	result, err := c.Convert(Input{RelPath: "a.md", Bytes: []byte("# Hello World\n\nBody text.\n")})
	require.NoError(t, err)
	assert.Equal(t, "Hello World", result.Title)
	assert.Equal(t, "markdown", result.Meta.ConverterID)
}

func TestMarkdownConverter_Convert_FallsBackToPath(t *testing.T) {
	c := NewMarkdownConverter()

	result, err := c.Convert(Input{RelPath: "notes/plain.md", Bytes: []byte("no heading here\n")})
	require.NoError(t, err)
	assert.Equal(t, "notes/plain.md", result.Title)
}

func TestMarkdownConverter_Convert_StripsControlCharacters(t *testing.T) {
	c := NewMarkdownConverter()

	input := "# Title\n\nBody\x01with\x07control\x00bytes.\n"
	result, err := c.Convert(Input{RelPath: "a.md", Bytes: []byte(input)})
	require.NoError(t, err)
	assert.NotContains(t, result.Markdown, "\x01")
	assert.NotContains(t, result.Markdown, "\x07")
	assert.NotContains(t, result.Markdown, "\x00")
	assert.Contains(t, result.Markdown, "Bodywithcontrolbytes.")
}

func TestMarkdownConverter_Convert_TooLarge(t *testing.T) {
	c := NewMarkdownConverter()

	_, err := c.Convert(Input{RelPath: "big.md", Bytes: []byte("# Title\n\nbody"), MaxBytes: 5})
	require.Error(t, err)
	assert.True(t, kerrors.IsKind(err, kerrors.KindTooLarge))
}

func TestMarkdownConverter_Convert_InvalidUTF8(t *testing.T) {
	c := NewMarkdownConverter()

	_, err := c.Convert(Input{RelPath: "bad.md", Bytes: []byte{0xff, 0xfe, 0x00}})
	require.Error(t, err)
	assert.True(t, kerrors.IsKind(err, kerrors.KindCorrupt))
}

func TestMarkdownConverter_Convert_EmptyOutput(t *testing.T) {
	c := NewMarkdownConverter()

	_, err := c.Convert(Input{RelPath: "empty.md", Bytes: []byte("   \n\n\t\n")})
	require.Error(t, err)
	assert.True(t, kerrors.IsKind(err, kerrors.KindCorrupt))
}
