package cmd

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitCmd_WritesProjectConfig(t *testing.T) {
	tmpDir := t.TempDir()

	cmd := NewRootCmd()
	buf := &bytes.Buffer{}
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs([]string{"--project", tmpDir, "init"})

	require.NoError(t, cmd.Execute())

	content, err := os.ReadFile(filepath.Join(tmpDir, ".kestrel.yaml"))
	require.NoError(t, err)
	assert.Contains(t, string(content), "collections:")
}

func TestInitCmd_RefusesToOverwriteWithoutForce(t *testing.T) {
	tmpDir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(tmpDir, ".kestrel.yaml"), []byte("version: 1\n"), 0o644))

	cmd := NewRootCmd()
	buf := &bytes.Buffer{}
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs([]string{"--project", tmpDir, "init"})

	err := cmd.Execute()

	require.Error(t, err)
	assert.Contains(t, err.Error(), "already exists")
}

func TestInitCmd_ForceOverwrites(t *testing.T) {
	tmpDir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(tmpDir, ".kestrel.yaml"), []byte("version: 1\n"), 0o644))

	cmd := NewRootCmd()
	buf := &bytes.Buffer{}
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs([]string{"--project", tmpDir, "init", "--force"})

	require.NoError(t, cmd.Execute())

	content, err := os.ReadFile(filepath.Join(tmpDir, ".kestrel.yaml"))
	require.NoError(t, err)
	assert.Contains(t, string(content), "collections:")
}
