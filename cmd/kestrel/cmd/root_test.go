package cmd

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootCmd_RegistersAllSubcommands(t *testing.T) {
	rootCmd := NewRootCmd()

	want := []string{"init", "sync", "search", "capture", "jobs", "graph", "doctor", "serve", "index", "stats", "version"}
	for _, name := range want {
		_, _, err := rootCmd.Find([]string{name})
		assert.NoError(t, err, "expected %q to be registered", name)
	}
}

func TestRootCmd_DataDirDefaultsUnderProject(t *testing.T) {
	tmpDir := t.TempDir()

	cmd := NewRootCmd()
	buf := &bytes.Buffer{}
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs([]string{"--project", tmpDir, "index", "info"})

	require.NoError(t, cmd.Execute())

	_, err := os.Stat(filepath.Join(tmpDir, ".kestrel"))
	assert.NoError(t, err, "expected .kestrel data dir to be created under the project root")
}

func TestRootCmd_LoadsConfiguredCollections(t *testing.T) {
	tmpDir := t.TempDir()
	collectionRoot := filepath.Join(tmpDir, "notes")
	require.NoError(t, os.MkdirAll(collectionRoot, 0o755))

	cfgPath := filepath.Join(tmpDir, ".kestrel.yaml")
	cfg := "collections:\n  - name: notes\n    root: " + collectionRoot + "\n"
	require.NoError(t, os.WriteFile(cfgPath, []byte(cfg), 0o644))

	cmd := NewRootCmd()
	buf := &bytes.Buffer{}
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs([]string{"--project", tmpDir, "index", "info", "--json"})

	require.NoError(t, cmd.Execute())
	assert.Contains(t, buf.String(), `"name": "notes"`)
}
