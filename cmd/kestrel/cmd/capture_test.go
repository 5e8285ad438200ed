package cmd

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCaptureCmd_RequiresCollectionFlag(t *testing.T) {
	tmpDir := t.TempDir()

	cmd := NewRootCmd()
	buf := &bytes.Buffer{}
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetIn(strings.NewReader("hello"))
	cmd.SetArgs([]string{"--project", tmpDir, "capture"})

	err := cmd.Execute()

	require.Error(t, err)
}

func TestCaptureCmd_UnknownCollection(t *testing.T) {
	tmpDir := t.TempDir()

	cmd := NewRootCmd()
	buf := &bytes.Buffer{}
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetIn(strings.NewReader("hello world"))
	cmd.SetArgs([]string{"--project", tmpDir, "capture", "--collection", "nope"})

	err := cmd.Execute()

	require.Error(t, err)
	assert.Contains(t, err.Error(), "nope")
}
