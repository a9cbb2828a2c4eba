package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"classpane/internal/config"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const page = `<!DOCTYPE html>
<html><head><style>
.btn { color: red }
.btn-primary { color: blue }
.card { border: 1px solid }
</style></head>
<body><div id="main" class="card"></div></body></html>`

func setup(t *testing.T) string {
	t.Helper()
	logger = zap.NewNop()
	cfg = config.DefaultConfig()
	metrics = nil
	applyOutput = ""
	path := filepath.Join(t.TempDir(), "index.html")
	require.NoError(t, os.WriteFile(path, []byte(page), 0o644))
	return path
}

func testCommand() (*cobra.Command, *bytes.Buffer) {
	var out bytes.Buffer
	cmd := &cobra.Command{}
	cmd.SetOut(&out)
	cmd.SetContext(context.Background())
	return cmd, &out
}

func TestApplyWritesFile(t *testing.T) {
	path := setup(t)
	applySelector, applyAdd, applyRemove, applyDryRun = "#main", []string{"btn-primary,btn"}, []string{"card"}, false

	cmd, out := testCommand()
	require.NoError(t, runApply(cmd, []string{path}))
	assert.Equal(t, "btn btn-primary\n", out.String())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `class="btn btn-primary"`)
}

func TestApplyDryRunLeavesFile(t *testing.T) {
	path := setup(t)
	applySelector, applyAdd, applyRemove, applyDryRun = "#main", []string{"btn"}, nil, true

	cmd, out := testCommand()
	require.NoError(t, runApply(cmd, []string{path}))
	assert.Equal(t, "btn card\n", out.String())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, page, string(data))
}

func TestApplyUnknownSelector(t *testing.T) {
	path := setup(t)
	applySelector, applyAdd, applyRemove, applyDryRun = "#missing", []string{"btn"}, nil, true

	cmd, _ := testCommand()
	err := runApply(cmd, []string{path})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "#missing")
}

func TestComplete(t *testing.T) {
	path := setup(t)
	completeSelector = "#main"

	cmd, out := testCommand()
	require.NoError(t, runComplete(cmd, []string{path, "bt"}))
	assert.Equal(t, []string{"btn", "btn-primary"}, strings.Fields(out.String()))

	cmd, out = testCommand()
	require.NoError(t, runComplete(cmd, []string{path, ".c"}))
	assert.Equal(t, []string{".card"}, strings.Fields(out.String()))

	cmd, out = testCommand()
	require.NoError(t, runComplete(cmd, []string{path}))
	assert.Equal(t, []string{"btn", "btn-primary", "card"}, strings.Fields(out.String()))
}

func TestVersion(t *testing.T) {
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs([]string{"version"})
	t.Cleanup(func() {
		rootCmd.SetOut(nil)
		rootCmd.SetArgs(nil)
	})

	require.NoError(t, rootCmd.Execute())
	assert.Equal(t, "classpane dev\n", out.String())
}

func TestLoadWorkspaceDefaults(t *testing.T) {
	logger = zap.NewNop()
	workspace = t.TempDir()
	configPath = ""
	t.Cleanup(func() { workspace = "" })

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, loadWorkspace(ctx))
	require.NotNil(t, cfg)
	assert.Equal(t, config.DefaultConfig().GetFlushDelay(), cfg.GetFlushDelay())
	assert.NotNil(t, metrics)
}

func TestApplyOutputKeepsSource(t *testing.T) {
	path := setup(t)
	out := filepath.Join(t.TempDir(), "edited.html")
	applySelector, applyAdd, applyRemove, applyDryRun = "#main", []string{"btn"}, []string{"card"}, false
	applyOutput = out

	cmd, stdout := testCommand()
	require.NoError(t, runApply(cmd, []string{path}))
	assert.Equal(t, "btn\n", stdout.String())

	src, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, page, string(src))

	edited, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Contains(t, string(edited), `class="btn"`)
}

func TestInitWritesConfig(t *testing.T) {
	cfgPath = config.DefaultPath(t.TempDir())
	initForce = false

	cmd, out := testCommand()
	require.NoError(t, runInit(cmd, nil))
	assert.Contains(t, out.String(), cfgPath)

	loaded, err := config.Load(cfgPath)
	require.NoError(t, err)
	assert.Equal(t, config.DefaultConfig().GetFlushDelay(), loaded.GetFlushDelay())

	cmd, _ = testCommand()
	err = runInit(cmd, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already exists")

	initForce = true
	t.Cleanup(func() { initForce = false })
	cmd, _ = testCommand()
	require.NoError(t, runInit(cmd, nil))
}
