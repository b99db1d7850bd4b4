package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadDefaults(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, ":8080", cfg.Server.Addr)
	assert.Equal(t, 4, cfg.Server.Workers)
	assert.True(t, cfg.Jobs.FlattenErrors)
	assert.Equal(t, 2.0, cfg.Jobs.RenderScale)
	assert.Equal(t, "1-2", cfg.Defaults.SplitRange)
	assert.Equal(t, 1, cfg.Defaults.PagesPerFile)
	assert.Equal(t, 2, cfg.Defaults.Parts)
	assert.Equal(t, 90, cfg.Defaults.RotateAngle)
	assert.Equal(t, "CRYSTAL DOC", cfg.Defaults.WatermarkText)
	assert.Equal(t, "text", cfg.Word.Printer)
}

func TestLoadYAML(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	path := writeFile(t, dir, "docqueue.yaml", `
server:
  addr: ":9090"
  workers: 2
  poll_interval: 250ms
  max_upload_mb: 5
jobs:
  flatten_errors: false
  release_on_download: true
defaults:
  watermark_text: DRAFT
word:
  printer: chrome
  chrome_path: /usr/bin/chromium
log:
  format: json
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, ":9090", cfg.Server.Addr)
	assert.Equal(t, 250*time.Millisecond, cfg.Server.PollInterval)
	assert.False(t, cfg.Jobs.FlattenErrors)
	assert.Equal(t, "DRAFT", cfg.Defaults.WatermarkText)
	assert.Equal(t, "1-2", cfg.Defaults.SplitRange)
	assert.Equal(t, "chrome", cfg.Word.Printer)

	srv := cfg.ServerSettings()
	assert.Equal(t, int64(5<<20), srv.MaxUploadBytes)
	assert.True(t, srv.ReleaseOnDownload)
	assert.Equal(t, 2, srv.Workers)

	ops := cfg.OperationSettings()
	assert.Equal(t, "DRAFT", ops.Defaults.WatermarkText)
	assert.Nil(t, ops.Printer)

	assert.Equal(t, "json", cfg.LogSettings().Format)
}

func TestEnvOverridesFileAndDotEnv(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	path := writeFile(t, dir, "docqueue.yaml", "server:\n  workers: 2\n")
	writeFile(t, dir, ".env", "DOCQUEUE_WORKERS=6\nDOCQUEUE_SPLIT_RANGE=3-4\n")
	t.Cleanup(func() { os.Unsetenv("DOCQUEUE_SPLIT_RANGE") })
	t.Setenv("DOCQUEUE_WORKERS", "8")
	t.Setenv("DOCQUEUE_RENDER_SCALE", "1.5")
	t.Setenv("DOCQUEUE_FLATTEN_ERRORS", "false")
	t.Setenv("DOCQUEUE_WORD_TIMEOUT", "5s")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 8, cfg.Server.Workers)
	assert.Equal(t, "3-4", cfg.Defaults.SplitRange)
	assert.Equal(t, 1.5, cfg.Jobs.RenderScale)
	assert.False(t, cfg.Jobs.FlattenErrors)
	assert.Equal(t, 5*time.Second, cfg.Word.Timeout)
}

func TestLoadRejectsBadValues(t *testing.T) {
	cases := []struct {
		name string
		env  map[string]string
	}{
		{"non-numeric workers", map[string]string{"DOCQUEUE_WORKERS": "many"}},
		{"zero workers", map[string]string{"DOCQUEUE_WORKERS": "0"}},
		{"bad duration", map[string]string{"DOCQUEUE_POLL_INTERVAL": "soon"}},
		{"odd angle", map[string]string{"DOCQUEUE_ROTATE_ANGLE": "45"}},
		{"empty range", map[string]string{"DOCQUEUE_SPLIT_RANGE": "x"}},
		{"blank watermark", map[string]string{"DOCQUEUE_WATERMARK_TEXT": "  "}},
		{"unknown printer", map[string]string{"DOCQUEUE_WORD_PRINTER": "laser"}},
		{"bad bool", map[string]string{"DOCQUEUE_FLATTEN_ERRORS": "perhaps"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Chdir(t.TempDir())
			for k, v := range tc.env {
				t.Setenv(k, v)
			}
			_, err := Load("")
			assert.Error(t, err)
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	t.Chdir(t.TempDir())
	_, err := Load("does-not-exist.yaml")
	assert.Error(t, err)
}
