package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	for _, env := range envKeys {
		t.Setenv(env, "")
		require.NoError(t, os.Unsetenv(env))
	}

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, ".", cfg.Root)
	assert.Equal(t, "nuclei_filtered_results", cfg.ResultsDir)
	assert.Equal(t, "scan_progress.log", cfg.ProgressFile)
	assert.Equal(t, "nuclei", cfg.ScannerPath)
	assert.Equal(t, "info,low,medium,high,critical", cfg.Severities)
	assert.Equal(t, "discord-nuclei", cfg.NotifyChannel)
	assert.True(t, cfg.NotifyEnabled)
	assert.False(t, cfg.ArchiveEnabled())
	assert.False(t, cfg.MirrorEnabled())
	assert.Equal(t, 100, cfg.Log.MaxSizeMB)
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("SCAN_ROOT", "/targets")
	t.Setenv("SCANNER_PATH", "/opt/nuclei")
	t.Setenv("NOTIFY_ENABLED", "false")
	t.Setenv("DATABASE_URL", "postgres://localhost/sweeper")
	t.Setenv("LOG_LEVEL", "debug")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "/targets", cfg.Root)
	assert.Equal(t, "/opt/nuclei", cfg.ScannerPath)
	assert.False(t, cfg.NotifyEnabled)
	assert.True(t, cfg.ArchiveEnabled())
	assert.Equal(t, "debug", cfg.Log.Level)
}

func TestLoadFileThenEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sweeper.yaml")
	yaml := "scan:\n  root: /from-file\n  results_dir: /reports\nnotify:\n  channel: slack-sec\n"
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o644))
	t.Setenv("SCAN_ROOT", "/from-env")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "/from-env", cfg.Root)
	assert.Equal(t, "/reports", cfg.ResultsDir)
	assert.Equal(t, "slack-sec", cfg.NotifyChannel)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	base := Config{Root: ".", ScannerPath: "nuclei", ProgressFile: "p", NotifyEnabled: true, NotifyChannel: "c"}
	require.NoError(t, base.Validate())

	c := base
	c.S3Endpoint = "localhost:9000"
	assert.Error(t, c.Validate())

	c = base
	c.NotifyChannel = ""
	assert.Error(t, c.Validate())

	c.NotifyEnabled = false
	assert.NoError(t, c.Validate())
}
