package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func isolate(t *testing.T) {
	t.Helper()
	t.Chdir(t.TempDir())
	t.Setenv("HOME", t.TempDir())
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadConfigDefaults(t *testing.T) {
	isolate(t)

	cfg, err := LoadConfig("")
	require.NoError(t, err)

	assert.Equal(t, "spreadsheet", cfg.AppName)
	assert.Equal(t, "warn", cfg.Logger.Level)
	assert.Equal(t, "text", cfg.Logger.Format)
	assert.Equal(t, "stderr", cfg.Logger.Output)
	assert.Equal(t, 4096, cfg.Engine.MaxDepth)
	assert.False(t, cfg.Engine.LenientAddresses)
	assert.Zero(t, cfg.Engine.FormulaCacheSize)
	assert.Equal(t, "", cfg.Storage.Format)
	assert.Equal(t, "sheet.s2v", cfg.Storage.Path)
	assert.Equal(t, "localhost:6379", cfg.Storage.Redis.Addr)
	assert.Equal(t, "sheet", cfg.Storage.Redis.Key)
}

func TestLoadConfigFromYAML(t *testing.T) {
	isolate(t)
	path := writeFile(t, "spreadsheet.yaml", `
app_name: budget
logger:
  level: debug
  format: json
engine:
  max_depth: 64
  lenient_addresses: true
storage:
  format: sqlite
  sqlite:
    dsn: /tmp/budget.db
`)

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "budget", cfg.AppName)
	assert.Equal(t, "debug", cfg.Logger.Level)
	assert.Equal(t, "json", cfg.Logger.Format)
	assert.Equal(t, 64, cfg.Engine.MaxDepth)
	assert.True(t, cfg.Engine.LenientAddresses)
	assert.Equal(t, FormatSQLite, cfg.Storage.Format)
	assert.Equal(t, "/tmp/budget.db", cfg.Storage.SQLite.DSN)
}

func TestLoadConfigSearchesWorkingDirectory(t *testing.T) {
	isolate(t)
	require.NoError(t, os.WriteFile("spreadsheet.toml", []byte("app_name = \"found\"\n"), 0o644))

	cfg, err := LoadConfig("")
	require.NoError(t, err)
	assert.Equal(t, "found", cfg.AppName)
}

func TestLoadConfigEnvOverrides(t *testing.T) {
	isolate(t)
	t.Setenv("SHEET_ENGINE_MAX_DEPTH", "10")
	t.Setenv("SHEET_STORAGE_REDIS_KEY", "budget")
	t.Setenv("SHEET_LOGGER_LEVEL", "error")

	cfg, err := LoadConfig("")
	require.NoError(t, err)
	assert.Equal(t, 10, cfg.Engine.MaxDepth)
	assert.Equal(t, "budget", cfg.Storage.Redis.Key)
	assert.Equal(t, "error", cfg.Logger.Level)
}

func TestLoadConfigErrors(t *testing.T) {
	isolate(t)

	_, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorContains(t, err, "failed to read config file")

	tests := []struct {
		name    string
		content string
		message string
	}{
		{"depth", "engine:\n  max_depth: 0\n", "engine.max_depth"},
		{"format", "logger:\n  format: xml\n", "logger.format"},
		{"output", "logger:\n  output: syslog\n", "logger.output"},
		{"output file", "logger:\n  output: file\n", "logger.output_file"},
		{"storage", "storage:\n  format: csv\n", "storage.format"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadConfig(writeFile(t, "bad.yaml", tt.content))
			assert.ErrorContains(t, err, tt.message)
		})
	}
}

func TestStorageFormatFor(t *testing.T) {
	s := &Storage{}
	assert.Equal(t, FormatS2V, s.FormatFor("sheet.s2v"))
	assert.Equal(t, FormatS2V, s.FormatFor("sheet.txt"))
	assert.Equal(t, FormatXLSX, s.FormatFor("Book1.XLSX"))
	assert.Equal(t, FormatSQLite, s.FormatFor("cells.db"))

	s.Format = FormatRedis
	assert.Equal(t, FormatRedis, s.FormatFor("sheet.xlsx"))

	assert.True(t, IsStorageFormat("xlsx"))
	assert.False(t, IsStorageFormat("csv"))
}

func TestWatchReloadsOnChange(t *testing.T) {
	isolate(t)
	path := writeFile(t, "spreadsheet.yaml", "engine:\n  max_depth: 8\n")

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, 8, cfg.Engine.MaxDepth)

	// a rewrite can surface as several events; never block the watcher
	reloaded := make(chan *Config, 16)
	failed := make(chan error, 16)
	Watch(cfg, func(next *Config) {
		select {
		case reloaded <- next:
		default:
		}
	}, func(err error) {
		select {
		case failed <- err:
		default:
		}
	})

	require.NoError(t, os.WriteFile(path, []byte("engine:\n  max_depth: 0\n"), 0o644))
	select {
	case err := <-failed:
		assert.ErrorContains(t, err, "engine.max_depth")
	case <-time.After(5 * time.Second):
		t.Fatal("no reload error reported")
	}

	require.NoError(t, os.WriteFile(path, []byte("engine:\n  max_depth: 16\n"), 0o644))
	deadline := time.After(5 * time.Second)
	for {
		select {
		case next := <-reloaded:
			if next.Engine.MaxDepth == 16 {
				return
			}
		case <-failed:
		case <-deadline:
			t.Fatal("config was not reloaded")
		}
	}
}
