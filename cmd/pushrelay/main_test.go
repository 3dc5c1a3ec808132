package main

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tinywideclouds/go-pushrelay-service/internal/storage/sqlite"
)

func writeTestConfig(t *testing.T, dbPath string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	body := "provider: web\n" +
		"store:\n" +
		"  driver: sqlite\n" +
		"  sqlite_path: " + dbPath + "\n" +
		"vapid:\n" +
		"  public_key: pub\n" +
		"  private_key: priv\n"
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestEmbeddedConfigLoads(t *testing.T) {
	t.Setenv("PROJECT_ID", "")
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	cfg, err := loadConfig(configFile, logger)

	require.NoError(t, err)
	assert.Equal(t, "local-project", cfg.ProjectID)
	assert.Equal(t, ":8080", cfg.ListenAddr)
	assert.False(t, cfg.Ingress.Enabled)
}

func TestMigrateCommand(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "relay.db")
	cfgPath := writeTestConfig(t, dbPath)

	out, err := runCLI(t, "--config", cfgPath, "migrate")
	require.NoError(t, err)
	assert.Contains(t, out, "Applied 2 migration(s)")

	out, err = runCLI(t, "--config", cfgPath, "migrate")
	require.NoError(t, err)
	assert.Contains(t, out, "Schema is up to date")
}

func TestRegistryLookupCommand(t *testing.T) {
	ctx := context.Background()
	dbPath := filepath.Join(t.TempDir(), "relay.db")
	cfgPath := writeTestConfig(t, dbPath)

	store, err := sqlite.Open(sqlite.Options{Path: dbPath})
	require.NoError(t, err)
	_, err = store.Migrate(ctx)
	require.NoError(t, err)
	require.NoError(t, store.Upsert(ctx, "pubkey-abc", "fcm-token-0123456789"))
	require.NoError(t, store.Close())

	out, err := runCLI(t, "--config", cfgPath, "registry", "lookup", "pubkey-abc", "ghost")
	require.NoError(t, err)

	assert.Contains(t, out, "pubkey-abc")
	assert.Contains(t, out, "fcm-****6789")
	assert.NotContains(t, out, "fcm-token-0123456789")
	assert.Contains(t, out, "not registered")

	out, err = runCLI(t, "--config", cfgPath, "registry", "lookup", "--show-token", "pubkey-abc")
	require.NoError(t, err)
	assert.Contains(t, out, "fcm-token-0123456789")
}

func TestConfigFileErrors(t *testing.T) {
	_, err := runCLI(t, "--config", filepath.Join(t.TempDir(), "missing.yaml"), "migrate")
	assert.Error(t, err)
}

func TestMaskToken(t *testing.T) {
	assert.Equal(t, "abcd****wxyz", maskToken("abcdefghijklmnopqrstuvwxyz"))
	assert.Equal(t, "*****", maskToken("short"))
	assert.Equal(t, "", maskToken(""))
}

func TestRenderTable(t *testing.T) {
	out := renderTable([]string{"A", "B"}, [][]string{{"1"}, {"2", "3"}})
	assert.True(t, strings.Contains(out, "╭"), "rounded style")
	assert.Contains(t, out, "3")
	assert.Empty(t, renderTable(nil, nil))
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, parseLevel("DEBUG"))
	assert.Equal(t, slog.LevelWarn, parseLevel("warn"))
	assert.Equal(t, slog.LevelInfo, parseLevel(""))
}

func TestOpenLoggerCreatesDir(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "access.log")

	logger, closer, err := openLogger(path)
	require.NoError(t, err)
	logger.Info("hello")
	require.NoError(t, closer.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"msg":"hello"`)
}
