package main

import (
	"bufio"
	"bytes"
	"context"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/urfave/cli/v2"

	"github.com/zephyrite/zephyrite/internal/infra/shutdown"
	"github.com/zephyrite/zephyrite/internal/server/config"
	"github.com/zephyrite/zephyrite/internal/telemetry/logger"
	"github.com/zephyrite/zephyrite/internal/telemetry/metric"
)

func parseFlags(t *testing.T, args ...string) map[string]any {
	t.Helper()
	var got map[string]any
	app := &cli.App{
		Flags: serverFlags(),
		Action: func(c *cli.Context) error {
			got = overrides(c)
			return nil
		},
	}
	require.NoError(t, app.Run(append([]string{"zephyrite-server"}, args...)))
	return got
}

func TestOverrides(t *testing.T) {
	assert.Empty(t, parseFlags(t))

	got := parseFlags(t,
		"--port", "9090",
		"--persistent",
		"--wal-file", "/tmp/z.wal",
		"--no-checksums",
		"--strict-keys",
		"--memory-capacity", "50",
		"--log-level", "debug",
		"--redis",
	)
	assert.Equal(t, map[string]any{
		"server.http.address":     ":9090",
		"storage.persistent":      true,
		"storage.wal_file":        "/tmp/z.wal",
		"storage.checksums":       false,
		"storage.strict_keys":     true,
		"storage.memory_capacity": 50,
		"log.level":               "debug",
		"server.redis.enabled":    true,
	}, got)
}

func writeFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadConfig(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, `
server:
  http:
    address: "127.0.0.1:7000"
storage:
  persistent: true
  wal_file: `+filepath.Join(dir, "data", "z.wal")+`
log:
  level: warn
`)

	cfg, err := loadConfig(path, map[string]any{"log.level": "debug"})
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:7000", cfg.Server.HTTP.Address)
	assert.Equal(t, config.BackendWAL, cfg.Storage.EffectiveBackend())
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.True(t, cfg.Storage.Checksums)
	assert.DirExists(t, filepath.Join(dir, "data"))
}

func TestLoadConfig_Invalid(t *testing.T) {
	path := writeFile(t, "storage:\n  backend: rocks\n")
	_, err := loadConfig(path, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid configuration")

	_, err = loadConfig(filepath.Join(t.TempDir(), "missing.yaml"), nil)
	assert.Error(t, err)
}

func TestPrintConfig(t *testing.T) {
	cfg := config.Default()
	cfg.Storage.EncryptionKey = "supersecret1234567890"

	var buf bytes.Buffer
	require.NoError(t, printConfig(&buf, cfg))
	out := buf.String()
	assert.Contains(t, out, "encryption_key:")
	assert.NotContains(t, out, "supersecret1234567890")
	assert.Contains(t, out, "wal_file: zephyrite.wal")
}

func TestReloadLogLevel(t *testing.T) {
	t.Cleanup(func() { _ = logger.SetLevel("info") })

	path := writeFile(t, "log:\n  level: debug\n")
	got, err := reloadLogLevel(path, nil, "info")
	require.NoError(t, err)
	assert.Equal(t, "debug", got)
	assert.Equal(t, "debug", logger.GetLevel())

	// A flag keeps precedence over the file.
	got, err = reloadLogLevel(path, map[string]any{"log.level": "error"}, "debug")
	require.NoError(t, err)
	assert.Equal(t, "error", got)

	bad := writeFile(t, "log:\n  level: loud\n")
	got, err = reloadLogLevel(bad, nil, "error")
	assert.Error(t, err)
	assert.Equal(t, "error", got)
}

func TestStart_ServesAndRecovers(t *testing.T) {
	walPath := filepath.Join(t.TempDir(), "zephyrite.wal")
	cfg := config.Default()
	cfg.Server.HTTP.Address = "127.0.0.1:0"
	cfg.Server.Redis.Enabled = true
	cfg.Server.Redis.Address = "127.0.0.1:0"
	cfg.Storage.Persistent = true
	cfg.Storage.WALFile = walPath

	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	boot := func() (*daemon, *shutdown.Handler) {
		sd := shutdown.NewHandler(5*time.Second, shutdown.WithLogger(log))
		d, err := start(context.Background(), cfg, log, metric.NewRegistry(), sd)
		require.NoError(t, err)
		return d, sd
	}
	stop := func(sd *shutdown.Handler) {
		sd.Trigger("test")
		require.NoError(t, sd.Wait(context.Background()))
	}

	d, sd := boot()
	base := "http://" + d.httpAddr.String()

	req, err := http.NewRequest(http.MethodPut, base+"/keys/user:john", strings.NewReader("Software Engineer"))
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusCreated, resp.StatusCode)

	conn, err := net.Dial("tcp", d.redisAddr.String())
	require.NoError(t, err)
	_, err = conn.Write([]byte("GET user:john\r\n"))
	require.NoError(t, err)
	br := bufio.NewReader(conn)
	header, err := br.ReadString('\n')
	require.NoError(t, err)
	body, err := br.ReadString('\n')
	require.NoError(t, err)
	conn.Close()
	assert.Equal(t, "$17\r\n", header)
	assert.Equal(t, "Software Engineer\r\n", body)

	resp, err = http.Get(base + "/metrics")
	require.NoError(t, err)
	metrics, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.Contains(t, string(metrics), "zephyrite_store_keys 1")

	stop(sd)

	d, sd = boot()
	defer stop(sd)
	entry, err := d.engine.Get(context.Background(), "user:john")
	require.NoError(t, err)
	assert.Equal(t, "Software Engineer", string(entry.Value))
}
