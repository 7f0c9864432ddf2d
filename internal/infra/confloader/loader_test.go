package confloader

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"
)

type testConfig struct {
	Server struct {
		HTTP struct {
			Address     string        `koanf:"address"`
			ReadTimeout time.Duration `koanf:"read_timeout"`
			Enabled     bool          `koanf:"enabled"`
		} `koanf:"http"`
	} `koanf:"server"`
	Storage struct {
		WALFile        string `koanf:"wal_file"`
		MemoryCapacity int    `koanf:"memory_capacity"`
		Checksums      bool   `koanf:"checksums"`
	} `koanf:"storage"`
}

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("Failed to write config file: %v", err)
	}
	return path
}

func TestNewLoader(t *testing.T) {
	l := NewLoader()
	if l == nil {
		t.Fatal("NewLoader() returned nil")
	}
	if l.envPrefix != DefaultEnvPrefix {
		t.Errorf("envPrefix = %q, want %q", l.envPrefix, DefaultEnvPrefix)
	}
}

func TestNewLoader_WithOptions(t *testing.T) {
	l := NewLoader(
		WithEnvPrefix("TEST_"),
		WithConfigFile("/path/to/config.yaml"),
	)

	if l.envPrefix != "TEST_" {
		t.Errorf("envPrefix = %q, want %q", l.envPrefix, "TEST_")
	}
	if l.FilePath() != "/path/to/config.yaml" {
		t.Errorf("FilePath() = %q, want %q", l.FilePath(), "/path/to/config.yaml")
	}
}

func TestLoader_LoadFile(t *testing.T) {
	path := writeConfig(t, `
server:
  http:
    address: "0.0.0.0:8080"
    enabled: true
storage:
  wal_file: "data/zephyrite.wal"
`)

	l := NewLoader()
	if err := l.LoadFile(path); err != nil {
		t.Fatalf("LoadFile() error = %v", err)
	}

	if addr := l.GetString("server.http.address"); addr != "0.0.0.0:8080" {
		t.Errorf("server.http.address = %q, want %q", addr, "0.0.0.0:8080")
	}
	if !l.GetBool("server.http.enabled") {
		t.Error("server.http.enabled should be true")
	}
	if f := l.GetString("storage.wal_file"); f != "data/zephyrite.wal" {
		t.Errorf("storage.wal_file = %q", f)
	}
}

func TestLoader_LoadFile_NotFound(t *testing.T) {
	l := NewLoader()
	if err := l.LoadFile("/nonexistent/config.yaml"); err == nil {
		t.Error("LoadFile() should return error for nonexistent file")
	}
}

func TestLoader_LoadFile_Empty(t *testing.T) {
	l := NewLoader()
	if err := l.LoadFile(""); err != nil {
		t.Errorf("LoadFile(\"\") should not error, got: %v", err)
	}
}

func TestLoader_LoadEnv_Naive(t *testing.T) {
	t.Setenv("ZEPHYRITE_SERVER_HTTP_ADDRESS", "127.0.0.1:8080")

	l := NewLoader()
	if err := l.LoadEnv(); err != nil {
		t.Fatalf("LoadEnv() error = %v", err)
	}

	if addr := l.GetString("server.http.address"); addr != "127.0.0.1:8080" {
		t.Errorf("server.http.address = %q, want %q", addr, "127.0.0.1:8080")
	}
}

func TestLoader_LoadEnv_CustomPrefix(t *testing.T) {
	t.Setenv("MYAPP_SERVER_PORT", "9090")

	l := NewLoader(WithEnvPrefix("MYAPP_"))
	if err := l.LoadEnv(); err != nil {
		t.Fatalf("LoadEnv() error = %v", err)
	}

	if port := l.GetString("server.port"); port != "9090" {
		t.Errorf("server.port = %q, want %q", port, "9090")
	}
}

func TestLoader_Load_UnderscoreKeys(t *testing.T) {
	t.Setenv("ZEPHYRITE_STORAGE_WAL_FILE", "/var/lib/zephyrite/log.wal")
	t.Setenv("ZEPHYRITE_STORAGE_MEMORY_CAPACITY", "5000")
	t.Setenv("ZEPHYRITE_SERVER_HTTP_READ_TIMEOUT", "7s")

	var cfg testConfig
	if err := NewLoader().Load(&cfg); err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Storage.WALFile != "/var/lib/zephyrite/log.wal" {
		t.Errorf("WALFile = %q", cfg.Storage.WALFile)
	}
	if cfg.Storage.MemoryCapacity != 5000 {
		t.Errorf("MemoryCapacity = %d, want 5000", cfg.Storage.MemoryCapacity)
	}
	if cfg.Server.HTTP.ReadTimeout != 7*time.Second {
		t.Errorf("ReadTimeout = %v, want 7s", cfg.Server.HTTP.ReadTimeout)
	}
}

func TestLoader_LoadMap_DottedKeys(t *testing.T) {
	l := NewLoader()

	data := map[string]any{
		"server.http.address": "localhost:3000",
		"debug":               true,
	}
	if err := l.LoadMap(data); err != nil {
		t.Fatalf("LoadMap() error = %v", err)
	}

	if addr := l.GetString("server.http.address"); addr != "localhost:3000" {
		t.Errorf("server.http.address = %q, want %q", addr, "localhost:3000")
	}
	if !l.GetBool("debug") {
		t.Error("debug should be true")
	}
}

func TestLoader_Load_Priority(t *testing.T) {
	path := writeConfig(t, `
server:
  http:
    address: "from-file:5080"
storage:
  wal_file: "from-file.wal"
  memory_capacity: 10
`)
	t.Setenv("ZEPHYRITE_SERVER_HTTP_ADDRESS", "from-env:8080")
	t.Setenv("ZEPHYRITE_STORAGE_WAL_FILE", "from-env.wal")

	l := NewLoader(
		WithConfigFile(path),
		WithOverrides(map[string]any{"storage.wal_file": "from-flag.wal"}),
	)

	cfg := testConfig{}
	cfg.Storage.Checksums = true
	if err := l.Load(&cfg); err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.HTTP.Address != "from-env:8080" {
		t.Errorf("Address = %q, want env to override file", cfg.Server.HTTP.Address)
	}
	if cfg.Storage.WALFile != "from-flag.wal" {
		t.Errorf("WALFile = %q, want flag to override env", cfg.Storage.WALFile)
	}
	if cfg.Storage.MemoryCapacity != 10 {
		t.Errorf("MemoryCapacity = %d, want file value", cfg.Storage.MemoryCapacity)
	}
	if !cfg.Storage.Checksums {
		t.Error("defaults absent from every source must survive")
	}
}

func TestLoader_IsLoaded(t *testing.T) {
	l := NewLoader()

	if l.IsLoaded() {
		t.Error("IsLoaded() should be false before Load()")
	}

	var cfg testConfig
	if err := l.Load(&cfg); err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if !l.IsLoaded() {
		t.Error("IsLoaded() should be true after Load()")
	}
}

func TestLoader_AllAndKeys(t *testing.T) {
	l := NewLoader()
	if err := l.LoadMap(map[string]any{"key1": "value1", "key2": "value2", "port": 8080}); err != nil {
		t.Fatal(err)
	}

	if len(l.All()) < 3 {
		t.Errorf("All() returned %d keys, want at least 3", len(l.All()))
	}
	if len(l.Keys()) < 3 {
		t.Errorf("Keys() returned %d keys, want at least 3", len(l.Keys()))
	}
	if port := l.GetInt("port"); port != 8080 {
		t.Errorf("GetInt(port) = %d, want %d", port, 8080)
	}
}

func TestKnownKeys(t *testing.T) {
	keys := knownKeys(reflect.TypeOf(&testConfig{}), "")

	want := map[string]string{
		"server_http_address":      "server.http.address",
		"server_http_read_timeout": "server.http.read_timeout",
		"storage_wal_file":         "storage.wal_file",
		"storage_memory_capacity":  "storage.memory_capacity",
	}
	for env, path := range want {
		if keys[env] != path {
			t.Errorf("knownKeys[%q] = %q, want %q", env, keys[env], path)
		}
	}
}
