package connection

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zephyrite/zephyrite/internal/core/domain"
	"github.com/zephyrite/zephyrite/internal/server/httpserver"
	"github.com/zephyrite/zephyrite/internal/storage"
	"github.com/zephyrite/zephyrite/internal/storage/memory"
	"github.com/zephyrite/zephyrite/internal/storage/wal"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newServer(t *testing.T, engine storage.Engine) *Client {
	t.Helper()
	srv := httptest.NewServer(httpserver.NewRouter(&httpserver.RouterConfig{
		Engine:       engine,
		Logger:       discardLogger(),
		MaxBodyBytes: domain.MaxValueSize,
		Version:      "v-test",
	}))
	t.Cleanup(srv.Close)
	t.Cleanup(func() { engine.Close() })
	return NewClient(srv.URL, 5*time.Second)
}

func newMemoryClient(t *testing.T) *Client {
	return newServer(t, storage.Instrument(memory.New(), storage.BackendMemory, nil))
}

func newWALClient(t *testing.T) *Client {
	t.Helper()
	cfg := storage.DefaultConfig()
	cfg.Backend = storage.BackendWAL
	cfg.WAL = wal.DefaultConfig(filepath.Join(t.TempDir(), "zephyrite.wal"))
	cfg.Logger = discardLogger()
	e, err := storage.Open(context.Background(), cfg)
	require.NoError(t, err)
	return newServer(t, e)
}

func TestNewClient_BaseURL(t *testing.T) {
	tests := map[string]string{
		"localhost:8080":         "http://localhost:8080",
		"http://db:1/":           "http://db:1",
		"https://kv.example.com": "https://kv.example.com",
	}
	for in, want := range tests {
		assert.Equal(t, want, NewClient(in, time.Second).BaseURL(), in)
	}
}

func TestKeyPath(t *testing.T) {
	assert.Equal(t, "/keys/user:john", keyPath("user:john"))
	assert.Equal(t, "/keys/app/config/db", keyPath("app/config/db"))
	assert.Equal(t, "/keys/a%20b", keyPath("a b"))
	assert.Equal(t, "/keys/q%3Fx", keyPath("q?x"))
}

func TestClient_KeyLifecycle(t *testing.T) {
	c := newMemoryClient(t)
	ctx := context.Background()

	put, err := c.Put(ctx, "user:john", []byte("Software Engineer"))
	require.NoError(t, err)
	assert.True(t, put.Created)
	assert.Equal(t, 17, put.Size)

	put, err = c.Put(ctx, "user:john", []byte("Manager"))
	require.NoError(t, err)
	assert.False(t, put.Created)

	kr, err := c.Get(ctx, "user:john")
	require.NoError(t, err)
	v, err := Value(kr)
	require.NoError(t, err)
	assert.Equal(t, "Manager", string(v))
	assert.False(t, kr.CreatedAt.IsZero())

	list, err := c.Keys(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"user:john"}, list.Keys)

	require.NoError(t, c.Delete(ctx, "user:john"))
	_, err = c.Get(ctx, "user:john")
	assert.True(t, IsNotFound(err), "err = %v", err)

	err = c.Delete(ctx, "user:john")
	assert.True(t, IsNotFound(err), "err = %v", err)
}

func TestClient_BinaryAndNestedKeys(t *testing.T) {
	c := newMemoryClient(t)
	ctx := context.Background()

	bin := []byte{0x00, 0xff, 0x10, 0x80}
	_, err := c.Put(ctx, "app/blob", bin)
	require.NoError(t, err)

	kr, err := c.Get(ctx, "app/blob")
	require.NoError(t, err)
	v, err := Value(kr)
	require.NoError(t, err)
	assert.Equal(t, bin, v)

	raw, err := c.GetRaw(ctx, "app/blob")
	require.NoError(t, err)
	assert.Equal(t, bin, raw)

	_, err = c.GetRaw(ctx, "missing")
	assert.True(t, IsNotFound(err))
}

func TestClient_Errors(t *testing.T) {
	c := newMemoryClient(t)
	ctx := context.Background()

	_, err := c.Put(ctx, "__zephyrite_cfg", []byte("x"))
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusBadRequest, apiErr.Status)
	assert.Equal(t, domain.ErrInvalidKey.Code, apiErr.Code)
	assert.NotEmpty(t, apiErr.RequestID)
	assert.Contains(t, apiErr.Error(), "[ZR-KEY-4001]")

	_, err = c.Compact(ctx)
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, domain.ErrUnsupported.Code, apiErr.Code)

	var buf bytes.Buffer
	_, err = c.Backup(ctx, &buf)
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, domain.ErrUnsupported.Code, apiErr.Code)
	assert.Zero(t, buf.Len())
}

func TestClient_ClearAndHealth(t *testing.T) {
	c := newMemoryClient(t)
	ctx := context.Background()

	for _, k := range []string{"a", "b", "c"} {
		_, err := c.Put(ctx, k, []byte(k))
		require.NoError(t, err)
	}
	n, err := c.Clear(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	h, err := c.Health(ctx)
	require.NoError(t, err)
	assert.Equal(t, "ok", h.Status)
	assert.Equal(t, "v-test", h.Version)
	assert.Equal(t, storage.BackendMemory, h.Backend)
}

func TestClient_AdminWAL(t *testing.T) {
	c := newWALClient(t)
	ctx := context.Background()

	for i := 0; i < 4; i++ {
		_, err := c.Put(ctx, "counter", []byte{byte('0' + i)})
		require.NoError(t, err)
	}

	st, err := c.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, storage.BackendWAL, st.Backend)
	assert.Equal(t, 1, st.KeyCount)
	assert.Equal(t, uint64(4), st.WALRecords)

	res, err := c.Compact(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(4), res.EntriesBefore)
	assert.Equal(t, uint64(1), res.EntriesAfter)

	var buf bytes.Buffer
	n, err := c.Backup(ctx, &buf)
	require.NoError(t, err)
	assert.Equal(t, int64(buf.Len()), n)
	assert.True(t, bytes.HasPrefix(buf.Bytes(), []byte("ZWAL")))
}

func TestDecode_NonJSONError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad gateway", http.StatusBadGateway)
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL, time.Second).Health(context.Background())
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusBadGateway, apiErr.Status)
}
