package handler

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zephyrite/zephyrite/internal/core/domain"
	"github.com/zephyrite/zephyrite/internal/storage"
	"github.com/zephyrite/zephyrite/internal/storage/memory"
	"github.com/zephyrite/zephyrite/internal/storage/wal"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestHandler(t *testing.T) (*Handler, storage.Engine) {
	t.Helper()
	e := storage.Instrument(memory.New(), storage.BackendMemory, nil)
	return New(e, discardLogger(), WithVersion("v-test")), e
}

func newWALHandler(t *testing.T) *Handler {
	t.Helper()
	cfg := storage.DefaultConfig()
	cfg.Backend = storage.BackendWAL
	cfg.WAL = wal.DefaultConfig(filepath.Join(t.TempDir(), "zephyrite.wal"))
	cfg.Logger = discardLogger()
	e, err := storage.Open(context.Background(), cfg)
	require.NoError(t, err)
	t.Cleanup(func() { e.Close() })
	return New(e, discardLogger())
}

func do(t *testing.T, h http.Handler, method, path string, body io.Reader, header ...string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, body)
	for i := 0; i+1 < len(header); i += 2 {
		req.Header.Set(header[i], header[i+1])
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

// decode unmarshals the envelope and its data into out.
func decode(t *testing.T, rec *httptest.ResponseRecorder, out any) Response {
	t.Helper()
	var raw struct {
		Response
		Data json.RawMessage `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &raw), rec.Body.String())
	if out != nil {
		require.NoError(t, json.Unmarshal(raw.Data, out))
	}
	return raw.Response
}

func TestHealth(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	clock := now
	e := memory.New()
	h := New(e, discardLogger(), WithVersion("v1.2.3"), WithBackend("memory"), WithClock(func() time.Time { return clock }))
	clock = now.Add(90 * time.Second)

	rec := do(t, h, http.MethodGet, "/health", nil, "X-Request-ID", "req-1")
	require.Equal(t, http.StatusOK, rec.Code)

	var body HealthResponse
	resp := decode(t, rec, &body)
	assert.Equal(t, "OK", resp.Code)
	assert.Equal(t, "req-1", resp.RequestID)
	assert.Equal(t, "ok", body.Status)
	assert.Equal(t, "v1.2.3", body.Version)
	assert.Equal(t, "memory", body.Backend)
	assert.Equal(t, "1m30s", body.Uptime)
}

func TestHealth_BackendFromEngine(t *testing.T) {
	h, _ := newTestHandler(t)
	rec := do(t, h, http.MethodGet, "/health", nil)

	var body HealthResponse
	decode(t, rec, &body)
	assert.Equal(t, storage.BackendMemory, body.Backend)
}

func TestPutGetDelete(t *testing.T) {
	h, _ := newTestHandler(t)

	rec := do(t, h, http.MethodPut, "/keys/user:john", strings.NewReader("john@example.com"))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var put PutKeyResponse
	decode(t, rec, &put)
	assert.Equal(t, PutKeyResponse{Key: "user:john", Size: 16, Created: true}, put)

	rec = do(t, h, http.MethodPut, "/keys/user:john", strings.NewReader("john.doe@example.com"))
	require.Equal(t, http.StatusOK, rec.Code)
	decode(t, rec, &put)
	assert.False(t, put.Created)

	rec = do(t, h, http.MethodGet, "/keys/user:john", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var got KeyResponse
	decode(t, rec, &got)
	assert.Equal(t, "user:john", got.Key)
	assert.Equal(t, "john.doe@example.com", got.Value)
	assert.Equal(t, EncodingUTF8, got.Encoding)
	assert.Equal(t, 20, got.Size)
	assert.False(t, got.UpdatedAt.Before(got.CreatedAt))

	rec = do(t, h, http.MethodDelete, "/keys/user:john", nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Empty(t, rec.Body.String())

	rec = do(t, h, http.MethodDelete, "/keys/user:john", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, domain.ErrKeyNotFound.Code, rec.Header().Get("X-Error-Code"))

	rec = do(t, h, http.MethodGet, "/keys/user:john", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	resp := decode(t, rec, nil)
	assert.Equal(t, domain.ErrKeyNotFound.Code, resp.Code)
}

func TestPut_JSONBody(t *testing.T) {
	h, e := newTestHandler(t)

	rec := do(t, h, http.MethodPut, "/keys/greeting", strings.NewReader(`{"value":"hello"}`),
		"Content-Type", "application/json; charset=utf-8")
	require.Equal(t, http.StatusCreated, rec.Code)

	entry, err := e.Get(context.Background(), "greeting")
	require.NoError(t, err)
	assert.Equal(t, []byte("hello"), entry.Value)

	rec = do(t, h, http.MethodPut, "/keys/greeting", strings.NewReader(`{"value":`),
		"Content-Type", "application/json")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, domain.ErrInvalidArgument.Code, rec.Header().Get("X-Error-Code"))
}

func TestPut_EmptyValue(t *testing.T) {
	h, _ := newTestHandler(t)

	rec := do(t, h, http.MethodPut, "/keys/empty", nil)
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = do(t, h, http.MethodGet, "/keys/empty", nil)
	var got KeyResponse
	decode(t, rec, &got)
	assert.Equal(t, "", got.Value)
	assert.Equal(t, 0, got.Size)
}

func TestGet_BinaryAndRaw(t *testing.T) {
	h, _ := newTestHandler(t)
	value := []byte{0xff, 0x00, 0xfe, 0x01}

	rec := do(t, h, http.MethodPut, "/keys/blob", bytes.NewReader(value), "Content-Type", "application/octet-stream")
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = do(t, h, http.MethodGet, "/keys/blob", nil)
	var got KeyResponse
	decode(t, rec, &got)
	assert.Equal(t, EncodingBase64, got.Encoding)
	assert.Equal(t, base64.StdEncoding.EncodeToString(value), got.Value)

	rec = do(t, h, http.MethodGet, "/keys/blob?format=raw", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/octet-stream", rec.Header().Get("Content-Type"))
	assert.Equal(t, value, rec.Body.Bytes())
}

func TestInvalidKeys(t *testing.T) {
	h, e := newTestHandler(t)

	for _, path := range []string{
		"/keys/__zephyrite_cfg",
		"/keys/a..b",
		"/keys/%20leading",
	} {
		t.Run(path, func(t *testing.T) {
			rec := do(t, h, http.MethodPut, path, strings.NewReader("v"))
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			resp := decode(t, rec, nil)
			assert.Equal(t, domain.ErrInvalidKey.Code, resp.Code)
			assert.NotNil(t, resp.Details)

			rec = do(t, h, http.MethodGet, path, nil)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
		})
	}

	keys, err := e.ListKeys(context.Background())
	require.NoError(t, err)
	assert.Empty(t, keys)
}

func TestKeysWithSlashes(t *testing.T) {
	h, _ := newTestHandler(t)

	rec := do(t, h, http.MethodPut, "/keys/config/app/name", strings.NewReader("zephyrite"))
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = do(t, h, http.MethodGet, "/keys/config/app/name", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var got KeyResponse
	decode(t, rec, &got)
	assert.Equal(t, "config/app/name", got.Key)
}

func TestListAndClear(t *testing.T) {
	h, _ := newTestHandler(t)

	for _, k := range []string{"c", "a", "b"} {
		rec := do(t, h, http.MethodPut, "/keys/"+k, strings.NewReader(k))
		require.Equal(t, http.StatusCreated, rec.Code)
	}

	rec := do(t, h, http.MethodGet, "/keys", nil)
	var list ListKeysResponse
	decode(t, rec, &list)
	assert.Equal(t, []string{"a", "b", "c"}, list.Keys)
	assert.Equal(t, 3, list.Count)

	rec = do(t, h, http.MethodDelete, "/keys", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var cleared ClearResponse
	decode(t, rec, &cleared)
	assert.Equal(t, 3, cleared.Removed)

	rec = do(t, h, http.MethodGet, "/keys", nil)
	decode(t, rec, &list)
	assert.Empty(t, list.Keys)
	assert.Equal(t, 0, list.Count)
}

func TestValueTooLarge(t *testing.T) {
	h, _ := newTestHandler(t)

	big := bytes.Repeat([]byte("x"), domain.MaxValueSize+1)
	rec := do(t, h, http.MethodPut, "/keys/big", bytes.NewReader(big))
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
	assert.Equal(t, domain.ErrValueTooLarge.Code, rec.Header().Get("X-Error-Code"))
}

func TestMethodNotAllowed(t *testing.T) {
	h, _ := newTestHandler(t)
	rec := do(t, h, http.MethodPost, "/keys/a", strings.NewReader("v"))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestAdmin_MemoryBackend(t *testing.T) {
	h, _ := newTestHandler(t)
	do(t, h, http.MethodPut, "/keys/a", strings.NewReader("1"))

	rec := do(t, h, http.MethodGet, "/admin/stats", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var stats domain.DetailedStats
	decode(t, rec, &stats)
	assert.Equal(t, 1, stats.KeyCount)
	assert.Equal(t, storage.BackendMemory, stats.Backend)

	rec = do(t, h, http.MethodPost, "/admin/compact", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, domain.ErrUnsupported.Code, rec.Header().Get("X-Error-Code"))

	rec = do(t, h, http.MethodGet, "/admin/backup", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.Empty(t, rec.Header().Get("Content-Disposition"))
}

func TestAdmin_BareEngine(t *testing.T) {
	h := New(memory.New(), discardLogger())

	rec := do(t, h, http.MethodGet, "/admin/stats", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var stats domain.Stats
	decode(t, rec, &stats)
	assert.Equal(t, 0, stats.KeyCount)

	rec = do(t, h, http.MethodPost, "/admin/compact", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAdmin_WALBackend(t *testing.T) {
	h := newWALHandler(t)

	for i := 0; i < 5; i++ {
		rec := do(t, h, http.MethodPut, "/keys/counter", strings.NewReader(strings.Repeat("x", i+1)))
		require.Less(t, rec.Code, 300)
	}

	rec := do(t, h, http.MethodGet, "/admin/stats", nil)
	var stats domain.DetailedStats
	decode(t, rec, &stats)
	assert.Equal(t, storage.BackendWAL, stats.Backend)
	assert.Equal(t, uint64(5), stats.WALRecords)
	assert.True(t, stats.ChecksumsEnabled)

	rec = do(t, h, http.MethodPost, "/admin/compact", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var res domain.CompactionResult
	decode(t, rec, &res)
	assert.Equal(t, uint64(5), res.EntriesBefore)
	assert.Equal(t, uint64(1), res.EntriesAfter)

	rec = do(t, h, http.MethodGet, "/admin/backup", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/octet-stream", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "zephyrite-")
	assert.True(t, bytes.HasPrefix(rec.Body.Bytes(), []byte("ZWAL")))
}

func TestClosedEngine(t *testing.T) {
	h := newWALHandler(t)
	require.NoError(t, h.engine.Close())

	rec := do(t, h, http.MethodPut, "/keys/a", strings.NewReader("1"))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, domain.ErrEngineClosed.Code, rec.Header().Get("X-Error-Code"))
}

func TestStatusForCode(t *testing.T) {
	tests := []struct {
		code string
		want int
	}{
		{domain.ErrInvalidKey.Code, http.StatusBadRequest},
		{domain.ErrInvalidArgument.Code, http.StatusBadRequest},
		{domain.ErrUnsupported.Code, http.StatusBadRequest},
		{domain.ErrKeyNotFound.Code, http.StatusNotFound},
		{domain.ErrValueTooLarge.Code, http.StatusRequestEntityTooLarge},
		{domain.ErrRateLimited.Code, http.StatusTooManyRequests},
		{domain.ErrInternal.Code, http.StatusInternalServerError},
		{domain.ErrStorageIO.Code, http.StatusInternalServerError},
		{domain.ErrEngineClosed.Code, http.StatusServiceUnavailable},
		{"", http.StatusInternalServerError},
		{"ZR-X-abcd", http.StatusInternalServerError},
		{"ZR-X-9990", http.StatusInternalServerError},
	}

	for _, tt := range tests {
		if got := StatusForCode(tt.code); got != tt.want {
			t.Errorf("StatusForCode(%q) = %d, want %d", tt.code, got, tt.want)
		}
	}
}
