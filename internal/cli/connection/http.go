package connection

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/zephyrite/zephyrite/internal/core/domain"
	"github.com/zephyrite/zephyrite/internal/infra/buildinfo"
	"github.com/zephyrite/zephyrite/internal/server/httpserver/handler"
)

// APIError is an error envelope returned by the server.
type APIError struct {
	Status    int
	Code      string
	Message   string
	Reason    string
	RequestID string
}

func (e *APIError) Error() string {
	msg := fmt.Sprintf("[%s] %s", e.Code, e.Message)
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	return msg
}

// IsNotFound reports whether err is a missing-key answer.
func IsNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Code == domain.ErrKeyNotFound.Code
}

type envelope struct {
	Code      string          `json:"code"`
	Message   string          `json:"message"`
	RequestID string          `json:"request_id"`
	Data      json.RawMessage `json:"data"`
	Details   struct {
		Reason string `json:"reason"`
	} `json:"details"`
}

// Client talks to one server.
type Client struct {
	baseURL string
	client  *http.Client
}

// NewClient creates a client for server, adding http:// when no scheme is
// given.
func NewClient(server string, timeout time.Duration) *Client {
	if !strings.HasPrefix(server, "http://") && !strings.HasPrefix(server, "https://") {
		server = "http://" + server
	}
	return &Client{
		baseURL: strings.TrimRight(server, "/"),
		client:  &http.Client{Timeout: timeout},
	}
}

// BaseURL returns the base URL of the client.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// keyPath escapes each slash separated segment of key.
func keyPath(key string) string {
	segs := strings.Split(key, "/")
	for i, s := range segs {
		segs[i] = url.PathEscape(s)
	}
	return "/keys/" + strings.Join(segs, "/")
}

func (c *Client) newRequest(ctx context.Context, method, path string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", "zephyrite-cli/"+buildinfo.Get().Version)
	return req, nil
}

// do sends req and decodes the envelope's data into out when out is set.
func (c *Client) do(req *http.Request, out any) error {
	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	return decode(resp, out)
}

func decode(resp *http.Response, out any) error {
	if resp.StatusCode == http.StatusNoContent {
		return nil
	}

	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		if resp.StatusCode >= 400 {
			return &APIError{Status: resp.StatusCode, Code: "HTTP", Message: http.StatusText(resp.StatusCode)}
		}
		return fmt.Errorf("parse response: %w", err)
	}
	if resp.StatusCode >= 400 {
		return &APIError{
			Status:    resp.StatusCode,
			Code:      env.Code,
			Message:   env.Message,
			Reason:    env.Details.Reason,
			RequestID: env.RequestID,
		}
	}
	if out == nil || len(env.Data) == 0 {
		return nil
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return fmt.Errorf("parse response data: %w", err)
	}
	return nil
}

// Health fetches the health report.
func (c *Client) Health(ctx context.Context) (*handler.HealthResponse, error) {
	req, err := c.newRequest(ctx, http.MethodGet, "/health", nil)
	if err != nil {
		return nil, err
	}
	var out handler.HealthResponse
	if err := c.do(req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Keys lists all keys.
func (c *Client) Keys(ctx context.Context) (*handler.ListKeysResponse, error) {
	req, err := c.newRequest(ctx, http.MethodGet, "/keys", nil)
	if err != nil {
		return nil, err
	}
	var out handler.ListKeysResponse
	if err := c.do(req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Get fetches key with its metadata.
func (c *Client) Get(ctx context.Context, key string) (*handler.KeyResponse, error) {
	req, err := c.newRequest(ctx, http.MethodGet, keyPath(key), nil)
	if err != nil {
		return nil, err
	}
	var out handler.KeyResponse
	if err := c.do(req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// GetRaw fetches the value bytes of key.
func (c *Client) GetRaw(ctx context.Context, key string) ([]byte, error) {
	req, err := c.newRequest(ctx, http.MethodGet, keyPath(key)+"?format=raw", nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, decode(resp, nil)
	}
	return io.ReadAll(resp.Body)
}

// Value decodes the value of a KeyResponse.
func Value(kr *handler.KeyResponse) ([]byte, error) {
	if kr.Encoding == handler.EncodingBase64 {
		return base64.StdEncoding.DecodeString(kr.Value)
	}
	return []byte(kr.Value), nil
}

// Put stores value under key as a raw body.
func (c *Client) Put(ctx context.Context, key string, value []byte) (*handler.PutKeyResponse, error) {
	req, err := c.newRequest(ctx, http.MethodPut, keyPath(key), bytes.NewReader(value))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/octet-stream")
	var out handler.PutKeyResponse
	if err := c.do(req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Delete removes key.
func (c *Client) Delete(ctx context.Context, key string) error {
	req, err := c.newRequest(ctx, http.MethodDelete, keyPath(key), nil)
	if err != nil {
		return err
	}
	return c.do(req, nil)
}

// Clear removes every key and returns how many were removed.
func (c *Client) Clear(ctx context.Context) (int, error) {
	req, err := c.newRequest(ctx, http.MethodDelete, "/keys", nil)
	if err != nil {
		return 0, err
	}
	var out handler.ClearResponse
	if err := c.do(req, &out); err != nil {
		return 0, err
	}
	return out.Removed, nil
}

// Stats fetches engine statistics.
func (c *Client) Stats(ctx context.Context) (*domain.DetailedStats, error) {
	req, err := c.newRequest(ctx, http.MethodGet, "/admin/stats", nil)
	if err != nil {
		return nil, err
	}
	var out domain.DetailedStats
	if err := c.do(req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Compact asks the server to compact its log.
func (c *Client) Compact(ctx context.Context) (*domain.CompactionResult, error) {
	req, err := c.newRequest(ctx, http.MethodPost, "/admin/compact", nil)
	if err != nil {
		return nil, err
	}
	var out domain.CompactionResult
	if err := c.do(req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Backup streams a backup into w and returns the bytes copied.
func (c *Client) Backup(ctx context.Context, w io.Writer) (int64, error) {
	req, err := c.newRequest(ctx, http.MethodGet, "/admin/backup", nil)
	if err != nil {
		return 0, err
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return 0, decode(resp, nil)
	}
	return io.Copy(w, resp.Body)
}
