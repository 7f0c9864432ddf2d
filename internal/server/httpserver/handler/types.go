package handler

import "time"

// Response is the standard API response envelope.
// All JSON responses use this format (except /metrics and /admin/backup).
type Response struct {
	Code      string `json:"code" yaml:"code"`
	Message   string `json:"message" yaml:"message"`
	RequestID string `json:"request_id" yaml:"request_id"`
	Timestamp int64  `json:"timestamp" yaml:"timestamp"`
	Data      any    `json:"data,omitempty" yaml:"data,omitempty"`
	Details   any    `json:"details,omitempty" yaml:"details,omitempty"`
}

// NewResponse creates a success response.
func NewResponse(requestID string, data any) *Response {
	return &Response{
		Code:      "OK",
		Message:   "Success",
		RequestID: requestID,
		Timestamp: time.Now().UnixMilli(),
		Data:      data,
	}
}

// NewErrorResponse creates an error response.
func NewErrorResponse(requestID, code, message string, details any) *Response {
	return &Response{
		Code:      code,
		Message:   message,
		RequestID: requestID,
		Timestamp: time.Now().UnixMilli(),
		Details:   details,
	}
}

// Value encodings used by KeyResponse.
const (
	EncodingUTF8   = "utf-8"
	EncodingBase64 = "base64"
)

// PutKeyRequest is the JSON form of a PUT /keys/{key} body. Any other
// content type is stored verbatim.
type PutKeyRequest struct {
	Value string `json:"value"`
}

// KeyResponse is the body of GET /keys/{key}.
type KeyResponse struct {
	Key       string    `json:"key" yaml:"key"`
	Value     string    `json:"value" yaml:"value"`
	Encoding  string    `json:"encoding" yaml:"encoding"`
	Size      int       `json:"size" yaml:"size"`
	CreatedAt time.Time `json:"created_at" yaml:"created_at"`
	UpdatedAt time.Time `json:"updated_at" yaml:"updated_at"`
}

// PutKeyResponse is the body of PUT /keys/{key}.
type PutKeyResponse struct {
	Key     string `json:"key" yaml:"key"`
	Size    int    `json:"size" yaml:"size"`
	Created bool   `json:"created" yaml:"created"`
}

// ListKeysResponse is the body of GET /keys.
type ListKeysResponse struct {
	Keys  []string `json:"keys" yaml:"keys"`
	Count int      `json:"count" yaml:"count"`
}

// ClearResponse is the body of DELETE /keys.
type ClearResponse struct {
	Removed int `json:"removed" yaml:"removed"`
}

// HealthResponse is the body of GET /health.
type HealthResponse struct {
	Status  string `json:"status" yaml:"status"`
	Service string `json:"service" yaml:"service"`
	Version string `json:"version" yaml:"version"`
	Backend string `json:"backend" yaml:"backend"`
	Uptime  string `json:"uptime" yaml:"uptime"`
}
