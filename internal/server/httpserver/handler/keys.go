package handler

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"mime"
	"net/http"
	"sort"
	"unicode/utf8"

	"github.com/zephyrite/zephyrite/internal/core/domain"
)

// handleListKeys handles GET /keys.
func (h *Handler) handleListKeys(w http.ResponseWriter, r *http.Request) {
	keys, err := h.engine.ListKeys(r.Context())
	if err != nil {
		h.handleStorageError(w, r, err)
		return
	}
	sort.Strings(keys)

	h.writeJSON(w, r, http.StatusOK, ListKeysResponse{
		Keys:  keys,
		Count: len(keys),
	})
}

// handleClear handles DELETE /keys.
func (h *Handler) handleClear(w http.ResponseWriter, r *http.Request) {
	removed, err := h.engine.Clear(r.Context())
	if err != nil {
		h.handleStorageError(w, r, err)
		return
	}

	h.logger.Info("store cleared", "request_id", getRequestID(r), "removed", removed)
	h.writeJSON(w, r, http.StatusOK, ClearResponse{Removed: removed})
}

// handleGetKey handles GET /keys/{key}.
//
// ?format=raw answers with the stored bytes instead of the JSON envelope.
func (h *Handler) handleGetKey(w http.ResponseWriter, r *http.Request) {
	key := r.PathValue("key")
	if err := domain.ValidateKey(key); err != nil {
		h.handleStorageError(w, r, err)
		return
	}
	entry, err := h.engine.Get(r.Context(), key)
	if err != nil {
		h.handleStorageError(w, r, err)
		return
	}

	if r.URL.Query().Get("format") == "raw" {
		w.Header().Set("Content-Type", "application/octet-stream")
		w.Header().Set("Last-Modified", entry.UpdatedAt.UTC().Format(http.TimeFormat))
		w.WriteHeader(http.StatusOK)
		if _, err := w.Write(entry.Value); err != nil {
			h.logger.Debug("write raw value", "error", err)
		}
		return
	}

	value, encoding := encodeValue(entry.Value)
	h.writeJSON(w, r, http.StatusOK, KeyResponse{
		Key:       key,
		Value:     value,
		Encoding:  encoding,
		Size:      entry.Size,
		CreatedAt: entry.CreatedAt,
		UpdatedAt: entry.UpdatedAt,
	})
}

// handlePutKey handles PUT /keys/{key}.
func (h *Handler) handlePutKey(w http.ResponseWriter, r *http.Request) {
	key := r.PathValue("key")

	value, err := readValue(r)
	if err != nil {
		h.handleStorageError(w, r, err)
		return
	}

	res, err := h.engine.Put(r.Context(), key, value)
	if err != nil {
		h.handleStorageError(w, r, err)
		return
	}

	status := http.StatusOK
	if res == domain.Created {
		status = http.StatusCreated
	}
	h.writeJSON(w, r, status, PutKeyResponse{
		Key:     key,
		Size:    len(value),
		Created: res == domain.Created,
	})
}

// handleDeleteKey handles DELETE /keys/{key}.
func (h *Handler) handleDeleteKey(w http.ResponseWriter, r *http.Request) {
	key := r.PathValue("key")
	res, err := h.engine.Delete(r.Context(), key)
	if err != nil {
		h.handleStorageError(w, r, err)
		return
	}

	if res == domain.NotFound {
		h.handleStorageError(w, r, domain.ErrKeyNotFound.WithDetails(key))
		return
	}
	w.Header().Set("X-Request-ID", getRequestID(r))
	w.WriteHeader(http.StatusNoContent)
}

// readValue extracts the value of a PUT. A JSON body of the form
// {"value": "..."} stores the string; any other body is stored as is.
func readValue(r *http.Request) ([]byte, error) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return nil, domain.ErrValueTooLarge.WithDetails("request body exceeds server limit")
		}
		return nil, domain.ErrInvalidArgument.WithDetails("read body: " + err.Error())
	}

	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType != "application/json" {
		return body, nil
	}

	var req PutKeyRequest
	if err := json.Unmarshal(body, &req); err != nil {
		return nil, domain.ErrInvalidArgument.WithDetails("invalid JSON body")
	}
	return []byte(req.Value), nil
}

// encodeValue renders a value for JSON: verbatim when it is UTF-8, base64
// otherwise.
func encodeValue(v []byte) (string, string) {
	if utf8.Valid(v) {
		return string(v), EncodingUTF8
	}
	return base64.StdEncoding.EncodeToString(v), EncodingBase64
}
