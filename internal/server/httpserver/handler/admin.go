package handler

import (
	"net/http"
	"strconv"
	"time"

	"github.com/zephyrite/zephyrite/internal/core/domain"
	"github.com/zephyrite/zephyrite/internal/storage"
)

// handleStats handles GET /admin/stats.
//
// Backends that report details answer with domain.DetailedStats; the others
// with domain.Stats.
func (h *Handler) handleStats(w http.ResponseWriter, r *http.Request) {
	if in, ok := h.engine.(storage.Inspector); ok {
		stats, err := in.DetailedStats(r.Context())
		if err == nil {
			h.writeJSON(w, r, http.StatusOK, stats)
			return
		}
		if !domain.IsDomainError(err, domain.ErrUnsupported.Code) {
			h.handleStorageError(w, r, err)
			return
		}
	}

	stats, err := h.engine.Stats(r.Context())
	if err != nil {
		h.handleStorageError(w, r, err)
		return
	}
	h.writeJSON(w, r, http.StatusOK, stats)
}

// handleCompact handles POST /admin/compact.
func (h *Handler) handleCompact(w http.ResponseWriter, r *http.Request) {
	c, ok := h.engine.(storage.Compactor)
	if !ok {
		h.handleStorageError(w, r, domain.ErrUnsupported.WithDetails("compact"))
		return
	}

	res, err := c.Compact(r.Context())
	if err != nil {
		h.handleStorageError(w, r, err)
		return
	}

	h.logger.Info("compaction finished",
		"request_id", getRequestID(r),
		"entries_before", res.EntriesBefore,
		"entries_after", res.EntriesAfter,
		"bytes_before", res.BytesBefore,
		"bytes_after", res.BytesAfter,
	)
	h.writeJSON(w, r, http.StatusOK, res)
}

// handleBackup handles GET /admin/backup by streaming a backend backup.
func (h *Handler) handleBackup(w http.ResponseWriter, r *http.Request) {
	b, ok := h.engine.(storage.Backuper)
	if !ok {
		h.handleStorageError(w, r, domain.ErrUnsupported.WithDetails("backup"))
		return
	}

	name := "zephyrite-" + time.Now().UTC().Format("20060102T150405Z") + ".bak"
	bw := &backupWriter{w: w, header: func() {
		w.Header().Set("Content-Type", "application/octet-stream")
		w.Header().Set("Content-Disposition", `attachment; filename="`+name+`"`)
		w.Header().Set("X-Request-ID", getRequestID(r))
	}}

	version, err := b.Backup(bw)
	if err != nil {
		if bw.written == 0 {
			h.handleStorageError(w, r, err)
			return
		}
		h.logger.Error("backup aborted", "request_id", getRequestID(r), "bytes", bw.written, "error", err)
		return
	}
	if bw.written == 0 {
		bw.header()
		w.WriteHeader(http.StatusOK)
	}
	h.logger.Info("backup streamed",
		"request_id", getRequestID(r),
		"bytes", bw.written,
		"version", strconv.FormatUint(version, 10),
	)
}

// backupWriter defers the response headers until the first byte so an
// early failure can still be answered with an error envelope.
type backupWriter struct {
	w       http.ResponseWriter
	header  func()
	written int64
}

func (b *backupWriter) Write(p []byte) (int, error) {
	if b.written == 0 && len(p) > 0 {
		b.header()
	}
	n, err := b.w.Write(p)
	b.written += int64(n)
	return n, err
}
