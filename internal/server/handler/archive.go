package handler

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/alanyoungcy/poolbet/internal/domain"
)

// ArchiveReader fetches archive objects and their metadata.
type ArchiveReader interface {
	Get(ctx context.Context, path string) (io.ReadCloser, error)
	Stat(ctx context.Context, path string) (domain.BlobInfo, error)
}

// ArchiveHandler streams daily market archives back from object storage.
type ArchiveHandler struct {
	reader ArchiveReader
	prefix string
	logger *slog.Logger
}

// NewArchiveHandler creates an ArchiveHandler reading keys under prefix.
func NewArchiveHandler(reader ArchiveReader, prefix string, logger *slog.Logger) *ArchiveHandler {
	if prefix == "" {
		prefix = "archive"
	}
	return &ArchiveHandler{reader: reader, prefix: prefix, logger: logger}
}

// GetDay streams the JSONL archive written for one cutoff day. The archiver's
// checksum and counts are returned as X-Archive-* headers.
// GET /api/archives/{day}   (day = YYYY-MM-DD)
func (h *ArchiveHandler) GetDay(w http.ResponseWriter, r *http.Request) {
	day := pathParam(r, "day")
	if _, err := time.Parse("2006-01-02", day); err != nil {
		writeError(w, http.StatusBadRequest, "day must be YYYY-MM-DD")
		return
	}
	path := h.prefix + "/markets/" + day + ".jsonl"

	info, err := h.reader.Stat(r.Context(), path)
	if err != nil {
		writeServiceError(w, r, h.logger, "stat archive", err)
		return
	}
	body, err := h.reader.Get(r.Context(), path)
	if err != nil {
		writeServiceError(w, r, h.logger, "get archive", err)
		return
	}
	defer body.Close()

	hdr := w.Header()
	hdr.Set("Content-Type", "application/x-ndjson")
	hdr.Set("Content-Length", strconv.FormatInt(info.Size, 10))
	if !info.LastModified.IsZero() {
		hdr.Set("Last-Modified", info.LastModified.UTC().Format(http.TimeFormat))
	}
	for key, name := range map[string]string{
		"sha256":  "X-Archive-SHA256",
		"markets": "X-Archive-Markets",
		"bets":    "X-Archive-Bets",
	} {
		if v := info.Metadata[key]; v != "" {
			hdr.Set(name, v)
		}
	}
	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, body); err != nil {
		h.logger.WarnContext(r.Context(), "handler: archive stream interrupted",
			slog.String("day", day),
			slog.String("error", err.Error()),
		)
	}
}
