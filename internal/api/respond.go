// SPDX-License-Identifier: MIT

// Package api implements the HTTP surface of the six gateways. Every
// gateway shares the same endpoint taxonomy: capability list, health,
// upload staging, JSON actions with multipart form variants, output
// retrieval and session-scoped variants of all of it.
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/google/renameio/v2"
	"github.com/google/uuid"

	"github.com/Amore-GG/BE/internal/log"
)

// maxUploadBytes bounds a single multipart upload.
const maxUploadBytes = 512 << 20

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		lg := log.WithComponent("api")
		lg.Debug().Err(err).Msg("response encode failed")
	}
}

// writeError serializes the {"detail": ...} error shape shared by all
// gateways.
func writeError(w http.ResponseWriter, status int, format string, args ...any) {
	writeJSON(w, status, map[string]string{"detail": fmt.Sprintf(format, args...)})
}

func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, 1<<20))
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("invalid JSON body: %w", err)
	}
	return nil
}

// uniqueName builds an artifact filename: prefix, wall-clock timestamp
// and a short random suffix to avoid collisions within one second.
func uniqueName(prefix, ext string) string {
	return fmt.Sprintf("%s_%s_%s%s",
		prefix,
		time.Now().Format("20060102_150405"),
		uuid.NewString()[:8],
		ext)
}

// formFile pulls one named file out of a multipart request.
func formFile(r *http.Request, field string) (multipart.File, *multipart.FileHeader, error) {
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		return nil, nil, fmt.Errorf("invalid multipart form: %w", err)
	}
	f, hdr, err := r.FormFile(field)
	if err != nil {
		return nil, nil, fmt.Errorf("missing file field %q", field)
	}
	return f, hdr, nil
}

// saveToDir streams r into dir/name atomically and returns the full
// path. The directory is created lazily.
func saveToDir(dir, name string, r io.Reader) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create dir: %w", err)
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return "", fmt.Errorf("read upload: %w", err)
	}
	path := filepath.Join(dir, name)
	if err := renameio.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("write %s: %w", name, err)
	}
	return path, nil
}

func formInt(r *http.Request, key string) int {
	v, _ := strconv.Atoi(r.FormValue(key))
	return v
}

func formFloat(r *http.Request, key string) float64 {
	v, _ := strconv.ParseFloat(r.FormValue(key), 64)
	return v
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// notFound reports whether err means a missing artifact rather than an
// internal failure.
func notFound(err error) bool {
	return errors.Is(err, os.ErrNotExist)
}
