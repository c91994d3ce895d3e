// SPDX-License-Identifier: MIT

package api

import (
	"errors"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/google/renameio/v2"

	"github.com/Amore-GG/BE/internal/config"
	"github.com/Amore-GG/BE/internal/fsutil"
	"github.com/Amore-GG/BE/internal/session"
)

// base carries what every gateway shares: the session store, a local
// output directory and a staging directory for uploads.
type base struct {
	name      string
	store     *session.Store
	outputDir string
	uploadDir string
}

func newBase(name string, cfg *config.Config, store *session.Store) base {
	return base{
		name:      name,
		store:     store,
		outputDir: filepath.Join(cfg.DataDir, "outputs", name),
		uploadDir: filepath.Join(cfg.DataDir, "uploads", name),
	}
}

// newRouter builds the middleware stack every gateway listener runs.
func newRouter(name string, cfg *config.Config) *chi.Mux {
	r := chi.NewRouter()
	r.Use(requestID)
	r.Use(accessLog(name))
	r.Use(instrument(name))
	r.Use(chimw.Recoverer)
	r.Use(rateLimit(cfg.RateLimitRPS))
	r.Handle("/metrics", metricsHandler())
	return r
}

// saveOutput writes an artifact into the gateway's output directory and
// returns its name.
func (b base) saveOutput(name string, data []byte) (string, error) {
	if err := os.MkdirAll(b.outputDir, 0o755); err != nil {
		return "", err
	}
	if err := renameio.WriteFile(filepath.Join(b.outputDir, name), data, 0o644); err != nil {
		return "", err
	}
	return name, nil
}

// outputPath resolves a client-supplied artifact name inside the output
// directory, rejecting traversal.
func (b base) outputPath(name string) (string, error) {
	if err := fsutil.SafeName(name); err != nil {
		return "", err
	}
	return filepath.Join(b.outputDir, name), nil
}

// mountOutputs wires the local artifact endpoints shared by every
// gateway.
func (b base) mountOutputs(r chi.Router) {
	r.Get("/output/{name}", func(w http.ResponseWriter, req *http.Request) {
		path, err := b.outputPath(chi.URLParam(req, "name"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid artifact name")
			return
		}
		if err := fsutil.IsRegularFile(path); err != nil {
			writeError(w, http.StatusNotFound, "artifact not found: %s", chi.URLParam(req, "name"))
			return
		}
		http.ServeFile(w, req, path)
	})

	r.Delete("/output/{name}", func(w http.ResponseWriter, req *http.Request) {
		name := chi.URLParam(req, "name")
		path, err := b.outputPath(name)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid artifact name")
			return
		}
		if err := os.Remove(path); err != nil {
			if notFound(err) {
				writeError(w, http.StatusNotFound, "artifact not found: %s", name)
				return
			}
			writeError(w, http.StatusInternalServerError, "delete failed: %v", err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"success": true, "filename": name})
	})

	r.Get("/outputs", func(w http.ResponseWriter, req *http.Request) {
		entries, err := os.ReadDir(b.outputDir)
		if err != nil && !notFound(err) {
			writeError(w, http.StatusInternalServerError, "list failed: %v", err)
			return
		}
		names := make([]string, 0, len(entries))
		for _, e := range entries {
			if !e.IsDir() {
				names = append(names, e.Name())
			}
		}
		sort.Strings(names)
		writeJSON(w, http.StatusOK, map[string]any{"files": names, "count": len(names)})
	})
}

// mountSessions wires the session workspace endpoints shared by every
// gateway.
func (b base) mountSessions(r chi.Router) {
	r.Post("/session/upload", func(w http.ResponseWriter, req *http.Request) {
		f, hdr, err := formFile(req, "file")
		if err != nil {
			writeError(w, http.StatusBadRequest, "%v", err)
			return
		}
		defer f.Close()

		sessionID := req.FormValue("session_id")
		if sessionID == "" {
			writeError(w, http.StatusBadRequest, "session_id is required")
			return
		}
		name := req.FormValue("filename")
		if name == "" {
			name = filepath.Base(hdr.Filename)
		}

		if _, err := b.store.Put(sessionID, name, f); err != nil {
			writeError(w, http.StatusBadRequest, "upload failed: %v", err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"success":    true,
			"filename":   name,
			"file_type":  fileType(name),
			"session_id": sessionID,
		})
	})

	r.Get("/session/{id}/files", func(w http.ResponseWriter, req *http.Request) {
		id := chi.URLParam(req, "id")
		files, exists, err := b.store.List(id)
		if err != nil {
			writeError(w, http.StatusBadRequest, "list failed: %v", err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"session_id": id,
			"files":      files,
			"count":      len(files),
			"exists":     exists,
		})
	})

	r.Get("/session/{id}/file/{name}", func(w http.ResponseWriter, req *http.Request) {
		id := chi.URLParam(req, "id")
		name := chi.URLParam(req, "name")
		path, err := b.store.Path(id, name)
		if err != nil {
			writeError(w, http.StatusNotFound, "file not found: %s/%s", id, name)
			return
		}
		http.ServeFile(w, req, path)
	})

	r.Delete("/session/{id}", func(w http.ResponseWriter, req *http.Request) {
		id := chi.URLParam(req, "id")
		n, err := b.store.Delete(id)
		if err != nil {
			writeError(w, http.StatusBadRequest, "delete failed: %v", err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"success":       true,
			"session_id":    id,
			"deleted_files": n,
		})
	})
}

// sessionPath resolves a named file inside a session, distinguishing
// bad input from absence for the caller's status code.
func (b base) sessionPath(w http.ResponseWriter, sessionID, name string) (string, bool) {
	path, err := b.store.Path(sessionID, name)
	if err != nil {
		if errors.Is(err, session.ErrNotFound) {
			writeError(w, http.StatusNotFound, "file not found: %s/%s", sessionID, name)
		} else {
			writeError(w, http.StatusBadRequest, "%v", err)
		}
		return "", false
	}
	return path, true
}

func fileType(name string) string {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".mp4", ".mov", ".avi", ".webm":
		return "video"
	case ".mp3", ".wav", ".aac", ".m4a":
		return "audio"
	case ".png", ".jpg", ".jpeg", ".webp":
		return "image"
	default:
		return "unknown"
	}
}
