// SPDX-License-Identifier: MIT

package api

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/renameio/v2"

	"github.com/Amore-GG/BE/internal/comfy"
	"github.com/Amore-GG/BE/internal/config"
	"github.com/Amore-GG/BE/internal/fsutil"
	"github.com/Amore-GG/BE/internal/media/ffmpeg"
	"github.com/Amore-GG/BE/internal/session"
)

const videoTimeout = 30 * time.Minute

// VideoGateway fronts the image-to-video backend, with project-scoped
// outputs for storyboard assembly.
type VideoGateway struct {
	inference
	i2vWF  string
	ffmpeg ffmpeg.Runner
}

// NewVideoRouter builds the video gateway HTTP surface.
func NewVideoRouter(cfg *config.Config, store *session.Store, backend *comfy.Client, templates *comfy.TemplateStore, runner ffmpeg.Runner) http.Handler {
	g := &VideoGateway{
		inference: inference{
			base:      newBase("video", cfg, store),
			backend:   backend,
			templates: templates,
			timeout:   videoTimeout,
		},
		i2vWF:  cfg.Workflows.I2V,
		ffmpeg: runner,
	}

	r := newRouter("video", cfg)
	r.Get("/", g.handleRoot)
	r.Get("/health", g.healthHandler(g.i2vWF))
	r.Post("/upload", g.handleUpload)
	r.Post("/generate", g.handleGenerateForm)
	r.Post("/generate/json", g.handleGenerateJSON)
	r.Post("/session/generate", g.handleSessionGenerate)
	r.Get("/projects", g.handleProjects)
	r.Get("/project/{id}/videos", g.handleProjectVideos)
	r.Post("/merge/project/{id}", g.handleProjectMerge)
	r.Delete("/project/{id}", g.handleProjectDelete)

	// project artifacts live in nested proj_ dirs, so the fetch route
	// takes a path wildcard instead of a single name
	r.Get("/output/*", g.handleGetOutput)
	r.Delete("/output/*", g.handleDeleteOutput)
	r.Get("/outputs", g.handleListOutputs)
	g.mountSessions(r)
	return r
}

func (g *VideoGateway) handleRoot(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"service": "video",
		"endpoints": map[string]string{
			"POST /upload":             "stage an input image",
			"POST /generate":           "image-to-video (multipart form)",
			"POST /generate/json":      "image-to-video with staged filename",
			"POST /session/generate":   "generate from session workspace files",
			"GET /projects":            "list storyboard projects",
			"GET /project/{id}/videos": "list project scene videos",
			"POST /merge/project/{id}": "concat project scenes into final.mp4",
			"DELETE /project/{id}":     "remove a project",
		},
	})
}

func (g *VideoGateway) handleUpload(w http.ResponseWriter, r *http.Request) {
	f, hdr, err := formFile(r, "image")
	if err != nil {
		writeError(w, http.StatusBadRequest, "%v", err)
		return
	}
	defer f.Close()

	ext := filepath.Ext(hdr.Filename)
	if ext == "" {
		ext = ".png"
	}
	name := uniqueName("image", ext)
	if _, err := saveToDir(g.uploadDir, name, f); err != nil {
		writeError(w, http.StatusInternalServerError, "upload failed: %v", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success":   true,
		"filename":  name,
		"file_type": "image",
	})
}

// i2vParams carries one generation request with defaults applied.
type i2vParams struct {
	prompt    string
	imagePath string
	projectID string
	sequence  int
	width     int
	height    int
	length    int
	steps     int
	cfg       float64
	seed      *int64
}

func (p *i2vParams) applyDefaults() {
	if p.width == 0 {
		p.width = 512
	}
	if p.height == 0 {
		p.height = 512
	}
	if p.length == 0 {
		p.length = 121
	}
	if p.steps == 0 {
		p.steps = 8
	}
	if p.cfg == 0 {
		p.cfg = 1.0
	}
}

func (g *VideoGateway) runI2V(ctx context.Context, p i2vParams) ([]byte, error) {
	p.applyDefaults()
	graph, err := g.templates.Load(g.i2vWF)
	if err != nil {
		return nil, err
	}

	staged, err := g.stagePath(ctx, p.imagePath)
	if err != nil {
		return nil, err
	}
	if err := graph.SetLoadImages(staged); err != nil {
		return nil, err
	}
	if err := graph.SetPositivePrompt(p.prompt); err != nil {
		return nil, err
	}
	graph.SetEasyInt("Width", p.width)
	graph.SetEasyInt("Height", p.height)
	graph.SetEasyInt("Length", p.length)
	graph.SetEasyInt("Steps", p.steps)
	graph.SetEasyFloat("Cfg", p.cfg)
	graph.RandomizeSeeds()
	if p.seed != nil {
		graph.SetSeed(*p.seed)
	}
	return g.execute(ctx, graph)
}

// persistVideo routes the result: project-scoped scene file, or a
// timestamped artifact in the output dir.
func (g *VideoGateway) persistVideo(p i2vParams, data []byte) (string, error) {
	if p.projectID != "" && p.sequence > 0 {
		if err := fsutil.SafeName(p.projectID); err != nil {
			return "", fmt.Errorf("invalid project_id: %w", err)
		}
		dir := filepath.Join(g.outputDir, "proj_"+p.projectID)
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return "", err
		}
		name := fmt.Sprintf("scene_%03d.mp4", p.sequence)
		if err := renameio.WriteFile(filepath.Join(dir, name), data, 0o644); err != nil {
			return "", err
		}
		return filepath.Join("proj_"+p.projectID, name), nil
	}
	return g.saveOutput(uniqueName("i2v", ".mp4"), data)
}

func (g *VideoGateway) handleGenerateForm(w http.ResponseWriter, r *http.Request) {
	f, hdr, err := formFile(r, "image")
	if err != nil {
		writeError(w, http.StatusBadRequest, "%v", err)
		return
	}
	defer f.Close()

	prompt := r.FormValue("prompt")
	if prompt == "" {
		writeError(w, http.StatusBadRequest, "prompt is required")
		return
	}

	path, err := saveToDir(g.uploadDir, uniqueName("image", filepath.Ext(hdr.Filename)), f)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "staging failed: %v", err)
		return
	}

	g.respondI2V(w, r, i2vParams{
		prompt:    prompt,
		imagePath: path,
		projectID: r.FormValue("project_id"),
		sequence:  formInt(r, "sequence"),
		width:     formInt(r, "width"),
		height:    formInt(r, "height"),
		length:    formInt(r, "length"),
		steps:     formInt(r, "steps"),
		cfg:       formFloat(r, "cfg"),
	})
}

func (g *VideoGateway) handleGenerateJSON(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Prompt        string  `json:"prompt"`
		ImageFilename string  `json:"image_filename"`
		ProjectID     string  `json:"project_id"`
		Sequence      int     `json:"sequence"`
		Width         int     `json:"width"`
		Height        int     `json:"height"`
		Length        int     `json:"length"`
		Steps         int     `json:"steps"`
		Cfg           float64 `json:"cfg"`
		Seed          *int64  `json:"seed"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "%v", err)
		return
	}
	if req.Prompt == "" || req.ImageFilename == "" {
		writeError(w, http.StatusBadRequest, "prompt and image_filename are required")
		return
	}
	if err := fsutil.SafeName(req.ImageFilename); err != nil {
		writeError(w, http.StatusBadRequest, "invalid image_filename")
		return
	}
	path := filepath.Join(g.uploadDir, req.ImageFilename)
	if err := fsutil.IsRegularFile(path); err != nil {
		writeError(w, http.StatusNotFound, "uploaded file not found: %s", req.ImageFilename)
		return
	}

	g.respondI2V(w, r, i2vParams{
		prompt:    req.Prompt,
		imagePath: path,
		projectID: req.ProjectID,
		sequence:  req.Sequence,
		width:     req.Width,
		height:    req.Height,
		length:    req.Length,
		steps:     req.Steps,
		cfg:       req.Cfg,
		seed:      req.Seed,
	})
}

func (g *VideoGateway) respondI2V(w http.ResponseWriter, r *http.Request, p i2vParams) {
	start := time.Now()
	data, err := g.runI2V(r.Context(), p)
	if err != nil {
		runError(w, err)
		return
	}
	name, err := g.persistVideo(p, data)
	if err != nil {
		writeError(w, http.StatusBadRequest, "persist failed: %v", err)
		return
	}
	resp := map[string]any{
		"success":         true,
		"output_file":     name,
		"processing_time": round2(time.Since(start).Seconds()),
	}
	if p.projectID != "" {
		resp["project_id"] = p.projectID
		resp["sequence"] = p.sequence
	}
	writeJSON(w, http.StatusOK, resp)
}

func (g *VideoGateway) handleSessionGenerate(w http.ResponseWriter, r *http.Request) {
	var req struct {
		SessionID      string  `json:"session_id"`
		Prompt         string  `json:"prompt"`
		ImageFilename  string  `json:"image_filename"`
		OutputFilename string  `json:"output_filename"`
		Width          int     `json:"width"`
		Height         int     `json:"height"`
		Length         int     `json:"length"`
		Steps          int     `json:"steps"`
		Cfg            float64 `json:"cfg"`
		Seed           *int64  `json:"seed"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "%v", err)
		return
	}
	if req.SessionID == "" || req.Prompt == "" || req.ImageFilename == "" {
		writeError(w, http.StatusBadRequest, "session_id, prompt and image_filename are required")
		return
	}
	path, ok := g.sessionPath(w, req.SessionID, req.ImageFilename)
	if !ok {
		return
	}

	data, err := g.runI2V(r.Context(), i2vParams{
		prompt:    req.Prompt,
		imagePath: path,
		width:     req.Width,
		height:    req.Height,
		length:    req.Length,
		steps:     req.Steps,
		cfg:       req.Cfg,
		seed:      req.Seed,
	})
	if err != nil {
		runError(w, err)
		return
	}

	name := req.OutputFilename
	if name == "" {
		name = uniqueName("i2v", ".mp4")
	}
	if _, err := g.persist(req.SessionID, name, data); err != nil {
		writeError(w, http.StatusBadRequest, "persist failed: %v", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success":     true,
		"output_file": name,
		"session_id":  req.SessionID,
	})
}

// projectDir resolves proj_<id> under the output dir.
func (g *VideoGateway) projectDir(w http.ResponseWriter, id string) (string, bool) {
	if err := fsutil.SafeName(id); err != nil {
		writeError(w, http.StatusBadRequest, "invalid project id")
		return "", false
	}
	return filepath.Join(g.outputDir, "proj_"+id), true
}

// sceneFiles lists a project's scene videos in sequence order.
func sceneFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if strings.HasPrefix(name, "scene_") && strings.HasSuffix(name, ".mp4") {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names, nil
}

func (g *VideoGateway) handleProjects(w http.ResponseWriter, r *http.Request) {
	entries, err := os.ReadDir(g.outputDir)
	if err != nil && !notFound(err) {
		writeError(w, http.StatusInternalServerError, "list failed: %v", err)
		return
	}

	projects := make([]map[string]any, 0)
	for _, e := range entries {
		if !e.IsDir() || !strings.HasPrefix(e.Name(), "proj_") {
			continue
		}
		scenes, err := sceneFiles(filepath.Join(g.outputDir, e.Name()))
		if err != nil {
			continue
		}
		projects = append(projects, map[string]any{
			"project_id":  strings.TrimPrefix(e.Name(), "proj_"),
			"video_count": len(scenes),
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"projects": projects, "count": len(projects)})
}

func (g *VideoGateway) handleProjectVideos(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	dir, ok := g.projectDir(w, id)
	if !ok {
		return
	}
	scenes, err := sceneFiles(dir)
	if err != nil {
		if notFound(err) {
			writeError(w, http.StatusNotFound, "project not found: %s", id)
			return
		}
		writeError(w, http.StatusInternalServerError, "list failed: %v", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"project_id": id,
		"videos":     scenes,
		"count":      len(scenes),
	})
}

func (g *VideoGateway) handleProjectMerge(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	dir, ok := g.projectDir(w, id)
	if !ok {
		return
	}
	scenes, err := sceneFiles(dir)
	if err != nil {
		if notFound(err) {
			writeError(w, http.StatusNotFound, "project not found: %s", id)
			return
		}
		writeError(w, http.StatusInternalServerError, "list failed: %v", err)
		return
	}
	if len(scenes) < 2 {
		writeError(w, http.StatusBadRequest, "project %s has %d scenes, need at least 2 to merge", id, len(scenes))
		return
	}

	paths := make([]string, 0, len(scenes))
	for _, s := range scenes {
		paths = append(paths, filepath.Join(dir, s))
	}
	output := filepath.Join(dir, "final.mp4")
	if err := g.ffmpeg.Concat(r.Context(), paths, output); err != nil {
		writeError(w, http.StatusInternalServerError, "concat failed: %v", err)
		return
	}
	duration, _ := g.ffmpeg.Duration(r.Context(), output)
	writeJSON(w, http.StatusOK, map[string]any{
		"success":     true,
		"project_id":  id,
		"output_file": filepath.Join("proj_"+id, "final.mp4"),
		"scenes":      len(scenes),
		"duration":    round2(duration),
	})
}

func (g *VideoGateway) handleProjectDelete(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	dir, ok := g.projectDir(w, id)
	if !ok {
		return
	}
	if _, err := os.Stat(dir); err != nil {
		writeError(w, http.StatusNotFound, "project not found: %s", id)
		return
	}
	if err := os.RemoveAll(dir); err != nil {
		writeError(w, http.StatusInternalServerError, "delete failed: %v", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "project_id": id})
}

// handleGetOutput serves plain and project-scoped artifacts; the
// wildcard path is confined to the output dir.
func (g *VideoGateway) handleGetOutput(w http.ResponseWriter, r *http.Request) {
	rel := chi.URLParam(r, "*")
	path, err := fsutil.ConfineRelPath(g.outputDir, rel)
	if err != nil {
		if notFound(err) {
			writeError(w, http.StatusNotFound, "artifact not found: %s", rel)
			return
		}
		writeError(w, http.StatusBadRequest, "invalid artifact path")
		return
	}
	if err := fsutil.IsRegularFile(path); err != nil {
		writeError(w, http.StatusNotFound, "artifact not found: %s", rel)
		return
	}
	http.ServeFile(w, r, path)
}

func (g *VideoGateway) handleDeleteOutput(w http.ResponseWriter, r *http.Request) {
	rel := chi.URLParam(r, "*")
	path, err := fsutil.ConfineRelPath(g.outputDir, rel)
	if err != nil {
		if notFound(err) {
			writeError(w, http.StatusNotFound, "artifact not found: %s", rel)
			return
		}
		writeError(w, http.StatusBadRequest, "invalid artifact path")
		return
	}
	if err := os.Remove(path); err != nil {
		if notFound(err) {
			writeError(w, http.StatusNotFound, "artifact not found: %s", rel)
			return
		}
		writeError(w, http.StatusInternalServerError, "delete failed: %v", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "filename": rel})
}

func (g *VideoGateway) handleListOutputs(w http.ResponseWriter, r *http.Request) {
	entries, err := os.ReadDir(g.outputDir)
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
}
