// SPDX-License-Identifier: MIT

package api

import (
	"context"
	"net/http"
	"path/filepath"
	"time"

	"github.com/Amore-GG/BE/internal/comfy"
	"github.com/Amore-GG/BE/internal/config"
	"github.com/Amore-GG/BE/internal/fsutil"
	"github.com/Amore-GG/BE/internal/log"
	"github.com/Amore-GG/BE/internal/session"
)

const (
	imageTimeout = 10 * time.Minute

	defaultNegativePrompt = "blurry ugly bad"
	defaultFaceAsset      = "assets/gigi_default.png"
)

// ImageGateway fronts the image backend: multi-image edit and
// text-to-image generation.
type ImageGateway struct {
	inference
	editWF      string
	t2iWF       string
	defaultFace string // empty when the asset is absent
}

// NewImageRouter builds the image gateway HTTP surface.
func NewImageRouter(cfg *config.Config, store *session.Store, backend *comfy.Client, templates *comfy.TemplateStore) http.Handler {
	g := &ImageGateway{
		inference: inference{
			base:      newBase("image", cfg, store),
			backend:   backend,
			templates: templates,
			timeout:   imageTimeout,
		},
		editWF: cfg.Workflows.Edit,
		t2iWF:  cfg.Workflows.T2I,
	}

	asset := filepath.Join(cfg.DataDir, defaultFaceAsset)
	if err := fsutil.IsRegularFile(asset); err == nil {
		g.defaultFace = asset
	} else {
		lg := log.WithComponent("api.image")
		lg.Warn().
			Str("path", asset).
			Msg("default face asset missing, use_default_face disabled")
	}

	r := newRouter("image", cfg)
	r.Get("/", g.handleRoot)
	r.Get("/health", g.healthHandler(g.editWF, g.t2iWF))
	r.Post("/upload", g.handleUpload)
	r.Post("/edit", g.handleEditForm)
	r.Post("/edit/json", g.handleEditJSON)
	r.Post("/generate", g.handleGenerateForm)
	r.Post("/generate/json", g.handleGenerateJSON)
	r.Post("/session/edit", g.handleSessionEdit)
	r.Post("/session/generate", g.handleSessionGenerate)
	g.mountOutputs(r)
	g.mountSessions(r)
	return r
}

func (g *ImageGateway) handleRoot(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"service":      "image",
		"default_face": g.defaultFace != "",
		"endpoints": map[string]string{
			"POST /upload":           "stage an input image",
			"POST /edit":             "multi-image edit (multipart)",
			"POST /edit/json":        "multi-image edit with staged filenames",
			"POST /generate":         "text-to-image (multipart form)",
			"POST /generate/json":    "text-to-image",
			"POST /session/edit":     "edit using session workspace files",
			"POST /session/generate": "generate into a session workspace",
		},
	})
}

func (g *ImageGateway) handleUpload(w http.ResponseWriter, r *http.Request) {
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

// editParams is the common shape of every edit entry point once inputs
// are resolved to local paths.
type editParams struct {
	prompt string
	images []string // local paths, LoadImage binding order
	seed   *int64
}

// runEdit stages the input images, rewrites the edit graph and executes
// it.
func (g *ImageGateway) runEdit(ctx context.Context, p editParams) ([]byte, error) {
	graph, err := g.templates.Load(g.editWF)
	if err != nil {
		return nil, err
	}

	staged := make([]string, 0, len(p.images))
	for _, path := range p.images {
		name, err := g.stagePath(ctx, path)
		if err != nil {
			return nil, err
		}
		staged = append(staged, name)
	}

	if err := graph.SetLoadImages(staged...); err != nil {
		return nil, err
	}
	if err := graph.SetPositivePrompt(p.prompt); err != nil {
		return nil, err
	}
	graph.RandomizeSeeds()
	if p.seed != nil {
		graph.SetSeed(*p.seed)
	}
	return g.execute(ctx, graph)
}

func (g *ImageGateway) handleEditForm(w http.ResponseWriter, r *http.Request) {
	f1, hdr1, err := formFile(r, "image1")
	if err != nil {
		writeError(w, http.StatusBadRequest, "%v", err)
		return
	}
	defer f1.Close()

	prompt := r.FormValue("prompt")
	if prompt == "" {
		writeError(w, http.StatusBadRequest, "prompt is required")
		return
	}

	p1, err := saveToDir(g.uploadDir, uniqueName("image", filepath.Ext(hdr1.Filename)), f1)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "staging failed: %v", err)
		return
	}
	images := []string{p1}

	if f2, hdr2, err := formFile(r, "image2"); err == nil {
		defer f2.Close()
		p2, err := saveToDir(g.uploadDir, uniqueName("image", filepath.Ext(hdr2.Filename)), f2)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "staging failed: %v", err)
			return
		}
		images = append(images, p2)
	}

	data, err := g.runEdit(r.Context(), editParams{prompt: prompt, images: images})
	if err != nil {
		runError(w, err)
		return
	}
	name, err := g.saveOutput(uniqueName("edited", ".png"), data)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "persist failed: %v", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "output_file": name})
}

func (g *ImageGateway) handleEditJSON(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Prompt         string `json:"prompt"`
		Image1Filename string `json:"image1_filename"`
		Image2Filename string `json:"image2_filename"`
		UseDefaultFace bool   `json:"use_default_face"`
		Seed           *int64 `json:"seed"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "%v", err)
		return
	}
	if req.Prompt == "" {
		writeError(w, http.StatusBadRequest, "prompt is required")
		return
	}

	var images []string
	if req.UseDefaultFace {
		if g.defaultFace == "" {
			writeError(w, http.StatusBadRequest, "default face asset is not configured on this gateway")
			return
		}
		images = append(images, g.defaultFace)
	} else {
		if req.Image1Filename == "" {
			writeError(w, http.StatusBadRequest, "image1_filename is required")
			return
		}
		path, ok := g.stagedPath(w, req.Image1Filename)
		if !ok {
			return
		}
		images = append(images, path)
	}
	if req.Image2Filename != "" {
		path, ok := g.stagedPath(w, req.Image2Filename)
		if !ok {
			return
		}
		images = append(images, path)
	}

	data, err := g.runEdit(r.Context(), editParams{prompt: req.Prompt, images: images, seed: req.Seed})
	if err != nil {
		runError(w, err)
		return
	}
	name, err := g.saveOutput(uniqueName("edited", ".png"), data)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "persist failed: %v", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "output_file": name})
}

// stagedPath resolves an uploaded filename inside the staging dir.
func (g *ImageGateway) stagedPath(w http.ResponseWriter, name string) (string, bool) {
	if err := fsutil.SafeName(name); err != nil {
		writeError(w, http.StatusBadRequest, "invalid filename %q", name)
		return "", false
	}
	path := filepath.Join(g.uploadDir, name)
	if err := fsutil.IsRegularFile(path); err != nil {
		writeError(w, http.StatusNotFound, "uploaded file not found: %s", name)
		return "", false
	}
	return path, true
}

// t2iParams carries the text-to-image scalars with their defaults
// already applied.
type t2iParams struct {
	prompt   string
	negative string
	width    int
	height   int
	steps    int
	cfg      float64
	seed     *int64
}

func (p *t2iParams) applyDefaults() {
	if p.negative == "" {
		p.negative = defaultNegativePrompt
	}
	if p.width == 0 {
		p.width = 1024
	}
	if p.height == 0 {
		p.height = 1024
	}
	if p.steps == 0 {
		p.steps = 9
	}
	if p.cfg == 0 {
		p.cfg = 1.0
	}
}

func (g *ImageGateway) runT2I(ctx context.Context, p t2iParams) ([]byte, error) {
	p.applyDefaults()
	graph, err := g.templates.Load(g.t2iWF)
	if err != nil {
		return nil, err
	}
	if err := graph.SetPositivePrompt(p.prompt); err != nil {
		return nil, err
	}
	graph.SetNegativePrompt(p.negative)
	graph.SetEasyInt("Width", p.width)
	graph.SetEasyInt("Height", p.height)
	graph.SetEasyInt("Steps", p.steps)
	graph.SetEasyFloat("Cfg", p.cfg)
	graph.RandomizeSeeds()
	if p.seed != nil {
		graph.SetSeed(*p.seed)
	}
	return g.execute(ctx, graph)
}

func (g *ImageGateway) handleGenerateForm(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(1 << 20); err != nil {
		// plain form posts are fine too
		if err := r.ParseForm(); err != nil {
			writeError(w, http.StatusBadRequest, "invalid form: %v", err)
			return
		}
	}
	prompt := r.FormValue("prompt")
	if prompt == "" {
		writeError(w, http.StatusBadRequest, "prompt is required")
		return
	}
	p := t2iParams{
		prompt:   prompt,
		negative: r.FormValue("negative_prompt"),
		width:    formInt(r, "width"),
		height:   formInt(r, "height"),
		steps:    formInt(r, "steps"),
		cfg:      formFloat(r, "cfg"),
	}
	g.respondT2I(w, r, p)
}

func (g *ImageGateway) handleGenerateJSON(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Prompt         string  `json:"prompt"`
		NegativePrompt string  `json:"negative_prompt"`
		Width          int     `json:"width"`
		Height         int     `json:"height"`
		Steps          int     `json:"steps"`
		Cfg            float64 `json:"cfg"`
		Seed           *int64  `json:"seed"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "%v", err)
		return
	}
	if req.Prompt == "" {
		writeError(w, http.StatusBadRequest, "prompt is required")
		return
	}
	g.respondT2I(w, r, t2iParams{
		prompt:   req.Prompt,
		negative: req.NegativePrompt,
		width:    req.Width,
		height:   req.Height,
		steps:    req.Steps,
		cfg:      req.Cfg,
		seed:     req.Seed,
	})
}

func (g *ImageGateway) handleSessionGenerate(w http.ResponseWriter, r *http.Request) {
	var req struct {
		SessionID      string  `json:"session_id"`
		Prompt         string  `json:"prompt"`
		NegativePrompt string  `json:"negative_prompt"`
		OutputFilename string  `json:"output_filename"`
		Width          int     `json:"width"`
		Height         int     `json:"height"`
		Steps          int     `json:"steps"`
		Cfg            float64 `json:"cfg"`
		Seed           *int64  `json:"seed"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "%v", err)
		return
	}
	if req.SessionID == "" || req.Prompt == "" {
		writeError(w, http.StatusBadRequest, "session_id and prompt are required")
		return
	}

	start := time.Now()
	data, err := g.runT2I(r.Context(), t2iParams{
		prompt:   req.Prompt,
		negative: req.NegativePrompt,
		width:    req.Width,
		height:   req.Height,
		steps:    req.Steps,
		cfg:      req.Cfg,
		seed:     req.Seed,
	})
	if err != nil {
		runError(w, err)
		return
	}

	name := req.OutputFilename
	if name == "" {
		name = "generated.png"
	}
	if _, err := g.persist(req.SessionID, name, data); err != nil {
		writeError(w, http.StatusBadRequest, "persist failed: %v", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success":         true,
		"output_file":     name,
		"session_id":      req.SessionID,
		"processing_time": round2(time.Since(start).Seconds()),
	})
}

func (g *ImageGateway) handleSessionEdit(w http.ResponseWriter, r *http.Request) {
	var req struct {
		SessionID      string `json:"session_id"`
		Prompt         string `json:"prompt"`
		Image1Filename string `json:"image1_filename"`
		Image2Filename string `json:"image2_filename"`
		UseDefaultFace bool   `json:"use_default_face"`
		OutputFilename string `json:"output_filename"`
		Seed           *int64 `json:"seed"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "%v", err)
		return
	}
	if req.SessionID == "" || req.Prompt == "" {
		writeError(w, http.StatusBadRequest, "session_id and prompt are required")
		return
	}

	var images []string
	if req.UseDefaultFace {
		if g.defaultFace == "" {
			writeError(w, http.StatusBadRequest, "default face asset is not configured on this gateway")
			return
		}
		images = append(images, g.defaultFace)
	} else {
		if req.Image1Filename == "" {
			writeError(w, http.StatusBadRequest, "image1_filename is required")
			return
		}
		path, ok := g.sessionPath(w, req.SessionID, req.Image1Filename)
		if !ok {
			return
		}
		images = append(images, path)
	}
	if req.Image2Filename != "" {
		path, ok := g.sessionPath(w, req.SessionID, req.Image2Filename)
		if !ok {
			return
		}
		images = append(images, path)
	}

	data, err := g.runEdit(r.Context(), editParams{prompt: req.Prompt, images: images, seed: req.Seed})
	if err != nil {
		runError(w, err)
		return
	}

	name := req.OutputFilename
	if name == "" {
		name = uniqueName("edited", ".png")
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

func (g *ImageGateway) respondT2I(w http.ResponseWriter, r *http.Request, p t2iParams) {
	start := time.Now()
	data, err := g.runT2I(r.Context(), p)
	if err != nil {
		runError(w, err)
		return
	}
	name, err := g.saveOutput(uniqueName("zimage", ".png"), data)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "persist failed: %v", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success":         true,
		"output_file":     name,
		"processing_time": round2(time.Since(start).Seconds()),
	})
}
