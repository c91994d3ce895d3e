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
	"github.com/Amore-GG/BE/internal/session"
)

const lipsyncTimeout = 30 * time.Minute

// LipsyncGateway fronts the lip-sync backend: a talking-head video plus
// a speech track in, a mouth-synced video out.
type LipsyncGateway struct {
	inference
	lipsyncWF string
}

// NewLipsyncRouter builds the lip-sync gateway HTTP surface.
func NewLipsyncRouter(cfg *config.Config, store *session.Store, backend *comfy.Client, templates *comfy.TemplateStore) http.Handler {
	g := &LipsyncGateway{
		inference: inference{
			base:      newBase("lipsync", cfg, store),
			backend:   backend,
			templates: templates,
			timeout:   lipsyncTimeout,
		},
		lipsyncWF: cfg.Workflows.Lipsync,
	}

	r := newRouter("lipsync", cfg)
	r.Get("/", g.handleRoot)
	r.Get("/health", g.healthHandler(g.lipsyncWF))
	r.Post("/upload/video", g.uploadHandler("video", ".mp4"))
	r.Post("/upload/audio", g.uploadHandler("audio", ".mp3"))
	r.Post("/generate", g.handleGenerateForm)
	r.Post("/generate/json", g.handleGenerateJSON)
	r.Post("/session/generate", g.handleSessionGenerate)
	g.mountOutputs(r)
	g.mountSessions(r)
	return r
}

func (g *LipsyncGateway) handleRoot(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"service": "lipsync",
		"endpoints": map[string]string{
			"POST /upload/video":     "stage an input video",
			"POST /upload/audio":     "stage an input audio track",
			"POST /generate":         "lip-sync (multipart form)",
			"POST /generate/json":    "lip-sync with staged filenames",
			"POST /session/generate": "lip-sync using session workspace files",
		},
	})
}

// uploadHandler stages one media file under a kind-specific prefix.
func (g *LipsyncGateway) uploadHandler(field, defaultExt string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		f, hdr, err := formFile(r, field)
		if err != nil {
			writeError(w, http.StatusBadRequest, "%v", err)
			return
		}
		defer f.Close()

		ext := filepath.Ext(hdr.Filename)
		if ext == "" {
			ext = defaultExt
		}
		name := uniqueName(field, ext)
		if _, err := saveToDir(g.uploadDir, name, f); err != nil {
			writeError(w, http.StatusInternalServerError, "upload failed: %v", err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"success":   true,
			"filename":  name,
			"file_type": field,
		})
	}
}

// lipsyncParams carries one run with defaults applied.
type lipsyncParams struct {
	videoPath      string
	audioPath      string
	seed           *int64
	lipsExpression float64
	inferenceSteps int
	fps            float64
}

func (p *lipsyncParams) applyDefaults() {
	if p.lipsExpression == 0 {
		p.lipsExpression = 1.5
	}
	if p.inferenceSteps == 0 {
		p.inferenceSteps = 20
	}
	if p.fps == 0 {
		p.fps = 25
	}
}

func (g *LipsyncGateway) runLipsync(ctx context.Context, p lipsyncParams) ([]byte, error) {
	p.applyDefaults()
	graph, err := g.templates.Load(g.lipsyncWF)
	if err != nil {
		return nil, err
	}

	video, err := g.stagePath(ctx, p.videoPath)
	if err != nil {
		return nil, err
	}
	audio, err := g.stagePath(ctx, p.audioPath)
	if err != nil {
		return nil, err
	}

	if err := graph.SetLoadVideo(video, p.fps); err != nil {
		return nil, err
	}
	if err := graph.SetLoadAudio(audio); err != nil {
		return nil, err
	}
	if err := graph.SetLipsyncParams(p.lipsExpression, p.inferenceSteps); err != nil {
		return nil, err
	}
	// the whole chain must agree on one frame rate or sync drifts
	graph.SetFPS(p.fps)
	graph.RandomizeSeeds()
	if p.seed != nil {
		graph.SetSeed(*p.seed)
	}
	return g.execute(ctx, graph)
}

func (g *LipsyncGateway) handleGenerateForm(w http.ResponseWriter, r *http.Request) {
	fv, hdrV, err := formFile(r, "video")
	if err != nil {
		writeError(w, http.StatusBadRequest, "%v", err)
		return
	}
	defer fv.Close()
	fa, hdrA, err := formFile(r, "audio")
	if err != nil {
		writeError(w, http.StatusBadRequest, "%v", err)
		return
	}
	defer fa.Close()

	videoPath, err := saveToDir(g.uploadDir, uniqueName("video", filepath.Ext(hdrV.Filename)), fv)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "staging failed: %v", err)
		return
	}
	audioPath, err := saveToDir(g.uploadDir, uniqueName("audio", filepath.Ext(hdrA.Filename)), fa)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "staging failed: %v", err)
		return
	}

	g.respondLipsync(w, r, lipsyncParams{
		videoPath:      videoPath,
		audioPath:      audioPath,
		lipsExpression: formFloat(r, "lips_expression"),
		inferenceSteps: formInt(r, "inference_steps"),
		fps:            float64(formInt(r, "fps")),
	})
}

func (g *LipsyncGateway) handleGenerateJSON(w http.ResponseWriter, r *http.Request) {
	var req struct {
		VideoFilename  string  `json:"video_filename"`
		AudioFilename  string  `json:"audio_filename"`
		Seed           *int64  `json:"seed"`
		LipsExpression float64 `json:"lips_expression"`
		InferenceSteps int     `json:"inference_steps"`
		FPS            float64 `json:"fps"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "%v", err)
		return
	}
	if req.VideoFilename == "" || req.AudioFilename == "" {
		writeError(w, http.StatusBadRequest, "video_filename and audio_filename are required")
		return
	}

	videoPath, ok := g.uploadedPath(w, req.VideoFilename)
	if !ok {
		return
	}
	audioPath, ok := g.uploadedPath(w, req.AudioFilename)
	if !ok {
		return
	}

	g.respondLipsync(w, r, lipsyncParams{
		videoPath:      videoPath,
		audioPath:      audioPath,
		seed:           req.Seed,
		lipsExpression: req.LipsExpression,
		inferenceSteps: req.InferenceSteps,
		fps:            req.FPS,
	})
}

func (g *LipsyncGateway) uploadedPath(w http.ResponseWriter, name string) (string, bool) {
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

func (g *LipsyncGateway) respondLipsync(w http.ResponseWriter, r *http.Request, p lipsyncParams) {
	start := time.Now()
	data, err := g.runLipsync(r.Context(), p)
	if err != nil {
		runError(w, err)
		return
	}
	name, err := g.saveOutput(uniqueName("lipsync", ".mp4"), data)
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

func (g *LipsyncGateway) handleSessionGenerate(w http.ResponseWriter, r *http.Request) {
	var req struct {
		SessionID      string  `json:"session_id"`
		VideoFilename  string  `json:"video_filename"`
		AudioFilename  string  `json:"audio_filename"`
		OutputFilename string  `json:"output_filename"`
		Seed           *int64  `json:"seed"`
		LipsExpression float64 `json:"lips_expression"`
		InferenceSteps int     `json:"inference_steps"`
		FPS            float64 `json:"fps"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "%v", err)
		return
	}
	if req.SessionID == "" || req.VideoFilename == "" || req.AudioFilename == "" {
		writeError(w, http.StatusBadRequest, "session_id, video_filename and audio_filename are required")
		return
	}

	videoPath, ok := g.sessionPath(w, req.SessionID, req.VideoFilename)
	if !ok {
		return
	}
	audioPath, ok := g.sessionPath(w, req.SessionID, req.AudioFilename)
	if !ok {
		return
	}

	data, err := g.runLipsync(r.Context(), lipsyncParams{
		videoPath:      videoPath,
		audioPath:      audioPath,
		seed:           req.Seed,
		lipsExpression: req.LipsExpression,
		inferenceSteps: req.InferenceSteps,
		fps:            req.FPS,
	})
	if err != nil {
		runError(w, err)
		return
	}

	name := req.OutputFilename
	if name == "" {
		name = "lipsync.mp4"
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
