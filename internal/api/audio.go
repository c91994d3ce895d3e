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
	"github.com/Amore-GG/BE/internal/tts"
)

const (
	audioTimeout   = 30 * time.Minute
	ambientDefFPS  = 24
	ttsCallTimeout = 60 * time.Second
)

// AudioGateway produces speech via the TTS provider and ambient
// soundtracks via the audio node-graph backend.
type AudioGateway struct {
	inference
	tts       *tts.Client // nil when not configured
	ambientWF string
}

// NewAudioRouter builds the audio gateway HTTP surface.
func NewAudioRouter(cfg *config.Config, store *session.Store, backend *comfy.Client, templates *comfy.TemplateStore, speech *tts.Client) http.Handler {
	g := &AudioGateway{
		inference: inference{
			base:      newBase("audio", cfg, store),
			backend:   backend,
			templates: templates,
			timeout:   audioTimeout,
		},
		tts:       speech,
		ambientWF: cfg.Workflows.Ambient,
	}

	r := newRouter("audio", cfg)
	r.Get("/", g.handleRoot)
	r.Get("/health", g.handleHealth)
	r.Post("/upload/video", g.handleUploadVideo)
	r.Post("/tts", g.handleTTS)
	r.Post("/session/tts", g.handleSessionTTS)
	r.Post("/ambient", g.handleAmbient)
	r.Post("/session/ambient", g.handleSessionAmbient)
	g.mountOutputs(r)
	g.mountSessions(r)
	return r
}

func (g *AudioGateway) handleRoot(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"service":     "audio",
		"tts_enabled": g.tts != nil,
		"endpoints": map[string]string{
			"POST /tts":             "text-to-speech, result in the output dir",
			"POST /session/tts":     "text-to-speech into a session workspace",
			"POST /upload/video":    "stage a video for ambient scoring",
			"POST /ambient":         "generate ambient audio over a staged video",
			"POST /session/ambient": "ambient scoring using session workspace files",
		},
	})
}

func (g *AudioGateway) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	status := "healthy"
	backendOK := true
	if err := g.backend.Ping(ctx); err != nil {
		status = "degraded"
		backendOK = false
	}
	if g.tts == nil {
		status = "degraded"
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":            status,
		"backend_reachable": backendOK,
		"tts_configured":    g.tts != nil,
	})
}

func (g *AudioGateway) handleUploadVideo(w http.ResponseWriter, r *http.Request) {
	f, hdr, err := formFile(r, "video")
	if err != nil {
		writeError(w, http.StatusBadRequest, "%v", err)
		return
	}
	defer f.Close()

	ext := filepath.Ext(hdr.Filename)
	if ext == "" {
		ext = ".mp4"
	}
	name := uniqueName("video", ext)
	if _, err := saveToDir(g.uploadDir, name, f); err != nil {
		writeError(w, http.StatusInternalServerError, "upload failed: %v", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success":   true,
		"filename":  name,
		"file_type": "video",
	})
}

// synthesize runs one TTS call with its own deadline.
func (g *AudioGateway) synthesize(ctx context.Context, req tts.Request) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, ttsCallTimeout)
	defer cancel()
	return g.tts.Convert(ctx, req)
}

func (g *AudioGateway) handleTTS(w http.ResponseWriter, r *http.Request) {
	if g.tts == nil {
		writeError(w, http.StatusInternalServerError, "tts is not configured on this gateway")
		return
	}
	var req struct {
		Text    string `json:"text"`
		VoiceID string `json:"voice_id"`
		ModelID string `json:"model_id"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "%v", err)
		return
	}
	if req.Text == "" {
		writeError(w, http.StatusBadRequest, "text is required")
		return
	}

	audio, err := g.synthesize(r.Context(), tts.Request{
		Text:    req.Text,
		VoiceID: req.VoiceID,
		ModelID: req.ModelID,
	})
	if err != nil {
		writeError(w, http.StatusInternalServerError, "%v", err)
		return
	}
	name, err := g.saveOutput(uniqueName("tts", ".mp3"), audio)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "persist failed: %v", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success":     true,
		"output_file": name,
		"audio_url":   "/output/" + name,
	})
}

func (g *AudioGateway) handleSessionTTS(w http.ResponseWriter, r *http.Request) {
	if g.tts == nil {
		writeError(w, http.StatusInternalServerError, "tts is not configured on this gateway")
		return
	}
	var req struct {
		SessionID      string `json:"session_id"`
		Text           string `json:"text"`
		VoiceID        string `json:"voice_id"`
		ModelID        string `json:"model_id"`
		OutputFilename string `json:"output_filename"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "%v", err)
		return
	}
	if req.SessionID == "" || req.Text == "" {
		writeError(w, http.StatusBadRequest, "session_id and text are required")
		return
	}

	audio, err := g.synthesize(r.Context(), tts.Request{
		Text:    req.Text,
		VoiceID: req.VoiceID,
		ModelID: req.ModelID,
	})
	if err != nil {
		writeError(w, http.StatusInternalServerError, "%v", err)
		return
	}

	name := req.OutputFilename
	if name == "" {
		name = uniqueName("tts", ".mp3")
	}
	if _, err := g.persist(req.SessionID, name, audio); err != nil {
		writeError(w, http.StatusBadRequest, "persist failed: %v", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success":     true,
		"output_file": name,
		"session_id":  req.SessionID,
	})
}

// runAmbient scores a video with generated ambient audio.
func (g *AudioGateway) runAmbient(ctx context.Context, videoPath, prompt string, fps float64) ([]byte, error) {
	if fps == 0 {
		fps = ambientDefFPS
	}
	graph, err := g.templates.Load(g.ambientWF)
	if err != nil {
		return nil, err
	}

	staged, err := g.stagePath(ctx, videoPath)
	if err != nil {
		return nil, err
	}
	if err := graph.SetLoadVideo(staged, fps); err != nil {
		return nil, err
	}
	if err := graph.SetAmbientPrompt(prompt); err != nil {
		return nil, err
	}
	graph.RandomizeSeeds()
	return g.execute(ctx, graph)
}

func (g *AudioGateway) handleAmbient(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Prompt        string  `json:"prompt"`
		VideoFilename string  `json:"video_filename"`
		FPS           float64 `json:"fps"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "%v", err)
		return
	}
	if req.Prompt == "" || req.VideoFilename == "" {
		writeError(w, http.StatusBadRequest, "prompt and video_filename are required")
		return
	}
	if err := fsutil.SafeName(req.VideoFilename); err != nil {
		writeError(w, http.StatusBadRequest, "invalid video_filename")
		return
	}
	path := filepath.Join(g.uploadDir, req.VideoFilename)
	if err := fsutil.IsRegularFile(path); err != nil {
		writeError(w, http.StatusNotFound, "uploaded file not found: %s", req.VideoFilename)
		return
	}

	data, err := g.runAmbient(r.Context(), path, req.Prompt, req.FPS)
	if err != nil {
		runError(w, err)
		return
	}
	name, err := g.saveOutput(uniqueName("ambient", ".mp4"), data)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "persist failed: %v", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "output_file": name})
}

func (g *AudioGateway) handleSessionAmbient(w http.ResponseWriter, r *http.Request) {
	var req struct {
		SessionID      string  `json:"session_id"`
		Prompt         string  `json:"prompt"`
		VideoFilename  string  `json:"video_filename"`
		OutputFilename string  `json:"output_filename"`
		FPS            float64 `json:"fps"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "%v", err)
		return
	}
	if req.SessionID == "" || req.Prompt == "" || req.VideoFilename == "" {
		writeError(w, http.StatusBadRequest, "session_id, prompt and video_filename are required")
		return
	}
	path, ok := g.sessionPath(w, req.SessionID, req.VideoFilename)
	if !ok {
		return
	}

	data, err := g.runAmbient(r.Context(), path, req.Prompt, req.FPS)
	if err != nil {
		runError(w, err)
		return
	}

	name := req.OutputFilename
	if name == "" {
		name = uniqueName("ambient", ".mp4")
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
