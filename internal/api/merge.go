// SPDX-License-Identifier: MIT

package api

import (
	"net/http"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/Amore-GG/BE/internal/config"
	"github.com/Amore-GG/BE/internal/fsutil"
	"github.com/Amore-GG/BE/internal/media/ffmpeg"
	"github.com/Amore-GG/BE/internal/session"
)

// MergeGateway is pure post-production: concat, audio attach and audio
// mix over the encoder CLI, no generative backend.
type MergeGateway struct {
	base
	ffmpeg ffmpeg.Runner
}

// NewMergeRouter builds the merge gateway HTTP surface.
func NewMergeRouter(cfg *config.Config, store *session.Store, runner ffmpeg.Runner) http.Handler {
	g := &MergeGateway{
		base:   newBase("merge", cfg, store),
		ffmpeg: runner,
	}

	r := newRouter("merge", cfg)
	r.Get("/", g.handleRoot)
	r.Get("/health", g.handleHealth)
	r.Post("/upload/video", g.uploadHandler("video", ".mp4"))
	r.Post("/upload/audio", g.uploadHandler("audio", ".mp3"))
	r.Post("/merge/videos", g.handleMergeVideos)
	r.Post("/merge/audio-video", g.handleMergeAudioVideo)
	r.Post("/merge/audio-video/form", g.handleMergeAudioVideoForm)
	r.Post("/merge/audio-mix", g.handleAudioMix)
	r.Post("/merge/audio-mix/form", g.handleAudioMixForm)
	r.Post("/session/merge/videos", g.handleSessionMergeVideos)
	r.Post("/session/merge/audio-video", g.handleSessionMergeAudioVideo)
	r.Post("/session/merge/audio-mix", g.handleSessionAudioMix)
	r.Get("/sessions", g.handleSessions)
	g.mountOutputs(r)
	g.mountSessions(r)
	return r
}

func (g *MergeGateway) handleRoot(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"service": "merge",
		"endpoints": map[string]string{
			"POST /upload/video":              "stage a video",
			"POST /upload/audio":              "stage an audio track",
			"POST /merge/videos":              "concat staged videos in order",
			"POST /merge/audio-video":         "attach an audio track to a video",
			"POST /merge/audio-mix":           "mix an extra track into a video's audio",
			"POST /session/merge/videos":      "concat session workspace videos",
			"POST /session/merge/audio-video": "attach audio within a session",
			"POST /session/merge/audio-mix":   "mix audio within a session",
			"GET /sessions":                   "list session workspaces",
		},
	})
}

func (g *MergeGateway) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := "healthy"
	_, err := exec.LookPath("ffmpeg")
	if err != nil {
		status = "degraded"
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":         status,
		"ffmpeg_present": err == nil,
	})
}

func (g *MergeGateway) uploadHandler(field, defaultExt string) http.HandlerFunc {
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

// localPath resolves a staged or previously produced filename.
func (g *MergeGateway) localPath(w http.ResponseWriter, name string) (string, bool) {
	if err := fsutil.SafeName(name); err != nil {
		writeError(w, http.StatusBadRequest, "invalid filename %q", name)
		return "", false
	}
	for _, dir := range []string{g.uploadDir, g.outputDir} {
		path := filepath.Join(dir, name)
		if err := fsutil.IsRegularFile(path); err == nil {
			return path, true
		}
	}
	writeError(w, http.StatusNotFound, "file not found: %s", name)
	return "", false
}

// mergeResponse is the common success shape, duration probed from the
// written output.
func (g *MergeGateway) mergeResponse(w http.ResponseWriter, r *http.Request, outputPath, outputName, sessionID string) {
	duration, err := g.ffmpeg.Duration(r.Context(), outputPath)
	if err != nil {
		duration = 0
	}
	resp := map[string]any{
		"success":     true,
		"output_file": outputName,
		"duration":    round2(duration),
	}
	if sessionID != "" {
		resp["session_id"] = sessionID
	}
	writeJSON(w, http.StatusOK, resp)
}

func ensureMP4(name string) string {
	if filepath.Ext(name) == "" {
		return name + ".mp4"
	}
	return name
}

func (g *MergeGateway) handleMergeVideos(w http.ResponseWriter, r *http.Request) {
	var req struct {
		VideoFilenames []string `json:"video_filenames"`
		OutputFilename string   `json:"output_filename"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "%v", err)
		return
	}
	if len(req.VideoFilenames) < 2 {
		writeError(w, http.StatusBadRequest, "need at least 2 videos to merge, got %d", len(req.VideoFilenames))
		return
	}

	paths := make([]string, 0, len(req.VideoFilenames))
	for _, name := range req.VideoFilenames {
		path, ok := g.localPath(w, name)
		if !ok {
			return
		}
		paths = append(paths, path)
	}

	outputName := req.OutputFilename
	if outputName == "" {
		outputName = uniqueName("merged", ".mp4")
	}
	outputName = ensureMP4(outputName)
	if err := fsutil.SafeName(outputName); err != nil {
		writeError(w, http.StatusBadRequest, "invalid output_filename")
		return
	}
	outputPath, ok := g.resolveOutput(w, "", outputName)
	if !ok {
		return
	}

	if err := g.ffmpeg.Concat(r.Context(), paths, outputPath); err != nil {
		writeError(w, http.StatusInternalServerError, "%v", err)
		return
	}
	g.mergeResponse(w, r, outputPath, outputName, "")
}

func (g *MergeGateway) handleMergeAudioVideo(w http.ResponseWriter, r *http.Request) {
	var req struct {
		VideoFilename  string `json:"video_filename"`
		AudioFilename  string `json:"audio_filename"`
		OutputFilename string `json:"output_filename"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "%v", err)
		return
	}
	if req.VideoFilename == "" || req.AudioFilename == "" {
		writeError(w, http.StatusBadRequest, "video_filename and audio_filename are required")
		return
	}
	video, ok := g.localPath(w, req.VideoFilename)
	if !ok {
		return
	}
	audio, ok := g.localPath(w, req.AudioFilename)
	if !ok {
		return
	}
	g.runMergeAudioVideo(w, r, video, audio, req.OutputFilename, "")
}

func (g *MergeGateway) handleMergeAudioVideoForm(w http.ResponseWriter, r *http.Request) {
	video, audio, ok := g.stageFormPair(w, r)
	if !ok {
		return
	}
	g.runMergeAudioVideo(w, r, video, audio, r.FormValue("output_filename"), "")
}

func (g *MergeGateway) runMergeAudioVideo(w http.ResponseWriter, r *http.Request, video, audio, outputName, sessionID string) {
	if outputName == "" {
		outputName = uniqueName("merged", ".mp4")
	}
	outputName = ensureMP4(outputName)
	if err := fsutil.SafeName(outputName); err != nil {
		writeError(w, http.StatusBadRequest, "invalid output_filename")
		return
	}

	outputPath, ok := g.resolveOutput(w, sessionID, outputName)
	if !ok {
		return
	}
	if err := g.ffmpeg.MergeAudioVideo(r.Context(), video, audio, outputPath); err != nil {
		writeError(w, http.StatusInternalServerError, "%v", err)
		return
	}
	g.mergeResponse(w, r, outputPath, outputName, sessionID)
}

func (g *MergeGateway) handleAudioMix(w http.ResponseWriter, r *http.Request) {
	var req struct {
		VideoFilename  string   `json:"video_filename"`
		AudioFilename  string   `json:"audio_filename"`
		VideoVolume    *float64 `json:"video_volume"`
		AudioVolume    *float64 `json:"audio_volume"`
		OutputFilename string   `json:"output_filename"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "%v", err)
		return
	}
	if req.VideoFilename == "" || req.AudioFilename == "" {
		writeError(w, http.StatusBadRequest, "video_filename and audio_filename are required")
		return
	}
	video, ok := g.localPath(w, req.VideoFilename)
	if !ok {
		return
	}
	audio, ok := g.localPath(w, req.AudioFilename)
	if !ok {
		return
	}
	g.runAudioMix(w, r, video, audio, mixGains(req.VideoVolume, req.AudioVolume), req.OutputFilename, "")
}

func (g *MergeGateway) handleAudioMixForm(w http.ResponseWriter, r *http.Request) {
	video, audio, ok := g.stageFormPair(w, r)
	if !ok {
		return
	}
	var vVol, aVol *float64
	if v := r.FormValue("video_volume"); v != "" {
		f := formFloat(r, "video_volume")
		vVol = &f
	}
	if v := r.FormValue("audio_volume"); v != "" {
		f := formFloat(r, "audio_volume")
		aVol = &f
	}
	g.runAudioMix(w, r, video, audio, mixGains(vVol, aVol), r.FormValue("output_filename"), "")
}

// mixGains applies the default gain staging: original audio untouched,
// added track pulled down.
func mixGains(video, audio *float64) [2]float64 {
	gains := [2]float64{1.0, 0.3}
	if video != nil {
		gains[0] = *video
	}
	if audio != nil {
		gains[1] = *audio
	}
	return gains
}

func (g *MergeGateway) runAudioMix(w http.ResponseWriter, r *http.Request, video, audio string, gains [2]float64, outputName, sessionID string) {
	if outputName == "" {
		outputName = uniqueName("final", ".mp4")
	}
	outputName = ensureMP4(outputName)
	if err := fsutil.SafeName(outputName); err != nil {
		writeError(w, http.StatusBadRequest, "invalid output_filename")
		return
	}

	outputPath, ok := g.resolveOutput(w, sessionID, outputName)
	if !ok {
		return
	}
	if err := g.ffmpeg.MixAudio(r.Context(), video, audio, gains[0], gains[1], outputPath); err != nil {
		writeError(w, http.StatusInternalServerError, "%v", err)
		return
	}
	g.mergeResponse(w, r, outputPath, outputName, sessionID)
}

// resolveOutput picks the target path: session workspace or local
// output dir.
func (g *MergeGateway) resolveOutput(w http.ResponseWriter, sessionID, name string) (string, bool) {
	if sessionID == "" {
		if err := os.MkdirAll(g.outputDir, 0o755); err != nil {
			writeError(w, http.StatusInternalServerError, "create output dir: %v", err)
			return "", false
		}
		return filepath.Join(g.outputDir, name), true
	}
	dir, err := g.store.Dir(sessionID)
	if err != nil {
		writeError(w, http.StatusBadRequest, "%v", err)
		return "", false
	}
	return filepath.Join(dir, name), true
}

// stageFormPair saves the multipart video+audio pair of the form
// variants into the staging dir.
func (g *MergeGateway) stageFormPair(w http.ResponseWriter, r *http.Request) (video, audio string, ok bool) {
	fv, hdrV, err := formFile(r, "video")
	if err != nil {
		writeError(w, http.StatusBadRequest, "%v", err)
		return "", "", false
	}
	defer fv.Close()
	fa, hdrA, err := formFile(r, "audio")
	if err != nil {
		writeError(w, http.StatusBadRequest, "%v", err)
		return "", "", false
	}
	defer fa.Close()

	video, err = saveToDir(g.uploadDir, uniqueName("video", filepath.Ext(hdrV.Filename)), fv)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "staging failed: %v", err)
		return "", "", false
	}
	audio, err = saveToDir(g.uploadDir, uniqueName("audio", filepath.Ext(hdrA.Filename)), fa)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "staging failed: %v", err)
		return "", "", false
	}
	return video, audio, true
}

func (g *MergeGateway) handleSessionMergeVideos(w http.ResponseWriter, r *http.Request) {
	var req struct {
		SessionID      string   `json:"session_id"`
		VideoFiles     []string `json:"video_files"`
		OutputFilename string   `json:"output_filename"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "%v", err)
		return
	}
	if req.SessionID == "" {
		writeError(w, http.StatusBadRequest, "session_id is required")
		return
	}
	if len(req.VideoFiles) < 2 {
		writeError(w, http.StatusBadRequest, "need at least 2 videos to merge, got %d", len(req.VideoFiles))
		return
	}

	paths := make([]string, 0, len(req.VideoFiles))
	for _, name := range req.VideoFiles {
		path, ok := g.sessionPath(w, req.SessionID, name)
		if !ok {
			return
		}
		paths = append(paths, path)
	}

	outputName := req.OutputFilename
	if outputName == "" {
		outputName = "merged.mp4"
	}
	outputName = ensureMP4(outputName)
	if err := fsutil.SafeName(outputName); err != nil {
		writeError(w, http.StatusBadRequest, "invalid output_filename")
		return
	}
	outputPath, ok := g.resolveOutput(w, req.SessionID, outputName)
	if !ok {
		return
	}

	if err := g.ffmpeg.Concat(r.Context(), paths, outputPath); err != nil {
		writeError(w, http.StatusInternalServerError, "%v", err)
		return
	}
	g.mergeResponse(w, r, outputPath, outputName, req.SessionID)
}

func (g *MergeGateway) handleSessionMergeAudioVideo(w http.ResponseWriter, r *http.Request) {
	var req struct {
		SessionID      string `json:"session_id"`
		VideoFilename  string `json:"video_filename"`
		AudioFilename  string `json:"audio_filename"`
		OutputFilename string `json:"output_filename"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "%v", err)
		return
	}
	if req.SessionID == "" || req.VideoFilename == "" || req.AudioFilename == "" {
		writeError(w, http.StatusBadRequest, "session_id, video_filename and audio_filename are required")
		return
	}
	video, ok := g.sessionPath(w, req.SessionID, req.VideoFilename)
	if !ok {
		return
	}
	audio, ok := g.sessionPath(w, req.SessionID, req.AudioFilename)
	if !ok {
		return
	}
	name := req.OutputFilename
	if name == "" {
		name = "merged.mp4"
	}
	g.runMergeAudioVideo(w, r, video, audio, name, req.SessionID)
}

func (g *MergeGateway) handleSessionAudioMix(w http.ResponseWriter, r *http.Request) {
	var req struct {
		SessionID      string   `json:"session_id"`
		VideoFilename  string   `json:"video_filename"`
		AudioFilename  string   `json:"audio_filename"`
		VideoVolume    *float64 `json:"video_volume"`
		AudioVolume    *float64 `json:"audio_volume"`
		OutputFilename string   `json:"output_filename"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "%v", err)
		return
	}
	if req.SessionID == "" || req.VideoFilename == "" || req.AudioFilename == "" {
		writeError(w, http.StatusBadRequest, "session_id, video_filename and audio_filename are required")
		return
	}
	video, ok := g.sessionPath(w, req.SessionID, req.VideoFilename)
	if !ok {
		return
	}
	audio, ok := g.sessionPath(w, req.SessionID, req.AudioFilename)
	if !ok {
		return
	}
	name := req.OutputFilename
	if name == "" {
		name = "final.mp4"
	}
	g.runAudioMix(w, r, video, audio, mixGains(req.VideoVolume, req.AudioVolume), name, req.SessionID)
}

func (g *MergeGateway) handleSessions(w http.ResponseWriter, r *http.Request) {
	sessions, err := g.store.Sessions()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "list failed: %v", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"sessions": sessions,
		"count":    len(sessions),
	})
}
