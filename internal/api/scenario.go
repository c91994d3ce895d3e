// SPDX-License-Identifier: MIT

package api

import (
	"net/http"

	"github.com/Amore-GG/BE/internal/config"
	"github.com/Amore-GG/BE/internal/scenario"
)

// ScenarioGateway fronts the scenario→timetable engine.
type ScenarioGateway struct {
	engine *scenario.Engine
	model  string
}

// NewScenarioRouter builds the scenario gateway HTTP surface.
func NewScenarioRouter(cfg *config.Config, engine *scenario.Engine) http.Handler {
	g := &ScenarioGateway{engine: engine, model: cfg.LLM.Model}
	r := newRouter("scenario", cfg)

	r.Get("/", g.handleRoot)
	r.Get("/health", g.handleHealth)
	r.Get("/brands", g.handleBrands)
	r.Post("/generate", g.handleGenerate)
	r.Post("/generate-timetable-stream", g.handleTimetableStream)
	r.Post("/regenerate-dialogue", g.handleRegenerateDialogue)

	return r
}

func (g *ScenarioGateway) handleRoot(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"service": "scenario",
		"model":   g.model,
		"endpoints": map[string]string{
			"POST /generate":                  "validator-gated scenario generation",
			"GET /brands":                     "available brand list",
			"POST /generate-timetable-stream": "streaming shot-list generation (SSE)",
			"POST /regenerate-dialogue":       "single-scene dialogue regeneration",
			"GET /health":                     "liveness",
		},
	})
}

func (g *ScenarioGateway) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "model": g.model})
}

func (g *ScenarioGateway) handleBrands(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"brands": scenario.Brands})
}

func (g *ScenarioGateway) handleGenerate(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Brand     string `json:"brand"`
		UserQuery string `json:"user_query"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "%v", err)
		return
	}
	if req.Brand == "" {
		writeError(w, http.StatusBadRequest, "brand is required")
		return
	}

	text, attempts, err := g.engine.GenerateScenario(r.Context(), req.Brand, req.UserQuery)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "scenario generation failed: %v", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"scenario": text,
		"brand":    req.Brand,
		"attempts": attempts,
	})
}

func (g *ScenarioGateway) handleTimetableStream(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Scenario      string `json:"scenario"`
		VideoDuration int    `json:"video_duration"`
		Brand         string `json:"brand"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "%v", err)
		return
	}
	if req.Scenario == "" {
		writeError(w, http.StatusBadRequest, "scenario is required")
		return
	}
	if req.VideoDuration <= 0 {
		writeError(w, http.StatusBadRequest, "video_duration must be positive")
		return
	}

	events := g.engine.StreamTimetable(r.Context(), req.Scenario, req.VideoDuration, req.Brand)
	streamEvents(w, r, events)
}

func (g *ScenarioGateway) handleRegenerateDialogue(w http.ResponseWriter, r *http.Request) {
	var req struct {
		SceneDescription  string   `json:"scene_description"`
		PreviousDialogues []string `json:"previous_dialogues"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "%v", err)
		return
	}
	if req.SceneDescription == "" {
		writeError(w, http.StatusBadRequest, "scene_description is required")
		return
	}

	dialogue, err := g.engine.GenerateDialogue(r.Context(), req.SceneDescription, req.PreviousDialogues)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "dialogue generation failed: %v", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":   "success",
		"dialogue": dialogue,
	})
}
