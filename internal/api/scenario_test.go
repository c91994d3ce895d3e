// SPDX-License-Identifier: MIT

package api

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Amore-GG/BE/internal/llm"
	"github.com/Amore-GG/BE/internal/scenario"
)

// stubCompleter answers engine prompts by recognizing their instruction
// headers: validators always pass, shot synthesis returns a fixed JSON.
type stubCompleter struct{}

func (stubCompleter) Complete(_ context.Context, req llm.Request) (string, error) {
	switch {
	case strings.Contains(req.Prompt, "dialogue quality validator"),
		strings.Contains(req.Prompt, "grammar and spacing validator"):
		return `{"score": 9, "pass": true}`, nil
	case strings.Contains(req.Prompt, "convert the following Korean scene"):
		return `{
			"dialogue": "햇살이 좋네요",
			"t2i_prompt": {
				"background": "sunlit bedroom",
				"character_pose_and_gaze": "sitting on bed",
				"product": "essence bottle",
				"camera_angle": "medium shot"
			},
			"image_edit_prompt": {
				"pose_change": "lean forward",
				"gaze_change": "look at bottle",
				"expression": "soft smile",
				"additional_edits": ""
			},
			"background_sounds_prompt": "morning birds"
		}`, nil
	default:
		return "지지가 아침에 일어나 에센스를 바르는 광고입니다.", nil
	}
}

func newScenarioServer(t *testing.T) *httptest.Server {
	t.Helper()
	cfg := testConfig(t)
	engine := scenario.NewEngine(stubCompleter{})
	srv := httptest.NewServer(NewScenarioRouter(cfg, engine))
	t.Cleanup(srv.Close)
	return srv
}

func TestBrandsEndpoint(t *testing.T) {
	srv := newScenarioServer(t)

	resp, err := http.Get(srv.URL + "/brands")
	require.NoError(t, err)
	body := decodeBody(t, resp)
	brands, ok := body["brands"].([]any)
	require.True(t, ok)
	assert.NotEmpty(t, brands)
}

func TestGenerateScenarioEndpoint(t *testing.T) {
	srv := newScenarioServer(t)

	resp := postJSON(t, srv.URL+"/generate", map[string]any{
		"brand":      "이니스프리",
		"user_query": "아침 루틴 광고",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body := decodeBody(t, resp)
	assert.Equal(t, "이니스프리", body["brand"])
	assert.Equal(t, float64(1), body["attempts"])
	assert.NotEmpty(t, body["scenario"])
}

func TestGenerateScenarioRequiresBrand(t *testing.T) {
	srv := newScenarioServer(t)

	resp := postJSON(t, srv.URL+"/generate", map[string]any{"user_query": "x"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp.Body.Close()
}

func TestRegenerateDialogueEndpoint(t *testing.T) {
	srv := newScenarioServer(t)

	resp := postJSON(t, srv.URL+"/regenerate-dialogue", map[string]any{
		"scene_description":  "지지가 거울을 보며 미소 지음",
		"previous_dialogues": []string{"안녕하세요!"},
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body := decodeBody(t, resp)
	assert.Equal(t, "success", body["status"])
	assert.NotEmpty(t, body["dialogue"])
}

func TestTimetableStreamValidation(t *testing.T) {
	srv := newScenarioServer(t)

	resp := postJSON(t, srv.URL+"/generate-timetable-stream", map[string]any{
		"scenario": "지지가 세수를 합니다.",
	})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	body := decodeBody(t, resp)
	assert.Contains(t, body["detail"], "video_duration")
}

func TestTimetableStreamEventOrder(t *testing.T) {
	srv := newScenarioServer(t)

	payload, err := json.Marshal(map[string]any{
		"scenario":       "지지가 아침에 일어나 창문을 엽니다. 지지가 에센스를 얼굴에 바릅니다.",
		"video_duration": 10,
		"brand":          "이니스프리",
	})
	require.NoError(t, err)

	resp, err := http.Post(srv.URL+"/generate-timetable-stream", "application/json", strings.NewReader(string(payload)))
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))
	assert.Equal(t, "no-cache", resp.Header.Get("Cache-Control"))
	assert.Equal(t, "no", resp.Header.Get("X-Accel-Buffering"))

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	var types []string
	var shots []scenario.Shot
	for _, block := range strings.Split(strings.TrimSpace(string(raw)), "\n\n") {
		line := strings.TrimPrefix(block, "data: ")
		var env struct {
			Type string          `json:"type"`
			Data json.RawMessage `json:"data"`
		}
		require.NoError(t, json.Unmarshal([]byte(line), &env), "block %q", block)
		types = append(types, env.Type)
		if env.Type == "scene" {
			var shot scenario.Shot
			require.NoError(t, json.Unmarshal(env.Data, &shot))
			shots = append(shots, shot)
		}
	}

	require.GreaterOrEqual(t, len(types), 3)
	assert.Equal(t, "metadata", types[0])
	assert.Equal(t, "complete", types[len(types)-1])
	for i, shot := range shots {
		assert.Equal(t, i, shot.Index, "scene events must arrive in index order")
		assert.Equal(t, "햇살이 좋네요", shot.Dialogue)
	}
	require.NotEmpty(t, shots)
	assert.Equal(t, 0.0, shots[0].TimeStart)
	assert.Equal(t, 10.0, shots[len(shots)-1].TimeEnd)
}
