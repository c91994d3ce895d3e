// SPDX-License-Identifier: MIT

package api

import (
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Amore-GG/BE/internal/comfy"
	"github.com/Amore-GG/BE/internal/session"
	"github.com/Amore-GG/BE/internal/tts"
)

func newAudioServer(t *testing.T, speech *tts.Client) *httptest.Server {
	t.Helper()
	cfg := testConfig(t)
	store, err := session.NewStore(filepath.Join(cfg.DataDir, "sessions"))
	require.NoError(t, err)
	handler := NewAudioRouter(cfg, store, comfy.NewClient("http://localhost:1"), comfy.NewTemplateStore(), speech)
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return srv
}

func TestTTSUnconfigured(t *testing.T) {
	srv := newAudioServer(t, nil)

	resp := postJSON(t, srv.URL+"/tts", map[string]any{"text": "안녕하세요"})
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	body := decodeBody(t, resp)
	assert.Contains(t, body["detail"], "not configured")
}

func TestTTSProducesArtifact(t *testing.T) {
	provider := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.True(t, strings.HasPrefix(r.URL.Path, "/v1/text-to-speech/"))
		assert.Equal(t, "test-key", r.Header.Get("xi-api-key"))
		w.Header().Set("Content-Type", "audio/mpeg")
		w.Write([]byte("mp3-bytes"))
	}))
	defer provider.Close()

	speech, err := tts.New("test-key", "voice-1", tts.WithBaseURL(provider.URL))
	require.NoError(t, err)
	srv := newAudioServer(t, speech)

	resp := postJSON(t, srv.URL+"/tts", map[string]any{"text": "좋은 아침이에요"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body := decodeBody(t, resp)
	assert.Equal(t, true, body["success"])
	name, _ := body["output_file"].(string)
	assert.True(t, strings.HasPrefix(name, "tts_"))
	assert.True(t, strings.HasSuffix(name, ".mp3"))
	assert.Equal(t, "/output/"+name, body["audio_url"])

	// the synthesized artifact is fetchable
	resp, err = http.Get(srv.URL + "/output/" + name)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()
}

func TestSessionTTSWritesIntoWorkspace(t *testing.T) {
	provider := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("mp3-bytes"))
	}))
	defer provider.Close()

	speech, err := tts.New("test-key", "voice-1", tts.WithBaseURL(provider.URL))
	require.NoError(t, err)
	srv := newAudioServer(t, speech)

	resp := postJSON(t, srv.URL+"/session/tts", map[string]any{
		"session_id":      "sess-tts",
		"text":            "대사입니다",
		"output_filename": "line_01.mp3",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body := decodeBody(t, resp)
	assert.Equal(t, "line_01.mp3", body["output_file"])
	assert.Equal(t, "sess-tts", body["session_id"])

	resp, err = http.Get(srv.URL + "/session/sess-tts/file/line_01.mp3")
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()
}

func TestAmbientValidation(t *testing.T) {
	srv := newAudioServer(t, nil)

	resp := postJSON(t, srv.URL+"/ambient", map[string]any{"prompt": "rain"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp.Body.Close()

	resp = postJSON(t, srv.URL+"/ambient", map[string]any{
		"prompt":         "rain",
		"video_filename": "never_staged.mp4",
	})
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	resp.Body.Close()
}
