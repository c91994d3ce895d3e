// SPDX-License-Identifier: MIT

package api

import (
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Amore-GG/BE/internal/comfy"
	"github.com/Amore-GG/BE/internal/config"
	"github.com/Amore-GG/BE/internal/media/ffmpeg"
	"github.com/Amore-GG/BE/internal/session"
)

func newVideoServer(t *testing.T) (*httptest.Server, *config.Config) {
	t.Helper()
	cfg := testConfig(t)
	store, err := session.NewStore(filepath.Join(cfg.DataDir, "sessions"))
	require.NoError(t, err)
	handler := NewVideoRouter(cfg, store, comfy.NewClient("http://localhost:1"), comfy.NewTemplateStore(), ffmpeg.Runner{})
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return srv, cfg
}

func seedProject(t *testing.T, cfg *config.Config, id string, scenes ...string) {
	t.Helper()
	dir := filepath.Join(cfg.DataDir, "outputs", "video", "proj_"+id)
	require.NoError(t, os.MkdirAll(dir, 0o755))
	for _, name := range scenes {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("mp4"), 0o644))
	}
}

func TestProjectListing(t *testing.T) {
	srv, cfg := newVideoServer(t)
	seedProject(t, cfg, "demo", "scene_001.mp4", "scene_002.mp4", "notes.txt")

	resp, err := http.Get(srv.URL + "/projects")
	require.NoError(t, err)
	body := decodeBody(t, resp)
	assert.Equal(t, float64(1), body["count"])
	projects := body["projects"].([]any)
	first := projects[0].(map[string]any)
	assert.Equal(t, "demo", first["project_id"])
	assert.Equal(t, float64(2), first["video_count"])

	resp, err = http.Get(srv.URL + "/project/demo/videos")
	require.NoError(t, err)
	body = decodeBody(t, resp)
	assert.Equal(t, float64(2), body["count"])
	videos := body["videos"].([]any)
	assert.Equal(t, "scene_001.mp4", videos[0])
	assert.Equal(t, "scene_002.mp4", videos[1])
}

func TestProjectVideosUnknown(t *testing.T) {
	srv, _ := newVideoServer(t)

	resp, err := http.Get(srv.URL + "/project/ghost/videos")
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	resp.Body.Close()
}

func TestProjectMergeTooFewScenes(t *testing.T) {
	srv, cfg := newVideoServer(t)
	seedProject(t, cfg, "solo", "scene_001.mp4")

	resp := postJSON(t, srv.URL+"/merge/project/solo", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	body := decodeBody(t, resp)
	assert.Contains(t, body["detail"], "at least 2")
}

func TestProjectDelete(t *testing.T) {
	srv, cfg := newVideoServer(t)
	seedProject(t, cfg, "gone", "scene_001.mp4")

	req, _ := http.NewRequest(http.MethodDelete, srv.URL+"/project/gone", nil)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	body := decodeBody(t, resp)
	assert.Equal(t, true, body["success"])

	resp, err = http.Get(srv.URL + "/project/gone/videos")
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	resp.Body.Close()
}

func TestProjectScopedOutputServed(t *testing.T) {
	srv, cfg := newVideoServer(t)
	seedProject(t, cfg, "nest", "scene_001.mp4")

	resp, err := http.Get(srv.URL + "/output/proj_nest/scene_001.mp4")
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()
}

func TestOutputTraversalRejected(t *testing.T) {
	srv, cfg := newVideoServer(t)
	require.NoError(t, os.MkdirAll(filepath.Join(cfg.DataDir, "outputs", "video"), 0o755))

	resp, err := http.Get(srv.URL + "/output/../../secret.txt")
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp.Body.Close()
}

func TestGenerateJSONRequiresImage(t *testing.T) {
	srv, _ := newVideoServer(t)

	resp := postJSON(t, srv.URL+"/generate/json", map[string]any{"prompt": "slow pan"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	body := decodeBody(t, resp)
	assert.Contains(t, body["detail"], "image_filename")
}
