// SPDX-License-Identifier: MIT

package comfy

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeBackend emulates the node-graph executor's HTTP and WS surface.
func fakeBackend(t *testing.T, mux *http.ServeMux) *Client {
	t.Helper()
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return NewClient(srv.URL)
}

func TestUploadFile(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /upload/image", func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseMultipartForm(1<<20))
		assert.Equal(t, "true", r.FormValue("overwrite"))
		f, hdr, err := r.FormFile("image")
		require.NoError(t, err)
		f.Close()
		_ = json.NewEncoder(w).Encode(map[string]string{"name": hdr.Filename})
	})
	c := fakeBackend(t, mux)

	path := filepath.Join(t.TempDir(), "input.png")
	require.NoError(t, os.WriteFile(path, []byte("png"), 0o644))

	name, err := c.UploadFile(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, "input.png", name)
}

func TestQueuePrompt(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /prompt", func(w http.ResponseWriter, r *http.Request) {
		var payload struct {
			Prompt   Graph  `json:"prompt"`
			ClientID string `json:"client_id"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
		assert.NotEmpty(t, payload.ClientID)
		assert.Contains(t, payload.Prompt, "1")
		_ = json.NewEncoder(w).Encode(map[string]string{"prompt_id": "p-123"})
	})
	c := fakeBackend(t, mux)

	id, err := c.QueuePrompt(context.Background(), Graph{
		"1": {ClassType: "LoadImage", Inputs: map[string]any{"image": "a.png"}},
	})
	require.NoError(t, err)
	assert.Equal(t, "p-123", id)
}

func TestQueuePromptSurfacesNodeErrors(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /prompt", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":"node 37 missing image","node_errors":{"37":{}}}`))
	})
	c := fakeBackend(t, mux)

	_, err := c.QueuePrompt(context.Background(), Graph{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "node 37 missing image")
	assert.Contains(t, err.Error(), "node_errors")
}

func TestHistoryCollectsImagesAndGifs(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /history/p-1", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{
			"p-1": {"outputs": {
				"9":  {"images": [{"filename": "out.png", "subfolder": "", "type": "output"}]},
				"12": {"gifs":   [{"filename": "out.mp4", "subfolder": "video", "type": "output"}]},
				"3":  {"latents": [{"filename": "ignored"}]}
			}}
		}`))
	})
	c := fakeBackend(t, mux)

	outputs, err := c.History(context.Background(), "p-1")
	require.NoError(t, err)
	require.Len(t, outputs, 2)
	assert.Equal(t, "out.png", outputs["9"][0].Filename)
	assert.Equal(t, "video", outputs["12"][0].Subfolder)
}

func TestExecuteRetriesEmptyHistoryOnce(t *testing.T) {
	calls := 0
	mux := http.NewServeMux()
	mux.HandleFunc("POST /prompt", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]string{"prompt_id": "p-9"})
	})
	mux.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, nil)
		require.NoError(t, err)
		defer conn.Close(websocket.StatusNormalClosure, "done")
		msg := []byte(`{"type":"executing","data":{"prompt_id":"p-9","node":null}}`)
		_ = conn.Write(r.Context(), websocket.MessageText, msg)
		time.Sleep(100 * time.Millisecond)
	})
	mux.HandleFunc("GET /history/p-9", func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls == 1 {
			_, _ = w.Write([]byte(`{}`))
			return
		}
		_, _ = w.Write([]byte(`{"p-9": {"outputs": {"5": {"images": [{"filename": "x.png"}]}}}}`))
	})
	c := fakeBackend(t, mux)

	files, err := c.Execute(context.Background(), Graph{}, 5*time.Second)
	require.NoError(t, err)
	require.Len(t, files, 1)
	assert.Equal(t, "x.png", files[0].Filename)
	assert.Equal(t, 2, calls)
}

func TestWaitForCompletionFiltersForeignPrompts(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, nil)
		require.NoError(t, err)
		defer conn.Close(websocket.StatusNormalClosure, "done")

		frames := []string{
			`{"type":"execution_start","data":{"prompt_id":"mine"}}`,
			`{"type":"executing","data":{"prompt_id":"other","node":null}}`,
			`{"type":"progress","data":{"value":5,"max":10}}`,
			`{"type":"executing","data":{"prompt_id":"mine","node":"7"}}`,
			`{"type":"executing","data":{"prompt_id":"mine","node":null}}`,
		}
		for _, f := range frames {
			if err := conn.Write(r.Context(), websocket.MessageText, []byte(f)); err != nil {
				return
			}
		}
		time.Sleep(100 * time.Millisecond)
	})
	c := fakeBackend(t, mux)

	err := c.WaitForCompletion(context.Background(), "mine", 5*time.Second)
	require.NoError(t, err)
}

func TestWaitForCompletionExecutionError(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, nil)
		require.NoError(t, err)
		defer conn.Close(websocket.StatusNormalClosure, "done")
		msg := []byte(`{"type":"execution_error","data":{"prompt_id":"p-1","message":"CUDA out of memory"}}`)
		_ = conn.Write(r.Context(), websocket.MessageText, msg)
		time.Sleep(100 * time.Millisecond)
	})
	c := fakeBackend(t, mux)

	err := c.WaitForCompletion(context.Background(), "p-1", 5*time.Second)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "CUDA out of memory")
}

func TestWaitForCompletionTimeout(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, nil)
		require.NoError(t, err)
		defer conn.Close(websocket.StatusNormalClosure, "done")
		<-r.Context().Done()
	})
	c := fakeBackend(t, mux)

	err := c.WaitForCompletion(context.Background(), "p-1", 200*time.Millisecond)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "processing exceeded")
}
