// SPDX-License-Identifier: MIT

// Package comfy speaks the node-graph executor protocol: input upload,
// graph queueing, progress over WebSocket, artifact retrieval.
package comfy

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"

	"github.com/Amore-GG/BE/internal/log"
)

const maxErrBody = 4 * 1024

// Client drives one node-graph backend. A client is safe for concurrent
// runs; each run opens its own short-lived WebSocket keyed by ClientID.
type Client struct {
	BaseURL  string
	ClientID string
	HTTP     *http.Client
}

// NewClient returns a client for the backend at baseURL with a fresh
// per-process client id.
func NewClient(baseURL string) *Client {
	return &Client{
		BaseURL:  strings.TrimRight(baseURL, "/"),
		ClientID: uuid.NewString(),
		HTTP:     &http.Client{Timeout: 5 * time.Minute},
	}
}

// OutputFile identifies one backend artifact in history output.
type OutputFile struct {
	Filename  string `json:"filename"`
	Subfolder string `json:"subfolder"`
	Type      string `json:"type"`
}

// UploadFile stages a local file on the backend and returns the name the
// backend stored it under. That name must be rebound into the graph.
func (c *Client) UploadFile(ctx context.Context, path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("open upload: %w", err)
	}
	defer f.Close()

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("image", filepath.Base(path))
	if err != nil {
		return "", fmt.Errorf("multipart: %w", err)
	}
	if _, err := io.Copy(part, f); err != nil {
		return "", fmt.Errorf("multipart copy: %w", err)
	}
	if err := mw.WriteField("overwrite", "true"); err != nil {
		return "", fmt.Errorf("multipart field: %w", err)
	}
	if err := mw.Close(); err != nil {
		return "", fmt.Errorf("multipart close: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/upload/image", &body)
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return "", fmt.Errorf("backend upload: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", backendError("upload", resp)
	}

	var out struct {
		Name string `json:"name"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("decode upload response: %w", err)
	}
	if out.Name == "" {
		return "", fmt.Errorf("backend upload returned no name")
	}
	return out.Name, nil
}

// QueuePrompt submits a graph for execution and returns the prompt id.
// A non-200 response is surfaced verbatim so the backend's node_errors
// reach the client.
func (c *Client) QueuePrompt(ctx context.Context, g Graph) (string, error) {
	payload, err := json.Marshal(map[string]any{
		"prompt":    g,
		"client_id": c.ClientID,
	})
	if err != nil {
		return "", fmt.Errorf("marshal graph: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/prompt", bytes.NewReader(payload))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return "", fmt.Errorf("backend queue: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", backendError("queue", resp)
	}

	var out struct {
		PromptID string `json:"prompt_id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("decode queue response: %w", err)
	}
	if out.PromptID == "" {
		return "", fmt.Errorf("backend returned no prompt_id")
	}
	return out.PromptID, nil
}

// wsFrame is the common envelope of backend progress frames.
type wsFrame struct {
	Type string `json:"type"`
	Data struct {
		PromptID string          `json:"prompt_id"`
		Node     json.RawMessage `json:"node"`
		Value    int             `json:"value"`
		Max      int             `json:"max"`
		Message  json.RawMessage `json:"message"`
	} `json:"data"`
}

// WaitForCompletion reads progress frames until the prompt finishes. The
// backend multiplexes many clients on one socket; frames are filtered by
// prompt id. Binary preview frames are discarded. timeout bounds the
// whole wait.
func (c *Client) WaitForCompletion(ctx context.Context, promptID string, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	wsURL, err := c.wsURL()
	if err != nil {
		return err
	}

	conn, _, err := websocket.Dial(ctx, wsURL, nil)
	if err != nil {
		return fmt.Errorf("backend websocket dial: %w", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "done")
	conn.SetReadLimit(-1)

	logger := log.WithComponent("comfy").With().Str(log.FieldPrompt, promptID).Logger()
	lastDecile := -1

	for {
		msgType, data, err := conn.Read(ctx)
		if err != nil {
			if ctx.Err() == context.DeadlineExceeded {
				return fmt.Errorf("processing exceeded %s", timeout)
			}
			return fmt.Errorf("backend websocket read: %w", err)
		}
		if msgType != websocket.MessageText {
			// binary preview frame
			continue
		}

		var frame wsFrame
		if err := json.Unmarshal(data, &frame); err != nil {
			continue
		}

		switch frame.Type {
		case "executing":
			if frame.Data.PromptID != promptID {
				continue
			}
			if string(frame.Data.Node) == "null" {
				logger.Debug().Msg("execution complete")
				return nil
			}
		case "progress":
			if frame.Data.Max > 0 {
				decile := frame.Data.Value * 10 / frame.Data.Max
				if decile > lastDecile {
					lastDecile = decile
					logger.Debug().
						Int("value", frame.Data.Value).
						Int("max", frame.Data.Max).
						Msg("execution progress")
				}
			}
		case "execution_error":
			if frame.Data.PromptID != "" && frame.Data.PromptID != promptID {
				continue
			}
			return fmt.Errorf("backend execution error: %s", truncate(string(data), maxErrBody))
		case "execution_start", "execution_cached", "status":
			// informational
		}
	}
}

func (c *Client) wsURL() (string, error) {
	u, err := url.Parse(c.BaseURL)
	if err != nil {
		return "", fmt.Errorf("parse backend url: %w", err)
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	u.Path = "/ws"
	u.RawQuery = "clientId=" + url.QueryEscape(c.ClientID)
	return u.String(), nil
}

// History fetches the outputs of a finished prompt, keyed by node id.
func (c *Client) History(ctx context.Context, promptID string) (map[string][]OutputFile, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+"/history/"+url.PathEscape(promptID), nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return nil, fmt.Errorf("backend history: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, backendError("history", resp)
	}

	var hist map[string]struct {
		Outputs map[string]struct {
			Images []OutputFile `json:"images"`
			Gifs   []OutputFile `json:"gifs"`
		} `json:"outputs"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&hist); err != nil {
		return nil, fmt.Errorf("decode history: %w", err)
	}

	entry, ok := hist[promptID]
	if !ok {
		return nil, nil
	}
	outputs := map[string][]OutputFile{}
	for node, out := range entry.Outputs {
		files := append([]OutputFile{}, out.Images...)
		files = append(files, out.Gifs...)
		if len(files) > 0 {
			outputs[node] = files
		}
	}
	return outputs, nil
}

// View downloads one artifact's bytes.
func (c *Client) View(ctx context.Context, f OutputFile) ([]byte, error) {
	q := url.Values{}
	q.Set("filename", f.Filename)
	q.Set("subfolder", f.Subfolder)
	q.Set("type", f.Type)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+"/view?"+q.Encode(), nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return nil, fmt.Errorf("backend view: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, backendError("view", resp)
	}
	return io.ReadAll(resp.Body)
}

// Execute runs the full queue → wait → history cycle and returns every
// produced output file. An empty history on first read is treated as
// transient and re-fetched once.
func (c *Client) Execute(ctx context.Context, g Graph, timeout time.Duration) ([]OutputFile, error) {
	promptID, err := c.QueuePrompt(ctx, g)
	if err != nil {
		return nil, err
	}
	if err := c.WaitForCompletion(ctx, promptID, timeout); err != nil {
		return nil, err
	}

	outputs, err := c.History(ctx, promptID)
	if err != nil {
		return nil, err
	}
	if len(outputs) == 0 {
		time.Sleep(500 * time.Millisecond)
		outputs, err = c.History(ctx, promptID)
		if err != nil {
			return nil, err
		}
	}
	if len(outputs) == 0 {
		return nil, fmt.Errorf("no outputs in history for prompt %s", promptID)
	}

	var files []OutputFile
	for _, perNode := range outputs {
		files = append(files, perNode...)
	}
	return files, nil
}

// Ping checks backend reachability for health reporting.
func (c *Client) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+"/system_stats", nil)
	if err != nil {
		return err
	}
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return fmt.Errorf("backend unreachable: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("backend status %d", resp.StatusCode)
	}
	return nil
}

// backendError surfaces the backend response body verbatim, truncated.
func backendError(phase string, resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrBody+1))
	return fmt.Errorf("backend %s rejected (status %d): %s", phase, resp.StatusCode,
		truncate(string(body), maxErrBody))
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "...(truncated)"
}
