// SPDX-License-Identifier: MIT

package api

import (
	"bytes"
	"context"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/Amore-GG/BE/internal/comfy"
	"github.com/Amore-GG/BE/internal/log"
)

// inference is the shared shape of the gateways that front a node-graph
// backend: a graph template, a backend client and a per-run deadline.
type inference struct {
	base
	backend   *comfy.Client
	templates *comfy.TemplateStore
	timeout   time.Duration
}

// stagePath pushes an existing local file to the backend.
func (g inference) stagePath(ctx context.Context, path string) (string, error) {
	return g.backend.UploadFile(ctx, path)
}

// execute runs a rewritten graph to completion and returns the bytes of
// the first produced output.
func (g inference) execute(ctx context.Context, graph comfy.Graph) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	start := time.Now()
	outputs, err := g.backend.Execute(ctx, graph, g.timeout)
	recordInference(g.name, err)
	if err != nil {
		return nil, err
	}

	data, err := g.backend.View(ctx, outputs[0])
	if err != nil {
		return nil, err
	}
	lg := log.WithComponent("api." + g.name)
	lg.Info().
		Int("outputs", len(outputs)).
		Int("bytes", len(data)).
		Dur("duration", time.Since(start)).
		Msg("graph executed")
	return data, nil
}

// persist stores result bytes either in a session workspace or the
// local output directory, returning the artifact name.
func (g inference) persist(sessionID, name string, data []byte) (string, error) {
	if sessionID != "" {
		if _, err := g.store.Put(sessionID, name, bytes.NewReader(data)); err != nil {
			return "", err
		}
		return name, nil
	}
	return g.saveOutput(name, data)
}

// runError reports an execution failure. Deadline expiry and backend
// rejections are upstream failures, not client errors.
func runError(w http.ResponseWriter, err error) {
	writeError(w, http.StatusInternalServerError, "%v", err)
}

// healthHandler reports backend reachability and template presence.
func (g inference) healthHandler(workflows ...string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		status := "healthy"
		backendOK := true
		if err := g.backend.Ping(ctx); err != nil {
			status = "degraded"
			backendOK = false
		}

		missing := make([]string, 0)
		for _, wf := range workflows {
			if _, err := os.Stat(wf); err != nil {
				missing = append(missing, filepath.Base(wf))
			}
		}
		if len(missing) > 0 {
			status = "degraded"
		}

		writeJSON(w, http.StatusOK, map[string]any{
			"status":            status,
			"backend_reachable": backendOK,
			"backend_url":       g.backend.BaseURL,
			"missing_workflows": missing,
		})
	}
}
