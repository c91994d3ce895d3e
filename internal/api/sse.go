// SPDX-License-Identifier: MIT

package api

import (
	"encoding/json"
	"net/http"

	"github.com/Amore-GG/BE/internal/log"
	"github.com/Amore-GG/BE/internal/scenario"
)

// streamEvents forwards engine events to the client as server-sent
// events, one `data:` line per event, flushed immediately. Intermediary
// buffering is disabled so scenes appear as they are produced.
func streamEvents(w http.ResponseWriter, r *http.Request, events <-chan scenario.Event) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	logger := log.WithComponent("api.scenario")
	for {
		select {
		case ev, open := <-events:
			if !open {
				return
			}
			data, err := json.Marshal(ev)
			if err != nil {
				logger.Error().Err(err).Msg("event marshal failed")
				continue
			}
			if _, err := w.Write(append(append([]byte("data: "), data...), '\n', '\n')); err != nil {
				// client went away; the producer stops via request context
				return
			}
			flusher.Flush()
		case <-r.Context().Done():
			return
		}
	}
}
