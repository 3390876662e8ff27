package api

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/zombor/invoice-ledger/internal/ingest"
)

// eventBuffer is the number of queue events held for a slow client before dropping
const eventBuffer = 64

// handleEvents streams queue changes as server-sent events
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "Streaming unsupported")
		return
	}

	events := make(chan ingest.Event, eventBuffer)
	unsubscribe := s.opts.Queue.Subscribe(func(ev ingest.Event) {
		select {
		case events <- ev:
		default:
			slog.Warn("Dropping queue event for slow client", "type", ev.Type, "id", ev.Record.ID)
		}
	})
	defer unsubscribe()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			return
		case ev := <-events:
			data, err := json.Marshal(ev)
			if err != nil {
				slog.Error("Error encoding event", "error", err)
				continue
			}
			if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", ev.Type, data); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}
