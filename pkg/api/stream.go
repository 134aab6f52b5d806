package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// handleStream relays the router feed as Server-Sent Events until the client
// disconnects.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		WriteMethodNotAllowed(w)
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		WriteInternal(w, fmt.Errorf("streaming unsupported by %T", w))
		return
	}

	ctx := r.Context()
	feed := s.router.Subscribe(ctx)
	defer feed.Close()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	fmt.Fprintf(w, "retry: 3000\n: feed %s\n\n", feed.ID())
	flusher.Flush()

	s.logger.InfoContext(ctx, "stream opened", "feed", feed.ID())
	defer func() {
		s.logger.InfoContext(ctx, "stream closed", "feed", feed.ID(), "dropped", feed.Dropped())
	}()

	heartbeat := time.NewTicker(s.heartbeat)
	defer heartbeat.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-heartbeat.C:
			if _, err := fmt.Fprint(w, ": keep-alive\n\n"); err != nil {
				return
			}
			flusher.Flush()
		case e, ok := <-feed.Events():
			if !ok {
				return
			}
			data, err := json.Marshal(e)
			if err != nil {
				s.logger.WarnContext(ctx, "unencodable event skipped", "trace_id", e.TraceID, "error", err)
				continue
			}
			if _, err := fmt.Fprintf(w, "id: %s\nevent: %s\ndata: %s\n\n", e.TraceID, e.EventType, data); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}
