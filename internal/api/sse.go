package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rendis/flowcanvas/internal/streaming"
)

// keepAlive is how often an idle event stream gets a comment line, so
// proxies do not time it out.
const keepAlive = 20 * time.Second

// eventStream writes Server-Sent Events frames and flushes each one.
type eventStream struct {
	w   http.ResponseWriter
	f   http.Flusher
	seq uint64
}

func (es *eventStream) comment(text string) {
	fmt.Fprintf(es.w, ": %s\n\n", text)
	es.f.Flush()
}

func (es *eventStream) send(ev streaming.Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	es.seq++
	fmt.Fprintf(es.w, "id: %d\nevent: %s\ndata: %s\n\n", es.seq, ev.Kind, data)
	es.f.Flush()
	return nil
}

// handleEvents streams hub events. ?types=a,b narrows by event type and
// ?elementId= by element.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	f, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}

	q := r.URL.Query()
	filter := streaming.EventFilter{ElementID: q.Get("elementId")}
	for _, k := range strings.Split(q.Get("types"), ",") {
		if k = strings.TrimSpace(k); k != "" {
			filter.Kinds = append(filter.Kinds, k)
		}
	}

	ctx := r.Context()
	events, unsubscribe, err := s.deps.Hub.Subscribe(ctx, filter)
	if err != nil {
		s.deps.Logger.ErrorContext(ctx, "event stream subscribe failed", "error", err)
		http.Error(w, "subscribe failed", http.StatusInternalServerError)
		return
	}
	defer unsubscribe()

	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	es := &eventStream{w: w, f: f}
	es.comment("connected")

	tick := time.NewTicker(keepAlive)
	defer tick.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-tick.C:
			es.comment("ping")
		case ev, open := <-events:
			if !open {
				return
			}
			if err := es.send(ev); err != nil {
				s.deps.Logger.WarnContext(ctx, "event not encodable", "type", ev.Kind, "error", err)
			}
		}
	}
}
