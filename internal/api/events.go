package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"orctorrent/internal/event"

	"github.com/go-chi/chi/v5"
)

const sseKeepAlive = 15 * time.Second

// EventHandler streams bus events as Server-Sent Events.
type EventHandler struct {
	bus *event.Bus
}

func NewEventHandler(bus *event.Bus) *EventHandler {
	return &EventHandler{bus: bus}
}

func (h *EventHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/", h.Subscribe)
	return r
}

// Subscribe streams events until the client goes away. ?types= takes a
// comma-separated list of event types to receive; all types are sent when
// it is absent.
func (h *EventHandler) Subscribe(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set(HeaderContentType, "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	events := h.bus.Subscribe(typeFilter(r.URL.Query().Get(ParamTypes))...)
	defer h.bus.Unsubscribe(events)

	fmt.Fprintf(w, "data: {\"type\": \"connected\"}\n\n")
	flusher.Flush()

	ticker := time.NewTicker(sseKeepAlive)
	defer ticker.Stop()

	for {
		select {
		case ev, ok := <-events:
			if !ok {
				return
			}
			data, err := json.Marshal(ev)
			if err != nil {
				continue
			}
			fmt.Fprintf(w, "event: %s\ndata: %s\n\n", ev.Type, data)
			flusher.Flush()

		case <-ticker.C:
			fmt.Fprintf(w, ": keepalive\n\n")
			flusher.Flush()

		case <-r.Context().Done():
			return
		}
	}
}

// typeFilter parses a comma-separated ?types= value. Nil means all types.
func typeFilter(raw string) []event.EventType {
	var out []event.EventType
	for _, t := range strings.Split(raw, ",") {
		if t = strings.TrimSpace(t); t != "" {
			out = append(out, event.EventType(t))
		}
	}
	return out
}
