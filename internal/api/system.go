package api

import (
	"context"
	"net/http"

	"orctorrent/internal/core"
	"orctorrent/internal/engine"
	"orctorrent/internal/logger"
	"orctorrent/internal/model"

	"github.com/go-chi/chi/v5"
)

type SystemHandler struct {
	state    *core.State
	engine   engine.TransferEngine
	version  string
	shutdown func()
}

func NewSystemHandler(state *core.State, eng engine.TransferEngine, version string, shutdown func()) *SystemHandler {
	return &SystemHandler{state: state, engine: eng, version: version, shutdown: shutdown}
}

func (h *SystemHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/health", h.Health)
	r.Get("/version", h.Version)
	r.Get("/engine", h.EngineStatus)
	r.Post("/admin/shutdown", h.Shutdown)
	return r
}

func (h *SystemHandler) Health(w http.ResponseWriter, r *http.Request) {
	sendJSON(w, model.Health{OK: true, UptimeSec: uint64(h.state.Uptime().Seconds())})
}

type VersionResponse struct {
	model.Version
	Engine string `json:"engine,omitempty"`
}

func (h *SystemHandler) Version(w http.ResponseWriter, r *http.Request) {
	ev, _ := h.engine.Version(r.Context())
	sendJSON(w, VersionResponse{Version: model.Version{Version: h.version}, Engine: ev})
}

// EngineStatus reports the engine guard. Engines without one are always
// reported closed.
func (h *SystemHandler) EngineStatus(w http.ResponseWriter, r *http.Request) {
	if sr, ok := h.engine.(engine.StatusReporter); ok {
		sendJSON(w, sr.Status())
		return
	}
	sendJSON(w, engine.GuardStatus{State: engine.GuardClosed})
}

// Shutdown answers first and stops the daemon afterwards.
func (h *SystemHandler) Shutdown(w http.ResponseWriter, r *http.Request) {
	logger.WithContext(r.Context()).Info("admin shutdown accepted")
	sendJSON(w, OKResponse{OK: true})
	if h.shutdown != nil {
		context.AfterFunc(r.Context(), h.shutdown)
	}
}
