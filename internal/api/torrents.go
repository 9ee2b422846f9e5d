package api

import (
	"net/http"

	"orctorrent/internal/model"
	"orctorrent/internal/service"

	"github.com/go-chi/chi/v5"
)

type TorrentHandler struct {
	service *service.TorrentService
}

func NewTorrentHandler(s *service.TorrentService) *TorrentHandler {
	return &TorrentHandler{service: s}
}

func (h *TorrentHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/", h.List)
	r.Post("/", h.Add)
	r.Route("/{id}", func(r chi.Router) {
		r.Get("/", h.Get)
		r.Delete("/", h.Remove)
		r.Get("/status", h.Status)
		r.Get("/content", h.Content)
		r.Get("/peers", h.Peers)
		r.Get("/trackers", h.Trackers)
		r.Get("/row-snapshot", h.RowSnapshot)
		r.Patch("/file-priority", h.FilePriority)
		r.Patch("/profile", h.Profile)
		r.Post("/start", h.Start)
		r.Post("/stop", h.Stop)
		r.Post("/remove", h.Remove)
		r.Post("/recheck", h.Recheck)
		r.Post("/announce", h.Announce)
	})
	return r
}

func (h *TorrentHandler) List(w http.ResponseWriter, r *http.Request) {
	sendJSON(w, h.service.List())
}

func (h *TorrentHandler) Add(w http.ResponseWriter, r *http.Request) {
	var req model.AddTorrentRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	id, err := h.service.Add(r.Context(), req)
	if err != nil {
		sendAppError(w, r, err)
		return
	}
	sendJSONStatus(w, http.StatusCreated, model.AddTorrentResponse{ID: id})
}

func (h *TorrentHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := torrentID(w, r)
	if !ok {
		return
	}
	tor, err := h.service.Get(id)
	if err != nil {
		sendAppError(w, r, err)
		return
	}
	sendJSON(w, tor)
}

func (h *TorrentHandler) Status(w http.ResponseWriter, r *http.Request) {
	id, ok := torrentID(w, r)
	if !ok {
		return
	}
	st, err := h.service.Status(id)
	if err != nil {
		sendAppError(w, r, err)
		return
	}
	sendJSON(w, st)
}

func (h *TorrentHandler) Content(w http.ResponseWriter, r *http.Request) {
	id, ok := torrentID(w, r)
	if !ok {
		return
	}
	c, err := h.service.Content(id)
	if err != nil {
		sendAppError(w, r, err)
		return
	}
	sendJSON(w, c)
}

func (h *TorrentHandler) Peers(w http.ResponseWriter, r *http.Request) {
	id, ok := torrentID(w, r)
	if !ok {
		return
	}
	peers, err := h.service.Peers(r.Context(), id)
	if err != nil {
		sendAppError(w, r, err)
		return
	}
	sendJSON(w, peers)
}

func (h *TorrentHandler) Trackers(w http.ResponseWriter, r *http.Request) {
	id, ok := torrentID(w, r)
	if !ok {
		return
	}
	trackers, err := h.service.Trackers(id)
	if err != nil {
		sendAppError(w, r, err)
		return
	}
	sendJSON(w, trackers)
}

func (h *TorrentHandler) RowSnapshot(w http.ResponseWriter, r *http.Request) {
	id, ok := torrentID(w, r)
	if !ok {
		return
	}
	snap, err := h.service.Snapshot(id)
	if err != nil {
		sendAppError(w, r, err)
		return
	}
	sendJSON(w, snap)
}

func (h *TorrentHandler) FilePriority(w http.ResponseWriter, r *http.Request) {
	id, ok := torrentID(w, r)
	if !ok {
		return
	}
	var req model.PatchFilePriorityRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}
	content, err := h.service.SetFilePriority(r.Context(), id, req)
	if err != nil {
		sendAppError(w, r, err)
		return
	}
	sendJSON(w, content)
}

func (h *TorrentHandler) Profile(w http.ResponseWriter, r *http.Request) {
	id, ok := torrentID(w, r)
	if !ok {
		return
	}
	var req model.TorrentProfile
	if !decodeAndValidate(w, r, &req) {
		return
	}
	tor, err := h.service.SetProfile(id, req)
	if err != nil {
		sendAppError(w, r, err)
		return
	}
	sendJSON(w, tor)
}

// lifecycle adapts a service action to a handler answering {"ok": true}.
func (h *TorrentHandler) lifecycle(action func(r *http.Request, id string) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := torrentID(w, r)
		if !ok {
			return
		}
		if err := action(r, id); err != nil {
			sendAppError(w, r, err)
			return
		}
		sendJSON(w, OKResponse{OK: true})
	}
}

func (h *TorrentHandler) Start(w http.ResponseWriter, r *http.Request) {
	h.lifecycle(func(r *http.Request, id string) error { return h.service.Start(r.Context(), id) })(w, r)
}

func (h *TorrentHandler) Stop(w http.ResponseWriter, r *http.Request) {
	h.lifecycle(func(r *http.Request, id string) error { return h.service.Stop(r.Context(), id) })(w, r)
}

func (h *TorrentHandler) Remove(w http.ResponseWriter, r *http.Request) {
	h.lifecycle(func(r *http.Request, id string) error { return h.service.Remove(r.Context(), id) })(w, r)
}

func (h *TorrentHandler) Recheck(w http.ResponseWriter, r *http.Request) {
	h.lifecycle(func(r *http.Request, id string) error { return h.service.Recheck(r.Context(), id) })(w, r)
}

func (h *TorrentHandler) Announce(w http.ResponseWriter, r *http.Request) {
	h.lifecycle(func(r *http.Request, id string) error { return h.service.Announce(r.Context(), id) })(w, r)
}
