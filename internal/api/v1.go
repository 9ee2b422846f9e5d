package api

import (
	"github.com/go-chi/chi/v5"
)

type Handlers struct {
	Torrents *TorrentHandler
	Policy   *PolicyHandler
	System   *SystemHandler
	Events   *EventHandler
	WS       *WSHandler
}

// V1 assembles the authenticated /api/v1 tree.
func (rt *Router) V1(h Handlers) chi.Router {
	v1 := chi.NewRouter()
	v1.Use(rt.Auth)
	v1.Mount("/torrents", h.Torrents.Routes())
	v1.Mount("/policy", h.Policy.Routes())
	v1.Mount("/net", h.Policy.NetRoutes())
	v1.Mount("/system", h.System.Routes())
	v1.Mount("/events", h.Events.Routes())
	v1.Handle("/ws", h.WS)
	return v1
}
