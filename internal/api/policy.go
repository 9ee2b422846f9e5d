package api

import (
	"net/http"

	"orctorrent/internal/model"
	"orctorrent/internal/service"

	"github.com/go-chi/chi/v5"
)

type PolicyHandler struct {
	service *service.PolicyService
}

func NewPolicyHandler(s *service.PolicyService) *PolicyHandler {
	return &PolicyHandler{service: s}
}

// Routes serves the security policy.
func (h *PolicyHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/", h.GetPolicy)
	r.Patch("/", h.PatchPolicy)
	return r
}

// NetRoutes serves VPN status, posture and the kill switch.
func (h *PolicyHandler) NetRoutes() chi.Router {
	r := chi.NewRouter()
	r.Get("/posture", h.Posture)
	r.Get("/vpn-status", h.VPNStatus)
	r.Get("/kill-switch", h.GetKillSwitch)
	r.Patch("/kill-switch", h.PatchKillSwitch)
	r.Post("/kill-switch/test", h.TestKillSwitch)
	return r
}

func (h *PolicyHandler) GetPolicy(w http.ResponseWriter, r *http.Request) {
	sendJSON(w, h.service.Policy())
}

func (h *PolicyHandler) PatchPolicy(w http.ResponseWriter, r *http.Request) {
	var req model.DesiredPolicy
	if !decodeAndValidate(w, r, &req) {
		return
	}
	policy, err := h.service.PatchPolicy(r.Context(), req)
	if err != nil {
		sendAppError(w, r, err)
		return
	}
	sendJSON(w, policy)
}

func (h *PolicyHandler) Posture(w http.ResponseWriter, r *http.Request) {
	sendJSON(w, h.service.NetPosture())
}

func (h *PolicyHandler) VPNStatus(w http.ResponseWriter, r *http.Request) {
	sendJSON(w, h.service.VPNStatus())
}

func (h *PolicyHandler) GetKillSwitch(w http.ResponseWriter, r *http.Request) {
	sendJSON(w, h.service.KillSwitch())
}

func (h *PolicyHandler) PatchKillSwitch(w http.ResponseWriter, r *http.Request) {
	var req model.PatchKillSwitchRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}
	cfg, err := h.service.PatchKillSwitch(r.Context(), req)
	if err != nil {
		sendAppError(w, r, err)
		return
	}
	sendJSON(w, cfg)
}

func (h *PolicyHandler) TestKillSwitch(w http.ResponseWriter, r *http.Request) {
	sendJSON(w, h.service.TestKillSwitch())
}
