package handlers

import (
	"net/http"

	"clanchat/internal/models"
	"clanchat/internal/services"

	"github.com/gorilla/mux"
)

type ClanHandlers struct {
	clanService *services.ClanService
}

func NewClanHandlers(clanService *services.ClanService) *ClanHandlers {
	return &ClanHandlers{clanService: clanService}
}

func (h *ClanHandlers) ListClans(w http.ResponseWriter, r *http.Request) {
	clans, err := h.clanService.ListClans(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, clans)
}

func (h *ClanHandlers) CreateClan(w http.ResponseWriter, r *http.Request) {
	user := UserFromContext(r.Context())

	var req models.CreateClanRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	clan, err := h.clanService.CreateClan(r.Context(), &req, user.ID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, clan)
}

func (h *ClanHandlers) GetMembers(w http.ResponseWriter, r *http.Request) {
	user := UserFromContext(r.Context())

	members, err := h.clanService.GetRoster(r.Context(), mux.Vars(r)["id"], user.ID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if members == nil {
		members = []models.Member{}
	}
	writeJSON(w, http.StatusOK, members)
}

func (h *ClanHandlers) RequestToJoin(w http.ResponseWriter, r *http.Request) {
	user := UserFromContext(r.Context())

	req, err := h.clanService.RequestToJoin(r.Context(), mux.Vars(r)["id"], user)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, req)
}

func (h *ClanHandlers) AcceptRequest(w http.ResponseWriter, r *http.Request) {
	h.decide(w, r, true)
}

func (h *ClanHandlers) RejectRequest(w http.ResponseWriter, r *http.Request) {
	h.decide(w, r, false)
}

func (h *ClanHandlers) decide(w http.ResponseWriter, r *http.Request, accept bool) {
	user := UserFromContext(r.Context())
	vars := mux.Vars(r)

	var err error
	status := models.RequestAccepted
	if accept {
		err = h.clanService.AcceptRequest(r.Context(), vars["id"], user.ID, vars["userId"])
	} else {
		status = models.RequestRejected
		err = h.clanService.RejectRequest(r.Context(), vars["id"], user.ID, vars["userId"])
	}
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, models.JoinRequest{ClanID: vars["id"], UserID: vars["userId"], Status: status})
}
