package handlers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/cfarena/tournament-system/services"
	"github.com/go-chi/chi/v5"
)

type TournamentHandler struct {
	service  services.TournamentService
	monitors *services.MonitorService
}

func NewTournamentHandler(service services.TournamentService, monitors *services.MonitorService) *TournamentHandler {
	return &TournamentHandler{service: service, monitors: monitors}
}

func (h *TournamentHandler) Create(w http.ResponseWriter, r *http.Request) {
	tournament, err := h.service.Create(r.Context())
	if err != nil {
		mapServiceErrorToHTTP(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, jsonResponse{
		"code":       tournament.Code,
		"tournament": tournament,
	})
}

type joinRequest struct {
	Code       string `json:"code"`
	PlayerName string `json:"playerName"`
	CFHandle   string `json:"cfHandle"`
}

func (h *TournamentHandler) Join(w http.ResponseWriter, r *http.Request) {
	var req joinRequest
	if err := readJSON(w, r, &req); err != nil {
		badRequestResponse(w, err)
		return
	}

	tournament, err := h.service.Join(r.Context(), req.Code, req.PlayerName, req.CFHandle)
	if err != nil {
		mapServiceErrorToHTTP(w, err)
		return
	}
	writeJSON(w, http.StatusOK, jsonResponse{"tournament": tournament})
}

func (h *TournamentHandler) Get(w http.ResponseWriter, r *http.Request) {
	code := chi.URLParam(r, "code")

	tournament, err := h.service.Get(r.Context(), code)
	if err != nil {
		mapServiceErrorToHTTP(w, err)
		return
	}
	writeJSON(w, http.StatusOK, jsonResponse{"tournament": tournament})
}

func (h *TournamentHandler) StartMatch(w http.ResponseWriter, r *http.Request) {
	code := chi.URLParam(r, "code")
	matchID, err := strconv.Atoi(chi.URLParam(r, "matchID"))
	if err != nil {
		errorResponse(w, http.StatusBadRequest, "invalid match id")
		return
	}

	tournament, err := h.service.StartMatch(r.Context(), code, matchID)
	if err != nil {
		mapServiceErrorToHTTP(w, err)
		return
	}
	writeJSON(w, http.StatusOK, jsonResponse{"tournament": tournament})
}

type checkSubmissionsRequest struct {
	Code           string `json:"code"`
	MatchID        int    `json:"matchId"`
	MatchStartTime int64  `json:"matchStartTime"`
}

// CheckSubmissions is the pull-based alternative to the push monitor: the
// bracket UI polls this endpoint instead of holding a live monitor.
func (h *TournamentHandler) CheckSubmissions(w http.ResponseWriter, r *http.Request) {
	var req checkSubmissionsRequest
	if err := readJSON(w, r, &req); err != nil {
		badRequestResponse(w, err)
		return
	}

	results, match, err := h.monitors.CheckSubmissions(
		r.Context(), req.Code, req.MatchID, time.UnixMilli(req.MatchStartTime))
	if err != nil {
		mapServiceErrorToHTTP(w, err)
		return
	}
	writeJSON(w, http.StatusOK, jsonResponse{
		"results": results,
		"match":   match,
	})
}
