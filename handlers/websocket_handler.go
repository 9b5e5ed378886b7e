package handlers

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/cfarena/tournament-system/brackets"
	"github.com/cfarena/tournament-system/services"
	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// The UI runs on a separate origin; CORS-style origin filtering is
		// handled by deployment config, not here.
		return true
	},
}

type WebSocketHandler struct {
	hub     *brackets.Hub
	service services.TournamentService
	logger  *slog.Logger
}

func NewWebSocketHandler(hub *brackets.Hub, service services.TournamentService, logger *slog.Logger) *WebSocketHandler {
	return &WebSocketHandler{hub: hub, service: service, logger: logger}
}

// ServeWS upgrades the connection and starts the pumps. The client announces
// its tournament and participant id with a join-tournament message; on join
// it immediately receives the current tournament snapshot, or nothing if the
// code is unknown (the transport is not errored for a bad code).
func (h *WebSocketHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", slog.Any("error", err))
		return
	}

	client := brackets.NewClient(h.hub, conn)
	go client.WritePump()
	go client.ReadPump(h.handleJoin)
}

func (h *WebSocketHandler) handleJoin(c *brackets.Client, code string, playerID int) {
	tournament, err := h.service.Get(context.Background(), code)
	if err != nil {
		// Unknown tournament: stay connected, push nothing.
		return
	}
	h.hub.SendTo(c, brackets.PushMessage{
		Type:       brackets.MessageTournamentUpdate,
		Tournament: tournament,
	})
}
