package brackets

import (
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/cfarena/tournament-system/models"
	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 512
)

// Message types on the push channel.
const (
	MessageJoinTournament   = "join-tournament"
	MessageTournamentUpdate = "tournament-update"
	MessageMatchWinner      = "match-winner"
)

// PushMessage is the server-to-client envelope.
type PushMessage struct {
	Type       string             `json:"type"`
	Tournament *models.Tournament `json:"tournament,omitempty"`
	MatchID    int                `json:"matchId,omitempty"`
	Winner     *models.Player     `json:"winner,omitempty"`
}

// joinMessage is the only client-to-server message the gateway understands.
type joinMessage struct {
	Type         string `json:"type"`
	TournamentID string `json:"tournamentId"`
	PlayerID     int    `json:"playerId"`
}

// Client is one live websocket connection. Room and PlayerID are set when the
// join message arrives, before registration with the hub.
type Client struct {
	Hub      *Hub
	Conn     *websocket.Conn
	Send     chan []byte
	Room     string
	PlayerID int
	IsClosed bool
	Mu       sync.Mutex
}

func NewClient(hub *Hub, conn *websocket.Conn) *Client {
	return &Client{
		Hub:  hub,
		Conn: conn,
		Send: make(chan []byte, 256),
	}
}

// JoinFunc is invoked when a connection announces which tournament and
// participant it belongs to.
type JoinFunc func(c *Client, tournamentCode string, playerID int)

// Hub is the connection table: tournament code -> participant id -> client.
// A participant reconnecting under the same id replaces the previous handle.
type Hub struct {
	Register   chan *Client
	Unregister chan *Client
	rooms      map[string]map[int]*Client
	mu         sync.RWMutex
	logger     *slog.Logger
}

func NewHub(logger *slog.Logger) *Hub {
	return &Hub{
		Register:   make(chan *Client),
		Unregister: make(chan *Client),
		rooms:      make(map[string]map[int]*Client),
		logger:     logger,
	}
}

func (h *Hub) Run() {
	for {
		select {
		case client := <-h.Register:
			h.mu.Lock()
			room, ok := h.rooms[client.Room]
			if !ok {
				room = make(map[int]*Client)
				h.rooms[client.Room] = room
			}
			if prev, ok := room[client.PlayerID]; ok && prev != client {
				prev.closeSend()
			}
			room[client.PlayerID] = client
			h.logger.Info("client registered",
				slog.String("tournament", client.Room),
				slog.Int("player", client.PlayerID),
				slog.Int("room_size", len(room)))
			h.mu.Unlock()

		case client := <-h.Unregister:
			h.mu.Lock()
			if room, ok := h.rooms[client.Room]; ok {
				if current, ok := room[client.PlayerID]; ok && current == client {
					client.closeSend()
					delete(room, client.PlayerID)
					if len(room) == 0 {
						delete(h.rooms, client.Room)
					}
					h.logger.Info("client unregistered",
						slog.String("tournament", client.Room),
						slog.Int("player", client.PlayerID))
				}
			}
			h.mu.Unlock()
		}
	}
}

// BroadcastToRoom pushes a message to every connection subscribed to the
// tournament. Delivery is best-effort: a client whose send buffer is full is
// skipped rather than blocked on.
func (h *Hub) BroadcastToRoom(roomID string, message interface{}) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	room, ok := h.rooms[roomID]
	if !ok {
		return
	}

	messageBytes, err := json.Marshal(message)
	if err != nil {
		h.logger.Error("marshal broadcast message", slog.String("tournament", roomID), slog.Any("error", err))
		return
	}

	for _, client := range room {
		client.trySend(messageBytes)
	}
}

// SendTo pushes a message to a single client, used for the snapshot a
// connection receives right after joining.
func (h *Hub) SendTo(client *Client, message interface{}) {
	messageBytes, err := json.Marshal(message)
	if err != nil {
		h.logger.Error("marshal direct message", slog.Any("error", err))
		return
	}
	client.trySend(messageBytes)
}

func (c *Client) trySend(message []byte) {
	c.Mu.Lock()
	defer c.Mu.Unlock()
	if c.IsClosed {
		return
	}
	select {
	case c.Send <- message:
	default:
	}
}

func (c *Client) closeSend() {
	c.Mu.Lock()
	defer c.Mu.Unlock()
	if !c.IsClosed {
		close(c.Send)
		c.IsClosed = true
	}
}

// ReadPump consumes inbound messages until the connection drops. The only
// message acted upon is join-tournament; everything else is ignored.
func (c *Client) ReadPump(onJoin JoinFunc) {
	defer func() {
		if c.Room != "" {
			c.Hub.Unregister <- c
		}
		c.Conn.Close()
	}()
	c.Conn.SetReadLimit(maxMessageSize)
	c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	c.Conn.SetPongHandler(func(string) error { c.Conn.SetReadDeadline(time.Now().Add(pongWait)); return nil })

	for {
		_, message, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.Hub.logger.Warn("websocket read", slog.Any("error", err))
			}
			break
		}

		var join joinMessage
		if err := json.Unmarshal(message, &join); err != nil || join.Type != MessageJoinTournament {
			continue
		}
		if c.Room != "" {
			// Re-joining on the same connection is not supported; reconnect instead.
			continue
		}
		c.Room = join.TournamentID
		c.PlayerID = join.PlayerID
		c.Hub.Register <- c
		if onJoin != nil {
			onJoin(c, join.TournamentID, join.PlayerID)
		}
	}
}

func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()
	for {
		select {
		case message, ok := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := c.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

			// One frame per message: readers decode a single JSON value per frame.
			n := len(c.Send)
			for i := 0; i < n; i++ {
				if err := c.Conn.WriteMessage(websocket.TextMessage, <-c.Send); err != nil {
					return
				}
			}
		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
