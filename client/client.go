// Package client is the thin synchronization shim the presentation layer
// uses to talk to the tournament coordinator: request/response calls over
// HTTP plus a reconnecting websocket subscription for pushed state.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/cfarena/tournament-system/brackets"
	"github.com/cfarena/tournament-system/models"
	"github.com/gorilla/websocket"
)

const reconnectDelay = 3 * time.Second

// TournamentUpdateFunc receives every full-state snapshot push.
type TournamentUpdateFunc func(t *models.Tournament)

// MatchWinnerFunc receives the one-shot match decided event.
type MatchWinnerFunc func(matchID int, winner *models.Player, t *models.Tournament)

// Client is a reconnecting gateway client. It is not authenticated; the
// join message only declares which tournament room to subscribe to. A
// dropped connection is re-dialed every few seconds and re-joined, which
// refetches the snapshot — that is the delivery recovery mechanism.
type Client struct {
	apiBase string
	wsURL   string
	http    *http.Client

	onTournamentUpdate TournamentUpdateFunc
	onMatchWinner      MatchWinnerFunc

	mu       sync.Mutex
	conn     *websocket.Conn
	code     string
	playerID int
	closed   bool
}

func New(apiBase, wsURL string) *Client {
	return &Client{
		apiBase: strings.TrimRight(apiBase, "/"),
		wsURL:   wsURL,
		http:    &http.Client{Timeout: 15 * time.Second},
	}
}

func (c *Client) OnTournamentUpdate(fn TournamentUpdateFunc) { c.onTournamentUpdate = fn }
func (c *Client) OnMatchWinner(fn MatchWinnerFunc)           { c.onMatchWinner = fn }

// Connect subscribes to a tournament's push channel as the given participant
// and keeps the subscription alive across disconnects until Disconnect.
func (c *Client) Connect(code string, playerID int) error {
	c.mu.Lock()
	c.code = code
	c.playerID = playerID
	c.closed = false
	c.mu.Unlock()

	if err := c.dial(); err != nil {
		return err
	}
	go c.readLoop()
	return nil
}

// Disconnect closes the subscription and stops reconnecting.
func (c *Client) Disconnect() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}
}

func (c *Client) dial() error {
	conn, _, err := websocket.DefaultDialer.Dial(c.wsURL, nil)
	if err != nil {
		return fmt.Errorf("dial gateway: %w", err)
	}

	c.mu.Lock()
	join := map[string]interface{}{
		"type":         brackets.MessageJoinTournament,
		"tournamentId": c.code,
		"playerId":     c.playerID,
	}
	if err := conn.WriteJSON(join); err != nil {
		c.mu.Unlock()
		conn.Close()
		return fmt.Errorf("send join: %w", err)
	}
	c.conn = conn
	c.mu.Unlock()
	return nil
}

func (c *Client) readLoop() {
	for {
		c.mu.Lock()
		conn, closed := c.conn, c.closed
		c.mu.Unlock()
		if closed || conn == nil {
			return
		}

		var msg brackets.PushMessage
		if err := conn.ReadJSON(&msg); err != nil {
			c.mu.Lock()
			closed = c.closed
			c.mu.Unlock()
			if closed {
				return
			}
			// Reconnect and re-join; the fresh snapshot arrives on join.
			time.Sleep(reconnectDelay)
			if err := c.dial(); err != nil {
				continue
			}
			continue
		}

		switch msg.Type {
		case brackets.MessageTournamentUpdate:
			if c.onTournamentUpdate != nil {
				c.onTournamentUpdate(msg.Tournament)
			}
		case brackets.MessageMatchWinner:
			if c.onMatchWinner != nil {
				c.onMatchWinner(msg.MatchID, msg.Winner, msg.Tournament)
			}
		}
	}
}

// CreateTournament provisions a fresh tournament and returns its join code.
func (c *Client) CreateTournament(ctx context.Context) (string, *models.Tournament, error) {
	var out struct {
		Code       string             `json:"code"`
		Tournament *models.Tournament `json:"tournament"`
	}
	if err := c.post(ctx, "/api/tournaments", nil, &out); err != nil {
		return "", nil, err
	}
	return out.Code, out.Tournament, nil
}

func (c *Client) JoinTournament(ctx context.Context, code, playerName, cfHandle string) (*models.Tournament, error) {
	body := map[string]string{
		"code":       code,
		"playerName": playerName,
		"cfHandle":   cfHandle,
	}
	var out struct {
		Tournament *models.Tournament `json:"tournament"`
	}
	if err := c.post(ctx, "/api/tournaments/join", body, &out); err != nil {
		return nil, err
	}
	return out.Tournament, nil
}

func (c *Client) GetTournament(ctx context.Context, code string) (*models.Tournament, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.apiBase+"/api/tournaments/"+code, nil)
	if err != nil {
		return nil, err
	}
	var out struct {
		Tournament *models.Tournament `json:"tournament"`
	}
	if err := c.do(req, &out); err != nil {
		return nil, err
	}
	return out.Tournament, nil
}

func (c *Client) StartMatch(ctx context.Context, code string, matchID int) (*models.Tournament, error) {
	path := fmt.Sprintf("/api/tournaments/%s/matches/%d/start", code, matchID)
	var out struct {
		Tournament *models.Tournament `json:"tournament"`
	}
	if err := c.post(ctx, path, nil, &out); err != nil {
		return nil, err
	}
	return out.Tournament, nil
}

// CheckSubmissions asks the coordinator to poll the judge once for the match
// and returns the per-player results keyed by player id.
func (c *Client) CheckSubmissions(ctx context.Context, code string, matchID int, matchStart time.Time) (map[int]*models.SubmissionResult, *models.Match, error) {
	body := map[string]interface{}{
		"code":           code,
		"matchId":        matchID,
		"matchStartTime": matchStart.UnixMilli(),
	}
	var out struct {
		Results map[int]*models.SubmissionResult `json:"results"`
		Match   *models.Match                    `json:"match"`
	}
	if err := c.post(ctx, "/api/tournaments/check-submissions", body, &out); err != nil {
		return nil, nil, err
	}
	return out.Results, out.Match, nil
}

func (c *Client) post(ctx context.Context, path string, body, out interface{}) error {
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.apiBase+path, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, out)
}

func (c *Client) do(req *http.Request, out interface{}) error {
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		var apiErr struct {
			Error string `json:"error"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&apiErr); err == nil && apiErr.Error != "" {
			return errors.New(apiErr.Error)
		}
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
