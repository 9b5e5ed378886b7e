package client

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/cfarena/tournament-system/brackets"
	"github.com/cfarena/tournament-system/handlers"
	"github.com/cfarena/tournament-system/models"
	"github.com/cfarena/tournament-system/oracle"
	"github.com/cfarena/tournament-system/repositories"
	"github.com/cfarena/tournament-system/routes"
	"github.com/cfarena/tournament-system/services"
	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// judgeStub accepts every handle and reports no submissions.
func judgeStub() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/user.info":
			handle := r.URL.Query().Get("handles")
			json.NewEncoder(w).Encode(map[string]interface{}{
				"status": "OK",
				"result": []map[string]interface{}{
					{"handle": handle, "rating": 1400, "maxRating": 1500, "rank": "specialist"},
				},
			})
		case "/api/user.status":
			json.NewEncoder(w).Encode(map[string]interface{}{
				"status": "OK",
				"result": []map[string]interface{}{},
			})
		default:
			http.NotFound(w, r)
		}
	})
}

func newGateway(t *testing.T) *httptest.Server {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	judgeSrv := httptest.NewServer(judgeStub())
	t.Cleanup(judgeSrv.Close)

	repo := repositories.NewInMemoryTournamentRepository()
	engine := brackets.NewEngine()
	oracleClient := oracle.NewClient(judgeSrv.URL)
	hub := brackets.NewHub(logger)
	go hub.Run()

	monitors := services.NewMonitorService(repo, engine, oracleClient, hub, logger, time.Second)
	service := services.NewTournamentService(repo, engine, oracleClient, hub, monitors, logger)

	router := chi.NewRouter()
	routes.SetupRoutes(router, []string{"*"},
		handlers.NewTournamentHandler(service, monitors),
		handlers.NewWebSocketHandler(hub, service, logger))

	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)
	return srv
}

func newShim(srv *httptest.Server) *Client {
	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	return New(srv.URL, wsURL)
}

func TestShimRequestResponse(t *testing.T) {
	srv := newGateway(t)
	shim := newShim(srv)
	ctx := context.Background()

	code, tournament, err := shim.CreateTournament(ctx)
	require.NoError(t, err)
	assert.Len(t, code, 6)
	assert.Equal(t, models.TournamentStatusWaiting, tournament.Status)

	joined, err := shim.JoinTournament(ctx, code, "Alice", "alice")
	require.NoError(t, err)
	require.Len(t, joined.Players, 1)
	assert.Equal(t, 1, joined.Players[0].ID)

	fetched, err := shim.GetTournament(ctx, code)
	require.NoError(t, err)
	assert.Equal(t, code, fetched.Code)

	_, err = shim.GetTournament(ctx, "NOSUCH")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
}

func TestShimReceivesPushes(t *testing.T) {
	srv := newGateway(t)
	shim := newShim(srv)
	ctx := context.Background()

	code, _, err := shim.CreateTournament(ctx)
	require.NoError(t, err)
	_, err = shim.JoinTournament(ctx, code, "Alice", "alice")
	require.NoError(t, err)

	updates := make(chan *models.Tournament, 16)
	shim.OnTournamentUpdate(func(tournament *models.Tournament) {
		updates <- tournament
	})

	require.NoError(t, shim.Connect(code, 1))
	defer shim.Disconnect()

	// Snapshot arrives on join.
	select {
	case tournament := <-updates:
		assert.Len(t, tournament.Players, 1)
	case <-time.After(3 * time.Second):
		t.Fatal("missing join snapshot")
	}

	// Another player joining is pushed to the subscribed shim.
	_, err = shim.JoinTournament(ctx, code, "Bob", "bob")
	require.NoError(t, err)
	select {
	case tournament := <-updates:
		assert.Len(t, tournament.Players, 2)
	case <-time.After(3 * time.Second):
		t.Fatal("missing update push")
	}
}

func TestShimStartMatchAndCheckSubmissions(t *testing.T) {
	srv := newGateway(t)
	shim := newShim(srv)
	ctx := context.Background()

	code, _, err := shim.CreateTournament(ctx)
	require.NoError(t, err)
	for i, name := range []string{"Alice", "Bob", "Carol", "Dave"} {
		_, err := shim.JoinTournament(ctx, code, name, fmt.Sprintf("handle%d", i+1))
		require.NoError(t, err)
	}

	tournament, err := shim.StartMatch(ctx, code, brackets.MatchSemifinal1)
	require.NoError(t, err)
	assert.Equal(t, models.TournamentStatusInProgress, tournament.Status)

	results, match, err := shim.CheckSubmissions(ctx, code, brackets.MatchSemifinal1, time.Now().Add(-time.Minute))
	require.NoError(t, err)
	assert.Empty(t, results, "no submissions recorded by the judge stub")
	assert.Nil(t, match.Winner)
}
