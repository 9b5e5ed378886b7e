package services

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/cfarena/tournament-system/brackets"
	"github.com/cfarena/tournament-system/models"
	"github.com/cfarena/tournament-system/oracle"
	"github.com/cfarena/tournament-system/repositories"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeOracle serves scripted judge responses.
type fakeOracle struct {
	mu    sync.Mutex
	users map[string]*oracle.UserInfo
	subs  map[string][]oracle.Submission
	err   error
}

func newFakeOracle() *fakeOracle {
	return &fakeOracle{
		users: make(map[string]*oracle.UserInfo),
		subs:  make(map[string][]oracle.Submission),
	}
}

func (f *fakeOracle) addUser(handle string, rating int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.users[handle] = &oracle.UserInfo{Handle: handle, Rating: rating, MaxRating: rating + 100, Rank: "specialist"}
}

func (f *fakeOracle) setSubmissions(handle string, subs []oracle.Submission) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.subs[handle] = subs
}

func (f *fakeOracle) setError(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.err = err
}

func (f *fakeOracle) VerifyHandle(ctx context.Context, handle string) (*oracle.UserInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	u, ok := f.users[handle]
	if !ok {
		return nil, fmt.Errorf("%w: %s", oracle.ErrHandleNotFound, handle)
	}
	return u, nil
}

func (f *fakeOracle) RecentSubmissions(ctx context.Context, handle string) ([]oracle.Submission, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	out := make([]oracle.Submission, len(f.subs[handle]))
	copy(out, f.subs[handle])
	return out, nil
}

// recordingHub captures every broadcast instead of pushing to sockets.
type recordingHub struct {
	mu       sync.Mutex
	messages []brackets.PushMessage
}

func (h *recordingHub) BroadcastToRoom(roomID string, message interface{}) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if msg, ok := message.(brackets.PushMessage); ok {
		h.messages = append(h.messages, msg)
	}
}

func (h *recordingHub) byType(messageType string) []brackets.PushMessage {
	h.mu.Lock()
	defer h.mu.Unlock()
	var out []brackets.PushMessage
	for _, m := range h.messages {
		if m.Type == messageType {
			out = append(out, m)
		}
	}
	return out
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fixture struct {
	repo     *repositories.InMemoryTournamentRepository
	oracle   *fakeOracle
	hub      *recordingHub
	monitors *MonitorService
	service  TournamentService
}

func newFixture(t *testing.T, pollInterval time.Duration) *fixture {
	t.Helper()
	repo := repositories.NewInMemoryTournamentRepository()
	engine := brackets.NewEngine()
	fo := newFakeOracle()
	hub := &recordingHub{}
	logger := testLogger()
	monitors := NewMonitorService(repo, engine, fo, hub, logger, pollInterval)
	service := NewTournamentService(repo, engine, fo, hub, monitors, logger)
	return &fixture{repo: repo, oracle: fo, hub: hub, monitors: monitors, service: service}
}

func (f *fixture) joinFour(t *testing.T, code string) *models.Tournament {
	t.Helper()
	var tournament *models.Tournament
	for i, name := range []string{"Alice", "Bob", "Carol", "Dave"} {
		handle := fmt.Sprintf("handle%d", i+1)
		f.oracle.addUser(handle, 1200+i*100)
		var err error
		tournament, err = f.service.Join(context.Background(), code, name, handle)
		require.NoError(t, err)
	}
	return tournament
}

func TestCreateTournament(t *testing.T) {
	f := newFixture(t, time.Second)

	tournament, err := f.service.Create(context.Background())
	require.NoError(t, err)

	assert.Len(t, tournament.Code, 6)
	assert.Equal(t, models.TournamentStatusWaiting, tournament.Status)
	assert.Empty(t, tournament.Players)
	assert.Nil(t, tournament.Bracket)
	assert.False(t, tournament.CreatedAt.IsZero())

	stored, err := f.service.Get(context.Background(), tournament.Code)
	require.NoError(t, err)
	assert.Equal(t, tournament.Code, stored.Code)
}

func TestJoinTournament(t *testing.T) {
	t.Run("unknown code", func(t *testing.T) {
		f := newFixture(t, time.Second)
		f.oracle.addUser("alice", 1500)
		_, err := f.service.Join(context.Background(), "NOSUCH", "Alice", "alice")
		assert.ErrorIs(t, err, ErrTournamentNotFound)
	})

	t.Run("unknown handle", func(t *testing.T) {
		f := newFixture(t, time.Second)
		created, err := f.service.Create(context.Background())
		require.NoError(t, err)

		_, err = f.service.Join(context.Background(), created.Code, "Alice", "ghost")
		assert.ErrorIs(t, err, ErrInvalidHandle)
	})

	t.Run("transient oracle failure is not an invalid handle", func(t *testing.T) {
		f := newFixture(t, time.Second)
		created, err := f.service.Create(context.Background())
		require.NoError(t, err)

		f.oracle.setError(fmt.Errorf("%w: boom", oracle.ErrUnreachable))
		_, err = f.service.Join(context.Background(), created.Code, "Alice", "alice")
		assert.NotErrorIs(t, err, ErrInvalidHandle)
		assert.ErrorIs(t, err, oracle.ErrUnreachable)
	})

	t.Run("blank name rejected", func(t *testing.T) {
		f := newFixture(t, time.Second)
		created, err := f.service.Create(context.Background())
		require.NoError(t, err)

		_, err = f.service.Join(context.Background(), created.Code, "   ", "alice")
		assert.ErrorIs(t, err, ErrPlayerNameRequired)
	})

	t.Run("ids follow join order and the fourth join seeds the bracket", func(t *testing.T) {
		f := newFixture(t, time.Second)
		created, err := f.service.Create(context.Background())
		require.NoError(t, err)

		for i, name := range []string{"Alice", "Bob", "Carol", "Dave"} {
			handle := fmt.Sprintf("handle%d", i+1)
			f.oracle.addUser(handle, 1000)
			tournament, err := f.service.Join(context.Background(), created.Code, name, handle)
			require.NoError(t, err)

			require.Len(t, tournament.Players, i+1)
			newest := tournament.Players[i]
			assert.Equal(t, i+1, newest.ID)
			assert.Equal(t, name, newest.Name)
			assert.NotEmpty(t, newest.Avatar)

			if i < 3 {
				assert.Equal(t, models.TournamentStatusWaiting, tournament.Status)
				assert.Nil(t, tournament.Bracket)
			} else {
				assert.Equal(t, models.TournamentStatusReady, tournament.Status)
				require.NotNil(t, tournament.Bracket, "exactly the fourth join produces the bracket")
			}
		}

		// Each join broadcast a fresh snapshot.
		updates := f.hub.byType(brackets.MessageTournamentUpdate)
		assert.Len(t, updates, 4)
	})

	t.Run("fifth join rejected", func(t *testing.T) {
		f := newFixture(t, time.Second)
		created, err := f.service.Create(context.Background())
		require.NoError(t, err)
		f.joinFour(t, created.Code)

		f.oracle.addUser("latecomer", 900)
		_, err = f.service.Join(context.Background(), created.Code, "Eve", "latecomer")
		assert.ErrorIs(t, err, ErrTournamentFull)
	})

	t.Run("rating snapshot comes from the oracle", func(t *testing.T) {
		f := newFixture(t, time.Second)
		created, err := f.service.Create(context.Background())
		require.NoError(t, err)

		f.oracle.addUser("tourist", 3800)
		tournament, err := f.service.Join(context.Background(), created.Code, "Tourist", "tourist")
		require.NoError(t, err)
		assert.Equal(t, 3800, tournament.Players[0].Rating)
		assert.Equal(t, 3900, tournament.Players[0].MaxRating)
		assert.Equal(t, "specialist", tournament.Players[0].Rank)
	})
}

func TestStartMatch(t *testing.T) {
	f := newFixture(t, time.Hour) // monitor must not tick during the test
	created, err := f.service.Create(context.Background())
	require.NoError(t, err)
	f.joinFour(t, created.Code)

	t.Run("match without participants", func(t *testing.T) {
		_, err := f.service.StartMatch(context.Background(), created.Code, brackets.MatchFinal)
		assert.ErrorIs(t, err, ErrMatchNotReady)
	})

	t.Run("unknown match", func(t *testing.T) {
		_, err := f.service.StartMatch(context.Background(), created.Code, 42)
		assert.ErrorIs(t, err, ErrMatchNotFound)
	})

	t.Run("starting a semifinal records the clock and flips status", func(t *testing.T) {
		tournament, err := f.service.StartMatch(context.Background(), created.Code, brackets.MatchSemifinal1)
		require.NoError(t, err)

		m := brackets.FindMatch(tournament.Bracket, brackets.MatchSemifinal1)
		require.NotNil(t, m.StartedAt)
		assert.Equal(t, models.TournamentStatusInProgress, tournament.Status)

		// Starting again is harmless and keeps the original start time.
		again, err := f.service.StartMatch(context.Background(), created.Code, brackets.MatchSemifinal1)
		require.NoError(t, err)
		assert.Equal(t, *m.StartedAt, *brackets.FindMatch(again.Bracket, brackets.MatchSemifinal1).StartedAt)
	})
}

func TestPruneStale(t *testing.T) {
	f := newFixture(t, time.Second)

	fresh, err := f.service.Create(context.Background())
	require.NoError(t, err)

	stale := &models.Tournament{
		Code:      "OLDONE",
		Status:    models.TournamentStatusWaiting,
		Players:   []*models.Player{},
		CreatedAt: time.Now().Add(-24 * time.Hour),
	}
	require.NoError(t, f.repo.Create(stale))

	inProgress := &models.Tournament{
		Code:      "LIVE01",
		Status:    models.TournamentStatusInProgress,
		Players:   []*models.Player{},
		CreatedAt: time.Now().Add(-24 * time.Hour),
	}
	require.NoError(t, f.repo.Create(inProgress))

	removed := f.service.PruneStale(context.Background(), 6*time.Hour)
	assert.Equal(t, 1, removed)

	assert.False(t, f.repo.Exists("OLDONE"))
	assert.True(t, f.repo.Exists("LIVE01"), "a live tournament is never reaped")
	assert.True(t, f.repo.Exists(fresh.Code))
}
