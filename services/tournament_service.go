package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"strings"
	"time"

	"github.com/cfarena/tournament-system/brackets"
	"github.com/cfarena/tournament-system/models"
	"github.com/cfarena/tournament-system/oracle"
	"github.com/cfarena/tournament-system/repositories"
)

// Broadcaster fans a message out to every connection subscribed to a
// tournament code. Satisfied by *brackets.Hub.
type Broadcaster interface {
	BroadcastToRoom(roomID string, message interface{})
}

// Oracle is the read-only judge surface the services depend on.
type Oracle interface {
	RecentSubmissions(ctx context.Context, handle string) ([]oracle.Submission, error)
	VerifyHandle(ctx context.Context, handle string) (*oracle.UserInfo, error)
}

const (
	codeAlphabet    = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	codeLength      = 6
	maxCodeAttempts = 10
	verifyTimeout   = 10 * time.Second
)

// avatarPalette is assigned by join order, one glyph per seat.
var avatarPalette = [models.MaxPlayers]string{"🥷", "🧙‍♂️", "⚔️", "🐉"}

type TournamentService interface {
	Create(ctx context.Context) (*models.Tournament, error)
	Join(ctx context.Context, code, playerName, cfHandle string) (*models.Tournament, error)
	Get(ctx context.Context, code string) (*models.Tournament, error)
	StartMatch(ctx context.Context, code string, matchID int) (*models.Tournament, error)
	PruneStale(ctx context.Context, ttl time.Duration) int
}

type tournamentService struct {
	repo     repositories.TournamentRepository
	engine   *brackets.Engine
	oracle   Oracle
	hub      Broadcaster
	monitors *MonitorService
	logger   *slog.Logger
}

func NewTournamentService(
	repo repositories.TournamentRepository,
	engine *brackets.Engine,
	oracleClient Oracle,
	hub Broadcaster,
	monitors *MonitorService,
	logger *slog.Logger,
) TournamentService {
	return &tournamentService{
		repo:     repo,
		engine:   engine,
		oracle:   oracleClient,
		hub:      hub,
		monitors: monitors,
		logger:   logger,
	}
}

// Create allocates a fresh collision-checked code and stores an empty
// tournament in waiting status.
func (s *tournamentService) Create(ctx context.Context) (*models.Tournament, error) {
	for attempt := 0; attempt < maxCodeAttempts; attempt++ {
		t := &models.Tournament{
			Code:      generateCode(),
			Status:    models.TournamentStatusWaiting,
			Players:   []*models.Player{},
			CreatedAt: time.Now(),
		}
		err := s.repo.Create(t)
		if errors.Is(err, repositories.ErrCodeConflict) {
			continue
		}
		if err != nil {
			return nil, err
		}
		s.logger.Info("tournament created", slog.String("code", t.Code))
		return t.Clone(), nil
	}
	return nil, ErrCodeSpaceExhausted
}

// Join verifies the handle against the judge, then appends the player under
// the tournament lock. The fourth join seeds the bracket and flips the
// tournament to ready. Every successful join is broadcast.
func (s *tournamentService) Join(ctx context.Context, code, playerName, cfHandle string) (*models.Tournament, error) {
	playerName = strings.TrimSpace(playerName)
	if playerName == "" {
		return nil, ErrPlayerNameRequired
	}

	// Cheap pre-checks before paying for the oracle round-trip.
	current, err := s.repo.Get(code)
	if err != nil {
		return nil, translateRepoErr(err)
	}
	if len(current.Players) >= models.MaxPlayers {
		return nil, ErrTournamentFull
	}

	verifyCtx, cancel := context.WithTimeout(ctx, verifyTimeout)
	defer cancel()
	info, err := s.oracle.VerifyHandle(verifyCtx, cfHandle)
	if err != nil {
		if errors.Is(err, oracle.ErrHandleNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrInvalidHandle, cfHandle)
		}
		// Transient oracle failure is not evidence the handle is bad.
		return nil, err
	}

	snapshot, err := s.repo.Update(code, func(t *models.Tournament) error {
		if len(t.Players) >= models.MaxPlayers {
			return ErrTournamentFull
		}
		player := &models.Player{
			ID:        len(t.Players) + 1,
			Name:      playerName,
			CFHandle:  info.Handle,
			Avatar:    avatarPalette[len(t.Players)],
			Rating:    info.Rating,
			MaxRating: info.MaxRating,
			Rank:      info.Rank,
		}
		t.Players = append(t.Players, player)

		if len(t.Players) == models.MaxPlayers {
			bracket, err := s.engine.Seed(t.Players)
			if err != nil {
				return err
			}
			t.Bracket = bracket
			t.Status = models.TournamentStatusReady
		}
		return nil
	})
	if err != nil {
		return nil, translateRepoErr(err)
	}

	s.logger.Info("player joined",
		slog.String("code", code),
		slog.String("handle", info.Handle),
		slog.Int("players", len(snapshot.Players)))

	s.hub.BroadcastToRoom(code, brackets.PushMessage{
		Type:       brackets.MessageTournamentUpdate,
		Tournament: snapshot,
	})
	return snapshot, nil
}

func (s *tournamentService) Get(ctx context.Context, code string) (*models.Tournament, error) {
	t, err := s.repo.Get(code)
	if err != nil {
		return nil, translateRepoErr(err)
	}
	return t, nil
}

// StartMatch records the match start time, moves the tournament into
// in_progress and spins up the push monitor for the match. Starting an
// already started match is a no-op beyond ensuring the monitor runs.
func (s *tournamentService) StartMatch(ctx context.Context, code string, matchID int) (*models.Tournament, error) {
	var started bool
	snapshot, err := s.repo.Update(code, func(t *models.Tournament) error {
		m := brackets.FindMatch(t.Bracket, matchID)
		if m == nil {
			return ErrMatchNotFound
		}
		if !m.Ready() {
			return ErrMatchNotReady
		}
		if m.StartedAt == nil {
			now := time.Now()
			m.StartedAt = &now
			t.Status = models.TournamentStatusInProgress
			started = true
		}
		return nil
	})
	if err != nil {
		return nil, translateRepoErr(err)
	}

	if _, err := s.monitors.Start(code, matchID, nil); err != nil {
		return nil, err
	}

	if started {
		s.logger.Info("match started", slog.String("code", code), slog.Int("match", matchID))
		s.hub.BroadcastToRoom(code, brackets.PushMessage{
			Type:       brackets.MessageTournamentUpdate,
			Tournament: snapshot,
		})
	}
	return snapshot, nil
}

// PruneStale drops tournaments past their useful life: never filled, or
// already complete, and older than the TTL. Returns how many were removed.
func (s *tournamentService) PruneStale(ctx context.Context, ttl time.Duration) int {
	cutoff := time.Now().Add(-ttl)
	removed := 0
	for _, t := range s.repo.List() {
		if repositories.StaleBefore(t, cutoff) {
			s.repo.Delete(t.Code)
			removed++
		}
	}
	if removed > 0 {
		s.logger.Info("stale tournaments pruned", slog.Int("count", removed))
	}
	return removed
}

func translateRepoErr(err error) error {
	if errors.Is(err, repositories.ErrNotFound) {
		return ErrTournamentNotFound
	}
	return err
}

func generateCode() string {
	b := make([]byte, codeLength)
	for i := range b {
		b[i] = codeAlphabet[rand.Intn(len(codeAlphabet))]
	}
	return string(b)
}
