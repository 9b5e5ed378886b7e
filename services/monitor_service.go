package services

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/cfarena/tournament-system/brackets"
	"github.com/cfarena/tournament-system/models"
	"github.com/cfarena/tournament-system/oracle"
	"github.com/cfarena/tournament-system/repositories"
	"golang.org/x/sync/errgroup"
)

// PlayerStatus is the monitor's classification of a participant's progress
// on the match problem.
type PlayerStatus string

const (
	StatusWaiting   PlayerStatus = "waiting"
	StatusSubmitted PlayerStatus = "submitted"
	StatusTesting   PlayerStatus = "testing"
	StatusAccepted  PlayerStatus = "accepted"
	StatusWrong     PlayerStatus = "wrong"
)

// StatusUpdate is emitted whenever a participant's classification changes or
// a not-yet-seen submission shows up. IsNew is true only on the first poll
// that observed the submission; a later verdict change on the same submission
// (testing to accepted, say) re-emits with IsNew false.
type StatusUpdate struct {
	PlayerID   int
	Status     PlayerStatus
	Submission *oracle.Submission
	IsNew      bool
}

type StatusFunc func(update StatusUpdate)

// Subscription is the handle to a running match monitor. Stop is safe to
// call repeatedly and after the monitor has already self-stopped.
type Subscription struct {
	cancel context.CancelFunc
	done   chan struct{}
}

func (s *Subscription) Stop() { s.cancel() }

// Done is closed when the monitor goroutine has exited.
func (s *Subscription) Done() <-chan struct{} { return s.done }

const fetchTimeout = 8 * time.Second

// MonitorService runs one polling loop per active match, discovering winners
// by querying the judge. It is also the sole writer of match winners: both
// the push monitors and the pull-based CheckSubmissions funnel through
// applyWinner under the tournament lock.
type MonitorService struct {
	repo     repositories.TournamentRepository
	engine   *brackets.Engine
	oracle   Oracle
	hub      Broadcaster
	logger   *slog.Logger
	interval time.Duration

	mu     sync.Mutex
	active map[string]*matchMonitor
}

func NewMonitorService(
	repo repositories.TournamentRepository,
	engine *brackets.Engine,
	oracleClient Oracle,
	hub Broadcaster,
	logger *slog.Logger,
	interval time.Duration,
) *MonitorService {
	return &MonitorService{
		repo:     repo,
		engine:   engine,
		oracle:   oracleClient,
		hub:      hub,
		logger:   logger,
		interval: interval,
		active:   make(map[string]*matchMonitor),
	}
}

// Start begins polling both participants of the match. Starting a match that
// already has a live monitor returns the existing subscription. The match
// must have both players, an assigned problem and a recorded start time.
func (s *MonitorService) Start(code string, matchID int, onStatus StatusFunc) (*Subscription, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := monitorKey(code, matchID)
	if existing, ok := s.active[key]; ok {
		return existing.sub, nil
	}

	t, err := s.repo.Get(code)
	if err != nil {
		return nil, translateRepoErr(err)
	}
	m := brackets.FindMatch(t.Bracket, matchID)
	if m == nil {
		return nil, ErrMatchNotFound
	}
	if !m.Ready() || m.Problem == nil || m.StartedAt == nil {
		return nil, ErrMatchNotReady
	}

	ctx, cancel := context.WithCancel(context.Background())
	mon := &matchMonitor{
		svc:       s,
		code:      code,
		matchID:   matchID,
		problem:   *m.Problem,
		startTime: *m.StartedAt,
		players:   [2]*models.Player{m.Player1, m.Player2},
		onStatus:  onStatus,
		seen:      make(map[int64]bool),
		sub:       &Subscription{cancel: cancel, done: make(chan struct{})},
	}
	s.active[key] = mon
	go mon.run(ctx)
	return mon.sub, nil
}

// CheckSubmissions is the one-shot pull variant of the monitor: it queries
// the judge for both participants, returns each player's latest qualifying
// submission and applies the winner if an accepted verdict shows up. A
// failed fetch for one player never blocks the other's result.
func (s *MonitorService) CheckSubmissions(ctx context.Context, code string, matchID int, startTime time.Time) (map[int]*models.SubmissionResult, *models.Match, error) {
	t, err := s.repo.Get(code)
	if err != nil {
		return nil, nil, translateRepoErr(err)
	}
	m := brackets.FindMatch(t.Bracket, matchID)
	if m == nil {
		return nil, nil, ErrMatchNotFound
	}
	if m.Player1 == nil || m.Player2 == nil || m.Problem == nil {
		return nil, nil, ErrMatchNotReady
	}

	results := make(map[int]*models.SubmissionResult)
	// Player1 evaluated first: the deterministic tie-break when both players
	// show an accepted verdict in the same check.
	for _, p := range []*models.Player{m.Player1, m.Player2} {
		fetchCtx, cancel := context.WithTimeout(ctx, fetchTimeout)
		subs, err := s.oracle.RecentSubmissions(fetchCtx, p.CFHandle)
		cancel()
		if err != nil {
			s.logger.Warn("submission check failed",
				slog.String("code", code),
				slog.String("handle", p.CFHandle),
				slog.Any("error", err))
			continue
		}

		var found *oracle.Submission
		for i := range subs {
			sub := &subs[i]
			if sub.Problem.ContestID == m.Problem.Contest &&
				sub.Problem.Index == m.Problem.Index &&
				!time.UnixMilli(sub.CreationTimeSeconds*1000).Before(startTime) {
				found = sub
				break
			}
		}
		if found == nil {
			continue
		}

		results[p.ID] = &models.SubmissionResult{
			Verdict:      found.Verdict,
			Time:         found.CreationTimeSeconds * 1000,
			Language:     found.ProgrammingLanguage,
			SubmissionID: found.ID,
		}

		if found.Verdict == oracle.VerdictOK && m.Winner == nil {
			s.applyWinner(code, matchID, p.ID)
		}
	}

	// Re-read so the returned match reflects any winner applied above.
	if fresh, err := s.repo.Get(code); err == nil {
		if fm := brackets.FindMatch(fresh.Bracket, matchID); fm != nil {
			m = fm
		}
	}
	return results, m, nil
}

// applyWinner records the winner under the tournament lock and broadcasts
// the decision. A match that already has a winner makes this a silent no-op,
// which is what makes duplicate detections across monitors and checks safe.
func (s *MonitorService) applyWinner(code string, matchID, playerID int) (*models.Tournament, bool) {
	var applied bool
	snapshot, err := s.repo.Update(code, func(t *models.Tournament) error {
		m := brackets.FindMatch(t.Bracket, matchID)
		if m == nil {
			return ErrMatchNotFound
		}
		if m.Winner != nil {
			return nil
		}
		var winner *models.Player
		switch playerID {
		case m.Player1.ID:
			winner = m.Player1
		case m.Player2.ID:
			winner = m.Player2
		default:
			return fmt.Errorf("player %d is not in match %d", playerID, matchID)
		}
		if err := s.engine.ApplyWinner(t.Bracket, matchID, winner); err != nil {
			return err
		}
		applied = true
		if brackets.Champion(t.Bracket) != nil {
			t.Status = models.TournamentStatusComplete
		}
		return nil
	})
	if err != nil {
		s.logger.Error("apply winner failed",
			slog.String("code", code),
			slog.Int("match", matchID),
			slog.Any("error", err))
		return nil, false
	}
	if !applied {
		return snapshot, false
	}

	winner := brackets.FindMatch(snapshot.Bracket, matchID).Winner
	s.logger.Info("match decided",
		slog.String("code", code),
		slog.Int("match", matchID),
		slog.String("winner", winner.CFHandle))

	s.hub.BroadcastToRoom(code, brackets.PushMessage{
		Type:       brackets.MessageMatchWinner,
		MatchID:    matchID,
		Winner:     winner,
		Tournament: snapshot,
	})
	s.hub.BroadcastToRoom(code, brackets.PushMessage{
		Type:       brackets.MessageTournamentUpdate,
		Tournament: snapshot,
	})
	return snapshot, true
}

func (s *MonitorService) remove(key string) {
	s.mu.Lock()
	delete(s.active, key)
	s.mu.Unlock()
}

func monitorKey(code string, matchID int) string {
	return fmt.Sprintf("%s/%d", code, matchID)
}

// matchMonitor is the per-match polling state: immutable start parameters
// plus the dedup set and last emitted classification per player.
type matchMonitor struct {
	svc       *MonitorService
	code      string
	matchID   int
	problem   models.Problem
	startTime time.Time
	players   [2]*models.Player
	onStatus  StatusFunc
	sub       *Subscription

	seen       map[int64]bool
	lastStatus [2]PlayerStatus
}

func (m *matchMonitor) run(ctx context.Context) {
	defer close(m.sub.done)
	defer m.svc.remove(monitorKey(m.code, m.matchID))

	ticker := time.NewTicker(m.svc.interval)
	defer ticker.Stop()

	// Initial check, then on cadence. A tick slower than the interval simply
	// drops the missed ticks; concurrent requests for the same player never
	// pile up.
	if m.tick(ctx) {
		return
	}
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if m.tick(ctx) {
				return
			}
		}
	}
}

// tick fetches both players concurrently, classifies, and applies a winner
// on the first accepted verdict. Returns true when the loop should stop.
func (m *matchMonitor) tick(ctx context.Context) bool {
	var (
		results [2][]oracle.Submission
		fetched [2]bool
	)
	g := new(errgroup.Group)
	for i, p := range m.players {
		i, p := i, p
		g.Go(func() error {
			fetchCtx, cancel := context.WithTimeout(ctx, fetchTimeout)
			defer cancel()
			subs, err := m.svc.oracle.RecentSubmissions(fetchCtx, p.CFHandle)
			if err != nil {
				// Transient by contract: skip this player until the next tick.
				m.svc.logger.Warn("submission fetch failed",
					slog.String("code", m.code),
					slog.Int("match", m.matchID),
					slog.String("handle", p.CFHandle),
					slog.Any("error", err))
				return nil
			}
			results[i] = subs
			fetched[i] = true
			return nil
		})
	}
	g.Wait()

	if ctx.Err() != nil {
		return true
	}

	// Sequential evaluation, player1 first: the tie-break when both players
	// come back accepted in the same tick.
	for i, p := range m.players {
		if !fetched[i] {
			continue
		}
		latest := m.latestQualifying(results[i])
		isNew := latest != nil && !m.seen[latest.ID]
		if latest != nil {
			m.seen[latest.ID] = true
		}
		status := classify(latest)
		if status != m.lastStatus[i] || isNew {
			m.lastStatus[i] = status
			if m.onStatus != nil {
				m.onStatus(StatusUpdate{PlayerID: p.ID, Status: status, Submission: latest, IsNew: isNew})
			}
		}
		if status == StatusAccepted {
			m.svc.applyWinner(m.code, m.matchID, p.ID)
			return true
		}
	}
	return false
}

// latestQualifying filters to submissions for the match problem made at or
// after the match start and returns the most recent one.
func (m *matchMonitor) latestQualifying(subs []oracle.Submission) *oracle.Submission {
	qualifying := make([]*oracle.Submission, 0, len(subs))
	for i := range subs {
		sub := &subs[i]
		if sub.Problem.ContestID != m.problem.Contest || sub.Problem.Index != m.problem.Index {
			continue
		}
		if time.UnixMilli(sub.CreationTimeSeconds*1000).Before(m.startTime) {
			continue
		}
		qualifying = append(qualifying, sub)
	}
	if len(qualifying) == 0 {
		return nil
	}
	sort.Slice(qualifying, func(i, j int) bool {
		return qualifying[i].CreationTimeSeconds > qualifying[j].CreationTimeSeconds
	})
	return qualifying[0]
}

func classify(sub *oracle.Submission) PlayerStatus {
	switch {
	case sub == nil:
		return StatusWaiting
	case sub.Verdict == oracle.VerdictOK:
		return StatusAccepted
	case sub.Verdict == oracle.VerdictTesting:
		return StatusTesting
	case sub.Verdict == "":
		return StatusSubmitted
	default:
		return StatusWrong
	}
}
