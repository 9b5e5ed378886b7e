package brackets

import (
	"errors"
	"fmt"
	"math/rand"

	"github.com/cfarena/tournament-system/models"
)

// Match ids are fixed across every bracket.
const (
	MatchSemifinal1   = 1
	MatchSemifinal2   = 2
	MatchConsolation1 = 3
	MatchConsolation2 = 4
	MatchFinal        = 5
)

var (
	ErrWrongPlayerCount = errors.New("bracket requires exactly 4 players")
	ErrUnknownMatch     = errors.New("match not found in bracket")
	ErrNotParticipant   = errors.New("winner is not a participant of the match")
)

// Engine is the authoritative state machine for the 4-player bracket.
// It is stateless; callers serialize mutations per tournament.
type Engine struct{}

func NewEngine() *Engine {
	return &Engine{}
}

// Seed shuffles the 4 players uniformly, pairs them into the two semifinals
// and assigns each semifinal a random problem. Consolation matches and the
// final start empty; progression fills them in ApplyWinner.
func (e *Engine) Seed(players []*models.Player) (*models.Bracket, error) {
	if len(players) != models.MaxPlayers {
		return nil, fmt.Errorf("%w: got %d", ErrWrongPlayerCount, len(players))
	}

	shuffled := make([]*models.Player, len(players))
	copy(shuffled, players)
	rand.Shuffle(len(shuffled), func(i, j int) {
		shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
	})

	return &models.Bracket{
		Semifinals: []*models.Match{
			{ID: MatchSemifinal1, Player1: shuffled[0], Player2: shuffled[1], Problem: randomProblem()},
			{ID: MatchSemifinal2, Player1: shuffled[2], Player2: shuffled[3], Problem: randomProblem()},
		},
		Consolation: []*models.Match{
			{ID: MatchConsolation1},
			{ID: MatchConsolation2},
		},
		Finals: &models.Match{ID: MatchFinal},
	}, nil
}

// ApplyWinner records the winner of a match and cascades bracket progression.
//
// The call is idempotent: if the match already has a winner it is a no-op,
// which protects against duplicate monitor callbacks. For a semifinal the
// loser is placed into the first slot of the corresponding consolation match;
// once both semifinals are decided, whichever call came second populates the
// final from the two semifinal winners and cross-wires the consolation
// matches' second slots, assigning fresh problems to all three.
func (e *Engine) ApplyWinner(b *models.Bracket, matchID int, winner *models.Player) error {
	m := FindMatch(b, matchID)
	if m == nil {
		return fmt.Errorf("%w: id %d", ErrUnknownMatch, matchID)
	}
	if m.Winner != nil {
		return nil
	}
	if winner == nil || m.Player1 == nil || m.Player2 == nil ||
		(m.Player1.ID != winner.ID && m.Player2.ID != winner.ID) {
		return fmt.Errorf("%w: match %d", ErrNotParticipant, matchID)
	}

	m.Winner = winner

	if matchID != MatchSemifinal1 && matchID != MatchSemifinal2 {
		return nil
	}

	loser := m.Player1
	if loser.ID == winner.ID {
		loser = m.Player2
	}
	b.Consolation[matchID-1].Player1 = loser

	if b.Semifinals[0].Winner != nil && b.Semifinals[1].Winner != nil {
		b.Finals.Player1 = b.Semifinals[0].Winner
		b.Finals.Player2 = b.Semifinals[1].Winner
		b.Finals.Problem = randomProblem()

		b.Consolation[0].Player2 = b.Consolation[1].Player1
		b.Consolation[0].Problem = randomProblem()
		b.Consolation[1].Player2 = b.Consolation[0].Player1
		b.Consolation[1].Problem = randomProblem()
	}
	return nil
}

// FindMatch looks a match up by id across all three match groups.
func FindMatch(b *models.Bracket, matchID int) *models.Match {
	if b == nil {
		return nil
	}
	for _, m := range b.Semifinals {
		if m.ID == matchID {
			return m
		}
	}
	for _, m := range b.Consolation {
		if m.ID == matchID {
			return m
		}
	}
	if b.Finals != nil && b.Finals.ID == matchID {
		return b.Finals
	}
	return nil
}

// Champion returns the tournament winner, or nil while the final is open.
func Champion(b *models.Bracket) *models.Player {
	if b == nil || b.Finals == nil {
		return nil
	}
	return b.Finals.Winner
}
