package models

import "time"

type TournamentStatus string

const (
	TournamentStatusWaiting    TournamentStatus = "waiting"
	TournamentStatusReady      TournamentStatus = "ready"
	TournamentStatusInProgress TournamentStatus = "in_progress"
	TournamentStatusComplete   TournamentStatus = "complete"
)

// MaxPlayers is the fixed bracket capacity.
const MaxPlayers = 4

// Bracket is the fixed 5-match tree for 4 players: two semifinals (ids 1-2),
// two consolation matches deciding 3rd place (ids 3-4) and the final (id 5).
type Bracket struct {
	Semifinals  []*Match `json:"semifinals"`
	Consolation []*Match `json:"consolation"`
	Finals      *Match   `json:"finals"`
}

// Tournament is the root aggregate. It is mutated only through the registry
// and bracket engine, under the store's per-tournament lock.
type Tournament struct {
	Code      string           `json:"id"`
	Status    TournamentStatus `json:"status"`
	Players   []*Player        `json:"players"`
	Bracket   *Bracket         `json:"bracket"`
	CreatedAt time.Time        `json:"createdAt"`
}

// Clone returns a deep copy safe to marshal or hand out while the original
// keeps being mutated under the store lock. Player pointer aliasing between
// the roster and bracket slots is preserved.
func (t *Tournament) Clone() *Tournament {
	if t == nil {
		return nil
	}
	out := *t
	seen := make(map[*Player]*Player, len(t.Players))
	cp := func(p *Player) *Player {
		if p == nil {
			return nil
		}
		if c, ok := seen[p]; ok {
			return c
		}
		c := *p
		seen[p] = &c
		return &c
	}
	out.Players = make([]*Player, len(t.Players))
	for i, p := range t.Players {
		out.Players[i] = cp(p)
	}
	if t.Bracket != nil {
		b := &Bracket{
			Semifinals:  make([]*Match, len(t.Bracket.Semifinals)),
			Consolation: make([]*Match, len(t.Bracket.Consolation)),
		}
		for i, m := range t.Bracket.Semifinals {
			b.Semifinals[i] = cloneMatch(m, cp)
		}
		for i, m := range t.Bracket.Consolation {
			b.Consolation[i] = cloneMatch(m, cp)
		}
		b.Finals = cloneMatch(t.Bracket.Finals, cp)
		out.Bracket = b
	}
	return &out
}

func cloneMatch(m *Match, cp func(*Player) *Player) *Match {
	if m == nil {
		return nil
	}
	c := *m
	c.Player1 = cp(m.Player1)
	c.Player2 = cp(m.Player2)
	c.Winner = cp(m.Winner)
	if m.Problem != nil {
		p := *m.Problem
		c.Problem = &p
	}
	if m.StartedAt != nil {
		ts := *m.StartedAt
		c.StartedAt = &ts
	}
	return &c
}
