package models

import "time"

// Problem references a judge problem assigned to a match.
type Problem struct {
	Contest int    `json:"contest"`
	Index   string `json:"index"`
	Name    string `json:"name"`
	Rating  int    `json:"rating"`
}

// Match is a single bracket match. Player slots stay nil until bracket
// progression fills them; Winner is set at most once and never reassigned.
type Match struct {
	ID        int        `json:"id"`
	Player1   *Player    `json:"player1"`
	Player2   *Player    `json:"player2"`
	Winner    *Player    `json:"winner"`
	Problem   *Problem   `json:"cfProblem"`
	StartedAt *time.Time `json:"startedAt,omitempty"`
}

// Ready reports whether the match has both participants and no winner yet.
func (m *Match) Ready() bool {
	return m != nil && m.Player1 != nil && m.Player2 != nil && m.Winner == nil
}

// Decided reports whether the match has a recorded winner.
func (m *Match) Decided() bool {
	return m != nil && m.Winner != nil
}
