package models

// Player is a tournament participant. Rating fields are a snapshot taken from
// the judge at join time and are not refreshed afterwards.
type Player struct {
	ID        int    `json:"id"`
	Name      string `json:"name"`
	CFHandle  string `json:"cfHandle"`
	Avatar    string `json:"avatar"`
	Rating    int    `json:"rating"`
	MaxRating int    `json:"maxRating"`
	Rank      string `json:"rank"`
}
