package services

import "errors"

// Errors surfaced to request handlers and mapped to HTTP codes there.
// Oracle-level transient errors (oracle.ErrUnreachable, oracle.ErrRateLimited)
// are never fatal inside polling loops; they only reach a caller on the
// synchronous join and check-submissions paths.
var (
	ErrTournamentNotFound = errors.New("tournament not found")
	ErrTournamentFull     = errors.New("tournament is full")
	ErrInvalidHandle      = errors.New("invalid codeforces handle")
	ErrPlayerNameRequired = errors.New("player name is required")

	ErrMatchNotFound = errors.New("match not found")
	ErrMatchNotReady = errors.New("match does not have both participants yet")

	ErrCodeSpaceExhausted = errors.New("could not allocate a unique tournament code")
)
