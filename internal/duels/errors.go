package duels

import "errors"

var (
	// ErrRoundActive is returned by StartRound while a round is running.
	ErrRoundActive = errors.New("duels: a round is already active")
	// ErrNoActiveRound is returned when an operation needs a running round.
	ErrNoActiveRound = errors.New("duels: no active round")
	// ErrNotFound is returned when a duel or round does not exist.
	ErrNotFound = errors.New("duels: not found")
	// ErrAlreadyResolved is returned when resolving a settled duel.
	ErrAlreadyResolved = errors.New("duels: duel already resolved")
	// ErrSelfChallenge is returned when a user challenges themselves.
	ErrSelfChallenge = errors.New("duels: cannot challenge yourself")
	// ErrWinnerNotInDuel is returned when the declared winner is neither
	// the challenger nor the opponent.
	ErrWinnerNotInDuel = errors.New("duels: winner is not a participant")
)
