// Package claim guarantees a logical resource owns at most one message
// on the chat platform, even when queue workers race or retry.
//
// The queue delivers at least once and gives no ordering between
// submissions, so two workers can both observe a resource without a
// message and both create one. Ownership is settled by an atomic
// conditional update (NULL to id) in Postgres, not by locking: exactly
// one creator's claim commits, and the loser reconciles by editing the
// winner's message with its own rendered content and deleting its
// duplicate best-effort.
//
// Every feature projection (weekly post, pair dashboard, duel
// scoreboard, raid board, leaderboard card) is an instantiation of the
// same Refresher over its own Store rows.
package claim
