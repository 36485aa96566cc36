// Package duels runs duel rounds: an operator starts a bounded round,
// members challenge each other, wins are tallied onto a live scoreboard
// message and into the monthly leaderboard. Starting a round is guarded
// by an advisory lock so two moderators clicking at once produce one
// round and one clean rejection.
package duels

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/astralis-bot/astralis/internal/jobs"
	"github.com/astralis-bot/astralis/internal/refresh"
	"github.com/astralis-bot/astralis/pkg/db"
	"github.com/astralis-bot/astralis/pkg/id"
	"github.com/astralis-bot/astralis/pkg/pglock"
	"github.com/astralis-bot/astralis/pkg/queue"
)

// JobCloseRound is the scheduled round-close job name.
const JobCloseRound = "duels:close_round"

const lockFeature = "duels:round"

// Round is one scoring window per guild.
type Round struct {
	ID        string
	GuildID   string
	Number    int
	Status    string
	StartedBy string
	StartedAt time.Time
	EndsAt    *time.Time
	ClosedAt  *time.Time
}

// Duel is one challenge between two members within a round.
type Duel struct {
	ID           string
	GuildID      string
	RoundID      string
	ChallengerID string
	OpponentID   string
	WinnerID     string
	Status       string
	CreatedAt    time.Time
	ResolvedAt   *time.Time
}

// PointsSink receives leaderboard points for resolved duels. Awards
// run inside the round's award transaction, so the sink must write
// through the given tx.
type PointsSink interface {
	AddPointsTx(ctx context.Context, tx pgx.Tx, guildID, userID string, points int64) error
}

// Service owns round lifecycle and duel resolution.
type Service struct {
	pool     *pgxpool.Pool
	refresh  *refresh.Service
	enqueuer queue.Enqueuer
	points   PointsSink
	winValue int64
	log      *slog.Logger
}

// Option configures the service.
type Option func(*Service)

// WithWinPoints sets the leaderboard points per duel win. Default: 10.
func WithWinPoints(n int64) Option {
	return func(s *Service) {
		if n > 0 {
			s.winValue = n
		}
	}
}

// WithLogger sets the service logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.log = l
		}
	}
}

// NewService wires the duel service.
func NewService(pool *pgxpool.Pool, refreshSvc *refresh.Service, enqueuer queue.Enqueuer, points PointsSink, opts ...Option) *Service {
	s := &Service{
		pool:     pool,
		refresh:  refreshSvc,
		enqueuer: enqueuer,
		points:   points,
		winValue: 10,
		log:      slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// StartRound opens a new round for the guild. At most one round can be
// active per guild; a concurrent start loses the advisory lock and gets
// ErrRoundActive, as does a start while a round is running.
func (s *Service) StartRound(ctx context.Context, guildID, startedBy string, duration time.Duration) (Round, error) {
	var round Round
	err := pglock.WithLockedTx(ctx, s.pool, guildID, lockFeature, func(tx pgx.Tx) error {
		var active bool
		err := tx.QueryRow(ctx,
			`SELECT EXISTS (SELECT 1 FROM duel_rounds WHERE guild_id = $1 AND status = 'active')`,
			guildID,
		).Scan(&active)
		if err != nil {
			return fmt.Errorf("check active round: %w", err)
		}
		if active {
			return ErrRoundActive
		}

		endsAt := time.Now().Add(duration)
		err = tx.QueryRow(ctx, `
			INSERT INTO duel_rounds (guild_id, number, status, started_by, ends_at)
			SELECT $1, COALESCE(MAX(number), 0) + 1, 'active', $2, $3
			FROM duel_rounds WHERE guild_id = $1
			RETURNING id, guild_id, number, status, started_by, started_at, ends_at`,
			guildID, startedBy, endsAt,
		).Scan(&round.ID, &round.GuildID, &round.Number, &round.Status,
			&round.StartedBy, &round.StartedAt, &round.EndsAt)
		if err != nil {
			return fmt.Errorf("insert round: %w", err)
		}
		return nil
	})
	if errors.Is(err, pglock.ErrLockHeld) {
		return Round{}, ErrRoundActive
	}
	if err != nil {
		return Round{}, fmt.Errorf("duels: start round: %w", err)
	}

	corrID := id.NewCorrelationID()
	closeBody := closePayload{
		Envelope: jobs.Envelope{
			CorrelationID: corrID,
			TenantID:      guildID,
			Feature:       "duels",
			Action:        "close_round",
		},
		RoundID: round.ID,
	}
	if err := s.enqueuer.Enqueue(ctx, JobCloseRound, closeBody,
		queue.WithNotBefore(*round.EndsAt),
		queue.WithMaxAttempts(5),
	); err != nil {
		return Round{}, fmt.Errorf("duels: schedule round close: %w", err)
	}

	s.requestScoreboardRefresh(ctx, guildID, round.ID, corrID)
	s.log.InfoContext(ctx, "duel round started",
		slog.String("guild_id", guildID),
		slog.String("round_id", round.ID),
		slog.Int("number", round.Number),
	)
	return round, nil
}

// CloseRound closes the round if it is still active. Closing and
// awarding are two independently claimed steps: the close is a
// conditional UPDATE on status, the award a conditional UPDATE on
// awarded_at inside the award transaction. A redelivery after a failed
// award finds the round already closed but not yet awarded and finishes
// the award; once both claims are spent the call is a pure no-op.
func (s *Service) CloseRound(ctx context.Context, guildID, roundID string) (changed bool, err error) {
	// Malformed ids come from user input; reject them before Postgres
	// turns them into a cast error.
	if _, err := uuid.Parse(roundID); err != nil {
		return false, ErrNotFound
	}

	tag, err := s.pool.Exec(ctx, `
		UPDATE duel_rounds
		SET status = 'closed', closed_at = now()
		WHERE id = $1 AND guild_id = $2 AND status = 'active'`,
		roundID, guildID,
	)
	if err != nil {
		return false, fmt.Errorf("duels: close round: %w", err)
	}
	changed = tag.RowsAffected() == 1

	awarded, err := s.awardRoundPoints(ctx, roundID, guildID)
	if err != nil {
		return changed, err
	}

	if !changed && !awarded {
		s.log.InfoContext(ctx, "round already closed",
			slog.String("guild_id", guildID), slog.String("round_id", roundID))
		return false, nil
	}

	corrID := id.NewCorrelationID()
	s.requestScoreboardRefresh(ctx, guildID, roundID, corrID)
	s.requestLeaderboardRefresh(ctx, guildID, corrID)
	s.log.InfoContext(ctx, "duel round closed",
		slog.String("guild_id", guildID), slog.String("round_id", roundID))
	return changed, nil
}

// awardRoundPoints feeds each winner's resolved wins into the monthly
// leaderboard, exactly once per round. Claiming awarded_at, tallying
// and paying happen in one transaction: a failed payout rolls the claim
// back so a retry starts over, a finished one leaves nothing to claim.
func (s *Service) awardRoundPoints(ctx context.Context, roundID, guildID string) (awarded bool, err error) {
	err = db.WithTx(ctx, s.pool, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `
			UPDATE duel_rounds
			SET awarded_at = now()
			WHERE id = $1 AND guild_id = $2 AND status = 'closed' AND awarded_at IS NULL`,
			roundID, guildID,
		)
		if err != nil {
			return fmt.Errorf("claim round award: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return nil
		}
		awarded = true

		rows, err := tx.Query(ctx, `
			SELECT winner_id, COUNT(*)
			FROM duels
			WHERE round_id = $1 AND status = 'resolved' AND winner_id IS NOT NULL
			GROUP BY winner_id`,
			roundID,
		)
		if err != nil {
			return fmt.Errorf("tally round wins: %w", err)
		}
		defer rows.Close()

		type tally struct {
			userID string
			wins   int64
		}
		var tallies []tally
		for rows.Next() {
			var t tally
			if err := rows.Scan(&t.userID, &t.wins); err != nil {
				return fmt.Errorf("scan round tally: %w", err)
			}
			tallies = append(tallies, t)
		}
		if err := rows.Err(); err != nil {
			return fmt.Errorf("tally round wins: %w", err)
		}

		for _, t := range tallies {
			if err := s.points.AddPointsTx(ctx, tx, guildID, t.userID, t.wins*s.winValue); err != nil {
				return fmt.Errorf("award points to %s: %w", t.userID, err)
			}
		}
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("duels: award round points: %w", err)
	}
	return awarded, nil
}

// ActiveRound returns the guild's running round.
func (s *Service) ActiveRound(ctx context.Context, guildID string) (Round, error) {
	const q = `
		SELECT id, guild_id, number, status, started_by, started_at, ends_at, closed_at
		FROM duel_rounds
		WHERE guild_id = $1 AND status = 'active'`

	var round Round
	err := s.pool.QueryRow(ctx, q, guildID).Scan(
		&round.ID, &round.GuildID, &round.Number, &round.Status,
		&round.StartedBy, &round.StartedAt, &round.EndsAt, &round.ClosedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return Round{}, ErrNoActiveRound
	}
	if err != nil {
		return Round{}, fmt.Errorf("duels: load active round: %w", err)
	}
	return round, nil
}

// Challenge records a pending duel in the guild's active round.
func (s *Service) Challenge(ctx context.Context, guildID, challengerID, opponentID string) (Duel, error) {
	if challengerID == opponentID {
		return Duel{}, ErrSelfChallenge
	}

	round, err := s.ActiveRound(ctx, guildID)
	if err != nil {
		return Duel{}, err
	}

	var d Duel
	err = s.pool.QueryRow(ctx, `
		INSERT INTO duels (guild_id, round_id, challenger_id, opponent_id, status)
		VALUES ($1, $2, $3, $4, 'pending')
		RETURNING id, guild_id, round_id, challenger_id, opponent_id, status, created_at`,
		guildID, round.ID, challengerID, opponentID,
	).Scan(&d.ID, &d.GuildID, &d.RoundID, &d.ChallengerID, &d.OpponentID, &d.Status, &d.CreatedAt)
	if err != nil {
		return Duel{}, fmt.Errorf("duels: create duel: %w", err)
	}

	s.requestScoreboardRefresh(ctx, guildID, round.ID, id.NewCorrelationID())
	return d, nil
}

// Resolve settles a duel with its winner. The winner must be one of
// the duel's two participants; settling twice returns
// ErrAlreadyResolved without changing the stored outcome.
func (s *Service) Resolve(ctx context.Context, guildID, duelID, winnerID string) (Duel, error) {
	if _, err := uuid.Parse(duelID); err != nil {
		return Duel{}, ErrNotFound
	}

	var d Duel
	err := s.pool.QueryRow(ctx, `
		UPDATE duels
		SET status = 'resolved', winner_id = $3, resolved_at = now()
		WHERE id = $1 AND guild_id = $2 AND status IN ('pending', 'accepted')
		  AND $3 IN (challenger_id, opponent_id)
		RETURNING id, guild_id, round_id, challenger_id, opponent_id,
		          COALESCE(winner_id, ''), status, created_at, resolved_at`,
		duelID, guildID, winnerID,
	).Scan(&d.ID, &d.GuildID, &d.RoundID, &d.ChallengerID, &d.OpponentID,
		&d.WinnerID, &d.Status, &d.CreatedAt, &d.ResolvedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		var status string
		checkErr := s.pool.QueryRow(ctx,
			`SELECT status FROM duels WHERE id = $1 AND guild_id = $2`,
			duelID, guildID,
		).Scan(&status)
		if errors.Is(checkErr, pgx.ErrNoRows) {
			return Duel{}, ErrNotFound
		}
		if checkErr != nil {
			return Duel{}, fmt.Errorf("duels: resolve duel: %w", checkErr)
		}
		if status == "pending" || status == "accepted" {
			return Duel{}, ErrWinnerNotInDuel
		}
		return Duel{}, ErrAlreadyResolved
	}
	if err != nil {
		return Duel{}, fmt.Errorf("duels: resolve duel: %w", err)
	}

	s.requestScoreboardRefresh(ctx, guildID, d.RoundID, id.NewCorrelationID())
	return d, nil
}

func (s *Service) requestScoreboardRefresh(ctx context.Context, guildID, roundID, corrID string) {
	p := refresh.Payload{
		Envelope: jobs.Envelope{
			CorrelationID: corrID,
			TenantID:      guildID,
			Feature:       "duels",
			Action:        "refresh",
		},
		ResourceID: roundID,
	}
	if err := s.refresh.Request(ctx, refresh.KindDuelScoreboard, p); err != nil {
		s.log.ErrorContext(ctx, "scoreboard refresh request failed",
			slog.String("guild_id", guildID), slog.Any("error", err))
	}
}

func (s *Service) requestLeaderboardRefresh(ctx context.Context, guildID, corrID string) {
	p := refresh.Payload{
		Envelope: jobs.Envelope{
			CorrelationID: corrID,
			TenantID:      guildID,
			Feature:       "leaderboard",
			Action:        "refresh",
		},
		ResourceID: guildID,
	}
	if err := s.refresh.Request(ctx, refresh.KindLeaderboardCard, p); err != nil {
		s.log.ErrorContext(ctx, "leaderboard refresh request failed",
			slog.String("guild_id", guildID), slog.Any("error", err))
	}
}
