// internal/results/store.go
//
// Finished-game records and the leaderboard.
//   - InsertResult: one row per finished session (idempotent on session ID).
//   - Leaderboard:  wins first, then shortest distance, then most coins.
//   - ForUser:      a player's recent games.

package results

import (
	"context"
	"database/sql"
	"time"

	"github.com/robalobadob/fugitive/internal/game"
)

// Result is a finished session as stored in game_results.
type Result struct {
	ID            string    `json:"id"`
	UserID        string    `json:"userId,omitempty"`
	AnonymousID   string    `json:"-"`
	Outcome       string    `json:"outcome"`
	Rounds        int       `json:"rounds"`
	Coins         int       `json:"coins"`
	CrimesStopped int       `json:"crimesStopped"`
	DistanceKm    int       `json:"distanceKm"`
	StartedAt     time.Time `json:"startedAt"`
	FinishedAt    time.Time `json:"finishedAt"`
}

// FromState builds a Result for a finished session.
func FromState(s game.State, userID, anonID string) Result {
	return Result{
		ID:            s.ID,
		UserID:        userID,
		AnonymousID:   anonID,
		Outcome:       string(s.Outcome),
		Rounds:        s.RoundNumber,
		Coins:         s.Coins,
		CrimesStopped: s.CrimesStopped,
		DistanceKm:    s.DistanceTravelled,
		StartedAt:     s.StartedAt,
		FinishedAt:    s.FinishedAt,
	}
}

type Store struct{ db *sql.DB }

func NewStore(db *sql.DB) *Store { return &Store{db: db} }

// InsertResult stores r; a second insert for the same session is ignored.
// It reports whether a row was written.
func (s *Store) InsertResult(ctx context.Context, r Result) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO game_results
			(id, user_id, anonymous_id, outcome, rounds, coins, crimes_stopped, distance_km, started_at, finished_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, nullable(r.UserID), nullable(r.AnonymousID), r.Outcome, r.Rounds, r.Coins,
		r.CrimesStopped, r.DistanceKm,
		r.StartedAt.UTC().Format(time.RFC3339), r.FinishedAt.UTC().Format(time.RFC3339),
	)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// Leaderboard returns the best finished games. Default limit is 20.
func (s *Store) Leaderboard(ctx context.Context, limit int) ([]Result, error) {
	if limit <= 0 {
		limit = 20
	}
	return s.query(ctx, `
		SELECT id, COALESCE(user_id,''), outcome, rounds, coins, crimes_stopped, distance_km, started_at, finished_at
		FROM game_results
		ORDER BY outcome = 'win' DESC, distance_km ASC, coins DESC, created_at ASC
		LIMIT ?`, limit)
}

// ForUser returns a user's most recent games.
func (s *Store) ForUser(ctx context.Context, userID string, limit int) ([]Result, error) {
	if limit <= 0 {
		limit = 50
	}
	return s.query(ctx, `
		SELECT id, COALESCE(user_id,''), outcome, rounds, coins, crimes_stopped, distance_km, started_at, finished_at
		FROM game_results
		WHERE user_id = ?
		ORDER BY finished_at DESC
		LIMIT ?`, userID, limit)
}

// ClaimAnonymous moves an anonymous player's results to userID.
func (s *Store) ClaimAnonymous(ctx context.Context, anonID, userID string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE game_results SET user_id=?, anonymous_id=NULL WHERE anonymous_id=?`, userID, anonID)
	return err
}

func (s *Store) query(ctx context.Context, q string, args ...any) ([]Result, error) {
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []Result{}
	for rows.Next() {
		var r Result
		var started, finished string
		if err := rows.Scan(&r.ID, &r.UserID, &r.Outcome, &r.Rounds, &r.Coins,
			&r.CrimesStopped, &r.DistanceKm, &started, &finished); err != nil {
			return nil, err
		}
		r.StartedAt, _ = time.Parse(time.RFC3339, started)
		r.FinishedAt, _ = time.Parse(time.RFC3339, finished)
		out = append(out, r)
	}
	return out, rows.Err()
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
