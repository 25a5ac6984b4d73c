package store

import (
	"context"
	"time"

	"github.com/AdamBeresnev/yumcup/internal/bracket"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

type GameStore struct {
	db *sqlx.DB
}

func NewGameStore(db *sqlx.DB) *GameStore {
	return &GameStore{db: db}
}

func (s *GameStore) CreateGame(ctx context.Context, tx *sqlx.Tx, game *bracket.Game) error {
	_, err := tx.NamedExecContext(ctx, `INSERT INTO games (id, total_rounds, status, winner_id, started_at, ended_at)
        VALUES (:id, :total_rounds, :status, :winner_id, :started_at, :ended_at)`, game)
	return err
}

func (s *GameStore) CreateMatches(ctx context.Context, tx *sqlx.Tx, matches []bracket.Match) error {
	if len(matches) == 0 {
		return nil
	}
	_, err := tx.NamedExecContext(ctx, `INSERT INTO matches (id, game_id, place_1_id, place_2_id, round_number, match_order, winner_id, created_at)
		VALUES (:id, :game_id, :place_1_id, :place_2_id, :round_number, :match_order, :winner_id, :created_at)`, matches)
	return err
}

func (s *GameStore) GetGame(ctx context.Context, id uuid.UUID) (*bracket.Game, error) {
	var game bracket.Game
	err := s.db.GetContext(ctx, &game, s.db.Rebind("SELECT * FROM games WHERE id = ?"), id)
	if err != nil {
		return nil, err
	}
	return &game, nil
}

func (s *GameStore) GetGameTx(ctx context.Context, tx *sqlx.Tx, id uuid.UUID) (*bracket.Game, error) {
	var game bracket.Game
	err := tx.GetContext(ctx, &game, tx.Rebind("SELECT * FROM games WHERE id = ?"), id)
	if err != nil {
		return nil, err
	}
	return &game, nil
}

// LockGameTx takes the game's row lock for the rest of tx so concurrent selections on one game
// run one after another. It reports false when the game does not exist.
func (s *GameStore) LockGameTx(ctx context.Context, tx *sqlx.Tx, id uuid.UUID) (bool, error) {
	res, err := tx.ExecContext(ctx, tx.Rebind("UPDATE games SET status = status WHERE id = ?"), id)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (s *GameStore) GetMatchTx(ctx context.Context, tx *sqlx.Tx, id uuid.UUID) (*bracket.Match, error) {
	var match bracket.Match
	err := tx.GetContext(ctx, &match, tx.Rebind("SELECT * FROM matches WHERE id = ?"), id)
	if err != nil {
		return nil, err
	}
	return &match, nil
}

func (s *GameStore) GetMatchesByRoundTx(ctx context.Context, tx *sqlx.Tx, gameID uuid.UUID, round int) ([]bracket.Match, error) {
	var matches []bracket.Match
	err := tx.SelectContext(ctx, &matches, tx.Rebind("SELECT * FROM matches WHERE game_id = ? AND round_number = ? ORDER BY match_order ASC"), gameID, round)
	return matches, err
}

func (s *GameStore) GetMatches(ctx context.Context, gameID uuid.UUID) ([]bracket.Match, error) {
	var matches []bracket.Match
	err := s.db.SelectContext(ctx, &matches, s.db.Rebind("SELECT * FROM matches WHERE game_id = ? ORDER BY round_number DESC, match_order ASC"), gameID)
	return matches, err
}

// SetMatchWinnerTx records the winner only if the match is still open. It reports false when
// another request resolved the match first.
func (s *GameStore) SetMatchWinnerTx(ctx context.Context, tx *sqlx.Tx, matchID, winnerID uuid.UUID) (bool, error) {
	res, err := tx.ExecContext(ctx, tx.Rebind("UPDATE matches SET winner_id = ? WHERE id = ? AND winner_id IS NULL"), winnerID, matchID)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// CompleteGameTx moves an in-progress game to COMPLETED. It reports false if the game was already done.
func (s *GameStore) CompleteGameTx(ctx context.Context, tx *sqlx.Tx, gameID, winnerID uuid.UUID, endedAt time.Time) (bool, error) {
	res, err := tx.ExecContext(ctx, tx.Rebind("UPDATE games SET status = ?, winner_id = ?, ended_at = ? WHERE id = ? AND status = ?"),
		bracket.GameCompleted, winnerID, endedAt, gameID, bracket.GameInProgress)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}
