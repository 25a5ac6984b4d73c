package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/AdamBeresnev/yumcup/internal/apperr"
	"github.com/AdamBeresnev/yumcup/internal/bracket"
	"github.com/AdamBeresnev/yumcup/internal/logging"
	"github.com/AdamBeresnev/yumcup/internal/metrics"
	"github.com/AdamBeresnev/yumcup/internal/place"
	"github.com/AdamBeresnev/yumcup/internal/store"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

type GameService struct {
	db     *sqlx.DB
	games  *store.GameStore
	places *store.PlaceStore
	now    func() time.Time
}

func NewGameService(db *sqlx.DB, games *store.GameStore, places *store.PlaceStore) *GameService {
	return &GameService{
		db:     db,
		games:  games,
		places: places,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

type MatchData struct {
	Match  bracket.Match
	Place1 place.Place
	Place2 place.Place
}

type GameData struct {
	Game         *bracket.Game
	Matches      []bracket.Match
	Places       map[uuid.UUID]place.Place
	CurrentMatch *MatchData
}

// CurrentRound is the participant count of the round being played, 0 once the game is over.
func (d *GameData) CurrentRound() int {
	if d.CurrentMatch == nil {
		return 0
	}
	return d.CurrentMatch.Match.RoundNumber
}

type MatchResult struct {
	GameComplete bool
	NextMatch    *MatchData
	Winner       *place.Place
}

// Start opens a game over participants, pairing them in the order given.
func (s *GameService) Start(ctx context.Context, participants []uuid.UUID) (*GameData, error) {
	if !bracket.IsPowerOfTwo(len(participants)) {
		return nil, fmt.Errorf("%w: got %d", apperr.ErrInvalidParticipants, len(participants))
	}

	seen := make(map[uuid.UUID]struct{}, len(participants))
	for _, id := range participants {
		if _, dup := seen[id]; dup {
			return nil, fmt.Errorf("%w: duplicate participant %s", apperr.ErrInvalidParticipants, id)
		}
		seen[id] = struct{}{}
	}

	places, err := s.places.GetPlaces(ctx, participants)
	if err != nil {
		return nil, fmt.Errorf("failed to load participants: %w", err)
	}
	for _, id := range participants {
		if _, ok := places[id]; !ok {
			return nil, apperr.NotFound("place", id)
		}
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	now := s.now()
	game := &bracket.Game{
		ID:          uuid.New(),
		TotalRounds: len(participants),
		Status:      bracket.GameInProgress,
		StartedAt:   now,
	}
	if err := s.games.CreateGame(ctx, tx, game); err != nil {
		return nil, fmt.Errorf("failed to create game: %w", err)
	}

	matches := bracket.Pair(game.ID, len(participants), participants, now)
	if err := s.games.CreateMatches(ctx, tx, matches); err != nil {
		return nil, fmt.Errorf("failed to create matches: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}

	metrics.GamesStarted.Inc()
	logging.Ctx(ctx).Info().
		Str("game_id", game.ID.String()).
		Int("participants", len(participants)).
		Msg("game started")

	return &GameData{
		Game:         game,
		Matches:      matches,
		Places:       places,
		CurrentMatch: matchData(&matches[0], places),
	}, nil
}

// SelectWinner records the winner of one match and advances the bracket.
func (s *GameService) SelectWinner(ctx context.Context, gameID, matchID, winnerID uuid.UUID) (*MatchResult, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	// Round completeness is read below and next-round matches written from it; holding the
	// game row keeps two selections from both seeing a half-finished round.
	locked, err := s.games.LockGameTx(ctx, tx, gameID)
	if err != nil {
		return nil, fmt.Errorf("failed to lock game: %w", err)
	}
	if !locked {
		return nil, apperr.NotFound("game", gameID)
	}

	game, err := s.games.GetGameTx(ctx, tx, gameID)
	if err != nil {
		return nil, notFound(err, "game", gameID)
	}

	match, err := s.games.GetMatchTx(ctx, tx, matchID)
	if err != nil {
		return nil, notFound(err, "match", matchID)
	}
	if match.GameID != game.ID {
		return nil, apperr.NotFound("match", matchID)
	}

	if _, err := s.places.GetPlaceTx(ctx, tx, winnerID); err != nil {
		return nil, notFound(err, "place", winnerID)
	}

	if game.IsCompleted() {
		return nil, fmt.Errorf("%w: game %s is already completed", apperr.ErrConflict, game.ID)
	}
	if match.IsResolved() {
		return nil, fmt.Errorf("%w: match %s already has a winner", apperr.ErrConflict, match.ID)
	}
	if !match.HasParticipant(winnerID) {
		return nil, apperr.ErrInvalidWinner
	}

	ok, err := s.games.SetMatchWinnerTx(ctx, tx, match.ID, winnerID)
	if err != nil {
		return nil, fmt.Errorf("failed to update match: %w", err)
	}
	if !ok {
		return nil, fmt.Errorf("%w: match %s already has a winner", apperr.ErrConflict, match.ID)
	}

	if err := s.places.IncrementPlayCountTx(ctx, tx, match.Place1ID, match.Place2ID); err != nil {
		return nil, fmt.Errorf("failed to update play counts: %w", err)
	}

	round, err := s.games.GetMatchesByRoundTx(ctx, tx, game.ID, match.RoundNumber)
	if err != nil {
		return nil, fmt.Errorf("failed to load round: %w", err)
	}

	result := &MatchResult{}
	log := logging.Ctx(ctx).With().Str("game_id", game.ID.String()).Logger()

	switch {
	case bracket.RoundComplete(round) && match.IsFinal():
		ok, err := s.games.CompleteGameTx(ctx, tx, game.ID, winnerID, s.now())
		if err != nil {
			return nil, fmt.Errorf("failed to complete game: %w", err)
		}
		if !ok {
			return nil, fmt.Errorf("%w: game %s is already completed", apperr.ErrConflict, game.ID)
		}
		if err := s.places.IncrementWinCountTx(ctx, tx, winnerID); err != nil {
			return nil, fmt.Errorf("failed to update win count: %w", err)
		}
		winner, err := s.places.GetPlaceTx(ctx, tx, winnerID)
		if err != nil {
			return nil, fmt.Errorf("failed to load winner: %w", err)
		}
		result.GameComplete = true
		result.Winner = winner

	case bracket.RoundComplete(round):
		next := bracket.Pair(game.ID, match.RoundNumber/2, bracket.Winners(round), s.now())
		if err := s.games.CreateMatches(ctx, tx, next); err != nil {
			return nil, fmt.Errorf("failed to create round %d: %w", match.RoundNumber/2, err)
		}
		nm, err := s.loadMatchData(ctx, tx, &next[0])
		if err != nil {
			return nil, err
		}
		result.NextMatch = nm

	default:
		pending := bracket.NextPending(round, match.MatchOrder)
		if pending == nil {
			return nil, fmt.Errorf("round %d has no pending match", match.RoundNumber)
		}
		nm, err := s.loadMatchData(ctx, tx, pending)
		if err != nil {
			return nil, err
		}
		result.NextMatch = nm
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}

	if result.GameComplete {
		metrics.GamesCompleted.Inc()
		log.Info().Str("winner_id", winnerID.String()).Msg("game completed")
	} else {
		log.Debug().
			Int("round", result.NextMatch.Match.RoundNumber).
			Int("match_order", result.NextMatch.Match.MatchOrder).
			Msg("winner selected")
	}

	return result, nil
}

// GetGame reads back the full bracket of a game.
func (s *GameService) GetGame(ctx context.Context, gameID uuid.UUID) (*GameData, error) {
	game, err := s.games.GetGame(ctx, gameID)
	if err != nil {
		return nil, notFound(err, "game", gameID)
	}

	matches, err := s.games.GetMatches(ctx, gameID)
	if err != nil {
		return nil, fmt.Errorf("failed to load matches: %w", err)
	}

	ids := make([]uuid.UUID, 0, len(matches)*2)
	for i := range matches {
		ids = append(ids, matches[i].Place1ID, matches[i].Place2ID)
	}
	places, err := s.places.GetPlaces(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to load places: %w", err)
	}

	data := &GameData{Game: game, Matches: matches, Places: places}
	if !game.IsCompleted() {
		if current := currentMatch(matches); current != nil {
			data.CurrentMatch = matchData(current, places)
		}
	}
	return data, nil
}

func (s *GameService) loadMatchData(ctx context.Context, tx *sqlx.Tx, m *bracket.Match) (*MatchData, error) {
	p1, err := s.places.GetPlaceTx(ctx, tx, m.Place1ID)
	if err != nil {
		return nil, fmt.Errorf("failed to get place 1: %w", err)
	}
	p2, err := s.places.GetPlaceTx(ctx, tx, m.Place2ID)
	if err != nil {
		return nil, fmt.Errorf("failed to get place 2: %w", err)
	}
	return &MatchData{Match: *m, Place1: *p1, Place2: *p2}, nil
}

func matchData(m *bracket.Match, places map[uuid.UUID]place.Place) *MatchData {
	return &MatchData{Match: *m, Place1: places[m.Place1ID], Place2: places[m.Place2ID]}
}

// currentMatch is the lowest-order pending match of the latest round.
func currentMatch(matches []bracket.Match) *bracket.Match {
	latest := 0
	for i := range matches {
		if latest == 0 || matches[i].RoundNumber < latest {
			latest = matches[i].RoundNumber
		}
	}

	var round []bracket.Match
	for i := range matches {
		if matches[i].RoundNumber == latest {
			round = append(round, matches[i])
		}
	}
	return bracket.NextPending(round, 0)
}

func notFound(err error, what string, id uuid.UUID) error {
	if errors.Is(err, sql.ErrNoRows) {
		return apperr.NotFound(what, id)
	}
	return fmt.Errorf("failed to get %s: %w", what, err)
}
