package bracket

import (
	"time"

	"github.com/google/uuid"
)

type Match struct {
	ID     uuid.UUID `db:"id"`
	GameID uuid.UUID `db:"game_id"`

	Place1ID uuid.UUID `db:"place_1_id"`
	Place2ID uuid.UUID `db:"place_2_id"`

	// Participants still in play when this match runs: 16, 8, 4, 2
	RoundNumber int `db:"round_number"`
	MatchOrder  int `db:"match_order"`

	WinnerID *uuid.UUID `db:"winner_id"`

	CreatedAt time.Time `db:"created_at"`
}

func (m *Match) IsResolved() bool {
	return m.WinnerID != nil
}

func (m *Match) HasParticipant(id uuid.UUID) bool {
	return m.Place1ID == id || m.Place2ID == id
}

// IsFinal is the match that decides the game.
func (m *Match) IsFinal() bool {
	return m.RoundNumber == 2
}

// RoundComplete reports whether every match in the slice has a winner.
func RoundComplete(matches []Match) bool {
	for i := range matches {
		if !matches[i].IsResolved() {
			return false
		}
	}
	return len(matches) > 0
}

// Pair seeds one round from participants in order: (0,1), (2,3), ...
func Pair(gameID uuid.UUID, round int, participants []uuid.UUID, now time.Time) []Match {
	matches := make([]Match, 0, len(participants)/2)
	for i := 0; i+1 < len(participants); i += 2 {
		matches = append(matches, Match{
			ID:          uuid.New(),
			GameID:      gameID,
			Place1ID:    participants[i],
			Place2ID:    participants[i+1],
			RoundNumber: round,
			MatchOrder:  i/2 + 1,
			CreatedAt:   now,
		})
	}
	return matches
}

// Winners lists the winners of a completed round in match order. Matches must be sorted.
func Winners(matches []Match) []uuid.UUID {
	winners := make([]uuid.UUID, 0, len(matches))
	for i := range matches {
		if matches[i].WinnerID != nil {
			winners = append(winners, *matches[i].WinnerID)
		}
	}
	return winners
}

// NextPending picks the first unresolved match after order, wrapping to the lowest unresolved.
func NextPending(matches []Match, order int) *Match {
	var first *Match
	for i := range matches {
		m := &matches[i]
		if m.IsResolved() {
			continue
		}
		if m.MatchOrder > order {
			return m
		}
		if first == nil {
			first = m
		}
	}
	return first
}
