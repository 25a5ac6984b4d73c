package bracket

import (
	"time"

	"github.com/google/uuid"
)

type GameStatus string

const (
	GameInProgress GameStatus = "IN_PROGRESS"
	GameCompleted  GameStatus = "COMPLETED"
)

type Game struct {
	ID uuid.UUID `db:"id"`
	// Participant count of the opening round, always a power of two
	TotalRounds int        `db:"total_rounds"`
	Status      GameStatus `db:"status"`
	WinnerID    *uuid.UUID `db:"winner_id"`
	StartedAt   time.Time  `db:"started_at"`
	EndedAt     *time.Time `db:"ended_at"`
}

func (g *Game) IsCompleted() bool {
	return g.Status == GameCompleted
}

// IsPowerOfTwo reports whether n is 2, 4, 8, ...
func IsPowerOfTwo(n int) bool {
	return n >= 2 && n&(n-1) == 0
}
