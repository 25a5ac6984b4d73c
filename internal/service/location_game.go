package service

import (
	"context"
	"fmt"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/AdamBeresnev/yumcup/internal/apperr"
	"github.com/AdamBeresnev/yumcup/internal/bracket"
	"github.com/AdamBeresnev/yumcup/internal/place"
	"github.com/AdamBeresnev/yumcup/internal/source"
	"github.com/google/uuid"
)

const DefaultBracketSize = 16

type NearbyFinder interface {
	FindNearby(ctx context.Context, q source.Query, minimum int) ([]place.Place, error)
}

type LocationGameConfig struct {
	// Participants per game, a power of two
	BracketSize int
	// Places discovery must return before a game can start. Never below BracketSize.
	MinimumRequired int
	// Zero seeds from the clock
	Seed uint64
}

type LocationGameService struct {
	games  *GameService
	finder NearbyFinder
	cfg    LocationGameConfig

	mu  sync.Mutex
	rng *rand.Rand
}

func NewLocationGameService(games *GameService, finder NearbyFinder, cfg LocationGameConfig) (*LocationGameService, error) {
	if cfg.BracketSize == 0 {
		cfg.BracketSize = DefaultBracketSize
	}
	if !bracket.IsPowerOfTwo(cfg.BracketSize) {
		return nil, fmt.Errorf("%w: bracket size %d", apperr.ErrInvalidParticipants, cfg.BracketSize)
	}
	if cfg.MinimumRequired < cfg.BracketSize {
		cfg.MinimumRequired = cfg.BracketSize
	}

	seed := cfg.Seed
	if seed == 0 {
		seed = uint64(time.Now().UnixNano())
	}

	return &LocationGameService{
		games:  games,
		finder: finder,
		cfg:    cfg,
		rng:    rand.New(rand.NewPCG(seed, seed>>1|1)),
	}, nil
}

// StartLocationGame discovers restaurants around q and opens a game over a shuffled subset.
func (s *LocationGameService) StartLocationGame(ctx context.Context, q source.Query) (*GameData, error) {
	places, err := s.finder.FindNearby(ctx, q, s.cfg.MinimumRequired)
	if err != nil {
		return nil, err
	}
	if len(places) < s.cfg.BracketSize {
		return nil, &apperr.InsufficientResults{Found: len(places), Required: s.cfg.BracketSize}
	}

	ids := make([]uuid.UUID, len(places))
	for i := range places {
		ids[i] = places[i].ID
	}
	s.shuffle(ids)

	return s.games.Start(ctx, ids[:s.cfg.BracketSize])
}

// rand.Rand is not safe for concurrent use.
func (s *LocationGameService) shuffle(ids []uuid.UUID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rng.Shuffle(len(ids), func(i, j int) { ids[i], ids[j] = ids[j], ids[i] })
}
