package main

import (
	"context"
	"net/http"
	"time"

	"github.com/AdamBeresnev/yumcup/internal/bracket"
	"github.com/AdamBeresnev/yumcup/internal/config"
	"github.com/AdamBeresnev/yumcup/internal/httputil"
	"github.com/AdamBeresnev/yumcup/internal/middleware"
	"github.com/AdamBeresnev/yumcup/internal/place"
	"github.com/AdamBeresnev/yumcup/internal/service"
	"github.com/AdamBeresnev/yumcup/internal/source"
	"github.com/AdamBeresnev/yumcup/internal/validation"
	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const maxBodyBytes = 1 << 20

type handlers struct {
	db        *sqlx.DB
	games     *service.GameService
	locations *service.LocationGameService
	// Builds a client-facing image URL from a stored photo reference
	photoURL func(ref *string) *string
}

func newRouter(h *handlers, cfg *config.Config) http.Handler {
	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(middleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.AccessLog)
	r.Use(chimiddleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.CORS.Origins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders:   []string{"Content-Type", middleware.RequestIDHeader},
		ExposedHeaders:   []string{middleware.RequestIDHeader},
		AllowCredentials: true,
		MaxAge:           3600,
	}))

	r.Get("/healthz", h.health)
	r.Handle("/metrics", promhttp.Handler())

	r.With(rateLimit(cfg.RateLimit)).Post("/start/location", h.startLocation)
	r.Post("/select", h.selectWinner)
	r.Get("/games/{id}", h.getGame)

	return r
}

func rateLimit(cfg config.RateLimitConfig) func(http.Handler) http.Handler {
	if cfg.Disabled {
		return func(next http.Handler) http.Handler { return next }
	}
	return httprate.Limit(cfg.Requests, cfg.Window,
		httprate.WithKeyFuncs(httprate.KeyByIP),
		httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
			httputil.WriteError(w, http.StatusTooManyRequests, "Too many games started, try again shortly")
		}),
	)
}

type startLocationRequest struct {
	Latitude  *float64 `json:"latitude" validate:"required,latitude"`
	Longitude *float64 `json:"longitude" validate:"required,longitude"`
	Radius    int      `json:"radius" validate:"gt=0,lte=20000"`
}

type selectRequest struct {
	GameID   string `json:"gameId" validate:"required,uuid"`
	MatchID  string `json:"matchId" validate:"required,uuid"`
	WinnerID string `json:"winnerId" validate:"required,uuid"`
}

type restaurantResponse struct {
	ID          uuid.UUID `json:"id"`
	Name        string    `json:"name"`
	Category    string    `json:"category"`
	Distance    int       `json:"distance"`
	Address     string    `json:"address"`
	RoadAddress string    `json:"roadAddress"`
	Phone       string    `json:"phone"`
	PlaceURL    string    `json:"placeUrl"`
	PhotoURL    *string   `json:"photoUrl"`
	Rating      *float64  `json:"rating"`
	RatingCount *int      `json:"ratingCount"`
	PriceLevel  string    `json:"priceLevel"`
	IsOpenNow   *bool     `json:"isOpenNow"`
	WinCount    int       `json:"winCount"`
	PlayCount   int       `json:"playCount"`
}

type matchResponse struct {
	ID          uuid.UUID          `json:"id"`
	Restaurant1 restaurantResponse `json:"restaurant1"`
	Restaurant2 restaurantResponse `json:"restaurant2"`
	Round       int                `json:"round"`
	MatchOrder  int                `json:"matchOrder"`
}

type gameResponse struct {
	GameID       uuid.UUID          `json:"gameId"`
	CurrentRound int                `json:"currentRound"`
	CurrentMatch *matchResponse     `json:"currentMatch"`
	Status       bracket.GameStatus `json:"status"`
}

type selectResponse struct {
	GameComplete bool                `json:"gameComplete"`
	NextMatch    *matchResponse      `json:"nextMatch"`
	Winner       *restaurantResponse `json:"winner"`
}

type matchSummary struct {
	ID            uuid.UUID  `json:"id"`
	Round         int        `json:"round"`
	MatchOrder    int        `json:"matchOrder"`
	Restaurant1ID uuid.UUID  `json:"restaurant1Id"`
	Restaurant2ID uuid.UUID  `json:"restaurant2Id"`
	WinnerID      *uuid.UUID `json:"winnerId"`
}

type roundResponse struct {
	Round   int            `json:"round"`
	Matches []matchSummary `json:"matches"`
}

type gameStateResponse struct {
	gameResponse
	TotalRounds int                           `json:"totalRounds"`
	Winner      *restaurantResponse           `json:"winner"`
	StartedAt   time.Time                     `json:"startedAt"`
	EndedAt     *time.Time                    `json:"endedAt"`
	Rounds      []roundResponse               `json:"rounds"`
	Restaurants map[string]restaurantResponse `json:"restaurants"`
}

func (h *handlers) restaurant(p place.Place) restaurantResponse {
	return restaurantResponse{
		ID:          p.ID,
		Name:        p.Name,
		Category:    p.Category,
		Distance:    p.Distance,
		Address:     p.Address,
		RoadAddress: p.RoadAddress,
		Phone:       p.Phone,
		PlaceURL:    p.PlaceURL,
		PhotoURL:    h.photoURL(p.PhotoRef),
		Rating:      p.Rating,
		RatingCount: p.RatingCount,
		PriceLevel:  place.DescribePrice(p.PriceLevel),
		IsOpenNow:   p.OpenNow,
		WinCount:    p.WinCount,
		PlayCount:   p.PlayCount,
	}
}

func (h *handlers) match(m *service.MatchData) *matchResponse {
	if m == nil {
		return nil
	}
	return &matchResponse{
		ID:          m.Match.ID,
		Restaurant1: h.restaurant(m.Place1),
		Restaurant2: h.restaurant(m.Place2),
		Round:       m.Match.RoundNumber,
		MatchOrder:  m.Match.MatchOrder,
	}
}

func (h *handlers) game(d *service.GameData) gameResponse {
	return gameResponse{
		GameID:       d.Game.ID,
		CurrentRound: d.CurrentRound(),
		CurrentMatch: h.match(d.CurrentMatch),
		Status:       d.Game.Status,
	}
}

// decode reads and validates a JSON body, writing the 400 itself when it fails.
func decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		httputil.BadRequest(w, r, "Invalid request body", err)
		return false
	}
	if err := validation.ValidateStruct(dst); err != nil {
		httputil.Error(w, r, err)
		return false
	}
	return true
}

func (h *handlers) health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if err := h.db.PingContext(ctx); err != nil {
		httputil.WriteError(w, http.StatusServiceUnavailable, "database unavailable")
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *handlers) startLocation(w http.ResponseWriter, r *http.Request) {
	var req startLocationRequest
	if !decode(w, r, &req) {
		return
	}

	data, err := h.locations.StartLocationGame(r.Context(), source.Query{
		Latitude:  *req.Latitude,
		Longitude: *req.Longitude,
		Radius:    req.Radius,
	})
	if err != nil {
		httputil.Error(w, r, err)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, h.game(data))
}

func (h *handlers) selectWinner(w http.ResponseWriter, r *http.Request) {
	var req selectRequest
	if !decode(w, r, &req) {
		return
	}

	// Validated as UUIDs above
	gameID, matchID, winnerID := uuid.MustParse(req.GameID), uuid.MustParse(req.MatchID), uuid.MustParse(req.WinnerID)

	res, err := h.games.SelectWinner(r.Context(), gameID, matchID, winnerID)
	if err != nil {
		httputil.Error(w, r, err)
		return
	}

	out := selectResponse{
		GameComplete: res.GameComplete,
		NextMatch:    h.match(res.NextMatch),
	}
	if res.Winner != nil {
		winner := h.restaurant(*res.Winner)
		out.Winner = &winner
	}
	httputil.WriteJSON(w, http.StatusOK, out)
}

func (h *handlers) getGame(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httputil.BadRequest(w, r, "Invalid game ID", err)
		return
	}

	data, err := h.games.GetGame(r.Context(), id)
	if err != nil {
		httputil.Error(w, r, err)
		return
	}

	out := gameStateResponse{
		gameResponse: h.game(data),
		TotalRounds:  data.Game.TotalRounds,
		StartedAt:    data.Game.StartedAt,
		EndedAt:      data.Game.EndedAt,
		Restaurants:  make(map[string]restaurantResponse, len(data.Places)),
	}
	for _, round := range bracket.GroupRounds(data.Matches) {
		rr := roundResponse{Round: round.Number, Matches: make([]matchSummary, len(round.Matches))}
		for i, m := range round.Matches {
			rr.Matches[i] = matchSummary{
				ID:            m.ID,
				Round:         m.RoundNumber,
				MatchOrder:    m.MatchOrder,
				Restaurant1ID: m.Place1ID,
				Restaurant2ID: m.Place2ID,
				WinnerID:      m.WinnerID,
			}
		}
		out.Rounds = append(out.Rounds, rr)
	}
	for id, p := range data.Places {
		out.Restaurants[id.String()] = h.restaurant(p)
	}
	if data.Game.WinnerID != nil {
		if p, ok := data.Places[*data.Game.WinnerID]; ok {
			winner := h.restaurant(p)
			out.Winner = &winner
		}
	}

	httputil.WriteJSON(w, http.StatusOK, out)
}
