package store

import (
	"context"
	"fmt"
	"time"

	"github.com/AdamBeresnev/yumcup/internal/db"
	"github.com/AdamBeresnev/yumcup/internal/logging"
	"github.com/AdamBeresnev/yumcup/internal/metrics"
	"github.com/AdamBeresnev/yumcup/internal/place"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

// Keeps IN lists well under sqlite's bound parameter limit
const lookupBatchSize = 500

const insertPlaceSQL = `INSERT INTO places (id, external_id, name, category, distance, latitude, longitude, address, road_address, phone, place_url,
		rating, rating_count, price_level, open_now, photo_ref, win_count, play_count, last_refreshed_at, created_at)
	VALUES (:id, :external_id, :name, :category, :distance, :latitude, :longitude, :address, :road_address, :phone, :place_url,
		:rating, :rating_count, :price_level, :open_now, :photo_ref, :win_count, :play_count, :last_refreshed_at, :created_at)`

const refreshPlaceSQL = `UPDATE places SET name = :name, category = :category, distance = :distance, latitude = :latitude, longitude = :longitude,
		address = :address, road_address = :road_address, phone = :phone, place_url = :place_url,
		rating = :rating, rating_count = :rating_count, price_level = :price_level, open_now = :open_now, photo_ref = :photo_ref,
		last_refreshed_at = :last_refreshed_at
	WHERE id = :id`

type PlaceStore struct {
	db         *sqlx.DB
	staleAfter time.Duration
	now        func() time.Time
}

func NewPlaceStore(db *sqlx.DB, staleAfter time.Duration) *PlaceStore {
	if staleAfter <= 0 {
		staleAfter = place.DefaultStaleAfter
	}
	return &PlaceStore{
		db:         db,
		staleAfter: staleAfter,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// WithClock replaces the time source, used by tests to age rows.
func (s *PlaceStore) WithClock(now func() time.Time) *PlaceStore {
	s.now = now
	return s
}

func (s *PlaceStore) GetPlace(ctx context.Context, id uuid.UUID) (*place.Place, error) {
	var p place.Place
	err := s.db.GetContext(ctx, &p, s.db.Rebind("SELECT * FROM places WHERE id = ?"), id)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (s *PlaceStore) GetPlaceTx(ctx context.Context, tx *sqlx.Tx, id uuid.UUID) (*place.Place, error) {
	var p place.Place
	err := tx.GetContext(ctx, &p, tx.Rebind("SELECT * FROM places WHERE id = ?"), id)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// GetPlaces loads places by id. Missing ids are simply absent from the map.
func (s *PlaceStore) GetPlaces(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]place.Place, error) {
	out := make(map[uuid.UUID]place.Place, len(ids))
	for start := 0; start < len(ids); start += lookupBatchSize {
		end := min(start+lookupBatchSize, len(ids))
		query, args, err := sqlx.In("SELECT * FROM places WHERE id IN (?)", ids[start:end])
		if err != nil {
			return nil, err
		}
		var rows []place.Place
		if err := s.db.SelectContext(ctx, &rows, s.db.Rebind(query), args...); err != nil {
			return nil, err
		}
		for _, p := range rows {
			out[p.ID] = p
		}
	}
	return out, nil
}

// FindByExternalIDs returns the stored places for the given upstream ids in the order asked.
// Ids without a row are skipped.
func (s *PlaceStore) FindByExternalIDs(ctx context.Context, externalIDs []string) ([]place.Place, error) {
	found, err := s.findByExternalIDs(ctx, externalIDs)
	if err != nil {
		return nil, err
	}
	out := make([]place.Place, 0, len(found))
	for _, id := range externalIDs {
		if p, ok := found[id]; ok {
			out = append(out, p)
		}
	}
	return out, nil
}

func (s *PlaceStore) findByExternalIDs(ctx context.Context, externalIDs []string) (map[string]place.Place, error) {
	out := make(map[string]place.Place, len(externalIDs))
	for start := 0; start < len(externalIDs); start += lookupBatchSize {
		end := min(start+lookupBatchSize, len(externalIDs))
		query, args, err := sqlx.In("SELECT * FROM places WHERE external_id IN (?)", externalIDs[start:end])
		if err != nil {
			return nil, err
		}
		var rows []place.Place
		if err := s.db.SelectContext(ctx, &rows, s.db.Rebind(query), args...); err != nil {
			return nil, err
		}
		for _, p := range rows {
			out[p.ExternalID] = p
		}
	}
	return out, nil
}

func (s *PlaceStore) findByExternalID(ctx context.Context, externalID string) (*place.Place, error) {
	var p place.Place
	err := s.db.GetContext(ctx, &p, s.db.Rebind("SELECT * FROM places WHERE external_id = ?"), externalID)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// SaveOrUpdate persists a discovery batch and returns the stored copy of every place, in input
// order with repeated external ids collapsed to their first occurrence.
//
// New places are inserted, stale places that arrived enriched are refreshed, everything else is
// returned as stored. Concurrent callers racing on the same new ids all get the same rows back.
func (s *PlaceStore) SaveOrUpdate(ctx context.Context, incoming []place.Place) ([]place.Place, error) {
	if len(incoming) == 0 {
		return nil, nil
	}

	batch := dedupeByExternalID(incoming)
	externalIDs := make([]string, len(batch))
	for i := range batch {
		externalIDs[i] = batch[i].ExternalID
	}

	existing, err := s.findByExternalIDs(ctx, externalIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to load existing places: %w", err)
	}

	now := s.now()
	result := make([]place.Place, len(batch))
	var inserts []int
	var refreshes []place.Place

	for i, p := range batch {
		current, ok := existing[p.ExternalID]
		if !ok {
			p.ID = uuid.New()
			p.WinCount = 0
			p.PlayCount = 0
			p.CreatedAt = now
			p.LastRefreshedAt = now
			result[i] = p
			inserts = append(inserts, i)
			continue
		}

		if p.Enriched && current.IsStale(now, s.staleAfter) {
			current.MergeFresh(&p, now)
			current.Enriched = true
			refreshes = append(refreshes, current)
			metrics.PlaceUpserts.WithLabelValues("refreshed").Inc()
		} else {
			metrics.PlaceUpserts.WithLabelValues("unchanged").Inc()
		}
		result[i] = current
	}

	if len(refreshes) > 0 {
		if err := s.refresh(ctx, refreshes); err != nil {
			return nil, fmt.Errorf("failed to refresh stale places: %w", err)
		}
	}

	if len(inserts) == 0 {
		return result, nil
	}

	rows := make([]place.Place, len(inserts))
	for j, i := range inserts {
		rows[j] = result[i]
	}
	err = s.insertBatch(ctx, rows)
	if err == nil {
		metrics.PlaceUpserts.WithLabelValues("inserted").Add(float64(len(rows)))
		return result, nil
	}
	if !db.IsUniqueViolation(err) {
		return nil, fmt.Errorf("failed to insert places: %w", err)
	}

	// Someone else inserted part of this batch between our read and write.
	logging.Ctx(ctx).Debug().Int("rows", len(rows)).Msg("place insert raced, retrying row by row")
	for _, i := range inserts {
		saved, err := s.insertOrReread(ctx, result[i])
		if err != nil {
			return nil, err
		}
		result[i] = *saved
	}
	return result, nil
}

func (s *PlaceStore) insertBatch(ctx context.Context, rows []place.Place) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.NamedExecContext(ctx, insertPlaceSQL, rows); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *PlaceStore) insertOrReread(ctx context.Context, p place.Place) (*place.Place, error) {
	_, err := s.db.NamedExecContext(ctx, insertPlaceSQL, p)
	if err == nil {
		metrics.PlaceUpserts.WithLabelValues("inserted").Inc()
		return &p, nil
	}
	if !db.IsUniqueViolation(err) {
		return nil, fmt.Errorf("failed to insert place %s: %w", p.ExternalID, err)
	}

	metrics.PlaceUpserts.WithLabelValues("race").Inc()
	stored, err := s.findByExternalID(ctx, p.ExternalID)
	if err != nil {
		return nil, fmt.Errorf("failed to reread place %s: %w", p.ExternalID, err)
	}
	return stored, nil
}

func (s *PlaceStore) refresh(ctx context.Context, rows []place.Place) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for i := range rows {
		if _, err := tx.NamedExecContext(ctx, refreshPlaceSQL, rows[i]); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (s *PlaceStore) IncrementPlayCountTx(ctx context.Context, tx *sqlx.Tx, ids ...uuid.UUID) error {
	if len(ids) == 0 {
		return nil
	}
	query, args, err := sqlx.In("UPDATE places SET play_count = play_count + 1 WHERE id IN (?)", ids)
	if err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx, tx.Rebind(query), args...)
	return err
}

func (s *PlaceStore) IncrementWinCountTx(ctx context.Context, tx *sqlx.Tx, id uuid.UUID) error {
	_, err := tx.ExecContext(ctx, tx.Rebind("UPDATE places SET win_count = win_count + 1 WHERE id = ?"), id)
	return err
}

func dedupeByExternalID(places []place.Place) []place.Place {
	seen := make(map[string]struct{}, len(places))
	out := make([]place.Place, 0, len(places))
	for _, p := range places {
		if _, ok := seen[p.ExternalID]; ok {
			continue
		}
		seen[p.ExternalID] = struct{}{}
		out = append(out, p)
	}
	return out
}
