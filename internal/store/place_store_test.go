package store

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/AdamBeresnev/yumcup/internal/place"
	"github.com/AdamBeresnev/yumcup/internal/utils"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func candidates(n int) []place.Place {
	out := make([]place.Place, n)
	for i := range out {
		out[i] = place.Place{
			ExternalID: fmt.Sprintf("kakao-%d", i+1),
			Name:       fmt.Sprintf("Restaurant %d", i+1),
			Category:   "한식",
			Distance:   100 * (i + 1),
			Latitude:   37.5,
			Longitude:  127.0,
		}
	}
	return out
}

func TestSaveOrUpdateInsertsNewPlaces(t *testing.T) {
	database := setupTestDB(t)
	defer database.Close()

	store := NewPlaceStore(database, place.DefaultStaleAfter)
	ctx := context.Background()

	in := candidates(5)
	in[2].Rating = utils.Ptr(4.3)
	in[2].PriceLevel = utils.Ptr(place.PriceModerate)
	in[2].Enriched = true

	saved, err := store.SaveOrUpdate(ctx, in)
	require.NoError(t, err)
	require.Len(t, saved, 5)

	for i, p := range saved {
		assert.Equal(t, in[i].ExternalID, p.ExternalID, "order is preserved")
		assert.NotEqual(t, uuid.Nil, p.ID)
		assert.Zero(t, p.WinCount)
		assert.False(t, p.CreatedAt.IsZero())
	}

	stored, err := store.GetPlace(ctx, saved[2].ID)
	require.NoError(t, err)
	assert.Equal(t, "Restaurant 3", stored.Name)
	require.NotNil(t, stored.Rating)
	assert.Equal(t, 4.3, *stored.Rating)
	require.NotNil(t, stored.PriceLevel)
	assert.Equal(t, place.PriceModerate, *stored.PriceLevel)
	assert.Nil(t, stored.OpenNow)
}

func TestSaveOrUpdateIsIdempotent(t *testing.T) {
	database := setupTestDB(t)
	defer database.Close()

	store := NewPlaceStore(database, place.DefaultStaleAfter)
	ctx := context.Background()

	first, err := store.SaveOrUpdate(ctx, candidates(4))
	require.NoError(t, err)
	second, err := store.SaveOrUpdate(ctx, candidates(4))
	require.NoError(t, err)

	for i := range first {
		assert.Equal(t, first[i].ID, second[i].ID)
	}

	var count int
	require.NoError(t, database.Get(&count, "SELECT COUNT(*) FROM places"))
	assert.Equal(t, 4, count)
}

func TestSaveOrUpdateCollapsesDuplicateInput(t *testing.T) {
	database := setupTestDB(t)
	defer database.Close()

	store := NewPlaceStore(database, place.DefaultStaleAfter)

	in := candidates(3)
	in = append(in, in[0])

	saved, err := store.SaveOrUpdate(context.Background(), in)
	require.NoError(t, err)
	assert.Len(t, saved, 3)
}

func TestSaveOrUpdateRefreshesStaleEnrichedRows(t *testing.T) {
	database := setupTestDB(t)
	defer database.Close()

	clock := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	store := NewPlaceStore(database, place.DefaultStaleAfter).WithClock(func() time.Time { return clock })
	ctx := context.Background()

	in := candidates(2)
	in[0].Rating = utils.Ptr(3.1)
	in[0].PhotoRef = utils.Ptr("photo-old")
	in[0].Enriched = true
	original, err := store.SaveOrUpdate(ctx, in)
	require.NoError(t, err)

	// bump counters so we can check they survive the refresh
	_, err = database.Exec("UPDATE places SET win_count = 3, play_count = 7 WHERE id = ?", original[0].ID)
	require.NoError(t, err)

	t.Run("fresh rows are left alone", func(t *testing.T) {
		clock = clock.Add(24 * time.Hour)
		again := candidates(1)
		again[0].Rating = utils.Ptr(4.9)
		again[0].Enriched = true

		saved, err := store.SaveOrUpdate(ctx, again)
		require.NoError(t, err)
		assert.Equal(t, 3.1, *saved[0].Rating)
	})

	t.Run("stale rows without enrichment are left alone", func(t *testing.T) {
		clock = clock.Add(20 * 24 * time.Hour)
		again := candidates(1)
		again[0].Name = "Renamed"

		saved, err := store.SaveOrUpdate(ctx, again)
		require.NoError(t, err)
		assert.Equal(t, "Restaurant 1", saved[0].Name)
		assert.True(t, original[0].LastRefreshedAt.Equal(saved[0].LastRefreshedAt))
	})

	t.Run("stale enriched rows are merged", func(t *testing.T) {
		again := candidates(1)
		again[0].Name = "Renamed"
		again[0].Distance = 42
		again[0].Rating = utils.Ptr(4.6)
		again[0].RatingCount = utils.Ptr(88)
		again[0].Enriched = true

		saved, err := store.SaveOrUpdate(ctx, again)
		require.NoError(t, err)

		stored, err := store.GetPlace(ctx, saved[0].ID)
		require.NoError(t, err)
		assert.Equal(t, original[0].ID, stored.ID)
		assert.Equal(t, "Renamed", stored.Name)
		assert.Equal(t, 42, stored.Distance)
		assert.Equal(t, 4.6, *stored.Rating)
		assert.Equal(t, 88, *stored.RatingCount)
		assert.Equal(t, "photo-old", *stored.PhotoRef)
		assert.Equal(t, 3, stored.WinCount)
		assert.Equal(t, 7, stored.PlayCount)
		assert.True(t, stored.LastRefreshedAt.Equal(clock))
		assert.True(t, stored.CreatedAt.Equal(original[0].CreatedAt))
	})
}

func TestSaveOrUpdateConcurrentCallersConverge(t *testing.T) {
	database := setupTestDB(t)
	defer database.Close()

	store := NewPlaceStore(database, place.DefaultStaleAfter)
	ctx := context.Background()

	const callers = 6
	results := make([][]place.Place, callers)
	errs := make([]error, callers)

	var wg sync.WaitGroup
	start := make(chan struct{})
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			results[i], errs[i] = store.SaveOrUpdate(ctx, candidates(16))
		}(i)
	}
	close(start)
	wg.Wait()

	for i := 0; i < callers; i++ {
		require.NoError(t, errs[i], "caller %d", i)
		require.Len(t, results[i], 16)
		for j := range results[i] {
			assert.Equal(t, results[0][j].ID, results[i][j].ID, "caller %d row %d", i, j)
		}
	}

	var count int
	require.NoError(t, database.Get(&count, "SELECT COUNT(*) FROM places"))
	assert.Equal(t, 16, count)
}

func TestInsertOrRereadReturnsWinningRow(t *testing.T) {
	database := setupTestDB(t)
	defer database.Close()

	store := NewPlaceStore(database, place.DefaultStaleAfter)
	ctx := context.Background()

	winner, err := store.SaveOrUpdate(ctx, candidates(1))
	require.NoError(t, err)

	loser := candidates(1)[0]
	loser.ID = uuid.New()
	loser.CreatedAt = time.Now().UTC()
	loser.LastRefreshedAt = loser.CreatedAt

	got, err := store.insertOrReread(ctx, loser)
	require.NoError(t, err)
	assert.Equal(t, winner[0].ID, got.ID)
}

func TestFindByExternalIDsKeepsRequestOrder(t *testing.T) {
	database := setupTestDB(t)
	defer database.Close()

	store := NewPlaceStore(database, place.DefaultStaleAfter)
	ctx := context.Background()

	_, err := store.SaveOrUpdate(ctx, candidates(3))
	require.NoError(t, err)

	found, err := store.FindByExternalIDs(ctx, []string{"kakao-3", "missing", "kakao-1"})
	require.NoError(t, err)
	require.Len(t, found, 2)
	assert.Equal(t, "kakao-3", found[0].ExternalID)
	assert.Equal(t, "kakao-1", found[1].ExternalID)
}

func TestCounters(t *testing.T) {
	database := setupTestDB(t)
	defer database.Close()

	store := NewPlaceStore(database, place.DefaultStaleAfter)
	ctx := context.Background()

	saved, err := store.SaveOrUpdate(ctx, candidates(2))
	require.NoError(t, err)

	tx, err := database.BeginTxx(ctx, nil)
	require.NoError(t, err)
	require.NoError(t, store.IncrementPlayCountTx(ctx, tx, saved[0].ID, saved[1].ID))
	require.NoError(t, store.IncrementWinCountTx(ctx, tx, saved[1].ID))
	require.NoError(t, tx.Commit())

	byID, err := store.GetPlaces(ctx, []uuid.UUID{saved[0].ID, saved[1].ID, uuid.New()})
	require.NoError(t, err)
	require.Len(t, byID, 2)
	assert.Equal(t, 1, byID[saved[0].ID].PlayCount)
	assert.Equal(t, 0, byID[saved[0].ID].WinCount)
	assert.Equal(t, 1, byID[saved[1].ID].PlayCount)
	assert.Equal(t, 1, byID[saved[1].ID].WinCount)
}
