package place

import (
	"testing"
	"time"

	"github.com/AdamBeresnev/yumcup/internal/utils"
	"github.com/stretchr/testify/assert"
)

func TestIsStale(t *testing.T) {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name      string
		refreshed time.Time
		want      bool
	}{
		{"fresh", now.Add(-time.Hour), false},
		{"exactly at the boundary", now.Add(-DefaultStaleAfter), false},
		{"fifteen days old", now.Add(-15 * 24 * time.Hour), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := Place{LastRefreshedAt: tt.refreshed}
			assert.Equal(t, tt.want, p.IsStale(now, DefaultStaleAfter))
		})
	}
}

func TestMainCategory(t *testing.T) {
	assert.Equal(t, "한식", MainCategory("음식점 > 한식 > 육류,고기"))
	assert.Equal(t, "카페", MainCategory("음식점 > 카페"))
	assert.Equal(t, "음식점", MainCategory("음식점"))
	assert.Equal(t, "", MainCategory(""))
}

func TestMergeFreshKeepsIdentityAndCounters(t *testing.T) {
	created := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	now := created.Add(30 * 24 * time.Hour)

	existing := Place{
		ExternalID:      "k-1",
		Name:            "Old name",
		Rating:          utils.Ptr(3.9),
		PhotoRef:        utils.Ptr("old-photo"),
		WinCount:        4,
		PlayCount:       11,
		CreatedAt:       created,
		LastRefreshedAt: created,
	}
	incoming := Place{
		ExternalID: "k-1",
		Name:       "New name",
		Distance:   120,
		Rating:     utils.Ptr(4.4),
		WinCount:   0,
	}

	existing.MergeFresh(&incoming, now)

	assert.Equal(t, "New name", existing.Name)
	assert.Equal(t, 120, existing.Distance)
	assert.Equal(t, 4.4, *existing.Rating)
	assert.Equal(t, "old-photo", *existing.PhotoRef, "absent enrichment keeps the stored value")
	assert.Equal(t, 4, existing.WinCount)
	assert.Equal(t, 11, existing.PlayCount)
	assert.Equal(t, created, existing.CreatedAt)
	assert.Equal(t, now, existing.LastRefreshedAt)
}

func TestApply(t *testing.T) {
	var p Place
	p.Apply(nil)
	assert.True(t, p.Enriched)
	assert.Nil(t, p.Rating)

	var q Place
	q.Apply(&Enrichment{Rating: utils.Ptr(4.1), PriceLevel: utils.Ptr(PriceModerate)})
	assert.True(t, q.Enriched)
	assert.Equal(t, 4.1, *q.Rating)
	assert.Equal(t, "보통", q.PriceLevel.Description())
}

func TestDescribePrice(t *testing.T) {
	assert.Equal(t, NoPriceInfo, DescribePrice(nil))
	assert.Equal(t, "매우 비싼", DescribePrice(utils.Ptr(PriceVeryExpensive)))
	assert.Equal(t, NoPriceInfo, PriceLevel(9).Description())
}

func TestEnrichmentEmpty(t *testing.T) {
	var nilEnrichment *Enrichment
	assert.True(t, nilEnrichment.Empty())
	assert.True(t, (&Enrichment{}).Empty())
	assert.False(t, (&Enrichment{OpenNow: utils.Ptr(false)}).Empty())
}
