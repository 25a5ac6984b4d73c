package place

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// DefaultStaleAfter is how long enrichment data is trusted before a rediscovery may overwrite it.
const DefaultStaleAfter = 14 * 24 * time.Hour

type Place struct {
	ID         uuid.UUID `db:"id"`
	ExternalID string    `db:"external_id"`

	Name        string  `db:"name"`
	Category    string  `db:"category"`
	Distance    int     `db:"distance"`
	Latitude    float64 `db:"latitude"`
	Longitude   float64 `db:"longitude"`
	Address     string  `db:"address"`
	RoadAddress string  `db:"road_address"`
	Phone       string  `db:"phone"`
	PlaceURL    string  `db:"place_url"`

	// Secondary metadata, nil when the lookup found nothing or never ran
	Rating      *float64    `db:"rating"`
	RatingCount *int        `db:"rating_count"`
	PriceLevel  *PriceLevel `db:"price_level"`
	OpenNow     *bool       `db:"open_now"`
	PhotoRef    *string     `db:"photo_ref"`

	WinCount  int `db:"win_count"`
	PlayCount int `db:"play_count"`

	LastRefreshedAt time.Time `db:"last_refreshed_at"`
	CreatedAt       time.Time `db:"created_at"`

	// Set by the discovery pipeline when the lookup succeeded for this copy. Not persisted.
	Enriched bool `db:"-"`
}

func (p *Place) IsStale(now time.Time, after time.Duration) bool {
	return now.Sub(p.LastRefreshedAt) > after
}

// Enrichment is what the secondary lookup contributes to a Place.
type Enrichment struct {
	Rating      *float64    `json:"rating,omitempty"`
	RatingCount *int        `json:"ratingCount,omitempty"`
	PriceLevel  *PriceLevel `json:"priceLevel,omitempty"`
	OpenNow     *bool       `json:"openNow,omitempty"`
	PhotoRef    *string     `json:"photoRef,omitempty"`
}

func (e *Enrichment) Empty() bool {
	return e == nil || (e.Rating == nil && e.RatingCount == nil && e.PriceLevel == nil && e.OpenNow == nil && e.PhotoRef == nil)
}

// Apply copies the enrichment onto p and marks it enriched. A nil enrichment still marks p,
// the lookup ran and found nothing.
func (p *Place) Apply(e *Enrichment) {
	p.Enriched = true
	if e == nil {
		return
	}
	p.Rating = e.Rating
	p.RatingCount = e.RatingCount
	p.PriceLevel = e.PriceLevel
	p.OpenNow = e.OpenNow
	p.PhotoRef = e.PhotoRef
}

// MergeFresh overwrites the mutable fields of p with incoming. Identity, counters and
// creation time stay untouched.
func (p *Place) MergeFresh(incoming *Place, now time.Time) {
	p.Name = incoming.Name
	p.Category = incoming.Category
	p.Distance = incoming.Distance
	p.Latitude = incoming.Latitude
	p.Longitude = incoming.Longitude
	p.Address = incoming.Address
	p.RoadAddress = incoming.RoadAddress
	p.Phone = incoming.Phone
	p.PlaceURL = incoming.PlaceURL

	if incoming.Rating != nil {
		p.Rating = incoming.Rating
	}
	if incoming.RatingCount != nil {
		p.RatingCount = incoming.RatingCount
	}
	if incoming.PriceLevel != nil {
		p.PriceLevel = incoming.PriceLevel
	}
	if incoming.OpenNow != nil {
		p.OpenNow = incoming.OpenNow
	}
	if incoming.PhotoRef != nil {
		p.PhotoRef = incoming.PhotoRef
	}
	p.LastRefreshedAt = now
}

// MainCategory picks the second segment of "음식점 > 한식 > 육류,고기", or the only one.
func MainCategory(categoryPath string) string {
	parts := strings.Split(categoryPath, " > ")
	if len(parts) > 1 {
		return strings.TrimSpace(parts[1])
	}
	return strings.TrimSpace(parts[0])
}
