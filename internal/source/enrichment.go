package source

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/AdamBeresnev/yumcup/internal/apperr"
	"github.com/AdamBeresnev/yumcup/internal/place"
	"github.com/AdamBeresnev/yumcup/internal/utils"
)

const (
	EnrichmentAPI = "enrichment"

	placeFields   = "place_id,name,rating,user_ratings_total,photos,price_level,opening_hours/open_now"
	maxPhotoWidth = 400
)

type candidate struct {
	PlaceID          string   `json:"place_id"`
	Name             string   `json:"name"`
	Rating           *float64 `json:"rating"`
	UserRatingsTotal *int     `json:"user_ratings_total"`
	PriceLevel       *int     `json:"price_level"`
	Photos           []struct {
		PhotoReference string `json:"photo_reference"`
	} `json:"photos"`
	OpeningHours *struct {
		OpenNow *bool `json:"open_now"`
	} `json:"opening_hours"`
}

type findPlaceResponse struct {
	Candidates   []candidate `json:"candidates"`
	Status       string      `json:"status"`
	ErrorMessage string      `json:"error_message"`
}

type Enrichment struct {
	client  Client
	baseURL string
	apiKey  string
}

func NewEnrichment(client Client, baseURL, apiKey string) *Enrichment {
	return &Enrichment{
		client:  client,
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
	}
}

// Lookup finds secondary metadata for p by name near its coordinates. A nil result with a nil
// error means the upstream knows nothing about the place.
func (e *Enrichment) Lookup(ctx context.Context, p place.Place) (*place.Enrichment, error) {
	params := url.Values{}
	params.Set("input", p.Name)
	params.Set("inputtype", "textquery")
	params.Set("locationbias", fmt.Sprintf("circle:100@%f,%f", p.Latitude, p.Longitude))
	params.Set("fields", placeFields)
	params.Set("key", e.apiKey)

	var resp findPlaceResponse
	u := e.baseURL + "/maps/api/place/findplacefromtext/json?" + params.Encode()
	if err := e.client.GetJSON(ctx, u, nil, &resp); err != nil {
		return nil, fmt.Errorf("lookup %s: %w", p.ExternalID, err)
	}

	switch resp.Status {
	case "OK", "":
	case "ZERO_RESULTS":
		return nil, nil
	default:
		return nil, &apperr.ExternalAPIError{API: EnrichmentAPI, Err: fmt.Errorf("lookup %s: status %s: %s", p.ExternalID, resp.Status, resp.ErrorMessage)}
	}
	if len(resp.Candidates) == 0 {
		return nil, nil
	}

	c := resp.Candidates[0]
	out := &place.Enrichment{
		Rating:      c.Rating,
		RatingCount: c.UserRatingsTotal,
	}
	if c.PriceLevel != nil {
		if lvl := place.PriceLevel(*c.PriceLevel); lvl.Valid() {
			out.PriceLevel = utils.Ptr(lvl)
		}
	}
	if c.OpeningHours != nil {
		out.OpenNow = c.OpeningHours.OpenNow
	}
	if len(c.Photos) > 0 {
		out.PhotoRef = utils.StringOrNil(c.Photos[0].PhotoReference)
	}
	return out, nil
}

// PhotoURL turns a stored photo reference into a fetchable image URL.
func (e *Enrichment) PhotoURL(ref *string) *string {
	if utils.OrZero(ref) == "" {
		return nil
	}
	return utils.Ptr(fmt.Sprintf("%s/maps/api/place/photo?maxwidth=%d&photo_reference=%s&key=%s",
		e.baseURL, maxPhotoWidth, url.QueryEscape(*ref), url.QueryEscape(e.apiKey)))
}
