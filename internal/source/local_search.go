package source

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/AdamBeresnev/yumcup/internal/geo"
	"github.com/AdamBeresnev/yumcup/internal/place"
	"github.com/AdamBeresnev/yumcup/internal/utils"
)

const (
	LocalSearchAPI = "local-search"

	// Restaurants in the upstream's category taxonomy
	restaurantCategory = "FD6"
	// The upstream caps page size at 15 and page number at 45
	PageSize = 15
	MaxPages = 45
)

type Query struct {
	Latitude  float64
	Longitude float64
	Radius    int
}

type Document struct {
	ID              string `json:"id"`
	PlaceName       string `json:"place_name"`
	CategoryName    string `json:"category_name"`
	Phone           string `json:"phone"`
	AddressName     string `json:"address_name"`
	RoadAddressName string `json:"road_address_name"`
	X               string `json:"x"`
	Y               string `json:"y"`
	PlaceURL        string `json:"place_url"`
	Distance        string `json:"distance"`
}

type pageMeta struct {
	TotalCount    int  `json:"total_count"`
	PageableCount int  `json:"pageable_count"`
	IsEnd         bool `json:"is_end"`
}

type pageResponse struct {
	Documents []Document `json:"documents"`
	Meta      pageMeta   `json:"meta"`
}

type Page struct {
	Number        int
	Documents     []Document
	TotalCount    int
	PageableCount int
	IsEnd         bool
}

type LocalSearch struct {
	client  Client
	baseURL string
	apiKey  string
}

func NewLocalSearch(client Client, baseURL, apiKey string) *LocalSearch {
	return &LocalSearch{
		client:  client,
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
	}
}

// SearchPage fetches one page of restaurants around q, 1-based.
func (s *LocalSearch) SearchPage(ctx context.Context, q Query, page int) (*Page, error) {
	params := url.Values{}
	params.Set("category_group_code", restaurantCategory)
	params.Set("x", strconv.FormatFloat(q.Longitude, 'f', -1, 64))
	params.Set("y", strconv.FormatFloat(q.Latitude, 'f', -1, 64))
	params.Set("radius", strconv.Itoa(q.Radius))
	params.Set("size", strconv.Itoa(PageSize))
	params.Set("page", strconv.Itoa(page))

	header := http.Header{}
	header.Set("Authorization", "KakaoAK "+s.apiKey)

	var resp pageResponse
	u := s.baseURL + "/v2/local/search/category.json?" + params.Encode()
	if err := s.client.GetJSON(ctx, u, header, &resp); err != nil {
		return nil, fmt.Errorf("local search page %d: %w", page, err)
	}

	return &Page{
		Number:        page,
		Documents:     resp.Documents,
		TotalCount:    resp.Meta.TotalCount,
		PageableCount: resp.Meta.PageableCount,
		IsEnd:         resp.Meta.IsEnd,
	}, nil
}

// ToPlace maps a search document onto an unsaved Place. The distance falls back to the
// great-circle distance from the query origin when the upstream leaves it blank.
func (d Document) ToPlace(q Query) place.Place {
	lat := utils.ParseFloatOr(d.Y, 0)
	lng := utils.ParseFloatOr(d.X, 0)

	distance, ok := utils.ParseIntOr(d.Distance, 0)
	if !ok && (lat != 0 || lng != 0) {
		distance = int(geo.DistanceMeters(q.Latitude, q.Longitude, lat, lng))
	}

	return place.Place{
		ExternalID:  d.ID,
		Name:        strings.TrimSpace(d.PlaceName),
		Category:    place.MainCategory(d.CategoryName),
		Distance:    distance,
		Latitude:    lat,
		Longitude:   lng,
		Address:     d.AddressName,
		RoadAddress: d.RoadAddressName,
		Phone:       d.Phone,
		PlaceURL:    d.PlaceURL,
	}
}
