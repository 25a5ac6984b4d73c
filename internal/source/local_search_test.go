package source

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const searchPageJSON = `{
  "documents": [
    {"id": "26338954", "place_name": "을지면옥", "category_name": "음식점 > 한식 > 냉면", "phone": "02-2266-7052",
     "address_name": "서울 중구 입정동 177", "road_address_name": "서울 중구 충무로14길 2-1",
     "x": "126.99117", "y": "37.56669", "place_url": "http://place.map.kakao.com/26338954", "distance": "418"},
    {"id": "8169466", "place_name": "우래옥", "category_name": "음식점", "phone": "",
     "address_name": "서울 중구 주교동 118-1", "road_address_name": "",
     "x": "126.99880", "y": "37.56833", "place_url": "http://place.map.kakao.com/8169466", "distance": ""}
  ],
  "meta": {"total_count": 2, "pageable_count": 2, "is_end": true}
}`

func TestSearchPage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v2/local/search/category.json", r.URL.Path)
		assert.Equal(t, "KakaoAK test-key", r.Header.Get("Authorization"))

		q := r.URL.Query()
		assert.Equal(t, "FD6", q.Get("category_group_code"))
		assert.Equal(t, "126.9918", q.Get("x"))
		assert.Equal(t, "37.5665", q.Get("y"))
		assert.Equal(t, "500", q.Get("radius"))
		assert.Equal(t, "15", q.Get("size"))
		assert.Equal(t, "2", q.Get("page"))

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(searchPageJSON))
	}))
	defer srv.Close()

	ls := NewLocalSearch(NewHTTPClient(LocalSearchAPI, 5*time.Second), srv.URL+"/", "test-key")
	q := Query{Latitude: 37.5665, Longitude: 126.9918, Radius: 500}

	page, err := ls.SearchPage(context.Background(), q, 2)
	require.NoError(t, err)
	assert.Equal(t, 2, page.Number)
	assert.True(t, page.IsEnd)
	assert.Equal(t, 2, page.TotalCount)
	require.Len(t, page.Documents, 2)

	p := page.Documents[0].ToPlace(q)
	assert.Equal(t, "26338954", p.ExternalID)
	assert.Equal(t, "을지면옥", p.Name)
	assert.Equal(t, "한식", p.Category)
	assert.Equal(t, 418, p.Distance)
	assert.InDelta(t, 37.56669, p.Latitude, 1e-9)
	assert.Equal(t, "서울 중구 충무로14길 2-1", p.RoadAddress)

	t.Run("blank distance is computed from coordinates", func(t *testing.T) {
		p := page.Documents[1].ToPlace(q)
		assert.Equal(t, "음식점", p.Category)
		assert.InDelta(t, 650, p.Distance, 30)
	})
}

func TestSearchPageUpstreamError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"errorType":"AccessDeniedError"}`, http.StatusUnauthorized)
	}))
	defer srv.Close()

	ls := NewLocalSearch(NewHTTPClient(LocalSearchAPI, time.Second), srv.URL, "bad")
	_, err := ls.SearchPage(context.Background(), Query{Latitude: 37.5, Longitude: 127, Radius: 100}, 1)

	var statusErr *StatusError
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, http.StatusUnauthorized, statusErr.StatusCode)
}
