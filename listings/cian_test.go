package listings

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cian_scrooper/models"
)

func readFixture(t *testing.T) []byte {
	t.Helper()
	data, err := os.ReadFile(filepath.Join("testdata", "search_page.html"))
	require.NoError(t, err)
	return data
}

func TestParsePage(t *testing.T) {
	f, err := os.Open(filepath.Join("testdata", "search_page.html"))
	require.NoError(t, err)
	defer f.Close()

	got, err := ParsePage(f)
	require.NoError(t, err)
	require.Len(t, got, 3)

	dev := got[0]
	assert.Equal(t, "307997699", dev.ID)
	assert.Equal(t, models.AuthorDeveloper, dev.AuthorType)
	assert.Equal(t, int64(6500000), dev.Price)
	assert.Equal(t, 5, dev.Floor)
	assert.Equal(t, 17, dev.FloorsCount)
	assert.Equal(t, 2, dev.Rooms)
	assert.Equal(t, "+79221234567", dev.DirectPhone)
	require.NotNil(t, dev.BlockID)
	assert.Equal(t, int64(13319), *dev.BlockID)

	agency := got[1]
	assert.Equal(t, models.AuthorRealEstateAgent, agency.AuthorType)
	assert.Equal(t, 3, agency.Floor)
	assert.Nil(t, agency.BlockID)
	assert.Empty(t, agency.DirectPhone)

	owner := got[2]
	assert.Equal(t, "https://www.cian.ru/sale/flat/308000002/", owner.URL)
	assert.Equal(t, models.AuthorHomeowner, owner.AuthorType)
}

func TestAuthorType(t *testing.T) {
	assert.Equal(t, models.AuthorDeveloper, AuthorType("ЗАСТРОЙЩИК"))
	assert.Equal(t, models.AuthorRealEstateAgent, AuthorType("Риелтор Иван"))
	assert.Equal(t, models.AuthorUnknown, AuthorType(""))
}

func TestSearchURL(t *testing.T) {
	raw := SearchURL("https://tyumen.cian.ru/cat.php", models.ListingFilter{
		RegionID: "4827",
		Rooms:    []int{1, 2, 0},
		MinPrice: 1000000,
		MaxFloor: 10,
	}, 3)

	u, err := url.Parse(raw)
	require.NoError(t, err)
	q := u.Query()
	assert.Equal(t, "sale", q.Get("deal_type"))
	assert.Equal(t, "flat", q.Get("offer_type"))
	assert.Equal(t, "4827", q.Get("region"))
	assert.Equal(t, "3", q.Get("p"))
	assert.Equal(t, "1", q.Get("room1"))
	assert.Equal(t, "1", q.Get("room2"))
	assert.Equal(t, "1", q.Get("room9"))
	assert.Equal(t, "1000000", q.Get("minprice"))
	assert.Equal(t, "10", q.Get("maxfloor"))
	assert.Empty(t, q.Get("maxprice"))
}

func TestFetch_StopsWhenPageRepeats(t *testing.T) {
	page := readFixture(t)
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		assert.Equal(t, "4827", r.URL.Query().Get("region"))
		w.Write(page)
	}))
	defer srv.Close()

	p := NewCianProvider(srv.Client(), srv.URL, 0)
	p.PageDelay = func() time.Duration { return 0 }

	got, err := p.Fetch(context.Background(), models.ListingFilter{Location: "Тюмень", RegionID: "4827", DealType: "sale"})
	require.NoError(t, err)
	assert.Len(t, got, 3)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
	assert.Equal(t, "Тюмень", got[0].Location)
	assert.Equal(t, "sale", got[0].DealType)
}

func TestFetch_MaxPages(t *testing.T) {
	page := readFixture(t)
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.Write(page)
	}))
	defer srv.Close()

	p := NewCianProvider(srv.Client(), srv.URL, 1)
	p.PageDelay = func() time.Duration { return 0 }

	got, err := p.Fetch(context.Background(), models.ListingFilter{})
	require.NoError(t, err)
	assert.Len(t, got, 3)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestFetch_FirstPageErrorReturned(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	p := NewCianProvider(srv.Client(), srv.URL, 0)
	_, err := p.Fetch(context.Background(), models.ListingFilter{})
	assert.Error(t, err)
}
