package scraper

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cian_scrooper/models"
)

func TestSelectListings(t *testing.T) {
	in := []models.Listing{
		{URL: "https://tyumen.cian.ru/sale/flat/100/", AuthorType: models.AuthorDeveloper},
		{ID: "200", URL: "https://tyumen.cian.ru/sale/flat/200/", AuthorType: models.AuthorHomeowner},
		{ID: "100", URL: "https://tyumen.cian.ru/sale/flat/100/", AuthorType: models.AuthorDeveloper},
		{ID: "300", URL: "https://tyumen.cian.ru/sale/flat/300/", AuthorType: models.AuthorDeveloper},
		{ID: "400", AuthorType: models.AuthorDeveloper},
	}

	got := SelectListings(in, []string{models.AuthorDeveloper})
	require.Len(t, got, 2)
	assert.Equal(t, "100", got[0].ID)
	assert.Equal(t, "300", got[1].ID)

	all := SelectListings(in, nil)
	assert.Len(t, all, 3)
}

func TestResolutionRequest_CopiesHints(t *testing.T) {
	block := int64(13319)
	l := models.Listing{ID: "1", URL: "https://tyumen.cian.ru/sale/flat/1/", BlockID: &block, DirectPhone: "+79991234567"}

	req := resolutionRequest(l)
	block = 1

	require.NotNil(t, req.BlockIDHint)
	assert.Equal(t, int64(13319), *req.BlockIDHint)
	assert.Equal(t, "+79991234567", req.DirectPhoneHint)
	assert.Equal(t, l.URL, req.ListingURL)
}
