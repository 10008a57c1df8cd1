package identity

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestListingID(t *testing.T) {
	tests := []struct {
		url  string
		want string
		ok   bool
	}{
		{"https://tyumen.cian.ru/sale/flat/307997699/", "307997699", true},
		{"https://www.cian.ru/sale/flat/307997699", "307997699", true},
		{"https://www.cian.ru/sale/flat/307997699/?from=map", "307997699", true},
		{` "https://spb.cian.ru/sale/flat/42/" `, "42", true},
		{"https://www.cian.ru/sale/flat/", "", false},
	}
	for _, tt := range tests {
		got, ok := ListingID(tt.url)
		assert.Equal(t, tt.ok, ok, tt.url)
		assert.Equal(t, tt.want, got, tt.url)
	}
}

func TestSubdomain(t *testing.T) {
	assert.Equal(t, "tyumen", Subdomain("https://tyumen.cian.ru/sale/flat/1/"))
	assert.Equal(t, "www", Subdomain("https://www.cian.ru/sale/flat/1/"))
	assert.Equal(t, "www", Subdomain("https://example.com/flat/1/"))
}

func TestLocationURL(t *testing.T) {
	assert.Equal(t, "https://tyumen.cian.ru/sale/flat/307997699/", LocationURL("tyumen", "307997699"))
	assert.Equal(t, "https://www.cian.ru/sale/flat/1/", LocationURL("", "1"))
}

func TestAbsoluteURL(t *testing.T) {
	assert.Equal(t, "https://www.cian.ru/sale/flat/1/", AbsoluteURL("/sale/flat/1/"))
	assert.Equal(t, "https://www.cian.ru/sale/flat/1/", AbsoluteURL("sale/flat/1/"))
	assert.Equal(t, "https://tyumen.cian.ru/sale/flat/1/", AbsoluteURL("https://tyumen.cian.ru/sale/flat/1/"))
	assert.Equal(t, "https://tyumen.cian.ru/x", AbsoluteURL("//tyumen.cian.ru/x"))
}
