// Package listings collects classified-ad cards for a region and filter.
package listings

import (
	"context"

	"cian_scrooper/models"
)

// Provider returns the listings matching a filter.
type Provider interface {
	Fetch(ctx context.Context, filter models.ListingFilter) ([]models.Listing, error)
}
