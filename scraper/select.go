package scraper

import (
	"cian_scrooper/identity"
	"cian_scrooper/models"
)

// SelectListings keeps listings whose author type is allowed, drops repeated
// URLs and fills in missing ids from the URL. An empty allow list keeps every
// author type.
func SelectListings(listings []models.Listing, authorTypes []string) []models.Listing {
	allowed := make(map[string]bool, len(authorTypes))
	for _, t := range authorTypes {
		allowed[t] = true
	}

	seen := make(map[string]bool)
	var out []models.Listing
	for _, l := range listings {
		if l.URL == "" || seen[l.URL] {
			continue
		}
		if len(allowed) > 0 && !allowed[l.AuthorType] {
			continue
		}
		seen[l.URL] = true

		if l.ID == "" {
			l.ID, _ = identity.ListingID(l.URL)
		}
		out = append(out, l)
	}
	return out
}

func listingURLs(listings []models.Listing) []string {
	urls := make([]string, 0, len(listings))
	for _, l := range listings {
		urls = append(urls, l.URL)
	}
	return urls
}

func resolutionRequest(l models.Listing) models.ResolutionRequest {
	req := models.ResolutionRequest{
		ListingID:       l.ID,
		ListingURL:      l.URL,
		DirectPhoneHint: l.DirectPhone,
	}
	if l.BlockID != nil {
		id := *l.BlockID
		req.BlockIDHint = &id
	}
	return req
}
