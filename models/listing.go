package models

// Author types as reported on listing cards.
const (
	AuthorDeveloper       = "developer"
	AuthorRealEstateAgent = "real_estate_agent"
	AuthorHomeowner       = "homeowner"
	AuthorUnknown         = "unknown"
)

// Listing is one classified ad as persisted in regions.json.
type Listing struct {
	ID          string `json:"id"`
	URL         string `json:"url"`
	AuthorType  string `json:"author_type"`
	BlockID     *int64 `json:"blockId,omitempty"`
	DirectPhone string `json:"directPhone,omitempty"`
	Location    string `json:"location,omitempty"`
	DealType    string `json:"deal_type,omitempty"`
	Title       string `json:"title,omitempty"`
	Price       int64  `json:"price,omitempty"`
	Floor       int    `json:"floor,omitempty"`
	FloorsCount int    `json:"floors_count,omitempty"`
	Rooms       int    `json:"rooms_count,omitempty"`
}

// ListingFilter is the search criteria handed to a listings provider.
type ListingFilter struct {
	Location  string
	RegionID  string
	Subdomain string
	DealType  string
	Rooms     []int
	MinFloor  int
	MaxFloor  int
	MinPrice  int64
	MaxPrice  int64
}
