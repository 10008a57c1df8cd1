package calltracking

import (
	"net/url"
	"strconv"

	"github.com/rotisserie/eris"
)

// PhoneRequest is the body of the call-tracking phone lookup.
type PhoneRequest struct {
	AnnouncementID   int64  `json:"announcementId"`
	LocationURL      string `json:"locationUrl"`
	BlockID          int64  `json:"blockId"`
	PlatformType     string `json:"platformType"`
	PageType         string `json:"pageType"`
	PlaceType        string `json:"placeType"`
	RefererURL       string `json:"refererUrl"`
	AnalyticClientID string `json:"analyticClientId"`
	UTM              string `json:"utm"`
}

type PhoneResponse struct {
	Phone             string `json:"phone"`
	NotFormattedPhone string `json:"notFormattedPhone"`
}

// NewPhoneRequest builds a request from a session. listingID must be numeric.
func NewPhoneRequest(s Session, listingID, locationURL string, blockID int64) (PhoneRequest, error) {
	id, err := strconv.ParseInt(listingID, 10, 64)
	if err != nil {
		return PhoneRequest{}, eris.Wrapf(ErrInvalidRequest, "listing id %q is not numeric", listingID)
	}
	if blockID <= 0 {
		blockID = s.BlockID
	}

	req := PhoneRequest{
		AnnouncementID:   id,
		LocationURL:      locationURL,
		BlockID:          blockID,
		PlatformType:     s.PlatformType,
		PageType:         s.PageType,
		PlaceType:        s.PlaceType,
		RefererURL:       s.RefererURL,
		AnalyticClientID: s.AnalyticClientID,
		UTM:              s.UTM,
	}
	return req, req.Validate()
}

func (r PhoneRequest) Validate() error {
	if r.AnnouncementID <= 0 {
		return eris.Wrap(ErrInvalidRequest, "announcementId must be positive")
	}
	if r.BlockID <= 0 {
		return eris.Wrap(ErrInvalidRequest, "blockId must be positive")
	}
	u, err := url.Parse(r.LocationURL)
	if err != nil || !u.IsAbs() {
		return eris.Wrapf(ErrInvalidRequest, "locationUrl %q is not absolute", r.LocationURL)
	}
	if r.PlatformType == "" || r.PageType == "" || r.PlaceType == "" {
		return eris.Wrap(ErrInvalidRequest, "platformType, pageType and placeType are required")
	}
	return nil
}
