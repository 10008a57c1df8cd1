package calltracking

import (
	"fmt"
	"net/http"
)

const (
	defaultPlatformType     = "webDesktop"
	defaultPageType         = "offerCard"
	defaultPlaceType        = "ContactsAside"
	defaultAnalyticClientID = "G12.12321.123121D"
)

// Session carries the headers and payload fields a real browser sends with the
// phone request. A live one is captured by visiting a listing; DefaultSession
// is used when that is not possible.
type Session struct {
	Cookie  string
	Referer string
	Origin  string

	BlockID          int64
	PlatformType     string
	PageType         string
	PlaceType        string
	RefererURL       string
	AnalyticClientID string
	UTM              string
}

func DefaultSession(subdomain string, blockID int64) Session {
	if subdomain == "" {
		subdomain = "www"
	}
	origin := fmt.Sprintf("https://%s.cian.ru", subdomain)
	return Session{
		Referer:          origin + "/",
		Origin:           origin,
		BlockID:          blockID,
		PlatformType:     defaultPlatformType,
		PageType:         defaultPageType,
		PlaceType:        defaultPlaceType,
		AnalyticClientID: defaultAnalyticClientID,
	}
}

// Merge overlays the non-empty fields of captured onto s.
func (s Session) Merge(captured Session) Session {
	pick := func(dst *string, v string) {
		if v != "" {
			*dst = v
		}
	}
	pick(&s.Cookie, captured.Cookie)
	pick(&s.Referer, captured.Referer)
	pick(&s.Origin, captured.Origin)
	pick(&s.PlatformType, captured.PlatformType)
	pick(&s.PageType, captured.PageType)
	pick(&s.PlaceType, captured.PlaceType)
	pick(&s.RefererURL, captured.RefererURL)
	pick(&s.AnalyticClientID, captured.AnalyticClientID)
	pick(&s.UTM, captured.UTM)
	if captured.BlockID > 0 {
		s.BlockID = captured.BlockID
	}
	return s
}

func (s Session) apply(h http.Header) {
	h.Set("Content-Type", "application/json")
	if s.Cookie != "" {
		h.Set("Cookie", s.Cookie)
	}
	if s.Referer != "" {
		h.Set("Referer", s.Referer)
	}
	if s.Origin != "" {
		h.Set("Origin", s.Origin)
	}
}
