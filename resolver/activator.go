package resolver

import (
	"context"
	"encoding/json"
	"strings"
	"sync"

	"github.com/playwright-community/playwright-go"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"cian_scrooper/calltracking"
)

// ErrNotCaptured means the page never issued the phone request.
var ErrNotCaptured = eris.New("phone request not intercepted")

// Activator captures a live call-tracking session by letting a real page
// issue the phone request and recording its headers and body.
type Activator struct {
	browser *BrowserExtractor
	apiURL  string
}

func NewActivator(browser *BrowserExtractor, apiURL string) *Activator {
	if apiURL == "" {
		apiURL = calltracking.DefaultURL
	}
	return &Activator{browser: browser, apiURL: apiURL}
}

func (a *Activator) Activate(ctx context.Context, listingURL string) (calltracking.Session, error) {
	page, cleanup, err := a.browser.newPage(ctx)
	if err != nil {
		return calltracking.Session{}, err
	}
	defer cleanup()

	var (
		mu       sync.Mutex
		captured *calltracking.Session
	)
	page.OnRequest(func(req playwright.Request) {
		if req.Method() != "POST" || !strings.HasPrefix(req.URL(), a.apiURL) {
			return
		}
		body, err := req.PostData()
		if err != nil {
			return
		}
		s, err := ParseCapturedSession(req.Headers(), []byte(body))
		if err != nil {
			zap.L().Debug("intercepted phone request unreadable", zap.Error(err))
			return
		}
		mu.Lock()
		captured = &s
		mu.Unlock()
		zap.L().Info("intercepted phone request", zap.String("url", req.URL()))
	})

	if err := a.browser.open(page, listingURL); err != nil {
		return calltracking.Session{}, err
	}
	if how, ok := revealContacts(page); ok {
		zap.L().Debug("contacts revealed", zap.String("via", how))
	}
	waitForPhone(page, 10000)
	page.WaitForTimeout(5000)

	mu.Lock()
	defer mu.Unlock()
	if captured == nil {
		return calltracking.Session{}, ErrNotCaptured
	}
	return *captured, nil
}

// ParseCapturedSession reads headers (lowercase keys) and the JSON body of an
// intercepted phone request.
func ParseCapturedSession(headers map[string]string, body []byte) (calltracking.Session, error) {
	var payload struct {
		BlockID      json.Number `json:"blockId"`
		PlatformType string      `json:"platformType"`
		PageType     string      `json:"pageType"`
		PlaceType    string      `json:"placeType"`
		RefererURL   string      `json:"refererUrl"`
		UTM          string      `json:"utm"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return calltracking.Session{}, eris.Wrap(err, "decode intercepted payload")
	}

	s := calltracking.Session{
		Cookie:       headers["cookie"],
		Referer:      headers["referer"],
		Origin:       headers["origin"],
		PlatformType: payload.PlatformType,
		PageType:     payload.PageType,
		PlaceType:    payload.PlaceType,
		RefererURL:   payload.RefererURL,
		UTM:          payload.UTM,
	}
	if id, err := payload.BlockID.Int64(); err == nil {
		s.BlockID = id
	}
	return s, nil
}
