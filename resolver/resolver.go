// Package resolver turns a listing into a phone number by trying, in order,
// the phone shipped with the listing, the call-tracking API and a headless
// browser visit.
package resolver

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"cian_scrooper/calltracking"
	"cian_scrooper/identity"
	"cian_scrooper/models"
	"cian_scrooper/phone"
)

// PhoneFetcher is the call-tracking API strategy.
type PhoneFetcher interface {
	FetchPhone(ctx context.Context, listingID, locationURL string, blockID int64) (calltracking.PhoneResponse, int, error)
	DefaultBlockID() int64
}

// Extractor is the browser strategy.
type Extractor interface {
	Extract(ctx context.Context, listingURL string) (Candidate, error)
}

type Options struct {
	// BrowserEnabled allows the browser strategy to run after the API.
	BrowserEnabled bool
	// SkipAPI goes straight from the direct hint to the browser.
	SkipAPI bool
	// Subdomain is used for the API location URL when the listing URL has none.
	Subdomain string
}

type Resolver struct {
	api     PhoneFetcher
	browser Extractor
	opts    Options
}

func New(api PhoneFetcher, browser Extractor, opts Options) *Resolver {
	return &Resolver{api: api, browser: browser, opts: opts}
}

// Resolve never returns an error: every failure is a Failed result.
func (r *Resolver) Resolve(ctx context.Context, req models.ResolutionRequest) models.ResolutionResult {
	log := zap.L().With(zap.String("listing_id", req.ListingID))

	if hint := strings.TrimSpace(req.DirectPhoneHint); hint != "" {
		log.Debug("using direct phone")
		return models.Resolved(phone.Normalize(hint), phone.Digits(hint), models.SourceDirect, "direct_from_data")
	}

	apiRan := false
	if blockID, ok := r.apiBlockID(req); ok {
		apiRan = true
		resp, attempts, err := r.api.FetchPhone(ctx, req.ListingID, r.locationURL(req), blockID)
		if err == nil {
			raw := resp.NotFormattedPhone
			if phone.Digits(raw) == "" {
				raw = resp.Phone
			}
			log.Info("phone from api", zap.Int("attempts", attempts))
			return models.Resolved(phone.Normalize(resp.Phone), phone.Digits(raw), models.SourceAPI, "api")
		}
		log.Warn("api strategy failed", zap.Int("attempts", attempts), zap.Error(err))
	}

	if ctx.Err() != nil || !r.opts.BrowserEnabled || r.browser == nil {
		if apiRan {
			return models.Failed(models.FailAPIExhausted)
		}
		return models.Failed(models.FailNoHint)
	}

	cand, err := r.browser.Extract(ctx, req.ListingURL)
	if err != nil {
		log.Warn("browser strategy failed", zap.Error(err))
		return models.Failed(models.FailBrowserExtractionFailed)
	}
	log.Info("phone from browser", zap.String("method", cand.Method))
	return models.Resolved(phone.Normalize(cand.Raw), phone.Digits(cand.Raw), models.SourceBrowser, cand.Method)
}

func (r *Resolver) apiBlockID(req models.ResolutionRequest) (int64, bool) {
	if r.opts.SkipAPI || r.api == nil {
		return 0, false
	}
	if req.BlockIDHint != nil && *req.BlockIDHint > 0 {
		return *req.BlockIDHint, true
	}
	if id := r.api.DefaultBlockID(); id > 0 {
		return id, true
	}
	return 0, false
}

func (r *Resolver) locationURL(req models.ResolutionRequest) string {
	sub := r.opts.Subdomain
	if strings.Contains(req.ListingURL, ".cian.ru") {
		sub = identity.Subdomain(req.ListingURL)
	}
	return identity.LocationURL(sub, req.ListingID)
}
