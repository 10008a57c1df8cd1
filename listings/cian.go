package listings

import (
	"context"
	"fmt"
	"math/rand"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"cian_scrooper/httputil"
	"cian_scrooper/models"
)

const (
	minPageDelay = 2 * time.Second
	maxPageDelay = 4 * time.Second
)

type CianProvider struct {
	client   *http.Client
	baseURL  string
	maxPages int

	// PageDelay returns the pause between result pages.
	PageDelay func() time.Duration
}

// NewCianProvider builds a provider. baseURL overrides the regional host and
// is used by tests; leave it empty in production.
func NewCianProvider(client *http.Client, baseURL string, maxPages int) *CianProvider {
	return &CianProvider{
		client:   client,
		baseURL:  baseURL,
		maxPages: maxPages,
		PageDelay: func() time.Duration {
			return minPageDelay + time.Duration(rand.Int63n(int64(maxPageDelay-minPageDelay)))
		},
	}
}

func (p *CianProvider) Fetch(ctx context.Context, filter models.ListingFilter) ([]models.Listing, error) {
	seen := make(map[string]bool)
	var all []models.Listing

	for page := 1; p.maxPages <= 0 || page <= p.maxPages; page++ {
		listings, err := p.fetchPage(ctx, filter, page)
		if err != nil {
			if len(all) == 0 {
				return nil, err
			}
			zap.L().Warn("stopping on page error", zap.Int("page", page), zap.Error(err))
			break
		}

		added := 0
		for _, l := range listings {
			if seen[l.URL] {
				continue
			}
			seen[l.URL] = true
			all = append(all, l)
			added++
		}

		zap.L().Info("listings page parsed",
			zap.Int("page", page),
			zap.Int("cards", len(listings)),
			zap.Int("new", added),
			zap.Int("total", len(all)),
		)

		// Past the last page the site repeats the final page.
		if added == 0 {
			break
		}

		if d := p.PageDelay(); d > 0 {
			select {
			case <-ctx.Done():
				return all, ctx.Err()
			case <-time.After(d):
			}
		}
	}

	return all, nil
}

func (p *CianProvider) fetchPage(ctx context.Context, filter models.ListingFilter, page int) ([]models.Listing, error) {
	pageURL := SearchURL(p.base(filter), filter, page)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, eris.Wrap(err, "create request")
	}
	httputil.SetBrowserHeaders(req)
	req.Header.Set("Accept", "text/html,application/xhtml+xml")

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, eris.Wrapf(err, "fetch page %d", page)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, eris.Errorf("page %d: unexpected status %d", page, resp.StatusCode)
	}

	listings, err := ParsePage(resp.Body)
	if err != nil {
		return nil, err
	}
	for i := range listings {
		listings[i].Location = filter.Location
		listings[i].DealType = filter.DealType
	}
	return listings, nil
}

func (p *CianProvider) base(filter models.ListingFilter) string {
	if p.baseURL != "" {
		return p.baseURL
	}
	sub := filter.Subdomain
	if sub == "" {
		sub = "www"
	}
	return fmt.Sprintf("https://%s.cian.ru/cat.php", sub)
}

// SearchURL builds the search-results URL for one page.
func SearchURL(base string, filter models.ListingFilter, page int) string {
	q := url.Values{}
	q.Set("engine_version", "2")
	q.Set("with_neighbors", "0")
	q.Set("offer_type", "flat")
	q.Set("p", strconv.Itoa(page))

	dealType := filter.DealType
	if dealType == "" {
		dealType = "sale"
	}
	q.Set("deal_type", dealType)
	if filter.RegionID != "" {
		q.Set("region", filter.RegionID)
	}
	for _, r := range filter.Rooms {
		if r == 0 {
			q.Set("room9", "1") // studio
			continue
		}
		q.Set(fmt.Sprintf("room%d", r), "1")
	}
	if filter.MinPrice > 0 {
		q.Set("minprice", strconv.FormatInt(filter.MinPrice, 10))
	}
	if filter.MaxPrice > 0 {
		q.Set("maxprice", strconv.FormatInt(filter.MaxPrice, 10))
	}
	if filter.MinFloor > 0 {
		q.Set("minfloor", strconv.Itoa(filter.MinFloor))
	}
	if filter.MaxFloor > 0 {
		q.Set("maxfloor", strconv.Itoa(filter.MaxFloor))
	}

	return base + "?" + q.Encode()
}
