// Package calltracking talks to the dynamic call-tracking endpoint that
// hands out the phone number behind a listing's "show phone" button.
package calltracking

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"cian_scrooper/httputil"
)

const DefaultURL = "https://api.cian.ru/newbuilding-dynamic-calltracking/v1/get-dynamic-phone"

type Options struct {
	URL         string
	MaxAttempts int
	RetryDelay  time.Duration
}

type Client struct {
	url    string
	http   *http.Client
	policy httputil.RetryPolicy

	mu      sync.RWMutex
	session Session
}

func NewClient(httpClient *http.Client, opts Options, session Session) *Client {
	if opts.URL == "" {
		opts.URL = DefaultURL
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = 6
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 15 * time.Second}
	}
	return &Client{
		url:     opts.URL,
		http:    httpClient,
		policy:  httputil.RetryPolicy{MaxAttempts: opts.MaxAttempts, Delay: opts.RetryDelay},
		session: session,
	}
}

func (c *Client) Session() Session {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.session
}

// SetSession replaces the session used for subsequent requests.
func (c *Client) SetSession(s Session) {
	c.mu.Lock()
	c.session = s
	c.mu.Unlock()
}

// DefaultBlockID is the block id used when a listing carries none.
func (c *Client) DefaultBlockID() int64 {
	return c.Session().BlockID
}

// FetchPhone asks the endpoint for the listing's phone, retrying on any
// failure. It returns the first response with a non-empty phone and the
// number of attempts made.
func (c *Client) FetchPhone(ctx context.Context, listingID, locationURL string, blockID int64) (PhoneResponse, int, error) {
	session := c.Session()
	req, err := NewPhoneRequest(session, listingID, locationURL, blockID)
	if err != nil {
		return PhoneResponse{}, 0, err
	}
	body, err := json.Marshal(req)
	if err != nil {
		return PhoneResponse{}, 0, eris.Wrap(err, "marshal phone request")
	}

	policy := c.policy
	policy.OnRetry = httputil.RetryLogger("calltracking.FetchPhone", zap.String("listing_id", listingID))

	var resp PhoneResponse
	attempts, err := httputil.Retry(ctx, policy, func(ctx context.Context, attempt int) error {
		r, err := c.post(ctx, session, body)
		if err != nil {
			return err
		}
		resp = r
		return nil
	})
	if err != nil {
		zap.L().Warn("phone api exhausted",
			zap.String("listing_id", listingID),
			zap.Int("attempts", attempts),
			zap.Error(err),
		)
		return PhoneResponse{}, attempts, err
	}
	return resp, attempts, nil
}

func (c *Client) post(ctx context.Context, session Session, body []byte) (PhoneResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return PhoneResponse{}, eris.Wrap(err, "build request")
	}
	httputil.SetBrowserHeaders(req)
	session.apply(req.Header)

	res, err := c.http.Do(req)
	if err != nil {
		return PhoneResponse{}, eris.Wrap(err, "post phone request")
	}
	defer res.Body.Close()

	data, err := io.ReadAll(res.Body)
	if err != nil {
		return PhoneResponse{}, eris.Wrap(err, "read response")
	}
	if res.StatusCode < 200 || res.StatusCode > 299 {
		return PhoneResponse{}, eris.Wrapf(ErrBadStatus, "status %d", res.StatusCode)
	}

	var out PhoneResponse
	if err := json.Unmarshal(data, &out); err != nil {
		return PhoneResponse{}, eris.Wrap(ErrInvalidJSON, err.Error())
	}
	if strings.TrimSpace(out.Phone) == "" {
		return PhoneResponse{}, ErrEmptyPhone
	}
	return out, nil
}
