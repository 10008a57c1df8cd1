package calltracking

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(url string) *Client {
	return NewClient(&http.Client{Timeout: time.Second},
		Options{URL: url, MaxAttempts: 6, RetryDelay: time.Millisecond},
		DefaultSession("tyumen", 13319))
}

func TestFetchPhone_SucceedsOnThirdAttempt(t *testing.T) {
	var calls int32
	var got PhoneRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(&calls, 1)
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.Equal(t, "https://tyumen.cian.ru", r.Header.Get("Origin"))
		if n < 3 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Write([]byte(`{"phone":"+79001234567","notFormattedPhone":"79001234567"}`))
	}))
	defer srv.Close()

	resp, attempts, err := newTestClient(srv.URL).FetchPhone(context.Background(),
		"307997699", "https://tyumen.cian.ru/sale/flat/307997699/", 0)
	require.NoError(t, err)
	assert.Equal(t, 3, attempts)
	assert.Equal(t, "+79001234567", resp.Phone)

	assert.Equal(t, int64(307997699), got.AnnouncementID)
	assert.Equal(t, int64(13319), got.BlockID)
	assert.Equal(t, "webDesktop", got.PlatformType)
	assert.Equal(t, "offerCard", got.PageType)
	assert.Equal(t, "ContactsAside", got.PlaceType)
}

func TestFetchPhone_ExactlySixAttempts(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	_, attempts, err := newTestClient(srv.URL).FetchPhone(context.Background(),
		"1", "https://www.cian.ru/sale/flat/1/", 5)
	assert.True(t, eris.Is(err, ErrBadStatus))
	assert.Equal(t, 6, attempts)
	assert.Equal(t, int32(6), atomic.LoadInt32(&calls))
}

func TestFetchPhone_InvalidJSONAndEmptyPhoneRetried(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch atomic.AddInt32(&calls, 1) {
		case 1:
			w.Write([]byte(`<html>captcha</html>`))
		case 2:
			w.Write([]byte(`{"phone":""}`))
		default:
			w.Write([]byte(`{"phone":"8 (900) 123-45-67"}`))
		}
	}))
	defer srv.Close()

	resp, attempts, err := newTestClient(srv.URL).FetchPhone(context.Background(),
		"2", "https://www.cian.ru/sale/flat/2/", 5)
	require.NoError(t, err)
	assert.Equal(t, 3, attempts)
	assert.Equal(t, "8 (900) 123-45-67", resp.Phone)
}

func TestFetchPhone_LastErrorReported(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"phone":null}`))
	}))
	defer srv.Close()

	_, attempts, err := newTestClient(srv.URL).FetchPhone(context.Background(),
		"3", "https://www.cian.ru/sale/flat/3/", 5)
	assert.ErrorIs(t, err, ErrEmptyPhone)
	assert.Equal(t, 6, attempts)
}

func TestFetchPhone_InvalidRequestNotSent(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
	}))
	defer srv.Close()

	c := NewClient(nil, Options{URL: srv.URL}, DefaultSession("www", 0))

	_, attempts, err := c.FetchPhone(context.Background(), "abc", "https://www.cian.ru/sale/flat/abc/", 5)
	assert.True(t, eris.Is(err, ErrInvalidRequest))
	assert.Zero(t, attempts)

	_, _, err = c.FetchPhone(context.Background(), "4", "https://www.cian.ru/sale/flat/4/", 0)
	assert.True(t, eris.Is(err, ErrInvalidRequest), "no block id anywhere")

	assert.Zero(t, atomic.LoadInt32(&calls))
}

func TestFetchPhone_SendsCapturedSession(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "_CIAN_GK=abc", r.Header.Get("Cookie"))
		var req PhoneRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "utm-live", req.UTM)
		assert.Equal(t, int64(777), req.BlockID)
		w.Write([]byte(`{"phone":"+7 (900) 000-00-01"}`))
	}))
	defer srv.Close()

	c := newTestClient(srv.URL)
	c.SetSession(c.Session().Merge(Session{Cookie: "_CIAN_GK=abc", UTM: "utm-live", BlockID: 777}))
	assert.Equal(t, int64(777), c.DefaultBlockID())

	_, attempts, err := c.FetchPhone(context.Background(), "5", "https://www.cian.ru/sale/flat/5/", 0)
	require.NoError(t, err)
	assert.Equal(t, 1, attempts)
}

func TestPhoneRequest_Validate(t *testing.T) {
	ok := PhoneRequest{
		AnnouncementID: 1, LocationURL: "https://tyumen.cian.ru/sale/flat/1/", BlockID: 2,
		PlatformType: "webDesktop", PageType: "offerCard", PlaceType: "ContactsAside",
	}
	assert.NoError(t, ok.Validate())

	bad := ok
	bad.LocationURL = "/sale/flat/1/"
	assert.ErrorIs(t, bad.Validate(), ErrInvalidRequest)

	bad = ok
	bad.PlaceType = ""
	assert.ErrorIs(t, bad.Validate(), ErrInvalidRequest)
}
