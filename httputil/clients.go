package httputil

import (
	"crypto/tls"
	"net/http"
	"net/url"
	"time"

	"cian_scrooper/config"
)

const userAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

type Clients struct {
	Pages        *http.Client // proxied, for listing search pages
	CallTracking *http.Client // proxied, per-attempt timeout for the phone API
}

func NewClients(proxyCfg config.ProxyConfig, callTimeout time.Duration) *Clients {
	transport := &http.Transport{
		ForceAttemptHTTP2: false,
		TLSNextProto:      make(map[string]func(string, *tls.Conn) http.RoundTripper),
	}
	if proxyCfg.URL != "" {
		if proxyURL, err := url.Parse(proxyCfg.URL); err == nil {
			transport.Proxy = http.ProxyURL(proxyURL)
		}
	}

	if callTimeout <= 0 {
		callTimeout = 15 * time.Second
	}

	return &Clients{
		Pages:        &http.Client{Timeout: 30 * time.Second, Transport: transport},
		CallTracking: &http.Client{Timeout: callTimeout, Transport: transport},
	}
}

// SetBrowserHeaders makes a request look like it came from a desktop Chrome.
func SetBrowserHeaders(req *http.Request) {
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept-Language", "ru-RU,ru;q=0.9,en-US;q=0.8,en;q=0.7")
}

func UserAgent() string {
	return userAgent
}
