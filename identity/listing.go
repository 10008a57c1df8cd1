package identity

import (
	"fmt"
	"regexp"
	"strings"
)

const baseHost = "cian.ru"

var (
	idPatterns = []*regexp.Regexp{
		regexp.MustCompile(`/(\d+)/?$`),
		regexp.MustCompile(`flat/(\d+)[/?]`),
		regexp.MustCompile(`cian\.ru/sale/flat/(\d+)`),
	}
	subdomainRegex = regexp.MustCompile(`https?://([a-z]+)\.cian\.ru`)
)

// ListingID extracts the numeric listing id from a listing URL.
func ListingID(rawURL string) (string, bool) {
	clean := strings.NewReplacer(`"`, "", "'", "").Replace(strings.TrimSpace(rawURL))
	for _, p := range idPatterns {
		if m := p.FindStringSubmatch(clean); m != nil {
			return m[1], true
		}
	}
	return "", false
}

// Subdomain returns the regional subdomain of a listing URL, or "www".
func Subdomain(rawURL string) string {
	if m := subdomainRegex.FindStringSubmatch(rawURL); m != nil {
		return m[1]
	}
	return "www"
}

// LocationURL is the canonical card URL the call-tracking API expects.
func LocationURL(subdomain, listingID string) string {
	if subdomain == "" {
		subdomain = "www"
	}
	return fmt.Sprintf("https://%s.%s/sale/flat/%s/", subdomain, baseHost, listingID)
}

// AbsoluteURL prefixes site-relative listing links with the main host.
func AbsoluteURL(href string) string {
	if strings.HasPrefix(href, "http://") || strings.HasPrefix(href, "https://") {
		return href
	}
	if strings.HasPrefix(href, "//") {
		return "https:" + href
	}
	if !strings.HasPrefix(href, "/") {
		href = "/" + href
	}
	return "https://www." + baseHost + href
}
