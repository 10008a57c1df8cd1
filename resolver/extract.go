package resolver

import (
	"regexp"
	"strings"

	"github.com/rotisserie/eris"

	"cian_scrooper/phone"
)

var ErrNoPhone = eris.New("no phone found on page")

// Candidate is a phone string found on a page and the strategy that found it.
type Candidate struct {
	Raw    string
	Method string
}

// PageSource is the read side of a loaded listing page.
type PageSource interface {
	ElementTexts(selector string) []string
	ElementAttrs(selector, attr string) []string
	VisibleText() string
	HTML() string
}

type phoneSelector struct {
	selector string
	attr     string
	method   string
}

var phoneSelectors = []phoneSelector{
	{selector: `[data-testid="PhoneLink"]`, method: "PhoneLink"},
	{selector: `.phone-number`, method: "phone-number class"},
	{selector: `[href^="tel:"]`, attr: "href", method: "tel: link"},
	{selector: `a[class*="phone"]`, method: "phone link"},
	{selector: `span[class*="phone"]`, method: "phone span"},
	{selector: `div[class*="phone"]`, method: "phone div"},
}

var textPatterns = []*regexp.Regexp{
	regexp.MustCompile(`\+7[\s\-()]*\d{3}[\s\-()]*\d{3}[\s\-()]*\d{2}[\s\-()]*\d{2}`),
	regexp.MustCompile(`8[\s\-()]*\d{3}[\s\-()]*\d{3}[\s\-()]*\d{2}[\s\-()]*\d{2}`),
	regexp.MustCompile(`\+7\d{10}`),
	regexp.MustCompile(`8\d{10}`),
	regexp.MustCompile(`\d{3}[\s\-()]*\d{3}[\s\-()]*\d{2}[\s\-()]*\d{2}`),
}

var (
	telHrefPattern = regexp.MustCompile(`href="tel:([^"]+)"`)
	dataPatterns   = []*regexp.Regexp{
		regexp.MustCompile(`data-phone="([^"]+)"`),
		regexp.MustCompile(`data-number="([^"]+)"`),
		regexp.MustCompile(`data-contact="([^"]+)"`),
	}
)

// Strategy looks for a phone on a page.
type Strategy func(PageSource) (Candidate, bool)

// DefaultStrategies are tried in order: contact selectors, then the visible
// text, then the raw markup.
var DefaultStrategies = []Strategy{FromSelectors, FromVisibleText, FromMarkup}

// ExtractPhone returns the first candidate any strategy finds.
func ExtractPhone(page PageSource, strategies ...Strategy) (Candidate, error) {
	if len(strategies) == 0 {
		strategies = DefaultStrategies
	}
	for _, s := range strategies {
		if c, ok := s(page); ok {
			return c, nil
		}
	}
	return Candidate{}, ErrNoPhone
}

func FromSelectors(page PageSource) (Candidate, bool) {
	for _, ps := range phoneSelectors {
		var values []string
		if ps.attr != "" {
			values = page.ElementAttrs(ps.selector, ps.attr)
		} else {
			values = page.ElementTexts(ps.selector)
		}
		for _, v := range values {
			v = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(v), "tel:"))
			if phone.Plausible(v) {
				return Candidate{Raw: phone.Clean(v), Method: ps.method}, true
			}
		}
	}
	return Candidate{}, false
}

func FromVisibleText(page PageSource) (Candidate, bool) {
	text := page.VisibleText()
	if text == "" {
		return Candidate{}, false
	}
	for _, p := range textPatterns {
		for _, m := range p.FindAllString(text, -1) {
			d := phone.Digits(m)
			if (len(d) == 11 && (d[0] == '7' || d[0] == '8')) || (len(d) == 10 && d[0] != '0') {
				return Candidate{Raw: phone.Clean(m), Method: "regex pattern: " + p.String()}, true
			}
		}
	}
	return Candidate{}, false
}

func FromMarkup(page PageSource) (Candidate, bool) {
	html := page.HTML()
	if html == "" {
		return Candidate{}, false
	}
	for _, m := range telHrefPattern.FindAllStringSubmatch(html, -1) {
		if phone.Plausible(m[1]) {
			return Candidate{Raw: phone.Clean(m[1]), Method: "HTML tel: attribute"}, true
		}
	}
	for _, p := range dataPatterns {
		for _, m := range p.FindAllStringSubmatch(html, -1) {
			if phone.Plausible(m[1]) {
				return Candidate{Raw: phone.Clean(m[1]), Method: "HTML data attribute: " + p.String()}, true
			}
		}
	}
	return Candidate{}, false
}
