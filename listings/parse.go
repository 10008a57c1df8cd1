package listings

import (
	"io"
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/rotisserie/eris"

	"cian_scrooper/identity"
	"cian_scrooper/models"
	"cian_scrooper/phone"
)

var (
	floorRegex = regexp.MustCompile(`(\d+)\s*/\s*(\d+)\s*этаж`)
	roomsRegex = regexp.MustCompile(`(\d+)-комн`)
)

// ParsePage extracts listing cards from a search-results page.
func ParsePage(r io.Reader) ([]models.Listing, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, eris.Wrap(err, "parse html")
	}

	var out []models.Listing
	doc.Find(`article[data-name="CardComponent"]`).Each(func(_ int, card *goquery.Selection) {
		if l, ok := parseCard(card); ok {
			out = append(out, l)
		}
	})
	return out, nil
}

func parseCard(card *goquery.Selection) (models.Listing, bool) {
	href, ok := card.Find(`a[href*="/flat/"]`).First().Attr("href")
	if !ok {
		return models.Listing{}, false
	}
	link := identity.AbsoluteURL(strings.TrimSpace(href))
	id, ok := identity.ListingID(link)
	if !ok {
		return models.Listing{}, false
	}

	title := strings.TrimSpace(card.Find(`[data-mark="OfferTitle"]`).First().Text())
	subtitle := strings.TrimSpace(card.Find(`[data-mark="OfferSubtitle"]`).First().Text())
	heading := title + " " + subtitle

	l := models.Listing{
		ID:         id,
		URL:        link,
		Title:      title,
		AuthorType: AuthorType(card.Find(`[data-name="BrandingLevelWrapper"]`).Text()),
		Price:      parseDigits(card.Find(`[data-mark="MainPrice"]`).First().Text()),
	}

	if m := floorRegex.FindStringSubmatch(heading); m != nil {
		l.Floor, _ = strconv.Atoi(m[1])
		l.FloorsCount, _ = strconv.Atoi(m[2])
	}
	if m := roomsRegex.FindStringSubmatch(heading); m != nil {
		l.Rooms, _ = strconv.Atoi(m[1])
	}

	if tel, ok := card.Find(`a[href^="tel:"]`).First().Attr("href"); ok {
		if raw := strings.TrimPrefix(tel, "tel:"); phone.Plausible(raw) {
			l.DirectPhone = raw
		}
	}
	if v, ok := card.Attr("data-block-id"); ok {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil && n > 0 {
			l.BlockID = &n
		}
	}

	return l, true
}

// AuthorType classifies the author badge text of a card.
func AuthorType(badge string) string {
	text := strings.ToLower(badge)
	switch {
	case strings.Contains(text, "застройщик"):
		return models.AuthorDeveloper
	case strings.Contains(text, "агентство"), strings.Contains(text, "риелтор"), strings.Contains(text, "агент"):
		return models.AuthorRealEstateAgent
	case strings.Contains(text, "собственник"):
		return models.AuthorHomeowner
	default:
		return models.AuthorUnknown
	}
}

func parseDigits(s string) int64 {
	n, _ := strconv.ParseInt(phone.Digits(s), 10, 64)
	return n
}
