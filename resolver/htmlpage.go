package resolver

import (
	"io"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/rotisserie/eris"
)

// HTMLPage is a PageSource over static markup.
type HTMLPage struct {
	doc  *goquery.Document
	html string
}

func NewHTMLPage(r io.Reader) (*HTMLPage, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, eris.Wrap(err, "read page")
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(string(data)))
	if err != nil {
		return nil, eris.Wrap(err, "parse page")
	}
	return &HTMLPage{doc: doc, html: string(data)}, nil
}

func (p *HTMLPage) ElementTexts(selector string) []string {
	var out []string
	p.doc.Find(selector).Each(func(_ int, s *goquery.Selection) {
		out = append(out, strings.TrimSpace(s.Text()))
	})
	return out
}

func (p *HTMLPage) ElementAttrs(selector, attr string) []string {
	var out []string
	p.doc.Find(selector).Each(func(_ int, s *goquery.Selection) {
		if v, ok := s.Attr(attr); ok {
			out = append(out, v)
		}
	})
	return out
}

func (p *HTMLPage) VisibleText() string {
	body := p.doc.Find("body").Clone()
	body.Find("script, style, noscript").Remove()
	return strings.Join(strings.Fields(body.Text()), " ")
}

func (p *HTMLPage) HTML() string {
	return p.html
}
