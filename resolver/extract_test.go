package resolver

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func loadFixture(t *testing.T, name string) *HTMLPage {
	t.Helper()
	f, err := os.Open(filepath.Join("testdata", name))
	require.NoError(t, err)
	defer f.Close()

	page, err := NewHTMLPage(f)
	require.NoError(t, err)
	return page
}

func TestExtractPhone_Selector(t *testing.T) {
	c, err := ExtractPhone(loadFixture(t, "contacts_button_revealed.html"))
	require.NoError(t, err)
	assert.Equal(t, "PhoneLink", c.Method)
	assert.Equal(t, "+79221234567", c.Raw)
}

func TestExtractPhone_VisibleTextSkipsScripts(t *testing.T) {
	c, err := ExtractPhone(loadFixture(t, "phone_in_text.html"))
	require.NoError(t, err)
	assert.Contains(t, c.Method, "regex pattern")
	assert.Equal(t, "83452567890", c.Raw)
}

func TestExtractPhone_Markup(t *testing.T) {
	c, err := ExtractPhone(loadFixture(t, "phone_in_markup.html"))
	require.NoError(t, err)
	assert.Contains(t, c.Method, "data-contact")
	assert.Equal(t, "+79125554433", c.Raw)
}

func TestExtractPhone_NothingFound(t *testing.T) {
	_, err := ExtractPhone(loadFixture(t, "no_phone.html"))
	assert.ErrorIs(t, err, ErrNoPhone)
}

func TestFromSelectors_IgnoresShortText(t *testing.T) {
	page := &stubPage{texts: map[string][]string{
		`.phone-number`:        {"Показать"},
		`span[class*="phone"]`: {"+7 900 111-22-33"},
	}}
	c, ok := FromSelectors(page)
	require.True(t, ok)
	assert.Equal(t, "phone span", c.Method)
}

func TestFromSelectors_TelHref(t *testing.T) {
	page := &stubPage{attrs: map[string][]string{
		`[href^="tel:"]`: {"tel:89001112233"},
	}}
	c, ok := FromSelectors(page)
	require.True(t, ok)
	assert.Equal(t, "tel: link", c.Method)
	assert.Equal(t, "89001112233", c.Raw)
}

func TestFromVisibleText_RejectsLeadingZero(t *testing.T) {
	_, ok := FromVisibleText(&stubPage{text: "Артикул 012 345 67 89"})
	assert.False(t, ok)

	c, ok := FromVisibleText(&stubPage{text: "тел. 912 345 67 89"})
	require.True(t, ok)
	assert.Equal(t, "9123456789", c.Raw)
}

func TestFromMarkup_TelHref(t *testing.T) {
	c, ok := FromMarkup(&stubPage{html: `<a href="tel:+7 (495) 000-11-22">call</a>`})
	require.True(t, ok)
	assert.Equal(t, "HTML tel: attribute", c.Method)
	assert.Equal(t, "+74950001122", c.Raw)
}

type stubPage struct {
	texts map[string][]string
	attrs map[string][]string
	text  string
	html  string
}

func (p *stubPage) ElementTexts(selector string) []string    { return p.texts[selector] }
func (p *stubPage) ElementAttrs(selector, _ string) []string { return p.attrs[selector] }
func (p *stubPage) VisibleText() string                      { return p.text }
func (p *stubPage) HTML() string                             { return p.html }
