package resolver

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/playwright-community/playwright-go"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"cian_scrooper/httputil"
)

var contactSelectors = []string{
	`[data-testid="contacts-button"]`,
	`[data-name="OfferCardCallButton"]`,
	`.offer-card-call-button`,
	`button[class*="contact"]`,
	`button:has-text("Показать телефон")`,
	`button:has-text("Контакты")`,
	`a:has-text("Показать телефон")`,
}

const revealScript = `() => {
	const selectors = [
		'[data-testid="contacts-button"]',
		'[data-name="OfferCardCallButton"]',
		'.offer-card-call-button',
		'button[class*="contact"]'
	];
	for (const sel of selectors) {
		const btn = document.querySelector(sel);
		if (btn) { btn.click(); return sel; }
	}
	for (const btn of document.querySelectorAll('button, a')) {
		const t = btn.textContent || '';
		if (t.includes('телефон') || t.includes('Контакт') || t.includes('Показать')) {
			btn.click();
			return 'text-based';
		}
	}
	return null;
}`

type BrowserOptions struct {
	Headless    bool
	ProxyURL    string
	NavTimeout  time.Duration
	SettleDelay time.Duration
}

// BrowserExtractor opens each listing in a fresh browser context, reveals the
// contact block and reads the phone from the rendered page.
type BrowserExtractor struct {
	opts BrowserOptions

	mu      sync.Mutex
	pw      *playwright.Playwright
	browser playwright.Browser
}

func NewBrowserExtractor(opts BrowserOptions) *BrowserExtractor {
	if opts.NavTimeout <= 0 {
		opts.NavTimeout = 60 * time.Second
	}
	if opts.SettleDelay <= 0 {
		opts.SettleDelay = 5 * time.Second
	}
	return &BrowserExtractor{opts: opts}
}

func (b *BrowserExtractor) ensureBrowser() (playwright.Browser, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.browser != nil {
		return b.browser, nil
	}

	pw, err := playwright.Run()
	if err != nil {
		return nil, eris.Wrap(err, "start playwright")
	}

	launch := playwright.BrowserTypeLaunchOptions{
		Headless: playwright.Bool(b.opts.Headless),
		Args: []string{
			"--no-sandbox",
			"--disable-dev-shm-usage",
			"--disable-blink-features=AutomationControlled",
			"--disable-web-security",
			"--disable-features=VizDisplayCompositor",
		},
	}
	if b.opts.ProxyURL != "" {
		launch.Proxy = &playwright.Proxy{Server: b.opts.ProxyURL}
	}

	browser, err := pw.Chromium.Launch(launch)
	if err != nil {
		pw.Stop()
		return nil, eris.Wrap(err, "launch browser")
	}

	b.pw = pw
	b.browser = browser
	return browser, nil
}

func (b *BrowserExtractor) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.browser != nil {
		b.browser.Close()
		b.browser = nil
	}
	if b.pw != nil {
		b.pw.Stop()
		b.pw = nil
	}
}

// newPage opens a page in an isolated context. The context is closed when
// ctx is cancelled or the returned func is called.
func (b *BrowserExtractor) newPage(ctx context.Context) (playwright.Page, func(), error) {
	browser, err := b.ensureBrowser()
	if err != nil {
		return nil, nil, err
	}

	bctx, err := browser.NewContext(playwright.BrowserNewContextOptions{
		UserAgent: playwright.String(httputil.UserAgent()),
		Viewport:  &playwright.Size{Width: 1920, Height: 1080},
		Locale:    playwright.String("ru-RU"),
	})
	if err != nil {
		return nil, nil, eris.Wrap(err, "new browser context")
	}

	stop := context.AfterFunc(ctx, func() { bctx.Close() })
	cleanup := func() {
		stop()
		bctx.Close()
	}

	page, err := bctx.NewPage()
	if err != nil {
		cleanup()
		return nil, nil, eris.Wrap(err, "new page")
	}
	return page, cleanup, nil
}

func (b *BrowserExtractor) open(page playwright.Page, listingURL string) error {
	_, err := page.Goto(listingURL, playwright.PageGotoOptions{
		Timeout:   playwright.Float(float64(b.opts.NavTimeout.Milliseconds())),
		WaitUntil: playwright.WaitUntilStateDomcontentloaded,
	})
	if err != nil {
		return eris.Wrapf(err, "navigate to %s", listingURL)
	}
	page.WaitForTimeout(3000)

	if title, _ := page.Title(); !strings.Contains(title, "Cian") && !strings.Contains(strings.ToLower(title), "объявление") {
		zap.L().Debug("unexpected page title", zap.String("title", title))
	}
	return nil
}

func (b *BrowserExtractor) Extract(ctx context.Context, listingURL string) (Candidate, error) {
	if err := ctx.Err(); err != nil {
		return Candidate{}, err
	}

	page, cleanup, err := b.newPage(ctx)
	if err != nil {
		return Candidate{}, err
	}
	defer cleanup()

	if err := b.open(page, listingURL); err != nil {
		return Candidate{}, err
	}

	if how, ok := revealContacts(page); ok {
		zap.L().Debug("contacts revealed", zap.String("via", how))
		waitForPhone(page, 3000)
	} else {
		zap.L().Debug("no contact button found", zap.String("url", listingURL))
	}
	page.WaitForTimeout(float64(b.opts.SettleDelay.Milliseconds()))

	if err := ctx.Err(); err != nil {
		return Candidate{}, err
	}
	return ExtractPhone(&livePage{page: page})
}

// revealContacts clicks the first visible contact button, falling back to a
// scripted click when no selector works.
func revealContacts(page playwright.Page) (string, bool) {
	for _, sel := range contactSelectors {
		btn := page.Locator(sel).First()
		if visible, _ := btn.IsVisible(); !visible {
			continue
		}
		if err := btn.Click(playwright.LocatorClickOptions{Timeout: playwright.Float(5000)}); err != nil {
			zap.L().Debug("contact click failed", zap.String("selector", sel), zap.Error(err))
			continue
		}
		return sel, true
	}

	res, err := page.Evaluate(revealScript)
	if err != nil {
		zap.L().Debug("scripted contact click failed", zap.Error(err))
		return "", false
	}
	if s, ok := res.(string); ok && s != "" {
		return "script:" + s, true
	}
	return "", false
}

func waitForPhone(page playwright.Page, timeoutMs float64) bool {
	for _, ps := range phoneSelectors {
		err := page.Locator(ps.selector).First().WaitFor(playwright.LocatorWaitForOptions{
			State:   playwright.WaitForSelectorStateAttached,
			Timeout: playwright.Float(timeoutMs),
		})
		if err == nil {
			return true
		}
	}
	return false
}

// livePage adapts a playwright page to PageSource.
type livePage struct {
	page playwright.Page
}

func (p *livePage) ElementTexts(selector string) []string {
	texts, err := p.page.Locator(selector).AllInnerTexts()
	if err != nil {
		return nil
	}
	return texts
}

func (p *livePage) ElementAttrs(selector, attr string) []string {
	locs, err := p.page.Locator(selector).All()
	if err != nil {
		return nil
	}
	var out []string
	for _, l := range locs {
		if v, err := l.GetAttribute(attr); err == nil && v != "" {
			out = append(out, v)
		}
	}
	return out
}

func (p *livePage) VisibleText() string {
	text, err := p.page.Locator("body").InnerText()
	if err != nil {
		return ""
	}
	return text
}

func (p *livePage) HTML() string {
	html, err := p.page.Content()
	if err != nil {
		return ""
	}
	return html
}
