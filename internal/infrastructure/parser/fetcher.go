package parser

import (
	"context"
	"io"
	"net/http"
	"time"

	"github.com/chromedp/chromedp"
	"github.com/cockroachdb/errors"
)

// Page is a fetched document together with the URL it finally resolved to.
type Page struct {
	URL  string
	HTML string
}

// Fetcher loads one page. The final URL matters because review sites redirect
// blocked crawlers to captcha or sign-in pages.
type Fetcher interface {
	Fetch(ctx context.Context, pageURL string) (Page, error)
}

// HTTPFetcher fetches static markup with a plain HTTP client.
type HTTPFetcher struct {
	client    *http.Client
	userAgent string
}

// NewHTTPFetcher wires an HTTP client; a nil client gets a 20 second timeout.
func NewHTTPFetcher(client *http.Client, userAgent string) *HTTPFetcher {
	if client == nil {
		client = &http.Client{Timeout: 20 * time.Second}
	}
	return &HTTPFetcher{client: client, userAgent: userAgent}
}

func (f *HTTPFetcher) Fetch(ctx context.Context, pageURL string) (Page, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return Page{}, errors.Wrap(err, "build request")
	}
	if f.userAgent != "" {
		req.Header.Set("User-Agent", f.userAgent)
	}
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")

	resp, err := f.client.Do(req)
	if err != nil {
		return Page{}, errors.Wrap(err, "request document")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Page{}, errors.Newf("%s returned %s", pageURL, resp.Status)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return Page{}, errors.Wrap(err, "read document")
	}

	return Page{URL: resp.Request.URL.String(), HTML: string(body)}, nil
}

// BrowserFetcher renders pages in headless Chrome for listings that build reviews with JavaScript.
type BrowserFetcher struct {
	userAgent string
	timeout   time.Duration
}

// NewBrowserFetcher configures a renderer; every Fetch starts its own browser.
func NewBrowserFetcher(userAgent string, timeout time.Duration) *BrowserFetcher {
	return &BrowserFetcher{userAgent: userAgent, timeout: timeout}
}

func (f *BrowserFetcher) Fetch(ctx context.Context, pageURL string) (Page, error) {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
	)
	if f.userAgent != "" {
		opts = append(opts, chromedp.UserAgent(f.userAgent))
	}

	allocCtx, cancelAlloc := chromedp.NewExecAllocator(ctx, opts...)
	defer cancelAlloc()
	browserCtx, cancelBrowser := chromedp.NewContext(allocCtx, chromedp.WithLogf(func(string, ...interface{}) {}))
	defer cancelBrowser()

	if f.timeout > 0 {
		var cancel context.CancelFunc
		browserCtx, cancel = context.WithTimeout(browserCtx, f.timeout)
		defer cancel()
	}

	var page Page
	err := chromedp.Run(browserCtx,
		chromedp.Navigate(pageURL),
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.Location(&page.URL),
		chromedp.OuterHTML("html", &page.HTML, chromedp.ByQuery),
	)
	if err != nil {
		return Page{}, errors.Wrapf(err, "render %s", pageURL)
	}
	return page, nil
}
