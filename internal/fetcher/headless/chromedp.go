// Package headless renders catalog pages in headless Chrome for markup that
// is built client-side.
package headless

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
	"golang.org/x/sync/semaphore"

	"github.com/JakeFAU/shufersal-scraper/internal/catalog"
)

const (
	defaultNavTimeout  = 45 * time.Second
	defaultSettleDelay = 500 * time.Millisecond
)

// Config controls the behavior of the headless fetcher.
type Config struct {
	// MaxParallel caps concurrent tabs. Zero means unlimited.
	MaxParallel       int
	UserAgent         string
	NavigationTimeout time.Duration
	// SettleDelay is waited after the body is ready so client-side listings
	// can populate.
	SettleDelay time.Duration
	Headers     http.Header
}

// Fetcher implements catalog.Fetcher by rendering each URL in a fresh tab of
// one shared Chrome process.
type Fetcher struct {
	cfg      Config
	tabs     *semaphore.Weighted
	browser  context.Context
	shutdown context.CancelFunc
}

var _ catalog.Fetcher = (*Fetcher)(nil)

// NewChromedp prepares the Chrome allocator. The browser itself starts on the
// first Fetch.
func NewChromedp(cfg Config) (*Fetcher, error) {
	if cfg.MaxParallel < 0 {
		return nil, fmt.Errorf("max parallel must be >= 0, got %d", cfg.MaxParallel)
	}
	if cfg.NavigationTimeout <= 0 {
		cfg.NavigationTimeout = defaultNavTimeout
	}
	if cfg.SettleDelay <= 0 {
		cfg.SettleDelay = defaultSettleDelay
	}
	f := &Fetcher{cfg: cfg}
	if cfg.MaxParallel > 0 {
		f.tabs = semaphore.NewWeighted(int64(cfg.MaxParallel))
	}

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", "new"),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("hide-scrollbars", true),
		chromedp.Flag("enable-automation", false),
	)
	f.browser, f.shutdown = chromedp.NewExecAllocator(context.Background(), opts...)
	return f, nil
}

// Close stops the browser.
func (f *Fetcher) Close() {
	f.shutdown()
}

// Fetch renders rawURL and returns the serialized DOM. Navigation failures and
// non-2xx documents are returned as *catalog.FetchError.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) (catalog.Page, error) {
	if f.tabs != nil {
		if err := f.tabs.Acquire(ctx, 1); err != nil {
			return catalog.Page{}, &catalog.FetchError{URL: rawURL, Err: fmt.Errorf("wait for browser tab: %w", err)}
		}
		defer f.tabs.Release(1)
	}

	tab, closeTab := chromedp.NewContext(f.browser)
	defer closeTab()
	tab, cancel := context.WithTimeout(tab, f.cfg.NavigationTimeout)
	defer cancel()
	defer context.AfterFunc(ctx, cancel)()

	doc := &documentResponse{}
	chromedp.ListenTarget(tab, doc.observe)

	start := time.Now()
	r, err := f.render(tab, rawURL)
	if err != nil {
		return catalog.Page{}, &catalog.FetchError{URL: rawURL, Err: err}
	}
	r.status, r.headers, r.responseURL = doc.snapshot()
	r.elapsed = time.Since(start)
	return pageFromRender(rawURL, r)
}

// rendered is what one tab produced for a URL.
type rendered struct {
	html        string
	location    string
	status      int
	headers     http.Header
	responseURL string
	elapsed     time.Duration
}

func (f *Fetcher) render(tab context.Context, rawURL string) (rendered, error) {
	var r rendered
	err := chromedp.Run(tab,
		f.prepareTab(),
		chromedp.Navigate(rawURL),
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.Sleep(f.cfg.SettleDelay),
		chromedp.Location(&r.location),
		chromedp.OuterHTML("html", &r.html, chromedp.ByQuery),
	)
	if err != nil {
		return rendered{}, fmt.Errorf("render: %w", err)
	}
	return r, nil
}

func (f *Fetcher) prepareTab() chromedp.Action {
	return chromedp.ActionFunc(func(ctx context.Context) error {
		if err := network.Enable().Do(ctx); err != nil {
			return fmt.Errorf("enable network events: %w", err)
		}
		if f.cfg.UserAgent != "" {
			if err := emulation.SetUserAgentOverride(f.cfg.UserAgent).Do(ctx); err != nil {
				return fmt.Errorf("override user agent: %w", err)
			}
		}
		if extra := networkHeaders(f.cfg.Headers); len(extra) > 0 {
			if err := network.SetExtraHTTPHeaders(extra).Do(ctx); err != nil {
				return fmt.Errorf("set request headers: %w", err)
			}
		}
		return nil
	})
}

// pageFromRender turns a finished render into a page. A document that never
// reported a status (served from cache, or no network event seen) counts as
// 200.
func pageFromRender(rawURL string, r rendered) (catalog.Page, error) {
	status := r.status
	if status == 0 {
		status = http.StatusOK
	}
	if status < 200 || status > 299 {
		return catalog.Page{}, &catalog.FetchError{
			URL:        rawURL,
			StatusCode: status,
			Err:        errors.New(http.StatusText(status)),
		}
	}
	final := r.responseURL
	if final == "" {
		final = r.location
	}
	if final == "" {
		final = rawURL
	}
	headers := r.headers
	if headers == nil {
		headers = http.Header{}
	}
	return catalog.Page{
		URL:        rawURL,
		FinalURL:   final,
		StatusCode: status,
		Headers:    headers,
		Body:       []byte(r.html),
		Duration:   r.elapsed,
	}, nil
}

// documentResponse records the last top-level document response of a tab.
// Redirects produce one event per hop, so the last one is the page served.
type documentResponse struct {
	mu      sync.Mutex
	status  int
	headers http.Header
	url     string
}

func (d *documentResponse) observe(ev any) {
	resp, ok := ev.(*network.EventResponseReceived)
	if !ok || resp.Type != network.ResourceTypeDocument || resp.Response == nil {
		return
	}
	headers := httpHeaders(resp.Response.Headers)
	d.mu.Lock()
	defer d.mu.Unlock()
	d.status = int(resp.Response.Status)
	d.headers = headers
	d.url = resp.Response.URL
}

func (d *documentResponse) snapshot() (int, http.Header, string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.status, d.headers.Clone(), d.url
}

func httpHeaders(src network.Headers) http.Header {
	out := make(http.Header, len(src))
	for key, value := range src {
		switch v := value.(type) {
		case string:
			out.Add(key, v)
		case []string:
			for _, entry := range v {
				out.Add(key, entry)
			}
		case []any:
			for _, entry := range v {
				out.Add(key, fmt.Sprint(entry))
			}
		default:
			out.Add(key, fmt.Sprint(v))
		}
	}
	return out
}

func networkHeaders(h http.Header) network.Headers {
	out := network.Headers{}
	for key, values := range h {
		switch len(values) {
		case 0:
		case 1:
			out[key] = values[0]
		default:
			out[key] = append([]string(nil), values...)
		}
	}
	return out
}
