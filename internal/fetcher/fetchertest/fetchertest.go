// Package fetchertest provides an in-memory catalog.Fetcher for pipeline tests.
package fetchertest

import (
	"context"
	"errors"
	"net/http"
	"sync"

	"github.com/JakeFAU/shufersal-scraper/internal/catalog"
)

// Fetcher serves canned HTML bodies keyed by URL. Unknown URLs yield a 404
// *catalog.FetchError.
type Fetcher struct {
	mu     sync.Mutex
	pages  map[string]string
	errs   map[string]error
	status map[string]int
	calls  map[string]int
}

var _ catalog.Fetcher = (*Fetcher)(nil)

// New builds a Fetcher from url -> body pairs.
func New(pages map[string]string) *Fetcher {
	f := &Fetcher{
		pages:  make(map[string]string, len(pages)),
		errs:   make(map[string]error),
		status: make(map[string]int),
		calls:  make(map[string]int),
	}
	for u, body := range pages {
		f.pages[u] = body
	}
	return f
}

// SetPage registers or replaces the body served for url.
func (f *Fetcher) SetPage(url, body string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pages[url] = body
}

// FailWith makes url fail with err.
func (f *Fetcher) FailWith(url string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.errs[url] = err
}

// FailWithStatus makes url fail with an HTTP status.
func (f *Fetcher) FailWithStatus(url string, status int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.status[url] = status
}

// Calls reports how many times url was fetched.
func (f *Fetcher) Calls(url string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[url]
}

// Fetch implements catalog.Fetcher.
func (f *Fetcher) Fetch(ctx context.Context, url string) (catalog.Page, error) {
	if err := ctx.Err(); err != nil {
		return catalog.Page{}, &catalog.FetchError{URL: url, Err: err}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[url]++
	if err, ok := f.errs[url]; ok {
		return catalog.Page{}, &catalog.FetchError{URL: url, Err: err}
	}
	if code, ok := f.status[url]; ok {
		return catalog.Page{}, &catalog.FetchError{URL: url, StatusCode: code, Err: errors.New(http.StatusText(code))}
	}
	body, ok := f.pages[url]
	if !ok {
		return catalog.Page{}, &catalog.FetchError{
			URL:        url,
			StatusCode: http.StatusNotFound,
			Err:        errors.New(http.StatusText(http.StatusNotFound)),
		}
	}
	return catalog.Page{
		URL:        url,
		FinalURL:   url,
		StatusCode: http.StatusOK,
		Headers:    http.Header{"Content-Type": []string{"text/html; charset=utf-8"}},
		Body:       []byte(body),
	}, nil
}

// CategoryPage renders a category page linking to hrefs with the default
// subcategory selector.
func CategoryPage(hrefs ...string) string {
	body := `<html><body><div class="subCategories">`
	for _, h := range hrefs {
		body += `<a href="` + h + `">` + h + `</a>`
	}
	return body + `</div></body></html>`
}

// Item is one product card rendered by ListingPage.
type Item struct {
	Name  string
	Price string
}

// ListingPage renders a product listing with the default selectors. A
// non-empty next adds a pagination link.
func ListingPage(next string, items ...Item) string {
	body := `<html><body><ul>`
	for _, it := range items {
		body += `<li class="miglog-prod" data-product-code="` + it.Name + `">` +
			`<div class="description"><strong>` + it.Name + `</strong></div>` +
			`<div class="line"><span class="price"><span class="number">` + it.Price + `</span></span></div></li>`
	}
	body += `</ul>`
	if next != "" {
		body += `<a class="btnNext" href="` + next + `">next</a>`
	}
	return body + `</body></html>`
}
