package catalog

import (
	"net/http"
	"time"
)

// PageKind classifies a fetched page.
type PageKind int

// Page kinds produced by the page classifier.
const (
	PageKindUnknown PageKind = iota
	PageKindCategory
	PageKindListing
)

func (k PageKind) String() string {
	switch k {
	case PageKindCategory:
		return "category"
	case PageKindListing:
		return "listing"
	default:
		return "unknown"
	}
}

// Category is a site section whose page links to subcategories or listings.
// ParentURL is empty for roots.
type Category struct {
	URL          string
	ParentURL    string
	Title        string
	DiscoveredAt time.Time
}

// Product is a single listing entry. The (CategoryURL, Name) pair is the
// upsert key.
type Product struct {
	ID            string
	CategoryURL   string
	Name          string
	Price         string
	RawAttributes map[string]string
	ScrapedAt     time.Time
}

// Page is a fetched document.
type Page struct {
	URL        string
	FinalURL   string
	StatusCode int
	Headers    http.Header
	Body       []byte
	Duration   time.Duration
}

// BaseURL returns the URL relative links on the page resolve against.
func (p Page) BaseURL() string {
	if p.FinalURL != "" {
		return p.FinalURL
	}
	return p.URL
}

// Link is an anchor discovered on a category page.
type Link struct {
	URL   string
	Title string
}

// TranslationJob names one backfill invocation. It is never persisted.
type TranslationJob struct {
	Table          string
	Column         string
	TargetLanguage string
}

// TranslatedValue is one row written back by the translation backfill.
type TranslatedValue struct {
	Table     string
	Column    string
	Key       string
	Language  string
	Value     string
	ValueHash string
}
