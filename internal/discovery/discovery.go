// Package discovery walks the category tree of the store and records every
// category page it finds.
//
// Discovery is breadth-first from the configured seeds. Each link found on a
// category page is inserted with the page it was found on as its parent;
// listing pages are leaves and are never expanded.
package discovery

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"go.uber.org/zap"

	"github.com/JakeFAU/shufersal-scraper/internal/catalog"
	"github.com/JakeFAU/shufersal-scraper/internal/extract"
	"github.com/JakeFAU/shufersal-scraper/internal/metrics"
)

// DefaultForbiddenThreshold is the number of 403 responses after which a host
// is skipped for the rest of a run.
const DefaultForbiddenThreshold = 3

// ErrHostBlocked marks URLs skipped because their host kept answering 403.
var ErrHostBlocked = errors.New("host blocked after repeated 403 responses")

// Config bounds a discovery run.
type Config struct {
	Seeds []string
	// MaxDepth limits link depth below the seeds. Zero means unlimited.
	MaxDepth int
	// MaxVisits limits the number of pages fetched. Zero means unlimited.
	MaxVisits int
	// ExpandKnown enqueues links that already exist in the store so an
	// interrupted run resumes where it stopped.
	ExpandKnown        bool
	ForbiddenThreshold int
	// Links are followed only on the host of the page they were found on,
	// or on a host matching AllowedDomains, and never on one matching
	// BlockedDomains. Entries starting with "*." or "." match subdomains.
	AllowedDomains []string
	BlockedDomains []string
}

// Failure is a page that could not be processed.
type Failure struct {
	URL string
	Err error
}

// Report summarizes a discovery run. Excluded counts distinct links dropped
// by the domain rules.
type Report struct {
	Visited       int
	Inserted      int
	SeedsInserted int
	Excluded      int
	Skipped       []string
	Failures      []Failure
	Truncated     bool
}

// Crawler discovers categories.
type Crawler struct {
	fetcher catalog.Fetcher
	parser  *extract.Parser
	store   catalog.CategoryStore
	norm    *catalog.URLNormalizer
	clock   catalog.Clock
	allowed *domainMatcher
	blocked *domainMatcher
	cfg     Config
	logger  *zap.Logger
}

// New constructs a Crawler.
func New(
	cfg Config,
	fetcher catalog.Fetcher,
	parser *extract.Parser,
	store catalog.CategoryStore,
	norm *catalog.URLNormalizer,
	clock catalog.Clock,
	logger *zap.Logger,
) (*Crawler, error) {
	switch {
	case fetcher == nil:
		return nil, errors.New("discovery: fetcher is required")
	case parser == nil:
		return nil, errors.New("discovery: parser is required")
	case store == nil:
		return nil, errors.New("discovery: category store is required")
	case clock == nil:
		return nil, errors.New("discovery: clock is required")
	case cfg.MaxDepth < 0 || cfg.MaxVisits < 0:
		return nil, errors.New("discovery: limits must be non-negative")
	}
	if norm == nil {
		norm = catalog.NewURLNormalizer(nil)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Crawler{
		fetcher: fetcher,
		parser:  parser,
		store:   store,
		norm:    norm,
		clock:   clock,
		allowed: newDomainMatcher(cfg.AllowedDomains),
		blocked: newDomainMatcher(cfg.BlockedDomains),
		cfg:     cfg,
		logger:  logger.Named("discovery"),
	}, nil
}

// CheckURLs reports whether the category table has at least one row.
func (c *Crawler) CheckURLs(ctx context.Context) (bool, error) {
	ok, err := c.store.HasCategories(ctx)
	if err != nil {
		return false, fmt.Errorf("check categories: %w", err)
	}
	return ok, nil
}

// Discover crawls from the seeds and inserts every newly found category.
// Fetch failures are contained in the report; store errors abort the run.
func (c *Crawler) Discover(ctx context.Context) (Report, error) {
	var report Report
	frontier := newFrontier()
	blocker := newHostBlocker(c.cfg.ForbiddenThreshold)

	if err := c.seed(ctx, frontier, &report); err != nil {
		return report, err
	}

	for {
		e, ok := frontier.pop()
		if !ok {
			break
		}
		if err := ctx.Err(); err != nil {
			return report, err
		}
		// Blocked URLs are settled without a visit, so they never count
		// against the budget or mark the run truncated.
		host := hostOf(e.url)
		if blocker.IsBlocked(host) {
			report.Failures = append(report.Failures, Failure{URL: e.url, Err: ErrHostBlocked})
			continue
		}
		if c.cfg.MaxVisits > 0 && report.Visited >= c.cfg.MaxVisits {
			report.Truncated = true
			c.logger.Debug("visit budget exhausted", zap.Int("remaining", frontier.Len()+1))
			break
		}

		report.Visited++
		page, err := c.fetcher.Fetch(ctx, e.url)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return report, ctxErr
			}
			var fetchErr *catalog.FetchError
			if errors.As(err, &fetchErr) && fetchErr.StatusCode == http.StatusForbidden {
				if blocker.MarkForbidden(host) {
					c.logger.Debug("host blocked", zap.String("host", host))
				}
			}
			report.Failures = append(report.Failures, Failure{URL: e.url, Err: err})
			continue
		}
		doc, err := c.parser.Parse(page)
		if err != nil {
			report.Failures = append(report.Failures, Failure{URL: e.url, Err: err})
			continue
		}

		kind := doc.Kind()
		metrics.ObservePageKind(kind.String())
		c.logger.Debug("page classified", zap.String("url", e.url), zap.Stringer("kind", kind), zap.Int("depth", e.depth))
		switch kind {
		case catalog.PageKindUnknown:
			report.Skipped = append(report.Skipped, e.url)
			continue
		case catalog.PageKindListing:
			continue
		}

		if err := c.expand(ctx, frontier, e, doc.SubcategoryLinks(), &report); err != nil {
			return report, err
		}
	}
	return report, nil
}

func (c *Crawler) seed(ctx context.Context, frontier *Frontier, report *Report) error {
	for _, raw := range c.cfg.Seeds {
		seed, err := c.norm.Normalize("", raw)
		if err != nil {
			return fmt.Errorf("seed %q: %w", raw, err)
		}
		if !frontier.MarkIfNew(seed) {
			continue
		}
		inserted, err := c.store.InsertCategory(ctx, catalog.Category{URL: seed, DiscoveredAt: c.clock.Now()})
		if err != nil {
			return fmt.Errorf("insert seed %s: %w", seed, err)
		}
		if inserted {
			report.SeedsInserted++
			metrics.ObserveCategoryInserted()
		}
		frontier.push(seed, 0)
	}
	return nil
}

func (c *Crawler) expand(ctx context.Context, frontier *Frontier, parent entry, links []catalog.Link, report *Report) error {
	depth := parent.depth + 1
	withinDepth := c.cfg.MaxDepth == 0 || depth <= c.cfg.MaxDepth
	for _, link := range links {
		if !frontier.MarkIfNew(link.URL) {
			continue
		}
		if !c.followable(parent.url, link.URL) {
			report.Excluded++
			continue
		}
		inserted, err := c.store.InsertCategory(ctx, catalog.Category{
			URL:          link.URL,
			ParentURL:    parent.url,
			Title:        link.Title,
			DiscoveredAt: c.clock.Now(),
		})
		if err != nil {
			return fmt.Errorf("insert category %s: %w", link.URL, err)
		}
		if inserted {
			report.Inserted++
			metrics.ObserveCategoryInserted()
		}
		if (inserted || c.cfg.ExpandKnown) && withinDepth {
			frontier.push(link.URL, depth)
		}
	}
	return nil
}

func (c *Crawler) followable(from, to string) bool {
	host := hostOf(to)
	if c.blocked.Matches(host) {
		return false
	}
	return catalog.SameHost(from, to) || c.allowed.Matches(host)
}

func hostOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	return strings.ToLower(u.Hostname())
}
