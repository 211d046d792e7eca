// Package scraper ingests product listings for known categories.
package scraper

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/JakeFAU/shufersal-scraper/internal/catalog"
	"github.com/JakeFAU/shufersal-scraper/internal/extract"
	"github.com/JakeFAU/shufersal-scraper/internal/metrics"
)

// DefaultMaxPagesPerCategory bounds pagination when no limit is configured.
const DefaultMaxPagesPerCategory = 50

// Config tunes a scrape run.
type Config struct {
	MaxPagesPerCategory int
	// Concurrency is the number of categories scraped at once.
	Concurrency int
}

// Failure is a page that could not be fetched or parsed.
type Failure struct {
	URL string
	Err error
}

// Report summarizes a scrape run. Skipped holds the per-product parse errors.
type Report struct {
	Categories int
	Pages      int
	Created    int
	Updated    int
	Skipped    []error
	Failures   []Failure
}

func (r *Report) merge(o Report) {
	r.Categories += o.Categories
	r.Pages += o.Pages
	r.Created += o.Created
	r.Updated += o.Updated
	r.Skipped = append(r.Skipped, o.Skipped...)
	r.Failures = append(r.Failures, o.Failures...)
}

// Scraper fetches listing pages and upserts their products.
type Scraper struct {
	fetcher    catalog.Fetcher
	parser     *extract.Parser
	categories catalog.CategoryStore
	products   catalog.ProductStore
	ids        catalog.IDGenerator
	clock      catalog.Clock
	norm       *catalog.URLNormalizer
	cfg        Config
	logger     *zap.Logger
}

// Deps groups the collaborators of a Scraper.
type Deps struct {
	Fetcher    catalog.Fetcher
	Parser     *extract.Parser
	Categories catalog.CategoryStore
	Products   catalog.ProductStore
	IDs        catalog.IDGenerator
	Clock      catalog.Clock
	Normalizer *catalog.URLNormalizer
	Logger     *zap.Logger
}

// New constructs a Scraper.
func New(cfg Config, deps Deps) (*Scraper, error) {
	switch {
	case deps.Fetcher == nil:
		return nil, errors.New("scraper: fetcher is required")
	case deps.Parser == nil:
		return nil, errors.New("scraper: parser is required")
	case deps.Categories == nil || deps.Products == nil:
		return nil, errors.New("scraper: category and product stores are required")
	case deps.IDs == nil || deps.Clock == nil:
		return nil, errors.New("scraper: id generator and clock are required")
	}
	if cfg.MaxPagesPerCategory <= 0 {
		cfg.MaxPagesPerCategory = DefaultMaxPagesPerCategory
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}
	if deps.Normalizer == nil {
		deps.Normalizer = catalog.NewURLNormalizer(nil)
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	return &Scraper{
		fetcher:    deps.Fetcher,
		parser:     deps.Parser,
		categories: deps.Categories,
		products:   deps.Products,
		ids:        deps.IDs,
		clock:      deps.Clock,
		norm:       deps.Normalizer,
		cfg:        cfg,
		logger:     deps.Logger.Named("scraper"),
	}, nil
}

// ParseData scrapes one category when rawURL is set, otherwise every stored
// category. Fetch and parse failures are reported per page; a store error
// aborts the run.
func (s *Scraper) ParseData(ctx context.Context, rawURL string) (Report, error) {
	targets, err := s.targets(ctx, rawURL)
	if err != nil {
		return Report{}, err
	}

	var (
		mu     sync.Mutex
		report Report
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.Concurrency)
	for _, categoryURL := range targets {
		g.Go(func() error {
			part, err := s.scrapeCategory(gctx, categoryURL)
			mu.Lock()
			report.merge(part)
			mu.Unlock()
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return report, err
	}
	sort.Slice(report.Failures, func(i, j int) bool { return report.Failures[i].URL < report.Failures[j].URL })
	return report, nil
}

func (s *Scraper) targets(ctx context.Context, rawURL string) ([]string, error) {
	if rawURL != "" {
		categoryURL, err := s.norm.Normalize("", rawURL)
		if err != nil {
			return nil, fmt.Errorf("category url %q: %w", rawURL, err)
		}
		if _, err := s.categories.InsertCategory(ctx, catalog.Category{
			URL:          categoryURL,
			DiscoveredAt: s.clock.Now(),
		}); err != nil {
			return nil, fmt.Errorf("ensure category %s: %w", categoryURL, err)
		}
		return []string{categoryURL}, nil
	}
	urls, err := s.categories.ListCategoryURLs(ctx)
	if err != nil {
		return nil, fmt.Errorf("list categories: %w", err)
	}
	if len(urls) == 0 {
		return nil, catalog.ErrNoCategories
	}
	return urls, nil
}

func (s *Scraper) scrapeCategory(ctx context.Context, categoryURL string) (Report, error) {
	report := Report{Categories: 1}
	seen := make(map[string]struct{})
	pageURL := categoryURL
	for report.Pages < s.cfg.MaxPagesPerCategory {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		seen[pageURL] = struct{}{}
		page, err := s.fetcher.Fetch(ctx, pageURL)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return report, ctxErr
			}
			report.Failures = append(report.Failures, Failure{URL: pageURL, Err: err})
			return report, nil
		}
		report.Pages++
		doc, err := s.parser.Parse(page)
		if err != nil {
			report.Failures = append(report.Failures, Failure{URL: pageURL, Err: err})
			return report, nil
		}

		products, parseErrs := doc.Products()
		report.Skipped = append(report.Skipped, parseErrs...)
		for _, p := range products {
			created, err := s.store(ctx, categoryURL, p)
			if err != nil {
				return report, err
			}
			if created {
				report.Created++
				metrics.ObserveProduct("created")
			} else {
				report.Updated++
				metrics.ObserveProduct("updated")
			}
		}
		s.logger.Debug("page scraped",
			zap.String("url", pageURL),
			zap.Int("products", len(products)),
			zap.Int("skipped", len(parseErrs)),
		)

		next, ok := doc.NextPage()
		if !ok {
			break
		}
		if _, dup := seen[next]; dup {
			s.logger.Debug("pagination cycle", zap.String("url", next))
			break
		}
		pageURL = next
	}
	return report, nil
}

func (s *Scraper) store(ctx context.Context, categoryURL string, p catalog.Product) (bool, error) {
	id, err := s.ids.NewID()
	if err != nil {
		return false, fmt.Errorf("product id: %w", err)
	}
	p.ID = id
	p.CategoryURL = categoryURL
	p.ScrapedAt = s.clock.Now()
	created, err := s.products.UpsertProduct(ctx, p)
	if err != nil {
		return false, fmt.Errorf("upsert product %q in %s: %w", p.Name, categoryURL, err)
	}
	return created, nil
}
