package scraper

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/shufersal-scraper/internal/catalog"
	"github.com/JakeFAU/shufersal-scraper/internal/extract"
	"github.com/JakeFAU/shufersal-scraper/internal/fetcher/fetchertest"
	"github.com/JakeFAU/shufersal-scraper/internal/storage/memory"
)

const (
	dairy  = "https://shop.example/online/he/dairy"
	bakery = "https://shop.example/online/he/bakery"
)

type fixedClock struct{ t time.Time }

func (c fixedClock) Now() time.Time { return c.t }

type settableClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *settableClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *settableClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = t
}

type seqIDs struct {
	mu sync.Mutex
	n  int
}

func (g *seqIDs) NewID() (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.n++
	return fmt.Sprintf("id-%04d", g.n), nil
}

var now = time.Date(2024, 5, 2, 9, 30, 0, 0, time.UTC)

func newScraper(t *testing.T, cfg Config, f catalog.Fetcher, store *memory.Store) *Scraper {
	t.Helper()
	return newScraperWithClock(t, cfg, f, store, fixedClock{now})
}

func newScraperWithClock(t *testing.T, cfg Config, f catalog.Fetcher, store *memory.Store, clock catalog.Clock) *Scraper {
	t.Helper()
	parser, err := extract.NewParser(extract.DefaultSelectors(), nil)
	require.NoError(t, err)
	s, err := New(cfg, Deps{
		Fetcher:    f,
		Parser:     parser,
		Categories: store,
		Products:   store,
		IDs:        &seqIDs{},
		Clock:      clock,
	})
	require.NoError(t, err)
	return s
}

func seeded(t *testing.T, urls ...string) *memory.Store {
	t.Helper()
	store := memory.NewStore()
	for _, u := range urls {
		_, err := store.InsertCategory(context.Background(), catalog.Category{URL: u, DiscoveredAt: now})
		require.NoError(t, err)
	}
	return store
}

func TestParseDataAllCategoriesConverges(t *testing.T) {
	t.Parallel()

	store := seeded(t, dairy, bakery)
	f := fetchertest.New(map[string]string{
		dairy: fetchertest.ListingPage("",
			fetchertest.Item{Name: "Milk 3%", Price: "6.20"},
			fetchertest.Item{Name: "Gouda", Price: "₪ 1,234.50"},
		),
		bakery: fetchertest.ListingPage("", fetchertest.Item{Name: "Challah", Price: "12,90"}),
	})
	clock := &settableClock{t: now}
	s := newScraperWithClock(t, Config{Concurrency: 2}, f, store, clock)

	first, err := s.ParseData(context.Background(), "")
	require.NoError(t, err)
	assert.Equal(t, 2, first.Categories)
	assert.Equal(t, 2, first.Pages)
	assert.Equal(t, 3, first.Created)
	assert.Zero(t, first.Updated)
	ids := map[string]string{}
	for _, p := range store.Products() {
		ids[p.Name] = p.ID
		assert.Equal(t, now, p.ScrapedAt)
	}

	later := now.Add(6 * time.Hour)
	clock.Set(later)
	f.SetPage(dairy, fetchertest.ListingPage("",
		fetchertest.Item{Name: "Milk 3%", Price: "6.50"},
		fetchertest.Item{Name: "Gouda", Price: "1234.50"},
	))
	second, err := s.ParseData(context.Background(), "")
	require.NoError(t, err)
	assert.Zero(t, second.Created)
	assert.Equal(t, 3, second.Updated)

	products := store.Products()
	require.Len(t, products, 3)
	prices := map[string]string{}
	for _, p := range products {
		prices[p.Name] = p.Price
		assert.Equal(t, later, p.ScrapedAt, p.Name)
		assert.Equal(t, ids[p.Name], p.ID, p.Name)
	}
	assert.Equal(t, map[string]string{"Milk 3%": "6.50", "Gouda": "1234.50", "Challah": "12.90"}, prices)
}

func TestParseDataContainsCategoryFailures(t *testing.T) {
	t.Parallel()

	store := seeded(t, dairy, bakery)
	f := fetchertest.New(map[string]string{
		bakery: fetchertest.ListingPage("", fetchertest.Item{Name: "Pita", Price: "5"}),
	})
	f.FailWith(dairy, errors.New("timeout"))
	s := newScraper(t, Config{}, f, store)

	report, err := s.ParseData(context.Background(), "")
	require.NoError(t, err)
	require.Len(t, report.Failures, 1)
	assert.Equal(t, dairy, report.Failures[0].URL)
	assert.True(t, catalog.IsItemError(report.Failures[0].Err))
	assert.Equal(t, 1, report.Created)
	assert.Len(t, store.Products(), 1)
}

func TestParseDataFollowsPagination(t *testing.T) {
	t.Parallel()

	page2 := dairy + "?page=2"
	store := seeded(t, dairy)
	f := fetchertest.New(map[string]string{
		dairy: fetchertest.ListingPage("?page=2", fetchertest.Item{Name: "Milk", Price: "6"}),
		page2: fetchertest.ListingPage("/online/he/dairy", fetchertest.Item{Name: "Butter", Price: "9"}),
	})
	s := newScraper(t, Config{}, f, store)

	report, err := s.ParseData(context.Background(), "")
	require.NoError(t, err)
	assert.Equal(t, 2, report.Pages)
	assert.Equal(t, 2, report.Created)
	assert.Equal(t, 1, f.Calls(dairy))
	for _, p := range store.Products() {
		assert.Equal(t, dairy, p.CategoryURL)
	}
}

func TestParseDataStopsAtPageLimit(t *testing.T) {
	t.Parallel()

	page2 := dairy + "?page=2"
	store := seeded(t, dairy)
	f := fetchertest.New(map[string]string{
		dairy: fetchertest.ListingPage("?page=2", fetchertest.Item{Name: "Milk", Price: "6"}),
		page2: fetchertest.ListingPage("", fetchertest.Item{Name: "Butter", Price: "9"}),
	})
	s := newScraper(t, Config{MaxPagesPerCategory: 1}, f, store)

	report, err := s.ParseData(context.Background(), "")
	require.NoError(t, err)
	assert.Equal(t, 1, report.Pages)
	assert.Zero(t, f.Calls(page2))
}

func TestParseDataKeepsEarlierPagesWhenPaginationFails(t *testing.T) {
	t.Parallel()

	store := seeded(t, dairy)
	f := fetchertest.New(map[string]string{
		dairy: fetchertest.ListingPage("?page=2", fetchertest.Item{Name: "Milk", Price: "6"}),
	})
	s := newScraper(t, Config{}, f, store)

	report, err := s.ParseData(context.Background(), "")
	require.NoError(t, err)
	assert.Equal(t, 1, report.Created)
	require.Len(t, report.Failures, 1)
	assert.Equal(t, dairy+"?page=2", report.Failures[0].URL)
}

func TestParseDataSkipsMalformedProducts(t *testing.T) {
	t.Parallel()

	store := seeded(t, dairy)
	f := fetchertest.New(map[string]string{
		dairy: fetchertest.ListingPage("",
			fetchertest.Item{Name: "Milk", Price: "6"},
			fetchertest.Item{Name: "Mystery", Price: "call us"},
		),
	})
	s := newScraper(t, Config{}, f, store)

	report, err := s.ParseData(context.Background(), "")
	require.NoError(t, err)
	assert.Equal(t, 1, report.Created)
	require.Len(t, report.Skipped, 1)
	var parseErr *catalog.ParseError
	assert.ErrorAs(t, report.Skipped[0], &parseErr)
}

func TestParseDataSingleURLEnsuresCategory(t *testing.T) {
	t.Parallel()

	store := memory.NewStore()
	f := fetchertest.New(map[string]string{
		dairy: fetchertest.ListingPage("", fetchertest.Item{Name: "Milk", Price: "6"}),
	})
	s := newScraper(t, Config{}, f, store)

	report, err := s.ParseData(context.Background(), dairy+"/#top")
	require.NoError(t, err)
	assert.Equal(t, 1, report.Created)

	c, ok := store.Category(dairy)
	require.True(t, ok)
	assert.Empty(t, c.ParentURL)
}

func TestParseDataRequiresCategories(t *testing.T) {
	t.Parallel()

	s := newScraper(t, Config{}, fetchertest.New(nil), memory.NewStore())
	_, err := s.ParseData(context.Background(), "")
	assert.ErrorIs(t, err, catalog.ErrNoCategories)
}

type failingProducts struct {
	*memory.Store
}

func (failingProducts) UpsertProduct(context.Context, catalog.Product) (bool, error) {
	return false, errors.New("connection lost")
}

func TestParseDataAbortsOnStoreError(t *testing.T) {
	t.Parallel()

	store := seeded(t, dairy)
	parser, err := extract.NewParser(extract.DefaultSelectors(), nil)
	require.NoError(t, err)
	s, err := New(Config{}, Deps{
		Fetcher: fetchertest.New(map[string]string{
			dairy: fetchertest.ListingPage("", fetchertest.Item{Name: "Milk", Price: "6"}),
		}),
		Parser:     parser,
		Categories: store,
		Products:   failingProducts{store},
		IDs:        &seqIDs{},
		Clock:      fixedClock{now},
	})
	require.NoError(t, err)

	_, err = s.ParseData(context.Background(), "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection lost")
}

func TestNewRequiresDependencies(t *testing.T) {
	t.Parallel()

	_, err := New(Config{}, Deps{})
	assert.Error(t, err)
}
