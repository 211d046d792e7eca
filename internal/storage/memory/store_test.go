package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/shufersal-scraper/internal/catalog"
)

func TestStoreCategories(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := NewStore()

	has, err := s.HasCategories(ctx)
	require.NoError(t, err)
	assert.False(t, has)

	inserted, err := s.InsertCategory(ctx, catalog.Category{URL: "https://shop.example/cat/dairy"})
	require.NoError(t, err)
	assert.True(t, inserted)

	inserted, err = s.InsertCategory(ctx, catalog.Category{URL: "https://shop.example/cat/dairy", Title: "again"})
	require.NoError(t, err)
	assert.False(t, inserted)

	_, err = s.InsertCategory(ctx, catalog.Category{URL: "https://shop.example/x", ParentURL: "https://shop.example/missing"})
	require.Error(t, err, "parent must exist")

	urls, err := s.ListCategoryURLs(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"https://shop.example/cat/dairy"}, urls)
}

func TestStoreUpsertProductConverges(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := NewStore()
	_, err := s.InsertCategory(ctx, catalog.Category{URL: "c"})
	require.NoError(t, err)

	created, err := s.UpsertProduct(ctx, catalog.Product{ID: "1", CategoryURL: "c", Name: "Milk", Price: "5.00"})
	require.NoError(t, err)
	assert.True(t, created)

	later := time.Unix(1700000000, 0)
	created, err = s.UpsertProduct(ctx, catalog.Product{ID: "2", CategoryURL: "c", Name: "Milk", Price: "6.00", ScrapedAt: later})
	require.NoError(t, err)
	assert.False(t, created)

	products := s.Products()
	require.Len(t, products, 1)
	assert.Equal(t, "1", products[0].ID)
	assert.Equal(t, "6.00", products[0].Price)
	assert.Equal(t, later, products[0].ScrapedAt)

	_, err = s.UpsertProduct(ctx, catalog.Product{ID: "3", CategoryURL: "missing", Name: "x"})
	require.Error(t, err)
}

func TestStoreTextColumns(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := NewStore()
	_, err := s.InsertCategory(ctx, catalog.Category{URL: "c", Title: "חלב"})
	require.NoError(t, err)

	var colErr *catalog.ColumnNotFoundError
	require.ErrorAs(t, s.CheckColumn(ctx, "products", "price"), &colErr)
	require.ErrorAs(t, s.CheckColumn(ctx, "products", "nope"), &colErr)
	require.ErrorAs(t, s.CheckColumn(ctx, "orders", "name"), &colErr)
	require.NoError(t, s.CheckColumn(ctx, "categories", "title"))
	require.NoError(t, s.CheckColumn(ctx, "products", "name"))

	for table, column := range map[string]string{"categories": "parent_url", "products": "category_url"} {
		require.ErrorAs(t, s.CheckColumn(ctx, table, column), &colErr)
		assert.Equal(t, "column references another table", colErr.Reason)
		_, err := s.ReadColumn(ctx, table, column)
		require.ErrorAs(t, err, &colErr)
	}
	require.ErrorAs(t, s.WriteTranslation(ctx, catalog.TranslatedValue{
		Table: "categories", Column: "parent_url", Key: "c", Language: "en", Value: "x", ValueHash: "h",
	}), &colErr)

	require.NoError(t, s.WriteTranslation(ctx, catalog.TranslatedValue{
		Table: "categories", Column: "title", Key: "c", Language: "en", Value: "Milk", ValueHash: "h",
	}))
	rows, err := s.ReadColumn(ctx, "categories", "title")
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "Milk", *rows[0].Value)

	hashes, err := s.TranslatedHashes(ctx, "categories", "title", "en")
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"c": "h"}, hashes)
}
