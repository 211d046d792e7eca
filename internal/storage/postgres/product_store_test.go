package postgres

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/shufersal-scraper/internal/catalog"
)

func TestUpsertProductInsertsThenUpdates(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewProductStore(mock)
	require.NoError(t, err)

	first := time.Unix(1700000000, 0).UTC()
	second := first.Add(time.Hour)
	product := catalog.Product{
		ID:            "0190c9b2-0000-7000-8000-000000000001",
		CategoryURL:   "https://shop.example/cat/dairy/milk",
		Name:          "Milk 3%",
		Price:         "6.90",
		RawAttributes: map[string]string{"size": "1L"},
		ScrapedAt:     first,
	}

	mock.ExpectQuery(regexp.QuoteMeta(upsertProductSQL)).
		WithArgs(product.ID, product.CategoryURL, product.Name, pgxmock.AnyArg(), []byte(`{"size":"1L"}`), first).
		WillReturnRows(pgxmock.NewRows([]string{"inserted"}).AddRow(true))
	mock.ExpectQuery(regexp.QuoteMeta(upsertProductSQL)).
		WithArgs("0190c9b2-0000-7000-8000-000000000002", product.CategoryURL, product.Name, pgxmock.AnyArg(), []byte(`{"size":"1L"}`), second).
		WillReturnRows(pgxmock.NewRows([]string{"inserted"}).AddRow(false))

	created, err := store.UpsertProduct(context.Background(), product)
	require.NoError(t, err)
	assert.True(t, created)

	product.ID = "0190c9b2-0000-7000-8000-000000000002"
	product.ScrapedAt = second
	created, err = store.UpsertProduct(context.Background(), product)
	require.NoError(t, err)
	assert.False(t, created)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpsertProductEmptyAttributes(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewProductStore(mock)
	require.NoError(t, err)

	mock.ExpectQuery(regexp.QuoteMeta(upsertProductSQL)).
		WithArgs("id-1", "https://shop.example/c", "Bread", pgxmock.AnyArg(), []byte(`{}`), time.Time{}).
		WillReturnRows(pgxmock.NewRows([]string{"inserted"}).AddRow(true))

	_, err = store.UpsertProduct(context.Background(), catalog.Product{
		ID:          "id-1",
		CategoryURL: "https://shop.example/c",
		Name:        "Bread",
		Price:       "12.00",
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpsertProductRejectsInvalidInput(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewProductStore(mock)
	require.NoError(t, err)

	_, err = store.UpsertProduct(context.Background(), catalog.Product{ID: "id", CategoryURL: "c"})
	require.Error(t, err)

	_, err = store.UpsertProduct(context.Background(), catalog.Product{
		ID: "id", CategoryURL: "c", Name: "n", Price: "not-a-number",
	})
	require.Error(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}
