package postgres

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/shufersal-scraper/internal/catalog"
)

func TestInsertCategoryReportsNewRow(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewCategoryStore(mock)
	require.NoError(t, err)

	now := time.Unix(1700000000, 0).UTC()
	mock.ExpectExec(regexp.QuoteMeta(insertCategorySQL)).
		WithArgs("https://shop.example/cat/dairy/milk", "https://shop.example/cat/dairy", "Milk", now).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec(regexp.QuoteMeta(insertCategorySQL)).
		WithArgs("https://shop.example/cat/dairy", nil, "", now).
		WillReturnResult(pgxmock.NewResult("INSERT", 0))

	inserted, err := store.InsertCategory(context.Background(), catalog.Category{
		URL:          "https://shop.example/cat/dairy/milk",
		ParentURL:    "https://shop.example/cat/dairy",
		Title:        "Milk",
		DiscoveredAt: now,
	})
	require.NoError(t, err)
	assert.True(t, inserted)

	inserted, err = store.InsertCategory(context.Background(), catalog.Category{
		URL:          "https://shop.example/cat/dairy",
		DiscoveredAt: now,
	})
	require.NoError(t, err)
	assert.False(t, inserted, "existing url is left untouched")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestInsertCategoryWrapsDatabaseError(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewCategoryStore(mock)
	require.NoError(t, err)

	boom := errors.New("foreign key violation")
	mock.ExpectExec(regexp.QuoteMeta(insertCategorySQL)).
		WithArgs("https://shop.example/x", "https://shop.example/missing", "", time.Time{}).
		WillReturnError(boom)

	_, err = store.InsertCategory(context.Background(), catalog.Category{
		URL:       "https://shop.example/x",
		ParentURL: "https://shop.example/missing",
	})
	require.ErrorIs(t, err, boom)
}

func TestListCategoryURLs(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewCategoryStore(mock)
	require.NoError(t, err)

	mock.ExpectQuery(regexp.QuoteMeta(listCategoriesSQL)).
		WillReturnRows(pgxmock.NewRows([]string{"url"}).
			AddRow("https://shop.example/cat/dairy").
			AddRow("https://shop.example/cat/dairy/milk"))

	urls, err := store.ListCategoryURLs(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"https://shop.example/cat/dairy", "https://shop.example/cat/dairy/milk"}, urls)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestHasCategories(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewCategoryStore(mock)
	require.NoError(t, err)

	mock.ExpectQuery(regexp.QuoteMeta(hasCategoriesSQL)).
		WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(false))

	has, err := store.HasCategories(context.Background())
	require.NoError(t, err)
	assert.False(t, has)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestNewStoresRequirePool(t *testing.T) {
	t.Parallel()

	_, err := NewCategoryStore(nil)
	require.Error(t, err)
	_, err = NewProductStore(nil)
	require.Error(t, err)
	_, err = NewTextStore(nil, nil)
	require.Error(t, err)
}
