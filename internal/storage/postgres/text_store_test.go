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

type fixedClock struct{ t time.Time }

func (c fixedClock) Now() time.Time { return c.t }

func strPtr(s string) *string { return &s }

func TestCheckColumn(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewTextStore(mock, nil)
	require.NoError(t, err)
	ctx := context.Background()

	mock.ExpectQuery(regexp.QuoteMeta(columnTypeSQL)).
		WithArgs("products", "name").
		WillReturnRows(pgxmock.NewRows([]string{"data_type"}).AddRow("text"))
	mock.ExpectQuery(regexp.QuoteMeta(columnTypeSQL)).
		WithArgs("products", "colour").
		WillReturnRows(pgxmock.NewRows([]string{"data_type"}))
	mock.ExpectQuery(regexp.QuoteMeta(columnTypeSQL)).
		WithArgs("products", "price").
		WillReturnRows(pgxmock.NewRows([]string{"data_type"}).AddRow("numeric"))

	require.NoError(t, store.CheckColumn(ctx, "products", "name"))

	var colErr *catalog.ColumnNotFoundError
	err = store.CheckColumn(ctx, "products", "colour")
	require.ErrorAs(t, err, &colErr)
	assert.Equal(t, "colour", colErr.Column)

	err = store.CheckColumn(ctx, "products", "price")
	require.ErrorAs(t, err, &colErr)
	assert.Contains(t, colErr.Reason, "numeric")

	err = store.CheckColumn(ctx, "orders", "name")
	require.ErrorAs(t, err, &colErr)
	assert.Equal(t, "orders", colErr.Table)

	err = store.CheckColumn(ctx, "categories", "url")
	require.ErrorAs(t, err, &colErr)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCheckColumnRejectsReferenceColumns(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewTextStore(mock, nil)
	require.NoError(t, err)
	ctx := context.Background()

	mock.ExpectQuery(regexp.QuoteMeta(columnTypeSQL)).
		WithArgs("products", "barcode").
		WillReturnRows(pgxmock.NewRows([]string{"data_type"}).AddRow("text"))

	tests := []struct {
		table, column, reason string
	}{
		{"categories", "parent_url", "references another table"},
		{"products", "category_url", "references another table"},
		{"products", "barcode", "not free text"},
	}
	for _, tt := range tests {
		var colErr *catalog.ColumnNotFoundError
		err := store.CheckColumn(ctx, tt.table, tt.column)
		require.ErrorAs(t, err, &colErr, "%s.%s", tt.table, tt.column)
		assert.Equal(t, tt.column, colErr.Column)
		assert.Contains(t, colErr.Reason, tt.reason)
	}

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestReadColumnKeepsNulls(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewTextStore(mock, nil)
	require.NoError(t, err)

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT "id"::text, "name" FROM "products" ORDER BY "id"`)).
		WillReturnRows(pgxmock.NewRows([]string{"id", "name"}).
			AddRow("1", strPtr("חלב")).
			AddRow("2", nil))

	rows, err := store.ReadColumn(context.Background(), "products", "name")
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "1", rows[0].Key)
	require.NotNil(t, rows[0].Value)
	assert.Equal(t, "חלב", *rows[0].Value)
	assert.Nil(t, rows[1].Value)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestTranslatedHashes(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewTextStore(mock, nil)
	require.NoError(t, err)

	mock.ExpectQuery(regexp.QuoteMeta(translatedHashesSQL)).
		WithArgs("categories", "title", "en").
		WillReturnRows(pgxmock.NewRows([]string{"row_key", "value_hash"}).
			AddRow("https://shop.example/cat/dairy", "abc"))

	hashes, err := store.TranslatedHashes(context.Background(), "categories", "title", "en")
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"https://shop.example/cat/dairy": "abc"}, hashes)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestWriteTranslation(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	now := time.Unix(1700000000, 0).UTC()
	store, err := NewTextStore(mock, fixedClock{t: now})
	require.NoError(t, err)

	mock.ExpectExec(`UPDATE "products" SET "name" = \$1 WHERE "id"::text = \$2`).
		WithArgs("Milk", "1", "products", "name", "en", "hash-1", now).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec(`UPDATE "products" SET "name"`).
		WithArgs("Bread", "9", "products", "name", "en", "hash-9", now).
		WillReturnResult(pgxmock.NewResult("INSERT", 0))
	mock.ExpectExec(`UPDATE "products" SET "name"`).
		WithArgs("Eggs", "3", "products", "name", "en", "hash-3", now).
		WillReturnError(errors.New("deadlock detected"))

	ctx := context.Background()
	require.NoError(t, store.WriteTranslation(ctx, catalog.TranslatedValue{
		Table: "products", Column: "name", Key: "1", Language: "en", Value: "Milk", ValueHash: "hash-1",
	}))
	require.Error(t, store.WriteTranslation(ctx, catalog.TranslatedValue{
		Table: "products", Column: "name", Key: "9", Language: "en", Value: "Bread", ValueHash: "hash-9",
	}))
	require.Error(t, store.WriteTranslation(ctx, catalog.TranslatedValue{
		Table: "products", Column: "name", Key: "3", Language: "en", Value: "Eggs", ValueHash: "hash-3",
	}))
	require.NoError(t, mock.ExpectationsWereMet())
}
