package catalog

import (
	"context"
	"time"
)

// Fetcher retrieves a document. Implementations return *FetchError for
// network failures and non-2xx responses.
type Fetcher interface {
	Fetch(ctx context.Context, rawURL string) (Page, error)
}

// CategoryStore persists the category tree.
type CategoryStore interface {
	// InsertCategory inserts the category unless its URL exists and reports
	// whether a row was written.
	InsertCategory(ctx context.Context, category Category) (bool, error)
	ListCategoryURLs(ctx context.Context) ([]string, error)
	HasCategories(ctx context.Context) (bool, error)
}

// ProductStore persists products keyed on (CategoryURL, Name).
type ProductStore interface {
	// UpsertProduct reports true when a new row was created.
	UpsertProduct(ctx context.Context, product Product) (bool, error)
}

// TextRow is one row of a translatable column. Value is nil for SQL NULL.
type TextRow struct {
	Key   string
	Value *string
}

// TextStore reads and rewrites a single text column in place and keeps the
// ledger of rows already translated.
type TextStore interface {
	// CheckColumn returns *ColumnNotFoundError when the table or column is
	// unknown or not textual.
	CheckColumn(ctx context.Context, table, column string) error
	ReadColumn(ctx context.Context, table, column string) ([]TextRow, error)
	// TranslatedHashes maps row keys to the hash recorded for language.
	TranslatedHashes(ctx context.Context, table, column, language string) (map[string]string, error)
	// WriteTranslation replaces the value and records it in the ledger as
	// one statement.
	WriteTranslation(ctx context.Context, value TranslatedValue) error
}

// Translator renders text in a target language.
type Translator interface {
	Translate(ctx context.Context, text, source, target string) (string, error)
}

// Hasher computes digests for the translation ledger.
type Hasher interface {
	Hash(data []byte) (string, error)
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// IDGenerator produces surrogate keys.
type IDGenerator interface {
	NewID() (string, error)
}
