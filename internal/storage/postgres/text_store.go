package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/JakeFAU/shufersal-scraper/internal/catalog"
)

// TranslatableTables maps each table the backfill may rewrite to its row key.
var TranslatableTables = map[string]string{
	"categories": "url",
	"products":   "id",
}

// TranslatableColumns lists the free-text columns the backfill may rewrite.
var TranslatableColumns = map[string]map[string]bool{
	"categories": {"title": true},
	"products":   {"name": true},
}

// referenceColumns hold keys into another table. Rewriting them would break
// the foreign key or the (category_url, name) unique key.
var referenceColumns = map[string]map[string]bool{
	"categories": {"parent_url": true},
	"products":   {"category_url": true},
}

const (
	columnTypeSQL = `SELECT data_type FROM information_schema.columns
WHERE table_schema = current_schema() AND table_name = $1 AND column_name = $2`
	translatedHashesSQL = `SELECT row_key, value_hash FROM translations
WHERE table_name = $1 AND column_name = $2 AND language = $3`
)

// TextStore rewrites text columns of the translatable tables. Identifiers are
// checked against information_schema and quoted before they reach SQL.
type TextStore struct {
	db  Querier
	now func() time.Time
}

var _ catalog.TextStore = (*TextStore)(nil)

// NewTextStore constructs a TextStore. clock stamps ledger entries.
func NewTextStore(db Querier, clock catalog.Clock) (*TextStore, error) {
	if db == nil {
		return nil, errNoPool
	}
	now := time.Now
	if clock != nil {
		now = clock.Now
	}
	return &TextStore{db: db, now: now}, nil
}

// CheckColumn verifies that table is translatable and column is one of its
// free-text columns.
func (s *TextStore) CheckColumn(ctx context.Context, table, column string) error {
	key, ok := TranslatableTables[table]
	if !ok {
		return &catalog.ColumnNotFoundError{Table: table, Column: column, Reason: "table is not translatable"}
	}
	if column == key {
		return &catalog.ColumnNotFoundError{Table: table, Column: column, Reason: "column is the row key"}
	}
	if referenceColumns[table][column] {
		return &catalog.ColumnNotFoundError{Table: table, Column: column, Reason: "column references another table"}
	}
	var dataType string
	err := s.db.QueryRow(ctx, columnTypeSQL, table, column).Scan(&dataType)
	if errors.Is(err, pgx.ErrNoRows) {
		return &catalog.ColumnNotFoundError{Table: table, Column: column}
	}
	if err != nil {
		return fmt.Errorf("inspect column %s.%s: %w", table, column, err)
	}
	switch dataType {
	case "text", "character varying":
		if !TranslatableColumns[table][column] {
			return &catalog.ColumnNotFoundError{Table: table, Column: column, Reason: "column is not free text"}
		}
		return nil
	default:
		return &catalog.ColumnNotFoundError{
			Table:  table,
			Column: column,
			Reason: fmt.Sprintf("%s is not a text column", dataType),
		}
	}
}

// ReadColumn returns every row of table.column ordered by row key.
func (s *TextStore) ReadColumn(ctx context.Context, table, column string) ([]catalog.TextRow, error) {
	key, err := keyColumn(table)
	if err != nil {
		return nil, err
	}
	query := fmt.Sprintf("SELECT %s::text, %s FROM %s ORDER BY %s",
		ident(key), ident(column), ident(table), ident(key))
	rows, err := s.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("read %s.%s: %w", table, column, err)
	}
	defer rows.Close()

	var out []catalog.TextRow
	for rows.Next() {
		var row catalog.TextRow
		if err := rows.Scan(&row.Key, &row.Value); err != nil {
			return nil, fmt.Errorf("scan %s.%s: %w", table, column, err)
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read %s.%s: %w", table, column, err)
	}
	return out, nil
}

// TranslatedHashes returns the ledger for table.column in language.
func (s *TextStore) TranslatedHashes(ctx context.Context, table, column, language string) (map[string]string, error) {
	rows, err := s.db.Query(ctx, translatedHashesSQL, table, column, language)
	if err != nil {
		return nil, fmt.Errorf("read translation ledger: %w", err)
	}
	defer rows.Close()

	out := make(map[string]string)
	for rows.Next() {
		var key, hash string
		if err := rows.Scan(&key, &hash); err != nil {
			return nil, fmt.Errorf("scan translation ledger: %w", err)
		}
		out[key] = hash
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read translation ledger: %w", err)
	}
	return out, nil
}

// WriteTranslation updates the row and upserts its ledger entry in a single
// statement, so a committed value always has a matching ledger row.
func (s *TextStore) WriteTranslation(ctx context.Context, v catalog.TranslatedValue) error {
	key, err := keyColumn(v.Table)
	if err != nil {
		return err
	}
	query := fmt.Sprintf(`WITH updated AS (
	UPDATE %s SET %s = $1 WHERE %s::text = $2 RETURNING 1
)
INSERT INTO translations (table_name, column_name, row_key, language, value_hash, translated_at)
SELECT $3::text, $4::text, $2::text, $5::text, $6::text, $7::timestamptz FROM updated
ON CONFLICT (table_name, column_name, row_key, language) DO UPDATE SET
	value_hash = EXCLUDED.value_hash,
	translated_at = EXCLUDED.translated_at`, ident(v.Table), ident(v.Column), ident(key))

	tag, err := s.db.Exec(ctx, query, v.Value, v.Key, v.Table, v.Column, v.Language, v.ValueHash, s.now().UTC())
	if err != nil {
		return fmt.Errorf("write %s.%s key %s: %w", v.Table, v.Column, v.Key, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("write %s.%s: row %s no longer exists", v.Table, v.Column, v.Key)
	}
	return nil
}

func keyColumn(table string) (string, error) {
	key, ok := TranslatableTables[table]
	if !ok {
		return "", &catalog.ColumnNotFoundError{Table: table, Reason: "table is not translatable"}
	}
	return key, nil
}

func ident(name string) string {
	return pgx.Identifier{name}.Sanitize()
}
