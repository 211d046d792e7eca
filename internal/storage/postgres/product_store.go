package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5/pgtype"

	"github.com/JakeFAU/shufersal-scraper/internal/catalog"
)

// upsertProductSQL reports whether the row was inserted: xmax is zero only
// for a tuple created by this statement.
const upsertProductSQL = `INSERT INTO products (id, category_url, name, price, raw_attributes, scraped_at)
VALUES ($1, $2, $3, $4, $5, $6)
ON CONFLICT (category_url, name) DO UPDATE SET
	price = EXCLUDED.price,
	raw_attributes = EXCLUDED.raw_attributes,
	scraped_at = EXCLUDED.scraped_at
RETURNING (xmax = 0)`

// ProductStore upserts products keyed on (category_url, name).
type ProductStore struct {
	db Querier
}

var _ catalog.ProductStore = (*ProductStore)(nil)

// NewProductStore constructs a ProductStore over db.
func NewProductStore(db Querier) (*ProductStore, error) {
	if db == nil {
		return nil, errNoPool
	}
	return &ProductStore{db: db}, nil
}

// UpsertProduct inserts p or refreshes the mutable fields of the existing
// row. The ID is only used on insert.
func (s *ProductStore) UpsertProduct(ctx context.Context, p catalog.Product) (bool, error) {
	if p.ID == "" || p.CategoryURL == "" || p.Name == "" {
		return false, fmt.Errorf("product id, category url, and name are required")
	}
	var price pgtype.Numeric
	if p.Price != "" {
		if err := price.Scan(p.Price); err != nil {
			return false, fmt.Errorf("product %q price %q: %w", p.Name, p.Price, err)
		}
	}
	attrs := p.RawAttributes
	if attrs == nil {
		attrs = map[string]string{}
	}
	attrsJSON, err := json.Marshal(attrs)
	if err != nil {
		return false, fmt.Errorf("marshal attributes: %w", err)
	}

	var created bool
	err = s.db.QueryRow(ctx, upsertProductSQL,
		p.ID, p.CategoryURL, p.Name, price, attrsJSON, p.ScrapedAt,
	).Scan(&created)
	if err != nil {
		return false, fmt.Errorf("upsert product %q: %w", p.Name, err)
	}
	return created, nil
}
