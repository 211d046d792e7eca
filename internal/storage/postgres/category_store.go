package postgres

import (
	"context"
	"fmt"

	"github.com/JakeFAU/shufersal-scraper/internal/catalog"
)

const (
	insertCategorySQL = `INSERT INTO categories (url, parent_url, title, discovered_at)
VALUES ($1, $2, $3, $4)
ON CONFLICT (url) DO NOTHING`
	listCategoriesSQL = `SELECT url FROM categories ORDER BY discovered_at, url`
	hasCategoriesSQL  = `SELECT EXISTS (SELECT 1 FROM categories)`
)

// CategoryStore persists the category tree.
type CategoryStore struct {
	db Querier
}

var _ catalog.CategoryStore = (*CategoryStore)(nil)

// NewCategoryStore constructs a CategoryStore over db.
func NewCategoryStore(db Querier) (*CategoryStore, error) {
	if db == nil {
		return nil, errNoPool
	}
	return &CategoryStore{db: db}, nil
}

// InsertCategory writes the category unless its URL already exists. The
// unique key on url makes concurrent inserts of the same URL safe.
func (s *CategoryStore) InsertCategory(ctx context.Context, c catalog.Category) (bool, error) {
	if c.URL == "" {
		return false, fmt.Errorf("category url is required")
	}
	tag, err := s.db.Exec(ctx, insertCategorySQL, c.URL, nullable(c.ParentURL), c.Title, c.DiscoveredAt)
	if err != nil {
		return false, fmt.Errorf("insert category %s: %w", c.URL, err)
	}
	return tag.RowsAffected() == 1, nil
}

// ListCategoryURLs returns a snapshot of every stored category URL in
// discovery order.
func (s *CategoryStore) ListCategoryURLs(ctx context.Context) ([]string, error) {
	rows, err := s.db.Query(ctx, listCategoriesSQL)
	if err != nil {
		return nil, fmt.Errorf("list categories: %w", err)
	}
	defer rows.Close()

	var urls []string
	for rows.Next() {
		var url string
		if err := rows.Scan(&url); err != nil {
			return nil, fmt.Errorf("scan category: %w", err)
		}
		urls = append(urls, url)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list categories: %w", err)
	}
	return urls, nil
}

// HasCategories reports whether the table holds at least one row.
func (s *CategoryStore) HasCategories(ctx context.Context) (bool, error) {
	var exists bool
	if err := s.db.QueryRow(ctx, hasCategoriesSQL).Scan(&exists); err != nil {
		return false, fmt.Errorf("check categories: %w", err)
	}
	return exists, nil
}
