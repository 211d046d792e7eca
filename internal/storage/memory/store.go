// Package memory provides in-memory catalog stores and a blob store for
// development and tests.
package memory

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"sort"
	"sync"

	"github.com/JakeFAU/shufersal-scraper/internal/catalog"
)

type productKey struct {
	categoryURL string
	name        string
}

type ledgerKey struct {
	table    string
	column   string
	rowKey   string
	language string
}

// textColumns lists the columns each table exposes to the backfill, with
// whether the backfill may rewrite them.
var textColumns = map[string]map[string]bool{
	"categories": {"title": true, "discovered_at": false},
	"products": {
		"name":           true,
		"price":          false,
		"raw_attributes": false,
		"scraped_at":     false,
	},
}

// referenceColumns hold keys into another table.
var referenceColumns = map[string]map[string]bool{
	"categories": {"parent_url": true},
	"products":   {"category_url": true},
}

var rowKeys = map[string]string{"categories": "url", "products": "id"}

// Store keeps categories, products, and the translation ledger in maps. It
// mirrors the unique keys of the relational schema.
type Store struct {
	mu         sync.RWMutex
	categories map[string]catalog.Category
	order      []string
	products   map[string]catalog.Product
	byName     map[productKey]string
	ledger     map[ledgerKey]string
}

var (
	_ catalog.CategoryStore = (*Store)(nil)
	_ catalog.ProductStore  = (*Store)(nil)
	_ catalog.TextStore     = (*Store)(nil)
)

// NewStore constructs an empty Store.
func NewStore() *Store {
	return &Store{
		categories: make(map[string]catalog.Category),
		products:   make(map[string]catalog.Product),
		byName:     make(map[productKey]string),
		ledger:     make(map[ledgerKey]string),
	}
}

// InsertCategory stores c unless its URL exists. The parent must exist.
func (s *Store) InsertCategory(_ context.Context, c catalog.Category) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c.URL == "" {
		return false, errors.New("category url is required")
	}
	if _, ok := s.categories[c.URL]; ok {
		return false, nil
	}
	if c.ParentURL != "" {
		if _, ok := s.categories[c.ParentURL]; !ok {
			return false, fmt.Errorf("parent %s of %s does not exist", c.ParentURL, c.URL)
		}
	}
	s.categories[c.URL] = c
	s.order = append(s.order, c.URL)
	return true, nil
}

// ListCategoryURLs returns category URLs in insertion order.
func (s *Store) ListCategoryURLs(context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]string(nil), s.order...), nil
}

// HasCategories reports whether any category is stored.
func (s *Store) HasCategories(context.Context) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.order) > 0, nil
}

// Category returns the stored category for url.
func (s *Store) Category(url string) (catalog.Category, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.categories[url]
	return c, ok
}

// UpsertProduct inserts p or updates the row with the same category and name.
func (s *Store) UpsertProduct(_ context.Context, p catalog.Product) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p.ID == "" {
		return false, errors.New("product id is required")
	}
	if _, ok := s.categories[p.CategoryURL]; !ok {
		return false, fmt.Errorf("category %s does not exist", p.CategoryURL)
	}
	p.RawAttributes = maps.Clone(p.RawAttributes)
	key := productKey{categoryURL: p.CategoryURL, name: p.Name}
	if id, ok := s.byName[key]; ok {
		existing := s.products[id]
		existing.Price = p.Price
		existing.RawAttributes = p.RawAttributes
		existing.ScrapedAt = p.ScrapedAt
		s.products[id] = existing
		return false, nil
	}
	s.products[p.ID] = p
	s.byName[key] = p.ID
	return true, nil
}

// Products returns a copy of every product ordered by ID.
func (s *Store) Products() []catalog.Product {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]catalog.Product, 0, len(s.products))
	for _, p := range s.products {
		p.RawAttributes = maps.Clone(p.RawAttributes)
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// CheckColumn mirrors the postgres text store's column rules.
func (s *Store) CheckColumn(_ context.Context, table, column string) error {
	cols, ok := textColumns[table]
	if !ok {
		return &catalog.ColumnNotFoundError{Table: table, Column: column, Reason: "table is not translatable"}
	}
	if column == rowKeys[table] {
		return &catalog.ColumnNotFoundError{Table: table, Column: column, Reason: "column is the row key"}
	}
	if referenceColumns[table][column] {
		return &catalog.ColumnNotFoundError{Table: table, Column: column, Reason: "column references another table"}
	}
	isText, ok := cols[column]
	if !ok {
		return &catalog.ColumnNotFoundError{Table: table, Column: column}
	}
	if !isText {
		return &catalog.ColumnNotFoundError{Table: table, Column: column, Reason: "not a text column"}
	}
	return nil
}

// ReadColumn returns table.column ordered by row key.
func (s *Store) ReadColumn(ctx context.Context, table, column string) ([]catalog.TextRow, error) {
	if err := s.CheckColumn(ctx, table, column); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []catalog.TextRow
	switch table {
	case "categories":
		for url, c := range s.categories {
			v := c.Title
			out = append(out, catalog.TextRow{Key: url, Value: &v})
		}
	case "products":
		for id, p := range s.products {
			v := p.Name
			out = append(out, catalog.TextRow{Key: id, Value: &v})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}

// TranslatedHashes returns the ledger entries for table.column in language.
func (s *Store) TranslatedHashes(_ context.Context, table, column, language string) (map[string]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]string)
	for k, hash := range s.ledger {
		if k.table == table && k.column == column && k.language == language {
			out[k.rowKey] = hash
		}
	}
	return out, nil
}

// WriteTranslation replaces the value and records the ledger entry.
func (s *Store) WriteTranslation(ctx context.Context, v catalog.TranslatedValue) error {
	if err := s.CheckColumn(ctx, v.Table, v.Column); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	switch v.Table {
	case "categories":
		c, ok := s.categories[v.Key]
		if !ok {
			return fmt.Errorf("category %s does not exist", v.Key)
		}
		c.Title = v.Value
		s.categories[v.Key] = c
	case "products":
		p, ok := s.products[v.Key]
		if !ok {
			return fmt.Errorf("product %s does not exist", v.Key)
		}
		delete(s.byName, productKey{categoryURL: p.CategoryURL, name: p.Name})
		p.Name = v.Value
		s.byName[productKey{categoryURL: p.CategoryURL, name: p.Name}] = p.ID
		s.products[v.Key] = p
	}
	s.ledger[ledgerKey{table: v.Table, column: v.Column, rowKey: v.Key, language: v.Language}] = v.ValueHash
	return nil
}
