package database

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/JakeFAU/shufersal-scraper/internal/catalog"
)

// Table names owned by the schema manager.
const (
	TableCategories   = "categories"
	TableProducts     = "products"
	TableTranslations = "translations"
)

var schemaDDL = []string{
	`CREATE TABLE IF NOT EXISTS categories (
	url           TEXT PRIMARY KEY,
	parent_url    TEXT NULL REFERENCES categories(url),
	title         TEXT NOT NULL DEFAULT '',
	discovered_at TIMESTAMPTZ NOT NULL
)`,
	`CREATE TABLE IF NOT EXISTS products (
	id             UUID PRIMARY KEY,
	category_url   TEXT NOT NULL REFERENCES categories(url),
	name           TEXT NOT NULL,
	price          NUMERIC(12,2),
	raw_attributes JSONB NOT NULL DEFAULT '{}',
	scraped_at     TIMESTAMPTZ NOT NULL,
	UNIQUE (category_url, name)
)`,
	`CREATE TABLE IF NOT EXISTS translations (
	table_name    TEXT NOT NULL,
	column_name   TEXT NOT NULL,
	row_key       TEXT NOT NULL,
	language      TEXT NOT NULL,
	value_hash    TEXT NOT NULL,
	translated_at TIMESTAMPTZ NOT NULL,
	PRIMARY KEY (table_name, column_name, row_key, language)
)`,
}

type columnSpec struct {
	table    string
	column   string
	dataType string
}

// expectedColumns lists information_schema data types for every owned column.
var expectedColumns = []columnSpec{
	{TableCategories, "url", "text"},
	{TableCategories, "parent_url", "text"},
	{TableCategories, "title", "text"},
	{TableCategories, "discovered_at", "timestamp with time zone"},
	{TableProducts, "id", "uuid"},
	{TableProducts, "category_url", "text"},
	{TableProducts, "name", "text"},
	{TableProducts, "price", "numeric"},
	{TableProducts, "raw_attributes", "jsonb"},
	{TableProducts, "scraped_at", "timestamp with time zone"},
	{TableTranslations, "table_name", "text"},
	{TableTranslations, "column_name", "text"},
	{TableTranslations, "row_key", "text"},
	{TableTranslations, "language", "text"},
	{TableTranslations, "value_hash", "text"},
	{TableTranslations, "translated_at", "timestamp with time zone"},
}

type keySpec struct {
	table   string
	kind    string
	columns string
}

// expectedKeys lists the primary and unique keys the stores rely on: product
// upserts conflict on (category_url, name) and the translation ledger on its
// primary key.
var expectedKeys = []keySpec{
	{TableCategories, "PRIMARY KEY", "url"},
	{TableProducts, "PRIMARY KEY", "id"},
	{TableProducts, "UNIQUE", "category_url,name"},
	{TableTranslations, "PRIMARY KEY", "table_name,column_name,row_key,language"},
}

var keyKinds = map[string]string{"PRIMARY KEY": "primary key", "UNIQUE": "unique key"}

const (
	databaseExistsQuery = `SELECT EXISTS (SELECT 1 FROM pg_database WHERE datname = $1)`
	columnsQuery        = `SELECT table_name, column_name, data_type
FROM information_schema.columns
WHERE table_schema = current_schema() AND table_name = ANY($1)`
	keysQuery = `SELECT tc.table_name, tc.constraint_type,
	string_agg(kcu.column_name, ',' ORDER BY kcu.ordinal_position)
FROM information_schema.table_constraints tc
JOIN information_schema.key_column_usage kcu
	ON kcu.constraint_schema = tc.constraint_schema
	AND kcu.constraint_name = tc.constraint_name
	AND kcu.table_name = tc.table_name
WHERE tc.table_schema = current_schema() AND tc.table_name = ANY($1)
	AND tc.constraint_type IN ('PRIMARY KEY', 'UNIQUE')
GROUP BY tc.table_name, tc.constraint_name, tc.constraint_type`
)

// SchemaManager creates, inspects, and deletes the catalog database.
type SchemaManager struct {
	provider *Provider
	logger   *zap.Logger
}

// NewSchemaManager constructs a SchemaManager.
func NewSchemaManager(provider *Provider, logger *zap.Logger) *SchemaManager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SchemaManager{provider: provider, logger: logger}
}

// SchemaExists reports whether the named database exists. A missing database
// is a normal false result.
func (m *SchemaManager) SchemaExists(ctx context.Context, name string) (bool, error) {
	var exists bool
	err := m.provider.WithPool(ctx, m.provider.MaintenanceDatabase(), func(pool Pool) error {
		var err error
		exists, err = databaseExists(ctx, pool, name)
		return err
	})
	return exists, err
}

// CreateSchema creates the configured database and its tables when absent.
// It is idempotent when the existing structure matches and returns
// *catalog.SchemaConflictError when it does not.
func (m *SchemaManager) CreateSchema(ctx context.Context) error {
	name := m.provider.Database()
	if !validIdentifier.MatchString(name) {
		return fmt.Errorf("invalid database name %q", name)
	}
	err := m.provider.WithPool(ctx, m.provider.MaintenanceDatabase(), func(pool Pool) error {
		exists, err := databaseExists(ctx, pool, name)
		if err != nil {
			return err
		}
		if exists {
			m.logger.Debug("database already exists", zap.String("database", name))
			return nil
		}
		if _, err := pool.Exec(ctx, "CREATE DATABASE "+pgx.Identifier{name}.Sanitize()); err != nil {
			return fmt.Errorf("create database %s: %w", name, err)
		}
		m.logger.Debug("database created", zap.String("database", name))
		return nil
	})
	if err != nil {
		return err
	}

	return m.provider.WithPool(ctx, name, func(pool Pool) error {
		for _, ddl := range schemaDDL {
			if _, err := pool.Exec(ctx, ddl); err != nil {
				return fmt.Errorf("create tables: %w", err)
			}
		}
		if err := verifyColumns(ctx, pool); err != nil {
			return err
		}
		return verifyKeys(ctx, pool)
	})
}

// DropSchema irreversibly deletes the named database. It returns
// *catalog.NotFoundError when the database does not exist.
func (m *SchemaManager) DropSchema(ctx context.Context, name string) error {
	if !validIdentifier.MatchString(name) {
		return fmt.Errorf("invalid database name %q", name)
	}
	return m.provider.WithPool(ctx, m.provider.MaintenanceDatabase(), func(pool Pool) error {
		exists, err := databaseExists(ctx, pool, name)
		if err != nil {
			return err
		}
		if !exists {
			return &catalog.NotFoundError{Name: name}
		}
		if _, err := pool.Exec(ctx, "DROP DATABASE "+pgx.Identifier{name}.Sanitize()); err != nil {
			return fmt.Errorf("drop database %s: %w", name, err)
		}
		m.logger.Debug("database dropped", zap.String("database", name))
		return nil
	})
}

func databaseExists(ctx context.Context, pool Pool, name string) (bool, error) {
	var exists bool
	if err := pool.QueryRow(ctx, databaseExistsQuery, name).Scan(&exists); err != nil {
		return false, fmt.Errorf("check database %s: %w", name, err)
	}
	return exists, nil
}

func verifyColumns(ctx context.Context, pool Pool) error {
	tables := []string{TableCategories, TableProducts, TableTranslations}
	rows, err := pool.Query(ctx, columnsQuery, tables)
	if err != nil {
		return fmt.Errorf("inspect columns: %w", err)
	}
	defer rows.Close()

	got := make(map[string]string)
	for rows.Next() {
		var table, column, dataType string
		if err := rows.Scan(&table, &column, &dataType); err != nil {
			return fmt.Errorf("scan column: %w", err)
		}
		got[table+"."+column] = dataType
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("inspect columns: %w", err)
	}

	for _, want := range expectedColumns {
		actual, ok := got[want.table+"."+want.column]
		if !ok || actual != want.dataType {
			return &catalog.SchemaConflictError{
				Table:  want.table,
				Column: want.column,
				Want:   want.dataType,
				Got:    actual,
			}
		}
	}
	return nil
}

// verifyKeys reports the first expected key missing from the existing tables.
// Extra keys are allowed.
func verifyKeys(ctx context.Context, pool Pool) error {
	tables := []string{TableCategories, TableProducts, TableTranslations}
	rows, err := pool.Query(ctx, keysQuery, tables)
	if err != nil {
		return fmt.Errorf("inspect keys: %w", err)
	}
	defer rows.Close()

	got := make(map[keySpec]bool)
	for rows.Next() {
		var k keySpec
		if err := rows.Scan(&k.table, &k.kind, &k.columns); err != nil {
			return fmt.Errorf("scan key: %w", err)
		}
		got[k] = true
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("inspect keys: %w", err)
	}

	for _, want := range expectedKeys {
		if !got[want] {
			return &catalog.SchemaConflictError{
				Table:  want.table,
				Column: want.columns,
				Want:   keyKinds[want.kind],
			}
		}
	}
	return nil
}
