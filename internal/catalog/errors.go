package catalog

import (
	"errors"
	"fmt"
)

// ErrNoCategories is returned when ingest runs against an empty category table.
var ErrNoCategories = errors.New("category table is empty")

// ConnectionError reports an unreachable database. It aborts the invocation.
type ConnectionError struct {
	Database string
	Err      error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("connect to database %q: %v", e.Database, e.Err)
}

func (e *ConnectionError) Unwrap() error { return e.Err }

// SchemaConflictError reports an existing table whose structure differs from
// the expected one.
type SchemaConflictError struct {
	Table  string
	Column string
	Want   string
	Got    string
}

func (e *SchemaConflictError) Error() string {
	if e.Got == "" {
		return fmt.Sprintf("schema conflict: %s.%s is missing (want %s)", e.Table, e.Column, e.Want)
	}
	return fmt.Sprintf("schema conflict: %s.%s is %s, want %s", e.Table, e.Column, e.Got, e.Want)
}

// NotFoundError reports a database that does not exist.
type NotFoundError struct {
	Name string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("database %q does not exist", e.Name)
}

// FetchError reports a single page that could not be retrieved.
// StatusCode is zero for transport failures.
type FetchError struct {
	URL        string
	StatusCode int
	Err        error
}

func (e *FetchError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("fetch %s: status %d: %v", e.URL, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("fetch %s: %v", e.URL, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// ParseError reports a single record that could not be extracted.
type ParseError struct {
	URL    string
	Index  int
	Reason string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse %s item %d: %s", e.URL, e.Index, e.Reason)
}

// TranslationServiceError reports the row at which a backfill stopped.
// Row is 1-based in read order.
type TranslationServiceError struct {
	Row int
	Key string
	Err error
}

func (e *TranslationServiceError) Error() string {
	return fmt.Sprintf("translate row %d (key %s): %v", e.Row, e.Key, e.Err)
}

func (e *TranslationServiceError) Unwrap() error { return e.Err }

// ColumnNotFoundError reports a table or column that cannot be translated.
type ColumnNotFoundError struct {
	Table  string
	Column string
	Reason string
}

func (e *ColumnNotFoundError) Error() string {
	if e.Reason == "" {
		return fmt.Sprintf("column %s.%s not found", e.Table, e.Column)
	}
	return fmt.Sprintf("column %s.%s: %s", e.Table, e.Column, e.Reason)
}

// UnsupportedLanguageError reports a target language missing from the catalog.
type UnsupportedLanguageError struct {
	Language string
}

func (e *UnsupportedLanguageError) Error() string {
	return fmt.Sprintf("unsupported language %q", e.Language)
}

// IsItemError reports whether err is contained to a single page, product, or
// row rather than aborting the whole operation.
func IsItemError(err error) bool {
	var fetchErr *FetchError
	var parseErr *ParseError
	return errors.As(err, &fetchErr) || errors.As(err, &parseErr)
}
