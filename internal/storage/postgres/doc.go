// Package postgres provides Postgres-backed persistence for categories,
// products, and translated text.
package postgres
