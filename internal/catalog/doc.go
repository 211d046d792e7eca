// Package catalog defines the domain types, collaborator interfaces, and error
// taxonomy shared by the discovery, scraping, and translation pipeline stages.
package catalog
