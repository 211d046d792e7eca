// Package archive keeps a copy of every fetched page in a blob store so that
// selector changes on the site can be diagnosed after a run.
//
// Objects are named <prefix>/<YYYY-MM-DD>/<sha256 of the URL>.html. A failed
// write is logged and counted; it never fails the fetch.
package archive

import (
	"bytes"
	"context"
	"errors"
	"path"

	"go.uber.org/zap"

	"github.com/JakeFAU/shufersal-scraper/internal/catalog"
	"github.com/JakeFAU/shufersal-scraper/internal/metrics"
	"github.com/JakeFAU/shufersal-scraper/internal/storage"
)

// Fetcher wraps another catalog.Fetcher and archives successful responses.
type Fetcher struct {
	next   catalog.Fetcher
	store  storage.BlobStore
	hasher catalog.Hasher
	clock  catalog.Clock
	prefix string
	logger *zap.Logger
}

// New builds an archiving fetcher around next.
func New(next catalog.Fetcher, store storage.BlobStore, hasher catalog.Hasher, clock catalog.Clock, prefix string, logger *zap.Logger) (*Fetcher, error) {
	switch {
	case next == nil:
		return nil, errors.New("archive: fetcher is required")
	case store == nil:
		return nil, errors.New("archive: blob store is required")
	case hasher == nil:
		return nil, errors.New("archive: hasher is required")
	case clock == nil:
		return nil, errors.New("archive: clock is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Fetcher{
		next:   next,
		store:  store,
		hasher: hasher,
		clock:  clock,
		prefix: prefix,
		logger: logger.Named("archive"),
	}, nil
}

// Fetch delegates to the wrapped fetcher and stores the body on success.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) (catalog.Page, error) {
	page, err := f.next.Fetch(ctx, rawURL)
	if err != nil {
		return page, err
	}
	f.save(ctx, rawURL, page)
	return page, nil
}

func (f *Fetcher) save(ctx context.Context, rawURL string, page catalog.Page) {
	name, err := f.ObjectName(rawURL)
	if err != nil {
		metrics.ObserveArchive("failed")
		f.logger.Warn("archive name failed", zap.String("url", rawURL), zap.Error(err))
		return
	}
	uri, err := f.store.PutObject(ctx, name, "text/html; charset=utf-8", bytes.NewReader(page.Body))
	if err != nil {
		metrics.ObserveArchive("failed")
		f.logger.Warn("archive write failed", zap.String("url", rawURL), zap.Error(err))
		return
	}
	metrics.ObserveArchive("stored")
	f.logger.Debug("page archived", zap.String("url", rawURL), zap.String("uri", uri))
}

// ObjectName returns the blob path rawURL is archived under today.
func (f *Fetcher) ObjectName(rawURL string) (string, error) {
	sum, err := f.hasher.Hash([]byte(rawURL))
	if err != nil {
		return "", err
	}
	day := f.clock.Now().UTC().Format("2006-01-02")
	return path.Join(f.prefix, day, sum+".html"), nil
}
