// Package backfill translates a text column in place, row by row.
//
// Rows are read in key order. Each non-empty value is sent to the
// translation service and written back together with a ledger entry holding
// the hash of the written value, so a re-run skips rows it already
// translated. The first service failure stops the run; rows written before it
// stay committed.
package backfill

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/shufersal-scraper/internal/catalog"
	"github.com/JakeFAU/shufersal-scraper/internal/metrics"
	"github.com/JakeFAU/shufersal-scraper/internal/translator"
)

// limiterKey is the rate limiter bucket shared by all translation calls.
const limiterKey = "translate"

// DefaultTimeout bounds a single translation call.
const DefaultTimeout = 30 * time.Second

// Limiter paces translation calls.
type Limiter interface {
	Wait(ctx context.Context, key string) error
}

// Config tunes the backfill.
type Config struct {
	// SourceLanguage is the language of stored values. Empty lets the
	// service detect it.
	SourceLanguage string
	Timeout        time.Duration
}

// Report summarizes a backfill. Catalog is set only for a catalog request.
type Report struct {
	Language     string
	Rows         int
	Translated   int
	SkippedEmpty int
	SkippedDone  int
	Catalog      map[string]string
}

// Backfill runs translation jobs.
type Backfill struct {
	store      catalog.TextStore
	translator catalog.Translator
	hasher     catalog.Hasher
	limiter    Limiter
	cfg        Config
	logger     *zap.Logger
}

// New constructs a Backfill. store and translator may be nil when only
// catalog requests are served.
func New(
	cfg Config,
	store catalog.TextStore,
	tr catalog.Translator,
	hasher catalog.Hasher,
	limiter Limiter,
	logger *zap.Logger,
) (*Backfill, error) {
	if hasher == nil {
		return nil, errors.New("backfill: hasher is required")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Backfill{
		store:      store,
		translator: tr,
		hasher:     hasher,
		limiter:    limiter,
		cfg:        cfg,
		logger:     logger.Named("backfill"),
	}, nil
}

// Translate runs job. A target of "languages" returns the language catalog
// without touching the store.
func (b *Backfill) Translate(ctx context.Context, job catalog.TranslationJob) (Report, error) {
	if translator.IsCatalogRequest(job.TargetLanguage) {
		return Report{Catalog: maps.Clone(translator.Languages)}, nil
	}
	lang, ok := translator.LookupLanguage(job.TargetLanguage)
	if !ok {
		return Report{}, &catalog.UnsupportedLanguageError{Language: job.TargetLanguage}
	}
	if b.store == nil || b.translator == nil {
		return Report{}, errors.New("backfill: text store and translator are required")
	}

	report := Report{Language: lang}
	if err := b.store.CheckColumn(ctx, job.Table, job.Column); err != nil {
		return report, err
	}
	rows, err := b.store.ReadColumn(ctx, job.Table, job.Column)
	if err != nil {
		return report, fmt.Errorf("read %s.%s: %w", job.Table, job.Column, err)
	}
	done, err := b.store.TranslatedHashes(ctx, job.Table, job.Column, lang)
	if err != nil {
		return report, fmt.Errorf("read translation ledger: %w", err)
	}

	for i, row := range rows {
		report.Rows++
		if row.Value == nil || strings.TrimSpace(*row.Value) == "" {
			report.SkippedEmpty++
			continue
		}
		current, err := b.hasher.Hash([]byte(*row.Value))
		if err != nil {
			return report, fmt.Errorf("hash row %s: %w", row.Key, err)
		}
		if prev, ok := done[row.Key]; ok && prev == current {
			report.SkippedDone++
			metrics.ObserveTranslation(job.Table, "skipped")
			continue
		}

		translated, err := b.translateOne(ctx, *row.Value, lang)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return report, ctxErr
			}
			metrics.ObserveTranslation(job.Table, "error")
			return report, &catalog.TranslationServiceError{Row: i + 1, Key: row.Key, Err: err}
		}
		hash, err := b.hasher.Hash([]byte(translated))
		if err != nil {
			return report, fmt.Errorf("hash row %s: %w", row.Key, err)
		}
		if err := b.store.WriteTranslation(ctx, catalog.TranslatedValue{
			Table:     job.Table,
			Column:    job.Column,
			Key:       row.Key,
			Language:  lang,
			Value:     translated,
			ValueHash: hash,
		}); err != nil {
			return report, fmt.Errorf("write row %s: %w", row.Key, err)
		}
		report.Translated++
		metrics.ObserveTranslation(job.Table, "translated")
		b.logger.Debug("row translated", zap.Int("row", i+1), zap.String("key", row.Key))
	}
	return report, nil
}

func (b *Backfill) translateOne(ctx context.Context, text, lang string) (string, error) {
	if b.limiter != nil {
		if err := b.limiter.Wait(ctx, limiterKey); err != nil {
			return "", err
		}
	}
	callCtx, cancel := context.WithTimeout(ctx, b.cfg.Timeout)
	defer cancel()
	return b.translator.Translate(callCtx, text, b.cfg.SourceLanguage, lang)
}
