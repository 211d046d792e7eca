// Package app builds the pipeline components from configuration and holds the
// resources one CLI invocation owns. Commands talk to it through the methods
// below; every resource opened here is released by Close.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"

	"go.uber.org/zap"

	"github.com/JakeFAU/shufersal-scraper/internal/archive"
	"github.com/JakeFAU/shufersal-scraper/internal/backfill"
	"github.com/JakeFAU/shufersal-scraper/internal/catalog"
	"github.com/JakeFAU/shufersal-scraper/internal/clock/system"
	"github.com/JakeFAU/shufersal-scraper/internal/config"
	"github.com/JakeFAU/shufersal-scraper/internal/database"
	"github.com/JakeFAU/shufersal-scraper/internal/discovery"
	"github.com/JakeFAU/shufersal-scraper/internal/extract"
	collyfetcher "github.com/JakeFAU/shufersal-scraper/internal/fetcher/colly"
	headlessfetcher "github.com/JakeFAU/shufersal-scraper/internal/fetcher/headless"
	"github.com/JakeFAU/shufersal-scraper/internal/hash/sha256"
	"github.com/JakeFAU/shufersal-scraper/internal/headless/detector"
	"github.com/JakeFAU/shufersal-scraper/internal/id/uuid"
	"github.com/JakeFAU/shufersal-scraper/internal/policy/ratelimit"
	"github.com/JakeFAU/shufersal-scraper/internal/policy/retry"
	"github.com/JakeFAU/shufersal-scraper/internal/scraper"
	"github.com/JakeFAU/shufersal-scraper/internal/server"
	"github.com/JakeFAU/shufersal-scraper/internal/storage"
	"github.com/JakeFAU/shufersal-scraper/internal/storage/gcs"
	"github.com/JakeFAU/shufersal-scraper/internal/storage/local"
	pgstore "github.com/JakeFAU/shufersal-scraper/internal/storage/postgres"
	"github.com/JakeFAU/shufersal-scraper/internal/translator"
)

// App holds the shared services of one invocation.
type App struct {
	cfg      config.Config
	logger   *zap.Logger
	clock    catalog.Clock
	provider *database.Provider
	schema   *database.SchemaManager
	norm     *catalog.URLNormalizer
	stage    *server.Stage

	mu      sync.Mutex
	pool    database.Pool
	fetch   catalog.Fetcher
	closers []func()
}

// New creates an App. No connection is opened until a stage needs one.
func New(cfg config.Config, logger *zap.Logger) *App {
	if logger == nil {
		logger = zap.NewNop()
	}
	provider := database.NewProvider(database.Config{
		Host:            cfg.Database.Host,
		Port:            cfg.Database.Port,
		User:            cfg.Database.User,
		Password:        cfg.Database.Password,
		Database:        cfg.Database.Name,
		SSLMode:         cfg.Database.SSLMode,
		MaintenanceDB:   cfg.Database.MaintenanceDB,
		MaxConns:        cfg.Database.MaxConns,
		ConnectTimeout:  cfg.Database.ConnectTimeout,
		MaxConnIdleTime: cfg.Database.MaxConnIdleTime,
	})
	clock := system.New()
	return &App{
		cfg:      cfg,
		logger:   logger,
		clock:    clock,
		provider: provider,
		schema:   database.NewSchemaManager(provider, logger.Named("schema")),
		norm:     catalog.NewURLNormalizer(cfg.Crawler.TrackingParams),
		stage:    server.NewStage(clock),
	}
}

// Logger returns the shared logger.
func (a *App) Logger() *zap.Logger {
	return a.logger
}

// Database returns the configured catalog database name.
func (a *App) Database() string {
	return a.provider.Database()
}

// SetStage records the running pipeline action for the status endpoint.
func (a *App) SetStage(name string) {
	a.stage.Set(name)
}

// StartServer serves the operational endpoints when metrics.addr is set. The
// returned function stops the server.
func (a *App) StartServer(ctx context.Context) func() {
	if a.cfg.Metrics.Addr == "" {
		return func() {}
	}
	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	srv := server.New(a.provider, a.stage, a.logger)
	go func() {
		defer close(done)
		if err := srv.Serve(ctx, a.cfg.Metrics.Addr); err != nil {
			a.logger.Warn("metrics server stopped", zap.Error(err))
		}
	}()
	return func() {
		cancel()
		<-done
	}
}

// CheckConnection verifies the server accepts the configured credentials.
func (a *App) CheckConnection(ctx context.Context) error {
	return a.provider.CheckConnection(ctx)
}

// SchemaExists reports whether the catalog database exists.
func (a *App) SchemaExists(ctx context.Context) (bool, error) {
	return a.schema.SchemaExists(ctx, a.provider.Database())
}

// CreateSchema creates the catalog database and tables.
func (a *App) CreateSchema(ctx context.Context) error {
	return a.schema.CreateSchema(ctx)
}

// DropSchema deletes the catalog database.
func (a *App) DropSchema(ctx context.Context) error {
	return a.schema.DropSchema(ctx, a.provider.Database())
}

// Discover runs link discovery from the configured seeds.
func (a *App) Discover(ctx context.Context) (discovery.Report, error) {
	crawler, err := a.discoveryCrawler(ctx)
	if err != nil {
		return discovery.Report{}, err
	}
	return crawler.Discover(ctx)
}

// CheckURLs reports whether discovery has stored any category.
func (a *App) CheckURLs(ctx context.Context) (bool, error) {
	crawler, err := a.discoveryCrawler(ctx)
	if err != nil {
		return false, err
	}
	return crawler.CheckURLs(ctx)
}

// Scrape ingests products for rawURL, or for every category when empty.
func (a *App) Scrape(ctx context.Context, rawURL string) (scraper.Report, error) {
	pool, err := a.catalogPool(ctx)
	if err != nil {
		return scraper.Report{}, err
	}
	categories, err := pgstore.NewCategoryStore(pool)
	if err != nil {
		return scraper.Report{}, err
	}
	products, err := pgstore.NewProductStore(pool)
	if err != nil {
		return scraper.Report{}, err
	}
	fetcher, err := a.fetcher(ctx)
	if err != nil {
		return scraper.Report{}, err
	}
	parser, err := extract.NewParser(a.cfg.Selectors, a.norm)
	if err != nil {
		return scraper.Report{}, err
	}
	s, err := scraper.New(scraper.Config{
		MaxPagesPerCategory: a.cfg.Crawler.MaxPagesPerCategory,
		Concurrency:         a.cfg.Crawler.Concurrency,
	}, scraper.Deps{
		Fetcher:    fetcher,
		Parser:     parser,
		Categories: categories,
		Products:   products,
		IDs:        uuid.New(),
		Clock:      a.clock,
		Normalizer: a.norm,
		Logger:     a.logger,
	})
	if err != nil {
		return scraper.Report{}, err
	}
	return s.ParseData(ctx, rawURL)
}

// Translate runs a translation backfill. A catalog request never connects
// to the database or the translation service.
func (a *App) Translate(ctx context.Context, job catalog.TranslationJob) (backfill.Report, error) {
	var (
		store catalog.TextStore
		tr    catalog.Translator
	)
	if !translator.IsCatalogRequest(job.TargetLanguage) {
		pool, err := a.catalogPool(ctx)
		if err != nil {
			return backfill.Report{}, err
		}
		textStore, err := pgstore.NewTextStore(pool, a.clock)
		if err != nil {
			return backfill.Report{}, err
		}
		client, err := translator.New(ctx, translator.Config{
			APIKey:   a.cfg.Translate.APIKey,
			Endpoint: a.cfg.Translate.Endpoint,
		}, a.logger)
		if err != nil {
			return backfill.Report{}, err
		}
		a.addCloser(func() {
			if err := client.Close(); err != nil {
				a.logger.Warn("translate client close failed", zap.Error(err))
			}
		})
		store, tr = textStore, client
	}
	limiter := ratelimit.New(ratelimit.Config{
		DefaultRPS:   a.cfg.Translate.RequestsPerSecond,
		DefaultBurst: a.cfg.Translate.Burst,
	})
	b, err := backfill.New(backfill.Config{
		SourceLanguage: a.cfg.Translate.SourceLanguage,
		Timeout:        a.cfg.Translate.Timeout,
	}, store, tr, sha256.New(), limiter, a.logger)
	if err != nil {
		return backfill.Report{}, err
	}
	return b.Translate(ctx, job)
}

// Close releases everything opened for the invocation and flushes the logger.
func (a *App) Close() {
	a.mu.Lock()
	closers := a.closers
	a.closers = nil
	pool := a.pool
	a.pool = nil
	a.mu.Unlock()

	for i := len(closers) - 1; i >= 0; i-- {
		closers[i]()
	}
	if pool != nil {
		pool.Close()
	}
	_ = a.logger.Sync()
}

func (a *App) discoveryCrawler(ctx context.Context) (*discovery.Crawler, error) {
	pool, err := a.catalogPool(ctx)
	if err != nil {
		return nil, err
	}
	store, err := pgstore.NewCategoryStore(pool)
	if err != nil {
		return nil, err
	}
	fetcher, err := a.fetcher(ctx)
	if err != nil {
		return nil, err
	}
	parser, err := extract.NewParser(a.cfg.Selectors, a.norm)
	if err != nil {
		return nil, err
	}
	return discovery.New(discovery.Config{
		Seeds:              a.cfg.Crawler.Seeds,
		MaxDepth:           a.cfg.Crawler.MaxDepth,
		MaxVisits:          a.cfg.Crawler.MaxVisits,
		ExpandKnown:        a.cfg.Crawler.ExpandKnown,
		ForbiddenThreshold: a.cfg.Crawler.ForbiddenThreshold,
		AllowedDomains:     a.cfg.Crawler.AllowedDomains,
		BlockedDomains:     a.cfg.Crawler.BlockedDomains,
	}, fetcher, parser, store, a.norm, a.clock, a.logger)
}

// catalogPool opens the catalog database once per invocation.
func (a *App) catalogPool(ctx context.Context) (database.Pool, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.pool != nil {
		return a.pool, nil
	}
	pool, err := a.provider.Open(ctx, a.provider.Database())
	if err != nil {
		return nil, err
	}
	a.pool = pool
	return pool, nil
}

// fetcher builds the page fetcher once per invocation. Headless promotion and
// the page archive wrap the colly fetcher when configured.
func (a *App) fetcher(ctx context.Context) (catalog.Fetcher, error) {
	a.mu.Lock()
	cached := a.fetch
	a.mu.Unlock()
	if cached != nil {
		return cached, nil
	}
	f, err := a.buildFetcher()
	if err != nil {
		return nil, err
	}
	if f, err = a.withArchive(ctx, f); err != nil {
		return nil, err
	}
	a.mu.Lock()
	a.fetch = f
	a.mu.Unlock()
	return f, nil
}

func (a *App) buildFetcher() (catalog.Fetcher, error) {
	headers := make(http.Header, len(a.cfg.Crawler.Headers))
	for k, v := range a.cfg.Crawler.Headers {
		headers.Set(k, v)
	}
	limiter := ratelimit.New(ratelimit.Config{
		DefaultRPS:   a.cfg.Crawler.RequestsPerSecond,
		DefaultBurst: a.cfg.Crawler.Burst,
	})
	policy := retry.NewExponentialPolicy(
		a.cfg.Crawler.RetryMaxAttempts,
		a.cfg.Crawler.RetryBaseDelay,
		a.cfg.Crawler.RetryMaxDelay,
	)
	static := collyfetcher.New(collyfetcher.Config{
		UserAgent:     a.cfg.Crawler.UserAgent,
		RespectRobots: a.cfg.Crawler.RespectRobots,
		Timeout:       a.cfg.Crawler.RequestTimeout,
		Headers:       headers,
	},
		collyfetcher.WithLimiter(limiter),
		collyfetcher.WithRetryPolicy(policy),
		collyfetcher.WithLogger(a.logger),
	)
	if !a.cfg.Headless.Enabled {
		return static, nil
	}

	rendered, err := headlessfetcher.NewChromedp(headlessfetcher.Config{
		MaxParallel:       a.cfg.Headless.MaxParallel,
		UserAgent:         a.cfg.Crawler.UserAgent,
		NavigationTimeout: a.cfg.Headless.NavTimeout,
		SettleDelay:       a.cfg.Headless.SettleDelay,
		Headers:           headers,
	})
	if err != nil {
		return nil, fmt.Errorf("start headless browser: %w", err)
	}
	a.addCloser(rendered.Close)
	det := detector.NewHeuristic(
		a.cfg.Headless.BodyLengthThreshold,
		a.cfg.Selectors.SubcategoryLinks,
		a.cfg.Selectors.ProductCard,
	)
	return headlessfetcher.NewPromoter(static, rendered, det, a.logger), nil
}

func (a *App) withArchive(ctx context.Context, next catalog.Fetcher) (catalog.Fetcher, error) {
	var blobs storage.BlobStore
	switch a.cfg.Archive.Backend {
	case config.ArchiveLocal:
		store, err := local.New(local.Config{BaseDir: a.cfg.Archive.Dir})
		if err != nil {
			return nil, fmt.Errorf("open page archive: %w", err)
		}
		blobs = store
	case config.ArchiveGCS:
		store, err := gcs.Open(ctx, gcs.Config{
			Bucket:   a.cfg.Archive.Bucket,
			Endpoint: a.cfg.Archive.Endpoint,
		})
		if err != nil {
			return nil, fmt.Errorf("open page archive: %w", err)
		}
		a.addCloser(func() {
			if err := store.Close(); err != nil {
				a.logger.Warn("archive client close failed", zap.Error(err))
			}
		})
		blobs = store
	default:
		return next, nil
	}
	return archive.New(next, blobs, sha256.New(), a.clock, a.cfg.Archive.Prefix, a.logger)
}

func (a *App) addCloser(fn func()) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.closers = append(a.closers, fn)
}

// IsConnectionError reports whether err means the database was unreachable.
func IsConnectionError(err error) bool {
	var connErr *catalog.ConnectionError
	return errors.As(err, &connErr)
}
