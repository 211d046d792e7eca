// Package cmd defines and implements the CLI commands of the scraper. Each
// invocation runs exactly one pipeline action.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/shufersal-scraper/internal/app"
	"github.com/JakeFAU/shufersal-scraper/internal/backfill"
	"github.com/JakeFAU/shufersal-scraper/internal/catalog"
	"github.com/JakeFAU/shufersal-scraper/internal/config"
	"github.com/JakeFAU/shufersal-scraper/internal/discovery"
	"github.com/JakeFAU/shufersal-scraper/internal/logging"
	"github.com/JakeFAU/shufersal-scraper/internal/scraper"
)

// appKeyType is the key for storing the App in the context.
type appKeyType string

const appKey appKeyType = "app"

// App is the surface commands use. Tests inject a mock.
type App interface {
	Close()
	Logger() *zap.Logger
	Database() string
	SetStage(name string)
	StartServer(ctx context.Context) func()
	CheckConnection(ctx context.Context) error
	SchemaExists(ctx context.Context) (bool, error)
	CreateSchema(ctx context.Context) error
	DropSchema(ctx context.Context) error
	Discover(ctx context.Context) (discovery.Report, error)
	CheckURLs(ctx context.Context) (bool, error)
	Scrape(ctx context.Context, rawURL string) (scraper.Report, error)
	Translate(ctx context.Context, job catalog.TranslationJob) (backfill.Report, error)
}

// newApp is the application factory. It's a variable so tests can replace it.
var newApp = func(cfg config.Config, logger *zap.Logger) (App, error) {
	return app.New(cfg, logger), nil
}

type rootOptions struct {
	configFile  string
	user        string
	password    string
	database    string
	metricsAddr string
}

// newRootCmd builds the command tree. The returned cleanup releases the App
// and is safe to call more than once; PersistentPostRun does not run when a
// command fails, so callers must invoke it.
func newRootCmd() (*cobra.Command, func()) {
	opts := &rootOptions{}
	var (
		appInstance App
		stopServer  func()
	)
	cleanup := func() {
		if stopServer != nil {
			stopServer()
			stopServer = nil
		}
		if appInstance != nil {
			appInstance.Close()
			appInstance = nil
		}
	}

	cmd := &cobra.Command{
		Use:   "shufersal-scraper",
		Short: "Crawl the Shufersal online catalog into PostgreSQL.",
		Long: `shufersal-scraper discovers the category tree of the Shufersal online store,
scrapes product listings into a relational catalog, and backfills
translations of text columns in place.

Run one action per invocation, in order: create, links, scrape-all, translate.`,
		SilenceUsage:  true,
		SilenceErrors: true,

		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd, opts)
			if err != nil {
				return err
			}
			logger, err := logging.New(logging.Config{
				Development: cfg.Logging.Development,
				Level:       cfg.Logging.Level,
			})
			if err != nil {
				return err
			}
			appInstance, err = newApp(cfg, logger)
			if err != nil {
				return fmt.Errorf("failed to initialize application services: %w", err)
			}
			appInstance.SetStage(cmd.Name())
			stopServer = appInstance.StartServer(cmd.Context())

			ctx := context.WithValue(cmd.Context(), appKey, appInstance)
			cmd.SetContext(ctx)
			return nil
		},

		PersistentPostRun: func(*cobra.Command, []string) {
			cleanup()
		},
	}

	flags := cmd.PersistentFlags()
	flags.StringVar(&opts.configFile, "config", "", "config file (default is ./shufersal.yaml)")
	flags.StringVar(&opts.user, "user", "", "database user (overrides database.user)")
	flags.StringVar(&opts.password, "password", "", "database password (overrides database.password)")
	flags.StringVar(&opts.database, "database", "", "catalog database name (overrides database.name)")
	flags.StringVar(&opts.metricsAddr, "metrics-addr", "", "serve /metrics, /healthz and /status on this address")

	cmd.AddCommand(
		newCreateCmd(),
		newDeleteCmd(),
		newRecreateCmd(),
		newLinksCmd(),
		newScrapeCmd(),
		newScrapeAllCmd(),
		newTranslateCmd(),
	)
	return cmd, cleanup
}

func loadConfig(cmd *cobra.Command, opts *rootOptions) (config.Config, error) {
	cfg, err := config.Load(opts.configFile)
	if err != nil {
		return config.Config{}, err
	}
	flags := cmd.Flags()
	if flags.Changed("user") {
		cfg.Database.User = opts.user
	}
	if flags.Changed("password") {
		cfg.Database.Password = opts.password
	}
	if flags.Changed("database") {
		cfg.Database.Name = opts.database
	}
	if flags.Changed("metrics-addr") {
		cfg.Metrics.Addr = opts.metricsAddr
	}
	if err := cfg.Validate(); err != nil {
		return config.Config{}, err
	}
	return cfg, nil
}

func resolveApp(ctx context.Context) (App, error) {
	appInstance, ok := ctx.Value(appKey).(App)
	if !ok || appInstance == nil {
		return nil, errors.New("application not initialized")
	}
	return appInstance, nil
}

// Execute is the main entry point.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	root, cleanup := newRootCmd()
	err := root.ExecuteContext(ctx)
	cleanup()
	stop()
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
