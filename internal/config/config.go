// Package config loads and validates scraper configuration via Viper.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/JakeFAU/shufersal-scraper/internal/extract"
)

// EnvPrefix prefixes every environment override, e.g. SHUFERSAL_DATABASE_PASSWORD.
const EnvPrefix = "SHUFERSAL"

// Config captures all configuration knobs loaded via Viper.
type Config struct {
	Database  DatabaseConfig    `mapstructure:"database"`
	Crawler   CrawlerConfig     `mapstructure:"crawler"`
	Headless  HeadlessConfig    `mapstructure:"headless"`
	Selectors extract.Selectors `mapstructure:"selectors"`
	Translate TranslateConfig   `mapstructure:"translate"`
	Archive   ArchiveConfig     `mapstructure:"archive"`
	Logging   LoggingConfig     `mapstructure:"logging"`
	Metrics   MetricsConfig     `mapstructure:"metrics"`
}

// DatabaseConfig holds credentials and pool limits.
type DatabaseConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	Name            string        `mapstructure:"name"`
	SSLMode         string        `mapstructure:"sslmode"`
	MaintenanceDB   string        `mapstructure:"maintenance_db"`
	MaxConns        int32         `mapstructure:"max_conns"`
	ConnectTimeout  time.Duration `mapstructure:"connect_timeout"`
	MaxConnIdleTime time.Duration `mapstructure:"max_conn_idle_time"`
}

// CrawlerConfig governs discovery and scraping.
type CrawlerConfig struct {
	Seeds               []string          `mapstructure:"seeds"`
	UserAgent           string            `mapstructure:"user_agent"`
	RequestTimeout      time.Duration     `mapstructure:"request_timeout"`
	RequestsPerSecond   float64           `mapstructure:"requests_per_second"`
	Burst               int               `mapstructure:"burst"`
	MaxDepth            int               `mapstructure:"max_depth"`
	MaxVisits           int               `mapstructure:"max_visits"`
	MaxPagesPerCategory int               `mapstructure:"max_pages_per_category"`
	Concurrency         int               `mapstructure:"concurrency"`
	RespectRobots       bool              `mapstructure:"respect_robots"`
	TrackingParams      []string          `mapstructure:"tracking_params"`
	ExpandKnown         bool              `mapstructure:"expand_known"`
	RetryMaxAttempts    int               `mapstructure:"retry_max_attempts"`
	RetryBaseDelay      time.Duration     `mapstructure:"retry_base_delay"`
	RetryMaxDelay       time.Duration     `mapstructure:"retry_max_delay"`
	ForbiddenThreshold  int               `mapstructure:"forbidden_threshold"`
	Headers             map[string]string `mapstructure:"headers"`
	AllowedDomains      []string          `mapstructure:"allowed_domains"`
	BlockedDomains      []string          `mapstructure:"blocked_domains"`
}

// HeadlessConfig configures the optional headless renderer.
type HeadlessConfig struct {
	Enabled             bool          `mapstructure:"enabled"`
	MaxParallel         int           `mapstructure:"max_parallel"`
	NavTimeout          time.Duration `mapstructure:"nav_timeout"`
	SettleDelay         time.Duration `mapstructure:"settle_delay"`
	BodyLengthThreshold int           `mapstructure:"body_length_threshold"`
}

// TranslateConfig configures the translation backfill.
type TranslateConfig struct {
	APIKey            string        `mapstructure:"api_key"`
	Endpoint          string        `mapstructure:"endpoint"`
	SourceLanguage    string        `mapstructure:"source_language"`
	RequestsPerSecond float64       `mapstructure:"requests_per_second"`
	Burst             int           `mapstructure:"burst"`
	Timeout           time.Duration `mapstructure:"timeout"`
}

// Archive backends.
const (
	ArchiveNone  = "none"
	ArchiveLocal = "local"
	ArchiveGCS   = "gcs"
)

// ArchiveConfig selects where raw fetched pages are kept, if anywhere.
type ArchiveConfig struct {
	Backend  string `mapstructure:"backend"`
	Dir      string `mapstructure:"dir"`
	Bucket   string `mapstructure:"bucket"`
	Endpoint string `mapstructure:"endpoint"`
	Prefix   string `mapstructure:"prefix"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool   `mapstructure:"development"`
	Level       string `mapstructure:"level"`
}

// MetricsConfig sets the optional operational listener. Empty disables it.
type MetricsConfig struct {
	Addr string `mapstructure:"addr"`
}

// Load builds a Config from disk/environment. Without a path it looks for an
// optional shufersal.yaml in the working directory, then in
// $HOME/.shufersal-scraper.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	} else {
		v.SetConfigName("shufersal")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.shufersal-scraper")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return Config{}, fmt.Errorf("read config: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.password", "")
	v.SetDefault("database.name", "shufersal")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.maintenance_db", "postgres")
	v.SetDefault("database.max_conns", 4)
	v.SetDefault("database.connect_timeout", "10s")
	v.SetDefault("database.max_conn_idle_time", "30s")

	v.SetDefault("crawler.seeds", []string{"https://www.shufersal.co.il/online/he/A"})
	v.SetDefault("crawler.user_agent", "shufersal-scraper/0.1")
	v.SetDefault("crawler.request_timeout", "20s")
	v.SetDefault("crawler.requests_per_second", 1.0)
	v.SetDefault("crawler.burst", 1)
	v.SetDefault("crawler.max_depth", 0)
	v.SetDefault("crawler.max_visits", 0)
	v.SetDefault("crawler.max_pages_per_category", 50)
	v.SetDefault("crawler.concurrency", 1)
	v.SetDefault("crawler.respect_robots", true)
	v.SetDefault("crawler.tracking_params", []string{})
	v.SetDefault("crawler.expand_known", true)
	v.SetDefault("crawler.retry_max_attempts", 3)
	v.SetDefault("crawler.retry_base_delay", "500ms")
	v.SetDefault("crawler.retry_max_delay", "10s")
	v.SetDefault("crawler.forbidden_threshold", 3)
	v.SetDefault("crawler.allowed_domains", []string{})
	v.SetDefault("crawler.blocked_domains", []string{})
	v.SetDefault("crawler.headers", map[string]string{"Accept-Language": "he-IL,he;q=0.9"})

	v.SetDefault("headless.enabled", false)
	v.SetDefault("headless.max_parallel", 1)
	v.SetDefault("headless.nav_timeout", "25s")
	v.SetDefault("headless.settle_delay", "500ms")
	v.SetDefault("headless.body_length_threshold", 2048)

	sel := extract.DefaultSelectors()
	v.SetDefault("selectors.subcategory_links", sel.SubcategoryLinks)
	v.SetDefault("selectors.product_card", sel.ProductCard)
	v.SetDefault("selectors.product_name", sel.ProductName)
	v.SetDefault("selectors.product_price", sel.ProductPrice)
	v.SetDefault("selectors.product_attributes", sel.ProductAttributes)
	v.SetDefault("selectors.next_page", sel.NextPage)

	v.SetDefault("translate.api_key", "")
	v.SetDefault("translate.endpoint", "")
	v.SetDefault("translate.source_language", "iw")
	v.SetDefault("translate.requests_per_second", 5.0)
	v.SetDefault("translate.burst", 1)
	v.SetDefault("translate.timeout", "30s")

	v.SetDefault("archive.backend", ArchiveNone)
	v.SetDefault("archive.dir", "archive")
	v.SetDefault("archive.bucket", "")
	v.SetDefault("archive.endpoint", "")
	v.SetDefault("archive.prefix", "pages")

	v.SetDefault("logging.development", false)
	v.SetDefault("logging.level", "info")
	v.SetDefault("metrics.addr", "")
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	var errs []error
	if c.Database.Name == "" {
		errs = append(errs, errors.New("database.name is required"))
	}
	if c.Database.Port <= 0 {
		errs = append(errs, errors.New("database.port must be > 0"))
	}
	if c.Database.MaxConns <= 0 {
		errs = append(errs, errors.New("database.max_conns must be > 0"))
	}
	if len(c.Crawler.Seeds) == 0 {
		errs = append(errs, errors.New("crawler.seeds must not be empty"))
	}
	if c.Crawler.RequestTimeout <= 0 {
		errs = append(errs, errors.New("crawler.request_timeout must be > 0"))
	}
	if c.Crawler.Concurrency <= 0 {
		errs = append(errs, errors.New("crawler.concurrency must be > 0"))
	}
	if c.Crawler.MaxDepth < 0 || c.Crawler.MaxVisits < 0 {
		errs = append(errs, errors.New("crawler.max_depth and crawler.max_visits must be >= 0"))
	}
	if c.Crawler.MaxPagesPerCategory <= 0 {
		errs = append(errs, errors.New("crawler.max_pages_per_category must be > 0"))
	}
	if c.Crawler.RetryMaxAttempts <= 0 {
		errs = append(errs, errors.New("crawler.retry_max_attempts must be > 0"))
	}
	if c.Headless.Enabled && c.Headless.MaxParallel <= 0 {
		errs = append(errs, errors.New("headless.max_parallel must be > 0 when headless is enabled"))
	}
	if err := c.Selectors.Validate(); err != nil {
		errs = append(errs, err)
	}
	if c.Translate.Timeout <= 0 {
		errs = append(errs, errors.New("translate.timeout must be > 0"))
	}
	switch c.Archive.Backend {
	case ArchiveNone:
	case ArchiveLocal:
		if c.Archive.Dir == "" {
			errs = append(errs, errors.New("archive.dir is required for the local backend"))
		}
	case ArchiveGCS:
		if c.Archive.Bucket == "" {
			errs = append(errs, errors.New("archive.bucket is required for the gcs backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("archive.backend %q must be one of none, local, gcs", c.Archive.Backend))
	}
	return errors.Join(errs...)
}
