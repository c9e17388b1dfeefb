package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/pelletier/go-toml/v2"
	"github.com/spaghettifunk/assetloader/engine/core"
)

type Source string

const (
	SourceFile Source = "file"
	SourceHTTP Source = "http"
)

/** @brief Deployment settings of the site serving the assets. */
type AppConfig struct {
	/** @brief Path prefix the site is served under. Starts and ends with '/'. */
	BaseURL string `toml:"base_url"`
	/** @brief Directory, relative to BaseURL, holding the built assets. */
	BuildAssetsDir string `toml:"build_assets_dir"`
}

/** @brief Settings for the loaders and the job system behind them. */
type LoaderConfig struct {
	Source Source `toml:"source"`
	/** @brief Directory the file source reads from. */
	Root string `toml:"root"`
	/** @brief Scheme and host the http source requests from. */
	Origin string `toml:"origin"`
	/** @brief Worker count. 0 means one per GOMAXPROCS. */
	Workers   int    `toml:"workers"`
	QueueSize int    `toml:"queue_size"`
	LogLevel  string `toml:"log_level"`
}

type SiteConfig struct {
	/** @brief Server-side rendering. The site runs as a single-page app when false. */
	SSR    bool         `toml:"ssr"`
	CSS    []string     `toml:"css"`
	App    AppConfig    `toml:"app"`
	Loader LoaderConfig `toml:"loader"`
}

func Default() SiteConfig {
	return SiteConfig{
		SSR: false,
		App: AppConfig{
			BaseURL:        "/",
			BuildAssetsDir: "assets",
		},
		Loader: LoaderConfig{
			Source:    SourceFile,
			Root:      "public",
			QueueSize: 64,
			LogLevel:  "info",
		},
	}
}

// Parse decodes a TOML document on top of the defaults and validates the result.
func Parse(data []byte) (SiteConfig, error) {
	cfg := Default()
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return SiteConfig{}, fmt.Errorf("%w: %w", core.ErrInvalidConfig, err)
	}
	if err := cfg.Validate(); err != nil {
		return SiteConfig{}, err
	}
	return cfg, nil
}

func Load(path string) (SiteConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return SiteConfig{}, err
	}
	cfg, err := Parse(data)
	if err != nil {
		return SiteConfig{}, fmt.Errorf("%s: %w", path, err)
	}
	core.LogDebug("configuration loaded from '%s'", path)
	return cfg, nil
}

func (c SiteConfig) Validate() error {
	invalid := func(format string, args ...interface{}) error {
		return fmt.Errorf("%w: %s", core.ErrInvalidConfig, fmt.Sprintf(format, args...))
	}

	if !strings.HasPrefix(c.App.BaseURL, "/") || !strings.HasSuffix(c.App.BaseURL, "/") {
		return invalid("app.base_url %q must start and end with '/'", c.App.BaseURL)
	}
	dir := strings.Trim(c.App.BuildAssetsDir, "/")
	if dir == "" {
		return invalid("app.build_assets_dir must not be empty")
	}
	// static hosts such as GitHub Pages (Jekyll) drop folders starting with '_'
	if strings.HasPrefix(dir, "_") {
		return invalid("app.build_assets_dir %q must not start with '_'", c.App.BuildAssetsDir)
	}

	switch c.Loader.Source {
	case SourceFile:
		if c.Loader.Root == "" {
			return invalid("loader.root is required for the file source")
		}
	case SourceHTTP:
		if c.Loader.Origin == "" {
			return invalid("loader.origin is required for the http source")
		}
	default:
		return invalid("unknown loader.source %q", c.Loader.Source)
	}
	if c.Loader.Workers < 0 {
		return invalid("loader.workers must not be negative")
	}
	if c.Loader.QueueSize < 0 {
		return invalid("loader.queue_size must not be negative")
	}
	if _, err := log.ParseLevel(c.Loader.LogLevel); err != nil {
		return invalid("loader.log_level: %s", err.Error())
	}
	return nil
}

// AssetsPrefix is the URL path under which built assets are served, e.g. "/site/assets/".
func (c SiteConfig) AssetsPrefix() string {
	return c.App.BaseURL + strings.Trim(c.App.BuildAssetsDir, "/") + "/"
}

func (c SiteConfig) Marshal() ([]byte, error) {
	return toml.Marshal(c)
}
