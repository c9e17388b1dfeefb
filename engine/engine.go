package engine

import (
	"errors"
	"fmt"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spaghettifunk/assetloader/engine/assets"
	"github.com/spaghettifunk/assetloader/engine/assets/loaders"
	"github.com/spaghettifunk/assetloader/engine/config"
	"github.com/spaghettifunk/assetloader/engine/core"
	"github.com/spaghettifunk/assetloader/engine/systems"
	"golang.org/x/sync/errgroup"
)

type Stage uint8

const (
	// Engine is in an uninitialized state
	EngineStageUninitialized Stage = iota
	// Engine is currently initializing
	EngineStageInitializing
	// Engine initialization is complete and loads are accepted
	EngineStageInitialized
	// Engine is in the process of shutting down
	EngineStageShuttingDown
	// Engine released every subsystem
	EngineStageShutdown
)

var ErrNotInitialized = errors.New("engine is not initialized")

// Result is the outcome of one reference passed to LoadAll.
type Result struct {
	Reference string
	Resource  *assets.Resource
	Elapsed   time.Duration
	Err       error
}

type Engine struct {
	mu           sync.RWMutex
	currentStage Stage

	config       config.SiteConfig
	registry     prometheus.Registerer
	metrics      *core.LoadMetrics
	jobSystem    *systems.JobSystem
	assetManager *assets.AssetManager
	loader       *assets.AsyncLoader[*assets.Resource]
	missingCSS   []string
}

// New prepares an engine for cfg. Metrics are registered on reg, which may be nil.
func New(cfg config.SiteConfig, reg prometheus.Registerer) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		core.LogError("%s", err)
		return nil, err
	}
	return &Engine{
		currentStage: EngineStageUninitialized,
		config:       cfg,
		registry:     reg,
	}, nil
}

func (e *Engine) Initialize() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.currentStage != EngineStageUninitialized {
		return fmt.Errorf("engine already initialized")
	}
	e.currentStage = EngineStageInitializing
	initialized := false
	defer func() {
		if !initialized {
			e.release()
			e.currentStage = EngineStageUninitialized
		}
	}()

	if err := core.SetLogLevel(e.config.Loader.LogLevel); err != nil {
		return err
	}

	// registered last so a failed Initialize leaves the registry untouched
	metrics, err := core.NewLoadMetrics(nil)
	if err != nil {
		return err
	}
	e.metrics = metrics

	workers := e.config.Loader.Workers
	if workers == 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	js, err := systems.NewJobSystem(workers, e.config.Loader.QueueSize)
	if err != nil {
		return err
	}
	e.jobSystem = js

	var fetcher assets.Fetcher[*assets.Resource]
	switch e.config.Loader.Source {
	case config.SourceHTTP:
		fetcher = loaders.NewHTTPLoader(e.config.Loader.Origin, js, loaders.WithHTTPBaseURL(e.config.App.BaseURL))
	default:
		am, err := assets.NewAssetManager()
		if err != nil {
			return err
		}
		e.assetManager = am
		if err := am.Initialize(e.config.Loader.Root); err != nil {
			return err
		}
		fetcher = loaders.NewFileLoader(e.config.Loader.Root, js, loaders.WithBaseURL(e.config.App.BaseURL))
	}

	e.loader = assets.NewAsyncLoader(fetcher,
		assets.WithStartHook[*assets.Resource](func(string) { metrics.Started() }),
		assets.WithObserver[*assets.Resource](func(_ string, elapsed time.Duration, err error) {
			metrics.Finished(elapsed, err)
		}),
	)

	if err := metrics.Register(e.registry); err != nil {
		return err
	}

	e.missingCSS = e.checkStylesheets()
	for _, css := range e.missingCSS {
		core.LogWarn("stylesheet '%s' is not present under '%s'", css, e.config.Loader.Root)
	}

	initialized = true
	e.currentStage = EngineStageInitialized
	core.LogInfo("Engine initialized: source=%s workers=%d base_url=%s", e.config.Loader.Source, workers, e.config.App.BaseURL)
	return nil
}

func (e *Engine) ready() (*assets.AsyncLoader[*assets.Resource], error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.currentStage != EngineStageInitialized {
		return nil, ErrNotInitialized
	}
	return e.loader, nil
}

// Load fetches a single asset and blocks until it arrives or fails.
func (e *Engine) Load(reference string) (*assets.Resource, error) {
	l, err := e.ready()
	if err != nil {
		return nil, err
	}
	return l.Load(reference)
}

// LoadAsync starts fetching a single asset.
func (e *Engine) LoadAsync(reference string) (*assets.Future[*assets.Resource], error) {
	l, err := e.ready()
	if err != nil {
		return nil, err
	}
	return l.LoadAsync(reference), nil
}

// LoadAll loads every reference concurrently. Results keep the input order and
// one failure never affects the other loads.
func (e *Engine) LoadAll(references []string) ([]Result, error) {
	l, err := e.ready()
	if err != nil {
		return nil, err
	}

	results := make([]Result, len(references))
	var g errgroup.Group
	g.SetLimit(e.jobSystem.Workers())
	for i, ref := range references {
		g.Go(func() error {
			clock := core.NewClock()
			clock.Start()
			res, err := l.Load(ref)
			clock.Stop()
			results[i] = Result{Reference: ref, Resource: res, Elapsed: clock.Elapsed(), Err: err}
			return nil
		})
	}
	_ = g.Wait()
	return results, nil
}

// Assets lists the catalog of the file source. It is empty for the http source.
func (e *Engine) Assets() []assets.AssetInfo {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.assetManager == nil {
		return nil
	}
	return e.assetManager.List()
}

func (e *Engine) Metrics() *core.LoadMetrics {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.metrics
}

func (e *Engine) Stage() Stage {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.currentStage
}

// release stops whatever a failed Initialize managed to build.
func (e *Engine) release() {
	if e.assetManager != nil {
		_ = e.assetManager.Shutdown()
		e.assetManager = nil
	}
	if e.jobSystem != nil {
		_ = e.jobSystem.Shutdown()
		e.jobSystem = nil
	}
	e.loader = nil
	e.metrics = nil
}

// checkStylesheets returns the configured css entries the catalog does not know.
// Only the file source has a catalog; remote stylesheets are not checked.
func (e *Engine) checkStylesheets() []string {
	if e.assetManager == nil {
		return nil
	}
	var missing []string
	for _, css := range e.config.CSS {
		if strings.Contains(css, "://") {
			continue
		}
		rel, err := loaders.TrimReference(css, e.config.App.BaseURL)
		if err != nil {
			missing = append(missing, css)
			continue
		}
		if _, ok := e.assetManager.Lookup(rel); !ok {
			missing = append(missing, css)
		}
	}
	return missing
}

// Site describes the deployment the engine was configured for.
type Site struct {
	SPA          bool
	BaseURL      string
	AssetsPrefix string
	Stylesheets  []string
	// MissingStylesheets lists the css entries not found under the file root.
	MissingStylesheets []string
}

func (e *Engine) Site() Site {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return Site{
		SPA:                !e.config.SSR,
		BaseURL:            e.config.App.BaseURL,
		AssetsPrefix:       e.config.AssetsPrefix(),
		Stylesheets:        append([]string(nil), e.config.CSS...),
		MissingStylesheets: append([]string(nil), e.missingCSS...),
	}
}

// Shutdown stops accepting loads, lets queued fetches finish and releases the watchers.
func (e *Engine) Shutdown() error {
	e.mu.Lock()
	if e.currentStage != EngineStageInitialized {
		e.mu.Unlock()
		return nil
	}
	e.currentStage = EngineStageShuttingDown
	e.mu.Unlock()

	core.LogInfo("Engine shutting down...")
	var errs []error
	if e.jobSystem != nil {
		errs = append(errs, e.jobSystem.Shutdown())
	}
	if e.assetManager != nil {
		errs = append(errs, e.assetManager.Shutdown())
	}

	e.mu.Lock()
	e.currentStage = EngineStageShutdown
	e.mu.Unlock()
	return errors.Join(errs...)
}
