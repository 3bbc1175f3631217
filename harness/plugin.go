// Package harness is the test-runner plugin that provisions ephemeral test
// infrastructure around a run: the test database, media sandbox, cache
// backend, eager task queue, live HTTP server, search daemon, virtual
// framebuffer, and failure screenshots.
//
// The runner drives the plugin through Begin, BeforeTest/AfterTest per test,
// HandleFailure/HandleError on failing tests, and Finalize. All hooks are
// synchronous; tests run sequentially, so per-test state never overlaps.
package harness

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	"github.com/akheron/nosedjango/cache"
	"github.com/akheron/nosedjango/component"
	"github.com/akheron/nosedjango/database"
	"github.com/akheron/nosedjango/liveserver"
	"github.com/akheron/nosedjango/logger"
	"github.com/akheron/nosedjango/media"
	"github.com/akheron/nosedjango/sandbox"
	"github.com/akheron/nosedjango/screenshot"
	"github.com/akheron/nosedjango/search"
	"github.com/akheron/nosedjango/settings"
	"github.com/akheron/nosedjango/tasks"
	"github.com/akheron/nosedjango/urlconf"
	"github.com/akheron/nosedjango/xvfb"
)

// Plugin sequences the run lifecycle. Create it with New, optionally register
// models and URL configurations, then hand the hooks to the runner.
type Plugin struct {
	opts   Options
	models []interface{}
	log    *logger.Logger
	runID  string

	loaded   *settings.Loaded
	restores []settings.Restore

	registry  *component.Registry
	lifecycle *database.Lifecycle
	mediaBox  *media.Sandbox
	cacheBack *cache.Backend
	queue     *tasks.Queue
	frame     *xvfb.Framebuffer
	server    *liveserver.Server
	searchInt *search.Integration
	capturer  *screenshot.Capturer
	resolver  *urlconf.Resolver

	ops      *sandbox.GormOps
	bindings *sandbox.Bindings

	// per-test state, valid between BeforeTest and AfterTest
	box        *sandbox.Sandbox
	urlRestore urlconf.Restore
	daemonTest bool

	begun bool
}

// New creates a plugin from parsed options.
func New(opts Options) *Plugin {
	opts.ApplyDefaults()
	log := logger.New(&logger.Config{Level: opts.logLevel()})
	logger.SetGlobalLogger(log)

	return &Plugin{
		opts:     opts,
		log:      log.WithComponent("harness"),
		registry: component.NewRegistry(),
		resolver: urlconf.NewResolver(log),
	}
}

// WithModels registers models migrated into the test database at Begin.
func (p *Plugin) WithModels(models ...interface{}) *Plugin {
	p.models = append(p.models, models...)
	return p
}

// URLConfs returns the URL-configuration resolver for route registration.
func (p *Plugin) URLConfs() *urlconf.Resolver {
	return p.resolver
}

// DB returns the test database handle, valid after Begin.
func (p *Plugin) DB() *database.DB {
	return p.lifecycle.DB()
}

// Sandbox returns the current test's transaction sandbox, or nil outside a
// test or for non-transactional tests.
func (p *Plugin) Sandbox() *sandbox.Sandbox {
	if p.box == nil || p.box.State() != sandbox.StateTransactional {
		return nil
	}
	return p.box
}

// Bindings returns the transaction-control bindings table injected into code
// under test.
func (p *Plugin) Bindings() *sandbox.Bindings {
	return p.bindings
}

// Cache returns the in-process cache backend, valid after Begin.
func (p *Plugin) Cache() *cache.Backend {
	return p.cacheBack
}

// Tasks returns the eager task queue, valid after Begin.
func (p *Plugin) Tasks() *tasks.Queue {
	return p.queue
}

// Media returns the filesystem sandbox, valid after Begin.
func (p *Plugin) Media() *media.Sandbox {
	return p.mediaBox
}

// LiveServer returns the demand-started live server, valid after Begin.
func (p *Plugin) LiveServer() *liveserver.Server {
	return p.server
}

// Settings returns the effective settings for the run, valid after Begin.
func (p *Plugin) Settings() *settings.Settings {
	if p.loaded == nil {
		return nil
	}
	return p.loaded.Settings
}

// Begin locates and loads the settings, applies the run overrides, and starts
// every run-scoped component. Any error here is fatal: the run cannot proceed
// without its database.
func (p *Plugin) Begin(ctx context.Context) error {
	p.runID = uuid.NewString()[:8]

	loaded, err := settings.Load(settings.LoadOptions{Name: p.opts.Settings})
	if err != nil {
		return err
	}
	p.loaded = loaded
	s := loaded.Settings

	p.log = p.log.WithFields(map[string]interface{}{logger.FieldRunID: p.runID})
	p.log.Info("Test run starting", map[string]interface{}{
		"settings": loaded.Path,
	})

	// Debug-mode error pages change framework behavior under test; force it
	// off for the run, restoring at Finalize.
	p.restores = append(p.restores, s.Override(func(s *settings.Settings) {
		s.Base.Debug = false
	}))

	if p.opts.UseSQLite {
		p.restores = append(p.restores, s.Override(func(s *settings.Settings) {
			s.Database.Engine = "sqlite"
			s.Database.Name = "" // in-memory database
			s.Database.User = ""
			s.Database.Password = ""
		}))
	}
	if p.opts.SearchConfigTemplate != "" {
		p.restores = append(p.restores, s.Override(func(s *settings.Settings) {
			s.Search.ConfigTemplate = p.opts.SearchConfigTemplate
		}))
	}

	mediaCfg := s.Media
	mediaCfg.Root = s.ResolveMediaRoot(loaded.Dir)
	p.mediaBox = media.NewSandbox(mediaCfg, p.log)
	p.cacheBack = cache.NewBackend(p.log)
	p.queue = tasks.NewQueue(s.Tasks.Eager, p.log)
	p.lifecycle = database.NewLifecycle(s.Database, p.log).WithModels(p.models...)
	p.server = liveserver.New(s.LiveServer, p.handlerSource(), p.log)
	p.capturer = screenshot.NewCapturer(p.opts.ScreenshotDir, p.log)

	components := []component.Component{p.mediaBox, p.cacheBack, p.queue}
	if p.opts.XvfbDisplay != "" {
		p.frame = xvfb.New(p.opts.XvfbDisplay, p.log)
		components = append(components, p.frame)
	}
	components = append(components, p.lifecycle, p.server)

	for _, c := range components {
		if err := p.registry.Register(c); err != nil {
			return err
		}
	}
	if err := p.registry.StartAll(ctx); err != nil {
		return err
	}

	// Route all cache traffic to the embedded, run-private store and make
	// sure no query-result cache survives between tests.
	p.restores = append(p.restores, s.Override(func(s *settings.Settings) {
		s.Cache.Addr = p.cacheBack.Addr()
		s.Cache.DisableQueryCache = true
	}))

	// Asynchronous side effects must be observable inside the test itself.
	p.restores = append(p.restores, settings.Restore(p.queue.ForceEager()))

	p.ops = sandbox.NewGormOps(p.lifecycle.DB())
	p.bindings = sandbox.NewBindings(p.ops)
	p.searchInt = search.New(s.Search, p.lifecycle.Config(), p.log)

	p.begun = true
	return nil
}

// BeforeTest prepares the infrastructure for one test: it decides the
// isolation mode, enters the sandbox or flushes the store, loads declared
// fixtures, installs an URL override, and services live-server and search
// requests.
func (p *Plugin) BeforeTest(ctx context.Context, test TestCase) error {
	if !p.begun {
		return nil
	}

	log := p.log.WithFields(map[string]interface{}{logger.FieldTest: test.ID()})

	dbCfg := p.lifecycle.Config()
	p.box = sandbox.New(p.lifecycle.DB(), dbCfg, p.bindings, p.ops, p.log)

	if sandbox.Eligible(transactionPreference(test), dbCfg) {
		if err := p.box.Enter(ctx); err != nil {
			return err
		}
	} else {
		// no rollback safety net; reset the store the hard way
		if err := p.lifecycle.Flush(ctx); err != nil {
			return err
		}
		p.box.MarkFlushed()
		log.Debug("Store flushed for non-transactional test")
	}

	if provider, ok := test.(FixtureProvider); ok {
		// Fixture rows go through the sandbox transaction when there is one,
		// so they vanish with the rollback.
		session := p.lifecycle.DB().WithContext(ctx)
		if p.box.State() == sandbox.StateTransactional {
			session = p.box.Tx().WithContext(ctx)
		}
		if err := p.lifecycle.LoadFixturesIn(session, provider.Fixtures()...); err != nil {
			return err
		}
	}

	if provider, ok := test.(URLConfProvider); ok {
		restore, err := p.resolver.Install(provider.URLConf())
		if err != nil {
			return err
		}
		p.urlRestore = restore
	}

	if requester, ok := test.(LiveServerRequester); ok && requester.NeedsLiveServer() {
		if err := p.server.EnsureStarted(ctx); err != nil {
			return err
		}
	}

	p.startSearch(ctx, test, log)
	return nil
}

// startSearch services index-build and daemon requests. Failures are reported
// through the log but do not fail the test.
func (p *Plugin) startSearch(ctx context.Context, test TestCase, log *logger.Logger) {
	if !p.searchInt.Active() {
		return
	}

	if requester, ok := test.(DaemonRequester); ok && requester.RunSearchDaemon() {
		p.daemonTest = true
	}

	if requester, ok := test.(IndexRequester); ok && requester.BuildSearchIndex() {
		if err := p.searchInt.BuildIndex(ctx); err != nil {
			log.Error("Search index build failed", logger.ErrorFields("index", err))
		}
	}
	if p.daemonTest {
		if err := p.searchInt.StartDaemon(ctx); err != nil {
			log.Error("Search daemon start failed", logger.ErrorFields("searchd", err))
		}
	}
}

// AfterTest tears the per-test state down: the sandbox exits (restoring the
// transaction bindings and rolling back), the URL override reverts, and a
// per-test search daemon is stopped. It runs whether the test passed, failed,
// or errored.
func (p *Plugin) AfterTest(ctx context.Context, test TestCase) error {
	if !p.begun {
		return nil
	}

	var firstErr error

	if p.box != nil {
		if err := p.box.Exit(ctx); err != nil {
			firstErr = err
		}
		p.box = nil
	}

	if p.urlRestore != nil {
		p.urlRestore()
		p.urlRestore = nil
	}

	if p.daemonTest {
		if err := p.searchInt.StopDaemon(); err != nil {
			p.log.Warn("Failed to stop search daemon", logger.ErrorFields("searchd", err))
		}
		p.daemonTest = false
	}

	return firstErr
}

// HandleFailure captures a failure screenshot for opted-in tests.
func (p *Plugin) HandleFailure(test TestCase, testErr error) {
	p.maybeScreenshot(test)
}

// HandleError captures a failure screenshot for opted-in tests.
func (p *Plugin) HandleError(test TestCase, testErr error) {
	p.maybeScreenshot(test)
}

func (p *Plugin) maybeScreenshot(test TestCase) {
	requester, ok := test.(ScreenshotRequester)
	if !ok || !requester.TakeFailureScreenshot() {
		return
	}

	source, attr := driverSource(test)
	if source == nil {
		p.log.Error("Error attempting to take failure screenshot", map[string]interface{}{
			logger.FieldTest: test.ID(),
		})
		return
	}
	p.capturer.Capture(test.ID(), source, attr)
}

// Finalize tears down everything Begin built, in reverse order: search
// artifacts, then the components (live server, database, framebuffer, task
// queue, cache, media sandbox), then the settings overrides LIFO. A run that
// never touched an optional integration finalizes cleanly.
func (p *Plugin) Finalize(ctx context.Context) error {
	if !p.begun {
		return nil
	}
	p.begun = false

	if err := p.searchInt.Finalize(); err != nil {
		p.log.Warn("Search finalization failed", logger.ErrorFields("search", err))
	}

	err := p.registry.StopAll(ctx)

	for i := len(p.restores) - 1; i >= 0; i-- {
		p.restores[i]()
	}
	p.restores = nil

	// belt and braces: no cached URL resolution survives the run
	p.resolver.ClearCache()

	p.log.Info("Test run finished")
	return err
}

// handlerSource resolves the live server's handler through the URL resolver
// at start time.
func (p *Plugin) handlerSource() liveserver.HandlerSource {
	return func() (http.Handler, error) {
		engine, err := p.resolver.Handler()
		if err != nil {
			return nil, err
		}
		return engine, nil
	}
}
