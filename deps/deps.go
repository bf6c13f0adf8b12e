package deps

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"github.com/InVisionApp/go-health"
	"github.com/newrelic/go-agent/v3/integrations/logcontext-v2/nrzap"
	"github.com/newrelic/go-agent/v3/newrelic"
	"github.com/pkg/errors"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/dselans/melodia-harvester/backends/cache"
	"github.com/dselans/melodia-harvester/backends/output"
	"github.com/dselans/melodia-harvester/clients/discogs"
	"github.com/dselans/melodia-harvester/clients/wiki"
	"github.com/dselans/melodia-harvester/config"
	"github.com/dselans/melodia-harvester/limiter"
	"github.com/dselans/melodia-harvester/services/harvester"
)

const (
	DefaultHealthCheckIntervalSecs = 1
)

type customCheck struct{}

// outputDirCheck fails health when the output location disappears or stops
// being a directory mid-run.
type outputDirCheck struct {
	path string
}

type Dependencies struct {
	// Backends
	CacheBackend cache.ICache
	TrackWriter  output.ITrackWriter
	RateLimiter  limiter.ILimiter

	// Clients
	CatalogClient discogs.IClient
	WikiClient    wiki.IClient

	// Services
	HarvesterService harvester.IHarvester

	Health health.IHealth

	// Global, shared shutdown context - all services listen to this context
	// to know when to shutdown.
	ShutdownCtx context.Context

	// ShutdownCancel is the cancel function for the global shutdown context
	ShutdownCancel context.CancelFunc

	NewRelicApp *newrelic.Application
	Config      *config.Config

	// Log is the main, shared logger (you should use this for all logging)
	Log *zap.Logger

	// ZapCore can be used to generate a brand-new logger (you shouldn't need this very often)
	ZapCore zapcore.Core
}

func New(cfg *config.Config) (*Dependencies, error) {
	ctx, cancel := context.WithCancel(context.Background())

	d := &Dependencies{
		ShutdownCtx:    ctx,
		ShutdownCancel: cancel,
		Config:         cfg,
	}

	// NewRelic setup must occur before logging setup
	if err := d.setupNewRelic(); err != nil {
		return nil, errors.Wrap(err, "unable to setup newrelic")
	}

	if err := d.setupLogging(); err != nil {
		return nil, errors.Wrap(err, "unable to setup logging")
	}

	// Backends before health: the output-dir check needs the writer to have
	// created the output location first.
	if err := d.setupBackends(cfg); err != nil {
		return nil, errors.Wrap(err, "unable to setup backends")
	}

	if err := d.setupHealth(); err != nil {
		return nil, errors.Wrap(err, "unable to setup health")
	}

	if err := d.Health.Start(); err != nil {
		return nil, errors.Wrap(err, "unable to start health runner")
	}

	if err := d.setupClients(cfg); err != nil {
		return nil, errors.Wrap(err, "unable to setup clients")
	}

	if err := d.setupServices(cfg); err != nil {
		return nil, errors.Wrap(err, "unable to setup services")
	}

	return d, nil
}

func (d *Dependencies) setupNewRelic() error {
	if d.Config.NewRelicAppName == "" || d.Config.NewRelicLicenseKey == "" {
		return nil
	}
	app, err := newrelic.NewApplication(
		newrelic.ConfigAppName(d.Config.NewRelicAppName),
		newrelic.ConfigLicense(d.Config.NewRelicLicenseKey),
		newrelic.ConfigAppLogForwardingEnabled(true),
		newrelic.ConfigZapAttributesEncoder(true),
	)

	if err != nil {
		return errors.Wrap(err, "unable to create newrelic app")
	}

	if err := app.WaitForConnection(10 * time.Second); err != nil {
		return errors.Wrap(err, "unable to connect to newrelic")
	}

	d.NewRelicApp = app

	return nil
}

// If using New Relic, setupLogging() should be called _after_ setupNewRelic()
func (d *Dependencies) setupLogging() error {
	var core zapcore.Core

	if d.Config.LogConfig == "dev" {
		zc := zap.NewDevelopmentConfig()
		zc.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder

		core = zapcore.NewCore(zapcore.NewConsoleEncoder(zc.EncoderConfig),
			zapcore.AddSync(os.Stdout),
			zap.DebugLevel,
		)
	} else {
		core = zapcore.NewCore(zapcore.NewJSONEncoder(zap.NewProductionEncoderConfig()),
			zapcore.AddSync(os.Stdout),
			zap.InfoLevel,
		)
	}

	// If using New Relic, wrap zap core with New Relic core
	if d.NewRelicApp != nil {
		var err error

		core, err = nrzap.WrapBackgroundCore(core, d.NewRelicApp)
		if err != nil {
			return errors.Wrap(err, "unable to wrap zap core with newrelic")
		}
	}

	d.ZapCore = core
	d.Log = zap.New(core).With(zap.String("env", d.Config.EnvName))

	d.Log.Debug("Logging initialized")

	return nil
}

func (d *Dependencies) setupHealth() error {
	logger := d.Log.With(zap.String("method", "setupHealth"))
	logger.Debug("Setting up health")

	gohealth := health.New()
	gohealth.DisableLogging()

	err := gohealth.AddChecks([]*health.Config{
		{
			Name:     "health-check",
			Checker:  &customCheck{},
			Interval: time.Duration(DefaultHealthCheckIntervalSecs) * time.Second,
			Fatal:    true,
		},
		{
			Name:     "output-dir-check",
			Checker:  &outputDirCheck{path: d.Config.TracksOutputPath},
			Interval: time.Duration(d.Config.HealthFreqSec) * time.Second,
		},
	})

	d.Health = gohealth

	if err != nil {
		return err
	}

	return nil
}

func (d *Dependencies) setupBackends(cfg *config.Config) error {
	llog := d.Log.With(zap.String("method", "setupBackends"))

	llog.Debug("Setting up cache backend")

	// CacheBackend k/v store
	cb, err := cache.New()
	if err != nil {
		return errors.Wrap(err, "unable to create new cache instance")
	}

	d.CacheBackend = cb

	llog.Debug("Setting up rate limiter")

	rl := limiter.New()
	rl.Register(discogs.HostKey, cfg.DiscogsDelay)
	rl.Register(wiki.HostKey, cfg.WikiDelay)

	d.RateLimiter = rl

	llog.Debug("Setting up track writer")

	tw, err := output.New(&output.Options{
		Path: cfg.TracksOutputPath,
		Log:  d.Log,
	})
	if err != nil {
		return errors.Wrap(err, "unable to create track writer")
	}

	d.TrackWriter = tw

	return nil
}

func (d *Dependencies) setupClients(cfg *config.Config) error {
	llog := d.Log.With(zap.String("method", "setupClients"))

	llog.Debug("Setting up catalog client")

	catalogClient, err := discogs.New(&discogs.Options{
		BaseURL:   cfg.DiscogsAPIURL,
		Token:     cfg.DiscogsToken,
		UserAgent: cfg.UserAgent,
		Limiter:   d.RateLimiter,
		Log:       d.Log,
	})
	if err != nil {
		return errors.Wrap(err, "unable to create catalog client")
	}

	d.CatalogClient = catalogClient

	llog.Debug("Setting up content client")

	wikiClient, err := wiki.New(&wiki.Options{
		APIURL:    cfg.WikiAPIURL,
		Username:  cfg.WikiUsername,
		Password:  cfg.WikiPassword,
		UserAgent: cfg.UserAgent,
		Limiter:   d.RateLimiter,
		Cache:     d.CacheBackend,
		Log:       d.Log,
	})
	if err != nil {
		return errors.Wrap(err, "unable to create content client")
	}

	d.WikiClient = wikiClient

	return nil
}

func (d *Dependencies) setupServices(cfg *config.Config) error {
	logger := d.Log.With(zap.String("method", "setupServices"))
	logger.Debug("Setting up services")

	harvesterService, err := harvester.New(&harvester.Options{
		Catalog: d.CatalogClient,
		Wiki:    d.WikiClient,
		Writer:  d.TrackWriter,
		Config:  cfg,
		Log:     d.Log,
	})
	if err != nil {
		return errors.Wrap(err, "unable to setup harvester service")
	}

	d.HarvesterService = harvesterService

	return nil
}

// Status satisfies the go-health.ICheckable interface
func (c *customCheck) Status() (interface{}, error) {
	if false {
		return nil, errors.New("something major just broke")
	}

	// You can return additional information pertaining to the check as long
	// as it can be JSON marshalled
	return map[string]int{}, nil
}

// Status satisfies the go-health.ICheckable interface
func (c *outputDirCheck) Status() (interface{}, error) {
	dir := filepath.Dir(c.path)

	info, err := os.Stat(dir)
	if err != nil {
		return nil, errors.Wrap(err, "output dir not accessible")
	}

	if !info.IsDir() {
		return nil, errors.Errorf("output path parent %s is not a directory", dir)
	}

	return map[string]string{"dir": dir}, nil
}
