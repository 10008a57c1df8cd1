package main

import (
	"context"
	"os"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"cian_scrooper/calltracking"
	"cian_scrooper/httputil"
	"cian_scrooper/listings"
	"cian_scrooper/lock"
	"cian_scrooper/resolver"
	"cian_scrooper/scraper"
	"cian_scrooper/storage"
)

// app holds everything a scraping command needs. close releases it in
// reverse order of construction.
type app struct {
	store     *storage.SQLiteStore
	artifacts *storage.Artifacts
	lock      *lock.RunLock
	orch      *scraper.Orchestrator
	closers   []func()
}

func (a *app) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}

func openStore() (*storage.SQLiteStore, error) {
	store, err := storage.NewSQLiteStore(cfg.DBPath)
	if err != nil {
		return nil, eris.Wrapf(err, "open sqlite %s", cfg.DBPath)
	}
	return store, nil
}

func openLock() (*lock.RunLock, *storage.Artifacts, error) {
	artifacts, err := storage.NewArtifacts(cfg.OutputDir)
	if err != nil {
		return nil, nil, err
	}
	return lock.New(artifacts.Path(storage.LockFile)), artifacts, nil
}

func newApp(ctx context.Context) (*app, error) {
	a := &app{}

	store, err := openStore()
	if err != nil {
		return nil, err
	}
	a.store = store
	a.closers = append(a.closers, func() { store.Close() })

	runLock, artifacts, err := openLock()
	if err != nil {
		a.close()
		return nil, err
	}
	a.lock = runLock
	a.artifacts = artifacts

	region, err := store.GetSetting(storage.SettingRegion, storage.DefaultSettings[storage.SettingRegion])
	if err != nil {
		a.close()
		return nil, err
	}
	subdomain := cfg.Region(region).Subdomain

	clients := httputil.NewClients(cfg.Proxy, cfg.CallTracking.Timeout)
	if cfg.Proxy.URL != "" {
		zap.L().Info("using proxy", zap.String("proxy", maskConnectionString(cfg.Proxy.URL)))
	}

	api := calltracking.NewClient(clients.CallTracking, calltracking.Options{
		URL:         cfg.CallTracking.URL,
		MaxAttempts: cfg.CallTracking.MaxAttempts,
		RetryDelay:  cfg.CallTracking.RetryDelay,
	}, calltracking.DefaultSession(subdomain, cfg.CallTracking.DefaultBlockID))

	// Left nil when disabled so the resolver sees no browser strategy.
	var extractor resolver.Extractor
	var browser *resolver.BrowserExtractor
	if cfg.Browser.Enabled || cfg.Browser.Activate {
		browser = resolver.NewBrowserExtractor(resolver.BrowserOptions{
			Headless: cfg.Browser.Headless,
			ProxyURL: cfg.Proxy.URL,
		})
		a.closers = append(a.closers, browser.Close)
		if cfg.Browser.Enabled {
			extractor = browser
		}
	}

	chain := resolver.New(api, extractor, resolver.Options{
		BrowserEnabled: cfg.Browser.Enabled,
		Subdomain:      subdomain,
	})
	provider := listings.NewCianProvider(clients.Pages, "", cfg.Listings.MaxPages)

	orch := scraper.NewOrchestrator(cfg, store, artifacts, runLock, provider, chain)
	if browser != nil {
		if cfg.Browser.Enabled {
			orch.SetBrowserOnlyResolver(resolver.New(api, browser, resolver.Options{
				BrowserEnabled: true,
				SkipAPI:        true,
				Subdomain:      subdomain,
			}))
		}
		if cfg.Browser.Activate {
			orch.SetSessionActivation(resolver.NewActivator(browser, cfg.CallTracking.URL), api)
		}
	}

	var sink scraper.PhoneSink
	if cfg.Postgres.DSN != "" {
		pg, err := storage.NewPostgresStore(ctx, cfg.Postgres.DSN)
		if err != nil {
			a.close()
			return nil, err
		}
		a.closers = append(a.closers, pg.Close)
		if err := pg.Migrate(ctx); err != nil {
			a.close()
			return nil, err
		}
		sink = pg
		zap.L().Info("mirroring phones to postgres", zap.String("dsn", maskConnectionString(cfg.Postgres.DSN)))
	}

	var uploader scraper.ArtifactUploader
	if cfg.S3.Bucket != "" {
		s3u, err := storage.NewS3Uploader(ctx, storage.S3Config{
			Bucket:          cfg.S3.Bucket,
			Region:          cfg.S3.Region,
			Endpoint:        cfg.S3.Endpoint,
			AccessKeyID:     cfg.S3.AccessKeyID,
			SecretAccessKey: cfg.S3.SecretAccessKey,
		})
		if err != nil {
			a.close()
			return nil, err
		}
		uploader = s3u
		zap.L().Info("archiving artifacts to s3", zap.String("bucket", cfg.S3.Bucket))
	}
	orch.SetSinks(sink, uploader)

	a.orch = orch
	zap.L().Info("scraper ready",
		zap.String("region", region),
		zap.String("output", artifacts.Dir()),
		zap.Bool("browser", cfg.Browser.Enabled),
		zap.Int("pid", os.Getpid()),
	)
	return a, nil
}

// maskConnectionString masks the password in a connection string or proxy URL.
func maskConnectionString(connStr string) string {
	start := 0
	for i := 0; i < len(connStr)-3; i++ {
		if connStr[i:i+3] == "://" {
			start = i + 3
			break
		}
	}
	if start == 0 {
		return connStr
	}

	colonIdx := -1
	atIdx := -1
	for i := start; i < len(connStr); i++ {
		if connStr[i] == ':' && colonIdx == -1 {
			colonIdx = i
		}
		if connStr[i] == '@' {
			atIdx = i
			break
		}
	}

	if colonIdx > 0 && atIdx > colonIdx {
		return connStr[:colonIdx+1] + "****" + connStr[atIdx:]
	}
	return connStr
}
