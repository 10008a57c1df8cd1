package scraper

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"cian_scrooper/calltracking"
	"cian_scrooper/config"
	"cian_scrooper/listings"
	"cian_scrooper/lock"
	"cian_scrooper/models"
	"cian_scrooper/storage"
)

const lockPollInterval = 30 * time.Second

// ErrBrowserOnlyUnavailable is returned when a browser-only phone pass is
// requested but no browser resolver is configured.
var ErrBrowserOnlyUnavailable = eris.New("browser-only resolution not configured")

type PhoneResolver interface {
	Resolve(ctx context.Context, req models.ResolutionRequest) models.ResolutionResult
}

type SessionActivator interface {
	Activate(ctx context.Context, listingURL string) (calltracking.Session, error)
}

// SessionHolder owns the call-tracking session the API strategy sends.
type SessionHolder interface {
	Session() calltracking.Session
	SetSession(calltracking.Session)
}

type PhoneSink interface {
	UpsertPhone(ctx context.Context, l models.Listing, rec models.PhoneRecord, passID uuid.UUID) error
}

type ArtifactUploader interface {
	UploadArtifacts(ctx context.Context, a *storage.Artifacts, region, passID string, at time.Time, names ...string) ([]string, error)
}

// PhoneOptions tune one phone pass.
type PhoneOptions struct {
	Clear       bool
	MaxPhones   int
	BrowserOnly bool
}

type PhoneStats struct {
	Selected  int
	Processed int
	Resolved  int
	Failed    int
	Skipped   int
	BySource  map[models.PhoneSource]int
}

type Orchestrator struct {
	cfg       *config.Config
	store     *storage.SQLiteStore
	artifacts *storage.Artifacts
	runLock   *lock.RunLock
	provider  listings.Provider
	resolver  PhoneResolver
	pacer     *Pacer

	browserOnly PhoneResolver
	activator   SessionActivator
	session     SessionHolder
	pgSink      PhoneSink
	uploader    ArtifactUploader

	pollInterval time.Duration
	paused       atomic.Bool
	passMu       sync.Mutex
}

func NewOrchestrator(
	cfg *config.Config,
	store *storage.SQLiteStore,
	artifacts *storage.Artifacts,
	runLock *lock.RunLock,
	provider listings.Provider,
	resolver PhoneResolver,
) *Orchestrator {
	return &Orchestrator{
		cfg:          cfg,
		store:        store,
		artifacts:    artifacts,
		runLock:      runLock,
		provider:     provider,
		resolver:     resolver,
		pacer:        NewPacer(cfg.Phones.PauseMin, cfg.Phones.PauseMax, cfg.Phones.LongPause, cfg.Phones.LongPauseEvery),
		pollInterval: lockPollInterval,
	}
}

// SetBrowserOnlyResolver registers the resolver used for --browser-only passes.
func (o *Orchestrator) SetBrowserOnlyResolver(r PhoneResolver) {
	o.browserOnly = r
}

// SetSessionActivation enables capturing a live call-tracking session at the
// start of each phone pass.
func (o *Orchestrator) SetSessionActivation(activator SessionActivator, holder SessionHolder) {
	o.activator = activator
	o.session = holder
}

// SetSinks registers the optional Postgres mirror and S3 archive.
func (o *Orchestrator) SetSinks(pg PhoneSink, uploader ArtifactUploader) {
	o.pgSink = pg
	o.uploader = uploader
}

func (o *Orchestrator) SetPacer(p *Pacer) {
	o.pacer = p
}

// Run is the full pass: reuse the listings already on disk, wait for a
// listings scrape another process is running, or scrape listings first.
func (o *Orchestrator) Run(ctx context.Context) error {
	if o.IsPaused() {
		zap.L().Info("scraper is paused, skipping run")
		return nil
	}

	passID := uuid.New()
	existing, err := o.artifacts.LoadListings()
	if err != nil {
		return err
	}

	switch {
	case len(existing) > 0:
		zap.L().Info("listings file present, going straight to phones", zap.Int("listings", len(existing)))
	case o.runLock.IsHeld():
		zap.L().Info("listings scrape in progress elsewhere, waiting for it")
		err := o.runLock.Wait(ctx, o.pollInterval, func() {
			zap.L().Info("still waiting for listings scrape")
		})
		if err != nil {
			return err
		}
	default:
		if _, err := o.scrapeListings(ctx, passID); err != nil {
			return err
		}
	}

	_, err = o.resolvePhones(ctx, passID, PhoneOptions{MaxPhones: o.cfg.Phones.MaxPhones})
	return err
}

// ScrapeListings fetches listings for the configured filter into regions.json.
func (o *Orchestrator) ScrapeListings(ctx context.Context) (int, error) {
	return o.scrapeListings(ctx, uuid.New())
}

// ResolvePhones resolves a phone for every selected listing in regions.json.
func (o *Orchestrator) ResolvePhones(ctx context.Context, opts PhoneOptions) (PhoneStats, error) {
	return o.resolvePhones(ctx, uuid.New(), opts)
}

func (o *Orchestrator) scrapeListings(ctx context.Context, passID uuid.UUID) (int, error) {
	o.passMu.Lock()
	defer o.passMu.Unlock()

	filter, err := o.Filter()
	if err != nil {
		return 0, err
	}

	found := 0
	err = o.runLock.Run(ctx, func(ctx context.Context) (err error) {
		run, finish := o.startRun(passID, models.RunKindListings, filter.Location)
		defer func() { finish(err) }()

		o.log(run.ID, models.LogLevelInfo, fmt.Sprintf("Scraping listings for %s", filter.Location))

		items, err := o.provider.Fetch(ctx, filter)
		if err != nil {
			return eris.Wrap(err, "fetch listings")
		}
		if err := o.artifacts.SaveListings(items); err != nil {
			return err
		}

		found = len(items)
		run.ListingsFound = found
		o.log(run.ID, models.LogLevelInfo, fmt.Sprintf("Saved %d listings", found))
		return nil
	})
	if errors.Is(err, lock.ErrRunInProgress) {
		zap.L().Warn("listings scrape skipped, another run holds the lock")
	}
	return found, err
}

func (o *Orchestrator) resolvePhones(ctx context.Context, passID uuid.UUID, opts PhoneOptions) (PhoneStats, error) {
	o.passMu.Lock()
	defer o.passMu.Unlock()

	resolver := o.resolver
	if opts.BrowserOnly {
		if o.browserOnly == nil {
			return PhoneStats{}, ErrBrowserOnlyUnavailable
		}
		resolver = o.browserOnly
	}
	if opts.MaxPhones <= 0 {
		opts.MaxPhones = o.cfg.Phones.MaxPhones
	}

	region, _ := o.store.GetSetting(storage.SettingRegion, storage.DefaultSettings[storage.SettingRegion])
	stats := PhoneStats{BySource: make(map[models.PhoneSource]int)}

	err := o.runLock.Run(ctx, func(ctx context.Context) (err error) {
		run, finish := o.startRun(passID, models.RunKindPhones, region)
		defer func() {
			run.PhonesResolved = stats.Resolved
			run.PhonesFailed = stats.Failed
			finish(err)
		}()

		startedAt := time.Now()
		o.log(run.ID, models.LogLevelInfo, fmt.Sprintf("Phone pass started, limit %d", opts.MaxPhones))

		if opts.Clear {
			if err := o.artifacts.ClearPhoneData(); err != nil {
				return err
			}
			o.log(run.ID, models.LogLevelInfo, "Cleared previous phone data")
		}

		all, err := o.artifacts.LoadListings()
		if err != nil {
			return err
		}
		selected := SelectListings(all, o.cfg.Phones.AuthorTypes)
		stats.Selected = len(selected)
		run.ListingsFound = len(selected)
		if err := o.artifacts.SaveCodes(listingURLs(selected)); err != nil {
			return err
		}
		if len(selected) == 0 {
			o.log(run.ID, models.LogLevelWarn, "No listings to process")
			return nil
		}

		book, err := o.artifacts.LoadPhoneBook()
		if err != nil {
			return err
		}
		o.log(run.ID, models.LogLevelInfo, fmt.Sprintf("%d listings selected, %d already resolved", len(selected), len(book)))

		if !opts.BrowserOnly {
			o.activate(ctx, run.ID, selected[0].URL)
		}

		for i, l := range selected {
			if stats.Processed >= opts.MaxPhones {
				o.log(run.ID, models.LogLevelInfo, fmt.Sprintf("Reached limit of %d listings", opts.MaxPhones))
				break
			}
			if ctx.Err() != nil {
				break
			}
			if l.ID == "" {
				o.log(run.ID, models.LogLevelWarn, fmt.Sprintf("No listing id in %s", l.URL))
				stats.Skipped++
				continue
			}
			if _, done := book[l.ID]; done {
				stats.Skipped++
				continue
			}

			res := resolver.Resolve(ctx, resolutionRequest(l))
			rec := res.Record()
			book[l.ID] = rec
			stats.Processed++
			if res.IsResolved() {
				stats.Resolved++
				stats.BySource[res.Source]++
				zap.L().Info("phone resolved",
					zap.String("listing_id", l.ID),
					zap.String("source", string(res.Source)),
					zap.String("method", res.Method),
				)
			} else {
				stats.Failed++
				o.log(run.ID, models.LogLevelWarn, fmt.Sprintf("No phone for %s: %s", l.ID, res.Reason))
			}

			o.mirror(ctx, l, rec, passID)

			if interval := o.cfg.Phones.SaveInterval; interval > 0 && stats.Processed%interval == 0 {
				if err := o.artifacts.SavePhoneBook(book); err != nil {
					return err
				}
			}

			if i < len(selected)-1 && res.Source != models.SourceDirect {
				if err := o.pacer.Wait(ctx, stats.Processed); err != nil {
					break
				}
			}
		}

		if err := o.artifacts.SavePhoneBook(book); err != nil {
			return err
		}
		report := storage.Report{
			StartedAt: startedAt,
			Duration:  time.Since(startedAt),
			Limit:     opts.MaxPhones,
			Mode:      passMode(opts),
			Book:      book,
		}
		if err := o.artifacts.WriteReport(report); err != nil {
			return err
		}
		o.archive(ctx, run.ID, region, passID)

		o.log(run.ID, models.LogLevelInfo, fmt.Sprintf("Phone pass done: %d processed, %d resolved, %d failed, %d skipped",
			stats.Processed, stats.Resolved, stats.Failed, stats.Skipped))
		return ctx.Err()
	})
	if errors.Is(err, lock.ErrRunInProgress) {
		zap.L().Warn("phone pass skipped, another run holds the lock")
	}
	return stats, err
}

// activate refreshes the call-tracking session from a live page. Failure
// keeps the current session.
func (o *Orchestrator) activate(ctx context.Context, runID int64, listingURL string) {
	if o.activator == nil || o.session == nil || !o.cfg.Browser.Activate {
		return
	}
	captured, err := o.activator.Activate(ctx, listingURL)
	if err != nil {
		o.log(runID, models.LogLevelWarn, fmt.Sprintf("Session activation failed, using defaults: %v", err))
		return
	}
	o.session.SetSession(o.session.Session().Merge(captured))
	o.log(runID, models.LogLevelInfo, fmt.Sprintf("Session activated, block id %d", o.session.Session().BlockID))
}

func (o *Orchestrator) mirror(ctx context.Context, l models.Listing, rec models.PhoneRecord, passID uuid.UUID) {
	if o.pgSink == nil {
		return
	}
	if err := o.pgSink.UpsertPhone(ctx, l, rec, passID); err != nil {
		zap.L().Warn("postgres mirror failed", zap.String("listing_id", l.ID), zap.Error(err))
	}
}

func (o *Orchestrator) archive(ctx context.Context, runID int64, region string, passID uuid.UUID) {
	if o.uploader == nil {
		return
	}
	keys, err := o.uploader.UploadArtifacts(ctx, o.artifacts, region, passID.String(), time.Now(),
		storage.PhonesFile, storage.ReportFile, storage.CodesFile)
	if err != nil {
		o.log(runID, models.LogLevelWarn, fmt.Sprintf("Artifact upload failed: %v", err))
		return
	}
	zap.L().Info("artifacts uploaded", zap.Strings("keys", keys))
}

// Filter is the listing filter from stored settings with the region's
// configured id and subdomain filled in.
func (o *Orchestrator) Filter() (models.ListingFilter, error) {
	f, err := o.store.LoadFilter()
	if err != nil {
		return f, err
	}
	region := o.cfg.Region(f.Location)
	if f.RegionID == "" {
		f.RegionID = region.RegionID
	}
	f.Subdomain = region.Subdomain
	return f, nil
}

// startRun records a run and returns a func that finalizes it.
func (o *Orchestrator) startRun(passID uuid.UUID, kind models.RunKind, region string) (*models.ScrapeRun, func(error)) {
	run := &models.ScrapeRun{
		PassID:    passID.String(),
		Kind:      kind,
		Region:    region,
		StartedAt: time.Now(),
		Status:    models.RunStatusRunning,
	}
	if id, err := o.store.CreateRun(run); err != nil {
		zap.L().Warn("failed to create run record", zap.Error(err))
	} else {
		run.ID = id
	}

	return run, func(err error) {
		now := time.Now()
		run.FinishedAt = &now
		run.Status = models.RunStatusCompleted
		if err != nil {
			run.Status = models.RunStatusFailed
			run.ErrorMessage = err.Error()
			o.log(run.ID, models.LogLevelError, fmt.Sprintf("%s run failed: %v", kind, err))
		}
		if run.ID == 0 {
			return
		}
		if err := o.store.UpdateRun(run); err != nil {
			zap.L().Warn("failed to update run record", zap.Error(err))
		}
	}
}

func (o *Orchestrator) HandleCommand(ctx context.Context, cmd *models.Command) error {
	params, err := storage.ParseCommandParams(cmd)
	if err != nil {
		return err
	}

	switch cmd.Command {
	case models.CmdScrapeNow:
		return o.Run(ctx)
	case models.CmdScrapeListings:
		_, err := o.ScrapeListings(ctx)
		return err
	case models.CmdScrapePhones:
		_, err := o.ResolvePhones(ctx, PhoneOptions{Clear: params.Clear, MaxPhones: params.MaxPhones})
		return err
	case models.CmdPause:
		o.paused.Store(true)
		zap.L().Info("scraper paused")
	case models.CmdResume:
		o.paused.Store(false)
		zap.L().Info("scraper resumed")
	default:
		return eris.Errorf("unknown command %q", cmd.Command)
	}
	return nil
}

func (o *Orchestrator) IsPaused() bool {
	return o.paused.Load()
}

func (o *Orchestrator) log(runID int64, level models.LogLevel, message string) {
	switch level {
	case models.LogLevelError:
		zap.L().Error(message, zap.Int64("run_id", runID))
	case models.LogLevelWarn:
		zap.L().Warn(message, zap.Int64("run_id", runID))
	default:
		zap.L().Info(message, zap.Int64("run_id", runID))
	}
	if runID == 0 {
		return
	}
	if err := o.store.Log(&runID, level, message); err != nil {
		zap.L().Debug("failed to persist log", zap.Error(err))
	}
}

func passMode(opts PhoneOptions) string {
	if opts.BrowserOnly {
		return "только браузер"
	}
	return "прямой номер, API, браузер"
}
