package main

import (
	"context"
	"fmt"

	"rnav-scraper/config"
	"rnav-scraper/correction"
	"rnav-scraper/db"
	"rnav-scraper/fetcher"
	"rnav-scraper/filter"
	"rnav-scraper/logger"
	"rnav-scraper/metrics"
	"rnav-scraper/notify"
	"rnav-scraper/page"
	"rnav-scraper/parser"
	"rnav-scraper/scheduler"
	"rnav-scraper/scraper"
	"rnav-scraper/sheets"
	"rnav-scraper/sink"
	"rnav-scraper/snapshot"

	"go.uber.org/zap"
)

// app holds the collaborators shared by every command
type app struct {
	cfg      *config.Config
	logger   *zap.SugaredLogger
	metrics  *metrics.Metrics
	db       *db.DB
	sink     sink.Sink
	prompter *correction.TerminalPrompter
	closers  []func()
}

// newBaseApp loads the config and logger only; no sink, database or
// metrics server is opened
func newBaseApp() (*app, error) {
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	log, err := logger.New("rnav-scraper", cfg.Log.Env)
	if err != nil {
		return nil, err
	}

	a := &app{cfg: cfg, logger: log}
	a.closers = append(a.closers, func() { logger.SafeSync(log) })
	return a, nil
}

func newApp(ctx context.Context, prompter *correction.TerminalPrompter) (*app, error) {
	a, err := newBaseApp()
	if err != nil {
		return nil, err
	}
	a.prompter = prompter
	cfg, log := a.cfg, a.logger

	m, err := metrics.New()
	if err != nil {
		a.Close()
		return nil, err
	}
	a.metrics = m
	if cfg.Metrics.Addr != "" {
		go func() {
			log.Infof("Serving metrics on %s/metrics", cfg.Metrics.Addr)
			if err := m.Serve(ctx, cfg.Metrics.Addr); err != nil {
				log.Errorf("Metrics server stopped: %v", err)
			}
		}()
	}

	if err := a.buildSink(ctx); err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

// buildSink always writes CSV files and mirrors them to Sheets and
// PostgreSQL when those are configured
func (a *app) buildSink(ctx context.Context) error {
	var mirrors []sink.Sink

	if a.cfg.SheetsEnabled() {
		id := sheets.ExtractSpreadsheetID(a.cfg.Sheets.SpreadsheetURL)
		w, err := sheets.NewWriter(ctx, id, a.cfg.Sheets.CredentialsPath, a.cfg.Sheets.CredentialsJSON, a.logger)
		if err != nil {
			return fmt.Errorf("failed to initialize Google Sheets: %w", err)
		}
		a.logger.Infof("Mirroring datasets to spreadsheet %s", id)
		mirrors = append(mirrors, w)
	}

	if a.cfg.Database.Enabled {
		database, err := db.NewDB(ctx, a.cfg.Database.URL, a.logger)
		if err != nil {
			return fmt.Errorf("failed to connect to database: %w", err)
		}
		a.db = database
		a.closers = append(a.closers, func() {
			if err := database.Close(); err != nil {
				a.logger.Warnf("Failed to close database: %v", err)
			}
		})
		mirrors = append(mirrors, database)
	}

	a.sink = sink.NewFanout(sink.NewCSV(a.cfg.Output.Dir), mirrors...)
	return nil
}

// Close releases resources in reverse order of acquisition
func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}

func (a *app) controllerOptions() scraper.Options {
	sc := a.cfg.Scraper
	opts := scraper.DefaultOptions()
	opts.URL = sc.URL
	opts.NavigationTimeout = sc.NavigationTimeout
	opts.WaitTimeout = sc.WaitTimeout
	opts.SearchSettle = sc.SearchSettle
	opts.ModalSettle = sc.ModalSettle
	opts.PageSettle = sc.PageSettle
	opts.MaxPages = sc.MaxPages
	opts.SnapshotDir = sc.SnapshotDir
	return opts
}

// sessionFactory opens a browser per run, or replays saved pages when
// replayDir is set
func (a *app) sessionFactory(replayDir string, nextSelector string) scheduler.SessionFactory {
	if replayDir != "" {
		return func(ctx context.Context) (page.Session, error) {
			p, err := snapshot.Load(replayDir, nextSelector)
			if err != nil {
				return nil, err
			}
			return p, nil
		}
	}
	sc := a.cfg.Scraper
	return func(ctx context.Context) (page.Session, error) {
		rs, err := fetcher.NewRodSession(ctx, fetcher.RodOptions{
			Headless:    sc.Headless,
			UserDataDir: sc.UserDataDir,
			Bin:         sc.BrowserBin,
		}, a.logger)
		if err != nil {
			return nil, err
		}
		return rs, nil
	}
}

func (a *app) notifier() notify.Notifier {
	if !a.cfg.TelegramEnabled() {
		return notify.Nop{}
	}
	tg, err := notify.NewTelegram(a.cfg.Telegram.Token, a.cfg.Telegram.ChatID, a.logger)
	if err != nil {
		a.logger.Warnf("Telegram notifications disabled: %v", err)
		return notify.Nop{}
	}
	return tg
}

func (a *app) workflow() (*correction.Workflow, error) {
	joinBy, err := correction.ParseJoinKey(a.cfg.Correction.JoinBy)
	if err != nil {
		return nil, err
	}
	return correction.NewWorkflow(a.sink, a.prompter, joinBy, a.logger), nil
}

// runner wires the batch runner; correct enables the interactive correction step
func (a *app) runner(replayDir string, correct bool) (*scheduler.Runner, error) {
	opts := a.controllerOptions()
	extractor := parser.NewCardExtractor()
	extractor.ContainerDepth = a.cfg.Scraper.ContainerDepth
	controller := scraper.NewController(opts, extractor, a.logger, a.metrics)

	b := a.cfg.Batch
	r := scheduler.NewRunner(scheduler.Options{
		RetryAttempts:   b.RetryAttempts,
		RetryInitial:    b.RetryInitial,
		RetryMaxElapsed: b.RetryMaxElapsed,
		RunInterval:     b.RunInterval,
		ReplaceExisting: a.cfg.Output.ReplaceExisting,
	}, controller, a.sessionFactory(replayDir, opts.NextSelector), a.sink, a.logger).
		WithFilter(filter.NewFilter(a.cfg.Filters)).
		WithNotifier(a.notifier()).
		WithMetrics(a.metrics)

	if a.db != nil {
		r = r.WithTracker(a.db)
	}

	if correct {
		w, err := a.workflow()
		if err != nil {
			return nil, err
		}
		r = r.WithCorrection(w, func(groupKey string, rejected int) (bool, error) {
			return a.prompter.Confirm(fmt.Sprintf("%s: %d correos inválidos. ¿Desea corregirlos ahora?", groupKey, rejected))
		})
	}
	return r, nil
}
