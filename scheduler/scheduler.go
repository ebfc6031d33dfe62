package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"rnav-scraper/correction"
	"rnav-scraper/db"
	"rnav-scraper/filter"
	"rnav-scraper/metrics"
	"rnav-scraper/models"
	"rnav-scraper/notify"
	"rnav-scraper/page"
	"rnav-scraper/scraper"
	"rnav-scraper/sink"

	"github.com/cenkalti/backoff/v5"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// SessionFactory opens a fresh browser session for one run
type SessionFactory func(ctx context.Context) (page.Session, error)

// Tracker records the lifecycle of every run
type Tracker interface {
	CreateRun(ctx context.Context, groupKey string) (*db.Run, error)
	UpdateRunStatus(ctx context.Context, runID int, status string) error
	FinishRun(ctx context.Context, runID int, status string, records, pages, rejected int, runErr error) error
	SaveRejections(ctx context.Context, runID int, rejections []models.RejectedEmail) error
	ResolveRejections(ctx context.Context, groupKey string, resolved []models.RejectedEmail) error
}

// ConfirmFunc asks whether rejected emails of a group should be corrected now
type ConfirmFunc func(groupKey string, rejected int) (bool, error)

// Options tune retries, pacing and persistence
type Options struct {
	RetryAttempts   uint
	RetryInitial    time.Duration
	RetryMaxElapsed time.Duration
	RunInterval     time.Duration // minimum spacing between run starts; 0 disables pacing
	ReplaceExisting bool          // overwrite the group dataset instead of appending
}

// Report summarizes one group run
type Report struct {
	GroupKey   string
	Records    int // persisted after filtering
	Rejected   int
	Unresolved int
	Pages      int
	Attempts   int
	State      scraper.State
	Err        error
	Result     *scraper.Result
}

// Runner executes runs for several group keys back-to-back
type Runner struct {
	opts       Options
	controller *scraper.Controller
	sessions   SessionFactory
	sink       sink.Sink
	filter     *filter.Filter
	tracker    Tracker
	notifier   notify.Notifier
	metrics    *metrics.Metrics
	corrector  *correction.Workflow
	confirm    ConfirmFunc
	limiter    *rate.Limiter
	logger     *zap.SugaredLogger
}

// NewRunner creates a runner; optional collaborators are attached with the With* methods
func NewRunner(opts Options, controller *scraper.Controller, sessions SessionFactory, s sink.Sink, logger *zap.SugaredLogger) *Runner {
	if opts.RetryAttempts == 0 {
		opts.RetryAttempts = 1
	}
	r := &Runner{
		opts:       opts,
		controller: controller,
		sessions:   sessions,
		sink:       s,
		notifier:   notify.Nop{},
		logger:     logger,
	}
	if opts.RunInterval > 0 {
		r.limiter = rate.NewLimiter(rate.Every(opts.RunInterval), 1)
	}
	return r
}

func (r *Runner) WithFilter(f *filter.Filter) *Runner {
	r.filter = f
	return r
}

func (r *Runner) WithTracker(t Tracker) *Runner {
	r.tracker = t
	return r
}

func (r *Runner) WithNotifier(n notify.Notifier) *Runner {
	r.notifier = n
	return r
}

func (r *Runner) WithMetrics(m *metrics.Metrics) *Runner {
	r.metrics = m
	return r
}

// WithCorrection offers the correction workflow after every run that
// produced rejections; a nil confirm always accepts
func (r *Runner) WithCorrection(w *correction.Workflow, confirm ConfirmFunc) *Runner {
	r.corrector = w
	r.confirm = confirm
	return r
}

// RunBatch runs every group key in order and sends one summary at the end.
// A failed group does not stop the batch; cancellation does.
func (r *Runner) RunBatch(ctx context.Context, groupKeys []string) ([]*Report, error) {
	var reports []*Report
	for _, key := range groupKeys {
		if err := ctx.Err(); err != nil {
			r.logger.Warnf("Batch stopped before %s: %v", key, err)
			break
		}
		report := r.RunGroup(ctx, key)
		reports = append(reports, report)
	}

	if len(reports) > 0 {
		// The summary still goes out after a cancellation
		notifyCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 30*time.Second)
		if err := r.notifier.Notify(notifyCtx, FormatSummary(reports)); err != nil {
			r.logger.Warnf("Failed to send summary: %v", err)
		}
		cancel()
	}
	return reports, ctx.Err()
}

// RunGroup scrapes one group key, persists what it collected and, when
// configured, runs the correction workflow. The report is never nil.
func (r *Runner) RunGroup(ctx context.Context, groupKey string) *Report {
	report := &Report{GroupKey: groupKey, State: scraper.Failed}
	log := r.logger.With("group", groupKey)

	if r.limiter != nil {
		if err := r.limiter.Wait(ctx); err != nil {
			report.Err = err
			return report
		}
	}

	runID := r.startRun(ctx, groupKey)

	res, attempts, err := r.scrapeWithRetry(ctx, groupKey)
	report.Attempts = attempts
	report.Result = res
	report.Err = err
	if res != nil {
		report.State = res.Final
		report.Pages = res.Pages
		report.Rejected = len(res.Rejections)
		report.Unresolved = len(res.Rejections)

		records := res.Records
		if r.filter != nil {
			records = r.filter.ApplyFilters(records, res.Rejections...)
		}
		// Whatever was collected is written even after a cancellation
		saveCtx := context.WithoutCancel(ctx)
		// A failed run keeps its partial records, but never wipes a dataset with nothing
		if len(records) > 0 {
			if perr := r.persist(saveCtx, groupKey, records); perr != nil {
				log.Errorf("Failed to persist records: %v", perr)
				report.Err = errors.Join(report.Err, perr)
			} else {
				report.Records = len(records)
			}
		}
		r.saveRejections(saveCtx, runID, res.Rejections)
		if ctx.Err() == nil {
			r.correct(ctx, report, res.Rejections)
		}
	}

	r.finishRun(ctx, runID, report)

	log.Infow("Run report", "state", report.State.String(), "records", report.Records, "unresolved_emails", report.Unresolved)
	return report
}

// scrapeWithRetry retries the whole run only when the first page never became
// ready. A failed run reports the attempt that collected the most records.
func (r *Runner) scrapeWithRetry(ctx context.Context, groupKey string) (*scraper.Result, int, error) {
	var best *scraper.Result
	var bestErr error
	attempts := 0

	op := func() (*scraper.Result, error) {
		attempts++
		if attempts > 1 {
			r.metrics.RunRetried(groupKey)
		}
		res, err := r.scrapeOnce(ctx, groupKey)
		if err == nil {
			best, bestErr = res, nil
			return res, nil
		}
		if best == nil || (res != nil && len(res.Records) >= len(best.Records)) {
			best, bestErr = res, err
		}
		if errors.Is(err, scraper.ErrNavigationTimeout) && ctx.Err() == nil {
			return res, err
		}
		return res, backoff.Permanent(err)
	}

	exp := backoff.NewExponentialBackOff()
	exp.InitialInterval = r.opts.RetryInitial
	exp.Reset()

	retryOpts := []backoff.RetryOption{
		backoff.WithBackOff(exp),
		backoff.WithMaxTries(r.opts.RetryAttempts),
		backoff.WithNotify(func(err error, next time.Duration) {
			r.logger.Warnf("Run for %s failed (%v), retrying in %s", groupKey, err, next.Round(time.Millisecond))
		}),
	}
	if r.opts.RetryMaxElapsed > 0 {
		retryOpts = append(retryOpts, backoff.WithMaxElapsedTime(r.opts.RetryMaxElapsed))
	}

	_, err := backoff.Retry(ctx, op, retryOpts...)
	if err != nil && bestErr != nil && ctx.Err() == nil {
		err = bestErr
	}
	return best, attempts, err
}

// scrapeOnce owns one browser session for the length of one run
func (r *Runner) scrapeOnce(ctx context.Context, groupKey string) (*scraper.Result, error) {
	session, err := r.sessions(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to open browser session: %w", err)
	}
	defer func() {
		if err := session.Close(); err != nil {
			r.logger.Warnf("Failed to close browser: %v", err)
		}
	}()
	return r.controller.Run(ctx, session, groupKey)
}

func (r *Runner) persist(ctx context.Context, groupKey string, records []models.Record) error {
	if r.opts.ReplaceExisting {
		return r.sink.Overwrite(ctx, groupKey, records)
	}
	return r.sink.AppendRecords(ctx, groupKey, records)
}

func (r *Runner) correct(ctx context.Context, report *Report, rejections []models.RejectedEmail) {
	if r.corrector == nil || len(rejections) == 0 || report.Records == 0 {
		return
	}
	if r.confirm != nil {
		ok, err := r.confirm(report.GroupKey, len(rejections))
		if err != nil {
			r.logger.Warnf("Failed to read confirmation: %v", err)
			return
		}
		if !ok {
			return
		}
	}
	res, err := r.corrector.Run(ctx, report.GroupKey, rejections)
	if err != nil {
		r.logger.Errorf("Correction failed: %v", err)
		return
	}
	report.Unresolved = len(res.Unresolved)
	if r.tracker != nil {
		if err := r.tracker.ResolveRejections(ctx, report.GroupKey, res.Resolved); err != nil {
			r.logger.Warnf("Error marking rejected emails as resolved: %v", err)
		}
	}
}

func (r *Runner) startRun(ctx context.Context, groupKey string) int {
	if r.tracker == nil {
		return 0
	}
	run, err := r.tracker.CreateRun(ctx, groupKey)
	if err != nil {
		r.logger.Warnf("Error creating run record: %v", err)
		return 0
	}
	if err := r.tracker.UpdateRunStatus(ctx, run.ID, db.StatusInProgress); err != nil {
		r.logger.Warnf("Error updating run status to in_progress: %v", err)
	}
	return run.ID
}

func (r *Runner) saveRejections(ctx context.Context, runID int, rejections []models.RejectedEmail) {
	if r.tracker == nil || runID == 0 {
		return
	}
	if err := r.tracker.SaveRejections(ctx, runID, rejections); err != nil {
		r.logger.Warnf("Error saving rejected emails: %v", err)
	}
}

func (r *Runner) finishRun(ctx context.Context, runID int, report *Report) {
	if r.tracker == nil || runID == 0 {
		return
	}
	status := db.StatusDone
	if report.State == scraper.Failed || report.Err != nil {
		status = db.StatusFailed
	}
	// Record the outcome even when the run was cancelled
	ctx = context.WithoutCancel(ctx)
	if err := r.tracker.FinishRun(ctx, runID, status, report.Records, report.Pages, report.Rejected, report.Err); err != nil {
		r.logger.Warnf("Error updating run status to %s: %v", status, err)
	}
}
