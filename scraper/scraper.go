// Package scraper drives the paginated agency directory one page at a time.
//
// A run walks FETCHING_PAGE → EXTRACTING → DISMISSING_MODAL → CHECKING_NEXT
// until the "next" control is gone (DONE) or a page cannot be loaded
// (FAILED). Records collected before a failure are always returned.
package scraper

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"rnav-scraper/metrics"
	"rnav-scraper/models"
	"rnav-scraper/page"
	"rnav-scraper/parser"

	"go.uber.org/zap"
)

// DefaultModalScript closes the promotional video dialog when it is open
const DefaultModalScript = `() => {
	const modal = document.querySelector('[role=dialog]');
	if (modal) {
		window.dispatchEvent(new CustomEvent('close-modal', { detail: { id: 'video1year' }}));
	}
}`

// Options configures one directory layout
type Options struct {
	URL                 string
	SearchInputSelector string
	// CardSelector matches the card name elements and anchors the first result page
	CardSelector string
	// ReadySelector is re-checked on every later page before extraction
	ReadySelector string
	NextSelector  string
	ModalScript   string

	NavigationTimeout time.Duration
	WaitTimeout       time.Duration
	SearchSettle      time.Duration
	ModalSettle       time.Duration
	PageSettle        time.Duration

	MaxPages    int    // 0 means no limit
	SnapshotDir string // save every loaded page here when set
}

// DefaultOptions returns the settings for agenciasdeviajes.ar
func DefaultOptions() Options {
	return Options{
		URL:                 "https://www.agenciasdeviajes.ar/#buscador",
		SearchInputSelector: "input[placeholder*='Ciudad o Provincia']",
		CardSelector:        "h3.text-lg",
		ReadySelector:       "body",
		NextSelector:        "button[dusk='nextPage.after']",
		ModalScript:         DefaultModalScript,
		NavigationTimeout:   30 * time.Second,
		WaitTimeout:         20 * time.Second,
		SearchSettle:        2 * time.Second,
		ModalSettle:         time.Second,
		PageSettle:          2500 * time.Millisecond,
	}
}

// Result is everything a run produced, including partial output of a failed run
type Result struct {
	GroupKey   string
	Records    []models.Record
	Rejections []models.RejectedEmail
	Recovered  []Recovered
	Dropped    int // cards without a readable name
	Pages      int
	Trace      []State
	Final      State
	Err        error
}

// Controller runs the pagination state machine
type Controller struct {
	opts      Options
	extractor *parser.CardExtractor
	logger    *zap.SugaredLogger
	metrics   *metrics.Metrics
}

// NewController creates a Controller. A nil extractor uses parser.NewCardExtractor.
func NewController(opts Options, extractor *parser.CardExtractor, logger *zap.SugaredLogger, m *metrics.Metrics) *Controller {
	if extractor == nil {
		extractor = parser.NewCardExtractor()
	}
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Controller{
		opts:      opts,
		extractor: extractor,
		logger:    logger,
		metrics:   m,
	}
}

// Run traverses every result page for groupKey. The returned Result is never
// nil; on failure its Err matches the returned error and holds whatever was
// collected before it.
func (c *Controller) Run(ctx context.Context, p page.Page, groupKey string) (*Result, error) {
	start := time.Now()
	res := &Result{GroupKey: groupKey}
	ps := models.PaginationState{PageIndex: 1}
	log := c.logger.With("group", groupKey)

	state := FetchingPage
	for !state.Terminal() {
		res.Trace = append(res.Trace, state)

		switch state {
		case FetchingPage:
			if err := ctx.Err(); err != nil {
				res.Err = fmt.Errorf("run stopped before page %d: %w", ps.PageIndex, err)
				state = Failed
				continue
			}
			if err := c.fetch(ctx, p, groupKey, ps.PageIndex); err != nil {
				res.Err = err
				state = Failed
				continue
			}
			res.Pages = ps.PageIndex
			c.metrics.PageLoaded(groupKey)
			c.saveSnapshot(ctx, p, groupKey, ps.PageIndex)
			state = Extracting

		case Extracting:
			log.Infof("Page %d: extracting agencies", ps.PageIndex)
			c.extract(ctx, p, groupKey, ps.PageIndex, res)
			state = DismissingModal

		case DismissingModal:
			if err := p.Evaluate(ctx, c.opts.ModalScript); err != nil {
				log.Warnf("Failed to dismiss modal on page %d: %v", ps.PageIndex, err)
				c.recover(res, ModalDismissalFailure, ps.PageIndex, err)
			}
			_ = sleep(ctx, c.opts.ModalSettle)
			state = CheckingNext

		case CheckingNext:
			state = c.checkNext(ctx, p, &ps, res)
			if state == FetchingPage {
				ps.PageIndex++
			}
		}
	}

	res.Trace = append(res.Trace, state)
	res.Final = state
	c.metrics.RunFinished(groupKey, state.String(), time.Since(start))

	if state == Failed {
		log.Errorw("Run failed", "pages", res.Pages, "records", len(res.Records), "error", res.Err)
		return res, res.Err
	}
	log.Infow("Run finished", "pages", res.Pages, "records", len(res.Records), "rejected_emails", len(res.Rejections))
	return res, nil
}

// fetch makes the page ready for extraction. Only page 1 navigates and
// searches; later pages were loaded by the click in CHECKING_NEXT.
func (c *Controller) fetch(ctx context.Context, p page.Page, groupKey string, pageIndex int) error {
	if pageIndex > 1 {
		if err := p.WaitFor(ctx, c.opts.ReadySelector, c.opts.WaitTimeout); err != nil {
			return loadError(ctx, pageIndex, "results page", err)
		}
		return nil
	}

	c.logger.Infow("Loading directory", "url", c.opts.URL)
	navCtx, cancel := ctx, context.CancelFunc(func() {})
	if c.opts.NavigationTimeout > 0 {
		navCtx, cancel = context.WithTimeout(ctx, c.opts.NavigationTimeout)
	}
	err := p.Navigate(navCtx, c.opts.URL)
	cancel()
	if err != nil {
		return loadError(ctx, pageIndex, "navigate", err)
	}

	if err := p.WaitFor(ctx, c.opts.SearchInputSelector, c.opts.WaitTimeout); err != nil {
		return loadError(ctx, pageIndex, "search input", err)
	}
	c.logger.Infof("Searching %q", groupKey)
	if err := p.Fill(ctx, c.opts.SearchInputSelector, groupKey); err != nil {
		return loadError(ctx, pageIndex, "search input", err)
	}
	if err := sleep(ctx, c.opts.SearchSettle); err != nil {
		return loadError(ctx, pageIndex, "search", err)
	}

	if err := p.WaitFor(ctx, c.opts.CardSelector, c.opts.WaitTimeout); err != nil {
		return loadError(ctx, pageIndex, "results", err)
	}
	return nil
}

func (c *Controller) extract(ctx context.Context, p page.Page, groupKey string, pageIndex int, res *Result) {
	cards, err := p.QueryAll(ctx, c.opts.CardSelector)
	if err != nil {
		c.logger.Warnf("Failed to list cards on page %d: %v", pageIndex, err)
		c.recover(res, ExtractionFieldMissing, pageIndex, err)
		return
	}

	before := len(res.Records)
	for _, card := range cards {
		ex, err := c.extractor.Extract(card, groupKey)
		if err != nil {
			res.Dropped++
			c.logger.Debugf("Dropping card on page %d: %v", pageIndex, err)
			continue
		}
		for _, missing := range ex.Missing {
			c.recover(res, ExtractionFieldMissing, pageIndex, missing)
		}
		res.Records = append(res.Records, ex.Record)
		if ex.Rejection != nil {
			res.Rejections = append(res.Rejections, *ex.Rejection)
			c.metrics.EmailRejected(groupKey)
		}
	}
	c.metrics.RecordsExtracted(groupKey, len(res.Records)-before)
}

// checkNext returns Done when there is nothing left to advance to, or
// FetchingPage after a successful click
func (c *Controller) checkNext(ctx context.Context, p page.Page, ps *models.PaginationState, res *Result) State {
	if c.opts.MaxPages > 0 && ps.PageIndex >= c.opts.MaxPages {
		c.logger.Infof("Reached page limit (%d)", c.opts.MaxPages)
		ps.HasNext = false
		return Done
	}

	enabled, err := p.IsEnabled(ctx, c.opts.NextSelector)
	switch {
	case errors.Is(err, page.ErrElementNotFound):
		enabled = false
	case err != nil:
		if ctx.Err() != nil {
			res.Err = fmt.Errorf("run stopped on page %d: %w", ps.PageIndex, ctx.Err())
			return Failed
		}
		c.logger.Warnf("Failed to check next button on page %d: %v", ps.PageIndex, err)
		c.recover(res, PaginationAdvanceFailure, ps.PageIndex, err)
		enabled = false
	}
	ps.HasNext = enabled
	if !enabled {
		c.logger.Info("No more pages")
		return Done
	}

	c.logger.Debug("Clicking next")
	if err := p.Click(ctx, c.opts.NextSelector); err != nil {
		if ctx.Err() != nil {
			res.Err = fmt.Errorf("run stopped on page %d: %w", ps.PageIndex, ctx.Err())
			return Failed
		}
		c.logger.Warnf("Failed to click next on page %d: %v", ps.PageIndex, err)
		c.recover(res, PaginationAdvanceFailure, ps.PageIndex, err)
		return Done
	}
	_ = sleep(ctx, c.opts.PageSettle)
	return FetchingPage
}

func (c *Controller) recover(res *Result, kind RecoveredKind, pageIndex int, err error) {
	res.Recovered = append(res.Recovered, Recovered{Kind: kind, Page: pageIndex, Err: err})
	c.metrics.Recovered(kind.String())
}

func (c *Controller) saveSnapshot(ctx context.Context, p page.Page, groupKey string, pageIndex int) {
	if c.opts.SnapshotDir == "" {
		return
	}
	src, ok := p.(page.HTMLSource)
	if !ok {
		return
	}
	html, err := src.HTML(ctx)
	if err != nil {
		c.logger.Warnf("Failed to read HTML of page %d: %v", pageIndex, err)
		return
	}
	dir := filepath.Join(c.opts.SnapshotDir, models.Slug(groupKey))
	if err := os.MkdirAll(dir, 0755); err != nil {
		c.logger.Warnf("Failed to create snapshot directory %s: %v", dir, err)
		return
	}
	path := filepath.Join(dir, fmt.Sprintf("page-%03d.html", pageIndex))
	if err := os.WriteFile(path, []byte(html), 0644); err != nil {
		c.logger.Warnf("Failed to write snapshot %s: %v", path, err)
	}
}

// loadError classifies a FETCHING_PAGE failure
func loadError(ctx context.Context, pageIndex int, step string, err error) error {
	if errors.Is(ctx.Err(), context.Canceled) {
		return fmt.Errorf("page %d %s: %w", pageIndex, step, ctx.Err())
	}
	if errors.Is(err, page.ErrTimeout) || errors.Is(err, context.DeadlineExceeded) {
		if pageIndex > 1 {
			return fmt.Errorf("%w: page %d %s: %v", ErrPageTimeout, pageIndex, step, err)
		}
		return fmt.Errorf("%w: page %d %s: %v", ErrNavigationTimeout, pageIndex, step, err)
	}
	return fmt.Errorf("page %d %s: %w", pageIndex, step, err)
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
