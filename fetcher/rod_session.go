package fetcher

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"rnav-scraper/page"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"go.uber.org/zap"
)

// RodOptions configures the headless browser
type RodOptions struct {
	Headless    bool
	UserDataDir string // profile directory, mount a volume here to keep memory down
	Bin         string // browser binary, looked up when empty
}

// browserProcess is the part of *launcher.Launcher that owns the OS process
type browserProcess interface {
	Kill()
	Cleanup()
}

// RodSession implements page.Session with one rod browser and one tab
type RodSession struct {
	browser     *rod.Browser
	page        *rod.Page
	proc        browserProcess
	tempProfile bool // the launcher created the profile dir and Cleanup removes it
	logger      *zap.SugaredLogger
}

// NewRodSession launches a browser and opens a blank tab
func NewRodSession(ctx context.Context, opts RodOptions, logger *zap.SugaredLogger) (*RodSession, error) {
	userDataDir := opts.UserDataDir
	if userDataDir != "" {
		if err := os.MkdirAll(userDataDir, 0755); err != nil {
			logger.Warnf("Failed to create browser data directory %s: %v", userDataDir, err)
			userDataDir = ""
		}
	}

	l := launcher.New().
		Context(ctx).
		Headless(opts.Headless).
		Set("disable-blink-features", "AutomationControlled").
		NoSandbox(true).
		Leakless(false).
		// Linux container compatibility
		Set("disable-dev-shm-usage").
		Set("disable-gpu").
		Set("no-first-run").
		Set("no-default-browser-check").
		Set("disable-extensions").
		Set("disable-background-networking").
		Set("disable-background-timer-throttling").
		Set("disable-renderer-backgrounding").
		Set("disable-backgrounding-occluded-windows").
		Set("disable-breakpad").
		Set("disable-default-apps").
		Set("disable-hang-monitor").
		Set("disable-sync").
		Set("disable-translate").
		Set("mute-audio").
		Set("no-zygote").
		Set("memory-pressure-off").
		Set("disable-ipc-flooding-protection").
		Set("disable-features", "TranslateUI,BlinkGenPropertyTrees")
	if userDataDir != "" {
		l = l.UserDataDir(userDataDir)
	}

	if bin := browserBin(opts.Bin); bin != "" {
		logger.Debugf("Using browser binary %s", bin)
		l = l.Bin(bin)
	}

	controlURL, err := l.Launch()
	if err != nil {
		return nil, fmt.Errorf("failed to launch browser: %w\n\nNote: On Linux, you may need to install Chromium dependencies:\n  apt-get update && apt-get install -y chromium", err)
	}

	tempProfile := userDataDir == ""
	browser, err := attach(controlURL, l, tempProfile, (*rod.Browser).Connect)
	if err != nil {
		return nil, err
	}

	p, err := browser.Page(proto.TargetCreateTarget{})
	if err != nil {
		_ = browser.Close()
		releaseProcess(l, tempProfile)
		return nil, fmt.Errorf("failed to open tab: %w", err)
	}

	return &RodSession{
		browser:     browser,
		page:        p,
		proc:        l,
		tempProfile: tempProfile,
		logger:      logger,
	}, nil
}

// attach connects to a launched browser and kills it when the connection fails
func attach(controlURL string, proc browserProcess, tempProfile bool, connect func(*rod.Browser) error) (*rod.Browser, error) {
	browser := rod.New().ControlURL(controlURL)
	if err := connect(browser); err != nil {
		releaseProcess(proc, tempProfile)
		return nil, fmt.Errorf("failed to connect to browser: %w", err)
	}
	return browser, nil
}

// releaseProcess kills the browser process and removes a launcher-created profile
func releaseProcess(proc browserProcess, tempProfile bool) {
	proc.Kill()
	if tempProfile {
		proc.Cleanup()
	}
}

// browserBin prefers an explicit binary, then a system Chrome/Chromium.
// Empty means let rod download its own Chromium.
func browserBin(explicit string) string {
	if explicit != "" {
		return explicit
	}
	for _, path := range []string{
		"/usr/bin/google-chrome",
		"/usr/bin/google-chrome-stable",
		"/usr/bin/chromium",
		"/usr/bin/chromium-browser",
		"/snap/bin/chromium",
	} {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	if path, ok := launcher.LookPath(); ok {
		return path
	}
	return ""
}

// Close closes the browser and everything it owns. The process is killed
// when the browser does not close cleanly.
func (rs *RodSession) Close() error {
	if rs.browser == nil {
		return nil
	}
	err := rs.browser.Close()
	if rs.proc != nil {
		if err != nil {
			rs.proc.Kill()
		}
		if rs.tempProfile {
			rs.proc.Cleanup()
		}
	}
	if err != nil {
		return fmt.Errorf("failed to close browser: %w", err)
	}
	return nil
}

func (rs *RodSession) Navigate(ctx context.Context, url string) error {
	p := rs.page.Context(ctx)
	if err := p.Navigate(url); err != nil {
		return mapRodError(fmt.Errorf("navigate %s: %w", url, err))
	}
	if err := p.WaitLoad(); err != nil {
		return mapRodError(fmt.Errorf("wait load %s: %w", url, err))
	}
	return nil
}

func (rs *RodSession) WaitFor(ctx context.Context, selector string, timeout time.Duration) error {
	if _, err := rs.page.Context(ctx).Timeout(timeout).Element(selector); err != nil {
		return mapRodError(fmt.Errorf("wait for %q: %w", selector, err))
	}
	return nil
}

func (rs *RodSession) Fill(ctx context.Context, selector, text string) error {
	el, err := rs.find(ctx, selector)
	if err != nil {
		return err
	}
	if err := el.SelectAllText(); err != nil {
		return mapRodError(fmt.Errorf("fill %q: %w", selector, err))
	}
	if err := el.Input(text); err != nil {
		return mapRodError(fmt.Errorf("fill %q: %w", selector, err))
	}
	return nil
}

func (rs *RodSession) QueryAll(ctx context.Context, selector string) ([]page.Element, error) {
	els, err := rs.page.Context(ctx).Elements(selector)
	if err != nil {
		return nil, mapRodError(fmt.Errorf("query %q: %w", selector, err))
	}
	return wrapRodElements(els), nil
}

func (rs *RodSession) IsEnabled(ctx context.Context, selector string) (bool, error) {
	el, err := rs.find(ctx, selector)
	if err != nil {
		return false, err
	}
	disabled, err := el.Disabled()
	if err != nil {
		return false, mapRodError(fmt.Errorf("check %q: %w", selector, err))
	}
	return !disabled, nil
}

func (rs *RodSession) Click(ctx context.Context, selector string) error {
	el, err := rs.find(ctx, selector)
	if err != nil {
		return err
	}
	if err := el.ScrollIntoView(); err != nil {
		return mapRodError(fmt.Errorf("scroll to %q: %w", selector, err))
	}
	if err := el.Click(proto.InputMouseButtonLeft, 1); err != nil {
		return mapRodError(fmt.Errorf("click %q: %w", selector, err))
	}
	return nil
}

func (rs *RodSession) Evaluate(ctx context.Context, script string) error {
	if _, err := rs.page.Context(ctx).Eval(script); err != nil {
		return mapRodError(fmt.Errorf("evaluate: %w", err))
	}
	return nil
}

func (rs *RodSession) HTML(ctx context.Context) (string, error) {
	html, err := rs.page.Context(ctx).HTML()
	if err != nil {
		return "", mapRodError(fmt.Errorf("failed to get HTML: %w", err))
	}
	return html, nil
}

// find looks the selector up once without waiting
func (rs *RodSession) find(ctx context.Context, selector string) (*rod.Element, error) {
	has, el, err := rs.page.Context(ctx).Has(selector)
	if err != nil {
		return nil, mapRodError(fmt.Errorf("find %q: %w", selector, err))
	}
	if !has {
		return nil, fmt.Errorf("%q: %w", selector, page.ErrElementNotFound)
	}
	return el, nil
}

// mapRodError translates rod failures into page sentinels, keeping the message
func mapRodError(err error) error {
	var notFound *rod.ElementNotFoundError
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("%w: %v", page.ErrTimeout, err)
	case errors.As(err, &notFound):
		return fmt.Errorf("%w: %v", page.ErrElementNotFound, err)
	default:
		return err
	}
}

type rodElement struct {
	el *rod.Element
}

func wrapRodElements(els rod.Elements) []page.Element {
	out := make([]page.Element, 0, len(els))
	for _, el := range els {
		out = append(out, rodElement{el: el})
	}
	return out
}

func (e rodElement) Text() (string, error) {
	text, err := e.el.Text()
	if err != nil {
		return "", mapRodError(err)
	}
	return text, nil
}

func (e rodElement) Parent() (page.Element, error) {
	parent, err := e.el.Parent()
	if err != nil {
		return nil, mapRodError(err)
	}
	return rodElement{el: parent}, nil
}

func (e rodElement) Elements(selector string) ([]page.Element, error) {
	els, err := e.el.Elements(selector)
	if err != nil {
		return nil, mapRodError(err)
	}
	return wrapRodElements(els), nil
}
