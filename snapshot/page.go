// Package snapshot replays saved listing pages through the page.Page interface.
// Clicking the configured "next" control advances to the following document,
// which is how the live directory paginates.
package snapshot

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"rnav-scraper/page"

	"github.com/PuerkitoBio/goquery"
)

// Page serves a fixed sequence of HTML documents
type Page struct {
	docs         []*goquery.Document
	nextSelector string
	current      int
	loaded       bool
	closed       bool

	// Recorded interactions, useful for assertions
	Navigations []string
	Fills       map[string]string
	Scripts     []string
	Clicks      []string
}

// FromHTML builds a replay page from HTML strings in page order
func FromHTML(nextSelector string, pages ...string) (*Page, error) {
	docs := make([]*goquery.Document, 0, len(pages))
	for i, html := range pages {
		doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
		if err != nil {
			return nil, fmt.Errorf("failed to parse snapshot %d: %w", i+1, err)
		}
		docs = append(docs, doc)
	}
	return &Page{
		docs:         docs,
		nextSelector: nextSelector,
		Fills:        make(map[string]string),
	}, nil
}

// Load reads every *.html file in dir, in lexical order
func Load(dir, nextSelector string) (*Page, error) {
	paths, err := filepath.Glob(filepath.Join(dir, "*.html"))
	if err != nil {
		return nil, fmt.Errorf("failed to list snapshots: %w", err)
	}
	if len(paths) == 0 {
		return nil, fmt.Errorf("no snapshots found in %s", dir)
	}
	sort.Strings(paths)

	pages := make([]string, 0, len(paths))
	for _, p := range paths {
		data, err := os.ReadFile(p)
		if err != nil {
			return nil, fmt.Errorf("failed to read snapshot: %w", err)
		}
		pages = append(pages, string(data))
	}
	return FromHTML(nextSelector, pages...)
}

// Current returns the 1-based index of the document being served
func (p *Page) Current() int {
	return p.current + 1
}

// Closed reports whether Close was called
func (p *Page) Closed() bool {
	return p.closed
}

func (p *Page) doc() *goquery.Document {
	if !p.loaded || len(p.docs) == 0 {
		return nil
	}
	return p.docs[p.current]
}

func (p *Page) find(selector string) *goquery.Selection {
	doc := p.doc()
	if doc == nil {
		return nil
	}
	sel := doc.Find(selector)
	if sel.Length() == 0 {
		return nil
	}
	return sel
}

// Navigate loads the first document
func (p *Page) Navigate(ctx context.Context, url string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if len(p.docs) == 0 {
		return fmt.Errorf("navigate %s: no snapshots loaded", url)
	}
	p.Navigations = append(p.Navigations, url)
	p.current = 0
	p.loaded = true
	return nil
}

// WaitFor succeeds immediately when the selector matches, otherwise it times out
func (p *Page) WaitFor(ctx context.Context, selector string, timeout time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if p.find(selector) == nil {
		return fmt.Errorf("wait for %q after %s: %w", selector, timeout, page.ErrTimeout)
	}
	return nil
}

// Fill records the text typed into the matching input
func (p *Page) Fill(ctx context.Context, selector, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if p.find(selector) == nil {
		return fmt.Errorf("fill %q: %w", selector, page.ErrElementNotFound)
	}
	p.Fills[selector] = text
	return nil
}

// QueryAll returns every match in the current document
func (p *Page) QueryAll(ctx context.Context, selector string) ([]page.Element, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	sel := p.find(selector)
	if sel == nil {
		return nil, nil
	}
	return wrapAll(sel), nil
}

// IsEnabled reports false when the first match carries a disabled attribute
func (p *Page) IsEnabled(ctx context.Context, selector string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	sel := p.find(selector)
	if sel == nil {
		return false, fmt.Errorf("%q: %w", selector, page.ErrElementNotFound)
	}
	_, disabled := sel.First().Attr("disabled")
	return !disabled, nil
}

// Click on the next control advances to the following document
func (p *Page) Click(ctx context.Context, selector string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	sel := p.find(selector)
	if sel == nil {
		return fmt.Errorf("click %q: %w", selector, page.ErrElementNotFound)
	}
	p.Clicks = append(p.Clicks, selector)
	if selector != p.nextSelector {
		return nil
	}
	if _, disabled := sel.First().Attr("disabled"); disabled {
		return fmt.Errorf("click %q: element is disabled", selector)
	}
	if p.current+1 >= len(p.docs) {
		return fmt.Errorf("click %q: no further snapshot after page %d", selector, p.current+1)
	}
	p.current++
	return nil
}

// Evaluate records the script; there is no JavaScript engine behind a snapshot
func (p *Page) Evaluate(ctx context.Context, script string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p.Scripts = append(p.Scripts, script)
	return nil
}

// HTML returns the current document
func (p *Page) HTML(ctx context.Context) (string, error) {
	doc := p.doc()
	if doc == nil {
		return "", fmt.Errorf("no document loaded")
	}
	return doc.Html()
}

// Close marks the page closed
func (p *Page) Close() error {
	p.closed = true
	return nil
}

// element adapts a goquery selection to page.Element
type element struct {
	sel *goquery.Selection
}

func wrapAll(sel *goquery.Selection) []page.Element {
	out := make([]page.Element, 0, sel.Length())
	sel.Each(func(_ int, s *goquery.Selection) {
		out = append(out, element{sel: s})
	})
	return out
}

func (e element) Text() (string, error) {
	return e.sel.Text(), nil
}

func (e element) Parent() (page.Element, error) {
	parent := e.sel.Parent()
	if parent.Length() == 0 {
		return nil, fmt.Errorf("parent: %w", page.ErrElementNotFound)
	}
	return element{sel: parent}, nil
}

func (e element) Elements(selector string) ([]page.Element, error) {
	return wrapAll(e.sel.Find(selector)), nil
}
