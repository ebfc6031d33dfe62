package fetcher

import (
	"context"
	"fmt"
	"time"

	"github.com/gocolly/colly/v2"
	"go.uber.org/zap"
)

const defaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

// CollyFetcher implements the Fetcher interface using colly
type CollyFetcher struct {
	collector *colly.Collector
	logger    *zap.SugaredLogger
}

// NewCollyFetcher creates a CollyFetcher that waits delay between requests
// and gives up on a request after timeout
func NewCollyFetcher(delay, timeout time.Duration, logger *zap.SugaredLogger) (*CollyFetcher, error) {
	c := colly.NewCollector(
		colly.UserAgent(defaultUserAgent),
		colly.AllowURLRevisit(),
	)
	if timeout > 0 {
		c.SetRequestTimeout(timeout)
	}
	if err := c.Limit(&colly.LimitRule{
		DomainGlob:  "*",
		Parallelism: 1,
		Delay:       delay,
	}); err != nil {
		return nil, fmt.Errorf("failed to set rate limit: %w", err)
	}

	return &CollyFetcher{
		collector: c,
		logger:    logger,
	}, nil
}

// clone returns a fresh collector so callbacks never pile up across calls
func (cf *CollyFetcher) clone(ctx context.Context) *colly.Collector {
	c := cf.collector.Clone()
	c.OnRequest(func(r *colly.Request) {
		if ctx.Err() != nil {
			r.Abort()
		}
	})
	c.OnError(func(r *colly.Response, err error) {
		cf.logger.Warnf("Error fetching %s: %v", r.Request.URL, err)
	})
	return c
}

// Links implements the Fetcher interface
func (cf *CollyFetcher) Links(ctx context.Context, url, selector string) ([]string, error) {
	var links []string
	c := cf.clone(ctx)
	c.OnHTML(selector, func(e *colly.HTMLElement) {
		href := e.Attr("href")
		if href == "" {
			return
		}
		links = append(links, e.Request.AbsoluteURL(href))
	})

	if err := c.Visit(url); err != nil {
		return nil, fmt.Errorf("failed to visit %s: %w", url, err)
	}
	c.Wait()
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	cf.logger.Debugf("Found %d links on %s", len(links), url)
	return links, nil
}

// Fetch implements the Fetcher interface
func (cf *CollyFetcher) Fetch(ctx context.Context, url string) (string, error) {
	var body string
	c := cf.clone(ctx)
	c.OnResponse(func(r *colly.Response) {
		body = string(r.Body)
	})

	if err := c.Visit(url); err != nil {
		return "", fmt.Errorf("failed to visit %s: %w", url, err)
	}
	c.Wait()
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return body, nil
}
