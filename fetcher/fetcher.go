package fetcher

import "context"

// Fetcher retrieves static pages that need no browser
type Fetcher interface {
	// Links returns the absolute href of every element matching selector on url
	Links(ctx context.Context, url, selector string) ([]string, error)
	// Fetch returns the HTML body of url
	Fetch(ctx context.Context, url string) (string, error)
}
