// Package fetcher performs the actual HTTP traffic for a crawl: a polite,
// cookie-aware client with transparent decompression and charset
// normalization, an adaptive politeness throttle, and a robots.txt gate.
package fetcher

import (
	"context"

	"github.com/cinefinder/cinefinder/internal/types"
)

// Fetcher retrieves pages on behalf of the crawl controller.
type Fetcher interface {
	// Fetch retrieves the content at the given request's URL. Failures are
	// reported as *types.FetchError carrying retry classification.
	Fetch(ctx context.Context, req *types.Request) (*types.Response, error)

	// Close releases any resources held by the fetcher.
	Close() error
}
