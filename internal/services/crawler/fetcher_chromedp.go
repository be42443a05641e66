package crawler

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
	"github.com/ternarybob/arbor"

	"github.com/cirahq/cira/internal/common"
	"github.com/cirahq/cira/internal/interfaces"
)

// ChromedpFetcher renders pages in a headless browser for sites that
// require JavaScript. One browser process is shared across fetches; each
// fetch runs in a fresh tab. Any browser-level failure falls back to the
// plain HTTP fetcher so a broken Chrome install degrades the crawl
// instead of stopping it.
type ChromedpFetcher struct {
	logger   arbor.ILogger
	fallback *HTTPFetcher
	timeout  time.Duration

	mu          sync.Mutex
	allocCtx    context.Context
	allocCancel context.CancelFunc
	broken      bool
}

// NewChromedpFetcher creates a JS-capable fetcher with an HTTP fallback.
func NewChromedpFetcher(logger arbor.ILogger, config *common.CrawlerConfig) *ChromedpFetcher {
	timeout := config.RequestTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", true),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.UserAgent(config.UserAgent),
	)
	if config.IgnoreHTTPSErrors {
		opts = append(opts, chromedp.Flag("ignore-certificate-errors", true))
	}
	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), opts...)

	return &ChromedpFetcher{
		logger:      logger,
		fallback:    NewHTTPFetcher(logger, config),
		timeout:     timeout,
		allocCtx:    allocCtx,
		allocCancel: allocCancel,
	}
}

// Fetch renders the page and extracts HTML, text, title, and links. When
// the browser cannot start or rendering fails, the HTTP fallback result
// is returned instead.
func (f *ChromedpFetcher) Fetch(ctx context.Context, rawURL string) *interfaces.FetchResult {
	f.mu.Lock()
	broken := f.broken
	f.mu.Unlock()
	if broken {
		return f.fallback.Fetch(ctx, rawURL)
	}

	start := time.Now()
	result := &interfaces.FetchResult{URL: rawURL, FinalURL: rawURL}

	tabCtx, cancelTab := chromedp.NewContext(f.allocCtx)
	defer cancelTab()
	tabCtx, cancelTimeout := context.WithTimeout(tabCtx, f.timeout)
	defer cancelTimeout()

	var statusCode int64
	var contentType string
	chromedp.ListenTarget(tabCtx, func(ev interface{}) {
		if resp, ok := ev.(*network.EventResponseReceived); ok && resp.Type == network.ResourceTypeDocument {
			if statusCode == 0 {
				statusCode = resp.Response.Status
				contentType = resp.Response.MimeType
			}
		}
	})

	var html, finalURL string
	err := chromedp.Run(tabCtx,
		network.Enable(),
		chromedp.Navigate(rawURL),
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.Location(&finalURL),
		chromedp.OuterHTML("html", &html, chromedp.ByQuery),
	)
	if err != nil {
		if tabCtx.Err() == context.DeadlineExceeded {
			result.StatusCode = 408
			result.Error = err.Error()
			result.LoadTimeMs = time.Since(start).Milliseconds()
			return result
		}
		// Browser-level failure: mark the renderer broken and degrade
		if strings.Contains(err.Error(), "exec") || strings.Contains(err.Error(), "chrome") {
			f.mu.Lock()
			f.broken = true
			f.mu.Unlock()
			f.logger.Warn().Err(err).Msg("Headless browser unavailable, falling back to HTTP fetcher")
		}
		return f.fallback.Fetch(ctx, rawURL)
	}

	result.StatusCode = int(statusCode)
	if result.StatusCode == 0 {
		result.StatusCode = 200
	}
	result.ContentType = contentType
	result.FinalURL = finalURL
	result.HTML = html
	result.LoadTimeMs = time.Since(start).Milliseconds()

	ParseHTML(result)
	return result
}

// Close shuts down the browser process.
func (f *ChromedpFetcher) Close() error {
	f.allocCancel()
	return f.fallback.Close()
}
