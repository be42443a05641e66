package crawler

import (
	"context"
	"crypto/tls"
	"errors"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	md "github.com/JohannesKaufmann/html-to-markdown"
	"github.com/PuerkitoBio/goquery"
	"github.com/ternarybob/arbor"

	"github.com/cirahq/cira/internal/common"
	"github.com/cirahq/cira/internal/interfaces"
)

const maxBodyBytes = 8 * 1024 * 1024

// HTTPFetcher retrieves pages with a plain HTTP client: no JS execution,
// which suffices for most marketing sites and keeps the crawl cheap. HTML
// is parsed once with goquery to produce text, title, and outgoing links.
type HTTPFetcher struct {
	client    *http.Client
	logger    arbor.ILogger
	userAgent string
	converter *md.Converter
}

// NewHTTPFetcher creates an HTTP-only fetcher.
func NewHTTPFetcher(logger arbor.ILogger, config *common.CrawlerConfig) *HTTPFetcher {
	timeout := config.RequestTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	transport := http.DefaultTransport.(*http.Transport).Clone()
	if config.IgnoreHTTPSErrors {
		transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true}
	}

	return &HTTPFetcher{
		client: &http.Client{
			Timeout:   timeout,
			Transport: transport,
		},
		logger:    logger,
		userAgent: config.UserAgent,
		converter: md.NewConverter("", true, nil),
	}
}

// Fetch retrieves one page. Errors never propagate as Go errors: the
// result's status code carries the classification (408 timeout, 0 network
// failure) so the crawl loop records an error page and moves on.
func (f *HTTPFetcher) Fetch(ctx context.Context, rawURL string) *interfaces.FetchResult {
	start := time.Now()
	result := &interfaces.FetchResult{URL: rawURL, FinalURL: rawURL}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		result.Error = err.Error()
		return result
	}
	req.Header.Set("User-Agent", f.userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml")

	resp, err := f.client.Do(req)
	if err != nil {
		result.StatusCode = classifyFetchError(err)
		result.Error = err.Error()
		result.LoadTimeMs = time.Since(start).Milliseconds()
		return result
	}
	defer resp.Body.Close()

	result.StatusCode = resp.StatusCode
	result.FinalURL = resp.Request.URL.String()
	result.ContentType = resp.Header.Get("Content-Type")
	result.LoadTimeMs = time.Since(start).Milliseconds()

	if !strings.Contains(result.ContentType, "text/html") && result.ContentType != "" {
		// Non-HTML bodies (PDFs, images) are recorded but not parsed
		return result
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		result.Error = err.Error()
		return result
	}
	result.HTML = string(body)

	ParseHTML(result)
	return result
}

// Close is a no-op for the HTTP fetcher.
func (f *HTTPFetcher) Close() error { return nil }

// Markdown converts page HTML to markdown for export surfaces. Conversion
// failures fall back to the extracted text.
func (f *HTTPFetcher) Markdown(html, text string) string {
	markdown, err := f.converter.ConvertString(html)
	if err != nil || strings.TrimSpace(markdown) == "" {
		return text
	}
	return markdown
}

// classifyFetchError maps transport failures onto the status-code
// convention: timeouts are 408, everything else network-level is 0.
func classifyFetchError(err error) int {
	var netErr interface{ Timeout() bool }
	if errors.As(err, &netErr) && netErr.Timeout() {
		return http.StatusRequestTimeout
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, os.ErrDeadlineExceeded) {
		return http.StatusRequestTimeout
	}
	return 0
}

// ParseHTML fills Text, Title, and Links from the result's HTML. Links
// are resolved against the final URL; script and style content is
// excluded from the text.
func ParseHTML(result *interfaces.FetchResult) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(result.HTML))
	if err != nil {
		return
	}

	doc.Find("script, style, noscript").Remove()

	result.Title = strings.TrimSpace(doc.Find("title").First().Text())
	result.Text = strings.Join(strings.Fields(doc.Find("body").Text()), " ")

	base, err := url.Parse(result.FinalURL)
	if err != nil {
		return
	}
	seen := make(map[string]bool)
	doc.Find("a[href]").Each(func(_ int, sel *goquery.Selection) {
		href, _ := sel.Attr("href")
		href = strings.TrimSpace(href)
		if href == "" || strings.HasPrefix(href, "javascript:") || strings.HasPrefix(href, "mailto:") || strings.HasPrefix(href, "tel:") || strings.HasPrefix(href, "#") {
			return
		}
		target, err := url.Parse(href)
		if err != nil {
			return
		}
		resolved := base.ResolveReference(target).String()
		if seen[resolved] {
			return
		}
		seen[resolved] = true
		result.Links = append(result.Links, resolved)
	})
}
