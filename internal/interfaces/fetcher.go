package interfaces

import "context"

// FetchResult is the fetcher contract output. Timeouts classify as status
// 408, network errors as status 0. A fetch with status 200-399 and
// non-empty text is treated as successful.
type FetchResult struct {
	URL         string   `json:"url"`
	FinalURL    string   `json:"final_url"`
	StatusCode  int      `json:"status_code"`
	ContentType string   `json:"content_type"`
	HTML        string   `json:"html"`
	Text        string   `json:"text"`
	Title       string   `json:"title"`
	Links       []string `json:"links"`
	LoadTimeMs  int64    `json:"load_time_ms"`
	Error       string   `json:"error,omitempty"`
}

// Success reports whether the fetch produced usable content.
func (r *FetchResult) Success() bool {
	return r.StatusCode >= 200 && r.StatusCode < 400 && r.Text != ""
}

// Fetcher retrieves and renders one page. Implementations: a plain HTTP
// fetcher and an optional JS-capable chromedp fetcher that falls back to
// HTTP when the browser is unavailable.
type Fetcher interface {
	Fetch(ctx context.Context, url string) *FetchResult
	Close() error
}
