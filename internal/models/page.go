package models

import "time"

// PageType classifies a crawled page into one of ten content tiers plus
// "other". The tier drives crawl priority (lower = fetched sooner).
type PageType string

const (
	PageTypeAbout    PageType = "about"
	PageTypeTeam     PageType = "team"
	PageTypeProduct  PageType = "product"
	PageTypeService  PageType = "service"
	PageTypeContact  PageType = "contact"
	PageTypeCareers  PageType = "careers"
	PageTypePricing  PageType = "pricing"
	PageTypeBlog     PageType = "blog"
	PageTypeNews     PageType = "news"
	PageTypeOther    PageType = "other"
)

// PageTypePriority maps each page type to its crawl tier.
var PageTypePriority = map[PageType]int{
	PageTypeAbout:   1,
	PageTypeTeam:    2,
	PageTypeProduct: 3,
	PageTypeService: 4,
	PageTypeContact: 5,
	PageTypeCareers: 6,
	PageTypePricing: 7,
	PageTypeBlog:    8,
	PageTypeNews:    9,
	PageTypeOther:   10,
}

// PriorityFor returns the crawl tier for a page type, defaulting to the
// "other" tier for unknown types.
func PriorityFor(pt PageType) int {
	if p, ok := PageTypePriority[pt]; ok {
		return p
	}
	return PageTypePriority[PageTypeOther]
}

// Page is a single crawled document. URL is canonicalized before insert;
// (CompanyID, URL) is unique.
type Page struct {
	ID        string `json:"id" badgerhold:"key"`
	CompanyID string `json:"company_id" badgerhold:"index"`

	URL         string   `json:"url"`
	PageType    PageType `json:"page_type"`
	Title       string   `json:"title,omitempty"`
	HTML        string   `json:"html,omitempty"`
	Text        string   `json:"text,omitempty"`
	Markdown    string   `json:"markdown,omitempty"`
	ContentHash string   `json:"content_hash,omitempty"`

	StatusCode int    `json:"status_code"`
	Depth      int    `json:"depth"`
	IsExternal bool   `json:"is_external"`
	Error      string `json:"error,omitempty"`

	CrawledAt time.Time `json:"crawled_at"`
}
