package crawler

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cirahq/cira/internal/models"
)

func TestFrontier_PopOrderByPriority(t *testing.T) {
	f := NewFrontier("https://example.com", 3, nil)

	paths := map[string]models.PageType{
		"/news":     models.PageTypeNews,
		"/blog":     models.PageTypeBlog,
		"/careers":  models.PageTypeCareers,
		"/contact":  models.PageTypeContact,
		"/services": models.PageTypeService,
		"/products": models.PageTypeProduct,
		"/team":     models.PageTypeTeam,
		"/about":    models.PageTypeAbout,
	}
	for path, pt := range paths {
		_, added := f.Add("https://example.com"+path, 1, models.PriorityFor(pt))
		require.True(t, added, path)
	}

	var order []string
	for {
		page, ok := f.Next()
		if !ok {
			break
		}
		order = append(order, page.URL)
	}

	assert.Equal(t, []string{
		"https://example.com/about",
		"https://example.com/team",
		"https://example.com/products",
		"https://example.com/services",
		"https://example.com/contact",
		"https://example.com/careers",
		"https://example.com/blog",
		"https://example.com/news",
	}, order)
}

func TestFrontier_DepthBreaksPriorityTies(t *testing.T) {
	f := NewFrontier("https://example.com", 5, nil)

	f.Add("https://example.com/blog/deep", 3, models.PriorityFor(models.PageTypeBlog))
	f.Add("https://example.com/blog/shallow", 1, models.PriorityFor(models.PageTypeBlog))

	page, ok := f.Next()
	require.True(t, ok)
	assert.Equal(t, "https://example.com/blog/shallow", page.URL)
}

func TestFrontier_InsertionOrderBreaksFullTies(t *testing.T) {
	f := NewFrontier("https://example.com", 5, nil)

	f.Add("https://example.com/blog/first", 1, 8)
	f.Add("https://example.com/blog/second", 1, 8)

	page, _ := f.Next()
	assert.Equal(t, "https://example.com/blog/first", page.URL)
	page, _ = f.Next()
	assert.Equal(t, "https://example.com/blog/second", page.URL)
}

func TestFrontier_CanonicalizationDedupe(t *testing.T) {
	f := NewFrontier("https://example.com", 3, nil)

	canonical, added := f.Add("https://EXAMPLE.com/About/?utm_source=x&id=1", 0, 1)
	require.True(t, added)
	assert.Equal(t, "https://example.com/about?id=1", canonical)

	// Same page modulo case, tracking params, and trailing slash
	_, added = f.Add("https://example.com/about?id=1", 0, 1)
	assert.False(t, added)
	assert.Equal(t, 1, f.Len())

	// Tracking params shuffled back in are rejected as seen too
	_, added = f.Add("https://example.com/About?id=1&utm_campaign=y", 0, 1)
	assert.False(t, added)
}

func TestFrontier_RequeueBypassesSeenSet(t *testing.T) {
	f := NewFrontier("https://example.com", 3, nil)
	f.Add("https://example.com/slow", 1, 5)

	next, ok := f.Next()
	require.True(t, ok)
	require.Equal(t, 0, next.Retries)

	next.Retries++
	f.Requeue(next)

	again, ok := f.Next()
	require.True(t, ok)
	assert.Equal(t, next.URL, again.URL)
	assert.Equal(t, 1, again.Retries)

	// A visited URL stays out even when requeued
	f.MarkVisited(again.URL)
	f.Requeue(again)
	assert.Equal(t, 0, f.Len())
}

func TestFrontier_Rejections(t *testing.T) {
	f := NewFrontier("https://example.com", 2, []string{`/private/`})

	_, added := f.Add("https://other.com/about", 1, 1)
	assert.False(t, added, "cross-domain")

	_, added = f.Add("https://example.com/deep/page", 3, 1)
	assert.False(t, added, "beyond max depth")

	_, added = f.Add("https://example.com/private/x", 1, 1)
	assert.False(t, added, "exclusion pattern")

	f.MarkVisited("https://example.com/done")
	_, added = f.Add("https://example.com/done", 1, 1)
	assert.False(t, added, "already visited")

	// www variant counts as the same domain
	_, added = f.Add("https://www.example.com/about", 1, 1)
	assert.True(t, added)
}

func TestFrontier_ContentHashDedupe(t *testing.T) {
	f := NewFrontier("https://example.com", 3, nil)

	assert.True(t, f.RecordHash("abc123"))
	assert.False(t, f.RecordHash("abc123"))
	assert.True(t, f.RecordHash("def456"))
}

func TestFrontier_SnapshotRestoreRoundTrip(t *testing.T) {
	f := NewFrontier("https://example.com", 3, nil)
	f.Add("https://example.com/news", 1, 9)
	f.Add("https://example.com/about", 1, 1)
	f.Add("https://example.com/team", 2, 2)
	f.MarkVisited("https://example.com")
	f.RecordHash("h1")

	pending, visited, hashes := f.Snapshot()
	require.Len(t, pending, 3)
	assert.Equal(t, "https://example.com/about", pending[0].URL)
	assert.Equal(t, []string{"https://example.com"}, visited)
	assert.Equal(t, []string{"h1"}, hashes)

	restored := NewFrontier("https://example.com", 3, nil)
	restored.Restore(pending, visited, hashes)

	assert.Equal(t, 3, restored.Len())
	assert.True(t, restored.IsVisited("https://example.com"))
	assert.False(t, restored.RecordHash("h1"))

	var order []string
	for {
		page, ok := restored.Next()
		if !ok {
			break
		}
		order = append(order, page.URL)
	}
	assert.Equal(t, []string{
		"https://example.com/about",
		"https://example.com/team",
		"https://example.com/news",
	}, order)

	// A visited URL from the snapshot cannot be re-enqueued
	_, added := restored.Add("https://example.com", 0, 1)
	assert.False(t, added)
}
