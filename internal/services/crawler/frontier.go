package crawler

import (
	"container/heap"
	"regexp"
	"strings"
	"sync"

	"github.com/cirahq/cira/internal/common"
	"github.com/cirahq/cira/internal/models"
)

// frontierDomain normalizes a host for the in-domain check, treating a
// leading "www." as insignificant.
func frontierDomain(rawURL string) string {
	return strings.TrimPrefix(common.ExtractDomain(rawURL), "www.")
}

// frontierItem is one pending URL with its ordering keys.
type frontierItem struct {
	url      string // canonical form
	depth    int
	priority int
	retries  int
	seq      int // insertion counter, breaks ties FIFO
}

type itemHeap []*frontierItem

func (h itemHeap) Len() int { return len(h) }

func (h itemHeap) Less(i, j int) bool {
	if h[i].priority != h[j].priority {
		return h[i].priority < h[j].priority
	}
	if h[i].depth != h[j].depth {
		return h[i].depth < h[j].depth
	}
	return h[i].seq < h[j].seq
}

func (h itemHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *itemHeap) Push(x interface{}) {
	*h = append(*h, x.(*frontierItem))
}

func (h *itemHeap) Pop() interface{} {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}

// Frontier is the per-company crawl queue: a min-heap ordered by
// (page-type priority, depth, insertion order), so high-value pages are
// fetched first and ties crawl breadth-first. URLs are canonicalized on
// admission; seen, visited, and content-hash sets enforce the dedupe
// discipline. State round-trips through the checkpoint.
type Frontier struct {
	mu sync.Mutex

	domain   string
	maxDepth int
	exclude  []*regexp.Regexp

	items   itemHeap
	seq     int
	seen    map[string]bool
	visited map[string]bool
	hashes  map[string]bool
}

// NewFrontier creates a frontier scoped to the seed URL's domain.
func NewFrontier(seedURL string, maxDepth int, excludePatterns []string) *Frontier {
	exclude := make([]*regexp.Regexp, 0, len(excludePatterns))
	for _, p := range excludePatterns {
		re, err := regexp.Compile(p)
		if err != nil {
			continue // Invalid patterns are skipped, not fatal
		}
		exclude = append(exclude, re)
	}

	f := &Frontier{
		domain:   frontierDomain(seedURL),
		maxDepth: maxDepth,
		exclude:  exclude,
		seen:     make(map[string]bool),
		visited:  make(map[string]bool),
		hashes:   make(map[string]bool),
	}
	heap.Init(&f.items)
	return f
}

// Add admits a URL at the given depth, returning the canonical form and
// whether it was enqueued. Rejections: unparseable, cross-domain, beyond
// max depth, matching an exclusion pattern, or already seen/visited.
func (f *Frontier) Add(rawURL string, depth, priority int) (string, bool) {
	canonical, err := common.CanonicalizeURL(rawURL)
	if err != nil {
		return "", false
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if frontierDomain(canonical) != f.domain {
		return canonical, false
	}
	if f.maxDepth > 0 && depth > f.maxDepth {
		return canonical, false
	}
	for _, re := range f.exclude {
		if re.MatchString(canonical) {
			return canonical, false
		}
	}
	if f.seen[canonical] || f.visited[canonical] {
		return canonical, false
	}

	f.seen[canonical] = true
	f.seq++
	heap.Push(&f.items, &frontierItem{
		url:      canonical,
		depth:    depth,
		priority: priority,
		seq:      f.seq,
	})
	return canonical, true
}

// Next pops the head of the queue. Returns false when empty.
func (f *Frontier) Next() (models.QueuedPage, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.items.Len() == 0 {
		return models.QueuedPage{}, false
	}
	item := heap.Pop(&f.items).(*frontierItem)
	return models.QueuedPage{URL: item.url, Depth: item.depth, Priority: item.priority, Retries: item.retries}, true
}

// Requeue re-admits a popped entry that was not fetched, bypassing the
// seen-set check. Callers bound the retry count; visited URLs are dropped.
func (f *Frontier) Requeue(p models.QueuedPage) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.visited[p.URL] {
		return
	}
	f.seen[p.URL] = true
	f.seq++
	heap.Push(&f.items, &frontierItem{
		url:      p.URL,
		depth:    p.Depth,
		priority: p.Priority,
		retries:  p.Retries,
		seq:      f.seq,
	})
}

// MarkVisited records a completed fetch so the URL is never re-enqueued.
func (f *Frontier) MarkVisited(canonicalURL string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.visited[canonicalURL] = true
}

// IsVisited reports whether the URL has already been fetched.
func (f *Frontier) IsVisited(canonicalURL string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.visited[canonicalURL]
}

// RecordHash registers a content hash, returning false if it was already
// present (a duplicate page body).
func (f *Frontier) RecordHash(hash string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.hashes[hash] {
		return false
	}
	f.hashes[hash] = true
	return true
}

// Len returns the number of pending URLs.
func (f *Frontier) Len() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.items.Len()
}

// VisitedCount returns the number of completed fetches.
func (f *Frontier) VisitedCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.visited)
}

// Snapshot exports the frontier for checkpointing: pending entries in pop
// order plus the visited and hash sets.
func (f *Frontier) Snapshot() (pending []models.QueuedPage, visited []string, hashes []string) {
	f.mu.Lock()
	defer f.mu.Unlock()

	// Drain a copy of the heap so pending order matches pop order
	tmp := make(itemHeap, len(f.items))
	copy(tmp, f.items)
	heap.Init(&tmp)
	pending = make([]models.QueuedPage, 0, len(tmp))
	for tmp.Len() > 0 {
		item := heap.Pop(&tmp).(*frontierItem)
		pending = append(pending, models.QueuedPage{URL: item.url, Depth: item.depth, Priority: item.priority, Retries: item.retries})
	}

	visited = make([]string, 0, len(f.visited))
	for u := range f.visited {
		visited = append(visited, u)
	}
	hashes = make([]string, 0, len(f.hashes))
	for h := range f.hashes {
		hashes = append(hashes, h)
	}
	return pending, visited, hashes
}

// Restore rebuilds the frontier from checkpoint state. Pending entries
// keep their recorded priority and depth; insertion order follows slice
// order so the restored pop order matches the snapshot.
func (f *Frontier) Restore(pending []models.QueuedPage, visited []string, hashes []string) {
	f.mu.Lock()
	defer f.mu.Unlock()

	for _, u := range visited {
		f.visited[u] = true
	}
	for _, h := range hashes {
		f.hashes[h] = true
	}
	for _, p := range pending {
		if f.seen[p.URL] || f.visited[p.URL] {
			continue
		}
		f.seen[p.URL] = true
		f.seq++
		heap.Push(&f.items, &frontierItem{
			url:      p.URL,
			depth:    p.Depth,
			priority: p.Priority,
			retries:  p.Retries,
			seq:      f.seq,
		})
	}
}
