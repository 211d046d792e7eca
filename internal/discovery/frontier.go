package discovery

import (
	"strings"
	"sync"
)

type entry struct {
	url   string
	depth int
}

// Frontier is the queue and visited set of one Discover call. It is never
// shared between runs.
type Frontier struct {
	queue []entry
	seen  sync.Map
}

func newFrontier() *Frontier {
	return &Frontier{}
}

// MarkIfNew records url and reports whether it had not been seen before.
func (f *Frontier) MarkIfNew(url string) bool {
	if url == "" {
		return false
	}
	_, loaded := f.seen.LoadOrStore(url, struct{}{})
	return !loaded
}

func (f *Frontier) push(url string, depth int) {
	f.queue = append(f.queue, entry{url: url, depth: depth})
}

func (f *Frontier) pop() (entry, bool) {
	if len(f.queue) == 0 {
		return entry{}, false
	}
	e := f.queue[0]
	f.queue = f.queue[1:]
	return e, true
}

// Len returns the number of queued URLs.
func (f *Frontier) Len() int {
	return len(f.queue)
}

// hostBlocker counts 403 responses per host and blocks a host once the count
// reaches the threshold.
type hostBlocker struct {
	mu        sync.Mutex
	threshold int
	counts    map[string]int
	blocked   map[string]struct{}
}

func newHostBlocker(threshold int) *hostBlocker {
	if threshold <= 0 {
		threshold = DefaultForbiddenThreshold
	}
	return &hostBlocker{
		threshold: threshold,
		counts:    make(map[string]int),
		blocked:   make(map[string]struct{}),
	}
}

func (b *hostBlocker) IsBlocked(host string) bool {
	if host == "" {
		return false
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	_, ok := b.blocked[strings.ToLower(host)]
	return ok
}

// MarkForbidden returns true once host is blocked.
func (b *hostBlocker) MarkForbidden(host string) bool {
	if host == "" {
		return false
	}
	key := strings.ToLower(host)
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.blocked[key]; ok {
		return true
	}
	b.counts[key]++
	if b.counts[key] >= b.threshold {
		b.blocked[key] = struct{}{}
		return true
	}
	return false
}
