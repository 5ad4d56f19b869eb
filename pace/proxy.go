package pace

import (
	"log/slog"
	"sync"
)

// ProxyRing cycles through a configured proxy pool. Failed proxies are
// quarantined; when every proxy is quarantined the set is cleared and
// rotation resumes (fail-open: external proxy lists do recover, and a
// scraper with no proxy candidates at all would simply stall).
type ProxyRing struct {
	mu      sync.Mutex
	proxies []string
	next    int
	failed  map[string]bool
	logger  *slog.Logger
}

// NewProxyRing creates a ring over the pool. An empty pool is valid:
// Next then always returns "".
func NewProxyRing(pool []string, logger *slog.Logger) *ProxyRing {
	if logger == nil {
		logger = slog.Default()
	}
	return &ProxyRing{
		proxies: append([]string(nil), pool...),
		failed:  make(map[string]bool),
		logger:  logger,
	}
}

// Next returns the next usable proxy, or "" when the pool is empty.
func (r *ProxyRing) Next() string {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(r.proxies) == 0 {
		return ""
	}

	if len(r.failed) >= len(r.proxies) {
		r.logger.Warn("pace: all proxies quarantined, resetting", "pool", len(r.proxies))
		r.failed = make(map[string]bool)
	}

	for i := 0; i < len(r.proxies); i++ {
		p := r.proxies[r.next%len(r.proxies)]
		r.next++
		if !r.failed[p] {
			return p
		}
	}

	// Unreachable given the reset above, but stay safe.
	return r.proxies[0]
}

// MarkFailed quarantines a proxy until the next fail-open reset.
func (r *ProxyRing) MarkFailed(proxy string) {
	if proxy == "" {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failed[proxy] = true
	r.logger.Warn("pace: proxy quarantined", "proxy", proxy)
}

// Len returns the pool size.
func (r *ProxyRing) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.proxies)
}
