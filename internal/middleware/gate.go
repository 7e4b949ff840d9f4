package middleware

import (
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/tasktoearn/backend/internal/web"
)

// Gate is the allow/deny filter evaluated before requests reach the core:
// a static banned-IP set plus a per-IP fixed-window rate limit.
type Gate struct {
	limit  int
	window time.Duration
	banned map[string]bool

	mu     sync.Mutex
	counts map[string]*windowCount

	// now is injectable for tests.
	now func() time.Time
}

type windowCount struct {
	windowStart time.Time
	n           int
}

func NewGate(limitPerWindow int, window time.Duration, bannedIPs []string) *Gate {
	banned := make(map[string]bool, len(bannedIPs))
	for _, ip := range bannedIPs {
		banned[ip] = true
	}
	return &Gate{
		limit:  limitPerWindow,
		window: window,
		banned: banned,
		counts: make(map[string]*windowCount),
		now:    time.Now,
	}
}

// Handler wraps next with the gate checks.
func (g *Gate) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := clientIP(r)
		if g.banned[ip] {
			web.Error(w, http.StatusForbidden, web.CodeForbidden, "access denied")
			return
		}
		if g.limit > 0 && !g.allow(ip) {
			web.Error(w, http.StatusTooManyRequests, web.CodeRateLimited, "too many requests")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (g *Gate) allow(ip string) bool {
	now := g.now()
	g.mu.Lock()
	defer g.mu.Unlock()
	c, ok := g.counts[ip]
	if !ok || now.Sub(c.windowStart) >= g.window {
		g.counts[ip] = &windowCount{windowStart: now, n: 1}
		return true
	}
	c.n++
	return c.n <= g.limit
}

func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		// First hop is the original client.
		if i := strings.IndexByte(fwd, ','); i >= 0 {
			fwd = fwd[:i]
		}
		return strings.TrimSpace(fwd)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
