package main

import (
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"legalscan/pkg/httpx"
)

// uploadLimiter caps template uploads per client within a fixed window.
// A zero or negative quota disables it.
type uploadLimiter struct {
	quota  int
	window time.Duration
	clock  func() time.Time

	mu        sync.Mutex
	clients   map[string]*uploadWindow
	lastSweep time.Time
}

type uploadWindow struct {
	opened  time.Time
	uploads int
}

func newUploadLimiter(quota int, window time.Duration) *uploadLimiter {
	return &uploadLimiter{
		quota:   quota,
		window:  window,
		clock:   time.Now,
		clients: map[string]*uploadWindow{},
	}
}

func (l *uploadLimiter) enabled() bool {
	return l != nil && l.quota > 0 && l.window > 0
}

// admit records one upload for client and reports whether it fits the quota.
func (l *uploadLimiter) admit(client string, at time.Time) bool {
	if !l.enabled() {
		return true
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	if at.Sub(l.lastSweep) >= l.window {
		l.sweep(at)
	}
	w, ok := l.clients[client]
	if !ok || at.Sub(w.opened) >= l.window {
		l.clients[client] = &uploadWindow{opened: at, uploads: 1}
		return true
	}
	if w.uploads >= l.quota {
		return false
	}
	w.uploads++
	return true
}

// sweep forgets clients whose window closed. Caller holds mu.
func (l *uploadLimiter) sweep(at time.Time) {
	for client, w := range l.clients {
		if at.Sub(w.opened) >= l.window {
			delete(l.clients, client)
		}
	}
	l.lastSweep = at
}

func (l *uploadLimiter) retryAfter() string {
	secs := int(l.window / time.Second)
	if secs < 1 {
		secs = 1
	}
	return strconv.Itoa(secs)
}

// clientIP is the peer host of r. Forwarded headers are only honored when
// the router rewrote RemoteAddr from them (TRUST_PROXY_HEADERS).
func clientIP(r *http.Request) string {
	addr := strings.TrimSpace(r.RemoteAddr)
	if host, _, err := net.SplitHostPort(addr); err == nil {
		return host
	}
	if addr == "" {
		return "unknown"
	}
	return addr
}

// limitUploads writes a 429 and returns false when the caller is over quota.
func (s *server) limitUploads(w http.ResponseWriter, r *http.Request) bool {
	l := s.limiter
	if !l.enabled() || l.admit(clientIP(r), l.clock()) {
		return true
	}
	w.Header().Set("Retry-After", l.retryAfter())
	httpx.WriteRequestError(w, r, http.StatusTooManyRequests, "RATE_LIMITED", "upload rate limit exceeded",
		map[string]any{"limit": l.quota, "window_seconds": int(l.window / time.Second)})
	return false
}
