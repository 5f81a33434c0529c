package httpmiddleware

import (
	"context"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-faster/jx"
)

// RateLimitConfig configures the per-client sliding window limiter.
type RateLimitConfig struct {
	// Limit is the number of requests allowed per window.
	Limit int
	// Window is the length of the sliding window.
	Window time.Duration
	// ClientKey derives the bucket key for a request. When nil, requests
	// are keyed by originating IP (proxy-header aware, see clientIP).
	ClientKey func(*http.Request) string
}

// counter holds one client's request counts over two adjacent fixed windows.
// The sliding estimate weighs the previous window by how much of it still
// overlaps the trailing Window-sized interval ending now.
type counter struct {
	start time.Time
	prev  int
	curr  int
}

type limiter struct {
	cfg RateLimitConfig
	now func() time.Time

	mu      sync.Mutex
	clients map[string]*counter
}

func newLimiter(cfg RateLimitConfig) *limiter {
	if cfg.ClientKey == nil {
		cfg.ClientKey = clientIP
	}
	return &limiter{
		cfg:     cfg,
		now:     time.Now,
		clients: make(map[string]*counter),
	}
}

// verdict is the outcome of one take: whether the request may proceed, plus
// the bucket state reported in the X-RateLimit headers.
type verdict struct {
	ok        bool
	remaining int
	resetAt   time.Time
}

func (l *limiter) take(key string) verdict {
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	c, ok := l.clients[key]
	if !ok {
		c = &counter{start: now}
		l.clients[key] = c
	}

	// Rotate once the fixed window has elapsed. After two idle windows the
	// previous count no longer overlaps anything and is discarded.
	if elapsed := now.Sub(c.start); elapsed >= l.cfg.Window {
		if elapsed >= 2*l.cfg.Window {
			c.prev = 0
		} else {
			c.prev = c.curr
		}
		c.curr = 0
		c.start = now.Truncate(l.cfg.Window)
	}

	frac := 1 - now.Sub(c.start).Seconds()/l.cfg.Window.Seconds()
	if frac < 0 {
		frac = 0
	}
	used := float64(c.prev)*frac + float64(c.curr)
	resetAt := c.start.Add(l.cfg.Window)

	if used >= float64(l.cfg.Limit) {
		return verdict{resetAt: resetAt}
	}
	c.curr++

	remaining := int(float64(l.cfg.Limit) - used - 1)
	if remaining < 0 {
		remaining = 0
	}
	return verdict{ok: true, remaining: remaining, resetAt: resetAt}
}

// sweep drops clients whose windows have both fully expired.
func (l *limiter) sweep() {
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()
	for key, c := range l.clients {
		if now.Sub(c.start) >= 2*l.cfg.Window {
			delete(l.clients, key)
		}
	}
}

func (l *limiter) handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		v := l.take(l.cfg.ClientKey(r))

		h := w.Header()
		h.Set("X-RateLimit-Limit", strconv.Itoa(l.cfg.Limit))
		h.Set("X-RateLimit-Remaining", strconv.Itoa(v.remaining))
		h.Set("X-RateLimit-Reset", strconv.FormatInt(v.resetAt.Unix(), 10))

		if !v.ok {
			retry := v.resetAt.Sub(l.now())
			if retry < 0 {
				retry = 0
			}
			h.Set("Retry-After", strconv.FormatInt(int64((retry+time.Second-1)/time.Second), 10))
			h.Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusTooManyRequests)

			var e jx.Encoder
			e.ObjStart()
			e.FieldStart("code")
			e.Int(http.StatusTooManyRequests)
			e.FieldStart("message")
			e.Str("rate limit exceeded")
			e.ObjEnd()
			_, _ = w.Write(e.Bytes())
			return
		}

		next.ServeHTTP(w, r)
	})
}

// RateLimit limits each client to cfg.Limit requests per cfg.Window using a
// sliding window estimate. Every response carries X-RateLimit-Limit,
// X-RateLimit-Remaining, and X-RateLimit-Reset headers; a rejected request
// gets 429 with a JSON body and a Retry-After hint.
//
// This variant never evicts idle buckets. Use RateLimitWithCleanup on
// long-running servers.
func RateLimit(cfg RateLimitConfig) Middleware {
	return newLimiter(cfg).handler
}

// RateLimitWithCleanup is RateLimit plus a background sweeper that evicts
// idle client buckets every two windows until ctx is cancelled.
func RateLimitWithCleanup(ctx context.Context, cfg RateLimitConfig) Middleware {
	l := newLimiter(cfg)
	go func() {
		ticker := time.NewTicker(2 * cfg.Window)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				l.sweep()
			}
		}
	}()
	return l.handler
}

// clientIP resolves the originating address: the first X-Forwarded-For hop,
// then X-Real-IP, then the connection's remote address.
func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		first, _, _ := strings.Cut(fwd, ",")
		return strings.TrimSpace(first)
	}
	if ip := r.Header.Get("X-Real-IP"); ip != "" {
		return ip
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
