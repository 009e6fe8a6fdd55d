package middleware

import (
	"log/slog"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// ForwardedForHeader carries the original client address on requests the
// frontend relays to the API.
const ForwardedForHeader = "X-Forwarded-For"

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter gives every client its own token bucket. Buckets idle for
// longer than idleTTL are dropped by a background sweeper that runs until
// Close.
type RateLimiter struct {
	limit   rate.Limit
	burst   int
	idleTTL time.Duration
	logger  *slog.Logger
	now     func() time.Time

	mu       sync.Mutex
	visitors map[string]*visitor

	done chan struct{}
	once sync.Once
	wg   sync.WaitGroup
}

func NewRateLimiter(limit rate.Limit, burst int, idleTTL time.Duration, logger *slog.Logger) *RateLimiter {
	rl := &RateLimiter{
		limit:    limit,
		burst:    burst,
		idleTTL:  idleTTL,
		logger:   logger,
		now:      time.Now,
		visitors: make(map[string]*visitor),
		done:     make(chan struct{}),
	}
	rl.wg.Add(1)
	go rl.cleanupLoop()
	return rl
}

// Handler rejects requests over the caller's budget with 429.
func (rl *RateLimiter) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := ClientIP(r)
		if !rl.allow(key) {
			rl.logger.WarnContext(r.Context(), "rate limit exceeded",
				"client", key,
				"path", r.URL.Path,
				"request_id", RequestID(r.Context()),
			)
			http.Error(w, "rate limit exceeded", http.StatusTooManyRequests)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// Close stops the sweeper and waits for it to exit. It is safe to call more
// than once.
func (rl *RateLimiter) Close() {
	rl.once.Do(func() { close(rl.done) })
	rl.wg.Wait()
}

func (rl *RateLimiter) allow(key string) bool {
	rl.mu.Lock()
	v, ok := rl.visitors[key]
	if !ok {
		v = &visitor{limiter: rate.NewLimiter(rl.limit, rl.burst)}
		rl.visitors[key] = v
	}
	v.lastSeen = rl.now()
	rl.mu.Unlock()

	return v.limiter.Allow()
}

func (rl *RateLimiter) cleanupLoop() {
	defer rl.wg.Done()

	ticker := time.NewTicker(max(rl.idleTTL/2, time.Second))
	defer ticker.Stop()
	for {
		select {
		case <-rl.done:
			return
		case <-ticker.C:
			rl.sweep()
		}
	}
}

func (rl *RateLimiter) sweep() {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	for key, v := range rl.visitors {
		if now.Sub(v.lastSeen) > rl.idleTTL {
			delete(rl.visitors, key)
		}
	}
}

// ClientIP returns the address a request is billed to. Requests from a
// loopback peer that name an origin in X-Forwarded-For, as the frontend's
// relayed API calls do, are billed to that origin. The header is ignored
// from any other peer.
func ClientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	if ip := net.ParseIP(host); ip == nil || !ip.IsLoopback() {
		return host
	}

	first, _, _ := strings.Cut(r.Header.Get(ForwardedForHeader), ",")
	if first = strings.TrimSpace(first); first != "" {
		return first
	}
	return host
}
