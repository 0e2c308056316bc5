package middleware

import (
	"context"
	"net"
	"net/http"
	"net/netip"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/VampKunal/IdeaRoom/internal/metrics"
)

// KeyFunc derives the counter key for a request.
type KeyFunc func(r *http.Request) string

// Rule limits requests whose method matches and whose path starts with
// Prefix.
type Rule struct {
	Method   string
	Prefix   string
	Requests int
	Window   time.Duration
	Key      KeyFunc
}

// DefaultRules covers the websocket upgrade and the read endpoints.
func DefaultRules() []Rule {
	return []Rule{
		{http.MethodGet, "/ws", 30, time.Minute, ipKey},
		{http.MethodGet, "/rooms/", 120, time.Minute, userOrIPKey},
		{http.MethodGet, "/stats", 60, time.Minute, ipKey},
	}
}

// RateLimiterConfig holds configuration for the rate limiter.
type RateLimiterConfig struct {
	Rules            []Rule   // nil selects DefaultRules
	Whitelist        []string // IPs or CIDRs exempt from rate limiting
	AutoBlockEnabled bool     // block IPs after repeated violations
	AutoBlockAfter   int      // violations per hour before a block, default 10
	BlockFor         time.Duration
}

// Decision is the outcome of one counted request.
type Decision struct {
	Allowed   bool
	Limit     int
	Remaining int
	ResetAt   time.Time
}

// RateLimiter implements a Redis-backed sliding window limiter.
type RateLimiter struct {
	client    *redis.Client
	rules     []Rule
	blocker   *IPBlocker
	logger    zerolog.Logger
	whitelist []netip.Prefix

	autoBlock      bool
	autoBlockAfter int64
	blockFor       time.Duration
}

// NewRateLimiter creates a new rate limiter.
func NewRateLimiter(client *redis.Client, logger zerolog.Logger, cfg RateLimiterConfig) *RateLimiter {
	rl := &RateLimiter{
		client:         client,
		blocker:        NewIPBlocker(client),
		logger:         logger,
		autoBlock:      cfg.AutoBlockEnabled,
		autoBlockAfter: 10,
		blockFor:       24 * time.Hour,
	}
	if cfg.AutoBlockAfter > 0 {
		rl.autoBlockAfter = int64(cfg.AutoBlockAfter)
	}
	if cfg.BlockFor > 0 {
		rl.blockFor = cfg.BlockFor
	}

	rules := cfg.Rules
	if rules == nil {
		rules = DefaultRules()
	}
	rl.setRules(rules)

	for _, entry := range cfg.Whitelist {
		p, err := parseWhitelistEntry(entry)
		if err != nil {
			logger.Warn().Str("entry", entry).Err(err).Msg("invalid whitelist entry")
			continue
		}
		rl.whitelist = append(rl.whitelist, p)
	}
	if len(rl.whitelist) > 0 {
		logger.Info().Int("entries", len(rl.whitelist)).Msg("rate limit whitelist configured")
	}

	return rl
}

// setRules installs rules, longest prefix first so the most specific
// rule wins.
func (rl *RateLimiter) setRules(rules []Rule) {
	rl.rules = append([]Rule(nil), rules...)
	sort.SliceStable(rl.rules, func(i, j int) bool {
		return len(rl.rules[i].Prefix) > len(rl.rules[j].Prefix)
	})
}

func parseWhitelistEntry(entry string) (netip.Prefix, error) {
	if strings.Contains(entry, "/") {
		p, err := netip.ParsePrefix(entry)
		return p.Masked(), err
	}
	addr, err := netip.ParseAddr(entry)
	if err != nil {
		return netip.Prefix{}, err
	}
	return netip.PrefixFrom(addr, addr.BitLen()), nil
}

func (rl *RateLimiter) isWhitelisted(ip string) bool {
	addr, err := netip.ParseAddr(ip)
	if err != nil {
		return false
	}
	addr = addr.Unmap()
	for _, p := range rl.whitelist {
		if p.Contains(addr) {
			return true
		}
	}
	return false
}

func ipKey(r *http.Request) string {
	return "ratelimit:ip:" + RealIP(r)
}

// userOrIPKey counts authenticated callers per user so clients behind a
// shared NAT do not starve each other.
func userOrIPKey(r *http.Request) string {
	if id := GetIdentityFromContext(r.Context()); id != nil {
		return "ratelimit:user:" + id.UserID
	}
	return ipKey(r)
}

// RealIP extracts the real client IP from headers or connection.
func RealIP(r *http.Request) string {
	if ip := r.Header.Get("Fly-Client-IP"); ip != "" {
		return ip
	}
	if ip := r.Header.Get("X-Forwarded-For"); ip != "" {
		return strings.TrimSpace(strings.Split(ip, ",")[0])
	}
	if ip := r.Header.Get("X-Real-IP"); ip != "" {
		return ip
	}
	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return ip
}

// Allow counts one request against key. Requests older than window drop
// out of the set, so the limit applies to any window-long span.
func (rl *RateLimiter) Allow(ctx context.Context, key string, limit int, window time.Duration) (Decision, error) {
	now := time.Now()
	member := strconv.FormatInt(now.UnixNano(), 10)

	pipe := rl.client.TxPipeline()
	pipe.ZRemRangeByScore(ctx, key, "-inf", strconv.FormatInt(now.Add(-window).UnixMilli(), 10))
	count := pipe.ZCard(ctx, key)
	pipe.ZAdd(ctx, key, redis.Z{Score: float64(now.UnixMilli()), Member: member})
	oldest := pipe.ZRangeWithScores(ctx, key, 0, 0)
	pipe.PExpire(ctx, key, window)
	if _, err := pipe.Exec(ctx); err != nil {
		return Decision{Allowed: true, Limit: limit, Remaining: limit}, err
	}

	d := Decision{
		Allowed:   count.Val() < int64(limit),
		Limit:     limit,
		Remaining: max(limit-int(count.Val())-1, 0),
		ResetAt:   now.Add(window),
	}
	if z := oldest.Val(); len(z) > 0 {
		d.ResetAt = time.UnixMilli(int64(z[0].Score)).Add(window)
	}
	return d, nil
}

// Middleware returns the rate limiting middleware.
func (rl *RateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := RealIP(r)
		if rl.isWhitelisted(ip) {
			next.ServeHTTP(w, r)
			return
		}

		if rl.blocker.IsBlocked(r.Context(), ip) {
			rl.logger.Warn().
				Str("type", "security").
				Str("event", "blocked_request").
				Str("ip", ip).
				Str("endpoint", r.URL.Path).
				Msg("blocked IP attempted request")
			metrics.BlockedRequests.WithLabelValues("ip_blocked").Inc()
			jsonError(w, http.StatusForbidden, "temporarily blocked")
			return
		}

		rule := rl.match(r)
		if rule == nil {
			next.ServeHTTP(w, r)
			return
		}

		key := rule.Key(r)
		d, err := rl.Allow(r.Context(), key, rule.Requests, rule.Window)
		if err != nil {
			// Redis outage: serve the request unlimited.
			rl.logger.Error().Err(err).Str("key", key).Msg("rate limit check failed")
		}

		w.Header().Set("X-RateLimit-Limit", strconv.Itoa(d.Limit))
		w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(d.Remaining))
		w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(d.ResetAt.Unix(), 10))

		if !d.Allowed {
			w.Header().Set("Retry-After", strconv.Itoa(max(int(time.Until(d.ResetAt).Seconds()), 1)))
			rl.trackViolation(r.Context(), ip)
			metrics.RateLimitHits.WithLabelValues(normalizePath(r.URL.Path)).Inc()

			rl.logger.Warn().
				Str("type", "security").
				Str("event", "rate_limit_exceeded").
				Str("ip", ip).
				Str("endpoint", r.URL.Path).
				Str("key", key).
				Msg("rate limit exceeded")

			jsonError(w, http.StatusTooManyRequests, "rate limit exceeded")
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (rl *RateLimiter) match(r *http.Request) *Rule {
	for i := range rl.rules {
		rule := &rl.rules[i]
		if rule.Method == r.Method && strings.HasPrefix(r.URL.Path, rule.Prefix) {
			return rule
		}
	}
	return nil
}

// trackViolation counts violations per IP and blocks repeat offenders.
func (rl *RateLimiter) trackViolation(ctx context.Context, ip string) {
	if !rl.autoBlock {
		return
	}

	key := "violations:ip:" + ip
	count, err := rl.client.Incr(ctx, key).Result()
	if err != nil {
		return
	}
	if count == 1 {
		rl.client.Expire(ctx, key, time.Hour)
	}

	if count >= rl.autoBlockAfter {
		rl.blocker.Block(ctx, ip, rl.blockFor, "repeated rate limit violations")
		rl.logger.Warn().
			Str("type", "security").
			Str("event", "ip_auto_blocked").
			Str("ip", ip).
			Int64("violations", count).
			Dur("duration", rl.blockFor).
			Msg("IP auto-blocked for repeated violations")
	}
}
