package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/VampKunal/IdeaRoom/internal/identity"
	"github.com/VampKunal/IdeaRoom/internal/models"
)

func newTestLimiter(t *testing.T, cfg RateLimiterConfig) (*RateLimiter, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	if cfg.Rules == nil {
		cfg.Rules = []Rule{{http.MethodGet, "/stats", 2, time.Minute, ipKey}}
	}
	return NewRateLimiter(client, zerolog.Nop(), cfg), client
}

var okHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
})

func get(h http.Handler, path, ip string) *httptest.ResponseRecorder {
	r := httptest.NewRequest(http.MethodGet, path, nil)
	r.RemoteAddr = ip + ":5555"
	w := httptest.NewRecorder()
	h.ServeHTTP(w, r)
	return w
}

func TestRateLimiter(t *testing.T) {
	rl, _ := newTestLimiter(t, RateLimiterConfig{})
	h := rl.Middleware(okHandler)

	for i := 0; i < 2; i++ {
		if w := get(h, "/stats", "10.0.0.1"); w.Code != http.StatusOK {
			t.Fatalf("request %d: status %d", i, w.Code)
		}
	}
	w := get(h, "/stats", "10.0.0.1")
	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("third request status = %d, want 429", w.Code)
	}
	if w.Header().Get("Retry-After") == "" || w.Header().Get("X-RateLimit-Remaining") != "0" {
		t.Errorf("headers = %v", w.Header())
	}

	// Other clients and unlimited paths are unaffected.
	if w := get(h, "/stats", "10.0.0.2"); w.Code != http.StatusOK {
		t.Errorf("other ip status = %d", w.Code)
	}
	if w := get(h, "/health", "10.0.0.1"); w.Code != http.StatusOK {
		t.Errorf("unlimited path status = %d", w.Code)
	}
}

func TestRateLimiterRulePrecedence(t *testing.T) {
	rl, _ := newTestLimiter(t, RateLimiterConfig{Rules: []Rule{
		{http.MethodGet, "/rooms/", 100, time.Minute, ipKey},
		{http.MethodGet, "/rooms/r1/snapshots", 1, time.Minute, ipKey},
	}})

	tests := []struct {
		method, path string
		want         int
	}{
		{http.MethodGet, "/rooms/r1/snapshots", 1},
		{http.MethodGet, "/rooms/r1/state", 100},
		{http.MethodPost, "/rooms/r1/state", 0},
		{http.MethodGet, "/health", 0},
	}
	for _, tt := range tests {
		rule := rl.match(httptest.NewRequest(tt.method, tt.path, nil))
		got := 0
		if rule != nil {
			got = rule.Requests
		}
		if got != tt.want {
			t.Errorf("%s %s matched limit %d, want %d", tt.method, tt.path, got, tt.want)
		}
	}
}

func TestAllowSlidingWindow(t *testing.T) {
	rl, client := newTestLimiter(t, RateLimiterConfig{})
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		d, err := rl.Allow(ctx, "ratelimit:test", 3, time.Minute)
		if err != nil || !d.Allowed || d.Remaining != 2-i {
			t.Fatalf("request %d: %+v, %v", i, d, err)
		}
	}
	d, _ := rl.Allow(ctx, "ratelimit:test", 3, time.Minute)
	if d.Allowed {
		t.Fatal("fourth request allowed")
	}
	if until := time.Until(d.ResetAt); until <= 0 || until > time.Minute {
		t.Errorf("reset in %v", until)
	}
	if ttl := client.PTTL(ctx, "ratelimit:test").Val(); ttl <= 0 {
		t.Errorf("window key ttl = %v", ttl)
	}
}

func TestRateLimiterWhitelist(t *testing.T) {
	rl, _ := newTestLimiter(t, RateLimiterConfig{Whitelist: []string{"192.168.0.0/16", "10.9.9.9", "bogus/cidr"}})
	h := rl.Middleware(okHandler)

	for i := 0; i < 5; i++ {
		if w := get(h, "/stats", "192.168.4.4"); w.Code != http.StatusOK {
			t.Fatalf("whitelisted CIDR limited at request %d", i)
		}
		if w := get(h, "/stats", "10.9.9.9"); w.Code != http.StatusOK {
			t.Fatalf("whitelisted IP limited at request %d", i)
		}
	}
}

func TestAutoBlock(t *testing.T) {
	rl, client := newTestLimiter(t, RateLimiterConfig{AutoBlockEnabled: true})
	h := rl.Middleware(okHandler)

	for i := 0; i < 12; i++ {
		get(h, "/stats", "10.1.1.1")
	}
	if !rl.blocker.IsBlocked(context.Background(), "10.1.1.1") {
		t.Fatal("repeat offender was not blocked")
	}
	if w := get(h, "/health", "10.1.1.1"); w.Code != http.StatusForbidden {
		t.Errorf("blocked ip status = %d, want 403", w.Code)
	}

	if err := rl.blocker.Unblock(context.Background(), "10.1.1.1"); err != nil {
		t.Fatal(err)
	}
	if n, _ := client.Exists(context.Background(), "blocked:ip:10.1.1.1").Result(); n != 0 {
		t.Error("unblock left the key behind")
	}
}

func TestRealIP(t *testing.T) {
	tests := []struct {
		name   string
		header string
		value  string
		want   string
	}{
		{"forwarded", "X-Forwarded-For", "1.2.3.4, 10.0.0.1", "1.2.3.4"},
		{"real ip", "X-Real-IP", "5.6.7.8", "5.6.7.8"},
		{"remote addr", "", "", "9.9.9.9"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/", nil)
			r.RemoteAddr = "9.9.9.9:1234"
			if tt.header != "" {
				r.Header.Set(tt.header, tt.value)
			}
			if got := RealIP(r); got != tt.want {
				t.Errorf("RealIP() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestAuthMiddleware(t *testing.T) {
	secret := []byte(strings.Repeat("s", identity.MinSecretLen))
	verifier, err := identity.NewJWTVerifier(secret)
	if err != nil {
		t.Fatal(err)
	}
	token, _ := identity.Issue(secret, models.Identity{UserID: "u1"}, time.Minute)

	var seen *models.Identity
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = GetIdentityFromContext(r.Context())
	})

	tests := []struct {
		name     string
		required bool
		auth     string
		status   int
		user     string
	}{
		{"anonymous allowed", false, "", http.StatusOK, ""},
		{"anonymous rejected", true, "", http.StatusUnauthorized, ""},
		{"bad token rejected", true, "Bearer nope", http.StatusUnauthorized, ""},
		{"valid token", true, "Bearer " + token, http.StatusOK, "u1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			seen = nil
			m := NewAuthMiddleware(verifier, tt.required)
			h := m.Identify(m.RequireAuth(inner))

			r := httptest.NewRequest(http.MethodGet, "/rooms/r1/state", nil)
			if tt.auth != "" {
				r.Header.Set("Authorization", tt.auth)
			}
			w := httptest.NewRecorder()
			h.ServeHTTP(w, r)

			if w.Code != tt.status {
				t.Fatalf("status = %d, want %d", w.Code, tt.status)
			}
			if tt.user != "" && (seen == nil || seen.UserID != tt.user) {
				t.Errorf("identity = %+v", seen)
			}
		})
	}
}

func TestNormalizePath(t *testing.T) {
	tests := map[string]string{
		"/rooms/abc/state":     "/rooms/:id/state",
		"/rooms/abc/snapshots": "/rooms/:id/snapshots",
		"/rooms/abc":           "/rooms/:id",
		"/rooms/":              "/rooms/",
		"/health":              "/health",
	}
	for in, want := range tests {
		if got := normalizePath(in); got != want {
			t.Errorf("normalizePath(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestSecurityMiddleware(t *testing.T) {
	h := SecurityHeaders(ReadOnly(ValidateRequest(okHandler)))

	w := get(h, "/health", "1.1.1.1")
	if w.Header().Get("X-Frame-Options") != "DENY" || !strings.Contains(w.Header().Get("Content-Security-Policy"), "default-src 'none'") {
		t.Errorf("headers = %v", w.Header())
	}

	if w := get(h, "/rooms/../etc", "1.1.1.1"); w.Code != http.StatusBadRequest {
		t.Errorf("traversal status = %d", w.Code)
	}
	if w := get(h, "/rooms/r1/state?x=<script>", "1.1.1.1"); w.Code != http.StatusBadRequest {
		t.Errorf("xss query status = %d", w.Code)
	}

	w = httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/rooms/r1/state", strings.NewReader("{}")))
	if w.Code != http.StatusMethodNotAllowed || w.Header().Get("Allow") == "" {
		t.Errorf("POST status = %d, allow = %q", w.Code, w.Header().Get("Allow"))
	}
}
