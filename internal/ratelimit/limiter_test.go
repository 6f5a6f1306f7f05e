package ratelimit

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/dalfonso89/ratewatch/internal/config"
	"github.com/dalfonso89/ratewatch/internal/testutils"
)

type frozenClock struct {
	now time.Time
}

func (clock *frozenClock) Now() time.Time {
	return clock.now
}

func newTestLimiter(t *testing.T, configure func(cfg *config.Config)) (*Limiter, *frozenClock) {
	t.Helper()

	cfg := testutils.MockConfig("http://backend.invalid")
	cfg.RateLimitEnabled = true
	cfg.RateLimitBurst = 3
	cfg.RateLimitRequests = 60
	cfg.RateLimitWindow = 60 * time.Second
	if configure != nil {
		configure(cfg)
	}

	limiter := NewLimiter(cfg, testutils.MockLogger())
	clock := &frozenClock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	limiter.now = clock.Now
	t.Cleanup(limiter.Stop)
	return limiter, clock
}

func TestLimiter_Allow(t *testing.T) {
	tests := []struct {
		name     string
		enabled  bool
		requests int
		expected []bool
	}{
		{
			name:     "disabled",
			enabled:  false,
			requests: 5,
			expected: []bool{true, true, true, true, true},
		},
		{
			name:     "within burst",
			enabled:  true,
			requests: 3,
			expected: []bool{true, true, true},
		},
		{
			name:     "over burst",
			enabled:  true,
			requests: 5,
			expected: []bool{true, true, true, false, false},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			limiter, _ := newTestLimiter(t, func(cfg *config.Config) {
				cfg.RateLimitEnabled = tt.enabled
			})

			for i := 0; i < tt.requests; i++ {
				if got := limiter.Allow("192.168.1.1"); got != tt.expected[i] {
					t.Errorf("Allow() request %d = %v, want %v", i, got, tt.expected[i])
				}
			}
		})
	}
}

func TestLimiter_Refill(t *testing.T) {
	limiter, clock := newTestLimiter(t, nil)

	for i := 0; i < 3; i++ {
		limiter.Allow("10.0.0.1")
	}
	if limiter.Allow("10.0.0.1") {
		t.Fatal("Allow() after burst = true, want false")
	}

	// 60 requests per minute refills one token per second
	clock.now = clock.now.Add(time.Second)
	if !limiter.Allow("10.0.0.1") {
		t.Error("Allow() after refill = false, want true")
	}
	if limiter.Allow("10.0.0.1") {
		t.Error("Allow() second request after one refill = true, want false")
	}
}

func TestLimiter_DifferentIPs(t *testing.T) {
	limiter, _ := newTestLimiter(t, nil)

	for i := 0; i < 3; i++ {
		if !limiter.Allow("192.168.1.1") {
			t.Errorf("Allow() IP1 request %d = false, want true", i)
		}
		if !limiter.Allow("192.168.1.2") {
			t.Errorf("Allow() IP2 request %d = false, want true", i)
		}
	}

	if limiter.Allow("192.168.1.1") {
		t.Error("Allow() IP1 after burst = true, want false")
	}
	if limiter.Buckets() != 2 {
		t.Errorf("Buckets() = %d, want 2", limiter.Buckets())
	}
}

func TestLimiter_EvictIdle(t *testing.T) {
	limiter, clock := newTestLimiter(t, nil)

	limiter.Allow("192.168.1.1")
	clock.now = clock.now.Add(10 * time.Minute)
	limiter.Allow("192.168.1.2")

	clock.now = clock.now.Add(25 * time.Minute)
	limiter.evictIdle()

	if limiter.Buckets() != 1 {
		t.Errorf("Buckets() after eviction = %d, want 1", limiter.Buckets())
	}
}

func TestLimiter_GetClientIP(t *testing.T) {
	limiter, _ := newTestLimiter(t, nil)

	tests := []struct {
		name       string
		headers    map[string]string
		remoteAddr string
		expected   string
	}{
		{
			name:       "X-Forwarded-For",
			headers:    map[string]string{"X-Forwarded-For": "203.0.113.195"},
			remoteAddr: "192.168.1.1:12345",
			expected:   "203.0.113.195",
		},
		{
			name:       "X-Forwarded-For chain uses first hop",
			headers:    map[string]string{"X-Forwarded-For": "203.0.113.195, 70.41.3.18"},
			remoteAddr: "192.168.1.1:12345",
			expected:   "203.0.113.195",
		},
		{
			name:       "X-Forwarded-For with port",
			headers:    map[string]string{"X-Forwarded-For": "203.0.113.195:8080"},
			remoteAddr: "192.168.1.1:12345",
			expected:   "203.0.113.195",
		},
		{
			name:       "X-Real-IP",
			headers:    map[string]string{"X-Real-IP": "203.0.113.7"},
			remoteAddr: "192.168.1.1:12345",
			expected:   "203.0.113.7",
		},
		{
			name:       "invalid header falls back to RemoteAddr",
			headers:    map[string]string{"X-Forwarded-For": "invalid-ip"},
			remoteAddr: "192.168.1.1:12345",
			expected:   "192.168.1.1",
		},
		{
			name:       "RemoteAddr without port",
			headers:    map[string]string{},
			remoteAddr: "192.168.1.9",
			expected:   "192.168.1.9",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/api/v1/retry", nil)
			req.RemoteAddr = tt.remoteAddr
			for header, value := range tt.headers {
				req.Header.Set(header, value)
			}

			if got := limiter.GetClientIP(req); got != tt.expected {
				t.Errorf("GetClientIP() = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestLimiter_Middleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	limiter, _ := newTestLimiter(t, func(cfg *config.Config) {
		cfg.RateLimitBurst = 2
	})

	router := gin.New()
	router.POST("/api/v1/retry", limiter.Middleware(), func(c *gin.Context) {
		c.Status(http.StatusAccepted)
	})

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/retry", nil)
		req.RemoteAddr = "192.168.1.1:12345"
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		codes = append(codes, w.Code)

		if w.Code == http.StatusTooManyRequests {
			if w.Header().Get("X-RateLimit-Limit") != "60" {
				t.Errorf("X-RateLimit-Limit = %q, want 60", w.Header().Get("X-RateLimit-Limit"))
			}
			if w.Header().Get("X-RateLimit-Remaining") != "0" {
				t.Errorf("X-RateLimit-Remaining = %q, want 0", w.Header().Get("X-RateLimit-Remaining"))
			}
		}
	}

	want := []int{http.StatusAccepted, http.StatusAccepted, http.StatusTooManyRequests}
	for i := range want {
		if codes[i] != want[i] {
			t.Errorf("request %d status = %d, want %d", i, codes[i], want[i])
		}
	}
}

func TestLimiter_Stop(t *testing.T) {
	limiter, _ := newTestLimiter(t, nil)

	limiter.Stop()
	limiter.Stop()
}
