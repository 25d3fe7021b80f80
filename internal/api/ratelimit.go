// Copyright 2025 Tom Barlow
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package api

import (
	"net/http"
	"sync"

	"golang.org/x/time/rate"
)

// RateLimitConfig controls the per-user submission limiter.
type RateLimitConfig struct {
	RequestsPerSecond float64
	Burst             int
}

// rateLimiter enforces a per-user token bucket on workflow submissions,
// following internal/controller/filewatcher/service.go's per-entry use of
// golang.org/x/time/rate (one *rate.Limiter per key, built lazily).
type rateLimiter struct {
	cfg RateLimitConfig

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

func newRateLimiter(cfg RateLimitConfig) *rateLimiter {
	return &rateLimiter{cfg: cfg, limiters: make(map[string]*rate.Limiter)}
}

func (rl *rateLimiter) allow(userID string) bool {
	rl.mu.Lock()
	lim, ok := rl.limiters[userID]
	if !ok {
		lim = rate.NewLimiter(rate.Limit(rl.cfg.RequestsPerSecond), rl.cfg.Burst)
		rl.limiters[userID] = lim
	}
	rl.mu.Unlock()
	return lim.Allow()
}

// rateLimitMiddleware limits POST /workflows submissions per resolved user
// id; a nil limiter disables rate limiting entirely.
func rateLimitMiddleware(rl *rateLimiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if rl == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method != http.MethodPost || r.URL.Path != "/workflows" {
				next.ServeHTTP(w, r)
				return
			}
			userID := userIDFromRequest(r)
			if userID == "" {
				userID = r.RemoteAddr
			}
			if !rl.allow(userID) {
				w.Header().Set("Retry-After", "1")
				writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
