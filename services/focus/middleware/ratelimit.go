// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package middleware provides HTTP middleware for the focus service.
//
// # Rate Limiting
//
// RateLimit keeps one token bucket per user id taken from the ":userId" path
// parameter. Requests without a user id share the bucket of the client IP.
//
//	Request
//	   │
//	   ▼
//	RateLimit
//	   │
//	   ├─► limiter for userId (created on first use)
//	   │
//	   ├─► Allow()? ── no ──► 429 {"error": "rate limit exceeded"}
//	   │
//	   └─► c.Next()
package middleware

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

// RateLimitConfig configures RateLimit.
type RateLimitConfig struct {
	// RequestsPerSecond is the sustained rate per user. <= 0 disables limiting.
	RequestsPerSecond float64

	// Burst is the bucket size. Default: 10.
	Burst int

	// IdleTTL evicts buckets unused for this long. Default: 10m.
	IdleTTL time.Duration
}

// RejectObserver is told about every rejected request.
type RejectObserver interface {
	RecordRateLimited()
}

type bucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// Limiters holds the per-key token buckets.
//
// # Thread Safety
//
// Safe for concurrent use.
type Limiters struct {
	cfg RateLimitConfig
	now func() time.Time

	mu        sync.Mutex
	buckets   map[string]*bucket
	lastSweep time.Time
}

// NewLimiters applies defaults to cfg.
func NewLimiters(cfg RateLimitConfig) *Limiters {
	if cfg.Burst <= 0 {
		cfg.Burst = 10
	}
	if cfg.IdleTTL <= 0 {
		cfg.IdleTTL = 10 * time.Minute
	}
	return &Limiters{
		cfg:     cfg,
		now:     time.Now,
		buckets: make(map[string]*bucket),
	}
}

// Allow takes one token from key's bucket.
func (l *Limiters) Allow(key string) bool {
	if l.cfg.RequestsPerSecond <= 0 {
		return true
	}
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	if now.Sub(l.lastSweep) > l.cfg.IdleTTL {
		for k, b := range l.buckets {
			if now.Sub(b.lastSeen) > l.cfg.IdleTTL {
				delete(l.buckets, k)
			}
		}
		l.lastSweep = now
	}

	b, ok := l.buckets[key]
	if !ok {
		b = &bucket{limiter: rate.NewLimiter(rate.Limit(l.cfg.RequestsPerSecond), l.cfg.Burst)}
		l.buckets[key] = b
	}
	b.lastSeen = now
	return b.limiter.AllowN(now, 1)
}

// Len returns the number of live buckets.
func (l *Limiters) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.buckets)
}

// RateLimit rejects requests over the per-user budget with 429.
//
// # Inputs
//
//   - limiters: Shared bucket set. Must not be nil.
//   - observer: Counts rejections. May be nil.
//
// # Outputs
//
//   - gin.HandlerFunc: Middleware for the /v1/users/:userId group.
func RateLimit(limiters *Limiters, observer RejectObserver) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := c.Param("userId")
		if key == "" {
			key = "ip:" + c.ClientIP()
		}
		if !limiters.Allow(key) {
			if observer != nil {
				observer.RecordRateLimited()
			}
			c.Header("Retry-After", "1")
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error": "rate limit exceeded",
			})
			return
		}
		c.Next()
	}
}
