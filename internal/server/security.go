package server

import (
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/emily-flambe/games-sub001/internal/logger"
)

// UpgradeLimiter throttles WebSocket upgrade attempts per client IP.
type UpgradeLimiter struct {
	requests map[string]*upgradeRate
	mu       sync.Mutex

	maxPerSecond int
	banDuration  time.Duration
}

type upgradeRate struct {
	count       int
	lastReset   time.Time
	bannedUntil time.Time
}

// NewUpgradeLimiter creates an upgrade limiter allowing maxPerSecond
// attempts per IP before a temporary ban.
func NewUpgradeLimiter(maxPerSecond int, banDuration time.Duration) *UpgradeLimiter {
	ul := &UpgradeLimiter{
		requests:     make(map[string]*upgradeRate),
		maxPerSecond: maxPerSecond,
		banDuration:  banDuration,
	}
	go ul.cleanup()
	return ul
}

// Allow reports whether an upgrade attempt from this IP may proceed.
func (ul *UpgradeLimiter) Allow(ip string) bool {
	ul.mu.Lock()
	defer ul.mu.Unlock()

	now := time.Now()
	rate, exists := ul.requests[ip]
	if !exists {
		ul.requests[ip] = &upgradeRate{count: 1, lastReset: now}
		return true
	}

	if now.Before(rate.bannedUntil) {
		return false
	}
	if now.Sub(rate.lastReset) >= time.Second {
		rate.count = 0
		rate.lastReset = now
	}

	rate.count++
	if rate.count > ul.maxPerSecond {
		rate.bannedUntil = now.Add(ul.banDuration)
		logger.LogInfo("ip %s temporarily banned for %v, too many upgrade attempts", ip, ul.banDuration)
		return false
	}
	return true
}

func (ul *UpgradeLimiter) cleanup() {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()

	for range ticker.C {
		ul.mu.Lock()
		now := time.Now()
		for ip, rate := range ul.requests {
			if now.Sub(rate.lastReset) > 10*time.Minute && now.After(rate.bannedUntil) {
				delete(ul.requests, ip)
			}
		}
		ul.mu.Unlock()
	}
}

// MessageLimiter throttles inbound messages on one established connection.
// It is owned by a single read pump, so it needs no locking.
type MessageLimiter struct {
	maxPerSecond int
	count        int
	lastReset    time.Time
	violations   int
}

// NewMessageLimiter creates a per-connection message limiter.
func NewMessageLimiter(maxPerSecond int) *MessageLimiter {
	return &MessageLimiter{maxPerSecond: maxPerSecond, lastReset: time.Now()}
}

// Allow counts one inbound message and reports whether it may be processed.
func (ml *MessageLimiter) Allow() bool {
	now := time.Now()
	if now.Sub(ml.lastReset) >= time.Second {
		ml.count = 0
		ml.lastReset = now
	}
	ml.count++
	if ml.count > ml.maxPerSecond {
		ml.violations++
		return false
	}
	return true
}

// Violations returns how many messages were rejected so far.
func (ml *MessageLimiter) Violations() int {
	return ml.violations
}

// OriginChecker validates the Origin header during upgrade. An empty allow
// list accepts everything (development mode).
type OriginChecker struct {
	allowed map[string]bool
}

// NewOriginChecker creates an origin checker for the configured origins.
func NewOriginChecker(origins []string) *OriginChecker {
	oc := &OriginChecker{allowed: make(map[string]bool)}
	for _, origin := range origins {
		oc.allowed[strings.TrimRight(origin, "/")] = true
	}
	return oc
}

// Check validates a request's Origin header.
func (oc *OriginChecker) Check(r *http.Request) bool {
	if len(oc.allowed) == 0 {
		return true
	}
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true // non-browser clients
	}
	return oc.allowed[strings.TrimRight(origin, "/")]
}

// GetClientIP extracts the real client IP, honoring proxy headers.
func GetClientIP(r *http.Request) string {
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		parts := strings.Split(forwarded, ",")
		return strings.TrimSpace(parts[0])
	}
	if realIP := r.Header.Get("X-Real-IP"); realIP != "" {
		return realIP
	}
	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return ip
}
