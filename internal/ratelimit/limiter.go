package ratelimit

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Scopes used by the pipelines
const (
	ScopeVerifyIP   = "verify-ip"
	ScopeDownloadIP = "download-ip"
	ScopeSessionKey = "session-key"
)

// windowScript returns -1 when the key was created by this call, otherwise
// the count before the increment. The remaining TTL is kept; a key without
// a TTL gets the full window.
var windowScript = redis.NewScript(`
local current = redis.call("GET", KEYS[1])
if not current then
  redis.call("SET", KEYS[1], 1, "PX", ARGV[1])
  return -1
end
local ttl = redis.call("PTTL", KEYS[1])
if ttl <= 0 then
  ttl = tonumber(ARGV[1])
end
local count = tonumber(current) or 0
redis.call("SET", KEYS[1], count + 1, "PX", ttl)
return count
`)

// Limiter is a Redis backed fixed-window limiter
type Limiter struct {
	client    redis.Scripter
	prefix    string
	logger    *slog.Logger
	failOpen  metric.Int64Counter
	decisions metric.Int64Counter
}

// New creates a limiter. Keys are stored as "<prefix>:ratelimit:<key>".
func New(client redis.Scripter, prefix string, logger *slog.Logger, meter metric.Meter) (*Limiter, error) {
	failOpen, err := meter.Int64Counter(
		"ratelimit_fail_open_total",
		metric.WithDescription("Rate limit checks admitted because the backend failed"),
	)
	if err != nil {
		return nil, err
	}

	decisions, err := meter.Int64Counter(
		"ratelimit_decisions_total",
		metric.WithDescription("Rate limit decisions by scope and outcome"),
	)
	if err != nil {
		return nil, err
	}

	return &Limiter{
		client:    client,
		prefix:    prefix,
		logger:    logger.With(slog.String("component", "ratelimit")),
		failOpen:  failOpen,
		decisions: decisions,
	}, nil
}

// Key joins a scope and an identifier
func Key(scope, id string) string {
	return scope + ":" + id
}

// VerifyIPKey counts verification attempts per caller IP
func VerifyIPKey(ip string) string { return Key(ScopeVerifyIP, ip) }

// DownloadIPKey counts download attempts per caller IP
func DownloadIPKey(ip string) string { return Key(ScopeDownloadIP, ip) }

// SessionKey counts downloads per session key hash
func SessionKey(sessionKeyHash string) string { return Key(ScopeSessionKey, sessionKeyHash) }

// scopeOf returns the scope part of a key built by Key. Keys without a scope
// are reported as "other".
func scopeOf(key string) string {
	scope, _, found := strings.Cut(key, ":")
	if !found || scope == "" {
		return "other"
	}
	return scope
}

// IsLimited records one request against key and reports whether it exceeds
// maxRequests for the current window
func (l *Limiter) IsLimited(ctx context.Context, key string, maxRequests int, window time.Duration) bool {
	fullKey := l.prefix + ":ratelimit:" + key

	windowMS := window.Milliseconds()
	if windowMS <= 0 {
		windowMS = 1
	}

	pre, err := windowScript.Run(ctx, l.client, []string{fullKey}, windowMS).Int64()
	if err != nil {
		// Fail open: an unavailable limiter must not block traffic
		l.logger.WarnContext(ctx, "rate limiter unavailable, admitting request",
			slog.String("key", key),
			slog.String("error", err.Error()))
		l.failOpen.Add(ctx, 1)
		return false
	}

	limited := pre >= 0 && pre >= int64(maxRequests)

	outcome := "allowed"
	if limited {
		outcome = "limited"
	}
	l.decisions.Add(ctx, 1, metric.WithAttributes(
		attribute.String("scope", scopeOf(key)),
		attribute.String("outcome", outcome),
	))

	return limited
}
