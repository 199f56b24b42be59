package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Limiter decides whether a caller identified by key may proceed.
type Limiter interface {
	Allow(ctx context.Context, key string) Decision
}

// Decision is the outcome of one Allow call.
type Decision struct {
	Allowed    bool
	Remaining  int
	RetryAfter time.Duration
}

// Rule is a quota of Limit calls per Window.
type Rule struct {
	Limit  int
	Window time.Duration
}

func (r Rule) validate() error {
	if r.Limit <= 0 || r.Window <= 0 {
		return errors.New("rate limit rule requires positive limit and window")
	}
	return nil
}

var fixedWindowScript = redis.NewScript(`
local count = redis.call("INCR", KEYS[1])
if count == 1 then
  redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
return {count, redis.call("PTTL", KEYS[1])}
`)

// RedisLimiter counts hits per fixed window in Redis so all instances share quotas.
// It fails closed: a Redis error denies the call.
type RedisLimiter struct {
	rule   Rule
	client redis.UniversalClient
	prefix string
	now    func() time.Time
}

// NewRedisLimiter builds a limiter on an existing client. name namespaces the keys
// (for example "contact" or "login").
func NewRedisLimiter(client redis.UniversalClient, name string, rule Rule) (*RedisLimiter, error) {
	if err := rule.validate(); err != nil {
		return nil, err
	}
	if client == nil {
		return nil, errors.New("rate limiter redis client is required")
	}
	name = strings.TrimSpace(name)
	if name == "" {
		name = "default"
	}
	return &RedisLimiter{
		rule:   rule,
		client: client,
		prefix: "citefleurie:ratelimit:" + name,
		now:    time.Now,
	}, nil
}

// Allow increments the counter for key in the current window.
func (l *RedisLimiter) Allow(ctx context.Context, key string) Decision {
	windowMs := l.rule.Window.Milliseconds()
	slot := l.now().UTC().UnixMilli() / windowMs
	redisKey := fmt.Sprintf("%s:%s:%d", l.prefix, normalizeKey(key), slot)

	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	res, err := fixedWindowScript.Run(ctx, l.client, []string{redisKey}, windowMs).Int64Slice()
	if err != nil || len(res) != 2 {
		return Decision{Allowed: false, RetryAfter: l.rule.Window}
	}
	return decide(l.rule, int(res[0]), time.Duration(res[1])*time.Millisecond)
}

// MemoryLimiter is the single-process variant used when no Redis is configured.
type MemoryLimiter struct {
	rule    Rule
	mu      sync.Mutex
	windows map[string]*memoryWindow
	now     func() time.Time
}

type memoryWindow struct {
	count   int
	resetAt time.Time
}

// NewMemoryLimiter builds an in-process limiter.
func NewMemoryLimiter(rule Rule) (*MemoryLimiter, error) {
	if err := rule.validate(); err != nil {
		return nil, err
	}
	return &MemoryLimiter{rule: rule, windows: make(map[string]*memoryWindow), now: time.Now}, nil
}

// Allow increments the counter for key in the current window.
func (l *MemoryLimiter) Allow(_ context.Context, key string) Decision {
	key = normalizeKey(key)
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()
	w, ok := l.windows[key]
	if !ok || !now.Before(w.resetAt) {
		l.sweep(now)
		w = &memoryWindow{resetAt: now.Add(l.rule.Window)}
		l.windows[key] = w
	}
	w.count++
	return decide(l.rule, w.count, w.resetAt.Sub(now))
}

func (l *MemoryLimiter) sweep(now time.Time) {
	for k, w := range l.windows {
		if !now.Before(w.resetAt) {
			delete(l.windows, k)
		}
	}
}

func decide(rule Rule, count int, ttl time.Duration) Decision {
	if ttl <= 0 {
		ttl = rule.Window
	}
	if count <= rule.Limit {
		return Decision{Allowed: true, Remaining: rule.Limit - count}
	}
	return Decision{Allowed: false, RetryAfter: ttl}
}

func normalizeKey(key string) string {
	key = strings.TrimSpace(key)
	if key == "" {
		return "unknown"
	}
	return key
}
