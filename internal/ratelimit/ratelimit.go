/*
 * @module internal/ratelimit
 * @description Atomic fixed-window rate limiting over Redis, adapted
 *   from the source's three-tier RedisRateLimiter down to the two tiers
 *   this service's HTTP surface needs: per-session and per-user.
 * @architecture Utility layer - limits abuse of the feed/event endpoints
 * @dependencies github.com/go-redis/redis/v8
 */
package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

// Tier names a rate-limit dimension, checked in priority order.
type Tier string

const (
	TierUser    Tier = "user"
	TierSession Tier = "session"
)

var tierPriority = map[Tier]int{TierUser: 2, TierSession: 1}

// Rule bounds requests for one tier to maxRequests per window.
type Rule struct {
	Tier        Tier
	TargetID    string
	Window      time.Duration
	MaxRequests int
}

// Result reports whether a checked request was allowed and the remaining
// budget in the current window.
type Result struct {
	Allowed   bool
	Tier      Tier
	Limit     int
	Remaining int
	ResetAt   time.Time
}

const checkScript = `
local key = KEYS[1]
local max_requests = tonumber(ARGV[1])
local window = tonumber(ARGV[2])

local current = redis.call('GET', key)
if current == false then
	current = 0
else
	current = tonumber(current)
end

if current >= max_requests then
	local ttl = redis.call('TTL', key)
	if ttl < 0 then ttl = window end
	return {0, current, max_requests, ttl}
end

local new_count = redis.call('INCR', key)
if new_count == 1 then
	redis.call('EXPIRE', key, window)
end

local ttl = redis.call('TTL', key)
if ttl < 0 then ttl = window end
return {1, new_count, max_requests, ttl}
`

// Limiter checks requests against one or more Rules atomically via a
// single Redis round trip per rule.
type Limiter struct {
	rdb *redis.Client
}

func New(rdb *redis.Client) *Limiter { return &Limiter{rdb: rdb} }

// Check evaluates rules from highest to lowest priority (user before
// session) and returns on the first violation, or the last rule's result
// if every rule passed.
func (l *Limiter) Check(ctx context.Context, rules []Rule) (Result, error) {
	if len(rules) == 0 {
		return Result{Allowed: true}, nil
	}

	sorted := sortByPriority(rules)

	var last Result
	for _, rule := range sorted {
		res, err := l.checkRule(ctx, rule)
		if err != nil {
			return Result{}, err
		}
		last = res
		if !res.Allowed {
			return res, nil
		}
	}
	return last, nil
}

func (l *Limiter) checkRule(ctx context.Context, rule Rule) (Result, error) {
	key := buildKey(rule)
	windowSecs := int(rule.Window.Seconds())

	reply, err := l.rdb.Eval(ctx, checkScript, []string{key}, rule.MaxRequests, windowSecs).Result()
	if err != nil {
		return Result{}, fmt.Errorf("rate limit check failed for %s: %w", key, err)
	}

	vals, ok := reply.([]interface{})
	if !ok || len(vals) != 4 {
		return Result{}, fmt.Errorf("unexpected rate limit script reply: %v", reply)
	}

	allowed := vals[0].(int64) == 1
	current := int(vals[1].(int64))
	max := int(vals[2].(int64))
	ttl := int(vals[3].(int64))

	remaining := max - current
	if remaining < 0 {
		remaining = 0
	}

	return Result{
		Allowed:   allowed,
		Tier:      rule.Tier,
		Limit:     max,
		Remaining: remaining,
		ResetAt:   time.Now().Add(time.Duration(ttl) * time.Second),
	}, nil
}

func buildKey(rule Rule) string {
	windowSecs := int64(rule.Window.Seconds())
	if windowSecs <= 0 {
		windowSecs = 1
	}
	currentWindow := time.Now().Unix() / windowSecs
	return fmt.Sprintf("rate_limit:%s:%s:%d", rule.Tier, rule.TargetID, currentWindow)
}

func sortByPriority(rules []Rule) []Rule {
	sorted := make([]Rule, len(rules))
	copy(sorted, rules)
	for i := 0; i < len(sorted)-1; i++ {
		for j := 0; j < len(sorted)-i-1; j++ {
			if tierPriority[sorted[j].Tier] < tierPriority[sorted[j+1].Tier] {
				sorted[j], sorted[j+1] = sorted[j+1], sorted[j]
			}
		}
	}
	return sorted
}
