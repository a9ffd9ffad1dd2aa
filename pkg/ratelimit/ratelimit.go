// Package ratelimit throttles expensive actions per user across all
// instances, using Redis fixed windows. Redis being down never blocks the
// product: the limiter fails open and records the degradation.
package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/slateboards/slate/pkg/apperrors"
	"github.com/slateboards/slate/pkg/observability"
)

// Window is the fixed window length shared by all actions.
const Window = time.Minute

// actionLimits caps each throttled action per user per window. An action
// missing from the table is not throttled.
var actionLimits = map[string]int{
	"board.create":      10,
	"card.create":       60,
	"card.reorder":      120,
	"attachment.upload": 30,
	"ai.generate":       10,
}

// LimitFor returns the per-window cap for an action, or 0 when the action is
// not throttled.
func LimitFor(action string) int {
	return actionLimits[action]
}

// Result describes one limiter decision.
type Result struct {
	Allowed   bool
	Remaining int
	ResetIn   time.Duration
}

// Limiter is a Redis-backed fixed-window rate limiter keyed by
// (user, action).
type Limiter struct {
	redis   *redis.Client
	prefix  string
	metrics *observability.Metrics
}

// NewLimiter creates a limiter. prefix namespaces the Redis keys so multiple
// environments can share one Redis.
func NewLimiter(redisClient *redis.Client, prefix string, metrics *observability.Metrics) *Limiter {
	if prefix == "" {
		prefix = "ratelimit"
	}
	return &Limiter{redis: redisClient, prefix: prefix, metrics: metrics}
}

func (l *Limiter) key(userID int64, action string) string {
	return fmt.Sprintf("%s:%d:%s", l.prefix, userID, action)
}

// Allow counts one attempt at an action and decides it. The first increment
// of a window arms the key's expiry; later attempts, allowed or rejected,
// never move the reset point, so the counter always expires Window after the
// window opened. Redis errors fail open: the attempt is allowed and the
// degradation is counted.
func (l *Limiter) Allow(ctx context.Context, userID int64, action string) (*Result, error) {
	limit, ok := actionLimits[action]
	if !ok {
		return &Result{Allowed: true, Remaining: -1}, nil
	}

	redisKey := l.key(userID, action)

	count, err := l.redis.Incr(ctx, redisKey).Result()
	if err != nil {
		if l.metrics != nil {
			l.metrics.RateLimitDegraded.Inc()
		}
		return &Result{Allowed: true, Remaining: limit}, nil
	}
	if count == 1 {
		if err := l.redis.Expire(ctx, redisKey, Window).Err(); err != nil {
			if l.metrics != nil {
				l.metrics.RateLimitDegraded.Inc()
			}
			return &Result{Allowed: true, Remaining: limit - 1}, nil
		}
	}

	if count > int64(limit) {
		if l.metrics != nil {
			l.metrics.RateLimitRejected.WithLabelValues(action).Inc()
		}
		resetIn, ttlErr := l.redis.TTL(ctx, redisKey).Result()
		if ttlErr != nil || resetIn < 0 {
			// A key that lost its TTL would throttle forever; re-arm it.
			l.redis.Expire(ctx, redisKey, Window)
			resetIn = Window
		}
		return &Result{Allowed: false, Remaining: 0, ResetIn: resetIn}, nil
	}

	return &Result{Allowed: true, Remaining: limit - int(count)}, nil
}

// Check runs Allow and converts a rejection into a RateLimitedError.
func (l *Limiter) Check(ctx context.Context, userID int64, action string) error {
	result, err := l.Allow(ctx, userID, action)
	if err != nil {
		return err
	}
	if !result.Allowed {
		return &apperrors.RateLimitedError{Action: action, RetryAfter: result.ResetIn}
	}
	return nil
}

// Remaining reports how many attempts are left in the current window without
// consuming one.
func (l *Limiter) Remaining(ctx context.Context, userID int64, action string) (int, error) {
	limit, ok := actionLimits[action]
	if !ok {
		return -1, nil
	}

	count, err := l.redis.Get(ctx, l.key(userID, action)).Int()
	if err == redis.Nil {
		return limit, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to read rate limit counter: %w", err)
	}

	remaining := limit - count
	if remaining < 0 {
		remaining = 0
	}
	return remaining, nil
}

// Reset clears an action's counter for a user.
func (l *Limiter) Reset(ctx context.Context, userID int64, action string) error {
	return l.redis.Del(ctx, l.key(userID, action)).Err()
}
