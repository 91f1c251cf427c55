package rate

import (
	"context"
	"fmt"
	"strings"
	"time"
)

type Action string

const (
	ActionReport   Action = "report"
	ActionClassify Action = "classify"
	ActionIntent   Action = "intent"
)

type WindowStore interface {
	IncrementWindow(ctx context.Context, key string, window time.Duration) (int64, time.Duration, error)
	WindowState(ctx context.Context, key string) (int64, time.Duration, error)
}

// Rule allows Max actions per Window; Max <= 0 disables the rule.
type Rule struct {
	Max    int
	Window time.Duration
}

type Limiter struct {
	store WindowStore
	rules map[Action]Rule
}

func NewLimiter(store WindowStore, rules map[Action]Rule) *Limiter {
	copied := make(map[Action]Rule, len(rules))
	for action, rule := range rules {
		if rule.Max < 0 {
			rule.Max = 0
		}
		copied[action] = rule
	}
	return &Limiter{
		store: store,
		rules: copied,
	}
}

// Allow counts one action by userID and reports whether it is within limits.
func (l *Limiter) Allow(ctx context.Context, action Action, userID string) (int64, bool, error) {
	userKey := strings.ToLower(strings.TrimSpace(userID))
	if userKey == "" {
		return 0, false, fmt.Errorf("invalid user id")
	}
	if l == nil {
		return 0, true, nil
	}
	rule, ok := l.rules[action]
	if !ok || rule.Max == 0 || rule.Window <= 0 {
		return 0, true, nil
	}
	if l.store == nil {
		return 0, false, fmt.Errorf("rate limiter store is nil")
	}

	count, ttl, err := l.store.IncrementWindow(ctx, windowKey(action, userKey), rule.Window)
	if err != nil {
		return 0, false, err
	}
	if count > int64(rule.Max) {
		return ceilSeconds(ttl), false, nil
	}
	return 0, true, nil
}

func (l *Limiter) RetryAfter(ctx context.Context, action Action, userID string) (int64, error) {
	userKey := strings.ToLower(strings.TrimSpace(userID))
	if userKey == "" {
		return 0, fmt.Errorf("invalid user id")
	}
	if l == nil {
		return 0, nil
	}
	rule, ok := l.rules[action]
	if !ok || rule.Max == 0 {
		return 0, nil
	}
	if l.store == nil {
		return 0, fmt.Errorf("rate limiter store is nil")
	}

	count, ttl, err := l.store.WindowState(ctx, windowKey(action, userKey))
	if err != nil {
		return 0, err
	}
	if count >= int64(rule.Max) {
		return ceilSeconds(ttl), nil
	}
	return 0, nil
}

func windowKey(action Action, userKey string) string {
	return "rate:" + string(action) + ":" + userKey
}

func ceilSeconds(d time.Duration) int64 {
	if d <= 0 {
		return 1
	}
	sec := int64(d / time.Second)
	if d%time.Second != 0 {
		sec++
	}
	return sec
}
