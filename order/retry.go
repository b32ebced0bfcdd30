package order

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/jpillora/backoff"
)

// ErrRetriesExhausted 可重试错误在最大次数内没有恢复
var ErrRetriesExhausted = errors.New("重试次数已用完")

// RetryPolicy 有界重试参数，Factor 为 1 时是固定间隔
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	Factor      float64

	// Sleep 等待函数，测试中可替换；为 nil 时按 ctx 可取消地等待
	Sleep func(ctx context.Context, d time.Duration) error
}

func (p RetryPolicy) normalized() RetryPolicy {
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = 1
	}
	if p.BaseDelay <= 0 {
		p.BaseDelay = time.Second
	}
	if p.MaxDelay < p.BaseDelay {
		p.MaxDelay = p.BaseDelay
	}
	if p.Factor < 1 {
		p.Factor = 1
	}
	if p.Sleep == nil {
		p.Sleep = sleepContext
	}
	return p
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Retry 执行 fn，isRetryable 为真的错误按策略等待后重试。
// 返回实际尝试次数；次数用完时错误同时包装 ErrRetriesExhausted 和最后一次错误
func Retry(ctx context.Context, policy RetryPolicy, isRetryable func(error) bool, fn func(attempt int) error) (int, error) {
	policy = policy.normalized()
	b := &backoff.Backoff{
		Min:    policy.BaseDelay,
		Max:    policy.MaxDelay,
		Factor: policy.Factor,
	}

	var lastErr error
	for attempt := 1; attempt <= policy.MaxAttempts; attempt++ {
		lastErr = fn(attempt)
		if lastErr == nil {
			return attempt, nil
		}
		if !isRetryable(lastErr) {
			return attempt, lastErr
		}
		if attempt == policy.MaxAttempts {
			break
		}
		if err := policy.Sleep(ctx, b.Duration()); err != nil {
			return attempt, fmt.Errorf("等待重试时退出: %w", err)
		}
	}
	return policy.MaxAttempts, fmt.Errorf("%w (%d 次): %w", ErrRetriesExhausted, policy.MaxAttempts, lastErr)
}

// JitterFunc 返回 [min, max) 内的延迟
type JitterFunc func(min, max time.Duration) time.Duration

// RandomJitter 均匀随机延迟
func RandomJitter(min, max time.Duration) time.Duration {
	if max <= min {
		return min
	}
	return min + time.Duration(rand.Int63n(int64(max-min)))
}

// FixedJitter 总是返回 d
func FixedJitter(d time.Duration) JitterFunc {
	return func(time.Duration, time.Duration) time.Duration { return d }
}
