package rpc

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"net"
	"strings"
	"syscall"
	"time"

	"github.com/onchainwatch/logindexer/internal/common"
)

// RetryConfig configures the exponential-backoff retry wrapper around the
// raw transport (spec §6.1: "retries transient failures up to 5 times with
// 1s delay").
type RetryConfig struct {
	MaxAttempts       int
	InitialBackoff    common.Duration
	MaxBackoff        common.Duration
	BackoffMultiplier float64
}

// ApplyDefaults fills in the spec-mandated defaults: 5 attempts, 1s initial
// delay, 30s cap, doubling each attempt.
func (c *RetryConfig) ApplyDefaults() {
	if c.MaxAttempts == 0 {
		c.MaxAttempts = 5
	}
	if c.InitialBackoff.Duration == 0 {
		c.InitialBackoff = common.NewDuration(time.Second)
	}
	if c.MaxBackoff.Duration == 0 {
		c.MaxBackoff = common.NewDuration(30 * time.Second)
	}
	if c.BackoffMultiplier == 0 {
		c.BackoffMultiplier = 2.0
	}
}

// retryableError reports whether err should trigger another attempt.
// Range-too-wide errors are deliberately NOT retryable here — they are
// classified and returned undecorated so the fetch planner can bisect.
func retryableError(err error) bool {
	if err == nil {
		return false
	}

	if _, isRangeTooWide := classifyRangeTooWide(err); isRangeTooWide {
		return false
	}

	errStr := strings.ToLower(err.Error())

	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}

	if errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.EPIPE) {
		return true
	}

	if strings.Contains(errStr, "timeout") ||
		strings.Contains(errStr, "deadline exceeded") ||
		strings.Contains(errStr, "context deadline exceeded") {
		return true
	}

	if strings.Contains(errStr, "429") ||
		strings.Contains(errStr, "too many requests") ||
		strings.Contains(errStr, "rate limit") {
		return true
	}

	if strings.Contains(errStr, "502") ||
		strings.Contains(errStr, "503") ||
		strings.Contains(errStr, "504") ||
		strings.Contains(errStr, "bad gateway") ||
		strings.Contains(errStr, "service unavailable") ||
		strings.Contains(errStr, "gateway timeout") {
		return true
	}

	if strings.Contains(errStr, "connection pool") ||
		strings.Contains(errStr, "no available connection") {
		return true
	}

	return false
}

// calculateBackoff computes the exponential delay before the given attempt,
// with ±25% jitter, capped at cfg.MaxBackoff.
func calculateBackoff(attempt int, cfg *RetryConfig) time.Duration {
	if attempt <= 1 {
		return 0
	}

	backoff := float64(cfg.InitialBackoff.Duration) * math.Pow(cfg.BackoffMultiplier, float64(attempt-2))
	if backoff > float64(cfg.MaxBackoff.Duration) {
		backoff = float64(cfg.MaxBackoff.Duration)
	}

	jitterRange := backoff * 0.25
	jitter := (rand.Float64() * 2 * jitterRange) - jitterRange
	backoff += jitter

	if backoff < 0 {
		backoff = 0
	}

	return time.Duration(backoff)
}

// retryWithBackoff runs fn, retrying retryable errors with exponential
// backoff until cfg.MaxAttempts is exhausted or ctx is cancelled. A nil cfg
// disables retrying: fn runs exactly once.
func retryWithBackoff(ctx context.Context, cfg *RetryConfig, operation string, fn func() error) error {
	if cfg == nil {
		return fn()
	}

	var lastErr error
	startTime := time.Now()

	for attempt := 1; attempt <= cfg.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("context cancelled before attempt %d: %w", attempt, err)
		}

		err := fn()
		if err == nil {
			if attempt > 1 {
				RPCRetryInc(operation)
			}
			return nil
		}

		lastErr = err

		if !retryableError(err) {
			return err
		}

		if attempt >= cfg.MaxAttempts {
			break
		}

		backoffDuration := calculateBackoff(attempt, cfg)
		if backoffDuration > 0 {
			select {
			case <-time.After(backoffDuration):
			case <-ctx.Done():
				return fmt.Errorf("context cancelled during backoff (attempt %d/%d): %w",
					attempt, cfg.MaxAttempts, ctx.Err())
			}
		}

		RPCRetryInc(operation)
	}

	return fmt.Errorf("all %d attempts failed after %v (last error: %w)",
		cfg.MaxAttempts, time.Since(startTime), lastErr)
}
