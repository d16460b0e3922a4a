package ecr

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/smithy-go"
)

// CustomRetryer implements aws.Retryer with exponential backoff and jitter.
// Only throttling errors are retried; every other failure is returned to the
// caller on the first attempt.
//
// Thread Safety: all fields are set at creation time and never modified.
type CustomRetryer struct {
	maxAttempts int
	baseDelay   time.Duration
	maxDelay    time.Duration
}

// NewCustomRetryer returns a retryer making at most maxAttempts attempts,
// starting from baseDelay and capping each wait at maxDelay.
func NewCustomRetryer(maxAttempts int, baseDelay, maxDelay time.Duration) *CustomRetryer {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	return &CustomRetryer{
		maxAttempts: maxAttempts,
		baseDelay:   baseDelay,
		maxDelay:    maxDelay,
	}
}

// createCustomRetryer returns the retryer installed by default:
// 5 attempts, 100ms base delay, 10s maximum delay.
//
//nolint:ireturn // the SDK consumes the aws.Retryer interface
func createCustomRetryer() aws.Retryer {
	return NewCustomRetryer(5, 100*time.Millisecond, 10*time.Second)
}

// MaxAttempts returns the maximum number of attempts, including the first.
func (r *CustomRetryer) MaxAttempts() int {
	return r.maxAttempts
}

// RetryDelay returns baseDelay * 2^(attempt-1) with ±25% jitter, capped at maxDelay.
func (r *CustomRetryer) RetryDelay(attempt int, _ error) (time.Duration, error) {
	delay := time.Duration(math.Pow(2, float64(attempt-1))) * r.baseDelay

	jitterRange := int64(float64(delay) * 0.25)
	if jitterRange > 0 {
		delay += time.Duration(rand.Int63n(2*jitterRange) - jitterRange)
	}

	if delay > r.maxDelay {
		delay = r.maxDelay
	}
	if delay < 0 {
		delay = 0
	}

	return delay, nil
}

// IsErrorRetryable reports whether err is a throttling error.
func (r *CustomRetryer) IsErrorRetryable(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return false
	}

	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "ThrottlingException",
			"TooManyRequestsException",
			"RequestLimitExceeded",
			"LimitExceededException":
			return true
		}
	}

	return false
}

// GetRetryToken always grants a retry; there is no shared token bucket.
func (r *CustomRetryer) GetRetryToken(_ context.Context, _ error) (func(error) error, error) {
	return func(error) error { return nil }, nil
}

// GetInitialToken returns a no-op release function.
func (r *CustomRetryer) GetInitialToken() func(error) error {
	return func(error) error { return nil }
}

var _ aws.Retryer = (*CustomRetryer)(nil)
