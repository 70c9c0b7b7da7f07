package retry

import (
	"context"
	"errors"
	"time"

	"github.com/studymill/studymill-backend/internal/pkg/httpx"
)

// Policy is a reusable bounded-exponential-backoff retry policy shared by
// every external-call site (transcription, OCR, LLM).
type Policy struct {
	// MaxRetries is the number of retries after the first attempt, so a
	// transient failure is attempted at most MaxRetries+1 times.
	MaxRetries int
	BaseDelay  time.Duration
	MaxDelay   time.Duration

	// NonRetryable short-circuits the loop for errors that must fail fast
	// (auth failures, malformed input). Nil means retry everything.
	NonRetryable func(error) bool

	// Sleep is swapped out in tests. Nil means time.Sleep with jitter.
	Sleep func(time.Duration)
}

func Default() Policy {
	return Policy{
		MaxRetries: 3,
		BaseDelay:  750 * time.Millisecond,
		MaxDelay:   10 * time.Second,
	}
}

// Do runs fn until it succeeds, the policy is exhausted, a non-retryable
// error occurs, or ctx is done.
func (p Policy) Do(ctx context.Context, fn func() error) error {
	backoff := p.BaseDelay
	if backoff <= 0 {
		backoff = 750 * time.Millisecond
	}
	maxDelay := p.MaxDelay
	if maxDelay <= 0 {
		maxDelay = 10 * time.Second
	}
	sleep := p.Sleep
	if sleep == nil {
		sleep = func(d time.Duration) { time.Sleep(httpx.JitterSleep(d)) }
	}

	var last error
	for attempt := 0; attempt <= p.MaxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		err := fn()
		if err == nil {
			return nil
		}
		last = err

		if p.NonRetryable != nil && p.NonRetryable(err) {
			return err
		}
		if attempt == p.MaxRetries {
			break
		}

		delay := backoff
		var hinter httpx.RetryAfterHinter
		if errors.As(err, &hinter) {
			if ra := hinter.RetryAfterHint(); ra > delay {
				delay = ra
			}
		}
		if delay > maxDelay {
			delay = maxDelay
		}
		sleep(delay)

		backoff *= 2
		if backoff > maxDelay {
			backoff = maxDelay
		}
	}
	return last
}
