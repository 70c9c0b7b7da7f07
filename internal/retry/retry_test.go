package retry

import (
	"context"
	"errors"
	"fmt"
	"net"
	"testing"
	"time"

	"github.com/studymill/studymill-backend/internal/pkg/errs"
)

func testPolicy(maxRetries int) Policy {
	return Policy{
		MaxRetries:   maxRetries,
		BaseDelay:    time.Millisecond,
		MaxDelay:     4 * time.Millisecond,
		NonRetryable: errs.NonRetryable,
		Sleep:        func(time.Duration) {},
	}
}

func TestDoSucceedsFirstAttempt(t *testing.T) {
	attempts := 0
	err := testPolicy(3).Do(context.Background(), func() error {
		attempts++
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if attempts != 1 {
		t.Fatalf("got %d attempts, want 1", attempts)
	}
}

func TestDoTransientErrorExhaustsRetries(t *testing.T) {
	attempts := 0
	transient := errors.New("connection reset")
	err := testPolicy(3).Do(context.Background(), func() error {
		attempts++
		return transient
	})
	if !errors.Is(err, transient) {
		t.Fatalf("got %v, want transient error", err)
	}
	if attempts != 4 {
		t.Fatalf("got %d attempts, want maxRetries+1 = 4", attempts)
	}
}

func TestDoNonRetryableFailsFast(t *testing.T) {
	attempts := 0
	authErr := fmt.Errorf("call provider: %w", errs.ErrAuth)
	err := testPolicy(3).Do(context.Background(), func() error {
		attempts++
		return authErr
	})
	if !errors.Is(err, errs.ErrAuth) {
		t.Fatalf("got %v, want auth error", err)
	}
	if attempts != 1 {
		t.Fatalf("non-retryable error retried: %d attempts", attempts)
	}
}

func TestDoRecoversAfterTransientFailures(t *testing.T) {
	attempts := 0
	err := testPolicy(3).Do(context.Background(), func() error {
		attempts++
		if attempts < 3 {
			return errors.New("flaky")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if attempts != 3 {
		t.Fatalf("got %d attempts, want 3", attempts)
	}
}

func TestDoBackoffDoublesAndCaps(t *testing.T) {
	var delays []time.Duration
	p := Policy{
		MaxRetries: 4,
		BaseDelay:  time.Second,
		MaxDelay:   4 * time.Second,
		Sleep:      func(d time.Duration) { delays = append(delays, d) },
	}
	_ = p.Do(context.Background(), func() error { return errors.New("always") })

	want := []time.Duration{time.Second, 2 * time.Second, 4 * time.Second, 4 * time.Second}
	if len(delays) != len(want) {
		t.Fatalf("got %d sleeps, want %d", len(delays), len(want))
	}
	for i := range want {
		if delays[i] != want[i] {
			t.Fatalf("sleep %d was %v, want %v", i, delays[i], want[i])
		}
	}
}

type throttledErr struct {
	after time.Duration
}

func (e *throttledErr) Error() string                 { return "status 429" }
func (e *throttledErr) RetryAfterHint() time.Duration { return e.after }

func TestDoHonorsRetryAfterHint(t *testing.T) {
	var delays []time.Duration
	p := Policy{
		MaxRetries: 2,
		BaseDelay:  time.Second,
		MaxDelay:   10 * time.Second,
		Sleep:      func(d time.Duration) { delays = append(delays, d) },
	}
	_ = p.Do(context.Background(), func() error {
		return fmt.Errorf("call provider: %w", &throttledErr{after: 5 * time.Second})
	})

	want := []time.Duration{5 * time.Second, 5 * time.Second}
	if len(delays) != len(want) {
		t.Fatalf("got %d sleeps, want %d", len(delays), len(want))
	}
	for i := range want {
		if delays[i] != want[i] {
			t.Fatalf("sleep %d was %v, want server hint %v", i, delays[i], want[i])
		}
	}
}

func TestDoCapsRetryAfterHintAtMaxDelay(t *testing.T) {
	var delays []time.Duration
	p := Policy{
		MaxRetries: 1,
		BaseDelay:  time.Second,
		MaxDelay:   3 * time.Second,
		Sleep:      func(d time.Duration) { delays = append(delays, d) },
	}
	_ = p.Do(context.Background(), func() error {
		return &throttledErr{after: time.Minute}
	})

	if len(delays) != 1 || delays[0] != 3*time.Second {
		t.Fatalf("delays %v, want hint capped at 3s", delays)
	}
}

func TestDoRetriesNetworkErrors(t *testing.T) {
	attempts := 0
	err := testPolicy(2).Do(context.Background(), func() error {
		attempts++
		return &net.OpError{Op: "dial", Net: "tcp", Err: errors.New("connection refused")}
	})
	if err == nil {
		t.Fatal("expected exhaustion error")
	}
	if attempts != 3 {
		t.Fatalf("got %d attempts, want network errors retried to exhaustion (3)", attempts)
	}
}

func TestDoStopsOnCanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	attempts := 0
	err := testPolicy(3).Do(ctx, func() error {
		attempts++
		return errors.New("should not run")
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("got %v, want context.Canceled", err)
	}
	if attempts != 0 {
		t.Fatalf("fn ran %d times after cancellation", attempts)
	}
}
